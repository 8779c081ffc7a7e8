// Package metrics registers the engine's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CallsDispatched = promauto.NewCounter(prometheus.CounterOpts{
		Name: "calleopard_calls_dispatched_total",
		Help: "Outbound calls handed to the telephony provider.",
	})

	ComplianceDenials = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "calleopard_compliance_denials_total",
		Help: "Contacts skipped by the compliance gate, by deny reason.",
	}, []string{"reason"})

	SchedulerSkips = promauto.NewCounter(prometheus.CounterOpts{
		Name: "calleopard_scheduler_skips_total",
		Help: "Scheduler ticks that found a campaign already executing.",
	})

	BatchesExecuted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "calleopard_batches_executed_total",
		Help: "Batch executor runs, successful or not.",
	})

	QuotaAborts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "calleopard_quota_aborts_total",
		Help: "Batches aborted mid-run because the organization's minute limit was exhausted.",
	})

	CampaignsCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "calleopard_campaigns_completed_total",
		Help: "Campaigns that reached the completed state.",
	})
)
