package model

import "time"

// CallOutcome is the telephony provider's result for one call attempt.
type CallOutcome string

const (
	// OutcomePending means the provider accepted the call but the final
	// outcome has not arrived yet (it comes in on the status webhook).
	OutcomePending CallOutcome = "pending"

	// Retryable outcomes.
	OutcomeNoAnswer        CallOutcome = "no_answer"
	OutcomeBusy            CallOutcome = "busy"
	OutcomeProviderTimeout CallOutcome = "provider_timeout"
	OutcomeNetworkError    CallOutcome = "network_error"

	// Terminal outcomes.
	OutcomeCompleted        CallOutcome = "completed"
	OutcomeDNCRequested     CallOutcome = "dnc_requested"
	OutcomeProviderRejected CallOutcome = "provider_rejected"
)

func (o CallOutcome) String() string { return string(o) }

func (o CallOutcome) IsValid() bool {
	switch o {
	case OutcomePending, OutcomeNoAnswer, OutcomeBusy, OutcomeProviderTimeout,
		OutcomeNetworkError, OutcomeCompleted, OutcomeDNCRequested, OutcomeProviderRejected:
		return true
	}
	return false
}

// CallAttempt is an append-only log row, one per dispatch attempt.
type CallAttempt struct {
	ID              int         `db:"id" json:"id"`
	ContactID       int         `db:"contact_id" json:"contact_id"`
	CampaignID      int         `db:"campaign_id" json:"campaign_id"`
	ProviderCallID  string      `db:"provider_call_id" json:"provider_call_id"`
	Outcome         CallOutcome `db:"outcome" json:"outcome"`
	StartedAt       time.Time   `db:"started_at" json:"started_at"`
	EndedAt         *time.Time  `db:"ended_at" json:"ended_at,omitempty"`
	DurationSeconds int         `db:"duration_seconds" json:"duration_seconds"`
	Retryable       bool        `db:"retryable" json:"retryable"`
}
