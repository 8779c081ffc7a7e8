// Package dispatch holds the external collaborators the executor talks to:
// the telephony provider that places calls and the billing service that
// gates usage.
package dispatch

import (
	"context"

	"github.com/unclebandit/calleopard-backend/internal/model"
)

// CallResult is the provider's answer to a placement request. Outcome is
// OutcomePending when the provider completes asynchronously; the final
// outcome then arrives on the status webhook.
type CallResult struct {
	ProviderCallID  string
	Outcome         model.CallOutcome
	DurationSeconds int
}

// CallDispatcher places one outbound call with the telephony provider.
type CallDispatcher interface {
	CreateCall(ctx context.Context, agentID, phoneNumber string, metadata map[string]string) (*CallResult, error)
}

// UsageDecision is the billing service's verdict on whether the
// organization may keep placing calls.
type UsageDecision struct {
	Allowed bool
	Reason  string
}

// UsageGate is the billing collaborator: minute-limit checks before a call,
// usage recording after one.
type UsageGate interface {
	CheckMinutesLimit(ctx context.Context, orgID int) (*UsageDecision, error)
	RecordCallUsage(ctx context.Context, orgID int, durationSeconds int, callID string) error
}
