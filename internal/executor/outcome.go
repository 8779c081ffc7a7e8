package executor

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/unclebandit/calleopard-backend/internal/dispatch"
	"github.com/unclebandit/calleopard-backend/internal/model"
	"github.com/unclebandit/calleopard-backend/internal/repository"
	"github.com/unclebandit/calleopard-backend/internal/retry"
)

// OutcomeApplier settles a finished call attempt: it records the outcome,
// moves the contact to its next status per the retry policy, and handles
// the side effects (usage recording, DNC list appends). Both the executor's
// synchronous path and the provider status webhook run through it.
type OutcomeApplier struct {
	Contacts repository.ContactRepositoryInterface
	Attempts repository.CallAttemptRepositoryInterface
	DNC      repository.DNCRepositoryInterface
	Usage    dispatch.UsageGate
	Retry    *retry.Policy
	Logger   *zap.SugaredLogger
}

// Apply finishes one attempt. contact.CallAttempts must already count the
// attempt being settled.
func (a *OutcomeApplier) Apply(ctx context.Context, campaign *model.Campaign, contact *model.Contact, attempt *model.CallAttempt, outcome model.CallOutcome, durationSeconds int) error {
	now := time.Now()
	retryable := a.Retry.Classify(outcome) == retry.Retryable

	if err := a.Attempts.Finish(ctx, attempt.ID, outcome, now, durationSeconds, retryable); err != nil {
		return errors.Wrap(err, "finish call attempt")
	}

	maxAttempts := campaign.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = retry.DefaultMaxAttempts
	}

	switch {
	case outcome == model.OutcomeDNCRequested:
		// An in-call DNC request short-circuits any remaining retry budget.
		if err := a.DNC.Add(ctx, campaign.OrganizationID, contact.Phone, "in_call_request"); err != nil {
			return errors.Wrap(err, "append to DNC list")
		}
		if err := a.Contacts.UpdateStatus(ctx, contact.ID, model.ContactDNCBlocked); err != nil {
			return errors.Wrap(err, "block contact")
		}
		a.Logger.Infow("contact requested DNC during call",
			"contact_id", contact.ID, "campaign_id", campaign.ID)

	case outcome == model.OutcomeCompleted:
		if err := a.Contacts.UpdateStatus(ctx, contact.ID, model.ContactCompleted); err != nil {
			return errors.Wrap(err, "complete contact")
		}
		if err := a.Usage.RecordCallUsage(ctx, campaign.OrganizationID, durationSeconds, attempt.ProviderCallID); err != nil {
			// the call already happened; billing reconciles missed records
			a.Logger.Errorw("failed to record call usage",
				"call_id", attempt.ProviderCallID, "error", err)
		}

	case retryable && contact.CallAttempts < maxAttempts:
		delay := a.Retry.NextDelay(contact.CallAttempts)
		if err := a.Contacts.Requeue(ctx, contact.ID, now.Add(delay)); err != nil {
			return errors.Wrap(err, "requeue contact")
		}
		a.Logger.Infow("contact requeued with backoff",
			"contact_id", contact.ID, "attempt", contact.CallAttempts, "next_eligible_in", delay)

	default:
		if err := a.Contacts.UpdateStatus(ctx, contact.ID, model.ContactFailed); err != nil {
			return errors.Wrap(err, "fail contact")
		}
	}

	return nil
}
