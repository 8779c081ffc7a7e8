// Package executor runs one batch of a campaign: it selects eligible
// contacts, gates each one on compliance and usage, dispatches the calls
// through a bounded worker pool, and applies the retry policy to outcomes.
package executor

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/unclebandit/calleopard-backend/internal/compliance"
	"github.com/unclebandit/calleopard-backend/internal/dispatch"
	appErrors "github.com/unclebandit/calleopard-backend/internal/errors"
	"github.com/unclebandit/calleopard-backend/internal/metrics"
	"github.com/unclebandit/calleopard-backend/internal/model"
	"github.com/unclebandit/calleopard-backend/internal/repository"
	"github.com/unclebandit/calleopard-backend/internal/retry"
	"github.com/unclebandit/calleopard-backend/internal/statestore"
)

// BatchResult summarizes one executor pass.
type BatchResult struct {
	Dispatched int
	Skipped    int
	Completed  bool
	Errors     error
}

type Executor struct {
	Campaigns  repository.CampaignRepositoryInterface
	Contacts   repository.ContactRepositoryInterface
	Gate       *compliance.Gate
	Usage      dispatch.UsageGate
	Dispatcher dispatch.CallDispatcher
	Outcomes   *OutcomeApplier
	States     *statestore.Store
	Logger     *zap.SugaredLogger

	// Now is the batch clock; tests pin it. Nil means time.Now.
	Now func() time.Time
}

func New(
	campaigns repository.CampaignRepositoryInterface,
	contacts repository.ContactRepositoryInterface,
	attempts repository.CallAttemptRepositoryInterface,
	dnc repository.DNCRepositoryInterface,
	usage dispatch.UsageGate,
	dispatcher dispatch.CallDispatcher,
	states *statestore.Store,
	log *zap.SugaredLogger,
) *Executor {
	return &Executor{
		Campaigns:  campaigns,
		Contacts:   contacts,
		Gate:       compliance.NewGate(dnc),
		Usage:      usage,
		Dispatcher: dispatcher,
		Outcomes: &OutcomeApplier{
			Contacts: contacts,
			Attempts: attempts,
			DNC:      dnc,
			Usage:    usage,
			Retry:    retry.NewPolicy(),
			Logger:   log,
		},
		States: states,
		Logger: log,
	}
}

// Run executes one batch for a campaign whose execution lock the caller
// already holds. The lock is released on every return path.
//
// Contacts are walked in creation order. The compliance and usage gates run
// in the submitting loop so a quota exhaustion stops before any further
// contact; only the provider call itself fans out, bounded by the
// campaign's MaxConcurrentCalls. Pause/stop is honored cooperatively
// between contacts, never mid-call.
func (e *Executor) Run(ctx context.Context, campaign *model.Campaign) (*BatchResult, error) {
	defer e.States.ReleaseExecution(campaign.ID)
	metrics.BatchesExecuted.Inc()

	res := &BatchResult{}

	contacts, err := e.Contacts.ListEligible(ctx, campaign.ID, e.batchSize(campaign), e.now())
	if err != nil {
		return res, errors.Wrap(err, "load eligible contacts")
	}

	if len(contacts) == 0 {
		remaining, err := e.Contacts.CountNonTerminal(ctx, campaign.ID)
		if err != nil {
			return res, errors.Wrap(err, "count non-terminal contacts")
		}
		if remaining == 0 {
			if err := e.completeCampaign(ctx, campaign); err != nil {
				return res, err
			}
			res.Completed = true
		}
		return res, nil
	}

	var (
		mu   sync.Mutex
		errs *multierror.Error
		g    errgroup.Group
	)
	g.SetLimit(e.concurrency(campaign))

	var abortErr error
	for _, contact := range contacts {
		if ctx.Err() != nil {
			break
		}
		if st, ok := e.States.GetState(campaign.ID); !ok || st != model.CampaignRunning {
			e.Logger.Infow("campaign no longer running, stopping batch",
				"campaign_id", campaign.ID)
			break
		}

		decision, err := e.Gate.Evaluate(ctx, contact, campaign.OrganizationID, campaign.CallingWindow, e.now())
		if err != nil {
			// DNC lookup failure is a persistence error: fatal for the batch
			abortErr = errors.Wrap(err, "compliance lookup")
			break
		}
		if !decision.Allowed {
			if err := e.Contacts.UpdateStatus(ctx, contact.ID, decision.ContactStatus()); err != nil {
				abortErr = errors.Wrap(err, "record compliance skip")
				break
			}
			metrics.ComplianceDenials.WithLabelValues(string(decision.Reason)).Inc()
			e.Logger.Infow("contact skipped by compliance gate",
				"contact_id", contact.ID, "campaign_id", campaign.ID, "reason", decision.Reason)
			res.Skipped++
			continue
		}

		usage, err := e.Usage.CheckMinutesLimit(ctx, campaign.OrganizationID)
		if err != nil {
			// fail closed: no verified quota, no call
			abortErr = errors.Wrap(err, "usage gate")
			break
		}
		if !usage.Allowed {
			metrics.QuotaAborts.Inc()
			e.Logger.Warnw("minute limit exhausted, aborting remainder of batch",
				"campaign_id", campaign.ID, "organization_id", campaign.OrganizationID, "reason", usage.Reason)
			abortErr = appErrors.NewQuotaExceeded(campaign.OrganizationID, usage.Reason)
			break
		}

		contact := contact
		g.Go(func() error {
			dispatched, err := e.dispatchContact(ctx, campaign, contact)
			mu.Lock()
			if dispatched {
				res.Dispatched++
			}
			if err != nil {
				errs = multierror.Append(errs, err)
			}
			mu.Unlock()
			return nil
		})
	}

	// in-flight calls finish; nothing new is submitted after an abort
	_ = g.Wait()

	res.Errors = errs.ErrorOrNil()
	if abortErr != nil {
		return res, abortErr
	}
	return res, nil
}

// dispatchContact places one call and settles its outcome. A dispatcher
// failure becomes a retryable outcome for this contact; it never aborts
// the rest of the batch. Returns false when the campaign stopped being
// runnable before this contact was dispatched.
func (e *Executor) dispatchContact(ctx context.Context, campaign *model.Campaign, contact *model.Contact) (bool, error) {
	// a pause/stop that landed while this contact waited for a pool slot
	if st, ok := e.States.GetState(campaign.ID); !ok || st != model.CampaignRunning {
		return false, nil
	}

	attempt := &model.CallAttempt{
		ContactID:  contact.ID,
		CampaignID: campaign.ID,
		Outcome:    model.OutcomePending,
		StartedAt:  e.now(),
	}
	if err := e.Contacts.RecordDispatch(ctx, contact, attempt); err != nil {
		return false, errors.Wrapf(err, "record dispatch for contact %d", contact.ID)
	}
	metrics.CallsDispatched.Inc()

	metadata := map[string]string{
		"campaign_id": strconv.Itoa(campaign.ID),
		"contact_id":  strconv.Itoa(contact.ID),
		"attempt_id":  strconv.Itoa(attempt.ID),
	}
	result, err := e.Dispatcher.CreateCall(ctx, campaign.AgentID, contact.Phone, metadata)
	if err != nil {
		e.Logger.Warnw("dispatcher error, classifying as retryable",
			"contact_id", contact.ID, "campaign_id", campaign.ID, "error", err)
		return true, e.Outcomes.Apply(ctx, campaign, contact, attempt, model.OutcomeNetworkError, 0)
	}

	if result.ProviderCallID != "" {
		if err := e.Outcomes.Attempts.AssignProvider(ctx, attempt.ID, result.ProviderCallID); err != nil {
			return true, errors.Wrap(err, "assign provider call id")
		}
		attempt.ProviderCallID = result.ProviderCallID
	}

	if result.Outcome == model.OutcomePending {
		// provider completes asynchronously; the status webhook settles it
		return true, nil
	}
	return true, e.Outcomes.Apply(ctx, campaign, contact, attempt, result.Outcome, result.DurationSeconds)
}

func (e *Executor) completeCampaign(ctx context.Context, campaign *model.Campaign) error {
	if err := e.Campaigns.UpdateStatus(ctx, campaign.ID, model.CampaignCompleted); err != nil {
		return errors.Wrap(err, "mark campaign completed")
	}
	if err := e.States.SetState(campaign.ID, model.CampaignCompleted); err != nil {
		return err
	}
	metrics.CampaignsCompleted.Inc()
	e.Logger.Infow("campaign completed", "campaign_id", campaign.ID)
	return nil
}

func (e *Executor) batchSize(c *model.Campaign) int {
	if c.BatchSize > 0 {
		return c.BatchSize
	}
	return 25
}

func (e *Executor) concurrency(c *model.Campaign) int {
	if c.MaxConcurrentCalls > 0 {
		return c.MaxConcurrentCalls
	}
	return 1
}

func (e *Executor) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}
