// Package scheduler sweeps due and running campaigns on each external
// trigger and hands every one to the batch executor at most once per tick.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	appErrors "github.com/unclebandit/calleopard-backend/internal/errors"
	"github.com/unclebandit/calleopard-backend/internal/executor"
	"github.com/unclebandit/calleopard-backend/internal/metrics"
	"github.com/unclebandit/calleopard-backend/internal/model"
	"github.com/unclebandit/calleopard-backend/internal/repository"
	"github.com/unclebandit/calleopard-backend/internal/statestore"
)

// BatchRunner is what the scheduler needs from the executor.
type BatchRunner interface {
	Run(ctx context.Context, campaign *model.Campaign) (*executor.BatchResult, error)
}

type Scheduler struct {
	Campaigns repository.CampaignRepositoryInterface
	States    *statestore.Store
	Executor  BatchRunner
	Logger    *zap.SugaredLogger

	// Now is the tick clock; tests pin it. Nil means time.Now.
	Now func() time.Time
}

// ProcessScheduledCampaigns is one sweep, invoked by an external periodic
// trigger. Due scheduled campaigns are promoted to running; every running
// campaign then races for its execution lock. Losing the race means a batch
// is already in flight somewhere, so the campaign is skipped silently --
// that skip is what keeps two close-together ticks from double-executing.
// An empty sweep is a no-op, not an error.
func (s *Scheduler) ProcessScheduledCampaigns(ctx context.Context) error {
	now := s.now()

	due, err := s.Campaigns.ListDue(ctx, now)
	if err != nil {
		return errors.Wrap(err, "list due campaigns")
	}
	sweep := make([]*model.Campaign, 0, len(due))
	for _, c := range due {
		if err := s.promote(ctx, c); err != nil {
			// the row still says scheduled; the next tick retries the
			// promotion, so this sweep must not execute the campaign
			s.Logger.Errorw("failed to promote scheduled campaign",
				"campaign_id", c.ID, "error", err)
			continue
		}
		sweep = append(sweep, c)
	}

	running, err := s.Campaigns.ListRunning(ctx)
	if err != nil {
		return errors.Wrap(err, "list running campaigns")
	}

	// campaigns run independently of each other; only execution within a
	// single campaign is serialized
	var wg sync.WaitGroup
	seen := map[int]bool{}
	for _, c := range append(sweep, running...) {
		if seen[c.ID] {
			continue
		}
		seen[c.ID] = true

		// a running row this process has never observed (restart) is
		// re-seeded before the lock race
		s.States.Hydrate(c.ID, model.CampaignRunning)

		if !s.States.TryAcquireExecution(c.ID) {
			metrics.SchedulerSkips.Inc()
			s.Logger.Debugw("skipping tick",
				"campaign_id", c.ID, "error", appErrors.NewConcurrencyConflict(c.ID))
			continue
		}

		wg.Add(1)
		go func(c *model.Campaign) {
			defer wg.Done()
			res, err := s.Executor.Run(ctx, c)
			switch {
			case err != nil && appErrors.IsQuotaExceeded(err):
				// stays running; retried next tick until quota returns or
				// someone stops the campaign
				s.Logger.Warnw("batch aborted on quota",
					"campaign_id", c.ID, "dispatched", res.Dispatched, "error", err)
			case err != nil:
				s.Logger.Errorw("batch failed", "campaign_id", c.ID, "error", err)
			default:
				s.Logger.Infow("batch finished",
					"campaign_id", c.ID,
					"dispatched", res.Dispatched,
					"skipped", res.Skipped,
					"completed", res.Completed)
			}
		}(c)
	}
	wg.Wait()
	return nil
}

// promote moves a due scheduled campaign to running in both the database
// and the state store.
func (s *Scheduler) promote(ctx context.Context, c *model.Campaign) error {
	if err := s.Campaigns.UpdateStatus(ctx, c.ID, model.CampaignRunning); err != nil {
		return err
	}
	c.Status = model.CampaignRunning
	s.States.Hydrate(c.ID, model.CampaignScheduled)
	if err := s.States.SetState(c.ID, model.CampaignRunning); err != nil {
		return err
	}
	s.Logger.Infow("scheduled campaign promoted to running", "campaign_id", c.ID)
	return nil
}

func (s *Scheduler) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}
