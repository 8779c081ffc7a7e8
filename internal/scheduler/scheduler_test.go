package scheduler_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unclebandit/calleopard-backend/internal/executor"
	"github.com/unclebandit/calleopard-backend/internal/logger"
	"github.com/unclebandit/calleopard-backend/internal/model"
	"github.com/unclebandit/calleopard-backend/internal/scheduler"
	"github.com/unclebandit/calleopard-backend/internal/statestore"
)

type fakeCampaignRepo struct {
	mu        sync.Mutex
	campaigns map[int]*model.Campaign
	updateErr error
}

func (f *fakeCampaignRepo) Create(_ context.Context, c *model.Campaign) error { return nil }

func (f *fakeCampaignRepo) GetByID(_ context.Context, id int) (*model.Campaign, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.campaigns[id], nil
}

func (f *fakeCampaignRepo) UpdateStatus(_ context.Context, id int, status model.CampaignStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return f.updateErr
	}
	f.campaigns[id].Status = status
	return nil
}

func (f *fakeCampaignRepo) ListDue(_ context.Context, now time.Time) ([]*model.Campaign, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []*model.Campaign{}
	for _, c := range f.campaigns {
		if c.Status == model.CampaignScheduled && c.ScheduledAt != nil && !c.ScheduledAt.After(now) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeCampaignRepo) ListRunning(_ context.Context) ([]*model.Campaign, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []*model.Campaign{}
	for _, c := range f.campaigns {
		if c.Status == model.CampaignRunning {
			out = append(out, c)
		}
	}
	return out, nil
}

// blockingRunner mimics the executor's lock discipline: it releases the
// execution lock when it returns, and can be held open to simulate a batch
// still in flight when the next tick fires.
type blockingRunner struct {
	states  *statestore.Store
	mu      sync.Mutex
	runs    map[int]int
	started chan int
	release chan struct{}
}

func newRunner(states *statestore.Store) *blockingRunner {
	return &blockingRunner{states: states, runs: map[int]int{}}
}

func (r *blockingRunner) Run(_ context.Context, c *model.Campaign) (*executor.BatchResult, error) {
	defer r.states.ReleaseExecution(c.ID)

	r.mu.Lock()
	r.runs[c.ID]++
	r.mu.Unlock()

	if r.started != nil {
		r.started <- c.ID
	}
	if r.release != nil {
		<-r.release
	}
	return &executor.BatchResult{}, nil
}

func (r *blockingRunner) runCount(id int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.runs[id]
}

func newScheduler(repo *fakeCampaignRepo) (*scheduler.Scheduler, *blockingRunner, *statestore.Store) {
	states := statestore.New()
	runner := newRunner(states)
	s := &scheduler.Scheduler{
		Campaigns: repo,
		States:    states,
		Executor:  runner,
		Logger:    logger.Nop(),
	}
	return s, runner, states
}

func TestEmptySweepIsNoOp(t *testing.T) {
	s, runner, _ := newScheduler(&fakeCampaignRepo{campaigns: map[int]*model.Campaign{}})

	require.NoError(t, s.ProcessScheduledCampaigns(context.Background()))
	assert.Empty(t, runner.runs)
}

func TestDueCampaignIsPromotedAndExecuted(t *testing.T) {
	past := time.Now().Add(-time.Minute)
	repo := &fakeCampaignRepo{campaigns: map[int]*model.Campaign{
		1: {ID: 1, Status: model.CampaignScheduled, ScheduledAt: &past},
	}}
	s, runner, states := newScheduler(repo)

	require.NoError(t, s.ProcessScheduledCampaigns(context.Background()))

	c, _ := repo.GetByID(context.Background(), 1)
	assert.Equal(t, model.CampaignRunning, c.Status)
	st, _ := states.GetState(1)
	assert.Equal(t, model.CampaignRunning, st)
	assert.Equal(t, 1, runner.runCount(1))
}

func TestFailedPromotionSkipsExecution(t *testing.T) {
	past := time.Now().Add(-time.Minute)
	repo := &fakeCampaignRepo{
		campaigns: map[int]*model.Campaign{
			1: {ID: 1, Status: model.CampaignScheduled, ScheduledAt: &past},
		},
		updateErr: errors.New("connection refused"),
	}
	s, runner, states := newScheduler(repo)

	require.NoError(t, s.ProcessScheduledCampaigns(context.Background()))

	// the row still says scheduled and no batch ran for this sweep
	assert.Zero(t, runner.runCount(1))
	c, _ := repo.GetByID(context.Background(), 1)
	assert.Equal(t, model.CampaignScheduled, c.Status)
	_, ok := states.GetState(1)
	assert.False(t, ok)
}

func TestFutureCampaignIsNotDue(t *testing.T) {
	future := time.Now().Add(time.Hour)
	repo := &fakeCampaignRepo{campaigns: map[int]*model.Campaign{
		1: {ID: 1, Status: model.CampaignScheduled, ScheduledAt: &future},
	}}
	s, runner, _ := newScheduler(repo)

	require.NoError(t, s.ProcessScheduledCampaigns(context.Background()))
	assert.Zero(t, runner.runCount(1))
}

func TestSecondTickSkipsCampaignMidBatch(t *testing.T) {
	repo := &fakeCampaignRepo{campaigns: map[int]*model.Campaign{
		2: {ID: 2, Status: model.CampaignRunning},
	}}
	s, runner, _ := newScheduler(repo)
	runner.started = make(chan int)
	runner.release = make(chan struct{})

	tick1Done := make(chan error)
	go func() { tick1Done <- s.ProcessScheduledCampaigns(context.Background()) }()

	// tick 1 is mid-batch
	<-runner.started

	// tick 2 fires while the batch is still executing; it must dispatch
	// nothing for this campaign and skip silently
	require.NoError(t, s.ProcessScheduledCampaigns(context.Background()))
	assert.Equal(t, 1, runner.runCount(2))

	close(runner.release)
	require.NoError(t, <-tick1Done)

	// lock released: the next tick executes again
	runner.started = nil
	runner.release = nil
	require.NoError(t, s.ProcessScheduledCampaigns(context.Background()))
	assert.Equal(t, 2, runner.runCount(2))
}

func TestSweepHydratesUnknownRunningCampaign(t *testing.T) {
	// a running row from before a process restart: the in-memory store has
	// never seen it, but the sweep must still execute it
	repo := &fakeCampaignRepo{campaigns: map[int]*model.Campaign{
		3: {ID: 3, Status: model.CampaignRunning},
	}}
	s, runner, states := newScheduler(repo)

	_, ok := states.GetState(3)
	require.False(t, ok)

	require.NoError(t, s.ProcessScheduledCampaigns(context.Background()))
	assert.Equal(t, 1, runner.runCount(3))

	st, ok := states.GetState(3)
	require.True(t, ok)
	assert.Equal(t, model.CampaignRunning, st)
}
