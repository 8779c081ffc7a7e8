package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/unclebandit/calleopard-backend/internal/errors"
	"github.com/unclebandit/calleopard-backend/internal/logger"
	"github.com/unclebandit/calleopard-backend/internal/model"
	"github.com/unclebandit/calleopard-backend/internal/service"
	"github.com/unclebandit/calleopard-backend/internal/statestore"
)

var serviceClock = time.Date(2026, time.March, 4, 15, 0, 0, 0, time.UTC)

type fakeCampaignRepo struct {
	mu     sync.Mutex
	nextID int
	rows   map[int]*model.Campaign
}

func newCampaignRepo(rows ...*model.Campaign) *fakeCampaignRepo {
	f := &fakeCampaignRepo{nextID: 1, rows: map[int]*model.Campaign{}}
	for _, c := range rows {
		f.rows[c.ID] = c
		if c.ID >= f.nextID {
			f.nextID = c.ID + 1
		}
	}
	return f
}

func (f *fakeCampaignRepo) Create(_ context.Context, c *model.Campaign) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c.ID = f.nextID
	f.nextID++
	c.CreatedAt = serviceClock
	f.rows[c.ID] = c
	return nil
}

func (f *fakeCampaignRepo) GetByID(_ context.Context, id int) (*model.Campaign, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.rows[id]
	if !ok {
		return nil, appErrors.NewCampaignNotFound(id)
	}
	return c, nil
}

func (f *fakeCampaignRepo) UpdateStatus(_ context.Context, id int, status model.CampaignStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows[id].Status = status
	return nil
}

func (f *fakeCampaignRepo) ListDue(_ context.Context, _ time.Time) ([]*model.Campaign, error) {
	return nil, nil
}

func (f *fakeCampaignRepo) ListRunning(_ context.Context) ([]*model.Campaign, error) {
	return nil, nil
}

type fakeContactRepo struct {
	mu      sync.Mutex
	created []*model.Contact
	counts  map[string]int
}

func (f *fakeContactRepo) BulkCreate(_ context.Context, contacts []*model.Contact) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, contacts...)
	return nil
}

func (f *fakeContactRepo) GetByID(_ context.Context, _ int) (*model.Contact, error) {
	return nil, nil
}

func (f *fakeContactRepo) ListEligible(_ context.Context, _, _ int, _ time.Time) ([]*model.Contact, error) {
	return nil, nil
}

func (f *fakeContactRepo) CountNonTerminal(_ context.Context, _ int) (int, error) { return 0, nil }

func (f *fakeContactRepo) StatusCounts(_ context.Context, _ int) (map[string]int, error) {
	return f.counts, nil
}

func (f *fakeContactRepo) UpdateStatus(_ context.Context, _ int, _ model.ContactStatus) error {
	return nil
}

func (f *fakeContactRepo) Requeue(_ context.Context, _ int, _ time.Time) error { return nil }

func (f *fakeContactRepo) RecordDispatch(_ context.Context, _ *model.Contact, _ *model.CallAttempt) error {
	return nil
}

func newService(repo *fakeCampaignRepo, contacts *fakeContactRepo) (*service.CampaignService, *statestore.Store) {
	states := statestore.New()
	return &service.CampaignService{
		CampaignRepo: repo,
		ContactRepo:  contacts,
		States:       states,
		Logger:       logger.Nop(),
		Now:          func() time.Time { return serviceClock },
	}, states
}

func validCampaign() *model.Campaign {
	return &model.Campaign{
		Name:          "spring outreach",
		AgentID:       "agent-1",
		CallingWindow: model.CallingWindow{StartHour: 9, EndHour: 17},
	}
}

func TestCreateCampaignStartsAsDraft(t *testing.T) {
	repo := newCampaignRepo()
	svc, states := newService(repo, &fakeContactRepo{})

	c := validCampaign()
	require.NoError(t, svc.CreateCampaign(context.Background(), c))

	assert.Equal(t, model.CampaignDraft, c.Status)
	st, ok := states.GetState(c.ID)
	require.True(t, ok)
	assert.Equal(t, model.CampaignDraft, st)
}

func TestCreateCampaignValidation(t *testing.T) {
	svc, _ := newService(newCampaignRepo(), &fakeContactRepo{})
	ctx := context.Background()

	noName := validCampaign()
	noName.Name = "   "
	assert.True(t, appErrors.IsValidation(svc.CreateCampaign(ctx, noName)))

	noAgent := validCampaign()
	noAgent.AgentID = ""
	assert.True(t, appErrors.IsValidation(svc.CreateCampaign(ctx, noAgent)))

	badWindow := validCampaign()
	badWindow.CallingWindow = model.CallingWindow{StartHour: 17, EndHour: 9}
	assert.True(t, appErrors.IsValidation(svc.CreateCampaign(ctx, badWindow)))

	past := serviceClock.Add(-time.Hour)
	stale := validCampaign()
	stale.ScheduledAt = &past
	assert.True(t, appErrors.IsValidation(svc.CreateCampaign(ctx, stale)))
}

func TestStartCampaignImmediate(t *testing.T) {
	repo := newCampaignRepo(&model.Campaign{ID: 1, Status: model.CampaignDraft})
	svc, states := newService(repo, &fakeContactRepo{})

	status, err := svc.StartCampaign(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, model.CampaignRunning, status)

	st, _ := states.GetState(1)
	assert.Equal(t, model.CampaignRunning, st)
	assert.Equal(t, model.CampaignRunning, repo.rows[1].Status)
}

func TestStartCampaignWithFutureScheduleParks(t *testing.T) {
	future := serviceClock.Add(2 * time.Hour)
	repo := newCampaignRepo(&model.Campaign{ID: 1, Status: model.CampaignDraft, ScheduledAt: &future})
	svc, _ := newService(repo, &fakeContactRepo{})

	status, err := svc.StartCampaign(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, model.CampaignScheduled, status)
}

func TestStartStoppedCampaignRejected(t *testing.T) {
	repo := newCampaignRepo(&model.Campaign{ID: 1, Status: model.CampaignStopped})
	svc, _ := newService(repo, &fakeContactRepo{})

	_, err := svc.StartCampaign(context.Background(), 1)
	assert.True(t, appErrors.IsInvalidTransition(err))
}

func TestPauseAndResume(t *testing.T) {
	repo := newCampaignRepo(&model.Campaign{ID: 1, Status: model.CampaignRunning})
	svc, states := newService(repo, &fakeContactRepo{})
	ctx := context.Background()

	require.NoError(t, svc.PauseCampaign(ctx, 1))
	st, _ := states.GetState(1)
	assert.Equal(t, model.CampaignPaused, st)

	require.NoError(t, svc.ResumeCampaign(ctx, 1))
	st, _ = states.GetState(1)
	assert.Equal(t, model.CampaignRunning, st)
}

func TestRacingResumesAllSucceed(t *testing.T) {
	repo := newCampaignRepo(&model.Campaign{ID: 1, Status: model.CampaignPaused})
	svc, states := newService(repo, &fakeContactRepo{})

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- svc.ResumeCampaign(context.Background(), 1)
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	st, _ := states.GetState(1)
	assert.Equal(t, model.CampaignRunning, st)
}

func TestStopFromPaused(t *testing.T) {
	repo := newCampaignRepo(&model.Campaign{ID: 1, Status: model.CampaignPaused})
	svc, states := newService(repo, &fakeContactRepo{})

	require.NoError(t, svc.StopCampaign(context.Background(), 1))
	st, _ := states.GetState(1)
	assert.Equal(t, model.CampaignStopped, st)
}

func TestGetCampaignStateHydratesFromRepo(t *testing.T) {
	repo := newCampaignRepo(&model.Campaign{ID: 7, Status: model.CampaignPaused})
	svc, states := newService(repo, &fakeContactRepo{})

	_, ok := states.GetState(7)
	require.False(t, ok)

	status, err := svc.GetCampaignState(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, model.CampaignPaused, status)

	st, ok := states.GetState(7)
	require.True(t, ok)
	assert.Equal(t, model.CampaignPaused, st)
}

func TestGetCampaignStateUnknownCampaign(t *testing.T) {
	svc, _ := newService(newCampaignRepo(), &fakeContactRepo{})

	_, err := svc.GetCampaignState(context.Background(), 99)
	assert.True(t, appErrors.IsCampaignNotFound(err))
}

func TestImportContactsNormalizesAndRejects(t *testing.T) {
	repo := newCampaignRepo(&model.Campaign{ID: 1, Status: model.CampaignDraft})
	contacts := &fakeContactRepo{}
	svc, _ := newService(repo, contacts)

	result, err := svc.ImportContacts(context.Background(), 1, []service.ContactInput{
		{Phone: "(415) 555-0101", FirstName: "Ada", ConsentStatus: "granted"},
		{Phone: "14155550102", ConsentStatus: "nonsense"},
		{Phone: "555-0103"},
	})
	require.NoError(t, err)

	assert.Equal(t, 2, result.Imported)
	assert.Equal(t, []string{"555-0103"}, result.Rejected)

	require.Len(t, contacts.created, 2)
	assert.Equal(t, "+14155550101", contacts.created[0].Phone)
	assert.Equal(t, model.ConsentGranted, contacts.created[0].ConsentStatus)
	assert.Equal(t, "+14155550102", contacts.created[1].Phone)
	assert.Equal(t, model.ConsentUnknown, contacts.created[1].ConsentStatus)
	assert.Equal(t, model.ContactPending, contacts.created[0].Status)
}

func TestImportContactsIntoFinishedCampaign(t *testing.T) {
	repo := newCampaignRepo(&model.Campaign{ID: 1, Status: model.CampaignCompleted})
	svc, _ := newService(repo, &fakeContactRepo{})

	_, err := svc.ImportContacts(context.Background(), 1, []service.ContactInput{{Phone: "4155550101"}})
	assert.True(t, appErrors.IsValidation(err))
}

func TestGetCampaignDetailsWithStats(t *testing.T) {
	repo := newCampaignRepo(&model.Campaign{
		ID: 1, Name: "spring outreach", AgentID: "agent-1",
		Status: model.CampaignRunning, BatchSize: 25,
	})
	contacts := &fakeContactRepo{counts: map[string]int{"completed": 3, "pending": 7}}
	svc, states := newService(repo, contacts)
	states.Hydrate(1, model.CampaignPaused)

	details, err := svc.GetCampaignDetailsWithStats(context.Background(), 1)
	require.NoError(t, err)

	assert.Equal(t, "spring outreach", details.Name)
	// live in-memory state wins over the persisted row
	assert.Equal(t, model.CampaignPaused, details.Status)
	assert.Equal(t, 3, details.Stats["completed"])
	assert.Equal(t, 7, details.Stats["pending"])
	assert.Nil(t, details.LastTickAt)
}

func TestDetailsReportLastTick(t *testing.T) {
	repo := newCampaignRepo(&model.Campaign{ID: 1, Name: "x", Status: model.CampaignRunning})
	svc, states := newService(repo, &fakeContactRepo{counts: map[string]int{}})

	states.Hydrate(1, model.CampaignRunning)
	require.True(t, states.TryAcquireExecution(1))
	states.ReleaseExecution(1)

	details, err := svc.GetCampaignDetailsWithStats(context.Background(), 1)
	require.NoError(t, err)
	require.NotNil(t, details.LastTickAt)
	assert.WithinDuration(t, time.Now(), *details.LastTickAt, time.Minute)
}

func TestNormalizePhone(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"4155550101", "+14155550101", true},
		{"(415) 555-0101", "+14155550101", true},
		{"14155550101", "+14155550101", true},
		{"+1 415 555 0101", "+14155550101", true},
		{"555-0101", "", false},
		{"24155550101", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		got, ok := service.NormalizePhone(tc.in)
		assert.Equal(t, tc.ok, ok, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
	}
}
