package controller

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	appErrors "github.com/unclebandit/calleopard-backend/internal/errors"
	"github.com/unclebandit/calleopard-backend/internal/executor"
	"github.com/unclebandit/calleopard-backend/internal/model"
	"github.com/unclebandit/calleopard-backend/internal/queue"
	"github.com/unclebandit/calleopard-backend/internal/repository"
	"github.com/unclebandit/calleopard-backend/internal/service"
)

// TickRunner is satisfied by the scheduler; the controller exposes it on a
// manual endpoint so operators can force a sweep without waiting for the
// periodic tick.
type TickRunner interface {
	ProcessScheduledCampaigns(ctx context.Context) error
}

// TickPublisher hands the sweep request to the scheduler binary over the
// tick queue. Exactly one of TickQueue and Scheduler drives TriggerTick:
// with a broker configured, batch execution lives in the consumer process
// and running a sweep here would race it for a second execution lock.
type TickPublisher interface {
	PublishTick(msg queue.TickMessage) error
}

type CampaignController struct {
	CampaignService service.CampaignServiceInterface
	Scheduler       TickRunner
	TickQueue       TickPublisher
	Outcomes        *executor.OutcomeApplier
	Campaigns       repository.CampaignRepositoryInterface
	Contacts        repository.ContactRepositoryInterface
	Attempts        repository.CallAttemptRepositoryInterface
	Logger          *zap.SugaredLogger
}

func (c *CampaignController) CreateCampaign(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name               string              `json:"name"`
		OrganizationID     int                 `json:"organization_id"`
		AgentID            string              `json:"agent_id"`
		BatchSize          int                 `json:"batch_size"`
		MaxConcurrentCalls int                 `json:"max_concurrent_calls"`
		MaxAttempts        int                 `json:"max_attempts"`
		CallingWindow      model.CallingWindow `json:"calling_window"`
		ScheduledAt        *time.Time          `json:"scheduled_at"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	campaign := &model.Campaign{
		Name:               body.Name,
		OrganizationID:     body.OrganizationID,
		AgentID:            body.AgentID,
		BatchSize:          body.BatchSize,
		MaxConcurrentCalls: body.MaxConcurrentCalls,
		MaxAttempts:        body.MaxAttempts,
		CallingWindow:      body.CallingWindow,
		ScheduledAt:        body.ScheduledAt,
	}
	if err := c.CampaignService.CreateCampaign(r.Context(), campaign); err != nil {
		c.writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(campaign)
}

func (c *CampaignController) GetCampaign(w http.ResponseWriter, r *http.Request) {
	id, ok := c.campaignID(w, r)
	if !ok {
		return
	}
	details, err := c.CampaignService.GetCampaignDetailsWithStats(r.Context(), id)
	if err != nil {
		c.writeError(w, err)
		return
	}
	json.NewEncoder(w).Encode(details)
}

func (c *CampaignController) GetCampaignState(w http.ResponseWriter, r *http.Request) {
	id, ok := c.campaignID(w, r)
	if !ok {
		return
	}
	state, err := c.CampaignService.GetCampaignState(r.Context(), id)
	if err != nil {
		c.writeError(w, err)
		return
	}
	json.NewEncoder(w).Encode(map[string]any{"campaign_id": id, "state": state})
}

func (c *CampaignController) StartCampaign(w http.ResponseWriter, r *http.Request) {
	id, ok := c.campaignID(w, r)
	if !ok {
		return
	}
	status, err := c.CampaignService.StartCampaign(r.Context(), id)
	if err != nil {
		c.writeError(w, err)
		return
	}
	json.NewEncoder(w).Encode(map[string]any{"campaign_id": id, "status": status})
}

func (c *CampaignController) PauseCampaign(w http.ResponseWriter, r *http.Request) {
	c.controlAction(w, r, model.CampaignPaused, c.CampaignService.PauseCampaign)
}

func (c *CampaignController) ResumeCampaign(w http.ResponseWriter, r *http.Request) {
	c.controlAction(w, r, model.CampaignRunning, c.CampaignService.ResumeCampaign)
}

func (c *CampaignController) StopCampaign(w http.ResponseWriter, r *http.Request) {
	c.controlAction(w, r, model.CampaignStopped, c.CampaignService.StopCampaign)
}

func (c *CampaignController) controlAction(w http.ResponseWriter, r *http.Request, target model.CampaignStatus, fn func(context.Context, int) error) {
	id, ok := c.campaignID(w, r)
	if !ok {
		return
	}
	if err := fn(r.Context(), id); err != nil {
		c.writeError(w, err)
		return
	}
	json.NewEncoder(w).Encode(map[string]any{"campaign_id": id, "status": target})
}

func (c *CampaignController) ImportContacts(w http.ResponseWriter, r *http.Request) {
	id, ok := c.campaignID(w, r)
	if !ok {
		return
	}
	var body struct {
		Contacts []service.ContactInput `json:"contacts"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	result, err := c.CampaignService.ImportContacts(r.Context(), id, body.Contacts)
	if err != nil {
		c.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(result)
}

// TriggerTick requests one scheduler sweep: enqueued for the consumer when
// the tick queue is wired, run synchronously otherwise.
func (c *CampaignController) TriggerTick(w http.ResponseWriter, r *http.Request) {
	if c.TickQueue != nil {
		err := c.TickQueue.PublishTick(queue.TickMessage{
			RequestedBy: "api",
			RequestedAt: time.Now(),
		})
		if err != nil {
			c.writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(map[string]any{"status": "queued"})
		return
	}

	if err := c.Scheduler.ProcessScheduledCampaigns(r.Context()); err != nil {
		c.writeError(w, err)
		return
	}
	json.NewEncoder(w).Encode(map[string]any{"status": "ok"})
}

// CallOutcomeWebhook settles call attempts the provider finished
// asynchronously. Replayed deliveries for an already-settled attempt are
// acknowledged without reapplying.
func (c *CampaignController) CallOutcomeWebhook(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ProviderCallID  string `json:"provider_call_id"`
		Outcome         string `json:"outcome"`
		DurationSeconds int    `json:"duration_seconds"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	outcome := model.CallOutcome(body.Outcome)
	if body.ProviderCallID == "" || !outcome.IsValid() || outcome == model.OutcomePending {
		http.Error(w, "provider_call_id and a settled outcome are required", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	attempt, err := c.Attempts.GetByProviderCallID(ctx, body.ProviderCallID)
	if err != nil {
		c.writeError(w, err)
		return
	}
	if attempt == nil {
		http.Error(w, "unknown provider_call_id", http.StatusNotFound)
		return
	}
	if attempt.Outcome != model.OutcomePending {
		json.NewEncoder(w).Encode(map[string]any{"status": "already_settled"})
		return
	}

	contact, err := c.Contacts.GetByID(ctx, attempt.ContactID)
	if err != nil {
		c.writeError(w, err)
		return
	}
	if contact == nil {
		http.Error(w, "contact no longer exists", http.StatusNotFound)
		return
	}
	campaign, err := c.Campaigns.GetByID(ctx, attempt.CampaignID)
	if err != nil {
		c.writeError(w, err)
		return
	}

	if err := c.Outcomes.Apply(ctx, campaign, contact, attempt, outcome, body.DurationSeconds); err != nil {
		c.writeError(w, err)
		return
	}
	json.NewEncoder(w).Encode(map[string]any{"status": "settled", "outcome": outcome})
}

func (c *CampaignController) campaignID(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || id <= 0 {
		http.Error(w, "invalid campaign id", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

func (c *CampaignController) writeError(w http.ResponseWriter, err error) {
	switch {
	case appErrors.IsCampaignNotFound(err):
		http.Error(w, err.Error(), http.StatusNotFound)
	case appErrors.IsInvalidTransition(err):
		http.Error(w, err.Error(), http.StatusConflict)
	case appErrors.IsValidation(err):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case appErrors.IsQuotaExceeded(err):
		http.Error(w, err.Error(), http.StatusPaymentRequired)
	default:
		c.Logger.Errorw("request failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}
