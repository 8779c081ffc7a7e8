package main

import (
	"net/http"
	"os"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/unclebandit/calleopard-backend/internal/controller"
	"github.com/unclebandit/calleopard-backend/internal/db"
	"github.com/unclebandit/calleopard-backend/internal/dispatch"
	"github.com/unclebandit/calleopard-backend/internal/executor"
	"github.com/unclebandit/calleopard-backend/internal/logger"
	"github.com/unclebandit/calleopard-backend/internal/queue"
	"github.com/unclebandit/calleopard-backend/internal/repository"
	"github.com/unclebandit/calleopard-backend/internal/scheduler"
	"github.com/unclebandit/calleopard-backend/internal/service"
	"github.com/unclebandit/calleopard-backend/internal/statestore"
)

func main() {
	// absent .env means OS environment only
	_ = godotenv.Load()
	log := logger.New()
	defer log.Sync()

	db.Init(log)

	campaignRepo := &repository.CampaignRepository{DB: db.DB}
	contactRepo := &repository.ContactRepository{DB: db.DB}
	attemptRepo := &repository.CallAttemptRepository{DB: db.DB}
	dncRepo := &repository.DNCRepository{DB: db.DB}

	states := statestore.New()

	callsPerSecond := 5.0
	if v, err := strconv.ParseFloat(os.Getenv("TELEPHONY_CALLS_PER_SECOND"), 64); err == nil && v > 0 {
		callsPerSecond = v
	}
	telephony := dispatch.NewTelephonyClient(
		os.Getenv("TELEPHONY_BASE_URL"), os.Getenv("TELEPHONY_API_KEY"), callsPerSecond, log)
	billing := dispatch.NewBillingClient(
		os.Getenv("BILLING_BASE_URL"), os.Getenv("BILLING_API_KEY"))

	exec := executor.New(campaignRepo, contactRepo, attemptRepo, dncRepo, billing, telephony, states, log)

	campaignService := &service.CampaignService{
		CampaignRepo: campaignRepo,
		ContactRepo:  contactRepo,
		States:       states,
		Logger:       log,
	}

	campaignController := &controller.CampaignController{
		CampaignService: campaignService,
		Outcomes:        exec.Outcomes,
		Campaigns:       campaignRepo,
		Contacts:        contactRepo,
		Attempts:        attemptRepo,
		Logger:          log,
	}

	// with a broker configured, batch execution lives in the scheduler
	// binary; the tick endpoint only enqueues. Without one, this process
	// is the single executor and sweeps run inline.
	if amqpURL := os.Getenv("AMQP_URL"); amqpURL != "" {
		ticks, err := queue.Dial(amqpURL, log)
		if err != nil {
			log.Fatalw("failed to connect to tick queue", "error", err)
		}
		defer ticks.Close()
		campaignController.TickQueue = ticks
	} else {
		campaignController.Scheduler = &scheduler.Scheduler{
			Campaigns: campaignRepo,
			States:    states,
			Executor:  exec,
			Logger:    log,
		}
	}

	r := chi.NewRouter()

	r.Post("/campaigns", campaignController.CreateCampaign)
	r.Get("/campaigns/{id}", campaignController.GetCampaign)
	r.Get("/campaigns/{id}/state", campaignController.GetCampaignState)
	r.Post("/campaigns/{id}/start", campaignController.StartCampaign)
	r.Post("/campaigns/{id}/pause", campaignController.PauseCampaign)
	r.Post("/campaigns/{id}/resume", campaignController.ResumeCampaign)
	r.Post("/campaigns/{id}/stop", campaignController.StopCampaign)
	r.Post("/campaigns/{id}/contacts", campaignController.ImportContacts)

	r.Post("/scheduler/tick", campaignController.TriggerTick)
	r.Post("/webhooks/call-outcome", campaignController.CallOutcomeWebhook)

	r.Handle("/metrics", promhttp.Handler())

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	log.Infow("server listening", "port", port)
	if err := http.ListenAndServe(":"+port, r); err != nil {
		log.Fatalw("server stopped", "error", err)
	}
}
