package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/unclebandit/calleopard-backend/internal/db"
	"github.com/unclebandit/calleopard-backend/internal/dispatch"
	"github.com/unclebandit/calleopard-backend/internal/executor"
	"github.com/unclebandit/calleopard-backend/internal/logger"
	"github.com/unclebandit/calleopard-backend/internal/queue"
	"github.com/unclebandit/calleopard-backend/internal/repository"
	"github.com/unclebandit/calleopard-backend/internal/scheduler"
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

	sched := &scheduler.Scheduler{
		Campaigns: campaignRepo,
		States:    states,
		Executor:  exec,
		Logger:    log,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	interval := 60 * time.Second
	if v, err := strconv.Atoi(os.Getenv("TICK_INTERVAL_SECONDS")); err == nil && v > 0 {
		interval = time.Duration(v) * time.Second
	}

	amqpURL := os.Getenv("AMQP_URL")
	if amqpURL == "" {
		// no broker configured, tick locally
		log.Infow("scheduler ticking locally", "interval", interval)
		runLocalTicker(ctx, sched, interval, log)
		return
	}

	ticks, err := queue.Dial(amqpURL, log)
	if err != nil {
		log.Fatalw("failed to connect to tick queue", "error", err)
	}
	defer ticks.Close()

	// periodic producer; external processes may also enqueue ticks
	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				if err := ticks.PublishTick(queue.TickMessage{
					RequestedBy: "scheduler-timer",
					RequestedAt: time.Now(),
				}); err != nil {
					log.Errorw("failed to publish tick", "error", err)
				}
			}
		}
	}()

	log.Infow("scheduler consuming ticks", "interval", interval)
	err = ticks.ConsumeTicks(ctx, func(ctx context.Context, msg queue.TickMessage) error {
		return sched.ProcessScheduledCampaigns(ctx)
	})
	if err != nil && ctx.Err() == nil {
		log.Fatalw("tick consumer stopped", "error", err)
	}
}

func runLocalTicker(ctx context.Context, sched *scheduler.Scheduler, interval time.Duration, log *zap.SugaredLogger) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := sched.ProcessScheduledCampaigns(ctx); err != nil {
				log.Errorw("sweep failed", "error", err)
			}
		}
	}
}
