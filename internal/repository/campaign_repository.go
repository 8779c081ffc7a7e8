package repository

import (
	"context"
	"database/sql"
	"time"

	appErrors "github.com/unclebandit/calleopard-backend/internal/errors"
	"github.com/unclebandit/calleopard-backend/internal/model"
)

type CampaignRepositoryInterface interface {
	Create(ctx context.Context, c *model.Campaign) error
	GetByID(ctx context.Context, id int) (*model.Campaign, error)
	UpdateStatus(ctx context.Context, campaignID int, status model.CampaignStatus) error

	// Scheduler queries
	ListDue(ctx context.Context, now time.Time) ([]*model.Campaign, error)
	ListRunning(ctx context.Context) ([]*model.Campaign, error)
}

type CampaignRepository struct {
	DB *sql.DB
}

const campaignColumns = `id, organization_id, name, agent_id, status, scheduled_at,
		window_start_hour, window_end_hour, skip_weekends, skip_holidays,
		batch_size, max_concurrent_calls, max_attempts, created_at, updated_at`

func (r *CampaignRepository) Create(ctx context.Context, c *model.Campaign) error {
	c.CreatedAt = time.Now()
	if c.Status == "" {
		c.Status = model.CampaignDraft
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 25
	}
	if c.MaxConcurrentCalls <= 0 {
		c.MaxConcurrentCalls = 5
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	query := `
        INSERT INTO campaigns (organization_id, name, agent_id, status, scheduled_at,
            window_start_hour, window_end_hour, skip_weekends, skip_holidays,
            batch_size, max_concurrent_calls, max_attempts, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
        RETURNING id
    `
	return r.DB.QueryRowContext(ctx, query,
		c.OrganizationID, c.Name, c.AgentID, c.Status, c.ScheduledAt,
		c.CallingWindow.StartHour, c.CallingWindow.EndHour,
		c.CallingWindow.SkipWeekends, c.CallingWindow.SkipHolidays,
		c.BatchSize, c.MaxConcurrentCalls, c.MaxAttempts, c.CreatedAt,
	).Scan(&c.ID)
}

func (r *CampaignRepository) GetByID(ctx context.Context, id int) (*model.Campaign, error) {
	query := `SELECT ` + campaignColumns + ` FROM campaigns WHERE id=$1`

	c, err := scanCampaign(r.DB.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.NewCampaignNotFound(id)
		}
		return nil, err
	}
	return c, nil
}

func (r *CampaignRepository) UpdateStatus(ctx context.Context, campaignID int, status model.CampaignStatus) error {
	query := `UPDATE campaigns SET status=$1, updated_at=$2 WHERE id=$3`
	_, err := r.DB.ExecContext(ctx, query, status, time.Now(), campaignID)
	return err
}

// ListDue returns scheduled campaigns whose start time has arrived.
func (r *CampaignRepository) ListDue(ctx context.Context, now time.Time) ([]*model.Campaign, error) {
	query := `SELECT ` + campaignColumns + `
        FROM campaigns
        WHERE status=$1 AND scheduled_at IS NOT NULL AND scheduled_at <= $2
        ORDER BY scheduled_at ASC`
	return r.listCampaigns(ctx, query, model.CampaignScheduled, now)
}

func (r *CampaignRepository) ListRunning(ctx context.Context) ([]*model.Campaign, error) {
	query := `SELECT ` + campaignColumns + `
        FROM campaigns
        WHERE status=$1
        ORDER BY id ASC`
	return r.listCampaigns(ctx, query, model.CampaignRunning)
}

func (r *CampaignRepository) listCampaigns(ctx context.Context, query string, args ...interface{}) ([]*model.Campaign, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	campaigns := []*model.Campaign{}
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, err
		}
		campaigns = append(campaigns, c)
	}
	return campaigns, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanCampaign(row rowScanner) (*model.Campaign, error) {
	var c model.Campaign
	err := row.Scan(
		&c.ID, &c.OrganizationID, &c.Name, &c.AgentID, &c.Status, &c.ScheduledAt,
		&c.CallingWindow.StartHour, &c.CallingWindow.EndHour,
		&c.CallingWindow.SkipWeekends, &c.CallingWindow.SkipHolidays,
		&c.BatchSize, &c.MaxConcurrentCalls, &c.MaxAttempts, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

var _ CampaignRepositoryInterface = (*CampaignRepository)(nil)
