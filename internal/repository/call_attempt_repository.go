package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/unclebandit/calleopard-backend/internal/model"
)

type CallAttemptRepositoryInterface interface {
	GetByProviderCallID(ctx context.Context, providerCallID string) (*model.CallAttempt, error)
	AssignProvider(ctx context.Context, attemptID int, providerCallID string) error
	Finish(ctx context.Context, attemptID int, outcome model.CallOutcome, endedAt time.Time, durationSeconds int, retryable bool) error
	CountForContact(ctx context.Context, contactID int) (int, error)
}

type CallAttemptRepository struct {
	DB *sql.DB
}

const attemptColumns = `id, contact_id, campaign_id, provider_call_id, outcome,
		started_at, ended_at, duration_seconds, retryable`

func (r *CallAttemptRepository) GetByProviderCallID(ctx context.Context, providerCallID string) (*model.CallAttempt, error) {
	query := `SELECT ` + attemptColumns + ` FROM call_attempts WHERE provider_call_id=$1`

	var a model.CallAttempt
	err := r.DB.QueryRowContext(ctx, query, providerCallID).Scan(
		&a.ID, &a.ContactID, &a.CampaignID, &a.ProviderCallID, &a.Outcome,
		&a.StartedAt, &a.EndedAt, &a.DurationSeconds, &a.Retryable,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &a, nil
}

// AssignProvider stores the provider's call id once placement succeeds, so
// the status webhook can find its way back to the attempt.
func (r *CallAttemptRepository) AssignProvider(ctx context.Context, attemptID int, providerCallID string) error {
	_, err := r.DB.ExecContext(ctx,
		`UPDATE call_attempts SET provider_call_id=$1 WHERE id=$2`,
		providerCallID, attemptID,
	)
	return err
}

// Finish settles an attempt with its terminal outcome. The row itself is
// append-only from the contact's point of view; only the outcome fields
// written here ever change.
func (r *CallAttemptRepository) Finish(ctx context.Context, attemptID int, outcome model.CallOutcome, endedAt time.Time, durationSeconds int, retryable bool) error {
	query := `
        UPDATE call_attempts
        SET outcome=$1, ended_at=$2, duration_seconds=$3, retryable=$4
        WHERE id=$5`
	_, err := r.DB.ExecContext(ctx, query, outcome, endedAt, durationSeconds, retryable, attemptID)
	return err
}

func (r *CallAttemptRepository) CountForContact(ctx context.Context, contactID int) (int, error) {
	var count int
	err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM call_attempts WHERE contact_id=$1`, contactID).Scan(&count)
	return count, err
}

var _ CallAttemptRepositoryInterface = (*CallAttemptRepository)(nil)
