package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/unclebandit/calleopard-backend/internal/model"
)

type ContactRepositoryInterface interface {
	BulkCreate(ctx context.Context, contacts []*model.Contact) error
	GetByID(ctx context.Context, id int) (*model.Contact, error)

	// ListEligible returns up to limit contacts in pending or queued whose
	// backoff (next_eligible_at) has elapsed, oldest first.
	ListEligible(ctx context.Context, campaignID, limit int, now time.Time) ([]*model.Contact, error)
	CountNonTerminal(ctx context.Context, campaignID int) (int, error)
	StatusCounts(ctx context.Context, campaignID int) (map[string]int, error)

	UpdateStatus(ctx context.Context, contactID int, status model.ContactStatus) error
	Requeue(ctx context.Context, contactID int, nextEligibleAt time.Time) error

	// RecordDispatch atomically marks the contact dispatched, bumps its
	// attempt counter, and appends the call attempt row.
	RecordDispatch(ctx context.Context, contact *model.Contact, attempt *model.CallAttempt) error
}

type ContactRepository struct {
	DB *sql.DB
}

const contactColumns = `id, campaign_id, phone, first_name, last_name, consent_status,
		status, call_attempts, next_eligible_at, created_at, updated_at`

func (r *ContactRepository) BulkCreate(ctx context.Context, contacts []*model.Contact) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := `
        INSERT INTO contacts (campaign_id, phone, first_name, last_name, consent_status, status, call_attempts, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, 0, $7, $7)
        RETURNING id
    `
	now := time.Now()
	for _, c := range contacts {
		if c.Status == "" {
			c.Status = model.ContactPending
		}
		if c.ConsentStatus == "" {
			c.ConsentStatus = model.ConsentUnknown
		}
		c.CreatedAt = now
		c.UpdatedAt = now
		if err := tx.QueryRowContext(ctx, query,
			c.CampaignID, c.Phone, c.FirstName, c.LastName, c.ConsentStatus, c.Status, now,
		).Scan(&c.ID); err != nil {
			return errors.Wrapf(err, "insert contact %s", c.Phone)
		}
	}
	return tx.Commit()
}

func (r *ContactRepository) GetByID(ctx context.Context, id int) (*model.Contact, error) {
	query := `SELECT ` + contactColumns + ` FROM contacts WHERE id=$1`
	c, err := scanContact(r.DB.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return c, nil
}

func (r *ContactRepository) ListEligible(ctx context.Context, campaignID, limit int, now time.Time) ([]*model.Contact, error) {
	query := `SELECT ` + contactColumns + `
        FROM contacts
        WHERE campaign_id=$1
          AND status IN ('pending', 'queued')
          AND (next_eligible_at IS NULL OR next_eligible_at <= $2)
        ORDER BY created_at ASC, id ASC
        LIMIT $3`

	rows, err := r.DB.QueryContext(ctx, query, campaignID, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	contacts := []*model.Contact{}
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, err
		}
		contacts = append(contacts, c)
	}
	return contacts, rows.Err()
}

func (r *ContactRepository) CountNonTerminal(ctx context.Context, campaignID int) (int, error) {
	query := `
        SELECT COUNT(*) FROM contacts
        WHERE campaign_id=$1 AND status IN ('pending', 'queued', 'dispatched')`
	var count int
	err := r.DB.QueryRowContext(ctx, query, campaignID).Scan(&count)
	return count, err
}

func (r *ContactRepository) StatusCounts(ctx context.Context, campaignID int) (map[string]int, error) {
	query := `SELECT status, COUNT(*) FROM contacts WHERE campaign_id=$1 GROUP BY status`
	rows, err := r.DB.QueryContext(ctx, query, campaignID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := map[string]int{}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts[status] = count
	}
	return counts, rows.Err()
}

func (r *ContactRepository) UpdateStatus(ctx context.Context, contactID int, status model.ContactStatus) error {
	query := `UPDATE contacts SET status=$1, updated_at=$2 WHERE id=$3`
	_, err := r.DB.ExecContext(ctx, query, status, time.Now(), contactID)
	return err
}

// Requeue puts a failed-but-retryable contact back in line with its backoff.
func (r *ContactRepository) Requeue(ctx context.Context, contactID int, nextEligibleAt time.Time) error {
	query := `UPDATE contacts SET status=$1, next_eligible_at=$2, updated_at=$3 WHERE id=$4`
	_, err := r.DB.ExecContext(ctx, query, model.ContactQueued, nextEligibleAt, time.Now(), contactID)
	return err
}

func (r *ContactRepository) RecordDispatch(ctx context.Context, contact *model.Contact, attempt *model.CallAttempt) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := time.Now()
	_, err = tx.ExecContext(ctx,
		`UPDATE contacts SET status=$1, call_attempts=call_attempts+1, updated_at=$2 WHERE id=$3`,
		model.ContactDispatched, now, contact.ID,
	)
	if err != nil {
		return errors.Wrap(err, "mark contact dispatched")
	}

	err = tx.QueryRowContext(ctx,
		`INSERT INTO call_attempts (contact_id, campaign_id, provider_call_id, outcome, started_at, duration_seconds, retryable)
         VALUES ($1, $2, $3, $4, $5, $6, $7)
         RETURNING id`,
		attempt.ContactID, attempt.CampaignID, attempt.ProviderCallID,
		attempt.Outcome, attempt.StartedAt, attempt.DurationSeconds, attempt.Retryable,
	).Scan(&attempt.ID)
	if err != nil {
		return errors.Wrap(err, "append call attempt")
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	contact.Status = model.ContactDispatched
	contact.CallAttempts++
	return nil
}

func scanContact(row rowScanner) (*model.Contact, error) {
	var c model.Contact
	err := row.Scan(
		&c.ID, &c.CampaignID, &c.Phone, &c.FirstName, &c.LastName, &c.ConsentStatus,
		&c.Status, &c.CallAttempts, &c.NextEligibleAt, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

var _ ContactRepositoryInterface = (*ContactRepository)(nil)
