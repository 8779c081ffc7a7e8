package repository

import (
	"context"
	"database/sql"
	"time"
)

// DNCRepositoryInterface is the organization do-not-call list. Contains
// satisfies the compliance gate's lookup; Add handles in-call DNC requests.
type DNCRepositoryInterface interface {
	Contains(ctx context.Context, orgID int, phone string) (bool, error)
	Add(ctx context.Context, orgID int, phone, source string) error
}

type DNCRepository struct {
	DB *sql.DB
}

func (r *DNCRepository) Contains(ctx context.Context, orgID int, phone string) (bool, error) {
	var count int
	err := r.DB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM dnc_entries WHERE organization_id=$1 AND phone=$2`,
		orgID, phone,
	).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *DNCRepository) Add(ctx context.Context, orgID int, phone, source string) error {
	query := `
        INSERT INTO dnc_entries (organization_id, phone, source, created_at)
        VALUES ($1, $2, $3, $4)
        ON CONFLICT (organization_id, phone) DO NOTHING`
	_, err := r.DB.ExecContext(ctx, query, orgID, phone, source, time.Now())
	return err
}

var _ DNCRepositoryInterface = (*DNCRepository)(nil)
