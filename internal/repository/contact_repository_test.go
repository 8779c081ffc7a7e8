package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unclebandit/calleopard-backend/internal/model"
	"github.com/unclebandit/calleopard-backend/internal/repository"
)

func contactRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "campaign_id", "phone", "first_name", "last_name", "consent_status",
		"status", "call_attempts", "next_eligible_at", "created_at", "updated_at",
	})
}

func TestListEligibleFiltersOnBackoff(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	now := time.Now()
	mock.ExpectQuery(`SELECT .* FROM contacts\s+WHERE campaign_id=\$1\s+AND status IN \('pending', 'queued'\)\s+AND \(next_eligible_at IS NULL OR next_eligible_at <= \$2\)`).
		WithArgs(7, now, 25).
		WillReturnRows(contactRows().
			AddRow(1, 7, "+12125551234", "Alice", "Smith", "granted", "pending", 0, nil, now.Add(-time.Hour), now).
			AddRow(2, 7, "+13125551234", "Bob", "Jones", "granted", "queued", 1, now.Add(-time.Minute), now.Add(-time.Hour), now))

	repo := &repository.ContactRepository{DB: db}
	contacts, err := repo.ListEligible(context.Background(), 7, 25, now)
	require.NoError(t, err)

	require.Len(t, contacts, 2)
	assert.Equal(t, model.ContactPending, contacts[0].Status)
	assert.Equal(t, 1, contacts[1].CallAttempts)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordDispatchIsTransactional(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE contacts SET status=\$1, call_attempts=call_attempts\+1`).
		WithArgs(model.ContactDispatched, sqlmock.AnyArg(), 3).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`INSERT INTO call_attempts`).
		WithArgs(3, 7, "call_abc", model.OutcomePending, sqlmock.AnyArg(), 0, false).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(11))
	mock.ExpectCommit()

	repo := &repository.ContactRepository{DB: db}
	contact := &model.Contact{ID: 3, CampaignID: 7, Status: model.ContactPending, CallAttempts: 1}
	attempt := &model.CallAttempt{
		ContactID:      3,
		CampaignID:     7,
		ProviderCallID: "call_abc",
		Outcome:        model.OutcomePending,
		StartedAt:      time.Now(),
	}

	require.NoError(t, repo.RecordDispatch(context.Background(), contact, attempt))

	assert.Equal(t, 11, attempt.ID)
	assert.Equal(t, model.ContactDispatched, contact.Status)
	assert.Equal(t, 2, contact.CallAttempts)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordDispatchRollsBackOnInsertFailure(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE contacts SET status=\$1`).
		WithArgs(model.ContactDispatched, sqlmock.AnyArg(), 3).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`INSERT INTO call_attempts`).
		WillReturnError(assert.AnError)
	mock.ExpectRollback()

	repo := &repository.ContactRepository{DB: db}
	contact := &model.Contact{ID: 3, CampaignID: 7, Status: model.ContactPending}
	attempt := &model.CallAttempt{ContactID: 3, CampaignID: 7, Outcome: model.OutcomePending, StartedAt: time.Now()}

	err = repo.RecordDispatch(context.Background(), contact, attempt)
	require.Error(t, err)

	// contact state must be untouched when the tx fails
	assert.Equal(t, model.ContactPending, contact.Status)
	assert.Equal(t, 0, contact.CallAttempts)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCountNonTerminal(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM contacts\s+WHERE campaign_id=\$1 AND status IN \('pending', 'queued', 'dispatched'\)`).
		WithArgs(7).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	repo := &repository.ContactRepository{DB: db}
	n, err := repo.CountNonTerminal(context.Background(), 7)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}
