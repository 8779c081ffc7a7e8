package model

import "time"

// ContactStatus tracks a contact through the execution DAG:
// pending -> queued -> dispatched -> {completed, failed};
// pending -> dnc_blocked / skipped_compliance (no call ever placed);
// failed loops back to queued only while retry budget remains.
type ContactStatus string

const (
	ContactPending           ContactStatus = "pending"
	ContactQueued            ContactStatus = "queued"
	ContactDispatched        ContactStatus = "dispatched"
	ContactCompleted         ContactStatus = "completed"
	ContactFailed            ContactStatus = "failed"
	ContactDNCBlocked        ContactStatus = "dnc_blocked"
	ContactSkippedCompliance ContactStatus = "skipped_compliance"
)

func (s ContactStatus) String() string { return string(s) }

func (s ContactStatus) IsTerminal() bool {
	switch s {
	case ContactCompleted, ContactFailed, ContactDNCBlocked, ContactSkippedCompliance:
		return true
	}
	return false
}

// ConsentStatus is the contact's recorded consent for outbound marketing calls.
type ConsentStatus string

const (
	ConsentGranted ConsentStatus = "granted"
	ConsentRevoked ConsentStatus = "revoked"
	ConsentUnknown ConsentStatus = "unknown"
)

type Contact struct {
	ID             int           `db:"id" json:"id"`
	CampaignID     int           `db:"campaign_id" json:"campaign_id"`
	Phone          string        `db:"phone" json:"phone"`
	FirstName      string        `db:"first_name" json:"first_name"`
	LastName       string        `db:"last_name" json:"last_name"`
	ConsentStatus  ConsentStatus `db:"consent_status" json:"consent_status"`
	Status         ContactStatus `db:"status" json:"status"`
	CallAttempts   int           `db:"call_attempts" json:"call_attempts"`
	NextEligibleAt *time.Time    `db:"next_eligible_at" json:"next_eligible_at,omitempty"`
	CreatedAt      time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time     `db:"updated_at" json:"updated_at"`
}
