package appErrors

import (
	"fmt"

	"github.com/cockroachdb/errors"

	"github.com/unclebandit/calleopard-backend/internal/model"
)

// ErrCampaignNotFound is a sentinel error
type ErrCampaignNotFound struct {
	CampaignID int
}

func (e *ErrCampaignNotFound) Error() string {
	return fmt.Sprintf("campaign with ID %d not found", e.CampaignID)
}

// Helper constructor
func NewCampaignNotFound(id int) error {
	return &ErrCampaignNotFound{CampaignID: id}
}

func IsCampaignNotFound(err error) bool {
	var target *ErrCampaignNotFound
	return errors.As(err, &target)
}

// ErrInvalidTransition rejects a lifecycle transition the state machine
// does not allow. The campaign is left untouched.
type ErrInvalidTransition struct {
	CampaignID int
	From       model.CampaignStatus
	To         model.CampaignStatus
}

func (e *ErrInvalidTransition) Error() string {
	return fmt.Sprintf("campaign %d cannot transition from %s to %s", e.CampaignID, e.From, e.To)
}

func NewInvalidTransition(id int, from, to model.CampaignStatus) error {
	return &ErrInvalidTransition{CampaignID: id, From: from, To: to}
}

func IsInvalidTransition(err error) bool {
	var target *ErrInvalidTransition
	return errors.As(err, &target)
}

// ErrQuotaExceeded aborts the remainder of a batch when the organization's
// minute limit is exhausted. The campaign stays running and is retried on
// the next scheduler tick.
type ErrQuotaExceeded struct {
	OrganizationID int
	Reason         string
}

func (e *ErrQuotaExceeded) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("organization %d has exhausted its calling minutes", e.OrganizationID)
	}
	return fmt.Sprintf("organization %d quota exceeded: %s", e.OrganizationID, e.Reason)
}

func NewQuotaExceeded(orgID int, reason string) error {
	return &ErrQuotaExceeded{OrganizationID: orgID, Reason: reason}
}

func IsQuotaExceeded(err error) bool {
	var target *ErrQuotaExceeded
	return errors.As(err, &target)
}

// ErrConcurrencyConflict signals that a batch is already executing for the
// campaign. The scheduler skips silently; this is never user-visible.
type ErrConcurrencyConflict struct {
	CampaignID int
}

func (e *ErrConcurrencyConflict) Error() string {
	return fmt.Sprintf("campaign %d is already executing a batch", e.CampaignID)
}

func NewConcurrencyConflict(id int) error {
	return &ErrConcurrencyConflict{CampaignID: id}
}

// ErrValidation rejects malformed input before it reaches the database.
type ErrValidation struct {
	Message string
}

func (e *ErrValidation) Error() string {
	return e.Message
}

func NewValidation(message string) error {
	return &ErrValidation{Message: message}
}

func IsValidation(err error) bool {
	var target *ErrValidation
	return errors.As(err, &target)
}
