// Package compliance decides whether a contact may legally be called right
// now. The gate itself is a pure decision function over the contact, the
// organization's calling window, and the current time; the only I/O is the
// DNC list lookup.
package compliance

import (
	"context"
	"time"

	"github.com/unclebandit/calleopard-backend/internal/model"
)

// DenyReason explains why a contact was not called.
type DenyReason string

const (
	ReasonDNCBlocked   DenyReason = "dnc_blocked"
	ReasonNoConsent    DenyReason = "no_consent"
	ReasonOutsideHours DenyReason = "outside_hours"
	ReasonWeekendSkip  DenyReason = "weekend_skip"
	ReasonHolidaySkip  DenyReason = "holiday_skip"
)

// Decision is the gate's verdict for one contact at one instant.
type Decision struct {
	Allowed bool
	Reason  DenyReason
}

var allow = Decision{Allowed: true}

func deny(reason DenyReason) Decision {
	return Decision{Reason: reason}
}

// ContactStatus maps a deny reason onto the terminal contact status it
// produces. Only a DNC hit uses the dedicated status; every other denial
// lands on skipped_compliance.
func (d Decision) ContactStatus() model.ContactStatus {
	if d.Reason == ReasonDNCBlocked {
		return model.ContactDNCBlocked
	}
	return model.ContactSkippedCompliance
}

// DNCLookup is the organization do-not-call list membership check.
type DNCLookup interface {
	Contains(ctx context.Context, orgID int, phone string) (bool, error)
}

type Gate struct {
	DNC DNCLookup
}

func NewGate(dnc DNCLookup) *Gate {
	return &Gate{DNC: dnc}
}

// Evaluate runs the checks in fixed order, first failure wins:
// DNC membership, consent, calling hours, weekend, holiday.
//
// Hours, weekend, and holiday are evaluated in the contact's local timezone,
// derived from the phone number's area code. An unrecognized area code
// fail-closes those three checks: legal calling-hour restrictions are never
// evaluated in a timezone we only guessed.
func (g *Gate) Evaluate(ctx context.Context, contact *model.Contact, orgID int, window model.CallingWindow, now time.Time) (Decision, error) {
	onList, err := g.DNC.Contains(ctx, orgID, contact.Phone)
	if err != nil {
		return Decision{}, err
	}
	if onList {
		return deny(ReasonDNCBlocked), nil
	}

	if contact.ConsentStatus != model.ConsentGranted {
		return deny(ReasonNoConsent), nil
	}

	loc, ok := LocationForPhone(contact.Phone)
	if !ok {
		return deny(ReasonOutsideHours), nil
	}
	local := now.In(loc)

	hour := local.Hour()
	if hour < window.StartHour || hour >= window.EndHour {
		return deny(ReasonOutsideHours), nil
	}

	if window.SkipWeekends {
		switch local.Weekday() {
		case time.Saturday, time.Sunday:
			return deny(ReasonWeekendSkip), nil
		}
	}

	if window.SkipHolidays && IsHoliday(local) {
		return deny(ReasonHolidaySkip), nil
	}

	return allow, nil
}
