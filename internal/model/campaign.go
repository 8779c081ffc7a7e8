package model

import "time"

// CampaignStatus is the lifecycle state of a campaign.
type CampaignStatus string

const (
	CampaignDraft     CampaignStatus = "draft"
	CampaignScheduled CampaignStatus = "scheduled"
	CampaignRunning   CampaignStatus = "running"
	CampaignPaused    CampaignStatus = "paused"
	CampaignStopped   CampaignStatus = "stopped"
	CampaignCompleted CampaignStatus = "completed"
)

func (s CampaignStatus) String() string { return string(s) }

func (s CampaignStatus) IsValid() bool {
	switch s {
	case CampaignDraft, CampaignScheduled, CampaignRunning, CampaignPaused, CampaignStopped, CampaignCompleted:
		return true
	}
	return false
}

// IsTerminal reports whether no further automatic transition can occur.
func (s CampaignStatus) IsTerminal() bool {
	return s == CampaignStopped || s == CampaignCompleted
}

// CanTransitionTo validates a requested lifecycle transition.
// stopped is reachable from every non-terminal state.
func (s CampaignStatus) CanTransitionTo(next CampaignStatus) bool {
	if s.IsTerminal() {
		return false
	}
	if next == CampaignStopped {
		return true
	}
	switch s {
	case CampaignDraft:
		return next == CampaignScheduled || next == CampaignRunning
	case CampaignScheduled:
		return next == CampaignRunning
	case CampaignRunning:
		return next == CampaignPaused || next == CampaignCompleted
	case CampaignPaused:
		return next == CampaignRunning
	}
	return false
}

// CallingWindow is the organization's legal calling-hour configuration,
// evaluated in each contact's local timezone. Hours are [StartHour, EndHour).
type CallingWindow struct {
	StartHour    int  `db:"window_start_hour" json:"start_hour"`
	EndHour      int  `db:"window_end_hour" json:"end_hour"`
	SkipWeekends bool `db:"skip_weekends" json:"skip_weekends"`
	SkipHolidays bool `db:"skip_holidays" json:"skip_holidays"`
}

type Campaign struct {
	ID                 int            `db:"id" json:"id"`
	OrganizationID     int            `db:"organization_id" json:"organization_id"`
	Name               string         `db:"name" json:"name"`
	AgentID            string         `db:"agent_id" json:"agent_id"`
	Status             CampaignStatus `db:"status" json:"status"`
	ScheduledAt        *time.Time     `db:"scheduled_at" json:"scheduled_at,omitempty"`
	CallingWindow      CallingWindow  `json:"calling_window"`
	BatchSize          int            `db:"batch_size" json:"batch_size"`
	MaxConcurrentCalls int            `db:"max_concurrent_calls" json:"max_concurrent_calls"`
	MaxAttempts        int            `db:"max_attempts" json:"max_attempts"`
	CreatedAt          time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt          *time.Time     `db:"updated_at" json:"updated_at,omitempty"`
}
