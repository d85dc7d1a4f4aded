package models

import "time"

// Settings holds the approval-window policy the scheduler works from.
type Settings struct {
	ID                        string     `json:"id"`
	PreApprovalExpiryHours    int        `json:"pre_approval_expiry_hours"`
	ApprovalExpiryHours       int        `json:"approval_expiry_hours"`
	ApprovalReminderInterval  int        `json:"approval_reminder_interval"` // minutes between reminders
	ApprovalReminderFrequency int        `json:"approval_reminder_frequency"`
	CreatedAt                 time.Time  `json:"created_at"`
	ModifiedAt                *time.Time `json:"modified_at"`
}

// DefaultSettings applies when no settings record has been configured yet.
func DefaultSettings() Settings {
	return Settings{
		PreApprovalExpiryHours:    48,
		ApprovalExpiryHours:       24,
		ApprovalReminderInterval:  60,
		ApprovalReminderFrequency: 3,
	}
}
