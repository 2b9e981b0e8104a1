package model

import "time"

// ActionEvent is the analytics record of a completed protected visit.
type ActionEvent struct {
	ID            string    `json:"id" gorm:"primaryKey;size:36"`
	SessionID     string    `json:"session_id" gorm:"size:36;uniqueIndex;not null"`
	LinkID        string    `json:"link_id" gorm:"size:36;index;not null"`
	Action        string    `json:"action" gorm:"size:16;not null"`
	VerdictWasBot bool      `json:"verdict_was_bot" gorm:"not null;default:false"`
	Timestamp     time.Time `json:"timestamp" gorm:"index"`
}

const (
	ActionStreamName     = "SHIELD_ACTIONS"
	ActionStreamSubject  = "shield.actions"
	ActionConsumerName   = "action-recorder"
	ActionStreamMaxBytes = 1024 * 1024 * 100 // 100MB
)
