package models

import "time"

type SubmissionStatus string

const (
	SubmissionStatusPending   SubmissionStatus = "pending"
	SubmissionStatusPublished SubmissionStatus = "published"
)

// Submission is an article link waiting in (or released from) the publication queue.
type Submission struct {
	ID          string           `json:"id" gorm:"primaryKey;type:uuid"`
	OwnerID     int64            `json:"owner_id" gorm:"not null;index"`
	URL         string           `json:"url" gorm:"type:text;not null"`
	Title       string           `json:"title"`
	Description string           `json:"description" gorm:"type:text"`
	Status      SubmissionStatus `json:"status" gorm:"not null;index"`
	SubmittedAt time.Time        `json:"submitted_at" gorm:"not null;index"`
	PublishedAt *time.Time       `json:"published_at,omitempty"`
}

// CooldownState tracks when an owner last submitted and whether the
// "you can submit again" reminder already went out for that cooldown.
type CooldownState struct {
	OwnerID          int64     `json:"owner_id" gorm:"primaryKey;autoIncrement:false"`
	LastSubmissionAt time.Time `json:"last_submission_at" gorm:"not null"`
	Notified         bool      `json:"notified" gorm:"default:false"`
}
