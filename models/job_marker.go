package models

// JobMarker records the last calendar day (YYYY-MM-DD) a keyed job ran.
type JobMarker struct {
	Key         string `json:"key" gorm:"primaryKey"`
	LastRunDate string `json:"last_run_date" gorm:"not null"`
}

const (
	JobDailyPublish = "daily_publish"
	JobDailyReset   = "daily_reset"
)
