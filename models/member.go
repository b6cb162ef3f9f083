package models

import (
	"time"
)

type MemberStatus string

const (
	MemberStatusActive   MemberStatus = "active"
	MemberStatusArchived MemberStatus = "archived"
)

// Member is a registered club participant. Members are never deleted, only archived.
type Member struct {
	ID            int64        `json:"id" gorm:"primaryKey;autoIncrement:false"`
	Username      string       `json:"username" gorm:"index"`
	FirstName     string       `json:"first_name"`
	LastName      string       `json:"last_name"`
	Status        MemberStatus `json:"status" gorm:"not null;default:'active'"`
	ArticlesCount int          `json:"articles_count" gorm:"default:0"`
	GamesPlayed   int          `json:"games_played" gorm:"default:0"`
	DuelsWon      int          `json:"duels_won" gorm:"default:0"`
	RegisteredAt  time.Time    `json:"registered_at"`
	LastActiveAt  time.Time    `json:"last_active_at"`
}

// DisplayName prefers @username, then the first name.
func (m Member) DisplayName() string {
	if m.Username != "" {
		return "@" + m.Username
	}
	if m.FirstName != "" {
		return m.FirstName
	}
	return "member"
}
