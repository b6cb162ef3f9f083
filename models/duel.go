package models

import (
	"time"
)

type DuelStatus string

const (
	DuelStatusCollecting DuelStatus = "collecting"
	DuelStatusVoting     DuelStatus = "voting"
	DuelStatusFinished   DuelStatus = "finished"
	DuelStatusCancelled  DuelStatus = "cancelled"
)

// Terminal reports whether no further transition is possible.
func (s DuelStatus) Terminal() bool {
	return s == DuelStatusFinished || s == DuelStatusCancelled
}

const DuelKindParagraph = "paragraph"

// Duel is a timed paragraph-writing contest: entries are collected until
// CollectionDeadline, votes until VoteDeadline, then the winner takes Prize.
type Duel struct {
	ID                 string     `json:"id" gorm:"primaryKey;type:uuid"`
	Kind               string     `json:"kind" gorm:"not null;index"`
	Topic              string     `json:"topic" gorm:"not null"`
	InitiatorID        int64      `json:"initiator_id"`
	Status             DuelStatus `json:"status" gorm:"not null;index"`
	Prize              int64      `json:"prize"`
	Stake              int64      `json:"stake"`
	CreatedAt          time.Time  `json:"created_at"`
	CollectionDeadline time.Time  `json:"collection_deadline" gorm:"not null"`
	VoteDeadline       time.Time  `json:"vote_deadline" gorm:"not null"`
	ResolvedAt         *time.Time `json:"resolved_at,omitempty"`
	WinnerID           *int64     `json:"winner_id,omitempty"`

	// Relationships, ordered by Position / CastAt
	Entries []DuelEntry `json:"entries" gorm:"foreignKey:DuelID"`
	Votes   []DuelVote  `json:"votes" gorm:"foreignKey:DuelID"`
}

// DuelEntry is one participant's paragraph. Position is the 1-based index voters use.
type DuelEntry struct {
	DuelID        string    `json:"duel_id" gorm:"primaryKey;type:uuid"`
	Position      int       `json:"position" gorm:"primaryKey;autoIncrement:false"`
	ParticipantID int64     `json:"participant_id" gorm:"not null"`
	Text          string    `json:"text" gorm:"type:text"`
	Staked        int64     `json:"staked"`
	SubmittedAt   time.Time `json:"submitted_at"`
}

// DuelVote is one voter's choice of entry Position.
type DuelVote struct {
	DuelID     string    `json:"duel_id" gorm:"primaryKey;type:uuid"`
	VoterID    int64     `json:"voter_id" gorm:"primaryKey;autoIncrement:false"`
	EntryIndex int       `json:"entry_index" gorm:"not null"`
	CastAt     time.Time `json:"cast_at"`
}

// Clone returns a deep copy so callers never share slices with the engine.
func (d *Duel) Clone() Duel {
	out := *d
	out.Entries = append([]DuelEntry(nil), d.Entries...)
	out.Votes = append([]DuelVote(nil), d.Votes...)
	if d.WinnerID != nil {
		w := *d.WinnerID
		out.WinnerID = &w
	}
	if d.ResolvedAt != nil {
		r := *d.ResolvedAt
		out.ResolvedAt = &r
	}
	return out
}

// EntryOf returns the entry submitted by participantID, if any.
func (d *Duel) EntryOf(participantID int64) (DuelEntry, bool) {
	for _, e := range d.Entries {
		if e.ParticipantID == participantID {
			return e, true
		}
	}
	return DuelEntry{}, false
}
