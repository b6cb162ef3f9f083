package models

import "time"

const SnapshotVersion = 1

// Snapshot is the full durable state of the club: everything needed to rebuild
// the ledger, the submission registry, the duel engine and the job markers.
type Snapshot struct {
	Version        int             `json:"version"`
	TakenAt        time.Time       `json:"taken_at"`
	Members        []Member        `json:"members"`
	Accounts       []Account       `json:"accounts"`
	LedgerEntries  []LedgerEntry   `json:"ledger_entries"`
	Submissions    []Submission    `json:"submissions"`
	Cooldowns      []CooldownState `json:"cooldowns"`
	PublishedToday int             `json:"published_today"`
	Duels          []Duel          `json:"duels"`
	JobMarkers     []JobMarker     `json:"job_markers"`
}
