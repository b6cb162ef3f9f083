package models

import "time"

// Account holds a member's quote balance. Balance never goes negative.
type Account struct {
	ID        int64     `json:"id" gorm:"primaryKey;autoIncrement:false"`
	Balance   int64     `json:"balance" gorm:"not null;default:0"`
	Archived  bool      `json:"archived" gorm:"default:false"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// LedgerEntry is one audited balance mutation. Amount is signed: credits are
// positive, debits negative.
type LedgerEntry struct {
	ID           string    `json:"id" gorm:"primaryKey;type:uuid"`
	AccountID    int64     `json:"account_id" gorm:"not null;index"`
	Amount       int64     `json:"amount" gorm:"not null"`
	BalanceAfter int64     `json:"balance_after" gorm:"not null"`
	Reason       string    `json:"reason" gorm:"not null"`
	CreatedAt    time.Time `json:"created_at" gorm:"index"`
}

// Ledger reasons
const (
	ReasonStartBonus  = "start bonus"
	ReasonDailyReward = "daily reward"
	ReasonSubmission  = "article submission"
	ReasonDuelWin     = "duel win"
	ReasonDuelStake   = "duel stake"
	ReasonDuelRefund  = "duel refund"
)
