package services

import (
	"fmt"
	"log"
	"math"
	"sort"
	"sync"
	"time"

	"reading-club-system/models"

	"github.com/google/uuid"
)

// Ledger is the authoritative store of quote balances. Every mutation under
// its lock is atomic: no reader ever observes a negative or half-applied balance.
type Ledger struct {
	mu       sync.Mutex
	now      Clock
	accounts map[int64]*models.Account
	entries  []models.LedgerEntry
}

func NewLedger(now Clock) *Ledger {
	if now == nil {
		now = time.Now
	}
	return &Ledger{
		now:      now,
		accounts: make(map[int64]*models.Account),
	}
}

// Credit adds amount to the account, creating it on first use, and returns
// the new balance. A credit that would overflow is refused with no change.
func (l *Ledger) Credit(accountID, amount int64, reason string) (int64, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("credit %d to %d: %w", amount, accountID, ErrInvalidAmount)
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if acc, ok := l.accounts[accountID]; ok && acc.Balance > math.MaxInt64-amount {
		return acc.Balance, fmt.Errorf("credit %d to %d: %w", amount, accountID, ErrBalanceOverflow)
	}
	acc := l.accountLocked(accountID)
	acc.Balance += amount
	acc.UpdatedAt = l.now()
	l.recordLocked(acc, amount, reason)
	return acc.Balance, nil
}

// Debit removes amount if the balance covers it. Insufficient funds is a
// normal outcome: false, nil and nothing changes.
func (l *Ledger) Debit(accountID, amount int64, reason string) (bool, error) {
	if amount <= 0 {
		return false, fmt.Errorf("debit %d from %d: %w", amount, accountID, ErrInvalidAmount)
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	acc, ok := l.accounts[accountID]
	if !ok || acc.Balance < amount {
		return false, nil
	}
	acc.Balance -= amount
	acc.UpdatedAt = l.now()
	l.recordLocked(acc, -amount, reason)
	return true, nil
}

// Balance returns 0 for unknown accounts without creating them.
func (l *Ledger) Balance(accountID int64) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	if acc, ok := l.accounts[accountID]; ok {
		return acc.Balance
	}
	return 0
}

// Entries returns the audit trail for one account, oldest first.
func (l *Ledger) Entries(accountID int64) []models.LedgerEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []models.LedgerEntry
	for _, e := range l.entries {
		if e.AccountID == accountID {
			out = append(out, e)
		}
	}
	return out
}

// Archive soft-archives an account. Archived accounts keep their balance and history.
func (l *Ledger) Archive(accountID int64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	acc, ok := l.accounts[accountID]
	if !ok {
		return false
	}
	acc.Archived = true
	acc.UpdatedAt = l.now()
	return true
}

func (l *Ledger) accountLocked(accountID int64) *models.Account {
	acc, ok := l.accounts[accountID]
	if !ok {
		now := l.now()
		acc = &models.Account{ID: accountID, CreatedAt: now, UpdatedAt: now}
		l.accounts[accountID] = acc
	}
	return acc
}

func (l *Ledger) recordLocked(acc *models.Account, delta int64, reason string) {
	l.entries = append(l.entries, models.LedgerEntry{
		ID:           uuid.NewString(),
		AccountID:    acc.ID,
		Amount:       delta,
		BalanceAfter: acc.Balance,
		Reason:       reason,
		CreatedAt:    acc.UpdatedAt,
	})
	log.Printf("[Ledger] account=%d delta=%+d balance=%d reason=%q", acc.ID, delta, acc.Balance, reason)
}

func (l *Ledger) exportLocked(s *models.Snapshot) {
	s.Accounts = make([]models.Account, 0, len(l.accounts))
	for _, acc := range l.accounts {
		s.Accounts = append(s.Accounts, *acc)
	}
	sort.Slice(s.Accounts, func(i, j int) bool { return s.Accounts[i].ID < s.Accounts[j].ID })
	s.LedgerEntries = append([]models.LedgerEntry(nil), l.entries...)
}

func (l *Ledger) importLocked(s *models.Snapshot) {
	l.accounts = make(map[int64]*models.Account, len(s.Accounts))
	for i := range s.Accounts {
		acc := s.Accounts[i]
		l.accounts[acc.ID] = &acc
	}
	l.entries = append([]models.LedgerEntry(nil), s.LedgerEntries...)
}
