package services

import (
	"fmt"
	"log"
	"math"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"reading-club-system/models"

	"github.com/google/uuid"
)

type EntryResult string

const (
	EntryAccepted          EntryResult = "accepted"
	EntryDuplicate         EntryResult = "duplicate"
	EntryWrongPhase        EntryResult = "wrong_phase"
	EntryUnknownDuel       EntryResult = "unknown_duel"
	EntryEmpty             EntryResult = "empty"
	EntryTooLong           EntryResult = "too_long"
	EntryInsufficientFunds EntryResult = "insufficient_funds"
	EntryPrizePoolFull     EntryResult = "prize_pool_full"
)

type VoteResult string

const (
	VoteAccepted    VoteResult = "accepted"
	VoteDuplicate   VoteResult = "duplicate"
	VoteWrongPhase  VoteResult = "wrong_phase"
	VoteUnknownDuel VoteResult = "unknown_duel"
	VoteOutOfRange  VoteResult = "out_of_range"
)

// MaxPrize bounds a duel's base prize and its entry stake.
const MaxPrize int64 = 1_000_000

type DuelConfig struct {
	Prize          int64
	Stake          int64
	CollectFor     time.Duration
	VoteFor        time.Duration
	MaxEntryLength int
}

// DuelOptions overrides the configured defaults for one duel. Zero values
// fall back to DuelConfig.
type DuelOptions struct {
	Topic       string
	InitiatorID int64
	Prize       int64
	CollectFor  time.Duration
	VoteFor     time.Duration
}

// DuelTransition describes one phase change made by Sweep.
type DuelTransition struct {
	Duel models.Duel
	From models.DuelStatus
	To   models.DuelStatus
}

// Engine runs paragraph duels: collecting -> voting -> finished, or
// collecting -> cancelled when fewer than two entries arrive. Phases only
// move forward and only Sweep moves them.
type Engine struct {
	mu     sync.Mutex
	cfg    DuelConfig
	ledger *Ledger
	now    Clock

	duels []*models.Duel // creation order
	byID  map[string]*models.Duel
}

func NewEngine(cfg DuelConfig, ledger *Ledger, now Clock) *Engine {
	if cfg.CollectFor <= 0 {
		cfg.CollectFor = time.Hour
	}
	if cfg.VoteFor <= 0 {
		cfg.VoteFor = 30 * time.Minute
	}
	if cfg.MaxEntryLength <= 0 {
		cfg.MaxEntryLength = 1500
	}
	if now == nil {
		now = time.Now
	}
	return &Engine{
		cfg:    cfg,
		ledger: ledger,
		now:    now,
		byID:   make(map[string]*models.Duel),
	}
}

// Start opens a new duel in the collecting phase. Only one paragraph duel may
// be open at a time.
func (e *Engine) Start(opts DuelOptions) (models.Duel, error) {
	topic := strings.TrimSpace(opts.Topic)
	if topic == "" {
		return models.Duel{}, fmt.Errorf("duel topic is required")
	}
	if opts.Prize > MaxPrize {
		return models.Duel{}, fmt.Errorf("duel prize %d exceeds %d", opts.Prize, MaxPrize)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if active := e.activeLocked(); active != nil {
		return active.Clone(), ErrDuelActive
	}

	prize := opts.Prize
	if prize <= 0 {
		prize = e.cfg.Prize
	}
	collectFor := opts.CollectFor
	if collectFor <= 0 {
		collectFor = e.cfg.CollectFor
	}
	voteFor := opts.VoteFor
	if voteFor <= 0 {
		voteFor = e.cfg.VoteFor
	}

	now := e.now()
	d := &models.Duel{
		ID:                 uuid.NewString(),
		Kind:               models.DuelKindParagraph,
		Topic:              topic,
		InitiatorID:        opts.InitiatorID,
		Status:             models.DuelStatusCollecting,
		Prize:              prize,
		Stake:              e.cfg.Stake,
		CreatedAt:          now,
		CollectionDeadline: now.Add(collectFor),
		VoteDeadline:       now.Add(collectFor + voteFor),
	}
	e.duels = append(e.duels, d)
	e.byID[d.ID] = d
	log.Printf("[Duel] started %s topic=%q prize=%d collect until %s", d.ID, d.Topic, d.Prize, d.CollectionDeadline.Format(time.RFC3339))
	return d.Clone(), nil
}

// SubmitEntry records a participant's paragraph. A second entry from the same
// participant is a no-op reported as EntryDuplicate.
func (e *Engine) SubmitEntry(duelID string, participantID int64, text string) EntryResult {
	text = strings.TrimSpace(text)
	if text == "" {
		return EntryEmpty
	}
	if utf8.RuneCountInString(text) > e.cfg.MaxEntryLength {
		return EntryTooLong
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	d, ok := e.byID[duelID]
	if !ok {
		return EntryUnknownDuel
	}
	if d.Status != models.DuelStatusCollecting || !e.now().Before(d.CollectionDeadline) {
		return EntryWrongPhase
	}
	if _, dup := d.EntryOf(participantID); dup {
		return EntryDuplicate
	}

	var staked int64
	if d.Stake > 0 {
		if d.Prize > math.MaxInt64-d.Stake {
			return EntryPrizePoolFull
		}
		ok, err := e.ledger.Debit(participantID, d.Stake, models.ReasonDuelStake)
		if err != nil || !ok {
			return EntryInsufficientFunds
		}
		staked = d.Stake
		d.Prize += staked
	}

	d.Entries = append(d.Entries, models.DuelEntry{
		DuelID:        d.ID,
		Position:      len(d.Entries) + 1,
		ParticipantID: participantID,
		Text:          text,
		Staked:        staked,
		SubmittedAt:   e.now(),
	})
	return EntryAccepted
}

// CastVote records a vote for the entry at 1-based index. A second vote from
// the same voter is a no-op reported as VoteDuplicate.
func (e *Engine) CastVote(duelID string, voterID int64, index int) VoteResult {
	e.mu.Lock()
	defer e.mu.Unlock()

	d, ok := e.byID[duelID]
	if !ok {
		return VoteUnknownDuel
	}
	if d.Status != models.DuelStatusVoting || !e.now().Before(d.VoteDeadline) {
		return VoteWrongPhase
	}
	if index < 1 || index > len(d.Entries) {
		return VoteOutOfRange
	}
	for _, v := range d.Votes {
		if v.VoterID == voterID {
			return VoteDuplicate
		}
	}
	d.Votes = append(d.Votes, models.DuelVote{
		DuelID:     d.ID,
		VoterID:    voterID,
		EntryIndex: index,
		CastAt:     e.now(),
	})
	return VoteAccepted
}

// Sweep advances every duel whose deadline has passed. A duel whose both
// deadlines passed (e.g. after downtime) moves through voting to its result
// in the same sweep. Payouts and refunds happen under the engine lock, so a
// snapshot sees the new status and the ledger change together.
func (e *Engine) Sweep() []DuelTransition {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	var out []DuelTransition
	for _, d := range e.duels {
		if d.Status == models.DuelStatusCollecting && !now.Before(d.CollectionDeadline) {
			if len(d.Entries) < 2 {
				e.cancelLocked(d, now)
				out = append(out, DuelTransition{Duel: d.Clone(), From: models.DuelStatusCollecting, To: models.DuelStatusCancelled})
				continue
			}
			d.Status = models.DuelStatusVoting
			log.Printf("[Duel] %s voting opened with %d entries", d.ID, len(d.Entries))
			out = append(out, DuelTransition{Duel: d.Clone(), From: models.DuelStatusCollecting, To: models.DuelStatusVoting})
		}
		if d.Status == models.DuelStatusVoting && !now.Before(d.VoteDeadline) {
			e.finishLocked(d, now)
			out = append(out, DuelTransition{Duel: d.Clone(), From: models.DuelStatusVoting, To: models.DuelStatusFinished})
		}
	}
	return out
}

// Tally counts votes per entry; index 0 is unused.
func Tally(d *models.Duel) []int {
	counts := make([]int, len(d.Entries)+1)
	for _, v := range d.Votes {
		if v.EntryIndex >= 1 && v.EntryIndex <= len(d.Entries) {
			counts[v.EntryIndex]++
		}
	}
	return counts
}

// winnerIndex returns the entry with strictly the most votes; among tied
// entries the lowest index wins. Zero votes means no winner (0).
func winnerIndex(counts []int) int {
	best, bestCount := 0, 0
	for i := 1; i < len(counts); i++ {
		if counts[i] > bestCount {
			best, bestCount = i, counts[i]
		}
	}
	return best
}

func (e *Engine) finishLocked(d *models.Duel, now time.Time) {
	d.Status = models.DuelStatusFinished
	d.ResolvedAt = &now

	idx := winnerIndex(Tally(d))
	if idx == 0 {
		log.Printf("[Duel] %s finished without votes", d.ID)
		e.refundLocked(d)
		return
	}
	winner := d.Entries[idx-1].ParticipantID
	d.WinnerID = &winner
	if d.Prize > 0 {
		if _, err := e.ledger.Credit(winner, d.Prize, models.ReasonDuelWin); err != nil {
			log.Printf("[Duel] %s payout to %d failed: %v", d.ID, winner, err)
		}
	}
	log.Printf("🏆 [Duel] %s won by %d (entry %d), prize %d", d.ID, winner, idx, d.Prize)
}

func (e *Engine) cancelLocked(d *models.Duel, now time.Time) {
	d.Status = models.DuelStatusCancelled
	d.ResolvedAt = &now
	e.refundLocked(d)
	log.Printf("[Duel] %s cancelled with %d entries", d.ID, len(d.Entries))
}

func (e *Engine) refundLocked(d *models.Duel) {
	for _, entry := range d.Entries {
		if entry.Staked <= 0 {
			continue
		}
		if _, err := e.ledger.Credit(entry.ParticipantID, entry.Staked, models.ReasonDuelRefund); err != nil {
			log.Printf("[Duel] %s refund to %d failed: %v", d.ID, entry.ParticipantID, err)
		}
	}
}

func (e *Engine) activeLocked() *models.Duel {
	for i := len(e.duels) - 1; i >= 0; i-- {
		d := e.duels[i]
		if d.Kind == models.DuelKindParagraph && !d.Status.Terminal() {
			return d
		}
	}
	return nil
}

// Active returns the open paragraph duel, if any.
func (e *Engine) Active() (models.Duel, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if d := e.activeLocked(); d != nil {
		return d.Clone(), true
	}
	return models.Duel{}, false
}

func (e *Engine) Get(duelID string) (models.Duel, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	d, ok := e.byID[duelID]
	if !ok {
		return models.Duel{}, ErrUnknownDuel
	}
	return d.Clone(), nil
}

// NextDeadline is the earliest pending deadline across open duels.
func (e *Engine) NextDeadline() (time.Time, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	var next time.Time
	found := false
	for _, d := range e.duels {
		var at time.Time
		switch d.Status {
		case models.DuelStatusCollecting:
			at = d.CollectionDeadline
		case models.DuelStatusVoting:
			at = d.VoteDeadline
		default:
			continue
		}
		if !found || at.Before(next) {
			next, found = at, true
		}
	}
	return next, found
}

func (e *Engine) Count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.duels)
}

func (e *Engine) exportLocked(s *models.Snapshot) {
	s.Duels = make([]models.Duel, 0, len(e.duels))
	for _, d := range e.duels {
		s.Duels = append(s.Duels, d.Clone())
	}
}

func (e *Engine) importLocked(s *models.Snapshot) {
	e.duels = make([]*models.Duel, 0, len(s.Duels))
	e.byID = make(map[string]*models.Duel, len(s.Duels))
	for i := range s.Duels {
		d := s.Duels[i].Clone()
		e.duels = append(e.duels, &d)
		e.byID[d.ID] = &d
	}
}
