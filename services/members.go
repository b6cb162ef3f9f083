package services

import (
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"reading-club-system/models"
)

type MembersConfig struct {
	StartBonus  int64
	DailyReward int64
	Location    *time.Location
}

// Members tracks registered participants and their activity counters.
type Members struct {
	mu      sync.Mutex
	cfg     MembersConfig
	ledger  *Ledger
	markers *Markers
	now     Clock
	members map[int64]*models.Member
}

func NewMembers(cfg MembersConfig, ledger *Ledger, markers *Markers, now Clock) *Members {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if now == nil {
		now = time.Now
	}
	return &Members{
		cfg:     cfg,
		ledger:  ledger,
		markers: markers,
		now:     now,
		members: make(map[int64]*models.Member),
	}
}

// Register is idempotent. The start bonus is credited only when the member
// is created.
func (m *Members) Register(id int64, username, firstName, lastName string) (models.Member, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.members[id]; ok {
		return *existing, false
	}
	now := m.now()
	mem := &models.Member{
		ID:           id,
		Username:     username,
		FirstName:    firstName,
		LastName:     lastName,
		Status:       models.MemberStatusActive,
		RegisteredAt: now,
		LastActiveAt: now,
	}
	m.members[id] = mem
	if m.cfg.StartBonus > 0 {
		if _, err := m.ledger.Credit(id, m.cfg.StartBonus, models.ReasonStartBonus); err != nil {
			log.Printf("[Members] start bonus for %d failed: %v", id, err)
		}
	}
	log.Printf("✅ [Members] registered %d (%s)", id, mem.DisplayName())
	return *mem, true
}

func (m *Members) IsRegistered(id int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.members[id]
	return ok
}

func (m *Members) Get(id int64) (models.Member, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mem, ok := m.members[id]
	if !ok {
		return models.Member{}, fmt.Errorf("member %d: %w", id, ErrNotRegistered)
	}
	return *mem, nil
}

func (m *Members) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.members)
}

// Touch refreshes last activity; unknown ids are ignored.
func (m *Members) Touch(id int64) {
	m.update(id, func(mem *models.Member) { mem.LastActiveAt = m.now() })
}

func (m *Members) RecordArticle(id int64) {
	m.update(id, func(mem *models.Member) { mem.ArticlesCount++ })
}

func (m *Members) RecordDuelEntry(id int64) {
	m.update(id, func(mem *models.Member) { mem.GamesPlayed++ })
}

func (m *Members) recordDuelWinLocked(id int64) {
	if mem, ok := m.members[id]; ok {
		mem.DuelsWon++
	}
}

// Archive soft-archives the member and their account.
func (m *Members) Archive(id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	mem, ok := m.members[id]
	if !ok {
		return fmt.Errorf("member %d: %w", id, ErrNotRegistered)
	}
	mem.Status = models.MemberStatusArchived
	m.ledger.Archive(id)
	return nil
}

func (m *Members) update(id int64, fn func(*models.Member)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if mem, ok := m.members[id]; ok {
		fn(mem)
	}
}

// Today is the current calendar day in the club's time zone.
func (m *Members) Today() string {
	return m.now().In(m.cfg.Location).Format(time.DateOnly)
}

// ClaimDaily credits the daily reward at most once per calendar day.
func (m *Members) ClaimDaily(id int64) (bool, int64, error) {
	if !m.IsRegistered(id) {
		return false, 0, fmt.Errorf("member %d: %w", id, ErrNotRegistered)
	}
	if m.cfg.DailyReward <= 0 {
		return false, m.ledger.Balance(id), nil
	}
	var balance int64
	var creditErr error
	granted := m.markers.RunOnce(dailyRewardKey(id), m.Today(), func() {
		balance, creditErr = m.ledger.Credit(id, m.cfg.DailyReward, models.ReasonDailyReward)
	})
	if creditErr != nil {
		return false, 0, creditErr
	}
	if !granted {
		return false, m.ledger.Balance(id), nil
	}
	return true, balance, nil
}

func dailyRewardKey(id int64) string {
	return fmt.Sprintf("daily_reward:%d", id)
}

func (m *Members) exportLocked(s *models.Snapshot) {
	s.Members = make([]models.Member, 0, len(m.members))
	for _, mem := range m.members {
		s.Members = append(s.Members, *mem)
	}
	sort.Slice(s.Members, func(i, j int) bool { return s.Members[i].ID < s.Members[j].ID })
}

func (m *Members) importLocked(s *models.Snapshot) {
	m.members = make(map[int64]*models.Member, len(s.Members))
	for i := range s.Members {
		mem := s.Members[i]
		m.members[mem.ID] = &mem
	}
}
