package services

import (
	"log"
	"sort"
	"sync"
	"time"

	"reading-club-system/models"

	"github.com/google/uuid"
)

// AdmissionReason names the rule that rejected a submission.
type AdmissionReason string

const (
	AdmissionOK        AdmissionReason = ""
	AdmissionCooldown  AdmissionReason = "cooldown"
	AdmissionDuplicate AdmissionReason = "duplicate"
	AdmissionCapacity  AdmissionReason = "capacity"
)

// Admission is the outcome of the admission check.
type Admission struct {
	Allowed    bool
	Reason     AdmissionReason
	RetryAfter time.Duration // set for AdmissionCooldown
}

type RegistryConfig struct {
	Capacity     int
	Cooldown     time.Duration
	Reward       int64
	HistoryLimit int
}

// Registry owns the publication queue and per-owner cooldowns.
type Registry struct {
	mu     sync.Mutex
	cfg    RegistryConfig
	ledger *Ledger
	now    Clock

	queue          []*models.Submission // pending, FIFO
	pending        map[int64]*models.Submission
	cooldowns      map[int64]*models.CooldownState
	published      []models.Submission // most recent last
	publishedToday int
}

func NewRegistry(cfg RegistryConfig, ledger *Ledger, now Clock) *Registry {
	if cfg.Capacity <= 0 {
		cfg.Capacity = 10
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 48 * time.Hour
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 100
	}
	if now == nil {
		now = time.Now
	}
	return &Registry{
		cfg:       cfg,
		ledger:    ledger,
		now:       now,
		pending:   make(map[int64]*models.Submission),
		cooldowns: make(map[int64]*models.CooldownState),
	}
}

// CanSubmit runs the admission check. A pending submission is reported first,
// then an unexpired cooldown, then a full queue.
func (r *Registry) CanSubmit(ownerID int64) Admission {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.admitLocked(ownerID, r.now())
}

func (r *Registry) admitLocked(ownerID int64, now time.Time) Admission {
	if _, ok := r.pending[ownerID]; ok {
		return Admission{Reason: AdmissionDuplicate}
	}
	if cs, ok := r.cooldowns[ownerID]; ok {
		if elapsed := now.Sub(cs.LastSubmissionAt); elapsed < r.cfg.Cooldown {
			return Admission{Reason: AdmissionCooldown, RetryAfter: r.cfg.Cooldown - elapsed}
		}
	}
	if len(r.queue) >= r.cfg.Capacity {
		return Admission{Reason: AdmissionCapacity}
	}
	return Admission{Allowed: true}
}

// Submit re-runs the admission check and, if allowed, queues the link,
// restarts the owner's cooldown and credits the submission reward. On
// rejection nothing changes and the returned submission is nil.
func (r *Registry) Submit(ownerID int64, url, title, description string) (*models.Submission, Admission) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	adm := r.admitLocked(ownerID, now)
	if !adm.Allowed {
		return nil, adm
	}

	sub := &models.Submission{
		ID:          uuid.NewString(),
		OwnerID:     ownerID,
		URL:         url,
		Title:       title,
		Description: description,
		Status:      models.SubmissionStatusPending,
		SubmittedAt: now,
	}
	r.queue = append(r.queue, sub)
	r.pending[ownerID] = sub
	r.cooldowns[ownerID] = &models.CooldownState{OwnerID: ownerID, LastSubmissionAt: now}

	if r.cfg.Reward > 0 {
		if _, err := r.ledger.Credit(ownerID, r.cfg.Reward, models.ReasonSubmission); err != nil {
			log.Printf("[Registry] reward for %d failed: %v", ownerID, err)
		}
	}
	log.Printf("[Registry] queued %s from %d (%d/%d)", sub.ID, ownerID, len(r.queue), r.cfg.Capacity)

	out := *sub
	return &out, adm
}

// DequeueBatch releases up to n of the oldest pending submissions, marking
// them published. An empty queue yields an empty slice.
func (r *Registry) DequeueBatch(n int) []models.Submission {
	r.mu.Lock()
	defer r.mu.Unlock()

	if n <= 0 || len(r.queue) == 0 {
		return []models.Submission{}
	}
	if n > len(r.queue) {
		n = len(r.queue)
	}
	now := r.now()
	batch := make([]models.Submission, 0, n)
	for _, sub := range r.queue[:n] {
		published := now
		sub.Status = models.SubmissionStatusPublished
		sub.PublishedAt = &published
		delete(r.pending, sub.OwnerID)
		batch = append(batch, *sub)
	}
	r.queue = append([]*models.Submission(nil), r.queue[n:]...)
	r.published = append(r.published, batch...)
	if over := len(r.published) - r.cfg.HistoryLimit; over > 0 {
		r.published = append([]models.Submission(nil), r.published[over:]...)
	}
	r.publishedToday += len(batch)
	return batch
}

func (r *Registry) QueueSize() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.queue)
}

// ListQueue returns up to limit pending submissions in publication order.
// A non-positive limit returns the whole queue.
func (r *Registry) ListQueue(limit int) []models.Submission {
	r.mu.Lock()
	defer r.mu.Unlock()
	if limit <= 0 || limit > len(r.queue) {
		limit = len(r.queue)
	}
	out := make([]models.Submission, 0, limit)
	for _, sub := range r.queue[:limit] {
		out = append(out, *sub)
	}
	return out
}

// Pending returns the owner's queued submission, if any.
func (r *Registry) Pending(ownerID int64) (models.Submission, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sub, ok := r.pending[ownerID]
	if !ok {
		return models.Submission{}, false
	}
	return *sub, true
}

// Published returns the retained publication history, most recent last.
func (r *Registry) Published() []models.Submission {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.Submission(nil), r.published...)
}

func (r *Registry) PublishedToday() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.publishedToday
}

// ResetDailyCounters is run once per day by the scheduler.
func (r *Registry) ResetDailyCounters() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.publishedToday = 0
}

// DueReminders returns owners whose cooldown has elapsed, who have nothing
// queued and who were not yet told. Each owner is returned once per cooldown.
func (r *Registry) DueReminders() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	var due []int64
	for id, cs := range r.cooldowns {
		if cs.Notified || now.Sub(cs.LastSubmissionAt) < r.cfg.Cooldown {
			continue
		}
		if _, ok := r.pending[id]; ok {
			continue
		}
		cs.Notified = true
		due = append(due, id)
	}
	sort.Slice(due, func(i, j int) bool { return due[i] < due[j] })
	return due
}

func (r *Registry) exportLocked(s *models.Snapshot) {
	s.Submissions = make([]models.Submission, 0, len(r.published)+len(r.queue))
	s.Submissions = append(s.Submissions, r.published...)
	for _, sub := range r.queue {
		s.Submissions = append(s.Submissions, *sub)
	}
	s.Cooldowns = make([]models.CooldownState, 0, len(r.cooldowns))
	for _, cs := range r.cooldowns {
		s.Cooldowns = append(s.Cooldowns, *cs)
	}
	sort.Slice(s.Cooldowns, func(i, j int) bool { return s.Cooldowns[i].OwnerID < s.Cooldowns[j].OwnerID })
	s.PublishedToday = r.publishedToday
}

func (r *Registry) importLocked(s *models.Snapshot) {
	r.queue = nil
	r.published = nil
	r.pending = make(map[int64]*models.Submission)
	r.cooldowns = make(map[int64]*models.CooldownState, len(s.Cooldowns))

	for _, sub := range s.Submissions {
		if sub.Status == models.SubmissionStatusPublished {
			r.published = append(r.published, sub)
			continue
		}
		if _, dup := r.pending[sub.OwnerID]; dup {
			log.Printf("[Registry] dropping second pending submission %s of %d", sub.ID, sub.OwnerID)
			continue
		}
		sub := sub
		r.queue = append(r.queue, &sub)
		r.pending[sub.OwnerID] = &sub
	}
	sort.SliceStable(r.queue, func(i, j int) bool { return r.queue[i].SubmittedAt.Before(r.queue[j].SubmittedAt) })
	for i := range s.Cooldowns {
		cs := s.Cooldowns[i]
		r.cooldowns[cs.OwnerID] = &cs
	}
	r.publishedToday = s.PublishedToday
}
