package services

import (
	"sort"
	"sync"

	"reading-club-system/models"
)

// Markers makes keyed jobs run at most once per calendar day. The job body
// runs under the marker lock, so a snapshot never sees its effect without
// the marker (or the marker without its effect).
type Markers struct {
	mu   sync.Mutex
	last map[string]string
}

func NewMarkers() *Markers {
	return &Markers{last: make(map[string]string)}
}

// RunOnce runs fn unless key already ran on day. It reports whether fn ran.
func (m *Markers) RunOnce(key, day string, fn func()) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.last[key] == day {
		return false
	}
	fn()
	m.last[key] = day
	return true
}

// LastRun returns the day key last ran, or "" if never.
func (m *Markers) LastRun(key string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last[key]
}

func (m *Markers) exportLocked(s *models.Snapshot) {
	s.JobMarkers = make([]models.JobMarker, 0, len(m.last))
	for k, v := range m.last {
		s.JobMarkers = append(s.JobMarkers, models.JobMarker{Key: k, LastRunDate: v})
	}
	sort.Slice(s.JobMarkers, func(i, j int) bool { return s.JobMarkers[i].Key < s.JobMarkers[j].Key })
}

func (m *Markers) importLocked(s *models.Snapshot) {
	m.last = make(map[string]string, len(s.JobMarkers))
	for _, jm := range s.JobMarkers {
		m.last[jm.Key] = jm.LastRunDate
	}
}
