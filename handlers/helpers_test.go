package handlers

import (
	"context"
	"sync"
	"time"

	"reading-club-system/services"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type sent struct {
	to   services.Recipient
	text string
	opts services.NotifyOptions
}

type captureNotifier struct {
	mu   sync.Mutex
	msgs []sent
}

func (n *captureNotifier) Notify(_ context.Context, to services.Recipient, text string, opts services.NotifyOptions) (services.Receipt, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.msgs = append(n.msgs, sent{to: to, text: text, opts: opts})
	return services.Receipt{MessageID: int64(len(n.msgs))}, nil
}

func (n *captureNotifier) to(r services.Recipient) []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []string
	for _, m := range n.msgs {
		if m.to == r {
			out = append(out, m.text)
		}
	}
	return out
}

const (
	adminID   = int64(1)
	groupChat = int64(-1001)
)

func newTestDispatcher(clock *testClock, notifier services.Notifier) (*Dispatcher, *services.Club) {
	club := services.NewClub(services.ClubConfig{
		Registry: services.RegistryConfig{Capacity: 2, Cooldown: 48 * time.Hour, Reward: 10},
		Duel:     services.DuelConfig{Prize: 20, CollectFor: time.Hour, VoteFor: 30 * time.Minute},
		Members:  services.MembersConfig{StartBonus: 50, DailyReward: 5, Location: time.UTC},
		Group:    services.DirectRecipient(groupChat),
	}, notifier, clock.Now)
	d := NewDispatcher(club, DispatcherConfig{
		AllowedDomains: []string{"habr.com", "medium.com"},
		Topics:         []string{"Rain"},
		AdminIDs:       []int64{adminID},
		BatchSize:      3,
	})
	d.pick = func(int) int { return 0 }
	return d, club
}

func direct(id int64, text string) InboundEvent {
	return InboundEvent{ActorID: id, Chat: ChatDirect, ChatID: id, RawText: text, FirstName: "Reader"}
}

func group(id int64, text string) InboundEvent {
	return InboundEvent{ActorID: id, Chat: ChatGroup, ChatID: groupChat, RawText: text, FirstName: "Reader"}
}
