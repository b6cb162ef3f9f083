package services

import (
	"context"
	"sync"
	"time"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type sentMessage struct {
	To   Recipient
	Text string
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []sentMessage
	err  error
}

func (n *recordingNotifier) Notify(_ context.Context, to Recipient, text string, _ NotifyOptions) (Receipt, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentMessage{To: to, Text: text})
	return Receipt{MessageID: int64(len(n.sent))}, n.err
}

func (n *recordingNotifier) To(to Recipient) []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []string
	for _, m := range n.sent {
		if m.To == to {
			out = append(out, m.Text)
		}
	}
	return out
}

const testGroup Recipient = "@club"

func newTestClub(clock *fakeClock, notifier Notifier) *Club {
	return NewClub(ClubConfig{
		Registry: RegistryConfig{Capacity: 10, Cooldown: 48 * time.Hour, Reward: 10},
		Duel:     DuelConfig{Prize: 20, CollectFor: time.Hour, VoteFor: 30 * time.Minute},
		Members:  MembersConfig{StartBonus: 50, DailyReward: 5, Location: time.UTC},
		Group:    testGroup,
	}, notifier, clock.Now)
}
