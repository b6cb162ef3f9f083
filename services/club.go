package services

import (
	"context"
	"fmt"
	"html"
	"log"
	"strings"
	"time"

	"reading-club-system/models"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

type ClubConfig struct {
	Registry RegistryConfig
	Duel     DuelConfig
	Members  MembersConfig
	// Group is where queue batches and duel phases are announced.
	Group       Recipient
	GroupThread int64
}

// Club wires the ledger, registry, duel engine, members and job markers
// together and owns consistent snapshots across them.
type Club struct {
	Ledger   *Ledger
	Registry *Registry
	Engine   *Engine
	Members  *Members
	Markers  *Markers

	cfg      ClubConfig
	notifier Notifier
	now      Clock
	printer  *message.Printer
}

func NewClub(cfg ClubConfig, notifier Notifier, now Clock) *Club {
	if now == nil {
		now = time.Now
	}
	if notifier == nil {
		notifier = NopNotifier{}
	}
	ledger := NewLedger(now)
	markers := NewMarkers()
	return &Club{
		Ledger:   ledger,
		Registry: NewRegistry(cfg.Registry, ledger, now),
		Engine:   NewEngine(cfg.Duel, ledger, now),
		Members:  NewMembers(cfg.Members, ledger, markers, now),
		Markers:  markers,
		cfg:      cfg,
		notifier: notifier,
		now:      now,
		printer:  message.NewPrinter(language.English),
	}
}

func (c *Club) Now() time.Time { return c.now() }

func (c *Club) Config() ClubConfig { return c.cfg }

// Snapshot captures every store at one instant. Locks are taken in the same
// order every cross-store call uses: markers, members, registry, engine, ledger.
func (c *Club) Snapshot() *models.Snapshot {
	c.Markers.mu.Lock()
	defer c.Markers.mu.Unlock()
	c.Members.mu.Lock()
	defer c.Members.mu.Unlock()
	c.Registry.mu.Lock()
	defer c.Registry.mu.Unlock()
	c.Engine.mu.Lock()
	defer c.Engine.mu.Unlock()
	c.Ledger.mu.Lock()
	defer c.Ledger.mu.Unlock()

	s := &models.Snapshot{Version: models.SnapshotVersion, TakenAt: c.now()}
	c.Markers.exportLocked(s)
	c.Members.exportLocked(s)
	c.Registry.exportLocked(s)
	c.Engine.exportLocked(s)
	c.Ledger.exportLocked(s)
	return s
}

// Restore replaces all state with the snapshot. It must run before any
// inbound event is handled.
func (c *Club) Restore(s *models.Snapshot) error {
	if s == nil {
		return fmt.Errorf("nil snapshot")
	}
	if s.Version > models.SnapshotVersion {
		return fmt.Errorf("snapshot version %d is newer than supported %d", s.Version, models.SnapshotVersion)
	}
	c.Markers.mu.Lock()
	defer c.Markers.mu.Unlock()
	c.Members.mu.Lock()
	defer c.Members.mu.Unlock()
	c.Registry.mu.Lock()
	defer c.Registry.mu.Unlock()
	c.Engine.mu.Lock()
	defer c.Engine.mu.Unlock()
	c.Ledger.mu.Lock()
	defer c.Ledger.mu.Unlock()

	c.Markers.importLocked(s)
	c.Members.importLocked(s)
	c.Registry.importLocked(s)
	c.Engine.importLocked(s)
	c.Ledger.importLocked(s)
	log.Printf("[Club] restored snapshot from %s: members=%d queue=%d duels=%d",
		s.TakenAt.Format(time.RFC3339), len(s.Members), len(c.Registry.queue), len(s.Duels))
	return nil
}

// Notify sends in the background of core state: state is already committed
// and a failed delivery is only logged.
func (c *Club) Notify(ctx context.Context, to Recipient, text string, opts NotifyOptions) {
	if to == "" || text == "" {
		return
	}
	if _, err := c.notifier.Notify(ctx, to, text, opts); err != nil {
		log.Printf("⚠️ [Notify] to %s failed: %v", to, err)
	}
}

func (c *Club) NotifyGroup(ctx context.Context, text string) {
	c.Notify(ctx, c.cfg.Group, text, NotifyOptions{ThreadID: c.cfg.GroupThread})
}

// PublishNow releases up to n submissions immediately and announces them.
// It does not touch the daily publish marker.
func (c *Club) PublishNow(ctx context.Context, n int) []models.Submission {
	batch := c.Registry.DequeueBatch(n)
	c.AnnounceBatch(ctx, batch)
	return batch
}

// StartDuel opens a duel and announces it to the group.
func (c *Club) StartDuel(ctx context.Context, opts DuelOptions) (models.Duel, error) {
	d, err := c.Engine.Start(opts)
	if err != nil {
		return d, err
	}
	c.NotifyGroup(ctx, c.RenderDuelStart(d))
	return d, nil
}

// AnnounceBatch posts a published batch to the group; empty batches are silent.
func (c *Club) AnnounceBatch(ctx context.Context, batch []models.Submission) {
	if len(batch) == 0 {
		return
	}
	c.NotifyGroup(ctx, c.RenderBatch(batch))
	for _, sub := range batch {
		c.Notify(ctx, DirectRecipient(sub.OwnerID), fmt.Sprintf("Your article <b>%s</b> was published today.", html.EscapeString(titleOf(sub))), NotifyOptions{})
	}
}

// SweepDuels advances expired duels. The members lock is held across the
// sweep, so a winner's duels_won moves in the same step as the payout.
func (c *Club) SweepDuels() []DuelTransition {
	c.Members.mu.Lock()
	defer c.Members.mu.Unlock()
	transitions := c.Engine.Sweep()
	for _, t := range transitions {
		if t.To == models.DuelStatusFinished && t.Duel.WinnerID != nil {
			c.Members.recordDuelWinLocked(*t.Duel.WinnerID)
		}
	}
	return transitions
}

// AnnounceTransition posts the phase text for a duel transition.
func (c *Club) AnnounceTransition(ctx context.Context, t DuelTransition) {
	switch t.To {
	case models.DuelStatusVoting:
		c.NotifyGroup(ctx, c.RenderVoting(t.Duel))
	case models.DuelStatusCancelled:
		c.NotifyGroup(ctx, fmt.Sprintf("Duel <b>%s</b> cancelled: not enough entries.", html.EscapeString(t.Duel.Topic)))
	case models.DuelStatusFinished:
		if t.Duel.WinnerID != nil {
			c.Notify(ctx, DirectRecipient(*t.Duel.WinnerID), c.printer.Sprintf("You won the duel and received %d quotes!", t.Duel.Prize), NotifyOptions{})
		}
		c.NotifyGroup(ctx, c.RenderResult(t.Duel))
	}
}

func (c *Club) RenderBatch(batch []models.Submission) string {
	var b strings.Builder
	b.WriteString("<b>Today's reading</b>\n")
	for i, sub := range batch {
		fmt.Fprintf(&b, "\n%d. <a href=\"%s\">%s</a> by %s", i+1,
			html.EscapeString(sub.URL), html.EscapeString(titleOf(sub)), html.EscapeString(c.nameOf(sub.OwnerID)))
		if sub.Description != "" {
			fmt.Fprintf(&b, "\n%s", html.EscapeString(sub.Description))
		}
	}
	return b.String()
}

func (c *Club) RenderQueue(queue []models.Submission) string {
	if len(queue) == 0 {
		return "The queue is empty."
	}
	var b strings.Builder
	b.WriteString("<b>Publication queue</b>\n")
	for i, sub := range queue {
		fmt.Fprintf(&b, "\n%d. <b>%s</b> (by %s)", i+1, html.EscapeString(titleOf(sub)), html.EscapeString(c.nameOf(sub.OwnerID)))
	}
	return b.String()
}

func (c *Club) RenderDuelStart(d models.Duel) string {
	text := c.printer.Sprintf("<b>Paragraph duel!</b>\nTopic: <b>%s</b>\nPrize: %d quotes\n", html.EscapeString(d.Topic), d.Prize)
	if d.Stake > 0 {
		text += c.printer.Sprintf("Entry stake: %d quotes\n", d.Stake)
	}
	return text + fmt.Sprintf("Send your paragraph to the bot in a direct message: /entry your text\nEntries close at %s.",
		d.CollectionDeadline.In(c.Members.cfg.Location).Format("15:04"))
}

func (c *Club) RenderVoting(d models.Duel) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<b>Voting is open</b> for <b>%s</b>\n", html.EscapeString(d.Topic))
	for _, e := range d.Entries {
		fmt.Fprintf(&b, "\n%d. %s\n", e.Position, html.EscapeString(e.Text))
	}
	fmt.Fprintf(&b, "\nVote with /vote N until %s.", d.VoteDeadline.In(c.Members.cfg.Location).Format("15:04"))
	return b.String()
}

func (c *Club) RenderResult(d models.Duel) string {
	if d.WinnerID == nil {
		return fmt.Sprintf("Duel <b>%s</b> finished without votes. No winner this time.", html.EscapeString(d.Topic))
	}
	counts := Tally(&d)
	var b strings.Builder
	fmt.Fprintf(&b, "<b>Duel results</b>: %s\n", html.EscapeString(d.Topic))
	for _, e := range d.Entries {
		fmt.Fprintf(&b, "\n%d. %s: %d vote(s)", e.Position, html.EscapeString(c.nameOf(e.ParticipantID)), counts[e.Position])
	}
	b.WriteString(c.printer.Sprintf("\n\nWinner: %s, +%d quotes", html.EscapeString(c.nameOf(*d.WinnerID)), d.Prize))
	return b.String()
}

func (c *Club) FormatQuotes(n int64) string {
	return c.printer.Sprintf("%d quotes", n)
}

func (c *Club) nameOf(id int64) string {
	if m, err := c.Members.Get(id); err == nil {
		return m.DisplayName()
	}
	return "member"
}

func titleOf(sub models.Submission) string {
	if sub.Title != "" {
		return sub.Title
	}
	return "untitled"
}
