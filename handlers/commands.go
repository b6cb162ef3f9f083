package handlers

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log"
	"math/rand/v2"
	"strconv"
	"strings"
	"time"

	"reading-club-system/models"
	"reading-club-system/services"
)

type DispatcherConfig struct {
	AllowedDomains []string
	Topics         []string
	AdminIDs       []int64
	BatchSize      int
}

// Dispatcher turns chat commands into club operations and replies to the
// chat the command came from.
type Dispatcher struct {
	club *services.Club
	cfg  DispatcherConfig
	pick func(n int) int
}

func NewDispatcher(club *services.Club, cfg DispatcherConfig) *Dispatcher {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 3
	}
	return &Dispatcher{club: club, cfg: cfg, pick: rand.IntN}
}

// Dispatch handles ev and sends the reply, if any, back to its chat.
func (d *Dispatcher) Dispatch(ctx context.Context, ev InboundEvent) {
	reply := d.Handle(ctx, ev)
	if reply == "" {
		return
	}
	chat := ev.ChatID
	if chat == 0 {
		chat = ev.ActorID
	}
	d.club.Notify(ctx, services.DirectRecipient(chat), reply, services.NotifyOptions{ThreadID: ev.ThreadID})
}

// Handle runs the command in ev and returns the reply text. Plain group
// chatter yields "".
func (d *Dispatcher) Handle(ctx context.Context, ev InboundEvent) string {
	name, args, ok := ev.Command()
	if !ok {
		if ev.Chat == ChatDirect && looksLikeSubmission(ev.RawText) {
			return d.requireMember(ev, func() string { return d.submit(ev, ev.RawText) })
		}
		if ev.Chat == ChatDirect {
			return "Send /help to see what I can do."
		}
		return ""
	}

	switch name {
	case "start":
		return d.start(ev)
	case "help", "menu":
		return d.help(ev)
	case "rules":
		return d.rules()
	}

	if d.isAdmin(ev.ActorID) {
		switch name {
		case "publish_now":
			return d.publishNow(ctx, args)
		case "duel_now":
			return d.startDuel(ctx, ev, args)
		}
	}

	return d.requireMember(ev, func() string {
		switch name {
		case "queue":
			return d.queue()
		case "balance":
			return d.balance(ev)
		case "profile":
			return d.profile(ev)
		case "daily":
			return d.daily(ev)
		case "submit":
			return d.submit(ev, args)
		case "duel", "game":
			return d.duel(ctx, ev, args)
		case "entry":
			return d.entry(ev, args)
		case "vote":
			return d.vote(ev, args)
		default:
			return "Unknown command. Send /help for the list."
		}
	})
}

func (d *Dispatcher) isAdmin(id int64) bool {
	for _, a := range d.cfg.AdminIDs {
		if a == id {
			return true
		}
	}
	return false
}

func (d *Dispatcher) requireMember(ev InboundEvent, fn func() string) string {
	m, err := d.club.Members.Get(ev.ActorID)
	if err != nil {
		return "You are not registered yet. Send /start to join the club."
	}
	if m.Status == models.MemberStatusArchived {
		return "Your membership is archived."
	}
	d.club.Members.Touch(ev.ActorID)
	return fn()
}

func (d *Dispatcher) start(ev InboundEvent) string {
	m, created := d.club.Members.Register(ev.ActorID, ev.Username, ev.FirstName, ev.LastName)
	if !created {
		d.club.Members.Touch(ev.ActorID)
		return fmt.Sprintf("Welcome back, %s! Your balance is %s.",
			html.EscapeString(m.DisplayName()), d.club.FormatQuotes(d.club.Ledger.Balance(ev.ActorID)))
	}
	cfg := d.club.Config()
	return fmt.Sprintf("Welcome to the reading club, %s!\nYou received a start bonus of %s.\n\nSend /help to see the commands and /rules for how things work.",
		html.EscapeString(m.DisplayName()), d.club.FormatQuotes(cfg.Members.StartBonus))
}

func (d *Dispatcher) help(ev InboundEvent) string {
	var b strings.Builder
	b.WriteString("<b>Commands</b>\n")
	b.WriteString("/start - join the club\n")
	b.WriteString("/rules - how the club works\n")
	b.WriteString("/submit - suggest an article\n")
	b.WriteString("/queue - publication queue\n")
	b.WriteString("/balance - your quotes\n")
	b.WriteString("/profile - your stats\n")
	b.WriteString("/daily - daily reward\n")
	b.WriteString("/duel - paragraph duel (start one in the group)\n")
	b.WriteString("/entry text - send your duel paragraph (direct chat)\n")
	b.WriteString("/vote N - vote for entry N\n")
	if d.isAdmin(ev.ActorID) {
		b.WriteString("\n<b>Admin</b>\n/publish_now [n]\n/duel_now [topic]\n")
	}
	return b.String()
}

func (d *Dispatcher) rules() string {
	cfg := d.club.Config()
	return fmt.Sprintf("<b>Club rules</b>\n\n"+
		"1. One article in the queue per member, at most one every %s.\n"+
		"2. The queue holds %d articles; the oldest are published daily.\n"+
		"3. Links must come from: %s.\n"+
		"4. Every accepted article earns %s, /daily earns %s.\n"+
		"5. Paragraph duels: write on the topic, vote for the best one, the winner takes the prize.",
		formatWait(cfg.Registry.Cooldown), cfg.Registry.Capacity,
		html.EscapeString(strings.Join(d.cfg.AllowedDomains, ", ")),
		d.club.FormatQuotes(cfg.Registry.Reward), d.club.FormatQuotes(cfg.Members.DailyReward))
}

func (d *Dispatcher) queue() string {
	queue := d.club.Registry.ListQueue(0)
	return fmt.Sprintf("%s\n\n%d/%d places taken.", d.club.RenderQueue(queue), len(queue), d.club.Config().Registry.Capacity)
}

// balance shows the caller's balance, or that of the member whose message
// is being replied to.
func (d *Dispatcher) balance(ev InboundEvent) string {
	if ev.ReplyTargetID != nil && *ev.ReplyTargetID != ev.ActorID {
		target, err := d.club.Members.Get(*ev.ReplyTargetID)
		if err != nil {
			return "That user is not a club member."
		}
		return fmt.Sprintf("%s has %s.", html.EscapeString(target.DisplayName()), d.club.FormatQuotes(d.club.Ledger.Balance(target.ID)))
	}
	return fmt.Sprintf("Your balance: %s.", d.club.FormatQuotes(d.club.Ledger.Balance(ev.ActorID)))
}

func (d *Dispatcher) profile(ev InboundEvent) string {
	m, err := d.club.Members.Get(ev.ActorID)
	if err != nil {
		return "You are not registered yet. Send /start to join the club."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "<b>%s</b>\n", html.EscapeString(m.DisplayName()))
	fmt.Fprintf(&b, "Balance: %s\n", d.club.FormatQuotes(d.club.Ledger.Balance(m.ID)))
	fmt.Fprintf(&b, "Articles: %d\nDuels played: %d\nDuels won: %d\n", m.ArticlesCount, m.GamesPlayed, m.DuelsWon)
	fmt.Fprintf(&b, "Member since: %s\n", m.RegisteredAt.Format(time.DateOnly))

	if sub, ok := d.club.Registry.Pending(m.ID); ok {
		fmt.Fprintf(&b, "In queue: <b>%s</b>", html.EscapeString(titleOrLink(sub)))
	} else if adm := d.club.Registry.CanSubmit(m.ID); adm.Reason == services.AdmissionCooldown {
		fmt.Fprintf(&b, "Next submission in %s", formatWait(adm.RetryAfter))
	} else {
		b.WriteString("You can submit an article now.")
	}
	return b.String()
}

func (d *Dispatcher) daily(ev InboundEvent) string {
	granted, balance, err := d.club.Members.ClaimDaily(ev.ActorID)
	if err != nil {
		log.Printf("⚠️ [Commands] daily for %d failed: %v", ev.ActorID, err)
		return "Could not claim the daily reward right now."
	}
	if !granted {
		return fmt.Sprintf("You already took today's reward. Come back tomorrow! Balance: %s.", d.club.FormatQuotes(balance))
	}
	return fmt.Sprintf("+%s! Balance: %s.", d.club.FormatQuotes(d.club.Config().Members.DailyReward), d.club.FormatQuotes(balance))
}

const submitFormat = "Send your article like this:\n\n" +
	"TITLE: Article title\nDESCRIPTION: Why it is worth reading\nLINK: https://habr.com/...\n\n" +
	"or simply: /submit https://habr.com/... Title"

func (d *Dispatcher) submit(ev InboundEvent, args string) string {
	form, ok := parseSubmission(args)
	if !ok {
		if adm := d.club.Registry.CanSubmit(ev.ActorID); !adm.Allowed {
			return admissionText(adm)
		}
		return submitFormat
	}

	link, err := services.ValidateReference(form.Link, d.cfg.AllowedDomains)
	if err != nil {
		return fmt.Sprintf("That link is not accepted. Allowed sites: %s.",
			html.EscapeString(strings.Join(d.cfg.AllowedDomains, ", ")))
	}

	if adm := d.club.Registry.CanSubmit(ev.ActorID); !adm.Allowed {
		return admissionText(adm)
	}
	sub, adm := d.club.Registry.Submit(ev.ActorID, link, form.Title, form.Description)
	if sub == nil {
		return admissionText(adm)
	}
	d.club.Members.RecordArticle(ev.ActorID)

	cfg := d.club.Config()
	return fmt.Sprintf("✅ Accepted: <b>%s</b>\nPlace in queue: %d/%d. +%s!",
		html.EscapeString(titleOrLink(*sub)), d.club.Registry.QueueSize(), cfg.Registry.Capacity,
		d.club.FormatQuotes(cfg.Registry.Reward))
}

func admissionText(adm services.Admission) string {
	switch adm.Reason {
	case services.AdmissionDuplicate:
		return "You already have an article in the queue. Wait until it is published."
	case services.AdmissionCooldown:
		return fmt.Sprintf("You can submit your next article in %s.", formatWait(adm.RetryAfter))
	case services.AdmissionCapacity:
		return "The queue is full. Try again after the next publication."
	default:
		return "Submission rejected."
	}
}

func (d *Dispatcher) duel(ctx context.Context, ev InboundEvent, args string) string {
	if active, ok := d.club.Engine.Active(); ok {
		return d.duelStatus(active)
	}
	if ev.Chat != ChatGroup {
		return "No duel is running. Duels are started in the club group with /duel."
	}
	return d.startDuel(ctx, ev, args)
}

func (d *Dispatcher) startDuel(ctx context.Context, ev InboundEvent, topic string) string {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		topic = d.randomTopic()
	}
	duel, err := d.club.StartDuel(ctx, services.DuelOptions{Topic: topic, InitiatorID: ev.ActorID})
	if errors.Is(err, services.ErrDuelActive) {
		return d.duelStatus(duel)
	}
	if err != nil {
		return "Could not start a duel: " + html.EscapeString(err.Error())
	}
	if ev.Chat == ChatGroup {
		// StartDuel already announced it here.
		return ""
	}
	return fmt.Sprintf("Duel started: <b>%s</b>.", html.EscapeString(duel.Topic))
}

func (d *Dispatcher) randomTopic() string {
	if len(d.cfg.Topics) == 0 {
		return "A book that changed your mind"
	}
	return d.cfg.Topics[d.pick(len(d.cfg.Topics))]
}

func (d *Dispatcher) duelStatus(duel models.Duel) string {
	loc := d.club.Config().Members.Location
	if loc == nil {
		loc = time.UTC
	}
	switch duel.Status {
	case models.DuelStatusCollecting:
		return fmt.Sprintf("Duel in progress: <b>%s</b>\nEntries so far: %d. Send yours with /entry in a direct chat until %s.",
			html.EscapeString(duel.Topic), len(duel.Entries), duel.CollectionDeadline.In(loc).Format("15:04"))
	case models.DuelStatusVoting:
		return fmt.Sprintf("Voting for <b>%s</b>: %d entries, %d vote(s). Vote with /vote N until %s.",
			html.EscapeString(duel.Topic), len(duel.Entries), len(duel.Votes), duel.VoteDeadline.In(loc).Format("15:04"))
	default:
		return d.club.RenderResult(duel)
	}
}

func (d *Dispatcher) entry(ev InboundEvent, text string) string {
	if ev.Chat != ChatDirect {
		return "Send your paragraph to me in a direct chat so nobody sees it before voting."
	}
	duel, ok := d.club.Engine.Active()
	if !ok {
		return "No duel is running right now."
	}
	switch d.club.Engine.SubmitEntry(duel.ID, ev.ActorID, text) {
	case services.EntryAccepted:
		d.club.Members.RecordDuelEntry(ev.ActorID)
		return fmt.Sprintf("Your paragraph for <b>%s</b> is in. Good luck!", html.EscapeString(duel.Topic))
	case services.EntryDuplicate:
		return "You already sent a paragraph for this duel."
	case services.EntryWrongPhase:
		return "Entries are closed for this duel."
	case services.EntryEmpty:
		return "Write your paragraph after the command: /entry your text"
	case services.EntryTooLong:
		return "That paragraph is too long."
	case services.EntryPrizePoolFull:
		return "This duel cannot take more entries."
	case services.EntryInsufficientFunds:
		return fmt.Sprintf("You need %s to enter this duel.", d.club.FormatQuotes(duel.Stake))
	default:
		return "This duel is no longer available."
	}
}

func (d *Dispatcher) vote(ev InboundEvent, args string) string {
	idx, err := strconv.Atoi(strings.TrimSpace(args))
	if err != nil {
		return "Vote with the entry number: /vote 2"
	}
	duel, ok := d.club.Engine.Active()
	if !ok {
		return "No duel is running right now."
	}
	switch d.club.Engine.CastVote(duel.ID, ev.ActorID, idx) {
	case services.VoteAccepted:
		return fmt.Sprintf("Vote for entry %d counted.", idx)
	case services.VoteDuplicate:
		return "You already voted in this duel."
	case services.VoteWrongPhase:
		if duel.Status == models.DuelStatusVoting {
			return "Voting has closed for this duel."
		}
		return "Voting is not open yet."
	case services.VoteOutOfRange:
		return fmt.Sprintf("There is no entry %d. Pick 1 to %d.", idx, len(duel.Entries))
	default:
		return "This duel is no longer available."
	}
}

func (d *Dispatcher) publishNow(ctx context.Context, args string) string {
	n := d.cfg.BatchSize
	if v, err := strconv.Atoi(strings.TrimSpace(args)); err == nil && v > 0 {
		n = v
	}
	batch := d.club.PublishNow(ctx, n)
	if len(batch) == 0 {
		return "The queue is empty, nothing to publish."
	}
	return fmt.Sprintf("Published %d article(s).", len(batch))
}

func titleOrLink(sub models.Submission) string {
	if sub.Title != "" {
		return sub.Title
	}
	return sub.URL
}

func formatWait(d time.Duration) string {
	if d <= 0 {
		return "0m"
	}
	d = d.Round(time.Minute)
	if d < time.Minute {
		d = time.Minute
	}
	days := int(d / (24 * time.Hour))
	hours := int(d % (24 * time.Hour) / time.Hour)
	minutes := int(d % time.Hour / time.Minute)
	switch {
	case days > 0:
		return fmt.Sprintf("%dd %dh", days, hours)
	case hours > 0:
		return fmt.Sprintf("%dh %dm", hours, minutes)
	default:
		return fmt.Sprintf("%dm", minutes)
	}
}
