// services/scheduler.go
package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"reading-club-system/models"

	"github.com/go-co-op/gocron/v2"
)

// TimeOfDay is a wall-clock time in the club's time zone.
type TimeOfDay struct {
	Hour   int
	Minute int
}

// ParseTimeOfDay parses "HH:MM".
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return TimeOfDay{}, fmt.Errorf("invalid time of day %q (want HH:MM): %w", s, err)
	}
	return TimeOfDay{Hour: t.Hour(), Minute: t.Minute()}, nil
}

type SchedulerConfig struct {
	TickInterval time.Duration
	PublishAt    TimeOfDay
	BatchSize    int
	Location     *time.Location
}

// TickReport summarizes what one tick did.
type TickReport struct {
	Transitions []DuelTransition
	Published   []models.Submission
	Reset       bool
	Reminded    []int64
}

// Scheduler drives every time-based transition from one polling loop.
// Deadlines are data, so a restart resumes exactly where the last tick left off.
type Scheduler struct {
	club  *Club
	cfg   SchedulerConfig
	sched gocron.Scheduler
}

func NewScheduler(club *Club, cfg SchedulerConfig) *Scheduler {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = 30 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 3
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &Scheduler{club: club, cfg: cfg}
}

// Start runs Tick every TickInterval. Ticks never overlap.
func (s *Scheduler) Start() error {
	sched, err := gocron.NewScheduler(gocron.WithLocation(s.cfg.Location))
	if err != nil {
		return fmt.Errorf("create scheduler: %w", err)
	}
	_, err = sched.NewJob(
		gocron.DurationJob(s.cfg.TickInterval),
		gocron.NewTask(func() {
			s.Tick(context.Background())
		}),
		gocron.WithName("club-tick"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		return fmt.Errorf("register tick job: %w", err)
	}
	sched.Start()
	s.sched = sched
	log.Printf("[Scheduler] ticking every %s, daily publish at %02d:%02d %s",
		s.cfg.TickInterval, s.cfg.PublishAt.Hour, s.cfg.PublishAt.Minute, s.cfg.Location)
	return nil
}

// Stop waits for a running tick to finish.
func (s *Scheduler) Stop() error {
	if s.sched == nil {
		return nil
	}
	return s.sched.Shutdown()
}

// Tick sweeps duel deadlines, runs the daily jobs and sends cooldown
// reminders. Every step is guarded by state (duel status, day marker,
// notified flag), so repeated ticks are harmless.
func (s *Scheduler) Tick(ctx context.Context) TickReport {
	var report TickReport
	now := s.club.Now()

	if next, ok := s.club.Engine.NextDeadline(); ok && !now.Before(next) {
		report.Transitions = s.club.SweepDuels()
		for _, t := range report.Transitions {
			s.club.AnnounceTransition(ctx, t)
		}
	}

	local := now.In(s.cfg.Location)
	day := local.Format(time.DateOnly)

	report.Reset = s.club.Markers.RunOnce(models.JobDailyReset, day, s.club.Registry.ResetDailyCounters)

	publishAt := time.Date(local.Year(), local.Month(), local.Day(), s.cfg.PublishAt.Hour, s.cfg.PublishAt.Minute, 0, 0, s.cfg.Location)
	if !local.Before(publishAt) {
		ran := s.club.Markers.RunOnce(models.JobDailyPublish, day, func() {
			report.Published = s.club.Registry.DequeueBatch(s.cfg.BatchSize)
		})
		if ran {
			log.Printf("[Scheduler] daily publish for %s released %d submission(s)", day, len(report.Published))
			s.club.AnnounceBatch(ctx, report.Published)
		}
	}

	report.Reminded = s.club.Registry.DueReminders()
	for _, id := range report.Reminded {
		s.club.Notify(ctx, DirectRecipient(id), "Your cooldown is over: you can submit a new article with /submit.", NotifyOptions{})
	}
	return report
}
