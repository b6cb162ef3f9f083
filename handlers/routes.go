// handlers/routes.go
package handlers

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"reading-club-system/middleware"
	"reading-club-system/models"
	"reading-club-system/services"

	"github.com/gofiber/fiber/v2"
)

// Flusher writes the current snapshot to durable storage.
type Flusher interface {
	Flush(ctx context.Context) error
}

// Pinger is implemented by storage backends that can check their connection.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthSources are optional components /health reports on; nil fields are skipped.
type HealthSources struct {
	Store     Pinger
	Snapshots interface{ LastSaved() time.Time }
	Outbox    interface {
		Stats() (sent, failed, dropped int64)
		Pending() int
	}
}

func SetupHealthRoutes(app *fiber.App, club *services.Club, src HealthSources) {
	app.Get("/health", func(c *fiber.Ctx) error {
		_, duelRunning := club.Engine.Active()
		body := fiber.Map{
			"status":          "ok",
			"timestamp":       club.Now().UTC().Format(time.RFC3339),
			"members":         club.Members.Count(),
			"queue":           club.Registry.QueueSize(),
			"published_today": club.Registry.PublishedToday(),
			"last_publish":    club.Markers.LastRun(models.JobDailyPublish),
			"duels":           club.Engine.Count(),
			"duel_running":    duelRunning,
		}
		if src.Snapshots != nil {
			if at := src.Snapshots.LastSaved(); !at.IsZero() {
				body["last_saved"] = at.UTC().Format(time.RFC3339)
			}
		}
		if src.Outbox != nil {
			sent, failed, dropped := src.Outbox.Stats()
			body["notifications"] = fiber.Map{"sent": sent, "failed": failed, "dropped": dropped, "pending": src.Outbox.Pending()}
		}
		if src.Store != nil {
			ctx, cancel := context.WithTimeout(c.UserContext(), 3*time.Second)
			defer cancel()
			if err := src.Store.Ping(ctx); err != nil {
				body["status"] = "degraded"
				body["storage"] = err.Error()
				return c.Status(fiber.StatusServiceUnavailable).JSON(body)
			}
			body["storage"] = "ok"
		}
		return c.JSON(body)
	})
}

// SetupAdminRoutes mounts operator endpoints under /admin, guarded by the
// admin bearer token.
func SetupAdminRoutes(app *fiber.App, club *services.Club, flusher Flusher, token string, batchSize int) {
	admin := app.Group("/admin", middleware.AdminAuthMiddleware(token))

	admin.Post("/publish", func(c *fiber.Ctx) error {
		n := batchSize
		if raw := c.Query("n"); raw != "" {
			v, err := strconv.Atoi(raw)
			if err != nil || v <= 0 {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "n must be a positive integer"})
			}
			n = v
		}
		batch := club.PublishNow(c.UserContext(), n)
		return c.JSON(fiber.Map{"published": batch, "count": len(batch)})
	})

	admin.Post("/duels", func(c *fiber.Ctx) error {
		var req struct {
			Topic string `json:"topic"`
			Prize int64  `json:"prize"`
		}
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
		}
		if req.Prize < 0 || req.Prize > services.MaxPrize {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": fmt.Sprintf("prize must be between 0 and %d", services.MaxPrize)})
		}
		duel, err := club.StartDuel(c.UserContext(), services.DuelOptions{Topic: req.Topic, Prize: req.Prize})
		if errors.Is(err, services.ErrDuelActive) {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error(), "duel": duel})
		}
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}
		return c.Status(fiber.StatusCreated).JSON(duel)
	})

	admin.Get("/duels/:id", func(c *fiber.Ctx) error {
		duel, err := club.Engine.Get(c.Params("id"))
		if errors.Is(err, services.ErrUnknownDuel) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
		}
		return c.JSON(fiber.Map{"duel": duel, "tally": services.Tally(&duel)})
	})

	admin.Get("/queue", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"queue":     club.Registry.ListQueue(0),
			"published": club.Registry.Published(),
		})
	})

	admin.Get("/members/:id", func(c *fiber.Ctx) error {
		id, err := strconv.ParseInt(c.Params("id"), 10, 64)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid member id"})
		}
		member, err := club.Members.Get(id)
		if errors.Is(err, services.ErrNotRegistered) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
		}
		out := fiber.Map{
			"member":  member,
			"balance": club.Ledger.Balance(id),
			"ledger":  club.Ledger.Entries(id),
		}
		if sub, ok := club.Registry.Pending(id); ok {
			out["pending"] = sub
		}
		return c.JSON(out)
	})

	admin.Post("/members/:id/archive", func(c *fiber.Ctx) error {
		id, err := strconv.ParseInt(c.Params("id"), 10, 64)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid member id"})
		}
		if err := club.Members.Archive(id); err != nil {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
		}
		log.Printf("[Admin] archived member %d", id)
		return c.JSON(fiber.Map{"ok": true})
	})

	admin.Get("/snapshot", func(c *fiber.Ctx) error {
		return c.JSON(club.Snapshot())
	})

	admin.Post("/snapshot/flush", func(c *fiber.Ctx) error {
		if err := flusher.Flush(c.UserContext()); err != nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "snapshot flush failed", "cause": err.Error()})
		}
		return c.JSON(fiber.Map{"ok": true})
	})
}
