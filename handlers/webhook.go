// handlers/webhook.go
package handlers

import (
	"log"

	"reading-club-system/middleware"

	"github.com/gofiber/fiber/v2"
)

// Only the Telegram update fields the club reads.
type telegramUser struct {
	ID        int64  `json:"id"`
	IsBot     bool   `json:"is_bot"`
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

type telegramChat struct {
	ID   int64  `json:"id"`
	Type string `json:"type"`
}

type telegramMessage struct {
	MessageID       int64            `json:"message_id"`
	MessageThreadID int64            `json:"message_thread_id"`
	From            *telegramUser    `json:"from"`
	Chat            telegramChat     `json:"chat"`
	Text            string           `json:"text"`
	Caption         string           `json:"caption"`
	ReplyTo         *telegramMessage `json:"reply_to_message"`
}

type telegramUpdate struct {
	UpdateID int64            `json:"update_id"`
	Message  *telegramMessage `json:"message"`
}

// toEvent returns false for updates the club ignores (non-messages, bots,
// channel posts, empty text).
func (u telegramUpdate) toEvent() (InboundEvent, bool) {
	msg := u.Message
	if msg == nil || msg.From == nil || msg.From.IsBot {
		return InboundEvent{}, false
	}
	text := msg.Text
	if text == "" {
		text = msg.Caption
	}
	if text == "" {
		return InboundEvent{}, false
	}

	ev := InboundEvent{
		ActorID:   msg.From.ID,
		ChatID:    msg.Chat.ID,
		ThreadID:  msg.MessageThreadID,
		RawText:   text,
		Username:  msg.From.Username,
		FirstName: msg.From.FirstName,
		LastName:  msg.From.LastName,
	}
	switch msg.Chat.Type {
	case "private":
		ev.Chat = ChatDirect
	case "group", "supergroup":
		ev.Chat = ChatGroup
	default:
		return InboundEvent{}, false
	}
	if msg.ReplyTo != nil && msg.ReplyTo.From != nil {
		id := msg.ReplyTo.From.ID
		ev.ReplyTargetID = &id
	}
	return ev, true
}

// SetupWebhookRoutes mounts POST /webhook. Telegram retries any non-2xx
// answer, so malformed or ignored updates are still acknowledged.
func SetupWebhookRoutes(app *fiber.App, dispatcher *Dispatcher, secret string) {
	app.Post("/webhook", middleware.WebhookSecretMiddleware(secret), func(c *fiber.Ctx) error {
		var update telegramUpdate
		if err := c.BodyParser(&update); err != nil {
			log.Printf("⚠️ [Webhook] undecodable update: %v", err)
			return c.JSON(fiber.Map{"ok": true})
		}
		ev, ok := update.toEvent()
		if !ok {
			return c.JSON(fiber.Map{"ok": true})
		}
		log.Printf("[Webhook] update=%d from=%d chat=%s", update.UpdateID, ev.ActorID, ev.Chat)
		dispatcher.Dispatch(c.UserContext(), ev)
		return c.JSON(fiber.Map{"ok": true})
	})
}
