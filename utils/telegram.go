// utils/telegram.go
package utils

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"

	"reading-club-system/services"
)

// TelegramClient sends messages through the Bot API. It implements
// services.Notifier.
type TelegramClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

func NewTelegramClient(baseURL, token string) *TelegramClient {
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}
	return &TelegramClient{baseURL: baseURL, token: token, httpClient: HTTPClient}
}

type sendMessageRequest struct {
	ChatID              string `json:"chat_id"`
	Text                string `json:"text"`
	ParseMode           string `json:"parse_mode,omitempty"`
	MessageThreadID     int64  `json:"message_thread_id,omitempty"`
	DisableNotification bool   `json:"disable_notification,omitempty"`
	DisablePreview      bool   `json:"disable_web_page_preview,omitempty"`
}

type setWebhookRequest struct {
	URL            string   `json:"url"`
	SecretToken    string   `json:"secret_token,omitempty"`
	AllowedUpdates []string `json:"allowed_updates,omitempty"`
}

type apiResponse struct {
	OK          bool            `json:"ok"`
	Description string          `json:"description"`
	Result      json.RawMessage `json:"result"`
}

func (c *TelegramClient) Notify(ctx context.Context, to services.Recipient, text string, opts services.NotifyOptions) (services.Receipt, error) {
	var msg struct {
		MessageID int64 `json:"message_id"`
	}
	err := c.call(ctx, "sendMessage", sendMessageRequest{
		ChatID:              string(to),
		Text:                text,
		ParseMode:           "HTML",
		MessageThreadID:     opts.ThreadID,
		DisableNotification: opts.DisableNotification,
	}, &msg)
	if err != nil {
		return services.Receipt{}, err
	}
	return services.Receipt{MessageID: msg.MessageID}, nil
}

// SetWebhook points Telegram at webhookURL; updates then carry secret in the
// X-Telegram-Bot-Api-Secret-Token header.
func (c *TelegramClient) SetWebhook(ctx context.Context, webhookURL, secret string) error {
	return c.call(ctx, "setWebhook", setWebhookRequest{
		URL:            webhookURL,
		SecretToken:    secret,
		AllowedUpdates: []string{"message"},
	}, nil)
}

func (c *TelegramClient) call(ctx context.Context, method string, payload, result any) error {
	base, err := url.Parse(c.baseURL)
	if err != nil {
		return fmt.Errorf("invalid telegram api url '%s': %w", c.baseURL, err)
	}
	endpoint := base.JoinPath("bot"+c.token, method).String()

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s: %w", method, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Printf("[Telegram] ❌ %s failed: %v", method, err)
		return fmt.Errorf("telegram %s: %w", method, err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	var out apiResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&out); err != nil {
		return fmt.Errorf("telegram %s: decode response (status %d): %w", method, resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK || !out.OK {
		return fmt.Errorf("telegram %s: status %d: %s", method, resp.StatusCode, out.Description)
	}
	if result != nil && len(out.Result) > 0 {
		if err := json.Unmarshal(out.Result, result); err != nil {
			return fmt.Errorf("telegram %s: decode result: %w", method, err)
		}
	}
	return nil
}
