package services

import (
	"context"
	"strconv"
)

// Recipient is a chat id or public @channel name.
type Recipient string

func DirectRecipient(memberID int64) Recipient {
	return Recipient(strconv.FormatInt(memberID, 10))
}

type NotifyOptions struct {
	ThreadID            int64
	DisableNotification bool
}

type Receipt struct {
	MessageID int64
}

// Notifier delivers text to a chat. The club never makes a decision based on
// the outcome; errors are only logged.
type Notifier interface {
	Notify(ctx context.Context, to Recipient, text string, opts NotifyOptions) (Receipt, error)
}

// NopNotifier drops everything. Used by offline commands.
type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, Recipient, string, NotifyOptions) (Receipt, error) {
	return Receipt{}, nil
}
