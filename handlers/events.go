package handlers

import (
	"strings"
)

type ChatContext string

const (
	ChatDirect ChatContext = "direct"
	ChatGroup  ChatContext = "group"
)

// InboundEvent is one chat message, already stripped of transport details.
type InboundEvent struct {
	ActorID  int64
	Chat     ChatContext
	ChatID   int64
	ThreadID int64
	RawText  string
	// ReplyTargetID is the author of the message this one replies to.
	ReplyTargetID *int64

	Username  string
	FirstName string
	LastName  string
}

// Command splits "/cmd@bot args" into "cmd" and "args". ok is false for
// plain text.
func (ev InboundEvent) Command() (name, args string, ok bool) {
	text := strings.TrimSpace(ev.RawText)
	if !strings.HasPrefix(text, "/") {
		return "", "", false
	}
	head, rest, _ := strings.Cut(text, " ")
	if i := strings.IndexAny(head, "\n"); i >= 0 {
		rest = head[i+1:] + " " + rest
		head = head[:i]
	}
	head = strings.TrimPrefix(head, "/")
	if at := strings.IndexByte(head, '@'); at >= 0 {
		head = head[:at]
	}
	return strings.ToLower(head), strings.TrimSpace(rest), head != ""
}
