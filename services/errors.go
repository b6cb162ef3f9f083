package services

import (
	"errors"
	"time"
)

var (
	ErrInvalidAmount    = errors.New("amount must be positive")
	ErrBalanceOverflow  = errors.New("balance would overflow")
	ErrNotRegistered    = errors.New("member is not registered")
	ErrInvalidReference = errors.New("invalid article link")
	ErrDuelActive       = errors.New("a duel is already running")
	ErrUnknownDuel      = errors.New("duel not found")
)

// Clock returns the current time. Services take one so tests can drive time.
type Clock func() time.Time
