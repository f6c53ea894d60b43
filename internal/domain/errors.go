package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrRateLimited   = errors.New("rate limited")
	ErrWSDisconnect  = errors.New("websocket disconnected")
	ErrLockHeld      = errors.New("lock already held")
	ErrUnknownChain  = errors.New("unknown chain")

	// Specific not-found conditions satisfy errors.Is against ErrNotFound.
	ErrVaultNotFound    = fmt.Errorf("vault %w", ErrNotFound)
	ErrNoActivePosition = fmt.Errorf("active position %w", ErrNotFound)
)
