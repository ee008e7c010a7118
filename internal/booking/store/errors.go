package store

import (
	"fmt"

	"minister/pkg/platform/sentinel"
)

// Ledger facts. Each wraps a sentinel so callers may match either.
var (
	ErrSlotTaken     = fmt.Errorf("slot already held by another subject: %w", sentinel.ErrConflict)
	ErrAlreadyBooked = fmt.Errorf("subject already holds a slot in this category: %w", sentinel.ErrConflict)
	ErrNotBooked     = fmt.Errorf("subject has no booking in this category: %w", sentinel.ErrNotFound)
	ErrStaleChange   = fmt.Errorf("booking changed since migration was staged: %w", sentinel.ErrInvalidState)
)
