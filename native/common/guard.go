package common

import (
	"errors"
	"fmt"
)

var ErrOperationPaused = errors.New("operation paused")

// PauseView reports whether an action is currently disabled. Reserve configs
// implement it with their per-action pause flags.
type PauseView interface {
	IsPaused(action string) bool
}

func Guard(p PauseView, action string) error {
	if p == nil || action == "" {
		return nil
	}
	if p.IsPaused(action) {
		return fmt.Errorf("%w: %s", ErrOperationPaused, action)
	}
	return nil
}
