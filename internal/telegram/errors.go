package telegram

import (
	"fmt"
	"time"

	"github.com/gotd/td/tgerr"
)

// FloodWaitError is a FLOOD_WAIT reply. It satisfies membership.RateLimited.
type FloodWaitError struct {
	Wait time.Duration
	Err  error
}

func (e *FloodWaitError) Error() string {
	return fmt.Sprintf("flood wait %s: %v", e.Wait, e.Err)
}

func (e *FloodWaitError) Unwrap() error { return e.Err }

func (e *FloodWaitError) RetryAfter() time.Duration { return e.Wait }

// wrap turns FLOOD_WAIT replies into FloodWaitError and annotates the rest.
func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	if d, ok := tgerr.AsFloodWait(err); ok {
		return &FloodWaitError{Wait: d, Err: fmt.Errorf("%s: %w", op, err)}
	}
	return fmt.Errorf("%s: %w", op, err)
}
