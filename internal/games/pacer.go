package games

import (
	"context"
	"time"
)

// Pacer inserts presentation delays between sequential outcomes.
type Pacer interface {
	Pace(ctx context.Context) error
}

// NoPacer never waits.
type NoPacer struct{}

func (NoPacer) Pace(ctx context.Context) error {
	return ctx.Err()
}

// SleepPacer waits Delay per call, returning early with the
// context's error if it is cancelled.
type SleepPacer struct {
	Delay time.Duration
}

func (p SleepPacer) Pace(ctx context.Context) error {
	if p.Delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(p.Delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// NewPacer returns SleepPacer for a positive delay and NoPacer otherwise.
func NewPacer(delay time.Duration) Pacer {
	if delay <= 0 {
		return NoPacer{}
	}
	return SleepPacer{Delay: delay}
}
