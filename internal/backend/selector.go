package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Status is a snapshot of the selector for health and CLI output.
type Status struct {
	Mode          Mode      `json:"mode"`
	Backend       string    `json:"backend"`
	Device        string    `json:"device,omitempty"`
	Degraded      bool      `json:"degraded"`
	Reason        string    `json:"reason,omitempty"`
	InitializedAt time.Time `json:"initialized_at,omitempty"`
}

type selection struct {
	mode    Mode
	backend InferenceBackend
	reason  string
	at      time.Time
}

// Selector decides once, at startup, which backend serves predictions.
// States: Uninitialized -> Accelerated, or Uninitialized -> Simulated. Both
// targets are terminal; nothing moves the selector out of Simulated.
type Selector struct {
	primary  InferenceBackend
	fallback InferenceBackend
	logger   *slog.Logger

	once    sync.Once
	initErr error
	current atomic.Pointer[selection]
}

// NewSelector wires an accelerated primary and an always-available fallback.
// primary may be nil, in which case Init goes straight to the fallback.
func NewSelector(primary, fallback InferenceBackend, logger *slog.Logger) *Selector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Selector{
		primary:  primary,
		fallback: fallback,
		logger:   logger.With("component", "backend_selector"),
	}
}

// Init performs the one-time selection. Later calls return the first result
// without touching either backend again.
func (s *Selector) Init(ctx context.Context) error {
	s.once.Do(func() {
		s.initErr = s.initialize(ctx)
	})
	return s.initErr
}

func (s *Selector) initialize(ctx context.Context) error {
	reason := "no accelerated backend configured"
	if s.primary != nil {
		start := time.Now()
		err := s.primary.Initialize(ctx)
		if err == nil {
			s.current.Store(&selection{mode: ModeAccelerated, backend: s.primary, at: time.Now()})
			s.logger.Info("backend selected",
				"mode", ModeAccelerated,
				"backend", s.primary.Name(),
				"init_duration", time.Since(start))
			return nil
		}
		reason = err.Error()
		if !errors.Is(err, ErrBackendUnavailable) {
			reason = fmt.Sprintf("%s backend unavailable: %v", s.primary.Name(), err)
		}
	}

	if s.fallback == nil {
		return fmt.Errorf("no fallback backend: %w", ErrNotInitialized)
	}
	if err := s.fallback.Initialize(ctx); err != nil {
		return fmt.Errorf("initialize %s backend: %w", s.fallback.Name(), err)
	}

	s.current.Store(&selection{mode: ModeSimulated, backend: s.fallback, reason: reason, at: time.Now()})
	s.logger.Warn("accelerated backend unavailable; running degraded",
		"mode", ModeSimulated,
		"backend", s.fallback.Name(),
		"reason", reason)
	return nil
}

// CurrentMode returns the selected mode, or ModeUninitialized before Init.
func (s *Selector) CurrentMode() Mode {
	sel := s.current.Load()
	if sel == nil {
		return ModeUninitialized
	}
	return sel.mode
}

// ActiveBackend returns the backend serving predictions.
func (s *Selector) ActiveBackend() (InferenceBackend, error) {
	sel := s.current.Load()
	if sel == nil {
		return nil, fmt.Errorf("selector: %w", ErrNotInitialized)
	}
	return sel.backend, nil
}

// Degraded reports whether the selector fell back to the simulated backend.
func (s *Selector) Degraded() bool {
	return s.CurrentMode() == ModeSimulated
}

// Reason is the recorded cause of degradation, empty otherwise.
func (s *Selector) Reason() string {
	if sel := s.current.Load(); sel != nil {
		return sel.reason
	}
	return ""
}

// Status returns a point-in-time snapshot.
func (s *Selector) Status() Status {
	sel := s.current.Load()
	if sel == nil {
		return Status{Mode: ModeUninitialized}
	}
	st := Status{
		Mode:          sel.mode,
		Backend:       sel.backend.Name(),
		Degraded:      sel.mode == ModeSimulated,
		Reason:        sel.reason,
		InitializedAt: sel.at,
	}
	if d, ok := sel.backend.(interface{ Describe() string }); ok {
		st.Device = d.Describe()
	}
	return st
}
