//go:build noaccel

package backend

import (
	"context"
	"fmt"

	"github.com/MJE43/stake-pf-predict-go/internal/engine"
)

// AcceleratedBackend is a stub used when the noaccel build tag is set. It
// never initializes, so the selector always degrades to the simulated backend.
type AcceleratedBackend struct {
	cfg AcceleratedConfig
}

// NewAcceleratedBackend returns the stub backend.
func NewAcceleratedBackend(cfg AcceleratedConfig) *AcceleratedBackend {
	return &AcceleratedBackend{cfg: cfg}
}

func (b *AcceleratedBackend) Name() string { return acceleratedName }

func (b *AcceleratedBackend) Mode() Mode { return ModeAccelerated }

// Describe is empty for the stub.
func (b *AcceleratedBackend) Describe() string { return "" }

// Initialize always fails.
func (b *AcceleratedBackend) Initialize(ctx context.Context) error {
	return &UnavailableError{Backend: acceleratedName, Reason: "native kernels not built in (rebuild without -tags noaccel)"}
}

func (b *AcceleratedBackend) BuildModel(kind GameKind, inputSize int) (*Model, error) {
	return nil, fmt.Errorf("%s: %w", acceleratedName, ErrNotInitialized)
}

func (b *AcceleratedBackend) Predict(ctx context.Context, model *Model, features engine.FeatureVector) ([]float64, error) {
	return nil, fmt.Errorf("%s: %w", acceleratedName, ErrNotInitialized)
}

func (b *AcceleratedBackend) Dispose(handles ...Handle) {
	disposeAll(handles)
}
