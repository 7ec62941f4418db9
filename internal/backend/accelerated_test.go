//go:build !noaccel

package backend

import (
	"context"
	"errors"
	"testing"
)

func readyAccelerated(t *testing.T) *AcceleratedBackend {
	t.Helper()
	b := NewAcceleratedBackend(AcceleratedConfig{Probe: func() error { return nil }})
	if err := b.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	return b
}

func TestAcceleratedDisabled(t *testing.T) {
	b := NewAcceleratedBackend(AcceleratedConfig{Disabled: true})
	err := b.Initialize(context.Background())
	if !errors.Is(err, ErrBackendUnavailable) {
		t.Fatalf("error = %v, want ErrBackendUnavailable", err)
	}
	var unavailable *UnavailableError
	if !errors.As(err, &unavailable) || unavailable.Reason != "disabled by configuration" {
		t.Errorf("error = %#v", err)
	}
}

func TestAcceleratedProbeFailure(t *testing.T) {
	probeErr := errors.New("no AVX2")
	b := NewAcceleratedBackend(AcceleratedConfig{Probe: func() error { return probeErr }})

	err := b.Initialize(context.Background())
	if !errors.Is(err, ErrBackendUnavailable) {
		t.Fatalf("error = %v, want ErrBackendUnavailable", err)
	}
	if !errors.Is(err, probeErr) {
		t.Errorf("error = %v, want wrapped probe error", err)
	}
	if _, err := b.BuildModel(GameMines, 128); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("BuildModel error = %v, want ErrNotInitialized", err)
	}
}

func TestAcceleratedCancelledInit(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	b := NewAcceleratedBackend(AcceleratedConfig{Probe: func() error { return nil }})
	if err := b.Initialize(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
}

func TestAcceleratedShapeContract(t *testing.T) {
	b := readyAccelerated(t)

	for _, kind := range Kinds() {
		t.Run(string(kind), func(t *testing.T) {
			model, err := b.BuildModel(kind, 128)
			if err != nil {
				t.Fatalf("BuildModel: %v", err)
			}
			defer b.Dispose(model)

			scores, err := b.Predict(context.Background(), model, testFeatures(t, 128))
			if err != nil {
				t.Fatalf("Predict: %v", err)
			}
			if len(scores) != kind.OutputUnits() {
				t.Fatalf("len(scores) = %d, want %d", len(scores), kind.OutputUnits())
			}
			for i, s := range scores {
				if s < 0 || s > 1 {
					t.Errorf("score %d = %v out of [0,1]", i, s)
				}
			}
		})
	}
}

func TestAcceleratedDeterministicPerModel(t *testing.T) {
	b := readyAccelerated(t)
	model, err := b.BuildModel(GameMines, 32)
	if err != nil {
		t.Fatalf("BuildModel: %v", err)
	}
	defer b.Dispose(model)

	features := testFeatures(t, 32)
	first, err := b.Predict(context.Background(), model, features)
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	second, err := b.Predict(context.Background(), model, features)
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("score %d changed between calls: %v vs %v", i, first[i], second[i])
		}
	}
}

func TestAcceleratedRejectsForeignAndReleasedModels(t *testing.T) {
	b := readyAccelerated(t)

	foreign, _ := NewSimulatedBackend().BuildModel(GameCoinflip, 16)
	_, err := b.Predict(context.Background(), foreign, testFeatures(t, 16))
	var predErr *PredictionError
	if !errors.As(err, &predErr) {
		t.Fatalf("foreign model error = %v, want *PredictionError", err)
	}

	model, _ := b.BuildModel(GameCoinflip, 16)
	b.Dispose(model, model)
	if _, err := b.Predict(context.Background(), model, testFeatures(t, 16)); !errors.Is(err, ErrModelReleased) {
		t.Fatalf("released model error = %v, want ErrModelReleased", err)
	}
}

func TestAcceleratedInitializeIdempotent(t *testing.T) {
	calls := 0
	b := NewAcceleratedBackend(AcceleratedConfig{Probe: func() error { calls++; return nil }})
	for i := 0; i < 3; i++ {
		if err := b.Initialize(context.Background()); err != nil {
			t.Fatalf("Initialize: %v", err)
		}
	}
	if calls != 1 {
		t.Errorf("probe ran %d times, want 1", calls)
	}
}
