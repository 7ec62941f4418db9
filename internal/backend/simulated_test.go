package backend

import (
	"context"
	"errors"
	"math/rand/v2"
	"testing"

	"github.com/MJE43/stake-pf-predict-go/internal/engine"
)

func testFeatures(t *testing.T, size int) engine.FeatureVector {
	t.Helper()
	h, err := engine.NewHasher(engine.DefaultAlgorithm)
	if err != nil {
		t.Fatalf("NewHasher: %v", err)
	}
	d, err := h.Hash(engine.SeedTriple{ClientSeed: "abc", ServerSeedHash: "def", Nonce: 0})
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	v, err := engine.BuildFeatures(d, size)
	if err != nil {
		t.Fatalf("BuildFeatures: %v", err)
	}
	return v
}

func TestSimulatedShapeContract(t *testing.T) {
	b := NewSimulatedBackend(WithRandSource(rand.NewPCG(1, 2)))
	if err := b.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	tests := []struct {
		kind      GameKind
		wantUnits int
	}{
		{GameMines, 25},
		{GameCoinflip, 1},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			for _, size := range []int{1, 16, 128} {
				model, err := b.BuildModel(tt.kind, size)
				if err != nil {
					t.Fatalf("BuildModel: %v", err)
				}
				if model.OutputUnits() != tt.wantUnits {
					t.Fatalf("OutputUnits() = %d, want %d", model.OutputUnits(), tt.wantUnits)
				}

				scores, err := b.Predict(context.Background(), model, testFeatures(t, size))
				if err != nil {
					t.Fatalf("Predict: %v", err)
				}
				if len(scores) != tt.wantUnits {
					t.Errorf("len(scores) = %d, want %d", len(scores), tt.wantUnits)
				}
				for i, s := range scores {
					if s < 0 || s > 1 {
						t.Errorf("score %d = %v out of [0,1]", i, s)
					}
				}
				b.Dispose(model)
			}
		})
	}
}

func TestSimulatedLayers(t *testing.T) {
	b := NewSimulatedBackend()
	model, err := b.BuildModel(GameMines, 128)
	if err != nil {
		t.Fatalf("BuildModel: %v", err)
	}
	want := []int{128, 64, 32, 25}
	if len(model.Layers) != len(want) {
		t.Fatalf("Layers = %v, want %v", model.Layers, want)
	}
	for i := range want {
		if model.Layers[i] != want[i] {
			t.Errorf("Layers = %v, want %v", model.Layers, want)
			break
		}
	}
}

func TestSimulatedReproducibleWithSource(t *testing.T) {
	features := testFeatures(t, 128)
	run := func() []float64 {
		b := NewSimulatedBackend(WithRandSource(rand.NewPCG(42, 42)))
		m, _ := b.BuildModel(GameMines, len(features))
		defer b.Dispose(m)
		out, err := b.Predict(context.Background(), m, features)
		if err != nil {
			t.Fatalf("Predict: %v", err)
		}
		return out
	}

	a, b := run(), run()
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("score %d differs: %v vs %v", i, a[i], b[i])
		}
	}
}

func TestSimulatedShapeMismatch(t *testing.T) {
	b := NewSimulatedBackend()
	m, _ := b.BuildModel(GameCoinflip, 128)

	_, err := b.Predict(context.Background(), m, testFeatures(t, 64))
	if !errors.Is(err, ErrShapeMismatch) {
		t.Fatalf("error = %v, want ErrShapeMismatch", err)
	}

	if _, err := b.Predict(context.Background(), nil, testFeatures(t, 64)); !errors.Is(err, ErrShapeMismatch) {
		t.Fatalf("nil model error = %v, want ErrShapeMismatch", err)
	}
}

func TestBuildModelRejectsBadShapes(t *testing.T) {
	b := NewSimulatedBackend()
	if _, err := b.BuildModel(GameMines, 0); !errors.Is(err, ErrShapeMismatch) {
		t.Errorf("zero input error = %v, want ErrShapeMismatch", err)
	}
	if _, err := b.BuildModel(GameKind("plinko"), 128); !errors.Is(err, ErrShapeMismatch) {
		t.Errorf("unknown kind error = %v, want ErrShapeMismatch", err)
	}
	bad := NewSimulatedBackend(WithSimulatedHiddenLayers([]int{16, 0}))
	if _, err := bad.BuildModel(GameMines, 8); !errors.Is(err, ErrShapeMismatch) {
		t.Errorf("zero hidden width error = %v, want ErrShapeMismatch", err)
	}
}

func TestDisposeIdempotent(t *testing.T) {
	b := NewSimulatedBackend()
	m, _ := b.BuildModel(GameMines, 128)

	b.Dispose(m)
	b.Dispose(m)
	b.Dispose(nil)
	b.Dispose()

	var typedNil *Model
	b.Dispose(typedNil)

	if !m.Released() {
		t.Fatal("model not released after Dispose")
	}

	_, err := b.Predict(context.Background(), m, testFeatures(t, 128))
	var predErr *PredictionError
	if !errors.As(err, &predErr) {
		t.Fatalf("error = %v, want *PredictionError", err)
	}
	if !errors.Is(err, ErrModelReleased) {
		t.Errorf("error = %v, want ErrModelReleased", err)
	}
}

func TestSimulatedCancelledContext(t *testing.T) {
	b := NewSimulatedBackend()
	m, _ := b.BuildModel(GameCoinflip, 8)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := b.Predict(ctx, m, testFeatures(t, 8))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
}

func TestParseGameKind(t *testing.T) {
	tests := []struct {
		in   string
		want GameKind
		ok   bool
	}{
		{"mines", GameMines, true},
		{" Mines ", GameMines, true},
		{"1", GameMines, true},
		{"coinflip", GameCoinflip, true},
		{"2", GameCoinflip, true},
		{"flip", GameCoinflip, true},
		{"dice", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, err := ParseGameKind(tt.in)
		if tt.ok {
			if err != nil || got != tt.want {
				t.Errorf("ParseGameKind(%q) = %q, %v; want %q", tt.in, got, err, tt.want)
			}
			continue
		}
		if !errors.Is(err, engine.ErrInvalidInput) {
			t.Errorf("ParseGameKind(%q) error = %v, want ErrInvalidInput", tt.in, err)
		}
	}
}
