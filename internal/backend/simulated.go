package backend

import (
	"context"
	"math/rand/v2"
	"sync"

	"github.com/MJE43/stake-pf-predict-go/internal/engine"
)

const simulatedName = "simulated"

// SimulatedBackend is always available. It ignores model weights and returns
// uniform draws of the correct output width.
type SimulatedBackend struct {
	hidden []int

	mu  sync.Mutex
	rng *rand.Rand
}

// SimulatedOption configures a SimulatedBackend.
type SimulatedOption func(*SimulatedBackend)

// WithRandSource makes draws reproducible. rand.Rand is not safe for
// concurrent use; the backend serializes access.
func WithRandSource(src rand.Source) SimulatedOption {
	return func(b *SimulatedBackend) {
		b.rng = rand.New(src)
	}
}

// WithSimulatedHiddenLayers overrides the structural hidden layers.
func WithSimulatedHiddenLayers(hidden []int) SimulatedOption {
	return func(b *SimulatedBackend) {
		b.hidden = append([]int(nil), hidden...)
	}
}

// NewSimulatedBackend returns a backend seeded from the runtime's entropy.
func NewSimulatedBackend(opts ...SimulatedOption) *SimulatedBackend {
	b := &SimulatedBackend{
		hidden: DefaultHiddenLayers,
		rng:    rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *SimulatedBackend) Name() string { return simulatedName }

func (b *SimulatedBackend) Mode() Mode { return ModeSimulated }

// Initialize never fails.
func (b *SimulatedBackend) Initialize(ctx context.Context) error {
	return nil
}

func (b *SimulatedBackend) BuildModel(kind GameKind, inputSize int) (*Model, error) {
	return newModel(simulatedName, kind, inputSize, b.hidden)
}

// Predict accepts models from any backend since only the shape is used.
func (b *SimulatedBackend) Predict(ctx context.Context, model *Model, features engine.FeatureVector) ([]float64, error) {
	if err := checkInput(model, features); err != nil {
		return nil, err
	}
	if model.Released() {
		return nil, &PredictionError{Backend: simulatedName, Kind: model.Kind, Err: ErrModelReleased}
	}
	if err := ctx.Err(); err != nil {
		return nil, &PredictionError{Backend: simulatedName, Kind: model.Kind, Err: err}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	scores := make([]float64, model.OutputUnits())
	for i := range scores {
		scores[i] = b.rng.Float64()
	}
	return scores, nil
}

func (b *SimulatedBackend) Dispose(handles ...Handle) {
	disposeAll(handles)
}
