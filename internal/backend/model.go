package backend

import (
	"fmt"
	"sync"
)

// DefaultHiddenLayers is the hidden-layer layout between input and output.
var DefaultHiddenLayers = []int{64, 32}

// Model is a layered scoring function: input -> hidden... -> output. It is
// purely structural; trained weights are not required.
type Model struct {
	Kind    GameKind
	Layers  []int
	Backend string

	mu       sync.Mutex
	state    any
	release  func()
	released bool
}

func newModel(backend string, kind GameKind, inputSize int, hidden []int) (*Model, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: unknown game kind %q", ErrShapeMismatch, kind)
	}
	if inputSize <= 0 {
		return nil, fmt.Errorf("%w: input size must be positive, got %d", ErrShapeMismatch, inputSize)
	}
	layers := make([]int, 0, len(hidden)+2)
	layers = append(layers, inputSize)
	for _, h := range hidden {
		if h <= 0 {
			return nil, fmt.Errorf("%w: hidden layer width must be positive, got %d", ErrShapeMismatch, h)
		}
		layers = append(layers, h)
	}
	layers = append(layers, kind.OutputUnits())

	return &Model{Kind: kind, Layers: layers, Backend: backend}, nil
}

// InputSize is the expected feature vector length.
func (m *Model) InputSize() int {
	return m.Layers[0]
}

// OutputUnits is the number of scores Predict returns for this model.
func (m *Model) OutputUnits() int {
	return m.Layers[len(m.Layers)-1]
}

// Release frees backend state. Repeated calls and nil receivers are no-ops.
func (m *Model) Release() {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.released {
		return
	}
	if m.release != nil {
		m.release()
	}
	m.state = nil
	m.release = nil
	m.released = true
}

// Released reports whether Release has run.
func (m *Model) Released() bool {
	if m == nil {
		return true
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.released
}

// checkInput validates a model/feature pair before scoring.
func checkInput(m *Model, features []float64) error {
	if m == nil {
		return fmt.Errorf("%w: nil model", ErrShapeMismatch)
	}
	if len(features) != m.InputSize() {
		return fmt.Errorf("%w: model %s expects %d features, got %d", ErrShapeMismatch, m.Kind, m.InputSize(), len(features))
	}
	return nil
}
