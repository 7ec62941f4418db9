//go:build !noaccel

package backend

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"
	"sync"

	"github.com/klauspost/cpuid/v2"
	"github.com/openfluke/loom/nn"

	"github.com/MJE43/stake-pf-predict-go/internal/engine"
)

// AcceleratedBackend runs the layered model through loom's dense kernels.
// It is only usable on hosts with the vector extensions those kernels are
// tuned for.
type AcceleratedBackend struct {
	cfg AcceleratedConfig

	mu     sync.Mutex
	ready  bool
	device string
}

// NewAcceleratedBackend returns an uninitialized backend.
func NewAcceleratedBackend(cfg AcceleratedConfig) *AcceleratedBackend {
	return &AcceleratedBackend{cfg: cfg}
}

func (b *AcceleratedBackend) Name() string { return acceleratedName }

func (b *AcceleratedBackend) Mode() Mode { return ModeAccelerated }

// Describe returns the detected device once initialized.
func (b *AcceleratedBackend) Describe() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.device
}

// Initialize probes the host and runs a kernel self-test.
func (b *AcceleratedBackend) Initialize(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.ready {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return &UnavailableError{Backend: acceleratedName, Reason: "initialization cancelled", Err: err}
	}
	if b.cfg.Disabled {
		return &UnavailableError{Backend: acceleratedName, Reason: "disabled by configuration"}
	}

	probe := b.cfg.Probe
	if probe == nil {
		probe = hostProbe
	}
	if err := probe(); err != nil {
		return &UnavailableError{Backend: acceleratedName, Reason: "host probe failed", Err: err}
	}
	if err := selfTest(); err != nil {
		return &UnavailableError{Backend: acceleratedName, Reason: "kernel self-test failed", Err: err}
	}

	b.device = fmt.Sprintf("%s (%d cores, %s)", cpuid.CPU.BrandName, cpuid.CPU.PhysicalCores, runtime.GOARCH)
	b.ready = true
	return nil
}

func (b *AcceleratedBackend) BuildModel(kind GameKind, inputSize int) (*Model, error) {
	b.mu.Lock()
	ready := b.ready
	b.mu.Unlock()
	if !ready {
		return nil, fmt.Errorf("%s: %w", acceleratedName, ErrNotInitialized)
	}

	m, err := newModel(acceleratedName, kind, inputSize, b.cfg.hidden())
	if err != nil {
		return nil, err
	}
	m.state = buildNetwork(m.Layers)
	return m, nil
}

func (b *AcceleratedBackend) Predict(ctx context.Context, model *Model, features engine.FeatureVector) ([]float64, error) {
	if err := checkInput(model, features); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, &PredictionError{Backend: acceleratedName, Kind: model.Kind, Err: err}
	}

	model.mu.Lock()
	defer model.mu.Unlock()
	if model.released {
		return nil, &PredictionError{Backend: acceleratedName, Kind: model.Kind, Err: ErrModelReleased}
	}
	net, ok := model.state.(*nn.Network)
	if !ok {
		return nil, &PredictionError{
			Backend: acceleratedName,
			Kind:    model.Kind,
			Err:     fmt.Errorf("model built by %s backend has no kernel state", model.Backend),
		}
	}

	out, err := forward(net, features.Float32())
	if err != nil {
		return nil, &PredictionError{Backend: acceleratedName, Kind: model.Kind, Err: err}
	}
	if len(out) != model.OutputUnits() {
		return nil, fmt.Errorf("%w: kernel produced %d scores, model %s declares %d", ErrShapeMismatch, len(out), model.Kind, model.OutputUnits())
	}

	scores := make([]float64, len(out))
	for i, v := range out {
		x := float64(v)
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return nil, &PredictionError{Backend: acceleratedName, Kind: model.Kind, Err: fmt.Errorf("score %d is not finite", i)}
		}
		scores[i] = math.Min(1, math.Max(0, x))
	}
	return scores, nil
}

func (b *AcceleratedBackend) Dispose(handles ...Handle) {
	disposeAll(handles)
}

// buildNetwork lays out dense layers with a sigmoid head so scores land in [0,1].
func buildNetwork(layers []int) *nn.Network {
	depth := len(layers) - 1
	net := nn.NewNetwork(layers[0], 1, 1, depth)
	net.BatchSize = 1
	for i := 0; i < depth; i++ {
		act := nn.ActivationLeakyReLU
		if i == depth-1 {
			act = nn.ActivationSigmoid
		}
		net.SetLayer(0, 0, i, nn.InitDenseLayer(layers[i], layers[i+1], act))
	}
	return net
}

func forward(net *nn.Network, input []float32) (out []float32, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("kernel panic: %v", r)
		}
	}()
	out, _ = net.ForwardCPU(input)
	return out, nil
}

func hostProbe() error {
	switch runtime.GOARCH {
	case "amd64":
		if !cpuid.CPU.Supports(cpuid.AVX2, cpuid.FMA3) {
			return fmt.Errorf("cpu %q lacks AVX2/FMA3", cpuid.CPU.BrandName)
		}
	case "arm64":
		if !cpuid.CPU.Supports(cpuid.ASIMD) {
			return fmt.Errorf("cpu %q lacks ASIMD", cpuid.CPU.BrandName)
		}
	default:
		return fmt.Errorf("no vector kernels for %s", runtime.GOARCH)
	}
	return nil
}

func selfTest() error {
	const width = 8
	net := buildNetwork([]int{width, 4, 1})
	input := make([]float32, width)
	for i := range input {
		input[i] = 0.5
	}
	out, err := forward(net, input)
	if err != nil {
		return err
	}
	if len(out) != 1 {
		return fmt.Errorf("expected 1 output, got %d", len(out))
	}
	if v := float64(out[0]); math.IsNaN(v) || math.IsInf(v, 0) {
		return errors.New("non-finite output")
	}
	return nil
}
