// Package pipeline orchestrates one prediction: seeds -> digest -> feature
// vector -> active backend -> game formatter.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/MJE43/stake-pf-predict-go/internal/backend"
	"github.com/MJE43/stake-pf-predict-go/internal/engine"
	"github.com/MJE43/stake-pf-predict-go/internal/games"
	"github.com/MJE43/stake-pf-predict-go/internal/logging"
)

const tracerName = "github.com/MJE43/stake-pf-predict-go/internal/pipeline"

// Prediction is a formatted result plus the metadata needed to audit it.
type Prediction struct {
	ID          uuid.UUID         `json:"id"`
	Kind        backend.GameKind  `json:"game"`
	Mode        backend.Mode      `json:"mode"`
	Backend     string            `json:"backend"`
	Algorithm   string            `json:"algorithm"`
	Seeds       engine.SeedTriple `json:"seeds"`
	DigestHex   string            `json:"digest"`
	FeatureSize int               `json:"feature_size"`
	Result      games.Result      `json:"result"`
	CreatedAt   time.Time         `json:"created_at"`
}

// Recorder persists successful predictions. Recording failures are logged
// and never fail the prediction.
type Recorder interface {
	Record(ctx context.Context, p Prediction) error
}

// Options configures a Pipeline. Zero values select defaults.
type Options struct {
	Algorithm   string
	FeatureSize int
	Formatters  games.Formatters
	Logger      *slog.Logger
	Tracer      trace.Tracer
	Recorder    Recorder
	Now         func() time.Time
}

// Pipeline is safe for concurrent use but serializes predictions: at most
// one is in flight at a time.
type Pipeline struct {
	hasher      *engine.Hasher
	selector    *backend.Selector
	featureSize int
	formatters  games.Formatters
	logger      *slog.Logger
	tracer      trace.Tracer
	recorder    Recorder
	now         func() time.Time

	mu sync.Mutex
}

// New builds a pipeline around an initialized selector.
func New(selector *backend.Selector, opts Options) (*Pipeline, error) {
	if selector == nil {
		return nil, fmt.Errorf("pipeline: nil selector")
	}
	hasher, err := engine.NewHasher(opts.Algorithm)
	if err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}

	size := opts.FeatureSize
	if size == 0 {
		size = engine.DefaultVectorSize
	}
	if size < 0 {
		return nil, fmt.Errorf("pipeline: %w, got %d", engine.ErrInvalidSize, size)
	}

	formatters := opts.Formatters
	if formatters == nil {
		formatters = games.DefaultFormatters(games.Options{SafeProbability: games.DefaultSafeProbability})
	}
	for _, kind := range backend.Kinds() {
		if formatters[kind] == nil {
			return nil, fmt.Errorf("pipeline: no formatter for game %q", kind)
		}
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	tracer := opts.Tracer
	if tracer == nil {
		tracer = otel.Tracer(tracerName)
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return &Pipeline{
		hasher:      hasher,
		selector:    selector,
		featureSize: size,
		formatters:  formatters,
		logger:      logger.With("component", "pipeline"),
		tracer:      tracer,
		recorder:    opts.Recorder,
		now:         now,
	}, nil
}

// Algorithm is the configured digest algorithm.
func (p *Pipeline) Algorithm() string { return p.hasher.Algorithm() }

// FeatureSize is the configured feature vector length.
func (p *Pipeline) FeatureSize() int { return p.featureSize }

// Mode reports the selector's current mode.
func (p *Pipeline) Mode() backend.Mode { return p.selector.CurrentMode() }

// Digest runs only the deterministic half of the pipeline.
func (p *Pipeline) Digest(seeds engine.SeedTriple) (engine.Digest, engine.FeatureVector, error) {
	d, err := p.hasher.Hash(seeds)
	if err != nil {
		return nil, nil, err
	}
	v, err := engine.BuildFeatures(d, p.featureSize)
	if err != nil {
		return nil, nil, err
	}
	return d, v, nil
}

// Predict runs one prediction for kind. Input errors and backend prediction
// errors are returned unchanged and never retried.
func (p *Pipeline) Predict(ctx context.Context, kind backend.GameKind, seeds engine.SeedTriple) (pred Prediction, err error) {
	ctx, span := p.tracer.Start(ctx, "pipeline.Predict", trace.WithAttributes(
		attribute.String("predict.game", string(kind)),
		attribute.Int("predict.feature_size", p.featureSize),
		attribute.String("predict.algorithm", p.hasher.Algorithm()),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	formatter := p.formatters[kind]
	if !kind.Valid() || formatter == nil {
		return Prediction{}, &engine.InputError{Field: "game", Reason: fmt.Sprintf("unknown game %q", kind)}
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	start := p.now()
	digest, features, err := p.Digest(seeds)
	if err != nil {
		return Prediction{}, err
	}

	active, err := p.selector.ActiveBackend()
	if err != nil {
		return Prediction{}, err
	}
	mode := p.selector.CurrentMode()
	span.SetAttributes(
		attribute.String("predict.mode", mode.String()),
		attribute.String("predict.backend", active.Name()),
		attribute.Int("predict.output_units", kind.OutputUnits()),
	)

	model, err := active.BuildModel(kind, len(features))
	if err != nil {
		return Prediction{}, err
	}
	defer active.Dispose(model)

	raw, err := active.Predict(ctx, model, features)
	if err != nil {
		return Prediction{}, err
	}
	p.logger.Log(ctx, logging.LevelTrace, "backend scores",
		"backend", active.Name(),
		"digest_bytes", len(digest),
		"features", len(features),
		"raw_scores", len(raw))

	result, err := formatter.Format(ctx, raw)
	if err != nil {
		return Prediction{}, err
	}

	pred = Prediction{
		ID:          uuid.New(),
		Kind:        kind,
		Mode:        mode,
		Backend:     active.Name(),
		Algorithm:   p.hasher.Algorithm(),
		Seeds:       seeds,
		DigestHex:   digest.Hex(),
		FeatureSize: len(features),
		Result:      result,
		CreatedAt:   p.now().UTC(),
	}
	span.SetAttributes(attribute.String("predict.id", pred.ID.String()))

	p.logger.Debug("prediction complete",
		"id", pred.ID,
		"game", kind,
		"mode", mode,
		"client_seed", engine.Fingerprint(seeds.ClientSeed),
		"server_seed_hash", engine.Fingerprint(seeds.ServerSeedHash),
		"nonce", seeds.Nonce,
		"duration", p.now().Sub(start))

	if p.recorder != nil {
		if rerr := p.recorder.Record(ctx, pred); rerr != nil {
			p.logger.Warn("failed to record prediction", "id", pred.ID, "error", rerr)
		}
	}
	return pred, nil
}
