package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/MJE43/stake-pf-predict-go/internal/pipeline"
)

// Recorder adapts a DB to pipeline.Recorder.
type Recorder struct {
	db      DB
	version string
}

// NewRecorder returns a recorder that stamps rows with engineVersion.
func NewRecorder(db DB, engineVersion string) *Recorder {
	return &Recorder{db: db, version: engineVersion}
}

// Record stores a successful prediction.
func (r *Recorder) Record(ctx context.Context, p pipeline.Prediction) error {
	result, err := json.Marshal(p.Result)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	return r.db.SavePrediction(ctx, &Prediction{
		ID:             p.ID.String(),
		Game:           string(p.Kind),
		Mode:           p.Mode.String(),
		Backend:        p.Backend,
		Algorithm:      p.Algorithm,
		ClientSeed:     p.Seeds.ClientSeed,
		ServerSeedHash: p.Seeds.ServerSeedHash,
		Nonce:          p.Seeds.Nonce,
		Digest:         p.DigestHex,
		FeatureSize:    p.FeatureSize,
		Result:         result,
		EngineVersion:  r.version,
		CreatedAt:      p.CreatedAt,
	})
}
