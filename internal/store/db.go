// Package store keeps a local history of predictions in SQLite.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// ErrNotFound is returned when a prediction id does not exist.
var ErrNotFound = errors.New("prediction not found")

// DB represents the history database.
type DB interface {
	Close() error
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	SavePrediction(ctx context.Context, p *Prediction) error
	GetPrediction(ctx context.Context, id string) (*Prediction, error)
	ListPredictions(ctx context.Context, query PredictionsQuery) (*PredictionsList, error)
}

// Prediction is one stored prediction.
type Prediction struct {
	ID             string          `json:"id" db:"id"`
	Game           string          `json:"game" db:"game"`
	Mode           string          `json:"mode" db:"mode"`
	Backend        string          `json:"backend" db:"backend"`
	Algorithm      string          `json:"algorithm" db:"algorithm"`
	ClientSeed     string          `json:"client_seed" db:"client_seed"`
	ServerSeedHash string          `json:"server_seed_hash" db:"server_seed_hash"`
	Nonce          uint64          `json:"nonce" db:"nonce"`
	Digest         string          `json:"digest" db:"digest"`
	FeatureSize    int             `json:"feature_size" db:"feature_size"`
	Result         json.RawMessage `json:"result" db:"result_json"`
	EngineVersion  string          `json:"engine_version" db:"engine_version"`
	CreatedAt      time.Time       `json:"created_at" db:"created_at"`
}

// PredictionsQuery represents query parameters for listing predictions.
type PredictionsQuery struct {
	Game       string `json:"game,omitempty"`
	ClientSeed string `json:"client_seed,omitempty"`
	Page       int    `json:"page"`
	PerPage    int    `json:"perPage"`
}

// PredictionsList represents a paginated predictions response.
type PredictionsList struct {
	Predictions []Prediction `json:"predictions"`
	TotalCount  int          `json:"totalCount"`
	Page        int          `json:"page"`
	PerPage     int          `json:"perPage"`
	TotalPages  int          `json:"totalPages"`
}
