package api

import (
	"bytes"
	"strings"

	"github.com/MJE43/stake-pf-predict-go/internal/backend"
	"github.com/MJE43/stake-pf-predict-go/internal/engine"
	"github.com/MJE43/stake-pf-predict-go/internal/games"
	"github.com/MJE43/stake-pf-predict-go/internal/pipeline"
	"github.com/MJE43/stake-pf-predict-go/internal/store"
)

// EngineError represents a structured error response with context
type EngineError struct {
	Type      string         `json:"type"`
	Message   string         `json:"message"`
	Context   map[string]any `json:"context,omitempty"`
	RequestID string         `json:"request_id,omitempty"`
	Timestamp string         `json:"timestamp,omitempty"`
}

// Error implements the error interface
func (e EngineError) Error() string {
	return e.Message
}

// Error types
const (
	ErrTypeInvalidSeed  = "invalid_seed"
	ErrTypeInvalidNonce = "invalid_nonce"
	ErrTypeValidation   = "validation_error"

	ErrTypeGameNotFound  = "game_not_found"
	ErrTypeShapeMismatch = "shape_mismatch"
	ErrTypePrediction    = "prediction_error"
	ErrTypeNotFound      = "not_found"

	ErrTypeTimeout            = "timeout"
	ErrTypeInternal           = "internal_error"
	ErrTypeServiceUnavailable = "service_unavailable"
)

// ErrorCategory represents error categories for monitoring
type ErrorCategory string

const (
	CategoryValidation ErrorCategory = "validation"
	CategoryBackend    ErrorCategory = "backend"
	CategorySystem     ErrorCategory = "system"
	CategoryTimeout    ErrorCategory = "timeout"
)

// GetErrorCategory returns the category for an error type
func GetErrorCategory(errType string) ErrorCategory {
	switch errType {
	case ErrTypeInvalidSeed, ErrTypeInvalidNonce, ErrTypeValidation, ErrTypeGameNotFound, ErrTypeNotFound:
		return CategoryValidation
	case ErrTypeShapeMismatch, ErrTypePrediction, ErrTypeServiceUnavailable:
		return CategoryBackend
	case ErrTypeTimeout:
		return CategoryTimeout
	default:
		return CategorySystem
	}
}

// VersionInfo contains engine version information
type VersionInfo struct {
	EngineVersion string `json:"engine_version"`
	GitCommit     string `json:"git_commit,omitempty"`
	BuildTime     string `json:"build_time,omitempty"`
}

// Nonce accepts either a JSON number or a decimal string so clients can send
// values above 2^53 without losing precision.
type Nonce uint64

func (n *Nonce) UnmarshalJSON(data []byte) error {
	text := string(bytes.TrimSpace(data))
	if text == "null" {
		return &engine.InputError{Field: "nonce", Reason: "is required"}
	}
	v, err := engine.ParseNonce(strings.Trim(text, `"`))
	if err != nil {
		return err
	}
	*n = Nonce(v)
	return nil
}

// SeedsRequest is the seed part shared by predict and digest requests.
type SeedsRequest struct {
	ClientSeed     string `json:"client_seed"`
	ServerSeedHash string `json:"server_seed_hash"`
	Nonce          *Nonce `json:"nonce"`
}

func (r SeedsRequest) seeds() (engine.SeedTriple, error) {
	if r.Nonce == nil {
		return engine.SeedTriple{}, &engine.InputError{Field: "nonce", Reason: "is required"}
	}
	return engine.NewSeedTriple(strings.TrimSpace(r.ClientSeed), strings.TrimSpace(r.ServerSeedHash), uint64(*r.Nonce))
}

// PredictRequest asks for one prediction.
type PredictRequest struct {
	Game string `json:"game"`
	SeedsRequest
}

// PredictResponse wraps the prediction with the engine version.
type PredictResponse struct {
	pipeline.Prediction
	EngineVersion string `json:"engine_version"`
}

// DigestRequest asks for the deterministic half of the pipeline.
type DigestRequest struct {
	SeedsRequest
}

// DigestResponse carries the digest and the feature vector built from it.
type DigestResponse struct {
	Algorithm     string               `json:"algorithm"`
	Digest        string               `json:"digest"`
	FeatureSize   int                  `json:"feature_size"`
	Features      engine.FeatureVector `json:"features"`
	Seeds         engine.SeedTriple    `json:"seeds"`
	EngineVersion string               `json:"engine_version"`
}

// BackendResponse reports the selector state.
type BackendResponse struct {
	backend.Status
	EngineVersion string `json:"engine_version"`
}

// GamesResponse represents the games metadata response
type GamesResponse struct {
	Games         []games.GameSpec `json:"games"`
	EngineVersion string           `json:"engine_version"`
}

// PredictionsResponse is a page of stored predictions.
type PredictionsResponse struct {
	*store.PredictionsList
	EngineVersion string `json:"engine_version"`
}
