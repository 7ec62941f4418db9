package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/MJE43/stake-pf-predict-go/internal/backend"
	"github.com/MJE43/stake-pf-predict-go/internal/engine"
	"github.com/MJE43/stake-pf-predict-go/internal/logging"
	"github.com/MJE43/stake-pf-predict-go/internal/pipeline"
	"github.com/MJE43/stake-pf-predict-go/internal/store"
)

type testEnv struct {
	server   *Server
	handler  http.Handler
	pipeline *pipeline.Pipeline
	db       *store.SQLiteDB
}

func newTestEnv(t *testing.T, withStore bool) *testEnv {
	t.Helper()
	sel := backend.NewSelector(
		backend.NewAcceleratedBackend(backend.AcceleratedConfig{Disabled: true}),
		backend.NewSimulatedBackend(backend.WithRandSource(rand.NewPCG(3, 4))),
		logging.Discard(),
	)
	if err := sel.Init(context.Background()); err != nil {
		t.Fatalf("selector Init: %v", err)
	}

	env := &testEnv{}
	opts := pipeline.Options{Logger: logging.Discard()}
	var db store.DB
	if withStore {
		sqlite, err := store.NewSQLiteDB(":memory:")
		if err != nil {
			t.Fatalf("NewSQLiteDB: %v", err)
		}
		t.Cleanup(func() { sqlite.Close() })
		if err := sqlite.Migrate(context.Background()); err != nil {
			t.Fatalf("Migrate: %v", err)
		}
		env.db = sqlite
		db = sqlite
		opts.Recorder = store.NewRecorder(sqlite, EngineVersion)
	}

	p, err := pipeline.New(sel, opts)
	if err != nil {
		t.Fatalf("pipeline.New: %v", err)
	}
	env.pipeline = p
	env.server = NewServer(p, sel, Options{DB: db, Logger: logging.Discard()})
	env.handler = env.server.Routes()
	return env
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)
	return w
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(bytes.NewReader(w.Body.Bytes())).Decode(&v); err != nil {
		t.Fatalf("Failed to decode response %q: %v", w.Body.String(), err)
	}
	return v
}

func TestHealthDegradedOnSimulatedBackend(t *testing.T) {
	env := newTestEnv(t, true)
	w := env.do(t, http.MethodGet, "/health", "")

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	resp := decodeBody[HealthCheckResponse](t, w)
	if resp.Status != HealthStatusDegraded {
		t.Errorf("status = %s, want degraded", resp.Status)
	}
	if resp.Mode != backend.ModeSimulated {
		t.Errorf("mode = %s, want simulated", resp.Mode)
	}
	if resp.Checks["store"].Status != HealthStatusHealthy {
		t.Errorf("store check = %+v", resp.Checks["store"])
	}
	if w.Header().Get("X-Engine-Version") == "" {
		t.Error("Expected X-Engine-Version header")
	}
}

func TestHealthUnhealthyWhenStoreDown(t *testing.T) {
	env := newTestEnv(t, true)
	env.db.Close()

	w := env.do(t, http.MethodGet, "/health", "")
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("Expected status 503, got %d", w.Code)
	}
	resp := decodeBody[HealthCheckResponse](t, w)
	if resp.Checks["store"].Status != HealthStatusUnhealthy {
		t.Errorf("store check = %+v", resp.Checks["store"])
	}
}

func TestLiveness(t *testing.T) {
	env := newTestEnv(t, false)
	w := env.do(t, http.MethodGet, "/health/live", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
}

func TestBackendEndpoint(t *testing.T) {
	env := newTestEnv(t, false)
	w := env.do(t, http.MethodGet, "/api/v1/backend", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	resp := decodeBody[BackendResponse](t, w)
	if resp.Mode != backend.ModeSimulated || !resp.Degraded || resp.Reason == "" {
		t.Errorf("unexpected status: %+v", resp.Status)
	}
}

func TestGamesEndpoint(t *testing.T) {
	env := newTestEnv(t, false)
	w := env.do(t, http.MethodGet, "/api/v1/games", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	resp := decodeBody[GamesResponse](t, w)
	if len(resp.Games) != 2 {
		t.Errorf("Expected 2 games, got %d", len(resp.Games))
	}
	if resp.EngineVersion == "" {
		t.Error("Expected engine version in response")
	}
}

func TestPredictMinesIsRecorded(t *testing.T) {
	env := newTestEnv(t, true)
	w := env.do(t, http.MethodPost, "/api/v1/predict",
		`{"game":"mines","client_seed":"abc","server_seed_hash":"def","nonce":"1"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	resp := decodeBody[PredictResponse](t, w)
	if resp.Kind != backend.GameMines || resp.Result.Mines == nil {
		t.Fatalf("unexpected prediction: %+v", resp.Prediction)
	}
	if resp.Mode != backend.ModeSimulated || resp.Seeds.Nonce != 1 {
		t.Errorf("unexpected metadata: %+v", resp.Prediction)
	}

	get := env.do(t, http.MethodGet, "/api/v1/predictions/"+resp.ID.String(), "")
	if get.Code != http.StatusOK {
		t.Fatalf("GET prediction status %d: %s", get.Code, get.Body.String())
	}
	row := decodeBody[store.Prediction](t, get)
	if row.Game != "mines" || row.Digest != resp.DigestHex || row.EngineVersion != EngineVersion {
		t.Errorf("stored row = %+v", row)
	}

	list := env.do(t, http.MethodGet, "/api/v1/predictions?game=mines&per_page=10", "")
	if list.Code != http.StatusOK {
		t.Fatalf("list status %d", list.Code)
	}
	page := decodeBody[PredictionsResponse](t, list)
	if page.TotalCount != 1 || len(page.Predictions) != 1 {
		t.Errorf("list = %+v", page.PredictionsList)
	}
}

func TestPredictCoinflipNumericNonce(t *testing.T) {
	env := newTestEnv(t, false)
	w := env.do(t, http.MethodPost, "/api/v1/predict",
		`{"game":"coinflip","client_seed":"abc","server_seed_hash":"def","nonce":42}`)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	resp := decodeBody[PredictResponse](t, w)
	if len(resp.Result.Coinflip) != 10 {
		t.Fatalf("got %d flips, want 10", len(resp.Result.Coinflip))
	}
	for i, e := range resp.Result.Coinflip {
		if e.NonceOffset != i {
			t.Errorf("entry %d offset = %d", i, e.NonceOffset)
		}
		if e.ConfidencePercent < 50 || e.ConfidencePercent > 100 {
			t.Errorf("entry %d confidence = %d", i, e.ConfidencePercent)
		}
	}
}

func TestPredictValidation(t *testing.T) {
	env := newTestEnv(t, false)

	tests := []struct {
		name     string
		body     string
		wantType string
	}{
		{"invalid json", `not json`, ErrTypeValidation},
		{"unknown field", `{"game":"mines","client_seed":"a","server_seed_hash":"b","nonce":1,"extra":1}`, ErrTypeValidation},
		{"missing nonce", `{"game":"mines","client_seed":"a","server_seed_hash":"b"}`, ErrTypeInvalidNonce},
		{"negative nonce", `{"game":"mines","client_seed":"a","server_seed_hash":"b","nonce":"-1"}`, ErrTypeInvalidNonce},
		{"fractional nonce", `{"game":"mines","client_seed":"a","server_seed_hash":"b","nonce":1.5}`, ErrTypeInvalidNonce},
		{"empty client seed", `{"game":"mines","client_seed":"  ","server_seed_hash":"b","nonce":1}`, ErrTypeInvalidSeed},
		{"empty server hash", `{"game":"mines","client_seed":"a","server_seed_hash":"","nonce":1}`, ErrTypeInvalidSeed},
		{"unknown game", `{"game":"keno","client_seed":"a","server_seed_hash":"b","nonce":1}`, ErrTypeGameNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodPost, "/api/v1/predict", tt.body)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("Expected status 400, got %d: %s", w.Code, w.Body.String())
			}
			resp := decodeBody[EngineError](t, w)
			if resp.Type != tt.wantType {
				t.Errorf("type = %s, want %s", resp.Type, tt.wantType)
			}
			if resp.RequestID == "" {
				t.Error("Expected request id in error")
			}
			if w.Header().Get("X-Error-Category") != string(CategoryValidation) {
				t.Errorf("category header = %q", w.Header().Get("X-Error-Category"))
			}
		})
	}
}

func TestDigestEndpoint(t *testing.T) {
	env := newTestEnv(t, false)
	w := env.do(t, http.MethodPost, "/api/v1/digest",
		`{"client_seed":"abc","server_seed_hash":"def","nonce":"18446744073709551615"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	resp := decodeBody[DigestResponse](t, w)

	seeds := engine.SeedTriple{ClientSeed: "abc", ServerSeedHash: "def", Nonce: 18446744073709551615}
	digest, features, err := env.pipeline.Digest(seeds)
	if err != nil {
		t.Fatalf("Digest: %v", err)
	}
	if resp.Digest != digest.Hex() || resp.Algorithm != "sha512" {
		t.Errorf("digest = %s (%s), want %s", resp.Digest, resp.Algorithm, digest.Hex())
	}
	if resp.FeatureSize != len(features) || len(resp.Features) != engine.DefaultVectorSize {
		t.Errorf("feature size = %d, len = %d", resp.FeatureSize, len(resp.Features))
	}
	if resp.Seeds != seeds {
		t.Errorf("echoed seeds = %+v", resp.Seeds)
	}
}

func TestHistoryDisabled(t *testing.T) {
	env := newTestEnv(t, false)
	for _, path := range []string{"/api/v1/predictions", "/api/v1/predictions/abc"} {
		w := env.do(t, http.MethodGet, path, "")
		if w.Code != http.StatusServiceUnavailable {
			t.Errorf("%s: expected 503, got %d", path, w.Code)
		}
	}
}

func TestPredictionNotFound(t *testing.T) {
	env := newTestEnv(t, true)
	w := env.do(t, http.MethodGet, "/api/v1/predictions/missing", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("Expected status 404, got %d", w.Code)
	}
	if resp := decodeBody[EngineError](t, w); resp.Type != ErrTypeNotFound {
		t.Errorf("type = %s", resp.Type)
	}
}

func TestListPredictionsBadParams(t *testing.T) {
	env := newTestEnv(t, true)
	for _, q := range []string{"page=x", "per_page=-1", "game=keno"} {
		w := env.do(t, http.MethodGet, "/api/v1/predictions?"+q, "")
		if w.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", q, w.Code)
		}
	}
}

func TestCORSPreflight(t *testing.T) {
	env := newTestEnv(t, false)
	w := env.do(t, http.MethodOptions, "/api/v1/predict", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	if w.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Errorf("allow origin = %q", w.Header().Get("Access-Control-Allow-Origin"))
	}
}

func TestCORSAllowedOrigins(t *testing.T) {
	s := &Server{allowedOrigins: []string{"http://localhost:3000"}}
	h := s.CORSMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	for origin, want := range map[string]string{
		"http://localhost:3000": "http://localhost:3000",
		"http://evil.example":   "",
	} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Origin", origin)
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		if got := w.Header().Get("Access-Control-Allow-Origin"); got != want {
			t.Errorf("origin %s: allow = %q, want %q", origin, got, want)
		}
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantType   string
	}{
		{"input", &engine.InputError{Field: "nonce", Reason: "bad"}, http.StatusBadRequest, ErrTypeInvalidNonce},
		{"wrapped input", fmt.Errorf("ctx: %w", engine.ErrInvalidInput), http.StatusBadRequest, ErrTypeValidation},
		{"not found", store.ErrNotFound, http.StatusNotFound, ErrTypeNotFound},
		{"shape", fmt.Errorf("format: %w", backend.ErrShapeMismatch), http.StatusInternalServerError, ErrTypeShapeMismatch},
		{"not initialized", backend.ErrNotInitialized, http.StatusServiceUnavailable, ErrTypeServiceUnavailable},
		{"timeout", context.DeadlineExceeded, http.StatusRequestTimeout, ErrTypeTimeout},
		{"prediction", &backend.PredictionError{Backend: "accelerated", Kind: backend.GameMines, Err: errors.New("kernel fault")}, http.StatusInternalServerError, ErrTypePrediction},
		{"other", errors.New("boom"), http.StatusInternalServerError, ErrTypeInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, b := classify(tt.err)
			if status != tt.wantStatus {
				t.Errorf("status = %d, want %d", status, tt.wantStatus)
			}
			if got := b.Build().Type; got != tt.wantType {
				t.Errorf("type = %s, want %s", got, tt.wantType)
			}
		})
	}
}

func TestRecoveryHandler(t *testing.T) {
	eh := NewErrorHandler(logging.Discard())
	h := eh.RecoveryHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("kaboom")
	}))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("Expected status 500, got %d", w.Code)
	}
	if resp := decodeBody[EngineError](t, w); resp.Type != ErrTypeInternal {
		t.Errorf("type = %s", resp.Type)
	}
}
