package store

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/MJE43/stake-pf-predict-go/internal/backend"
	"github.com/MJE43/stake-pf-predict-go/internal/engine"
	"github.com/MJE43/stake-pf-predict-go/internal/games"
	"github.com/MJE43/stake-pf-predict-go/internal/pipeline"
)

func newTestDB(t *testing.T) *SQLiteDB {
	t.Helper()
	db, err := NewSQLiteDB(":memory:")
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("Failed to migrate: %v", err)
	}
	return db
}

func seedPredictions(t *testing.T, db *SQLiteDB) {
	t.Helper()
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	rows := []*Prediction{
		{ID: "p1", Game: "mines", Mode: "simulated", Backend: "simulated", Algorithm: "sha512", ClientSeed: "c1", ServerSeedHash: "h1", Nonce: 1, Digest: "aa", FeatureSize: 128, Result: json.RawMessage(`{"kind":"mines"}`), CreatedAt: base},
		{ID: "p2", Game: "coinflip", Mode: "simulated", Backend: "simulated", Algorithm: "sha512", ClientSeed: "c1", ServerSeedHash: "h1", Nonce: 2, Digest: "bb", FeatureSize: 128, CreatedAt: base.Add(time.Minute)},
		{ID: "p3", Game: "mines", Mode: "accelerated", Backend: "accelerated", Algorithm: "sha256", ClientSeed: "c2", ServerSeedHash: "h2", Nonce: 3, Digest: "cc", FeatureSize: 64, CreatedAt: base.Add(2 * time.Minute)},
	}
	for _, p := range rows {
		if err := db.SavePrediction(context.Background(), p); err != nil {
			t.Fatalf("Failed to save prediction %s: %v", p.ID, err)
		}
	}
}

func TestSaveAndGetPrediction(t *testing.T) {
	db := newTestDB(t)
	seedPredictions(t, db)

	got, err := db.GetPrediction(context.Background(), "p1")
	if err != nil {
		t.Fatalf("GetPrediction: %v", err)
	}
	if got.Game != "mines" || got.Nonce != 1 || got.ClientSeed != "c1" || got.FeatureSize != 128 {
		t.Errorf("unexpected row: %+v", got)
	}
	if string(got.Result) != `{"kind":"mines"}` {
		t.Errorf("Result = %s", got.Result)
	}
	if !got.CreatedAt.Equal(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)) {
		t.Errorf("CreatedAt = %v", got.CreatedAt)
	}

	empty, err := db.GetPrediction(context.Background(), "p2")
	if err != nil {
		t.Fatalf("GetPrediction: %v", err)
	}
	if string(empty.Result) != "{}" {
		t.Errorf("empty result stored as %q, want {}", empty.Result)
	}

	if _, err := db.GetPrediction(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestSavePredictionAssignsID(t *testing.T) {
	db := newTestDB(t)
	p := &Prediction{Game: "mines", Mode: "simulated", Backend: "simulated", Algorithm: "sha512", ClientSeed: "c", ServerSeedHash: "h"}
	if err := db.SavePrediction(context.Background(), p); err != nil {
		t.Fatalf("SavePrediction: %v", err)
	}
	if _, err := uuid.Parse(p.ID); err != nil {
		t.Errorf("ID %q is not a uuid: %v", p.ID, err)
	}
	if p.CreatedAt.IsZero() {
		t.Error("CreatedAt not assigned")
	}
}

func TestSavePredictionDuplicateID(t *testing.T) {
	db := newTestDB(t)
	seedPredictions(t, db)
	if err := db.SavePrediction(context.Background(), &Prediction{ID: "p1", Game: "mines"}); err == nil {
		t.Fatal("expected error for duplicate id")
	}
}

func TestListPredictions(t *testing.T) {
	db := newTestDB(t)
	seedPredictions(t, db)
	ctx := context.Background()

	tests := []struct {
		name      string
		query     PredictionsQuery
		wantIDs   []string
		wantTotal int
		wantPages int
	}{
		{"all newest first", PredictionsQuery{}, []string{"p3", "p2", "p1"}, 3, 1},
		{"filter game", PredictionsQuery{Game: "mines"}, []string{"p3", "p1"}, 2, 1},
		{"filter client seed", PredictionsQuery{ClientSeed: "c1"}, []string{"p2", "p1"}, 2, 1},
		{"combined filters", PredictionsQuery{Game: "coinflip", ClientSeed: "c1"}, []string{"p2"}, 1, 1},
		{"first page", PredictionsQuery{Page: 1, PerPage: 2}, []string{"p3", "p2"}, 3, 2},
		{"second page", PredictionsQuery{Page: 2, PerPage: 2}, []string{"p1"}, 3, 2},
		{"past the end", PredictionsQuery{Page: 5, PerPage: 2}, []string{}, 3, 2},
		{"no match", PredictionsQuery{Game: "keno"}, []string{}, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			list, err := db.ListPredictions(ctx, tt.query)
			if err != nil {
				t.Fatalf("ListPredictions: %v", err)
			}
			if list.TotalCount != tt.wantTotal || list.TotalPages != tt.wantPages {
				t.Errorf("total=%d pages=%d, want %d/%d", list.TotalCount, list.TotalPages, tt.wantTotal, tt.wantPages)
			}
			if len(list.Predictions) != len(tt.wantIDs) {
				t.Fatalf("got %d predictions, want %d", len(list.Predictions), len(tt.wantIDs))
			}
			for i, id := range tt.wantIDs {
				if list.Predictions[i].ID != id {
					t.Errorf("position %d = %s, want %s", i, list.Predictions[i].ID, id)
				}
			}
		})
	}
}

func TestListPredictionsDefaults(t *testing.T) {
	db := newTestDB(t)
	list, err := db.ListPredictions(context.Background(), PredictionsQuery{PerPage: 10000})
	if err != nil {
		t.Fatalf("ListPredictions: %v", err)
	}
	if list.PerPage != maxPerPage || list.Page != 1 {
		t.Errorf("page/perPage = %d/%d", list.Page, list.PerPage)
	}
	if list.Predictions == nil {
		t.Error("Predictions should be an empty slice, not nil")
	}
}

func TestMigrateIdempotent(t *testing.T) {
	db := newTestDB(t)
	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("second Migrate: %v", err)
	}
	if err := db.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
}

func TestFileDatabasePersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	db, err := NewSQLiteDB(path)
	if err != nil {
		t.Fatalf("NewSQLiteDB: %v", err)
	}
	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	if err := db.SavePrediction(context.Background(), &Prediction{ID: "keep", Game: "mines", Mode: "simulated", Backend: "simulated", Algorithm: "sha512"}); err != nil {
		t.Fatalf("SavePrediction: %v", err)
	}
	db.Close()

	reopened, err := NewSQLiteDB(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	if _, err := reopened.GetPrediction(context.Background(), "keep"); err != nil {
		t.Fatalf("GetPrediction after reopen: %v", err)
	}
}

func TestRecorder(t *testing.T) {
	db := newTestDB(t)
	rec := NewRecorder(db, "1.2.3")

	grid := new(games.MinesGrid)
	grid[0][0] = true
	pred := pipeline.Prediction{
		ID:          uuid.New(),
		Kind:        backend.GameMines,
		Mode:        backend.ModeSimulated,
		Backend:     "simulated",
		Algorithm:   "sha512",
		Seeds:       engine.SeedTriple{ClientSeed: "abc", ServerSeedHash: "def", Nonce: 7},
		DigestHex:   "deadbeef",
		FeatureSize: 128,
		Result:      games.Result{Kind: backend.GameMines, Mines: grid},
		CreatedAt:   time.Now().UTC(),
	}
	if err := rec.Record(context.Background(), pred); err != nil {
		t.Fatalf("Record: %v", err)
	}

	got, err := db.GetPrediction(context.Background(), pred.ID.String())
	if err != nil {
		t.Fatalf("GetPrediction: %v", err)
	}
	if got.Mode != "simulated" || got.Nonce != 7 || got.EngineVersion != "1.2.3" || got.Digest != "deadbeef" {
		t.Errorf("unexpected row: %+v", got)
	}

	var result games.Result
	if err := json.Unmarshal(got.Result, &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if result.Mines == nil || !result.Mines[0][0] || result.Mines.SafeCount() != 1 {
		t.Errorf("decoded result = %+v", result)
	}
}
