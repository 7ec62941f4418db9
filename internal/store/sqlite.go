package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // pure-Go SQLite driver
)

const (
	defaultPerPage = 50
	maxPerPage     = 500
)

// SQLiteDB implements DB on a single SQLite connection.
type SQLiteDB struct {
	db *sql.DB
}

// NewSQLiteDB opens (creating if needed) the database at path. ":memory:"
// opens a private in-memory database.
func NewSQLiteDB(path string) (*SQLiteDB, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite is not concurrent for writes

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return &SQLiteDB{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteDB) Close() error {
	return s.db.Close()
}

// Ping checks the connection for health reporting.
func (s *SQLiteDB) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Migrate creates the schema. It is safe to run repeatedly.
func (s *SQLiteDB) Migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS predictions (
			id TEXT PRIMARY KEY,
			game TEXT NOT NULL,
			mode TEXT NOT NULL,
			backend TEXT NOT NULL,
			algorithm TEXT NOT NULL,
			client_seed TEXT NOT NULL,
			server_seed_hash TEXT NOT NULL,
			nonce INTEGER NOT NULL,
			digest TEXT NOT NULL,
			feature_size INTEGER NOT NULL,
			result_json TEXT NOT NULL,
			engine_version TEXT,
			created_at TIMESTAMP NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_predictions_created_at ON predictions(created_at DESC);`,
		`CREATE INDEX IF NOT EXISTS idx_predictions_game_created ON predictions(game, created_at DESC);`,
		`CREATE INDEX IF NOT EXISTS idx_predictions_seeds ON predictions(client_seed, server_seed_hash, nonce);`,
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	for _, q := range stmts {
		if _, err := tx.ExecContext(ctx, q); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return tx.Commit()
}

// SavePrediction inserts p, assigning an id and timestamp when missing.
func (s *SQLiteDB) SavePrediction(ctx context.Context, p *Prediction) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	p.CreatedAt = p.CreatedAt.UTC()
	if p.Nonce > math.MaxInt64 {
		return fmt.Errorf("nonce %d exceeds storable range", p.Nonce)
	}
	result := string(p.Result)
	if result == "" {
		result = "{}"
	}

	_, err := s.db.ExecContext(ctx, `INSERT INTO predictions (
			id, game, mode, backend, algorithm, client_seed, server_seed_hash,
			nonce, digest, feature_size, result_json, engine_version, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Game, p.Mode, p.Backend, p.Algorithm, p.ClientSeed, p.ServerSeedHash,
		int64(p.Nonce), p.Digest, p.FeatureSize, result, p.EngineVersion, p.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save prediction: %w", err)
	}
	return nil
}

const predictionColumns = `id, game, mode, backend, algorithm, client_seed, server_seed_hash,
	nonce, digest, feature_size, result_json, engine_version, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPrediction(row rowScanner) (*Prediction, error) {
	var (
		p             Prediction
		nonce         int64
		result        string
		engineVersion sql.NullString
	)
	err := row.Scan(
		&p.ID, &p.Game, &p.Mode, &p.Backend, &p.Algorithm, &p.ClientSeed, &p.ServerSeedHash,
		&nonce, &p.Digest, &p.FeatureSize, &result, &engineVersion, &p.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.Nonce = uint64(nonce)
	p.Result = []byte(result)
	if engineVersion.Valid {
		p.EngineVersion = engineVersion.String
	}
	return &p, nil
}

// GetPrediction retrieves a prediction by id.
func (s *SQLiteDB) GetPrediction(ctx context.Context, id string) (*Prediction, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+predictionColumns+` FROM predictions WHERE id = ?`, id)
	p, err := scanPrediction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get prediction: %w", err)
	}
	return p, nil
}

// ListPredictions returns predictions newest first with pagination.
func (s *SQLiteDB) ListPredictions(ctx context.Context, query PredictionsQuery) (*PredictionsList, error) {
	var (
		conds []string
		args  []any
	)
	if query.Game != "" {
		conds = append(conds, "game = ?")
		args = append(args, query.Game)
	}
	if query.ClientSeed != "" {
		conds = append(conds, "client_seed = ?")
		args = append(args, query.ClientSeed)
	}
	whereClause := ""
	if len(conds) > 0 {
		whereClause = "WHERE " + strings.Join(conds, " AND ")
	}

	var totalCount int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM predictions "+whereClause, args...).Scan(&totalCount); err != nil {
		return nil, fmt.Errorf("failed to get total count: %w", err)
	}

	if query.PerPage <= 0 {
		query.PerPage = defaultPerPage
	}
	if query.PerPage > maxPerPage {
		query.PerPage = maxPerPage
	}
	if query.Page <= 0 {
		query.Page = 1
	}
	totalPages := (totalCount + query.PerPage - 1) / query.PerPage
	offset := (query.Page - 1) * query.PerPage

	mainQuery := `SELECT ` + predictionColumns + ` FROM predictions ` + whereClause + `
		ORDER BY created_at DESC, rowid DESC
		LIMIT ? OFFSET ?`
	args = append(args, query.PerPage, offset)

	rows, err := s.db.QueryContext(ctx, mainQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query predictions: %w", err)
	}
	defer rows.Close()

	predictions := []Prediction{}
	for rows.Next() {
		p, err := scanPrediction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan prediction: %w", err)
		}
		predictions = append(predictions, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating predictions: %w", err)
	}

	return &PredictionsList{
		Predictions: predictions,
		TotalCount:  totalCount,
		Page:        query.Page,
		PerPage:     query.PerPage,
		TotalPages:  totalPages,
	}, nil
}
