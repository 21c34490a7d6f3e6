// Package store persists mintette and bank snapshots plus action-log
// entries to PostgreSQL via pgx/v5, grounded on the teacher's
// internal/db/postgres.go connection-pool wrapper. When no DATABASE_URL is
// configured, callers fall back to the in-memory Store below rather than
// refusing to start — the same nil-store tolerance cmd/engine/main.go shows
// for its own PostgresStore.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Record is one opaque named-plus-period blob this Store persists: a
// mintette/bank state snapshot, or an archived period's action log.
type Record struct {
	Kind     string // e.g. "bank-snapshot", "mintette-snapshot"
	NodeID   string // which bank/mintette this belongs to
	PeriodID uint64
	Data     []byte // caller-supplied JSON
}

// Store is the persistence interface both the bank and mintette depend on.
// PostgresStore and MemoryStore both implement it so a node can run against
// a real database or, for development/tests, entirely in memory.
type Store interface {
	Save(ctx context.Context, rec Record) error
	Load(ctx context.Context, kind, nodeID string, periodID uint64) ([]byte, bool, error)
	LoadLatest(ctx context.Context, kind, nodeID string) ([]byte, uint64, bool, error)
	Close()
}

// PostgresStore is the pgx/v5-backed implementation.
type PostgresStore struct {
	pool *pgxpool.Pool
}

const schema = `
CREATE TABLE IF NOT EXISTS rscoin_records (
	kind text NOT NULL,
	node_id text NOT NULL,
	period_id bigint NOT NULL,
	data jsonb NOT NULL,
	PRIMARY KEY (kind, node_id, period_id)
);
`

// Connect opens a pool against connStr and ensures the schema exists.
func Connect(ctx context.Context, connStr string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("store: unable to connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("store: ping failed: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		return nil, fmt.Errorf("store: schema init failed: %w", err)
	}
	log.Println("store: connected to PostgreSQL")
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

func (s *PostgresStore) Save(ctx context.Context, rec Record) error {
	var payload json.RawMessage = rec.Data
	_, err := s.pool.Exec(ctx, `
		INSERT INTO rscoin_records (kind, node_id, period_id, data)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (kind, node_id, period_id) DO UPDATE SET data = EXCLUDED.data
	`, rec.Kind, rec.NodeID, rec.PeriodID, payload)
	if err != nil {
		return fmt.Errorf("store: save %s/%s/%d: %w", rec.Kind, rec.NodeID, rec.PeriodID, err)
	}
	return nil
}

func (s *PostgresStore) Load(ctx context.Context, kind, nodeID string, periodID uint64) ([]byte, bool, error) {
	var data []byte
	err := s.pool.QueryRow(ctx, `
		SELECT data FROM rscoin_records WHERE kind = $1 AND node_id = $2 AND period_id = $3
	`, kind, nodeID, periodID).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("store: load %s/%s/%d: %w", kind, nodeID, periodID, err)
	}
	return data, true, nil
}

func (s *PostgresStore) LoadLatest(ctx context.Context, kind, nodeID string) ([]byte, uint64, bool, error) {
	var data []byte
	var periodID uint64
	err := s.pool.QueryRow(ctx, `
		SELECT period_id, data FROM rscoin_records
		WHERE kind = $1 AND node_id = $2
		ORDER BY period_id DESC LIMIT 1
	`, kind, nodeID).Scan(&periodID, &data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, 0, false, nil
		}
		return nil, 0, false, fmt.Errorf("store: load latest %s/%s: %w", kind, nodeID, err)
	}
	return data, periodID, true, nil
}

// MemoryStore is a volatile Store for development and tests, mirroring the
// teacher's nil-PostgresStore fallback path in cmd/engine/main.go but made
// explicit and usable rather than simply disabling persistence.
type MemoryStore struct {
	records map[string]map[string]map[uint64][]byte
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]map[string]map[uint64][]byte)}
}

func (m *MemoryStore) Save(_ context.Context, rec Record) error {
	byNode, ok := m.records[rec.Kind]
	if !ok {
		byNode = make(map[string]map[uint64][]byte)
		m.records[rec.Kind] = byNode
	}
	byPeriod, ok := byNode[rec.NodeID]
	if !ok {
		byPeriod = make(map[uint64][]byte)
		byNode[rec.NodeID] = byPeriod
	}
	byPeriod[rec.PeriodID] = append([]byte(nil), rec.Data...)
	return nil
}

func (m *MemoryStore) Load(_ context.Context, kind, nodeID string, periodID uint64) ([]byte, bool, error) {
	data, ok := m.records[kind][nodeID][periodID]
	return data, ok, nil
}

func (m *MemoryStore) LoadLatest(_ context.Context, kind, nodeID string) ([]byte, uint64, bool, error) {
	byPeriod, ok := m.records[kind][nodeID]
	if !ok || len(byPeriod) == 0 {
		return nil, 0, false, nil
	}
	var best uint64
	first := true
	for period := range byPeriod {
		if first || period > best {
			best = period
			first = false
		}
	}
	return byPeriod[best], best, true, nil
}

func (m *MemoryStore) Close() {}
