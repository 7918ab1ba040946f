// Package history records completed raffle rounds in SQLite.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"math/big"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Round is one completed draw.
type Round struct {
	ID        int64
	Network   string
	Raffle    string
	RequestID string
	UpkeepTx  string
	Winner    string
	PrizeWei  *big.Int
	Players   uint64
	PickedAt  time.Time
}

// Store persists rounds.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (creating if needed) the database at path. ":memory:" works
// for tests.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if path == ":memory:" {
		// each connection would get its own empty database
		db.SetMaxOpenConns(1)
	} else if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &Store{db: db, logger: logger}
	if err := s.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Migrate creates the schema.
func (s *Store) Migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS rounds (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		network TEXT NOT NULL,
		raffle TEXT NOT NULL,
		request_id TEXT NOT NULL,
		upkeep_tx TEXT,
		winner TEXT NOT NULL,
		prize_wei TEXT NOT NULL,
		players INTEGER NOT NULL,
		picked_at INTEGER NOT NULL, -- unix nanoseconds
		UNIQUE(network, raffle, request_id)
	);

	CREATE INDEX IF NOT EXISTS idx_rounds_raffle ON rounds(network, raffle, picked_at);
	`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	return nil
}

// Record stores r. Recording the same request twice is a no-op.
func (s *Store) Record(ctx context.Context, r *Round) error {
	prize := "0"
	if r.PrizeWei != nil {
		prize = r.PrizeWei.String()
	}
	picked := r.PickedAt
	if picked.IsZero() {
		picked = time.Now()
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO rounds (network, raffle, request_id, upkeep_tx, winner, prize_wei, players, picked_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(network, raffle, request_id) DO NOTHING`,
		r.Network, r.Raffle, r.RequestID, r.UpkeepTx, r.Winner, prize, r.Players, picked.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("recording round: %w", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		r.ID = id
	}
	s.logger.Debug("round recorded", "network", r.Network, "requestId", r.RequestID, "winner", r.Winner)
	return nil
}

// Recent returns the latest n rounds for raffle on network, newest first.
// An empty raffle matches every raffle on the network.
func (s *Store) Recent(ctx context.Context, network, raffle string, n int) ([]*Round, error) {
	if n <= 0 {
		n = 10
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, network, raffle, request_id, COALESCE(upkeep_tx, ''), winner, prize_wei, players, picked_at
		FROM rounds
		WHERE network = ? AND (? = '' OR raffle = ?)
		ORDER BY picked_at DESC, id DESC
		LIMIT ?`, network, raffle, raffle, n)
	if err != nil {
		return nil, fmt.Errorf("querying rounds: %w", err)
	}
	defer rows.Close()

	var out []*Round
	for rows.Next() {
		var (
			r      Round
			prize  string
			picked int64
		)
		if err := rows.Scan(&r.ID, &r.Network, &r.Raffle, &r.RequestID, &r.UpkeepTx, &r.Winner, &prize, &r.Players, &picked); err != nil {
			return nil, fmt.Errorf("scanning round: %w", err)
		}
		r.PrizeWei, _ = new(big.Int).SetString(prize, 10)
		r.PickedAt = time.Unix(0, picked).UTC()
		out = append(out, &r)
	}
	return out, rows.Err()
}

// Stats summarises all rounds on a network.
type Stats struct {
	Rounds     int
	TotalPrize *big.Int
	Winners    int // distinct
}

// Stats aggregates rounds for network.
func (s *Store) Stats(ctx context.Context, network string) (*Stats, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT winner, prize_wei FROM rounds WHERE network = ?`, network)
	if err != nil {
		return nil, fmt.Errorf("querying rounds: %w", err)
	}
	defer rows.Close()

	st := &Stats{TotalPrize: new(big.Int)}
	winners := map[string]bool{}
	for rows.Next() {
		var winner, prize string
		if err := rows.Scan(&winner, &prize); err != nil {
			return nil, err
		}
		st.Rounds++
		winners[winner] = true
		if p, ok := new(big.Int).SetString(prize, 10); ok {
			st.TotalPrize.Add(st.TotalPrize, p)
		}
	}
	st.Winners = len(winners)
	return st, rows.Err()
}
