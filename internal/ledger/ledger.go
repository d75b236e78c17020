// Package ledger keeps a local record of tokens minted from this machine.
// It is a convenience cache for the catalog and profile views; the chain
// stays the source of truth for ownership.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned by Get for an unrecorded token.
var ErrNotFound = errors.New("token not in ledger")

// Entry is one minted token.
type Entry struct {
	TokenID  uint64
	Account  string
	TxHash   string
	Name     string
	MintedAt time.Time
}

// Ledger is the sqlite-backed store. Token IDs are unique; recording an ID
// twice keeps the first entry.
type Ledger struct {
	db *sql.DB
}

// Open opens (or creates) the ledger database at path.
func Open(path string) (*Ledger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("creating ledger dir: %w", err)
	}
	return OpenDSN(path)
}

// OpenDSN opens a ledger using a sqlite DSN. Tests pass ":memory:".
func OpenDSN(dsn string) (*Ledger, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open ledger db: %w", err)
	}
	// every :memory: connection is its own database
	db.SetMaxOpenConns(1)

	if err := ensureSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Ledger{db: db}, nil
}

func ensureSchema(db *sql.DB) error {
	_, err := db.Exec(`
CREATE TABLE IF NOT EXISTS minted (
	token_id  INTEGER PRIMARY KEY,
	account   TEXT NOT NULL,
	tx_hash   TEXT NOT NULL DEFAULT '',
	name      TEXT NOT NULL DEFAULT '',
	minted_at INTEGER NOT NULL
);
`)
	if err != nil {
		return fmt.Errorf("create minted table: %w", err)
	}
	return nil
}

// Close closes the underlying DB.
func (l *Ledger) Close() error {
	if l == nil || l.db == nil {
		return nil
	}
	return l.db.Close()
}

// Record stores entries in one transaction. A zero MintedAt is stamped with
// the current time.
func (l *Ledger) Record(ctx context.Context, entries ...Entry) error {
	if len(entries) == 0 {
		return nil
	}
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin ledger write: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	now := time.Now()
	for _, e := range entries {
		if e.Account == "" {
			return fmt.Errorf("recording token %d: account is required", e.TokenID)
		}
		at := e.MintedAt
		if at.IsZero() {
			at = now
		}
		_, err := tx.ExecContext(ctx, `
INSERT INTO minted (token_id, account, tx_hash, name, minted_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(token_id) DO NOTHING
`, int64(e.TokenID), e.Account, e.TxHash, e.Name, at.UnixMilli())
		if err != nil {
			return fmt.Errorf("recording token %d: %w", e.TokenID, err)
		}
	}
	return tx.Commit()
}

// IsMinted reports whether id is recorded.
func (l *Ledger) IsMinted(ctx context.Context, id uint64) (bool, error) {
	var n int
	err := l.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM minted WHERE token_id = ?`, int64(id)).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("checking token %d: %w", id, err)
	}
	return n > 0, nil
}

// Get returns the entry for id.
func (l *Ledger) Get(ctx context.Context, id uint64) (*Entry, error) {
	row := l.db.QueryRowContext(ctx,
		`SELECT token_id, account, tx_hash, name, minted_at FROM minted WHERE token_id = ?`, int64(id))
	e, err := scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("reading token %d: %w", id, err)
	}
	return e, nil
}

// List returns every entry in mint order.
func (l *Ledger) List(ctx context.Context) ([]Entry, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT token_id, account, tx_hash, name, minted_at FROM minted ORDER BY minted_at, token_id`)
	if err != nil {
		return nil, fmt.Errorf("listing ledger: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		e, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("listing ledger: %w", err)
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

// IDs returns the recorded token IDs in ascending order.
func (l *Ledger) IDs(ctx context.Context) ([]uint64, error) {
	rows, err := l.db.QueryContext(ctx, `SELECT token_id FROM minted ORDER BY token_id`)
	if err != nil {
		return nil, fmt.Errorf("listing token ids: %w", err)
	}
	defer rows.Close()

	var ids []uint64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, uint64(id))
	}
	return ids, rows.Err()
}

// MintedSet returns the recorded IDs as a lookup function for catalog
// filtering.
func (l *Ledger) MintedSet(ctx context.Context) (func(uint64) bool, error) {
	ids, err := l.IDs(ctx)
	if err != nil {
		return nil, err
	}
	set := make(map[uint64]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return func(id uint64) bool {
		_, ok := set[id]
		return ok
	}, nil
}

// Count returns the number of recorded tokens.
func (l *Ledger) Count(ctx context.Context) (int, error) {
	var n int
	if err := l.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM minted`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting ledger: %w", err)
	}
	return n, nil
}

// LimitReached reports whether at least max tokens are recorded.
func (l *Ledger) LimitReached(ctx context.Context, max int) (bool, error) {
	n, err := l.Count(ctx)
	if err != nil {
		return false, err
	}
	return n >= max, nil
}

// Clear removes every entry.
func (l *Ledger) Clear(ctx context.Context) error {
	if _, err := l.db.ExecContext(ctx, `DELETE FROM minted`); err != nil {
		return fmt.Errorf("clearing ledger: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scan(s scanner) (*Entry, error) {
	var (
		e  Entry
		id int64
		at int64
	)
	if err := s.Scan(&id, &e.Account, &e.TxHash, &e.Name, &at); err != nil {
		return nil, err
	}
	e.TokenID = uint64(id)
	e.MintedAt = time.UnixMilli(at)
	return &e, nil
}
