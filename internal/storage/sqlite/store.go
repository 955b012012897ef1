// Package sqlite is a storage.Store on an embedded SQLite database.
package sqlite

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"

	"github.com/vadiminshakov/depositledger/internal/storage"

	_ "modernc.org/sqlite"
)

// Store keeps entities in a single (kind, id) keyed table.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at path. Use ":memory:" for a private in-memory database.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "open sqlite")
	}
	// one connection: in-memory databases are per connection, and writes are serialised anyway
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "migrate sqlite")
	}

	return s, nil
}

func (s *Store) migrate() error {
	query := `
	CREATE TABLE IF NOT EXISTS entities (
		kind TEXT NOT NULL,
		id TEXT NOT NULL,
		body BLOB NOT NULL,
		PRIMARY KEY (kind, id)
	);`
	_, err := s.db.ExecContext(context.Background(), query)
	return err
}

// Update implements storage.Store.
func (s *Store) Update(ctx context.Context, fn func(tx storage.Tx) error) error {
	return s.run(ctx, false, fn)
}

// View implements storage.Store.
func (s *Store) View(ctx context.Context, fn func(tx storage.Tx) error) error {
	return s.run(ctx, true, fn)
}

func (s *Store) run(ctx context.Context, readOnly bool, fn func(tx storage.Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin sqlite tx")
	}

	if err := fn(&tx{ctx: ctx, tx: sqlTx, readOnly: readOnly}); err != nil {
		_ = sqlTx.Rollback()
		return err
	}

	if readOnly {
		return sqlTx.Rollback()
	}

	return errors.Wrap(sqlTx.Commit(), "commit sqlite tx")
}

// Close implements storage.Store.
func (s *Store) Close() error {
	return s.db.Close()
}

type tx struct {
	ctx      context.Context
	tx       *sql.Tx
	readOnly bool
}

func (t *tx) Get(kind storage.Kind, id string) ([]byte, bool, error) {
	var body []byte
	err := t.tx.QueryRowContext(t.ctx, `SELECT body FROM entities WHERE kind = ? AND id = ?`, string(kind), id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	return body, true, nil
}

func (t *tx) Put(kind storage.Kind, id string, payload []byte) error {
	if t.readOnly {
		return storage.ErrReadOnly
	}

	_, err := t.tx.ExecContext(t.ctx, `
		INSERT INTO entities (kind, id, body) VALUES (?, ?, ?)
		ON CONFLICT (kind, id) DO UPDATE SET body = excluded.body`,
		string(kind), id, payload)

	return err
}

type row struct {
	id   string
	body []byte
}

func (t *tx) Scan(kind storage.Kind, fn func(id string, payload []byte) error) error {
	rows, err := t.tx.QueryContext(t.ctx, `SELECT id, body FROM entities WHERE kind = ? ORDER BY id`, string(kind))
	if err != nil {
		return err
	}

	// drain before calling fn so callbacks can issue their own queries on this tx
	var all []row
	for rows.Next() {
		var r row
		if err := rows.Scan(&r.id, &r.body); err != nil {
			_ = rows.Close()
			return err
		}
		all = append(all, r)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return err
	}
	if err := rows.Close(); err != nil {
		return err
	}

	for _, r := range all {
		if err := fn(r.id, r.body); err != nil {
			return err
		}
	}

	return nil
}
