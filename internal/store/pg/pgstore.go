package pg

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"paycore.org/internal/engine"
)

// Store persists end-of-stream registry state (accounts plus their ledger
// entries) in PostgreSQL. Intermediate state is never written; callers
// snapshot a registry once a drain finished.
type Store struct {
	db *sql.DB
}

func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	// Tuned pool defaults; adjust under load tests
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db}, nil
}

// NewWithDB wraps an existing connection (used by tests).
func NewWithDB(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

// Save upserts every account and ledger entry of the registry in one
// transaction. Entries are append-only apart from their dispute state, so
// conflicts only refresh the state column.
func (s *Store) Save(ctx context.Context, reg *engine.Registry) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, snap := range reg.Snapshots() {
		if _, err := tx.ExecContext(ctx, `
			insert into accounts(client, available, held, locked, updated_at)
			values ($1,$2,$3,$4, now())
			on conflict (client) do update
			set available = excluded.available,
			    held      = excluded.held,
			    locked    = excluded.locked,
			    updated_at = now()
		`, int64(snap.Client), int64(snap.Available), int64(snap.Held), snap.Locked); err != nil {
			return fmt.Errorf("save account %d: %w", snap.Client, err)
		}
		for _, e := range reg.ExportEntries(snap.Client) {
			if _, err := tx.ExecContext(ctx, `
				insert into entries(client, tx, kind, amount, state)
				values ($1,$2,$3,$4,$5)
				on conflict (client, tx) do update set state = excluded.state
			`, int64(snap.Client), int64(e.Tx), int16(e.Kind), int64(e.Amount), int16(e.State)); err != nil {
				return fmt.Errorf("save entry %d/%d: %w", snap.Client, e.Tx, err)
			}
		}
	}
	return tx.Commit()
}

// Load rebuilds a registry from the persisted state.
func (s *Store) Load(ctx context.Context) (*engine.Registry, error) {
	entries, err := s.loadEntries(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `select client, available, held, locked from accounts order by client`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	reg := engine.NewRegistry()
	for rows.Next() {
		var (
			client           int64
			available, held  int64
			locked           bool
		)
		if err := rows.Scan(&client, &available, &held, &locked); err != nil {
			return nil, err
		}
		if err := reg.Import(uint16(client), engine.Amount(available), engine.Amount(held), locked, entries[uint16(client)]); err != nil {
			return nil, err
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return reg, nil
}

func (s *Store) loadEntries(ctx context.Context) (map[uint16][]engine.EntryRecord, error) {
	rows, err := s.db.QueryContext(ctx, `select client, tx, kind, amount, state from entries order by client, tx`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[uint16][]engine.EntryRecord)
	for rows.Next() {
		var (
			client, tx, amount int64
			kind, state        int16
		)
		if err := rows.Scan(&client, &tx, &kind, &amount, &state); err != nil {
			return nil, err
		}
		rec := engine.EntryRecord{
			Tx:     uint32(tx),
			Kind:   engine.Kind(kind),
			Amount: engine.Amount(amount),
			State:  engine.DisputeState(state),
		}
		out[uint16(client)] = append(out[uint16(client)], rec)
	}
	return out, rows.Err()
}
