package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"paycore.org/internal/engine"
)

const schema = `
create table if not exists accounts (
	client     integer primary key,
	available  integer not null,
	held       integer not null,
	locked     integer not null,
	updated_at text    not null default (datetime('now'))
);
create table if not exists entries (
	client integer not null,
	tx     integer not null,
	kind   integer not null,
	amount integer not null,
	state  integer not null,
	primary key (client, tx)
);
`

// Store persists final account snapshots in a local SQLite file. The batch
// CLI uses it to keep run results inspectable without a Postgres instance.
type Store struct {
	db *sql.DB
}

// Open opens (and if needed creates) the snapshot database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Save upserts every account and ledger entry of the registry in one
// transaction.
func (s *Store) Save(ctx context.Context, reg *engine.Registry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, snap := range reg.Snapshots() {
		if _, err := tx.ExecContext(ctx, `
			insert into accounts(client, available, held, locked, updated_at)
			values (?,?,?,?, datetime('now'))
			on conflict (client) do update
			set available = excluded.available,
			    held      = excluded.held,
			    locked    = excluded.locked,
			    updated_at = datetime('now')
		`, int64(snap.Client), int64(snap.Available), int64(snap.Held), snap.Locked); err != nil {
			return fmt.Errorf("save account %d: %w", snap.Client, err)
		}
		for _, e := range reg.ExportEntries(snap.Client) {
			if _, err := tx.ExecContext(ctx, `
				insert into entries(client, tx, kind, amount, state)
				values (?,?,?,?,?)
				on conflict (client, tx) do update set state = excluded.state
			`, int64(snap.Client), int64(e.Tx), int64(e.Kind), int64(e.Amount), int64(e.State)); err != nil {
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
		var client, available, held int64
		var locked bool
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
		var client, tx, kind, amount, state int64
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
