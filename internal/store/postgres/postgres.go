// Package postgres implements store.Store over a relational backend: one
// JSONB-valued table per resource kind, transactions backed by *sql.Tx.
// Connection handling mirrors the teacher's pkg/database/postgres.go
// (lib/pq driver, pooled *sql.DB, PingContext on connect).
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"github.com/eclipse-opendut/opendut-sub001/internal/store"
)

// Config mirrors the teacher's database.Config shape.
type Config struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

func DefaultConfig() Config {
	return Config{MaxOpenConns: 25, MaxIdleConns: 5, ConnMaxLifetime: 5 * time.Minute}
}

// Store is the relational backend for store.Store.
type Store struct {
	db *sql.DB

	subMu    sync.Mutex
	subs     map[store.ResourceKind][]chan store.Event
	decoders map[store.ResourceKind]Decoder
}

// Connect opens a pooled connection and ensures the resource tables exist.
func Connect(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("postgres: URL is required")
	}
	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	s := &Store{db: db, subs: make(map[store.ResourceKind][]chan store.Event)}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	for _, kind := range allKinds {
		stmt := fmt.Sprintf(`create table if not exists resource_%s (
			id uuid primary key,
			value jsonb not null,
			updated_at timestamptz not null default now()
		)`, kind)
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return wrapErr("migrate", err)
		}
	}
	return nil
}

var allKinds = []store.ResourceKind{
	store.KindPeerDescriptor,
	store.KindDeviceDescriptor,
	store.KindPeerState,
	store.KindClusterConfiguration,
	store.KindClusterDeployment,
	store.KindPeerConfiguration,
	store.KindOldPeerConfiguration,
}

func (s *Store) Close() error { return s.db.Close() }

func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &store.PersistenceError{Op: op, Err: err}
}

func table(kind store.ResourceKind) string { return "resource_" + string(kind) }

// view wraps a *sql.Tx (or, for read-only Resources access, a bare *sql.DB
// via the queryable interface) behind store.View. A decoder function must
// be supplied out-of-band by callers via RegisterDecoder since the store layer
// stores values as opaque JSON and does not know Go types for each kind;
// see Decoder.
type queryable interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Decoder converts a resource kind's raw JSON back into the Go value the
// rest of the system expects. RegisterDecoder must be called once per kind
// before that kind's resources are read back out of postgres.
type Decoder func(raw []byte) (any, error)

func (s *Store) RegisterDecoder(kind store.ResourceKind, dec Decoder) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	if s.decoders == nil {
		s.decoders = make(map[store.ResourceKind]Decoder)
	}
	s.decoders[kind] = dec
}

type view struct {
	ctx     context.Context
	q       queryable
	store   *Store
	pending []store.Event
}

func (v *view) decode(kind store.ResourceKind, raw []byte) (any, error) {
	dec := v.store.decoders[kind]
	if dec == nil {
		var out map[string]any
		if err := json.Unmarshal(raw, &out); err != nil {
			return nil, err
		}
		return out, nil
	}
	return dec(raw)
}

func (v *view) Insert(kind store.ResourceKind, id uuid.UUID, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return wrapErr("insert/marshal", err)
	}
	stmt := fmt.Sprintf(`insert into %s (id, value, updated_at) values ($1, $2, now())
		on conflict (id) do update set value = excluded.value, updated_at = now()`, table(kind))
	if _, err := v.q.ExecContext(v.ctx, stmt, id, raw); err != nil {
		return wrapErr("insert", err)
	}
	v.pending = append(v.pending, store.Event{Kind: store.Inserted, ResourceKind: kind, Id: id, Value: value})
	return nil
}

func (v *view) Remove(kind store.ResourceKind, id uuid.UUID) (any, bool, error) {
	existing, ok, err := v.Get(kind, id)
	if err != nil || !ok {
		return nil, ok, err
	}
	stmt := fmt.Sprintf(`delete from %s where id = $1`, table(kind))
	if _, err := v.q.ExecContext(v.ctx, stmt, id); err != nil {
		return nil, false, wrapErr("remove", err)
	}
	v.pending = append(v.pending, store.Event{Kind: store.Removed, ResourceKind: kind, Id: id, Value: existing})
	return existing, true, nil
}

func (v *view) Get(kind store.ResourceKind, id uuid.UUID) (any, bool, error) {
	stmt := fmt.Sprintf(`select value from %s where id = $1`, table(kind))
	var raw []byte
	err := v.q.QueryRowContext(v.ctx, stmt, id).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, wrapErr("get", err)
	}
	value, err := v.decode(kind, raw)
	if err != nil {
		return nil, false, wrapErr("get/decode", err)
	}
	return value, true, nil
}

func (v *view) List(kind store.ResourceKind) (map[uuid.UUID]any, error) {
	stmt := fmt.Sprintf(`select id, value from %s`, table(kind))
	rows, err := v.q.QueryContext(v.ctx, stmt)
	if err != nil {
		return nil, wrapErr("list", err)
	}
	defer rows.Close()

	out := make(map[uuid.UUID]any)
	for rows.Next() {
		var id uuid.UUID
		var raw []byte
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, wrapErr("list/scan", err)
		}
		value, err := v.decode(kind, raw)
		if err != nil {
			return nil, wrapErr("list/decode", err)
		}
		out[id] = value
	}
	return out, wrapErr("list/rows", rows.Err())
}

func (s *Store) Resources(ctx context.Context, fn func(store.View) error) error {
	return fn(&view{ctx: ctx, q: s.db, store: s})
}

func (s *Store) Mutate(ctx context.Context, fn func(store.View) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapErr("begin", err)
	}
	v := &view{ctx: ctx, q: tx, store: s}
	if err := fn(v); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return wrapErr("commit", err)
	}
	s.publish(v.pending)
	return nil
}

func (s *Store) publish(events []store.Event) {
	if len(events) == 0 {
		return
	}
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for _, ev := range events {
		for _, ch := range s.subs[ev.ResourceKind] {
			select {
			case ch <- ev:
			default:
			}
		}
	}
}

func (s *Store) Subscribe(kind store.ResourceKind) store.Subscription {
	ch := make(chan store.Event, 64)
	s.subMu.Lock()
	s.subs[kind] = append(s.subs[kind], ch)
	s.subMu.Unlock()

	cancel := func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		list := s.subs[kind]
		for i, c := range list {
			if c == ch {
				s.subs[kind] = append(list[:i], list[i+1:]...)
				close(ch)
				return
			}
		}
	}
	return store.Subscription{Events: ch, Cancel: cancel}
}
