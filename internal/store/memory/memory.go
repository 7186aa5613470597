// Package memory implements store.Store over an in-process map, guarded by
// a single reader/writer lock. It is grounded on the teacher's in-memory
// state keeper (api_balancing/internal/state/cache.go), which likewise
// keeps all live state behind one lock and hands out snapshot reads.
package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/eclipse-opendut/opendut-sub001/internal/store"
)

// Store is the in-memory, testing/ephemeral-deployment backend for
// store.Store.
type Store struct {
	mu   sync.RWMutex
	data map[store.ResourceKind]map[uuid.UUID]any

	subMu sync.Mutex
	subs  map[store.ResourceKind][]chan store.Event
}

func New() *Store {
	return &Store{
		data: make(map[store.ResourceKind]map[uuid.UUID]any),
		subs: make(map[store.ResourceKind][]chan store.Event),
	}
}

func (s *Store) Close() error { return nil }

// view is the transactional handle. Outside a Mutate call it operates
// read-only (writes return an error); inside one, writes stage directly
// into s.data (guarded by the write lock held for the whole transaction)
// and queue events for release on commit.
type view struct {
	store    *Store
	writable bool
	pending  []store.Event
}

func (v *view) Insert(kind store.ResourceKind, id uuid.UUID, value any) error {
	if !v.writable {
		return errReadOnly
	}
	bucket := v.store.data[kind]
	if bucket == nil {
		bucket = make(map[uuid.UUID]any)
		v.store.data[kind] = bucket
	}
	bucket[id] = value
	v.pending = append(v.pending, store.Event{Kind: store.Inserted, ResourceKind: kind, Id: id, Value: value})
	return nil
}

func (v *view) Remove(kind store.ResourceKind, id uuid.UUID) (any, bool, error) {
	if !v.writable {
		return nil, false, errReadOnly
	}
	bucket := v.store.data[kind]
	if bucket == nil {
		return nil, false, nil
	}
	value, ok := bucket[id]
	if !ok {
		return nil, false, nil
	}
	delete(bucket, id)
	v.pending = append(v.pending, store.Event{Kind: store.Removed, ResourceKind: kind, Id: id, Value: value})
	return value, true, nil
}

func (v *view) Get(kind store.ResourceKind, id uuid.UUID) (any, bool, error) {
	bucket := v.store.data[kind]
	if bucket == nil {
		return nil, false, nil
	}
	value, ok := bucket[id]
	return value, ok, nil
}

func (v *view) List(kind store.ResourceKind) (map[uuid.UUID]any, error) {
	bucket := v.store.data[kind]
	out := make(map[uuid.UUID]any, len(bucket))
	for id, value := range bucket {
		out[id] = value
	}
	return out, nil
}

type readOnlyErr struct{}

func (readOnlyErr) Error() string { return "store: write attempted outside a Mutate transaction" }

var errReadOnly = readOnlyErr{}

func (s *Store) Resources(ctx context.Context, fn func(store.View) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(&view{store: s, writable: false})
}

// snapshot returns a copy-on-write deep-enough duplicate of s.data: the
// outer kind map and every inner id->value bucket are copied, so mutations
// made directly against s.data during a transaction can be undone by
// restoring this snapshot on rollback.
func (s *Store) snapshot() map[store.ResourceKind]map[uuid.UUID]any {
	out := make(map[store.ResourceKind]map[uuid.UUID]any, len(s.data))
	for kind, bucket := range s.data {
		cp := make(map[uuid.UUID]any, len(bucket))
		for id, value := range bucket {
			cp[id] = value
		}
		out[kind] = cp
	}
	return out
}

func (s *Store) Mutate(ctx context.Context, fn func(store.View) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	before := s.snapshot()
	v := &view{store: s, writable: true}
	if err := fn(v); err != nil {
		s.data = before
		return err
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
				// Bounded channel full: drop rather than block the
				// committing transaction. A slow subscriber should resize
				// or drain faster; subscription events are a liveness
				// signal, not a durable log.
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
