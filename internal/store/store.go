// Package store implements the resource store (L1): a transactional
// key/value store over typed resources with subscription fan-out, as
// specified in spec.md §4.1. Two backends satisfy the same Store
// interface: store/memory (in-process map) and store/postgres
// (JSONB-per-kind relational table).
package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// ResourceKind names one of the typed resources kept in the store.
type ResourceKind string

const (
	KindPeerDescriptor       ResourceKind = "peer_descriptor"
	KindDeviceDescriptor     ResourceKind = "device_descriptor"
	KindPeerState            ResourceKind = "peer_state"
	KindClusterConfiguration ResourceKind = "cluster_configuration"
	KindClusterDeployment    ResourceKind = "cluster_deployment"
	KindPeerConfiguration    ResourceKind = "peer_configuration"
	KindOldPeerConfiguration ResourceKind = "old_peer_configuration"
)

// Key addresses one resource value: its kind plus its id.
type Key struct {
	Kind ResourceKind
	Id   uuid.UUID
}

// PersistenceError wraps a backend failure. Invariant violations are never
// represented this way — they surface from the action layer instead.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string { return fmt.Sprintf("persistence error during %s: %v", e.Op, e.Err) }
func (e *PersistenceError) Unwrap() error { return e.Err }

func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &PersistenceError{Op: op, Err: err}
}

// EventKind tags a subscription Event.
type EventKind int

const (
	Inserted EventKind = iota
	Removed
)

// Event is one subscription notification: an insert or remove, scoped to
// a single resource kind, delivered in the commit order of the emitting
// transaction.
type Event struct {
	Kind         EventKind
	ResourceKind ResourceKind
	Id           uuid.UUID
	Value        any
}

// Subscription is a bounded channel of Events for one resource kind.
// Cancel removes the subscription from the store's fan-out table and
// closes Events. An abandoned subscription is not removed automatically:
// it stays registered until Cancel is called, and events that do not fit
// in its buffer are dropped.
type Subscription struct {
	Events <-chan Event
	Cancel func()
}

// View is the grouped-access handle passed to Resources/Mutate
// closures. All reads/writes against a View occur inside the same
// transaction and under the same exclusive lock for Mutate.
type View interface {
	Insert(kind ResourceKind, id uuid.UUID, value any) error
	Remove(kind ResourceKind, id uuid.UUID) (any, bool, error)
	Get(kind ResourceKind, id uuid.UUID) (any, bool, error)
	List(kind ResourceKind) (map[uuid.UUID]any, error)
}

// Store is the resource store contract implemented by store/memory and
// store/postgres.
type Store interface {
	// Resources runs fn against a read-only snapshot view. Concurrent
	// reads may proceed in parallel with each other but not with an
	// in-flight Mutate transaction.
	Resources(ctx context.Context, fn func(View) error) error

	// Mutate opens one transaction, holds the store's exclusive lock for
	// its duration, and commits on a nil return or rolls back otherwise.
	// Subscription events recorded by View calls inside fn are released
	// to subscribers only after a successful commit, and in the order
	// they were recorded.
	Mutate(ctx context.Context, fn func(View) error) error

	// Subscribe returns a Subscription of Events for the given resource
	// kind. Events are emitted in the commit order of the transactions
	// that produced them.
	Subscribe(kind ResourceKind) Subscription

	// Close releases backend resources (e.g. a database connection pool).
	Close() error
}

// Get is a typed convenience wrapper over Store.Resources + View.Get.
func Get[R any](ctx context.Context, s Store, kind ResourceKind, id uuid.UUID) (R, bool, error) {
	var out R
	var found bool
	err := s.Resources(ctx, func(v View) error {
		raw, ok, err := v.Get(kind, id)
		if err != nil || !ok {
			return err
		}
		r, ok := raw.(R)
		if !ok {
			return fmt.Errorf("resource %s/%s has unexpected type %T", kind, id, raw)
		}
		out, found = r, true
		return nil
	})
	return out, found, err
}

// List is a typed convenience wrapper over Store.Resources + View.List.
func List[R any](ctx context.Context, s Store, kind ResourceKind) (map[uuid.UUID]R, error) {
	out := make(map[uuid.UUID]R)
	err := s.Resources(ctx, func(v View) error {
		raw, err := v.List(kind)
		if err != nil {
			return err
		}
		for id, value := range raw {
			r, ok := value.(R)
			if !ok {
				return fmt.Errorf("resource %s/%s has unexpected type %T", kind, id, value)
			}
			out[id] = r
		}
		return nil
	})
	return out, err
}
