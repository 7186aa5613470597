package postgres

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/eclipse-opendut/opendut-sub001/internal/store"
)

// newTestStore builds a Store around a sqlmock-backed *sql.DB, bypassing
// Connect's PingContext/migrate calls so each test only has to set
// expectations for the statements it actually exercises. Grounded on the
// teacher's own sqlmock store tests (api_dns/internal/store/store_test.go),
// which likewise construct the store directly around a mocked *sql.DB
// rather than going through a network-touching constructor.
func newTestStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return &Store{db: db, subs: make(map[store.ResourceKind][]chan store.Event)}, mock
}

func TestMutateInsertCommitsAndPublishes(t *testing.T) {
	s, mock := newTestStore(t)

	sub := s.Subscribe(store.KindPeerDescriptor)
	defer sub.Cancel()

	id := uuid.New()
	mock.ExpectBegin()
	mock.ExpectExec(`insert into resource_peer_descriptor`).
		WithArgs(id, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err := s.Mutate(context.Background(), func(v store.View) error {
		return v.Insert(store.KindPeerDescriptor, id, map[string]string{"name": "peer-a"})
	})
	require.NoError(t, err)

	select {
	case ev := <-sub.Events:
		require.Equal(t, store.Inserted, ev.Kind)
		require.Equal(t, id, ev.Id)
	default:
		t.Fatal("expected an Inserted event to have been published")
	}
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMutateRollsBackOnError(t *testing.T) {
	s, mock := newTestStore(t)

	mock.ExpectBegin()
	mock.ExpectRollback()

	boom := context.Canceled
	err := s.Mutate(context.Background(), func(v store.View) error {
		return boom
	})
	require.ErrorIs(t, err, boom)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestResourcesGetNotFound(t *testing.T) {
	s, mock := newTestStore(t)

	id := uuid.New()
	mock.ExpectQuery(`select value from resource_peer_descriptor where id = \$1`).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{"value"}))

	err := s.Resources(context.Background(), func(v store.View) error {
		_, ok, err := v.Get(store.KindPeerDescriptor, id)
		require.NoError(t, err)
		require.False(t, ok)
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestResourcesListUsesRegisteredDecoder(t *testing.T) {
	s, mock := newTestStore(t)

	var decoded []byte
	s.RegisterDecoder(store.KindPeerDescriptor, func(raw []byte) (any, error) {
		decoded = raw
		return "decoded-value", nil
	})

	id := uuid.New()
	mock.ExpectQuery(`select id, value from resource_peer_descriptor`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "value"}).AddRow(id, []byte(`{"name":"peer-a"}`)))

	err := s.Resources(context.Background(), func(v store.View) error {
		out, err := v.List(store.KindPeerDescriptor)
		require.NoError(t, err)
		require.Equal(t, "decoded-value", out[id])
		return nil
	})
	require.NoError(t, err)
	require.JSONEq(t, `{"name":"peer-a"}`, string(decoded))
	require.NoError(t, mock.ExpectationsWereMet())
}
