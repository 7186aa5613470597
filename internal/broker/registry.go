// Package broker implements the peer messaging broker (L3): CARL's side
// of the bidirectional gRPC stream each connected EDGAR holds open, a
// registry of live connections keyed by peer id, and automatic push of
// PeerConfiguration updates as the store's subscription events fire.
//
// Grounded on the teacher's Registry/conn pattern in
// api_balancing/internal/control/server.go: a mutex-guarded map of peer id
// to stream, a single receive loop per connection, and Send* helpers that
// look the connection up and write to its stream.
package broker

import (
	"context"
	"net"
	"sync"
	"time"

	"go.opentelemetry.io/otel/propagation"

	"github.com/eclipse-opendut/opendut-sub001/internal/model"
	"github.com/eclipse-opendut/opendut-sub001/internal/rpc"
	"github.com/eclipse-opendut/opendut-sub001/internal/store"
	"github.com/eclipse-opendut/opendut-sub001/pkg/logging"
)

// traceparentPropagator formats the span context carried on ctx (if any)
// as a W3C traceparent header value, for attachment to every downstream
// message (spec.md §6). A bare carrier is used since the stream, not an
// HTTP request, is the transport here.
var traceparentPropagator = propagation.TraceContext{}

type headerCarrier map[string]string

func (h headerCarrier) Get(key string) string { return h[key] }
func (h headerCarrier) Set(key, value string) { h[key] = value }
func (h headerCarrier) Keys() []string {
	keys := make([]string, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	return keys
}

type conn struct {
	stream rpc.PeerBroker_ConnectServer
	last   time.Time
}

// Registry holds one live stream per connected peer and keeps each peer's
// PeerState.Connection in the store in sync with stream lifecycle.
type Registry struct {
	mu    sync.RWMutex
	conns map[model.PeerId]*conn

	store  store.Store
	logger logging.Logger
}

// New constructs a Registry bound to s. It does not itself register as a
// gRPC service; wrap it with a Server (server.go) and call
// rpc.RegisterPeerBrokerServer.
func New(s store.Store, logger logging.Logger) *Registry {
	return &Registry{conns: make(map[model.PeerId]*conn), store: s, logger: logger}
}

// IsConnected reports whether peerId currently has a live stream.
func (r *Registry) IsConnected(peerId model.PeerId) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.conns[peerId]
	return ok
}

// register adds a new stream under peerId, rejecting a second concurrent
// connection for the same peer, and marks the peer Online in the store.
func (r *Registry) register(ctx context.Context, peerId model.PeerId, remoteHost net.IP, stream rpc.PeerBroker_ConnectServer) error {
	r.mu.Lock()
	if _, exists := r.conns[peerId]; exists {
		r.mu.Unlock()
		return &PeerAlreadyConnectedError{PeerId: peerId.String()}
	}
	r.conns[peerId] = &conn{stream: stream, last: time.Now()}
	r.mu.Unlock()

	return r.store.Mutate(ctx, func(v store.View) error {
		state := currentState(v, peerId)
		state.Connection = model.Online(remoteHost)
		return v.Insert(store.KindPeerState, peerId.UUID, state)
	})
}

// unregister drops peerId's stream and marks it Offline in the store. The
// Connect handler defers it only once register has succeeded: it removes
// whatever entry is held for peerId, so calling it after a rejected
// register would drop the other stream's entry and mark that peer Offline.
func (r *Registry) unregister(ctx context.Context, peerId model.PeerId) {
	r.mu.Lock()
	delete(r.conns, peerId)
	r.mu.Unlock()

	err := r.store.Mutate(ctx, func(v store.View) error {
		state := currentState(v, peerId)
		state.Connection = model.Offline()
		return v.Insert(store.KindPeerState, peerId.UUID, state)
	})
	if err != nil {
		r.logger.WithError(err).WithField("peer_id", peerId.String()).Warn("failed to mark peer offline on disconnect")
	}
}

func (r *Registry) touch(peerId model.PeerId) {
	r.mu.Lock()
	if c, ok := r.conns[peerId]; ok {
		c.last = time.Now()
	}
	r.mu.Unlock()
}

func currentState(v store.View, peerId model.PeerId) model.PeerState {
	raw, ok, err := v.Get(store.KindPeerState, peerId.UUID)
	if err != nil || !ok {
		return model.NewPeerState()
	}
	return raw.(model.PeerState)
}

// SendApplyPeerConfiguration pushes the given configuration pair to peerId
// if it is currently connected. Callers that need delivery guarantees
// should treat PeerNotConnectedError as "deliver on next connect" and rely
// on the store being the durable source of truth, not this call.
func (r *Registry) SendApplyPeerConfiguration(ctx context.Context, peerId model.PeerId, old model.OldPeerConfiguration, cfg model.PeerConfiguration) error {
	r.mu.RLock()
	c := r.conns[peerId]
	r.mu.RUnlock()
	if c == nil {
		return &PeerNotConnectedError{PeerId: peerId.String()}
	}

	carrier := make(headerCarrier)
	traceparentPropagator.Inject(ctx, carrier)

	msg := &rpc.CoordinatorMessage{
		ApplyPeerConfiguration: &rpc.ApplyPeerConfigurationMessage{
			OldPeerConfiguration: rpc.OldPeerConfigurationToWire(old),
			PeerConfiguration:    rpc.PeerConfigurationToWire(cfg),
		},
		Traceparent: carrier.Get("traceparent"),
	}
	return c.stream.Send(msg)
}

// connectedPeerIds returns a snapshot of every currently connected peer id.
func (r *Registry) connectedPeerIds() []model.PeerId {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]model.PeerId, 0, len(r.conns))
	for id := range r.conns {
		ids = append(ids, id)
	}
	return ids
}
