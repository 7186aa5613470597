package broker

import (
	"context"
	"net"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"github.com/eclipse-opendut/opendut-sub001/internal/model"
	"github.com/eclipse-opendut/opendut-sub001/internal/peerauth"
	"github.com/eclipse-opendut/opendut-sub001/internal/rpc"
	"github.com/eclipse-opendut/opendut-sub001/internal/store"
)

// Server implements rpc.PeerBrokerServer: the CARL-side Connect handler
// described in spec.md §4.3. One call runs for the lifetime of one EDGAR's
// stream; peer identity comes from the peerauth interceptor, not an
// in-band register message (unlike the teacher's Register-message
// handshake, since spec.md authenticates the stream itself).
type Server struct {
	registry        *Registry
	store           store.Store
	disconnectAfter time.Duration
}

// NewServer constructs a Server. disconnectAfter is peer.disconnect.timeout.ms
// from spec.md §7.
func NewServer(registry *Registry, s store.Store, disconnectAfter time.Duration) *Server {
	return &Server{registry: registry, store: s, disconnectAfter: disconnectAfter}
}

func (s *Server) Connect(stream rpc.PeerBroker_ConnectServer) error {
	ctx := stream.Context()
	peerId, ok := peerauth.PeerIdFromContext(ctx)
	if !ok {
		return status.Error(codes.Unauthenticated, "broker: missing peer identity")
	}

	remoteHost := remoteHostOf(ctx)

	existing, found, err := store.Get[model.PeerState](ctx, s.store, store.KindPeerState, peerId.UUID)
	if err != nil {
		return status.Errorf(codes.Internal, "broker: %v", err)
	}
	if found && existing.IsOnline() {
		return status.Error(codes.AlreadyExists, (&PeerAlreadyConnectedError{PeerId: peerId.String()}).Error())
	}

	if err := s.registry.register(ctx, peerId, remoteHost, stream); err != nil {
		return status.Error(codes.AlreadyExists, err.Error())
	}
	defer s.registry.unregister(context.Background(), peerId)

	s.pushLatest(peerId, stream)

	inbound := make(chan *rpc.PeerMessage, 1)
	recvErr := make(chan error, 1)
	go func() {
		for {
			msg, err := stream.Recv()
			if err != nil {
				recvErr <- err
				return
			}
			inbound <- msg
		}
	}()

	timeout := s.disconnectAfter
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case msg := <-inbound:
			if !timer.Stop() {
				<-timer.C
			}
			timer.Reset(timeout)
			if msg.Ping != nil {
				if err := stream.Send(&rpc.CoordinatorMessage{Pong: &rpc.PongMessage{}}); err != nil {
					return err
				}
			}
		case err := <-recvErr:
			return err
		case <-timer.C:
			return status.Error(codes.DeadlineExceeded, "broker: peer disconnect timeout exceeded")
		}
	}
}

// pushLatest sends the currently-stored PeerConfiguration/OldPeerConfiguration
// pair to a just-connected peer, per spec.md §4.3 ("a peer that connects
// later receives the latest pair on open").
func (s *Server) pushLatest(peerId model.PeerId, stream rpc.PeerBroker_ConnectServer) {
	cfg, foundCfg, err := store.Get[model.PeerConfiguration](context.Background(), s.store, store.KindPeerConfiguration, peerId.UUID)
	if err != nil || !foundCfg {
		return
	}
	old, _, err := store.Get[model.OldPeerConfiguration](context.Background(), s.store, store.KindOldPeerConfiguration, peerId.UUID)
	if err != nil {
		return
	}
	_ = stream.Send(&rpc.CoordinatorMessage{
		ApplyPeerConfiguration: &rpc.ApplyPeerConfigurationMessage{
			OldPeerConfiguration: rpc.OldPeerConfigurationToWire(old),
			PeerConfiguration:    rpc.PeerConfigurationToWire(cfg),
		},
	})
}

func remoteHostOf(ctx context.Context) net.IP {
	p, ok := peer.FromContext(ctx)
	if !ok || p.Addr == nil {
		return nil
	}
	host, _, err := net.SplitHostPort(p.Addr.String())
	if err != nil {
		return net.ParseIP(p.Addr.String())
	}
	return net.ParseIP(host)
}
