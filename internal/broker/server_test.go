package broker

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/eclipse-opendut/opendut-sub001/internal/model"
	"github.com/eclipse-opendut/opendut-sub001/internal/peerauth"
	"github.com/eclipse-opendut/opendut-sub001/internal/rpc"
	"github.com/eclipse-opendut/opendut-sub001/internal/store/memory"
)

// fakeServerStream is a minimal rpc.PeerBroker_ConnectServer, grounded on
// the same fake-stream idiom used for the EDGAR-side client in
// internal/edge/agent/agent_test.go, adapted to the server-side interface
// (embeds grpc.ServerStream instead of grpc.ClientStream).
type fakeServerStream struct {
	ctx context.Context

	mu   sync.Mutex
	sent []*rpc.CoordinatorMessage
	in   chan *rpc.PeerMessage
	done chan struct{}
}

func newFakeServerStream(peerId model.PeerId) *fakeServerStream {
	return &fakeServerStream{
		ctx:  peerauth.ContextWithPeerId(context.Background(), peerId),
		in:   make(chan *rpc.PeerMessage, 8),
		done: make(chan struct{}),
	}
}

func (f *fakeServerStream) Send(m *rpc.CoordinatorMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, m)
	return nil
}

func (f *fakeServerStream) Recv() (*rpc.PeerMessage, error) {
	select {
	case msg := <-f.in:
		return msg, nil
	case <-f.done:
		return nil, fmt.Errorf("stream closed")
	}
}

func (f *fakeServerStream) close() { close(f.done) }

func (f *fakeServerStream) Context() context.Context        { return f.ctx }
func (f *fakeServerStream) SetHeader(metadata.MD) error      { return nil }
func (f *fakeServerStream) SendHeader(metadata.MD) error     { return nil }
func (f *fakeServerStream) SetTrailer(metadata.MD)           {}
func (f *fakeServerStream) SendMsg(m any) error              { return nil }
func (f *fakeServerStream) RecvMsg(m any) error              { return nil }

// TestConnectRejectsSecondStreamForSameConnectedPeer exercises spec.md §8
// scenario 4 ("duplicate stream"): a second Connect for an already-online
// peer is rejected and the original connection is unaffected.
func TestConnectRejectsSecondStreamForSameConnectedPeer(t *testing.T) {
	s := memory.New()
	registry := New(s, nil)
	server := NewServer(registry, s, time.Hour)

	peerId := model.NewPeerId()
	first := newFakeServerStream(peerId)
	firstErr := make(chan error, 1)
	go func() { firstErr <- server.Connect(first) }()

	require.Eventually(t, func() bool { return registry.IsConnected(peerId) }, time.Second, time.Millisecond)

	second := newFakeServerStream(peerId)
	err := server.Connect(second)
	require.Error(t, err)
	st, ok := status.FromError(err)
	require.True(t, ok)
	require.Equal(t, codes.AlreadyExists, st.Code())

	require.True(t, registry.IsConnected(peerId), "the original connection must survive a rejected duplicate")

	first.close()
	<-firstErr
}

// TestConnectDisconnectsAfterLivenessTimeout exercises spec.md §8 scenario
// 5 ("liveness timeout"): pings within the window keep the peer online;
// once pings stop, the stream is torn down once the timeout elapses and
// the registry entry is removed.
func TestConnectDisconnectsAfterLivenessTimeout(t *testing.T) {
	s := memory.New()
	registry := New(s, nil)
	server := NewServer(registry, s, 60*time.Millisecond)

	peerId := model.NewPeerId()
	stream := newFakeServerStream(peerId)
	connectErr := make(chan error, 1)
	go func() { connectErr <- server.Connect(stream) }()

	require.Eventually(t, func() bool { return registry.IsConnected(peerId) }, time.Second, time.Millisecond)

	for i := 0; i < 4; i++ {
		stream.in <- &rpc.PeerMessage{Ping: &rpc.PingMessage{}}
		time.Sleep(20 * time.Millisecond)
	}
	require.True(t, registry.IsConnected(peerId), "peer must stay online while pings keep arriving inside the timeout window")

	select {
	case err := <-connectErr:
		st, ok := status.FromError(err)
		require.True(t, ok)
		require.Equal(t, codes.DeadlineExceeded, st.Code())
	case <-time.After(time.Second):
		t.Fatal("Connect did not return after the liveness timeout elapsed")
	}
	require.False(t, registry.IsConnected(peerId))
}
