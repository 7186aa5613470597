package agent

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/eclipse-opendut/opendut-sub001/internal/edge/applier"
	"github.com/eclipse-opendut/opendut-sub001/internal/edge/process"
	"github.com/eclipse-opendut/opendut-sub001/internal/model"
	"github.com/eclipse-opendut/opendut-sub001/internal/rpc"
)

func emptyOld() model.OldPeerConfiguration { return model.OldPeerConfiguration{} }
func emptyConfig() model.PeerConfiguration { return model.PeerConfiguration{} }

// fakeStream feeds a scripted sequence of CoordinatorMessages to Recv and
// records every outgoing PeerMessage, grounded on the teacher's own
// fakeMeshClient seam (api_mesh/internal/agent/agent_test.go).
type fakeStream struct {
	mu   sync.Mutex
	in   chan *rpc.CoordinatorMessage
	sent []*rpc.PeerMessage
	done chan struct{}
}

func newFakeStream() *fakeStream {
	return &fakeStream{in: make(chan *rpc.CoordinatorMessage, 8), done: make(chan struct{})}
}

func (f *fakeStream) Send(msg *rpc.PeerMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakeStream) Recv() (*rpc.CoordinatorMessage, error) {
	select {
	case msg := <-f.in:
		return msg, nil
	case <-f.done:
		return nil, fmt.Errorf("stream closed")
	}
}

func (f *fakeStream) close() { close(f.done) }

func noopApplier(t *testing.T) *applier.Applier {
	t.Helper()
	return applier.New(nil, process.New(), nil, t.TempDir(), nil)
}

func TestAgentAppliesPushedConfigurationAndReportsHealthy(t *testing.T) {
	stream := newFakeStream()
	a := newAgent(stream, noopApplier(t), nil)

	stream.in <- &rpc.CoordinatorMessage{
		ApplyPeerConfiguration: &rpc.ApplyPeerConfigurationMessage{
			OldPeerConfiguration: rpc.OldPeerConfigurationToWire(emptyOld()),
			PeerConfiguration:    rpc.PeerConfigurationToWire(emptyConfig()),
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	runErr := make(chan error, 1)
	go func() { runErr <- a.Run(ctx) }()

	require.Eventually(t, a.Healthy, time.Second, time.Millisecond)

	cancel()
	stream.close()
	<-runErr
}

func TestAgentPingSendsPingMessage(t *testing.T) {
	stream := newFakeStream()
	a := newAgent(stream, noopApplier(t), nil)

	require.NoError(t, a.Ping())
	require.Len(t, stream.sent, 1)
	require.NotNil(t, stream.sent[0].Ping)
}

func TestAgentSupersedesInFlightApplyOnNewerPush(t *testing.T) {
	stream := newFakeStream()
	a := newAgent(stream, noopApplier(t), nil)

	msg := &rpc.CoordinatorMessage{
		ApplyPeerConfiguration: &rpc.ApplyPeerConfigurationMessage{
			OldPeerConfiguration: rpc.OldPeerConfigurationToWire(emptyOld()),
			PeerConfiguration:    rpc.PeerConfigurationToWire(emptyConfig()),
		},
	}
	stream.in <- msg
	stream.in <- msg

	ctx, cancel := context.WithCancel(context.Background())
	runErr := make(chan error, 1)
	go func() { runErr <- a.Run(ctx) }()

	require.Eventually(t, a.Healthy, time.Second, time.Millisecond)

	cancel()
	stream.close()
	<-runErr
}
