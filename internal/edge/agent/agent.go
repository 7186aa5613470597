// Package agent is the EDGAR-side counterpart of the CARL broker: it
// holds the peer stream open, applies pushed configurations through the
// edge applier (L6), and sends liveness pings. Grounded on the
// teacher's Agent sync loop (api_mesh/internal/agent/agent.go) — the
// healthy-flag bookkeeping is the same idiom (no consecutive-failure count
// is kept), adapted from a poll-then-diff loop to a push-driven Recv loop.
package agent

import (
	"context"
	"sync/atomic"

	"go.opentelemetry.io/otel/trace"

	"github.com/eclipse-opendut/opendut-sub001/internal/edge/applier"
	"github.com/eclipse-opendut/opendut-sub001/internal/rpc"
	"github.com/eclipse-opendut/opendut-sub001/pkg/logging"
)

// peerStreamClient is the subset of *rpc.Client the agent drives; a
// narrow interface so tests can substitute a fake stream, grounded on the
// teacher's own meshClient seam (api_mesh/internal/agent/agent_test.go).
type peerStreamClient interface {
	Send(*rpc.PeerMessage) error
	Recv() (*rpc.CoordinatorMessage, error)
}

// Agent drives one peer connection's lifecycle: receive-and-apply pushed
// configurations, send Pings, and supersede an in-flight apply when a
// newer configuration arrives before the previous one finishes.
type Agent struct {
	client  peerStreamClient
	applier *applier.Applier
	logger  logging.Logger

	healthy atomic.Bool
}

func New(client *rpc.Client, a *applier.Applier, logger logging.Logger) *Agent {
	return newAgent(client, a, logger)
}

func newAgent(client peerStreamClient, a *applier.Applier, logger logging.Logger) *Agent {
	return &Agent{client: client, applier: a, logger: logger}
}

// Run blocks, processing downstream messages until ctx is cancelled or
// the stream ends.
func (a *Agent) Run(ctx context.Context) error {
	var cancelApply context.CancelFunc
	defer func() {
		if cancelApply != nil {
			cancelApply()
		}
	}()

	for {
		msg, err := a.client.Recv()
		if err != nil {
			a.healthy.Store(false)
			return err
		}

		switch {
		case msg.Pong != nil:
			// No action required; receipt alone confirms the stream is live.

		case msg.ApplyPeerConfiguration != nil:
			if cancelApply != nil {
				cancelApply()
			}
			applyCtx, cancel := context.WithCancel(ctx)
			cancelApply = cancel
			go a.apply(a.withRemoteSpan(applyCtx, msg.Traceparent), *msg.ApplyPeerConfiguration)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}
}

// withRemoteSpan attaches the span context carried in a message's
// traceparent (spec.md §6) to ctx, so an apply's own logging/metrics
// correlate back to the coordinator-side request that triggered it. A
// malformed or absent traceparent leaves ctx untouched.
func (a *Agent) withRemoteSpan(ctx context.Context, traceparent string) context.Context {
	if traceparent == "" {
		return ctx
	}
	sc, err := parseTraceparent(traceparent)
	if err != nil || !sc.IsValid() {
		return ctx
	}
	return trace.ContextWithRemoteSpanContext(ctx, sc)
}

func (a *Agent) apply(ctx context.Context, msg rpc.ApplyPeerConfigurationMessage) {
	old, err := rpc.OldPeerConfigurationFromWire(msg.OldPeerConfiguration)
	if err != nil {
		a.logger.WithError(err).Warn("received malformed old peer configuration")
		return
	}
	cfg, err := rpc.PeerConfigurationFromWire(msg.PeerConfiguration)
	if err != nil {
		a.logger.WithError(err).Warn("received malformed peer configuration")
		return
	}

	result := a.applier.Apply(ctx, old, cfg)
	if ctx.Err() != nil {
		// Superseded by a newer push; its own apply call owns the outcome.
		return
	}
	a.healthy.Store(result.Ok())
	if !result.Ok() {
		a.logger.WithField("failed_parameters", len(result.Failed)).
			WithField("skipped_parameters", len(result.Skipped)).
			Warn("peer configuration applied with failures")
	}
}

// Ping sends a liveness ping upstream.
func (a *Agent) Ping() error {
	return a.client.Send(&rpc.PeerMessage{Ping: &rpc.PingMessage{}})
}

// Healthy reports whether the most recently completed apply succeeded.
func (a *Agent) Healthy() bool {
	return a.healthy.Load()
}
