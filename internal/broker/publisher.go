package broker

import (
	"context"

	"github.com/eclipse-opendut/opendut-sub001/internal/model"
	"github.com/eclipse-opendut/opendut-sub001/internal/store"
	"github.com/eclipse-opendut/opendut-sub001/pkg/logging"
)

// Publisher subscribes to PeerConfiguration/OldPeerConfiguration events and
// pushes ApplyPeerConfiguration to the affected peer whenever either
// changes and the peer is currently connected (spec.md §4.3).
type Publisher struct {
	registry *Registry
	store    store.Store
	logger   logging.Logger
}

func NewPublisher(registry *Registry, s store.Store, logger logging.Logger) *Publisher {
	return &Publisher{registry: registry, store: s, logger: logger}
}

// Run blocks, dispatching pushes until ctx is cancelled. Call it in its own
// goroutine from cmd/carl.
func (p *Publisher) Run(ctx context.Context) {
	cfgSub := p.store.Subscribe(store.KindPeerConfiguration)
	oldSub := p.store.Subscribe(store.KindOldPeerConfiguration)
	defer cfgSub.Cancel()
	defer oldSub.Cancel()

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-cfgSub.Events:
			p.onConfigEvent(ctx, ev)
		case ev := <-oldSub.Events:
			p.onConfigEvent(ctx, ev)
		}
	}
}

func (p *Publisher) onConfigEvent(ctx context.Context, ev store.Event) {
	if ev.Kind != store.Inserted {
		return
	}
	// Both KindPeerConfiguration and KindOldPeerConfiguration rows are
	// keyed by the owning peer id, so ev.Id is the peer id directly.
	peerId := model.PeerId{UUID: ev.Id}
	if !p.registry.IsConnected(peerId) {
		return
	}
	cfg, foundCfg, err := store.Get[model.PeerConfiguration](ctx, p.store, store.KindPeerConfiguration, peerId.UUID)
	if err != nil || !foundCfg {
		return
	}
	old, _, err := store.Get[model.OldPeerConfiguration](ctx, p.store, store.KindOldPeerConfiguration, peerId.UUID)
	if err != nil {
		return
	}
	if err := p.registry.SendApplyPeerConfiguration(ctx, peerId, old, cfg); err != nil {
		p.logger.WithError(err).WithField("peer_id", peerId.String()).Debug("push skipped: peer not connected")
	}
}
