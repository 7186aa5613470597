package deployer

import (
	"context"

	"github.com/eclipse-opendut/opendut-sub001/internal/actions"
	"github.com/eclipse-opendut/opendut-sub001/internal/model"
	"github.com/eclipse-opendut/opendut-sub001/internal/store"
	"github.com/eclipse-opendut/opendut-sub001/internal/vpn"
	"github.com/eclipse-opendut/opendut-sub001/pkg/logging"
)

// Deployer reacts to ClusterDeployment store events: on insert it
// allocates and writes the per-peer configuration pair; on removal it
// flips the cluster-specific parameters to target=Absent (spec.md §4.4).
type Deployer struct {
	store  store.Store
	vpn    vpn.Vpn
	logger logging.Logger
}

func New(s store.Store, v vpn.Vpn, logger logging.Logger) *Deployer {
	return &Deployer{store: s, vpn: v, logger: logger}
}

// Run blocks, deploying/undeploying clusters as ClusterDeployment events
// arrive, until ctx is cancelled.
func (d *Deployer) Run(ctx context.Context) {
	sub := d.store.Subscribe(store.KindClusterDeployment)
	defer sub.Cancel()

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-sub.Events:
			clusterId := model.ClusterId{UUID: ev.Id}
			var err error
			switch ev.Kind {
			case store.Inserted:
				err = d.deploy(ctx, clusterId)
			case store.Removed:
				err = d.undeploy(ctx, clusterId)
			}
			if err != nil {
				d.logger.WithError(err).WithField("cluster_id", clusterId.String()).Warn("cluster deployment reconciliation failed")
			}
		}
	}
}

func (d *Deployer) deploy(ctx context.Context, clusterId model.ClusterId) error {
	cfg, found, err := store.Get[model.ClusterConfiguration](ctx, d.store, store.KindClusterConfiguration, clusterId.UUID)
	if err != nil || !found {
		return err
	}
	members, err := memberPeersOf(ctx, d.store, cfg)
	if err != nil {
		return err
	}

	assignment, err := Allocate(ctx, d.store, d.vpn, cfg, members)
	if err != nil {
		return err
	}

	peers := make(map[model.PeerId]model.PeerDescriptor, len(members))
	err = d.store.Resources(ctx, func(v store.View) error {
		for _, peerId := range members {
			raw, ok, err := v.Get(store.KindPeerDescriptor, peerId.UUID)
			if err != nil {
				return err
			}
			if ok {
				peers[peerId] = raw.(model.PeerDescriptor)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	oldCfgs, newCfgs := ComposePeerConfigurations(cfg, assignment, peers)

	return d.store.Mutate(ctx, func(v store.View) error {
		for peerId, old := range oldCfgs {
			if err := v.Insert(store.KindOldPeerConfiguration, peerId.UUID, old); err != nil {
				return err
			}
		}
		for peerId, cfg := range newCfgs {
			if err := v.Insert(store.KindPeerConfiguration, peerId.UUID, cfg); err != nil {
				return err
			}
		}
		return nil
	})
}

// undeploy flips every cluster-specific parameter of the cluster's member
// peers to target=Absent, leaving non-cluster parameters (executors, the
// peer's own bridge) untouched.
func (d *Deployer) undeploy(ctx context.Context, clusterId model.ClusterId) error {
	return d.store.Mutate(ctx, func(v store.View) error {
		cfgRaw, found, err := v.Get(store.KindClusterConfiguration, clusterId.UUID)
		if err != nil {
			return err
		}
		var members []model.PeerId
		if found {
			members, err = actions.MemberPeersOf(v, cfgRaw.(model.ClusterConfiguration))
			if err != nil {
				return err
			}
		}

		for _, peerId := range members {
			raw, ok, err := v.Get(store.KindPeerConfiguration, peerId.UUID)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			cfg := raw.(model.PeerConfiguration)
			if !flipToAbsent(&cfg) {
				continue
			}
			if err := v.Insert(store.KindPeerConfiguration, peerId.UUID, cfg); err != nil {
				return err
			}
		}

		oldCfgs, err := v.List(store.KindOldPeerConfiguration)
		if err != nil {
			return err
		}
		for id, raw := range oldCfgs {
			old := raw.(model.OldPeerConfiguration)
			if old.ClusterAssignment == nil || old.ClusterAssignment.Id != clusterId {
				continue
			}
			old.ClusterAssignment = nil
			if err := v.Insert(store.KindOldPeerConfiguration, id, old); err != nil {
				return err
			}
		}
		return nil
	})
}

// flipToAbsent sets target=Absent on every GreInterface, CanConnections,
// CanBridges and RemotePeerConnectionCheck parameter (the cluster-specific
// set composed by ComposePeerConfigurations, each depending transitively on
// a remote member of this cluster's assignment) and reports whether
// anything changed. CanLocalRoutes and the device/joined interfaces are
// peer-topology-level, not cluster-specific, and are left alone.
func flipToAbsent(cfg *model.PeerConfiguration) bool {
	changed := false
	for i := range cfg.GreInterfaces {
		if cfg.GreInterfaces[i].Target != model.Absent {
			cfg.GreInterfaces[i].Target = model.Absent
			changed = true
		}
	}
	for i := range cfg.CanConnections {
		if cfg.CanConnections[i].Target != model.Absent {
			cfg.CanConnections[i].Target = model.Absent
			changed = true
		}
	}
	for i := range cfg.CanBridges {
		if cfg.CanBridges[i].Target != model.Absent {
			cfg.CanBridges[i].Target = model.Absent
			changed = true
		}
	}
	for i := range cfg.RemotePeerConnectionChecks {
		if cfg.RemotePeerConnectionChecks[i].Target != model.Absent {
			cfg.RemotePeerConnectionChecks[i].Target = model.Absent
			changed = true
		}
	}
	return changed
}

func memberPeersOf(ctx context.Context, s store.Store, cfg model.ClusterConfiguration) ([]model.PeerId, error) {
	var members []model.PeerId
	err := s.Resources(ctx, func(v store.View) error {
		var err error
		members, err = actions.MemberPeersOf(v, cfg)
		return err
	})
	return members, err
}
