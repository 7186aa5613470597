package actions

import (
	"context"
	"fmt"

	"github.com/eclipse-opendut/opendut-sub001/internal/model"
	"github.com/eclipse-opendut/opendut-sub001/internal/store"
)

// CreateClusterConfiguration implements spec.md §4.2 create_cluster_configuration,
// constrained by invariant I3: every referenced device must belong to some
// peer's topology, and the leader must be a stored peer.
func CreateClusterConfiguration(ctx context.Context, opts Options, cfg model.ClusterConfiguration) (model.ClusterId, error) {
	err := opts.Store.Mutate(ctx, func(v store.View) error {
		peers, err := v.List(store.KindPeerDescriptor)
		if err != nil {
			return &InternalError{err}
		}
		known := make(map[model.DeviceId]struct{})
		for _, raw := range peers {
			p := raw.(model.PeerDescriptor)
			for _, d := range p.Topology.Devices {
				known[d.Id] = struct{}{}
			}
		}
		for deviceId := range cfg.Devices {
			if _, ok := known[deviceId]; !ok {
				return fmt.Errorf("cluster %s: device %s does not belong to any peer", cfg.Id, deviceId)
			}
		}
		if _, ok := peers[cfg.Leader.UUID]; !ok {
			return fmt.Errorf("cluster %s: leader %s is not a known peer", cfg.Id, cfg.Leader)
		}
		return v.Insert(store.KindClusterConfiguration, cfg.Id.UUID, cfg)
	})
	if err != nil {
		return model.ClusterId{}, err
	}
	return cfg.Id, nil
}

// DeleteClusterConfiguration implements spec.md §4.2 delete_cluster_configuration.
func DeleteClusterConfiguration(ctx context.Context, opts Options, id model.ClusterId) (model.ClusterConfiguration, error) {
	var deleted model.ClusterConfiguration
	err := opts.Store.Mutate(ctx, func(v store.View) error {
		if _, ok, err := v.Get(store.KindClusterDeployment, id.UUID); err != nil {
			return &InternalError{err}
		} else if ok {
			return &ClusterDeploymentExistsError{ClusterId: id.String()}
		}
		raw, ok, err := v.Remove(store.KindClusterConfiguration, id.UUID)
		if err != nil {
			return &InternalError{err}
		}
		if !ok {
			return &ClusterNotFoundError{ClusterId: id.String()}
		}
		deleted = raw.(model.ClusterConfiguration)
		return nil
	})
	return deleted, err
}
