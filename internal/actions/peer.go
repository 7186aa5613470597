package actions

import (
	"context"
	"fmt"

	"github.com/eclipse-opendut/opendut-sub001/internal/model"
	"github.com/eclipse-opendut/opendut-sub001/internal/store"
)

// StorePeerDescriptor implements spec.md §4.2 store_peer_descriptor: diffs
// the device topology against any prior descriptor, enforces invariants
// I1/I2, synthesizes the peer's default PeerConfiguration, initialises
// PeerState for genuinely new peers, and — for new peers, when VPN is
// enabled — registers the peer with the VPN backend inside the same
// transaction (a VPN failure rolls the whole action back).
func StorePeerDescriptor(ctx context.Context, opts Options, descriptor model.PeerDescriptor) (model.PeerId, error) {
	if err := descriptor.ValidateSelfContained(); err != nil {
		return model.PeerId{}, err
	}

	var isNewPeer bool
	err := opts.Store.Mutate(ctx, func(v store.View) error {
		priorRaw, hadPrior, err := v.Get(store.KindPeerDescriptor, descriptor.Id.UUID)
		if err != nil {
			return &InternalError{err}
		}

		var prior model.PeerDescriptor
		if hadPrior {
			prior = priorRaw.(model.PeerDescriptor)
			if blocked, clusterId, err := peerIsBlocked(v, descriptor.Id); err != nil {
				return &InternalError{err}
			} else if blocked {
				return &IllegalPeerStateError{
					InvalidPeers: []string{descriptor.Id.String()},
					Reason:       fmt.Sprintf("peer is blocked by cluster %s", clusterId),
				}
			}
		}
		isNewPeer = !hadPrior

		added, removed := diffDevices(prior.Topology.Devices, descriptor.Topology.Devices)

		// Invariant I2: device ids are globally unique across peers.
		allPeers, err := v.List(store.KindPeerDescriptor)
		if err != nil {
			return &InternalError{err}
		}
		for _, dev := range added {
			for otherId, otherRaw := range allPeers {
				if otherId == descriptor.Id.UUID {
					continue
				}
				other := otherRaw.(model.PeerDescriptor)
				for _, od := range other.Topology.Devices {
					if od.Id == dev.Id {
						return &DeviceAlreadyExistsError{DeviceId: dev.Id.String(), OwnerId: other.Id.String()}
					}
				}
			}
		}

		for _, dev := range removed {
			if _, _, err := v.Remove(store.KindDeviceDescriptor, dev.Id.UUID); err != nil {
				return &InternalError{err}
			}
		}
		for _, dev := range added {
			if err := v.Insert(store.KindDeviceDescriptor, dev.Id.UUID, dev); err != nil {
				return &InternalError{err}
			}
		}

		defaultConfig := synthesizeDefaultConfiguration(descriptor, opts.bridgeNameDefault())
		if err := v.Insert(store.KindPeerConfiguration, descriptor.Id.UUID, defaultConfig); err != nil {
			return &InternalError{err}
		}

		if !hadPrior {
			if _, exists, err := v.Get(store.KindPeerState, descriptor.Id.UUID); err != nil {
				return &InternalError{err}
			} else if !exists {
				if err := v.Insert(store.KindPeerState, descriptor.Id.UUID, model.NewPeerState()); err != nil {
					return &InternalError{err}
				}
			}
		}

		if err := v.Insert(store.KindPeerDescriptor, descriptor.Id.UUID, descriptor); err != nil {
			return &InternalError{err}
		}

		if isNewPeer && opts.Vpn.Enabled() {
			if err := opts.Vpn.CreatePeer(ctx, descriptor.Id); err != nil {
				return &InternalError{fmt.Errorf("vpn create_peer: %w", err)}
			}
		}
		return nil
	})
	if err != nil {
		return model.PeerId{}, err
	}
	return descriptor.Id, nil
}

// DeletePeerDescriptor implements spec.md §4.2 delete_peer_descriptor.
// Forbidden while the peer is blocked by a cluster deployment. If VPN is
// enabled, the VPN-side peer deletion is attempted after the persistence
// change is decided; per spec.md §9 this is a known, documented asymmetry
// with StorePeerDescriptor — a VPN failure here does not roll back the
// persisted deletion; it is logged as a warning and the call still returns
// the deleted descriptor with a nil error.
func DeletePeerDescriptor(ctx context.Context, opts Options, id model.PeerId) (model.PeerDescriptor, error) {
	var deleted model.PeerDescriptor
	var vpnErr error

	err := opts.Store.Mutate(ctx, func(v store.View) error {
		if blocked, clusterId, err := peerIsBlocked(v, id); err != nil {
			return &InternalError{err}
		} else if blocked {
			return &IllegalPeerStateError{
				InvalidPeers: []string{id.String()},
				Reason:       fmt.Sprintf("peer is blocked by cluster %s", clusterId),
			}
		}

		raw, ok, err := v.Get(store.KindPeerDescriptor, id.UUID)
		if err != nil {
			return &InternalError{err}
		}
		if !ok {
			return &PeerNotFoundError{PeerId: id.String()}
		}
		deleted = raw.(model.PeerDescriptor)

		for _, dev := range deleted.Topology.Devices {
			if _, _, err := v.Remove(store.KindDeviceDescriptor, dev.Id.UUID); err != nil {
				return &InternalError{err}
			}
		}
		if _, _, err := v.Remove(store.KindPeerDescriptor, id.UUID); err != nil {
			return &InternalError{err}
		}

		if opts.Vpn.Enabled() {
			vpnErr = opts.Vpn.DeletePeer(ctx, id)
		}
		return nil
	})
	if err != nil {
		return model.PeerDescriptor{}, err
	}
	if vpnErr != nil && opts.Logger != nil {
		opts.Logger.WithError(vpnErr).WithField("peer_id", id.String()).
			Warn("vpn delete_peer failed; persisted deletion stands")
	}
	return deleted, nil
}

func peerIsBlocked(v store.View, id model.PeerId) (blocked bool, clusterId model.ClusterId, err error) {
	raw, ok, err := v.Get(store.KindPeerState, id.UUID)
	if err != nil || !ok {
		return false, model.ClusterId{}, err
	}
	state := raw.(model.PeerState)
	if state.Member.Tag == model.MemberBlocked {
		return true, state.Member.ByCluster, nil
	}
	return false, model.ClusterId{}, nil
}

func diffDevices(prior, next []model.DeviceDescriptor) (added, removed []model.DeviceDescriptor) {
	priorSet := make(map[model.DeviceId]model.DeviceDescriptor, len(prior))
	for _, d := range prior {
		priorSet[d.Id] = d
	}
	nextSet := make(map[model.DeviceId]struct{}, len(next))
	for _, d := range next {
		nextSet[d.Id] = struct{}{}
		if _, existed := priorSet[d.Id]; !existed {
			added = append(added, d)
		}
	}
	for _, d := range prior {
		if _, stillThere := nextSet[d.Id]; !stillThere {
			removed = append(removed, d)
		}
	}
	return added, removed
}

// synthesizeDefaultConfiguration builds the PeerConfiguration a freshly
// stored descriptor receives before any cluster deployment touches it: one
// Present EthernetBridge parameter and one Present Executor parameter per
// descriptor executor.
func synthesizeDefaultConfiguration(descriptor model.PeerDescriptor, bridgeDefault string) model.PeerConfiguration {
	var cfg model.PeerConfiguration
	cfg.EthernetBridges = append(cfg.EthernetBridges, model.NewParameter(
		model.EthernetBridgeValue{Name: descriptor.BridgeNameOr(bridgeDefault)},
		model.Present,
	))
	for _, executor := range descriptor.Executors.Executors {
		cfg.Executors = append(cfg.Executors, model.NewParameter(
			model.ExecutorValue{Descriptor: executor},
			model.Present,
		))
	}
	return cfg
}
