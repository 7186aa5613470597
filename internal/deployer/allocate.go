// Package deployer implements the cluster deployer (L4): reacting to
// ClusterDeployment store events, it allocates deterministic
// addresses/ports per member peer and composes the (OldPeerConfiguration,
// PeerConfiguration) pair pushed to each one (spec.md §4.4).
package deployer

import (
	"context"
	"sort"

	"github.com/eclipse-opendut/opendut-sub001/internal/model"
	"github.com/eclipse-opendut/opendut-sub001/internal/store"
	"github.com/eclipse-opendut/opendut-sub001/internal/vpn"
)

// canServerPortBase/Stride fix the deterministic allocation rule of
// spec.md §4.4: ports assigned from a base with a fixed stride, in a
// stable order (by PeerId), so the same deployment always allocates the
// same ports.
const (
	canServerPortBase  = 10000
	canServerPortStride = 1
)

// Allocate computes the ClusterAssignment for cfg's member peers:
// leader, a stable per-peer can_server_port, the VPN address of each
// peer, and the network interfaces backing the devices that peer
// contributes to the cluster.
func Allocate(ctx context.Context, s store.Store, v vpn.Vpn, cfg model.ClusterConfiguration, members []model.PeerId) (model.ClusterAssignment, error) {
	ordered := make([]model.PeerId, len(members))
	copy(ordered, members)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].String() < ordered[j].String() })

	assignments := make([]model.PeerClusterAssignment, 0, len(ordered))
	err := s.Resources(ctx, func(view store.View) error {
		for i, peerId := range ordered {
			raw, ok, err := view.Get(store.KindPeerDescriptor, peerId.UUID)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			peer := raw.(model.PeerDescriptor)

			ifaces := deviceInterfacesOwnedIn(peer, cfg)
			addr, err := v.ClusterAddressOf(ctx, peerId)
			if err != nil {
				return err
			}

			assignments = append(assignments, model.PeerClusterAssignment{
				PeerId:           peerId,
				VpnAddress:       addr,
				CanServerPort:    model.Port(canServerPortBase + i*canServerPortStride),
				DeviceInterfaces: ifaces,
			})
		}
		return nil
	})
	if err != nil {
		return model.ClusterAssignment{}, err
	}

	return model.ClusterAssignment{Id: cfg.Id, Leader: cfg.Leader, Assignments: assignments}, nil
}

// deviceInterfacesOwnedIn returns the network interfaces that back the
// devices peer owns which also belong to cfg's device set.
func deviceInterfacesOwnedIn(peer model.PeerDescriptor, cfg model.ClusterConfiguration) []model.NetworkInterfaceDescriptor {
	var out []model.NetworkInterfaceDescriptor
	for _, dev := range peer.Topology.Devices {
		if _, wanted := cfg.Devices[dev.Id]; !wanted {
			continue
		}
		if iface, ok := peer.FindInterface(dev.Interface); ok {
			out = append(out, iface)
		}
	}
	return out
}
