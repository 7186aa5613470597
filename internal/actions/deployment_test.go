package actions

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/eclipse-opendut/opendut-sub001/internal/model"
	"github.com/eclipse-opendut/opendut-sub001/internal/store"
	"github.com/eclipse-opendut/opendut-sub001/internal/store/memory"
	"github.com/eclipse-opendut/opendut-sub001/internal/vpn"
)

func mustPeerName(t *testing.T, s string) model.PeerName {
	t.Helper()
	name, err := model.NewPeerName(s)
	require.NoError(t, err)
	return name
}

func mustClusterName(t *testing.T, s string) model.ClusterName {
	t.Helper()
	name, err := model.NewClusterName(s)
	require.NoError(t, err)
	return name
}

func mustDeviceName(t *testing.T, s string) model.DeviceName {
	t.Helper()
	name, err := model.NewDeviceName(s)
	require.NoError(t, err)
	return name
}

func mustIfaceName(t *testing.T, s string) model.NetworkInterfaceName {
	t.Helper()
	name, err := model.NewNetworkInterfaceName(s)
	require.NoError(t, err)
	return name
}

// seedPeerOnline inserts a PeerDescriptor owning one device plus an Online
// PeerState, mirroring spec.md §8 scenario 1/3's "peer A/B, each with one
// device" setup.
func seedPeerOnline(t *testing.T, s store.Store, name string, online bool) (model.PeerId, model.DeviceId) {
	t.Helper()
	peerId := model.NewPeerId()
	deviceId := model.NewDeviceId()
	ifaceId := model.NewNetworkInterfaceId()
	peer := model.PeerDescriptor{
		Id:   peerId,
		Name: mustPeerName(t, name),
		Network: model.PeerNetwork{
			Interfaces: []model.NetworkInterfaceDescriptor{{Id: ifaceId, Name: mustIfaceName(t, "eth0"), Kind: model.InterfaceEthernet}},
		},
		Topology: model.PeerTopology{
			Devices: []model.DeviceDescriptor{{Id: deviceId, Name: mustDeviceName(t, "dev"), Interface: ifaceId}},
		},
	}
	state := model.NewPeerState()
	if online {
		state.Connection = model.Online(nil)
	}
	err := s.Mutate(context.Background(), func(v store.View) error {
		if err := v.Insert(store.KindPeerDescriptor, peerId.UUID, peer); err != nil {
			return err
		}
		return v.Insert(store.KindPeerState, peerId.UUID, state)
	})
	require.NoError(t, err)
	return peerId, deviceId
}

// TestStoreClusterDeploymentBlocksMemberPeers covers spec.md §8 scenario 1's
// deployment step: every member peer referenced by the deployment's device
// set transitions to Blocked{by_cluster}.
func TestStoreClusterDeploymentBlocksMemberPeers(t *testing.T) {
	s := memory.New()
	opts := Options{Store: s, Vpn: vpn.Disabled()}

	peerA, devA := seedPeerOnline(t, s, "peer-a", true)
	peerB, devB := seedPeerOnline(t, s, "peer-b", true)

	cfg := model.NewClusterConfiguration(model.NewClusterId(), mustClusterName(t, "cluster"), peerA, []model.DeviceId{devA, devB})
	_, err := CreateClusterConfiguration(context.Background(), opts, cfg)
	require.NoError(t, err)

	require.NoError(t, StoreClusterDeployment(context.Background(), opts, cfg.Id))

	for _, id := range []model.PeerId{peerA, peerB} {
		state, ok, err := store.Get[model.PeerState](context.Background(), s, store.KindPeerState, id.UUID)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, model.MemberBlocked, state.Member.Tag)
		require.Equal(t, cfg.Id, state.Member.ByCluster)
	}

	require.NoError(t, DeleteClusterDeployment(context.Background(), opts, cfg.Id))
	for _, id := range []model.PeerId{peerA, peerB} {
		state, ok, err := store.Get[model.PeerState](context.Background(), s, store.KindPeerState, id.UUID)
		require.NoError(t, err)
		require.True(t, ok)
		require.True(t, state.IsAvailable(), "every previously-blocked peer must return to Available")
	}
}

// TestStoreClusterDeploymentRejectsOfflineMember covers spec.md §8 scenario
// 3 ("rejected deployment"): one member peer offline causes
// IllegalPeerState naming it, and the store is left unchanged.
func TestStoreClusterDeploymentRejectsOfflineMember(t *testing.T) {
	s := memory.New()
	opts := Options{Store: s, Vpn: vpn.Disabled()}

	peerA, devA := seedPeerOnline(t, s, "peer-a", true)
	peerB, devB := seedPeerOnline(t, s, "peer-b", false)

	cfg := model.NewClusterConfiguration(model.NewClusterId(), mustClusterName(t, "cluster"), peerA, []model.DeviceId{devA, devB})
	_, err := CreateClusterConfiguration(context.Background(), opts, cfg)
	require.NoError(t, err)

	err = StoreClusterDeployment(context.Background(), opts, cfg.Id)
	require.Error(t, err)
	var illegal *IllegalPeerStateError
	require.ErrorAs(t, err, &illegal)
	require.Equal(t, []string{peerB.String()}, illegal.InvalidPeers)

	_, ok, getErr := store.Get[model.ClusterDeployment](context.Background(), s, store.KindClusterDeployment, cfg.Id.UUID)
	require.NoError(t, getErr)
	require.False(t, ok, "a rejected deployment must not be persisted")

	all, listErr := store.List[model.ClusterDeployment](context.Background(), s, store.KindClusterDeployment)
	require.NoError(t, listErr)
	require.Empty(t, all)
}
