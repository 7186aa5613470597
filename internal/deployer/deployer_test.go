package deployer

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

func mustIfaceName(t *testing.T, s string) model.NetworkInterfaceName {
	t.Helper()
	name, err := model.NewNetworkInterfaceName(s)
	require.NoError(t, err)
	return name
}

func seedPeer(t *testing.T, s store.Store, name string, devices []model.DeviceId, ifaceId model.NetworkInterfaceId) model.PeerId {
	t.Helper()
	peerId := model.NewPeerId()
	iface := model.NetworkInterfaceDescriptor{Id: ifaceId, Name: mustIfaceName(t, "eth0"), Kind: model.InterfaceEthernet}
	devs := make([]model.DeviceDescriptor, len(devices))
	for i, d := range devices {
		devs[i] = model.DeviceDescriptor{Id: d, Name: mustDeviceName(t, "dev"), Interface: ifaceId}
	}
	peer := model.PeerDescriptor{
		Id:       peerId,
		Name:     mustPeerName(t, name),
		Network:  model.PeerNetwork{Interfaces: []model.NetworkInterfaceDescriptor{iface}},
		Topology: model.PeerTopology{Devices: devs},
	}
	err := s.Mutate(context.Background(), func(v store.View) error {
		return v.Insert(store.KindPeerDescriptor, peerId.UUID, peer)
	})
	require.NoError(t, err)
	return peerId
}

func mustDeviceName(t *testing.T, s string) model.DeviceName {
	t.Helper()
	name, err := model.NewDeviceName(s)
	require.NoError(t, err)
	return name
}

// Allocate must assign the same can_server_port to the same peer set
// regardless of input order, since CARL may recompute an assignment after
// a membership-preserving restart (spec.md §4.4's determinism
// requirement).
func TestAllocateIsOrderIndependent(t *testing.T) {
	s := memory.New()
	v := vpn.Disabled()

	devA := model.NewDeviceId()
	devB := model.NewDeviceId()
	ifaceA := model.NewNetworkInterfaceId()
	ifaceB := model.NewNetworkInterfaceId()
	peerA := seedPeer(t, s, "peer-a", []model.DeviceId{devA}, ifaceA)
	peerB := seedPeer(t, s, "peer-b", []model.DeviceId{devB}, ifaceB)

	cfg := model.NewClusterConfiguration(model.NewClusterId(), mustClusterName(t, "cluster"), peerA, []model.DeviceId{devA, devB})

	forward, err := Allocate(context.Background(), s, v, cfg, []model.PeerId{peerA, peerB})
	require.NoError(t, err)
	reversed, err := Allocate(context.Background(), s, v, cfg, []model.PeerId{peerB, peerA})
	require.NoError(t, err)

	portOf := func(a model.ClusterAssignment, id model.PeerId) model.Port {
		for _, pa := range a.Assignments {
			if pa.PeerId == id {
				return pa.CanServerPort
			}
		}
		t.Fatalf("peer %s missing from assignment", id)
		return 0
	}
	require.Equal(t, portOf(forward, peerA), portOf(reversed, peerA))
	require.Equal(t, portOf(forward, peerB), portOf(reversed, peerB))
	require.NotEqual(t, portOf(forward, peerA), portOf(forward, peerB))
}

func TestFlipToAbsentOnlyTouchesClusterSpecificParameters(t *testing.T) {
	cfg := model.PeerConfiguration{
		EthernetBridges: []model.Parameter[model.EthernetBridgeValue]{
			model.NewParameter(model.EthernetBridgeValue{Name: "br-opendut"}, model.Present),
		},
		GreInterfaces: []model.Parameter[model.GreInterfaceValue]{
			model.NewParameter(model.GreInterfaceValue{Name: "gre0"}, model.Present),
		},
		CanConnections: []model.Parameter[model.CanConnectionsValue]{
			model.NewParameter(model.CanConnectionsValue{}, model.Present),
		},
		CanBridges: []model.Parameter[model.CanBridgesValue]{
			model.NewParameter(model.CanBridgesValue{}, model.Present),
		},
		CanLocalRoutes: []model.Parameter[model.CanLocalRoutesValue]{
			model.NewParameter(model.CanLocalRoutesValue{}, model.Present),
		},
	}

	changed := flipToAbsent(&cfg)
	require.True(t, changed)
	require.Equal(t, model.Present, cfg.EthernetBridges[0].Target)
	require.Equal(t, model.Absent, cfg.GreInterfaces[0].Target)
	require.Equal(t, model.Absent, cfg.CanConnections[0].Target)
	require.Equal(t, model.Absent, cfg.CanBridges[0].Target)
	require.Equal(t, model.Present, cfg.CanLocalRoutes[0].Target, "CanLocalRoutes are peer-local, not cluster-specific, and must survive undeploy")

	require.False(t, flipToAbsent(&cfg))
}

// TestUndeployOnlyTouchesMemberPeerConfigurations covers the review finding
// that undeploy must not tear down a disjoint cluster's peer
// configurations: two clusters with no shared member peers can be deployed
// concurrently (actions.ClassifyDeployability), so deleting one must leave
// the other's GRE/CAN parameters at Present.
func TestUndeployOnlyTouchesMemberPeerConfigurations(t *testing.T) {
	s := memory.New()
	d := New(s, vpn.Disabled(), nil)

	devA := model.NewDeviceId()
	devB := model.NewDeviceId()
	ifaceA := model.NewNetworkInterfaceId()
	ifaceB := model.NewNetworkInterfaceId()
	peerA := seedPeer(t, s, "peer-a", []model.DeviceId{devA}, ifaceA)
	peerB := seedPeer(t, s, "peer-b", []model.DeviceId{devB}, ifaceB)

	clusterA := model.NewClusterConfiguration(model.NewClusterId(), mustClusterName(t, "cluster-a"), peerA, []model.DeviceId{devA})
	clusterB := model.NewClusterConfiguration(model.NewClusterId(), mustClusterName(t, "cluster-b"), peerB, []model.DeviceId{devB})

	cfgA := model.PeerConfiguration{GreInterfaces: []model.Parameter[model.GreInterfaceValue]{
		model.NewParameter(model.GreInterfaceValue{Name: "gre-a"}, model.Present),
	}}
	cfgB := model.PeerConfiguration{GreInterfaces: []model.Parameter[model.GreInterfaceValue]{
		model.NewParameter(model.GreInterfaceValue{Name: "gre-b"}, model.Present),
	}}

	err := s.Mutate(context.Background(), func(v store.View) error {
		if err := v.Insert(store.KindClusterConfiguration, clusterA.Id.UUID, clusterA); err != nil {
			return err
		}
		if err := v.Insert(store.KindClusterConfiguration, clusterB.Id.UUID, clusterB); err != nil {
			return err
		}
		if err := v.Insert(store.KindPeerConfiguration, peerA.UUID, cfgA); err != nil {
			return err
		}
		return v.Insert(store.KindPeerConfiguration, peerB.UUID, cfgB)
	})
	require.NoError(t, err)

	err = d.undeploy(context.Background(), clusterA.Id)
	require.NoError(t, err)

	gotA, ok, err := store.Get[model.PeerConfiguration](context.Background(), s, store.KindPeerConfiguration, peerA.UUID)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, model.Absent, gotA.GreInterfaces[0].Target)

	gotB, ok, err := store.Get[model.PeerConfiguration](context.Background(), s, store.KindPeerConfiguration, peerB.UUID)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, model.Present, gotB.GreInterfaces[0].Target, "undeploying cluster-a must not touch cluster-b's disjoint peer configuration")
}
