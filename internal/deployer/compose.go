package deployer

import (
	"github.com/eclipse-opendut/opendut-sub001/internal/model"
)

// ComposePeerConfigurations builds the per-peer (OldPeerConfiguration,
// PeerConfiguration) pair for every member of assignment, per spec.md
// §4.4. peers must contain the full PeerDescriptor for every member id in
// assignment.Assignments.
func ComposePeerConfigurations(cfg model.ClusterConfiguration, assignment model.ClusterAssignment, peers map[model.PeerId]model.PeerDescriptor) (map[model.PeerId]model.OldPeerConfiguration, map[model.PeerId]model.PeerConfiguration) {
	oldCfgs := make(map[model.PeerId]model.OldPeerConfiguration, len(assignment.Assignments))
	newCfgs := make(map[model.PeerId]model.PeerConfiguration, len(assignment.Assignments))

	for _, a := range assignment.Assignments {
		peer, ok := peers[a.PeerId]
		if !ok {
			continue
		}

		bridgeName := peer.BridgeNameOr(model.DefaultBridgeName)
		oldCfgs[a.PeerId] = model.OldPeerConfiguration{
			ClusterAssignment: &assignment,
			BridgeName:        bridgeName,
		}
		newCfgs[a.PeerId] = composeOne(peer, cfg, assignment, a, bridgeName)
	}
	return oldCfgs, newCfgs
}

func composeOne(peer model.PeerDescriptor, cfg model.ClusterConfiguration, assignment model.ClusterAssignment, self model.PeerClusterAssignment, bridgeName string) model.PeerConfiguration {
	var out model.PeerConfiguration

	// A pre-existing bridge under a different name must be torn down
	// before the cluster bridge is created (spec.md §4.4).
	var bridgeDeps []model.ParameterId
	if peer.Network.BridgeName != "" && peer.Network.BridgeName != bridgeName {
		removeOld := model.NewParameter(model.EthernetBridgeValue{Name: peer.Network.BridgeName}, model.Absent)
		out.EthernetBridges = append(out.EthernetBridges, removeOld)
		bridgeDeps = append(bridgeDeps, removeOld.Id)
	}
	bridge := model.NewParameter(model.EthernetBridgeValue{Name: bridgeName}, model.Present, bridgeDeps...)
	out.EthernetBridges = append(out.EthernetBridges, bridge)

	for _, dev := range peer.Topology.Devices {
		if _, owned := cfg.Devices[dev.Id]; !owned {
			continue
		}
		iface, ok := peer.FindInterface(dev.Interface)
		if !ok {
			continue
		}
		param := model.NewParameter(model.DeviceInterfaceValue{Descriptor: iface}, model.Present, bridge.Id)
		out.DeviceInterfaces = append(out.DeviceInterfaces, param)

		joined := model.NewParameter(model.JoinedInterfaceValue{Interface: iface.Name.String(), Bridge: bridgeName}, model.Present, bridge.Id, param.Id)
		out.JoinedInterfaces = append(out.JoinedInterfaces, joined)
	}

	for _, executor := range peer.Executors.Executors {
		out.Executors = append(out.Executors, model.NewParameter(model.ExecutorValue{Descriptor: executor}, model.Present))
	}

	type canDevice struct {
		name string
		fd   bool
	}
	var canDevices []canDevice
	for _, dev := range peer.Topology.Devices {
		if iface, ok := peer.FindInterface(dev.Interface); ok && (iface.Kind == model.InterfaceCan || iface.Kind == model.InterfaceVcan) {
			fd := iface.Can != nil && iface.Can.FD
			canDevices = append(canDevices, canDevice{name: iface.Name.String(), fd: fd})
		}
	}
	hasCan := len(canDevices) > 0

	// CanLocalRoutes bridge every pair of this peer's own CAN/VCAN devices
	// to each other directly, independent of any cluster-wide tunnel, so
	// busses attached to the same peer can already exchange frames
	// locally. cangw routes are one-directional, so each pair needs both
	// directions.
	for i, src := range canDevices {
		for j, dst := range canDevices {
			if i == j {
				continue
			}
			route := model.NewParameter(model.CanLocalRoutesValue{
				Src: src.name, Dst: dst.name, CanFD: src.fd && dst.fd,
			}, model.Present, bridge.Id)
			out.CanLocalRoutes = append(out.CanLocalRoutes, route)
		}
	}

	for _, remote := range assignment.Assignments {
		if remote.PeerId == self.PeerId {
			continue
		}
		greName := greInterfaceName(remote.PeerId)
		gre := model.NewParameter(model.GreInterfaceValue{
			Name: greName, LocalIP: self.VpnAddress, RemoteIP: remote.VpnAddress,
		}, model.Present, bridge.Id)
		out.GreInterfaces = append(out.GreInterfaces, gre)

		check := model.NewParameter(model.RemotePeerConnectionCheckValue{RemoteIP: remote.VpnAddress}, model.Present, gre.Id)
		out.RemotePeerConnectionChecks = append(out.RemotePeerConnectionChecks, check)

		if hasCan {
			conn := model.NewParameter(model.CanConnectionsValue{
				RemoteIP: remote.VpnAddress, RemotePort: remote.CanServerPort, LocalIface: bridgeName,
			}, model.Present, gre.Id)
			out.CanConnections = append(out.CanConnections, conn)

			// CanBridges forward each local CAN device's traffic onto the
			// cannelloni tunnel endpoint (bound on bridgeName) that
			// CanConnections sets up for this remote, and back, so the
			// remote peer's bus traffic reaches every local CAN device.
			for _, dev := range canDevices {
				out.CanBridges = append(out.CanBridges,
					model.NewParameter(model.CanBridgesValue{Src: dev.name, Dst: bridgeName, CanFD: dev.fd}, model.Present, conn.Id),
					model.NewParameter(model.CanBridgesValue{Src: bridgeName, Dst: dev.name, CanFD: dev.fd}, model.Present, conn.Id),
				)
			}
		}
	}

	return out
}

// greInterfaceName derives an interface name within the Linux 15-char
// limit (model.NetworkInterfaceName) from the remote peer's id.
func greInterfaceName(remote model.PeerId) string {
	s := remote.String()
	if len(s) > 8 {
		s = s[:8]
	}
	return "gre-" + s
}
