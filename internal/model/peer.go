package model

import "fmt"

// PeerNetwork is the network-facing half of a PeerDescriptor.
type PeerNetwork struct {
	Interfaces []NetworkInterfaceDescriptor
	BridgeName string // optional; empty means use the deployment default
}

// PeerTopology is the device-facing half of a PeerDescriptor.
type PeerTopology struct {
	Devices []DeviceDescriptor
}

// PeerExecutors is the workload-facing half of a PeerDescriptor.
type PeerExecutors struct {
	Executors []ExecutorDescriptor
}

// PeerDescriptor is the administrator-owned description of a peer host:
// its identity, network interfaces, device topology and executors.
//
// Invariant I1: every DeviceDescriptor.Interface references an Id present
// in Network.Interfaces.
type PeerDescriptor struct {
	Id       PeerId
	Name     PeerName
	Location string
	Network  PeerNetwork
	Topology PeerTopology
	Executors PeerExecutors
}

// ValidateSelfContained checks invariant I1 against this descriptor alone
// (invariant I2, global device-id uniqueness across peers, is enforced by
// the action layer against the store).
func (p PeerDescriptor) ValidateSelfContained() error {
	known := make(map[NetworkInterfaceId]struct{}, len(p.Network.Interfaces))
	for _, iface := range p.Network.Interfaces {
		known[iface.Id] = struct{}{}
	}
	for _, dev := range p.Topology.Devices {
		if _, ok := known[dev.Interface]; !ok {
			return fmt.Errorf("device %s references unknown interface %s", dev.Id, dev.Interface)
		}
	}
	return nil
}

// FindInterface returns the interface descriptor with the given id, if any.
func (p PeerDescriptor) FindInterface(id NetworkInterfaceId) (NetworkInterfaceDescriptor, bool) {
	for _, iface := range p.Network.Interfaces {
		if iface.Id == id {
			return iface, true
		}
	}
	return NetworkInterfaceDescriptor{}, false
}

// DeviceIds returns the ids of every device this peer owns.
func (p PeerDescriptor) DeviceIds() []DeviceId {
	ids := make([]DeviceId, 0, len(p.Topology.Devices))
	for _, d := range p.Topology.Devices {
		ids = append(ids, d.Id)
	}
	return ids
}

// BridgeNameOr returns the peer's configured bridge name, or the supplied
// default when unset.
func (p PeerDescriptor) BridgeNameOr(def string) string {
	if p.Network.BridgeName != "" {
		return p.Network.BridgeName
	}
	return def
}
