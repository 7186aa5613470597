package model

import "net"

// ParameterTarget is the desired presence of a Parameter's effect on host
// state.
type ParameterTarget int

const (
	Present ParameterTarget = iota
	Absent
)

// Parameter is a single unit of desired state applied by the edge
// reconciler: a typed value, a target presence, and the set of other
// parameters (by ParameterId) that must be settled first.
type Parameter[T any] struct {
	Id           ParameterId
	Value        T
	Target       ParameterTarget
	Dependencies map[ParameterId]struct{}
}

func NewParameter[T any](value T, target ParameterTarget, deps ...ParameterId) Parameter[T] {
	set := make(map[ParameterId]struct{}, len(deps))
	for _, d := range deps {
		set[d] = struct{}{}
	}
	return Parameter[T]{Id: NewParameterId(), Value: value, Target: target, Dependencies: set}
}

// EthernetBridgeValue names the bridge interface to create or remove.
type EthernetBridgeValue struct {
	Name string
}

// DeviceInterfaceValue carries the full interface descriptor so the
// applier can branch on Ethernet/CAN/VCAN configuration.
type DeviceInterfaceValue struct {
	Descriptor NetworkInterfaceDescriptor
}

// GreInterfaceValue describes one GRE tunnel endpoint pair.
type GreInterfaceValue struct {
	Name     string
	LocalIP  net.IP
	RemoteIP net.IP
}

// JoinedInterfaceValue joins/detaches an interface to/from a bridge.
type JoinedInterfaceValue struct {
	Interface string
	Bridge    string
}

// ExecutorValue carries the executor descriptor to start/stop.
type ExecutorValue struct {
	Descriptor ExecutorDescriptor
}

// CanConnectionsValue starts/stops a cannelloni tunnel to a remote peer.
type CanConnectionsValue struct {
	RemoteIP   net.IP
	RemotePort Port
	LocalIface string
}

// CanBridgesValue/CanLocalRoutesValue install cangw routes between local
// CAN interfaces.
type CanBridgesValue struct {
	Src, Dst string
	CanFD    bool
}

type CanLocalRoutesValue struct {
	Src, Dst string
	CanFD    bool
}

// RemotePeerConnectionCheckValue probes reachability of a remote peer.
type RemotePeerConnectionCheckValue struct {
	RemoteIP net.IP
}

// PeerConfiguration is the typed bag of parameters pushed to one peer.
type PeerConfiguration struct {
	DeviceInterfaces          []Parameter[DeviceInterfaceValue]
	EthernetBridges           []Parameter[EthernetBridgeValue]
	GreInterfaces             []Parameter[GreInterfaceValue]
	JoinedInterfaces          []Parameter[JoinedInterfaceValue]
	Executors                 []Parameter[ExecutorValue]
	CanConnections            []Parameter[CanConnectionsValue]
	CanBridges                []Parameter[CanBridgesValue]
	CanLocalRoutes            []Parameter[CanLocalRoutesValue]
	RemotePeerConnectionChecks []Parameter[RemotePeerConnectionCheckValue]
}

// PeerClusterAssignment is one peer's address/port allocation within a
// ClusterAssignment.
type PeerClusterAssignment struct {
	PeerId           PeerId
	VpnAddress       net.IP
	CanServerPort    Port
	DeviceInterfaces []NetworkInterfaceDescriptor
}

// ClusterAssignment is the result of the deployer's allocation pass,
// carried to every member peer inside OldPeerConfiguration.
type ClusterAssignment struct {
	Id          ClusterId
	Leader      PeerId
	Assignments []PeerClusterAssignment
}

// OldPeerConfiguration is the legacy aggregate carried alongside
// PeerConfiguration for backward-compatible peers.
type OldPeerConfiguration struct {
	ClusterAssignment *ClusterAssignment // nil when the peer is not deployed
	BridgeName        string
}
