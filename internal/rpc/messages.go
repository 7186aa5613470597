// Package rpc defines the wire messages exchanged between CARL and EDGAR
// over the peer stream (spec.md §6) plus the ToWire/FromWire conversions
// to/from internal/model. The example pack's protoc-generated stubs are
// not reproducible without the protobuf toolchain (see DESIGN.md); these
// are plain, explicitly-versioned Go structs instead, carried over the
// same real google.golang.org/grpc bidirectional-stream transport via a
// hand-registered JSON encoding.Codec (codec.go).
package rpc

// PeerMessage is the upstream (peer -> coordinator) envelope.
type PeerMessage struct {
	Ping *PingMessage `json:"ping,omitempty"`
}

type PingMessage struct{}

// CoordinatorMessage is the downstream (coordinator -> peer) envelope.
type CoordinatorMessage struct {
	Pong                   *PongMessage                   `json:"pong,omitempty"`
	ApplyPeerConfiguration *ApplyPeerConfigurationMessage `json:"apply_peer_configuration,omitempty"`

	// Traceparent carries the W3C trace context attached to every
	// downstream message for cross-service correlation (spec.md §6).
	Traceparent string `json:"traceparent,omitempty"`
}

type PongMessage struct{}

// ApplyPeerConfigurationMessage carries the latest configuration pair.
type ApplyPeerConfigurationMessage struct {
	OldPeerConfiguration OldPeerConfigurationWire `json:"old_peer_configuration"`
	PeerConfiguration    PeerConfigurationWire     `json:"peer_configuration"`
}

// --- wire DTOs -------------------------------------------------------------
//
// These mirror internal/model's domain types field-for-field but use
// wire-friendly primitive types (strings for UUIDs/IPs) so conversion is
// explicit and testable via ToWire/FromWire (see convert.go), satisfying
// the round-trip law of spec.md §8.

type ParameterTargetWire string

const (
	TargetPresent ParameterTargetWire = "present"
	TargetAbsent  ParameterTargetWire = "absent"
)

type ParameterWire[T any] struct {
	Id           string              `json:"id"`
	Value        T                   `json:"value"`
	Target       ParameterTargetWire `json:"target"`
	Dependencies []string            `json:"dependencies"`
}

type EthernetBridgeWire struct {
	Name string `json:"name"`
}

type CanConfigurationWire struct {
	Bitrate         uint32 `json:"bitrate"`
	SamplePoint     uint16 `json:"sample_point"`
	FD              bool   `json:"fd"`
	DataBitrate     uint32 `json:"data_bitrate"`
	DataSamplePoint uint16 `json:"data_sample_point"`
}

type NetworkInterfaceWire struct {
	Id   string                `json:"id"`
	Name string                `json:"name"`
	Kind string                `json:"kind"` // "ethernet" | "can" | "vcan"
	Can  *CanConfigurationWire `json:"can,omitempty"`
}

type DeviceInterfaceWire struct {
	Descriptor NetworkInterfaceWire `json:"descriptor"`
}

type GreInterfaceWire struct {
	Name     string `json:"name"`
	LocalIP  string `json:"local_ip"`
	RemoteIP string `json:"remote_ip"`
}

type JoinedInterfaceWire struct {
	Interface string `json:"interface"`
	Bridge    string `json:"bridge"`
}

type ContainerSpecWire struct {
	Engine  string            `json:"engine"`
	Name    string            `json:"name"`
	Image   string            `json:"image"`
	Volumes []string          `json:"volumes"`
	Devices []string          `json:"devices"`
	Envs    map[string]string `json:"envs"`
	Ports   []uint16          `json:"ports"`
	Command string            `json:"command"`
	Args    []string          `json:"args"`
}

type ExecutableSpecWire struct {
	Command string            `json:"command"`
	Args    []string          `json:"args"`
	Envs    map[string]string `json:"envs"`
}

type ExecutorWire struct {
	Id         string              `json:"id"`
	Kind       string              `json:"kind"` // "executable" | "container"
	Container  *ContainerSpecWire  `json:"container,omitempty"`
	Executable *ExecutableSpecWire `json:"executable,omitempty"`
	ResultsURL string              `json:"results_url,omitempty"`
}

type ExecutorValueWire struct {
	Descriptor ExecutorWire `json:"descriptor"`
}

type CanConnectionsWire struct {
	RemoteIP   string `json:"remote_ip"`
	RemotePort uint16 `json:"remote_port"`
	LocalIface string `json:"local_iface"`
}

type CanBridgesWire struct {
	Src   string `json:"src"`
	Dst   string `json:"dst"`
	CanFD bool   `json:"can_fd"`
}

type CanLocalRoutesWire struct {
	Src   string `json:"src"`
	Dst   string `json:"dst"`
	CanFD bool   `json:"can_fd"`
}

type RemotePeerConnectionCheckWire struct {
	RemoteIP string `json:"remote_ip"`
}

type PeerConfigurationWire struct {
	DeviceInterfaces           []ParameterWire[DeviceInterfaceWire]            `json:"device_interfaces"`
	EthernetBridges            []ParameterWire[EthernetBridgeWire]             `json:"ethernet_bridges"`
	GreInterfaces              []ParameterWire[GreInterfaceWire]               `json:"gre_interfaces"`
	JoinedInterfaces           []ParameterWire[JoinedInterfaceWire]            `json:"joined_interfaces"`
	Executors                  []ParameterWire[ExecutorValueWire]              `json:"executors"`
	CanConnections             []ParameterWire[CanConnectionsWire]             `json:"can_connections"`
	CanBridges                 []ParameterWire[CanBridgesWire]                `json:"can_bridges"`
	CanLocalRoutes             []ParameterWire[CanLocalRoutesWire]             `json:"can_local_routes"`
	RemotePeerConnectionChecks []ParameterWire[RemotePeerConnectionCheckWire]  `json:"remote_peer_connection_checks"`
}

type PeerClusterAssignmentWire struct {
	PeerId           string                 `json:"peer_id"`
	VpnAddress       string                 `json:"vpn_address"`
	CanServerPort    uint16                 `json:"can_server_port"`
	DeviceInterfaces []NetworkInterfaceWire `json:"device_interfaces"`
}

type ClusterAssignmentWire struct {
	Id          string                      `json:"id"`
	Leader      string                      `json:"leader"`
	Assignments []PeerClusterAssignmentWire `json:"assignments"`
}

type OldPeerConfigurationWire struct {
	ClusterAssignment *ClusterAssignmentWire `json:"cluster_assignment,omitempty"`
	BridgeName        string                 `json:"bridge_name"`
}
