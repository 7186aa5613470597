package model

// NetworkInterfaceKind tags the configuration union of a
// NetworkInterfaceDescriptor.
type NetworkInterfaceKind int

const (
	InterfaceEthernet NetworkInterfaceKind = iota
	InterfaceCan
	InterfaceVcan
)

// CanConfiguration carries the CAN-specific parameters of an interface.
type CanConfiguration struct {
	Bitrate         uint32
	SamplePoint     CanSamplePoint
	FD              bool
	DataBitrate     uint32
	DataSamplePoint CanSamplePoint
}

// NetworkInterfaceDescriptor describes one physical or virtual network
// interface on a peer host.
type NetworkInterfaceDescriptor struct {
	Id            NetworkInterfaceId
	Name          NetworkInterfaceName
	Kind          NetworkInterfaceKind
	Can           *CanConfiguration // set iff Kind == InterfaceCan
}
