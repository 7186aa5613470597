package model

import "net"

// ConnectionStateTag tags the PeerState.Connection union.
type ConnectionStateTag int

const (
	ConnectionOffline ConnectionStateTag = iota
	ConnectionOnline
)

// ConnectionState is the current stream-connectivity state of a peer.
type ConnectionState struct {
	Tag        ConnectionStateTag
	RemoteHost net.IP // set iff Tag == ConnectionOnline
}

func Offline() ConnectionState { return ConnectionState{Tag: ConnectionOffline} }

func Online(remoteHost net.IP) ConnectionState {
	return ConnectionState{Tag: ConnectionOnline, RemoteHost: remoteHost}
}

// MemberStateTag tags the PeerState.Member union.
type MemberStateTag int

const (
	MemberAvailable MemberStateTag = iota
	MemberBlocked
)

// MemberState is the current cluster-membership state of a peer.
type MemberState struct {
	Tag        MemberStateTag
	ByCluster  ClusterId // set iff Tag == MemberBlocked
}

func Available() MemberState { return MemberState{Tag: MemberAvailable} }

func Blocked(cluster ClusterId) MemberState {
	return MemberState{Tag: MemberBlocked, ByCluster: cluster}
}

// PeerState is the coordinator's live view of a peer's connectivity and
// cluster membership, independent of its PeerDescriptor.
type PeerState struct {
	Connection ConnectionState
	Member     MemberState
}

func NewPeerState() PeerState {
	return PeerState{Connection: Offline(), Member: Available()}
}

func (s PeerState) IsOnline() bool { return s.Connection.Tag == ConnectionOnline }
func (s PeerState) IsAvailable() bool { return s.Member.Tag == MemberAvailable }
