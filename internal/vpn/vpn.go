// Package vpn defines the capability interface consumed from the VPN
// backend (NetBird, out of scope per spec.md §1/§6 — only the interface is
// specified here) plus a Disabled implementation for offline operation.
// The constructor-struct shape ({Addr, Timeout, Logger}) mirrors the
// teacher's gRPC client constructors (pkg/clients/*).
package vpn

import (
	"context"
	"net"

	"github.com/eclipse-opendut/opendut-sub001/internal/model"
)

// PeerConfig is the VPN-side configuration handed back for a peer, e.g. to
// embed in its PeerSetup bundle.
type PeerConfig struct {
	SetupKey string
}

// Vpn is the capability set any VPN backend must satisfy.
type Vpn interface {
	CreatePeer(ctx context.Context, id model.PeerId) error
	DeletePeer(ctx context.Context, id model.PeerId) error
	CreatePeerConfiguration(ctx context.Context, id model.PeerId) (PeerConfig, error)
	ClusterAddressOf(ctx context.Context, id model.PeerId) (net.IP, error)
	// Enabled reports whether this backend actually talks to a VPN
	// management plane (false for Disabled).
	Enabled() bool
}
