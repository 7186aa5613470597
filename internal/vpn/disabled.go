package vpn

import (
	"context"
	"net"

	"github.com/eclipse-opendut/opendut-sub001/internal/model"
)

// disabled is the no-op Vpn used for offline deployments. ClusterAddressOf
// returns the loopback address so single-host test setups (spec.md §8
// scenario 1) resolve a deterministic, routable address.
type disabled struct{}

func Disabled() Vpn { return disabled{} }

func (disabled) CreatePeer(ctx context.Context, id model.PeerId) error { return nil }
func (disabled) DeletePeer(ctx context.Context, id model.PeerId) error { return nil }

func (disabled) CreatePeerConfiguration(ctx context.Context, id model.PeerId) (PeerConfig, error) {
	return PeerConfig{}, nil
}

func (disabled) ClusterAddressOf(ctx context.Context, id model.PeerId) (net.IP, error) {
	return net.IPv4(127, 0, 0, 1), nil
}

func (disabled) Enabled() bool { return false }
