package applier

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
	"time"

	"github.com/eclipse-opendut/opendut-sub001/internal/model"
)

const connectionCheckTimeout = 3 * time.Second

func remotePeerConnectionCheckNode(p model.Parameter[model.RemotePeerConnectionCheckValue]) node {
	return node{id: p.Id, deps: p.Dependencies, kind: "RemotePeerConnectionCheck", apply: func(ctx context.Context) error {
		if p.Target == model.Absent {
			return nil
		}
		return probeReachable(ctx, p.Value.RemoteIP)
	}}
}

// probeReachable dials a TCP connection to the remote peer's VPN address
// on the fixed port 443, treating any accept/refuse (not a timeout or
// unreachable-host error) as evidence the host is up.
func probeReachable(ctx context.Context, remote net.IP) error {
	dialCtx, cancel := context.WithTimeout(ctx, connectionCheckTimeout)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(dialCtx, "tcp", net.JoinHostPort(remote.String(), "443"))
	if err == nil {
		_ = conn.Close()
		return nil
	}
	// A refused connection still proves the host itself answered; only
	// timeouts and routing failures indicate the peer is unreachable.
	if errors.Is(err, syscall.ECONNREFUSED) {
		return nil
	}
	return fmt.Errorf("remote peer connection check: %s unreachable: %w", remote, err)
}
