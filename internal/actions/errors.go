package actions

import "fmt"

// IllegalPeerStateError reports that an action was rejected because one or
// more peers are not in the state the action requires.
type IllegalPeerStateError struct {
	InvalidPeers []string
	Reason       string
}

func (e *IllegalPeerStateError) Error() string {
	return fmt.Sprintf("illegal peer state (%s): %v", e.Reason, e.InvalidPeers)
}

// DeviceAlreadyExistsError reports a device id collision with a different
// peer's topology (invariant I2).
type DeviceAlreadyExistsError struct {
	DeviceId string
	OwnerId  string
}

func (e *DeviceAlreadyExistsError) Error() string {
	return fmt.Sprintf("device %s already exists, owned by peer %s", e.DeviceId, e.OwnerId)
}

// PeerNotFoundError reports a reference to a peer the store does not know.
type PeerNotFoundError struct{ PeerId string }

func (e *PeerNotFoundError) Error() string { return fmt.Sprintf("peer %s not found", e.PeerId) }

// ClusterNotFoundError reports a reference to a cluster the store does not
// know.
type ClusterNotFoundError struct{ ClusterId string }

func (e *ClusterNotFoundError) Error() string {
	return fmt.Sprintf("cluster %s not found", e.ClusterId)
}

// ClusterDeploymentExistsError reports a duplicate deployment request.
type ClusterDeploymentExistsError struct{ ClusterId string }

func (e *ClusterDeploymentExistsError) Error() string {
	return fmt.Sprintf("cluster %s is already deployed", e.ClusterId)
}

// InternalError wraps an unexpected persistence/VPN failure.
type InternalError struct{ Err error }

func (e *InternalError) Error() string { return fmt.Sprintf("internal error: %v", e.Err) }
func (e *InternalError) Unwrap() error { return e.Err }
