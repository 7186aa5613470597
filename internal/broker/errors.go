package broker

import "fmt"

// PeerAlreadyConnectedError is returned when a second stream registers for
// a peer id that already has a live connection (spec.md §4.3: at most one
// stream per peer).
type PeerAlreadyConnectedError struct {
	PeerId string
}

func (e *PeerAlreadyConnectedError) Error() string {
	return fmt.Sprintf("peer %s already has an open broker stream", e.PeerId)
}

// PeerNotConnectedError is returned by SendApplyPeerConfiguration when the
// target peer has no live stream to push onto.
type PeerNotConnectedError struct {
	PeerId string
}

func (e *PeerNotConnectedError) Error() string {
	return fmt.Sprintf("peer %s is not connected", e.PeerId)
}
