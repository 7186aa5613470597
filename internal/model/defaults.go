package model

// DefaultBridgeName is the overlay bridge name used when neither a
// PeerDescriptor nor a cluster names one explicitly.
const DefaultBridgeName = "br-opendut"
