// Package actions implements the action layer (L2): stateless,
// transaction-scoped business transitions over the resource store,
// parameterised by (Store, Vpn) per spec.md §4.2.
package actions

import (
	"github.com/eclipse-opendut/opendut-sub001/internal/model"
	"github.com/eclipse-opendut/opendut-sub001/internal/store"
	"github.com/eclipse-opendut/opendut-sub001/internal/vpn"
	"github.com/eclipse-opendut/opendut-sub001/pkg/logging"
)

// Options bundles the dependencies every action closure needs.
type Options struct {
	Store               store.Store
	Vpn                 vpn.Vpn
	Logger              logging.Logger
	DefaultBridgeName   string // used when a PeerDescriptor has no bridge_name
}

func (o Options) bridgeNameDefault() string {
	if o.DefaultBridgeName != "" {
		return o.DefaultBridgeName
	}
	return model.DefaultBridgeName
}
