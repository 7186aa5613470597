package actions

import (
	"context"
	"sort"

	"github.com/eclipse-opendut/opendut-sub001/internal/model"
	"github.com/eclipse-opendut/opendut-sub001/internal/store"
)

// Deployability classifies a cluster's member peers against the
// deployability rule of spec.md §4.4.
type Deployability int

const (
	AllPeersAvailable Deployability = iota
	AlreadyDeployed
	NotAllPeersAvailable
)

// ClassifyDeployability inspects the live PeerState of every member peer of
// a cluster and returns the deployability verdict plus, for
// NotAllPeersAvailable, the offending peer ids.
func ClassifyDeployability(v store.View, clusterId model.ClusterId, memberPeers []model.PeerId) (Deployability, []model.PeerId, error) {
	var unavailable []model.PeerId
	allAlreadyThisCluster := true

	for _, peerId := range memberPeers {
		raw, ok, err := v.Get(store.KindPeerState, peerId.UUID)
		if err != nil {
			return 0, nil, err
		}
		if !ok {
			unavailable = append(unavailable, peerId)
			allAlreadyThisCluster = false
			continue
		}
		state := raw.(model.PeerState)
		if !state.IsOnline() {
			unavailable = append(unavailable, peerId)
			allAlreadyThisCluster = false
			continue
		}
		switch state.Member.Tag {
		case model.MemberAvailable:
			allAlreadyThisCluster = false
		case model.MemberBlocked:
			if state.Member.ByCluster != clusterId {
				unavailable = append(unavailable, peerId)
				allAlreadyThisCluster = false
			}
		}
	}

	if len(unavailable) == 0 {
		if allAlreadyThisCluster && len(memberPeers) > 0 {
			return AlreadyDeployed, nil, nil
		}
		return AllPeersAvailable, nil, nil
	}
	return NotAllPeersAvailable, unavailable, nil
}

// MemberPeersOf returns the distinct peers that own at least one device in
// the cluster's device set.
func MemberPeersOf(v store.View, cfg model.ClusterConfiguration) ([]model.PeerId, error) {
	peers, err := v.List(store.KindPeerDescriptor)
	if err != nil {
		return nil, err
	}
	seen := make(map[model.PeerId]struct{})
	for _, raw := range peers {
		p := raw.(model.PeerDescriptor)
		for _, d := range p.Topology.Devices {
			if _, wanted := cfg.Devices[d.Id]; wanted {
				seen[p.Id] = struct{}{}
				break
			}
		}
	}
	out := make([]model.PeerId, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out, nil
}

// StoreClusterDeployment implements spec.md §4.2 store_cluster_deployment:
// computes the cluster's member peers, rejects the deployment unless every
// member is Available (or already blocked by this same cluster, making the
// call idempotent), persists the deployment, and blocks every member peer.
func StoreClusterDeployment(ctx context.Context, opts Options, clusterId model.ClusterId) error {
	return opts.Store.Mutate(ctx, func(v store.View) error {
		raw, ok, err := v.Get(store.KindClusterConfiguration, clusterId.UUID)
		if err != nil {
			return &InternalError{err}
		}
		if !ok {
			return &ClusterNotFoundError{ClusterId: clusterId.String()}
		}
		cfg := raw.(model.ClusterConfiguration)

		members, err := MemberPeersOf(v, cfg)
		if err != nil {
			return &InternalError{err}
		}

		verdict, invalid, err := ClassifyDeployability(v, clusterId, members)
		if err != nil {
			return &InternalError{err}
		}
		if verdict == NotAllPeersAvailable {
			ids := make([]string, 0, len(invalid))
			for _, p := range invalid {
				ids = append(ids, p.String())
			}
			return &IllegalPeerStateError{InvalidPeers: ids, Reason: "peer offline or blocked by another cluster"}
		}

		if err := v.Insert(store.KindClusterDeployment, clusterId.UUID, model.ClusterDeployment{Id: clusterId}); err != nil {
			return &InternalError{err}
		}

		for _, peerId := range members {
			stateRaw, ok, err := v.Get(store.KindPeerState, peerId.UUID)
			if err != nil {
				return &InternalError{err}
			}
			var state model.PeerState
			if ok {
				state = stateRaw.(model.PeerState)
			} else {
				state = model.NewPeerState()
			}
			state.Member = model.Blocked(clusterId)
			if err := v.Insert(store.KindPeerState, peerId.UUID, state); err != nil {
				return &InternalError{err}
			}
		}
		return nil
	})
}

// DeleteClusterDeployment implements spec.md §4.2 delete_cluster_deployment:
// the inverse of StoreClusterDeployment. Every peer previously blocked by
// this cluster reverts to Available.
func DeleteClusterDeployment(ctx context.Context, opts Options, clusterId model.ClusterId) error {
	return opts.Store.Mutate(ctx, func(v store.View) error {
		if _, ok, err := v.Remove(store.KindClusterDeployment, clusterId.UUID); err != nil {
			return &InternalError{err}
		} else if !ok {
			return &ClusterNotFoundError{ClusterId: clusterId.String()}
		}

		states, err := v.List(store.KindPeerState)
		if err != nil {
			return &InternalError{err}
		}
		for id, raw := range states {
			state := raw.(model.PeerState)
			if state.Member.Tag == model.MemberBlocked && state.Member.ByCluster == clusterId {
				state.Member = model.Available()
				if err := v.Insert(store.KindPeerState, id, state); err != nil {
					return &InternalError{err}
				}
			}
		}
		return nil
	})
}
