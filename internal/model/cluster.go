package model

// ClusterConfiguration groups devices owned by one or more peers behind a
// shared overlay bridge and leader.
//
// Invariant I3: every device in Devices belongs to some peer's topology;
// the leader must exist (ownership of a device is recommended but not
// mechanically required beyond that).
type ClusterConfiguration struct {
	Id      ClusterId
	Name    ClusterName
	Leader  PeerId
	Devices map[DeviceId]struct{}
}

func NewClusterConfiguration(id ClusterId, name ClusterName, leader PeerId, devices []DeviceId) ClusterConfiguration {
	set := make(map[DeviceId]struct{}, len(devices))
	for _, d := range devices {
		set[d] = struct{}{}
	}
	return ClusterConfiguration{Id: id, Name: name, Leader: leader, Devices: set}
}

func (c ClusterConfiguration) DeviceList() []DeviceId {
	ids := make([]DeviceId, 0, len(c.Devices))
	for d := range c.Devices {
		ids = append(ids, d)
	}
	return ids
}

// ClusterDeployment existing signals that a cluster shall be deployed.
type ClusterDeployment struct {
	Id ClusterId
}
