package model

import (
	"fmt"

	"github.com/google/uuid"
)

// PeerId identifies a PeerDescriptor.
type PeerId struct{ uuid.UUID }

// ClusterId identifies a ClusterConfiguration/ClusterDeployment.
type ClusterId struct{ uuid.UUID }

// DeviceId identifies a DeviceDescriptor.
type DeviceId struct{ uuid.UUID }

// NetworkInterfaceId identifies a NetworkInterfaceDescriptor.
type NetworkInterfaceId struct{ uuid.UUID }

// ExecutorId identifies an ExecutorDescriptor.
type ExecutorId struct{ uuid.UUID }

// ParameterId identifies a Parameter within a PeerConfiguration.
type ParameterId struct{ uuid.UUID }

func NewPeerId() PeerId                       { return PeerId{uuid.New()} }
func NewClusterId() ClusterId                 { return ClusterId{uuid.New()} }
func NewDeviceId() DeviceId                   { return DeviceId{uuid.New()} }
func NewNetworkInterfaceId() NetworkInterfaceId { return NetworkInterfaceId{uuid.New()} }
func NewExecutorId() ExecutorId               { return ExecutorId{uuid.New()} }
func NewParameterId() ParameterId             { return ParameterId{uuid.New()} }

func ParsePeerId(s string) (PeerId, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return PeerId{}, fmt.Errorf("invalid peer id %q: %w", s, err)
	}
	return PeerId{id}, nil
}

func ParseClusterId(s string) (ClusterId, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return ClusterId{}, fmt.Errorf("invalid cluster id %q: %w", s, err)
	}
	return ClusterId{id}, nil
}

func ParseDeviceId(s string) (DeviceId, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return DeviceId{}, fmt.Errorf("invalid device id %q: %w", s, err)
	}
	return DeviceId{id}, nil
}

func (id PeerId) String() string               { return id.UUID.String() }
func (id ClusterId) String() string             { return id.UUID.String() }
func (id DeviceId) String() string              { return id.UUID.String() }
func (id NetworkInterfaceId) String() string    { return id.UUID.String() }
func (id ExecutorId) String() string            { return id.UUID.String() }
func (id ParameterId) String() string           { return id.UUID.String() }

func (id PeerId) IsZero() bool  { return id.UUID == uuid.Nil }
func (id ClusterId) IsZero() bool { return id.UUID == uuid.Nil }
