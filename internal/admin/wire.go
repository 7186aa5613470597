// Package admin exposes CARL's administrative RPC surface (spec.md §6) as
// a gin HTTP façade over internal/actions, gated by a bearer token
// (internal/peerauth) and reusing the internal/rpc wire-DTO idiom: plain
// JSON-friendly structs with explicit ToWire/FromWire conversions, since
// internal/model's value objects (PeerName, DeviceName, ...) deliberately
// keep their backing field unexported and do not implement
// json.Marshaler/Unmarshaler themselves (see DESIGN.md).
package admin

import (
	"fmt"

	"github.com/eclipse-opendut/opendut-sub001/internal/model"
	"github.com/eclipse-opendut/opendut-sub001/internal/rpc"
)

type NetworkInterfaceDTO = rpc.NetworkInterfaceWire

type DeviceDTO struct {
	Id          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Interface   string   `json:"interface"`
	Tags        []string `json:"tags"`
}

func deviceToDTO(d model.DeviceDescriptor) DeviceDTO {
	tags := make([]string, len(d.Tags))
	for i, t := range d.Tags {
		tags[i] = t.Value
	}
	return DeviceDTO{Id: d.Id.String(), Name: d.Name.String(), Description: d.Description, Interface: d.Interface.String(), Tags: tags}
}

func deviceFromDTO(d DeviceDTO) (model.DeviceDescriptor, error) {
	id, err := model.ParseDeviceId(d.Id)
	if err != nil {
		return model.DeviceDescriptor{}, err
	}
	name, err := model.NewDeviceName(d.Name)
	if err != nil {
		return model.DeviceDescriptor{}, err
	}
	ifaceId, err := parseNetworkInterfaceId(d.Interface)
	if err != nil {
		return model.DeviceDescriptor{}, err
	}
	tags := make([]model.DeviceTag, len(d.Tags))
	for i, t := range d.Tags {
		tags[i] = model.DeviceTag{Value: t}
	}
	return model.DeviceDescriptor{Id: id, Name: name, Description: d.Description, Interface: ifaceId, Tags: tags}, nil
}

type PeerNetworkDTO struct {
	Interfaces []NetworkInterfaceDTO `json:"interfaces"`
	BridgeName string                `json:"bridge_name,omitempty"`
}

type PeerExecutorDTO = rpc.ExecutorWire

type PeerDescriptorDTO struct {
	Id          string              `json:"id"`
	Name        string              `json:"name"`
	Location    string              `json:"location"`
	Network     PeerNetworkDTO      `json:"network"`
	Devices     []DeviceDTO         `json:"devices"`
	Executors   []PeerExecutorDTO   `json:"executors"`
}

func interfaceToDTO(d model.NetworkInterfaceDescriptor) NetworkInterfaceDTO {
	w := NetworkInterfaceDTO{Id: d.Id.String(), Name: d.Name.String()}
	switch d.Kind {
	case model.InterfaceCan:
		w.Kind = "can"
	case model.InterfaceVcan:
		w.Kind = "vcan"
	default:
		w.Kind = "ethernet"
	}
	if d.Can != nil {
		w.Can = &rpc.CanConfigurationWire{
			Bitrate: d.Can.Bitrate, SamplePoint: d.Can.SamplePoint.Raw(), FD: d.Can.FD,
			DataBitrate: d.Can.DataBitrate, DataSamplePoint: d.Can.DataSamplePoint.Raw(),
		}
	}
	return w
}

func parseNetworkInterfaceId(s string) (model.NetworkInterfaceId, error) {
	id, err := parseUUID(s)
	if err != nil {
		return model.NetworkInterfaceId{}, fmt.Errorf("interface id: %w", err)
	}
	return model.NetworkInterfaceId{UUID: id}, nil
}

func interfaceFromDTO(w NetworkInterfaceDTO) (model.NetworkInterfaceDescriptor, error) {
	id, err := parseNetworkInterfaceId(w.Id)
	if err != nil {
		return model.NetworkInterfaceDescriptor{}, err
	}
	name, err := model.NewNetworkInterfaceName(w.Name)
	if err != nil {
		return model.NetworkInterfaceDescriptor{}, err
	}
	d := model.NetworkInterfaceDescriptor{Id: id, Name: name}
	switch w.Kind {
	case "can":
		d.Kind = model.InterfaceCan
	case "vcan":
		d.Kind = model.InterfaceVcan
	default:
		d.Kind = model.InterfaceEthernet
	}
	if w.Can != nil {
		sp, err := model.NewCanSamplePoint(w.Can.SamplePoint)
		if err != nil {
			return model.NetworkInterfaceDescriptor{}, err
		}
		dsp, err := model.NewCanSamplePoint(w.Can.DataSamplePoint)
		if err != nil {
			return model.NetworkInterfaceDescriptor{}, err
		}
		d.Can = &model.CanConfiguration{Bitrate: w.Can.Bitrate, SamplePoint: sp, FD: w.Can.FD, DataBitrate: w.Can.DataBitrate, DataSamplePoint: dsp}
	}
	return d, nil
}

func peerToDTO(p model.PeerDescriptor) PeerDescriptorDTO {
	dto := PeerDescriptorDTO{
		Id: p.Id.String(), Name: p.Name.String(), Location: p.Location,
		Network: PeerNetworkDTO{BridgeName: p.Network.BridgeName},
	}
	for _, iface := range p.Network.Interfaces {
		dto.Network.Interfaces = append(dto.Network.Interfaces, interfaceToDTO(iface))
	}
	for _, d := range p.Topology.Devices {
		dto.Devices = append(dto.Devices, deviceToDTO(d))
	}
	for _, e := range p.Executors.Executors {
		dto.Executors = append(dto.Executors, executorToDTO(e))
	}
	return dto
}

func peerFromDTO(dto PeerDescriptorDTO) (model.PeerDescriptor, error) {
	id, err := model.ParsePeerId(dto.Id)
	if err != nil {
		return model.PeerDescriptor{}, err
	}
	name, err := model.NewPeerName(dto.Name)
	if err != nil {
		return model.PeerDescriptor{}, err
	}
	p := model.PeerDescriptor{Id: id, Name: name, Location: dto.Location, Network: model.PeerNetwork{BridgeName: dto.Network.BridgeName}}
	for _, w := range dto.Network.Interfaces {
		iface, err := interfaceFromDTO(w)
		if err != nil {
			return model.PeerDescriptor{}, err
		}
		p.Network.Interfaces = append(p.Network.Interfaces, iface)
	}
	for _, d := range dto.Devices {
		dev, err := deviceFromDTO(d)
		if err != nil {
			return model.PeerDescriptor{}, err
		}
		p.Topology.Devices = append(p.Topology.Devices, dev)
	}
	for _, e := range dto.Executors {
		exec, err := executorFromDTO(e)
		if err != nil {
			return model.PeerDescriptor{}, err
		}
		p.Executors.Executors = append(p.Executors.Executors, exec)
	}
	return p, nil
}

func executorToDTO(e model.ExecutorDescriptor) PeerExecutorDTO {
	w := PeerExecutorDTO{Id: e.Id.String(), ResultsURL: e.ResultsURL}
	if e.Kind == model.ExecutorContainer {
		w.Kind = "container"
	} else {
		w.Kind = "executable"
	}
	if e.Container != nil {
		engine := "docker"
		if e.Container.Engine == model.EnginePodman {
			engine = "podman"
		}
		ports := make([]uint16, len(e.Container.Ports))
		for i, p := range e.Container.Ports {
			ports[i] = uint16(p)
		}
		w.Container = &rpc.ContainerSpecWire{
			Engine: engine, Name: e.Container.Name.String(), Image: e.Container.Image,
			Volumes: e.Container.Volumes, Devices: e.Container.Devices, Envs: e.Container.Envs,
			Ports: ports, Command: e.Container.Command, Args: e.Container.Args,
		}
	}
	if e.Executable != nil {
		w.Executable = &rpc.ExecutableSpecWire{Command: e.Executable.Command, Args: e.Executable.Args, Envs: e.Executable.Envs}
	}
	return w
}

func executorFromDTO(w PeerExecutorDTO) (model.ExecutorDescriptor, error) {
	id, err := parseUUID(w.Id)
	if err != nil {
		return model.ExecutorDescriptor{}, fmt.Errorf("executor id: %w", err)
	}
	e := model.ExecutorDescriptor{Id: model.ExecutorId{UUID: id}, ResultsURL: w.ResultsURL}
	if w.Kind == "container" {
		e.Kind = model.ExecutorContainer
	} else {
		e.Kind = model.ExecutorExecutable
	}
	if w.Container != nil {
		name, err := model.NewContainerName(w.Container.Name)
		if err != nil {
			return model.ExecutorDescriptor{}, err
		}
		engine := model.EngineDocker
		if w.Container.Engine == "podman" {
			engine = model.EnginePodman
		}
		ports := make([]model.Port, len(w.Container.Ports))
		for i, p := range w.Container.Ports {
			ports[i] = model.Port(p)
		}
		e.Container = &model.ContainerSpec{
			Engine: engine, Name: name, Image: w.Container.Image,
			Volumes: w.Container.Volumes, Devices: w.Container.Devices, Envs: w.Container.Envs,
			Ports: ports, Command: w.Container.Command, Args: w.Container.Args,
		}
	}
	if w.Executable != nil {
		e.Executable = &model.ExecutableSpec{Command: w.Executable.Command, Args: w.Executable.Args, Envs: w.Executable.Envs}
	}
	return e, nil
}

type PeerStateDTO struct {
	Online     bool   `json:"online"`
	RemoteHost string `json:"remote_host,omitempty"`
	Blocked    bool   `json:"blocked"`
	ClusterId  string `json:"cluster_id,omitempty"`
}

func peerStateToDTO(s model.PeerState) PeerStateDTO {
	dto := PeerStateDTO{Online: s.IsOnline()}
	if s.IsOnline() && s.Connection.RemoteHost != nil {
		dto.RemoteHost = s.Connection.RemoteHost.String()
	}
	if !s.IsAvailable() {
		dto.Blocked = true
		dto.ClusterId = s.Member.ByCluster.String()
	}
	return dto
}

type ClusterConfigurationDTO struct {
	Id      string   `json:"id"`
	Name    string   `json:"name"`
	Leader  string   `json:"leader"`
	Devices []string `json:"devices"`
}

func clusterToDTO(c model.ClusterConfiguration) ClusterConfigurationDTO {
	dto := ClusterConfigurationDTO{Id: c.Id.String(), Name: c.Name.String(), Leader: c.Leader.String()}
	for _, d := range c.DeviceList() {
		dto.Devices = append(dto.Devices, d.String())
	}
	return dto
}

func clusterFromDTO(dto ClusterConfigurationDTO) (model.ClusterConfiguration, error) {
	id, err := model.ParseClusterId(dto.Id)
	if err != nil {
		return model.ClusterConfiguration{}, err
	}
	name, err := model.NewClusterName(dto.Name)
	if err != nil {
		return model.ClusterConfiguration{}, err
	}
	leader, err := model.ParsePeerId(dto.Leader)
	if err != nil {
		return model.ClusterConfiguration{}, err
	}
	devices := make([]model.DeviceId, 0, len(dto.Devices))
	for _, s := range dto.Devices {
		d, err := model.ParseDeviceId(s)
		if err != nil {
			return model.ClusterConfiguration{}, err
		}
		devices = append(devices, d)
	}
	return model.NewClusterConfiguration(id, name, leader, devices), nil
}

type ClusterDeploymentDTO struct {
	Id string `json:"id"`
}
