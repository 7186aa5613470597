package rpc

import (
	"fmt"
	"net"

	"github.com/google/uuid"

	"github.com/eclipse-opendut/opendut-sub001/internal/model"
)

func targetToWire(t model.ParameterTarget) ParameterTargetWire {
	if t == model.Present {
		return TargetPresent
	}
	return TargetAbsent
}

func targetFromWire(t ParameterTargetWire) model.ParameterTarget {
	if t == TargetPresent {
		return model.Present
	}
	return model.Absent
}

func depsToWire(deps map[model.ParameterId]struct{}) []string {
	out := make([]string, 0, len(deps))
	for d := range deps {
		out = append(out, d.String())
	}
	return out
}

func depsFromWire(ids []string) (map[model.ParameterId]struct{}, error) {
	out := make(map[model.ParameterId]struct{}, len(ids))
	for _, s := range ids {
		id, err := uuid.Parse(s)
		if err != nil {
			return nil, fmt.Errorf("parameter dependency id: %w", err)
		}
		out[model.ParameterId{UUID: id}] = struct{}{}
	}
	return out, nil
}

func paramToWire[T, W any](p model.Parameter[T], value W) ParameterWire[W] {
	return ParameterWire[W]{
		Id:           p.Id.String(),
		Value:        value,
		Target:       targetToWire(p.Target),
		Dependencies: depsToWire(p.Dependencies),
	}
}

func paramFromWire[T, W any](p ParameterWire[W], value T) (model.Parameter[T], error) {
	id, err := uuid.Parse(p.Id)
	if err != nil {
		return model.Parameter[T]{}, fmt.Errorf("parameter id: %w", err)
	}
	deps, err := depsFromWire(p.Dependencies)
	if err != nil {
		return model.Parameter[T]{}, err
	}
	return model.Parameter[T]{
		Id:           model.ParameterId{UUID: id},
		Value:        value,
		Target:       targetFromWire(p.Target),
		Dependencies: deps,
	}, nil
}

func interfaceKindToWire(k model.NetworkInterfaceKind) string {
	switch k {
	case model.InterfaceCan:
		return "can"
	case model.InterfaceVcan:
		return "vcan"
	default:
		return "ethernet"
	}
}

func interfaceKindFromWire(s string) model.NetworkInterfaceKind {
	switch s {
	case "can":
		return model.InterfaceCan
	case "vcan":
		return model.InterfaceVcan
	default:
		return model.InterfaceEthernet
	}
}

func networkInterfaceToWire(d model.NetworkInterfaceDescriptor) NetworkInterfaceWire {
	w := NetworkInterfaceWire{
		Id:   d.Id.String(),
		Name: d.Name.String(),
		Kind: interfaceKindToWire(d.Kind),
	}
	if d.Can != nil {
		w.Can = &CanConfigurationWire{
			Bitrate:         d.Can.Bitrate,
			SamplePoint:     d.Can.SamplePoint.Raw(),
			FD:              d.Can.FD,
			DataBitrate:     d.Can.DataBitrate,
			DataSamplePoint: d.Can.DataSamplePoint.Raw(),
		}
	}
	return w
}

func networkInterfaceFromWire(w NetworkInterfaceWire) (model.NetworkInterfaceDescriptor, error) {
	id, err := uuid.Parse(w.Id)
	if err != nil {
		return model.NetworkInterfaceDescriptor{}, fmt.Errorf("interface id: %w", err)
	}
	name, err := model.NewNetworkInterfaceName(w.Name)
	if err != nil {
		return model.NetworkInterfaceDescriptor{}, err
	}
	d := model.NetworkInterfaceDescriptor{
		Id:   model.NetworkInterfaceId{UUID: id},
		Name: name,
		Kind: interfaceKindFromWire(w.Kind),
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
		d.Can = &model.CanConfiguration{
			Bitrate: w.Can.Bitrate, SamplePoint: sp, FD: w.Can.FD,
			DataBitrate: w.Can.DataBitrate, DataSamplePoint: dsp,
		}
	}
	return d, nil
}

func executorKindToWire(k model.ExecutorKindTag) string {
	if k == model.ExecutorContainer {
		return "container"
	}
	return "executable"
}

func executorKindFromWire(s string) model.ExecutorKindTag {
	if s == "container" {
		return model.ExecutorContainer
	}
	return model.ExecutorExecutable
}

func engineToWire(e model.ContainerEngine) string {
	if e == model.EnginePodman {
		return "podman"
	}
	return "docker"
}

func engineFromWire(s string) model.ContainerEngine {
	if s == "podman" {
		return model.EnginePodman
	}
	return model.EngineDocker
}

func portsToWire(ports []model.Port) []uint16 {
	out := make([]uint16, len(ports))
	for i, p := range ports {
		out[i] = uint16(p)
	}
	return out
}

func portsFromWire(ports []uint16) []model.Port {
	out := make([]model.Port, len(ports))
	for i, p := range ports {
		out[i] = model.Port(p)
	}
	return out
}

func executorToWire(e model.ExecutorDescriptor) ExecutorWire {
	w := ExecutorWire{Id: e.Id.String(), Kind: executorKindToWire(e.Kind), ResultsURL: e.ResultsURL}
	if e.Container != nil {
		w.Container = &ContainerSpecWire{
			Engine: engineToWire(e.Container.Engine), Name: e.Container.Name.String(),
			Image: e.Container.Image, Volumes: e.Container.Volumes, Devices: e.Container.Devices,
			Envs: e.Container.Envs, Ports: portsToWire(e.Container.Ports),
			Command: e.Container.Command, Args: e.Container.Args,
		}
	}
	if e.Executable != nil {
		w.Executable = &ExecutableSpecWire{Command: e.Executable.Command, Args: e.Executable.Args, Envs: e.Executable.Envs}
	}
	return w
}

func executorFromWire(w ExecutorWire) (model.ExecutorDescriptor, error) {
	id, err := uuid.Parse(w.Id)
	if err != nil {
		return model.ExecutorDescriptor{}, fmt.Errorf("executor id: %w", err)
	}
	e := model.ExecutorDescriptor{
		Id: model.ExecutorId{UUID: id}, Kind: executorKindFromWire(w.Kind), ResultsURL: w.ResultsURL,
	}
	if w.Container != nil {
		name, err := model.NewContainerName(w.Container.Name)
		if err != nil {
			return model.ExecutorDescriptor{}, err
		}
		e.Container = &model.ContainerSpec{
			Engine: engineFromWire(w.Container.Engine), Name: name, Image: w.Container.Image,
			Volumes: w.Container.Volumes, Devices: w.Container.Devices, Envs: w.Container.Envs,
			Ports: portsFromWire(w.Container.Ports), Command: w.Container.Command, Args: w.Container.Args,
		}
	}
	if w.Executable != nil {
		e.Executable = &model.ExecutableSpec{Command: w.Executable.Command, Args: w.Executable.Args, Envs: w.Executable.Envs}
	}
	return e, nil
}

// PeerConfigurationToWire converts the domain PeerConfiguration into its
// wire DTO.
func PeerConfigurationToWire(cfg model.PeerConfiguration) PeerConfigurationWire {
	var out PeerConfigurationWire
	for _, p := range cfg.DeviceInterfaces {
		out.DeviceInterfaces = append(out.DeviceInterfaces, paramToWire(p, DeviceInterfaceWire{Descriptor: networkInterfaceToWire(p.Value.Descriptor)}))
	}
	for _, p := range cfg.EthernetBridges {
		out.EthernetBridges = append(out.EthernetBridges, paramToWire(p, EthernetBridgeWire{Name: p.Value.Name}))
	}
	for _, p := range cfg.GreInterfaces {
		out.GreInterfaces = append(out.GreInterfaces, paramToWire(p, GreInterfaceWire{
			Name: p.Value.Name, LocalIP: ipString(p.Value.LocalIP), RemoteIP: ipString(p.Value.RemoteIP),
		}))
	}
	for _, p := range cfg.JoinedInterfaces {
		out.JoinedInterfaces = append(out.JoinedInterfaces, paramToWire(p, JoinedInterfaceWire{Interface: p.Value.Interface, Bridge: p.Value.Bridge}))
	}
	for _, p := range cfg.Executors {
		out.Executors = append(out.Executors, paramToWire(p, ExecutorValueWire{Descriptor: executorToWire(p.Value.Descriptor)}))
	}
	for _, p := range cfg.CanConnections {
		out.CanConnections = append(out.CanConnections, paramToWire(p, CanConnectionsWire{
			RemoteIP: ipString(p.Value.RemoteIP), RemotePort: uint16(p.Value.RemotePort), LocalIface: p.Value.LocalIface,
		}))
	}
	for _, p := range cfg.CanBridges {
		out.CanBridges = append(out.CanBridges, paramToWire(p, CanBridgesWire{Src: p.Value.Src, Dst: p.Value.Dst, CanFD: p.Value.CanFD}))
	}
	for _, p := range cfg.CanLocalRoutes {
		out.CanLocalRoutes = append(out.CanLocalRoutes, paramToWire(p, CanLocalRoutesWire{Src: p.Value.Src, Dst: p.Value.Dst, CanFD: p.Value.CanFD}))
	}
	for _, p := range cfg.RemotePeerConnectionChecks {
		out.RemotePeerConnectionChecks = append(out.RemotePeerConnectionChecks, paramToWire(p, RemotePeerConnectionCheckWire{RemoteIP: ipString(p.Value.RemoteIP)}))
	}
	return out
}

// PeerConfigurationFromWire is the inverse of PeerConfigurationToWire.
func PeerConfigurationFromWire(w PeerConfigurationWire) (model.PeerConfiguration, error) {
	var cfg model.PeerConfiguration
	for _, p := range w.DeviceInterfaces {
		iface, err := networkInterfaceFromWire(p.Value.Descriptor)
		if err != nil {
			return cfg, err
		}
		param, err := paramFromWire(p, model.DeviceInterfaceValue{Descriptor: iface})
		if err != nil {
			return cfg, err
		}
		cfg.DeviceInterfaces = append(cfg.DeviceInterfaces, param)
	}
	for _, p := range w.EthernetBridges {
		param, err := paramFromWire(p, model.EthernetBridgeValue{Name: p.Value.Name})
		if err != nil {
			return cfg, err
		}
		cfg.EthernetBridges = append(cfg.EthernetBridges, param)
	}
	for _, p := range w.GreInterfaces {
		param, err := paramFromWire(p, model.GreInterfaceValue{
			Name: p.Value.Name, LocalIP: net.ParseIP(p.Value.LocalIP), RemoteIP: net.ParseIP(p.Value.RemoteIP),
		})
		if err != nil {
			return cfg, err
		}
		cfg.GreInterfaces = append(cfg.GreInterfaces, param)
	}
	for _, p := range w.JoinedInterfaces {
		param, err := paramFromWire(p, model.JoinedInterfaceValue{Interface: p.Value.Interface, Bridge: p.Value.Bridge})
		if err != nil {
			return cfg, err
		}
		cfg.JoinedInterfaces = append(cfg.JoinedInterfaces, param)
	}
	for _, p := range w.Executors {
		exec, err := executorFromWire(p.Value.Descriptor)
		if err != nil {
			return cfg, err
		}
		param, err := paramFromWire(p, model.ExecutorValue{Descriptor: exec})
		if err != nil {
			return cfg, err
		}
		cfg.Executors = append(cfg.Executors, param)
	}
	for _, p := range w.CanConnections {
		param, err := paramFromWire(p, model.CanConnectionsValue{
			RemoteIP: net.ParseIP(p.Value.RemoteIP), RemotePort: model.Port(p.Value.RemotePort), LocalIface: p.Value.LocalIface,
		})
		if err != nil {
			return cfg, err
		}
		cfg.CanConnections = append(cfg.CanConnections, param)
	}
	for _, p := range w.CanBridges {
		param, err := paramFromWire(p, model.CanBridgesValue{Src: p.Value.Src, Dst: p.Value.Dst, CanFD: p.Value.CanFD})
		if err != nil {
			return cfg, err
		}
		cfg.CanBridges = append(cfg.CanBridges, param)
	}
	for _, p := range w.CanLocalRoutes {
		param, err := paramFromWire(p, model.CanLocalRoutesValue{Src: p.Value.Src, Dst: p.Value.Dst, CanFD: p.Value.CanFD})
		if err != nil {
			return cfg, err
		}
		cfg.CanLocalRoutes = append(cfg.CanLocalRoutes, param)
	}
	for _, p := range w.RemotePeerConnectionChecks {
		param, err := paramFromWire(p, model.RemotePeerConnectionCheckValue{RemoteIP: net.ParseIP(p.Value.RemoteIP)})
		if err != nil {
			return cfg, err
		}
		cfg.RemotePeerConnectionChecks = append(cfg.RemotePeerConnectionChecks, param)
	}
	return cfg, nil
}

func ipString(ip net.IP) string {
	if ip == nil {
		return ""
	}
	return ip.String()
}

// OldPeerConfigurationToWire converts the legacy aggregate to its wire DTO.
func OldPeerConfigurationToWire(o model.OldPeerConfiguration) OldPeerConfigurationWire {
	w := OldPeerConfigurationWire{BridgeName: o.BridgeName}
	if o.ClusterAssignment != nil {
		assignments := make([]PeerClusterAssignmentWire, len(o.ClusterAssignment.Assignments))
		for i, a := range o.ClusterAssignment.Assignments {
			ifaces := make([]NetworkInterfaceWire, len(a.DeviceInterfaces))
			for j, iface := range a.DeviceInterfaces {
				ifaces[j] = networkInterfaceToWire(iface)
			}
			assignments[i] = PeerClusterAssignmentWire{
				PeerId: a.PeerId.String(), VpnAddress: ipString(a.VpnAddress),
				CanServerPort: uint16(a.CanServerPort), DeviceInterfaces: ifaces,
			}
		}
		w.ClusterAssignment = &ClusterAssignmentWire{
			Id: o.ClusterAssignment.Id.String(), Leader: o.ClusterAssignment.Leader.String(), Assignments: assignments,
		}
	}
	return w
}

// OldPeerConfigurationFromWire is the inverse of OldPeerConfigurationToWire.
func OldPeerConfigurationFromWire(w OldPeerConfigurationWire) (model.OldPeerConfiguration, error) {
	o := model.OldPeerConfiguration{BridgeName: w.BridgeName}
	if w.ClusterAssignment != nil {
		clusterId, err := uuid.Parse(w.ClusterAssignment.Id)
		if err != nil {
			return o, fmt.Errorf("cluster assignment id: %w", err)
		}
		leaderId, err := uuid.Parse(w.ClusterAssignment.Leader)
		if err != nil {
			return o, fmt.Errorf("cluster assignment leader: %w", err)
		}
		assignments := make([]model.PeerClusterAssignment, len(w.ClusterAssignment.Assignments))
		for i, a := range w.ClusterAssignment.Assignments {
			peerId, err := uuid.Parse(a.PeerId)
			if err != nil {
				return o, fmt.Errorf("peer cluster assignment peer id: %w", err)
			}
			ifaces := make([]model.NetworkInterfaceDescriptor, len(a.DeviceInterfaces))
			for j, iface := range a.DeviceInterfaces {
				d, err := networkInterfaceFromWire(iface)
				if err != nil {
					return o, err
				}
				ifaces[j] = d
			}
			assignments[i] = model.PeerClusterAssignment{
				PeerId: model.PeerId{UUID: peerId}, VpnAddress: net.ParseIP(a.VpnAddress),
				CanServerPort: model.Port(a.CanServerPort), DeviceInterfaces: ifaces,
			}
		}
		o.ClusterAssignment = &model.ClusterAssignment{
			Id: model.ClusterId{UUID: clusterId}, Leader: model.PeerId{UUID: leaderId}, Assignments: assignments,
		}
	}
	return o, nil
}
