package applier

import (
	"context"
	"fmt"

	"github.com/eclipse-opendut/opendut-sub001/internal/edge/network"
	"github.com/eclipse-opendut/opendut-sub001/internal/model"
)

func bridgeNode(n network.Manager, p model.Parameter[model.EthernetBridgeValue]) node {
	return node{id: p.Id, deps: p.Dependencies, kind: "EthernetBridge", apply: func(ctx context.Context) error {
		if p.Target == model.Absent {
			return n.DeleteInterface(p.Value.Name)
		}
		return n.CreateEmptyBridge(p.Value.Name)
	}}
}

func deviceInterfaceNode(n network.Manager, p model.Parameter[model.DeviceInterfaceValue]) node {
	return node{id: p.Id, deps: p.Dependencies, kind: "DeviceInterface", apply: func(ctx context.Context) error {
		desc := p.Value.Descriptor
		if p.Target == model.Absent {
			if desc.Kind == model.InterfaceVcan {
				return n.DeleteInterface(desc.Name.String())
			}
			return nil
		}
		switch desc.Kind {
		case model.InterfaceVcan:
			if err := n.CreateVCanInterface(desc.Name.String()); err != nil {
				return err
			}
		case model.InterfaceCan:
			if desc.Can == nil {
				return fmt.Errorf("device interface %s: CAN kind without CanConfiguration", desc.Name)
			}
			dataBitrate, dataSample := uint32(0), uint32(0)
			if desc.Can.FD {
				dataBitrate = desc.Can.DataBitrate
				dataSample = uint32(desc.Can.DataSamplePoint.Raw())
			}
			if err := n.ConfigureCanBitrate(desc.Name.String(), desc.Can.Bitrate, uint32(desc.Can.SamplePoint.Raw()), desc.Can.FD, dataBitrate, dataSample); err != nil {
				return err
			}
		default: // Ethernet
			if _, found, err := n.TryFindInterface(desc.Name.String()); err != nil {
				return err
			} else if !found {
				return &network.Error{Kind: network.InterfaceNotFound, Interface: desc.Name.String(), Err: fmt.Errorf("ethernet device not present")}
			}
		}
		return n.SetInterfaceUp(desc.Name.String())
	}}
}

func joinedInterfaceNode(n network.Manager, p model.Parameter[model.JoinedInterfaceValue]) node {
	return node{id: p.Id, deps: p.Dependencies, kind: "JoinedInterface", apply: func(ctx context.Context) error {
		if p.Target == model.Absent {
			return n.DetachInterfaceFromBridge(p.Value.Interface)
		}
		return n.JoinInterfaceToBridge(p.Value.Interface, p.Value.Bridge)
	}}
}

func greInterfaceNode(n network.Manager, p model.Parameter[model.GreInterfaceValue]) node {
	return node{id: p.Id, deps: p.Dependencies, kind: "GreInterface", apply: func(ctx context.Context) error {
		if p.Target == model.Absent {
			return n.DeleteInterface(p.Value.Name)
		}
		return n.CreateGretapV4Interface(p.Value.Name, p.Value.LocalIP, p.Value.RemoteIP)
	}}
}

func canBridgesNode(n network.Manager, p model.Parameter[model.CanBridgesValue]) node {
	return node{id: p.Id, deps: p.Dependencies, kind: "CanBridges", apply: func(ctx context.Context) error {
		return reconcileCanRoute(n, p.Target, p.Value.Src, p.Value.Dst, p.Value.CanFD)
	}}
}

func canLocalRoutesNode(n network.Manager, p model.Parameter[model.CanLocalRoutesValue]) node {
	return node{id: p.Id, deps: p.Dependencies, kind: "CanLocalRoutes", apply: func(ctx context.Context) error {
		return reconcileCanRoute(n, p.Target, p.Value.Src, p.Value.Dst, p.Value.CanFD)
	}}
}

// reconcileCanRoute flushes every cangw route on Absent, since cangw has no
// per-route removal by endpoint alone; routes installed by other CAN
// parameters are flushed as well. On Present it installs src->dst only when
// CheckCanRouteExists does not already list it; no flush happens on Present.
func reconcileCanRoute(n network.Manager, target model.ParameterTarget, src, dst string, canFD bool) error {
	if target == model.Absent {
		return n.RemoveAllCanRoutes()
	}
	if exists, err := n.CheckCanRouteExists(src, dst, canFD); err != nil {
		return err
	} else if exists {
		return nil
	}
	return n.CreateCanRoute(src, dst, canFD)
}
