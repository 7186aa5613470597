package applier

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"

	"github.com/eclipse-opendut/opendut-sub001/internal/edge/process"
	"github.com/eclipse-opendut/opendut-sub001/internal/model"
)

// canConnectionsNode starts/stops a cannelloni tunnel process bridging the
// local bridge interface to the remote peer's CAN server, per spec.md
// §4.6. cannelloni is a subprocess, not a network.Manager primitive, so it
// is supervised through the edge process manager (L8) like an Executable
// executor.
func (a *Applier) canConnectionsNode(p model.Parameter[model.CanConnectionsValue]) node {
	return node{id: p.Id, deps: p.Dependencies, kind: "CanConnections", apply: func(ctx context.Context) error {
		if p.Target == model.Absent {
			a.stopTunnel(p.Id)
			return nil
		}
		return a.ensureTunnel(p.Id, p.Value)
	}}
}

func (a *Applier) ensureTunnel(id model.ParameterId, v model.CanConnectionsValue) error {
	a.mu.Lock()
	_, running := a.tunnels[id]
	a.mu.Unlock()
	if running {
		return nil
	}

	cfg := process.Config{
		Name: fmt.Sprintf("cannelloni-%s", id.String()),
		BuildCommand: func() *exec.Cmd {
			return exec.Command("cannelloni",
				"-I", v.LocalIface,
				"-R", v.RemoteIP.String(),
				"-r", strconv.Itoa(int(v.RemotePort)),
				"-C", "c")
		},
		RestartPolicy: process.Always,
		RestartDelay:  restartDelay,
	}
	pid, err := a.processes.Spawn(cfg)
	if err != nil {
		return fmt.Errorf("can connections: spawn cannelloni: %w", err)
	}
	a.mu.Lock()
	a.tunnels[id] = pid
	a.mu.Unlock()
	return nil
}

func (a *Applier) stopTunnel(id model.ParameterId) {
	a.mu.Lock()
	pid, ok := a.tunnels[id]
	if ok {
		delete(a.tunnels, id)
	}
	a.mu.Unlock()
	if ok {
		a.processes.Terminate(pid)
	}
}
