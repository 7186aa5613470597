package applier

import (
	"context"
	"sync"
	"time"

	"github.com/eclipse-opendut/opendut-sub001/internal/edge/network"
	"github.com/eclipse-opendut/opendut-sub001/internal/edge/process"
	"github.com/eclipse-opendut/opendut-sub001/internal/model"
	"github.com/eclipse-opendut/opendut-sub001/pkg/logging"
)

const restartDelay = 2 * time.Second

type containerState struct {
	containerID string
	cancelWatch context.CancelFunc
}

// Applier drives a PeerConfiguration's parameters to their target host
// state via network.Manager (L7) and process.Manager (L8), plus a
// container runtime for Executor{Container}. One Applier instance is
// long-lived per edge process; successive ApplyPeerConfiguration pushes
// reuse its running executors/tunnels rather than tearing them down
// unconditionally, satisfying the idempotence requirement of spec.md §4.6.
type Applier struct {
	network        network.Manager
	processes      *process.Manager
	docker         ContainerRuntime
	resultsBaseDir string
	logger         logging.Logger

	mu          sync.Mutex
	executables map[model.ExecutorId]process.Id
	containers  map[model.ExecutorId]containerState
	tunnels     map[model.ParameterId]process.Id
}

func New(n network.Manager, p *process.Manager, docker ContainerRuntime, resultsBaseDir string, logger logging.Logger) *Applier {
	return &Applier{
		network: n, processes: p, docker: docker, resultsBaseDir: resultsBaseDir, logger: logger,
		executables: make(map[model.ExecutorId]process.Id),
		containers:  make(map[model.ExecutorId]containerState),
		tunnels:     make(map[model.ParameterId]process.Id),
	}
}

// Apply reconciles every parameter in cfg, in dependency order, and
// returns the outcome. old is reserved for the legacy aggregate fields
// (e.g. BridgeName) that have no per-parameter representation.
func (a *Applier) Apply(ctx context.Context, old model.OldPeerConfiguration, cfg model.PeerConfiguration) Result {
	var nodes []node

	for _, p := range cfg.EthernetBridges {
		nodes = append(nodes, bridgeNode(a.network, p))
	}
	for _, p := range cfg.DeviceInterfaces {
		nodes = append(nodes, deviceInterfaceNode(a.network, p))
	}
	for _, p := range cfg.JoinedInterfaces {
		nodes = append(nodes, joinedInterfaceNode(a.network, p))
	}
	for _, p := range cfg.GreInterfaces {
		nodes = append(nodes, greInterfaceNode(a.network, p))
	}
	for _, p := range cfg.CanBridges {
		nodes = append(nodes, canBridgesNode(a.network, p))
	}
	for _, p := range cfg.CanLocalRoutes {
		nodes = append(nodes, canLocalRoutesNode(a.network, p))
	}
	for _, p := range cfg.CanConnections {
		nodes = append(nodes, a.canConnectionsNode(p))
	}
	for _, p := range cfg.RemotePeerConnectionChecks {
		nodes = append(nodes, remotePeerConnectionCheckNode(p))
	}
	for _, p := range cfg.Executors {
		if p.Value.Descriptor.Kind == model.ExecutorContainer {
			nodes = append(nodes, a.containerNode(p))
		} else {
			nodes = append(nodes, a.executableNode(p))
		}
	}

	result := resolve(ctx, nodes)
	if !result.Ok() && a.logger != nil {
		for id, err := range result.Failed {
			a.logger.WithError(err).WithField("parameter_id", id.String()).Warn("parameter reconciliation failed")
		}
		for id, err := range result.Skipped {
			a.logger.WithError(err).WithField("parameter_id", id.String()).Warn("parameter reconciliation skipped")
		}
	}
	return result
}

// Shutdown tears down every executor/tunnel this Applier has started.
func (a *Applier) Shutdown(ctx context.Context) {
	a.mu.Lock()
	executables := a.executables
	tunnels := a.tunnels
	containers := a.containers
	a.executables = make(map[model.ExecutorId]process.Id)
	a.tunnels = make(map[model.ParameterId]process.Id)
	a.containers = make(map[model.ExecutorId]containerState)
	a.mu.Unlock()

	for _, pid := range executables {
		a.processes.Terminate(pid)
	}
	for _, pid := range tunnels {
		a.processes.Terminate(pid)
	}
	for _, state := range containers {
		state.cancelWatch()
		if a.docker != nil {
			_ = a.docker.Stop(ctx, state.containerID)
		}
	}
}
