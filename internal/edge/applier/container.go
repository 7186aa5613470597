package applier

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/eclipse-opendut/opendut-sub001/internal/model"
)

const containerResultsMountPath = "/opendut/results"

func (a *Applier) containerNode(p model.Parameter[model.ExecutorValue]) node {
	return node{id: p.Id, deps: p.Dependencies, kind: "Executor(Container)", apply: func(ctx context.Context) error {
		execId := p.Value.Descriptor.Id
		if p.Target == model.Absent {
			return a.stopContainer(ctx, execId)
		}
		return a.ensureContainer(ctx, execId, p.Value.Descriptor)
	}}
}

func (a *Applier) ensureContainer(ctx context.Context, id model.ExecutorId, desc model.ExecutorDescriptor) error {
	if a.docker == nil {
		return fmt.Errorf("executor %s: no container runtime configured", id)
	}
	if desc.Container == nil {
		return fmt.Errorf("executor %s: Container kind without ContainerSpec", id)
	}
	spec := desc.Container

	a.mu.Lock()
	state, running := a.containers[id]
	a.mu.Unlock()
	if running {
		alive, err := a.docker.Running(ctx, state.containerID)
		if err == nil && alive {
			return nil
		}
	}

	resultsDir := filepath.Join(a.resultsBaseDir, id.String())
	if desc.ResultsURL != "" {
		if err := os.MkdirAll(resultsDir, 0o755); err != nil {
			return fmt.Errorf("executor %s: results dir: %w", id, err)
		}
	}

	containerID, err := a.docker.EnsureStarted(ctx, ContainerSpawnSpec{
		Name: spec.Name.String(), Image: spec.Image, Command: spec.Command, Args: spec.Args,
		Envs: spec.Envs, Volumes: spec.Volumes, Devices: spec.Devices, Ports: spec.Ports,
		ResultsHostDir: resultsDir, ResultsMountPath: containerResultsMountPath,
	})
	if err != nil {
		return fmt.Errorf("executor %s: %w", id, err)
	}

	watchCtx, cancel := context.WithCancel(context.Background())
	if desc.ResultsURL != "" {
		go watchResults(watchCtx, resultsDir, desc.ResultsURL, a.containerExitSignal(id))
	}

	a.mu.Lock()
	a.containers[id] = containerState{containerID: containerID, cancelWatch: cancel}
	a.mu.Unlock()
	return nil
}

func (a *Applier) stopContainer(ctx context.Context, id model.ExecutorId) error {
	a.mu.Lock()
	state, ok := a.containers[id]
	if ok {
		delete(a.containers, id)
	}
	a.mu.Unlock()
	if !ok {
		return nil
	}
	state.cancelWatch()
	if a.docker == nil {
		return nil
	}
	if err := a.docker.Stop(ctx, state.containerID); err != nil {
		return fmt.Errorf("executor %s: stop: %w", id, err)
	}
	return nil
}

// containerExitSignal returns a channel closed once the container backing
// id is observed no longer running, so watchResults uploads on exit even
// when .results_ready never appears.
func (a *Applier) containerExitSignal(id model.ExecutorId) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(2 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			a.mu.Lock()
			state, ok := a.containers[id]
			a.mu.Unlock()
			if !ok {
				return
			}
			alive, err := a.docker.Running(context.Background(), state.containerID)
			if err == nil && !alive {
				return
			}
		}
	}()
	return done
}
