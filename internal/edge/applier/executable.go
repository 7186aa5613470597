package applier

import (
	"context"
	"fmt"
	"os/exec"

	"github.com/eclipse-opendut/opendut-sub001/internal/edge/process"
	"github.com/eclipse-opendut/opendut-sub001/internal/model"
)

func (a *Applier) executableNode(p model.Parameter[model.ExecutorValue]) node {
	return node{id: p.Id, deps: p.Dependencies, kind: "Executor(Executable)", apply: func(ctx context.Context) error {
		execId := p.Value.Descriptor.Id
		if p.Target == model.Absent {
			a.stopExecutable(execId)
			return nil
		}
		return a.ensureExecutable(execId, p.Value.Descriptor)
	}}
}

func (a *Applier) ensureExecutable(id model.ExecutorId, desc model.ExecutorDescriptor) error {
	a.mu.Lock()
	_, running := a.executables[id]
	a.mu.Unlock()
	if running {
		return nil
	}
	if desc.Executable == nil {
		return fmt.Errorf("executor %s: Executable kind without ExecutableSpec", id)
	}
	spec := desc.Executable

	cfg := process.Config{
		Name: fmt.Sprintf("executor-%s", id.String()),
		BuildCommand: func() *exec.Cmd {
			cmd := exec.Command(spec.Command, spec.Args...)
			for k, v := range spec.Envs {
				cmd.Env = append(cmd.Env, k+"="+v)
			}
			return cmd
		},
		RestartPolicy: process.OnFailure,
		RestartDelay:  restartDelay,
	}
	pid, err := a.processes.Spawn(cfg)
	if err != nil {
		return fmt.Errorf("executor %s: spawn: %w", id, err)
	}
	a.mu.Lock()
	a.executables[id] = pid
	a.mu.Unlock()
	return nil
}

func (a *Applier) stopExecutable(id model.ExecutorId) {
	a.mu.Lock()
	pid, ok := a.executables[id]
	if ok {
		delete(a.executables, id)
	}
	a.mu.Unlock()
	if ok {
		a.processes.Terminate(pid)
	}
}
