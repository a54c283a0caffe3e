// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package engine

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/ManuGH/playerd/internal/log"
	"github.com/ManuGH/playerd/internal/procgroup"
)

// Environment variables passed to every spawned worker.
const (
	EnvRuntimeDir = "PLAYERD_RUNTIME_DIR"
	EnvMediaType  = "PLAYERD_MEDIA_TYPE"
)

// Process is a spawned worker.
type Process interface {
	PID() int
	// Stop terminates the worker's process group, escalating to SIGKILL after grace.
	Stop(ctx context.Context, grace time.Duration) error
	// Exited is closed once the process has been reaped.
	Exited() <-chan struct{}
}

// Spawner starts worker processes.
type Spawner interface {
	Spawn(ctx context.Context, mediaType MediaType) (Process, error)
}

// ExecSpawner launches the worker binary as its own process group.
type ExecSpawner struct {
	Bin        string
	Args       []string
	RuntimeDir string
	Env        []string
	// StderrLines bounds the captured stderr tail per worker.
	StderrLines int
}

// Spawn starts one worker. The worker outlives ctx; only Stop ends it.
func (e *ExecSpawner) Spawn(ctx context.Context, mediaType MediaType) (Process, error) {
	if e.Bin == "" {
		return nil, fmt.Errorf("spawn worker: no binary configured")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cmd := exec.Command(e.Bin, e.Args...) // #nosec G204
	procgroup.Set(cmd)
	cmd.Env = append(os.Environ(), e.Env...)
	cmd.Env = append(cmd.Env,
		EnvRuntimeDir+"="+e.RuntimeDir,
		EnvMediaType+"="+string(mediaType),
	)
	ring := NewLineRing(e.StderrLines)
	cmd.Stderr = ring

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("spawn worker: %w", err)
	}

	p := &execProcess{
		cmd:    cmd,
		ring:   ring,
		waitCh: make(chan error, 1),
		exited: make(chan struct{}),
	}
	go p.reap(string(mediaType))
	return p, nil
}

type execProcess struct {
	cmd    *exec.Cmd
	ring   *LineRing
	waitCh chan error
	exited chan struct{}

	stopOnce sync.Once
	stopErr  error
}

func (p *execProcess) reap(mediaType string) {
	err := p.cmd.Wait()
	logger := log.WithComponent("engine")
	evt := logger.Debug()
	if err != nil {
		evt = logger.Warn().Err(err).Strs("stderr", p.ring.LastN(8))
	}
	evt.Int(log.FieldPID, p.PID()).Str(log.FieldMediaType, mediaType).Msg("worker process exited")

	close(p.exited)
	p.waitCh <- err
}

func (p *execProcess) PID() int { return p.cmd.Process.Pid }

func (p *execProcess) Exited() <-chan struct{} { return p.exited }

// LastLogLines returns the tail of the worker's stderr.
func (p *execProcess) LastLogLines(n int) []string { return p.ring.LastN(n) }

func (p *execProcess) Stop(ctx context.Context, grace time.Duration) error {
	p.stopOnce.Do(func() {
		select {
		case <-p.exited:
			return
		default:
		}
		if ctx.Err() != nil {
			grace = 0
		}
		err := procgroup.Terminate(p.cmd, p.waitCh, grace)
		// A signalled exit is the expected outcome of Stop.
		if err != nil && p.cmd.ProcessState == nil {
			p.stopErr = err
		}
	})
	return p.stopErr
}
