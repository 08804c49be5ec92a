package launcher

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"

	"go.uber.org/zap"
)

// ExitStatus describes how a worker process ended.
// Err is set only when waiting on the process failed; a non-zero exit is reported through Code.
type ExitStatus struct {
	Code int
	Err  error
}

// Spawner starts a worker process running the same program with the given arguments.
// Spawn must not wait for the worker to exit. onExit, when not nil, is called once after it has.
type Spawner interface {
	Spawn(ctx context.Context, args []string, onExit func(ExitStatus)) error
}

type SpawnerFunc func(ctx context.Context, args []string, onExit func(ExitStatus)) error

func (f SpawnerFunc) Spawn(ctx context.Context, args []string, onExit func(ExitStatus)) error {
	return f(ctx, args, onExit)
}

// ExecSpawner re-executes the current program image.
type ExecSpawner struct {
	Log *zap.SugaredLogger
	// Executable overrides the program to run. Defaults to os.Executable().
	Executable string
	// Stdout and Stderr default to the controller's own, so worker logs stay visible.
	Stdout io.Writer
	Stderr io.Writer
}

func (s *ExecSpawner) Spawn(ctx context.Context, args []string, onExit func(ExitStatus)) error {
	exe := s.Executable
	if exe == "" {
		var err error
		exe, err = os.Executable()
		if err != nil {
			return fmt.Errorf("finding executable: %w", err)
		}
	}

	cmd := exec.Command(exe, args...)
	cmd.Stdout = s.Stdout
	if cmd.Stdout == nil {
		cmd.Stdout = os.Stdout
	}
	cmd.Stderr = s.Stderr
	if cmd.Stderr == nil {
		cmd.Stderr = os.Stderr
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("starting worker %s: %w", exe, err)
	}
	log := s.logger()
	log.Debugw("started worker", "PID", cmd.Process.Pid, "Executable", exe)

	go func() {
		err := cmd.Wait()
		exitCode := cmd.ProcessState.ExitCode()
		if _, ok := err.(*exec.ExitError); ok {
			err = nil
		}
		log.Debugw("worker exited", "PID", cmd.Process.Pid, "ExitCode", exitCode, "Error", err)
		if onExit != nil {
			onExit(ExitStatus{Code: exitCode, Err: err})
		}
	}()
	return nil
}

func (s *ExecSpawner) logger() *zap.SugaredLogger {
	if s.Log == nil {
		return zap.NewNop().Sugar()
	}
	return s.Log
}
