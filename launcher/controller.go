package launcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/guseggert/webproc/channel"
	"github.com/guseggert/webproc/engine"
	netutil "github.com/guseggert/webproc/internal/net"
	"github.com/guseggert/webproc/window"
	"go.uber.org/zap"
)

var ErrWindowExists = errors.New("controller already has a window")

// Controller is the controller process's half of the pair.
type Controller struct {
	log      *zap.SugaredLogger
	endpoint Endpoint
	pair     string
	server   *channel.Server
	spawner  Spawner

	exited   chan struct{}
	exitOnce sync.Once
	exit     ExitStatus

	mut    sync.Mutex
	window *window.Window
}

// StartController picks a free port, starts listening on it and returns the controller.
// A base port of 0 lets the kernel choose. The worker is not started until NewWindow.
func (l *Launcher) StartController(ctx context.Context) (*Controller, error) {
	var port int
	var err error
	if l.basePort == 0 {
		port, err = netutil.EphemeralPort(l.hostname)
	} else {
		port, err = netutil.FindOpenPort(l.hostname, l.basePort)
	}
	if err != nil {
		return nil, fmt.Errorf("finding a port: %w", err)
	}
	endpoint := Endpoint{Port: port, Host: l.hostname}
	pair := uuid.NewString()
	log := l.log.With("Role", RoleController.String(), "Pair", pair)

	server, err := channel.Listen(ctx, endpoint.String(), channel.WithServerLogger(log))
	if err != nil {
		return nil, fmt.Errorf("starting controller: %w", err)
	}
	log.Infow("controller listening", "Endpoint", endpoint.String())

	return &Controller{
		log:      log,
		endpoint: endpoint,
		pair:     pair,
		server:   server,
		spawner:  l.spawner,
		exited:   make(chan struct{}),
	}, nil
}

func (c *Controller) Endpoint() Endpoint { return c.endpoint }

func (c *Controller) Pair() string { return c.pair }

// NewWindow spawns the worker process that will host the window and returns a handle to it.
// The handle is usable immediately: commands issued before the worker connects are queued.
// A controller has exactly one worker, so only the first call succeeds.
func (c *Controller) NewWindow(ctx context.Context, args engine.ConstructionArgs) (*window.Window, error) {
	c.mut.Lock()
	defer c.mut.Unlock()
	if c.window != nil {
		return nil, ErrWindowExists
	}

	b, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("encoding construction arguments: %w", err)
	}
	if err := c.spawner.Spawn(ctx, WorkerArgs(c.endpoint, string(b), c.pair), c.workerExit); err != nil {
		return nil, fmt.Errorf("spawning worker: %w", err)
	}
	c.log.Debugw("spawned worker", "Args", string(b))

	c.window = window.New(c.server)
	return c.window, nil
}

// WorkerConnected is closed once the worker has connected and received every queued command.
func (c *Controller) WorkerConnected() <-chan struct{} { return c.server.Connected() }

// WorkerDisconnected is closed when a connected worker goes away.
func (c *Controller) WorkerDisconnected() <-chan struct{} { return c.server.Disconnected() }

// WorkerExited is closed once the spawned worker process has exited, whether or not it ever connected.
func (c *Controller) WorkerExited() <-chan struct{} { return c.exited }

// WorkerExitStatus waits for the worker to exit and returns how it did.
func (c *Controller) WorkerExitStatus() ExitStatus {
	<-c.exited
	return c.exit
}

func (c *Controller) workerExit(st ExitStatus) {
	c.exitOnce.Do(func() {
		select {
		case <-c.server.Connected():
			c.log.Debugw("worker exited", "ExitCode", st.Code, "Error", st.Err)
		default:
			c.log.Warnw("worker exited before connecting", "ExitCode", st.Code, "Error", st.Err)
		}
		c.exit = st
		close(c.exited)
	})
}

func (c *Controller) Close() error {
	return c.server.Close()
}
