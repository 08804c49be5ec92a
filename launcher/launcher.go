package launcher

import (
	"context"
	"fmt"
	"time"

	"github.com/guseggert/webproc/engine"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const loggerName = "launcher"

var defaultLogger *zap.SugaredLogger

func init() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(fmt.Sprintf("error constructing default logger: %s", err))
	}
	defaultLogger = logger.Sugar().Named(loggerName)
}

// AppFunc is the application's code in the controller process. The controller is closed when it returns.
type AppFunc func(ctx context.Context, c *Controller) error

type Launcher struct {
	log         *zap.SugaredLogger
	factory     engine.Factory
	basePort    int
	hostname    string
	spawner     Spawner
	dialTimeout time.Duration
}

type Option func(l *Launcher)

func WithLogger(l *zap.Logger) Option {
	return func(la *Launcher) {
		la.log = l.Sugar().Named(loggerName)
	}
}

func WithLogLevel(lvl zapcore.Level) Option {
	return func(la *Launcher) {
		la.log = la.log.WithOptions(zap.IncreaseLevel(lvl))
	}
}

// WithBasePort sets the first port the controller tries. 0 lets the kernel pick an ephemeral port.
func WithBasePort(port int) Option {
	return func(l *Launcher) {
		l.basePort = port
	}
}

func WithHostname(host string) Option {
	return func(l *Launcher) {
		l.hostname = host
	}
}

func WithSpawner(s Spawner) Option {
	return func(l *Launcher) {
		l.spawner = s
	}
}

// WithDialTimeout bounds how long a worker waits to connect before giving up.
func WithDialTimeout(d time.Duration) Option {
	return func(l *Launcher) {
		l.dialTimeout = d
	}
}

// New builds a launcher. factory is only called in the worker process.
func New(factory engine.Factory, opts ...Option) *Launcher {
	l := &Launcher{
		log:         defaultLogger,
		factory:     factory,
		basePort:    DefaultBasePort,
		hostname:    DefaultHostname,
		dialTimeout: 5 * time.Second,
	}
	for _, o := range opts {
		o(l)
	}
	if l.spawner == nil {
		l.spawner = &ExecSpawner{Log: l.log.Named("spawner")}
	}
	return l
}

// Run parses argv and launches the role it selects. See Launch.
func (l *Launcher) Run(ctx context.Context, argv []string, app AppFunc) (Role, error) {
	cfg, err := ParseArgs(argv)
	if err != nil {
		return RoleController, err
	}
	return cfg.Role, l.Launch(ctx, cfg, app)
}

// Launch runs the process in the role cfg selects and returns when that role is finished.
// A worker runs until the controller disconnects, the engine shuts down or ctx is done.
// A controller runs app and is closed when app returns.
func (l *Launcher) Launch(ctx context.Context, cfg Config, app AppFunc) error {
	if cfg.Role == RoleWorker {
		return l.runWorker(ctx, cfg)
	}

	c, err := l.StartController(ctx)
	if err != nil {
		return err
	}
	defer c.Close()
	if app == nil {
		return nil
	}
	return app(ctx, c)
}
