package launcher

import (
	"fmt"
	"io"
	"net"
	"strconv"

	"github.com/urfave/cli/v2"
)

const (
	FlagPort     = "port"
	FlagHostname = "hostname"
	FlagArgs     = "args"
	FlagPair     = "pair"

	DefaultHostname = "localhost"
	DefaultBasePort = 17500
)

// Role is the part a process plays in the pair. It is fixed for the life of the process.
type Role int

const (
	RoleController Role = iota
	RoleWorker
)

func (r Role) String() string {
	switch r {
	case RoleController:
		return "controller"
	case RoleWorker:
		return "worker"
	}
	return fmt.Sprintf("Role(%d)", int(r))
}

// Endpoint is the loopback address the controller listens on and the worker connects to.
type Endpoint struct {
	Port int
	Host string
}

func (e Endpoint) String() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

// Config holds the launch arguments.
type Config struct {
	Role     Role
	Port     int
	Hostname string
	// Args is the JSON text of the engine's construction arguments.
	Args string
	Pair string
}

func (c Config) Endpoint() Endpoint {
	host := c.Hostname
	if host == "" {
		host = DefaultHostname
	}
	return Endpoint{Port: c.Port, Host: host}
}

// Flags returns the launch flags, for programs that mount them on their own urfave/cli app.
func Flags() []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{
			Name:  FlagPort,
			Usage: "Controller port to connect to. Set only when the process is started as a worker.",
		},
		&cli.StringFlag{
			Name:  FlagHostname,
			Usage: "Controller host to connect to. Set only when the process is started as a worker.",
		},
		&cli.StringFlag{
			Name:  FlagArgs,
			Usage: "Engine construction arguments as a JSON array.",
		},
		&cli.StringFlag{
			Name:  FlagPair,
			Usage: "ID shared by the controller and its worker, for log correlation.",
		},
	}
}

// ConfigFromContext reads the launch flags. Either -port or -hostname being present selects the worker role.
func ConfigFromContext(ctx *cli.Context) Config {
	cfg := Config{
		Role:     RoleController,
		Port:     ctx.Int(FlagPort),
		Hostname: ctx.String(FlagHostname),
		Args:     ctx.String(FlagArgs),
		Pair:     ctx.String(FlagPair),
	}
	if ctx.IsSet(FlagPort) || ctx.IsSet(FlagHostname) {
		cfg.Role = RoleWorker
	}
	return cfg
}

// ParseArgs parses a full argv, program name included.
func ParseArgs(argv []string) (Config, error) {
	var cfg Config
	app := &cli.App{
		Name:            "launcher",
		Flags:           Flags(),
		HideHelp:        true,
		HideHelpCommand: true,
		Writer:          io.Discard,
		ErrWriter:       io.Discard,
		Action: func(ctx *cli.Context) error {
			cfg = ConfigFromContext(ctx)
			return nil
		},
	}
	if err := app.Run(argv); err != nil {
		return Config{}, fmt.Errorf("parsing launch arguments: %w", err)
	}
	return cfg, nil
}

// WorkerArgs builds the command line that starts a worker for the given endpoint.
func WorkerArgs(e Endpoint, args string, pair string) []string {
	return []string{
		"-" + FlagPort, strconv.Itoa(e.Port),
		"-" + FlagHostname, e.Host,
		"-" + FlagArgs, args,
		"-" + FlagPair, pair,
	}
}
