package launcher

import (
	"context"
	"errors"
	"fmt"

	"github.com/guseggert/webproc/channel"
	"github.com/guseggert/webproc/engine"
)

func (l *Launcher) runWorker(ctx context.Context, cfg Config) error {
	log := l.log.With("Role", RoleWorker.String(), "Pair", cfg.Pair)

	if cfg.Port <= 0 {
		return fmt.Errorf("worker started without a valid -%s", FlagPort)
	}
	args, err := engine.ParseConstructionArgs(cfg.Args)
	if err != nil {
		return fmt.Errorf("reading -%s: %w", FlagArgs, err)
	}

	adapter, err := l.factory(log.Named("engine"), args)
	if err != nil {
		return fmt.Errorf("building engine: %w", err)
	}

	endpoint := cfg.Endpoint()
	client, err := channel.Dial(ctx, endpoint.String(), adapter,
		channel.WithClientLogger(log),
		channel.WithDialTimeout(l.dialTimeout),
	)
	if err != nil {
		return err
	}
	log.Infow("worker connected", "Endpoint", endpoint.String())

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if d, ok := adapter.(interface{ Done() <-chan struct{} }); ok {
		go func() {
			select {
			case <-d.Done():
				log.Debug("engine finished, stopping worker")
				cancel()
			case <-ctx.Done():
			}
		}()
	}

	err = client.Serve(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
