package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/guseggert/webproc/engine"
	"github.com/guseggert/webproc/launcher"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	flags := append(launcher.Flags(),
		&cli.StringFlag{
			Name:  "title",
			Usage: "Window title.",
			Value: "webproc",
		},
		&cli.StringFlag{
			Name:  "url",
			Usage: "URL to open in the window.",
			Value: "about:blank",
		},
		&cli.IntFlag{
			Name:  "width",
			Usage: "Window width.",
			Value: engine.DefaultSize.Width,
		},
		&cli.IntFlag{
			Name:  "height",
			Usage: "Window height.",
			Value: engine.DefaultSize.Height,
		},
		&cli.BoolFlag{
			Name:  "debug",
			Usage: "Enable the engine's developer tools.",
		},
		&cli.BoolFlag{
			Name:  "verbose",
			Usage: "Log at debug level.",
		},
	)

	app := &cli.App{
		Name:  "webproc",
		Usage: "open a web view window hosted in a separate worker process",
		Flags: flags,
		Action: func(ctx *cli.Context) error {
			logger, err := zap.NewDevelopment()
			if err != nil {
				return fmt.Errorf("building logger: %w", err)
			}
			defer logger.Sync() //nolint:errcheck

			level := zapcore.InfoLevel
			if ctx.Bool("verbose") {
				level = zapcore.DebugLevel
			}

			sigCtx, stop := signal.NotifyContext(ctx.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()

			l := launcher.New(engine.NewHeadless,
				launcher.WithLogger(logger),
				launcher.WithLogLevel(level),
			)
			cfg := launcher.ConfigFromContext(ctx)
			args := engine.ConstructionArgs{
				Debug: ctx.Bool("debug"),
				Size: engine.Size{
					Width:  ctx.Int("width"),
					Height: ctx.Int("height"),
					Hint:   engine.HintNone,
				},
			}
			return l.Launch(sigCtx, cfg, func(runCtx context.Context, c *launcher.Controller) error {
				return showWindow(runCtx, c, args, ctx.String("title"), ctx.String("url"))
			})
		},
	}
	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

// showWindow opens the window and keeps the controller alive until the worker exits or the process is signaled.
func showWindow(ctx context.Context, c *launcher.Controller, args engine.ConstructionArgs, title, url string) error {
	win, err := c.NewWindow(ctx, args)
	if err != nil {
		return err
	}
	if err := win.SetTitle(title); err != nil {
		return err
	}
	if err := win.Navigate(url); err != nil {
		return err
	}
	if err := win.Run(); err != nil {
		return err
	}

	select {
	case <-c.WorkerDisconnected():
		return nil
	case <-c.WorkerExited():
		if st := c.WorkerExitStatus(); st.Code != 0 || st.Err != nil {
			return fmt.Errorf("worker exited with code %d: %v", st.Code, st.Err)
		}
		return nil
	case <-ctx.Done():
		return win.Terminate()
	}
}
