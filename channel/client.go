package channel

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"runtime"
	"time"

	"github.com/guseggert/webproc/engine"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const frameBacklog = 64

// Client is the worker side of the command channel.
// It reads frames from the controller and dispatches them to an engine adapter in arrival order.
type Client struct {
	log         *zap.SugaredLogger
	conn        net.Conn
	adapter     engine.Adapter
	dialTimeout time.Duration
}

type ClientOption func(c *Client)

func WithClientLogger(l *zap.SugaredLogger) ClientOption {
	return func(c *Client) {
		c.log = l.Named("command_client")
	}
}

func WithDialTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.dialTimeout = d
	}
}

// Dial connects to the controller. There is no retry: if the controller is unreachable the worker has nothing to do.
func Dial(ctx context.Context, addr string, adapter engine.Adapter, opts ...ClientOption) (*Client, error) {
	c := &Client{
		log:         zap.NewNop().Sugar(),
		adapter:     adapter,
		dialTimeout: 5 * time.Second,
	}
	for _, o := range opts {
		o(c)
	}

	dialer := &net.Dialer{Timeout: c.dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("connecting to controller at %s: %w", addr, err)
	}
	c.conn = conn
	c.log.Debugw("connected", "Addr", addr)
	return c, nil
}

// Serve reads and dispatches frames until the controller closes the connection (returning nil),
// the stream fails, or ctx is done.
func (c *Client) Serve(ctx context.Context) error {
	frames := make(chan Frame, frameBacklog)
	group, groupCtx := errgroup.WithContext(ctx)

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-groupCtx.Done():
			c.conn.Close()
		case <-stop:
		}
	}()

	group.Go(func() error {
		defer close(frames)
		return c.readFrames(groupCtx, frames)
	})
	group.Go(func() error {
		c.dispatchFrames(groupCtx, frames)
		return nil
	})

	err := group.Wait()
	c.conn.Close()
	return err
}

func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) readFrames(ctx context.Context, frames chan<- Frame) error {
	scanner := bufio.NewScanner(c.conn)
	scanner.Buffer(make([]byte, 0, 64*1024), MaxFrameSize)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		frame, err := DecodeFrame(line)
		if err != nil {
			c.log.Warnw("dropping frame", "Error", err, "Bytes", len(line))
			continue
		}
		select {
		case frames <- frame:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	err := scanner.Err()
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if errors.Is(err, bufio.ErrTooLong) {
		return fmt.Errorf("reading frames: frame exceeds %d bytes: %w", MaxFrameSize, err)
	}
	if err != nil {
		return fmt.Errorf("reading frames: %w", err)
	}
	c.log.Debug("controller closed the connection")
	return nil
}

// dispatchFrames runs every operation on one OS thread, since native UI toolkits are bound to the thread that created them.
// Frames still buffered when ctx is done are dropped.
func (c *Client) dispatchFrames(ctx context.Context, frames <-chan Frame) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-frames:
			if !ok {
				return
			}
			c.dispatch(frame)
		}
	}
}

func (c *Client) dispatch(frame Frame) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Errorw("operation panicked", "Op", frame.Op, "Panic", r)
		}
	}()

	err := c.adapter.Dispatch(frame.Op, frame.Args)
	switch {
	case errors.Is(err, engine.ErrUnknownOperation):
		c.log.Warnw("dropping frame for unknown operation", "Op", frame.Op)
	case err != nil:
		c.log.Warnw("operation failed", "Op", frame.Op, "Error", err)
	default:
		c.log.Debugw("dispatched", "Op", frame.Op, "Args", len(frame.Args))
	}
}
