package channel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"
)

var (
	ErrClosed           = errors.New("command channel closed")
	ErrAlreadyConnected = errors.New("worker already connected")
	ErrWorkerGone       = errors.New("worker disconnected")
)

const DefaultCloseTimeout = 2 * time.Second

// Server is the controller side of the command channel.
// It accepts a single worker connection and sends it every frame passed to Write, in call order.
// Frames are queued and a single writer goroutine, which owns the connection, drains the queue.
type Server struct {
	log          *zap.SugaredLogger
	listener     net.Listener
	closeTimeout time.Duration

	mut     sync.Mutex
	pending *sync.Cond
	conn    net.Conn
	queue   [][]byte
	closed  bool
	connErr error

	connected    chan struct{}
	disconnected chan struct{}
	writerDone   chan struct{}

	wg sync.WaitGroup
}

type ServerOption func(s *Server)

func WithServerLogger(l *zap.SugaredLogger) ServerOption {
	return func(s *Server) {
		s.log = l.Named("command_server")
	}
}

// WithCloseTimeout bounds how long Close waits for queued frames to reach a worker that is not reading.
func WithCloseTimeout(d time.Duration) ServerOption {
	return func(s *Server) {
		s.closeTimeout = d
	}
}

// Listen binds addr and starts accepting the worker connection in the background.
func Listen(ctx context.Context, addr string, opts ...ServerOption) (*Server, error) {
	s := &Server{
		log:          zap.NewNop().Sugar(),
		closeTimeout: DefaultCloseTimeout,
		connected:    make(chan struct{}),
		disconnected: make(chan struct{}),
		writerDone:   make(chan struct{}),
	}
	s.pending = sync.NewCond(&s.mut)
	for _, o := range opts {
		o(s)
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listening on %s: %w", addr, err)
	}
	s.listener = ln
	s.log.Debugw("listening", "Addr", ln.Addr().String())

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.acceptLoop()
	}()
	return s, nil
}

func (s *Server) Addr() net.Addr { return s.listener.Addr() }

// Connected is closed once the worker connection has been accepted and the frames queued before it were sent.
func (s *Server) Connected() <-chan struct{} { return s.connected }

// Disconnected is closed when the accepted worker connection goes away.
func (s *Server) Disconnected() <-chan struct{} { return s.disconnected }

// Queued returns the number of frames not yet handed to the socket.
func (s *Server) Queued() int {
	s.mut.Lock()
	defer s.mut.Unlock()
	return len(s.queue)
}

// Write queues one command frame for the worker.
// Write never touches the socket, so it returns immediately whether or not the worker is connected or reading.
func (s *Server) Write(op string, args ...any) error {
	frame, err := EncodeFrame(op, args...)
	if err != nil {
		return err
	}

	s.mut.Lock()
	defer s.mut.Unlock()

	if s.closed {
		return ErrClosed
	}
	if s.connErr != nil {
		return s.connErr
	}
	s.queue = append(s.queue, frame)
	if s.conn == nil {
		s.log.Debugw("queued frame", "Op", op, "Queued", len(s.queue))
	}
	s.pending.Signal()
	return nil
}

func (s *Server) acceptLoop() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return // listener closed
		}
		s.adopt(conn)
	}
}

func (s *Server) adopt(conn net.Conn) {
	s.mut.Lock()
	defer s.mut.Unlock()

	if s.closed {
		conn.Close()
		return
	}
	if s.conn != nil {
		s.log.Errorw("rejecting connection", "Remote", conn.RemoteAddr().String(), "Error", ErrAlreadyConnected)
		conn.Close()
		return
	}

	s.log.Debugw("worker connected", "Remote", conn.RemoteAddr().String(), "Queued", len(s.queue))
	s.conn = conn

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		s.writeLoop(conn)
	}()
	go func() {
		defer s.wg.Done()
		s.watch(conn)
	}()
}

// writeLoop owns conn for writing. It takes the whole queue under the lock and writes it without the lock,
// so a worker that stops reading blocks only this goroutine.
func (s *Server) writeLoop(conn net.Conn) {
	defer close(s.writerDone)

	first := true
	sent := 0
	for {
		s.mut.Lock()
		for !first && len(s.queue) == 0 && !s.closed && s.connErr == nil {
			s.pending.Wait()
		}
		batch := s.queue
		s.queue = nil
		stop := len(batch) == 0 && (s.closed || s.connErr != nil)
		s.mut.Unlock()

		for i, frame := range batch {
			if _, err := conn.Write(frame); err != nil {
				err = fmt.Errorf("writing frame %d: %w", sent+i+1, err)
				s.mut.Lock()
				if s.connErr == nil && !s.closed {
					s.connErr = err
				}
				s.mut.Unlock()
				s.log.Errorw("writing frames", "Error", err, "Dropped", len(batch)-i)
				if first {
					close(s.connected)
				}
				return
			}
		}
		sent += len(batch)

		if first {
			first = false
			close(s.connected)
		}
		if stop {
			return
		}
	}
}

// watch drains the connection, which the worker never writes to, until it closes.
func (s *Server) watch(conn net.Conn) {
	_, err := io.Copy(io.Discard, conn)

	s.mut.Lock()
	if s.connErr == nil && !s.closed {
		s.connErr = ErrWorkerGone
	}
	closed := s.closed
	s.pending.Broadcast()
	s.mut.Unlock()

	if !closed {
		s.log.Infow("worker disconnected", "Error", err)
	}
	close(s.disconnected)
}

// Close stops accepting and closes the worker connection.
// Frames already written are given up to the close timeout to reach the worker, then dropped.
func (s *Server) Close() error {
	s.mut.Lock()
	if s.closed {
		s.mut.Unlock()
		return nil
	}
	s.closed = true
	conn := s.conn
	if n := len(s.queue); n > 0 && conn == nil {
		s.log.Warnw("closing with unsent frames", "Queued", n)
		s.queue = nil
	}
	s.pending.Broadcast()
	s.mut.Unlock()

	err := s.listener.Close()
	if conn != nil {
		timer := time.NewTimer(s.closeTimeout)
		select {
		case <-s.writerDone:
		case <-timer.C:
			s.log.Warnw("worker is not reading, dropping unsent frames", "Queued", s.Queued(), "Timeout", s.closeTimeout)
		}
		timer.Stop()
		if cerr := conn.Close(); err == nil {
			err = cerr
		}
	}

	s.wg.Wait()
	return err
}
