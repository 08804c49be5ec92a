package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/guseggert/webproc/engine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var log = zap.NewNop().Sugar()

type call struct {
	op   string
	args []string
}

// recorder is an adapter that knows a fixed set of operations and records every call it receives.
type recorder struct {
	*engine.Registry
	mut   sync.Mutex
	calls []call
}

func newRecorder(ops ...string) *recorder {
	r := &recorder{Registry: engine.NewRegistry()}
	for _, op := range ops {
		op := op
		r.MustRegister(op, func(args []json.RawMessage) error {
			var strArgs []string
			for _, a := range args {
				strArgs = append(strArgs, string(a))
			}
			r.mut.Lock()
			r.calls = append(r.calls, call{op: op, args: strArgs})
			r.mut.Unlock()
			return nil
		})
	}
	return r
}

func (r *recorder) ops() []string {
	r.mut.Lock()
	defer r.mut.Unlock()
	var ops []string
	for _, c := range r.calls {
		ops = append(ops, c.op)
	}
	return ops
}

func listen(t *testing.T) *Server {
	s, err := Listen(context.Background(), "127.0.0.1:0", WithServerLogger(log))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func serve(t *testing.T, addr string, adapter engine.Adapter) (*Client, <-chan error) {
	c, err := Dial(context.Background(), addr, adapter, WithClientLogger(log))
	require.NoError(t, err)
	errCh := make(chan error, 1)
	go func() { errCh <- c.Serve(context.Background()) }()
	return c, errCh
}

func waitClosed(t *testing.T, ch <-chan struct{}, what string) {
	select {
	case <-ch:
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
}

func waitServe(t *testing.T, errCh <-chan error) error {
	select {
	case err := <-errCh:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for Serve to return")
		return nil
	}
}

func TestQueuedFramesDeliveredInOrderExactlyOnce(t *testing.T) {
	for _, queued := range []int{0, 1, 5, 200} {
		t.Run(fmt.Sprintf("%d queued", queued), func(t *testing.T) {
			s := listen(t)

			var expOps []string
			for i := 0; i < queued; i++ {
				op := fmt.Sprintf("op%d", i)
				require.NoError(t, s.Write(op, i))
				expOps = append(expOps, op)
			}
			assert.Equal(t, queued, s.Queued())

			after := 3
			var allOps []string
			allOps = append(allOps, expOps...)
			for i := 0; i < after; i++ {
				allOps = append(allOps, fmt.Sprintf("after%d", i))
			}
			rec := newRecorder(allOps...)

			_, errCh := serve(t, s.Addr().String(), rec)
			waitClosed(t, s.Connected(), "worker connection")
			assert.Equal(t, 0, s.Queued())

			for i := 0; i < after; i++ {
				require.NoError(t, s.Write(fmt.Sprintf("after%d", i)))
			}
			require.NoError(t, s.Close())

			require.NoError(t, waitServe(t, errCh))
			assert.Equal(t, allOps, rec.ops())
		})
	}
}

func TestRunBeforeConnectIsFirstFrame(t *testing.T) {
	s := listen(t)
	require.NoError(t, s.Write(engine.OpRun))

	rec := newRecorder(engine.OpRun, engine.OpSetTitle)
	_, errCh := serve(t, s.Addr().String(), rec)
	waitClosed(t, s.Connected(), "worker connection")
	require.NoError(t, s.Write(engine.OpSetTitle, "later"))
	require.NoError(t, s.Close())

	require.NoError(t, waitServe(t, errCh))
	require.Len(t, rec.calls, 2)
	assert.Equal(t, call{op: engine.OpRun}, rec.calls[0])
	assert.Equal(t, call{op: engine.OpSetTitle, args: []string{`"later"`}}, rec.calls[1])
}

func TestUnknownOperationDoesNotStopDispatch(t *testing.T) {
	s := listen(t)
	require.NoError(t, s.Write("no_such_op", 1, 2))
	require.NoError(t, s.Write(engine.OpRun))

	rec := newRecorder(engine.OpRun)
	_, errCh := serve(t, s.Addr().String(), rec)
	waitClosed(t, s.Connected(), "worker connection")
	require.NoError(t, s.Close())

	require.NoError(t, waitServe(t, errCh))
	assert.Equal(t, []string{engine.OpRun}, rec.ops())
}

func TestPanickingOperationDoesNotStopDispatch(t *testing.T) {
	s := listen(t)
	require.NoError(t, s.Write("explode"))
	require.NoError(t, s.Write(engine.OpRun))

	rec := newRecorder(engine.OpRun)
	rec.MustRegister("explode", engine.Bind0(func() error { panic("kaboom") }))
	_, errCh := serve(t, s.Addr().String(), rec)
	waitClosed(t, s.Connected(), "worker connection")
	require.NoError(t, s.Close())

	require.NoError(t, waitServe(t, errCh))
	assert.Equal(t, []string{engine.OpRun}, rec.ops())
}

// rawController accepts one worker connection and hands it to the test to write arbitrary bytes.
func rawController(t *testing.T) (string, <-chan net.Conn) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })
	connCh := make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		connCh <- conn
	}()
	return ln.Addr().String(), connCh
}

func TestStreamSegmentation(t *testing.T) {
	addr, connCh := rawController(t)
	rec := newRecorder(engine.OpRun, engine.OpSetTitle, engine.OpEval)
	_, errCh := serve(t, addr, rec)
	conn := <-connCh

	chunks := []string{
		`["run"]` + "\n" + `["set_ti`,
		`tle","a\nb"]` + "\n",
		`{not json}` + "\n" + `[42]` + "\n" + `[]` + "\n\n",
		`["eval","1+1"]` + "\n" + `["run"]`,
		"\n",
	}
	for _, c := range chunks {
		_, err := conn.Write([]byte(c))
		require.NoError(t, err)
		time.Sleep(5 * time.Millisecond)
	}
	require.NoError(t, conn.Close())

	require.NoError(t, waitServe(t, errCh))
	assert.Equal(t, []string{engine.OpRun, engine.OpSetTitle, engine.OpEval, engine.OpRun}, rec.ops())
	assert.Equal(t, []string{`"a\nb"`}, rec.calls[1].args)
}

func TestOversizedFrameEndsSession(t *testing.T) {
	addr, connCh := rawController(t)
	rec := newRecorder(engine.OpRun)
	_, errCh := serve(t, addr, rec)
	conn := <-connCh
	defer conn.Close()

	go conn.Write([]byte(`["run","` + strings.Repeat("x", MaxFrameSize) + `"]` + "\n")) //nolint:errcheck

	err := waitServe(t, errCh)
	assert.ErrorContains(t, err, "exceeds")
}

func TestSecondConnectionRejected(t *testing.T) {
	s := listen(t)
	rec := newRecorder(engine.OpRun)
	_, errCh := serve(t, s.Addr().String(), rec)
	waitClosed(t, s.Connected(), "worker connection")

	intruder, err := net.Dial("tcp", s.Addr().String())
	require.NoError(t, err)
	defer intruder.Close()
	require.NoError(t, intruder.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, err = intruder.Read(make([]byte, 1))
	assert.ErrorIs(t, err, io.EOF)

	require.NoError(t, s.Write(engine.OpRun))
	require.NoError(t, s.Close())
	require.NoError(t, waitServe(t, errCh))
	assert.Equal(t, []string{engine.OpRun}, rec.ops())
}

func TestWriteAfterClose(t *testing.T) {
	s := listen(t)
	require.NoError(t, s.Close())
	assert.ErrorIs(t, s.Write(engine.OpRun), ErrClosed)
	assert.NoError(t, s.Close())
}

func TestWriteAfterWorkerGone(t *testing.T) {
	s := listen(t)
	c, errCh := serve(t, s.Addr().String(), newRecorder())
	waitClosed(t, s.Connected(), "worker connection")

	require.NoError(t, c.Close())
	<-errCh
	waitClosed(t, s.Disconnected(), "worker disconnect")

	assert.ErrorIs(t, s.Write(engine.OpRun), ErrWorkerGone)
}

func TestServeStopsOnContextCancel(t *testing.T) {
	s := listen(t)
	c, err := Dial(context.Background(), s.Addr().String(), newRecorder(), WithClientLogger(log))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- c.Serve(ctx) }()
	waitClosed(t, s.Connected(), "worker connection")

	cancel()
	assert.ErrorIs(t, waitServe(t, errCh), context.Canceled)
}

func TestCloseReturnsWhileWorkerStopsReading(t *testing.T) {
	s, err := Listen(context.Background(), "127.0.0.1:0", WithServerLogger(log), WithCloseTimeout(100*time.Millisecond))
	require.NoError(t, err)

	stalled, err := net.Dial("tcp", s.Addr().String())
	require.NoError(t, err)
	defer stalled.Close()
	waitClosed(t, s.Connected(), "worker connection")

	payload := strings.Repeat("x", 1<<20)
	wrote := make(chan struct{})
	go func() {
		defer close(wrote)
		for i := 0; i < 32; i++ {
			if s.Write(engine.OpEval, payload) != nil {
				return
			}
		}
	}()
	waitClosed(t, wrote, "writes to a worker that is not reading")

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		assert.NoError(t, s.Close())
	}()
	select {
	case <-closed:
	case <-time.After(3 * time.Second):
		t.Fatal("Close blocked on a worker that is not reading")
	}
	assert.ErrorIs(t, s.Write(engine.OpRun), ErrClosed)
}

func TestServeStopsOnCancelWhileDispatchBlocked(t *testing.T) {
	s := listen(t)
	entered := make(chan struct{})
	release := make(chan struct{})
	rec := newRecorder(engine.OpRun)
	rec.MustRegister("block", engine.Bind0(func() error {
		close(entered)
		<-release
		return nil
	}))

	require.NoError(t, s.Write("block"))
	for i := 0; i < 4*frameBacklog; i++ {
		require.NoError(t, s.Write(engine.OpRun))
	}

	c, err := Dial(context.Background(), s.Addr().String(), rec, WithClientLogger(log))
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- c.Serve(ctx) }()
	waitClosed(t, entered, "blocking operation")

	cancel()
	close(release)
	assert.ErrorIs(t, waitServe(t, errCh), context.Canceled)
}

func TestDialFailsFast(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	_, err = Dial(context.Background(), addr, newRecorder(), WithDialTimeout(time.Second))
	assert.ErrorContains(t, err, "connecting to controller")
}

func TestListenBindFailure(t *testing.T) {
	s := listen(t)
	_, err := Listen(context.Background(), s.Addr().String())
	assert.Error(t, err)
}
