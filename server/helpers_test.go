package server

import (
	"context"
	"errors"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cyberinferno/go-abci/abci"
	"github.com/cyberinferno/go-abci/codec"
	"github.com/cyberinferno/go-abci/service"
)

// gates lets a test decide when each handler call completes. Calls are keyed
// by their payload; keys prefixed with "fail" return an error immediately.
type gates struct {
	mu       sync.Mutex
	m        map[string]chan struct{}
	inFlight atomic.Int32
	maxSeen  atomic.Int32
}

func newGates(keys ...string) *gates {
	g := &gates{m: make(map[string]chan struct{})}
	for _, k := range keys {
		g.m[k] = make(chan struct{})
	}
	return g
}

func (g *gates) open(key string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	close(g.m[key])
}

func (g *gates) wait(ctx context.Context, key string) error {
	n := g.inFlight.Add(1)
	defer g.inFlight.Add(-1)
	for {
		seen := g.maxSeen.Load()
		if n <= seen || g.maxSeen.CompareAndSwap(seen, n) {
			break
		}
	}

	if strings.HasPrefix(key, "fail") {
		return errors.New("handler failure: " + key)
	}

	g.mu.Lock()
	ch, ok := g.m[key]
	g.mu.Unlock()
	if !ok {
		return nil
	}

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// readyService wraps a service with a test-controlled readiness check. When
// gate is set, Ready blocks until it is closed.
type readyService[Req any, Resp any] struct {
	service.Service[Req, Resp]
	readyErr error
	gate     chan struct{}
	waiting  atomic.Bool
}

func (r *readyService[Req, Resp]) Ready(ctx context.Context) error {
	if r.readyErr != nil {
		return r.readyErr
	}
	if r.gate != nil {
		r.waiting.Store(true)
		select {
		case <-r.gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return r.Service.Ready(ctx)
}

var errWriteClosed = errors.New("write side closed")

// writeFailConn is a connection whose writes always fail.
type writeFailConn struct {
	net.Conn
}

func (writeFailConn) Write([]byte) (int, error) {
	return 0, errWriteClosed
}

// testBuilder returns a Builder whose handlers echo their payload back:
// Echo for info, DeliverTx for consensus, CheckTx for mempool and
// LoadSnapshotChunk for snapshot.
func testBuilder(g *gates) *Builder {
	consensus := service.Func[abci.ConsensusRequest, abci.ConsensusResponse](
		func(ctx context.Context, req abci.ConsensusRequest) (abci.ConsensusResponse, error) {
			tx := req.(*abci.RequestDeliverTx)
			if err := g.wait(ctx, string(tx.Tx)); err != nil {
				return nil, err
			}
			return &abci.ResponseDeliverTx{Data: tx.Tx}, nil
		})
	mempool := service.Func[abci.MempoolRequest, abci.MempoolResponse](
		func(ctx context.Context, req abci.MempoolRequest) (abci.MempoolResponse, error) {
			tx := req.(*abci.RequestCheckTx)
			if err := g.wait(ctx, string(tx.Tx)); err != nil {
				return nil, err
			}
			return &abci.ResponseCheckTx{Data: tx.Tx}, nil
		})
	info := service.Func[abci.InfoRequest, abci.InfoResponse](
		func(ctx context.Context, req abci.InfoRequest) (abci.InfoResponse, error) {
			echo := req.(*abci.RequestEcho)
			if err := g.wait(ctx, echo.Message); err != nil {
				return nil, err
			}
			return &abci.ResponseEcho{Message: echo.Message}, nil
		})
	snapshot := service.Func[abci.SnapshotRequest, abci.SnapshotResponse](
		func(ctx context.Context, req abci.SnapshotRequest) (abci.SnapshotResponse, error) {
			load := req.(*abci.RequestLoadSnapshotChunk)
			key := string(rune('0' + load.Chunk))
			if err := g.wait(ctx, key); err != nil {
				return nil, err
			}
			return &abci.ResponseLoadSnapshotChunk{Chunk: []byte(key)}, nil
		})

	return NewBuilder().Consensus(consensus).Mempool(mempool).Info(info).Snapshot(snapshot)
}

func startServer(t *testing.T, b *Builder) *Server {
	t.Helper()

	srv := b.Finish()
	require.NotNil(t, srv)
	require.NoError(t, srv.Start("127.0.0.1:0"))
	t.Cleanup(srv.Stop)
	return srv
}

type testConn struct {
	t    *testing.T
	conn net.Conn
	enc  *codec.Encoder
	dec  *codec.Decoder
}

func dial(t *testing.T, srv *Server) *testConn {
	t.Helper()

	conn, err := net.Dial("tcp", srv.Addr().String())
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	return &testConn{t: t, conn: conn, enc: codec.NewEncoder(conn, 0), dec: codec.NewDecoder(conn, 0)}
}

// pipeConn returns the server end of an in-memory connection and a client
// driving the other end.
func pipeConn(t *testing.T) (net.Conn, *testConn) {
	server, client := net.Pipe()
	t.Cleanup(func() {
		_ = server.Close()
		_ = client.Close()
	})

	return server, &testConn{t: t, conn: client, enc: codec.NewEncoder(client, 0), dec: codec.NewDecoder(client, 0)}
}

func (c *testConn) send(reqs ...abci.Request) {
	c.t.Helper()
	for _, req := range reqs {
		require.NoError(c.t, c.enc.WriteRequest(req))
	}
	require.NoError(c.t, c.enc.Flush())
}

func (c *testConn) recv() (abci.Response, error) {
	_ = c.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	return c.dec.ReadResponse()
}

func (c *testConn) mustRecv() abci.Response {
	c.t.Helper()
	resp, err := c.recv()
	require.NoError(c.t, err)
	return resp
}

// expectSilence asserts that no response arrives within d.
func (c *testConn) expectSilence(d time.Duration) {
	c.t.Helper()
	_ = c.conn.SetReadDeadline(time.Now().Add(d))
	_, err := c.dec.ReadResponse()
	var netErr net.Error
	require.True(c.t, errors.As(err, &netErr) && netErr.Timeout(), "expected no response, got err=%v", err)
}

// expectClosed asserts the server closed the connection.
func (c *testConn) expectClosed() {
	c.t.Helper()
	resp, err := c.recv()
	require.Error(c.t, err, "unexpected response %#v", resp)
	var netErr net.Error
	require.False(c.t, errors.As(err, &netErr) && netErr.Timeout(), "connection still open")
}
