package server

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cyberinferno/go-abci/abci"
	"github.com/cyberinferno/go-abci/service"
)

func TestSession_ResponsesFollowArrivalOrder(t *testing.T) {
	g := newGates("i", "c", "m")
	srv := startServer(t, testBuilder(g))
	c := dial(t, srv)

	c.send(
		&abci.RequestEcho{Message: "i"},
		&abci.RequestDeliverTx{Tx: []byte("c")},
		&abci.RequestCheckTx{Tx: []byte("m")},
	)

	require.Eventually(t, func() bool { return g.inFlight.Load() == 3 }, time.Second, time.Millisecond)

	g.open("c")
	g.open("m")
	c.expectSilence(50 * time.Millisecond)

	g.open("i")
	assert.Equal(t, &abci.ResponseEcho{Message: "i"}, c.mustRecv())
	assert.Equal(t, &abci.ResponseDeliverTx{Data: []byte("c")}, c.mustRecv())
	assert.Equal(t, &abci.ResponseCheckTx{Data: []byte("m")}, c.mustRecv())
}

func TestSession_FlushWaitsForSlowResponse(t *testing.T) {
	g := newGates("slow")
	srv := startServer(t, testBuilder(g))
	c := dial(t, srv)

	c.send(&abci.RequestDeliverTx{Tx: []byte("slow")}, &abci.RequestFlush{})
	c.expectSilence(50 * time.Millisecond)

	g.open("slow")
	assert.Equal(t, &abci.ResponseDeliverTx{Data: []byte("slow")}, c.mustRecv())
	assert.Equal(t, &abci.ResponseFlush{}, c.mustRecv())
}

func TestSession_FlushOnEmptyQueue(t *testing.T) {
	srv := startServer(t, testBuilder(newGates()))
	c := dial(t, srv)

	c.send(&abci.RequestFlush{})
	assert.Equal(t, &abci.ResponseFlush{}, c.mustRecv())

	c.send(&abci.RequestFlush{}, &abci.RequestFlush{})
	assert.Equal(t, &abci.ResponseFlush{}, c.mustRecv())
	assert.Equal(t, &abci.ResponseFlush{}, c.mustRecv())
}

func TestSession_FlushAcknowledgedOncePerRequest(t *testing.T) {
	srv := startServer(t, testBuilder(newGates()))
	c := dial(t, srv)

	c.send(
		&abci.RequestEcho{Message: "a"},
		&abci.RequestFlush{},
		&abci.RequestLoadSnapshotChunk{Chunk: 1},
		&abci.RequestCheckTx{Tx: []byte("b")},
		&abci.RequestFlush{},
	)

	assert.Equal(t, &abci.ResponseEcho{Message: "a"}, c.mustRecv())
	assert.Equal(t, &abci.ResponseFlush{}, c.mustRecv())
	assert.Equal(t, &abci.ResponseLoadSnapshotChunk{Chunk: []byte("1")}, c.mustRecv())
	assert.Equal(t, &abci.ResponseCheckTx{Data: []byte("b")}, c.mustRecv())
	assert.Equal(t, &abci.ResponseFlush{}, c.mustRecv())
	c.expectSilence(20 * time.Millisecond)
}

func TestSession_ResponsesSentWithoutFlush(t *testing.T) {
	srv := startServer(t, testBuilder(newGates()))
	c := dial(t, srv)

	c.send(&abci.RequestEcho{Message: "x"}, &abci.RequestEcho{Message: "y"})
	assert.Equal(t, &abci.ResponseEcho{Message: "x"}, c.mustRecv())
	assert.Equal(t, &abci.ResponseEcho{Message: "y"}, c.mustRecv())
}

func TestSession_MalformedInputClosesConnection(t *testing.T) {
	srv := startServer(t, testBuilder(newGates()))
	c := dial(t, srv)

	_, err := c.conn.Write([]byte{0x03, 0xff, 0xff, 0xff})
	require.NoError(t, err)

	c.expectClosed()
}

func TestSession_HandlerFailureClosesConnection(t *testing.T) {
	g := newGates("behind")
	srv := startServer(t, testBuilder(g))
	c := dial(t, srv)

	c.send(
		&abci.RequestEcho{Message: "ok"},
		&abci.RequestDeliverTx{Tx: []byte("fail")},
		&abci.RequestCheckTx{Tx: []byte("behind")},
		&abci.RequestFlush{},
	)

	assert.Equal(t, &abci.ResponseEcho{Message: "ok"}, c.mustRecv())
	g.open("behind")
	c.expectClosed()
}

func TestSession_ExceptionOnError(t *testing.T) {
	srv := startServer(t, testBuilder(newGates()).Options(Options{ExceptionOnError: true}))
	c := dial(t, srv)

	c.send(&abci.RequestCheckTx{Tx: []byte("fail-check")}, &abci.RequestFlush{})

	resp := c.mustRecv()
	exc, ok := resp.(*abci.ResponseException)
	require.True(t, ok, "got %#v", resp)
	assert.Contains(t, exc.Error, "mempool handler failed on check_tx")
	assert.Contains(t, exc.Error, "fail-check")
	c.expectClosed()
}

func TestSession_ReadinessFailureClosesConnection(t *testing.T) {
	b := testBuilder(newGates())
	b.Info(&readyService[abci.InfoRequest, abci.InfoResponse]{Service: b.info, readyErr: assert.AnError})
	srv := startServer(t, b)
	c := dial(t, srv)

	c.send(&abci.RequestEcho{Message: "never"})
	c.expectClosed()
}

func TestSession_PendingReadinessHoldsResolvedResponses(t *testing.T) {
	g := newGates("c")
	b := testBuilder(g)
	info := &readyService[abci.InfoRequest, abci.InfoResponse]{Service: b.info, gate: make(chan struct{})}
	b.Info(info)
	srv := startServer(t, b)
	c := dial(t, srv)

	c.send(
		&abci.RequestDeliverTx{Tx: []byte("c")},
		&abci.RequestEcho{Message: "i"},
	)

	require.Eventually(t, info.waiting.Load, time.Second, time.Millisecond)
	require.Eventually(t, func() bool { return g.inFlight.Load() == 1 }, time.Second, time.Millisecond)
	g.open("c")
	require.Eventually(t, func() bool { return g.inFlight.Load() == 0 }, time.Second, time.Millisecond)
	c.expectSilence(50 * time.Millisecond)

	close(info.gate)
	assert.Equal(t, &abci.ResponseDeliverTx{Data: []byte("c")}, c.mustRecv())
	assert.Equal(t, &abci.ResponseEcho{Message: "i"}, c.mustRecv())
}

func TestSession_WriteFailureEndsSession(t *testing.T) {
	srv := testBuilder(newGates()).Finish()
	require.NotNil(t, srv)

	server, tc := pipeConn(t)
	done := make(chan error, 1)
	go func() { done <- srv.ServeConn(context.Background(), writeFailConn{Conn: server}) }()

	tc.send(&abci.RequestEcho{Message: "lost"})
	select {
	case err := <-done:
		require.Error(t, err)
		assert.ErrorIs(t, err, errWriteClosed)
	case <-time.After(time.Second):
		t.Fatal("session did not end")
	}
	assert.Equal(t, 0, srv.SessionCount())
}

func TestSession_PipelinesCallsToSameHandler(t *testing.T) {
	g := newGates("c1", "c2", "c3")
	srv := startServer(t, testBuilder(g))
	c := dial(t, srv)

	c.send(
		&abci.RequestDeliverTx{Tx: []byte("c1")},
		&abci.RequestDeliverTx{Tx: []byte("c2")},
		&abci.RequestDeliverTx{Tx: []byte("c3")},
	)

	require.Eventually(t, func() bool { return g.inFlight.Load() == 3 }, time.Second, time.Millisecond)

	g.open("c3")
	g.open("c2")
	g.open("c1")
	assert.Equal(t, &abci.ResponseDeliverTx{Data: []byte("c1")}, c.mustRecv())
	assert.Equal(t, &abci.ResponseDeliverTx{Data: []byte("c2")}, c.mustRecv())
	assert.Equal(t, &abci.ResponseDeliverTx{Data: []byte("c3")}, c.mustRecv())
	assert.Equal(t, int32(3), g.maxSeen.Load())
}

func TestSession_ConcurrencyLimitedHandler(t *testing.T) {
	g := newGates("c1", "c2")
	b := testBuilder(g)
	b.Consensus(service.ConcurrencyLimit(b.consensus, 1))
	srv := startServer(t, b)
	c := dial(t, srv)

	c.send(
		&abci.RequestDeliverTx{Tx: []byte("c1")},
		&abci.RequestDeliverTx{Tx: []byte("c2")},
		&abci.RequestFlush{},
	)

	require.Eventually(t, func() bool { return g.inFlight.Load() == 1 }, time.Second, time.Millisecond)
	c.expectSilence(30 * time.Millisecond)
	assert.Equal(t, int32(1), g.inFlight.Load())

	g.open("c1")
	assert.Equal(t, &abci.ResponseDeliverTx{Data: []byte("c1")}, c.mustRecv())
	g.open("c2")
	assert.Equal(t, &abci.ResponseDeliverTx{Data: []byte("c2")}, c.mustRecv())
	assert.Equal(t, &abci.ResponseFlush{}, c.mustRecv())
	assert.Equal(t, int32(1), g.maxSeen.Load())
}

func TestSession_ConnectionsAreIsolated(t *testing.T) {
	g := newGates("b")
	srv := startServer(t, testBuilder(g))
	a := dial(t, srv)
	b := dial(t, srv)

	b.send(&abci.RequestEcho{Message: "b"})
	require.Eventually(t, func() bool { return g.inFlight.Load() == 1 }, time.Second, time.Millisecond)

	a.send(&abci.RequestDeliverTx{Tx: []byte("fail")})
	a.expectClosed()

	g.open("b")
	b.send(&abci.RequestFlush{})
	assert.Equal(t, &abci.ResponseEcho{Message: "b"}, b.mustRecv())
	assert.Equal(t, &abci.ResponseFlush{}, b.mustRecv())
}

func TestSession_PeerCloseEndsSession(t *testing.T) {
	srv := startServer(t, testBuilder(newGates()))
	c := dial(t, srv)

	c.send(&abci.RequestFlush{})
	c.mustRecv()
	require.Eventually(t, func() bool { return srv.SessionCount() == 1 }, time.Second, time.Millisecond)

	require.NoError(t, c.conn.Close())
	require.Eventually(t, func() bool { return srv.SessionCount() == 0 }, time.Second, time.Millisecond)
}

func TestSession_ServeConnReturnsCleanOnEOF(t *testing.T) {
	srv := testBuilder(newGates()).Finish()
	require.NotNil(t, srv)

	server, client := pipeConn(t)
	done := make(chan error, 1)
	go func() { done <- srv.ServeConn(context.Background(), server) }()

	require.NoError(t, client.conn.Close())
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("session did not end")
	}
}

func TestSession_ServeConnStopsOnCancel(t *testing.T) {
	g := newGates("hang")
	srv := testBuilder(g).Finish()
	require.NotNil(t, srv)

	server, tc := pipeConn(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.ServeConn(ctx, server) }()

	tc.send(&abci.RequestEcho{Message: "hang"}, &abci.RequestFlush{})
	require.Eventually(t, func() bool { return g.inFlight.Load() == 1 }, time.Second, time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("session did not stop")
	}
	require.Eventually(t, func() bool { return g.inFlight.Load() == 0 }, time.Second, time.Millisecond)
}

func TestPendingQueue_FIFO(t *testing.T) {
	var q pendingQueue
	assert.Nil(t, q.peek())

	first := newPending(&abci.RequestEcho{})
	second := newPending(&abci.RequestCommit{})
	q.push(first)
	q.push(second)

	second.resolve(&abci.ResponseCommit{}, nil)
	assert.Same(t, first, q.peek())
	assert.Same(t, first, q.pop())
	assert.Same(t, second, q.pop())
	assert.Equal(t, 0, q.len())

	first.resolve(nil, assert.AnError)
	first.resolve(&abci.ResponseEcho{}, nil)
	<-first.done
	var herr *HandlerError
	require.ErrorAs(t, first.err, &herr)
	assert.Equal(t, abci.KindInfo, herr.Kind)
	assert.ErrorIs(t, first.err, assert.AnError)
	assert.Nil(t, first.resp)
}
