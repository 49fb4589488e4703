package server

import (
	"context"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cyberinferno/go-abci/abci"
	"github.com/cyberinferno/go-abci/codec"
)

func TestBuilder_Finish(t *testing.T) {
	t.Run("complete builder yields a server", func(t *testing.T) {
		srv := testBuilder(newGates()).Finish()
		require.NotNil(t, srv)
		assert.Equal(t, "abci", srv.opts.Name)
		assert.Equal(t, codec.DefaultMaxMessageSize, srv.opts.MaxMessageSize)
	})

	t.Run("missing slots yield nil", func(t *testing.T) {
		full := testBuilder(newGates())

		assert.Nil(t, NewBuilder().Finish())
		assert.Nil(t, NewBuilder().Consensus(full.consensus).Mempool(full.mempool).Info(full.info).Finish())
		assert.Nil(t, NewBuilder().Mempool(full.mempool).Info(full.info).Snapshot(full.snapshot).Finish())
	})

	t.Run("FinishOrError names missing slots", func(t *testing.T) {
		full := testBuilder(newGates())

		srv, err := NewBuilder().Info(full.info).FinishOrError()
		assert.Nil(t, srv)
		assert.ErrorIs(t, err, ErrIncompleteBuilder)
		assert.EqualError(t, err, "server: incomplete builder: missing consensus, mempool, snapshot")

		srv, err = full.FinishOrError()
		require.NoError(t, err)
		assert.NotNil(t, srv)
	})

	t.Run("setting a slot again overwrites it", func(t *testing.T) {
		b := testBuilder(newGates())
		failing := &readyService[abci.InfoRequest, abci.InfoResponse]{Service: b.info, readyErr: assert.AnError}
		b.Info(failing)
		assert.Same(t, failing, b.info)
	})
}

func TestServer_StartStop(t *testing.T) {
	srv := testBuilder(newGates()).Options(Options{Name: "test"}).Finish()
	require.NotNil(t, srv)
	assert.Nil(t, srv.Addr())

	require.NoError(t, srv.Start("tcp://127.0.0.1:0"))
	assert.ErrorIs(t, srv.Start("127.0.0.1:0"), ErrServerRunning)

	c := dial(t, srv)
	c.send(&abci.RequestEcho{Message: "hello"}, &abci.RequestFlush{})
	assert.Equal(t, &abci.ResponseEcho{Message: "hello"}, c.mustRecv())
	assert.Equal(t, &abci.ResponseFlush{}, c.mustRecv())

	addr := srv.Addr().String()
	srv.Stop()
	srv.Stop()
	assert.Nil(t, srv.Addr())

	c.expectClosed()
	require.Eventually(t, func() bool { return srv.SessionCount() == 0 }, time.Second, time.Millisecond)

	_, err := net.DialTimeout("tcp", addr, 100*time.Millisecond)
	assert.Error(t, err)
}

func TestServer_StartFailsOnBadAddress(t *testing.T) {
	srv := testBuilder(newGates()).Finish()
	require.NotNil(t, srv)
	assert.Error(t, srv.Start("tcp://256.0.0.1:bad"))
}

func TestServer_ListenUntilCancelled(t *testing.T) {
	srv := testBuilder(newGates()).Finish()
	require.NotNil(t, srv)

	sock := filepath.Join(t.TempDir(), "abci.sock")
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Listen(ctx, "unix://"+sock) }()

	var conn net.Conn
	require.Eventually(t, func() bool {
		var err error
		conn, err = net.Dial("unix", sock)
		return err == nil
	}, time.Second, 5*time.Millisecond)
	defer conn.Close()

	tc := &testConn{t: t, conn: conn, enc: codec.NewEncoder(conn, 0), dec: codec.NewDecoder(conn, 0)}
	tc.send(&abci.RequestFlush{})
	assert.Equal(t, &abci.ResponseFlush{}, tc.mustRecv())

	assert.Equal(t, 1, srv.SessionCount())
	assert.Equal(t, uint64(1), srv.ids.Last())

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Listen did not return")
	}
	tc.expectClosed()
}
