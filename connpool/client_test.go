package connpool

import (
	"fmt"
	"net"
	"sync"
	"testing"

	"github.com/lithdew/kademlia"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestClientDo(t *testing.T) {
	defer goleak.VerifyNone(t)

	n := 4
	m := 256

	ln, err := net.Listen("tcp", ":0")
	require.NoError(t, err)

	var server Server

	client := &Client{Addr: ln.Addr().String(), MaxConns: 2}

	go func() {
		require.NoError(t, server.Serve(ln))
	}()

	defer func() {
		require.NoError(t, client.Shutdown())
		server.Shutdown()

		require.NoError(t, ln.Close())
	}()

	var wg sync.WaitGroup
	wg.Add(n)

	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			for j := 0; j < m; j++ {
				body := []byte(fmt.Sprintf("[%d] hello %d", i, j))
				resp, err := client.Do(body)
				require.NoError(t, err)
				require.EqualValues(t, body, resp)
			}
		}(i)
	}

	wg.Wait()

	pool := client.Pool()
	require.EqualValues(t, 2, pool.Cap())
	require.LessOrEqual(t, pool.Allocated(), 2)
	t.Logf("%s => %s", pool, pool.Metrics())
}

func TestClientShutdownClosesSessions(t *testing.T) {
	defer goleak.VerifyNone(t)

	ln, err := net.Listen("tcp", ":0")
	require.NoError(t, err)

	var server Server

	client := &Client{Addr: ln.Addr().String(), MaxConns: 1}

	go func() {
		require.NoError(t, server.Serve(ln))
	}()

	defer func() {
		server.Shutdown()
		require.NoError(t, ln.Close())
	}()

	_, err = client.Do([]byte("ping"))
	require.NoError(t, err)
	require.EqualValues(t, 1, client.Pool().Allocated())

	require.NoError(t, client.Shutdown())
	require.EqualValues(t, 0, client.Pool().Allocated())
}

func TestConnIdentity(t *testing.T) {
	defer goleak.VerifyNone(t)

	_, serverKey, err := kademlia.GenerateKeys(nil)
	require.NoError(t, err)

	_, clientKey, err := kademlia.GenerateKeys(nil)
	require.NoError(t, err)

	ln, err := net.Listen("tcp", ":0")
	require.NoError(t, err)

	server := Server{SecretKey: serverKey, Tags: []string{"echo"}}

	go func() {
		require.NoError(t, server.Serve(ln))
	}()

	conn := newConn(ln.Addr().String(), []string{"test"}, clientKey, 0)

	defer func() {
		require.NoError(t, conn.Close())
		server.Shutdown()
		require.NoError(t, ln.Close())
	}()

	resp, err := conn.RoundTrip([]byte("who goes there"))
	require.NoError(t, err)
	require.EqualValues(t, "who goes there", resp)

	// The server proved the key it was configured with.
	require.NotNil(t, conn.Peer())
	require.Equal(t, serverKey.Public(), conn.Peer().Pub)
}

func TestClientDialFailure(t *testing.T) {
	defer goleak.VerifyNone(t)

	attempts := DefaultDialAttempts
	DefaultDialAttempts = 1
	defer func() { DefaultDialAttempts = attempts }()

	// Grab an address nobody is listening on.
	ln, err := net.Listen("tcp", ":0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	client := &Client{Addr: addr, MaxConns: 1}

	_, err = client.Do([]byte("hello?"))
	require.Error(t, err)

	// The broken session went back to the pool without a socket.
	require.NoError(t, client.Shutdown())
}
