package connpool

import (
	"errors"
	"net"
	"testing"

	"github.com/lithdew/kademlia"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestServerShutdown(t *testing.T) {
	defer goleak.VerifyNone(t)

	srv := &Server{}

	ln, err := net.Listen("tcp", ":0")
	require.NoError(t, err)

	go func() {
		srv.Shutdown()
		require.NoError(t, ln.Close())
	}()

	require.NoError(t, srv.Serve(ln))
}

func TestServerHandlerError(t *testing.T) {
	defer goleak.VerifyNone(t)

	srv := &Server{
		Handler: HandlerFunc(func(body []byte) ([]byte, error) {
			return nil, errors.New("not today")
		}),
	}

	ln, err := net.Listen("tcp", ":0")
	require.NoError(t, err)

	go func() {
		require.NoError(t, srv.Serve(ln))
	}()

	conn := newConn(ln.Addr().String(), nil, kademlia.ZeroPrivateKey, 0)

	defer func() {
		require.NoError(t, conn.Close())
		srv.Shutdown()
		require.NoError(t, ln.Close())
	}()

	// The handler refuses the frame, so the server drops the connection and
	// the round trip surfaces the broken read.
	_, err = conn.RoundTrip([]byte("anything"))
	require.Error(t, err)
}
