package connpool

import (
	"bufio"
	"net"
)

type BufferedConn interface {
	net.Conn
	Flush() error
}

type Handler interface {
	HandleFrame(body []byte) ([]byte, error)
}

type HandlerFunc func(body []byte) ([]byte, error)

func (fn HandlerFunc) HandleFrame(body []byte) ([]byte, error) { return fn(body) }

// DefaultHandler echoes frames back unchanged.
var DefaultHandler HandlerFunc = func(body []byte) ([]byte, error) { return body, nil }

type bufferedConn struct {
	net.Conn
	br *bufio.Reader
	bw *bufio.Writer
}

func bufferConn(conn net.Conn) *bufferedConn {
	return &bufferedConn{Conn: conn, br: bufio.NewReader(conn), bw: bufio.NewWriter(conn)}
}

func (c *bufferedConn) Read(p []byte) (int, error)  { return c.br.Read(p) }
func (c *bufferedConn) Write(p []byte) (int, error) { return c.bw.Write(p) }
func (c *bufferedConn) Flush() error                { return c.bw.Flush() }
