package connpool

import (
	"sync"
	"time"

	"github.com/TheSmallBoat/berth/berthlib"
	"github.com/lithdew/kademlia"
)

var DefaultMaxConns = 4

// Client answers Do calls through a bounded pool of framed sessions to one
// address. Sessions are dialed lazily, recycled between requests, and torn
// down by Shutdown. When every session is borrowed, Do waits for one to come
// back rather than dialing past MaxConns.
type Client struct {
	Addr      string
	Tags      []string
	SecretKey kademlia.PrivateKey // the zero value sends an anonymous hello

	MaxConns     int // simultaneous sessions, DefaultMaxConns when zero
	IdleConns    int // session slots prepared eagerly on first use
	DialTimeout  time.Duration
	FlushTimeout time.Duration

	once sync.Once
	pool *berthlib.Pool
	err  error
}

func (c *Client) init() error {
	c.once.Do(func() {
		max := c.MaxConns
		if max <= 0 {
			max = DefaultMaxConns
		}

		factory := berthlib.FactoryFunc(func() (interface{}, error) {
			return newConn(c.Addr, c.Tags, c.SecretKey, c.DialTimeout), nil
		})

		c.pool, c.err = berthlib.NewPoolWithInitial(c.Addr, c.IdleConns, max, factory)
		if c.err == nil && c.FlushTimeout > 0 {
			c.pool.FlushTimeout = c.FlushTimeout
		}
	})
	return c.err
}

// Do borrows a session, performs one round trip, and hands the session back.
func (c *Client) Do(body []byte) ([]byte, error) {
	if err := c.init(); err != nil {
		return nil, err
	}

	lease, err := c.pool.Take()
	if err != nil {
		return nil, err
	}
	defer func() { _ = lease.Close() }()

	return lease.Value().(*Conn).RoundTrip(body)
}

// Pool exposes the session pool for counts and metrics.
func (c *Client) Pool() *berthlib.Pool {
	_ = c.init()
	return c.pool
}

// Shutdown closes every session, waiting for borrowed ones to come back.
func (c *Client) Shutdown() error {
	if err := c.init(); err != nil {
		return err
	}
	return c.pool.Flush()
}
