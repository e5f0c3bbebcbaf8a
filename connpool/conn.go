package connpool

import (
	"fmt"
	"io"
	"math"
	"net"
	"time"

	"github.com/jpillora/backoff"
	"github.com/lithdew/bytesutil"
	"github.com/lithdew/kademlia"
	"github.com/valyala/bytebufferpool"
)

var (
	DefaultDialTimeout  = 3 * time.Second
	DefaultDialAttempts = 8
)

// Conn is the pooled resource: one framed session to a peer. Allocating a
// Conn touches nothing; the socket is dialed on first use and re-established
// on the next borrow after a failure. A Conn is exclusively owned by one
// borrower at a time, so none of its state needs synchronization.
type Conn struct {
	addr string
	tags []string
	key  kademlia.PrivateKey

	dialTimeout time.Duration

	session BufferedConn
	peer    *kademlia.ID
	seq     uint32
}

func newConn(addr string, tags []string, key kademlia.PrivateKey, dialTimeout time.Duration) *Conn {
	if dialTimeout <= 0 {
		dialTimeout = DefaultDialTimeout
	}
	return &Conn{addr: addr, tags: tags, key: key, dialTimeout: dialTimeout}
}

// RoundTrip sends one framed request and waits for its reply. A wire error
// tears the session down so the next borrower redials.
func (c *Conn) RoundTrip(body []byte) ([]byte, error) {
	if len(body) > math.MaxUint16 {
		return nil, fmt.Errorf("frame body is %d bytes - must <= %d bytes", len(body), math.MaxUint16)
	}

	if c.session == nil {
		if err := c.connect(); err != nil {
			return nil, err
		}
	}

	c.seq++

	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)

	buf.B = DataPacket{Seq: c.seq, Body: body}.AppendTo(buf.B[:0])

	if _, err := c.session.Write(buf.B); err != nil {
		return nil, c.fail(fmt.Errorf("failed to write frame: %w", err))
	}
	if err := c.session.Flush(); err != nil {
		return nil, c.fail(fmt.Errorf("failed to flush frame: %w", err))
	}

	packet, err := readDataPacket(c.session)
	if err != nil {
		return nil, c.fail(fmt.Errorf("failed to read reply: %w", err))
	}
	if packet.Seq != c.seq {
		return nil, c.fail(fmt.Errorf("got reply for seq %d while waiting on seq %d", packet.Seq, c.seq))
	}
	return packet.Body, nil
}

// Peer reports the identity the remote side proved during the handshake, or
// nil for an anonymous peer or a session not yet established.
func (c *Conn) Peer() *kademlia.ID { return c.peer }

// Close shuts the underlying socket if one is open. The pool's default
// destroyer finds this on flush.
func (c *Conn) Close() error {
	if c.session == nil {
		return nil
	}
	err := c.session.Close()
	c.session, c.peer = nil, nil
	return err
}

func (c *Conn) fail(err error) error {
	_ = c.session.Close()
	c.session, c.peer = nil, nil
	return err
}

func (c *Conn) connect() error {
	b := &backoff.Backoff{
		Factor: 1.25,
		Jitter: true,
		Min:    10 * time.Millisecond,
		Max:    250 * time.Millisecond,
	}

	var lastErr error

	for i := 0; i < DefaultDialAttempts; i++ {
		if i > 0 {
			time.Sleep(b.Duration())
		}

		conn, err := net.DialTimeout("tcp", c.addr, c.dialTimeout)
		if err != nil {
			lastErr = err
			continue
		}

		session := bufferConn(conn)

		peer, err := c.hello(session)
		if err != nil {
			_ = conn.Close()
			lastErr = err
			continue
		}

		c.session, c.peer, c.seq = session, peer, 0
		return nil
	}

	return fmt.Errorf("failed to dial '%s' after %d attempt(s): %w", c.addr, DefaultDialAttempts, lastErr)
}

func (c *Conn) hello(session BufferedConn) (*kademlia.ID, error) {
	if err := writeHello(session, makeHello(c.key, c.tags, session.LocalAddr())); err != nil {
		return nil, fmt.Errorf("failed to send hello: %w", err)
	}

	theirs, err := readHello(session)
	if err != nil {
		return nil, fmt.Errorf("failed to read peer hello: %w", err)
	}
	if err := theirs.Validate(nil); err != nil {
		return nil, fmt.Errorf("peer hello is invalid: %w", err)
	}
	return theirs.ID, nil
}

// makeHello builds one side's hello, signed when key carries an identity.
// The peer's address fields come from the socket actually in use.
func makeHello(key kademlia.PrivateKey, tags []string, addr net.Addr) HelloPacket {
	packet := HelloPacket{Tags: tags}
	if key == kademlia.ZeroPrivateKey {
		return packet
	}

	tcp := addr.(*net.TCPAddr)
	packet.ID = &kademlia.ID{Pub: key.Public(), Host: tcp.IP, Port: uint16(tcp.Port)}

	scratch := bytebufferpool.Get()
	packet.Signature = key.Sign(packet.AppendPayloadTo(scratch.B[:0]))
	bytebufferpool.Put(scratch)

	return packet
}

func writeHello(session BufferedConn, packet HelloPacket) error {
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)

	buf.B = append(buf.B[:0], 0, 0) // reserve the size prefix
	buf.B = packet.AppendTo(buf.B)

	size := len(buf.B) - 2
	if size > math.MaxUint16 {
		return fmt.Errorf("hello packet is %d bytes - must <= %d bytes", size, math.MaxUint16)
	}
	buf.B[0], buf.B[1] = byte(size>>8), byte(size)

	if _, err := session.Write(buf.B); err != nil {
		return err
	}
	return session.Flush()
}

func readHello(r io.Reader) (HelloPacket, error) {
	var hdr [2]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return HelloPacket{}, err
	}

	frame := make([]byte, bytesutil.Uint16BE(hdr[:]))
	if _, err := io.ReadFull(r, frame); err != nil {
		return HelloPacket{}, err
	}
	return UnmarshalHelloPacket(frame)
}
