package connpool

import (
	"net"
	"sync"

	"github.com/lithdew/kademlia"
	"github.com/valyala/bytebufferpool"
)

// Server answers framed requests. The zero value serves anonymously and
// echoes every frame; set Handler for anything smarter and SecretKey to
// prove an identity during the hello exchange.
type Server struct {
	Handler   Handler
	Tags      []string
	SecretKey kademlia.PrivateKey

	mu    sync.Mutex
	conns map[net.Conn]struct{}
	done  bool

	wg sync.WaitGroup
}

// Serve accepts connections until the listener closes. It returns nil when
// the listener failed because Shutdown was already called.
func (s *Server) Serve(ln net.Listener) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			s.mu.Lock()
			done := s.done
			s.mu.Unlock()
			if done {
				return nil
			}
			return err
		}

		s.mu.Lock()
		if s.done {
			s.mu.Unlock()
			_ = conn.Close()
			return nil
		}
		if s.conns == nil {
			s.conns = make(map[net.Conn]struct{})
		}
		s.conns[conn] = struct{}{}
		s.wg.Add(1)
		s.mu.Unlock()

		go func() {
			defer s.wg.Done()

			s.serveConn(conn)

			s.mu.Lock()
			delete(s.conns, conn)
			s.mu.Unlock()

			_ = conn.Close()
		}()
	}
}

// Shutdown closes every open connection and waits for their handlers.
func (s *Server) Shutdown() {
	s.mu.Lock()
	s.done = true
	for conn := range s.conns {
		_ = conn.Close()
	}
	s.mu.Unlock()

	s.wg.Wait()
}

func (s *Server) serveConn(conn net.Conn) {
	session := bufferConn(conn)

	theirs, err := readHello(session)
	if err != nil {
		return
	}
	// A client that cannot prove the identity it claims gets no hello back.
	if err := theirs.Validate(nil); err != nil {
		return
	}
	if err := writeHello(session, makeHello(s.SecretKey, s.Tags, conn.LocalAddr())); err != nil {
		return
	}

	handler := s.Handler
	if handler == nil {
		handler = DefaultHandler
	}

	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)

	for {
		packet, err := readDataPacket(session)
		if err != nil {
			return
		}

		resp, err := handler.HandleFrame(packet.Body)
		if err != nil {
			return
		}

		buf.B = DataPacket{Seq: packet.Seq, Body: resp}.AppendTo(buf.B[:0])
		if _, err := session.Write(buf.B); err != nil {
			return
		}
		if err := session.Flush(); err != nil {
			return
		}
	}
}
