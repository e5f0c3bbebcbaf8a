package connpool

import (
	"errors"
	"fmt"
	"io"
	"math"
	"unicode/utf8"

	"github.com/lithdew/kademlia"
)

// HelloPacket opens every fresh connection. A peer that carries an identity
// sends its kademlia ID and a signature over the payload; an anonymous peer
// sends neither and the packet degenerates to a bare tag list.
type HelloPacket struct {
	ID        *kademlia.ID
	Tags      []string
	Signature kademlia.Signature
}

// AppendPayloadTo marshals the signed portion of the packet: the ID followed
// by the raw tags.
func (h HelloPacket) AppendPayloadTo(dst []byte) []byte {
	dst = h.ID.AppendTo(dst)
	for _, tag := range h.Tags {
		dst = append(dst, tag...)
	}
	return dst
}

func (h HelloPacket) AppendTo(dst []byte) []byte {
	if h.ID == nil {
		dst = append(dst, 0)
	} else {
		dst = append(dst, 1)
		dst = h.ID.AppendTo(dst)
	}

	dst = append(dst, uint8(len(h.Tags)))
	for _, tag := range h.Tags {
		dst = append(dst, uint8(len(tag)))
		dst = append(dst, tag...)
	}

	if h.ID != nil {
		dst = append(dst, h.Signature[:]...)
	}
	return dst
}

func UnmarshalHelloPacket(buf []byte) (HelloPacket, error) {
	var pkt HelloPacket

	if len(buf) < 1 {
		return pkt, io.ErrUnexpectedEOF
	}
	signed := buf[0] == 1
	buf = buf[1:]

	if signed {
		id, leftover, err := kademlia.UnmarshalID(buf)
		if err != nil {
			return pkt, err
		}
		pkt.ID, buf = &id, leftover
	}

	if len(buf) < 1 {
		return pkt, io.ErrUnexpectedEOF
	}
	pkt.Tags = make([]string, buf[0])
	buf = buf[1:]

	for i := range pkt.Tags {
		if len(buf) < 1 {
			return pkt, io.ErrUnexpectedEOF
		}
		size := int(buf[0])
		if len(buf) < 1+size {
			return pkt, io.ErrUnexpectedEOF
		}
		pkt.Tags[i] = string(buf[1 : 1+size])
		buf = buf[1+size:]
	}

	if signed {
		if len(buf) < kademlia.SizeSignature {
			return pkt, io.ErrUnexpectedEOF
		}
		copy(pkt.Signature[:], buf[:kademlia.SizeSignature])
	}

	return pkt, nil
}

// Validate checks the tags and, for an identified peer, the ID and the
// signature. dst is scratch space for re-marshaling the signed payload.
func (h HelloPacket) Validate(dst []byte) error {
	for _, tag := range h.Tags {
		if !utf8.ValidString(tag) {
			return fmt.Errorf("tag '%s' in hello packet is not valid utf8", tag)
		}
		if len(tag) > math.MaxUint8 {
			return fmt.Errorf("tag '%s' in hello packet is too large - must <= %d bytes", tag, math.MaxUint8)
		}
	}

	if h.ID == nil {
		return nil
	}
	if err := h.ID.Validate(); err != nil {
		return err
	}
	if !h.Signature.Verify(h.ID.Pub, h.AppendPayloadTo(dst)) {
		return errors.New("signature is malformed")
	}
	return nil
}
