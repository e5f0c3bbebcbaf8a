package connpool

import (
	"io"

	"github.com/lithdew/bytesutil"
)

// DataPacket is one framed request or reply. A reply carries the seq of the
// request it answers.
type DataPacket struct {
	Seq  uint32
	Body []byte
}

func (p DataPacket) AppendTo(dst []byte) []byte {
	dst = bytesutil.AppendUint32BE(dst, p.Seq)
	dst = bytesutil.AppendUint16BE(dst, uint16(len(p.Body)))
	dst = append(dst, p.Body...)
	return dst
}

func UnmarshalDataPacket(buf []byte) (DataPacket, error) {
	var packet DataPacket
	if len(buf) < 4+2 {
		return packet, io.ErrUnexpectedEOF
	}
	packet.Seq, buf = bytesutil.Uint32BE(buf[:4]), buf[4:]
	var size uint16
	size, buf = bytesutil.Uint16BE(buf[:2]), buf[2:]
	if uint16(len(buf)) < size {
		return packet, io.ErrUnexpectedEOF
	}
	packet.Body = buf[:size]
	return packet, nil
}

// readDataPacket consumes exactly one frame off the wire.
func readDataPacket(r io.Reader) (DataPacket, error) {
	var hdr [4 + 2]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return DataPacket{}, err
	}

	packet := DataPacket{Seq: bytesutil.Uint32BE(hdr[:4])}

	size := bytesutil.Uint16BE(hdr[4:])
	if size > 0 {
		packet.Body = make([]byte, size)
		if _, err := io.ReadFull(r, packet.Body); err != nil {
			return DataPacket{}, err
		}
	}
	return packet, nil
}
