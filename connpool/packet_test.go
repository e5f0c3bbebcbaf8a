package connpool

import (
	"io"
	"net"
	"testing"

	"github.com/lithdew/kademlia"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestDataPacket(t *testing.T) {
	defer goleak.VerifyNone(t)

	packet := DataPacket{Seq: 42, Body: []byte("hello from the pool")}

	decoded, err := UnmarshalDataPacket(packet.AppendTo(nil))
	require.NoError(t, err)
	require.EqualValues(t, packet.Seq, decoded.Seq)
	require.EqualValues(t, packet.Body, decoded.Body)

	_, err = UnmarshalDataPacket(packet.AppendTo(nil)[:3])
	require.Equal(t, io.ErrUnexpectedEOF, err)
}

func TestHelloPacketAnonymous(t *testing.T) {
	defer goleak.VerifyNone(t)

	packet := HelloPacket{Tags: []string{"echo", "demo"}}

	decoded, err := UnmarshalHelloPacket(packet.AppendTo(nil))
	require.NoError(t, err)
	require.Nil(t, decoded.ID)
	require.EqualValues(t, packet.Tags, decoded.Tags)
	require.NoError(t, decoded.Validate(nil))
}

func TestHelloPacketSigned(t *testing.T) {
	defer goleak.VerifyNone(t)

	_, secret, err := kademlia.GenerateKeys(nil)
	require.NoError(t, err)

	addr := &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 4444}
	packet := makeHello(secret, []string{"echo"}, addr)
	require.NotNil(t, packet.ID)

	decoded, err := UnmarshalHelloPacket(packet.AppendTo(nil))
	require.NoError(t, err)
	require.NotNil(t, decoded.ID)
	require.Equal(t, secret.Public(), decoded.ID.Pub)
	require.NoError(t, decoded.Validate(nil))

	// A flipped signature byte must not validate.
	decoded.Signature[0] ^= 0xff
	require.Error(t, decoded.Validate(nil))
}
