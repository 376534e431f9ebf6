package discovery

import (
	"encoding/hex"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func padded(hexPrefix string, length int) []byte {
	b, err := hex.DecodeString(hexPrefix)
	if err != nil {
		panic(err)
	}
	out := make([]byte, length)
	copy(out, b)
	return out
}

func TestRequestCodec(t *testing.T) {
	req := Request{DeviceID: ACThor}
	want := padded("cb7a4e8441432d54484f5200000000000000", requestLength)

	encoded := req.Encode()
	assert.Equal(t, want, encoded)

	decoded, err := DecodeRequest(encoded)
	require.NoError(t, err)
	assert.Equal(t, req, decoded)
}

func TestReplyCodec(t *testing.T) {
	reply := Reply{
		DeviceID:        ACThor,
		Addr:            netip.AddrFrom4([4]byte{127, 0, 0, 1}),
		SerialNumber:    "hello",
		FirmwareVersion: "000a",
		ElwaNumber:      1,
	}
	want := padded("75764e847f00000168656c6c6f0000000000000000000000000a01", replyLength)

	encoded := reply.Encode()
	assert.Equal(t, want, encoded)

	decoded, err := DecodeReply(encoded)
	require.NoError(t, err)
	assert.Equal(t, reply, decoded)
}

func TestDecodeRejectsBadCRC(t *testing.T) {
	req := Request{DeviceID: ACThor9s}
	encoded := req.Encode()
	encoded[0] ^= 0xff

	_, err := DecodeRequest(encoded)
	assert.ErrorContains(t, err, "invalid crc")
}

func TestDecodeRejectsBadLength(t *testing.T) {
	_, err := DecodeReply(make([]byte, 10))
	assert.ErrorContains(t, err, "invalid reply length")

	_, err = DecodeRequest(make([]byte, replyLength))
	assert.ErrorContains(t, err, "invalid request length")
}

func TestDeviceIdentificationProductNumbers(t *testing.T) {
	// the decimal code is the product number prefixing the serial
	assert.Equal(t, 20100, int(ACThor))
	assert.Equal(t, 20300, int(ACThor9s))
	assert.Equal(t, 20110, int(MyPVMeter))
	assert.Equal(t, 16150, int(ACElwa2))
	assert.Equal(t, 16124, int(ACElwaE))

	assert.Equal(t, "AC-THOR", ACThor.DeviceName())
	assert.Equal(t, "unknown (0x0001)", DeviceIdentification(1).DeviceName())
}
