// Package discovery finds my-PV devices on the local network. Devices
// listen on UDP port 16124 and answer a broadcast probe with their model,
// address, serial number and firmware version.
package discovery

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"net"
	"net/netip"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

const Port = 16124

const (
	requestLength = 32
	replyLength   = 64
)

// DeviceIdentification is the 16-bit device code used on the wire. Its
// decimal value doubles as the product number that prefixes the device's
// serial number.
type DeviceIdentification uint16

const (
	ACThor9s  DeviceIdentification = 0x4f4c // 20300
	ACThor    DeviceIdentification = 0x4e84 // 20100
	MyPVMeter DeviceIdentification = 0x4e8e // 20110
	ACElwa2   DeviceIdentification = 0x3f16 // 16150
	ACElwaE   DeviceIdentification = 0x3efc // 16124
)

var deviceNames = map[DeviceIdentification]string{
	ACThor9s:  "AC-THOR 9S",
	ACThor:    "AC-THOR",
	MyPVMeter: "my-PV Meter",
	ACElwa2:   "AC ELWA 2",
	ACElwaE:   "AC ELWA-E",
}

func (d DeviceIdentification) DeviceName() string {
	if name, ok := deviceNames[d]; ok {
		return name
	}
	return fmt.Sprintf("unknown (0x%04x)", uint16(d))
}

func (d DeviceIdentification) String() string {
	return d.DeviceName()
}

// Request is a discovery probe.
//
// Wire format: crc (2 bytes, little endian), identification (2 bytes, big
// endian), device name (16 bytes ASCII), 12 reserved bytes.
type Request struct {
	DeviceID DeviceIdentification
}

func (r Request) Encode() []byte {
	buf := make([]byte, requestLength)
	binary.BigEndian.PutUint16(buf[2:4], uint16(r.DeviceID))
	copy(buf[4:20], r.DeviceID.DeviceName())
	binary.LittleEndian.PutUint16(buf[0:2], crc16(buf[2:]))
	return buf
}

func DecodeRequest(data []byte) (Request, error) {
	if len(data) != requestLength {
		return Request{}, fmt.Errorf("invalid request length: %d != %d", len(data), requestLength)
	}
	if err := checkCRC(data); err != nil {
		return Request{}, err
	}
	return Request{DeviceID: DeviceIdentification(binary.BigEndian.Uint16(data[2:4]))}, nil
}

// Reply is a device's answer to a probe.
//
// Wire format: crc (2 bytes, little endian), identification (2 bytes, big
// endian), ip address (4 bytes), serial number (16 bytes ASCII), firmware
// version (2 bytes), elwa number (1 byte), 35 reserved bytes.
type Reply struct {
	DeviceID DeviceIdentification
	Addr     netip.Addr
	// SerialNumber starts with the product number, e.g. 20100 for an
	// AC-THOR.
	SerialNumber string
	// FirmwareVersion is the raw two byte version, hex encoded.
	FirmwareVersion string
	ElwaNumber      uint8
}

func (r Reply) Encode() []byte {
	buf := make([]byte, replyLength)
	binary.BigEndian.PutUint16(buf[2:4], uint16(r.DeviceID))
	if r.Addr.Is4() {
		a := r.Addr.As4()
		copy(buf[4:8], a[:])
	}
	copy(buf[8:24], r.SerialNumber)
	if fw, err := hex.DecodeString(r.FirmwareVersion); err == nil {
		copy(buf[24:26], fw)
	}
	buf[26] = r.ElwaNumber
	binary.LittleEndian.PutUint16(buf[0:2], crc16(buf[2:]))
	return buf
}

func DecodeReply(data []byte) (Reply, error) {
	if len(data) != replyLength {
		return Reply{}, fmt.Errorf("invalid reply length: %d != %d", len(data), replyLength)
	}
	if err := checkCRC(data); err != nil {
		return Reply{}, err
	}
	return Reply{
		DeviceID:        DeviceIdentification(binary.BigEndian.Uint16(data[2:4])),
		Addr:            netip.AddrFrom4([4]byte(data[4:8])),
		SerialNumber:    strings.TrimRight(string(data[8:24]), "\x00"),
		FirmwareVersion: hex.EncodeToString(data[24:26]),
		ElwaNumber:      data[26],
	}, nil
}

func checkCRC(data []byte) error {
	got := binary.LittleEndian.Uint16(data[0:2])
	want := crc16(data[2:])
	if got != want {
		return fmt.Errorf("invalid crc: 0x%04x != 0x%04x", got, want)
	}
	return nil
}

// crc16 is the Modbus RTU CRC devices checksum discovery frames with.
func crc16(data []byte) uint16 {
	crc := uint16(0xffff)
	for _, b := range data {
		crc ^= uint16(b)
		for i := 0; i < 8; i++ {
			if crc&1 != 0 {
				crc = crc>>1 ^ 0xa001
			} else {
				crc >>= 1
			}
		}
	}
	return crc
}

// Discover broadcasts a probe and collects replies until ctx is done. The
// callback runs on the receive goroutine for every valid reply; malformed
// datagrams and echoed probes are dropped.
func Discover(ctx context.Context, logger *log.Logger, callback func(Reply)) error {
	if logger == nil {
		logger = log.New()
		logger.SetLevel(log.PanicLevel)
	}
	entry := logger.WithField("component", "discovery")

	conn, err := net.ListenUDP("udp4", &net.UDPAddr{Port: Port})
	if err != nil {
		return err
	}
	defer conn.Close()

	req := Request{DeviceID: ACThor}
	dst := &net.UDPAddr{IP: net.IPv4bcast, Port: Port}
	entry.Debugf("sending discovery request to %s", dst)
	if _, err := conn.WriteToUDP(req.Encode(), dst); err != nil {
		return err
	}

	buf := make([]byte, 512)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		_ = conn.SetReadDeadline(time.Now().Add(250 * time.Millisecond))
		n, addr, err := conn.ReadFromUDP(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			return err
		}
		if n == requestLength {
			// our own broadcast echoed back
			continue
		}
		reply, err := DecodeReply(buf[:n])
		if err != nil {
			entry.WithError(err).Debugf("dropping datagram from %s", addr)
			continue
		}
		entry.Debugf("reply from %s: %s serial %s", addr, reply.DeviceID, reply.SerialNumber)
		callback(reply)
	}
}

// DiscoverAll runs Discover for the given duration and returns every device
// that answered, deduplicated by serial number.
func DiscoverAll(ctx context.Context, logger *log.Logger, duration time.Duration) ([]Reply, error) {
	if duration <= 0 {
		duration = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, duration)
	defer cancel()

	seen := make(map[string]bool)
	var replies []Reply
	err := Discover(ctx, logger, func(r Reply) {
		if seen[r.SerialNumber] {
			return
		}
		seen[r.SerialNumber] = true
		replies = append(replies, r)
	})
	if err != nil && ctx.Err() == nil {
		return replies, err
	}
	return replies, nil
}
