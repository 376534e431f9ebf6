package acthor_modbus

import (
	"sync"
	"time"
)

type TestWrite struct {
	Address uint16
	Words   []uint16
}

// TestTransport is an in-memory register bank used by the package tests and
// by consumers that want a device without hardware.
type TestTransport struct {
	mu        sync.Mutex
	registers map[uint16]uint16
	opened    bool

	OpenErr error
	// Delay stalls every read and write, for deadline tests.
	Delay time.Duration

	readErrs  []error
	writeErrs []error
	writes    []TestWrite
}

func CreateTestTransport() *TestTransport {
	t := &TestTransport{registers: make(map[uint16]uint16)}
	t.seed()
	return t
}

// seed fills the bank with a plausible AC-THOR on firmware a0020303,
// serial 20100123456789 (AC THOR product number 20100).
func (t *TestTransport) seed() {
	serial := "20100123456789"
	for i := 0; i < 8; i++ {
		var hi, lo byte
		if 2*i < len(serial) {
			hi = serial[2*i]
		}
		if 2*i+1 < len(serial) {
			lo = serial[2*i+1]
		}
		t.registers[uint16(1018+i)] = uint16(hi)<<8 | uint16(lo)
	}
	values := map[uint16]uint16{
		1000: 500,    // power target 500 W
		1001: 523,    // tank sensor 52.3 degC
		1002: 600,    // hot water max 60.0 degC
		1003: 2,      // status: heating
		1004: 10,     // power timeout
		1005: 0,      // boost off
		1006: 500,    // hot water min 50.0 degC
		1013: 1,      // device number
		1014: 3000,   // max power
		1015: 421,    // chip 42.1 degC
		1016: 203,    // control firmware version
		1028: 3,      // control firmware sub-version
		1030: 184,    // temp_2 18.4 degC
		1059: 0x0001, // load on out 1
		1060: 3000,
		1061: 230, // L1 voltage
		1062: 87,  // L1 current 8.7 A
		1063: 229,
		1064: 49987, // 49.987 Hz
		1065: 3,     // operation mode
		1069: 0xff38, // meter power -200 W
		1070: 1,
		1071: 3000,
		1077: 2,   // operation state
		1079: 500, // power_32 low word
		1081: 1,   // device state on
		1082: 480,
		1083: 1500,
		1084: 20,
	}
	for addr, v := range values {
		t.registers[addr] = v
	}
}

// SetRegister overrides one register in the bank.
func (t *TestTransport) SetRegister(addr uint16, value uint16) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.registers[addr] = value
}

// FailReads queues errors returned by the next reads, in order.
func (t *TestTransport) FailReads(errs ...error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.readErrs = append(t.readErrs, errs...)
}

// FailWrites queues errors returned by the next writes, in order.
func (t *TestTransport) FailWrites(errs ...error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.writeErrs = append(t.writeErrs, errs...)
}

// Writes returns every write the transport has seen.
func (t *TestTransport) Writes() []TestWrite {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]TestWrite, len(t.writes))
	copy(out, t.writes)
	return out
}

func (t *TestTransport) Open() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.OpenErr != nil {
		return t.OpenErr
	}
	t.opened = true
	return nil
}

func (t *TestTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.opened = false
	return nil
}

func (t *TestTransport) ReadRegisters(addr uint16, quantity uint16) ([]uint16, error) {
	t.mu.Lock()
	var err error
	if len(t.readErrs) > 0 {
		err, t.readErrs = t.readErrs[0], t.readErrs[1:]
	}
	delay := t.Delay
	words := make([]uint16, quantity)
	for i := range words {
		words[i] = t.registers[addr+uint16(i)]
	}
	t.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	if err != nil {
		return nil, err
	}
	return words, nil
}

func (t *TestTransport) WriteRegisters(addr uint16, values []uint16) error {
	t.mu.Lock()
	var err error
	if len(t.writeErrs) > 0 {
		err, t.writeErrs = t.writeErrs[0], t.writeErrs[1:]
	}
	delay := t.Delay
	if err == nil {
		for i, v := range values {
			t.registers[addr+uint16(i)] = v
		}
		t.writes = append(t.writes, TestWrite{Address: addr, Words: append([]uint16(nil), values...)})
	}
	t.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	return err
}

// CreateTestDevice builds a Device over a fresh TestTransport.
func CreateTestDevice() (*Device, *TestTransport, error) {
	transport := CreateTestTransport()
	device, err := CreateDeviceWithTransport(transport, DeviceConfig{}, nil)
	if err != nil {
		return nil, nil, err
	}
	return device, transport, nil
}
