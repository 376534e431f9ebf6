package acthor_modbus

import (
	"fmt"
	"time"

	"github.com/simonvetter/modbus"
	log "github.com/sirupsen/logrus"
)

// Transport moves raw register words to and from a device. Implementations
// are not required to be safe for concurrent use; Session serializes access.
type Transport interface {
	Open() error
	Close() error
	ReadRegisters(addr uint16, quantity uint16) ([]uint16, error)
	WriteRegisters(addr uint16, values []uint16) error
}

type ModbusInstrument struct {
	RecordTime func(fnName string, readTime time.Duration)
}

func RecordTimer(name string, instrument []ModbusInstrument) func() {
	if instrument == nil {
		return func() {}
	}

	start := time.Now()
	return func() {
		duration := time.Since(start)
		for i := range instrument {
			instrument[i].RecordTime(name, duration)
		}
	}
}

type modbusTransport struct {
	client     *modbus.ModbusClient
	instrument []ModbusInstrument
}

func (t *modbusTransport) Open() error {
	defer RecordTimer("Open", t.instrument)()
	return t.client.Open()
}

func (t *modbusTransport) Close() error {
	return t.client.Close()
}

func (t *modbusTransport) ReadRegisters(addr uint16, quantity uint16) ([]uint16, error) {
	defer RecordTimer("ReadRegisters", t.instrument)()
	return t.client.ReadRegisters(addr, quantity, modbus.HOLDING_REGISTER)
}

func (t *modbusTransport) WriteRegisters(addr uint16, values []uint16) error {
	defer RecordTimer("WriteRegisters", t.instrument)()
	if len(values) == 1 {
		return t.client.WriteRegister(addr, values[0])
	}
	return t.client.WriteRegisters(addr, values)
}

func traceLoggerInstrumentation(logger *log.Entry) *ModbusInstrument {
	return &ModbusInstrument{
		RecordTime: func(fnName string, readTime time.Duration) {
			logger.Tracef("modbus [%s]: %d millis", fnName, readTime.Milliseconds())
		},
	}
}

func createTransport(url string, deviceID uint8, timeout time.Duration,
	logger *log.Logger, instrumentation *ModbusInstrument) (Transport, error) {
	client, err := modbus.NewClient(&modbus.ClientConfiguration{
		URL:     url,
		Timeout: timeout,
	})
	if err != nil {
		return nil, err
	}

	// instrumentation
	var inst []ModbusInstrument
	if logger != nil {
		logInst := traceLoggerInstrumentation(logger.WithField("target", "acthor").WithField("device", deviceID))
		if logInst != nil {
			inst = append(inst, *logInst)
		}
	}
	if instrumentation != nil {
		inst = append(inst, *instrumentation)
	}

	// set device address
	if deviceID > 0 {
		err = client.SetUnitId(deviceID)
		if err != nil {
			return nil, err
		}
	}

	return &modbusTransport{
		client:     client,
		instrument: inst,
	}, nil
}

// CreateTCPTransport builds a Modbus TCP transport. The AC-THOR listens on
// port 502 with unit id 1.
func CreateTCPTransport(host string, port uint, deviceID uint8, timeout time.Duration,
	logger *log.Logger, instrumentation *ModbusInstrument) (Transport, error) {
	return createTransport(fmt.Sprintf("tcp://%s:%d", host, port), deviceID, timeout, logger, instrumentation)
}

// CreateRTUTransport builds a Modbus RTU transport for devices wired over
// RS-485 instead of Ethernet.
func CreateRTUTransport(device string, baudRate uint, deviceID uint8, timeout time.Duration,
	logger *log.Logger, instrumentation *ModbusInstrument) (Transport, error) {
	return createTransport(fmt.Sprintf("rtu://%s?baudrate=%d", device, baudRate), deviceID, timeout, logger, instrumentation)
}
