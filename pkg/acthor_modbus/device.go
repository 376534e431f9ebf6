package acthor_modbus

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	log "github.com/sirupsen/logrus"
)

var (
	ErrNoSnapshot        = errors.New("no snapshot yet")
	ErrUnknownField      = errors.New("unknown field")
	ErrFieldNotAvailable = errors.New("field not available on this device")
	ErrFieldNotWritable  = errors.New("field not writable")
)

// Device is the typed facade over one AC-THOR. Getters read only from the
// latest snapshot and never touch the wire; setters encode, bound-check and
// write through the session.
type Device struct {
	session  *Session
	poller   *Poller
	regmap   *RegisterMap
	identity Identity
	logger   *log.Entry
}

type DeviceConfig struct {
	Session SessionConfig
	Poller  PollerConfig
}

// CreateActhorModbusDevice connects over Modbus TCP, reads the identity
// registers and selects the register map for the reported model and
// firmware. An unsupported serial fails here with UnknownDeviceModelError.
func CreateActhorModbusDevice(host string, port uint, deviceID uint8, config DeviceConfig,
	logger *log.Logger, instrumentation *ModbusInstrument) (*Device, error) {
	transport, err := CreateTCPTransport(host, port, deviceID, config.Session.withDefaults().RequestTimeout,
		logger, instrumentation)
	if err != nil {
		return nil, err
	}
	return CreateDeviceWithTransport(transport, config, logger)
}

// CreateDeviceWithTransport is the injection point for tests and for RTU
// wiring.
func CreateDeviceWithTransport(transport Transport, config DeviceConfig, logger *log.Logger) (*Device, error) {
	if logger == nil {
		logger = log.New()
		logger.SetLevel(log.PanicLevel)
	}
	session := NewSession(transport, config.Session, logger)
	if err := session.Connect(); err != nil {
		return nil, err
	}

	words, err := session.ReadSpan(identitySpan)
	if err != nil {
		_ = session.Close()
		return nil, err
	}
	identity := parseIdentity(words)

	regmap, err := RegisterMapForIdentity(identity)
	if err != nil {
		_ = session.Close()
		return nil, err
	}

	device := &Device{
		session:  session,
		poller:   NewPoller(session, regmap, config.Poller, logger),
		regmap:   regmap,
		identity: identity,
		logger: logger.WithField("component", "device").
			WithField("serial", identity.Serial),
	}
	device.logger.Infof("connected to %s, firmware %s, %d read span(s)",
		identity.Model, identity.Firmware, len(device.poller.Spans()))
	return device, nil
}

func (d *Device) Identity() Identity {
	return d.identity
}

func (d *Device) RegisterMap() *RegisterMap {
	return d.regmap
}

func (d *Device) State() ConnectionState {
	return d.session.State()
}

func (d *Device) Close() error {
	return d.session.Close()
}

// PollOnce runs one poll cycle now.
func (d *Device) PollOnce(ctx context.Context) (*DeviceSnapshot, error) {
	return d.poller.PollOnce(ctx)
}

// Run polls at interval until ctx is cancelled, reconnecting as needed.
func (d *Device) Run(ctx context.Context, interval time.Duration,
	onSnapshot func(*DeviceSnapshot), onStateChange func(ConnectionState)) error {
	return d.poller.Run(ctx, interval, onSnapshot, onStateChange)
}

// Snapshot returns the latest snapshot, or nil before the first successful
// poll.
func (d *Device) Snapshot() *DeviceSnapshot {
	return d.poller.Latest()
}

// SnapshotAge reports how stale the latest snapshot is.
func (d *Device) SnapshotAge() (time.Duration, error) {
	snap := d.poller.Latest()
	if snap == nil {
		return 0, ErrNoSnapshot
	}
	return time.Since(snap.At()), nil
}

func (d *Device) float(name string) (float64, error) {
	snap := d.poller.Latest()
	if snap == nil {
		return 0, ErrNoSnapshot
	}
	if v, ok := snap.Float(name); ok {
		return v, nil
	}
	if _, ok := d.regmap.Field(name); !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownField, name)
	}
	return 0, fmt.Errorf("%w: %s", ErrFieldNotAvailable, name)
}

func (d *Device) uint(name string) (uint32, error) {
	snap := d.poller.Latest()
	if snap == nil {
		return 0, ErrNoSnapshot
	}
	if v, ok := snap.Uint(name); ok {
		return v, nil
	}
	if _, ok := d.regmap.Field(name); !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownField, name)
	}
	return 0, fmt.Errorf("%w: %s", ErrFieldNotAvailable, name)
}

// PowerWatts is the current diversion power target. The 32-bit register is
// preferred when the firmware backs it.
func (d *Device) PowerWatts() (float64, error) {
	if v, err := d.float(FieldPower32); err == nil {
		return v, nil
	}
	return d.float(FieldPower)
}

func (d *Device) DevicePowerWatts() (float64, error) {
	return d.float(FieldDevicePower)
}

func (d *Device) SolarPowerWatts() (float64, error) {
	return d.float(FieldSolarPower)
}

func (d *Device) GridPowerWatts() (float64, error) {
	return d.float(FieldGridPower)
}

// MeterPowerWatts is the signed power at the grid meter. Negative means
// export. Firmware a021002 and newer back a 32-bit register that survives
// large PV installations; older firmware only has the 16-bit one.
func (d *Device) MeterPowerWatts() (float64, error) {
	if v, err := d.float(FieldMeterPower32); err == nil {
		return v, nil
	}
	return d.float(FieldMeterPower)
}

// WaterTemperature is sensor 1, the storage tank sensor.
func (d *Device) WaterTemperature() (float64, error) {
	return d.float("temp_1")
}

// Temperatures returns the connected temperature sensors by index, skipping
// sensors the device does not have.
func (d *Device) Temperatures() (map[int]float64, error) {
	snap := d.poller.Latest()
	if snap == nil {
		return nil, ErrNoSnapshot
	}
	out := make(map[int]float64)
	for i := 1; i <= 8; i++ {
		if v, ok := snap.Float(fmt.Sprintf("temp_%d", i)); ok {
			out[i] = v
		}
	}
	return out, nil
}

func (d *Device) StatusCode() (StatusCode, error) {
	v, err := d.float(FieldStatusCode)
	if err != nil {
		return 0, err
	}
	return StatusCode(v), nil
}

func (d *Device) OperationMode() (OperationMode, error) {
	v, err := d.uint(FieldOperationMode)
	if err != nil {
		return 0, err
	}
	return OperationMode(v), nil
}

func (d *Device) OperationState() (OperationState, error) {
	v, err := d.uint(FieldOperationState)
	if err != nil {
		return 0, err
	}
	return OperationState(v), nil
}

func (d *Device) ControlType() (ControlType, error) {
	v, err := d.uint(FieldControlType)
	if err != nil {
		return 0, err
	}
	return ControlType(v), nil
}

func (d *Device) BoostMode() (BoostMode, error) {
	v, err := d.uint(FieldBoostMode)
	if err != nil {
		return 0, err
	}
	return BoostMode(v), nil
}

func (d *Device) BoostActive() (bool, error) {
	v, err := d.float(FieldBoostActive)
	if err != nil {
		return false, err
	}
	return v != 0, nil
}

func (d *Device) LoadState() (LoadState, error) {
	v, err := d.uint(FieldLoadState)
	if err != nil {
		return LoadState(0), err
	}
	return LoadState(v), nil
}

func (d *Device) PowerStage() (PowerStage, error) {
	v, err := d.uint(FieldPowerStage)
	if err != nil {
		return PowerStage(0), err
	}
	return PowerStage(v), nil
}

func (d *Device) FrequencyHz() (float64, error) {
	return d.float(FieldFrequency)
}

// PhaseVoltages returns L1..L3 in volts. Single-phase devices report only
// index 0.
func (d *Device) PhaseVoltages() ([]float64, error) {
	return d.phaseValues("voltage_l1", "voltage_l2", "voltage_l3")
}

// PhaseCurrents returns L1..L3 in amperes.
func (d *Device) PhaseCurrents() ([]float64, error) {
	return d.phaseValues("current_l1", "current_l2", "current_l3")
}

func (d *Device) phaseValues(names ...string) ([]float64, error) {
	snap := d.poller.Latest()
	if snap == nil {
		return nil, ErrNoSnapshot
	}
	var out []float64
	for _, name := range names {
		v, ok := snap.Float(name)
		if !ok {
			break
		}
		out = append(out, v)
	}
	return out, nil
}

func (d *Device) writeField(name string, v Value) error {
	f, ok := d.regmap.Field(name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownField, name)
	}
	if !f.Writable {
		return fmt.Errorf("%w: %s", ErrFieldNotWritable, name)
	}
	if !f.Available {
		return fmt.Errorf("%w: %s", ErrFieldNotAvailable, name)
	}
	words, err := Encode(f, d.regmap.WordOrder, v)
	if err != nil {
		return err
	}
	return d.session.WriteRegisters(f.Address, words)
}

// SetPower sets the diversion power target in watts. Targets above 65535 W
// need the 32-bit register; small targets keep using the 16-bit one, which
// every firmware supports.
func (d *Device) SetPower(watts uint32) error {
	if watts > math.MaxUint16 {
		return d.writeField(FieldPower32, Number(int64(watts), 1))
	}
	return d.writeField(FieldPower, Number(int64(watts), 1))
}

// SetPowerTimeout sets the watchdog in seconds. When no power target
// arrives within the window, the device falls back on its own.
func (d *Device) SetPowerTimeout(seconds uint16) error {
	return d.writeField(FieldPowerTimeout, Number(int64(seconds), 1))
}

// SetMaxPower caps the output power in watts.
func (d *Device) SetMaxPower(watts uint16) error {
	return d.writeField(FieldMaxPower, Number(int64(watts), 1))
}

func (d *Device) SetBoostMode(mode BoostMode) error {
	return d.writeField(FieldBoostMode, Enum(uint32(mode), mode.String(), true))
}

func (d *Device) SetBoostActive(active bool) error {
	v := int64(0)
	if active {
		v = 1
	}
	return d.writeField(FieldBoostActive, Number(v, 1))
}

// SetHotWaterRange sets the min/max water temperature for the given heating
// unit (1..3). Nil leaves a bound unchanged. The device frontend accepts
// 5.0 to 90.0 degC; anything outside fails with an EncodeError before a
// single register is written.
func (d *Device) SetHotWaterRange(unit int, minTemp, maxTemp *float64) error {
	if unit < 1 || unit > 3 {
		return fmt.Errorf("hot water unit out of range: %d", unit)
	}
	maxField := fmt.Sprintf("hot_water_%d_max", unit)
	minField := fmt.Sprintf("hot_water_%d_min", unit)

	// validate both bounds before writing either
	if err := d.checkWritable(maxField, maxTemp); err != nil {
		return err
	}
	if err := d.checkWritable(minField, minTemp); err != nil {
		return err
	}

	if maxTemp != nil {
		if err := d.writeField(maxField, tempValue(*maxTemp)); err != nil {
			return err
		}
	}
	if minTemp != nil {
		if err := d.writeField(minField, tempValue(*minTemp)); err != nil {
			return err
		}
	}
	return nil
}

func (d *Device) checkWritable(name string, temp *float64) error {
	if temp == nil {
		return nil
	}
	f, ok := d.regmap.Field(name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownField, name)
	}
	if !f.Available {
		return fmt.Errorf("%w: %s", ErrFieldNotAvailable, name)
	}
	_, err := Encode(f, d.regmap.WordOrder, tempValue(*temp))
	return err
}

// tempValue keeps a decimal temperature exact: 52.3 degC becomes 523/10.
func tempValue(degC float64) Value {
	return Number(int64(math.Round(degC*10)), 10)
}
