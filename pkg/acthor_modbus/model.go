package acthor_modbus

import (
	"fmt"
	"strconv"
	"time"
)

// DeviceModel identifies a supported my-PV device family. The model decides
// which register map variant is loaded.
type DeviceModel int

const (
	ModelUnknown DeviceModel = iota
	ModelACThor
	ModelACThor9s
	ModelACElwaE
	ModelACElwa2
	ModelMyPVMeter
)

func (m DeviceModel) String() string {
	switch m {
	case ModelACThor:
		return "AC-THOR"
	case ModelACThor9s:
		return "AC-THOR 9s"
	case ModelACElwaE:
		return "AC ELWA-E"
	case ModelACElwa2:
		return "AC ELWA 2"
	case ModelMyPVMeter:
		return "my-PV Meter"
	default:
		return "unknown"
	}
}

// my-PV serial numbers start with the five-digit product number, which also
// doubles as the identification code on the UDP discovery protocol.
var serialPrefixModels = map[string]DeviceModel{
	"20100": ModelACThor,
	"20300": ModelACThor9s,
	"20110": ModelMyPVMeter,
	"16124": ModelACElwaE,
	"16150": ModelACElwa2,
}

func deviceModelFromSerial(serial string) DeviceModel {
	if len(serial) < 5 {
		return ModelUnknown
	}
	if m, ok := serialPrefixModels[serial[:5]]; ok {
		return m
	}
	return ModelUnknown
}

// FirmwareVersion is the control firmware version, printed the way the
// device reports it: a0020103 = version 201, sub-version 3.
type FirmwareVersion struct {
	Version uint16
	Sub     uint16
}

func (v FirmwareVersion) String() string {
	return fmt.Sprintf("a%05d%02d", v.Version, v.Sub)
}

// AtLeast reports whether v is the given version or newer.
func (v FirmwareVersion) AtLeast(version, sub uint16) bool {
	if v.Version != version {
		return v.Version > version
	}
	return v.Sub >= sub
}

// Identity is what the device reports about itself on connect. It selects
// the register map and the per-field availability.
type Identity struct {
	Serial   string
	Firmware FirmwareVersion
	Model    DeviceModel
	// DeviceNumber distinguishes devices in multi-unit installations.
	DeviceNumber uint16
}

// StatusCode is the raw device status register. Codes group into coarse
// categories rather than enumerating cleanly.
type StatusCode int

type StatusCategory int

const (
	StatusOff       StatusCategory = 0
	StatusStartUp   StatusCategory = 1
	StatusOperation StatusCategory = 9
	StatusError     StatusCategory = 200
)

func (c StatusCategory) String() string {
	switch c {
	case StatusOff:
		return "off"
	case StatusStartUp:
		return "startup"
	case StatusOperation:
		return "operation"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

func (s StatusCode) Category() StatusCategory {
	switch {
	case s >= StatusCode(StatusError):
		return StatusError
	case s >= StatusCode(StatusOperation):
		return StatusOperation
	case s >= StatusCode(StatusStartUp):
		return StatusStartUp
	default:
		return StatusOff
	}
}

func (s StatusCode) String() string {
	return fmt.Sprintf("%s (%d)", s.Category(), int(s))
}

// BoostMode controls the manual water heating boost.
type BoostMode uint16

const (
	BoostOff     BoostMode = 0
	BoostOn      BoostMode = 1
	BoostRelayOn BoostMode = 3
)

var boostModeLabels = map[uint16]string{
	0: "off",
	1: "on",
	3: "relay_boost_on",
}

func (m BoostMode) String() string {
	return enumString(boostModeLabels, uint16(m))
}

// OperationMode is the configured heating mode of the device.
type OperationMode uint16

const (
	ModeWaterHeating3kW        OperationMode = 1
	ModeWaterHeatingStratified OperationMode = 2
	ModeWaterHeating6kW        OperationMode = 3
	ModeWaterHeatingHeatPump   OperationMode = 4
	ModeWaterAndRoomHeating    OperationMode = 5
	ModeRoomHeating1Circuit    OperationMode = 6
	ModeWaterHeatingPWM        OperationMode = 7
	ModeFrequency              OperationMode = 8
)

var operationModeLabels = map[uint16]string{
	1: "water_heating_3kw",
	2: "water_heating_stratified",
	3: "water_heating_6kw",
	4: "water_heating_heat_pump",
	5: "water_and_room_heating",
	6: "room_heating_1_circuit",
	7: "water_heating_pwm",
	8: "frequency_mode",
}

func (m OperationMode) String() string {
	return enumString(operationModeLabels, uint16(m))
}

// OperationState mirrors the status icon on the device screen.
type OperationState uint16

const (
	OpStandby            OperationState = 0
	OpHeatingWithExcess  OperationState = 1
	OpBoostBackup        OperationState = 2
	OpSetpointReached    OperationState = 3
	OpNoControlSignal    OperationState = 4
	OpRedCrossFlashing   OperationState = 5
)

var operationStateLabels = map[uint16]string{
	0: "standby",
	1: "heating_with_pv_excess",
	2: "boost_backup",
	3: "setpoint_reached",
	4: "no_control_signal",
	5: "red_cross_flashing",
}

func (s OperationState) String() string {
	return enumString(operationStateLabels, uint16(s))
}

// UpdateStatus is the control firmware update progress register.
type UpdateStatus uint16

const (
	UpdateUpToDate        UpdateStatus = 0
	UpdateAvailable       UpdateStatus = 1
	UpdateDownloadIni     UpdateStatus = 2
	UpdateDownloadBin     UpdateStatus = 3
	UpdateDownloadFiles   UpdateStatus = 4
	UpdateInterrupted     UpdateStatus = 5
	UpdateWaitingInstall  UpdateStatus = 10
)

var updateStatusLabels = map[uint16]string{
	0:  "up_to_date",
	1:  "update_available",
	2:  "download_ini",
	3:  "download_bin",
	4:  "download_files",
	5:  "download_interrupted",
	10: "waiting_for_installation",
}

func (s UpdateStatus) Downloading() bool {
	return s == UpdateDownloadIni || s == UpdateDownloadBin || s == UpdateDownloadFiles
}

func (s UpdateStatus) InProgress() bool {
	return s.Downloading() || s == UpdateWaitingInstall
}

func (s UpdateStatus) String() string {
	return enumString(updateStatusLabels, uint16(s))
}

// ControlType is the configured excess-power signal source.
type ControlType uint16

const (
	ControlHTTP              ControlType = 1
	ControlModbusTCP         ControlType = 2
	ControlFroniusAuto       ControlType = 3
	ControlFroniusManual     ControlType = 4
	ControlSMAHomeManager    ControlType = 5
	ControlStecaAuto         ControlType = 6
	ControlVartaAuto         ControlType = 7
	ControlVartaManual       ControlType = 8
	ControlMyPVMeterAuto     ControlType = 9
	ControlMyPVMeterManual   ControlType = 10
	ControlMyPVMeterDirect   ControlType = 11
	ControlModbusRTU         ControlType = 12
	ControlSlave             ControlType = 13
	ControlRCTPowerManual    ControlType = 14
	ControlAdjustableModbus  ControlType = 15
	ControlSMADirectAuto     ControlType = 17
	ControlSMADirectManual   ControlType = 18
	ControlDirectMeterP1     ControlType = 19
	ControlFrequency         ControlType = 20
)

var controlTypeLabels = map[uint16]string{
	1:   "http",
	2:   "modbus_tcp",
	3:   "fronius_auto",
	4:   "fronius_manual",
	5:   "sma_home_manager",
	6:   "steca_auto",
	7:   "varta_auto",
	8:   "varta_manual",
	9:   "my_pv_power_meter_auto",
	10:  "my_pv_power_meter_manual",
	11:  "my_pv_power_meter_direct",
	12:  "modbus_rtu",
	13:  "slave",
	14:  "rct_power_manual",
	15:  "adjustable_modbus_tcp",
	17:  "sma_direct_meter_auto",
	18:  "sma_direct_meter_manual",
	19:  "direct_meter_p1",
	20:  "frequency",
	100: "fronius_sunspec_manual",
	101: "kaco_tl1_tl3_manual",
	102: "kostal_piko_iq_manual",
	103: "kostal_smart_energy_meter_manual",
	104: "mec_electronics_manual",
	105: "solaredge_manual",
	106: "victron_1ph_manual",
	107: "victron_3ph_manual",
	108: "huawei_manual",
	109: "carlo_gavazzi_em24_manual",
	111: "sungrow_manual",
	112: "fronius_gen24_manual",
	113: "good_we_manual",
	200: "huawei_modbus_rtu",
	201: "growatt_modbus_rtu",
	202: "solax_modbus_rtu",
	203: "qcells_modbus_rtu",
	204: "ime_conto_d4_modbus_rtu",
}

func (t ControlType) String() string {
	return enumString(controlTypeLabels, uint16(t))
}

// PowerStage is the packed power stage register of 9s devices:
// bits 0-11 power in watts, bits 12-13 active output, bits 14-15 relays.
type PowerStage uint16

type PowerStageOutput int

const (
	PowerStageOff  PowerStageOutput = 0
	PowerStageOut1 PowerStageOutput = 1
	PowerStageOut2 PowerStageOutput = 2
	PowerStageOut3 PowerStageOutput = 3
)

func (p PowerStage) RelayOut2() bool {
	return p&(1<<14) != 0
}

func (p PowerStage) RelayOut3() bool {
	return p&(1<<15) != 0
}

func (p PowerStage) Output() PowerStageOutput {
	return PowerStageOutput((p >> 12) & 0b11)
}

func (p PowerStage) PowerWatts() int {
	return int(p & 0xFFF)
}

// LoadState is the packed output load register: one bit per output.
type LoadState uint16

func (s LoadState) Out1() bool { return s&0b001 != 0 }
func (s LoadState) Out2() bool { return s&0b010 != 0 }
func (s LoadState) Out3() bool { return s&0b100 != 0 }

// LegionellaSettings groups the legionella protection registers.
type LegionellaSettings struct {
	Enabled      bool
	TemperatureC int
	Interval     time.Duration
	StartHour    int
}

// RoomHeatingSettings groups one room heating circuit's temperature limits.
type RoomHeatingSettings struct {
	MaxTemp      float64
	MinTempDay   float64
	MinTempNight float64
}

func enumString(labels map[uint16]string, tag uint16) string {
	if label, ok := labels[tag]; ok {
		return label
	}
	return "unknown(" + strconv.Itoa(int(tag)) + ")"
}
