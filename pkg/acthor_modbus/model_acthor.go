package acthor_modbus

import (
	"strings"
)

// Logical field names used by the Device facade. The full table below
// declares every holding register of the AC-THOR block 1000-1088.
const (
	FieldPower           = "power"
	FieldPower32         = "power_32"
	FieldStatusCode      = "status_code"
	FieldPowerTimeout    = "power_timeout"
	FieldBoostMode       = "boost_mode"
	FieldBoostActive     = "boost_active"
	FieldMaxPower        = "max_power"
	FieldMaxPowerAbs     = "max_power_abs"
	FieldMeterPower      = "meter_power"
	FieldMeterPower32    = "meter_power_32"
	FieldOperationMode   = "operation_mode"
	FieldOperationState  = "operation_state"
	FieldControlType     = "control_type"
	FieldFrequency       = "frequency"
	FieldLoadState       = "load_state"
	FieldPowerStage      = "power_stage"
	FieldDeviceState     = "device_state"
	FieldDevicePower     = "device_power"
	FieldSolarPower      = "solar_power"
	FieldGridPower       = "grid_power"
	FieldPWMOut          = "pwm_out"
	FieldNightFlag       = "night_flag"
	FieldRelay1State     = "relay_1_state"
	FieldUpdateStatus    = "fw_update_status"
)

func field(name string, addr uint16, enc Encoding, scale Scale, unit string) RegisterField {
	return RegisterField{
		Name:      name,
		Address:   addr,
		Words:     enc.Words(),
		Encoding:  enc,
		Scale:     scale,
		Unit:      unit,
		Available: true,
	}
}

func (f RegisterField) writable() RegisterField {
	f.Writable = true
	return f
}

func (f RegisterField) bounded(min, max int64) RegisterField {
	f.Min, f.Max = min, max
	return f
}

func (f RegisterField) labels(enum map[uint16]string) RegisterField {
	f.Enum = enum
	return f
}

// Hot water temperature limits accepted by the device frontend, in raw
// tenths of a degree.
const (
	hotWaterRawMin = 50  // 5.0 degC
	hotWaterRawMax = 900 // 90.0 degC
)

// acthorFields is the AC-THOR holding register table (block 1000-1088).
// Registers 1018-1025 hold the serial number and belong to the identity
// span, not the polled map. 1066, 1079 and 1086 are reserved.
func acthorFields() []RegisterField {
	deci, none := ScaleDeci, ScaleNone
	return []RegisterField{
		field(FieldPower, 1000, EncodingU16, none, "W").writable(),
		field("temp_1", 1001, EncodingU16, deci, "degC"),
		field("hot_water_1_max", 1002, EncodingU16, deci, "degC").writable().bounded(hotWaterRawMin, hotWaterRawMax),
		field(FieldStatusCode, 1003, EncodingU16, none, ""),
		field(FieldPowerTimeout, 1004, EncodingU16, none, "s").writable(),
		field(FieldBoostMode, 1005, EncodingEnum, none, "").writable().labels(boostModeLabels),
		field("hot_water_1_min", 1006, EncodingU16, deci, "degC").writable().bounded(hotWaterRawMin, hotWaterRawMax),
		field("boost_time_1_start", 1007, EncodingU16, none, "h").writable().bounded(0, 23),
		field("boost_time_1_stop", 1008, EncodingU16, none, "h").writable().bounded(0, 24),
		field("hour", 1009, EncodingU16, none, "h").bounded(0, 23),
		field("minute", 1010, EncodingU16, none, "min").bounded(0, 59),
		field("second", 1011, EncodingU16, none, "s").bounded(0, 59),
		field(FieldBoostActive, 1012, EncodingU16, none, "").writable().bounded(0, 1),
		field("device_number", 1013, EncodingU16, none, ""),
		field(FieldMaxPower, 1014, EncodingU16, none, "W").writable(),
		field("temp_chip", 1015, EncodingU16, deci, "degC"),
		field("control_fw_version", 1016, EncodingU16, none, ""),
		field("ps_fw_version", 1017, EncodingU16, none, ""),
		field("boost_time_2_start", 1026, EncodingU16, none, "h").writable().bounded(0, 23),
		field("boost_time_2_stop", 1027, EncodingU16, none, "h").writable().bounded(0, 24),
		field("control_fw_subversion", 1028, EncodingU16, none, ""),
		field(FieldUpdateStatus, 1029, EncodingEnum, none, "").labels(updateStatusLabels),
		field("temp_2", 1030, EncodingU16, deci, "degC"),
		field("temp_3", 1031, EncodingU16, deci, "degC"),
		field("temp_4", 1032, EncodingU16, deci, "degC"),
		field("temp_5", 1033, EncodingU16, deci, "degC"),
		field("temp_6", 1034, EncodingU16, deci, "degC"),
		field("temp_7", 1035, EncodingU16, deci, "degC"),
		field("temp_8", 1036, EncodingU16, deci, "degC"),
		field("hot_water_2_max", 1037, EncodingU16, deci, "degC").writable().bounded(hotWaterRawMin, hotWaterRawMax),
		field("hot_water_3_max", 1038, EncodingU16, deci, "degC").writable().bounded(hotWaterRawMin, hotWaterRawMax),
		field("hot_water_2_min", 1039, EncodingU16, deci, "degC").writable().bounded(hotWaterRawMin, hotWaterRawMax),
		field("hot_water_3_min", 1040, EncodingU16, deci, "degC").writable().bounded(hotWaterRawMin, hotWaterRawMax),
		field("room_heating_1_max", 1041, EncodingU16, deci, "degC").writable(),
		field("room_heating_2_max", 1042, EncodingU16, deci, "degC").writable(),
		field("room_heating_3_max", 1043, EncodingU16, deci, "degC").writable(),
		field("room_heating_1_min_day", 1044, EncodingU16, deci, "degC").writable(),
		field("room_heating_2_min_day", 1045, EncodingU16, deci, "degC").writable(),
		field("room_heating_3_min_day", 1046, EncodingU16, deci, "degC").writable(),
		field("room_heating_1_min_night", 1047, EncodingU16, deci, "degC").writable(),
		field("room_heating_2_min_night", 1048, EncodingU16, deci, "degC").writable(),
		field("room_heating_3_min_night", 1049, EncodingU16, deci, "degC").writable(),
		field(FieldNightFlag, 1050, EncodingU16, none, "").bounded(0, 1),
		field("utc_offset", 1051, EncodingU16, none, ""),
		field("dst_active", 1052, EncodingU16, none, "").bounded(0, 1),
		field("legionella_interval", 1053, EncodingU16, none, "d").writable(),
		field("legionella_start_hour", 1054, EncodingU16, none, "h").writable().bounded(0, 23),
		field("legionella_temp", 1055, EncodingU16, none, "degC").writable(),
		field("legionella_enabled", 1056, EncodingU16, none, "").writable().bounded(0, 1),
		field("stratification_flag", 1057, EncodingU16, none, "").bounded(0, 1),
		field(FieldRelay1State, 1058, EncodingU16, none, "").bounded(0, 1),
		field(FieldLoadState, 1059, EncodingBitfield, none, ""),
		field("load_nominal_power", 1060, EncodingU16, none, "W"),
		field("voltage_l1", 1061, EncodingU16, none, "V"),
		field("current_l1", 1062, EncodingU16, deci, "A"),
		field("output_voltage", 1063, EncodingU16, none, "V"),
		// the register stores millihertz
		field(FieldFrequency, 1064, EncodingU16, ScaleMilli, "Hz"),
		field(FieldOperationMode, 1065, EncodingEnum, none, "").labels(operationModeLabels),
		field("voltage_l2", 1067, EncodingU16, none, "V"),
		field("current_l2", 1068, EncodingU16, deci, "A"),
		field(FieldMeterPower, 1069, EncodingI16, none, "W"),
		field(FieldControlType, 1070, EncodingEnum, none, "").labels(controlTypeLabels),
		field(FieldMaxPowerAbs, 1071, EncodingU16, none, "W"),
		field("voltage_l3", 1072, EncodingU16, none, "V"),
		field("current_l3", 1073, EncodingU16, deci, "A"),
		field("power_out_1", 1074, EncodingU16, none, "W"),
		field("power_out_2", 1075, EncodingU16, none, "W"),
		field("power_out_3", 1076, EncodingU16, none, "W"),
		field(FieldOperationState, 1077, EncodingEnum, none, "").labels(operationStateLabels),
		field(FieldPower32, 1078, EncodingU32, none, "W").writable(),
		field(FieldPowerStage, 1080, EncodingBitfield, none, ""),
		field(FieldDeviceState, 1081, EncodingU16, none, "").bounded(0, 1),
		field(FieldDevicePower, 1082, EncodingU16, none, "W"),
		field(FieldSolarPower, 1083, EncodingU16, none, "W"),
		field(FieldGridPower, 1084, EncodingU16, none, "W"),
		field(FieldPWMOut, 1085, EncodingU16, none, "%").bounded(0, 100),
		field(FieldMeterPower32, 1087, EncodingI32, none, "W"),
	}
}

// identitySpan covers device number, control firmware version and serial
// number. It is read once on connect to select the register map.
var identitySpan = Span{Address: 1013, Count: 16}

func parseIdentity(words []uint16) Identity {
	var sb strings.Builder
	for _, w := range words[5:13] { // registers 1018-1025
		sb.WriteByte(byte(w >> 8))
		sb.WriteByte(byte(w))
	}
	serial := strings.TrimRight(sb.String(), "\x00 ")
	return Identity{
		Serial: serial,
		Firmware: FirmwareVersion{
			Version: words[3],  // register 1016
			Sub:     words[15], // register 1028
		},
		Model:        deviceModelFromSerial(serial),
		DeviceNumber: words[0], // register 1013
	}
}

// deviceFeatures gates field availability by model and firmware generation.
// Fields stay in the map so they still decode, but their snapshot validity
// bit is cleared.
type deviceFeatures struct {
	temperatureSensors int
	waterHeatingUnits  int
	threePhase         bool
	powerOutputs       bool
	powerStage         bool
	maxPowerAbs        bool
	devicePowers       bool
	pwmOut             bool
	meterPower32       bool
	readableRegisters  uint16
}

func featuresFor(id Identity) deviceFeatures {
	is9s := id.Model == ModelACThor9s
	readable := uint16(89)
	// fw a00101xx devices expose 81 registers (1000-1080) even though the
	// datasheet promises 89
	if id.Firmware.Version == 101 {
		readable = 81
	}
	return deviceFeatures{
		// the datasheet marks sensors 5-8 and hot water units 2-3 as
		// "not available"
		temperatureSensors: 4,
		waterHeatingUnits:  1,
		threePhase:         is9s,
		powerOutputs:       is9s,
		powerStage:         is9s,
		maxPowerAbs:        id.Firmware.AtLeast(102, 5),
		devicePowers:       id.Firmware.AtLeast(203, 3),
		pwmOut:             id.Firmware.AtLeast(205, 0),
		meterPower32:       id.Firmware.AtLeast(210, 2),
		readableRegisters:  readable,
	}
}

func (ft deviceFeatures) available(f RegisterField) bool {
	switch f.Name {
	case "temp_5", "temp_6", "temp_7", "temp_8":
		return ft.temperatureSensors >= 8
	case "hot_water_2_max", "hot_water_2_min":
		return ft.waterHeatingUnits >= 2
	case "hot_water_3_max", "hot_water_3_min":
		return ft.waterHeatingUnits >= 3
	case "voltage_l2", "voltage_l3", "current_l2", "current_l3":
		return ft.threePhase
	case "power_out_1", "power_out_2", "power_out_3":
		return ft.powerOutputs
	case FieldPowerStage:
		return ft.powerStage
	case FieldMaxPowerAbs:
		return ft.maxPowerAbs
	case FieldDevicePower, FieldSolarPower, FieldGridPower:
		return ft.devicePowers
	case FieldPWMOut:
		return ft.pwmOut
	case FieldMeterPower32:
		return ft.meterPower32
	case FieldDeviceState:
		return ft.readableRegisters >= 82
	default:
		return true
	}
}

// RegisterMapForIdentity builds the register map variant for the device that
// reported the given identity. Unsupported models fail here, at construction
// time, never mid-poll.
func RegisterMapForIdentity(id Identity) (*RegisterMap, error) {
	switch id.Model {
	case ModelACThor, ModelACThor9s:
	default:
		return nil, &UnknownDeviceModelError{Serial: id.Serial}
	}

	ft := featuresFor(id)
	var fields []RegisterField
	for _, f := range acthorFields() {
		if f.end() > 1000+ft.readableRegisters {
			// register beyond what this firmware exposes; reading it
			// would fault the whole span
			continue
		}
		f.Available = ft.available(f)
		fields = append(fields, f)
	}
	// AC-THOR firmware stores the high word at the lower address
	return newRegisterMap(id.Model, HighWordFirst, fields)
}
