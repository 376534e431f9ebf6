package events

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"

	. "github.com/siku2/acthor2mqtt/internal/domain"
	"github.com/siku2/acthor2mqtt/pkg/acthor_modbus"

	"github.com/carlmjohnson/versioninfo"
)

const (
	SENSOR_ID_BRIDGE_STATE        = "bridge"
	SENSOR_ID_WATER_TEMP          = "water_temperature"
	SENSOR_ID_TEMP_FMT            = "temperature_%d"
	SENSOR_ID_OUTPUT_POWER        = "output_power"
	SENSOR_ID_DEVICE_POWER        = "device_power"
	SENSOR_ID_SOLAR_POWER         = "solar_power"
	SENSOR_ID_GRID_POWER          = "grid_power"
	SENSOR_ID_METER_POWER         = "meter_power"
	SENSOR_ID_OUTPUT_FREQUENCY    = "output_frequency"
	SENSOR_ID_VOLTAGE_FMT         = "voltage_l%d"
	SENSOR_ID_CURRENT_FMT         = "current_l%d"
	SENSOR_ID_STATUS              = "status"
	SENSOR_ID_OPERATION_MODE      = "operation_mode"
	SENSOR_ID_OPERATION_STATE     = "operation_state"
	SWITCH_ID_BOOST               = "boost"
	INPUT_NUMBER_ID_POWER         = "power_target"
	INPUT_NUMBER_ID_HOT_WATER_MAX = "hot_water_max"
	STATE_CLASS_DURATION          = "duration"
	STATE_CLASS_MEASUREMENT       = "measurement"
	STATE_CLASS_TOTAL_INCREASING  = "total_increasing"
	DEVICE_CLASS_CURRENT          = "current"
	DEVICE_CLASS_ENERGY           = "energy"
	DEVICE_CLASS_FREQUENCY        = "frequency"
	DEVICE_CLASS_POWER            = "power"
	DEVICE_CLASS_TEMPERATURE      = "temperature"
	DEVICE_CLASS_VOLTAGE          = "voltage"
	DEVICE_CLASS_CONNECTIVITY     = "connectivity"
	ENTITY_CLASS_DIAGNOSTIC       = "diagnostic"
	ENTITY_CLASS_CONFIG           = "config"
	SENSOR_TYPE_SENSOR            = "sensor"
	SENSOR_TYPE_BINARY            = "binary_sensor"
	INPUT_NUMBER_MODE_BOX         = "box"
	INPUT_NUMBER_MODE_SLIDER      = "slider"
)

func BridgeDevice(baseTopic string) Device {
	return Device{
		Id:           fmt.Sprintf("acthor2mqtt_bridge_%s", md5HashShort(baseTopic)),
		Manufacturer: "siku2",
		Model:        "ACThor2MQTT",
		Version:      versioninfo.Short(),
		Name:         fmt.Sprintf("ACThor2MQTT %s", md5HashShort(baseTopic)),
	}
}

func ActhorDevice(id *acthor_modbus.Identity) Device {
	return Device{
		Id:           fmt.Sprintf("a2m_acthor_%s", md5HashShort(id.Serial)),
		Version:      id.Firmware.String(),
		Manufacturer: "my-PV",
		Model:        id.Model.String(),
		Name:         fmt.Sprintf("my-PV %s %s", id.Model, md5HashShort(id.Serial)),
	}
}

func IdDevice(device Device) Device {
	return Device{
		Id:   device.Id,
		Name: device.Name,
	}
}

func ActhorBaseSensors(acthorDevice Device, regmap *acthor_modbus.RegisterMap) []GenericSensor {

	var sensors []GenericSensor

	// Water Temperature
	sensors = append(sensors, GenericSensor{
		Device:            acthorDevice,
		Id:                SENSOR_ID_WATER_TEMP,
		SensorType:        SENSOR_TYPE_SENSOR,
		Name:              "Water temperature",
		StateClass:        STATE_CLASS_MEASUREMENT,
		DeviceClass:       DEVICE_CLASS_TEMPERATURE,
		UnitOfMeasurement: "°C",
		UniqueId:          uniqueId(acthorDevice.Id, SENSOR_ID_WATER_TEMP),
	})

	// Extra temperature sensors
	for i := 2; i <= 8; i++ {
		if !hasField(regmap, fmt.Sprintf("temp_%d", i)) {
			continue
		}
		id := fmt.Sprintf(SENSOR_ID_TEMP_FMT, i)
		sensors = append(sensors, GenericSensor{
			Device:            acthorDevice,
			Id:                id,
			SensorType:        SENSOR_TYPE_SENSOR,
			Name:              fmt.Sprintf("Temperature sensor %d", i),
			StateClass:        STATE_CLASS_MEASUREMENT,
			DeviceClass:       DEVICE_CLASS_TEMPERATURE,
			UnitOfMeasurement: "°C",
			EnabledByDefault:  optionalBool(false),
			UniqueId:          uniqueId(acthorDevice.Id, id),
		})
	}

	// Output Power
	sensors = append(sensors, GenericSensor{
		Device:            acthorDevice,
		Id:                SENSOR_ID_OUTPUT_POWER,
		SensorType:        SENSOR_TYPE_SENSOR,
		Name:              "Output power",
		StateClass:        STATE_CLASS_MEASUREMENT,
		DeviceClass:       DEVICE_CLASS_POWER,
		UnitOfMeasurement: "W",
		UniqueId:          uniqueId(acthorDevice.Id, SENSOR_ID_OUTPUT_POWER),
	})

	// Device Power
	if hasField(regmap, acthor_modbus.FieldDevicePower) {
		sensors = append(sensors, GenericSensor{
			Device:            acthorDevice,
			Id:                SENSOR_ID_DEVICE_POWER,
			SensorType:        SENSOR_TYPE_SENSOR,
			Name:              "Device power",
			StateClass:        STATE_CLASS_MEASUREMENT,
			DeviceClass:       DEVICE_CLASS_POWER,
			UnitOfMeasurement: "W",
			UniqueId:          uniqueId(acthorDevice.Id, SENSOR_ID_DEVICE_POWER),
		})
	}

	// Solar Power
	if hasField(regmap, acthor_modbus.FieldSolarPower) {
		sensors = append(sensors, GenericSensor{
			Device:            acthorDevice,
			Id:                SENSOR_ID_SOLAR_POWER,
			SensorType:        SENSOR_TYPE_SENSOR,
			Name:              "Solar power",
			StateClass:        STATE_CLASS_MEASUREMENT,
			DeviceClass:       DEVICE_CLASS_POWER,
			UnitOfMeasurement: "W",
			Icon:              "mdi:solar-power",
			UniqueId:          uniqueId(acthorDevice.Id, SENSOR_ID_SOLAR_POWER),
		})
	}

	// Grid Power
	if hasField(regmap, acthor_modbus.FieldGridPower) {
		sensors = append(sensors, GenericSensor{
			Device:            acthorDevice,
			Id:                SENSOR_ID_GRID_POWER,
			SensorType:        SENSOR_TYPE_SENSOR,
			Name:              "Grid power",
			StateClass:        STATE_CLASS_MEASUREMENT,
			DeviceClass:       DEVICE_CLASS_POWER,
			UnitOfMeasurement: "W",
			Icon:              "mdi:transmission-tower",
			UniqueId:          uniqueId(acthorDevice.Id, SENSOR_ID_GRID_POWER),
		})
	}

	// Meter Power
	sensors = append(sensors, GenericSensor{
		Device:            acthorDevice,
		Id:                SENSOR_ID_METER_POWER,
		SensorType:        SENSOR_TYPE_SENSOR,
		Name:              "Meter power",
		StateClass:        STATE_CLASS_MEASUREMENT,
		DeviceClass:       DEVICE_CLASS_POWER,
		UnitOfMeasurement: "W",
		UniqueId:          uniqueId(acthorDevice.Id, SENSOR_ID_METER_POWER),
	})

	// Output Frequency
	sensors = append(sensors, GenericSensor{
		Device:            acthorDevice,
		Id:                SENSOR_ID_OUTPUT_FREQUENCY,
		SensorType:        SENSOR_TYPE_SENSOR,
		Name:              "Output frequency",
		StateClass:        STATE_CLASS_MEASUREMENT,
		DeviceClass:       DEVICE_CLASS_FREQUENCY,
		UnitOfMeasurement: "Hz",
		Icon:              "mdi:sine-wave",
		EnabledByDefault:  optionalBool(false),
		UniqueId:          uniqueId(acthorDevice.Id, SENSOR_ID_OUTPUT_FREQUENCY),
	})

	// Per-phase voltage and current
	for phase := 1; phase <= 3; phase++ {
		if !hasField(regmap, fmt.Sprintf("voltage_l%d", phase)) {
			continue
		}
		voltageId := fmt.Sprintf(SENSOR_ID_VOLTAGE_FMT, phase)
		sensors = append(sensors, GenericSensor{
			Device:            acthorDevice,
			Id:                voltageId,
			SensorType:        SENSOR_TYPE_SENSOR,
			Name:              fmt.Sprintf("Voltage L%d", phase),
			StateClass:        STATE_CLASS_MEASUREMENT,
			DeviceClass:       DEVICE_CLASS_VOLTAGE,
			UnitOfMeasurement: "V",
			EnabledByDefault:  optionalBool(false),
			UniqueId:          uniqueId(acthorDevice.Id, voltageId),
		})
		currentId := fmt.Sprintf(SENSOR_ID_CURRENT_FMT, phase)
		sensors = append(sensors, GenericSensor{
			Device:            acthorDevice,
			Id:                currentId,
			SensorType:        SENSOR_TYPE_SENSOR,
			Name:              fmt.Sprintf("Current L%d", phase),
			StateClass:        STATE_CLASS_MEASUREMENT,
			DeviceClass:       DEVICE_CLASS_CURRENT,
			UnitOfMeasurement: "A",
			EnabledByDefault:  optionalBool(false),
			UniqueId:          uniqueId(acthorDevice.Id, currentId),
		})
	}

	// Status
	sensors = append(sensors, GenericSensor{
		Device:     acthorDevice,
		Id:         SENSOR_ID_STATUS,
		SensorType: SENSOR_TYPE_SENSOR,
		Name:       "Status",
		UniqueId:   uniqueId(acthorDevice.Id, SENSOR_ID_STATUS),
	})

	// Operation Mode
	sensors = append(sensors, GenericSensor{
		Device:         acthorDevice,
		Id:             SENSOR_ID_OPERATION_MODE,
		SensorType:     SENSOR_TYPE_SENSOR,
		Name:           "Operation mode",
		EntityCategory: ENTITY_CLASS_DIAGNOSTIC,
		UniqueId:       uniqueId(acthorDevice.Id, SENSOR_ID_OPERATION_MODE),
	})

	// Operation State
	sensors = append(sensors, GenericSensor{
		Device:     acthorDevice,
		Id:         SENSOR_ID_OPERATION_STATE,
		SensorType: SENSOR_TYPE_SENSOR,
		Name:       "Operation state",
		UniqueId:   uniqueId(acthorDevice.Id, SENSOR_ID_OPERATION_STATE),
	})

	return sensors
}

func BridgeSensors(bridgeDevice Device) []GenericSensor {

	var sensors []GenericSensor

	// Bridge connection state
	sensors = append(sensors, GenericSensor{
		Device:         bridgeDevice,
		Id:             SENSOR_ID_BRIDGE_STATE,
		SensorType:     SENSOR_TYPE_BINARY,
		Name:           "Connection state",
		DeviceClass:    DEVICE_CLASS_CONNECTIVITY,
		EntityCategory: ENTITY_CLASS_DIAGNOSTIC,
		UniqueId:       uniqueId(bridgeDevice.Id, SENSOR_ID_BRIDGE_STATE),
	})

	return sensors
}

func ActhorSwitches(acthorDevice Device) []GenericSwitch {

	var switches []GenericSwitch

	// Boost
	switches = append(switches, GenericSwitch{
		Device:   acthorDevice,
		Id:       SWITCH_ID_BOOST,
		Name:     "Boost",
		UniqueId: uniqueId(acthorDevice.Id, SWITCH_ID_BOOST),
		Icon:     "mdi:heat-wave",
	})

	return switches
}

func ActhorInputNumbers(acthorDevice Device, regmap *acthor_modbus.RegisterMap) []GenericInputNumber {

	var inputNumbers []GenericInputNumber

	// Power target
	maxPower := float64(3000)
	if f, ok := regmap.Field(acthor_modbus.FieldMaxPower); ok && f.Max != 0 {
		maxPower = float64(f.Max)
	}
	inputNumbers = append(inputNumbers, GenericInputNumber{
		Device:       acthorDevice,
		Id:           INPUT_NUMBER_ID_POWER,
		Name:         "Power target",
		UniqueId:     uniqueId(acthorDevice.Id, INPUT_NUMBER_ID_POWER),
		Icon:         "mdi:lightning-bolt",
		Max:          maxPower,
		Min:          0,
		Step:         50,
		Mode:         INPUT_NUMBER_MODE_BOX,
		InitialValue: 0,
	})

	// Hot water maximum temperature
	inputNumbers = append(inputNumbers, GenericInputNumber{
		Device:       acthorDevice,
		Id:           INPUT_NUMBER_ID_HOT_WATER_MAX,
		Name:         "Hot water maximum temperature",
		UniqueId:     uniqueId(acthorDevice.Id, INPUT_NUMBER_ID_HOT_WATER_MAX),
		Icon:         "mdi:thermometer-water",
		Max:          90,
		Min:          5,
		Step:         0.5,
		Mode:         INPUT_NUMBER_MODE_BOX,
		InitialValue: 60,
	})

	return inputNumbers
}

func hasField(regmap *acthor_modbus.RegisterMap, name string) bool {
	f, ok := regmap.Field(name)
	return ok && f.Available
}

func uniqueId(baseId, id string) string {
	return fmt.Sprintf("uid_%s_%s", baseId, id)
}

func md5Hash(text string) string {
	hash := md5.Sum([]byte(text))
	return hex.EncodeToString(hash[:])
}

func md5HashShort(text string) string {
	hash := md5Hash(text)
	return hash[0:8]
}

func optionalBool(value bool) *bool {
	return &value
}
