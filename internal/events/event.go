package events

import (
	"fmt"

	. "github.com/siku2/acthor2mqtt/internal/domain"
	"github.com/siku2/acthor2mqtt/pkg/acthor_modbus"
)

// SnapshotToUpdateEvents maps a device snapshot to the sensor update events
// published on the event stream. Fields missing from the snapshot, or marked
// invalid on this device variant, produce no event.
func SnapshotToUpdateEvents(snap *acthor_modbus.DeviceSnapshot) []any {
	var events []any

	// Water Temperature
	if v, ok := snap.Float("temp_1"); ok {
		events = append(events, FloatSensorUpdateEvent{
			SensorUpdateEventMixIn: SensorUpdateEventMixIn{
				Id: SENSOR_ID_WATER_TEMP,
			},
			Value:    v,
			Decimals: 1,
		})
	}
	// Extra temperature sensors
	for i := 2; i <= 8; i++ {
		if v, ok := snap.Float(fmt.Sprintf("temp_%d", i)); ok {
			events = append(events, FloatSensorUpdateEvent{
				SensorUpdateEventMixIn: SensorUpdateEventMixIn{
					Id: fmt.Sprintf(SENSOR_ID_TEMP_FMT, i),
				},
				Value:    v,
				Decimals: 1,
			})
		}
	}
	// Output Power
	if v, ok := snap.Float(acthor_modbus.FieldPower32); ok {
		events = append(events, FloatSensorUpdateEvent{
			SensorUpdateEventMixIn: SensorUpdateEventMixIn{
				Id: SENSOR_ID_OUTPUT_POWER,
			},
			Value:    v,
			Decimals: 0,
		})
	} else if v, ok := snap.Float(acthor_modbus.FieldPower); ok {
		events = append(events, FloatSensorUpdateEvent{
			SensorUpdateEventMixIn: SensorUpdateEventMixIn{
				Id: SENSOR_ID_OUTPUT_POWER,
			},
			Value:    v,
			Decimals: 0,
		})
	}
	// Device Power
	if v, ok := snap.Float(acthor_modbus.FieldDevicePower); ok {
		events = append(events, FloatSensorUpdateEvent{
			SensorUpdateEventMixIn: SensorUpdateEventMixIn{
				Id: SENSOR_ID_DEVICE_POWER,
			},
			Value:    v,
			Decimals: 0,
		})
	}
	// Solar Power
	if v, ok := snap.Float(acthor_modbus.FieldSolarPower); ok {
		events = append(events, FloatSensorUpdateEvent{
			SensorUpdateEventMixIn: SensorUpdateEventMixIn{
				Id: SENSOR_ID_SOLAR_POWER,
			},
			Value:    v,
			Decimals: 0,
		})
	}
	// Grid Power
	if v, ok := snap.Float(acthor_modbus.FieldGridPower); ok {
		events = append(events, FloatSensorUpdateEvent{
			SensorUpdateEventMixIn: SensorUpdateEventMixIn{
				Id: SENSOR_ID_GRID_POWER,
			},
			Value:    v,
			Decimals: 0,
		})
	}
	// Meter Power
	if v, ok := snap.Float(acthor_modbus.FieldMeterPower32); ok {
		events = append(events, FloatSensorUpdateEvent{
			SensorUpdateEventMixIn: SensorUpdateEventMixIn{
				Id: SENSOR_ID_METER_POWER,
			},
			Value:    v,
			Decimals: 0,
		})
	} else if v, ok := snap.Float(acthor_modbus.FieldMeterPower); ok {
		events = append(events, FloatSensorUpdateEvent{
			SensorUpdateEventMixIn: SensorUpdateEventMixIn{
				Id: SENSOR_ID_METER_POWER,
			},
			Value:    v,
			Decimals: 0,
		})
	}
	// Output Frequency
	if v, ok := snap.Float(acthor_modbus.FieldFrequency); ok {
		events = append(events, FloatSensorUpdateEvent{
			SensorUpdateEventMixIn: SensorUpdateEventMixIn{
				Id: SENSOR_ID_OUTPUT_FREQUENCY,
			},
			Value:    v,
			Decimals: 3,
		})
	}
	// Per-phase voltage and current
	for phase := 1; phase <= 3; phase++ {
		if v, ok := snap.Float(fmt.Sprintf("voltage_l%d", phase)); ok {
			events = append(events, FloatSensorUpdateEvent{
				SensorUpdateEventMixIn: SensorUpdateEventMixIn{
					Id: fmt.Sprintf(SENSOR_ID_VOLTAGE_FMT, phase),
				},
				Value:    v,
				Decimals: 0,
			})
		}
		if v, ok := snap.Float(fmt.Sprintf("current_l%d", phase)); ok {
			events = append(events, FloatSensorUpdateEvent{
				SensorUpdateEventMixIn: SensorUpdateEventMixIn{
					Id: fmt.Sprintf(SENSOR_ID_CURRENT_FMT, phase),
				},
				Value:    v,
				Decimals: 1,
			})
		}
	}
	// Status
	if v, ok := snap.Uint(acthor_modbus.FieldStatusCode); ok {
		events = append(events, TextSensorUpdateEvent{
			SensorUpdateEventMixIn: SensorUpdateEventMixIn{
				Id: SENSOR_ID_STATUS,
			},
			Value: acthor_modbus.StatusCode(v).Category().String(),
		})
	}
	// Operation Mode
	if fv, ok := snap.Field(acthor_modbus.FieldOperationMode); ok && fv.Valid {
		events = append(events, TextSensorUpdateEvent{
			SensorUpdateEventMixIn: SensorUpdateEventMixIn{
				Id: SENSOR_ID_OPERATION_MODE,
			},
			Value: fv.Value.Label(),
		})
	}
	// Operation State
	if fv, ok := snap.Field(acthor_modbus.FieldOperationState); ok && fv.Valid {
		events = append(events, TextSensorUpdateEvent{
			SensorUpdateEventMixIn: SensorUpdateEventMixIn{
				Id: SENSOR_ID_OPERATION_STATE,
			},
			Value: fv.Value.Label(),
		})
	}
	// Boost switch state
	if v, ok := snap.Uint(acthor_modbus.FieldBoostActive); ok {
		events = append(events, SwitchSensorUpdateEvent{
			SensorUpdateEventMixIn: SensorUpdateEventMixIn{
				Id: SWITCH_ID_BOOST,
			},
			Value: v != 0,
		})
	}
	return events
}

func BoostSwitchUpdateEvent(on bool) any {
	return SwitchSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: SWITCH_ID_BOOST,
		},
		Value: on,
	}
}

func PowerTargetUpdateEvent(watts uint32) any {
	return InputNumberSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: INPUT_NUMBER_ID_POWER,
		},
		Value: float64(watts),
	}
}

func HotWaterMaxUpdateEvent(temperature float64) any {
	return InputNumberSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: INPUT_NUMBER_ID_HOT_WATER_MAX,
		},
		Value:    temperature,
		Decimals: 1,
	}
}
