package acthor_modbus

import (
	"time"
)

// FieldValue is a decoded field inside a snapshot. Valid is false when the
// device's model or firmware does not actually back the register, in which
// case Value is the decoded-but-meaningless raw content.
type FieldValue struct {
	Value Value
	Valid bool
}

// DeviceSnapshot is one complete, immutable poll result. Either every field
// of the register map decoded, or no snapshot was produced at all.
type DeviceSnapshot struct {
	at     time.Time
	values map[string]FieldValue
}

func newSnapshot(at time.Time, values map[string]FieldValue) *DeviceSnapshot {
	return &DeviceSnapshot{at: at, values: values}
}

// At is the time the poll cycle that produced this snapshot completed.
func (s *DeviceSnapshot) At() time.Time {
	return s.at
}

func (s *DeviceSnapshot) Field(name string) (FieldValue, bool) {
	fv, ok := s.values[name]
	return fv, ok
}

// Float returns the field as a float64. ok is false for missing or
// invalid fields.
func (s *DeviceSnapshot) Float(name string) (float64, bool) {
	fv, ok := s.values[name]
	if !ok || !fv.Valid {
		return 0, false
	}
	return fv.Value.Float64(), true
}

// Uint returns the field's raw tag. Meant for enum and bitfield registers.
func (s *DeviceSnapshot) Uint(name string) (uint32, bool) {
	fv, ok := s.values[name]
	if !ok || !fv.Valid {
		return 0, false
	}
	return fv.Value.Tag(), true
}

// ToMap flattens the snapshot for serialization. Invalid fields are left out.
func (s *DeviceSnapshot) ToMap() map[string]any {
	out := make(map[string]any, len(s.values))
	for name, fv := range s.values {
		if !fv.Valid {
			continue
		}
		switch fv.Value.Kind() {
		case KindEnum:
			out[name] = map[string]any{"value": fv.Value.Tag(), "label": fv.Value.Label()}
		case KindBitfield:
			out[name] = fv.Value.Tag()
		default:
			out[name] = fv.Value.Float64()
		}
	}
	return out
}
