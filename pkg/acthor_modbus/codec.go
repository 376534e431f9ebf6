package acthor_modbus

import (
	"fmt"
)

// Encoding describes how a field's raw register words map to a domain value.
type Encoding int

const (
	EncodingU16 Encoding = iota
	EncodingI16
	EncodingU32
	EncodingI32
	EncodingEnum
	EncodingBitfield
)

// Words returns the register word count implied by the encoding.
func (e Encoding) Words() uint16 {
	switch e {
	case EncodingU32, EncodingI32:
		return 2
	default:
		return 1
	}
}

func (e Encoding) signed() bool {
	return e == EncodingI16 || e == EncodingI32
}

func (e Encoding) String() string {
	switch e {
	case EncodingU16:
		return "u16"
	case EncodingI16:
		return "i16"
	case EncodingU32:
		return "u32"
	case EncodingI32:
		return "i32"
	case EncodingEnum:
		return "enum"
	case EncodingBitfield:
		return "bitfield"
	default:
		return fmt.Sprintf("Encoding(%d)", int(e))
	}
}

// WordOrder is the register word order of multi-word fields. Device firmware
// families disagree on this, so it is a RegisterMap property, not a constant.
type WordOrder int

const (
	// HighWordFirst stores the high word at the lower address.
	HighWordFirst WordOrder = iota
	LowWordFirst
)

// Scale is a rational scale factor applied to raw register values:
// value = raw * Num / Den. Rational arithmetic keeps encode/decode
// round trips exact.
type Scale struct {
	Num int64
	Den int64
}

var (
	ScaleNone  = Scale{1, 1}
	ScaleDeci  = Scale{1, 10}
	ScaleMilli = Scale{1, 1000}
)

type ValueKind int

const (
	KindNumber ValueKind = iota
	KindEnum
	KindBitfield
)

// Value is a decoded domain value: an exact rational number, an enum tag or
// a raw bitfield. The zero Value is the number 0.
type Value struct {
	kind  ValueKind
	num   int64
	den   int64
	tag   uint32
	label string
	known bool
}

// Number builds an exact rational value num/den.
func Number(num, den int64) Value {
	if den == 0 {
		den = 1
	}
	if den < 0 {
		num, den = -num, -den
	}
	return Value{kind: KindNumber, num: num, den: den}
}

// Enum builds an enum value. Unknown device tags keep known == false so an
// unrecognized state never aborts a poll cycle.
func Enum(tag uint32, label string, known bool) Value {
	return Value{kind: KindEnum, tag: tag, label: label, known: known}
}

// Bits builds a bitfield value.
func Bits(bits uint32) Value {
	return Value{kind: KindBitfield, tag: bits}
}

func (v Value) Kind() ValueKind {
	return v.kind
}

// Float64 returns the numeric value. Enum and bitfield values convert to
// their raw tag.
func (v Value) Float64() float64 {
	if v.kind != KindNumber {
		return float64(v.tag)
	}
	return float64(v.num) / float64(v.den)
}

// Rat returns the exact rational representation of a number value.
func (v Value) Rat() (num, den int64) {
	if v.kind != KindNumber {
		return int64(v.tag), 1
	}
	return v.num, v.den
}

// Tag returns the raw enum tag or bitfield bits.
func (v Value) Tag() uint32 {
	return v.tag
}

// Label returns the symbolic name of a known enum tag.
func (v Value) Label() string {
	return v.label
}

// Known reports whether an enum tag was declared in the register map.
func (v Value) Known() bool {
	if v.kind != KindEnum {
		return true
	}
	return v.known
}

func (v Value) String() string {
	switch v.kind {
	case KindEnum:
		if v.known {
			return fmt.Sprintf("%s(%d)", v.label, v.tag)
		}
		return fmt.Sprintf("unknown(%d)", v.tag)
	case KindBitfield:
		return fmt.Sprintf("0b%b", v.tag)
	default:
		if v.den == 1 {
			return fmt.Sprintf("%d", v.num)
		}
		return fmt.Sprintf("%g", v.Float64())
	}
}

func composeWords(words []uint16, order WordOrder) uint32 {
	if len(words) == 1 {
		return uint32(words[0])
	}
	if order == LowWordFirst {
		return uint32(words[1])<<16 | uint32(words[0])
	}
	return uint32(words[0])<<16 | uint32(words[1])
}

func splitWords(raw uint32, words uint16, order WordOrder) []uint16 {
	if words == 1 {
		return []uint16{uint16(raw)}
	}
	if order == LowWordFirst {
		return []uint16{uint16(raw), uint16(raw >> 16)}
	}
	return []uint16{uint16(raw >> 16), uint16(raw)}
}

// Decode converts raw register words into the field's domain value. The word
// order comes from the register map the field belongs to.
func Decode(field RegisterField, order WordOrder, words []uint16) (Value, error) {
	if len(words) != int(field.Words) {
		return Value{}, &DecodeError{
			Field:  field.Name,
			Reason: fmt.Sprintf("expected %d register word(s), got %d", field.Words, len(words)),
		}
	}

	raw := composeWords(words, order)

	switch field.Encoding {
	case EncodingU16, EncodingU32:
		return Number(int64(raw)*field.Scale.Num, field.Scale.Den), nil
	case EncodingI16:
		return Number(int64(int16(uint16(raw)))*field.Scale.Num, field.Scale.Den), nil
	case EncodingI32:
		return Number(int64(int32(raw))*field.Scale.Num, field.Scale.Den), nil
	case EncodingEnum:
		label, known := field.Enum[uint16(raw)]
		return Enum(raw, label, known), nil
	case EncodingBitfield:
		return Bits(raw), nil
	default:
		return Value{}, &DecodeError{
			Field:  field.Name,
			Reason: fmt.Sprintf("unsupported encoding %s", field.Encoding),
		}
	}
}

// Encode converts a domain value back into raw register words. Values outside
// the field's declared raw range are rejected before any register is touched.
func Encode(field RegisterField, order WordOrder, v Value) ([]uint16, error) {
	var raw int64

	switch field.Encoding {
	case EncodingEnum, EncodingBitfield:
		raw = int64(v.Tag())
	default:
		num, den := v.Rat()
		// raw = value / scale, must be an integer
		rawNum := num * field.Scale.Den
		rawDen := den * field.Scale.Num
		if rawDen == 0 {
			return nil, &EncodeError{Field: field.Name, Reason: "zero scale"}
		}
		if rawNum%rawDen != 0 {
			return nil, &EncodeError{
				Field:  field.Name,
				Reason: fmt.Sprintf("value %s is not representable at scale %d/%d", v, field.Scale.Num, field.Scale.Den),
			}
		}
		raw = rawNum / rawDen
	}

	lo, hi := field.rawRange()
	if raw < lo || raw > hi {
		return nil, &EncodeError{
			Field:      field.Name,
			Reason:     fmt.Sprintf("raw value %d outside range [%d, %d]", raw, lo, hi),
			OutOfRange: true,
		}
	}

	var bits uint32
	if field.Encoding.signed() {
		if field.Words == 1 {
			bits = uint32(uint16(int16(raw)))
		} else {
			bits = uint32(int32(raw))
		}
	} else {
		bits = uint32(raw)
	}
	return splitWords(bits, field.Words, order), nil
}
