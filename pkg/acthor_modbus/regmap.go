package acthor_modbus

import (
	"fmt"
	"math"
	"sort"
)

// MaxSpanWords caps a single read request. Modbus allows up to 125 holding
// registers per read, the AC-THOR gateway behaves better with smaller spans.
const MaxSpanWords uint16 = 64

// RegisterField is the static descriptor of one logical device field.
type RegisterField struct {
	Name     string
	Address  uint16
	Words    uint16
	Encoding Encoding
	Scale    Scale
	Unit     string
	// Min/Max bound the raw (pre-scale) value range. Both zero means the
	// full range of the encoding.
	Min, Max int64
	Enum     map[uint16]string
	Writable bool
	// Alias marks a field that intentionally shares registers with another
	// field. Overlap validation skips aliased fields.
	Alias bool
	// Available is false when the field decodes but is not meaningful on
	// this device variant. Snapshots keep the per-field validity bit.
	Available bool
}

func (f RegisterField) rawRange() (int64, int64) {
	if f.Min != 0 || f.Max != 0 {
		return f.Min, f.Max
	}
	switch f.Encoding {
	case EncodingI16:
		return math.MinInt16, math.MaxInt16
	case EncodingI32:
		return math.MinInt32, math.MaxInt32
	case EncodingU32:
		return 0, math.MaxUint32
	case EncodingBitfield:
		if f.Words == 2 {
			return 0, math.MaxUint32
		}
		return 0, math.MaxUint16
	default:
		return 0, math.MaxUint16
	}
}

func (f RegisterField) end() uint16 {
	return f.Address + f.Words
}

// Span is a contiguous range of register addresses read in one request.
type Span struct {
	Address uint16
	Count   uint16
}

func (s Span) contains(f RegisterField) bool {
	return f.Address >= s.Address && f.end() <= s.Address+s.Count
}

// slice extracts the field's words from the span's raw read result.
func (s Span) slice(words []uint16, f RegisterField) []uint16 {
	off := f.Address - s.Address
	return words[off : off+f.Words]
}

// RegisterMap is the immutable per-device-model field table. The word order
// of multi-word fields is a map property because firmware families disagree.
type RegisterMap struct {
	Model     DeviceModel
	WordOrder WordOrder

	fields []RegisterField
	index  map[string]int
}

func newRegisterMap(model DeviceModel, order WordOrder, fields []RegisterField) (*RegisterMap, error) {
	sorted := make([]RegisterField, len(fields))
	copy(sorted, fields)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Address < sorted[j].Address
	})

	index := make(map[string]int, len(sorted))
	for i, f := range sorted {
		if f.Words != f.Encoding.Words() {
			return nil, fmt.Errorf("register map %s: field %s: %d word(s) do not match encoding %s",
				model, f.Name, f.Words, f.Encoding)
		}
		if _, dup := index[f.Name]; dup {
			return nil, fmt.Errorf("register map %s: duplicate field %s", model, f.Name)
		}
		index[f.Name] = i
		if i > 0 {
			prev := sorted[i-1]
			if f.Address < prev.end() && !f.Alias && !prev.Alias {
				return nil, fmt.Errorf("register map %s: field %s overlaps %s at address %d",
					model, f.Name, prev.Name, f.Address)
			}
		}
	}

	return &RegisterMap{
		Model:     model,
		WordOrder: order,
		fields:    sorted,
		index:     index,
	}, nil
}

// Field looks up a field descriptor by its logical name.
func (m *RegisterMap) Field(name string) (RegisterField, bool) {
	i, ok := m.index[name]
	if !ok {
		return RegisterField{}, false
	}
	return m.fields[i], true
}

// Fields returns all fields in ascending address order.
func (m *RegisterMap) Fields() []RegisterField {
	out := make([]RegisterField, len(m.fields))
	copy(out, m.fields)
	return out
}

// CoalesceReads merges the fields' register ranges into the minimal set of
// contiguous spans, each capped at maxSpan words. Fields are merged in
// ascending address order, which makes the result deterministic.
func (m *RegisterMap) CoalesceReads(fields []RegisterField, maxSpan uint16) []Span {
	if maxSpan == 0 {
		maxSpan = MaxSpanWords
	}
	if len(fields) == 0 {
		return nil
	}

	sorted := make([]RegisterField, len(fields))
	copy(sorted, fields)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Address < sorted[j].Address
	})

	var spans []Span
	start, end := sorted[0].Address, sorted[0].end()
	for _, f := range sorted[1:] {
		// adjacent or overlapping, and still within the span cap
		if f.Address <= end && f.end()-start <= maxSpan {
			if f.end() > end {
				end = f.end()
			}
			continue
		}
		spans = append(spans, Span{Address: start, Count: end - start})
		start, end = f.Address, f.end()
	}
	spans = append(spans, Span{Address: start, Count: end - start})
	return spans
}
