package acthor_modbus

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func acthorIdentity(fwVersion, fwSub uint16) Identity {
	serial := "20100123456789"
	return Identity{
		Serial:   serial,
		Firmware: FirmwareVersion{Version: fwVersion, Sub: fwSub},
		Model:    deviceModelFromSerial(serial),
	}
}

func TestCoalesceReadsActhorMap(t *testing.T) {
	m, err := RegisterMapForIdentity(acthorIdentity(203, 3))
	require.NoError(t, err)

	spans := m.CoalesceReads(m.Fields(), 0)
	for _, s := range spans {
		fmt.Printf("span: %d +%d\n", s.Address, s.Count)
	}

	// the serial block 1018-1025 and the reserved registers 1066 and 1086
	// split the table
	require.Len(t, spans, 4)
	assert.Equal(t, Span{Address: 1000, Count: 18}, spans[0])
	assert.Equal(t, Span{Address: 1026, Count: 40}, spans[1])
	assert.Equal(t, Span{Address: 1067, Count: 19}, spans[2])
	assert.Equal(t, Span{Address: 1087, Count: 2}, spans[3])

	// every field of the map is covered by exactly one span
	for _, f := range m.Fields() {
		n := 0
		for _, s := range spans {
			if s.contains(f) {
				n++
			}
		}
		assert.Equal(t, 1, n, f.Name)
	}
}

func TestCoalesceReadsSpanCap(t *testing.T) {
	m, err := RegisterMapForIdentity(acthorIdentity(203, 3))
	require.NoError(t, err)

	spans := m.CoalesceReads(m.Fields(), 16)
	for _, s := range spans {
		assert.LessOrEqual(t, s.Count, uint16(16))
	}
}

func TestRegisterMapValidation(t *testing.T) {
	// overlap without alias is rejected
	_, err := newRegisterMap(ModelACThor, HighWordFirst, []RegisterField{
		field("a", 1000, EncodingU32, ScaleNone, ""),
		field("b", 1001, EncodingU16, ScaleNone, ""),
	})
	assert.Error(t, err)

	// alias overlap is fine
	alias := field("b16", 1000, EncodingU16, ScaleNone, "")
	alias.Alias = true
	_, err = newRegisterMap(ModelACThor, HighWordFirst, []RegisterField{
		field("a", 1000, EncodingU32, ScaleNone, ""),
		alias,
	})
	assert.NoError(t, err)

	// word count must match the encoding
	bad := field("c", 1010, EncodingU32, ScaleNone, "")
	bad.Words = 1
	_, err = newRegisterMap(ModelACThor, HighWordFirst, []RegisterField{bad})
	assert.Error(t, err)

	// duplicate names are rejected
	_, err = newRegisterMap(ModelACThor, HighWordFirst, []RegisterField{
		field("a", 1000, EncodingU16, ScaleNone, ""),
		field("a", 1001, EncodingU16, ScaleNone, ""),
	})
	assert.Error(t, err)
}

func TestRegisterMapForIdentityFeatures(t *testing.T) {
	m, err := RegisterMapForIdentity(acthorIdentity(203, 3))
	require.NoError(t, err)
	assert.Equal(t, ModelACThor, m.Model)

	// single phase device
	f, ok := m.Field("voltage_l2")
	require.True(t, ok)
	assert.False(t, f.Available)

	f, ok = m.Field("voltage_l1")
	require.True(t, ok)
	assert.True(t, f.Available)

	// a0020303 backs the device power split but not pwm or the 32 bit
	// meter register
	f, _ = m.Field(FieldSolarPower)
	assert.True(t, f.Available)
	f, _ = m.Field(FieldPWMOut)
	assert.False(t, f.Available)
	f, _ = m.Field(FieldMeterPower32)
	assert.False(t, f.Available)
}

func TestRegisterMapForIdentity9s(t *testing.T) {
	id := acthorIdentity(210, 2)
	id.Serial = "20300123456789"
	id.Model = deviceModelFromSerial(id.Serial)

	m, err := RegisterMapForIdentity(id)
	require.NoError(t, err)
	assert.Equal(t, ModelACThor9s, m.Model)

	for _, name := range []string{"voltage_l2", "voltage_l3", "power_out_1", FieldPowerStage, FieldMeterPower32} {
		f, ok := m.Field(name)
		require.True(t, ok, name)
		assert.True(t, f.Available, name)
	}
}

func TestRegisterMapForIdentityOldFirmware(t *testing.T) {
	// fw a00101xx only exposes 81 registers
	m, err := RegisterMapForIdentity(acthorIdentity(101, 7))
	require.NoError(t, err)

	_, ok := m.Field(FieldDeviceState)
	assert.False(t, ok)
	_, ok = m.Field(FieldMeterPower32)
	assert.False(t, ok)

	f, ok := m.Field(FieldPowerStage)
	require.True(t, ok)
	assert.Equal(t, uint16(1080), f.Address)
}

func TestRegisterMapForIdentityUnknownModel(t *testing.T) {
	id := acthorIdentity(203, 3)
	id.Serial = "16124123456789" // AC ELWA-E speaks a different register table
	id.Model = deviceModelFromSerial(id.Serial)

	_, err := RegisterMapForIdentity(id)
	var unknownErr *UnknownDeviceModelError
	require.ErrorAs(t, err, &unknownErr)
	assert.Equal(t, id.Serial, unknownErr.Serial)
}

func TestFirmwareVersionString(t *testing.T) {
	v := FirmwareVersion{Version: 201, Sub: 3}
	assert.Equal(t, "a0020103", v.String())
	assert.True(t, v.AtLeast(201, 3))
	assert.True(t, v.AtLeast(102, 5))
	assert.False(t, v.AtLeast(203, 3))
	assert.False(t, v.AtLeast(201, 4))
}

func TestParseIdentity(t *testing.T) {
	words := make([]uint16, identitySpan.Count)
	words[0] = 7   // device number
	words[3] = 203 // fw version
	words[15] = 3  // fw sub-version
	serial := "20100123456789"
	for i := 0; i < 8; i++ {
		var hi, lo byte
		if 2*i < len(serial) {
			hi = serial[2*i]
		}
		if 2*i+1 < len(serial) {
			lo = serial[2*i+1]
		}
		words[5+i] = uint16(hi)<<8 | uint16(lo)
	}

	id := parseIdentity(words)
	assert.Equal(t, serial, id.Serial)
	assert.Equal(t, ModelACThor, id.Model)
	assert.Equal(t, uint16(7), id.DeviceNumber)
	assert.Equal(t, "a0020303", id.Firmware.String())
}
