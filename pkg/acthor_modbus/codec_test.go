package acthor_modbus

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeU32Scaled(t *testing.T) {
	f := RegisterField{Name: "energy", Words: 2, Encoding: EncodingU32, Scale: ScaleDeci}

	v, err := Decode(f, HighWordFirst, []uint16{0x0000, 0x03e8})
	require.NoError(t, err)
	assert.Equal(t, 100.0, v.Float64())

	v, err = Decode(f, LowWordFirst, []uint16{0x03e8, 0x0000})
	require.NoError(t, err)
	assert.Equal(t, 100.0, v.Float64())
}

func TestDecodeSigned(t *testing.T) {
	f16 := RegisterField{Name: "meter_power", Words: 1, Encoding: EncodingI16}
	v, err := Decode(f16, HighWordFirst, []uint16{0xff38})
	require.NoError(t, err)
	assert.Equal(t, -200.0, v.Float64())

	f32 := RegisterField{Name: "meter_power_32", Words: 2, Encoding: EncodingI32}
	v, err = Decode(f32, HighWordFirst, []uint16{0xffff, 0xfe0c})
	require.NoError(t, err)
	assert.Equal(t, -500.0, v.Float64())
}

func TestDecodeWordCountMismatch(t *testing.T) {
	f := RegisterField{Name: "power_32", Words: 2, Encoding: EncodingU32}

	_, err := Decode(f, HighWordFirst, []uint16{0x0001})
	var decErr *DecodeError
	require.ErrorAs(t, err, &decErr)
	assert.Equal(t, "power_32", decErr.Field)
}

func TestDecodeEnum(t *testing.T) {
	f := RegisterField{
		Name: "boost_mode", Words: 1, Encoding: EncodingEnum,
		Enum: map[uint16]string{0: "off", 1: "on", 3: "relay on"},
	}

	v, err := Decode(f, HighWordFirst, []uint16{1})
	require.NoError(t, err)
	assert.True(t, v.Known())
	assert.Equal(t, "on", v.Label())

	// an unlisted tag decodes, it just is not Known
	v, err = Decode(f, HighWordFirst, []uint16{42})
	require.NoError(t, err)
	assert.False(t, v.Known())
	assert.Equal(t, uint32(42), v.Tag())
}

func TestEncodeRoundTrip(t *testing.T) {
	f := RegisterField{Name: "hot_water_1_max", Words: 1, Encoding: EncodingU16,
		Scale: ScaleDeci, Min: 50, Max: 900, Writable: true}

	words, err := Encode(f, HighWordFirst, Number(523, 10)) // 52.3 degC
	require.NoError(t, err)
	assert.Equal(t, []uint16{523}, words)

	v, err := Decode(f, HighWordFirst, words)
	require.NoError(t, err)
	num, den := v.Rat()
	assert.Equal(t, int64(523), num)
	assert.Equal(t, int64(10), den)
}

func TestEncodeOutOfRange(t *testing.T) {
	f := RegisterField{Name: "hot_water_1_max", Words: 1, Encoding: EncodingU16,
		Scale: ScaleDeci, Min: 50, Max: 900, Writable: true}

	_, err := Encode(f, HighWordFirst, Number(950, 10)) // 95.0 degC
	var encErr *EncodeError
	require.ErrorAs(t, err, &encErr)
	assert.True(t, encErr.OutOfRange)

	_, err = Encode(f, HighWordFirst, Number(40, 10)) // 4.0 degC
	require.ErrorAs(t, err, &encErr)
	assert.True(t, encErr.OutOfRange)
}

func TestEncodeNotRepresentable(t *testing.T) {
	f := RegisterField{Name: "power", Words: 1, Encoding: EncodingU16}

	_, err := Encode(f, HighWordFirst, Number(1, 3))
	var encErr *EncodeError
	require.ErrorAs(t, err, &encErr)
	assert.False(t, encErr.OutOfRange)
}

func TestEncodeWordOrder(t *testing.T) {
	f := RegisterField{Name: "power_32", Words: 2, Encoding: EncodingU32, Writable: true}

	words, err := Encode(f, HighWordFirst, Number(70000, 1))
	require.NoError(t, err)
	assert.Equal(t, []uint16{0x0001, 0x1170}, words)

	words, err = Encode(f, LowWordFirst, Number(70000, 1))
	require.NoError(t, err)
	assert.Equal(t, []uint16{0x1170, 0x0001}, words)
}

func TestEncodeSignedNegative(t *testing.T) {
	f := RegisterField{Name: "meter_power", Words: 1, Encoding: EncodingI16, Writable: true}

	words, err := Encode(f, HighWordFirst, Number(-200, 1))
	require.NoError(t, err)
	assert.Equal(t, []uint16{0xff38}, words)
}

func TestDecodeErrorIsNotRequestError(t *testing.T) {
	f := RegisterField{Name: "power_32", Words: 2, Encoding: EncodingU32}

	_, err := Decode(f, HighWordFirst, []uint16{1, 2, 3})
	var reqErr *RequestError
	assert.False(t, errors.As(err, &reqErr))
}
