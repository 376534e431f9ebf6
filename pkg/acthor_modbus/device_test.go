package acthor_modbus

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setTestSerial(transport *TestTransport, serial string) {
	for i := 0; i < 8; i++ {
		var hi, lo byte
		if 2*i < len(serial) {
			hi = serial[2*i]
		}
		if 2*i+1 < len(serial) {
			lo = serial[2*i+1]
		}
		transport.SetRegister(uint16(1018+i), uint16(hi)<<8|uint16(lo))
	}
}

func TestDeviceIdentity(t *testing.T) {
	device, _, err := CreateTestDevice()
	require.NoError(t, err)
	defer device.Close()

	id := device.Identity()
	fmt.Printf("identity: %+v\n", id)
	assert.Equal(t, "20100123456789", id.Serial)
	assert.Equal(t, ModelACThor, id.Model)
	assert.Equal(t, "a0020303", id.Firmware.String())
	assert.Equal(t, uint16(1), id.DeviceNumber)
}

func TestDeviceUnknownModel(t *testing.T) {
	transport := CreateTestTransport()
	setTestSerial(transport, "16124123456789")

	_, err := CreateDeviceWithTransport(transport, DeviceConfig{}, nil)
	var unknownErr *UnknownDeviceModelError
	require.ErrorAs(t, err, &unknownErr)
	assert.Equal(t, "16124123456789", unknownErr.Serial)
}

func TestDeviceGettersBeforeFirstPoll(t *testing.T) {
	device, _, err := CreateTestDevice()
	require.NoError(t, err)
	defer device.Close()

	_, err = device.WaterTemperature()
	assert.ErrorIs(t, err, ErrNoSnapshot)
	_, err = device.SnapshotAge()
	assert.ErrorIs(t, err, ErrNoSnapshot)
	assert.Nil(t, device.Snapshot())
}

func TestDeviceGetters(t *testing.T) {
	device, _, err := CreateTestDevice()
	require.NoError(t, err)
	defer device.Close()

	_, err = device.PollOnce(context.Background())
	require.NoError(t, err)

	temp, err := device.WaterTemperature()
	require.NoError(t, err)
	assert.Equal(t, 52.3, temp)

	power, err := device.PowerWatts()
	require.NoError(t, err)
	assert.Equal(t, 500.0, power)

	// fw a0020303 has no 32 bit meter register, the 16 bit one is used
	meter, err := device.MeterPowerWatts()
	require.NoError(t, err)
	assert.Equal(t, -200.0, meter)

	status, err := device.StatusCode()
	require.NoError(t, err)
	assert.Equal(t, StatusCode(2), status)
	assert.Equal(t, StatusStartUp, status.Category())

	mode, err := device.OperationMode()
	require.NoError(t, err)
	assert.Equal(t, OperationMode(3), mode)

	boost, err := device.BoostActive()
	require.NoError(t, err)
	assert.False(t, boost)

	load, err := device.LoadState()
	require.NoError(t, err)
	assert.True(t, load.Out1())
	assert.False(t, load.Out2())

	freq, err := device.FrequencyHz()
	require.NoError(t, err)
	assert.Equal(t, 49.987, freq)

	temps, err := device.Temperatures()
	require.NoError(t, err)
	assert.Len(t, temps, 4)
	assert.Equal(t, 18.4, temps[2])

	// single-phase device reports one voltage
	volts, err := device.PhaseVoltages()
	require.NoError(t, err)
	require.Len(t, volts, 1)
	assert.Equal(t, 230.0, volts[0])

	// 9s only register
	_, err = device.PowerStage()
	assert.ErrorIs(t, err, ErrFieldNotAvailable)

	age, err := device.SnapshotAge()
	require.NoError(t, err)
	assert.GreaterOrEqual(t, age.Nanoseconds(), int64(0))
}

func TestDeviceSetPower16Bit(t *testing.T) {
	device, transport, err := CreateTestDevice()
	require.NoError(t, err)
	defer device.Close()

	require.NoError(t, device.SetPower(750))

	writes := transport.Writes()
	require.Len(t, writes, 1)
	assert.Equal(t, TestWrite{Address: 1000, Words: []uint16{750}}, writes[0])
}

func TestDeviceSetPower32Bit(t *testing.T) {
	device, transport, err := CreateTestDevice()
	require.NoError(t, err)
	defer device.Close()

	require.NoError(t, device.SetPower(70000))

	writes := transport.Writes()
	require.Len(t, writes, 1)
	assert.Equal(t, TestWrite{Address: 1078, Words: []uint16{0x0001, 0x1170}}, writes[0])
}

func TestDeviceSetHotWaterRange(t *testing.T) {
	device, transport, err := CreateTestDevice()
	require.NoError(t, err)
	defer device.Close()

	minTemp, maxTemp := 40.0, 65.0
	require.NoError(t, device.SetHotWaterRange(1, &minTemp, &maxTemp))

	writes := transport.Writes()
	require.Len(t, writes, 2)
	// max is written before min so the range never inverts on the device
	assert.Equal(t, TestWrite{Address: 1002, Words: []uint16{650}}, writes[0])
	assert.Equal(t, TestWrite{Address: 1006, Words: []uint16{400}}, writes[1])
}

func TestDeviceSetHotWaterRangeOutOfBounds(t *testing.T) {
	device, transport, err := CreateTestDevice()
	require.NoError(t, err)
	defer device.Close()

	maxTemp := 95.0
	err = device.SetHotWaterRange(1, nil, &maxTemp)
	var encErr *EncodeError
	require.ErrorAs(t, err, &encErr)
	assert.True(t, encErr.OutOfRange)
	// nothing was written
	assert.Empty(t, transport.Writes())

	// unit 2 exists in the table but not on this device
	minTemp := 50.0
	err = device.SetHotWaterRange(2, &minTemp, nil)
	assert.ErrorIs(t, err, ErrFieldNotAvailable)
}

func TestDeviceSetBoostMode(t *testing.T) {
	device, transport, err := CreateTestDevice()
	require.NoError(t, err)
	defer device.Close()

	require.NoError(t, device.SetBoostMode(BoostOn))
	require.NoError(t, device.SetBoostActive(true))

	writes := transport.Writes()
	require.Len(t, writes, 2)
	assert.Equal(t, TestWrite{Address: 1005, Words: []uint16{1}}, writes[0])
	assert.Equal(t, TestWrite{Address: 1012, Words: []uint16{1}}, writes[1])
}

func TestDeviceWriteReadOnlyField(t *testing.T) {
	device, _, err := CreateTestDevice()
	require.NoError(t, err)
	defer device.Close()

	err = device.writeField("temp_1", Number(500, 10))
	assert.ErrorIs(t, err, ErrFieldNotWritable)

	err = device.writeField("nonexistent", Number(0, 1))
	assert.ErrorIs(t, err, ErrUnknownField)
}
