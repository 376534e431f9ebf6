package acthor_modbus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/simonvetter/modbus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastTestDevice(t *testing.T) (*Device, *TestTransport) {
	t.Helper()
	transport := CreateTestTransport()
	device, err := CreateDeviceWithTransport(transport, DeviceConfig{
		Poller: PollerConfig{RetryBackoff: 2 * time.Millisecond},
	}, nil)
	require.NoError(t, err)
	return device, transport
}

func TestPollOnceSnapshot(t *testing.T) {
	device, _ := fastTestDevice(t)
	defer device.Close()

	snap, err := device.PollOnce(context.Background())
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Same(t, snap, device.Snapshot())
	fmt.Printf("snapshot: %d fields at %s\n", len(snap.ToMap()), snap.At())

	v, ok := snap.Float("temp_1")
	require.True(t, ok)
	assert.Equal(t, 52.3, v)

	v, ok = snap.Float(FieldFrequency)
	require.True(t, ok)
	assert.Equal(t, 49.987, v)

	v, ok = snap.Float(FieldMeterPower)
	require.True(t, ok)
	assert.Equal(t, -200.0, v)

	// single-phase device: the register decodes but is not valid
	fv, present := snap.Field("voltage_l2")
	require.True(t, present)
	assert.False(t, fv.Valid)
	_, ok = snap.Float("voltage_l2")
	assert.False(t, ok)

	// fw a0020303 predates the 32 bit meter register
	_, ok = snap.Float(FieldMeterPower32)
	assert.False(t, ok)
}

func TestPollOnceAllOrNothing(t *testing.T) {
	device, transport := fastTestDevice(t)
	defer device.Close()

	// the second span of the cycle fails hard
	transport.FailReads(nil, errors.New("connection reset by peer"))

	_, err := device.PollOnce(context.Background())
	var pollErr *PollError
	require.ErrorAs(t, err, &pollErr)
	assert.Equal(t, 1, pollErr.Attempts)
	assert.Nil(t, device.Snapshot())
}

func TestPollOnceRetriesSoftFailures(t *testing.T) {
	device, transport := fastTestDevice(t)
	defer device.Close()

	transport.FailReads(modbus.ErrRequestTimedOut)

	snap, err := device.PollOnce(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, snap)
}

func TestPollOnceExhaustsRetries(t *testing.T) {
	transport := CreateTestTransport()
	device, err := CreateDeviceWithTransport(transport, DeviceConfig{
		Poller: PollerConfig{MaxRetries: 1, RetryBackoff: 2 * time.Millisecond},
	}, nil)
	require.NoError(t, err)
	defer device.Close()

	transport.FailReads(modbus.ErrRequestTimedOut, modbus.ErrRequestTimedOut)

	_, err = device.PollOnce(context.Background())
	var pollErr *PollError
	require.ErrorAs(t, err, &pollErr)
	assert.Equal(t, 2, pollErr.Attempts)

	var reqErr *RequestError
	require.ErrorAs(t, err, &reqErr)
	assert.Equal(t, RequestTimeout, reqErr.Kind)
}

func TestPollOnceHardFailureDoesNotRetry(t *testing.T) {
	device, transport := fastTestDevice(t)
	defer device.Close()

	transport.FailReads(errors.New("broken pipe"))

	_, err := device.PollOnce(context.Background())
	var pollErr *PollError
	require.ErrorAs(t, err, &pollErr)
	assert.Equal(t, 1, pollErr.Attempts)
	assert.Equal(t, StateDisconnected, device.State())
}

func TestRunReconnectsAndReportsStateChanges(t *testing.T) {
	device, transport := fastTestDevice(t)
	defer device.Close()

	var mu sync.Mutex
	var states []ConnectionState
	var snapshots int

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = device.Run(ctx, 10*time.Millisecond,
			func(*DeviceSnapshot) {
				mu.Lock()
				snapshots++
				mu.Unlock()
			},
			func(st ConnectionState) {
				mu.Lock()
				states = append(states, st)
				mu.Unlock()
			})
	}()

	// let a few healthy cycles pass, then kill the connection once
	time.Sleep(35 * time.Millisecond)
	transport.FailReads(errors.New("connection reset by peer"))
	time.Sleep(60 * time.Millisecond)
	cancel()
	<-done

	mu.Lock()
	defer mu.Unlock()
	assert.Greater(t, snapshots, 1)
	// exactly one drop and one recovery, not a callback per cycle
	assert.Equal(t, []ConnectionState{StateDisconnected, StateConnected}, states)
	assert.Equal(t, StateConnected, device.State())
}

func TestRunStopsOnCancel(t *testing.T) {
	device, _ := fastTestDevice(t)
	defer device.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := device.Run(ctx, 10*time.Millisecond, nil, nil)
	assert.ErrorIs(t, err, context.Canceled)
}
