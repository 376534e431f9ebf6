package acthor_modbus

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/simonvetter/modbus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func connectedTestSession(t *testing.T, config SessionConfig) (*Session, *TestTransport) {
	t.Helper()
	transport := CreateTestTransport()
	session := NewSession(transport, config, nil)
	require.NoError(t, session.Connect())
	require.Equal(t, StateConnected, session.State())
	return session, transport
}

func TestSessionConnectFailure(t *testing.T) {
	transport := CreateTestTransport()
	transport.OpenErr = errors.New("connection refused")
	session := NewSession(transport, SessionConfig{}, nil)

	err := session.Connect()
	var connErr *ConnectError
	require.ErrorAs(t, err, &connErr)
	assert.Equal(t, StateDisconnected, session.State())
}

func TestSessionReadWhileDisconnected(t *testing.T) {
	session := NewSession(CreateTestTransport(), SessionConfig{}, nil)

	_, err := session.ReadSpan(Span{Address: 1000, Count: 1})
	var reqErr *RequestError
	require.ErrorAs(t, err, &reqErr)
	assert.Equal(t, RequestTransport, reqErr.Kind)
}

func TestSessionSingleRequest(t *testing.T) {
	session, transport := connectedTestSession(t, SessionConfig{})
	transport.Delay = 100 * time.Millisecond

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := session.ReadSpan(Span{Address: 1000, Count: 1})
		assert.NoError(t, err)
	}()

	time.Sleep(20 * time.Millisecond)
	_, err := session.ReadSpan(Span{Address: 1000, Count: 1})
	var reqErr *RequestError
	require.ErrorAs(t, err, &reqErr)
	assert.Equal(t, RequestBusy, reqErr.Kind)
	assert.True(t, reqErr.Soft())
	wg.Wait()
}

func TestSessionDeadline(t *testing.T) {
	session, transport := connectedTestSession(t, SessionConfig{RequestTimeout: 30 * time.Millisecond})
	transport.Delay = 150 * time.Millisecond

	_, err := session.ReadSpan(Span{Address: 1000, Count: 1})
	var reqErr *RequestError
	require.ErrorAs(t, err, &reqErr)
	assert.Equal(t, RequestTimeout, reqErr.Kind)
	// one soft failure does not degrade the session
	assert.Equal(t, StateConnected, session.State())
}

func TestSessionDegradesAfterConsecutiveSoftFailures(t *testing.T) {
	session, transport := connectedTestSession(t, SessionConfig{DegradedThreshold: 3})
	transport.FailReads(modbus.ErrRequestTimedOut, modbus.ErrRequestTimedOut, modbus.ErrRequestTimedOut)

	for i := 0; i < 2; i++ {
		_, err := session.ReadSpan(Span{Address: 1000, Count: 1})
		require.Error(t, err)
		assert.Equal(t, StateConnected, session.State())
	}
	_, err := session.ReadSpan(Span{Address: 1000, Count: 1})
	require.Error(t, err)
	assert.Equal(t, StateDegraded, session.State())
}

func TestSessionRecoversFromDegraded(t *testing.T) {
	session, transport := connectedTestSession(t, SessionConfig{DegradedThreshold: 2})
	transport.FailReads(modbus.ErrRequestTimedOut, modbus.ErrRequestTimedOut)

	for i := 0; i < 2; i++ {
		_, _ = session.ReadSpan(Span{Address: 1000, Count: 1})
	}
	require.Equal(t, StateDegraded, session.State())

	// a success restores the session
	_, err := session.ReadSpan(Span{Address: 1000, Count: 1})
	require.NoError(t, err)
	assert.Equal(t, StateConnected, session.State())
}

func TestSessionDegradedDropsOnFurtherFailure(t *testing.T) {
	session, transport := connectedTestSession(t, SessionConfig{DegradedThreshold: 2})
	transport.FailReads(modbus.ErrRequestTimedOut, modbus.ErrRequestTimedOut, modbus.ErrRequestTimedOut)

	for i := 0; i < 2; i++ {
		_, _ = session.ReadSpan(Span{Address: 1000, Count: 1})
	}
	require.Equal(t, StateDegraded, session.State())

	_, err := session.ReadSpan(Span{Address: 1000, Count: 1})
	require.Error(t, err)
	assert.Equal(t, StateDisconnected, session.State())
}

func TestSessionHardFailureDisconnects(t *testing.T) {
	session, transport := connectedTestSession(t, SessionConfig{})
	transport.FailReads(errors.New("connection reset by peer"))

	_, err := session.ReadSpan(Span{Address: 1000, Count: 1})
	var reqErr *RequestError
	require.ErrorAs(t, err, &reqErr)
	assert.Equal(t, RequestTransport, reqErr.Kind)
	assert.False(t, reqErr.Soft())
	// one strike, no threshold
	assert.Equal(t, StateDisconnected, session.State())
}

func TestSessionProtocolException(t *testing.T) {
	session, transport := connectedTestSession(t, SessionConfig{})
	transport.FailReads(modbus.ErrIllegalDataAddress)

	_, err := session.ReadSpan(Span{Address: 5000, Count: 1})
	var reqErr *RequestError
	require.ErrorAs(t, err, &reqErr)
	assert.Equal(t, RequestProtocol, reqErr.Kind)
	assert.Equal(t, uint8(0x02), reqErr.ExceptionCode)
	assert.True(t, reqErr.Soft())
	assert.Equal(t, StateConnected, session.State())
}

func TestSessionWrite(t *testing.T) {
	session, transport := connectedTestSession(t, SessionConfig{})

	require.NoError(t, session.WriteRegisters(1000, []uint16{750}))
	writes := transport.Writes()
	require.Len(t, writes, 1)
	assert.Equal(t, TestWrite{Address: 1000, Words: []uint16{750}}, writes[0])
}

func TestSessionReconnectAfterClose(t *testing.T) {
	session, _ := connectedTestSession(t, SessionConfig{})

	require.NoError(t, session.Close())
	assert.Equal(t, StateDisconnected, session.State())

	require.NoError(t, session.Connect())
	assert.Equal(t, StateConnected, session.State())

	words, err := session.ReadSpan(Span{Address: 1000, Count: 1})
	require.NoError(t, err)
	assert.Equal(t, []uint16{500}, words)
}
