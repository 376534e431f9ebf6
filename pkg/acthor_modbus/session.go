package acthor_modbus

import (
	"errors"
	"sync"
	"time"

	"github.com/simonvetter/modbus"
	log "github.com/sirupsen/logrus"
)

const (
	DefaultRequestTimeout    = 5 * time.Second
	DefaultDegradedThreshold = 3
)

type SessionConfig struct {
	// RequestTimeout is the per-request deadline enforced on top of the
	// transport's own timeout. Zero means DefaultRequestTimeout.
	RequestTimeout time.Duration
	// DegradedThreshold is the number of consecutive soft failures after
	// which the session reports StateDegraded. Zero means
	// DefaultDegradedThreshold.
	DegradedThreshold int
}

func (c SessionConfig) withDefaults() SessionConfig {
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}
	if c.DegradedThreshold <= 0 {
		c.DegradedThreshold = DefaultDegradedThreshold
	}
	return c
}

// Session owns one transport and enforces the device's single-request
// constraint: the AC-THOR drops overlapping requests, so a second request
// while one is in flight fails immediately with RequestBusy instead of
// queueing.
type Session struct {
	transport Transport
	config    SessionConfig
	logger    *log.Entry

	mu           sync.Mutex
	state        ConnectionState
	inFlight     bool
	softFailures int
}

func NewSession(transport Transport, config SessionConfig, logger *log.Logger) *Session {
	if logger == nil {
		logger = log.New()
		logger.SetLevel(log.PanicLevel)
	}
	return &Session{
		transport: transport,
		config:    config.withDefaults(),
		logger:    logger.WithField("component", "session"),
	}
}

func (s *Session) State() ConnectionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Connect opens the transport. Any failure leaves the session Disconnected
// and is reported as a ConnectError.
func (s *Session) Connect() error {
	s.mu.Lock()
	if s.state != StateDisconnected {
		s.mu.Unlock()
		return nil
	}
	s.state = StateConnecting
	s.mu.Unlock()

	err := s.transport.Open()

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.state = StateDisconnected
		return &ConnectError{Err: err}
	}
	s.state = StateConnected
	s.softFailures = 0
	return nil
}

func (s *Session) Close() error {
	s.mu.Lock()
	if s.state == StateDisconnected {
		s.mu.Unlock()
		return nil
	}
	s.state = StateDisconnected
	s.softFailures = 0
	s.mu.Unlock()
	return s.transport.Close()
}

// ReadSpan reads one contiguous register span.
func (s *Session) ReadSpan(span Span) ([]uint16, error) {
	return request(s, "ReadRegisters", func() ([]uint16, error) {
		return s.transport.ReadRegisters(span.Address, span.Count)
	})
}

// WriteRegisters writes raw words at addr. Encoding and writability checks
// happen in the Device facade before the words get here.
func (s *Session) WriteRegisters(addr uint16, words []uint16) error {
	_, err := request(s, "WriteRegisters", func() ([]uint16, error) {
		return nil, s.transport.WriteRegisters(addr, words)
	})
	return err
}

// request runs one transport operation under the session's single-request
// and deadline rules, then folds the outcome into the connection state.
func request(s *Session, name string, op func() ([]uint16, error)) ([]uint16, error) {
	s.mu.Lock()
	if s.state == StateDisconnected || s.state == StateConnecting {
		s.mu.Unlock()
		return nil, &RequestError{Kind: RequestTransport, Err: errors.New("session not connected")}
	}
	if s.inFlight {
		s.mu.Unlock()
		return nil, &RequestError{Kind: RequestBusy}
	}
	s.inFlight = true
	s.mu.Unlock()

	type result struct {
		words []uint16
		err   error
	}
	// buffered so a late completion after the deadline just gets dropped
	done := make(chan result, 1)
	go func() {
		words, err := op()
		done <- result{words, err}
	}()

	timer := time.NewTimer(s.config.RequestTimeout)
	defer timer.Stop()

	var words []uint16
	var err error
	select {
	case r := <-done:
		words, err = r.words, r.err
	case <-timer.C:
		err = &RequestError{Kind: RequestTimeout, Err: errors.New("request deadline exceeded")}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.inFlight = false
	if err == nil {
		s.softFailures = 0
		if s.state == StateDegraded {
			s.state = StateConnected
		}
		return words, nil
	}

	reqErr := classifyError(err)
	s.logger.WithError(reqErr).Debugf("modbus [%s] failed", name)
	if !reqErr.Soft() {
		// transport fault, the connection is gone
		s.state = StateDisconnected
		s.softFailures = 0
		_ = s.transport.Close()
		return nil, reqErr
	}
	s.softFailures++
	switch {
	case s.state == StateDegraded:
		// a degraded session gets one chance; another failure drops it
		s.state = StateDisconnected
		s.softFailures = 0
		_ = s.transport.Close()
	case s.softFailures >= s.config.DegradedThreshold:
		s.state = StateDegraded
	}
	return nil, reqErr
}

// protocolExceptions maps the transport's exception sentinels to the codes
// the device put on the wire.
var protocolExceptions = []struct {
	err  error
	code uint8
}{
	{modbus.ErrIllegalFunction, 0x01},
	{modbus.ErrIllegalDataAddress, 0x02},
	{modbus.ErrIllegalDataValue, 0x03},
	{modbus.ErrServerDeviceFailure, 0x04},
	{modbus.ErrAcknowledge, 0x05},
	{modbus.ErrServerDeviceBusy, 0x06},
	{modbus.ErrMemoryParityError, 0x08},
	{modbus.ErrGWPathUnavailable, 0x0a},
	{modbus.ErrGWTargetFailedToRespond, 0x0b},
}

func classifyError(err error) *RequestError {
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		return reqErr
	}
	if errors.Is(err, modbus.ErrRequestTimedOut) {
		return &RequestError{Kind: RequestTimeout, Err: err}
	}
	for _, pe := range protocolExceptions {
		if errors.Is(err, pe.err) {
			return &RequestError{Kind: RequestProtocol, ExceptionCode: pe.code, Err: err}
		}
	}
	if errors.Is(err, modbus.ErrProtocolError) || errors.Is(err, modbus.ErrBadCRC) ||
		errors.Is(err, modbus.ErrShortFrame) || errors.Is(err, modbus.ErrBadUnitId) {
		return &RequestError{Kind: RequestProtocol, Err: err}
	}
	return &RequestError{Kind: RequestTransport, Err: err}
}
