package domain

import "fmt"

// DeviceControlRequest

type DeviceControlRequest interface {
	ActorRequest
	DeviceControlCommand() string
}

type DeviceControlRequestMixIn struct {
	ActorRequestMixIn
}

func (r DeviceControlRequestMixIn) DeviceControlCommand() string {
	return fmt.Sprintf("%T", r)
}

// DeviceControlResponse

type DeviceControlResponse interface {
	ActorResponse
	DeviceControlResponse() string
}

type DeviceControlResponseMixIn struct {
	ActorResponse
}

func (r DeviceControlResponseMixIn) DeviceControlResponse() string {
	return fmt.Sprintf("%T", r)
}

// DeviceControl commands

type SetPowerRequest struct {
	DeviceControlRequestMixIn
	Watts uint32
}

type SetPowerResponse struct {
	DeviceControlResponseMixIn
	Watts uint32
}

type SetBoostRequest struct {
	DeviceControlRequestMixIn
	Enable bool
}

type SetBoostResponse struct {
	DeviceControlResponseMixIn
	Enable bool
}

type SetHotWaterMaxRequest struct {
	DeviceControlRequestMixIn
	Unit        uint
	Temperature float64
}

type SetHotWaterMaxResponse struct {
	DeviceControlResponseMixIn
	Temperature float64
}

// ensure interface compliance
var _ DeviceControlRequest = (*SetPowerRequest)(nil)
