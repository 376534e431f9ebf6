package actor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/siku2/acthor2mqtt/internal/config"
	"github.com/siku2/acthor2mqtt/internal/domain"
	"github.com/siku2/acthor2mqtt/internal/util/actorutil"
	"github.com/siku2/acthor2mqtt/pkg/acthor_modbus"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/reugn/go-quartz/logger"
	"go.uber.org/zap"
)

// DeviceProvider opens the Modbus connection and builds the device facade.
// It runs on actor start, so a restart after a crash redials the device.
type DeviceProvider func() (*acthor_modbus.Device, error)

type DeviceActor struct {
	behavior actor.Behavior
	stash    *actorutil.Stash
	provider DeviceProvider
	device   *acthor_modbus.Device
	config   *config.Config
	logger   *zap.Logger
}

type backgroundTaskResult struct {
	message any
	replyTo *actor.PID
}

func NewDeviceActor(config *config.Config, provider DeviceProvider, logger *zap.Logger) *DeviceActor {
	act := &DeviceActor{
		config:   config,
		provider: provider,
		behavior: actor.NewBehavior(),
		stash:    &actorutil.Stash{},
		logger:   actorutil.ActorLogger(domain.ACTOR_ID_DEVICE, logger),
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *DeviceActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *DeviceActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("device@starting started")
		device, err := state.provider()
		if err != nil {
			panic(err)
		}
		state.device = device
		state.behavior.Become(state.DefaultReceive)
		state.stash.UnstashAll(ctx)
	case *actor.Restarting:
		if state.device != nil {
			state.device.Close()
		}
	default:
		state.logger.Debug("device@starting: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *DeviceActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		state.logger.Debug("device@default: ActorHealthRequest")
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_DEVICE,
			Healthy: state.device.State() != acthor_modbus.StateDisconnected,
			State:   state.device.State().String(),
		})
	case domain.GetDeviceInfoRequest:
		state.logger.Debug("device@default: GetDeviceInfoRequest")
		identity := state.device.Identity()
		actorutil.ForRequest(msg).Respond(ctx, domain.GetDeviceInfoResponse{
			Identity:    &identity,
			RegisterMap: state.device.RegisterMap(),
		})
	case domain.GetSnapshotRequest:
		state.logger.Debug("device@default: GetSnapshotRequest")
		sender := actorutil.ForRequest(msg).ReplyTo(ctx)

		actorutil.MapBackgroundTask(actorutil.NewBackgroundTask(ctx, state.pollSnapshot),
			mapTaskResult[domain.GetSnapshotResponse](sender)).Recover(func(err error) backgroundTaskResult {
			return backgroundTaskResult{
				message: domain.GetSnapshotResponse{
					ActorResponseMixIn: domain.ActorResponseMixIn{
						ResponseError: err,
					},
				},
				replyTo: sender,
			}
		}).WithTimeout(10 * time.Second).PipeTo(ctx.Self())
		state.behavior.BecomeStacked(state.WaitingModbus)
	case domain.SetPowerRequest:
		state.logger.Debug("device@default: SetPowerRequest", zap.Uint32("watts", msg.Watts))
		sender := actorutil.ForRequest(msg).ReplyTo(ctx)
		actorutil.MapBackgroundTask(actorutil.NewBackgroundTaskNoError(ctx, func() *domain.SetPowerResponse {
			a := state.setPower(msg.Watts)
			return &a
		}),
			mapTaskResult[domain.SetPowerResponse](sender)).Recover(func(err error) backgroundTaskResult {
			return backgroundTaskResult{
				message: domain.SetPowerResponse{
					DeviceControlResponseMixIn: domain.DeviceControlResponseMixIn{
						ActorResponse: domain.ActorResponseMixIn{
							ResponseError: err,
						},
					},
				},
				replyTo: sender,
			}
		}).WithTimeout(10 * time.Second).PipeTo(ctx.Self())
		state.behavior.BecomeStacked(state.WaitingModbus)
	case domain.SetBoostRequest:
		state.logger.Debug("device@default: SetBoostRequest", zap.Bool("enable", msg.Enable))
		sender := actorutil.ForRequest(msg).ReplyTo(ctx)
		actorutil.MapBackgroundTask(actorutil.NewBackgroundTaskNoError(ctx, func() *domain.SetBoostResponse {
			a := state.setBoost(msg.Enable)
			return &a
		}),
			mapTaskResult[domain.SetBoostResponse](sender)).Recover(func(err error) backgroundTaskResult {
			return backgroundTaskResult{
				message: domain.SetBoostResponse{
					DeviceControlResponseMixIn: domain.DeviceControlResponseMixIn{
						ActorResponse: domain.ActorResponseMixIn{
							ResponseError: err,
						},
					},
				},
				replyTo: sender,
			}
		}).WithTimeout(10 * time.Second).PipeTo(ctx.Self())
		state.behavior.BecomeStacked(state.WaitingModbus)
	case domain.SetHotWaterMaxRequest:
		state.logger.Debug("device@default: SetHotWaterMaxRequest", zap.Float64("temperature", msg.Temperature))
		sender := actorutil.ForRequest(msg).ReplyTo(ctx)
		actorutil.MapBackgroundTask(actorutil.NewBackgroundTaskNoError(ctx, func() *domain.SetHotWaterMaxResponse {
			a := state.setHotWaterMax(msg.Unit, msg.Temperature)
			return &a
		}),
			mapTaskResult[domain.SetHotWaterMaxResponse](sender)).Recover(func(err error) backgroundTaskResult {
			return backgroundTaskResult{
				message: domain.SetHotWaterMaxResponse{
					DeviceControlResponseMixIn: domain.DeviceControlResponseMixIn{
						ActorResponse: domain.ActorResponseMixIn{
							ResponseError: err,
						},
					},
				},
				replyTo: sender,
			}
		}).WithTimeout(10 * time.Second).PipeTo(ctx.Self())
		state.behavior.BecomeStacked(state.WaitingModbus)
	case *actor.Stopping:
		state.device.Close()
	default:
		state.logger.Debug("device@default default recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *DeviceActor) WaitingModbus(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case backgroundTaskResult:
		state.logger.Debug("device@WaitingModbus backgroundTaskResult", zap.String("type", fmt.Sprintf("%T", msg.message)))
		ctx.Send(msg.replyTo, msg.message)
		state.behavior.UnbecomeStacked()
		state.stash.UnstashAll(ctx)
	case *actor.Stopping:
		state.device.Close()
	default:
		state.logger.Debug("device@WaitingModbus stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (a *DeviceActor) pollSnapshot() (*domain.GetSnapshotResponse, error) {
	snap, err := a.device.PollOnce(context.Background())
	if err != nil {
		logger.Error(err)
		return nil, err
	}
	return &domain.GetSnapshotResponse{
		Snapshot: snap,
	}, nil
}

func (a *DeviceActor) setPower(watts uint32) domain.SetPowerResponse {
	if max := a.config.PowerConfig.MaxPower; max > 0 && watts > max {
		watts = max
	}
	err := a.retryOnBusy(func() error {
		return a.device.SetPower(watts)
	})
	if err != nil {
		logger.Error(err)
		return domain.SetPowerResponse{
			DeviceControlResponseMixIn: domain.DeviceControlResponseMixIn{
				ActorResponse: domain.ActorResponseMixIn{
					ResponseError: err,
				},
			},
		}
	}
	return domain.SetPowerResponse{
		DeviceControlResponseMixIn: domain.DeviceControlResponseMixIn{
			ActorResponse: domain.ActorResponseMixIn{},
		},
		Watts: watts,
	}
}

func (a *DeviceActor) setBoost(enable bool) domain.SetBoostResponse {
	err := a.retryOnBusy(func() error {
		if enable {
			if err := a.device.SetBoostMode(acthor_modbus.BoostOn); err != nil {
				return err
			}
		}
		return a.device.SetBoostActive(enable)
	})
	if err != nil {
		logger.Error(err)
		return domain.SetBoostResponse{
			DeviceControlResponseMixIn: domain.DeviceControlResponseMixIn{
				ActorResponse: domain.ActorResponseMixIn{
					ResponseError: err,
				},
			},
		}
	}
	return domain.SetBoostResponse{
		DeviceControlResponseMixIn: domain.DeviceControlResponseMixIn{
			ActorResponse: domain.ActorResponseMixIn{},
		},
		Enable: enable,
	}
}

func (a *DeviceActor) setHotWaterMax(unit uint, temperature float64) domain.SetHotWaterMaxResponse {
	err := a.retryOnBusy(func() error {
		return a.device.SetHotWaterRange(int(unit), nil, &temperature)
	})
	if err != nil {
		logger.Error(err)
		return domain.SetHotWaterMaxResponse{
			DeviceControlResponseMixIn: domain.DeviceControlResponseMixIn{
				ActorResponse: domain.ActorResponseMixIn{
					ResponseError: err,
				},
			},
		}
	}
	return domain.SetHotWaterMaxResponse{
		DeviceControlResponseMixIn: domain.DeviceControlResponseMixIn{
			ActorResponse: domain.ActorResponseMixIn{},
		},
		Temperature: temperature,
	}
}

// retryOnBusy retries a write that collided with an in-flight request after
// the configured backoff. Other errors are returned as-is.
func (a *DeviceActor) retryOnBusy(fn func() error) error {
	err := fn()
	var reqErr *acthor_modbus.RequestError
	if errors.As(err, &reqErr) && reqErr.Kind == acthor_modbus.RequestBusy {
		backoff := time.Duration(a.config.PowerConfig.BusyRetryMillis) * time.Millisecond
		if backoff <= 0 {
			backoff = 100 * time.Millisecond
		}
		time.Sleep(backoff)
		return fn()
	}
	return err
}

func mapTaskResult[T any](sender *actor.PID) func(t *T) *backgroundTaskResult {
	return func(t *T) *backgroundTaskResult {
		return &backgroundTaskResult{
			message: *t,
			replyTo: sender,
		}
	}
}
