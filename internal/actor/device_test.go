package actor

import (
	"testing"
	"time"

	"github.com/siku2/acthor2mqtt/internal/domain"
	"github.com/siku2/acthor2mqtt/internal/util"
	"github.com/siku2/acthor2mqtt/internal/util/actorutil"
	"github.com/siku2/acthor2mqtt/pkg/acthor_modbus"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func spawnTestDeviceActor(t *testing.T) (*actor.ActorSystem, *actor.RootContext, *actor.PID, *acthor_modbus.TestTransport) {
	t.Helper()

	cfg := util.LoadTestConfig()
	logger := zap.Must(zap.NewDevelopment())

	as := actorutil.NewActorSystemWithZapLogger(logger)
	context := as.Root

	var transport *acthor_modbus.TestTransport
	props := actor.PropsFromProducer(func() actor.Actor {
		return NewDeviceActor(&cfg, func() (*acthor_modbus.Device, error) {
			device, tr, err := acthor_modbus.CreateTestDevice()
			transport = tr
			return device, err
		}, logger)
	})
	pid := context.Spawn(props)

	time.Sleep(1 * time.Second)

	return as, context, pid, transport
}

func TestGetDeviceInfoDeviceActor(t *testing.T) {

	assert := assert.New(t)

	as, context, pid, _ := spawnTestDeviceActor(t)

	result, err := context.RequestFuture(pid, domain.GetDeviceInfoRequest{}, 15*time.Second).Result()
	if err != nil {
		t.Error(err)
		return
	}
	resp := result.(domain.GetDeviceInfoResponse)

	assert.False(resp.HasResponseError())
	assert.NotNil(resp.Identity)
	assert.Equal(acthor_modbus.ModelACThor, resp.Identity.Model, "device model")
	assert.NotNil(resp.RegisterMap)

	context.Stop(pid)

	as.Shutdown()
}

func TestGetSnapshotDeviceActor(t *testing.T) {

	assert := assert.New(t)

	as, context, pid, _ := spawnTestDeviceActor(t)

	result, err := context.RequestFuture(pid, domain.GetSnapshotRequest{}, 15*time.Second).Result()
	if err != nil {
		t.Error(err)
		return
	}
	resp := result.(domain.GetSnapshotResponse)

	assert.False(resp.HasResponseError())
	assert.NotNil(resp.Snapshot)
	_, ok := resp.Snapshot.Float(acthor_modbus.FieldPower)
	assert.True(ok, "snapshot carries the power field")

	context.Stop(pid)

	as.Shutdown()
}

func TestSetPowerDeviceActor(t *testing.T) {

	assert := assert.New(t)

	as, context, pid, transport := spawnTestDeviceActor(t)

	result, err := context.RequestFuture(pid, domain.SetPowerRequest{Watts: 1500}, 15*time.Second).Result()
	if err != nil {
		t.Error(err)
		return
	}
	resp := result.(domain.SetPowerResponse)

	assert.False(resp.HasResponseError())
	assert.Equal(uint32(1500), resp.Watts)

	writes := transport.Writes()
	if assert.Len(writes, 1) {
		assert.Equal(uint16(1000), writes[0].Address)
		assert.Equal([]uint16{1500}, writes[0].Words)
	}

	context.Stop(pid)

	as.Shutdown()
}

func TestSetPowerCapDeviceActor(t *testing.T) {

	assert := assert.New(t)

	as, context, pid, transport := spawnTestDeviceActor(t)

	// test config caps power targets at 3000 W
	result, err := context.RequestFuture(pid, domain.SetPowerRequest{Watts: 9000}, 15*time.Second).Result()
	if err != nil {
		t.Error(err)
		return
	}
	resp := result.(domain.SetPowerResponse)

	assert.False(resp.HasResponseError())
	assert.Equal(uint32(3000), resp.Watts)

	writes := transport.Writes()
	if assert.Len(writes, 1) {
		assert.Equal([]uint16{3000}, writes[0].Words)
	}

	context.Stop(pid)

	as.Shutdown()
}

func TestSetBoostDeviceActor(t *testing.T) {

	assert := assert.New(t)

	as, context, pid, transport := spawnTestDeviceActor(t)

	result, err := context.RequestFuture(pid, domain.SetBoostRequest{Enable: true}, 15*time.Second).Result()
	if err != nil {
		t.Error(err)
		return
	}
	resp := result.(domain.SetBoostResponse)

	assert.False(resp.HasResponseError())
	assert.True(resp.Enable)
	assert.NotEmpty(transport.Writes())

	context.Stop(pid)

	as.Shutdown()
}
