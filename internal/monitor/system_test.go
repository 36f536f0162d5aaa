package monitor

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/markusressel/tachmon/internal/configuration"
	"github.com/markusressel/tachmon/internal/inventory"
	"github.com/markusressel/tachmon/internal/power"
	"github.com/markusressel/tachmon/internal/util"
	"github.com/stretchr/testify/assert"
)

type systemTestEnv struct {
	*fanTestEnv
	powerFile string
	system    *System
}

// newSystemTestEnv builds a system over the given fan test env, with a
// file backed power source that starts powered on, and starts monitoring
// on all fans right away.
func newSystemTestEnv(t *testing.T, base *fanTestEnv, config configuration.Configuration) *systemTestEnv {
	env := &systemTestEnv{
		fanTestEnv: base,
		powerFile:  filepath.Join(base.dir, "power_state"),
	}
	assert.NoError(t, util.WriteIntToFile(1, env.powerFile))

	env.system = NewSystem(env.loop, env.inv, power.NewSource(configuration.PowerConfig{
		File: &configuration.FilePowerConfig{Path: env.powerFile},
	}))
	env.loop.PostSync(func() {
		assert.NoError(t, env.system.Init(config))
		for _, fan := range env.system.Fans() {
			fan.StartMonitor()
		}
	})
	return env
}

func (env *systemTestEnv) setPowerFile(on bool) {
	value := 0
	if on {
		value = 1
	}
	assert.NoError(env.t, util.WriteIntToFile(value, env.powerFile))
}

func countFanConfig(env *fanTestEnv, id string) configuration.FanConfig {
	sensor := env.fileSensor(id+"_0", 1000, 1000)
	sensor.Method = configuration.MethodCount
	sensor.Threshold = 1
	return configuration.FanConfig{
		ID:                       id,
		Deviation:                0.1,
		NumSensorFailsForNonFunc: 1,
		CountInterval:            time.Hour,
		Sensors:                  []configuration.SensorConfig{sensor},
	}
}

func TestSystemPowerPollingAppliesStateChange(t *testing.T) {
	// GIVEN
	env := newSystemTestEnv(t, newFanTestEnv(t), configuration.Configuration{
		TachRollingWindowSize: 5,
	})
	env.loop.PostSync(func() {
		assert.True(t, env.system.IsPowerOn())
	})

	// WHEN the power file flips to off
	env.setPowerFile(false)
	env.loop.PostSync(func() {
		env.system.PollPower()
	})

	// THEN the change is applied
	env.loop.PostSync(func() {
		assert.False(t, env.system.IsPowerOn())
	})

	// WHEN the power returns
	env.setPowerFile(true)
	env.loop.PostSync(func() {
		env.system.PollPower()
	})

	// THEN the change is applied again
	env.loop.PostSync(func() {
		assert.True(t, env.system.IsPowerOn())
	})
}

func TestSystemPowerChangeFansOut(t *testing.T) {
	// GIVEN a system with one monitored fan
	base := newFanTestEnv(t)
	env := newSystemTestEnv(t, base, configuration.Configuration{
		TachRollingWindowSize: 5,
		Fans:                  []configuration.FanConfig{countFanConfig(base, "fan0")},
	})

	// WHEN power goes off
	env.loop.PostSync(func() {
		env.system.SetPowerState(false)
	})

	// THEN the fan freezes its monitoring
	env.loop.PostSync(func() {
		assert.False(t, env.system.Fans()[0].MonitorReady())
	})
}

func TestSystemRoutesInventoryEventsByObject(t *testing.T) {
	// GIVEN a system with two monitored fans
	base := newFanTestEnv(t)
	env := newSystemTestEnv(t, base, configuration.Configuration{
		TachRollingWindowSize: 5,
		Fans: []configuration.FanConfig{
			countFanConfig(base, "fan0"),
			countFanConfig(base, "fan1"),
		},
	})

	// WHEN a presence change for fan1 arrives
	env.loop.PostSync(func() {
		env.system.InventoryEvent(inventory.Event{
			Object: "fan1",
			Interfaces: map[string]map[string]interface{}{
				inventory.InterfaceItem: {
					inventory.PropertyPresent: false,
				},
			},
		})
	})

	// THEN only fan1 is affected
	env.loop.PostSync(func() {
		assert.True(t, env.system.Fans()[0].Present())
		assert.False(t, env.system.Fans()[1].Present())
	})

	// WHEN an event for an unmonitored object arrives
	env.loop.PostSync(func() {
		env.system.InventoryEvent(inventory.Event{
			Object: "psu0",
			Interfaces: map[string]map[string]interface{}{
				inventory.InterfaceItem: {
					inventory.PropertyPresent: false,
				},
			},
		})
	})

	// THEN nothing changes
	env.loop.PostSync(func() {
		assert.True(t, env.system.Fans()[0].Present())
	})
}

func TestSystemCriticalEscalationAndRearm(t *testing.T) {
	// GIVEN a system that turns critical with one unhealthy fan
	base := newFanTestEnv(t)
	env := newSystemTestEnv(t, base, configuration.Configuration{
		TachRollingWindowSize:     5,
		NumFansNonFuncForCritical: 1,
		Fans:                      []configuration.FanConfig{countFanConfig(base, "fan0")},
	})
	fan := env.system.Fans()[0]

	// WHEN the fan fails
	base.setInput("fan0_0", 0)
	env.loop.PostSync(func() {
		fan.Poll()
		fan.countTimerExpired()
	})

	// THEN the critical condition is raised
	env.loop.PostSync(func() {
		assert.False(t, fan.Functional())
		assert.True(t, env.system.criticalReported)
	})

	// WHEN the fan recovers
	base.setInput("fan0_0", 1000)
	env.loop.PostSync(func() {
		fan.Poll()
		fan.countTimerExpired()
	})

	// THEN the condition is cleared and re-armed
	env.loop.PostSync(func() {
		assert.True(t, fan.Functional())
		assert.False(t, env.system.criticalReported)
	})
}

func TestSystemAssumesPowerOffWhenUnreadable(t *testing.T) {
	// GIVEN a power file that does not exist yet
	env := newFanTestEnv(t)
	powerSource := power.NewSource(configuration.PowerConfig{
		File: &configuration.FilePowerConfig{Path: filepath.Join(env.dir, "missing")},
	})
	system := NewSystem(env.loop, env.inv, powerSource)

	// WHEN
	env.loop.PostSync(func() {
		assert.NoError(t, system.Init(configuration.Configuration{TachRollingWindowSize: 5}))
	})

	// THEN the chassis is treated as powered off
	env.loop.PostSync(func() {
		assert.False(t, system.IsPowerOn())
	})
}
