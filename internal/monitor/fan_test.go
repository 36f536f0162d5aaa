package monitor

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/markusressel/tachmon/internal/configuration"
	"github.com/markusressel/tachmon/internal/inventory"
	"github.com/markusressel/tachmon/internal/trust"
	"github.com/markusressel/tachmon/internal/util"
	"github.com/stretchr/testify/assert"
)

type mockReporter struct {
	powerOn bool

	statusChanges int
	recoveries    int
	missingFans   []string
	sensorErrors  []string
}

func (m *mockReporter) IsPowerOn() bool {
	return m.powerOn
}

func (m *mockReporter) FanStatusChange(fan *Fan, recovered bool) {
	m.statusChanges++
	if recovered {
		m.recoveries++
	}
}

func (m *mockReporter) FanMissingErrorTimerExpired(fan *Fan) {
	m.missingFans = append(m.missingFans, fan.Name())
}

func (m *mockReporter) SensorErrorTimerExpired(fan *Fan, sensor *TachSensor) {
	m.sensorErrors = append(m.sensorErrors, sensor.Name())
}

type fanTestEnv struct {
	t        *testing.T
	dir      string
	loop     *Loop
	inv      inventory.Inventory
	reporter *mockReporter
}

func newFanTestEnv(t *testing.T) *fanTestEnv {
	env := &fanTestEnv{
		t:        t,
		dir:      t.TempDir(),
		loop:     startLoop(t),
		reporter: &mockReporter{powerOn: true},
	}
	env.inv = inventory.NewInventory(filepath.Join(env.dir, "inventory.db"))
	assert.NoError(t, env.inv.Init())
	return env
}

// fileSensor creates the backing input/target files of a sensor and
// returns its config.
func (env *fanTestEnv) fileSensor(id string, input int, target int) configuration.SensorConfig {
	inputPath := filepath.Join(env.dir, id+"_input")
	targetPath := filepath.Join(env.dir, id+"_target")
	assert.NoError(env.t, util.WriteIntToFile(input, inputPath))
	assert.NoError(env.t, util.WriteIntToFile(target, targetPath))
	return configuration.SensorConfig{
		ID:        id,
		HasTarget: true,
		File: &configuration.FileSensorConfig{
			Path:       inputPath,
			TargetPath: targetPath,
		},
	}
}

func (env *fanTestEnv) setInput(id string, input int) {
	assert.NoError(env.t, util.WriteIntToFile(input, filepath.Join(env.dir, id+"_input")))
}

// newFan constructs the fan on the loop and starts monitoring right away.
func (env *fanTestEnv) newFan(def configuration.FanConfig, trustManager *trust.Manager) *Fan {
	var fan *Fan
	env.loop.PostSync(func() {
		var err error
		fan, err = NewFan(env.loop, def, trustManager, env.inv, env.reporter, 5)
		assert.NoError(env.t, err)
		fan.StartMonitor()
	})
	return fan
}

func (env *fanTestEnv) fanFunctionalInInventory(fanName string) bool {
	value, err := env.inv.GetProperty(fanName, inventory.InterfaceOperationalStatus, inventory.PropertyFunctional)
	assert.NoError(env.t, err)
	functional, ok := value.(bool)
	assert.True(env.t, ok)
	return functional
}

func TestFanCountMethodThresholdAndExactZeroRecovery(t *testing.T) {
	// GIVEN a fan with a single count method sensor
	env := newFanTestEnv(t)
	def := configuration.FanConfig{
		ID:                       "fan0",
		Deviation:                0.1,
		NumSensorFailsForNonFunc: 1,
		CountInterval:            time.Hour,
		Sensors: []configuration.SensorConfig{
			env.fileSensor("fan0_0", 1000, 1000),
		},
	}
	def.Sensors[0].Method = configuration.MethodCount
	def.Sensors[0].Threshold = 3
	fan := env.newFan(def, trust.NewManager())

	// WHEN the tach sticks at zero for fewer ticks than the threshold
	env.setInput("fan0_0", 0)
	env.loop.PostSync(func() {
		fan.Poll()
		fan.countTimerExpired()
		fan.Poll()
		fan.countTimerExpired()
	})

	// THEN nothing flips yet
	env.loop.PostSync(func() {
		assert.True(t, fan.Sensors()[0].Functional())
		assert.Equal(t, 2, fan.Sensors()[0].GetCounter())
		assert.True(t, fan.Functional())
	})

	// WHEN the fault persists through the final tick
	env.loop.PostSync(func() {
		fan.Poll()
		fan.countTimerExpired()
	})

	// THEN the sensor and the fan flip and the verdict is published
	env.loop.PostSync(func() {
		assert.False(t, fan.Sensors()[0].Functional())
		assert.False(t, fan.Functional())
	})
	assert.False(t, env.fanFunctionalInInventory("fan0"))

	// WHEN the tach recovers but the counter has not fully drained
	env.setInput("fan0_0", 1000)
	env.loop.PostSync(func() {
		fan.Poll()
		fan.countTimerExpired()
		fan.Poll()
		fan.countTimerExpired()
	})

	// THEN the sensor stays non-functional
	env.loop.PostSync(func() {
		assert.False(t, fan.Sensors()[0].Functional())
		assert.Equal(t, 1, fan.Sensors()[0].GetCounter())
	})

	// WHEN the counter drains to exactly zero
	env.loop.PostSync(func() {
		fan.Poll()
		fan.countTimerExpired()
	})

	// THEN the sensor and the fan recover
	env.loop.PostSync(func() {
		assert.True(t, fan.Sensors()[0].Functional())
		assert.True(t, fan.Functional())
	})
	assert.True(t, env.fanFunctionalInInventory("fan0"))
}

func TestFanTimebasedDebounce(t *testing.T) {
	// GIVEN a fan with a single timebased sensor
	env := newFanTestEnv(t)
	def := configuration.FanConfig{
		ID:                       "fan0",
		Deviation:                0.1,
		NumSensorFailsForNonFunc: 1,
		NonFunctionalDelay:       50 * time.Millisecond,
		FunctionalDelay:          50 * time.Millisecond,
		Sensors: []configuration.SensorConfig{
			env.fileSensor("fan0_0", 1000, 1000),
		},
	}
	fan := env.newFan(def, trust.NewManager())

	// WHEN the tach blips out of range for less than the delay
	env.setInput("fan0_0", 0)
	env.loop.PostSync(func() { fan.Poll() })
	time.Sleep(20 * time.Millisecond)
	env.setInput("fan0_0", 1000)
	env.loop.PostSync(func() { fan.Poll() })
	time.Sleep(100 * time.Millisecond)

	// THEN the sensor never flips
	env.loop.PostSync(func() {
		assert.True(t, fan.Sensors()[0].Functional())
		assert.True(t, fan.Functional())
	})

	// WHEN the fault is sustained beyond the delay
	env.setInput("fan0_0", 0)
	env.loop.PostSync(func() { fan.Poll() })
	time.Sleep(150 * time.Millisecond)

	// THEN the sensor and the fan flip to non-functional
	env.loop.PostSync(func() {
		assert.False(t, fan.Sensors()[0].Functional())
		assert.False(t, fan.Functional())
	})
	assert.False(t, env.fanFunctionalInInventory("fan0"))

	// WHEN the tach recovers and stays in range beyond the delay
	env.setInput("fan0_0", 1000)
	env.loop.PostSync(func() { fan.Poll() })
	time.Sleep(150 * time.Millisecond)

	// THEN the sensor and the fan recover
	env.loop.PostSync(func() {
		assert.True(t, fan.Sensors()[0].Functional())
		assert.True(t, fan.Functional())
	})
	assert.True(t, env.fanFunctionalInInventory("fan0"))
}

func TestFanRollupRequiresConfiguredNumberOfSensorFails(t *testing.T) {
	// GIVEN a fan that needs both sensors to fail before it flips
	env := newFanTestEnv(t)
	def := configuration.FanConfig{
		ID:                       "fan0",
		Deviation:                0.1,
		NumSensorFailsForNonFunc: 2,
		CountInterval:            time.Hour,
		Sensors: []configuration.SensorConfig{
			env.fileSensor("fan0_0", 1000, 1000),
			env.fileSensor("fan0_1", 1000, 1000),
		},
	}
	for i := range def.Sensors {
		def.Sensors[i].Method = configuration.MethodCount
		def.Sensors[i].Threshold = 1
	}

	events := env.inv.Subscribe()
	fan := env.newFan(def, trust.NewManager())
	<-events // initial object creation

	// WHEN only one sensor fails
	env.setInput("fan0_0", 0)
	env.loop.PostSync(func() {
		fan.Poll()
		fan.countTimerExpired()
	})

	// THEN the fan level verdict is untouched
	env.loop.PostSync(func() {
		assert.False(t, fan.Sensors()[0].Functional())
		assert.True(t, fan.Sensors()[1].Functional())
		assert.True(t, fan.Functional())
	})
	assert.Empty(t, events)

	// WHEN the second sensor also fails
	env.setInput("fan0_1", 0)
	env.loop.PostSync(func() {
		fan.Poll()
		fan.countTimerExpired()
	})

	// THEN the fan flips and exactly one publish happens
	env.loop.PostSync(func() {
		assert.False(t, fan.Functional())
	})
	event := <-events
	assert.Equal(t, "fan0", event.Object)
	assert.False(t, event.Added)
	assert.Equal(t, false, event.Interfaces[inventory.InterfaceOperationalStatus][inventory.PropertyFunctional])
	assert.Empty(t, events)
}

func TestFanTrustRejectionIsInert(t *testing.T) {
	// GIVEN two sensors in a common trust group, both stuck at zero
	env := newFanTestEnv(t)
	def := configuration.FanConfig{
		ID:                       "fan0",
		Deviation:                0.1,
		NumSensorFailsForNonFunc: 1,
		CountInterval:            time.Hour,
		Sensors: []configuration.SensorConfig{
			env.fileSensor("fan0_0", 0, 1000),
			env.fileSensor("fan0_1", 0, 1000),
		},
	}
	for i := range def.Sensors {
		def.Sensors[i].Method = configuration.MethodCount
		def.Sensors[i].Threshold = 2
		def.Sensors[i].TrustGroup = "chassis"
	}
	fan := env.newFan(def, trust.NewManager())

	// WHEN evaluation ticks arrive while no group member corroborates
	env.loop.PostSync(func() {
		fan.Poll()
		fan.countTimerExpired()
		fan.Poll()
		fan.countTimerExpired()
		fan.Poll()
		fan.countTimerExpired()
	})

	// THEN the readings are skipped entirely, no counter moves
	env.loop.PostSync(func() {
		assert.Equal(t, 0, fan.Sensors()[0].GetCounter())
		assert.Equal(t, 0, fan.Sensors()[1].GetCounter())
		assert.True(t, fan.Functional())
	})

	// WHEN one sensor recovers and corroborates its peer
	env.setInput("fan0_1", 1000)
	env.loop.PostSync(func() {
		fan.Poll()
		fan.countTimerExpired()
	})

	// THEN the still-stuck sensor is evaluated again
	env.loop.PostSync(func() {
		assert.Equal(t, 1, fan.Sensors()[0].GetCounter())
	})
}

func TestFanPowerOffFreezesMonitoring(t *testing.T) {
	// GIVEN a monitored fan with a running count tick
	env := newFanTestEnv(t)
	def := configuration.FanConfig{
		ID:                       "fan0",
		Deviation:                0.1,
		NumSensorFailsForNonFunc: 1,
		CountInterval:            time.Hour,
		Sensors: []configuration.SensorConfig{
			env.fileSensor("fan0_0", 1000, 1000),
		},
	}
	def.Sensors[0].Method = configuration.MethodCount
	def.Sensors[0].Threshold = 1
	fan := env.newFan(def, trust.NewManager())

	// WHEN power goes off while the tach winds down
	env.setInput("fan0_0", 0)
	env.loop.PostSync(func() {
		env.reporter.powerOn = false
		fan.PowerStateChanged(false)
	})

	// THEN monitoring is frozen, polling is inert and all timers stop
	env.loop.PostSync(func() {
		assert.False(t, fan.MonitorReady())
		assert.False(t, fan.countTimer.Running())
		assert.False(t, fan.monitorTimer.Running())

		fan.Poll()
		assert.Equal(t, 0, fan.Sensors()[0].GetCounter())
		assert.True(t, fan.Sensors()[0].Functional())
		assert.True(t, fan.Functional())
	})
}

func TestFanPowerOnRestoresSensorsAndRearmsMonitoring(t *testing.T) {
	// GIVEN a fan that failed and then lost power
	env := newFanTestEnv(t)
	def := configuration.FanConfig{
		ID:                       "fan0",
		Deviation:                0.1,
		NumSensorFailsForNonFunc: 1,
		MonitorStartDelay:        time.Hour,
		CountInterval:            time.Hour,
		Sensors: []configuration.SensorConfig{
			env.fileSensor("fan0_0", 0, 1000),
		},
	}
	def.Sensors[0].Method = configuration.MethodCount
	def.Sensors[0].Threshold = 1
	fan := env.newFan(def, trust.NewManager())

	env.loop.PostSync(func() {
		fan.Poll()
		fan.countTimerExpired()
	})
	env.loop.PostSync(func() {
		assert.False(t, fan.Functional())
		env.reporter.powerOn = false
		fan.PowerStateChanged(false)
	})

	// WHEN power returns with the tach spinning again
	env.setInput("fan0_0", 1000)
	env.loop.PostSync(func() {
		env.reporter.powerOn = true
		fan.PowerStateChanged(true)
	})

	// THEN the sensor recovers immediately, its counter resets and the
	// fan is published functional again
	env.loop.PostSync(func() {
		assert.True(t, fan.Sensors()[0].Functional())
		assert.Equal(t, 0, fan.Sensors()[0].GetCounter())
		assert.True(t, fan.Functional())
		assert.Equal(t, 1, env.reporter.recoveries)
		assert.True(t, fan.monitorTimer.Running())
	})
	assert.True(t, env.fanFunctionalInInventory("fan0"))
}

func TestFanMissingErrorReportedAfterDelay(t *testing.T) {
	// GIVEN a present, powered fan with a short absence delay
	env := newFanTestEnv(t)
	def := configuration.FanConfig{
		ID:                       "fan0",
		Deviation:                0.1,
		NumSensorFailsForNonFunc: 1,
		MissingErrorDelay:        30 * time.Millisecond,
		NonFunctionalDelay:       time.Hour,
		FunctionalDelay:          time.Hour,
		Sensors: []configuration.SensorConfig{
			env.fileSensor("fan0_0", 1000, 1000),
		},
	}
	fan := env.newFan(def, trust.NewManager())

	// WHEN the fan is removed
	assert.NoError(t, env.inv.Notify(map[string]map[string]map[string]interface{}{
		"fan0": {
			inventory.InterfaceItem: {
				inventory.PropertyPresent: false,
			},
		},
	}))
	env.loop.PostSync(func() {
		fan.PresenceChanged(inventory.Event{
			Object: "fan0",
			Interfaces: map[string]map[string]interface{}{
				inventory.InterfaceItem: {
					inventory.PropertyPresent: false,
				},
			},
		})
	})

	// THEN the absence is reported after the configured delay
	env.loop.PostSync(func() {
		assert.False(t, fan.Present())
		assert.True(t, fan.missingTimer.Running())
	})
	time.Sleep(100 * time.Millisecond)
	env.loop.PostSync(func() {
		assert.Equal(t, []string{"fan0"}, env.reporter.missingFans)
	})

	// WHEN the fan returns
	env.loop.PostSync(func() {
		fan.PresenceChanged(inventory.Event{
			Object: "fan0",
			Interfaces: map[string]map[string]interface{}{
				inventory.InterfaceItem: {
					inventory.PropertyPresent: true,
				},
			},
		})
	})

	// THEN presence is restored and the timer is disarmed
	env.loop.PostSync(func() {
		assert.True(t, fan.Present())
		assert.False(t, fan.missingTimer.Running())
	})
}

func TestFanSensorErrorReportedAfterSustainedFault(t *testing.T) {
	// GIVEN a fan with a short sustained-sensor-fault delay
	env := newFanTestEnv(t)
	def := configuration.FanConfig{
		ID:                       "fan0",
		Deviation:                0.1,
		NumSensorFailsForNonFunc: 1,
		CountInterval:            time.Hour,
		SensorErrorDelay:         30 * time.Millisecond,
		Sensors: []configuration.SensorConfig{
			env.fileSensor("fan0_0", 0, 1000),
		},
	}
	def.Sensors[0].Method = configuration.MethodCount
	def.Sensors[0].Threshold = 1
	fan := env.newFan(def, trust.NewManager())

	// WHEN the sensor fails and stays failed past the delay
	env.loop.PostSync(func() {
		fan.Poll()
		fan.countTimerExpired()
	})
	time.Sleep(100 * time.Millisecond)

	// THEN the sustained fault is reported
	env.loop.PostSync(func() {
		assert.False(t, fan.Sensors()[0].Functional())
		assert.Equal(t, []string{"fan0_0"}, env.reporter.sensorErrors)
	})
}
