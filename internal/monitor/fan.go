package monitor

import (
	"errors"
	"time"

	"github.com/markusressel/tachmon/internal/configuration"
	"github.com/markusressel/tachmon/internal/inventory"
	"github.com/markusressel/tachmon/internal/tach"
	"github.com/markusressel/tachmon/internal/trust"
	"github.com/markusressel/tachmon/internal/ui"
)

// StatusReporter receives fan state change reports for system wide
// aggregation and escalation. It also owns the power gate consulted
// before any fault action is taken.
type StatusReporter interface {
	IsPowerOn() bool
	FanStatusChange(fan *Fan, recovered bool)
	FanMissingErrorTimerExpired(fan *Fan)
	SensorErrorTimerExpired(fan *Fan, sensor *TachSensor)
}

// Fan owns the tach sensors of one physical fan unit and aggregates
// their functional states into a fan level verdict published to the
// inventory.
type Fan struct {
	name                     string
	deviation                float64
	numSensorFailsForNonFunc int

	monitorDelay  time.Duration
	missingDelay  time.Duration
	countInterval time.Duration

	trustManager *trust.Manager
	inv          inventory.Inventory
	reporter     StatusReporter

	sensors []*TachSensor

	present      bool
	functional   bool
	monitorReady bool

	monitorTimer *Timer
	missingTimer *Timer
	countTimer   *Timer
}

func NewFan(
	loop *Loop,
	def configuration.FanConfig,
	trustManager *trust.Manager,
	inv inventory.Inventory,
	reporter StatusReporter,
	windowSize int,
) (*Fan, error) {
	f := &Fan{
		name:                     def.ID,
		deviation:                def.Deviation,
		numSensorFailsForNonFunc: def.NumSensorFailsForNonFunc,
		monitorDelay:             def.MonitorStartDelay,
		missingDelay:             def.MissingErrorDelay,
		countInterval:            def.CountInterval,
		trustManager:             trustManager,
		inv:                      inv,
		reporter:                 reporter,
		present:                  true,
	}

	// start from a known state of functional,
	// even if numSensorFailsForNonFunc is 0
	f.updateInventory(true)

	enableCountTimer := false
	for _, sensorConfig := range def.Sensors {
		source, err := tach.NewSource(def.ID, sensorConfig)
		if err != nil {
			return nil, err
		}
		tach.SourceMap.Set(source.GetId(), source)

		sensor := NewTachSensor(loop, def, sensorConfig, source, windowSize, f.timerExpired, f.sensorErrorTimerExpired)
		sensor.borrowTarget = f.findTargetSpeedFor(sensorConfig.TargetSensor)
		f.sensors = append(f.sensors, sensor)

		trustManager.RegisterSensor(sensor)
		if sensor.UsesCountMethod() {
			enableCountTimer = true
		}
	}

	// the count method needs a repeating tick so that stuck sensors
	// keep being checked, it is armed by startMonitor
	if enableCountTimer {
		f.countTimer = NewTimer(loop, f.countTimerExpired)
	}

	f.monitorTimer = NewTimer(loop, f.StartMonitor)

	if f.missingDelay > 0 {
		f.missingTimer = NewTimer(loop, func() {
			reporter.FanMissingErrorTimerExpired(f)
		})
	}

	value, err := inv.GetProperty(f.name, inventory.InterfaceItem, inventory.PropertyPresent)
	if err != nil {
		// this can happen on the first boot if the presence detect
		// daemon hasn't published an inventory entry yet
		if !errors.Is(err, inventory.ErrNotFound) {
			ui.Warning("Unable to read presence of fan %s: %v", f.name, err)
		}
	} else if present, ok := value.(bool); ok {
		f.present = present
		if !f.present {
			ui.Info("On startup, fan %s is missing", f.name)
			if reporter.IsPowerOn() && f.missingTimer != nil {
				f.missingTimer.StartOnce(f.missingDelay)
			}
		}
	}

	if reporter.IsPowerOn() {
		f.monitorTimer.StartOnce(f.monitorDelay)
	}

	return f, nil
}

func (f *Fan) Name() string {
	return f.name
}

func (f *Fan) Functional() bool {
	return f.functional
}

func (f *Fan) Present() bool {
	return f.present
}

func (f *Fan) MonitorReady() bool {
	return f.monitorReady
}

func (f *Fan) Sensors() []*TachSensor {
	return f.sensors
}

// StartMonitor transitions the fan from constructed to actively
// evaluating. Sensors whose source is still unpublished are set to
// non-functional right away, monitoring must not create false
// confidence without real data.
func (f *Fan) StartMonitor() {
	f.monitorReady = true

	if f.countTimer != nil {
		f.countTimer.StartRepeating(f.countInterval)
	}

	for _, sensor := range f.sensors {
		if !f.present {
			continue
		}

		if err := sensor.UpdateTachAndTarget(); err != nil {
			ui.Warning("Monitoring starting but sensor %s value is not published: %v", sensor.Name(), err)

			sensor.SetFunctional(false)

			if f.numSensorFailsForNonFunc > 0 {
				if f.functional && f.countNonFunctionalSensors() >= f.numSensorFailsForNonFunc {
					f.updateInventory(false)
				}
			}

			f.reporter.FanStatusChange(f, false)
			continue
		}

		f.tachChanged(sensor)
	}
}

// Poll refreshes all sensor readings and evaluates them.
func (f *Fan) Poll() {
	if !f.monitorReady {
		return
	}

	for _, sensor := range f.sensors {
		if err := sensor.UpdateTachAndTarget(); err != nil {
			ui.Debug("Skipping unavailable sensor: %v", err)
			continue
		}
		f.tachChanged(sensor)
	}
}

// TachChanged evaluates all sensors of this fan.
func (f *Fan) TachChanged() {
	if !f.monitorReady {
		return
	}
	for _, sensor := range f.sensors {
		f.tachChanged(sensor)
	}
}

func (f *Fan) tachChanged(sensor *TachSensor) {
	if !f.reporter.IsPowerOn() || !f.monitorReady {
		return
	}

	if f.trustManager.Active() && !f.trustManager.CheckTrust(sensor) {
		return
	}

	// timebased sensors are evaluated immediately, count sensors wait
	// for the periodic tick so that stuck readings keep being checked
	if !sensor.UsesCountMethod() {
		f.process(sensor)
	}
}

func (f *Fan) countTimerExpired() {
	for _, sensor := range f.sensors {
		if !sensor.UsesCountMethod() {
			continue
		}
		if f.trustManager.Active() && !f.trustManager.CheckTrust(sensor) {
			continue
		}
		f.process(sensor)
	}
}

// process runs one fault detection evaluation for the sensor and flips
// its functional state when the state machine decides a transition.
func (f *Fan) process(sensor *TachSensor) {
	outOfRange := f.outOfRange(sensor)

	switch sensor.step(outOfRange) {
	case transitionToNonFunctional, transitionToFunctional:
		f.updateState(sensor)
	case transitionNone:
	}
}

func (f *Fan) timerExpired(sensor *TachSensor, mode TimerMode) {
	f.updateState(sensor)
}

func (f *Fan) sensorErrorTimerExpired(sensor *TachSensor) {
	if f.present && f.reporter.IsPowerOn() {
		f.reporter.SensorErrorTimerExpired(f, sensor)
	}
}

// findTargetSpeedFor returns the borrow function of a targetless
// sensor: the named sibling if configured, otherwise any sibling
// exposing a target.
func (f *Fan) findTargetSpeedFor(targetSensor string) func() float64 {
	return func() float64 {
		if len(targetSensor) > 0 {
			for _, sibling := range f.sensors {
				if sibling.Name() == targetSensor {
					return sibling.GetTarget()
				}
			}
		}
		for _, sibling := range f.sensors {
			if sibling.HasTarget() {
				return sibling.GetTarget()
			}
		}
		return 0
	}
}

func (f *Fan) countNonFunctionalSensors() int {
	count := 0
	for _, sensor := range f.sensors {
		if !sensor.Functional() {
			count++
		}
	}
	return count
}

func (f *Fan) outOfRange(sensor *TachSensor) bool {
	return !sensor.InRange()
}

// updateState flips the sensor's functional state and recomputes the
// fan level verdict. With numSensorFailsForNonFunc of zero only sensor
// state is tracked and the fan itself never flips.
func (f *Fan) updateState(sensor *TachSensor) {
	if !f.reporter.IsPowerOn() {
		return
	}

	min, max := sensor.GetRange(f.deviation)

	sensor.SetFunctional(!sensor.Functional())
	ui.Info("Setting tach sensor %s functional state to %t. [target = %f, input = %f, allowed range = (%f - %f)]",
		sensor.Name(), sensor.Functional(), sensor.GetTarget(), sensor.GetInput(), min, max)

	if f.numSensorFailsForNonFunc > 0 {
		numNonFuncSensors := f.countNonFunctionalSensors()

		// if the fan was non-functional and enough sensors are now ok,
		// the fan can be set back to functional
		if !f.functional && numNonFuncSensors < f.numSensorFailsForNonFunc {
			ui.Info("Setting fan %s to functional, number of non-functional sensors = %d", f.name, numNonFuncSensors)
			f.updateInventory(true)
		}

		// if the fan is currently functional but too many contained
		// sensors are now non-functional, update it to non-functional
		if f.functional && numNonFuncSensors >= f.numSensorFailsForNonFunc {
			ui.Info("Setting fan %s to nonfunctional, number of non-functional sensors = %d", f.name, numNonFuncSensors)
			f.updateInventory(false)
		}
	}

	f.reporter.FanStatusChange(f, false)
}

// updateInventory publishes the fan level functional state. On failure
// the cached state keeps its last published value so the next
// transition attempt retries the publish.
func (f *Fan) updateInventory(functional bool) {
	err := f.inv.Notify(map[string]map[string]map[string]interface{}{
		f.name: {
			inventory.InterfaceOperationalStatus: {
				inventory.PropertyFunctional: functional,
			},
		},
	})
	if err != nil {
		ui.Error("Error in Notify call to update inventory of fan %s: %v", f.name, err)
		return
	}

	// this always tracks the current state of the inventory
	f.functional = functional
}

// PresenceChanged handles a presence property update for this fan's
// inventory object.
func (f *Fan) PresenceChanged(event inventory.Event) {
	present, ok := inventory.PresentFromEvent(event)
	if !ok {
		return
	}

	f.present = present
	ui.Info("Fan %s presence state change to %t", f.name, f.present)

	f.reporter.FanStatusChange(f, false)

	if f.missingTimer != nil {
		if !f.present && f.reporter.IsPowerOn() {
			f.missingTimer.StartOnce(f.missingDelay)
		} else if f.present && f.missingTimer.Running() {
			f.missingTimer.Stop()
		}
	}
}

// PresenceAdded handles the first publication of this fan's inventory
// object, carrying its full interface map.
func (f *Fan) PresenceAdded(event inventory.Event) {
	present, ok := inventory.PresentFromEvent(event)
	if !ok {
		return
	}

	f.present = present

	if !f.present {
		ui.Info("New fan %s interface added and fan is not present", f.name)
		if f.reporter.IsPowerOn() && f.missingTimer != nil {
			f.missingTimer.StartOnce(f.missingDelay)
		}
	}

	f.reporter.FanStatusChange(f, false)
}

// PowerStateChanged re-arms monitoring on power-on and freezes all
// decisions on power-off. Last published functional state is left
// untouched across a power-down.
func (f *Fan) PowerStateChanged(powerStateOn bool) {
	if powerStateOn {
		f.monitorTimer.StartOnce(f.monitorDelay)

		if f.present {
			for _, sensor := range f.sensors {
				if err := sensor.UpdateTachAndTarget(); err != nil {
					// values still aren't published, startMonitor deals with it
					ui.Info("At power on, tach sensor %s value is not published", sensor.Name())
					continue
				}

				if !sensor.Functional() {
					sensor.SetFunctional(true)
					f.reporter.FanStatusChange(f, true)
				}

				sensor.ResetMethod()
			}

			// if configured to track functional state on the fan itself,
			// set it back to true now if necessary
			if f.numSensorFailsForNonFunc > 0 {
				if !f.functional && f.countNonFunctionalSensors() < f.numSensorFailsForNonFunc {
					f.updateInventory(true)
				}
			}
		} else {
			ui.Info("At power on, fan %s is missing", f.name)

			if f.missingTimer != nil {
				f.missingTimer.StartOnce(f.missingDelay)
			}
		}
	} else {
		f.monitorReady = false

		f.monitorTimer.Stop()

		if f.missingTimer != nil {
			f.missingTimer.Stop()
		}

		for _, sensor := range f.sensors {
			if sensor.TimerRunning() {
				sensor.StopTimer()
			}
			if sensor.errorTimer != nil {
				sensor.errorTimer.Stop()
			}
		}

		if f.countTimer != nil {
			f.countTimer.Stop()
		}
	}
}
