package monitor

import (
	"github.com/markusressel/tachmon/internal/configuration"
	"github.com/markusressel/tachmon/internal/inventory"
	"github.com/markusressel/tachmon/internal/power"
	"github.com/markusressel/tachmon/internal/statistics"
	"github.com/markusressel/tachmon/internal/trust"
	"github.com/markusressel/tachmon/internal/ui"
)

// System owns all monitored fans, the power gate and the shared trust
// manager, and aggregates fan verdicts into the chassis level health.
type System struct {
	loop         *Loop
	inv          inventory.Inventory
	trustManager *trust.Manager
	powerSource  power.Source

	fans []*Fan

	powerOn bool

	numFansNonFuncForCritical int
	criticalReported          bool
}

func NewSystem(
	loop *Loop,
	inv inventory.Inventory,
	powerSource power.Source,
) *System {
	return &System{
		loop:         loop,
		inv:          inv,
		trustManager: trust.NewManager(),
		powerSource:  powerSource,
	}
}

// Init reads the initial power state and constructs all configured fans.
func (s *System) Init(config configuration.Configuration) error {
	s.numFansNonFuncForCritical = config.NumFansNonFuncForCritical

	powerOn, err := s.powerSource.IsPowerOn()
	if err != nil {
		ui.Warning("Unable to read initial power state, assuming off: %v", err)
		powerOn = false
	}
	s.powerOn = powerOn

	for _, fanConfig := range config.Fans {
		fan, err := NewFan(s.loop, fanConfig, s.trustManager, s.inv, s, config.TachRollingWindowSize)
		if err != nil {
			return err
		}
		s.fans = append(s.fans, fan)
	}

	return nil
}

func (s *System) Fans() []*Fan {
	return s.fans
}

func (s *System) TrustManager() *trust.Manager {
	return s.trustManager
}

func (s *System) IsPowerOn() bool {
	return s.powerOn
}

// SetPowerState applies a power state change to all fans.
// A repeated notification of the current state is ignored.
func (s *System) SetPowerState(powerOn bool) {
	if s.powerOn == powerOn {
		return
	}
	s.powerOn = powerOn
	ui.Info("Power state changed to %t", powerOn)

	for _, fan := range s.fans {
		fan.PowerStateChanged(powerOn)
	}
}

// PollPower reads the power source and applies any change.
func (s *System) PollPower() {
	powerOn, err := s.powerSource.IsPowerOn()
	if err != nil {
		ui.Debug("Unable to read power state: %v", err)
		return
	}
	s.SetPowerState(powerOn)
}

// PollTachs refreshes all sensor readings of all fans.
func (s *System) PollTachs() {
	for _, fan := range s.fans {
		fan.Poll()
	}
}

// InventoryEvent routes an inventory change to the fan owning the
// changed object. Events for objects tachmon doesn't monitor are
// ignored.
func (s *System) InventoryEvent(event inventory.Event) {
	for _, fan := range s.fans {
		if fan.Name() != event.Object {
			continue
		}
		if event.Added {
			fan.PresenceAdded(event)
		} else {
			fan.PresenceChanged(event)
		}
		return
	}
}

// FanStatusChange recomputes the chassis level health whenever a fan
// reports a state change. Crossing the configured threshold of
// unhealthy fans while powered on raises a critical condition once,
// dropping back below it re-arms the report.
func (s *System) FanStatusChange(fan *Fan, recovered bool) {
	direction := "down"
	if fan.Functional() {
		direction = "up"
	}
	statistics.FanStatusChanges.WithLabelValues(fan.Name(), direction).Inc()

	if recovered {
		ui.Info("Fan %s recovered at power on", fan.Name())
	}

	if s.numFansNonFuncForCritical <= 0 {
		return
	}

	numUnhealthy := 0
	for _, candidate := range s.fans {
		if !candidate.Functional() || !candidate.Present() {
			numUnhealthy++
		}
	}

	if numUnhealthy >= s.numFansNonFuncForCritical && s.powerOn {
		if !s.criticalReported {
			ui.ErrorAndNotify("Fan health critical", "%d fans are non-functional or missing", numUnhealthy)
			s.criticalReported = true
		}
	} else if numUnhealthy < s.numFansNonFuncForCritical {
		s.criticalReported = false
	}
}

// FanMissingErrorTimerExpired reports a fan that stayed missing for its
// configured absence delay.
func (s *System) FanMissingErrorTimerExpired(fan *Fan) {
	ui.ErrorAndNotify("Fan missing", "Fan %s has been missing for too long while powered on", fan.Name())
	statistics.FanMissingErrors.WithLabelValues(fan.Name()).Inc()
}

// SensorErrorTimerExpired reports a sensor that stayed non-functional
// for its configured fault delay.
func (s *System) SensorErrorTimerExpired(fan *Fan, sensor *TachSensor) {
	ui.Error("Tach sensor %s of fan %s has been non-functional for too long", sensor.Name(), fan.Name())
	statistics.SensorErrors.WithLabelValues(fan.Name(), sensor.Name()).Inc()
}
