package monitor

import (
	"fmt"
	"time"

	"github.com/asecurityteam/rolling"
	"github.com/markusressel/tachmon/internal/configuration"
	"github.com/markusressel/tachmon/internal/tach"
	"github.com/markusressel/tachmon/internal/util"
)

type TimerMode int

const (
	// TimerModeNonFunc debounces the transition toward non-functional
	TimerModeNonFunc TimerMode = iota
	// TimerModeFunc debounces the transition back toward functional
	TimerModeFunc
)

type transition int

const (
	transitionNone transition = iota
	transitionToNonFunctional
	transitionToFunctional
)

// faultMethod is the fault detection mechanism of a sensor. Exactly one
// variant is active per sensor, fixed at construction.
type faultMethod interface {
	// step evaluates the current range membership and decides whether
	// the sensor's functional state should flip
	step(outOfRange bool, functional bool) transition
}

// timebasedMethod debounces state flips with a timer that must run to
// completion, uninterrupted by a contrary reading.
type timebasedMethod struct {
	nonFuncDelay time.Duration
	funcDelay    time.Duration

	timer *Timer
	mode  TimerMode
}

func (m *timebasedMethod) step(outOfRange bool, functional bool) transition {
	if outOfRange {
		if functional {
			// a timer already debouncing this transition is never re-armed
			m.start(TimerModeNonFunc)
		} else if m.running(TimerModeFunc) {
			// leaving the in-range condition cancels the recovery timer
			m.timer.Stop()
		}
	} else {
		if functional {
			if m.running(TimerModeNonFunc) {
				m.timer.Stop()
			}
		} else {
			m.start(TimerModeFunc)
		}
	}

	// state flips only happen on timer expiry
	return transitionNone
}

func (m *timebasedMethod) start(mode TimerMode) {
	if m.timer.Running() && m.mode == mode {
		return
	}
	m.mode = mode
	delay := m.nonFuncDelay
	if mode == TimerModeFunc {
		delay = m.funcDelay
	}
	m.timer.StartOnce(delay)
}

func (m *timebasedMethod) running(mode TimerMode) bool {
	return m.timer.Running() && m.mode == mode
}

// countMethod accumulates out-of-range evidence in a hysteresis counter:
// sustained faults add up to the threshold before acting, recovery
// requires a full clean run back to zero.
type countMethod struct {
	counter   int
	threshold int
}

func (m *countMethod) step(outOfRange bool, functional bool) transition {
	if outOfRange {
		if functional {
			m.counter++
			if m.counter >= m.threshold {
				return transitionToNonFunctional
			}
		}
	} else {
		if m.counter > 0 {
			m.counter--
		}
		if !functional && m.counter == 0 {
			return transitionToFunctional
		}
	}
	return transitionNone
}

// TachSensor owns the raw input/target values and the fault detection
// state for one physical feedback channel.
type TachSensor struct {
	name       string
	fanName    string
	hasTarget  bool
	trustGroup string

	factor    float64
	offset    float64
	deviation float64

	source tach.Source
	window *rolling.PointPolicy

	// borrowTarget supplies the target of a sibling sensor for
	// targetless channels, wired by the owning fan
	borrowTarget func() float64

	input  float64
	target float64

	functional bool

	method faultMethod

	errorDelay time.Duration
	errorTimer *Timer
}

func NewTachSensor(
	loop *Loop,
	fanConfig configuration.FanConfig,
	config configuration.SensorConfig,
	source tach.Source,
	windowSize int,
	onTimerExpired func(sensor *TachSensor, mode TimerMode),
	onError func(sensor *TachSensor),
) *TachSensor {
	factor := config.Factor
	if factor == 0 {
		factor = 1
	}

	s := &TachSensor{
		name:       config.ID,
		fanName:    fanConfig.ID,
		hasTarget:  config.HasTarget,
		trustGroup: config.TrustGroup,
		factor:     factor,
		offset:     config.Offset,
		deviation:  fanConfig.Deviation,
		source:     source,
		window:     util.CreateRollingWindow(windowSize),
		functional: true,
	}

	switch config.Method {
	case configuration.MethodCount:
		s.method = &countMethod{
			threshold: config.Threshold,
		}
	default:
		method := &timebasedMethod{
			nonFuncDelay: fanConfig.NonFunctionalDelay,
			funcDelay:    fanConfig.FunctionalDelay,
		}
		method.timer = NewTimer(loop, func() {
			onTimerExpired(s, method.mode)
		})
		s.method = method
	}

	if fanConfig.SensorErrorDelay > 0 {
		s.errorDelay = fanConfig.SensorErrorDelay
		s.errorTimer = NewTimer(loop, func() {
			onError(s)
		})
	}

	return s
}

func (s *TachSensor) Name() string {
	return s.name
}

func (s *TachSensor) FanName() string {
	return s.fanName
}

func (s *TachSensor) HasTarget() bool {
	return s.hasTarget
}

func (s *TachSensor) TrustGroup() string {
	return s.trustGroup
}

// UpdateTachAndTarget pulls the current input and target values from the
// sensor source. Returns tach.ErrSourceUnavailable while the backing
// values are not yet published, the caller must treat the sensor as
// still non-functional and retry later.
func (s *TachSensor) UpdateTachAndTarget() error {
	input, err := s.source.GetInput()
	if err != nil {
		return fmt.Errorf("sensor %s: %w", s.name, err)
	}
	s.input = input
	s.window.Append(input)
	s.source.SetMovingAvg(util.GetWindowAvg(s.window))

	if s.hasTarget {
		target, err := s.source.GetTarget()
		if err != nil {
			return fmt.Errorf("sensor %s: %w", s.name, err)
		}
		s.target = target
	}

	return nil
}

func (s *TachSensor) GetInput() float64 {
	return s.input
}

// GetTarget returns the requested speed of this channel. A targetless
// sensor borrows the target from a sibling, if none exposes one the
// target is zero and the allowed range collapses to an absolute band.
func (s *TachSensor) GetTarget() float64 {
	if s.hasTarget {
		return s.target
	}
	if s.borrowTarget != nil {
		return s.borrowTarget()
	}
	return 0
}

// GetRange returns the acceptable input band for the given deviation
// fraction, derived from the scaled target.
func (s *TachSensor) GetRange(deviation float64) (float64, float64) {
	target := s.GetTarget()*s.factor + s.offset
	return target * (1 - deviation), target * (1 + deviation)
}

// InRange indicates whether the current input is within the allowed band.
func (s *TachSensor) InRange() bool {
	min, max := s.GetRange(s.deviation)
	return s.input >= min && s.input <= max
}

func (s *TachSensor) Functional() bool {
	return s.functional
}

// SetFunctional overrides the functional state without going through
// the gradual state machine, used on fast-path recovery. It also arms
// or disarms the sustained-sensor-fault timer.
func (s *TachSensor) SetFunctional(functional bool) {
	s.functional = functional

	if s.errorTimer == nil {
		return
	}
	if functional {
		s.errorTimer.Stop()
	} else {
		s.errorTimer.StartOnce(s.errorDelay)
	}
}

// step runs one fault detection evaluation for the current reading.
func (s *TachSensor) step(outOfRange bool) transition {
	return s.method.step(outOfRange, s.functional)
}

// StartTimer arms the debounce timer for the given mode.
// Only meaningful for timebased sensors.
func (s *TachSensor) StartTimer(mode TimerMode) {
	if method, ok := s.method.(*timebasedMethod); ok {
		method.start(mode)
	}
}

// StopTimer disarms the debounce timer, idempotent.
func (s *TachSensor) StopTimer() {
	if method, ok := s.method.(*timebasedMethod); ok {
		method.timer.Stop()
	}
}

func (s *TachSensor) TimerRunning() bool {
	if method, ok := s.method.(*timebasedMethod); ok {
		return method.timer.Running()
	}
	return false
}

// SetCounter increments the hysteresis counter while out of range and
// decrements it (floored at zero) while in range.
// Only meaningful for count sensors.
func (s *TachSensor) SetCounter(outOfRange bool) {
	method, ok := s.method.(*countMethod)
	if !ok {
		return
	}
	if outOfRange {
		method.counter++
	} else if method.counter > 0 {
		method.counter--
	}
}

func (s *TachSensor) GetCounter() int {
	if method, ok := s.method.(*countMethod); ok {
		return method.counter
	}
	return 0
}

func (s *TachSensor) GetThreshold() int {
	if method, ok := s.method.(*countMethod); ok {
		return method.threshold
	}
	return 0
}

// UsesCountMethod indicates whether this sensor is driven by the
// periodic count tick instead of immediate evaluation.
func (s *TachSensor) UsesCountMethod() bool {
	_, ok := s.method.(*countMethod)
	return ok
}

// ResetMethod zeroes the hysteresis counter, used on power-on.
func (s *TachSensor) ResetMethod() {
	if method, ok := s.method.(*countMethod); ok {
		method.counter = 0
	}
}
