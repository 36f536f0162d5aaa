package trust

import (
	"github.com/markusressel/tachmon/internal/ui"
)

// Sensor is the view the trust layer has on a tach sensor. The manager
// never owns sensors and never mutates them, it only inspects group
// members to decide whether a reading may be acted upon.
type Sensor interface {
	Name() string
	FanName() string

	// TrustGroup returns the redundancy group this sensor belongs to,
	// empty if trust is not configured for it
	TrustGroup() string

	Functional() bool

	// InRange indicates whether the sensor's current reading is within
	// its allowed band
	InRange() bool
}

// Manager arbitrates whether a sensor's reading may be trusted by
// comparing it against its registered redundancy peers.
type Manager struct {
	groups map[string][]Sensor
}

func NewManager() *Manager {
	return &Manager{
		groups: map[string][]Sensor{},
	}
}

// RegisterSensor adds a sensor to its configured group.
// A sensor without a trust group is not registered.
func (m *Manager) RegisterSensor(sensor Sensor) {
	group := sensor.TrustGroup()
	if len(group) <= 0 {
		return
	}
	m.groups[group] = append(m.groups[group], sensor)
}

// Active indicates whether any group has enough members to arbitrate.
func (m *Manager) Active() bool {
	for _, members := range m.groups {
		if len(members) >= 2 {
			return true
		}
	}
	return false
}

// CheckTrust returns true when the sensor's reading is corroborated by
// at least one other group member that currently reports a functional,
// in-range value. A rejected reading must be skipped for this cycle,
// neither improving nor worsening the sensor's state: a whole group
// reporting the same stuck value points at a shared upstream fault, and
// a lone outlier should not fail against a healthy majority.
func (m *Manager) CheckTrust(sensor Sensor) bool {
	group := sensor.TrustGroup()
	if len(group) <= 0 {
		return true
	}

	members := m.groups[group]
	if len(members) < 2 {
		return true
	}

	for _, peer := range members {
		if peer.FanName() == sensor.FanName() && peer.Name() == sensor.Name() {
			continue
		}
		if peer.Functional() && peer.InRange() {
			return true
		}
	}

	ui.Debug("Reading of sensor %s is not corroborated by trust group '%s', skipping", sensor.Name(), group)
	return false
}
