package trust

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type MockSensor struct {
	name       string
	fanName    string
	group      string
	functional bool
	inRange    bool
}

func (s *MockSensor) Name() string {
	return s.name
}

func (s *MockSensor) FanName() string {
	return s.fanName
}

func (s *MockSensor) TrustGroup() string {
	return s.group
}

func (s *MockSensor) Functional() bool {
	return s.functional
}

func (s *MockSensor) InRange() bool {
	return s.inRange
}

func TestManagerInactiveWithoutGroups(t *testing.T) {
	// GIVEN
	manager := NewManager()

	// THEN
	assert.False(t, manager.Active())
}

func TestManagerInactiveWithSingleMember(t *testing.T) {
	// GIVEN
	manager := NewManager()
	manager.RegisterSensor(&MockSensor{name: "fan0_0", fanName: "fan0", group: "rotors"})

	// THEN
	assert.False(t, manager.Active())
}

func TestManagerActiveWithTwoMembers(t *testing.T) {
	// GIVEN
	manager := NewManager()
	manager.RegisterSensor(&MockSensor{name: "fan0_0", fanName: "fan0", group: "rotors"})
	manager.RegisterSensor(&MockSensor{name: "fan1_0", fanName: "fan1", group: "rotors"})

	// THEN
	assert.True(t, manager.Active())
}

func TestCheckTrustWithoutGroupAdmits(t *testing.T) {
	// GIVEN
	manager := NewManager()
	sensor := &MockSensor{name: "fan0_0", fanName: "fan0"}

	// THEN
	assert.True(t, manager.CheckTrust(sensor))
}

func TestCheckTrustAdmitsWithHealthyPeer(t *testing.T) {
	// GIVEN
	manager := NewManager()
	sensor := &MockSensor{name: "fan0_0", fanName: "fan0", group: "rotors", functional: true, inRange: false}
	peer := &MockSensor{name: "fan1_0", fanName: "fan1", group: "rotors", functional: true, inRange: true}
	manager.RegisterSensor(sensor)
	manager.RegisterSensor(peer)

	// THEN
	assert.True(t, manager.CheckTrust(sensor))
}

func TestCheckTrustRejectsWhenWholeGroupIsBad(t *testing.T) {
	// GIVEN
	manager := NewManager()
	sensor := &MockSensor{name: "fan0_0", fanName: "fan0", group: "rotors", functional: true, inRange: false}
	peer := &MockSensor{name: "fan1_0", fanName: "fan1", group: "rotors", functional: true, inRange: false}
	manager.RegisterSensor(sensor)
	manager.RegisterSensor(peer)

	// THEN
	assert.False(t, manager.CheckTrust(sensor))
}

func TestCheckTrustRejectsWhenPeersNonFunctional(t *testing.T) {
	// GIVEN
	manager := NewManager()
	sensor := &MockSensor{name: "fan0_0", fanName: "fan0", group: "rotors", functional: true, inRange: true}
	peer := &MockSensor{name: "fan1_0", fanName: "fan1", group: "rotors", functional: false, inRange: true}
	manager.RegisterSensor(sensor)
	manager.RegisterSensor(peer)

	// THEN
	assert.False(t, manager.CheckTrust(sensor))
}
