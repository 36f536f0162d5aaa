package configuration

import (
	"errors"
	"fmt"

	"github.com/looplab/tarjan"
	"github.com/markusressel/tachmon/internal/ui"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

func Validate() error {
	return validateConfig(&CurrentConfig)
}

func validateConfig(config *Configuration) error {
	if err := validatePower(config); err != nil {
		return err
	}
	return validateFans(config)
}

func validatePower(config *Configuration) error {
	if config.Power.File == nil {
		return nil
	}
	if len(config.Power.File.Path) <= 0 {
		return errors.New("Power: file sub-configuration is missing a path")
	}
	return nil
}

func validateFans(config *Configuration) error {
	fanIds := []string{}
	// trust groups may span fans
	trustGroupSizes := map[string]int{}

	for _, fanConfig := range config.Fans {
		if slices.Contains(fanIds, fanConfig.ID) {
			return errors.New(fmt.Sprintf("Duplicate fan id: %s", fanConfig.ID))
		}
		fanIds = append(fanIds, fanConfig.ID)

		if fanConfig.Deviation < 0 || fanConfig.Deviation > 1 {
			return errors.New(fmt.Sprintf("Fan %s: deviation must be within [0, 1]", fanConfig.ID))
		}

		if fanConfig.NumSensorFailsForNonFunc > len(fanConfig.Sensors) {
			return errors.New(fmt.Sprintf(
				"Fan %s: numSensorFailsForNonFunc (%d) exceeds the number of configured sensors (%d)",
				fanConfig.ID, fanConfig.NumSensorFailsForNonFunc, len(fanConfig.Sensors)))
		}

		if len(fanConfig.Sensors) <= 0 {
			ui.Warning("Fan %s: no sensors configured, fan will be reported functional and never re-evaluated", fanConfig.ID)
		}

		if err := validateSensors(fanConfig); err != nil {
			return err
		}

		for _, sensorConfig := range fanConfig.Sensors {
			if len(sensorConfig.TrustGroup) > 0 {
				trustGroupSizes[sensorConfig.TrustGroup]++
			}
		}
	}

	groups := maps.Keys(trustGroupSizes)
	slices.Sort(groups)
	for _, group := range groups {
		if trustGroupSizes[group] < 2 {
			ui.Warning("Trust group '%s' has a single member and will never arbitrate", group)
		}
	}

	return nil
}

func validateSensors(fanConfig FanConfig) error {
	graph := make(map[interface{}][]interface{})
	sensorIds := []string{}

	for _, sensorConfig := range fanConfig.Sensors {
		if slices.Contains(sensorIds, sensorConfig.ID) {
			return errors.New(fmt.Sprintf("Fan %s: duplicate sensor id: %s", fanConfig.ID, sensorConfig.ID))
		}
		sensorIds = append(sensorIds, sensorConfig.ID)

		subConfigs := 0
		if sensorConfig.HwMon != nil {
			subConfigs++
		}
		if sensorConfig.File != nil {
			subConfigs++
		}
		if subConfigs > 1 {
			return errors.New(fmt.Sprintf("Sensor %s: only one sensor type can be used per sensor definition block", sensorConfig.ID))
		}
		if subConfigs <= 0 {
			return errors.New(fmt.Sprintf("Sensor %s: sub-configuration for sensor is missing, use one of: hwmon | file", sensorConfig.ID))
		}

		if sensorConfig.HwMon != nil {
			if sensorConfig.HwMon.Index <= 0 {
				return errors.New(fmt.Sprintf("Sensor %s: invalid index, must be >= 1", sensorConfig.ID))
			}
		}

		switch sensorConfig.Method {
		case MethodCount:
			if sensorConfig.Threshold <= 0 {
				return errors.New(fmt.Sprintf("Sensor %s: count method requires a threshold >= 1", sensorConfig.ID))
			}
			if fanConfig.CountInterval <= 0 {
				return errors.New(fmt.Sprintf("Fan %s: count method sensors require a countInterval", fanConfig.ID))
			}
		case MethodTimebased, "":
			if fanConfig.NonFunctionalDelay <= 0 {
				return errors.New(fmt.Sprintf("Fan %s: timebased method sensors require a nonFunctionalDelay", fanConfig.ID))
			}
			if fanConfig.FunctionalDelay <= 0 {
				return errors.New(fmt.Sprintf("Fan %s: timebased method sensors require a functionalDelay", fanConfig.ID))
			}
		default:
			return errors.New(fmt.Sprintf("Sensor %s: unknown method '%s', use one of: %s | %s",
				sensorConfig.ID, sensorConfig.Method, MethodTimebased, MethodCount))
		}

		if len(sensorConfig.TargetSensor) > 0 {
			if sensorConfig.HasTarget {
				return errors.New(fmt.Sprintf("Sensor %s: a sensor with its own target cannot borrow one", sensorConfig.ID))
			}
			if sensorConfig.TargetSensor == sensorConfig.ID {
				return errors.New(fmt.Sprintf("Sensor %s: a sensor cannot borrow its target from itself", sensorConfig.ID))
			}
			if !sensorIdExists(sensorConfig.TargetSensor, fanConfig) {
				return errors.New(fmt.Sprintf("Sensor %s: no sibling sensor with id '%s' found", sensorConfig.ID, sensorConfig.TargetSensor))
			}
			graph[sensorConfig.ID] = []interface{}{sensorConfig.TargetSensor}
		}
	}

	return validateNoBorrowLoops(fanConfig.ID, graph)
}

func sensorIdExists(sensorId string, fanConfig FanConfig) bool {
	for _, sensor := range fanConfig.Sensors {
		if sensor.ID == sensorId {
			return true
		}
	}

	return false
}

func validateNoBorrowLoops(fanId string, graph map[interface{}][]interface{}) error {
	output := tarjan.Connections(graph)
	for _, items := range output {
		if len(items) > 1 {
			return errors.New(fmt.Sprintf("Fan %s: you have created a target borrow cycle: %v", fanId, items))
		}
	}
	return nil
}
