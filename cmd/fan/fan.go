package fan

import (
	"fmt"
	"regexp"

	"github.com/markusressel/tachmon/internal/configuration"
	"github.com/markusressel/tachmon/internal/hwmon"
	"github.com/markusressel/tachmon/internal/tach"
	"github.com/markusressel/tachmon/internal/ui"
	"github.com/spf13/cobra"
)

var fanId string

var Command = &cobra.Command{
	Use:              "fan",
	Short:            "Fan related commands",
	Long:             ``,
	TraverseChildren: true,
}

func init() {
	Command.PersistentFlags().StringVarP(
		&fanId,
		"id", "i",
		"",
		"Fan ID as specified in the config",
	)
	_ = Command.MarkPersistentFlagRequired("id")
}

// getFanSources loads the config and builds the tach sources of the
// given fan, with hwmon sensors resolved to concrete sysfs paths.
func getFanSources(id string) (configuration.FanConfig, []tach.Source, error) {
	configPath := configuration.DetectAndReadConfigFile()
	ui.Info("Using configuration file at: %s", configPath)
	configuration.LoadConfig()
	if err := configuration.Validate(); err != nil {
		ui.FatalWithoutStacktrace("%v", err)
	}

	var controllers []*hwmon.HwMonController

	for _, config := range configuration.CurrentConfig.Fans {
		if config.ID != id {
			continue
		}

		var sources []tach.Source
		for sensorIdx := range config.Sensors {
			sensorConfig := &config.Sensors[sensorIdx]
			if sensorConfig.HwMon != nil {
				if controllers == nil {
					controllers = hwmon.GetChips()
				}
				if err := resolveHwMonPaths(sensorConfig, controllers); err != nil {
					return config, nil, err
				}
			}

			source, err := tach.NewSource(config.ID, *sensorConfig)
			if err != nil {
				return config, nil, err
			}
			sources = append(sources, source)
		}

		return config, sources, nil
	}

	return configuration.FanConfig{}, nil, fmt.Errorf("no fan with id found: %s", id)
}

func resolveHwMonPaths(config *configuration.SensorConfig, controllers []*hwmon.HwMonController) error {
	for _, controller := range controllers {
		matched, err := regexp.MatchString("(?i)"+config.HwMon.Platform, controller.Platform)
		if err != nil {
			return fmt.Errorf("failed to match platform regex of %s (%s) against controller platform %s", config.ID, config.HwMon.Platform, controller.Platform)
		}
		if !matched {
			continue
		}

		index := config.HwMon.Index - 1
		if len(controller.Fans) > index {
			channel := controller.Fans[index]
			config.HwMon.RpmInput = channel.RpmInput
			config.HwMon.RpmTarget = channel.RpmTarget
			return nil
		}
	}
	return fmt.Errorf("couldn't find hwmon device with platform '%s' for sensor: %s", config.HwMon.Platform, config.ID)
}
