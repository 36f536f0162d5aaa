package sensor

import (
	"fmt"
	"regexp"

	"github.com/markusressel/tachmon/internal/configuration"
	"github.com/markusressel/tachmon/internal/hwmon"
	"github.com/markusressel/tachmon/internal/tach"
	"github.com/markusressel/tachmon/internal/ui"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var sensorId string

var Command = &cobra.Command{
	Use:              "sensor",
	Short:            "Sensor related commands",
	Long:             ``,
	TraverseChildren: true,
	Args:             cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		pterm.DisableOutput()

		source, err := getSensorSource(sensorId)
		if err != nil {
			return err
		}

		value, err := source.GetInput()
		if err != nil {
			return err
		}
		fmt.Printf("%d", int(value))
		return nil
	},
}

func init() {
	Command.PersistentFlags().StringVarP(
		&sensorId,
		"id", "i",
		"",
		"Sensor ID as specified in the config",
	)
	_ = Command.MarkPersistentFlagRequired("id")
}

func getSensorSource(id string) (tach.Source, error) {
	configPath := configuration.DetectAndReadConfigFile()
	ui.Info("Using configuration file at: %s", configPath)
	configuration.LoadConfig()
	if err := configuration.Validate(); err != nil {
		ui.FatalWithoutStacktrace("%v", err)
	}

	var controllers []*hwmon.HwMonController

	var availableSensorIds []string
	for _, fanConfig := range configuration.CurrentConfig.Fans {
		for sensorIdx := range fanConfig.Sensors {
			sensorConfig := &fanConfig.Sensors[sensorIdx]
			availableSensorIds = append(availableSensorIds, sensorConfig.ID)
			if sensorConfig.ID != id {
				continue
			}

			if sensorConfig.HwMon != nil {
				if controllers == nil {
					controllers = hwmon.GetChips()
				}
				if err := resolveHwMonPaths(sensorConfig, controllers); err != nil {
					return nil, err
				}
			}

			return tach.NewSource(fanConfig.ID, *sensorConfig)
		}
	}

	return nil, fmt.Errorf("no sensor with id found: %s, options: %s", id, availableSensorIds)
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
