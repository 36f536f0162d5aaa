package hwmon

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/markusressel/tachmon/internal/util"
	"github.com/md14454/gosensors"
)

const (
	BusTypeIsa  = 1
	BusTypePci  = 2
	BusTypeAcpi = 5
)

// FanChannel is one tachometer feedback channel of a hwmon chip.
type FanChannel struct {
	Label     string
	Index     int
	RpmInput  string
	RpmTarget string
}

type HwMonController struct {
	Name     string
	DType    string
	Modalias string
	Platform string
	Path     string

	Fans []*FanChannel
}

func GetChips() []*HwMonController {
	gosensors.Init()
	defer gosensors.Cleanup()
	chips := gosensors.GetDetectedChips()

	var list []*HwMonController

	for i := 0; i < len(chips); i++ {
		chip := chips[i]

		var identifier = computeIdentifier(chip)
		dType := util.GetDeviceType(chip.Path)
		modalias := util.GetDeviceModalias(chip.Path)
		platform := findPlatform(chip.Path)
		if len(platform) <= 0 {
			platform = identifier
		}

		fansList := GetFanChannels(chip)
		if len(fansList) <= 0 {
			continue
		}

		c := &HwMonController{
			Name:     identifier,
			DType:    dType,
			Modalias: modalias,
			Platform: platform,
			Path:     chip.Path,
			Fans:     fansList,
		}
		list = append(list, c)
	}

	return list
}

func GetFanChannels(chip gosensors.Chip) []*FanChannel {
	var fanList []*FanChannel

	features := chip.GetFeatures()
	for j := 0; j < len(features); j++ {
		feature := features[j]

		if feature.Type != gosensors.FeatureTypeFan {
			continue
		}

		subfeatures := feature.GetSubFeatures()

		if containsSubFeature(subfeatures, gosensors.SubFeatureTypeFanInput) {
			inputSubFeature := getSubFeature(subfeatures, gosensors.SubFeatureTypeFanInput)
			rpmInput := fmt.Sprintf("%s/%s", chip.Path, inputSubFeature.Name)

			// some platforms expose the requested speed next to the input
			rpmTarget := strings.TrimSuffix(rpmInput, "input") + "target"

			label := util.GetLabel(chip.Path, inputSubFeature.Name)

			fan := &FanChannel{
				Label:     label,
				Index:     len(fanList) + 1,
				RpmInput:  rpmInput,
				RpmTarget: rpmTarget,
			}

			fanList = append(fanList, fan)
		}
	}

	return fanList
}

func getSubFeature(subfeatures []gosensors.SubFeature, input gosensors.SubFeatureType) gosensors.SubFeature {
	for _, a := range subfeatures {
		if a.Type == input {
			return a
		}
	}
	panic(fmt.Errorf("no such element: %v", input))
}

func containsSubFeature(s []gosensors.SubFeature, e gosensors.SubFeatureType) bool {
	for _, a := range s {
		if a.Type == e {
			return true
		}
	}
	return false
}

func computeIdentifier(chip gosensors.Chip) (name string) {
	name = chip.Prefix

	devicePath := chip.Path
	if len(name) <= 0 {
		name = util.GetDeviceName(devicePath)
	}

	if len(name) <= 0 {
		_, name = filepath.Split(devicePath)
	}

	identifier := name
	switch chip.Bus.Type {
	case BusTypeIsa:
		identifier = fmt.Sprintf("%s-isa-%d", identifier, chip.Bus.Nr)
	case BusTypePci:
		identifier = fmt.Sprintf("%s-pci-%d", identifier, chip.Bus.Nr)
	case BusTypeAcpi:
		identifier = fmt.Sprintf("%s-acpi-%d", identifier, chip.Bus.Nr)
	}

	return identifier
}

func findPlatform(devicePath string) string {
	platformRegex := regexp.MustCompile(".*/platform/{}/.*")
	return platformRegex.FindString(devicePath)
}
