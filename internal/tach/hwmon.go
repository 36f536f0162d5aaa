package tach

import (
	"os"

	"github.com/markusressel/tachmon/internal/util"
)

// HwMonSource reads tach input and target from sysfs hwmon files,
// resolved from a platform + index definition at startup.
type HwMonSource struct {
	Id         string  `json:"id"`
	Input      string  `json:"input"`
	Target     string  `json:"target"`
	WithTarget bool    `json:"withTarget"`
	MovingAvg  float64 `json:"movingAvg"`
}

func (s *HwMonSource) GetId() string {
	return s.Id
}

func (s *HwMonSource) GetInput() (float64, error) {
	value, err := util.ReadIntFromFile(s.Input)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, ErrSourceUnavailable
		}
		return 0, err
	}
	return float64(value), nil
}

func (s *HwMonSource) GetTarget() (float64, error) {
	if !s.WithTarget {
		return 0, nil
	}
	value, err := util.ReadIntFromFile(s.Target)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, ErrSourceUnavailable
		}
		return 0, err
	}
	return float64(value), nil
}

func (s *HwMonSource) HasTarget() bool {
	return s.WithTarget
}

func (s *HwMonSource) GetMovingAvg() float64 {
	return s.MovingAvg
}

func (s *HwMonSource) SetMovingAvg(avg float64) {
	s.MovingAvg = avg
}
