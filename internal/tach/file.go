package tach

import (
	"os"

	"github.com/markusressel/tachmon/internal/util"
)

// FileSource reads tach input and target from plain files.
// Mainly useful for test rigs and virtual setups.
type FileSource struct {
	Id         string  `json:"id"`
	Path       string  `json:"path"`
	TargetPath string  `json:"targetPath"`
	WithTarget bool    `json:"withTarget"`
	MovingAvg  float64 `json:"movingAvg"`
}

func (s *FileSource) GetId() string {
	return s.Id
}

func (s *FileSource) GetInput() (float64, error) {
	value, err := util.ReadIntFromFile(s.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, ErrSourceUnavailable
		}
		return 0, err
	}
	return float64(value), nil
}

func (s *FileSource) GetTarget() (float64, error) {
	if !s.WithTarget {
		return 0, nil
	}
	value, err := util.ReadIntFromFile(s.TargetPath)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, ErrSourceUnavailable
		}
		return 0, err
	}
	return float64(value), nil
}

func (s *FileSource) HasTarget() bool {
	return s.WithTarget
}

func (s *FileSource) GetMovingAvg() float64 {
	return s.MovingAvg
}

func (s *FileSource) SetMovingAvg(avg float64) {
	s.MovingAvg = avg
}
