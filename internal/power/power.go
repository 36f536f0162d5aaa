package power

import (
	"os"

	"github.com/markusressel/tachmon/internal/configuration"
	"github.com/markusressel/tachmon/internal/util"
)

// Source reports the current chassis power state.
type Source interface {
	GetId() string

	// IsPowerOn returns the current power state
	IsPowerOn() (bool, error)
}

func NewSource(config configuration.PowerConfig) Source {
	if config.File != nil {
		return &FileSource{
			Path: config.File.Path,
		}
	}

	// without a configured source the chassis is considered always on
	return &AlwaysOnSource{}
}

// FileSource reads the power state from a file containing 0 or 1,
// written by the platform power daemon.
type FileSource struct {
	Path string `json:"path"`
}

func (s *FileSource) GetId() string {
	return s.Path
}

func (s *FileSource) IsPowerOn() (bool, error) {
	value, err := util.ReadIntFromFile(s.Path)
	if err != nil {
		if os.IsNotExist(err) {
			// state not published yet, assume powered off
			return false, nil
		}
		return false, err
	}
	return value != 0, nil
}

// SetPowerState writes the power state back to the file, used by the
// ops surface to toggle monitoring on test rigs.
func (s *FileSource) SetPowerState(on bool) error {
	value := 0
	if on {
		value = 1
	}
	return util.WriteIntToFileAtomic(value, s.Path)
}

type AlwaysOnSource struct{}

func (s *AlwaysOnSource) GetId() string {
	return "always-on"
}

func (s *AlwaysOnSource) IsPowerOn() (bool, error) {
	return true, nil
}
