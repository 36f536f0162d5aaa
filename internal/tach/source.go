package tach

import (
	"errors"
	"fmt"

	"github.com/markusressel/tachmon/internal/configuration"
	cmap "github.com/orcaman/concurrent-map/v2"
)

// ErrSourceUnavailable indicates that the backing telemetry of a source
// is not (yet) published. Expected during early boot, never fatal.
var ErrSourceUnavailable = errors.New("tach source unavailable")

var (
	SourceMap = cmap.New[Source]()
)

// Source supplies the current tachometer input and target speed
// for one feedback channel.
type Source interface {
	GetId() string

	// GetInput returns the current measured speed of this channel
	GetInput() (float64, error)

	// GetTarget returns the current requested speed of this channel
	GetTarget() (float64, error)

	// HasTarget indicates whether this channel exposes its own speed target
	HasTarget() bool

	// GetMovingAvg returns the moving average of this channel's input
	GetMovingAvg() float64
	SetMovingAvg(avg float64)
}

// SourceId builds the registry key of a sensor's source.
func SourceId(fanId string, sensorId string) string {
	return fmt.Sprintf("%s/%s", fanId, sensorId)
}

func NewSource(fanId string, config configuration.SensorConfig) (Source, error) {
	if config.HwMon != nil {
		return &HwMonSource{
			Id:         SourceId(fanId, config.ID),
			Input:      config.HwMon.RpmInput,
			Target:     config.HwMon.RpmTarget,
			WithTarget: config.HasTarget,
		}, nil
	}

	if config.File != nil {
		return &FileSource{
			Id:         SourceId(fanId, config.ID),
			Path:       config.File.Path,
			TargetPath: config.File.TargetPath,
			WithTarget: config.HasTarget,
		}, nil
	}

	return nil, fmt.Errorf("no matching source type for sensor: %s", config.ID)
}
