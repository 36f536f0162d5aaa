package configuration

import "time"

type FanConfig struct {
	// ID is also the name of the fan's inventory object
	ID string `json:"id"`
	// Deviation is the allowed fraction a tach reading may differ
	// from its target before it counts as out of range
	Deviation float64 `json:"deviation"`
	// NumSensorFailsForNonFunc is the number of non-functional sensors
	// required before the fan itself is marked non-functional.
	// Zero disables the fan-level rollup, sensor state is still tracked.
	NumSensorFailsForNonFunc int `json:"numSensorFailsForNonFunc"`

	// MonitorStartDelay is the grace period after construction or power-on
	// before sensor readings are acted upon
	MonitorStartDelay time.Duration `json:"monitorStartDelay"`
	// MissingErrorDelay is how long a fan may be missing while powered on
	// before a sustained-absence condition is reported. Zero disables it.
	MissingErrorDelay time.Duration `json:"missingErrorDelay"`
	// CountInterval is the tick interval driving count method sensors
	CountInterval time.Duration `json:"countInterval"`

	// NonFunctionalDelay is how long a timebased sensor must stay out of
	// range before it flips to non-functional
	NonFunctionalDelay time.Duration `json:"nonFunctionalDelay"`
	// FunctionalDelay is how long a timebased sensor must stay in range
	// before it flips back to functional
	FunctionalDelay time.Duration `json:"functionalDelay"`
	// SensorErrorDelay is how long a sensor may stay non-functional before
	// a sustained-sensor-fault condition is reported. Zero disables it.
	SensorErrorDelay time.Duration `json:"sensorErrorDelay"`

	Sensors []SensorConfig `json:"sensors"`
}

type SensorConfig struct {
	ID string `json:"id"`

	// HasTarget indicates whether this channel exposes its own speed target
	HasTarget bool `json:"hasTarget"`
	// TargetSensor optionally names a sibling sensor to borrow the
	// target from when this sensor is targetless
	TargetSensor string `json:"targetSensor"`

	Method MethodValue `json:"method"`
	// Threshold is the hysteresis counter limit (count method only)
	Threshold int `json:"threshold"`

	// TrustGroup names the redundancy group used for cross-checking
	// this sensor against its peers. Empty means trust is not arbitrated.
	TrustGroup string `json:"trustGroup"`

	// Factor and Offset scale the target before the allowed range is computed
	Factor float64 `json:"factor"`
	Offset float64 `json:"offset"`

	HwMon *HwMonSensorConfig `json:"hwmon,omitempty"`
	File  *FileSensorConfig  `json:"file,omitempty"`
}

type HwMonSensorConfig struct {
	Platform string `json:"platform"`
	Index    int    `json:"index"`

	// resolved at startup from platform + index
	RpmInput  string
	RpmTarget string
}

type FileSensorConfig struct {
	Path       string `json:"path"`
	TargetPath string `json:"targetPath"`
}
