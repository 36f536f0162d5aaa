package configuration

import (
	"fmt"
	"reflect"

	"github.com/mitchellh/mapstructure"
)

// MethodValue selects the fault detection mechanism of a sensor.
type MethodValue string

const (
	// MethodTimebased debounces transitions with a timer that must
	// run to completion before a state flip
	MethodTimebased MethodValue = "timebased"
	// MethodCount accumulates out-of-range evidence in a hysteresis
	// counter evaluated on a periodic tick
	MethodCount MethodValue = "count"
)

// MethodValueHookFunc returns a mapstructure decode hook that validates
// method strings and defaults an absent value to "timebased".
func MethodValueHookFunc() mapstructure.DecodeHookFuncType {
	methodType := reflect.TypeOf(MethodValue(""))

	return func(
		f reflect.Type,
		t reflect.Type,
		data interface{},
	) (interface{}, error) {
		if t != methodType {
			return data, nil
		}

		s, ok := data.(string)
		if !ok {
			return data, nil
		}

		switch MethodValue(s) {
		case MethodTimebased, MethodCount:
			return MethodValue(s), nil
		case "":
			return MethodTimebased, nil
		}
		return nil, fmt.Errorf("unknown method %q, use one of: %s | %s", s, MethodTimebased, MethodCount)
	}
}
