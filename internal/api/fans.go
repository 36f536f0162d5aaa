package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/markusressel/tachmon/internal/monitor"
)

type (
	SensorStatus struct {
		Name       string  `json:"name"`
		Input      float64 `json:"input"`
		Target     float64 `json:"target"`
		Functional bool    `json:"functional"`
		Counter    int     `json:"counter"`
	}

	FanStatus struct {
		Name       string         `json:"name"`
		Present    bool           `json:"present"`
		Functional bool           `json:"functional"`
		Sensors    []SensorStatus `json:"sensors"`
	}
)

func registerFanEndpoints(rest *echo.Echo, loop *monitor.Loop, system *monitor.System) {
	group := rest.Group("/fan")

	group.GET("/", func(c echo.Context) error {
		return getFans(c, loop, system)
	})
	group.GET("/:"+urlParamId+"/", func(c echo.Context) error {
		return getFan(c, loop, system)
	})
}

func fanStatus(fan *monitor.Fan) FanStatus {
	status := FanStatus{
		Name:       fan.Name(),
		Present:    fan.Present(),
		Functional: fan.Functional(),
	}
	for _, sensor := range fan.Sensors() {
		status.Sensors = append(status.Sensors, SensorStatus{
			Name:       sensor.Name(),
			Input:      sensor.GetInput(),
			Target:     sensor.GetTarget(),
			Functional: sensor.Functional(),
			Counter:    sensor.GetCounter(),
		})
	}
	return status
}

// returns the current status of all monitored fans
func getFans(c echo.Context, loop *monitor.Loop, system *monitor.System) error {
	data := map[string]FanStatus{}
	loop.PostSync(func() {
		for _, fan := range system.Fans() {
			data[fan.Name()] = fanStatus(fan)
		}
	})
	return c.JSONPretty(http.StatusOK, data, indentationChar)
}

func getFan(c echo.Context, loop *monitor.Loop, system *monitor.System) error {
	id := c.Param(urlParamId)

	var data *FanStatus
	loop.PostSync(func() {
		for _, fan := range system.Fans() {
			if fan.Name() == id {
				status := fanStatus(fan)
				data = &status
				return
			}
		}
	})

	if data == nil {
		return returnNotFound(c, id)
	}
	return c.JSONPretty(http.StatusOK, data, indentationChar)
}
