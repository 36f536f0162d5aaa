package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/markusressel/tachmon/internal/monitor"
	"github.com/markusressel/tachmon/internal/power"
)

type PowerStatus struct {
	On bool `json:"on"`
}

func registerPowerEndpoints(
	rest *echo.Echo,
	loop *monitor.Loop,
	system *monitor.System,
	powerSource power.Source,
) {
	group := rest.Group("/power")

	group.GET("/", func(c echo.Context) error {
		return getPower(c, loop, system)
	})
	group.PUT("/", func(c echo.Context) error {
		return putPower(c, loop, system, powerSource)
	})
}

func getPower(c echo.Context, loop *monitor.Loop, system *monitor.System) error {
	var status PowerStatus
	loop.PostSync(func() {
		status.On = system.IsPowerOn()
	})
	return c.JSONPretty(http.StatusOK, status, indentationChar)
}

// putPower toggles the power state on test rigs where the power state
// file is under tachmon's control.
func putPower(c echo.Context, loop *monitor.Loop, system *monitor.System, powerSource power.Source) error {
	fileSource, ok := powerSource.(*power.FileSource)
	if !ok {
		return returnError(c, errors.New("power source is not writable"))
	}

	var status PowerStatus
	if err := c.Bind(&status); err != nil {
		return returnError(c, err)
	}

	if err := fileSource.SetPowerState(status.On); err != nil {
		return returnError(c, err)
	}

	loop.PostSync(func() {
		system.SetPowerState(status.On)
	})

	return c.JSONPretty(http.StatusOK, status, indentationChar)
}
