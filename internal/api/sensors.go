package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/markusressel/tachmon/internal/tach"
	"github.com/qdm12/reprint"
)

func registerSensorEndpoints(rest *echo.Echo) {
	group := rest.Group("/sensor")

	group.GET("/", getSensors)
	group.GET("/:"+urlParamId+"/", getSensor)
}

// returns all registered tach sources
func getSensors(c echo.Context) error {
	data := reprint.This(tach.SourceMap.Items())
	return c.JSONPretty(http.StatusOK, data, indentationChar)
}

func getSensor(c echo.Context) error {
	id := c.Param(urlParamId)

	data, exists := tach.SourceMap.Get(id)
	if !exists {
		return returnNotFound(c, id)
	}
	return c.JSONPretty(http.StatusOK, data, indentationChar)
}
