package common

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/digitorus/aissign/internal/api"
)

type healthzResponse struct {
	Status string `json:"status"`
}

func GetHealthzRoute(s *api.Server) *echo.Route {
	return s.Router.Root.GET("/healthz", getHealthzHandler(s))
}

func getHealthzHandler(s *api.Server) echo.HandlerFunc {
	return func(c echo.Context) error {
		if !s.Ready() {
			return c.JSON(http.StatusServiceUnavailable, healthzResponse{Status: "unavailable"})
		}
		return c.JSON(http.StatusOK, healthzResponse{Status: "ok"})
	}
}
