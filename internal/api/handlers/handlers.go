package handlers

import (
	"github.com/labstack/echo/v4"

	"github.com/digitorus/aissign/internal/api"
	"github.com/digitorus/aissign/internal/api/handlers/common"
	"github.com/digitorus/aissign/internal/api/handlers/sign"
	"github.com/digitorus/aissign/internal/api/handlers/signed"
)

func AttachAllRoutes(s *api.Server) {
	s.Router.Routes = []*echo.Route{
		common.GetHealthzRoute(s),
		sign.PostSignRoute(s),
		signed.GetSignedRoute(s),
	}
}
