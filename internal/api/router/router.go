package router

import (
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/digitorus/aissign/internal/api"
	"github.com/digitorus/aissign/internal/api/handlers"
	"github.com/digitorus/aissign/internal/api/httperrors"
	"github.com/digitorus/aissign/internal/api/middleware"
)

// Init sets up echo with its middleware and attaches all routes to s.
func Init(s *api.Server) {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = httperrors.ErrorHandler

	e.Pre(echomw.RemoveTrailingSlash())
	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())
	e.Use(middleware.Logger(s.Logger))
	if s.Config.MaxUploadSize != "" {
		e.Use(echomw.BodyLimit(s.Config.MaxUploadSize))
	}

	s.Echo = e
	s.Router = &api.Router{
		Root:   e.Group(""),
		Signed: e.Group("/signed"),
	}

	handlers.AttachAllRoutes(s)
}
