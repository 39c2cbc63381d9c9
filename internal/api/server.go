package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/digitorus/aissign/internal/config"
	"github.com/digitorus/aissign/store"
	"github.com/digitorus/aissign/workflow"
)

type Router struct {
	Routes []*echo.Route
	Root   *echo.Group
	Signed *echo.Group
}

// Server is a central struct keeping all the dependencies.
// Echo and Router are set by router.Init, the components by InitComponents
// or directly in tests.
type Server struct {
	Echo   *echo.Echo
	Router *Router

	Config       config.Server
	Logger       zerolog.Logger
	Orchestrator *workflow.Orchestrator
	Store        store.Store
}

func NewServer(cfg config.Server, logger zerolog.Logger) *Server {
	return &Server{
		Config: cfg,
		Logger: logger,
	}
}

func (s *Server) Ready() bool {
	return s.Echo != nil && s.Router != nil && s.Orchestrator != nil && s.Store != nil
}

func (s *Server) Start() error {
	if !s.Ready() {
		return errors.New("server is not ready")
	}

	s.Logger.Info().Str("listen", s.Config.Listen).Msg("Starting server")
	if err := s.Echo.Start(s.Config.Listen); err != nil {
		return fmt.Errorf("failed to start echo server: %w", err)
	}

	return nil
}

func (s *Server) Shutdown(ctx context.Context) []error {
	s.Logger.Warn().Msg("Shutting down server")

	var errs []error

	if s.Echo != nil {
		s.Logger.Debug().Msg("Shutting down echo server")

		if err := s.Echo.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.Logger.Error().Err(err).Msg("Failed to shutdown echo server")
			errs = append(errs, err)
		}
	}

	return errs
}
