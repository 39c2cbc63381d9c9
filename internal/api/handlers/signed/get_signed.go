package signed

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/digitorus/aissign/internal/api"
	"github.com/digitorus/aissign/internal/api/httperrors"
	"github.com/digitorus/aissign/store"
)

// GetSignedRoute serves published artifacts.
func GetSignedRoute(s *api.Server) *echo.Route {
	return s.Router.Signed.GET("/:name", getSignedHandler(s))
}

func getSignedHandler(s *api.Server) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		log := zerolog.Ctx(ctx)
		name := c.Param("name")

		rc, size, err := s.Store.Open(ctx, name)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) || errors.Is(err, store.ErrBadName) {
				return httperrors.ErrNotFound
			}
			log.Error().Err(err).Str("name", name).Msg("Failed to open artifact")
			return httperrors.ErrInternal
		}
		defer func() { _ = rc.Close() }()

		h := c.Response().Header()
		h.Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", name))
		if size >= 0 {
			h.Set(echo.HeaderContentLength, strconv.FormatInt(size, 10))
		}
		return c.Stream(http.StatusOK, "application/pdf", rc)
	}
}
