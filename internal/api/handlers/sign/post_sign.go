package sign

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/digitorus/aissign/internal/api"
	"github.com/digitorus/aissign/internal/api/httperrors"
	"github.com/digitorus/aissign/workflow"
)

// Upload fields, in order of preference.
var fileFields = []string{"file", "pdf-file"}

type postSignPayload struct {
	Digest string `json:"digest"`
}

type postSignResponse struct {
	URL       string `json:"url,omitempty"`
	Signature string `json:"signature,omitempty"`
}

// PostSignRoute signs an uploaded PDF (multipart) or a digest (JSON).
func PostSignRoute(s *api.Server) *echo.Route {
	return s.Router.Root.POST("/sign", postSignHandler(s))
}

func postSignHandler(s *api.Server) echo.HandlerFunc {
	return func(c echo.Context) error {
		ct := c.Request().Header.Get(echo.HeaderContentType)
		if strings.HasPrefix(ct, echo.MIMEApplicationJSON) {
			return signDigest(c, s)
		}
		return signDocument(c, s)
	}
}

func signDigest(c echo.Context, s *api.Server) error {
	ctx := c.Request().Context()
	log := zerolog.Ctx(ctx)

	var body postSignPayload
	if err := c.Bind(&body); err != nil {
		log.Debug().Err(err).Msg("Failed to bind digest payload")
		return httperrors.ErrBadRequestDigestRequired
	}
	if strings.TrimSpace(body.Digest) == "" {
		return httperrors.ErrBadRequestDigestRequired
	}

	sig, err := s.Orchestrator.SignDigest(ctx, strings.TrimSpace(body.Digest))
	if err != nil {
		log.Error().Err(err).Msg("Failed to sign digest")
		return httperrors.FromError(err)
	}

	return c.JSON(http.StatusOK, postSignResponse{Signature: sig})
}

func signDocument(c echo.Context, s *api.Server) error {
	ctx := c.Request().Context()
	log := zerolog.Ctx(ctx)

	fh, err := formFile(c)
	if err != nil {
		var he *echo.HTTPError
		if errors.As(err, &he) {
			return he
		}
		log.Debug().Err(err).Msg("No upload in request")
		return httperrors.ErrBadRequestNoFile
	}

	data, err := readUpload(fh)
	if err != nil {
		var he *echo.HTTPError
		if errors.As(err, &he) {
			return he
		}
		log.Error().Err(err).Msg("Failed to read upload")
		return httperrors.ErrInternal
	}
	if len(data) == 0 {
		return httperrors.ErrBadRequestNoFile
	}

	policy := s.Config.Policy()
	if v := c.FormValue("ltv"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return httperrors.NewHTTPError(http.StatusBadRequest, "ltv must be true or false.")
		}
		policy.LTV = workflow.LTVDisabled
		if enabled {
			policy.LTV = workflow.LTVAuto
		}
	}

	art, err := s.Orchestrator.SignDocument(ctx, workflow.Document{Name: fh.Filename, Data: data}, policy)
	if err != nil {
		log.Error().Err(err).Str("filename", fh.Filename).Msg("Failed to sign document")
		return httperrors.FromError(err)
	}

	return c.JSON(http.StatusOK, postSignResponse{URL: art.URL})
}

func formFile(c echo.Context) (*multipart.FileHeader, error) {
	var err error
	for _, field := range fileFields {
		var fh *multipart.FileHeader
		if fh, err = c.FormFile(field); err == nil {
			return fh, nil
		}
		if !errors.Is(err, http.ErrMissingFile) {
			return nil, err
		}
	}
	return nil, err
}

func readUpload(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	return io.ReadAll(f)
}
