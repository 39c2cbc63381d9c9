// Package httperrors maps errors to the JSON error bodies of the API.
// Causes are logged, never written to the client.
package httperrors

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/digitorus/aissign/fault"
)

// HTTPError is a response with a public message.
type HTTPError struct {
	Code    int    `json:"-"`
	Message string `json:"error"`
}

func NewHTTPError(code int, message string) *HTTPError {
	return &HTTPError{Code: code, Message: message}
}

func (e *HTTPError) Error() string {
	return http.StatusText(e.Code) + ": " + e.Message
}

var (
	ErrBadRequestNoFile         = NewHTTPError(http.StatusBadRequest, "No file uploaded.")
	ErrBadRequestDigestRequired = NewHTTPError(http.StatusBadRequest, "Digest is required.")
	ErrNotFound                 = NewHTTPError(http.StatusNotFound, "Not found.")
	ErrPayloadTooLarge          = NewHTTPError(http.StatusRequestEntityTooLarge, "Upload is too large.")
	ErrInternal                 = NewHTTPError(http.StatusInternalServerError, "Internal server error.")
)

// messages are the public texts of server side failures.
var messages = map[fault.Kind]string{
	fault.IO:                   "Failed to process the document.",
	fault.UnsupportedAlgorithm: "Unsupported digest algorithm.",
	fault.MalformedDocument:    "The uploaded file is not a valid PDF document.",
	fault.Capacity:             "The signature does not fit into the reserved space.",
	fault.Transport:            "Could not reach the signing service.",
	fault.RemoteSigning:        "The signing service rejected the request.",
	fault.NoSignatureReturned:  "No signature received from AIS.",
	fault.Embedding:            "Failed to embed the signature.",
}

// FromError returns the response for err. Validation failures keep their
// own message and answer 400, every other failure answers 500.
func FromError(err error) *HTTPError {
	var he *HTTPError
	if errors.As(err, &he) {
		return he
	}

	kind := fault.KindOf(err)
	if kind == fault.Validation {
		return NewHTTPError(http.StatusBadRequest, fault.Message(err))
	}
	if msg, ok := messages[kind]; ok {
		return NewHTTPError(http.StatusInternalServerError, msg)
	}
	return ErrInternal
}

// NewFromEcho converts the errors raised by echo itself.
func NewFromEcho(e *echo.HTTPError) *HTTPError {
	switch e.Code {
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusRequestEntityTooLarge:
		return ErrPayloadTooLarge
	}
	msg := http.StatusText(e.Code)
	if s, ok := e.Message.(string); ok && s != "" {
		msg = s
	}
	return NewHTTPError(e.Code, msg)
}

// ErrorHandler is the echo.HTTPErrorHandler of the server.
func ErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var he *HTTPError
	var ee *echo.HTTPError
	switch {
	case errors.As(err, &he):
	case errors.As(err, &ee):
		he = NewFromEcho(ee)
	default:
		// Handlers log what they return, anything else lands here.
		he = FromError(err)
		zerolog.Ctx(c.Request().Context()).Error().Err(err).Str("kind", fault.KindOf(err).String()).Msg("Unhandled error")
	}

	var werr error
	if c.Request().Method == http.MethodHead {
		werr = c.NoContent(he.Code)
	} else {
		werr = c.JSON(he.Code, he)
	}
	if werr != nil {
		zerolog.Ctx(c.Request().Context()).Error().Err(werr).Msg("Failed to write error response")
	}
}
