package httperrors

import (
	"net/http"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	"github.com/digitorus/aissign/fault"
)

func TestFromError(t *testing.T) {
	tests := []struct {
		err  error
		code int
		msg  string
	}{
		{fault.New(fault.Validation, "op", "Digest is required."), http.StatusBadRequest, "Digest is required."},
		{errors.Wrap(fault.New(fault.NoSignatureReturned, "op", "detail"), "context"), http.StatusInternalServerError, "No signature received from AIS."},
		{fault.Wrap(fault.Transport, "op", errors.New("dial tcp: connection refused")), http.StatusInternalServerError, "Could not reach the signing service."},
		{fault.New(fault.Capacity, "op", "too big"), http.StatusInternalServerError, "The signature does not fit into the reserved space."},
		{errors.New("boom"), http.StatusInternalServerError, "Internal server error."},
		{ErrNotFound, http.StatusNotFound, "Not found."},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			he := FromError(tt.err)
			assert.Equal(t, tt.code, he.Code)
			assert.Equal(t, tt.msg, he.Message)
		})
	}
}

func TestNewFromEcho(t *testing.T) {
	assert.Equal(t, ErrNotFound, NewFromEcho(echo.ErrNotFound))
	assert.Equal(t, ErrPayloadTooLarge, NewFromEcho(echo.ErrStatusRequestEntityTooLarge))

	he := NewFromEcho(echo.NewHTTPError(http.StatusMethodNotAllowed))
	assert.Equal(t, http.StatusMethodNotAllowed, he.Code)
	assert.Equal(t, "Method Not Allowed", he.Message)
}
