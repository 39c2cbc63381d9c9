package common_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/digitorus/aissign/internal/api/apitest"
)

func TestGetHealthz(t *testing.T) {
	env := apitest.NewEnv(t)

	res := env.PerformRequest(t, http.MethodGet, "/healthz", nil, nil)
	assert.Equal(t, http.StatusOK, res.Code)
	assert.JSONEq(t, `{"status":"ok"}`, res.Body.String())
	assert.NotEmpty(t, res.Header().Get("X-Request-Id"))

	env.Server.Orchestrator = nil
	res = env.PerformRequest(t, http.MethodGet, "/healthz", nil, nil)
	assert.Equal(t, http.StatusServiceUnavailable, res.Code)
}
