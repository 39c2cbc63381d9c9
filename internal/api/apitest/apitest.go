// Package apitest runs the API against an in-process signing authority.
package apitest

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/digitorus/aissign/internal/aistest"
	"github.com/digitorus/aissign/internal/api"
	"github.com/digitorus/aissign/internal/api/router"
	"github.com/digitorus/aissign/internal/config"
)

// Env is a running test server.
type Env struct {
	Server     *api.Server
	AIS        *aistest.Server
	StoreDir   string
	StagingDir string
}

// NewEnv builds a server with the default config pointed at a test
// authority and temporary directories. mutate runs before the components
// are initialized.
func NewEnv(t *testing.T, mutate ...func(*config.Server)) *Env {
	t.Helper()

	env := &Env{AIS: aistest.NewServer(t), StoreDir: t.TempDir(), StagingDir: t.TempDir()}

	cfg := config.Default()
	cfg.AIS.URL = env.AIS.SignURL()
	cfg.AIS.ClientCert = env.AIS.Files.CertFile
	cfg.AIS.ClientKey = env.AIS.Files.KeyFile
	cfg.AIS.CACert = env.AIS.Files.CAFile
	cfg.AIS.ClaimedIdentity = "ais-test:OnDemand-Qualified"
	cfg.Store.Dir = env.StoreDir
	cfg.StagingDir = env.StagingDir
	cfg.SignTimeout = 10 * time.Second
	for _, m := range mutate {
		m(&cfg)
	}
	require.NoError(t, cfg.ValidateFields())

	s := api.NewServer(cfg, zerolog.Nop())
	require.NoError(t, s.InitComponents(context.Background()))
	router.Init(s)
	require.True(t, s.Ready())

	env.Server = s
	return env
}

// PerformRequest runs a request through echo.
func (e *Env) PerformRequest(t *testing.T, method, path string, body io.Reader, headers http.Header) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	for k, v := range headers {
		req.Header[k] = v
	}
	res := httptest.NewRecorder()
	e.Server.Echo.ServeHTTP(res, req)
	return res
}

// Upload posts a multipart form with one file and optional fields.
func (e *Env) Upload(t *testing.T, field, filename string, data []byte, fields map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	if field != "" {
		fw, err := w.CreateFormFile(field, filename)
		require.NoError(t, err)
		_, err = fw.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	return e.PerformRequest(t, http.MethodPost, "/sign", &buf, http.Header{
		echo.HeaderContentType: {w.FormDataContentType()},
	})
}

// PostJSON posts v as a JSON body.
func (e *Env) PostJSON(t *testing.T, path string, v any) *httptest.ResponseRecorder {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return e.PerformRequest(t, http.MethodPost, path, bytes.NewReader(b), http.Header{
		echo.HeaderContentType: {echo.MIMEApplicationJSON},
	})
}

// ParseResponse decodes a JSON response body.
func ParseResponse(t *testing.T, res *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var out map[string]string
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &out), res.Body.String())
	return out
}

// StagingEmpty reports whether every staging session was removed.
func (e *Env) StagingEmpty(t *testing.T) bool {
	t.Helper()
	entries, err := os.ReadDir(e.StagingDir)
	require.NoError(t, err)
	return len(entries) == 0
}
