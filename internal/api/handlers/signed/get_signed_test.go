package signed_test

import (
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/digitorus/aissign/internal/api/apitest"
)

func TestGetSigned(t *testing.T) {
	env := apitest.NewEnv(t)
	content := []byte("%PDF-1.7 stored artifact")
	require.NoError(t, os.WriteFile(filepath.Join(env.StoreDir, "signed-a.pdf"), content, 0o600))

	res := env.PerformRequest(t, http.MethodGet, "/signed/signed-a.pdf", nil, nil)
	require.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, content, res.Body.Bytes())
	assert.Equal(t, "application/pdf", res.Header().Get("Content-Type"))
	assert.Equal(t, "24", res.Header().Get("Content-Length"))
	assert.Equal(t, `attachment; filename="signed-a.pdf"`, res.Header().Get("Content-Disposition"))
}

func TestGetSignedNotFound(t *testing.T) {
	env := apitest.NewEnv(t)

	for _, path := range []string{"/signed/absent.pdf", "/signed/.hidden", "/signed/..", "/nothing"} {
		t.Run(path, func(t *testing.T) {
			res := env.PerformRequest(t, http.MethodGet, path, nil, nil)
			assert.Equal(t, http.StatusNotFound, res.Code)
			assert.JSONEq(t, `{"error":"Not found."}`, res.Body.String())
		})
	}
}
