package sign_test

import (
	"crypto/sha512"
	"encoding/base64"
	"net/http"
	"strings"
	"testing"

	"github.com/digitorus/pkcs7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/digitorus/aissign/internal/aistest"
	"github.com/digitorus/aissign/internal/api/apitest"
	"github.com/digitorus/aissign/internal/config"
	"github.com/digitorus/aissign/internal/testpki"
	"github.com/digitorus/aissign/verify"
)

func TestPostSignDocument(t *testing.T) {
	env := apitest.NewEnv(t)

	res := env.Upload(t, "file", "contract.pdf", testpki.PDF(testpki.PDFOptions{}), nil)
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())
	assert.JSONEq(t, `{"url":"/signed/signed-contract.pdf"}`, res.Body.String())
	assert.True(t, env.StagingEmpty(t))

	dl := env.PerformRequest(t, http.MethodGet, "/signed/signed-contract.pdf", nil, nil)
	require.Equal(t, http.StatusOK, dl.Code)
	assert.Equal(t, "application/pdf", dl.Header().Get("Content-Type"))

	result, err := verify.Document(dl.Body.Bytes(), verify.Options{Roots: env.AIS.PKI.CertPool()})
	require.NoError(t, err)
	assert.True(t, result.Valid())
}

func TestPostSignDocumentLegacyField(t *testing.T) {
	env := apitest.NewEnv(t)

	res := env.Upload(t, "pdf-file", "report.pdf", testpki.PDF(testpki.PDFOptions{}), nil)
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())
	assert.Equal(t, "/signed/signed-report.pdf", apitest.ParseResponse(t, res)["url"])
}

func TestPostSignDocumentLTV(t *testing.T) {
	env := apitest.NewEnv(t)
	env.AIS.SetBehavior(aistest.Behavior{CRL: true, OCSP: true})

	res := env.Upload(t, "file", "contract.pdf", testpki.PDF(testpki.PDFOptions{}), nil)
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())
	assert.Equal(t, "/signed/signed-contract-ltv.pdf", apitest.ParseResponse(t, res)["url"])

	res = env.Upload(t, "file", "contract.pdf", testpki.PDF(testpki.PDFOptions{}), map[string]string{"ltv": "false"})
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())
	assert.Equal(t, "/signed/signed-contract.pdf", apitest.ParseResponse(t, res)["url"])

	res = env.Upload(t, "file", "contract.pdf", testpki.PDF(testpki.PDFOptions{}), map[string]string{"ltv": "perhaps"})
	assert.Equal(t, http.StatusBadRequest, res.Code)
}

func TestPostSignDocumentLTVDisabledByConfig(t *testing.T) {
	env := apitest.NewEnv(t, func(c *config.Server) { c.LTV = false })
	env.AIS.SetBehavior(aistest.Behavior{CRL: true, OCSP: true})

	res := env.Upload(t, "file", "contract.pdf", testpki.PDF(testpki.PDFOptions{}), nil)
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())
	assert.Equal(t, "/signed/signed-contract.pdf", apitest.ParseResponse(t, res)["url"])
}

func TestPostSignNoFile(t *testing.T) {
	env := apitest.NewEnv(t)

	tests := []struct {
		name string
		do   func() (code int, body string)
	}{
		{"multipart without file", func() (int, string) {
			res := env.Upload(t, "", "", nil, map[string]string{"ltv": "true"})
			return res.Code, res.Body.String()
		}},
		{"empty file", func() (int, string) {
			res := env.Upload(t, "file", "empty.pdf", nil, nil)
			return res.Code, res.Body.String()
		}},
		{"no body", func() (int, string) {
			res := env.PerformRequest(t, http.MethodPost, "/sign", nil, nil)
			return res.Code, res.Body.String()
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, body := tt.do()
			assert.Equal(t, http.StatusBadRequest, code)
			assert.JSONEq(t, `{"error":"No file uploaded."}`, body)
		})
	}
	assert.Empty(t, env.AIS.Requests())
}

func TestPostSignNoSignature(t *testing.T) {
	env := apitest.NewEnv(t)
	env.AIS.SetBehavior(aistest.Behavior{OmitSignature: true})

	res := env.Upload(t, "file", "contract.pdf", testpki.PDF(testpki.PDFOptions{}), nil)
	assert.Equal(t, http.StatusInternalServerError, res.Code)
	assert.JSONEq(t, `{"error":"No signature received from AIS."}`, res.Body.String())
	assert.True(t, env.StagingEmpty(t))

	dl := env.PerformRequest(t, http.MethodGet, "/signed/signed-contract.pdf", nil, nil)
	assert.Equal(t, http.StatusNotFound, dl.Code)
}

func TestPostSignEmptyResponse(t *testing.T) {
	env := apitest.NewEnv(t)
	env.AIS.SetBehavior(aistest.Behavior{Body: `{"SignResponse":{"SignatureObject":{}}}`})

	res := env.Upload(t, "file", "contract.pdf", testpki.PDF(testpki.PDFOptions{}), nil)
	assert.Equal(t, http.StatusInternalServerError, res.Code)
	assert.JSONEq(t, `{"error":"No signature received from AIS."}`, res.Body.String())
	assert.True(t, env.StagingEmpty(t))
}

func TestPostSignRemoteError(t *testing.T) {
	env := apitest.NewEnv(t)
	env.AIS.SetBehavior(aistest.Behavior{ResultMajor: "urn:oasis:names:tc:dss:1.0:resultmajor:RequesterError"})

	res := env.Upload(t, "file", "contract.pdf", testpki.PDF(testpki.PDFOptions{}), nil)
	assert.Equal(t, http.StatusInternalServerError, res.Code)
	msg := apitest.ParseResponse(t, res)["error"]
	assert.NotEmpty(t, msg)
	assert.NotContains(t, msg, "RequesterError", "causes are not returned to the client")
}

func TestPostSignMalformedDocument(t *testing.T) {
	env := apitest.NewEnv(t)

	res := env.Upload(t, "file", "contract.pdf", []byte("this is not a PDF"), nil)
	assert.Equal(t, http.StatusInternalServerError, res.Code)
	assert.JSONEq(t, `{"error":"The uploaded file is not a valid PDF document."}`, res.Body.String())
	assert.Empty(t, env.AIS.Requests())
}

func TestPostSignTooLarge(t *testing.T) {
	env := apitest.NewEnv(t, func(c *config.Server) { c.MaxUploadSize = "1K" })

	res := env.Upload(t, "file", "contract.pdf", []byte(strings.Repeat("x", 4096)), nil)
	assert.Equal(t, http.StatusRequestEntityTooLarge, res.Code)
	assert.JSONEq(t, `{"error":"Upload is too large."}`, res.Body.String())
}

func TestPostSignDigest(t *testing.T) {
	env := apitest.NewEnv(t)
	sum := sha512.Sum512([]byte("document content"))

	res := env.PostJSON(t, "/sign", map[string]string{"digest": base64.StdEncoding.EncodeToString(sum[:])})
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())

	sig, err := base64.StdEncoding.DecodeString(apitest.ParseResponse(t, res)["signature"])
	require.NoError(t, err)
	_, err = pkcs7.Parse(sig)
	require.NoError(t, err)

	reqs := env.AIS.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, sum[:], reqs[0].Digest)
}

func TestPostSignDigestInvalid(t *testing.T) {
	env := apitest.NewEnv(t)

	res := env.PostJSON(t, "/sign", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, res.Code)
	assert.JSONEq(t, `{"error":"Digest is required."}`, res.Body.String())

	res = env.PostJSON(t, "/sign", map[string]string{"digest": "  "})
	assert.JSONEq(t, `{"error":"Digest is required."}`, res.Body.String())

	res = env.PerformRequest(t, http.MethodPost, "/sign", strings.NewReader("{"), http.Header{"Content-Type": {"application/json"}})
	assert.Equal(t, http.StatusBadRequest, res.Code)
	assert.JSONEq(t, `{"error":"Digest is required."}`, res.Body.String())

	res = env.PostJSON(t, "/sign", map[string]string{"digest": "AAAA"})
	assert.Equal(t, http.StatusBadRequest, res.Code)
	assert.NotEmpty(t, apitest.ParseResponse(t, res)["error"])

	res = env.PostJSON(t, "/sign", map[string]string{"digest": "not base64!"})
	assert.Equal(t, http.StatusBadRequest, res.Code)

	assert.Empty(t, env.AIS.Requests())
}

func TestPostSignDigestNoSignature(t *testing.T) {
	env := apitest.NewEnv(t)
	env.AIS.SetBehavior(aistest.Behavior{OmitSignature: true})
	sum := sha512.Sum512([]byte("document content"))

	res := env.PostJSON(t, "/sign", map[string]string{"digest": base64.StdEncoding.EncodeToString(sum[:])})
	assert.Equal(t, http.StatusInternalServerError, res.Code)
	assert.JSONEq(t, `{"error":"No signature received from AIS."}`, res.Body.String())
}
