// Package aistest runs an in-process signing authority that speaks the AIS
// JSON binding over mutual TLS. It signs submitted digests with a test
// certificate and can be told to misbehave.
package aistest

import (
	"crypto"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/ocsp"

	"github.com/digitorus/aissign/internal/testpki"
)

// Behavior controls the next responses of the server.
type Behavior struct {
	// Status is the HTTP status to answer with; zero means 200.
	Status int
	// ResultMajor overrides the success result.
	ResultMajor string
	ResultMinor string
	Message     string
	// OmitSignature answers success without a SignatureObject.
	OmitSignature bool
	// PlainSignature encodes Base64Signature as a string instead of an
	// object with "$".
	PlainSignature bool
	CRL            bool
	OCSP           bool
	// Garbage answers with a body that is not JSON.
	Garbage bool
	// Body answers with this raw JSON instead of a generated response.
	Body    string
	Delay   time.Duration
}

// Request is what the server saw of one sign request.
type Request struct {
	RequestID       string
	DocumentHashID  string
	DigestAlgorithm string
	Digest          []byte
	ClaimedIdentity string
	Raw             map[string]any
	ClientCN        string
}

// Server is a running authority.
type Server struct {
	*httptest.Server

	PKI   *testpki.TestPKI
	Key   crypto.Signer
	Cert  *x509.Certificate
	Files testpki.TLSFiles

	mu       sync.Mutex
	behavior Behavior
	requests []Request
}

// NewServer starts an authority. Client credentials accepted by the server
// are written to a temporary directory and described by Files.
func NewServer(t *testing.T) *Server {
	pki := testpki.NewTestPKI(t)
	key, cert := pki.IssueLeaf("AIS Test Signer")

	s := &Server{PKI: pki, Key: key, Cert: cert}
	s.Server = httptest.NewUnstartedServer(http.HandlerFunc(s.handle))
	s.Server.TLS = pki.ServerTLSConfig(pki.IssueTLS("localhost", true))
	s.Server.StartTLS()
	t.Cleanup(s.Close)

	s.Files = pki.WriteTLSFiles(t.TempDir(), pki.IssueTLS("aissign client", false))
	return s
}

// URL of the sign endpoint.
func (s *Server) SignURL() string {
	return s.Server.URL + "/AIS-Server/rs/v1.0/sign"
}

func (s *Server) SetBehavior(b Behavior) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.behavior = b
}

// Requests returns the sign requests received so far.
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.requests...)
}

type signRequest struct {
	SignRequest struct {
		RequestID      string `json:"@RequestID"`
		InputDocuments struct {
			DocumentHash struct {
				ID           string `json:"@ID"`
				DigestMethod struct {
					Algorithm string `json:"@Algorithm"`
				} `json:"dsig.DigestMethod"`
				DigestValue string `json:"dsig.DigestValue"`
			} `json:"DocumentHash"`
		} `json:"InputDocuments"`
		OptionalInputs struct {
			ClaimedIdentity struct {
				Name string `json:"Name"`
			} `json:"ClaimedIdentity"`
		} `json:"OptionalInputs"`
	} `json:"SignRequest"`
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	b := s.behavior
	s.mu.Unlock()

	if b.Delay > 0 {
		select {
		case <-time.After(b.Delay):
		case <-r.Context().Done():
			return
		}
	}

	var raw map[string]any
	var req signRequest
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	encoded, _ := json.Marshal(raw)
	_ = json.Unmarshal(encoded, &req)

	hash := req.SignRequest.InputDocuments.DocumentHash
	digest, _ := base64.StdEncoding.DecodeString(hash.DigestValue)
	seen := Request{
		RequestID:       req.SignRequest.RequestID,
		DocumentHashID:  hash.ID,
		DigestAlgorithm: hash.DigestMethod.Algorithm,
		Digest:          digest,
		ClaimedIdentity: req.SignRequest.OptionalInputs.ClaimedIdentity.Name,
		Raw:             raw,
	}
	if r.TLS != nil && len(r.TLS.PeerCertificates) > 0 {
		seen.ClientCN = r.TLS.PeerCertificates[0].Subject.CommonName
	}
	s.mu.Lock()
	s.requests = append(s.requests, seen)
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if b.Garbage {
		_, _ = w.Write([]byte("<html>maintenance</html>"))
		return
	}
	if b.Body != "" {
		_, _ = w.Write([]byte(b.Body))
		return
	}

	major := "urn:oasis:names:tc:dss:1.0:resultmajor:Success"
	if b.ResultMajor != "" {
		major = b.ResultMajor
	}
	result := map[string]any{"ResultMajor": major}
	if b.ResultMinor != "" {
		result["ResultMinor"] = b.ResultMinor
	}
	if b.Message != "" {
		result["ResultMessage"] = map[string]any{"@xml.lang": "en", "$": b.Message}
	}
	response := map[string]any{
		"@Profile":   "http://ais.swisscom.ch/1.1",
		"@RequestID": seen.RequestID,
		"Result":     result,
	}

	if !b.OmitSignature && len(digest) == 64 {
		cms, err := testpki.SignDigest(s.Key, s.Cert, s.PKI.Chain(), digest, time.Now())
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		var sig any = map[string]any{"@Type": "urn:ietf:rfc:3369", "$": base64.StdEncoding.EncodeToString(cms)}
		if b.PlainSignature {
			sig = base64.StdEncoding.EncodeToString(cms)
		}
		response["SignatureObject"] = map[string]any{"Base64Signature": sig}
	}

	if b.CRL || b.OCSP {
		info := map[string]any{}
		if b.CRL {
			info["sc.CRLs"] = map[string]any{"sc.CRL": base64.StdEncoding.EncodeToString(s.PKI.CRL())}
		}
		if b.OCSP {
			info["sc.OCSPs"] = map[string]any{"sc.OCSP": []string{base64.StdEncoding.EncodeToString(s.PKI.OCSP(s.Cert, ocsp.Good))}}
		}
		response["OptionalOutputs"] = map[string]any{"sc.RevocationInformation": info}
	}

	if b.Status != 0 {
		w.WriteHeader(b.Status)
	}
	_ = json.NewEncoder(w).Encode(map[string]any{"SignResponse": response})
}
