// Package ais is a client for the JSON binding of the Swisscom All-in
// Signing Service, a DSS server that signs document hashes with qualified
// certificates.
//
// The client authenticates with a client certificate over mutual TLS:
//
//	client, _ := ais.New(ais.Config{
//	    Endpoint:        "https://ais.swisscom.com/AIS-Server/rs/v1.0/sign",
//	    ClientCertFile:  os.Getenv("AIS_CLIENT_CERT"),
//	    ClientKeyFile:   os.Getenv("AIS_CLIENT_KEY"),
//	    ClaimedIdentity: "ais-90days-trial:OnDemand-Advanced",
//	})
//	res, err := client.Sign(ctx, digest, crypto.SHA512, ais.SignOptions{Timestamp: true})
package ais

import (
	"bytes"
	"context"
	"crypto"
	"crypto/tls"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/digitorus/aissign/fault"
)

// DefaultTimeout bounds a single sign call. The authority timestamps the
// signature and looks up revocation data before it answers.
const DefaultTimeout = 90 * time.Second

// maxErrorBody is the number of response bytes kept in a RemoteError.
const maxErrorBody = 4 << 10

// Config configures the client. Paths are provided by the operator.
type Config struct {
	Endpoint        string
	ClientCertFile  string
	ClientKeyFile   string
	// CACertFile is a PEM bundle of roots trusted for the endpoint. The
	// system pool is used when empty.
	CACertFile      string
	ClaimedIdentity string
	Timeout         time.Duration
}

// SignOptions are the optional inputs of a sign request.
type SignOptions struct {
	Timestamp         bool
	Revocation        RevocationType
	SignatureStandard string
}

// Result is a successful sign response.
type Result struct {
	RequestID string
	Signature []byte
	CRLs      []string
	OCSPs     []string
}

// Client posts sign requests to one endpoint.
type Client struct {
	endpoint        string
	claimedIdentity string
	httpClient      *http.Client
}

// New checks the client key pair and returns a client. It fails when the
// certificate is missing, does not match the key or is outside its
// validity period.
func New(cfg Config) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("ais: endpoint is required")
	}
	if cfg.ClaimedIdentity == "" {
		return nil, errors.New("ais: claimed identity is required")
	}

	tlsConfig, err := TLSConfig(cfg.ClientCertFile, cfg.ClientKeyFile, cfg.CACertFile)
	if err != nil {
		return nil, err
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &Client{
		endpoint:        cfg.Endpoint,
		claimedIdentity: cfg.ClaimedIdentity,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				TLSClientConfig:     tlsConfig,
				TLSHandshakeTimeout: 10 * time.Second,
				ForceAttemptHTTP2:   true,
			},
		},
	}, nil
}

// TLSConfig loads the client key pair and the trusted roots.
func TLSConfig(certFile, keyFile, caFile string) (*tls.Config, error) {
	if certFile == "" || keyFile == "" {
		return nil, errors.New("ais: client certificate and key are required")
	}
	if _, err := os.Stat(certFile); err != nil {
		return nil, errors.Wrapf(err, "ais: client certificate file not found: %s", certFile)
	}
	if _, err := os.Stat(keyFile); err != nil {
		return nil, errors.Wrapf(err, "ais: client key file not found: %s", keyFile)
	}

	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, errors.Wrap(err, "ais: failed to load client certificate key pair")
	}
	leaf, err := x509.ParseCertificate(cert.Certificate[0])
	if err != nil {
		return nil, errors.Wrap(err, "ais: failed to parse client certificate")
	}
	now := time.Now()
	if now.After(leaf.NotAfter) {
		return nil, errors.Errorf("ais: client certificate expired at %s", leaf.NotAfter)
	}
	if now.Before(leaf.NotBefore) {
		return nil, errors.Errorf("ais: client certificate not valid until %s", leaf.NotBefore)
	}

	var roots *x509.CertPool
	if caFile != "" {
		caBytes, err := os.ReadFile(caFile)
		if err != nil {
			return nil, errors.Wrap(err, "ais: failed to read CA certificate")
		}
		roots = x509.NewCertPool()
		if !roots.AppendCertsFromPEM(caBytes) {
			return nil, errors.New("ais: failed to parse CA certificate")
		}
	} else if roots, err = x509.SystemCertPool(); err != nil {
		return nil, errors.Wrap(err, "ais: failed to load system roots")
	}

	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		RootCAs:      roots,
		MinVersion:   tls.VersionTLS12,
	}, nil
}

// NewRequest builds the sign request envelope for digest with fresh
// request and document IDs.
func (c *Client) NewRequest(digest []byte, opts SignOptions) SignRequestEnvelope {
	req := SignRequestEnvelope{SignRequest: SignRequest{
		Profile:   Profile,
		RequestID: uuid.NewString(),
		InputDocuments: InputDocuments{DocumentHash: DocumentHash{
			ID:           uuid.NewString(),
			DigestMethod: DigestMethod{Algorithm: DigestMethodSHA512},
			DigestValue:  base64.StdEncoding.EncodeToString(digest),
		}},
		OptionalInputs: OptionalInputs{
			ClaimedIdentity:   ClaimedIdentity{Name: c.claimedIdentity},
			SignatureType:     SignatureTypeCMS,
			SignatureStandard: opts.SignatureStandard,
		},
	}}
	if opts.Timestamp {
		req.SignRequest.OptionalInputs.AddTimestamp = &TypeAttribute{Type: TimestampTypeRFC3161}
		req.SignRequest.OptionalInputs.AdditionalProfile = []string{ProfileTimestamping}
	}
	if opts.Revocation != RevocationNone {
		req.SignRequest.OptionalInputs.AddRevocationInformation = &TypeAttribute{Type: string(opts.Revocation)}
	}
	return req
}

// Sign submits digest to the authority. The call is not retried.
func (c *Client) Sign(ctx context.Context, digest []byte, alg crypto.Hash, opts SignOptions) (*Result, error) {
	const op = "ais.Sign"

	if alg != crypto.SHA512 {
		return nil, fault.New(fault.UnsupportedAlgorithm, op, "only SHA-512 digests are supported")
	}
	if len(digest) != alg.Size() {
		return nil, fault.New(fault.Validation, op, "digest has the wrong length")
	}

	envelope := c.NewRequest(digest, opts)
	requestID := envelope.SignRequest.RequestID
	logger := zerolog.Ctx(ctx).With().Str("ais_request_id", requestID).Logger()

	body, err := json.Marshal(envelope)
	if err != nil {
		return nil, fault.Wrap(fault.Validation, op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fault.Wrap(fault.Transport, op, err)
	}
	req.Header.Set("Content-Type", "application/json;charset=UTF-8")
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fault.Wrap(fault.Transport, op, err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fault.Wrap(fault.Transport, op, errors.Wrap(err, "read response"))
	}
	logger.Debug().Int("status", resp.StatusCode).Dur("elapsed", time.Since(start)).Msg("AIS responded")

	var decoded SignResponseEnvelope
	decodeErr := json.Unmarshal(respBody, &decoded)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &fault.Error{Kind: fault.RemoteSigning, Op: op, Err: newRemoteError(resp.StatusCode, decoded.SignResponse.Result, respBody)}
	}
	if decodeErr != nil {
		return nil, &fault.Error{Kind: fault.RemoteSigning, Op: op, Msg: "undecodable response", Err: newRemoteError(resp.StatusCode, Status{}, respBody)}
	}

	// A response without ResultMajor carries no verdict and is judged by
	// its signature alone.
	result := decoded.SignResponse.Result
	if result.ResultMajor != "" && !result.Success() {
		return nil, &fault.Error{Kind: fault.RemoteSigning, Op: op, Err: newRemoteError(resp.StatusCode, result, respBody)}
	}

	so := decoded.SignResponse.SignatureObject
	if so == nil || so.Base64Signature == nil || so.Base64Signature.Value == "" {
		return nil, fault.New(fault.NoSignatureReturned, op, "No signature received from AIS.")
	}
	signature, err := base64.StdEncoding.DecodeString(so.Base64Signature.Value)
	if err != nil {
		return nil, fault.Wrapf(fault.RemoteSigning, op, err, "signature is not base64")
	}
	if len(signature) == 0 {
		return nil, fault.New(fault.NoSignatureReturned, op, "No signature received from AIS.")
	}

	out := &Result{RequestID: requestID, Signature: signature}
	if oo := decoded.SignResponse.OptionalOutputs; oo != nil && oo.RevocationInformation != nil {
		if crls := oo.RevocationInformation.CRLs; crls != nil {
			out.CRLs = crls.CRL
		}
		if ocsps := oo.RevocationInformation.OCSPs; ocsps != nil {
			out.OCSPs = ocsps.OCSP
		}
	}
	logger.Info().Int("signature_bytes", len(signature)).Int("crls", len(out.CRLs)).Int("ocsps", len(out.OCSPs)).Msg("signature received")
	return out, nil
}
