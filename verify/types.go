package verify

import (
	"crypto/x509"
	"fmt"
	"time"

	"github.com/digitorus/timestamp"

	"github.com/digitorus/aissign/revocation"
)

// Options contains options for PDF signature verification.
type Options struct {
	// Roots holds the trust anchors. The system pool is used when nil.
	Roots *x509.CertPool

	// AllowEmbeddedRoots accepts a chain ending in a self-signed
	// certificate embedded in the signature. TrustedIssuer stays false.
	AllowEmbeddedRoots bool

	// RequireNonRepudiation requires the Content Commitment key usage on the
	// signing certificate.
	RequireNonRepudiation bool

	// Time is the validation time of the chain. When zero the timestamp
	// token, then the signing time and finally the current time is used.
	Time time.Time
}

// Result is the verification report of a document.
type Result struct {
	Info DocumentInfo `json:"info"`
	// DSS reports whether the catalog carries a Document Security Store.
	DSS     bool     `json:"dss"`
	Signers []Signer `json:"signers"`
}

// Valid reports whether every signature verifies and no validation error
// was recorded.
func (r *Result) Valid() bool {
	if len(r.Signers) == 0 {
		return false
	}
	for _, s := range r.Signers {
		if !s.ValidSignature || len(s.ValidationErrors) > 0 {
			return false
		}
	}
	return true
}

// Signer describes one signature.
type Signer struct {
	Field         string               `json:"field"`
	Name          string               `json:"name"`
	Reason        string               `json:"reason"`
	Location      string               `json:"location"`
	ContactInfo   string               `json:"contact_info"`
	SubFilter     string               `json:"sub_filter"`
	SignatureTime *time.Time           `json:"signature_time,omitempty"`
	TimeStamp     *timestamp.Timestamp `json:"time_stamp,omitempty"`

	ValidSignature     bool          `json:"valid_signature"`
	TrustedIssuer      bool          `json:"trusted_issuer"`
	RevokedCertificate bool          `json:"revoked_certificate"`
	Certificates       []Certificate `json:"certificates"`
	// VRI reports whether the DSS holds an entry for this signature.
	VRI bool `json:"vri"`
	// CoversDocument is false when bytes were appended after the signed
	// range, e.g. by a later revision.
	CoversDocument bool `json:"covers_document"`

	ValidationErrors []error  `json:"-"`
	Warnings         []string `json:"warnings,omitempty"`
}

// Certificate is one certificate of the CMS envelope.
type Certificate struct {
	Certificate   *x509.Certificate `json:"certificate"`
	VerifyError   string            `json:"verify_error,omitempty"`
	KeyUsageError string            `json:"key_usage_error,omitempty"`
	Revocation    revocation.Status `json:"revocation"`
}

// DocumentInfo contains the Info dictionary of the document.
type DocumentInfo struct {
	Author       string    `json:"author"`
	Creator      string    `json:"creator"`
	Producer     string    `json:"producer"`
	Subject      string    `json:"subject"`
	Title        string    `json:"title"`
	Keywords     []string  `json:"keywords"`
	Pages        int       `json:"pages"`
	CreationDate time.Time `json:"creation_date"`
	ModDate      time.Time `json:"mod_date"`
}

// Check names the verification step a Problem was found in.
type Check string

const (
	CheckEnvelope     Check = "envelope"
	CheckByteRange    Check = "byte_range"
	CheckTimestamp    Check = "timestamp"
	CheckSignature    Check = "signature"
	CheckChain        Check = "chain"
	CheckKeyUsage     Check = "key_usage"
	CheckRevocation   Check = "revocation"
	CheckModification Check = "modification"
)

// Problem is a failed check of one signature. Subject is set for the
// certificate checks.
type Problem struct {
	Check   Check
	Subject string
	Msg     string
	Err     error
}

func (p *Problem) Error() string {
	msg := string(p.Check) + ": " + p.Msg
	if p.Subject != "" {
		msg += fmt.Sprintf(" (%s)", p.Subject)
	}
	if p.Err != nil {
		msg += ": " + p.Err.Error()
	}
	return msg
}

func (p *Problem) Unwrap() error {
	return p.Err
}

func (s *Signer) fail(check Check, msg string, err error) {
	s.ValidationErrors = append(s.ValidationErrors, &Problem{Check: check, Msg: msg, Err: err})
}
