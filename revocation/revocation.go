// Package revocation holds certificate revocation evidence: the CRLs and
// OCSP responses returned by the signing authority and the Adobe
// RevocationInfoArchival signed attribute.
package revocation

import (
	"crypto/x509"
	"encoding/asn1"
	"encoding/base64"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/crypto/ocsp"

	"github.com/digitorus/aissign/fault"
)

// OIDInfoArchival identifies the adbe-revocationInfoArchival attribute.
var OIDInfoArchival = asn1.ObjectIdentifier{1, 2, 840, 113583, 1, 1, 8}

// Evidence is validated revocation data in DER form.
type Evidence struct {
	CRLs  [][]byte
	OCSPs [][]byte
}

// Complete reports whether both CRL and OCSP evidence is present, which is
// the condition for long-term validation data to be added.
func (e Evidence) Complete() bool {
	return len(e.CRLs) > 0 && len(e.OCSPs) > 0
}

// Decode base64-decodes the CRL and OCSP entries of a signing response and
// checks that every entry parses. Blank entries are ignored.
func Decode(crls, ocsps []string) (Evidence, error) {
	const op = "revocation.Decode"

	var ev Evidence
	for i, s := range crls {
		der, err := decode(s)
		if err != nil {
			return Evidence{}, fault.Wrapf(fault.Embedding, op, err, "CRL %d", i)
		}
		if der == nil {
			continue
		}
		if _, err := x509.ParseRevocationList(der); err != nil {
			return Evidence{}, fault.Wrapf(fault.Embedding, op, err, "CRL %d", i)
		}
		ev.CRLs = append(ev.CRLs, der)
	}
	for i, s := range ocsps {
		der, err := decode(s)
		if err != nil {
			return Evidence{}, fault.Wrapf(fault.Embedding, op, err, "OCSP response %d", i)
		}
		if der == nil {
			continue
		}
		if _, err := ocsp.ParseResponse(der, nil); err != nil {
			return Evidence{}, fault.Wrapf(fault.Embedding, op, err, "OCSP response %d", i)
		}
		ev.OCSPs = append(ev.OCSPs, der)
	}
	return ev, nil
}

func decode(s string) ([]byte, error) {
	s = strings.Join(strings.Fields(s), "")
	if s == "" {
		return nil, nil
	}
	der, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, errors.Wrap(err, "decode base64")
	}
	return der, nil
}

// InfoArchival is the RevocationInfoArchival structure some signers embed
// as a signed attribute.
type InfoArchival struct {
	CRL   CRL   `asn1:"tag:0,optional,explicit"`
	OCSP  OCSP  `asn1:"tag:1,optional,explicit"`
	Other Other `asn1:"tag:2,optional,explicit"`
}

func (r *InfoArchival) AddCRL(b []byte) {
	r.CRL = append(r.CRL, asn1.RawValue{FullBytes: b})
}

func (r *InfoArchival) AddOCSP(b []byte) {
	r.OCSP = append(r.OCSP, asn1.RawValue{FullBytes: b})
}

// Evidence returns the archived entries in DER form.
func (r *InfoArchival) Evidence() Evidence {
	var ev Evidence
	for _, c := range r.CRL {
		ev.CRLs = append(ev.CRLs, c.FullBytes)
	}
	for _, o := range r.OCSP {
		ev.OCSPs = append(ev.OCSPs, o.FullBytes)
	}
	return ev
}

// Status is the revocation state of a certificate according to some evidence.
type Status int

const (
	// StatusUnknown means no evidence covers the certificate.
	StatusUnknown Status = iota
	StatusGood
	StatusRevoked
)

func (s Status) String() string {
	switch s {
	case StatusGood:
		return "good"
	case StatusRevoked:
		return "revoked"
	default:
		return "unknown"
	}
}

// Check looks up cert in the evidence. issuer is used to verify the
// signatures of CRLs and OCSP responses and may be nil, in which case
// entries are matched without signature verification.
func (e Evidence) Check(cert, issuer *x509.Certificate) Status {
	status := StatusUnknown
	for _, der := range e.OCSPs {
		resp, err := ocsp.ParseResponseForCert(der, cert, issuer)
		if err != nil || resp.SerialNumber.Cmp(cert.SerialNumber) != 0 {
			continue
		}
		switch resp.Status {
		case ocsp.Revoked:
			return StatusRevoked
		case ocsp.Good:
			status = StatusGood
		}
	}
	for _, der := range e.CRLs {
		crl, err := x509.ParseRevocationList(der)
		if err != nil {
			continue
		}
		if issuer != nil && crl.CheckSignatureFrom(issuer) != nil {
			continue
		}
		for _, rc := range crl.RevokedCertificateEntries {
			if rc.SerialNumber.Cmp(cert.SerialNumber) == 0 {
				return StatusRevoked
			}
		}
		if issuer != nil && string(crl.RawIssuer) == string(cert.RawIssuer) {
			status = StatusGood
		}
	}
	return status
}

// CRL contains the raw bytes of a pkix.CertificateList.
type CRL []asn1.RawValue

// OCSP contains the raw bytes of an OCSP response.
type OCSP []asn1.RawValue

// Other is the otherRevInfo entry of RevocationInfoArchival.
type Other struct {
	Type  asn1.ObjectIdentifier
	Value []byte
}
