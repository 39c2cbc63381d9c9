// Package testpki provides a throwaway PKI and fixtures for tests: a CA
// hierarchy, signing and mTLS certificates, CRL and OCSP evidence, detached
// CMS signatures over a digest and minimal PDF documents.
package testpki

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"fmt"
	"log"
	"math/big"
	"testing"
	"time"

	"golang.org/x/crypto/ocsp"
)

// KeyProfile defines the key type used for the hierarchy.
type KeyProfile string

const (
	RSA_2048   KeyProfile = "RSA_2048"
	RSA_3072   KeyProfile = "RSA_3072"
	ECDSA_P256 KeyProfile = "ECDSA_P256"
	ECDSA_P384 KeyProfile = "ECDSA_P384"
)

type TestPKIConfig struct {
	Profile         KeyProfile
	IntermediateCAs int
}

// TestPKI manages a temporary PKI hierarchy for testing.
type TestPKI struct {
	T                 *testing.T
	RootKey           crypto.Signer
	RootCert          *x509.Certificate
	IntermediateKeys  []crypto.Signer
	IntermediateCerts []*x509.Certificate
	Profile           KeyProfile

	serial int64
}

// NewTestPKI creates a root and one intermediate CA with RSA keys, which is
// what the remote authority in tests signs with.
func NewTestPKI(t *testing.T) *TestPKI {
	return NewTestPKIWithConfig(t, TestPKIConfig{
		Profile:         RSA_2048,
		IntermediateCAs: 1,
	})
}

// NewTestPKIWithConfig allows detailed configuration of the PKI.
func NewTestPKIWithConfig(t *testing.T, config TestPKIConfig) *TestPKI {
	p := &TestPKI{T: t, Profile: config.Profile, serial: 1}

	p.RootKey = GenerateKey(t, config.Profile)
	p.RootCert = p.issue(&x509.Certificate{
		Subject: pkix.Name{
			CommonName:   "AISSign Test Root CA",
			Organization: []string{"AISSign Test Org"},
		},
		NotBefore:             time.Now().Add(-1 * time.Hour),
		NotAfter:              time.Now().Add(24 * time.Hour),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign,
		BasicConstraintsValid: true,
		IsCA:                  true,
		SubjectKeyId:          []byte{1, 2, 3, 4},
	}, nil, p.RootKey, p.RootKey)

	parentKey, parentCert := p.RootKey, p.RootCert
	for i := 0; i < config.IntermediateCAs; i++ {
		key := GenerateKey(t, config.Profile)
		cert := p.issue(&x509.Certificate{
			Subject: pkix.Name{
				CommonName:   fmt.Sprintf("AISSign Test Intermediate CA %d", i+1),
				Organization: []string{"AISSign Test Org"},
			},
			NotBefore:             time.Now().Add(-1 * time.Hour),
			NotAfter:              time.Now().Add(24 * time.Hour),
			KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign,
			BasicConstraintsValid: true,
			IsCA:                  true,
			MaxPathLenZero:        i == config.IntermediateCAs-1,
			SubjectKeyId:          []byte{5, 6, 7, 8, byte(i)},
			AuthorityKeyId:        parentCert.SubjectKeyId,
		}, parentCert, key, parentKey)

		p.IntermediateKeys = append(p.IntermediateKeys, key)
		p.IntermediateCerts = append(p.IntermediateCerts, cert)
		parentKey, parentCert = key, cert
	}
	return p
}

func (p *TestPKI) issue(template, parent *x509.Certificate, key, parentKey crypto.Signer) *x509.Certificate {
	p.serial++
	template.SerialNumber = big.NewInt(p.serial)
	if parent == nil {
		parent = template
	}
	der, err := x509.CreateCertificate(rand.Reader, template, parent, key.Public(), parentKey)
	if err != nil {
		Fail(p.T, "failed to create certificate %q: %v", template.Subject.CommonName, err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		Fail(p.T, "failed to parse certificate %q: %v", template.Subject.CommonName, err)
	}
	return cert
}

// Issuer returns the CA that issues leaf certificates.
func (p *TestPKI) Issuer() (*x509.Certificate, crypto.Signer) {
	if n := len(p.IntermediateCerts); n > 0 {
		return p.IntermediateCerts[n-1], p.IntermediateKeys[n-1]
	}
	return p.RootCert, p.RootKey
}

// IssueLeaf generates a document signing certificate.
func (p *TestPKI) IssueLeaf(commonName string) (crypto.Signer, *x509.Certificate) {
	priv := GenerateKey(p.T, p.Profile)
	issuerCert, issuerKey := p.Issuer()

	cert := p.issue(&x509.Certificate{
		Subject: pkix.Name{
			CommonName:   commonName,
			Organization: []string{"AISSign Test Org"},
		},
		NotBefore:      time.Now().Add(-1 * time.Hour),
		NotAfter:       time.Now().Add(1 * time.Hour),
		KeyUsage:       x509.KeyUsageDigitalSignature | x509.KeyUsageContentCommitment,
		AuthorityKeyId: issuerCert.SubjectKeyId,
	}, issuerCert, priv, issuerKey)
	return priv, cert
}

// Chain returns the certificate chain for a leaf (intermediate to root).
func (p *TestPKI) Chain() []*x509.Certificate {
	var chain []*x509.Certificate
	for i := len(p.IntermediateCerts) - 1; i >= 0; i-- {
		chain = append(chain, p.IntermediateCerts[i])
	}
	return append(chain, p.RootCert)
}

// CertPool returns a pool holding the root certificate.
func (p *TestPKI) CertPool() *x509.CertPool {
	pool := x509.NewCertPool()
	pool.AddCert(p.RootCert)
	return pool
}

// CRL returns a DER encoded CRL of the issuing CA. The serials passed in are
// listed as revoked.
func (p *TestPKI) CRL(revoked ...*big.Int) []byte {
	issuerCert, issuerKey := p.Issuer()

	var entries []x509.RevocationListEntry
	for _, serial := range revoked {
		entries = append(entries, x509.RevocationListEntry{SerialNumber: serial, RevocationTime: time.Now().Add(-time.Minute)})
	}
	der, err := x509.CreateRevocationList(rand.Reader, &x509.RevocationList{
		Number:                    big.NewInt(1),
		ThisUpdate:                time.Now().Add(-time.Minute),
		NextUpdate:                time.Now().Add(24 * time.Hour),
		RevokedCertificateEntries: entries,
	}, issuerCert, issuerKey)
	if err != nil {
		Fail(p.T, "failed to create CRL: %v", err)
	}
	return der
}

// OCSP returns a DER encoded OCSP response for cert with the given status
// (ocsp.Good, ocsp.Revoked, ocsp.Unknown).
func (p *TestPKI) OCSP(cert *x509.Certificate, status int) []byte {
	issuerCert, issuerKey := p.Issuer()

	template := ocsp.Response{
		Status:       status,
		SerialNumber: cert.SerialNumber,
		ThisUpdate:   time.Now().Add(-time.Hour),
		NextUpdate:   time.Now().Add(24 * time.Hour),
	}
	if status == ocsp.Revoked {
		template.RevokedAt = time.Now().Add(-time.Minute)
	}
	der, err := ocsp.CreateResponse(issuerCert, issuerCert, template, issuerKey)
	if err != nil {
		Fail(p.T, "failed to create OCSP response: %v", err)
	}
	return der
}

func Fail(t *testing.T, format string, args ...interface{}) {
	if t != nil {
		t.Helper()
		t.Fatalf(format, args...)
	} else {
		log.Fatalf(format, args...)
	}
}

func GenerateKey(t *testing.T, profile KeyProfile) crypto.Signer {
	var (
		k   crypto.Signer
		err error
	)
	switch profile {
	case RSA_2048:
		k, err = rsa.GenerateKey(rand.Reader, 2048)
	case RSA_3072:
		k, err = rsa.GenerateKey(rand.Reader, 3072)
	case ECDSA_P256:
		k, err = ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	case ECDSA_P384:
		k, err = ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
	default:
		Fail(t, "unknown key profile: %s", profile)
		return nil
	}
	if err != nil {
		Fail(t, "failed to generate %s key: %v", profile, err)
	}
	return k
}
