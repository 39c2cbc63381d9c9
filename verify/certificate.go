package verify

import (
	"bytes"
	"crypto/x509"
	"time"

	"github.com/digitorus/pkcs7"

	"github.com/digitorus/aissign/revocation"
)

// checkCertificates builds the chain of the signing certificate and looks
// up every certificate in the revocation evidence.
func checkCertificates(p7 *pkcs7.PKCS7, signer *Signer, ev revocation.Evidence, at time.Time, opts Options) {
	leaf := signingCertificate(p7)
	if leaf == nil {
		signer.fail(CheckChain, "signature carries no certificates", nil)
		return
	}

	intermediates := x509.NewCertPool()
	embeddedRoots := x509.NewCertPool()
	for _, cert := range p7.Certificates {
		intermediates.AddCert(cert)
		if bytes.Equal(cert.RawIssuer, cert.RawSubject) {
			embeddedRoots.AddCert(cert)
		}
	}

	verifyOpts := func(roots *x509.CertPool) x509.VerifyOptions {
		return x509.VerifyOptions{
			Roots:         roots,
			Intermediates: intermediates,
			CurrentTime:   at,
			KeyUsages:     []x509.ExtKeyUsage{x509.ExtKeyUsageAny},
		}
	}

	var chain []*x509.Certificate
	var verifyErr string
	if chains, err := leaf.Verify(verifyOpts(opts.Roots)); err == nil {
		signer.TrustedIssuer = true
		chain = chains[0]
	} else {
		verifyErr = err.Error()
		if opts.AllowEmbeddedRoots {
			if chains, altErr := leaf.Verify(verifyOpts(embeddedRoots)); altErr == nil {
				chain = chains[0]
				verifyErr = ""
			}
		}
		if verifyErr != "" {
			signer.ValidationErrors = append(signer.ValidationErrors, &Problem{Check: CheckChain, Subject: leaf.Subject.String(), Msg: verifyErr})
		}
	}

	for _, cert := range p7.Certificates {
		c := Certificate{Certificate: cert}
		if cert == leaf {
			c.VerifyError = verifyErr
			c.KeyUsageError = keyUsageError(cert, opts)
			if c.KeyUsageError != "" {
				signer.ValidationErrors = append(signer.ValidationErrors, &Problem{Check: CheckKeyUsage, Subject: cert.Subject.String(), Msg: c.KeyUsageError})
			}
		}

		// Self-signed roots are not covered by revocation evidence.
		if issuer := issuerOf(cert, chain, p7.Certificates); issuer != nil && issuer != cert {
			c.Revocation = ev.Check(cert, issuer)
		}
		if c.Revocation == revocation.StatusRevoked {
			signer.RevokedCertificate = true
			signer.ValidationErrors = append(signer.ValidationErrors, &Problem{Check: CheckRevocation, Subject: cert.Subject.String(), Msg: "certificate is revoked"})
		}
		signer.Certificates = append(signer.Certificates, c)
	}
}

// issuerOf prefers the verified chain and falls back to a subject match
// among the embedded certificates.
func issuerOf(cert *x509.Certificate, chain, pool []*x509.Certificate) *x509.Certificate {
	for i := 0; i+1 < len(chain); i++ {
		if chain[i].Equal(cert) {
			return chain[i+1]
		}
	}
	for _, c := range pool {
		if bytes.Equal(c.RawSubject, cert.RawIssuer) && cert.CheckSignatureFrom(c) == nil {
			return c
		}
	}
	return nil
}

// keyUsageError validates the Key Usage bits of a signing certificate.
func keyUsageError(cert *x509.Certificate, opts Options) string {
	if cert.KeyUsage == 0 {
		return ""
	}
	if opts.RequireNonRepudiation && cert.KeyUsage&x509.KeyUsageContentCommitment == 0 {
		return "certificate does not have Non-Repudiation key usage"
	}
	if cert.KeyUsage&(x509.KeyUsageDigitalSignature|x509.KeyUsageContentCommitment) == 0 {
		return "certificate does not have Digital Signature key usage"
	}
	return ""
}
