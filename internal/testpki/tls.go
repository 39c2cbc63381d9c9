package testpki

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"net"
	"os"
	"path/filepath"
	"time"
)

// TLSFiles are PEM files on disk, as an operator would provide them.
type TLSFiles struct {
	CertFile string
	KeyFile  string
	CAFile   string
}

// IssueTLS issues a certificate from the root CA for mutual TLS. Server
// certificates are valid for localhost and 127.0.0.1.
func (p *TestPKI) IssueTLS(commonName string, server bool) tls.Certificate {
	return p.issueTLS(commonName, server, time.Now().Add(time.Hour))
}

// IssueExpiredTLS issues a client certificate that expired an hour ago.
func (p *TestPKI) IssueExpiredTLS(commonName string) tls.Certificate {
	return p.issueTLS(commonName, false, time.Now().Add(-time.Hour))
}

func (p *TestPKI) issueTLS(commonName string, server bool, notAfter time.Time) tls.Certificate {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		Fail(p.T, "failed to generate TLS key: %v", err)
	}

	template := &x509.Certificate{
		Subject:     pkix.Name{CommonName: commonName, Organization: []string{"AISSign Test Org"}},
		NotBefore:   time.Now().Add(-2 * time.Hour),
		NotAfter:    notAfter,
		KeyUsage:    x509.KeyUsageDigitalSignature,
		ExtKeyUsage: []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth},
	}
	if server {
		template.ExtKeyUsage = []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth}
		template.DNSNames = []string{"localhost"}
		template.IPAddresses = []net.IP{net.ParseIP("127.0.0.1")}
	}
	cert := p.issue(template, p.RootCert, key, p.RootKey)

	return tls.Certificate{
		Certificate: [][]byte{cert.Raw},
		PrivateKey:  key,
		Leaf:        cert,
	}
}

// WriteTLSFiles stores cert, its key and the root CA as PEM files in dir.
func (p *TestPKI) WriteTLSFiles(dir string, cert tls.Certificate) TLSFiles {
	keyDER, err := x509.MarshalPKCS8PrivateKey(cert.PrivateKey)
	if err != nil {
		Fail(p.T, "failed to marshal TLS key: %v", err)
	}

	files := TLSFiles{
		CertFile: filepath.Join(dir, "client.crt"),
		KeyFile:  filepath.Join(dir, "client.key"),
		CAFile:   filepath.Join(dir, "ca.crt"),
	}
	writePEM(p, files.CertFile, "CERTIFICATE", cert.Certificate[0])
	writePEM(p, files.KeyFile, "PRIVATE KEY", keyDER)
	writePEM(p, files.CAFile, "CERTIFICATE", p.RootCert.Raw)
	return files
}

func writePEM(p *TestPKI, path, blockType string, der []byte) {
	data := pem.EncodeToMemory(&pem.Block{Type: blockType, Bytes: der})
	if err := os.WriteFile(path, data, 0o600); err != nil {
		Fail(p.T, "failed to write %s: %v", path, err)
	}
}

// ServerTLSConfig returns a server configuration that requires a client
// certificate issued by the root CA.
func (p *TestPKI) ServerTLSConfig(server tls.Certificate) *tls.Config {
	return &tls.Config{
		Certificates: []tls.Certificate{server},
		ClientAuth:   tls.RequireAndVerifyClientCert,
		ClientCAs:    p.CertPool(),
		MinVersion:   tls.VersionTLS12,
	}
}
