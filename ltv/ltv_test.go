package ltv

import (
	"bytes"
	"crypto"
	"crypto/x509"
	"io"
	"testing"
	"time"

	"github.com/digitorus/pdf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ocsp"

	"github.com/digitorus/aissign/extract"
	"github.com/digitorus/aissign/fault"
	"github.com/digitorus/aissign/internal/testpki"
	"github.com/digitorus/aissign/revocation"
	"github.com/digitorus/aissign/sign"
)

var fixedTime = time.Date(2024, 5, 4, 10, 0, 0, 0, time.UTC)

type fixture struct {
	pki    *testpki.TestPKI
	cert   *x509.Certificate
	signed []byte
}

func signedPDF(t *testing.T, opts testpki.PDFOptions) fixture {
	t.Helper()
	pki := testpki.NewTestPKI(t)
	key, cert := pki.IssueLeaf("AIS Test Signer")

	p, err := sign.InsertPlaceholder(testpki.PDF(opts), sign.Options{SigningTime: fixedTime, EstimatedSignatureSize: 8192})
	require.NoError(t, err)
	digest, err := p.Digest(crypto.SHA512)
	require.NoError(t, err)
	cms, err := testpki.SignDigest(key, cert, pki.Chain(), digest, time.Now())
	require.NoError(t, err)
	signed, err := sign.Embed(p, cms)
	require.NoError(t, err)

	return fixture{pki: pki, cert: cert, signed: signed}
}

func (f fixture) evidence() revocation.Evidence {
	return revocation.Evidence{
		CRLs:  [][]byte{f.pki.CRL()},
		OCSPs: [][]byte{f.pki.OCSP(f.cert, ocsp.Good)},
	}
}

func dssOf(t *testing.T, data []byte) pdf.Value {
	t.Helper()
	rdr, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	return rdr.Trailer().Key("Root").Key("DSS")
}

func TestAddLTV(t *testing.T) {
	for name, opts := range map[string]testpki.PDFOptions{
		"xref table":  {},
		"xref stream": {XrefStream: true},
	} {
		t.Run(name, func(t *testing.T) {
			f := signedPDF(t, opts)
			ev := f.evidence()

			out, err := AddLTVWithOptions(f.signed, ev, Options{Time: fixedTime})
			require.NoError(t, err)
			assert.True(t, bytes.HasPrefix(out, f.signed), "signed revision must be preserved")

			dss := dssOf(t, out)
			assert.Equal(t, "DSS", dss.Key("Type").Name())
			assert.Equal(t, 3, dss.Key("Certs").Len())
			assert.Equal(t, 1, dss.Key("CRLs").Len())
			assert.Equal(t, 1, dss.Key("OCSPs").Len())

			crl, err := io.ReadAll(dss.Key("CRLs").Index(0).Reader())
			require.NoError(t, err)
			assert.Equal(t, ev.CRLs[0], crl)

			leaf, err := io.ReadAll(dss.Key("Certs").Index(0).Reader())
			require.NoError(t, err)
			assert.Equal(t, f.cert.Raw, leaf)

			sigs, err := extract.Signatures(out)
			require.NoError(t, err)
			require.Len(t, sigs, 1)
			vri := dss.Key("VRI").Key(VRIKey(sigs[0].Contents()))
			assert.Equal(t, "VRI", vri.Key("Type").Name())
			assert.Equal(t, 3, vri.Key("Cert").Len())
			assert.Equal(t, 1, vri.Key("OCSP").Len())
			assert.Equal(t, "D:20240504100000Z", vri.Key("TU").Text())

			r, err := sigs[0].SignedData()
			require.NoError(t, err)
			content, err := io.ReadAll(r)
			require.NoError(t, err)
			assert.Equal(t, int64(len(content)), int64(len(f.signed))-sigs[0].ByteRange()[2]+sigs[0].ByteRange()[1])
		})
	}
}

func TestAddLTVIncompleteEvidence(t *testing.T) {
	f := signedPDF(t, testpki.PDFOptions{})
	full := f.evidence()

	for name, ev := range map[string]revocation.Evidence{
		"none":      {},
		"crl only":  {CRLs: full.CRLs},
		"ocsp only": {OCSPs: full.OCSPs},
	} {
		t.Run(name, func(t *testing.T) {
			out, err := AddLTV(f.signed, ev)
			require.Error(t, err)
			assert.Nil(t, out)
			assert.Equal(t, fault.Embedding, fault.KindOf(err))
		})
	}
}

func TestAddLTVUnsigned(t *testing.T) {
	f := signedPDF(t, testpki.PDFOptions{})

	_, err := AddLTV(testpki.PDF(testpki.PDFOptions{}), f.evidence())
	assert.Equal(t, fault.Embedding, fault.KindOf(err))

	_, err = AddLTV([]byte("not a pdf"), f.evidence())
	assert.Equal(t, fault.Embedding, fault.KindOf(err))
}

func TestAddLTVMergesExistingStore(t *testing.T) {
	f := signedPDF(t, testpki.PDFOptions{})

	first, err := AddLTV(f.signed, f.evidence())
	require.NoError(t, err)
	second, err := AddLTV(first, f.evidence())
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(second, first))

	dss := dssOf(t, second)
	assert.Equal(t, 6, dss.Key("Certs").Len())
	assert.Equal(t, 2, dss.Key("CRLs").Len())
	assert.Equal(t, 2, dss.Key("OCSPs").Len())
	assert.Len(t, dss.Key("VRI").Keys(), 1)
}

func TestAddLTVDeduplicates(t *testing.T) {
	f := signedPDF(t, testpki.PDFOptions{})
	ev := f.evidence()
	ev.CRLs = append(ev.CRLs, ev.CRLs[0])

	out, err := AddLTV(f.signed, ev)
	require.NoError(t, err)
	assert.Equal(t, 1, dssOf(t, out).Key("CRLs").Len())
}

func TestVRIKey(t *testing.T) {
	key := VRIKey([]byte("abc"))
	assert.Equal(t, "A9993E364706816ABA3E25717850C26C9CD0D89D", key)
}
