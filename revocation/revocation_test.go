package revocation

import (
	"encoding/asn1"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ocsp"

	"github.com/digitorus/aissign/fault"
	"github.com/digitorus/aissign/internal/testpki"
)

func b64(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}

func TestDecode(t *testing.T) {
	pki := testpki.NewTestPKI(t)
	_, leaf := pki.IssueLeaf("Signer")
	crl := pki.CRL()
	resp := pki.OCSP(leaf, ocsp.Good)

	ev, err := Decode([]string{b64(crl)}, []string{b64(resp), "  "})
	require.NoError(t, err)
	assert.Equal(t, [][]byte{crl}, ev.CRLs)
	assert.Equal(t, [][]byte{resp}, ev.OCSPs)
	assert.True(t, ev.Complete())

	ev, err = Decode([]string{b64(crl)}, nil)
	require.NoError(t, err)
	assert.False(t, ev.Complete())

	ev, err = Decode(nil, nil)
	require.NoError(t, err)
	assert.False(t, ev.Complete())
}

func TestDecodeInvalid(t *testing.T) {
	tests := []struct {
		name  string
		crls  []string
		ocsps []string
	}{
		{"bad base64 crl", []string{"%%%"}, nil},
		{"crl not der", []string{b64([]byte("not a crl"))}, nil},
		{"ocsp not der", nil, []string{b64([]byte("not an ocsp response"))}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.crls, tt.ocsps)
			assert.Equal(t, fault.Embedding, fault.KindOf(err))
		})
	}
}

func TestCheck(t *testing.T) {
	pki := testpki.NewTestPKI(t)
	_, good := pki.IssueLeaf("Good")
	_, revoked := pki.IssueLeaf("Revoked")
	issuer, _ := pki.Issuer()

	ev := Evidence{
		CRLs:  [][]byte{pki.CRL(revoked.SerialNumber)},
		OCSPs: [][]byte{pki.OCSP(good, ocsp.Good)},
	}
	assert.Equal(t, StatusGood, ev.Check(good, issuer))
	assert.Equal(t, StatusRevoked, ev.Check(revoked, issuer))
	assert.Equal(t, StatusRevoked, Evidence{OCSPs: [][]byte{pki.OCSP(revoked, ocsp.Revoked)}}.Check(revoked, nil))
	assert.Equal(t, StatusUnknown, Evidence{}.Check(good, issuer))
	assert.Equal(t, "revoked", StatusRevoked.String())
}

func TestInfoArchival(t *testing.T) {
	pki := testpki.NewTestPKI(t)
	_, leaf := pki.IssueLeaf("Signer")

	var info InfoArchival
	info.AddCRL(pki.CRL())
	info.AddOCSP(pki.OCSP(leaf, ocsp.Good))

	der, err := asn1.Marshal(info)
	require.NoError(t, err)

	var parsed InfoArchival
	_, err = asn1.Unmarshal(der, &parsed)
	require.NoError(t, err)

	ev := parsed.Evidence()
	assert.Len(t, ev.CRLs, 1)
	assert.Len(t, ev.OCSPs, 1)
	issuer, _ := pki.Issuer()
	assert.Equal(t, StatusGood, ev.Check(leaf, issuer))
}
