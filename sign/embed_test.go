package sign

import (
	"bytes"
	"crypto"
	"crypto/sha512"
	"testing"
	"time"

	"github.com/digitorus/pkcs7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/digitorus/aissign/extract"
	"github.com/digitorus/aissign/fault"
	"github.com/digitorus/aissign/internal/testpki"
)

func TestEmbedVerifies(t *testing.T) {
	pki := testpki.NewTestPKI(t)
	key, cert := pki.IssueLeaf("AIS Test Signer")

	for name, input := range inputs() {
		t.Run(name, func(t *testing.T) {
			p, err := InsertPlaceholder(input, Options{SigningTime: fixedTime, EstimatedSignatureSize: 8192})
			require.NoError(t, err)
			digest, err := p.Digest(crypto.SHA512)
			require.NoError(t, err)

			cms, err := testpki.SignDigest(key, cert, pki.Chain(), digest, time.Now())
			require.NoError(t, err)

			signed, err := Embed(p, cms)
			require.NoError(t, err)
			assert.Len(t, signed, len(p.Bytes()))
			assert.Equal(t, p.Bytes()[:p.ByteRange[1]], signed[:p.ByteRange[1]])
			assert.Equal(t, p.Bytes()[p.ByteRange[2]:], signed[p.ByteRange[2]:])

			sigs, err := extract.Signatures(signed)
			require.NoError(t, err)
			require.Len(t, sigs, 1)

			p7, err := pkcs7.Parse(sigs[0].Envelope())
			require.NoError(t, err)
			r, err := sigs[0].SignedData()
			require.NoError(t, err)
			var content bytes.Buffer
			_, err = content.ReadFrom(r)
			require.NoError(t, err)
			p7.Content = content.Bytes()
			require.NoError(t, p7.Verify())

			sum := sha512.Sum512(content.Bytes())
			assert.Equal(t, []byte(digest), sum[:])
		})
	}
}

func TestEmbedErrors(t *testing.T) {
	p, err := InsertPlaceholder(testpki.PDF(testpki.PDFOptions{}), Options{SigningTime: fixedTime, EstimatedSignatureSize: MinSignatureSize})
	require.NoError(t, err)

	_, err = Embed(p, nil)
	assert.Equal(t, fault.Embedding, fault.KindOf(err))

	_, err = Embed(p, bytes.Repeat([]byte{0x01}, MinSignatureSize+1))
	assert.Equal(t, fault.Embedding, fault.KindOf(err))

	_, err = Embed(nil, []byte{0x01})
	assert.Equal(t, fault.Embedding, fault.KindOf(err))

	signed, err := Embed(p, bytes.Repeat([]byte{0x01}, MinSignatureSize))
	require.NoError(t, err)

	again, err := LocatePlaceholder(signed)
	require.NoError(t, err)
	_, err = Embed(again, []byte{0x02})
	assert.Equal(t, fault.Embedding, fault.KindOf(err))
}

func TestEmbedKeepsPlaceholder(t *testing.T) {
	p, err := InsertPlaceholder(testpki.PDF(testpki.PDFOptions{}), Options{SigningTime: fixedTime, EstimatedSignatureSize: 2048})
	require.NoError(t, err)
	before := append([]byte(nil), p.Bytes()...)

	_, err = Embed(p, []byte{0x30, 0x00})
	require.NoError(t, err)
	assert.Equal(t, before, p.Bytes())
}
