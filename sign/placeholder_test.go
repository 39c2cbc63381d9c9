package sign

import (
	"bytes"
	"crypto"
	"crypto/sha512"
	"testing"
	"time"

	"github.com/digitorus/pdf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/digitorus/aissign/fault"
	"github.com/digitorus/aissign/internal/testpki"
)

var fixedTime = time.Date(2024, 5, 4, 10, 0, 0, 0, time.UTC)

func inputs() map[string][]byte {
	return map[string][]byte{
		"xref table":  testpki.PDF(testpki.PDFOptions{}),
		"xref stream": testpki.PDF(testpki.PDFOptions{XrefStream: true}),
	}
}

func TestInsertPlaceholder(t *testing.T) {
	for name, input := range inputs() {
		t.Run(name, func(t *testing.T) {
			p, err := InsertPlaceholder(input, Options{
				Name:        "Jane Doe",
				Reason:      "Approval",
				Location:    "Zürich",
				SigningTime: fixedTime,
			})
			require.NoError(t, err)

			data := p.Bytes()
			assert.True(t, bytes.HasPrefix(data, input), "original bytes must be preserved")
			assert.Equal(t, DefaultSignatureSize, p.Capacity)

			br := p.ByteRange
			assert.Equal(t, int64(0), br[0])
			assert.Equal(t, byte('<'), data[br[1]])
			assert.Equal(t, byte('>'), data[br[2]-1])
			assert.Equal(t, int64(len(data)), br[2]+br[3])
			assert.Equal(t, int64(2*p.Capacity+2), br[2]-br[1])

			rdr, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
			require.NoError(t, err)
			root := rdr.Trailer().Key("Root")
			assert.Equal(t, int64(3), root.Key("AcroForm").Key("SigFlags").Int64())
			assert.Equal(t, "Pages", root.Key("Pages").Key("Type").Name())

			fields := root.Key("AcroForm").Key("Fields")
			require.Equal(t, 1, fields.Len())
			field := fields.Index(0)
			assert.Equal(t, "Signature1", field.Key("T").Text())
			assert.Equal(t, "Sig", field.Key("FT").Name())

			sig := field.Key("V")
			assert.Equal(t, "Sig", sig.Key("Type").Name())
			assert.Equal(t, "Adobe.PPKLite", sig.Key("Filter").Name())
			assert.Equal(t, SubFilterPKCS7Detached, sig.Key("SubFilter").Name())
			assert.Equal(t, "Jane Doe", sig.Key("Name").Text())
			assert.Equal(t, "Zürich", sig.Key("Location").Text())
			for i := 0; i < 4; i++ {
				assert.Equal(t, br[i], sig.Key("ByteRange").Index(i).Int64())
			}
			assert.Len(t, sig.Key("Contents").RawString(), p.Capacity)
		})
	}
}

func TestPlaceholderDigest(t *testing.T) {
	for name, input := range inputs() {
		t.Run(name, func(t *testing.T) {
			opts := Options{SigningTime: fixedTime, EstimatedSignatureSize: 4096}

			a, err := InsertPlaceholder(input, opts)
			require.NoError(t, err)
			b, err := InsertPlaceholder(input, opts)
			require.NoError(t, err)
			assert.Equal(t, a.Bytes(), b.Bytes())

			da, err := a.Digest(crypto.SHA512)
			require.NoError(t, err)
			db, err := b.Digest(crypto.SHA512)
			require.NoError(t, err)
			assert.Equal(t, da, db)

			data := a.Bytes()
			br := a.ByteRange
			h := sha512.New()
			h.Write(data[:br[1]])
			h.Write(data[br[2]:])
			assert.Equal(t, DigestValue(h.Sum(nil)), da)
			assert.Len(t, da.Base64(), 88)
		})
	}
}

func TestInsertPlaceholderErrors(t *testing.T) {
	_, err := InsertPlaceholder(testpki.PDF(testpki.PDFOptions{}), Options{EstimatedSignatureSize: 512})
	assert.Equal(t, fault.Capacity, fault.KindOf(err))

	_, err = InsertPlaceholder([]byte("%PDF-1.7\nnot really a pdf"), Options{})
	assert.Equal(t, fault.MalformedDocument, fault.KindOf(err))

	_, err = InsertPlaceholder(nil, Options{})
	assert.Equal(t, fault.MalformedDocument, fault.KindOf(err))
}

func TestCertification(t *testing.T) {
	p, err := InsertPlaceholder(testpki.PDF(testpki.PDFOptions{}), Options{
		SigningTime:        fixedTime,
		CertificationLevel: CertifiedFormFilling,
	})
	require.NoError(t, err)

	data := p.Bytes()
	rdr, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)

	docMDP := rdr.Trailer().Key("Root").Key("Perms").Key("DocMDP")
	require.False(t, docMDP.IsNull())
	ref := docMDP.Key("Reference").Index(0)
	assert.Equal(t, "DocMDP", ref.Key("TransformMethod").Name())
	assert.Equal(t, int64(2), ref.Key("TransformParams").Key("P").Int64())
}

func TestSecondSignatureField(t *testing.T) {
	first, err := InsertPlaceholder(testpki.PDF(testpki.PDFOptions{}), Options{SigningTime: fixedTime, EstimatedSignatureSize: 2048})
	require.NoError(t, err)
	signed, err := Embed(first, []byte{0x30, 0x03, 0x02, 0x01, 0x01})
	require.NoError(t, err)

	_, err = InsertPlaceholder(signed, Options{SigningTime: fixedTime, CertificationLevel: CertifiedNoChanges})
	assert.Equal(t, fault.Validation, fault.KindOf(err))

	second, err := InsertPlaceholder(signed, Options{SigningTime: fixedTime, EstimatedSignatureSize: 2048})
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(second.Bytes(), signed))

	data := second.Bytes()
	rdr, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	fields := rdr.Trailer().Key("Root").Key("AcroForm").Key("Fields")
	require.Equal(t, 2, fields.Len())
	assert.Equal(t, "Signature1", fields.Index(0).Key("T").Text())
	assert.Equal(t, "Signature2", fields.Index(1).Key("T").Text())
}

func TestLocatePlaceholder(t *testing.T) {
	p, err := InsertPlaceholder(testpki.PDF(testpki.PDFOptions{XrefStream: true}), Options{SigningTime: fixedTime})
	require.NoError(t, err)

	located, err := LocatePlaceholder(p.Bytes())
	require.NoError(t, err)
	assert.Equal(t, p.ByteRange, located.ByteRange)
	assert.Equal(t, p.Capacity, located.Capacity)

	_, err = LocatePlaceholder(testpki.PDF(testpki.PDFOptions{}))
	assert.Equal(t, fault.Embedding, fault.KindOf(err))

	truncated := p.Bytes()[:len(p.Bytes())-10]
	_, err = LocatePlaceholder(truncated)
	assert.Equal(t, fault.Embedding, fault.KindOf(err))
}

func TestDigestAlgorithm(t *testing.T) {
	_, err := Digest([]byte("x"), crypto.SHA256)
	assert.Equal(t, fault.UnsupportedAlgorithm, fault.KindOf(err))

	d, err := Digest([]byte("abc"), crypto.SHA512)
	require.NoError(t, err)
	want := sha512.Sum512([]byte("abc"))
	assert.Equal(t, DigestValue(want[:]), d)
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, assert.AnError }

func TestDigestReaderIOError(t *testing.T) {
	_, err := DigestReader(failingReader{}, crypto.SHA512)
	assert.Equal(t, fault.IO, fault.KindOf(err))
	assert.ErrorIs(t, err, assert.AnError)
}

func TestParseDigest(t *testing.T) {
	want := sha512.Sum512([]byte("document"))
	d, err := ParseDigest(DigestValue(want[:]).Base64(), crypto.SHA512)
	require.NoError(t, err)
	assert.Equal(t, DigestValue(want[:]), d)

	for _, in := range []string{"", "not base64!", "YWJj"} {
		_, err := ParseDigest(in, crypto.SHA512)
		assert.Equal(t, fault.Validation, fault.KindOf(err), "input %q", in)
	}
	_, err = ParseDigest("", crypto.SHA512)
	assert.Equal(t, "Digest is required.", fault.Message(err))
}
