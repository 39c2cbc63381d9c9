package extract_test

import (
	"bytes"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/digitorus/aissign/extract"
	"github.com/digitorus/aissign/internal/testpki"
	"github.com/digitorus/aissign/sign"
)

func TestSignatures(t *testing.T) {
	p, err := sign.InsertPlaceholder(testpki.PDF(testpki.PDFOptions{}), sign.Options{
		Name:                   "Jane Doe",
		Reason:                 "Approval",
		Location:               "Bern",
		SigningTime:            time.Date(2024, 5, 4, 10, 0, 0, 0, time.UTC),
		EstimatedSignatureSize: 2048,
	})
	require.NoError(t, err)

	envelope := []byte{0x30, 0x06, 0x02, 0x01, 0x01, 0x04, 0x01, 0x00}
	signed, err := sign.Embed(p, envelope)
	require.NoError(t, err)

	sigs, err := extract.Signatures(signed)
	require.NoError(t, err)
	require.Len(t, sigs, 1)

	sig := sigs[0]
	assert.Equal(t, "Signature1", sig.Field)
	assert.Equal(t, "Jane Doe", sig.Name())
	assert.Equal(t, "Approval", sig.Reason())
	assert.Equal(t, "Bern", sig.Location())
	assert.Equal(t, "D:20240504100000+00'00'", sig.SigningTime())
	assert.Equal(t, "Adobe.PPKLite", sig.Filter())
	assert.Equal(t, sign.SubFilterPKCS7Detached, sig.SubFilter())
	assert.Len(t, sig.Contents(), 2048)
	// The trailing zero of the envelope is part of the DER structure.
	assert.Equal(t, envelope, sig.Envelope())

	br := sig.ByteRange()
	require.Len(t, br, 4)
	assert.Equal(t, p.ByteRange[:], br)

	r, err := sig.SignedData()
	require.NoError(t, err)
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	want := append(append([]byte(nil), signed[:br[1]]...), signed[br[2]:]...)
	assert.Equal(t, want, data)
}

func TestSignaturesUnsigned(t *testing.T) {
	sigs, err := extract.Signatures(testpki.PDF(testpki.PDFOptions{XrefStream: true}))
	require.NoError(t, err)
	assert.Empty(t, sigs)
}

func TestByteRangeReader(t *testing.T) {
	file := bytes.NewReader([]byte("0123456789abcdef"))
	tests := []struct {
		name   string
		ranges []int64
		want   string
	}{
		{"single", []int64{0, 4}, "0123"},
		{"two", []int64{0, 3, 10, 6}, "012abcdef"},
		{"empty range", []int64{0, 0, 5, 2}, "56"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &extract.ByteRangeReader{File: file, Ranges: tt.ranges}
			got, err := io.ReadAll(r)
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(got))
		})
	}
}

func TestByteRangeReaderShortFile(t *testing.T) {
	r := &extract.ByteRangeReader{File: bytes.NewReader([]byte("short")), Ranges: []int64{0, 10}}
	_, err := io.ReadAll(r)
	assert.Error(t, err)
}

func BenchmarkSignatures(b *testing.B) {
	p, err := sign.InsertPlaceholder(testpki.PDF(testpki.PDFOptions{Pages: 20}), sign.Options{EstimatedSignatureSize: 4096})
	require.NoError(b, err)
	signed, err := sign.Embed(p, []byte{0x30, 0x00})
	require.NoError(b, err)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := extract.Signatures(signed); err != nil {
			b.Fatal(err)
		}
	}
}
