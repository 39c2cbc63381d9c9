package sign

import (
	"bytes"
	"crypto"
	_ "crypto/sha512"
	"encoding/base64"
	"io"

	"github.com/digitorus/aissign/fault"
)

// DigestValue is the raw output of the document hash.
type DigestValue []byte

// Base64 returns the standard base64 encoding used in dsig.DigestValue.
func (d DigestValue) Base64() string {
	return base64.StdEncoding.EncodeToString(d)
}

func checkAlgorithm(op string, alg crypto.Hash) error {
	if alg != crypto.SHA512 {
		return fault.New(fault.UnsupportedAlgorithm, op, "only SHA-512 is supported, got "+alg.String())
	}
	return nil
}

// Digest hashes data.
func Digest(data []byte, alg crypto.Hash) (DigestValue, error) {
	return DigestReader(bytes.NewReader(data), alg)
}

// DigestReader hashes everything read from r.
func DigestReader(r io.Reader, alg crypto.Hash) (DigestValue, error) {
	const op = "sign.Digest"
	if err := checkAlgorithm(op, alg); err != nil {
		return nil, err
	}
	h := alg.New()
	if _, err := io.Copy(h, r); err != nil {
		return nil, fault.Wrap(fault.IO, op, err)
	}
	return h.Sum(nil), nil
}

// ParseDigest decodes a base64 digest supplied by a client and checks that
// it has the length of alg.
func ParseDigest(s string, alg crypto.Hash) (DigestValue, error) {
	const op = "sign.ParseDigest"
	if err := checkAlgorithm(op, alg); err != nil {
		return nil, err
	}
	if s == "" {
		return nil, fault.New(fault.Validation, op, "Digest is required.")
	}
	d, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fault.Wrapf(fault.Validation, op, err, "Digest must be base64 encoded.")
	}
	if len(d) != alg.Size() {
		return nil, fault.New(fault.Validation, op, "Digest must be a base64 encoded SHA-512 value.")
	}
	return d, nil
}

// Digest hashes the bytes covered by the placeholder's ByteRange.
func (p *Placeholder) Digest(alg crypto.Hash) (DigestValue, error) {
	br := p.ByteRange
	if br[0] != 0 || br[1] > br[2] || br[2]+br[3] != int64(len(p.data)) {
		return nil, fault.New(fault.MalformedDocument, "sign.Digest", "byte range does not match the document")
	}
	return DigestReader(io.MultiReader(
		bytes.NewReader(p.data[:br[1]]),
		bytes.NewReader(p.data[br[2]:br[2]+br[3]]),
	), alg)
}
