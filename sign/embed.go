package sign

import (
	"bytes"
	"encoding/hex"
	"fmt"

	"github.com/digitorus/pdf"

	"github.com/digitorus/aissign/extract"
	"github.com/digitorus/aissign/fault"
)

// Embed writes signature into the placeholder's /Contents slot and returns
// the signed document. The placeholder itself is left untouched.
func Embed(p *Placeholder, signature []byte) ([]byte, error) {
	const op = "sign.Embed"

	if p == nil || len(p.data) == 0 {
		return nil, fault.New(fault.Embedding, op, "no placeholder")
	}
	if len(signature) == 0 {
		return nil, fault.New(fault.Embedding, op, "signature is empty")
	}
	if len(signature) > p.Capacity {
		return nil, fault.New(fault.Embedding, op,
			fmt.Sprintf("signature of %d bytes exceeds the reserved %d bytes", len(signature), p.Capacity))
	}

	start := p.contentsOffset() + 1
	end := p.ByteRange[2] - 1
	if start <= 0 || end > int64(len(p.data)) || p.data[start-1] != '<' || p.data[end] != '>' {
		return nil, fault.New(fault.Embedding, op, "signature slot not found")
	}
	if len(bytes.Trim(p.data[start:end], "0")) > 0 {
		return nil, fault.New(fault.Embedding, op, "signature slot is already filled")
	}

	out := make([]byte, len(p.data))
	copy(out, p.data)
	hex.Encode(out[start:], signature)

	if err := checkEmbedded(out, p.ByteRange, signature); err != nil {
		return nil, fault.Wrap(fault.Embedding, op, err)
	}
	return out, nil
}

// checkEmbedded parses the signed document and looks for the signature
// dictionary that carries signature under the expected byte range.
func checkEmbedded(data []byte, br [4]int64, signature []byte) error {
	r := bytes.NewReader(data)
	rdr, err := pdf.NewReader(r, int64(len(data)))
	if err != nil {
		return fmt.Errorf("signed document does not parse: %w", err)
	}

	for sig, err := range extract.Iter(rdr, r) {
		if err != nil {
			return err
		}
		got := sig.ByteRange()
		if len(got) != 4 || got[0] != br[0] || got[1] != br[1] || got[2] != br[2] || got[3] != br[3] {
			continue
		}
		if !bytes.HasPrefix(sig.Contents(), signature) {
			return fmt.Errorf("signature field does not hold the embedded signature")
		}
		return nil
	}
	return fmt.Errorf("signature field not found in signed document")
}
