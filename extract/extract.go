// Package extract walks the signature fields of a PDF.
package extract

import (
	"bytes"
	"errors"
	"io"
	"iter"

	"github.com/digitorus/pdf"
	"golang.org/x/crypto/cryptobyte"
	cbasn1 "golang.org/x/crypto/cryptobyte/asn1"
)

// Signature is a signature dictionary referenced from an AcroForm field.
type Signature struct {
	Field string
	Obj   pdf.Value
	File  io.ReaderAt
}

// Filter returns the name of the preferred signature handler.
func (s *Signature) Filter() string {
	return s.Obj.Key("Filter").Name()
}

// SubFilter returns the encoding of /Contents.
func (s *Signature) SubFilter() string {
	return s.Obj.Key("SubFilter").Name()
}

func (s *Signature) Name() string     { return s.Obj.Key("Name").Text() }
func (s *Signature) Reason() string   { return s.Obj.Key("Reason").Text() }
func (s *Signature) Location() string { return s.Obj.Key("Location").Text() }

// SigningTime returns the raw /M value.
func (s *Signature) SigningTime() string {
	return s.Obj.Key("M").Text()
}

// Contents returns the CMS envelope including any trailing zero padding
// of the reserved slot.
func (s *Signature) Contents() []byte {
	return []byte(s.Obj.Key("Contents").RawString())
}

// Envelope returns the DER encoded CMS envelope without the zero padding
// of the reserved slot.
func (s *Signature) Envelope() []byte {
	contents := cryptobyte.String(s.Contents())
	var der cryptobyte.String
	if !contents.ReadASN1Element(&der, cbasn1.SEQUENCE) {
		return bytes.TrimRight(s.Contents(), "\x00")
	}
	return der
}

// ByteRange returns the offsets and lengths of the signed regions.
func (s *Signature) ByteRange() []int64 {
	br := s.Obj.Key("ByteRange")
	if br.Kind() != pdf.Array || br.Len() == 0 {
		return nil
	}
	ranges := make([]int64, 0, br.Len())
	for i := 0; i < br.Len(); i++ {
		ranges = append(ranges, br.Index(i).Int64())
	}
	return ranges
}

// SignedData returns a reader over the bytes covered by the signature.
func (s *Signature) SignedData() (io.Reader, error) {
	ranges := s.ByteRange()
	if len(ranges) == 0 || len(ranges)%2 != 0 {
		return nil, errors.New("invalid or missing ByteRange")
	}
	return &ByteRangeReader{File: s.File, Ranges: ranges}, nil
}

// Iter yields every signature dictionary reachable from the AcroForm.
func Iter(rdr *pdf.Reader, file io.ReaderAt) iter.Seq2[*Signature, error] {
	return func(yield func(*Signature, error) bool) {
		acroForm := rdr.Trailer().Key("Root").Key("AcroForm")
		if acroForm.Key("SigFlags").IsNull() {
			return
		}

		var walk func(fields pdf.Value) bool
		walk = func(fields pdf.Value) bool {
			for i := 0; i < fields.Len(); i++ {
				field := fields.Index(i)
				if field.Key("FT").Name() == "Sig" {
					v := field.Key("V")
					t := v.Key("Type").Name()
					if t == "Sig" || t == "DocTimeStamp" || (!v.Key("Filter").IsNull() && !v.Key("Contents").IsNull()) {
						if !yield(&Signature{Field: field.Key("T").Text(), Obj: v, File: file}, nil) {
							return false
						}
					}
				}
				if !walk(field.Key("Kids")) {
					return false
				}
			}
			return true
		}
		walk(acroForm.Key("Fields"))
	}
}

// Signatures parses data and returns all of its signatures.
func Signatures(data []byte) ([]*Signature, error) {
	r := bytes.NewReader(data)
	rdr, err := pdf.NewReader(r, int64(len(data)))
	if err != nil {
		return nil, err
	}
	var sigs []*Signature
	for sig, err := range Iter(rdr, r) {
		if err != nil {
			return nil, err
		}
		sigs = append(sigs, sig)
	}
	return sigs, nil
}

// ByteRangeReader reads the regions listed in Ranges as one stream.
type ByteRangeReader struct {
	File   io.ReaderAt
	Ranges []int64

	idx int
	pos int64
}

func (r *ByteRangeReader) Read(p []byte) (int, error) {
	n := 0
	for n < len(p) && r.idx+1 < len(r.Ranges) {
		start, length := r.Ranges[r.idx], r.Ranges[r.idx+1]
		remaining := length - r.pos
		if remaining <= 0 {
			r.idx += 2
			r.pos = 0
			continue
		}

		chunk := p[n:]
		if int64(len(chunk)) > remaining {
			chunk = chunk[:remaining]
		}
		read, err := r.File.ReadAt(chunk, start+r.pos)
		n += read
		r.pos += int64(read)
		if err != nil && !(errors.Is(err, io.EOF) && r.pos == length) {
			if errors.Is(err, io.EOF) {
				err = io.ErrUnexpectedEOF
			}
			return n, err
		}
	}
	if n == 0 {
		return 0, io.EOF
	}
	return n, nil
}
