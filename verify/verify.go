// Package verify checks the signatures of a PDF: the CMS envelope against
// the signed byte ranges, the certificate chain, embedded timestamps and the
// revocation evidence found in the signature or the Document Security
// Store.
package verify

import (
	"bytes"
	"io"
	"os"

	"github.com/digitorus/pdf"
	"github.com/pkg/errors"

	"github.com/digitorus/aissign/extract"
	"github.com/digitorus/aissign/fault"
	"github.com/digitorus/aissign/revocation"
)

// File verifies the PDF at path.
func File(path string, opts Options) (*Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fault.Wrap(fault.IO, "verify.File", err)
	}
	return Document(data, opts)
}

// Document verifies every signature of data. An error is returned when the
// document cannot be parsed or is not signed; problems with individual
// signatures are reported on the Signer.
func Document(data []byte, opts Options) (*Result, error) {
	const op = "verify.Document"

	rdr, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fault.Wrap(fault.MalformedDocument, op, errors.Wrap(err, "failed to open document"))
	}

	trailer := rdr.Trailer()
	root := trailer.Key("Root")
	if root.Key("AcroForm").Key("SigFlags").IsNull() {
		return nil, fault.New(fault.Validation, op, "no digital signature in document")
	}

	res := &Result{Info: parseDocumentInfo(trailer.Key("Info"), root.Key("Pages"))}

	dss := root.Key("DSS")
	res.DSS = dss.Kind() == pdf.Dict
	store, err := dssEvidence(dss)
	if err != nil {
		return nil, fault.Wrap(fault.MalformedDocument, op, err)
	}

	for sig, err := range extract.Iter(rdr, bytes.NewReader(data)) {
		if err != nil {
			return nil, fault.Wrap(fault.MalformedDocument, op, err)
		}
		res.Signers = append(res.Signers, verifySignature(sig, int64(len(data)), dss, store, opts))
	}
	if len(res.Signers) == 0 {
		return nil, fault.New(fault.Validation, op, "no digital signature in document")
	}
	return res, nil
}

// dssEvidence reads the CRL and OCSP streams of the store.
func dssEvidence(dss pdf.Value) (revocation.Evidence, error) {
	var ev revocation.Evidence
	if dss.Kind() != pdf.Dict {
		return ev, nil
	}
	var err error
	if ev.CRLs, err = streams(dss.Key("CRLs")); err != nil {
		return ev, errors.Wrap(err, "read DSS CRLs")
	}
	if ev.OCSPs, err = streams(dss.Key("OCSPs")); err != nil {
		return ev, errors.Wrap(err, "read DSS OCSPs")
	}
	return ev, nil
}

func streams(arr pdf.Value) ([][]byte, error) {
	var out [][]byte
	for i := 0; i < arr.Len(); i++ {
		v := arr.Index(i)
		if v.Kind() != pdf.Stream {
			continue
		}
		rc := v.Reader()
		b, err := io.ReadAll(rc)
		_ = rc.Close()
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}
