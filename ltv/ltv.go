// Package ltv adds long-term validation data to a signed PDF.
//
// The data is written in a separate incremental revision after the
// signature as a Document Security Store: every certificate of the CMS
// envelope, CRL and OCSP response becomes a stream referenced from the
// /DSS dictionary of the catalog and from a /VRI entry for the signature.
package ltv

import (
	"bytes"
	"crypto/sha1"
	"fmt"
	"strings"
	"time"

	"github.com/digitorus/pdf"
	"github.com/digitorus/pkcs7"
	"github.com/pkg/errors"

	"github.com/digitorus/aissign/extract"
	"github.com/digitorus/aissign/fault"
	"github.com/digitorus/aissign/internal/incremental"
	"github.com/digitorus/aissign/revocation"
)

// Options tune the revision written by AddLTV.
type Options struct {
	// Time is written to /TU of the VRI entry. Zero means time.Now.
	Time time.Time
}

// AddLTV appends a revision holding ev and the certificates of the last
// signature of signed.
func AddLTV(signed []byte, ev revocation.Evidence) ([]byte, error) {
	return AddLTVWithOptions(signed, ev, Options{})
}

func AddLTVWithOptions(signed []byte, ev revocation.Evidence, opts Options) ([]byte, error) {
	const op = "ltv.AddLTV"

	if !ev.Complete() {
		return nil, fault.New(fault.Embedding, op, "both CRL and OCSP evidence are required")
	}
	if opts.Time.IsZero() {
		opts.Time = time.Now()
	}

	u, err := incremental.New(signed)
	if err != nil {
		return nil, fault.Wrap(fault.Embedding, op, err)
	}

	sig, err := lastSignature(u.Reader(), signed)
	if err != nil {
		return nil, fault.Wrap(fault.Embedding, op, err)
	}
	p7, err := pkcs7.Parse(sig.Envelope())
	if err != nil {
		return nil, fault.Wrap(fault.Embedding, op, errors.Wrap(err, "parse signature"))
	}
	if len(p7.Certificates) == 0 {
		return nil, fault.New(fault.Embedding, op, "signature carries no certificates")
	}

	var certs [][]byte
	for _, c := range p7.Certificates {
		certs = append(certs, c.Raw)
	}

	certRefs, err := addStreams(u, certs)
	if err != nil {
		return nil, fault.Wrap(fault.Embedding, op, err)
	}
	crlRefs, err := addStreams(u, ev.CRLs)
	if err != nil {
		return nil, fault.Wrap(fault.Embedding, op, err)
	}
	ocspRefs, err := addStreams(u, ev.OCSPs)
	if err != nil {
		return nil, fault.Wrap(fault.Embedding, op, err)
	}

	root := u.Reader().Trailer().Key("Root")
	vriKey := VRIKey(sig.Contents())

	dssID := u.AllocateID()
	dss := dssDictionary(root.Key("DSS"), vriKey, certRefs, crlRefs, ocspRefs, opts.Time)
	if _, err := u.AddObject(dssID, 0, dss); err != nil {
		return nil, fault.Wrap(fault.Embedding, op, err)
	}

	rootPtr := root.GetPtr()
	if _, err := u.AddObject(uint32(rootPtr.GetID()), uint16(rootPtr.GetGen()), catalog(root, dssID)); err != nil {
		return nil, fault.Wrap(fault.Embedding, op, err)
	}

	out, err := u.Finish()
	if err != nil {
		return nil, fault.Wrap(fault.Embedding, op, err)
	}
	if err := check(out, vriKey); err != nil {
		return nil, fault.Wrap(fault.Embedding, op, err)
	}
	return out, nil
}

// VRIKey returns the key of the VRI entry for a signature: the upper case
// hex SHA-1 of its /Contents string.
func VRIKey(contents []byte) string {
	sum := sha1.Sum(contents)
	return fmt.Sprintf("%X", sum[:])
}

// lastSignature returns the signature whose byte range ends furthest into
// the file, which is the most recent one.
func lastSignature(rdr *pdf.Reader, data []byte) (*extract.Signature, error) {
	var last *extract.Signature
	var end int64 = -1
	for sig, err := range extract.Iter(rdr, bytes.NewReader(data)) {
		if err != nil {
			return nil, err
		}
		br := sig.ByteRange()
		if len(br) != 4 {
			continue
		}
		if e := br[2] + br[3]; e > end {
			last, end = sig, e
		}
	}
	if last == nil {
		return nil, errors.New("document is not signed")
	}
	return last, nil
}

func addStreams(u *incremental.Update, items [][]byte) ([]string, error) {
	seen := map[string]bool{}
	var refs []string
	for _, item := range items {
		if seen[string(item)] {
			continue
		}
		seen[string(item)] = true

		id := u.AllocateID()
		if err := u.AddStream(id, "", item); err != nil {
			return nil, err
		}
		refs = append(refs, fmt.Sprintf("%d 0 R", id))
	}
	return refs, nil
}

// dssDictionary merges the new references into the existing store.
func dssDictionary(existing pdf.Value, vriKey string, certs, crls, ocsps []string, tu time.Time) []byte {
	var b bytes.Buffer
	b.WriteString("<< /Type /DSS")
	b.WriteString(" /Certs " + mergedArray(existing, "Certs", certs))
	b.WriteString(" /CRLs " + mergedArray(existing, "CRLs", crls))
	b.WriteString(" /OCSPs " + mergedArray(existing, "OCSPs", ocsps))

	b.WriteString(" /VRI <<")
	vri := existing.Key("VRI")
	incremental.CopyEntries(&b, vri, vriKey)
	fmt.Fprintf(&b, " /%s << /Type /VRI /Cert [%s] /CRL [%s] /OCSP [%s] /TU (D:%s) >>",
		vriKey, strings.Join(certs, " "), strings.Join(crls, " "), strings.Join(ocsps, " "),
		tu.UTC().Format("20060102150405Z"))
	b.WriteString(" >>")
	b.WriteString(" >>")
	return b.Bytes()
}

func mergedArray(dss pdf.Value, key string, refs []string) string {
	var b bytes.Buffer
	b.WriteString("[")
	arr := dss.Key(key)
	for i := 0; i < arr.Len(); i++ {
		incremental.WriteValue(&b, arr, arr.Index(i))
		b.WriteString(" ")
	}
	b.WriteString(strings.Join(refs, " "))
	b.WriteString("]")
	return b.String()
}

func catalog(root pdf.Value, dssID uint32) []byte {
	var b bytes.Buffer
	b.WriteString("<<")
	incremental.CopyEntries(&b, root, "DSS")
	fmt.Fprintf(&b, " /DSS %d 0 R", dssID)
	if root.Key("Extensions").IsNull() {
		b.WriteString(" /Extensions << /ESIC << /BaseVersion /1.7 /ExtensionLevel 1 >> >>")
	}
	b.WriteString(" >>")
	return b.Bytes()
}

// check parses the result and confirms the store is reachable.
func check(data []byte, vriKey string) error {
	rdr, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return errors.Wrap(err, "augmented document does not parse")
	}
	dss := rdr.Trailer().Key("Root").Key("DSS")
	if dss.Kind() != pdf.Dict {
		return errors.New("DSS missing from augmented document")
	}
	if dss.Key("VRI").Key(vriKey).IsNull() {
		return errors.Errorf("VRI entry %s missing from augmented document", vriKey)
	}
	return nil
}
