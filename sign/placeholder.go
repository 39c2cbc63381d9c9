package sign

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/digitorus/pdf"
	"github.com/pkg/errors"

	"github.com/digitorus/aissign/fault"
	"github.com/digitorus/aissign/internal/incremental"
)

// byteRangeSlot is replaced in place once the final offsets are known. Each
// star run holds a ten digit offset.
const byteRangeSlot = "/ByteRange [0 ********** ********** **********]"

// InsertPlaceholder appends an incremental update to data that adds an
// invisible signature field with an empty /Contents slot. The original bytes
// are kept unchanged at the start of the result.
func InsertPlaceholder(data []byte, opts Options) (*Placeholder, error) {
	const op = "sign.InsertPlaceholder"

	opts = opts.withDefaults()
	if opts.EstimatedSignatureSize < MinSignatureSize {
		return nil, fault.New(fault.Capacity, op,
			fmt.Sprintf("signature size %d is below the minimum of %d bytes", opts.EstimatedSignatureSize, MinSignatureSize))
	}

	u, err := incremental.New(data)
	if err != nil {
		return nil, fault.Wrap(fault.MalformedDocument, op, err)
	}

	root := u.Reader().Trailer().Key("Root")
	if root.Kind() != pdf.Dict {
		return nil, fault.New(fault.MalformedDocument, op, "document has no catalog")
	}
	pages := root.Key("Pages")
	if pages.Kind() != pdf.Dict {
		return nil, fault.New(fault.MalformedDocument, op, "catalog has no page tree")
	}
	page, err := findFirstPage(pages)
	if err != nil {
		return nil, fault.Wrap(fault.MalformedDocument, op, err)
	}

	fields := root.Key("AcroForm").Key("Fields")
	if opts.CertificationLevel != NotCertified && hasSignedField(fields) {
		return nil, fault.New(fault.Validation, op, "a certification signature must be the first signature")
	}

	sigID := u.AllocateID()
	fieldID := u.AllocateID()

	hexLen := opts.EstimatedSignatureSize * 2
	sigBody, brPos, contentsPos := signatureDictionary(opts, hexLen)
	sigStart, err := u.AddObject(sigID, 0, sigBody)
	if err != nil {
		return nil, fault.Wrap(fault.IO, op, err)
	}

	name := uniqueFieldName(fields, opts.FieldName)
	field := fmt.Sprintf("<< /Type /Annot /Subtype /Widget /FT /Sig /Rect [0 0 0 0] /F 132 /T %s /V %d 0 R /P %d %d R >>",
		pdfString(name), sigID, page.GetPtr().GetID(), page.GetPtr().GetGen())
	if _, err := u.AddObject(fieldID, 0, []byte(field)); err != nil {
		return nil, fault.Wrap(fault.IO, op, err)
	}

	rootPtr := root.GetPtr()
	if _, err := u.AddObject(rootPtr.GetID(), uint16(rootPtr.GetGen()), catalog(root, fieldID, sigID, opts)); err != nil {
		return nil, fault.Wrap(fault.IO, op, err)
	}

	out, err := u.Finish()
	if err != nil {
		return nil, fault.Wrap(fault.IO, op, err)
	}

	lt := sigStart + contentsPos
	gt := lt + int64(hexLen) + 2
	br := [4]int64{0, lt, gt, int64(len(out)) - gt}

	slot := fmt.Sprintf("/ByteRange [%d %d %d %d]", br[0], br[1], br[2], br[3])
	if len(slot) > len(byteRangeSlot) {
		return nil, fault.New(fault.Capacity, op, "document too large for byte range slot")
	}
	slot += strings.Repeat(" ", len(byteRangeSlot)-len(slot))
	if err := u.Patch(sigStart+brPos, []byte(slot)); err != nil {
		return nil, fault.Wrap(fault.IO, op, err)
	}

	return &Placeholder{
		data:      u.Bytes(),
		ByteRange: br,
		Capacity:  opts.EstimatedSignatureSize,
		Options:   opts,
	}, nil
}

// signatureDictionary returns the body of the signature object together with
// the positions of the ByteRange slot and the '<' of /Contents in it.
func signatureDictionary(opts Options, hexLen int) ([]byte, int64, int64) {
	var b bytes.Buffer
	b.WriteString("<< /Type /Sig /Filter /Adobe.PPKLite")
	b.WriteString(" /SubFilter " + incremental.Name(opts.SubFilter))

	b.WriteString(" ")
	brPos := int64(b.Len())
	b.WriteString(byteRangeSlot)

	b.WriteString(" /Contents ")
	contentsPos := int64(b.Len())
	b.WriteByte('<')
	b.Write(bytes.Repeat([]byte("0"), hexLen))
	b.WriteByte('>')

	if opts.CertificationLevel != NotCertified {
		b.WriteString(" /Reference [<< /Type /SigRef /TransformMethod /DocMDP")
		fmt.Fprintf(&b, " /TransformParams << /Type /TransformParams /P %d /V /1.2 >> >>]", opts.CertificationLevel)
	}
	if opts.Name != "" {
		b.WriteString(" /Name " + pdfString(opts.Name))
	}
	if opts.Location != "" {
		b.WriteString(" /Location " + pdfString(opts.Location))
	}
	if opts.Reason != "" {
		b.WriteString(" /Reason " + pdfString(opts.Reason))
	}
	if opts.Contact != "" {
		b.WriteString(" /ContactInfo " + pdfString(opts.Contact))
	}
	b.WriteString(" /M " + pdfDateTime(opts.SigningTime))
	b.WriteString(" >>")

	return b.Bytes(), brPos, contentsPos
}

// catalog rewrites the document catalog with the new field registered in
// /AcroForm. Every other entry is carried over.
func catalog(root pdf.Value, fieldID, sigID uint32, opts Options) []byte {
	var b bytes.Buffer
	b.WriteString("<<")
	incremental.CopyEntries(&b, root, "AcroForm", "Perms")

	acroForm := root.Key("AcroForm")
	b.WriteString(" /AcroForm <<")
	incremental.CopyEntries(&b, acroForm, "Fields", "SigFlags")
	b.WriteString(" /Fields [")
	fields := acroForm.Key("Fields")
	for i := 0; i < fields.Len(); i++ {
		incremental.WriteValue(&b, fields, fields.Index(i))
		b.WriteString(" ")
	}
	fmt.Fprintf(&b, "%d 0 R] /SigFlags 3 >>", fieldID)

	perms := root.Key("Perms")
	if opts.CertificationLevel != NotCertified {
		b.WriteString(" /Perms <<")
		incremental.CopyEntries(&b, perms, "DocMDP")
		fmt.Fprintf(&b, " /DocMDP %d 0 R >>", sigID)
	} else if !perms.IsNull() {
		b.WriteString(" /Perms ")
		incremental.WriteValue(&b, root, perms)
	}

	b.WriteString(" >>")
	return b.Bytes()
}

func walkFields(fields pdf.Value, fn func(pdf.Value)) {
	for i := 0; i < fields.Len(); i++ {
		field := fields.Index(i)
		fn(field)
		walkFields(field.Key("Kids"), fn)
	}
}

func hasSignedField(fields pdf.Value) bool {
	signed := false
	walkFields(fields, func(f pdf.Value) {
		if f.Key("FT").Name() == "Sig" && !f.Key("V").IsNull() {
			signed = true
		}
	})
	return signed
}

// uniqueFieldName returns name, or name with an increasing numeric suffix
// when a field of that name already exists.
func uniqueFieldName(fields pdf.Value, name string) string {
	taken := map[string]bool{}
	walkFields(fields, func(f pdf.Value) {
		taken[f.Key("T").Text()] = true
	})
	if !taken[name] {
		return name
	}

	stem := strings.TrimRight(name, "0123456789")
	n := 1
	if suffix := name[len(stem):]; suffix != "" {
		n, _ = strconv.Atoi(suffix)
	}
	for {
		n++
		candidate := stem + strconv.Itoa(n)
		if !taken[candidate] {
			return candidate
		}
	}
}

// LocatePlaceholder recovers the placeholder written by InsertPlaceholder
// from its bytes, e.g. after they were staged on disk.
func LocatePlaceholder(data []byte) (*Placeholder, error) {
	const op = "sign.LocatePlaceholder"

	idx := bytes.LastIndex(data, []byte("/ByteRange ["))
	if idx < 0 {
		return nil, fault.New(fault.Embedding, op, "no signature slot found")
	}
	end := bytes.IndexByte(data[idx:], ']')
	if end < 0 {
		return nil, fault.New(fault.Embedding, op, "unterminated byte range")
	}
	parts := strings.Fields(string(data[idx+len("/ByteRange [") : idx+end]))
	if len(parts) != 4 {
		return nil, fault.New(fault.Embedding, op, "byte range must have four entries")
	}

	var br [4]int64
	for i, p := range parts {
		v, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return nil, fault.Wrap(fault.Embedding, op, errors.Wrap(err, "parse byte range"))
		}
		br[i] = v
	}

	size := int64(len(data))
	if br[0] != 0 || br[1] <= 0 || br[2] <= br[1]+2 || br[2]+br[3] != size {
		return nil, fault.New(fault.Embedding, op, "byte range does not match the document")
	}
	if data[br[1]] != '<' || data[br[2]-1] != '>' {
		return nil, fault.New(fault.Embedding, op, "byte range does not delimit the contents field")
	}

	return &Placeholder{
		data:      data,
		ByteRange: br,
		Capacity:  int(br[2]-br[1]-2) / 2,
	}, nil
}
