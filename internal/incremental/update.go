// Package incremental appends revisions to an existing PDF.
//
// The original bytes are never modified. Objects added with AddObject are
// written after the last %%EOF, followed by a cross-reference section of the
// same kind as the previous one (classic table or compressed stream) whose
// /Prev links back to the previous section.
package incremental

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/digitorus/pdf"
	"github.com/mattetti/filebuffer"
	"github.com/pkg/errors"
)

// XrefType is the kind of cross-reference section found in the input.
type XrefType string

const (
	XrefTable  XrefType = "table"
	XrefStream XrefType = "stream"
)

type xrefEntry struct {
	id     uint32
	gen    uint16
	offset int64
}

// Update collects the objects of one incremental revision.
type Update struct {
	rdr       *pdf.Reader
	buf       *filebuffer.Buffer
	prevXref  int64
	xrefType  XrefType
	nextID    uint32
	entries   []xrefEntry
	finished  bool
	baseSize  int64
	trailerSz int64
}

// New parses data and prepares a revision on top of it.
func New(data []byte) (*Update, error) {
	if !bytes.HasPrefix(data, []byte("%PDF-")) {
		return nil, errors.New("missing %PDF- header")
	}
	rdr, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, errors.Wrap(err, "parse pdf")
	}
	if !rdr.Trailer().Key("Encrypt").IsNull() {
		return nil, errors.New("encrypted documents are not supported")
	}

	prev, err := lastStartXref(data)
	if err != nil {
		return nil, err
	}
	xt := XrefStream
	if bytes.HasPrefix(bytes.TrimLeft(data[prev:], " \r\n\t"), []byte("xref")) {
		xt = XrefTable
	}

	size := rdr.Trailer().Key("Size").Int64()
	if size <= 0 {
		return nil, errors.New("trailer has no /Size")
	}

	buf := filebuffer.New(nil)
	if _, err := buf.Write(data); err != nil {
		return nil, errors.Wrap(err, "copy original")
	}
	// The previous revision must end with an end-of-line marker.
	if len(data) > 0 && data[len(data)-1] != '\n' {
		if _, err := buf.Write([]byte("\n")); err != nil {
			return nil, err
		}
	}

	return &Update{
		rdr:       rdr,
		buf:       buf,
		prevXref:  prev,
		xrefType:  xt,
		nextID:    uint32(size),
		baseSize:  int64(len(data)),
		trailerSz: size,
	}, nil
}

// Reader returns the parsed previous revision.
func (u *Update) Reader() *pdf.Reader {
	return u.rdr
}

// AllocateID reserves a new object number.
func (u *Update) AllocateID() uint32 {
	id := u.nextID
	u.nextID++
	return id
}

func (u *Update) offset() int64 {
	pos, _ := u.buf.Seek(0, io.SeekCurrent)
	return pos
}

// AddObject writes body as indirect object id/gen and returns the absolute
// offset at which body starts.
func (u *Update) AddObject(id uint32, gen uint16, body []byte) (int64, error) {
	if u.finished {
		return 0, errors.New("revision already finished")
	}
	u.entries = append(u.entries, xrefEntry{id: id, gen: gen, offset: u.offset()})

	header := fmt.Sprintf("%d %d obj\n", id, gen)
	if _, err := u.buf.Write([]byte(header)); err != nil {
		return 0, err
	}
	start := u.offset()
	if _, err := u.buf.Write(body); err != nil {
		return 0, err
	}
	if _, err := u.buf.Write([]byte("\nendobj\n")); err != nil {
		return 0, err
	}
	return start, nil
}

// AddStream writes data as a zlib compressed stream object. extra holds
// additional dictionary entries, e.g. "/Type /EmbeddedFile".
func (u *Update) AddStream(id uint32, extra string, data []byte) error {
	var compressed bytes.Buffer
	zw := zlib.NewWriter(&compressed)
	if _, err := zw.Write(data); err != nil {
		return err
	}
	if err := zw.Close(); err != nil {
		return err
	}

	var body bytes.Buffer
	body.WriteString("<<")
	if extra != "" {
		body.WriteString(" " + extra)
	}
	fmt.Fprintf(&body, " /Filter /FlateDecode /Length %d >>\nstream\n", compressed.Len())
	body.Write(compressed.Bytes())
	body.WriteString("\nendstream")

	_, err := u.AddObject(id, 0, body.Bytes())
	return err
}

// Finish writes the cross-reference section and trailer and returns the
// complete document.
func (u *Update) Finish() ([]byte, error) {
	if u.finished {
		return nil, errors.New("revision already finished")
	}
	if len(u.entries) == 0 {
		return nil, errors.New("revision has no objects")
	}

	var err error
	switch u.xrefType {
	case XrefTable:
		err = u.writeXrefTable()
	default:
		err = u.writeXrefStream()
	}
	if err != nil {
		return nil, errors.Wrap(err, "write xref")
	}
	u.finished = true
	return u.buf.Buff.Bytes(), nil
}

// Patch overwrites len(p) bytes at off. It is used to back-fill fixed width
// slots once the final layout is known.
func (u *Update) Patch(off int64, p []byte) error {
	if off < u.baseSize || off+int64(len(p)) > int64(u.buf.Buff.Len()) {
		return errors.Errorf("patch [%d, %d) outside of revision", off, off+int64(len(p)))
	}
	copy(u.buf.Buff.Bytes()[off:], p)
	return nil
}

// Bytes returns the current content of the output buffer.
func (u *Update) Bytes() []byte {
	return u.buf.Buff.Bytes()
}

func (u *Update) size() int64 {
	size := u.trailerSz
	for _, e := range u.entries {
		if int64(e.id)+1 > size {
			size = int64(e.id) + 1
		}
	}
	return size
}

// subsections groups sorted entries into runs of consecutive object numbers.
func (u *Update) subsections() [][]xrefEntry {
	sorted := append([]xrefEntry(nil), u.entries...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].id < sorted[j].id })

	var sections [][]xrefEntry
	for i, e := range sorted {
		if i == 0 || e.id != sorted[i-1].id+1 {
			sections = append(sections, nil)
		}
		sections[len(sections)-1] = append(sections[len(sections)-1], e)
	}
	return sections
}

// trailerEntries returns the entries shared by the classic trailer and the
// xref stream dictionary.
func (u *Update) trailerEntries(size int64) string {
	var b bytes.Buffer
	trailer := u.rdr.Trailer()

	fmt.Fprintf(&b, " /Size %d", size)
	root := trailer.Key("Root").GetPtr()
	fmt.Fprintf(&b, " /Root %d %d R", root.GetID(), root.GetGen())
	if info := trailer.Key("Info"); !info.IsNull() {
		ptr := info.GetPtr()
		fmt.Fprintf(&b, " /Info %d %d R", ptr.GetID(), ptr.GetGen())
	}
	if id := trailer.Key("ID"); id.Kind() == pdf.Array && id.Len() == 2 {
		fmt.Fprintf(&b, " /ID [<%x> <%x>]", id.Index(0).RawString(), id.Index(1).RawString())
	}
	fmt.Fprintf(&b, " /Prev %d", u.prevXref)
	return b.String()
}

func (u *Update) writeXrefTable() error {
	xrefStart := u.offset()

	var b bytes.Buffer
	b.WriteString("xref\n")
	for _, section := range u.subsections() {
		fmt.Fprintf(&b, "%d %d\n", section[0].id, len(section))
		for _, e := range section {
			fmt.Fprintf(&b, "%010d %05d n\r\n", e.offset, e.gen)
		}
	}
	b.WriteString("trailer\n<<")
	b.WriteString(u.trailerEntries(u.size()))
	b.WriteString(" >>\n")
	fmt.Fprintf(&b, "startxref\n%d\n%%%%EOF\n", xrefStart)

	_, err := u.buf.Write(b.Bytes())
	return err
}

func (u *Update) writeXrefStream() error {
	id := u.AllocateID()
	xrefStart := u.offset()
	// The stream describes itself.
	u.entries = append(u.entries, xrefEntry{id: id, offset: xrefStart})

	var rows bytes.Buffer
	var index bytes.Buffer
	for _, section := range u.subsections() {
		fmt.Fprintf(&index, " %d %d", section[0].id, len(section))
		for _, e := range section {
			row := make([]byte, 7)
			row[0] = 1
			binary.BigEndian.PutUint32(row[1:5], uint32(e.offset))
			binary.BigEndian.PutUint16(row[5:7], e.gen)
			rows.Write(row)
		}
	}

	var compressed bytes.Buffer
	zw := zlib.NewWriter(&compressed)
	if _, err := zw.Write(rows.Bytes()); err != nil {
		return err
	}
	if err := zw.Close(); err != nil {
		return err
	}

	var b bytes.Buffer
	fmt.Fprintf(&b, "%d 0 obj\n<< /Type /XRef", id)
	b.WriteString(u.trailerEntries(u.size()))
	fmt.Fprintf(&b, " /W [1 4 2] /Index [%s ] /Filter /FlateDecode /Length %d >>\nstream\n", index.String(), compressed.Len())
	b.Write(compressed.Bytes())
	b.WriteString("\nendstream\nendobj\n")
	fmt.Fprintf(&b, "startxref\n%d\n%%%%EOF\n", xrefStart)

	_, err := u.buf.Write(b.Bytes())
	return err
}

// lastStartXref returns the offset recorded after the last startxref keyword.
func lastStartXref(data []byte) (int64, error) {
	idx := bytes.LastIndex(data, []byte("startxref"))
	if idx < 0 {
		return 0, errors.New("startxref not found")
	}
	rest := bytes.TrimLeft(data[idx+len("startxref"):], " \r\n\t")
	end := 0
	for end < len(rest) && rest[end] >= '0' && rest[end] <= '9' {
		end++
	}
	off, err := strconv.ParseInt(string(rest[:end]), 10, 64)
	if err != nil {
		return 0, errors.Wrap(err, "parse startxref")
	}
	if off <= 0 || off >= int64(len(data)) {
		return 0, errors.Errorf("startxref %d out of range", off)
	}
	return off, nil
}
