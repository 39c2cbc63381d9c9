package testpki

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"fmt"
)

// PDFOptions selects the layout of a generated test document.
type PDFOptions struct {
	// XrefStream writes a compressed cross-reference stream instead of a
	// classic table.
	XrefStream bool
	Pages      int
}

// PDF returns a small valid document with the requested number of pages.
func PDF(opts PDFOptions) []byte {
	if opts.Pages <= 0 {
		opts.Pages = 2
	}

	// 1 catalog, 2 pages, 3 info, then page/content pairs.
	var objects []string
	kids := ""
	for i := 0; i < opts.Pages; i++ {
		kids += fmt.Sprintf("%d 0 R ", 4+2*i)
	}
	objects = append(objects,
		"<< /Type /Catalog /Pages 2 0 R >>",
		fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", kids, opts.Pages),
		"<< /Producer (aissign testpki) /Title (Test document) >>",
	)
	for i := 0; i < opts.Pages; i++ {
		content := fmt.Sprintf("BT /F1 24 Tf 72 720 Td (Page %d) Tj ET", i+1)
		objects = append(objects,
			fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Contents %d 0 R /Resources << /Font << /F1 << /Type /Font /Subtype /Type1 /BaseFont /Helvetica >> >> >> >>", 5+2*i),
			fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content), content),
		)
	}

	var b bytes.Buffer
	b.WriteString("%PDF-1.7\n%\xe2\xe3\xcf\xd3\n")
	offsets := make([]int, len(objects)+1)
	for i, obj := range objects {
		offsets[i+1] = b.Len()
		fmt.Fprintf(&b, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}

	id := "<0123456789ABCDEF0123456789ABCDEF>"
	if !opts.XrefStream {
		xref := b.Len()
		fmt.Fprintf(&b, "xref\n0 %d\n0000000000 65535 f\r\n", len(offsets))
		for _, off := range offsets[1:] {
			fmt.Fprintf(&b, "%010d 00000 n\r\n", off)
		}
		fmt.Fprintf(&b, "trailer\n<< /Size %d /Root 1 0 R /Info 3 0 R /ID [%s %s] >>\nstartxref\n%d\n%%%%EOF\n",
			len(offsets), id, id, xref)
		return b.Bytes()
	}

	xrefID := len(offsets)
	xref := b.Len()
	offsets = append(offsets, xref)

	var rows bytes.Buffer
	for i, off := range offsets {
		row := make([]byte, 7)
		if i == 0 {
			binary.BigEndian.PutUint16(row[5:7], 65535)
		} else {
			row[0] = 1
			binary.BigEndian.PutUint32(row[1:5], uint32(off))
		}
		rows.Write(row)
	}
	var z bytes.Buffer
	zw := zlib.NewWriter(&z)
	_, _ = zw.Write(rows.Bytes())
	_ = zw.Close()

	fmt.Fprintf(&b, "%d 0 obj\n<< /Type /XRef /Size %d /W [1 4 2] /Root 1 0 R /Info 3 0 R /ID [%s %s] /Filter /FlateDecode /Length %d >>\nstream\n",
		xrefID, len(offsets), id, id, z.Len())
	b.Write(z.Bytes())
	fmt.Fprintf(&b, "\nendstream\nendobj\nstartxref\n%d\n%%%%EOF\n", xref)
	return b.Bytes()
}
