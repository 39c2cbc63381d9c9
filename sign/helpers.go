package sign

import (
	"fmt"
	"strings"
	"time"

	"github.com/digitorus/pdf"
	"github.com/pkg/errors"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

func findFirstPage(parent pdf.Value) (pdf.Value, error) {
	switch parent.Key("Type").Name() {
	case "Pages":
		kids := parent.Key("Kids")
		for i := 0; i < kids.Len(); i++ {
			if page, err := findFirstPage(kids.Index(i)); err == nil {
				return page, nil
			}
		}
	case "Page":
		return parent, nil
	}
	return parent, errors.New("could not find first page")
}

// pdfString encodes text as a PDF text string. Non ASCII text is written as
// UTF-16BE with byte order mark.
func pdfString(text string) string {
	if !isASCII(text) {
		enc := unicode.UTF16(unicode.BigEndian, unicode.UseBOM).NewEncoder()
		res, _, err := transform.String(enc, text)
		if err == nil {
			return fmt.Sprintf("<%X>", res)
		}
	}

	r := strings.NewReplacer(`\`, `\\`, `)`, `\)`, `(`, `\(`, "\r", `\r`, "\n", `\n`)
	return "(" + r.Replace(text) + ")"
}

// pdfDateTime formats date as D:YYYYMMDDHHmmSS+HH'mm'.
func pdfDateTime(date time.Time) string {
	_, offset := date.Zone()
	sign := "+"
	if offset < 0 {
		sign = "-"
		offset = -offset
	}
	return pdfString(fmt.Sprintf("D:%s%s%02d'%02d'",
		date.Format("20060102150405"), sign, offset/3600, (offset%3600)/60))
}

func isASCII(s string) bool {
	for _, r := range s {
		if r > '\u007F' {
			return false
		}
	}
	return true
}
