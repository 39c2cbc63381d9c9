package verify

import (
	"strings"
	"time"

	"github.com/digitorus/pdf"
)

func parseDocumentInfo(info pdf.Value, pages pdf.Value) DocumentInfo {
	di := DocumentInfo{
		Author:   info.Key("Author").Text(),
		Creator:  info.Key("Creator").Text(),
		Producer: info.Key("Producer").Text(),
		Subject:  info.Key("Subject").Text(),
		Title:    info.Key("Title").Text(),
		Pages:    int(pages.Key("Count").Int64()),
	}
	if kw := info.Key("Keywords").Text(); kw != "" {
		di.Keywords = parseKeywords(kw)
	}
	di.CreationDate, _ = parseDate(info.Key("CreationDate").Text())
	di.ModDate, _ = parseDate(info.Key("ModDate").Text())
	return di
}

var dateLayouts = []string{
	"D:20060102150405Z07'00'",
	"D:20060102150405Z07'00",
	"D:20060102150405Z0700",
	"D:20060102150405Z",
	"D:20060102150405",
}

// parseDate parses PDF dates of the form D:YYYYMMDDHHmmSSOHH'mm'.
func parseDate(v string) (time.Time, error) {
	var err error
	for _, layout := range dateLayouts {
		var t time.Time
		if t, err = time.Parse(layout, v); err == nil {
			return t, nil
		}
	}
	return time.Time{}, err
}

// parseKeywords splits on commas or semicolons, falling back to spaces.
func parseKeywords(value string) []string {
	f := func(r rune) bool { return r == ',' || r == ';' }
	if !strings.ContainsAny(value, ",;") {
		f = func(r rune) bool { return r == ' ' }
	}
	var out []string
	for _, kw := range strings.FieldsFunc(value, f) {
		if kw = strings.TrimSpace(kw); kw != "" {
			out = append(out, kw)
		}
	}
	return out
}
