package incremental

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/digitorus/pdf"
)

// WriteValue serializes v as it appears inside parent. A value that lives in
// another indirect object is written as a reference instead of being copied.
func WriteValue(b *bytes.Buffer, parent, v pdf.Value) {
	if ptr := v.GetPtr(); ptr != parent.GetPtr() && ptr.GetID() != 0 {
		fmt.Fprintf(b, "%d %d R", ptr.GetID(), ptr.GetGen())
		return
	}

	switch v.Kind() {
	case pdf.Bool:
		b.WriteString(strconv.FormatBool(v.Bool()))
	case pdf.Integer:
		b.WriteString(strconv.FormatInt(v.Int64(), 10))
	case pdf.Real:
		b.WriteString(strconv.FormatFloat(v.Float64(), 'f', -1, 64))
	case pdf.String:
		fmt.Fprintf(b, "<%x>", v.RawString())
	case pdf.Name:
		b.WriteString(Name(v.Name()))
	case pdf.Array:
		b.WriteString("[")
		for i := 0; i < v.Len(); i++ {
			if i > 0 {
				b.WriteString(" ")
			}
			WriteValue(b, v, v.Index(i))
		}
		b.WriteString("]")
	case pdf.Dict:
		b.WriteString("<<")
		CopyEntries(b, v)
		b.WriteString(" >>")
	default:
		// Direct streams cannot exist, so anything else is null.
		b.WriteString("null")
	}
}

// CopyEntries writes every entry of dict except the keys in skip.
func CopyEntries(b *bytes.Buffer, dict pdf.Value, skip ...string) {
	for _, key := range dict.Keys() {
		if contains(skip, key) {
			continue
		}
		b.WriteString(" ")
		b.WriteString(Name(key))
		b.WriteString(" ")
		WriteValue(b, dict, dict.Key(key))
	}
}

// Name encodes s as a PDF name object including the leading solidus.
func Name(s string) string {
	var b bytes.Buffer
	b.WriteByte('/')
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c < 0x21 || c > 0x7e || bytes.IndexByte([]byte("#()<>[]{}/%"), c) >= 0 {
			fmt.Fprintf(&b, "#%02X", c)
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
