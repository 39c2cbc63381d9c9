package incremental

import (
	"bytes"
	"testing"

	"github.com/digitorus/pdf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/digitorus/aissign/internal/testpki"
)

func TestNewRejects(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"no header", []byte("hello world")},
		{"truncated", []byte("%PDF-1.7\n1 0 obj\n<< >>\nendobj\n")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.data)
			assert.Error(t, err)
		})
	}
}

func TestFinish(t *testing.T) {
	for _, stream := range []bool{false, true} {
		name := "table"
		if stream {
			name = "stream"
		}
		t.Run(name, func(t *testing.T) {
			data := testpki.PDF(testpki.PDFOptions{XrefStream: stream})
			prev, err := lastStartXref(data)
			require.NoError(t, err)

			u, err := New(data)
			require.NoError(t, err)
			id := u.AllocateID()
			assert.Equal(t, uint32(u.Reader().Trailer().Key("Size").Int64()), id)
			_, err = u.AddObject(id, 0, []byte("<< /Marker true >>"))
			require.NoError(t, err)

			out, err := u.Finish()
			require.NoError(t, err)
			assert.True(t, bytes.HasPrefix(out, data), "original bytes are kept")
			assert.True(t, bytes.HasSuffix(out, []byte("%%EOF\n")))
			if stream {
				assert.Contains(t, string(out[len(data):]), "/Type /XRef")
			} else {
				assert.Contains(t, string(out[len(data):]), "\nxref\n")
			}

			rdr, err := pdf.NewReader(bytes.NewReader(out), int64(len(out)))
			require.NoError(t, err)
			trailer := rdr.Trailer()
			assert.Equal(t, prev, trailer.Key("Prev").Int64())
			assert.GreaterOrEqual(t, trailer.Key("Size").Int64(), int64(id)+1)
			assert.Equal(t, pdf.Dict, trailer.Key("Root").Kind())

			_, err = u.AddObject(u.AllocateID(), 0, []byte("null"))
			assert.Error(t, err, "finished revisions are closed")
			_, err = u.Finish()
			assert.Error(t, err)
		})
	}
}

func TestFinishEmpty(t *testing.T) {
	u, err := New(testpki.PDF(testpki.PDFOptions{}))
	require.NoError(t, err)
	_, err = u.Finish()
	assert.Error(t, err)
}

func TestPatch(t *testing.T) {
	data := testpki.PDF(testpki.PDFOptions{})
	u, err := New(data)
	require.NoError(t, err)

	start, err := u.AddObject(u.AllocateID(), 0, []byte("<< /V 0000 >>"))
	require.NoError(t, err)
	slot := start + int64(len("<< /V "))

	require.NoError(t, u.Patch(slot, []byte("1234")))
	assert.Contains(t, string(u.Bytes()), "<< /V 1234 >>")
	assert.Equal(t, data, u.Bytes()[:len(data)])

	end := int64(len(u.Bytes()))
	tests := []struct {
		name string
		off  int64
		p    []byte
	}{
		{"inside original", 0, []byte("%PDF")},
		{"straddles original", int64(len(data)) - 1, []byte("xx")},
		{"past end", end - 1, []byte("xx")},
		{"after end", end + 10, []byte("x")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := append([]byte(nil), u.Bytes()...)
			assert.Error(t, u.Patch(tt.off, tt.p))
			assert.Equal(t, before, u.Bytes())
		})
	}

	assert.NoError(t, u.Patch(end-1, []byte("\n")), "last byte is writable")
}

func TestSubsections(t *testing.T) {
	u := &Update{entries: []xrefEntry{
		{id: 9, offset: 400},
		{id: 4, offset: 200},
		{id: 3, offset: 100},
		{id: 5, offset: 300},
		{id: 12, offset: 500},
	}}

	var ids [][]uint32
	for _, section := range u.subsections() {
		var run []uint32
		for _, e := range section {
			run = append(run, e.id)
		}
		ids = append(ids, run)
	}
	assert.Equal(t, [][]uint32{{3, 4, 5}, {9}, {12}}, ids)
	assert.Equal(t, uint32(9), u.entries[0].id, "entries keep their insertion order")
}

func TestName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Type", "/Type"},
		{"A B", "/A#20B"},
		{"a/b", "/a#2Fb"},
		{"50%", "/50#25"},
		{"#1", "/#231"},
		{"(x)", "/#28x#29"},
		{"é", "/#C3#A9"},
		{"", "/"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, Name(tt.in))
		})
	}
}

func TestLastStartXref(t *testing.T) {
	data := []byte("%PDF-1.7\nstartxref\n3\n%%EOF\nmore\nstartxref\n 12 \n%%EOF\n")
	off, err := lastStartXref(data)
	require.NoError(t, err)
	assert.Equal(t, int64(12), off)

	_, err = lastStartXref([]byte("%PDF-1.7\nstartxref\n9999\n%%EOF\n"))
	assert.Error(t, err)
	_, err = lastStartXref([]byte("%PDF-1.7\n"))
	assert.Error(t, err)
}
