package workflow

import (
	"path/filepath"
	"strings"

	"github.com/opencontainers/go-digest"
)

const maxBaseLength = 100

// baseName reduces an uploaded filename to a safe stem.
func baseName(filename string) string {
	name := filepath.Base(strings.ReplaceAll(filename, `\`, "/"))
	if ext := filepath.Ext(name); strings.EqualFold(ext, ".pdf") {
		name = name[:len(name)-len(ext)]
	}

	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			b.WriteRune(r)
		default:
			b.WriteRune('-')
		}
	}
	base := strings.Trim(b.String(), "-.")
	if len(base) > maxBaseLength {
		base = strings.TrimRight(base[:maxBaseLength], "-.")
	}
	if base == "" {
		base = "document"
	}
	return base
}

// ArtifactName returns the output name for an uploaded file.
func ArtifactName(filename string, ltv bool) string {
	name := "signed-" + baseName(filename)
	if ltv {
		name += "-ltv"
	}
	return name + ".pdf"
}

// contentName inserts the first 12 hex characters of the SHA-256 of data
// before the extension of name.
func contentName(name string, data []byte) string {
	encoded := digest.FromBytes(data).Encoded()
	return strings.TrimSuffix(name, ".pdf") + "-" + encoded[:12] + ".pdf"
}
