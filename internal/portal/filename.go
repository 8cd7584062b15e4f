package portal

import (
	"path/filepath"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

var allowedExtensions = map[string]bool{
	"pdf": true, "png": true, "jpg": true, "jpeg": true,
	"doc": true, "docx": true, "xls": true, "xlsx": true,
}

// extension returns the lower-cased text after the last dot, or "".
func extension(name string) string {
	i := strings.LastIndexByte(name, '.')
	if i < 0 {
		return ""
	}
	return strings.ToLower(name[i+1:])
}

// AllowedFile reports whether the upload's extension is accepted.
func AllowedFile(name string) bool {
	return allowedExtensions[extension(name)]
}

func isImage(name string) bool {
	switch extension(name) {
	case "png", "jpg", "jpeg":
		return true
	}
	return false
}

// SanitizeFilename reduces an uploaded name to ASCII letters, digits,
// '_', '.' and '-'. Accents are folded, path separators and whitespace
// runs become '_', and leading or trailing dots and underscores are
// trimmed. The result may be empty.
func SanitizeFilename(name string) string {
	name = norm.NFKD.String(name)

	var b strings.Builder
	for _, r := range name {
		switch {
		case r > unicode.MaxASCII:
		case r == '/' || r == '\\':
			b.WriteByte(' ')
		default:
			b.WriteRune(r)
		}
	}
	name = strings.Join(strings.Fields(b.String()), "_")

	b.Reset()
	for _, r := range name {
		if r == '_' || r == '.' || r == '-' ||
			('a' <= r && r <= 'z') || ('A' <= r && r <= 'Z') || ('0' <= r && r <= '9') {
			b.WriteRune(r)
		}
	}
	return strings.Trim(b.String(), "._")
}

// storedName builds the timestamp-prefixed object name. An empty
// sanitized base falls back to "file".
func storedName(stamp, original string) string {
	clean := SanitizeFilename(original)
	if clean == "" || !strings.Contains(clean, ".") {
		clean = strings.TrimLeft("file."+extension(original), ".")
	}
	return stamp + "_" + clean
}

// withSuffix inserts suffix before the extension.
func withSuffix(name, suffix string) string {
	ext := filepath.Ext(name)
	return strings.TrimSuffix(name, ext) + "_" + suffix + ext
}
