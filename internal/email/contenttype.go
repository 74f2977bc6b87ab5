package email

import (
	"mime"
	"net/http"
	"path/filepath"
	"strings"
)

// defaultContentType is used when neither the extension nor the content
// identify the payload.
const defaultContentType = "application/octet-stream"

// knownTypes covers extensions missing from Go's builtin MIME table, so the
// result does not depend on the host's mime.types files.
var knownTypes = map[string]string{
	".csv": "text/csv; charset=utf-8",
	".tsv": "text/tab-separated-values; charset=utf-8",
	".txt": "text/plain; charset=utf-8",
	".md":  "text/markdown; charset=utf-8",
	".eml": "message/rfc822",
}

// DetectContentType resolves a MIME type for an attachment, preferring the
// file extension of name and falling back to content sniffing.
func DetectContentType(name string, content []byte) string {
	if ext := strings.ToLower(filepath.Ext(name)); ext != "" {
		if ct, ok := knownTypes[ext]; ok {
			return ct
		}
		if ct := mime.TypeByExtension(ext); ct != "" {
			return ct
		}
	}
	if len(content) == 0 {
		return defaultContentType
	}
	ct := http.DetectContentType(content)
	if ct == "" {
		return defaultContentType
	}
	return ct
}
