package constants

import "strings"

// DocumentKind is the canonical kind of an uploaded document.
type DocumentKind string

const (
	PDF  DocumentKind = "pdf"
	DOCX DocumentKind = "docx"
	XLSX DocumentKind = "xlsx"
	TXT  DocumentKind = "txt"
)

// DocumentKinds lists the supported kinds in display order.
var DocumentKinds = []DocumentKind{PDF, DOCX, XLSX, TXT}

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
}

// ParseDocumentKind accepts an extension (".PDF", "docx") or a MIME type
// ("text/plain; charset=utf-8").
func ParseDocumentKind(s string) (DocumentKind, bool) {
	n := NormalizeExt(s)
	if i := strings.IndexByte(n, ';'); i >= 0 {
		n = strings.TrimSpace(n[:i])
	}
	switch n {
	case "pdf", "application/pdf":
		return PDF, true
	case "docx", "application/vnd.openxmlformats-officedocument.wordprocessingml.document":
		return DOCX, true
	case "xlsx", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":
		return XLSX, true
	case "txt", "text", "text/plain":
		return TXT, true
	}
	return "", false
}

func DocumentKindsAsStrings() []string {
	out := make([]string, len(DocumentKinds))
	for i, k := range DocumentKinds {
		out[i] = string(k)
	}
	return out
}
