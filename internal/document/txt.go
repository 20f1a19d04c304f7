package document

import (
	"bytes"
	"errors"
	"unicode/utf8"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

func extractTXT(content []byte) (string, error) {
	content = bytes.TrimPrefix(content, utf8BOM)
	if !utf8.Valid(content) {
		return "", errors.New("text is not valid UTF-8")
	}
	return string(content), nil
}
