package protocol

import (
	"errors"
	"path/filepath"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// ErrInvalidFilename is returned for filenames that could escape the output
// directory or are otherwise unusable.
var ErrInvalidFilename = errors.New("invalid filename")

// SanitizeFilename validates a filename received from an untrusted sender.
// Empty names and names containing "/", "\" or ".." are rejected, as are
// names with control characters and names whose NFKC form contains a
// separator or "..". An accepted name is returned byte for byte.
func SanitizeFilename(name string) (string, error) {
	if name == "" {
		return "", ErrInvalidFilename
	}
	if hasTraversal(name) || hasTraversal(norm.NFKC.String(name)) {
		return "", ErrInvalidFilename
	}
	if strings.ContainsFunc(name, unicode.IsControl) {
		return "", ErrInvalidFilename
	}

	base := filepath.Base(name)
	if base == "." || base == string(filepath.Separator) {
		return "", ErrInvalidFilename
	}

	return base, nil
}

func hasTraversal(name string) bool {
	return strings.ContainsAny(name, `/\`) || strings.Contains(name, "..")
}
