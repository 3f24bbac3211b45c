package store

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"path/filepath"
	"strings"

	"github.com/oklog/ulid/v2"
)

// NewID returns a fresh 128-bit, time-prefixed, lexicographically
// sortable identifier.
func NewID() string {
	return ulid.Make().String()
}

// filePrefixAlphabet excludes characters that are awkward in shell
// completion or ambiguous in monospace fonts.
const filePrefixAlphabet = "abcdefghjkmnpqrstuvwxyz23456789"

// clipFileName builds the stored file name for an uploaded clip: six
// random characters, a dash, then the original file name stripped of any
// directory components.
func clipFileName(originalFilename string) (string, error) {
	base := filepath.Base(strings.TrimSpace(originalFilename))
	if base == "" || base == "." || base == string(filepath.Separator) {
		return "", fmt.Errorf("store: invalid file name %q", originalFilename)
	}

	var sb strings.Builder
	for range 6 {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(filePrefixAlphabet))))
		if err != nil {
			return "", fmt.Errorf("store: generate file prefix: %w", err)
		}
		sb.WriteByte(filePrefixAlphabet[n.Int64()])
	}
	sb.WriteByte('-')
	sb.WriteString(base)
	return sb.String(), nil
}
