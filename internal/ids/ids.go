// Package ids computes the deterministic identity and normalization
// primitives the store relies on: normalized paths, doc IDs, chunk IDs,
// and the default whitespace token count. Every function here is pure.
package ids

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"path"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// NormalizePath canonicalizes p into the form doc.Path is stored in:
// forward slashes, NFC-normalized, lowercase drive letter (if any), no
// trailing slash, and textually resolved "." / ".." segments. It never
// touches the filesystem.
func NormalizePath(p string) string {
	p = norm.NFC.String(p)
	p = strings.ReplaceAll(p, "\\", "/")

	// Lowercase a leading "C:" style drive letter, if present.
	if len(p) >= 2 && p[1] == ':' && isASCIILetter(p[0]) {
		p = strings.ToLower(p[:1]) + p[1:]
	}

	cleaned := path.Clean(p)
	if cleaned == "." {
		cleaned = ""
	}
	cleaned = strings.TrimSuffix(cleaned, "/")
	return cleaned
}

func isASCIILetter(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

// DocID derives the stable document identifier from a normalized path and
// a content hash. Inputs are joined with a NUL delimiter, which cannot
// appear in either a normalized path or a hex/base64 hash string.
func DocID(normalizedPath, contentHash string) string {
	h := sha256.New()
	h.Write([]byte(normalizedPath))
	h.Write([]byte{0})
	h.Write([]byte(contentHash))
	return hex.EncodeToString(h.Sum(nil))
}

// ChunkID derives the stable chunk identifier from its parent doc ID and
// byte/token offset. The offset is encoded big-endian so that chunk IDs
// for the same doc differ deterministically by offset alone.
func ChunkID(docID string, offset int) string {
	h := sha256.New()
	h.Write([]byte(docID))
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(offset))
	h.Write(buf[:])
	return hex.EncodeToString(h.Sum(nil))
}

// CountTokens returns the default whitespace token count for text: the
// number of maximal runs of non-whitespace runes.
func CountTokens(text string) int {
	n := 0
	inToken := false
	for _, r := range text {
		if unicode.IsSpace(r) {
			inToken = false
			continue
		}
		if !inToken {
			n++
			inToken = true
		}
	}
	return n
}

// Tokens splits text into its whitespace-delimited tokens, in order. Used
// by the context packer for prefix truncation at an exact token boundary.
func Tokens(text string) []string {
	return strings.Fields(text)
}
