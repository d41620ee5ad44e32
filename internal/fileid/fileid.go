// Package fileid derives document identifiers and content checksums.
package fileid

import (
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

const (
	filePrefix = "file:"
	urlPrefix  = "url:"
	textPrefix = "text:"
)

// FileDocID returns a stable document ID for the given absolute path.
// Same path always yields the same ID, so re-ingesting a file updates its document.
func FileDocID(absolutePath string) string {
	return filePrefix + digest(filepath.Clean(absolutePath))
}

// URLDocID returns a stable document ID for a web page.
func URLDocID(url string) string {
	return urlPrefix + digest(strings.TrimRight(strings.TrimSpace(url), "/"))
}

// TextDocID returns a fresh document ID for inline text.
func TextDocID() string {
	return textPrefix + uuid.NewString()
}

// Checksum returns the hex MD5 of content, used to detect unchanged sources.
func Checksum(content []byte) string {
	sum := md5.Sum(content)
	return hex.EncodeToString(sum[:])
}

func digest(s string) string {
	hash := sha256.Sum256([]byte(s))
	return hex.EncodeToString(hash[:])
}
