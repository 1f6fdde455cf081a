// Package fileid derives stable identifiers: content checksums for uploads and path keys
// for files seen in watched inbox directories.
package fileid

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
)

const (
	checksumPrefix = "sha256:"
	pathPrefix     = "file:"
)

// Checksum returns "sha256:<hex>" of content. Identical uploads share a checksum but
// still get distinct document ids.
func Checksum(content []byte) string {
	sum := sha256.Sum256(content)
	return checksumPrefix + hex.EncodeToString(sum[:])
}

// PathKey returns a stable key for the given absolute path.
// Same path always yields the same key.
func PathKey(absolutePath string) string {
	normalized := filepath.Clean(absolutePath)
	hash := sha256.Sum256([]byte(normalized))
	return pathPrefix + hex.EncodeToString(hash[:])
}
