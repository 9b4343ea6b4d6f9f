package bookmark

import (
	"crypto/sha256"
	"encoding/hex"
)

// Fingerprint computes the deterministic content hash over a bookmark's
// (url, title, folder path) triple. Identical inputs always produce the
// identical hash, across runs and across builds, so fingerprints can be
// persisted and compared later.
func Fingerprint(url, title, folderPath string) string {
	h := sha256.New()
	h.Write([]byte(url))
	h.Write([]byte{'\n'})
	h.Write([]byte(title))
	h.Write([]byte{'\n'})
	h.Write([]byte(folderPath))
	return hex.EncodeToString(h.Sum(nil))
}

// FingerprintEntry is shorthand for Fingerprint over a flattened entry.
func FingerprintEntry(e Entry) string {
	return Fingerprint(e.URL, e.Title, e.FolderPath)
}
