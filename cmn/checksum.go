package cmn

import (
	"crypto/sha1" //nolint:gosec // DDI mandates sha1 for artifact integrity, not a security boundary choice of ours
	"encoding/hex"
	"io"
	"os"
)

// Sha1File computes the sha1 hex digest of the full file contents, seeking
// from the start. Spec §4.5 requires this (rather than an incremental digest
// carried across resume attempts) specifically to avoid mixing digest state
// across a truncated-and-retried partial file.
func Sha1File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha1.New() //nolint:gosec
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// CopyAndCount copies src into dst counting the bytes written, independent
// of whatever checksum is computed afterward by Sha1File.
func CopyAndCount(dst io.Writer, src io.Reader) (int64, error) {
	return io.Copy(dst, src)
}
