package sandbox

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
)

// fullHashThreshold is the size up to which the whole file is hashed. Larger
// files are fingerprinted from size, mtime and bounded head/tail hashes,
// keeping fingerprinting cheap while staying collision-resistant in practice.
const fullHashThreshold = 4 * 1024 * 1024

// partialWindow is how many bytes of head and tail are hashed for large files.
const partialWindow = 256 * 1024

// FingerprintFile derives the content fingerprint for a validated file.
func FingerprintFile(path string, info os.FileInfo) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open for fingerprint: %w", err)
	}
	defer f.Close()

	h := sha256.New()

	if info.Size() <= fullHashThreshold {
		if _, err := io.Copy(h, f); err != nil {
			return "", fmt.Errorf("hash content: %w", err)
		}
	} else {
		if err := hashWindow(h, f, 0, partialWindow); err != nil {
			return "", err
		}
		if err := hashWindow(h, f, info.Size()-partialWindow, partialWindow); err != nil {
			return "", err
		}
	}

	fmt.Fprintf(h, "|%d|%d", info.Size(), info.ModTime().UnixNano())
	return hex.EncodeToString(h.Sum(nil)), nil
}

func hashWindow(h io.Writer, f *os.File, offset, length int64) error {
	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return fmt.Errorf("seek for fingerprint: %w", err)
	}
	if _, err := io.CopyN(h, f, length); err != nil && err != io.EOF {
		return fmt.Errorf("hash window: %w", err)
	}
	return nil
}
