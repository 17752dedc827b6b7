package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
)

// DigestReader returns the hex SHA-256 digest of everything read from r.
// Collaborators that hold bytes rather than digests use it before calling
// ResolveFileIdentity.
func DigestReader(r io.Reader) (string, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", fmt.Errorf("digest content: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
