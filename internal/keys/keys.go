package keys

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	kerrors "github.com/PolarWolf314/cipherroom/internal/errors"
)

// KeySize is the width of a group key in bytes (256 bits).
const KeySize = sha256.Size

// Handle is symmetric key material bound to exactly one group.
// It is never serialized; String and fmt verbs print a redacted form.
type Handle struct {
	groupID string
	key     [KeySize]byte
}

// GroupID returns the group the key belongs to.
func (h Handle) GroupID() string {
	return h.groupID
}

// Bytes returns a copy of the raw key for the encryption engine.
func (h Handle) Bytes() []byte {
	out := make([]byte, KeySize)
	copy(out, h.key[:])
	return out
}

// IsZero reports whether h was never derived.
func (h Handle) IsZero() bool {
	return h.groupID == "" && h.key == [KeySize]byte{}
}

// Fingerprint returns a short hex tag that two clients can compare out of band.
func (h Handle) Fingerprint() string {
	sum := sha256.Sum256(h.key[:])
	return hex.EncodeToString(sum[:4])
}

func (h Handle) String() string {
	return fmt.Sprintf("key(%s:%s)", h.groupID, h.Fingerprint())
}

// GoString keeps %#v from dumping key material.
func (h Handle) GoString() string {
	return h.String()
}

// Normalize trims surrounding whitespace and uppercases an invite secret,
// so case variation in user entry never changes the derived key.
func Normalize(secret string) string {
	return strings.ToUpper(strings.TrimSpace(secret))
}

// Derive turns a group secret into the group's key: the SHA-256 digest of the
// normalized secret is used directly as a 256-bit key. Derive is pure.
func Derive(groupID, secret string) (Handle, error) {
	normalized := Normalize(secret)
	if normalized == "" {
		return Handle{}, fmt.Errorf("deriving key for group %s: %w", groupID, kerrors.ErrMissingSecret)
	}
	return Handle{groupID: groupID, key: sha256.Sum256([]byte(normalized))}, nil
}

// FromBytes wraps existing key material. It is used by tests and by callers
// that already hold a derived key.
func FromBytes(groupID string, key []byte) (Handle, error) {
	if len(key) != KeySize {
		return Handle{}, fmt.Errorf("%w: expected %d bytes, got %d", kerrors.ErrInvalidKeyLength, KeySize, len(key))
	}
	h := Handle{groupID: groupID}
	copy(h.key[:], key)
	return h, nil
}
