package secrets

import (
	"crypto/subtle"
	"fmt"
	"net/http"

	kerrors "github.com/PolarWolf314/cipherroom/internal/errors"
	"github.com/PolarWolf314/cipherroom/internal/keys"
)

// FileInput is a plaintext file about to be uploaded to a group's vault.
type FileInput struct {
	Name     string
	MIMEType string
	Data     []byte
}

// SealedFile is an encrypted file plus the metadata that travels beside the blob.
type SealedFile struct {
	Sealed
	Name      string
	MIMEType  string
	SizeBytes int64
}

// SealFile encrypts a file's contents. When MIMEType is empty it is sniffed
// from the plaintext before encryption, since the relay never sees it.
func (e *Engine) SealFile(key keys.Handle, in FileInput) (SealedFile, error) {
	if in.Name == "" {
		return SealedFile{}, fmt.Errorf("file name is required")
	}

	mime := in.MIMEType
	if mime == "" {
		mime = http.DetectContentType(in.Data)
	}

	sealed, err := e.Seal(key, in.Data)
	if err != nil {
		return SealedFile{}, fmt.Errorf("failed to encrypt %s: %w", in.Name, err)
	}

	return SealedFile{
		Sealed:    sealed,
		Name:      in.Name,
		MIMEType:  mime,
		SizeBytes: int64(len(in.Data)),
	}, nil
}

// OpenFile decrypts a file and checks the result against its recorded digest
// and size. A digest mismatch means the metadata and blob do not belong together.
func (e *Engine) OpenFile(key keys.Handle, f SealedFile) ([]byte, error) {
	data, err := e.Open(key, f.Sealed)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt %s: %w", f.Name, err)
	}

	if f.Digest != "" && subtle.ConstantTimeCompare([]byte(e.Digest(data)), []byte(f.Digest)) != 1 {
		return nil, fmt.Errorf("%s: %w", f.Name, kerrors.ErrDigestMismatch)
	}
	if f.SizeBytes > 0 && int64(len(data)) != f.SizeBytes {
		return nil, fmt.Errorf("%s: %w: size %d, expected %d", f.Name, kerrors.ErrDigestMismatch, len(data), f.SizeBytes)
	}

	return data, nil
}
