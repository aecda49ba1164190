package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"sync"

	kerrors "github.com/PolarWolf314/cipherroom/internal/errors"
	"github.com/PolarWolf314/cipherroom/internal/keys"

	"golang.org/x/crypto/chacha20poly1305"
)

// Suite names an AEAD construction.
type Suite string

const (
	// SuiteAESGCM is AES-256-GCM with a 96-bit nonce. It is the default because
	// browser clients of the same rooms use it.
	SuiteAESGCM Suite = "aes-256-gcm"

	// SuiteXChaCha is XChaCha20-Poly1305 with a 192-bit nonce.
	SuiteXChaCha Suite = "xchacha20-poly1305"

	DefaultSuite = SuiteAESGCM
)

// ParseSuite maps a configured suite name to a Suite. Empty means DefaultSuite.
func ParseSuite(name string) (Suite, error) {
	switch Suite(name) {
	case "":
		return DefaultSuite, nil
	case SuiteAESGCM, SuiteXChaCha:
		return Suite(name), nil
	default:
		return "", fmt.Errorf("%w: %q", kerrors.ErrUnknownSuite, name)
	}
}

// CryptoProvider supplies randomness, AEAD primitives, and digests.
// Injecting it keeps the engine testable with deterministic fakes.
type CryptoProvider interface {
	RandomBytes(n int) ([]byte, error)
	AEAD(suite Suite, key []byte) (cipher.AEAD, error)
	Digest(data []byte) []byte
}

// SystemProvider is the production CryptoProvider backed by crypto/rand.
type SystemProvider struct{}

func (SystemProvider) RandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return nil, fmt.Errorf("failed to read random bytes: %w", err)
	}
	return b, nil
}

func (SystemProvider) AEAD(suite Suite, key []byte) (cipher.AEAD, error) {
	if len(key) != keys.KeySize {
		return nil, fmt.Errorf("%w: expected %d bytes, got %d", kerrors.ErrInvalidKeyLength, keys.KeySize, len(key))
	}
	switch suite {
	case SuiteAESGCM:
		block, err := aes.NewCipher(key)
		if err != nil {
			return nil, err
		}
		return cipher.NewGCM(block)
	case SuiteXChaCha:
		return chacha20poly1305.NewX(key)
	default:
		return nil, fmt.Errorf("%w: %q", kerrors.ErrUnknownSuite, suite)
	}
}

func (SystemProvider) Digest(data []byte) []byte {
	sum := sha256.Sum256(data)
	return sum[:]
}

// Sealed is one encrypted unit. Ciphertext carries the AEAD tag; Digest is the
// hex SHA-256 of the plaintext, kept for audit and not for authentication.
type Sealed struct {
	Suite      Suite
	Ciphertext []byte
	Nonce      []byte
	Digest     string
}

// Engine encrypts and decrypts payloads under group keys.
type Engine struct {
	provider CryptoProvider
	suite    Suite

	mu     sync.Mutex
	issued map[string]map[string]struct{} // key fingerprint -> nonces
}

func NewEngine(provider CryptoProvider, suite Suite) *Engine {
	if provider == nil {
		provider = SystemProvider{}
	}
	if suite == "" {
		suite = DefaultSuite
	}
	return &Engine{
		provider: provider,
		suite:    suite,
		issued:   make(map[string]map[string]struct{}),
	}
}

// Suite returns the suite used for new encryptions.
func (e *Engine) Suite() Suite {
	return e.suite
}

// Seal encrypts plaintext under key with a fresh random nonce.
// A nonce already issued under the same key in this session is refused.
func (e *Engine) Seal(key keys.Handle, plaintext []byte) (Sealed, error) {
	aead, err := e.provider.AEAD(e.suite, key.Bytes())
	if err != nil {
		return Sealed{}, err
	}

	nonce, err := e.provider.RandomBytes(aead.NonceSize())
	if err != nil {
		return Sealed{}, err
	}
	if len(nonce) != aead.NonceSize() {
		return Sealed{}, fmt.Errorf("provider returned %d byte nonce, need %d", len(nonce), aead.NonceSize())
	}
	if err := e.claimNonce(key, nonce); err != nil {
		return Sealed{}, err
	}

	return Sealed{
		Suite:      e.suite,
		Ciphertext: aead.Seal(nil, nonce, plaintext, nil),
		Nonce:      nonce,
		Digest:     e.Digest(plaintext),
	}, nil
}

// Open decrypts s under key. Any integrity failure, including a nonce of the
// wrong size, is reported as ErrAuthentication and no plaintext is returned.
func (e *Engine) Open(key keys.Handle, s Sealed) ([]byte, error) {
	suite := s.Suite
	if suite == "" {
		suite = DefaultSuite
	}
	aead, err := e.provider.AEAD(suite, key.Bytes())
	if err != nil {
		return nil, err
	}
	if len(s.Nonce) != aead.NonceSize() {
		return nil, fmt.Errorf("%w: nonce is %d bytes, want %d", kerrors.ErrAuthentication, len(s.Nonce), aead.NonceSize())
	}

	plaintext, err := aead.Open(nil, s.Nonce, s.Ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", kerrors.ErrAuthentication, err)
	}
	return plaintext, nil
}

// SealString encrypts UTF-8 text.
func (e *Engine) SealString(key keys.Handle, text string) (Sealed, error) {
	return e.Seal(key, []byte(text))
}

// OpenString decrypts to UTF-8 text.
func (e *Engine) OpenString(key keys.Handle, s Sealed) (string, error) {
	b, err := e.Open(key, s)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Digest returns the hex content hash of data.
func (e *Engine) Digest(data []byte) string {
	return hex.EncodeToString(e.provider.Digest(data))
}

func (e *Engine) claimNonce(key keys.Handle, nonce []byte) error {
	fp := key.GroupID() + "/" + key.Fingerprint()

	e.mu.Lock()
	defer e.mu.Unlock()

	seen, ok := e.issued[fp]
	if !ok {
		seen = make(map[string]struct{})
		e.issued[fp] = seen
	}
	if _, dup := seen[string(nonce)]; dup {
		return kerrors.ErrNonceReuse
	}
	seen[string(nonce)] = struct{}{}
	return nil
}
