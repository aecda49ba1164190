package secrets

import (
	"bytes"
	"crypto/cipher"
	"encoding/binary"
	"errors"
	"testing"

	kerrors "github.com/PolarWolf314/cipherroom/internal/errors"
	"github.com/PolarWolf314/cipherroom/internal/keys"
)

// counterProvider produces predictable, never-repeating nonces.
type counterProvider struct {
	SystemProvider
	n uint64
}

func (p *counterProvider) RandomBytes(n int) ([]byte, error) {
	p.n++
	b := make([]byte, n)
	binary.BigEndian.PutUint64(b[n-8:], p.n)
	return b, nil
}

// stuckProvider returns the same nonce every time.
type stuckProvider struct {
	SystemProvider
}

func (stuckProvider) RandomBytes(n int) ([]byte, error) {
	return make([]byte, n), nil
}

func mustKey(t *testing.T, groupID, secret string) keys.Handle {
	t.Helper()
	k, err := keys.Derive(groupID, secret)
	if err != nil {
		t.Fatalf("Failed to derive key: %v", err)
	}
	return k
}

func TestSealOpen_RoundTrip(t *testing.T) {
	key := mustKey(t, "g1", "ABCD1234")
	inputs := [][]byte{
		{},
		[]byte("meet at 5"),
		bytes.Repeat([]byte{0xff, 0x00, 0x7f}, 4096),
	}

	for _, suite := range []Suite{SuiteAESGCM, SuiteXChaCha} {
		engine := NewEngine(SystemProvider{}, suite)
		for _, p := range inputs {
			sealed, err := engine.Seal(key, p)
			if err != nil {
				t.Fatalf("[%s] Seal failed: %v", suite, err)
			}
			if sealed.Suite != suite {
				t.Errorf("[%s] Expected sealed suite %s, got %s", suite, suite, sealed.Suite)
			}
			got, err := engine.Open(key, sealed)
			if err != nil {
				t.Fatalf("[%s] Open failed: %v", suite, err)
			}
			if !bytes.Equal(got, p) {
				t.Errorf("[%s] Round trip mismatch for %d byte input", suite, len(p))
			}
		}
	}
}

func TestSeal_NonceSizes(t *testing.T) {
	key := mustKey(t, "g1", "ABCD1234")
	cases := map[Suite]int{SuiteAESGCM: 12, SuiteXChaCha: 24}
	for suite, size := range cases {
		sealed, err := NewEngine(nil, suite).Seal(key, []byte("x"))
		if err != nil {
			t.Fatalf("[%s] Seal failed: %v", suite, err)
		}
		if len(sealed.Nonce) != size {
			t.Errorf("[%s] Expected %d byte nonce, got %d", suite, size, len(sealed.Nonce))
		}
	}
}

func TestSeal_SamePlaintextTwiceDiffers(t *testing.T) {
	key := mustKey(t, "g1", "ABCD1234")
	engine := NewEngine(SystemProvider{}, DefaultSuite)

	a, err := engine.SealString(key, "meet at 5")
	if err != nil {
		t.Fatalf("Seal failed: %v", err)
	}
	b, err := engine.SealString(key, "meet at 5")
	if err != nil {
		t.Fatalf("Seal failed: %v", err)
	}

	if bytes.Equal(a.Nonce, b.Nonce) {
		t.Errorf("Expected distinct nonces")
	}
	if bytes.Equal(a.Ciphertext, b.Ciphertext) {
		t.Errorf("Expected distinct ciphertexts")
	}
	if a.Digest != b.Digest {
		t.Errorf("Expected identical plaintext digests")
	}

	for _, s := range []Sealed{a, b} {
		got, err := engine.OpenString(key, s)
		if err != nil {
			t.Fatalf("Open failed: %v", err)
		}
		if got != "meet at 5" {
			t.Errorf("Expected 'meet at 5', got %q", got)
		}
	}
}

func TestOpen_DetectsEveryBitFlip(t *testing.T) {
	key := mustKey(t, "g1", "ABCD1234")
	for _, suite := range []Suite{SuiteAESGCM, SuiteXChaCha} {
		engine := NewEngine(SystemProvider{}, suite)
		sealed, err := engine.SealString(key, "tamper me")
		if err != nil {
			t.Fatalf("Seal failed: %v", err)
		}

		for i := 0; i < len(sealed.Ciphertext)*8; i++ {
			mutated := sealed
			mutated.Ciphertext = append([]byte(nil), sealed.Ciphertext...)
			mutated.Ciphertext[i/8] ^= 1 << (i % 8)
			if _, err := engine.Open(key, mutated); !errors.Is(err, kerrors.ErrAuthentication) {
				t.Fatalf("[%s] ciphertext bit %d: expected ErrAuthentication, got %v", suite, i, err)
			}
		}

		for i := 0; i < len(sealed.Nonce)*8; i++ {
			mutated := sealed
			mutated.Nonce = append([]byte(nil), sealed.Nonce...)
			mutated.Nonce[i/8] ^= 1 << (i % 8)
			if _, err := engine.Open(key, mutated); !errors.Is(err, kerrors.ErrAuthentication) {
				t.Fatalf("[%s] nonce bit %d: expected ErrAuthentication, got %v", suite, i, err)
			}
		}
	}
}

func TestOpen_WrongKey(t *testing.T) {
	engine := NewEngine(nil, "")
	sealed, err := engine.SealString(mustKey(t, "g1", "ABCD1234"), "secret")
	if err != nil {
		t.Fatalf("Seal failed: %v", err)
	}
	got, err := engine.Open(mustKey(t, "g1", "WXYZ9876"), sealed)
	if !errors.Is(err, kerrors.ErrAuthentication) {
		t.Fatalf("Expected ErrAuthentication, got %v", err)
	}
	if got != nil {
		t.Errorf("Expected no plaintext on failure, got %q", got)
	}
}

func TestOpen_TruncatedNonce(t *testing.T) {
	key := mustKey(t, "g1", "ABCD1234")
	engine := NewEngine(nil, "")
	sealed, _ := engine.SealString(key, "secret")
	sealed.Nonce = sealed.Nonce[:5]
	if _, err := engine.Open(key, sealed); !errors.Is(err, kerrors.ErrAuthentication) {
		t.Fatalf("Expected ErrAuthentication, got %v", err)
	}
}

func TestOpen_EmptySuiteDefaultsToAESGCM(t *testing.T) {
	key := mustKey(t, "g1", "ABCD1234")
	engine := NewEngine(nil, SuiteAESGCM)
	sealed, _ := engine.SealString(key, "legacy")
	sealed.Suite = ""
	if got, err := engine.OpenString(key, sealed); err != nil || got != "legacy" {
		t.Fatalf("Expected legacy envelope to open, got %q, %v", got, err)
	}
}

func TestSeal_RefusesNonceReuse(t *testing.T) {
	key := mustKey(t, "g1", "ABCD1234")
	engine := NewEngine(stuckProvider{}, DefaultSuite)

	if _, err := engine.SealString(key, "first"); err != nil {
		t.Fatalf("First seal failed: %v", err)
	}
	if _, err := engine.SealString(key, "second"); !errors.Is(err, kerrors.ErrNonceReuse) {
		t.Fatalf("Expected ErrNonceReuse, got %v", err)
	}

	// A different key has its own nonce space.
	if _, err := engine.SealString(mustKey(t, "g2", "OTHER"), "third"); err != nil {
		t.Fatalf("Seal under a different key failed: %v", err)
	}
}

func TestSeal_DeterministicProvider(t *testing.T) {
	key := mustKey(t, "g1", "ABCD1234")
	a := NewEngine(&counterProvider{}, DefaultSuite)
	b := NewEngine(&counterProvider{}, DefaultSuite)

	sa, _ := a.SealString(key, "same")
	sb, _ := b.SealString(key, "same")
	if !bytes.Equal(sa.Ciphertext, sb.Ciphertext) {
		t.Errorf("Expected identical ciphertexts from identical deterministic providers")
	}
}

func TestDigest_IsSHA256Hex(t *testing.T) {
	engine := NewEngine(nil, "")
	const want = "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"
	if got := engine.Digest([]byte("abc")); got != want {
		t.Errorf("Expected %s, got %s", want, got)
	}
}

func TestParseSuite(t *testing.T) {
	if s, err := ParseSuite(""); err != nil || s != DefaultSuite {
		t.Errorf("Expected default suite, got %q, %v", s, err)
	}
	if s, err := ParseSuite("xchacha20-poly1305"); err != nil || s != SuiteXChaCha {
		t.Errorf("Expected xchacha suite, got %q, %v", s, err)
	}
	if _, err := ParseSuite("aes-cbc"); !errors.Is(err, kerrors.ErrUnknownSuite) {
		t.Errorf("Expected ErrUnknownSuite, got %v", err)
	}
}

func TestSystemProvider_RejectsShortKey(t *testing.T) {
	var p CryptoProvider = SystemProvider{}
	var aead cipher.AEAD
	aead, err := p.AEAD(SuiteAESGCM, make([]byte, 16))
	if !errors.Is(err, kerrors.ErrInvalidKeyLength) || aead != nil {
		t.Fatalf("Expected ErrInvalidKeyLength, got %v", err)
	}
}
