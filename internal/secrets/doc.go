// Package secrets provides the authenticated encryption engine for cipherroom.
//
// Every message and file is encrypted under its group's key with an AEAD
// construction, so tampering is detected at decrypt time instead of producing
// corrupted plaintext that something downstream might render.
//
// # Suites
//
//   - aes-256-gcm (default): 12-byte nonce, interoperable with browser clients
//   - xchacha20-poly1305: 24-byte nonce, from golang.org/x/crypto
//
// The suite is recorded on every Sealed value, so a room can contain messages
// from clients configured with either suite.
//
// # Nonces
//
// Each Seal draws a fresh random nonce from the CryptoProvider. The engine
// remembers the nonces it issued per key for the lifetime of the process and
// refuses to reuse one, so a faulty random source fails loudly rather than
// silently breaking confidentiality.
//
// # Digests
//
// Sealed.Digest is the hex SHA-256 of the plaintext. It is written to the
// audit log and compared after file downloads. It is not a MAC; the AEAD tag
// inside Ciphertext protects integrity.
package secrets
