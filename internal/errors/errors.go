package errors

import "errors"

// Key errors indicate a group key could not be produced.
var (
	// ErrMissingSecret indicates the group metadata has no invite secret to derive a key from.
	ErrMissingSecret = errors.New("group secret is missing")

	// ErrInvalidKeyLength indicates key material has an unexpected length.
	ErrInvalidKeyLength = errors.New("invalid symmetric key length")
)

// Cryptographic errors indicate failures during encryption or decryption operations.
var (
	// ErrAuthentication indicates the AEAD integrity check failed (tampering, wrong key, or corruption).
	ErrAuthentication = errors.New("ciphertext failed authentication")

	// ErrNonceReuse indicates the random source produced a nonce already used under the same key.
	ErrNonceReuse = errors.New("nonce reused under the same key")

	// ErrUnknownSuite indicates the requested AEAD suite is not supported.
	ErrUnknownSuite = errors.New("unknown cipher suite")

	// ErrDigestMismatch indicates decrypted content does not match its integrity digest.
	ErrDigestMismatch = errors.New("integrity digest mismatch")

	// ErrInvalidEnvelope indicates a wire envelope is malformed or incomplete.
	ErrInvalidEnvelope = errors.New("invalid envelope")
)

// Transport errors indicate a relay call failed. They are surfaced to the caller untouched.
var (
	// ErrTransport indicates a history fetch, persist, publish, or file transfer failed.
	ErrTransport = errors.New("transport failure")

	// ErrGroupNotFound indicates the relay or local cache does not know the group.
	ErrGroupNotFound = errors.New("group not found")

	// ErrFileNotFound indicates the requested file does not exist.
	ErrFileNotFound = errors.New("file not found")
)

// Session errors indicate the caller asked for something the current state cannot serve.
var (
	// ErrLoadInFlight indicates a history load for the group is already outstanding.
	ErrLoadInFlight = errors.New("history load already in progress")

	// ErrNotConfigured indicates the client has not been initialized.
	ErrNotConfigured = errors.New("client has not been initialized")

	// ErrEmptyMessage indicates an attempt to send a message with no text.
	ErrEmptyMessage = errors.New("message is empty")
)
