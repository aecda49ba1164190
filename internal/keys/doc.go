// Package keys derives per-group symmetric keys from shared invite secrets.
//
// Every member of a group holds the same invite secret, so every member can
// independently compute the same 256-bit key without any key exchange:
//
//	key = SHA-256(uppercase(trim(secret)))
//
// Handles are opaque, bound to one group, and never written to the wire or
// to the config file. The Keyring caches them for the session and refreshes
// group metadata once when a secret is missing locally.
package keys
