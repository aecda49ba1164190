// Package audit keeps a local trail of what this client sent, uploaded,
// downloaded and deleted.
//
// # Log Format
//
// The trail is stored as JSON Lines (one JSON object per line) next to the
// client config:
//
//	<config dir>/audit.jsonl
//
// Each entry contains:
//   - Timestamp (RFC3339 with microseconds, UTC)
//   - The local sender ref
//   - Operation name
//   - Group id, durable record id and the integrity digest of the content
//
// Digests let two members confirm they hold the same plaintext without
// either one writing it down. The trail never contains message text.
//
// # Failure Handling
//
// Audit logging is best-effort. If logging fails (permissions, disk full,
// etc.), the operation continues without error.
package audit
