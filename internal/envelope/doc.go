// Package envelope converts sealed payloads to and from their wire form.
//
// A message travels as a JSON object carrying base64 ciphertext and nonce,
// the hex integrity digest, and cleartext routing fields (id, group, sender,
// timestamp). Files travel as a raw ciphertext blob with the same metadata
// carried beside it, either as JSON or as X-Cipherroom-* headers.
//
// The idKind field states explicitly whether an id is client-generated
// (ephemeral) or relay-assigned (durable). Older payloads omit it; those are
// treated as durable, since only the relay ever stores them.
package envelope
