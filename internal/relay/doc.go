// Package relay defines what the client needs from the server side: a group
// directory, message history, a file vault, and a realtime channel.
//
// A relay only ever handles ciphertext and routing metadata. It assigns
// durable ids to persisted messages and files; it never sees keys or
// plaintext.
//
// Two implementations live in subpackages: memory, an in-process hub used
// by tests, and redisrelay, backed by Redis.
package relay
