// Package redisrelay stores groups, encrypted history and encrypted files in
// Redis and carries realtime pushes over Redis pub/sub.
//
// Key layout, under DefaultPrefix:
//
//	group:<id>          hash: name, secret
//	invite:<SECRET>     string: group id
//	member:<ref>        set: group ids
//	history:<id>        list: JSON messages, oldest first
//	seq                 counter for durable message ids
//	file:<id>           hash: meta (JSON), blob (ciphertext)
//	files:<groupId>     set: file ids
//	room:<id>           pub/sub channel
//
// Nothing stored here is plaintext.
package redisrelay
