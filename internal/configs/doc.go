// Package configs manages the client configuration for cipherroom.
//
// Configuration is stored in TOML at <user config dir>/cipherroom/config.toml,
// or under CIPHERROOM_CONFIG_DIR when set:
//
//	[identity]
//	sender_ref = "4b1c..."      # generated on first use
//	display_name = "Ada"
//
//	[relay]
//	redis_url = "redis://localhost:6379/0"
//
//	[crypto]
//	suite = "aes-256-gcm"
//
//	[groups.<id>]
//	name = "Design"
//	secret = "K7Q2M9XR4TNA"
//
// The [groups] table is a cache of the groups the user has joined. It holds
// invite secrets so keys can be derived offline, which is why the file is
// written with owner-only permissions. GroupCache serves those secrets to the
// keyring and refreshes them from the relay when one is missing.
package configs
