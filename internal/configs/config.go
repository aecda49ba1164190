package configs

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	kerrors "github.com/PolarWolf314/cipherroom/internal/errors"
	"github.com/PolarWolf314/cipherroom/internal/secrets"
)

// DefaultRedisURL is used when neither the config nor the environment names a relay.
const DefaultRedisURL = "redis://localhost:6379/0"

type ClientConfig struct {
	Identity Identity              `toml:"identity"`
	Relay    RelayConfig           `toml:"relay"`
	Crypto   CryptoConfig          `toml:"crypto"`
	Groups   map[string]GroupEntry `toml:"groups"`
}

type Identity struct {
	SenderRef   string    `toml:"sender_ref"`
	DisplayName string    `toml:"display_name"`
	CreatedAt   time.Time `toml:"created_at"`
}

type RelayConfig struct {
	RedisURL string `toml:"redis_url"`
}

type CryptoConfig struct {
	Suite string `toml:"suite"`
}

// GroupEntry is the cached metadata of one joined group. The secret is kept
// so keys can be derived without a relay round trip; it may be stale.
type GroupEntry struct {
	Name     string    `toml:"name"`
	Secret   string    `toml:"secret"`
	JoinedAt time.Time `toml:"joined_at"`
}

// NamedGroup pairs a cached group with its id.
type NamedGroup struct {
	ID string
	GroupEntry
}

// LoadClientConfig loads the client configuration. A missing file yields an
// empty configuration, not an error.
func LoadClientConfig(path string) (*ClientConfig, error) {
	config := &ClientConfig{
		Groups: make(map[string]GroupEntry),
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return config, nil
	}

	if err := LoadTOML(path, config); err != nil {
		return nil, fmt.Errorf("failed to load client config: %w", err)
	}
	if config.Groups == nil {
		config.Groups = make(map[string]GroupEntry)
	}

	return config, nil
}

// SaveClientConfig saves the client configuration.
func SaveClientConfig(path string, config *ClientConfig) error {
	if err := SaveTOML(path, config); err != nil {
		return fmt.Errorf("failed to save client config: %w", err)
	}
	return nil
}

// GenerateSenderRef generates a new opaque sender reference.
func GenerateSenderRef() string {
	return uuid.New().String()
}

// EnsureClientConfig loads the config and gives it an identity on first use.
func EnsureClientConfig(s *Settings, displayName string) (*ClientConfig, error) {
	config, err := LoadClientConfig(s.ConfigPath)
	if err != nil {
		return nil, err
	}

	if config.Identity.SenderRef != "" {
		return config, nil
	}

	config.Identity.SenderRef = GenerateSenderRef()
	config.Identity.DisplayName = displayName
	config.Identity.CreatedAt = time.Now().UTC()
	if err := SaveClientConfig(s.ConfigPath, config); err != nil {
		return nil, err
	}
	return config, nil
}

// RequireIdentity fails if the client has not been initialized.
func (c *ClientConfig) RequireIdentity() error {
	if c.Identity.SenderRef == "" {
		return fmt.Errorf("%w: no identity, run init first", kerrors.ErrNotConfigured)
	}
	return nil
}

// RedisURL returns the relay address, honouring CIPHERROOM_REDIS_URL.
func (c *ClientConfig) RedisURL() string {
	if v := os.Getenv(EnvRedisURL); v != "" {
		return v
	}
	if c.Relay.RedisURL != "" {
		return c.Relay.RedisURL
	}
	return DefaultRedisURL
}

// Suite returns the configured encryption suite.
func (c *ClientConfig) Suite() (secrets.Suite, error) {
	return secrets.ParseSuite(c.Crypto.Suite)
}

// SortedGroups returns the cached groups ordered by name, then id.
func (c *ClientConfig) SortedGroups() []NamedGroup {
	out := make([]NamedGroup, 0, len(c.Groups))
	for id, g := range c.Groups {
		out = append(out, NamedGroup{ID: id, GroupEntry: g})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// ResolveGroup finds a cached group by id, or by case-insensitive name when
// the name is unambiguous.
func (c *ClientConfig) ResolveGroup(ref string) (NamedGroup, error) {
	if g, ok := c.Groups[ref]; ok {
		return NamedGroup{ID: ref, GroupEntry: g}, nil
	}

	var matches []NamedGroup
	for _, g := range c.SortedGroups() {
		if strings.EqualFold(g.Name, ref) {
			matches = append(matches, g)
		}
	}
	switch len(matches) {
	case 0:
		return NamedGroup{}, fmt.Errorf("%w: %s", kerrors.ErrGroupNotFound, ref)
	case 1:
		return matches[0], nil
	default:
		return NamedGroup{}, fmt.Errorf("%w: %q matches %d groups, use the group id", kerrors.ErrGroupNotFound, ref, len(matches))
	}
}
