package configs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/PolarWolf314/cipherroom/internal/keys"
	logger "github.com/PolarWolf314/cipherroom/internal/logging"
	"github.com/PolarWolf314/cipherroom/internal/relay"
)

// GroupLister is the part of the relay directory the cache refreshes from.
type GroupLister interface {
	ListGroups(ctx context.Context) ([]relay.Group, error)
}

// GroupCache is the local, possibly stale view of the groups the user has
// joined. It serves invite secrets to the keyring and refreshes from the
// relay on demand, persisting what it learns.
type GroupCache struct {
	mu     sync.RWMutex
	path   string
	config *ClientConfig
	lister GroupLister
	log    logger.Logger
}

var _ keys.SecretSource = (*GroupCache)(nil)

// NewGroupCache wraps config, saving it to path whenever the cache changes.
// lister may be nil, in which case Refresh is a no-op.
func NewGroupCache(path string, config *ClientConfig, lister GroupLister) *GroupCache {
	if config.Groups == nil {
		config.Groups = make(map[string]GroupEntry)
	}
	return &GroupCache{path: path, config: config, lister: lister}
}

// WithLogger sets where Refresh reports groups it could not persist.
func (c *GroupCache) WithLogger(l logger.Logger) *GroupCache {
	c.log = l
	return c
}

// GroupSecret returns the cached invite secret of a group.
func (c *GroupCache) GroupSecret(groupID string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	g, ok := c.config.Groups[groupID]
	if !ok || g.Secret == "" {
		return "", false
	}
	return g.Secret, true
}

// Refresh replaces cached names and secrets with the relay's current view.
// Groups the relay no longer lists are kept. A failure to save is logged; the
// refreshed groups stay usable in memory.
func (c *GroupCache) Refresh(ctx context.Context) error {
	if c.lister == nil {
		return nil
	}
	groups, err := c.lister.ListGroups(ctx)
	if err != nil {
		return fmt.Errorf("failed to refresh groups: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, g := range groups {
		c.put(g)
	}
	if err := SaveClientConfig(c.path, c.config); err != nil {
		c.log.WarnfAlways("Refreshed groups were not saved: %v", err)
	}
	return nil
}

// Put records a group that was just created or joined.
func (c *GroupCache) Put(g relay.Group) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.put(g)
	return SaveClientConfig(c.path, c.config)
}

// Resolve finds a cached group by id or name.
func (c *GroupCache) Resolve(ref string) (NamedGroup, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.config.ResolveGroup(ref)
}

// Groups returns the cached groups ordered by name.
func (c *GroupCache) Groups() []NamedGroup {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.config.SortedGroups()
}

func (c *GroupCache) put(g relay.Group) {
	entry, ok := c.config.Groups[g.ID]
	if !ok {
		entry.JoinedAt = time.Now().UTC()
	}
	entry.Name = g.Name
	if g.Secret != "" {
		entry.Secret = keys.Normalize(g.Secret)
	}
	c.config.Groups[g.ID] = entry
}
