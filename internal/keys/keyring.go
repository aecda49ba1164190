package keys

import (
	"context"
	"errors"
	"fmt"
	"sync"

	kerrors "github.com/PolarWolf314/cipherroom/internal/errors"
)

// SecretSource supplies group secrets from local metadata and can refresh
// that metadata from the relay when it is stale.
type SecretSource interface {
	GroupSecret(groupID string) (string, bool)
	Refresh(ctx context.Context) error
}

// Keyring caches one Handle per group for the lifetime of a session.
type Keyring struct {
	source SecretSource

	mu      sync.Mutex
	handles map[string]Handle
}

func NewKeyring(source SecretSource) *Keyring {
	return &Keyring{
		source:  source,
		handles: make(map[string]Handle),
	}
}

// Key returns the cached key for groupID, deriving it on first use.
//
// If the local metadata has no secret for the group, the source is refreshed
// once and the lookup retried. A secret still missing after that, or a failed
// refresh, yields ErrMissingSecret for this call only; nothing is cached, so a
// later call tries again.
func (k *Keyring) Key(ctx context.Context, groupID string) (Handle, error) {
	k.mu.Lock()
	h, ok := k.handles[groupID]
	k.mu.Unlock()
	if ok {
		return h, nil
	}

	secret, ok := k.source.GroupSecret(groupID)
	if !ok || Normalize(secret) == "" {
		if err := k.source.Refresh(ctx); err != nil {
			return Handle{}, fmt.Errorf("group %s: %w: refreshing metadata: %w", groupID, kerrors.ErrMissingSecret, err)
		}
		secret, ok = k.source.GroupSecret(groupID)
		if !ok {
			return Handle{}, fmt.Errorf("group %s: %w", groupID, kerrors.ErrMissingSecret)
		}
	}

	h, err := Derive(groupID, secret)
	if err != nil {
		return Handle{}, err
	}

	k.mu.Lock()
	k.handles[groupID] = h
	k.mu.Unlock()
	return h, nil
}

// Forget drops the cached key for groupID.
func (k *Keyring) Forget(groupID string) {
	k.mu.Lock()
	delete(k.handles, groupID)
	k.mu.Unlock()
}

// IsMissingSecret reports whether err came from an unresolved secret lookup.
func IsMissingSecret(err error) bool {
	return errors.Is(err, kerrors.ErrMissingSecret)
}
