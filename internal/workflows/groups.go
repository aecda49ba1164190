package workflows

import (
	"context"
	"fmt"
	"strings"

	"github.com/PolarWolf314/cipherroom/internal/audit"
	"github.com/PolarWolf314/cipherroom/internal/configs"
	kerrors "github.com/PolarWolf314/cipherroom/internal/errors"
	"github.com/PolarWolf314/cipherroom/internal/keys"
	"github.com/PolarWolf314/cipherroom/internal/relay"
)

// GroupResult describes a group the user just created or joined.
type GroupResult struct {
	Group relay.Group

	// Fingerprint is the short key fingerprint members can compare out of band.
	Fingerprint string
}

// CreateGroup creates a group on the relay and caches its invite secret.
func (s *Session) CreateGroup(ctx context.Context, name string) (*GroupResult, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("group name is empty")
	}
	g, err := s.relay.CreateGroup(ctx, name)
	if err != nil {
		return nil, err
	}
	return s.remember(g, audit.OpCreateGroup)
}

// JoinGroup joins the group an invite secret belongs to.
//
// Returns ErrGroupNotFound if the relay knows no such invite.
func (s *Session) JoinGroup(ctx context.Context, secret string) (*GroupResult, error) {
	if keys.Normalize(secret) == "" {
		return nil, fmt.Errorf("%w: invite secret is empty", kerrors.ErrMissingSecret)
	}
	g, err := s.relay.JoinGroup(ctx, secret)
	if err != nil {
		return nil, err
	}
	return s.remember(g, audit.OpJoinGroup)
}

// ListGroups returns the cached groups, refreshing from the relay first when
// refresh is set. A failed refresh falls back to the cache with a warning.
func (s *Session) ListGroups(ctx context.Context, refresh bool) []configs.NamedGroup {
	if refresh {
		if err := s.cache.Refresh(ctx); err != nil {
			s.log.WarnfAlways("Showing cached groups: %v", err)
		}
	}
	return s.cache.Groups()
}

// ResolveGroup finds a joined group by id or name.
func (s *Session) ResolveGroup(ref string) (configs.NamedGroup, error) {
	return s.cache.Resolve(ref)
}

// Fingerprint returns the key fingerprint of a group.
func (s *Session) Fingerprint(ctx context.Context, groupID string) (string, error) {
	key, err := s.keyring.Key(ctx, groupID)
	if err != nil {
		return "", err
	}
	return key.Fingerprint(), nil
}

func (s *Session) remember(g relay.Group, op string) (*GroupResult, error) {
	if err := s.cache.Put(g); err != nil {
		return nil, fmt.Errorf("caching group: %w", err)
	}
	key, err := keys.Derive(g.ID, g.Secret)
	if err != nil {
		return nil, err
	}
	s.audit.Log(audit.Entry{Operation: op, GroupID: g.ID})
	return &GroupResult{Group: g, Fingerprint: key.Fingerprint()}, nil
}
