package configs

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	kerrors "github.com/PolarWolf314/cipherroom/internal/errors"
	"github.com/PolarWolf314/cipherroom/internal/keys"
	logger "github.com/PolarWolf314/cipherroom/internal/logging"
	"github.com/PolarWolf314/cipherroom/internal/relay"
	"github.com/PolarWolf314/cipherroom/internal/secrets"
)

func TestGenerateSenderRef(t *testing.T) {
	ref := GenerateSenderRef()
	if len(ref) != 36 {
		t.Fatalf("Expected UUID length 36, got %d", len(ref))
	}
	if ref == GenerateSenderRef() {
		t.Fatal("Expected distinct sender refs")
	}
}

func TestResolveSettings_EnvOverride(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(EnvConfigDir, dir)

	s, err := ResolveSettings()
	if err != nil {
		t.Fatalf("ResolveSettings failed: %v", err)
	}
	if s.ConfigPath != filepath.Join(dir, "config.toml") {
		t.Errorf("Unexpected config path %s", s.ConfigPath)
	}
	if s.AuditPath != filepath.Join(dir, "audit.jsonl") {
		t.Errorf("Unexpected audit path %s", s.AuditPath)
	}
}

func TestLoadClientConfig_Missing(t *testing.T) {
	config, err := LoadClientConfig(filepath.Join(t.TempDir(), "config.toml"))
	if err != nil {
		t.Fatalf("LoadClientConfig failed: %v", err)
	}
	if config.Groups == nil {
		t.Fatal("Expected initialized groups map")
	}
	if err := config.RequireIdentity(); !errors.Is(err, kerrors.ErrNotConfigured) {
		t.Errorf("Expected ErrNotConfigured, got %v", err)
	}
}

func TestLoadClientConfig_Malformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[identity\nsender_ref = "), 0600); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}
	if _, err := LoadClientConfig(path); err == nil {
		t.Fatal("Expected error for malformed config")
	}
}

func TestEnsureClientConfig(t *testing.T) {
	s := SettingsFor(t.TempDir())

	first, err := EnsureClientConfig(s, "Ada")
	if err != nil {
		t.Fatalf("EnsureClientConfig failed: %v", err)
	}
	if first.Identity.SenderRef == "" || first.Identity.DisplayName != "Ada" {
		t.Fatalf("Unexpected identity %+v", first.Identity)
	}

	second, err := EnsureClientConfig(s, "Someone else")
	if err != nil {
		t.Fatalf("EnsureClientConfig failed: %v", err)
	}
	if second.Identity.SenderRef != first.Identity.SenderRef || second.Identity.DisplayName != "Ada" {
		t.Errorf("Expected identity to persist, got %+v", second.Identity)
	}

	info, err := os.Stat(s.ConfigPath)
	if err != nil {
		t.Fatalf("Config file missing: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("Expected 0600 permissions, got %v", info.Mode().Perm())
	}
}

func TestRedisURL(t *testing.T) {
	config := &ClientConfig{}
	t.Setenv(EnvRedisURL, "")
	if got := config.RedisURL(); got != DefaultRedisURL {
		t.Errorf("Expected default, got %s", got)
	}

	config.Relay.RedisURL = "redis://relay:6379/1"
	if got := config.RedisURL(); got != "redis://relay:6379/1" {
		t.Errorf("Expected configured url, got %s", got)
	}

	t.Setenv(EnvRedisURL, "redis://override:6379/2")
	if got := config.RedisURL(); got != "redis://override:6379/2" {
		t.Errorf("Expected env override, got %s", got)
	}
}

func TestSuite(t *testing.T) {
	config := &ClientConfig{}
	if s, err := config.Suite(); err != nil || s != secrets.DefaultSuite {
		t.Errorf("Expected default suite, got %s, %v", s, err)
	}
	config.Crypto.Suite = "rot13"
	if _, err := config.Suite(); !errors.Is(err, kerrors.ErrUnknownSuite) {
		t.Errorf("Expected ErrUnknownSuite, got %v", err)
	}
}

func TestResolveGroup(t *testing.T) {
	config := &ClientConfig{Groups: map[string]GroupEntry{
		"id-1": {Name: "Design"},
		"id-2": {Name: "Ops"},
		"id-3": {Name: "ops"},
	}}

	if g, err := config.ResolveGroup("id-1"); err != nil || g.Name != "Design" {
		t.Errorf("Expected lookup by id, got %+v, %v", g, err)
	}
	if g, err := config.ResolveGroup("design"); err != nil || g.ID != "id-1" {
		t.Errorf("Expected lookup by name, got %+v, %v", g, err)
	}
	if _, err := config.ResolveGroup("OPS"); !errors.Is(err, kerrors.ErrGroupNotFound) {
		t.Errorf("Expected ambiguous name to fail, got %v", err)
	}
	if _, err := config.ResolveGroup("nope"); !errors.Is(err, kerrors.ErrGroupNotFound) {
		t.Errorf("Expected unknown group to fail, got %v", err)
	}
}

type fakeLister struct {
	groups []relay.Group
	err    error
	calls  int
}

func (f *fakeLister) ListGroups(ctx context.Context) ([]relay.Group, error) {
	f.calls++
	return f.groups, f.err
}

func TestGroupCache(t *testing.T) {
	s := SettingsFor(t.TempDir())
	config, _ := EnsureClientConfig(s, "Ada")
	lister := &fakeLister{}
	cache := NewGroupCache(s.ConfigPath, config, lister)

	if _, ok := cache.GroupSecret("g1"); ok {
		t.Fatal("Expected empty cache")
	}

	if err := cache.Put(relay.Group{ID: "g1", Name: "Design", Secret: "abc123"}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if secret, ok := cache.GroupSecret("g1"); !ok || secret != "ABC123" {
		t.Errorf("Expected normalized secret, got %q, %v", secret, ok)
	}

	lister.groups = []relay.Group{
		{ID: "g1", Name: "Design (renamed)", Secret: "ABC123"},
		{ID: "g2", Name: "Ops", Secret: "XYZ789"},
	}
	if err := cache.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if groups := cache.Groups(); len(groups) != 2 || groups[0].Name != "Design (renamed)" {
		t.Errorf("Unexpected groups after refresh %+v", groups)
	}

	reloaded, err := LoadClientConfig(s.ConfigPath)
	if err != nil {
		t.Fatalf("LoadClientConfig failed: %v", err)
	}
	if reloaded.Groups["g2"].Secret != "XYZ789" {
		t.Errorf("Expected refreshed group to be persisted, got %+v", reloaded.Groups)
	}
	if reloaded.Groups["g1"].JoinedAt.IsZero() {
		t.Errorf("Expected join time to be recorded")
	}
}

func TestGroupCache_RefreshError(t *testing.T) {
	s := SettingsFor(t.TempDir())
	config, _ := EnsureClientConfig(s, "Ada")
	cache := NewGroupCache(s.ConfigPath, config, &fakeLister{err: kerrors.ErrTransport})

	if err := cache.Refresh(context.Background()); !errors.Is(err, kerrors.ErrTransport) {
		t.Errorf("Expected ErrTransport, got %v", err)
	}
}

func TestGroupCache_RefreshKeepsGroupsWhenSaveFails(t *testing.T) {
	// A regular file standing where the config directory should be makes
	// every save fail.
	blocker := filepath.Join(t.TempDir(), "blocker")
	if err := os.WriteFile(blocker, nil, 0600); err != nil {
		t.Fatalf("Failed to create file: %v", err)
	}
	var stderr bytes.Buffer
	lister := &fakeLister{groups: []relay.Group{{ID: "g2", Name: "Ops", Secret: "xyz789"}}}
	cache := NewGroupCache(filepath.Join(blocker, "config.toml"), &ClientConfig{}, lister).
		WithLogger(logger.Logger{Out: &bytes.Buffer{}, Err: &stderr})

	if err := cache.Refresh(context.Background()); err != nil {
		t.Fatalf("Expected refresh to succeed in memory, got %v", err)
	}
	if secret, ok := cache.GroupSecret("g2"); !ok || secret != "XYZ789" {
		t.Errorf("Expected refreshed secret, got %q, %v", secret, ok)
	}
	if !strings.Contains(stderr.String(), "not saved") {
		t.Errorf("Expected save failure to be logged, got %q", stderr.String())
	}

	ring := keys.NewKeyring(cache)
	if _, err := ring.Key(context.Background(), "g3"); !keys.IsMissingSecret(err) {
		t.Errorf("Expected ErrMissingSecret for unknown group, got %v", err)
	}
	lister.groups = append(lister.groups, relay.Group{ID: "g3", Name: "Infra", Secret: "QRS456"})
	if _, err := ring.Key(context.Background(), "g3"); err != nil {
		t.Errorf("Expected key once the relay lists the group, got %v", err)
	}
}

func TestGroupCache_NilLister(t *testing.T) {
	cache := NewGroupCache(filepath.Join(t.TempDir(), "c.toml"), &ClientConfig{}, nil)
	if err := cache.Refresh(context.Background()); err != nil {
		t.Errorf("Expected no-op refresh, got %v", err)
	}
}
