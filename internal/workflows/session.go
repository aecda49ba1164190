package workflows

import (
	"context"
	"crypto/subtle"
	"fmt"
	"sync"
	"time"

	"github.com/PolarWolf314/cipherroom/internal/audit"
	"github.com/PolarWolf314/cipherroom/internal/configs"
	"github.com/PolarWolf314/cipherroom/internal/envelope"
	kerrors "github.com/PolarWolf314/cipherroom/internal/errors"
	"github.com/PolarWolf314/cipherroom/internal/keys"
	logger "github.com/PolarWolf314/cipherroom/internal/logging"
	"github.com/PolarWolf314/cipherroom/internal/metrics"
	"github.com/PolarWolf314/cipherroom/internal/relay"
	"github.com/PolarWolf314/cipherroom/internal/secrets"
	"github.com/PolarWolf314/cipherroom/internal/transcript"
)

// SessionOptions configures a Session.
type SessionOptions struct {
	// Relay is the server side. Required.
	Relay relay.Relay

	// Cache is the local group cache. Required.
	Cache *configs.GroupCache

	// SenderRef identifies the local user on the wire. Required.
	SenderRef string

	// Suite selects the cipher for new messages and files. Empty means the default.
	Suite secrets.Suite

	// Provider overrides the crypto primitives, mainly for tests.
	Provider secrets.CryptoProvider

	// Tolerance overrides the optimistic match window.
	Tolerance time.Duration

	Audit   *audit.Trail
	Logger  logger.Logger
	Metrics *metrics.Reconcile

	// Clock overrides time.Now.
	Clock func() time.Time
}

// Session is one user's live view of their groups. It owns the key cache and
// the reconciled transcripts, and drives the relay.
type Session struct {
	relay   relay.Relay
	cache   *configs.GroupCache
	keyring *keys.Keyring
	crypto  *secrets.Engine
	engine  *transcript.Engine
	audit   *audit.Trail
	log     logger.Logger
	self    string
	clock   func() time.Time

	mu   sync.Mutex
	subs map[string]relay.Subscription
}

// NewSession wires a session together.
func NewSession(opts SessionOptions) (*Session, error) {
	if opts.Relay == nil || opts.Cache == nil {
		return nil, fmt.Errorf("%w: session needs a relay and a group cache", kerrors.ErrNotConfigured)
	}
	if opts.SenderRef == "" {
		return nil, fmt.Errorf("%w: no sender ref", kerrors.ErrNotConfigured)
	}
	if _, err := secrets.ParseSuite(string(opts.Suite)); err != nil {
		return nil, err
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}

	s := &Session{
		relay:   opts.Relay,
		cache:   opts.Cache,
		keyring: keys.NewKeyring(opts.Cache),
		crypto:  secrets.NewEngine(opts.Provider, opts.Suite),
		audit:   opts.Audit,
		log:     opts.Logger,
		self:    opts.SenderRef,
		clock:   clock,
		subs:    make(map[string]relay.Subscription),
	}
	s.engine = transcript.New(s, transcript.Options{
		Tolerance: opts.Tolerance,
		Logger:    opts.Logger,
		Metrics:   opts.Metrics,
	})
	return s, nil
}

// SenderRef returns the local user's sender ref.
func (s *Session) SenderRef() string {
	return s.self
}

// OpenMessage decrypts a wire message into a record. It implements
// transcript.Opener.
func (s *Session) OpenMessage(ctx context.Context, m envelope.Message) (transcript.Record, error) {
	sealed, h, err := envelope.Decode(m)
	if err != nil {
		return transcript.Record{}, err
	}
	key, err := s.keyring.Key(ctx, h.GroupID)
	if err != nil {
		return transcript.Record{}, err
	}
	plaintext, err := s.crypto.Open(key, sealed)
	if err != nil {
		return transcript.Record{}, err
	}
	if err := s.checkDigest(plaintext, sealed.Digest); err != nil {
		return transcript.Record{}, err
	}

	return transcript.Record{
		ID:         h.ID,
		IDKind:     h.IDKind,
		GroupID:    h.GroupID,
		Kind:       transcript.KindMessage,
		Author:     s.authorOf(h.SenderRef),
		SenderRef:  h.SenderRef,
		Text:       string(plaintext),
		OccurredAt: h.OccurredAt,
		Digest:     sealed.Digest,
	}, nil
}

// Transcript returns the reconciled records of a group.
func (s *Session) Transcript(groupID string) []transcript.Record {
	return s.engine.Current(groupID)
}

// Stats summarizes a group's transcript.
func (s *Session) Stats(groupID string) transcript.Stats {
	return s.engine.Stats(groupID)
}

// Forget tears down everything the session holds for a group: its live
// subscription, its transcript and its cached key.
func (s *Session) Forget(groupID string) {
	s.mu.Lock()
	sub := s.subs[groupID]
	delete(s.subs, groupID)
	s.mu.Unlock()

	if sub != nil {
		if err := sub.Close(); err != nil {
			s.log.Warnf("Closing subscription for %s: %v", groupID, err)
		}
	}
	s.engine.Forget(groupID)
	s.keyring.Forget(groupID)
}

// Close ends every subscription and closes the relay.
func (s *Session) Close() error {
	s.mu.Lock()
	subs := s.subs
	s.subs = make(map[string]relay.Subscription)
	s.mu.Unlock()

	for groupID, sub := range subs {
		if err := sub.Close(); err != nil {
			s.log.Warnf("Closing subscription for %s: %v", groupID, err)
		}
	}
	return s.relay.Close()
}

func (s *Session) authorOf(senderRef string) transcript.Author {
	if senderRef == s.self {
		return transcript.Self
	}
	return transcript.Peer
}

func (s *Session) checkDigest(plaintext []byte, want string) error {
	if want == "" {
		return nil
	}
	got := s.crypto.Digest(plaintext)
	if subtle.ConstantTimeCompare([]byte(got), []byte(want)) != 1 {
		return kerrors.ErrDigestMismatch
	}
	return nil
}

func (s *Session) nowMillis() int64 {
	return s.clock().UnixMilli()
}
