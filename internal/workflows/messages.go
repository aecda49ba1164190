package workflows

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/PolarWolf314/cipherroom/internal/audit"
	"github.com/PolarWolf314/cipherroom/internal/envelope"
	kerrors "github.com/PolarWolf314/cipherroom/internal/errors"
	"github.com/PolarWolf314/cipherroom/internal/relay"
	"github.com/PolarWolf314/cipherroom/internal/search"
	"github.com/PolarWolf314/cipherroom/internal/transcript"
)

// LoadResult contains the outcome of a history load.
type LoadResult struct {
	// Merge summarizes how the fetched batch was reconciled.
	Merge transcript.Result

	// Fetched is the number of envelopes the relay returned.
	Fetched int

	// Records is the group's transcript after the merge.
	Records []transcript.Record
}

// LoadHistory fetches a group's persisted messages and merges them.
//
// Returns ErrLoadInFlight if a load for the group is already running.
// Transport errors are returned untouched and leave the transcript unchanged.
func (s *Session) LoadHistory(ctx context.Context, groupID string) (*LoadResult, error) {
	release, ok := s.engine.TryBeginLoad(groupID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", kerrors.ErrLoadInFlight, groupID)
	}
	defer release()

	batch, err := s.relay.FetchHistory(ctx, groupID)
	if err != nil {
		return nil, err
	}
	s.log.Debugf("Fetched %d envelopes for %s", len(batch), groupID)

	res := s.engine.IngestPersistedBatch(ctx, groupID, batch)
	if res.Dropped > 0 {
		s.log.Warnf("%d of %d records in %s could not be decrypted", res.Dropped, len(batch), groupID)
	}
	return &LoadResult{
		Merge:   res,
		Fetched: len(batch),
		Records: s.engine.Current(groupID),
	}, nil
}

// SendResult contains the outcome of a send.
type SendResult struct {
	// Record is the message as it now stands in the transcript.
	Record transcript.Record

	// Ack is the relay's confirmation.
	Ack relay.Ack

	// Published reports whether the realtime push succeeded. The message is
	// persisted either way.
	Published bool
}

// Send encrypts text for a group, shows it optimistically, persists it, and
// pushes the persisted copy to other members.
//
// Returns ErrEmptyMessage for blank text and ErrMissingSecret when no key can
// be derived. If persisting fails the optimistic record is withdrawn.
func (s *Session) Send(ctx context.Context, groupID, text string) (*SendResult, error) {
	if strings.TrimSpace(text) == "" {
		return nil, kerrors.ErrEmptyMessage
	}
	key, err := s.keyring.Key(ctx, groupID)
	if err != nil {
		return nil, err
	}
	sealed, err := s.crypto.SealString(key, text)
	if err != nil {
		return nil, fmt.Errorf("encrypting message: %w", err)
	}

	header := envelope.Header{
		ID:         uuid.NewString(),
		IDKind:     envelope.Ephemeral,
		GroupID:    groupID,
		SenderRef:  s.self,
		OccurredAt: s.nowMillis(),
	}
	msg := envelope.Encode(sealed, header)

	if _, err := s.engine.IngestOptimistic(groupID, transcript.Record{
		ID:         header.ID,
		GroupID:    groupID,
		SenderRef:  s.self,
		Text:       text,
		OccurredAt: header.OccurredAt,
		Digest:     sealed.Digest,
	}); err != nil {
		return nil, err
	}

	ack, err := s.relay.PersistMessage(ctx, msg)
	if err != nil {
		s.engine.Remove(groupID, envelope.Ephemeral, header.ID)
		return nil, err
	}

	persisted := msg
	persisted.ID = ack.ID
	persisted.IDKind = envelope.Durable
	s.engine.IngestPersistedBatch(ctx, groupID, []envelope.Message{persisted})

	s.audit.Log(audit.Entry{
		Operation: audit.OpSend,
		GroupID:   groupID,
		RecordID:  ack.ID,
		Digest:    sealed.Digest,
		Suite:     string(sealed.Suite),
	})

	result := &SendResult{Ack: ack}
	if err := s.relay.Publish(ctx, persisted); err != nil {
		s.log.Warnf("Message %s was saved but not pushed: %v", ack.ID, err)
	} else {
		result.Published = true
	}

	for _, r := range s.engine.Current(groupID) {
		if r.IDKind == envelope.Durable && r.ID == ack.ID {
			result.Record = r
			break
		}
	}
	return result, nil
}

// HandlePush merges one message delivered over the realtime channel.
func (s *Session) HandlePush(ctx context.Context, m envelope.Message) transcript.Result {
	return s.engine.IngestPushed(ctx, m.GroupID, m)
}

// Watch subscribes to a group's realtime pushes. Each push is merged, then
// onChange is called with the merge result and the pushed message's id.
// Watching a group that is already watched replaces the old subscription.
func (s *Session) Watch(ctx context.Context, groupID string, onChange func(transcript.Result, string)) error {
	sub, err := s.relay.Subscribe(ctx, groupID, func(m envelope.Message) {
		if m.GroupID != groupID {
			s.log.Warnf("Ignoring push for %s on %s channel", m.GroupID, groupID)
			return
		}
		res := s.HandlePush(ctx, m)
		if onChange != nil {
			onChange(res, m.ID)
		}
	})
	if err != nil {
		return err
	}

	s.mu.Lock()
	old := s.subs[groupID]
	s.subs[groupID] = sub
	s.mu.Unlock()

	if old != nil {
		if err := old.Close(); err != nil {
			s.log.Warnf("Closing previous subscription for %s: %v", groupID, err)
		}
	}
	return nil
}

// Unwatch ends a group's realtime subscription, keeping its transcript.
func (s *Session) Unwatch(groupID string) error {
	s.mu.Lock()
	sub := s.subs[groupID]
	delete(s.subs, groupID)
	s.mu.Unlock()

	if sub == nil {
		return nil
	}
	return sub.Close()
}

// SearchResult is one record that matched a search.
type SearchResult struct {
	Ref    transcript.Ref
	Record transcript.Record
	Spans  []search.Span
}

// Search finds records in a group's transcript whose text or file name
// contains query. A blank query returns every record.
func (s *Session) Search(groupID, query string) []SearchResult {
	records := s.engine.Current(groupID)
	refs := search.Search(records, query)

	out := make([]SearchResult, 0, len(refs))
	for _, ref := range refs {
		r := records[ref.Index]
		out = append(out, SearchResult{
			Ref:    ref,
			Record: r,
			Spans:  search.Spans(r.Label(), query),
		})
	}
	return out
}
