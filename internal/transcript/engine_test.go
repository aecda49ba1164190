package transcript

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/PolarWolf314/cipherroom/internal/envelope"
	"github.com/PolarWolf314/cipherroom/internal/keys"
	"github.com/PolarWolf314/cipherroom/internal/metrics"
	"github.com/PolarWolf314/cipherroom/internal/secrets"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

const (
	selfRef = "self-ref"
	peerRef = "peer-ref"
	baseT   = int64(1_700_000_000_000)
)

// testOpener decrypts envelopes the way a session does.
type testOpener struct {
	engine *secrets.Engine
	keys   map[string]keys.Handle
}

func (o *testOpener) OpenMessage(ctx context.Context, m envelope.Message) (Record, error) {
	sealed, h, err := envelope.Decode(m)
	if err != nil {
		return Record{}, err
	}
	text, err := o.engine.OpenString(o.keys[m.GroupID], sealed)
	if err != nil {
		return Record{}, err
	}
	author := Peer
	if h.SenderRef == selfRef {
		author = Self
	}
	return Record{
		ID:         h.ID,
		IDKind:     h.IDKind,
		GroupID:    h.GroupID,
		Author:     author,
		SenderRef:  h.SenderRef,
		Text:       text,
		OccurredAt: h.OccurredAt,
		Digest:     sealed.Digest,
	}, nil
}

type fixture struct {
	t       *testing.T
	opener  *testOpener
	engine  *Engine
	metrics *metrics.Reconcile
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	opener := &testOpener{engine: secrets.NewEngine(nil, ""), keys: map[string]keys.Handle{}}
	for _, g := range []string{"g1", "g2"} {
		k, err := keys.Derive(g, "SECRET-"+g)
		if err != nil {
			t.Fatalf("Failed to derive key: %v", err)
		}
		opener.keys[g] = k
	}
	m := metrics.NewReconcile(nil)
	return &fixture{t: t, opener: opener, engine: New(opener, Options{Metrics: m}), metrics: m}
}

func (f *fixture) seal(groupID, id, sender, text string, at int64) envelope.Message {
	f.t.Helper()
	sealed, err := f.opener.engine.SealString(f.opener.keys[groupID], text)
	if err != nil {
		f.t.Fatalf("Failed to seal: %v", err)
	}
	return envelope.Encode(sealed, envelope.Header{ID: id, IDKind: envelope.Durable, GroupID: groupID, SenderRef: sender, OccurredAt: at})
}

func (f *fixture) optimistic(groupID, id, text string, at int64) {
	f.t.Helper()
	_, err := f.engine.IngestOptimistic(groupID, Record{ID: id, GroupID: groupID, SenderRef: selfRef, Text: text, OccurredAt: at})
	if err != nil {
		f.t.Fatalf("IngestOptimistic failed: %v", err)
	}
}

func ids(records []Record) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.ID
	}
	return out
}

func assertIDs(t *testing.T, records []Record, want ...string) {
	t.Helper()
	got := ids(records)
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Fatalf("Expected ids %v, got %v", want, got)
	}
}

func TestIngestPersistedBatch_Idempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	batch := []envelope.Message{
		f.seal("g1", "D1", peerRef, "hello", baseT),
		f.seal("g1", "D2", selfRef, "hi back", baseT+1000),
		f.seal("g1", "D3", peerRef, "how are you", baseT+2000),
	}

	first := f.engine.IngestPersistedBatch(ctx, "g1", batch)
	if first.Inserted != 3 {
		t.Fatalf("Expected 3 inserted, got %+v", first)
	}
	once := f.engine.Current("g1")

	second := f.engine.IngestPersistedBatch(ctx, "g1", batch)
	if second.Inserted != 0 || second.Duplicates != 3 {
		t.Fatalf("Expected 3 duplicates on re-ingest, got %+v", second)
	}
	twice := f.engine.Current("g1")

	if fmt.Sprint(ids(once)) != fmt.Sprint(ids(twice)) {
		t.Errorf("Transcript changed on re-ingest: %v vs %v", ids(once), ids(twice))
	}
	if got := testutil.ToFloat64(f.metrics.Duplicates); got != 3 {
		t.Errorf("Expected 3 duplicates counted, got %v", got)
	}
}

func TestOptimisticPromotion(t *testing.T) {
	f := newFixture(t)
	f.optimistic("g1", "E1-long-ephemeral-id", "hi", baseT)

	res := f.engine.IngestPersistedBatch(context.Background(), "g1", []envelope.Message{
		f.seal("g1", "D1", selfRef, "hi", baseT+2000),
	})
	if res.Promoted != 1 || res.Inserted != 0 {
		t.Fatalf("Expected one promotion, got %+v", res)
	}

	got := f.engine.Current("g1")
	assertIDs(t, got, "D1")
	if got[0].IDKind != envelope.Durable || got[0].Provenance != Persisted {
		t.Errorf("Expected durable persisted record, got %+v", got[0])
	}
	if got[0].OccurredAt != baseT {
		t.Errorf("Expected promoted record to keep its slot timestamp, got %d", got[0].OccurredAt)
	}
	if testutil.ToFloat64(f.metrics.Promotions) != 1 {
		t.Errorf("Expected promotion to be counted")
	}
}

func TestPushThenPersisted_SingleRecord(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.optimistic("g1", "E1", "on my way", baseT)

	pushed := f.seal("g1", "D7", selfRef, "on my way", baseT+300)
	if res := f.engine.IngestPushed(ctx, "g1", pushed); res.Promoted != 1 {
		t.Fatalf("Expected push to promote, got %+v", res)
	}
	if res := f.engine.IngestPersistedBatch(ctx, "g1", []envelope.Message{pushed}); res.Duplicates != 1 {
		t.Fatalf("Expected persisted copy to be a duplicate, got %+v", res)
	}
	assertIDs(t, f.engine.Current("g1"), "D7")
}

func TestPushedEphemeralEchoIsDuplicate(t *testing.T) {
	f := newFixture(t)
	f.optimistic("g1", "E1", "echo", baseT)

	echo := f.seal("g1", "E1", selfRef, "echo", baseT)
	echo.IDKind = envelope.Ephemeral
	res := f.engine.IngestPushed(context.Background(), "g1", echo)
	if res.Duplicates != 1 {
		t.Fatalf("Expected echo of own ephemeral id to be a duplicate, got %+v", res)
	}
	assertIDs(t, f.engine.Current("g1"), "E1")
}

func TestPromotion_OutsideToleranceDoesNotMerge(t *testing.T) {
	f := newFixture(t)
	f.optimistic("g1", "E1", "hi", baseT)
	f.engine.IngestPersistedBatch(context.Background(), "g1", []envelope.Message{
		f.seal("g1", "D1", selfRef, "hi", baseT+DefaultTolerance.Milliseconds()),
	})
	assertIDs(t, f.engine.Current("g1"), "E1", "D1")
}

func TestPromotion_ContentMismatchNeverMerges(t *testing.T) {
	f := newFixture(t)
	f.optimistic("g1", "E1", "hi", baseT)
	f.engine.IngestPersistedBatch(context.Background(), "g1", []envelope.Message{
		f.seal("g1", "D1", selfRef, "Hi", baseT+10),
	})
	assertIDs(t, f.engine.Current("g1"), "E1", "D1")
}

func TestPromotion_PeerNeverMerges(t *testing.T) {
	f := newFixture(t)
	f.optimistic("g1", "E1", "hi", baseT)
	f.engine.IngestPersistedBatch(context.Background(), "g1", []envelope.Message{
		f.seal("g1", "D1", peerRef, "hi", baseT+10),
	})
	got := f.engine.Current("g1")
	assertIDs(t, got, "E1", "D1")
	if got[1].Author != Peer {
		t.Errorf("Expected peer author, got %s", got[1].Author)
	}
}

func TestPromotion_OldestCandidateWins(t *testing.T) {
	f := newFixture(t)
	f.optimistic("g1", "E1", "ok", baseT)
	f.optimistic("g1", "E2", "ok", baseT+500)

	f.engine.IngestPersistedBatch(context.Background(), "g1", []envelope.Message{
		f.seal("g1", "D1", selfRef, "ok", baseT+600),
	})
	assertIDs(t, f.engine.Current("g1"), "D1", "E2")
}

func TestOptimistic_NonCollapseAcrossGroups(t *testing.T) {
	f := newFixture(t)
	f.optimistic("g1", "E1", "same", baseT)
	f.optimistic("g2", "E2", "same", baseT)

	f.engine.IngestPersistedBatch(context.Background(), "g1", []envelope.Message{
		f.seal("g1", "D1", selfRef, "same", baseT),
	})

	assertIDs(t, f.engine.Current("g1"), "D1")
	assertIDs(t, f.engine.Current("g2"), "E2")
}

func TestOrdering_ByTimeThenInsertion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.engine.IngestPersistedBatch(ctx, "g1", []envelope.Message{
		f.seal("g1", "D3", peerRef, "third", baseT+3000),
		f.seal("g1", "D1", peerRef, "first", baseT+1000),
	})
	f.engine.IngestPushed(ctx, "g1", f.seal("g1", "D2a", peerRef, "tie a", baseT+2000))
	f.engine.IngestPushed(ctx, "g1", f.seal("g1", "D2b", peerRef, "tie b", baseT+2000))

	assertIDs(t, f.engine.Current("g1"), "D1", "D2a", "D2b", "D3")

	// Re-rendering the same data never reorders ties.
	f.engine.IngestPersistedBatch(ctx, "g1", []envelope.Message{
		f.seal("g1", "D2b", peerRef, "tie b", baseT+2000),
		f.seal("g1", "D2a", peerRef, "tie a", baseT+2000),
	})
	assertIDs(t, f.engine.Current("g1"), "D1", "D2a", "D2b", "D3")
}

func TestDecryptFailureDropsOnlyThatRecord(t *testing.T) {
	f := newFixture(t)
	good1 := f.seal("g1", "D1", peerRef, "one", baseT)
	bad := f.seal("g1", "D2", peerRef, "two", baseT+1)
	bad.CiphertextB64 = f.seal("g2", "X", peerRef, "two", baseT+1).CiphertextB64
	garbage := envelope.Message{ID: "D3", GroupID: "g1", CiphertextB64: "!!", NonceB64: "AA==", OccurredAt: baseT + 2}
	misrouted := f.seal("g2", "D4", peerRef, "four", baseT+3)
	good2 := f.seal("g1", "D5", peerRef, "five", baseT+4)

	res := f.engine.IngestPersistedBatch(context.Background(), "g1", []envelope.Message{good1, bad, garbage, misrouted, good2})
	if res.Dropped != 3 || res.Inserted != 2 {
		t.Fatalf("Expected 3 dropped and 2 inserted, got %+v", res)
	}
	assertIDs(t, f.engine.Current("g1"), "D1", "D5")
	if got := testutil.ToFloat64(f.metrics.DecryptFailure); got != 3 {
		t.Errorf("Expected 3 decrypt failures counted, got %v", got)
	}
}

func TestTryBeginLoad_RejectsConcurrentLoad(t *testing.T) {
	f := newFixture(t)
	release, ok := f.engine.TryBeginLoad("g1")
	if !ok {
		t.Fatalf("Expected first load to start")
	}
	if _, ok := f.engine.TryBeginLoad("g1"); ok {
		t.Fatalf("Expected second load to be rejected")
	}
	if _, ok := f.engine.TryBeginLoad("g2"); !ok {
		t.Fatalf("Expected load for another group to start")
	}
	release()
	if _, ok := f.engine.TryBeginLoad("g1"); !ok {
		t.Fatalf("Expected load to start after release")
	}
	if got := testutil.ToFloat64(f.metrics.LoadsRejected); got != 1 {
		t.Errorf("Expected 1 rejected load, got %v", got)
	}
}

func TestTryBeginLoad_ReleaseAfterForgetKeepsNewLoad(t *testing.T) {
	f := newFixture(t)

	releaseA, ok := f.engine.TryBeginLoad("g1")
	if !ok {
		t.Fatalf("Expected load A to start")
	}
	f.engine.Forget("g1")

	releaseB, ok := f.engine.TryBeginLoad("g1")
	if !ok {
		t.Fatalf("Expected load B to start on the fresh group")
	}
	releaseA()

	if _, ok := f.engine.TryBeginLoad("g1"); ok {
		t.Fatalf("Load C started while B is still in flight")
	}
	releaseB()
	releaseB()
	if _, ok := f.engine.TryBeginLoad("g1"); !ok {
		t.Fatalf("Expected a load to start once B is released")
	}
}

// blockingOpener parks inside OpenMessage until released.
type blockingOpener struct {
	inner   Opener
	entered chan struct{}
	release chan struct{}
}

func (b *blockingOpener) OpenMessage(ctx context.Context, m envelope.Message) (Record, error) {
	b.entered <- struct{}{}
	<-b.release
	return b.inner.OpenMessage(ctx, m)
}

func TestForget_DiscardsInFlightResults(t *testing.T) {
	f := newFixture(t)
	blocker := &blockingOpener{inner: f.opener, entered: make(chan struct{}), release: make(chan struct{})}
	engine := New(blocker, Options{})

	done := make(chan Result)
	go func() {
		done <- engine.IngestPersistedBatch(context.Background(), "g1", []envelope.Message{
			f.seal("g1", "D1", peerRef, "late", baseT),
		})
	}()

	<-blocker.entered
	engine.Forget("g1")
	close(blocker.release)

	res := <-done
	if !res.Discarded {
		t.Fatalf("Expected result to be discarded, got %+v", res)
	}
	if got := engine.Current("g1"); len(got) != 0 {
		t.Errorf("Expected forgotten group to stay empty, got %v", ids(got))
	}
}

func TestCurrent_ReturnsIsolatedCopy(t *testing.T) {
	f := newFixture(t)
	f.optimistic("g1", "E1", "mine", baseT)

	view := f.engine.Current("g1")
	view[0].Text = "mutated"

	if f.engine.Current("g1")[0].Text != "mine" {
		t.Errorf("Mutating a read view changed the engine's transcript")
	}
}

func TestCurrent_UnknownGroupIsEmpty(t *testing.T) {
	f := newFixture(t)
	if got := f.engine.Current("nope"); got != nil {
		t.Errorf("Expected nil transcript, got %v", got)
	}
}

func TestIngestOptimistic_Validation(t *testing.T) {
	f := newFixture(t)
	if _, err := f.engine.IngestOptimistic("g1", Record{ID: "", GroupID: "g1", Text: "x", OccurredAt: baseT}); err == nil {
		t.Errorf("Expected error for missing id")
	}
	if _, err := f.engine.IngestOptimistic("g1", Record{ID: "E1", GroupID: "g2", Text: "x", OccurredAt: baseT}); err == nil {
		t.Errorf("Expected error for mismatched group")
	}
	if _, err := f.engine.IngestOptimistic("g1", Record{ID: "D1", IDKind: envelope.Durable, GroupID: "g1", Text: "x"}); err == nil {
		t.Errorf("Expected error for durable optimistic id")
	}
}

func TestIngestFileAndRemove(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.engine.IngestPushed(ctx, "g1", f.seal("g1", "D1", peerRef, "see attached", baseT))

	_, err := f.engine.IngestFile("g1", Record{
		ID: "F1", GroupID: "g1", Author: Self, SenderRef: selfRef, OccurredAt: baseT + 10,
		File: &FileInfo{Name: "plan.pdf", MIMEType: "application/pdf", SizeBytes: 10},
	})
	if err != nil {
		t.Fatalf("IngestFile failed: %v", err)
	}

	files := f.engine.Files("g1")
	if len(files) != 1 || files[0].Label() != "plan.pdf" {
		t.Fatalf("Expected plan.pdf in files, got %+v", files)
	}
	if s := f.engine.Stats("g1"); s.Records != 2 || s.Files != 1 || s.Ephemeral != 0 {
		t.Errorf("Unexpected stats %+v", s)
	}

	if !f.engine.Remove("g1", envelope.Durable, "F1") {
		t.Fatalf("Expected Remove to report removal")
	}
	if f.engine.Remove("g1", envelope.Durable, "F1") {
		t.Errorf("Expected second Remove to be a no-op")
	}
	assertIDs(t, f.engine.Current("g1"), "D1")

	f.optimistic("g1", "E9", "never sent", baseT+20)
	if f.engine.Remove("g1", envelope.Durable, "E9") {
		t.Errorf("Expected id kind to be respected")
	}
	if !f.engine.Remove("g1", envelope.Ephemeral, "E9") {
		t.Errorf("Expected optimistic record to be retracted")
	}
	assertIDs(t, f.engine.Current("g1"), "D1")
}

func TestConcurrentIngestion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var msgs []envelope.Message
	for i := 0; i < 50; i++ {
		msgs = append(msgs, f.seal("g1", fmt.Sprintf("D%02d", i), peerRef, fmt.Sprintf("m%d", i), baseT+int64(i)))
	}

	var wg sync.WaitGroup
	for _, m := range msgs {
		wg.Add(2)
		go func(m envelope.Message) {
			defer wg.Done()
			f.engine.IngestPushed(ctx, "g1", m)
		}(m)
		go func(m envelope.Message) {
			defer wg.Done()
			f.engine.IngestPersistedBatch(ctx, "g1", []envelope.Message{m})
		}(m)
	}
	wg.Wait()

	got := f.engine.Current("g1")
	if len(got) != 50 {
		t.Fatalf("Expected 50 records, got %d", len(got))
	}
	for i, r := range got {
		if want := fmt.Sprintf("D%02d", i); r.ID != want {
			t.Fatalf("Expected %s at %d, got %s", want, i, r.ID)
		}
	}
}
