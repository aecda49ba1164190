package transcript

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/PolarWolf314/cipherroom/internal/envelope"
	kerrors "github.com/PolarWolf314/cipherroom/internal/errors"
	logger "github.com/PolarWolf314/cipherroom/internal/logging"
	"github.com/PolarWolf314/cipherroom/internal/metrics"
)

// DefaultTolerance is the widest timestamp gap at which a confirmed record
// still matches the optimistic record it confirms.
const DefaultTolerance = 10 * time.Second

// Opener turns a wire message into a plaintext record. Implementations set
// Author from the sender ref; the engine sets Provenance.
type Opener interface {
	OpenMessage(ctx context.Context, m envelope.Message) (Record, error)
}

// Options configures an Engine.
type Options struct {
	// Tolerance overrides DefaultTolerance when positive.
	Tolerance time.Duration

	Logger  logger.Logger
	Metrics *metrics.Reconcile
}

// Result summarizes one ingestion call.
type Result struct {
	Inserted   int
	Promoted   int
	Duplicates int
	Dropped    int

	// Discarded is set when the group was forgotten while the call ran;
	// its outcome was thrown away.
	Discarded bool
}

// Stats describes a group's current transcript.
type Stats struct {
	Records   int
	Ephemeral int
	Files     int
}

// Engine owns the merged transcript of every group. Ingestion for one group
// is serialized; different groups proceed independently. Readers always see
// the result of a completed merge.
type Engine struct {
	opener    Opener
	log       logger.Logger
	metrics   *metrics.Reconcile
	tolerance int64

	mu     sync.Mutex
	groups map[string]*group
}

type group struct {
	id string

	mu      sync.Mutex // held for the whole of an ingestion, decrypt included
	nextSeq uint64

	loading  atomic.Bool
	snapshot atomic.Pointer[[]Record]
}

func New(opener Opener, opts Options) *Engine {
	tolerance := opts.Tolerance
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	m := opts.Metrics
	if m == nil {
		m = metrics.NewReconcile(nil)
	}
	return &Engine{
		opener:    opener,
		log:       opts.Logger,
		metrics:   m,
		tolerance: tolerance.Milliseconds(),
		groups:    make(map[string]*group),
	}
}

// IngestPersistedBatch merges records fetched from history. Records that fail
// to decode or decrypt are logged and dropped; the rest of the batch is merged.
func (e *Engine) IngestPersistedBatch(ctx context.Context, groupID string, batch []envelope.Message) Result {
	return e.ingestEncrypted(ctx, groupID, batch, Persisted)
}

// IngestPushed merges one record delivered over the realtime channel.
func (e *Engine) IngestPushed(ctx context.Context, groupID string, m envelope.Message) Result {
	return e.ingestEncrypted(ctx, groupID, []envelope.Message{m}, Pushed)
}

// IngestOptimistic records the local user's own write before the relay has
// confirmed it. The record must carry an ephemeral id.
func (e *Engine) IngestOptimistic(groupID string, rec Record) (Result, error) {
	rec.Provenance = Optimistic
	rec.Author = Self
	if rec.Kind == "" {
		rec.Kind = KindMessage
	}
	if rec.IDKind == "" {
		rec.IDKind = envelope.Ephemeral
	}
	if rec.IDKind != envelope.Ephemeral {
		return Result{}, fmt.Errorf("optimistic record %s must have an ephemeral id", rec.ID)
	}
	if err := rec.validate(groupID); err != nil {
		return Result{}, err
	}

	g := e.group(groupID)
	g.mu.Lock()
	defer g.mu.Unlock()
	return e.commit(g, []Record{rec}), nil
}

// IngestFile merges a file record, typically after an upload was acknowledged
// or a file listing was fetched. Files are always durable.
func (e *Engine) IngestFile(groupID string, rec Record) (Result, error) {
	rec.Kind = KindFile
	rec.IDKind = envelope.Durable
	if rec.Provenance == "" {
		rec.Provenance = Persisted
	}
	if err := rec.validate(groupID); err != nil {
		return Result{}, err
	}

	g := e.group(groupID)
	g.mu.Lock()
	defer g.mu.Unlock()
	return e.commit(g, []Record{rec}), nil
}

// Remove deletes a record, e.g. a file deleted from the vault or an
// optimistic message whose send failed. It reports whether anything was
// removed.
func (e *Engine) Remove(groupID string, kind envelope.IDKind, id string) bool {
	g := e.lookup(groupID)
	if g == nil {
		return false
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	current := g.load()
	next := make([]Record, 0, len(current))
	for _, r := range current {
		if r.IDKind == kind && r.ID == id {
			continue
		}
		next = append(next, r)
	}
	if len(next) == len(current) {
		return false
	}
	g.snapshot.Store(&next)
	return true
}

// Current returns a copy of the group's ordered transcript.
func (e *Engine) Current(groupID string) []Record {
	g := e.lookup(groupID)
	if g == nil {
		return nil
	}
	current := g.load()
	out := make([]Record, len(current))
	copy(out, current)
	return out
}

// Files returns the file records of the group's transcript, in order.
func (e *Engine) Files(groupID string) []Record {
	var out []Record
	for _, r := range e.Current(groupID) {
		if r.Kind == KindFile {
			out = append(out, r)
		}
	}
	return out
}

// Stats summarizes the group's transcript.
func (e *Engine) Stats(groupID string) Stats {
	var s Stats
	for _, r := range e.Current(groupID) {
		s.Records++
		if r.IDKind == envelope.Ephemeral {
			s.Ephemeral++
		}
		if r.Kind == KindFile {
			s.Files++
		}
	}
	return s
}

// TryBeginLoad marks a history load for groupID as in flight. It returns
// false when a load is already outstanding; the caller must drop its request
// and rely on the running load. On success the returned release func clears
// the flag. It only ever clears the flag it set, so a load that outlives a
// Forget cannot release a load started afterwards.
func (e *Engine) TryBeginLoad(groupID string) (release func(), ok bool) {
	g := e.group(groupID)
	if !g.loading.CompareAndSwap(false, true) {
		e.metrics.LoadsRejected.Inc()
		return func() {}, false
	}
	var once sync.Once
	return func() {
		once.Do(func() { g.loading.Store(false) })
	}, true
}

// Forget tears a group down. Ingestion calls still running for it complete,
// but their results are discarded.
func (e *Engine) Forget(groupID string) {
	e.mu.Lock()
	delete(e.groups, groupID)
	e.mu.Unlock()
}

func (e *Engine) ingestEncrypted(ctx context.Context, groupID string, batch []envelope.Message, prov Provenance) Result {
	g := e.group(groupID)
	g.mu.Lock()
	defer g.mu.Unlock()

	var dropped int
	records := make([]Record, 0, len(batch))
	for _, m := range batch {
		rec, err := e.open(ctx, groupID, m)
		if err != nil {
			dropped++
			e.metrics.DecryptFailure.Inc()
			e.log.Errorf("Dropping record %s in group %s: %v", m.ID, groupID, err)
			continue
		}
		rec.Provenance = prov
		records = append(records, rec)
	}

	res := e.commit(g, records)
	res.Dropped = dropped
	return res
}

func (e *Engine) open(ctx context.Context, groupID string, m envelope.Message) (Record, error) {
	if m.GroupID != groupID {
		return Record{}, fmt.Errorf("%w: envelope addressed to group %q", kerrors.ErrInvalidEnvelope, m.GroupID)
	}
	rec, err := e.opener.OpenMessage(ctx, m)
	if err != nil {
		return Record{}, err
	}
	if rec.Kind == "" {
		rec.Kind = KindMessage
	}
	if rec.IDKind == "" {
		rec.IDKind = m.Kind()
	}
	if err := rec.validate(groupID); err != nil {
		return Record{}, err
	}
	return rec, nil
}

// commit merges incoming into the group's transcript and publishes the
// result. The caller holds g.mu.
func (e *Engine) commit(g *group, incoming []Record) Result {
	next, res := e.merge(g, incoming)
	if !e.owns(g) {
		return Result{Discarded: true}
	}
	g.snapshot.Store(&next)

	e.metrics.Duplicates.Add(float64(res.Duplicates))
	e.metrics.Promotions.Add(float64(res.Promoted))
	return res
}

// merge classifies each incoming record against the current transcript:
// an id already present is a duplicate; a confirmed self record that matches
// an optimistic one promotes it; anything else is inserted. The returned
// slice is new, so readers of the old snapshot are unaffected.
func (e *Engine) merge(g *group, incoming []Record) ([]Record, Result) {
	current := g.load()
	next := make([]Record, len(current), len(current)+len(incoming))
	copy(next, current)

	index := make(map[idKey]int, len(next))
	for i, r := range next {
		index[r.key()] = i
	}

	var res Result
	for _, rec := range incoming {
		if _, dup := index[rec.key()]; dup {
			res.Duplicates++
			continue
		}

		if i := e.promotable(next, rec); i >= 0 {
			delete(index, next[i].key())
			next[i].ID = rec.ID
			next[i].IDKind = envelope.Durable
			next[i].Provenance = rec.Provenance
			if next[i].Digest == "" {
				next[i].Digest = rec.Digest
			}
			index[next[i].key()] = i
			res.Promoted++
			continue
		}

		rec.seq = g.nextSeq
		g.nextSeq++
		next = append(next, rec)
		index[rec.key()] = len(next) - 1
		res.Inserted++
		e.metrics.Ingested.WithLabelValues(string(rec.Provenance)).Inc()
	}

	sort.SliceStable(next, func(i, j int) bool {
		if next[i].OccurredAt != next[j].OccurredAt {
			return next[i].OccurredAt < next[j].OccurredAt
		}
		return next[i].seq < next[j].seq
	})
	return next, res
}

// promotable returns the index of the oldest optimistic record that rec
// confirms, or -1. Matching needs the same author, kind, and exact text, and
// timestamps closer than the tolerance. Two distinct messages with identical
// text sent within the window are indistinguishable and will collapse.
func (e *Engine) promotable(records []Record, rec Record) int {
	if rec.Provenance == Optimistic || rec.IDKind != envelope.Durable || rec.Author != Self {
		return -1
	}
	for i, r := range records {
		if r.Provenance != Optimistic || r.IDKind != envelope.Ephemeral {
			continue
		}
		if r.Author != rec.Author || r.Kind != rec.Kind || r.GroupID != rec.GroupID {
			continue
		}
		if r.Text != rec.Text {
			continue
		}
		if abs(r.OccurredAt-rec.OccurredAt) < e.tolerance {
			return i
		}
	}
	return -1
}

func (e *Engine) group(groupID string) *group {
	e.mu.Lock()
	defer e.mu.Unlock()
	g, ok := e.groups[groupID]
	if !ok {
		g = &group{id: groupID}
		e.groups[groupID] = g
	}
	return g
}

func (e *Engine) lookup(groupID string) *group {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.groups[groupID]
}

func (e *Engine) owns(g *group) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.groups[g.id] == g
}

func (g *group) load() []Record {
	if p := g.snapshot.Load(); p != nil {
		return *p
	}
	return nil
}

func abs(n int64) int64 {
	if n < 0 {
		return -n
	}
	return n
}
