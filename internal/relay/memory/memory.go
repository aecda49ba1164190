package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/PolarWolf314/cipherroom/internal/envelope"
	kerrors "github.com/PolarWolf314/cipherroom/internal/errors"
	"github.com/PolarWolf314/cipherroom/internal/keys"
	"github.com/PolarWolf314/cipherroom/internal/relay"
)

// Hub is an in-process relay shared by any number of clients.
type Hub struct {
	mu      sync.Mutex
	groups  map[string]relay.Group
	invites map[string]string              // normalized secret -> group id
	members map[string]map[string]struct{} // member ref -> group ids
	history map[string][]envelope.Message
	files   map[string]storedFile
	subs    map[string]map[int]func(envelope.Message)
	seq     uint64
	nextSub int
	failure error
}

type storedFile struct {
	meta envelope.File
	blob []byte
}

func NewHub() *Hub {
	return &Hub{
		groups:  make(map[string]relay.Group),
		invites: make(map[string]string),
		members: make(map[string]map[string]struct{}),
		history: make(map[string][]envelope.Message),
		files:   make(map[string]storedFile),
		subs:    make(map[string]map[int]func(envelope.Message)),
	}
}

// Client returns a relay view acting as memberRef.
func (h *Hub) Client(memberRef string) *Client {
	return &Client{hub: h, ref: memberRef}
}

// SetFailure makes every subsequent call fail as a transport error until it
// is called again with nil.
func (h *Hub) SetFailure(err error) {
	h.mu.Lock()
	h.failure = err
	h.mu.Unlock()
}

// Subscribers reports how many live subscriptions a group has.
func (h *Hub) Subscribers(groupID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[groupID])
}

// Client is one member's connection to a Hub.
type Client struct {
	hub    *Hub
	ref    string
	closed atomic.Bool
}

var _ relay.Relay = (*Client)(nil)

func (c *Client) ListGroups(ctx context.Context) ([]relay.Group, error) {
	h, unlock, err := c.lock()
	if err != nil {
		return nil, err
	}
	defer unlock()

	var out []relay.Group
	for id := range h.members[c.ref] {
		out = append(out, h.groups[id])
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (c *Client) CreateGroup(ctx context.Context, name string) (relay.Group, error) {
	h, unlock, err := c.lock()
	if err != nil {
		return relay.Group{}, err
	}
	defer unlock()

	var secret string
	for {
		if secret, err = relay.NewInviteSecret(); err != nil {
			return relay.Group{}, err
		}
		if _, taken := h.invites[secret]; !taken {
			break
		}
	}

	g := relay.Group{ID: uuid.NewString(), Name: name, Secret: secret}
	h.groups[g.ID] = g
	h.invites[secret] = g.ID
	h.join(c.ref, g.ID)
	return g, nil
}

func (c *Client) JoinGroup(ctx context.Context, secret string) (relay.Group, error) {
	h, unlock, err := c.lock()
	if err != nil {
		return relay.Group{}, err
	}
	defer unlock()

	id, ok := h.invites[keys.Normalize(secret)]
	if !ok {
		return relay.Group{}, fmt.Errorf("%w: no group for that invite", kerrors.ErrGroupNotFound)
	}
	h.join(c.ref, id)
	return h.groups[id], nil
}

func (c *Client) FetchHistory(ctx context.Context, groupID string) ([]envelope.Message, error) {
	h, unlock, err := c.lock()
	if err != nil {
		return nil, err
	}
	defer unlock()

	if err := h.member(c.ref, groupID); err != nil {
		return nil, err
	}
	out := make([]envelope.Message, len(h.history[groupID]))
	copy(out, h.history[groupID])
	return out, nil
}

func (c *Client) PersistMessage(ctx context.Context, m envelope.Message) (relay.Ack, error) {
	if err := m.Validate(); err != nil {
		return relay.Ack{}, err
	}
	h, unlock, err := c.lock()
	if err != nil {
		return relay.Ack{}, err
	}
	defer unlock()

	if err := h.member(c.ref, m.GroupID); err != nil {
		return relay.Ack{}, err
	}
	h.seq++
	m.ID = fmt.Sprintf("%08x", h.seq)
	m.IDKind = envelope.Durable
	h.history[m.GroupID] = append(h.history[m.GroupID], m)
	return relay.Ack{ID: m.ID, OccurredAt: m.OccurredAt}, nil
}

func (c *Client) UploadFile(ctx context.Context, f envelope.File, blob []byte) (relay.FileMetadata, error) {
	h, unlock, err := c.lock()
	if err != nil {
		return relay.FileMetadata{}, err
	}
	defer unlock()

	if err := h.member(c.ref, f.GroupID); err != nil {
		return relay.FileMetadata{}, err
	}
	f.ID = uuid.NewString()
	h.files[f.ID] = storedFile{meta: f, blob: append([]byte(nil), blob...)}
	return relay.MetadataOf(f), nil
}

func (c *Client) DownloadFile(ctx context.Context, fileID string) (envelope.File, []byte, error) {
	h, unlock, err := c.lock()
	if err != nil {
		return envelope.File{}, nil, err
	}
	defer unlock()

	sf, ok := h.files[fileID]
	if !ok {
		return envelope.File{}, nil, fmt.Errorf("%w: %s", kerrors.ErrFileNotFound, fileID)
	}
	if err := h.member(c.ref, sf.meta.GroupID); err != nil {
		return envelope.File{}, nil, err
	}
	return sf.meta, append([]byte(nil), sf.blob...), nil
}

func (c *Client) DeleteFile(ctx context.Context, fileID string) error {
	h, unlock, err := c.lock()
	if err != nil {
		return err
	}
	defer unlock()

	sf, ok := h.files[fileID]
	if !ok {
		return fmt.Errorf("%w: %s", kerrors.ErrFileNotFound, fileID)
	}
	if err := h.member(c.ref, sf.meta.GroupID); err != nil {
		return err
	}
	delete(h.files, fileID)
	return nil
}

func (c *Client) ListFiles(ctx context.Context, groupID string) ([]relay.FileMetadata, error) {
	h, unlock, err := c.lock()
	if err != nil {
		return nil, err
	}
	defer unlock()

	if err := h.member(c.ref, groupID); err != nil {
		return nil, err
	}
	var out []relay.FileMetadata
	for _, sf := range h.files {
		if sf.meta.GroupID == groupID {
			out = append(out, relay.MetadataOf(sf.meta))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].OccurredAt != out[j].OccurredAt {
			return out[i].OccurredAt < out[j].OccurredAt
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// Subscribe registers handler for pushes to groupID. Handlers run on the
// publisher's goroutine.
func (c *Client) Subscribe(ctx context.Context, groupID string, handler func(envelope.Message)) (relay.Subscription, error) {
	h, unlock, err := c.lock()
	if err != nil {
		return nil, err
	}
	defer unlock()

	if err := h.member(c.ref, groupID); err != nil {
		return nil, err
	}
	h.nextSub++
	id := h.nextSub
	if h.subs[groupID] == nil {
		h.subs[groupID] = make(map[int]func(envelope.Message))
	}
	h.subs[groupID][id] = handler
	return &subscription{hub: h, groupID: groupID, id: id}, nil
}

// Publish delivers m to every subscriber of its group, the sender included,
// before returning.
func (c *Client) Publish(ctx context.Context, m envelope.Message) error {
	h, unlock, err := c.lock()
	if err != nil {
		return err
	}
	if err := h.member(c.ref, m.GroupID); err != nil {
		unlock()
		return err
	}
	ids := make([]int, 0, len(h.subs[m.GroupID]))
	for id := range h.subs[m.GroupID] {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	handlers := make([]func(envelope.Message), len(ids))
	for i, id := range ids {
		handlers[i] = h.subs[m.GroupID][id]
	}
	unlock()

	for _, fn := range handlers {
		fn(m)
	}
	return nil
}

func (c *Client) Close() error {
	c.closed.Store(true)
	return nil
}

// lock acquires the hub, failing if the client is closed or a failure is set.
func (c *Client) lock() (*Hub, func(), error) {
	if c.closed.Load() {
		return nil, nil, fmt.Errorf("%w: relay client is closed", kerrors.ErrTransport)
	}
	h := c.hub
	h.mu.Lock()
	if h.failure != nil {
		err := h.failure
		h.mu.Unlock()
		return nil, nil, fmt.Errorf("%w: %v", kerrors.ErrTransport, err)
	}
	return h, h.mu.Unlock, nil
}

func (h *Hub) join(ref, groupID string) {
	if h.members[ref] == nil {
		h.members[ref] = make(map[string]struct{})
	}
	h.members[ref][groupID] = struct{}{}
}

func (h *Hub) member(ref, groupID string) error {
	if _, ok := h.members[ref][groupID]; !ok {
		return fmt.Errorf("%w: %s", kerrors.ErrGroupNotFound, groupID)
	}
	return nil
}

type subscription struct {
	hub     *Hub
	groupID string
	id      int
	once    sync.Once
}

func (s *subscription) Close() error {
	s.once.Do(func() {
		s.hub.mu.Lock()
		delete(s.hub.subs[s.groupID], s.id)
		s.hub.mu.Unlock()
	})
	return nil
}
