package redisrelay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/PolarWolf314/cipherroom/internal/envelope"
	kerrors "github.com/PolarWolf314/cipherroom/internal/errors"
	"github.com/PolarWolf314/cipherroom/internal/keys"
	"github.com/PolarWolf314/cipherroom/internal/relay"
)

// DefaultPrefix namespaces every key the relay writes.
const DefaultPrefix = "cipherroom:"

// Relay implements relay.Relay on top of Redis, acting as one member.
type Relay struct {
	client    *redis.Client
	memberRef string
	prefix    string
}

var _ relay.Relay = (*Relay)(nil)

// New connects to redisURL and checks the connection.
func New(redisURL, memberRef string) (*Relay, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, transport("connect to redis", err)
	}

	return NewWithClient(client, memberRef), nil
}

// NewWithClient creates a relay from an existing Redis client.
func NewWithClient(client *redis.Client, memberRef string) *Relay {
	return &Relay{client: client, memberRef: memberRef, prefix: DefaultPrefix}
}

func (r *Relay) groupKey(id string) string { return r.prefix + "group:" + id }
func (r *Relay) inviteKey(secret string) string { return r.prefix + "invite:" + secret }
func (r *Relay) memberKey(ref string) string { return r.prefix + "member:" + ref }
func (r *Relay) historyKey(id string) string { return r.prefix + "history:" + id }
func (r *Relay) seqKey() string { return r.prefix + "seq" }
func (r *Relay) fileKey(id string) string { return r.prefix + "file:" + id }
func (r *Relay) filesKey(groupID string) string { return r.prefix + "files:" + groupID }
func (r *Relay) roomChannel(id string) string { return r.prefix + "room:" + id }

func (r *Relay) ListGroups(ctx context.Context) ([]relay.Group, error) {
	ids, err := r.client.SMembers(ctx, r.memberKey(r.memberRef)).Result()
	if err != nil {
		return nil, transport("list groups", err)
	}

	groups := make([]relay.Group, 0, len(ids))
	for _, id := range ids {
		g, err := r.loadGroup(ctx, id)
		if errors.Is(err, kerrors.ErrGroupNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}
	sort.Slice(groups, func(i, j int) bool {
		if groups[i].Name != groups[j].Name {
			return groups[i].Name < groups[j].Name
		}
		return groups[i].ID < groups[j].ID
	})
	return groups, nil
}

func (r *Relay) CreateGroup(ctx context.Context, name string) (relay.Group, error) {
	g := relay.Group{ID: uuid.NewString(), Name: name}

	// Invite secrets are unique; retry on the rare collision.
	for attempt := 0; ; attempt++ {
		secret, err := relay.NewInviteSecret()
		if err != nil {
			return relay.Group{}, err
		}
		ok, err := r.client.SetNX(ctx, r.inviteKey(secret), g.ID, 0).Result()
		if err != nil {
			return relay.Group{}, transport("reserve invite", err)
		}
		if ok {
			g.Secret = secret
			break
		}
		if attempt == 4 {
			return relay.Group{}, fmt.Errorf("%w: could not allocate an invite secret", kerrors.ErrTransport)
		}
	}

	_, err := r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, r.groupKey(g.ID), "name", g.Name, "secret", g.Secret)
		p.SAdd(ctx, r.memberKey(r.memberRef), g.ID)
		return nil
	})
	if err != nil {
		return relay.Group{}, transport("create group", err)
	}
	return g, nil
}

func (r *Relay) JoinGroup(ctx context.Context, secret string) (relay.Group, error) {
	id, err := r.client.Get(ctx, r.inviteKey(keys.Normalize(secret))).Result()
	if err == redis.Nil {
		return relay.Group{}, fmt.Errorf("%w: no group for that invite", kerrors.ErrGroupNotFound)
	}
	if err != nil {
		return relay.Group{}, transport("look up invite", err)
	}

	if err := r.client.SAdd(ctx, r.memberKey(r.memberRef), id).Err(); err != nil {
		return relay.Group{}, transport("join group", err)
	}
	return r.loadGroup(ctx, id)
}

func (r *Relay) FetchHistory(ctx context.Context, groupID string) ([]envelope.Message, error) {
	if err := r.requireMember(ctx, groupID); err != nil {
		return nil, err
	}
	raw, err := r.client.LRange(ctx, r.historyKey(groupID), 0, -1).Result()
	if err != nil {
		return nil, transport("fetch history", err)
	}

	msgs := make([]envelope.Message, 0, len(raw))
	for _, item := range raw {
		var m envelope.Message
		// Unreadable entries are skipped; the caller validates what remains.
		if err := json.Unmarshal([]byte(item), &m); err != nil {
			continue
		}
		msgs = append(msgs, m)
	}
	return msgs, nil
}

func (r *Relay) PersistMessage(ctx context.Context, m envelope.Message) (relay.Ack, error) {
	if err := m.Validate(); err != nil {
		return relay.Ack{}, err
	}
	if err := r.requireMember(ctx, m.GroupID); err != nil {
		return relay.Ack{}, err
	}

	seq, err := r.client.Incr(ctx, r.seqKey()).Result()
	if err != nil {
		return relay.Ack{}, transport("allocate message id", err)
	}
	m.ID = fmt.Sprintf("%08d", seq)
	m.IDKind = envelope.Durable

	data, err := envelope.Marshal(m)
	if err != nil {
		return relay.Ack{}, fmt.Errorf("marshal message: %w", err)
	}
	if err := r.client.RPush(ctx, r.historyKey(m.GroupID), data).Err(); err != nil {
		return relay.Ack{}, transport("persist message", err)
	}
	return relay.Ack{ID: m.ID, OccurredAt: m.OccurredAt}, nil
}

func (r *Relay) UploadFile(ctx context.Context, f envelope.File, blob []byte) (relay.FileMetadata, error) {
	if err := r.requireMember(ctx, f.GroupID); err != nil {
		return relay.FileMetadata{}, err
	}
	f.ID = uuid.NewString()

	meta, err := json.Marshal(f)
	if err != nil {
		return relay.FileMetadata{}, fmt.Errorf("marshal file metadata: %w", err)
	}
	_, err = r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, r.fileKey(f.ID), "meta", meta, "blob", blob)
		p.SAdd(ctx, r.filesKey(f.GroupID), f.ID)
		return nil
	})
	if err != nil {
		return relay.FileMetadata{}, transport("upload file", err)
	}
	return relay.MetadataOf(f), nil
}

func (r *Relay) DownloadFile(ctx context.Context, fileID string) (envelope.File, []byte, error) {
	vals, err := r.client.HMGet(ctx, r.fileKey(fileID), "meta", "blob").Result()
	if err != nil {
		return envelope.File{}, nil, transport("download file", err)
	}
	metaRaw, ok1 := vals[0].(string)
	blobRaw, ok2 := vals[1].(string)
	if !ok1 || !ok2 {
		return envelope.File{}, nil, fmt.Errorf("%w: %s", kerrors.ErrFileNotFound, fileID)
	}

	var f envelope.File
	if err := json.Unmarshal([]byte(metaRaw), &f); err != nil {
		return envelope.File{}, nil, fmt.Errorf("%w: file metadata: %v", kerrors.ErrInvalidEnvelope, err)
	}
	if err := r.requireMember(ctx, f.GroupID); err != nil {
		return envelope.File{}, nil, err
	}
	return f, []byte(blobRaw), nil
}

func (r *Relay) DeleteFile(ctx context.Context, fileID string) error {
	f, err := r.fileMeta(ctx, fileID)
	if err != nil {
		return err
	}
	if err := r.requireMember(ctx, f.GroupID); err != nil {
		return err
	}

	_, err = r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, r.fileKey(fileID))
		p.SRem(ctx, r.filesKey(f.GroupID), fileID)
		return nil
	})
	if err != nil {
		return transport("delete file", err)
	}
	return nil
}

func (r *Relay) ListFiles(ctx context.Context, groupID string) ([]relay.FileMetadata, error) {
	if err := r.requireMember(ctx, groupID); err != nil {
		return nil, err
	}
	ids, err := r.client.SMembers(ctx, r.filesKey(groupID)).Result()
	if err != nil {
		return nil, transport("list files", err)
	}

	out := make([]relay.FileMetadata, 0, len(ids))
	for _, id := range ids {
		f, err := r.fileMeta(ctx, id)
		if errors.Is(err, kerrors.ErrFileNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, relay.MetadataOf(f))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].OccurredAt != out[j].OccurredAt {
			return out[i].OccurredAt < out[j].OccurredAt
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// Subscribe listens on the group's pub/sub channel. The handler runs on a
// dedicated goroutine, one message at a time, until the subscription is
// closed or ctx ends.
func (r *Relay) Subscribe(ctx context.Context, groupID string, handler func(envelope.Message)) (relay.Subscription, error) {
	if err := r.requireMember(ctx, groupID); err != nil {
		return nil, err
	}

	ps := r.client.Subscribe(ctx, r.roomChannel(groupID))
	// Wait for the confirmation so no publish after this call is missed.
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, transport("subscribe", err)
	}

	sub := &subscription{ps: ps, done: make(chan struct{})}
	ch := ps.Channel()
	go func() {
		defer close(sub.done)
		for {
			select {
			case <-ctx.Done():
				sub.closePubSub()
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var m envelope.Message
				if err := json.Unmarshal([]byte(msg.Payload), &m); err != nil {
					continue
				}
				handler(m)
			}
		}
	}()
	return sub, nil
}

func (r *Relay) Publish(ctx context.Context, m envelope.Message) error {
	data, err := envelope.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	if err := r.client.Publish(ctx, r.roomChannel(m.GroupID), data).Err(); err != nil {
		return transport("publish", err)
	}
	return nil
}

// Close closes the Redis connection.
func (r *Relay) Close() error {
	return r.client.Close()
}

// Ping checks if Redis is reachable.
func (r *Relay) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return transport("ping", err)
	}
	return nil
}

func (r *Relay) loadGroup(ctx context.Context, id string) (relay.Group, error) {
	vals, err := r.client.HGetAll(ctx, r.groupKey(id)).Result()
	if err != nil {
		return relay.Group{}, transport("load group", err)
	}
	if len(vals) == 0 {
		return relay.Group{}, fmt.Errorf("%w: %s", kerrors.ErrGroupNotFound, id)
	}
	return relay.Group{ID: id, Name: vals["name"], Secret: vals["secret"]}, nil
}

func (r *Relay) requireMember(ctx context.Context, groupID string) error {
	ok, err := r.client.SIsMember(ctx, r.memberKey(r.memberRef), groupID).Result()
	if err != nil {
		return transport("check membership", err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", kerrors.ErrGroupNotFound, groupID)
	}
	return nil
}

func (r *Relay) fileMeta(ctx context.Context, fileID string) (envelope.File, error) {
	raw, err := r.client.HGet(ctx, r.fileKey(fileID), "meta").Result()
	if err == redis.Nil {
		return envelope.File{}, fmt.Errorf("%w: %s", kerrors.ErrFileNotFound, fileID)
	}
	if err != nil {
		return envelope.File{}, transport("read file metadata", err)
	}
	var f envelope.File
	if err := json.Unmarshal([]byte(raw), &f); err != nil {
		return envelope.File{}, fmt.Errorf("%w: file metadata: %v", kerrors.ErrInvalidEnvelope, err)
	}
	return f, nil
}

type subscription struct {
	ps   *redis.PubSub
	done chan struct{}
	once sync.Once
	err  error
}

// Close stops the handler goroutine and waits for it to exit. It is safe to
// call after ctx has already ended the subscription.
func (s *subscription) Close() error {
	err := s.closePubSub()
	<-s.done
	return err
}

// closePubSub closes the underlying PubSub exactly once; go-redis reports an
// error on a second close.
func (s *subscription) closePubSub() error {
	s.once.Do(func() {
		s.err = s.ps.Close()
	})
	return s.err
}

func transport(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", kerrors.ErrTransport, op, err)
}
