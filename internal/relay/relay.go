package relay

import (
	"context"
	"crypto/rand"
	"fmt"

	"github.com/PolarWolf314/cipherroom/internal/envelope"
)

// Group is a collaboration room as the relay knows it.
type Group struct {
	ID     string
	Name   string
	Secret string
}

// Ack is the relay's confirmation of a persisted message.
type Ack struct {
	ID         string
	OccurredAt int64
}

// FileMetadata describes a stored file without its blob.
type FileMetadata struct {
	ID         string
	GroupID    string
	SenderRef  string
	Name       string
	MIMEType   string
	SizeBytes  int64
	OccurredAt int64
}

// Directory manages group membership for one member.
type Directory interface {
	ListGroups(ctx context.Context) ([]Group, error)
	CreateGroup(ctx context.Context, name string) (Group, error)
	// JoinGroup adds the member to the group whose invite secret matches.
	// The secret is compared in normalized form.
	JoinGroup(ctx context.Context, secret string) (Group, error)
}

// History stores encrypted messages.
type History interface {
	// FetchHistory returns a group's persisted messages, oldest first.
	FetchHistory(ctx context.Context, groupID string) ([]envelope.Message, error)
	// PersistMessage stores m under a newly assigned durable id.
	PersistMessage(ctx context.Context, m envelope.Message) (Ack, error)
}

// Files stores encrypted file blobs and their metadata.
type Files interface {
	UploadFile(ctx context.Context, f envelope.File, blob []byte) (FileMetadata, error)
	DownloadFile(ctx context.Context, fileID string) (envelope.File, []byte, error)
	DeleteFile(ctx context.Context, fileID string) error
	ListFiles(ctx context.Context, groupID string) ([]FileMetadata, error)
}

// Subscription is a live realtime feed.
type Subscription interface {
	Close() error
}

// Realtime pushes messages to subscribers of a group.
type Realtime interface {
	Subscribe(ctx context.Context, groupID string, handler func(envelope.Message)) (Subscription, error)
	Publish(ctx context.Context, m envelope.Message) error
}

// Relay is everything a client needs from the server side.
type Relay interface {
	Directory
	History
	Files
	Realtime
	Close() error
}

// MetadataOf extracts the listing view of a stored file.
func MetadataOf(f envelope.File) FileMetadata {
	return FileMetadata{
		ID:         f.ID,
		GroupID:    f.GroupID,
		SenderRef:  f.SenderRef,
		Name:       f.OriginalFilename,
		MIMEType:   f.MIMEType,
		SizeBytes:  f.OriginalSizeBytes,
		OccurredAt: f.OccurredAt,
	}
}

// inviteAlphabet leaves out characters that are easy to misread.
const inviteAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// InviteLength is the number of characters in a generated invite secret.
const InviteLength = 12

// NewInviteSecret returns a random invite secret, already in normalized form.
func NewInviteSecret() (string, error) {
	buf := make([]byte, InviteLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate invite secret: %w", err)
	}
	for i, b := range buf {
		// 256 is a multiple of len(inviteAlphabet), so this is unbiased.
		buf[i] = inviteAlphabet[int(b)%len(inviteAlphabet)]
	}
	return string(buf), nil
}
