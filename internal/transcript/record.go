package transcript

import (
	"fmt"

	"github.com/PolarWolf314/cipherroom/internal/envelope"
)

// Provenance is where a record came from. It decides merge precedence.
type Provenance string

const (
	// Optimistic records are the sender's own writes, shown before the relay confirms them.
	Optimistic Provenance = "optimistic"

	// Pushed records arrived over the realtime channel.
	Pushed Provenance = "pushed"

	// Persisted records came from a history fetch or a relay acknowledgement.
	Persisted Provenance = "persisted"
)

// Author says whether the local user wrote a record.
type Author string

const (
	Self Author = "self"
	Peer Author = "peer"
)

// Kind separates chat messages from shared files.
type Kind string

const (
	KindMessage Kind = "message"
	KindFile    Kind = "file"
)

// FileInfo describes a file record. The file contents are not held in the
// transcript; they are downloaded and decrypted on demand.
type FileInfo struct {
	Name      string
	MIMEType  string
	SizeBytes int64
}

// Record is one decrypted unit of a group's conversation.
type Record struct {
	ID         string
	IDKind     envelope.IDKind
	GroupID    string
	Kind       Kind
	Author     Author
	SenderRef  string
	Text       string
	File       *FileInfo
	OccurredAt int64 // ms since epoch, as supplied by the sender
	Provenance Provenance
	Digest     string

	seq uint64
}

// Ref points at a record inside a transcript.
type Ref struct {
	GroupID string
	ID      string
	Index   int
}

// Label is the searchable text of a record: message text or file name.
func (r Record) Label() string {
	if r.Kind == KindFile && r.File != nil {
		return r.File.Name
	}
	return r.Text
}

type idKey struct {
	kind envelope.IDKind
	id   string
}

func (r Record) key() idKey {
	return idKey{kind: r.IDKind, id: r.ID}
}

func (r Record) validate(groupID string) error {
	switch {
	case r.ID == "":
		return fmt.Errorf("record has no id")
	case r.GroupID != groupID:
		return fmt.Errorf("record %s belongs to group %q, not %q", r.ID, r.GroupID, groupID)
	case r.IDKind != envelope.Ephemeral && r.IDKind != envelope.Durable:
		return fmt.Errorf("record %s has unknown id kind %q", r.ID, r.IDKind)
	case r.Kind == KindFile && r.File == nil:
		return fmt.Errorf("file record %s has no file info", r.ID)
	}
	return nil
}
