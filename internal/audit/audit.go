package audit

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Operation names written to the trail.
const (
	OpCreateGroup = "create-group"
	OpJoinGroup   = "join-group"
	OpSend        = "send"
	OpUpload      = "upload"
	OpDownload    = "download"
	OpDelete      = "delete"
)

// Entry represents a single audit log entry. It never carries plaintext.
type Entry struct {
	Timestamp string `json:"ts"`     // RFC3339 with microseconds.
	Sender    string `json:"sender"` // Sender ref of the local user.
	Operation string `json:"op"`     // Operation name.

	// Optional fields depending on operation.
	GroupID   string `json:"group,omitempty"`
	RecordID  string `json:"record,omitempty"` // Durable id of the message or file.
	Digest    string `json:"digest,omitempty"` // Integrity digest of the plaintext.
	SizeBytes int64  `json:"size,omitempty"`   // For file operations.
	Suite     string `json:"suite,omitempty"`  // For send/upload.
}

// Trail appends entries to a JSON Lines file.
type Trail struct {
	path   string
	sender string
	mu     sync.Mutex
}

// New returns a trail writing to path on behalf of sender. An empty path
// disables logging.
func New(path, sender string) *Trail {
	return &Trail{path: path, sender: sender}
}

// Path returns the path to the audit log file.
func (t *Trail) Path() string {
	if t == nil {
		return ""
	}
	return t.path
}

// Log appends an entry to the audit log.
// If logging fails, it does not return an error.
// Operations should not fail just because audit logging failed.
func (t *Trail) Log(entry Entry) {
	if t == nil || t.path == "" {
		return
	}
	if entry.Timestamp == "" {
		entry.Timestamp = time.Now().UTC().Format("2006-01-02T15:04:05.000000Z")
	}
	if entry.Sender == "" {
		entry.Sender = t.sender
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(t.path), 0700); err != nil {
		return
	}
	f, err := os.OpenFile(t.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return
	}
	defer f.Close()

	_, _ = f.Write(append(data, '\n'))
}

// ReadEntries reads all entries from the audit log.
// Returns an empty slice if the log doesn't exist.
func (t *Trail) ReadEntries() ([]Entry, error) {
	if t.Path() == "" {
		return nil, nil
	}

	data, err := os.ReadFile(t.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return ParseEntries(data)
}

// ParseEntries parses JSON Lines data into audit entries.
// Malformed lines are silently skipped.
func ParseEntries(data []byte) ([]Entry, error) {
	if len(data) == 0 {
		return nil, nil
	}

	var entries []Entry
	start := 0

	for i := 0; i <= len(data); i++ {
		if i == len(data) || data[i] == '\n' {
			line := data[start:i]
			start = i + 1

			if len(line) == 0 {
				continue
			}

			var entry Entry
			if err := json.Unmarshal(line, &entry); err != nil {
				// Skip malformed entries.
				continue
			}
			entries = append(entries, entry)
		}
	}

	return entries, nil
}
