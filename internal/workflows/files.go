package workflows

import (
	"context"
	"fmt"

	"github.com/PolarWolf314/cipherroom/internal/audit"
	"github.com/PolarWolf314/cipherroom/internal/envelope"
	"github.com/PolarWolf314/cipherroom/internal/relay"
	"github.com/PolarWolf314/cipherroom/internal/secrets"
	"github.com/PolarWolf314/cipherroom/internal/transcript"
)

// MaxFileSize is the largest file the vault accepts.
const MaxFileSize = 50 << 20

// UploadResult contains the outcome of an upload.
type UploadResult struct {
	Record   transcript.Record
	Metadata relay.FileMetadata
	Digest   string
}

// Upload encrypts a file for a group and stores it in the vault.
func (s *Session) Upload(ctx context.Context, groupID string, in secrets.FileInput) (*UploadResult, error) {
	if len(in.Data) > MaxFileSize {
		return nil, fmt.Errorf("file %s is larger than %d bytes", in.Name, MaxFileSize)
	}
	key, err := s.keyring.Key(ctx, groupID)
	if err != nil {
		return nil, err
	}
	sealed, err := s.crypto.SealFile(key, in)
	if err != nil {
		return nil, fmt.Errorf("encrypting file: %w", err)
	}

	meta, blob := envelope.EncodeFile(sealed, envelope.Header{
		GroupID:    groupID,
		SenderRef:  s.self,
		OccurredAt: s.nowMillis(),
	})
	stored, err := s.relay.UploadFile(ctx, meta, blob)
	if err != nil {
		return nil, err
	}

	rec := s.fileRecord(stored, sealed.Digest)
	if _, err := s.engine.IngestFile(groupID, rec); err != nil {
		return nil, err
	}

	s.audit.Log(audit.Entry{
		Operation: audit.OpUpload,
		GroupID:   groupID,
		RecordID:  stored.ID,
		Digest:    sealed.Digest,
		SizeBytes: sealed.SizeBytes,
		Suite:     string(sealed.Suite),
	})
	return &UploadResult{Record: rec, Metadata: stored, Digest: sealed.Digest}, nil
}

// DownloadResult is a decrypted, verified file.
type DownloadResult struct {
	GroupID  string
	Name     string
	MIMEType string
	Data     []byte
	Digest   string
}

// Download fetches a file and decrypts it. The plaintext is checked against
// its integrity digest and recorded size before it is returned.
func (s *Session) Download(ctx context.Context, fileID string) (*DownloadResult, error) {
	meta, blob, err := s.relay.DownloadFile(ctx, fileID)
	if err != nil {
		return nil, err
	}
	sealed, err := envelope.DecodeFile(meta, blob)
	if err != nil {
		return nil, err
	}
	key, err := s.keyring.Key(ctx, meta.GroupID)
	if err != nil {
		return nil, err
	}
	data, err := s.crypto.OpenFile(key, sealed)
	if err != nil {
		return nil, err
	}

	s.audit.Log(audit.Entry{
		Operation: audit.OpDownload,
		GroupID:   meta.GroupID,
		RecordID:  fileID,
		Digest:    sealed.Digest,
		SizeBytes: int64(len(data)),
	})
	return &DownloadResult{
		GroupID:  meta.GroupID,
		Name:     sealed.Name,
		MIMEType: sealed.MIMEType,
		Data:     data,
		Digest:   sealed.Digest,
	}, nil
}

// DeleteFile removes a file from the vault and from the group's transcript.
func (s *Session) DeleteFile(ctx context.Context, groupID, fileID string) error {
	if err := s.relay.DeleteFile(ctx, fileID); err != nil {
		return err
	}
	s.engine.Remove(groupID, envelope.Durable, fileID)
	s.audit.Log(audit.Entry{Operation: audit.OpDelete, GroupID: groupID, RecordID: fileID})
	return nil
}

// ListFiles fetches the vault listing for a group, merges it into the
// transcript and returns the group's file records in order.
func (s *Session) ListFiles(ctx context.Context, groupID string) ([]transcript.Record, error) {
	listing, err := s.relay.ListFiles(ctx, groupID)
	if err != nil {
		return nil, err
	}
	for _, meta := range listing {
		if _, err := s.engine.IngestFile(groupID, s.fileRecord(meta, "")); err != nil {
			s.log.Errorf("Skipping file %s in %s: %v", meta.ID, groupID, err)
		}
	}
	return s.engine.Files(groupID), nil
}

func (s *Session) fileRecord(meta relay.FileMetadata, digest string) transcript.Record {
	return transcript.Record{
		ID:         meta.ID,
		GroupID:    meta.GroupID,
		Author:     s.authorOf(meta.SenderRef),
		SenderRef:  meta.SenderRef,
		OccurredAt: meta.OccurredAt,
		Digest:     digest,
		File: &transcript.FileInfo{
			Name:      meta.Name,
			MIMEType:  meta.MIMEType,
			SizeBytes: meta.SizeBytes,
		},
	}
}
