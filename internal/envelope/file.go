package envelope

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	kerrors "github.com/PolarWolf314/cipherroom/internal/errors"
	"github.com/PolarWolf314/cipherroom/internal/secrets"
)

// Header names used when file metadata travels as HTTP-style headers.
const (
	HeaderFileID     = "X-Cipherroom-File-Id"
	HeaderGroupID    = "X-Cipherroom-Group-Id"
	HeaderSender     = "X-Cipherroom-Sender"
	HeaderNonce      = "X-Cipherroom-Nonce"
	HeaderDigest     = "X-Cipherroom-Digest"
	HeaderOccurredAt = "X-Cipherroom-Occurred-At"
	HeaderFilename   = "X-Cipherroom-Filename"
	HeaderMIMEType   = "X-Cipherroom-Mime-Type"
	HeaderSize       = "X-Cipherroom-Size"
	HeaderSuite      = "X-Cipherroom-Suite"
)

// File is the metadata of one encrypted file. The ciphertext itself travels
// as a separate blob.
type File struct {
	ID                 string `json:"id"`
	GroupID            string `json:"groupId"`
	SenderRef          string `json:"senderRef"`
	NonceB64           string `json:"nonceB64"`
	OccurredAt         int64  `json:"occurredAt"`
	IntegrityDigestHex string `json:"integrityDigestHex"`
	OriginalFilename   string `json:"originalFilename"`
	MIMEType           string `json:"mimeType"`
	OriginalSizeBytes  int64  `json:"originalSizeBytes"`
	Suite              string `json:"suite,omitempty"`
}

// EncodeFile splits a sealed file into metadata and blob. h.ID may be empty
// before upload; the relay assigns one.
func EncodeFile(sf secrets.SealedFile, h Header) (File, []byte) {
	return File{
		ID:                 h.ID,
		GroupID:            h.GroupID,
		SenderRef:          h.SenderRef,
		NonceB64:           base64.StdEncoding.EncodeToString(sf.Nonce),
		OccurredAt:         h.OccurredAt,
		IntegrityDigestHex: sf.Digest,
		OriginalFilename:   sf.Name,
		MIMEType:           sf.MIMEType,
		OriginalSizeBytes:  sf.SizeBytes,
		Suite:              string(sf.Suite),
	}, sf.Ciphertext
}

// DecodeFile joins metadata and blob back into a sealed file.
func DecodeFile(f File, blob []byte) (secrets.SealedFile, error) {
	if f.GroupID == "" || f.NonceB64 == "" || f.OriginalFilename == "" {
		return secrets.SealedFile{}, fmt.Errorf("%w: incomplete file metadata", kerrors.ErrInvalidEnvelope)
	}
	if len(blob) == 0 {
		return secrets.SealedFile{}, fmt.Errorf("%w: empty file blob", kerrors.ErrInvalidEnvelope)
	}
	nonce, err := base64.StdEncoding.DecodeString(f.NonceB64)
	if err != nil {
		return secrets.SealedFile{}, fmt.Errorf("%w: nonce: %v", kerrors.ErrInvalidEnvelope, err)
	}
	suite, err := secrets.ParseSuite(f.Suite)
	if err != nil {
		return secrets.SealedFile{}, fmt.Errorf("%w: %v", kerrors.ErrInvalidEnvelope, err)
	}

	return secrets.SealedFile{
		Sealed: secrets.Sealed{
			Suite:      suite,
			Ciphertext: blob,
			Nonce:      nonce,
			Digest:     strings.ToLower(f.IntegrityDigestHex),
		},
		Name:      f.OriginalFilename,
		MIMEType:  f.MIMEType,
		SizeBytes: f.OriginalSizeBytes,
	}, nil
}

// WriteHeaders copies the metadata into h.
func (f File) WriteHeaders(h http.Header) {
	h.Set(HeaderFileID, f.ID)
	h.Set(HeaderGroupID, f.GroupID)
	h.Set(HeaderSender, f.SenderRef)
	h.Set(HeaderNonce, f.NonceB64)
	h.Set(HeaderDigest, f.IntegrityDigestHex)
	h.Set(HeaderOccurredAt, strconv.FormatInt(f.OccurredAt, 10))
	h.Set(HeaderFilename, f.OriginalFilename)
	h.Set(HeaderMIMEType, f.MIMEType)
	h.Set(HeaderSize, strconv.FormatInt(f.OriginalSizeBytes, 10))
	if f.Suite != "" {
		h.Set(HeaderSuite, f.Suite)
	}
}

// FileFromHeaders reads metadata written by WriteHeaders.
func FileFromHeaders(h http.Header) (File, error) {
	f := File{
		ID:                 h.Get(HeaderFileID),
		GroupID:            h.Get(HeaderGroupID),
		SenderRef:          h.Get(HeaderSender),
		NonceB64:           h.Get(HeaderNonce),
		IntegrityDigestHex: h.Get(HeaderDigest),
		OriginalFilename:   h.Get(HeaderFilename),
		MIMEType:           h.Get(HeaderMIMEType),
		Suite:              h.Get(HeaderSuite),
	}

	var err error
	if v := h.Get(HeaderOccurredAt); v != "" {
		if f.OccurredAt, err = strconv.ParseInt(v, 10, 64); err != nil {
			return File{}, fmt.Errorf("%w: occurredAt: %v", kerrors.ErrInvalidEnvelope, err)
		}
	}
	if v := h.Get(HeaderSize); v != "" {
		if f.OriginalSizeBytes, err = strconv.ParseInt(v, 10, 64); err != nil {
			return File{}, fmt.Errorf("%w: size: %v", kerrors.ErrInvalidEnvelope, err)
		}
	}
	return f, nil
}
