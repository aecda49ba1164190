package envelope

import (
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	kerrors "github.com/PolarWolf314/cipherroom/internal/errors"
	"github.com/PolarWolf314/cipherroom/internal/secrets"
)

// IDKind tells which identifier space an id belongs to.
type IDKind string

const (
	// Ephemeral ids are generated by the sending client and live only until a
	// persisted counterpart arrives.
	Ephemeral IDKind = "ephemeral"

	// Durable ids are assigned by the relay and are stable forever.
	Durable IDKind = "durable"
)

// Message is the transport payload for one encrypted message.
type Message struct {
	ID                 string `json:"id"`
	IDKind             IDKind `json:"idKind,omitempty"`
	GroupID            string `json:"groupId"`
	SenderRef          string `json:"senderRef"`
	CiphertextB64      string `json:"ciphertextB64"`
	NonceB64           string `json:"nonceB64"`
	OccurredAt         int64  `json:"occurredAt"`
	IntegrityDigestHex string `json:"integrityDigestHex"`
	Suite              string `json:"suite,omitempty"`
}

// Header is the cleartext routing information of a message.
type Header struct {
	ID         string
	IDKind     IDKind
	GroupID    string
	SenderRef  string
	OccurredAt int64
}

// Kind returns the id kind, treating an absent tag as durable.
func (m Message) Kind() IDKind {
	if m.IDKind == "" {
		return Durable
	}
	return m.IDKind
}

// Encode builds the wire form of a sealed message.
func Encode(s secrets.Sealed, h Header) Message {
	return Message{
		ID:                 h.ID,
		IDKind:             h.IDKind,
		GroupID:            h.GroupID,
		SenderRef:          h.SenderRef,
		CiphertextB64:      base64.StdEncoding.EncodeToString(s.Ciphertext),
		NonceB64:           base64.StdEncoding.EncodeToString(s.Nonce),
		OccurredAt:         h.OccurredAt,
		IntegrityDigestHex: s.Digest,
		Suite:              string(s.Suite),
	}
}

// Decode validates m and splits it into its sealed payload and header.
func Decode(m Message) (secrets.Sealed, Header, error) {
	if err := m.Validate(); err != nil {
		return secrets.Sealed{}, Header{}, err
	}

	ct, err := base64.StdEncoding.DecodeString(m.CiphertextB64)
	if err != nil {
		return secrets.Sealed{}, Header{}, fmt.Errorf("%w: ciphertext: %v", kerrors.ErrInvalidEnvelope, err)
	}
	nonce, err := base64.StdEncoding.DecodeString(m.NonceB64)
	if err != nil {
		return secrets.Sealed{}, Header{}, fmt.Errorf("%w: nonce: %v", kerrors.ErrInvalidEnvelope, err)
	}
	suite, err := secrets.ParseSuite(m.Suite)
	if err != nil {
		return secrets.Sealed{}, Header{}, fmt.Errorf("%w: %v", kerrors.ErrInvalidEnvelope, err)
	}

	sealed := secrets.Sealed{
		Suite:      suite,
		Ciphertext: ct,
		Nonce:      nonce,
		Digest:     strings.ToLower(m.IntegrityDigestHex),
	}
	header := Header{
		ID:         m.ID,
		IDKind:     m.Kind(),
		GroupID:    m.GroupID,
		SenderRef:  m.SenderRef,
		OccurredAt: m.OccurredAt,
	}
	return sealed, header, nil
}

// Validate checks required fields without decoding the payload.
func (m Message) Validate() error {
	switch {
	case m.ID == "":
		return fmt.Errorf("%w: missing id", kerrors.ErrInvalidEnvelope)
	case m.GroupID == "":
		return fmt.Errorf("%w: missing groupId", kerrors.ErrInvalidEnvelope)
	case m.CiphertextB64 == "":
		return fmt.Errorf("%w: missing ciphertext", kerrors.ErrInvalidEnvelope)
	case m.NonceB64 == "":
		return fmt.Errorf("%w: missing nonce", kerrors.ErrInvalidEnvelope)
	case m.OccurredAt <= 0:
		return fmt.Errorf("%w: missing occurredAt", kerrors.ErrInvalidEnvelope)
	}
	if m.IDKind != "" && m.IDKind != Ephemeral && m.IDKind != Durable {
		return fmt.Errorf("%w: unknown idKind %q", kerrors.ErrInvalidEnvelope, m.IDKind)
	}
	if m.IntegrityDigestHex != "" {
		if _, err := hex.DecodeString(m.IntegrityDigestHex); err != nil {
			return fmt.Errorf("%w: digest: %v", kerrors.ErrInvalidEnvelope, err)
		}
	}
	return nil
}

// Marshal serializes a message to JSON.
func Marshal(m Message) ([]byte, error) {
	return json.Marshal(m)
}

// Unmarshal parses and validates a JSON message.
func Unmarshal(data []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return Message{}, fmt.Errorf("%w: %v", kerrors.ErrInvalidEnvelope, err)
	}
	if err := m.Validate(); err != nil {
		return Message{}, err
	}
	return m, nil
}
