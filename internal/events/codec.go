// Package events serializes Nostr events canonically, computes their ids and
// encodes the relay wire frames used to publish them.
package events

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/Shugur-Network/capsule-validator/internal/constants"
	"github.com/Shugur-Network/capsule-validator/internal/errors"
	"github.com/nbd-wtf/go-nostr"
)

// wireEvent fixes the field order of an event object. Sig is omitted for
// unsigned rumors.
type wireEvent struct {
	ID        string     `json:"id"`
	PubKey    string     `json:"pubkey"`
	CreatedAt int64      `json:"created_at"`
	Kind      int        `json:"kind"`
	Tags      [][]string `json:"tags"`
	Content   string     `json:"content"`
	Sig       string     `json:"sig,omitempty"`
}

// Serialize returns the canonical [0,pubkey,created_at,kind,tags,content]
// array. Non-ASCII characters are emitted verbatim.
func Serialize(evt *nostr.Event) []byte {
	return evt.Serialize()
}

// ComputeID returns the lowercase hex sha256 of Serialize(evt). The id and
// sig fields never contribute.
func ComputeID(evt *nostr.Event) string {
	sum := sha256.Sum256(Serialize(evt))
	return hex.EncodeToString(sum[:])
}

// Finalize sets evt.ID to its computed value and returns it.
func Finalize(evt *nostr.Event) string {
	evt.ID = ComputeID(evt)
	return evt.ID
}

// VerifyID fails with InvalidEvent when evt.ID does not match its content.
func VerifyID(evt *nostr.Event) error {
	if len(evt.ID) != constants.KeyHexLength {
		return errors.InvalidEvent(evt.ID, constants.ErrInvalidEventID)
	}
	if computed := ComputeID(evt); computed != evt.ID {
		return errors.InvalidEvent(evt.ID, fmt.Sprintf("%s: computed %s", constants.ErrInvalidEventID, computed))
	}
	return nil
}

// Marshal encodes evt as a JSON event object.
func Marshal(evt *nostr.Event) ([]byte, error) {
	w := wireEvent{
		ID:        evt.ID,
		PubKey:    evt.PubKey,
		CreatedAt: int64(evt.CreatedAt),
		Kind:      evt.Kind,
		Tags:      make([][]string, 0, len(evt.Tags)),
		Content:   evt.Content,
		Sig:       evt.Sig,
	}
	for _, tag := range evt.Tags {
		w.Tags = append(w.Tags, []string(tag))
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(w); err != nil {
		return nil, errors.InvalidEvent(evt.ID, err.Error())
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// Decode parses an event object and checks its id.
func Decode(data []byte) (*nostr.Event, error) {
	var w wireEvent
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, errors.InvalidEvent("", fmt.Sprintf("malformed event JSON: %v", err))
	}
	evt := &nostr.Event{
		ID:        w.ID,
		PubKey:    w.PubKey,
		CreatedAt: nostr.Timestamp(w.CreatedAt),
		Kind:      w.Kind,
		Tags:      make(nostr.Tags, 0, len(w.Tags)),
		Content:   w.Content,
		Sig:       w.Sig,
	}
	for _, tag := range w.Tags {
		evt.Tags = append(evt.Tags, nostr.Tag(tag))
	}
	if err := VerifyID(evt); err != nil {
		return nil, err
	}
	return evt, nil
}
