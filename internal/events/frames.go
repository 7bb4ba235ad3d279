package events

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Shugur-Network/capsule-validator/internal/constants"
	"github.com/nbd-wtf/go-nostr"
)

// Frame is a decoded relay message: a label followed by raw arguments.
type Frame struct {
	Label string
	Args  []json.RawMessage
}

// OKResult is the relay's verdict on a published event.
type OKResult struct {
	EventID  string
	Accepted bool
	Message  string
	// Prefix is the machine-readable reason, e.g. "blocked" or "duplicate".
	Prefix string
}

// okPrefixes are the machine-readable reasons defined by NIP-01.
var okPrefixes = []string{
	"duplicate", "pow", "blocked", "rate-limited", "invalid", "restricted", "mute", "error", "auth-required",
}

// EncodeEventMessage builds the ["EVENT", <event>] publish frame.
func EncodeEventMessage(evt *nostr.Event) ([]byte, error) {
	raw, err := Marshal(evt)
	if err != nil {
		return nil, err
	}
	return encodeFrame(constants.LabelEvent, json.RawMessage(raw))
}

// encodeFrame writes a relay frame without HTML escaping so event content
// reaches the wire exactly as it was hashed.
func encodeFrame(args ...interface{}) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(args); err != nil {
		return nil, fmt.Errorf("encode %v frame: %w", args[0], err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// ParseFrame decodes a relay message into its label and arguments.
func ParseFrame(data []byte) (Frame, error) {
	var arr []json.RawMessage
	if err := json.Unmarshal(data, &arr); err != nil {
		return Frame{}, fmt.Errorf("malformed relay message: %w", err)
	}
	if len(arr) == 0 {
		return Frame{}, fmt.Errorf("empty relay message")
	}
	var label string
	if err := json.Unmarshal(arr[0], &label); err != nil {
		return Frame{}, fmt.Errorf("relay message label must be a string: %w", err)
	}
	return Frame{Label: label, Args: arr[1:]}, nil
}

// OK interprets an ["OK", id, accepted, message] frame. The message is optional.
func (f Frame) OK() (OKResult, error) {
	if f.Label != constants.LabelOK {
		return OKResult{}, fmt.Errorf("expected %s frame, got %q", constants.LabelOK, f.Label)
	}
	if len(f.Args) < 2 {
		return OKResult{}, fmt.Errorf("OK frame has %d arguments, want at least 2", len(f.Args))
	}

	var res OKResult
	if err := json.Unmarshal(f.Args[0], &res.EventID); err != nil {
		return OKResult{}, fmt.Errorf("OK frame event id: %w", err)
	}
	if err := json.Unmarshal(f.Args[1], &res.Accepted); err != nil {
		return OKResult{}, fmt.Errorf("OK frame accepted flag: %w", err)
	}
	if len(f.Args) > 2 {
		if err := json.Unmarshal(f.Args[2], &res.Message); err != nil {
			return OKResult{}, fmt.Errorf("OK frame message: %w", err)
		}
	}
	res.Prefix = ReasonPrefix(res.Message)
	return res, nil
}

// Text returns the first argument of NOTICE/CLOSED style frames.
func (f Frame) Text() string {
	if len(f.Args) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(f.Args[len(f.Args)-1], &s); err != nil {
		return string(f.Args[len(f.Args)-1])
	}
	return s
}

// ReasonPrefix extracts a known machine-readable prefix from an OK message.
func ReasonPrefix(message string) string {
	head, _, found := strings.Cut(message, ":")
	if !found {
		return ""
	}
	head = strings.TrimSpace(head)
	for _, p := range okPrefixes {
		if head == p {
			return p
		}
	}
	return ""
}
