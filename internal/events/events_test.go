package events

import (
	"bytes"
	stderrors "errors"
	"testing"

	"github.com/Shugur-Network/capsule-validator/internal/errors"
	"github.com/nbd-wtf/go-nostr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const pub = "79be667ef9dcbbac55a06295ce870b07029bfcdb2dce28d959f2815b16f81798"

func sampleEvent() *nostr.Event {
	return &nostr.Event{
		PubKey:    pub,
		CreatedAt: nostr.Timestamp(1700000000),
		Kind:      1041,
		Tags: nostr.Tags{
			{"tlock", "52db9ba70e0cc0f6eaf7803dd07447a1f5477735fd3f661792ba94600c84e971", "1010"},
			{"alt", "NIP-XX public time capsule"},
		},
		Content: "aGVsbG8=",
	}
}

func TestSerializeIsCompact(t *testing.T) {
	evt := &nostr.Event{PubKey: pub, CreatedAt: 1, Kind: 13, Content: "hé \"x\""}
	assert.Equal(t,
		`[0,"`+pub+`",1,13,[],"hé \"x\""]`,
		string(Serialize(evt)))
}

func TestComputeIDIgnoresIDAndSig(t *testing.T) {
	a := sampleEvent()
	b := sampleEvent()
	b.ID = "ff"
	b.Sig = "00"
	assert.Equal(t, ComputeID(a), ComputeID(b))
	assert.Len(t, ComputeID(a), 64)

	c := sampleEvent()
	c.Content = "other"
	assert.NotEqual(t, ComputeID(a), ComputeID(c))
}

func TestComputeIDMatchesGoNostr(t *testing.T) {
	evt := sampleEvent()
	assert.Equal(t, evt.GetID(), ComputeID(evt))
}

func TestVerifyID(t *testing.T) {
	evt := sampleEvent()
	Finalize(evt)
	require.NoError(t, VerifyID(evt))

	evt.Content = "tampered"
	err := VerifyID(evt)
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, errors.ErrInvalidEvent))
}

func TestMarshalDecode(t *testing.T) {
	evt := sampleEvent()
	Finalize(evt)

	raw, err := Marshal(evt)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), `"sig"`)

	got, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, evt.ID, got.ID)
	assert.Equal(t, evt.Tags, got.Tags)
	assert.Equal(t, evt.Content, got.Content)
}

func TestMarshalEmptyTags(t *testing.T) {
	evt := &nostr.Event{PubKey: pub, CreatedAt: 1, Kind: 13, Content: "x"}
	Finalize(evt)
	raw, err := Marshal(evt)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"tags":[]`)
}

func TestDecodeRejectsWrongID(t *testing.T) {
	raw := []byte(`{"id":"` + pub + `","pubkey":"` + pub + `","created_at":1,"kind":1,"tags":[],"content":"x"}`)
	_, err := Decode(raw)
	assert.True(t, stderrors.Is(err, errors.ErrInvalidEvent))

	_, err = Decode([]byte(`{`))
	assert.True(t, stderrors.Is(err, errors.ErrInvalidEvent))
}

func TestEncodeEventMessage(t *testing.T) {
	evt := sampleEvent()
	Finalize(evt)
	msg, err := EncodeEventMessage(evt)
	require.NoError(t, err)

	frame, err := ParseFrame(msg)
	require.NoError(t, err)
	assert.Equal(t, "EVENT", frame.Label)
	require.Len(t, frame.Args, 1)

	got, err := Decode(frame.Args[0])
	require.NoError(t, err)
	assert.Equal(t, evt.ID, got.ID)
}

func TestEncodeEventMessageKeepsContentVerbatim(t *testing.T) {
	evt := sampleEvent()
	evt.Content = "a <b> & c"
	Finalize(evt)

	msg, err := EncodeEventMessage(evt)
	require.NoError(t, err)
	assert.Contains(t, string(msg), `"content":"a <b> & c"`)
	assert.NotContains(t, string(msg), `\u003c`)
	assert.False(t, bytes.HasSuffix(msg, []byte("\n")))
}

func TestParseOK(t *testing.T) {
	tests := []struct {
		name   string
		msg    string
		want   OKResult
		errMsg string
	}{
		{"accepted", `["OK","abc",true,""]`, OKResult{EventID: "abc", Accepted: true}, ""},
		{"no message", `["OK","abc",true]`, OKResult{EventID: "abc", Accepted: true}, ""},
		{"rejected", `["OK","abc",false,"bad signature"]`, OKResult{EventID: "abc", Message: "bad signature"}, ""},
		{"prefixed", `["OK","abc",false,"blocked: tlock tag missing"]`, OKResult{EventID: "abc", Message: "blocked: tlock tag missing", Prefix: "blocked"}, ""},
		{"wrong label", `["NOTICE","hi"]`, OKResult{}, "expected OK"},
		{"short", `["OK","abc"]`, OKResult{}, "want at least 2"},
		{"bad flag", `["OK","abc","yes",""]`, OKResult{}, "accepted flag"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame, err := ParseFrame([]byte(tt.msg))
			require.NoError(t, err)
			got, err := frame.OK()
			if tt.errMsg != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseFrameErrors(t *testing.T) {
	_, err := ParseFrame([]byte(`{}`))
	assert.Error(t, err)
	_, err = ParseFrame([]byte(`[]`))
	assert.Error(t, err)
	_, err = ParseFrame([]byte(`[1,2]`))
	assert.Error(t, err)
}

func TestFrameText(t *testing.T) {
	frame, err := ParseFrame([]byte(`["NOTICE","slow down"]`))
	require.NoError(t, err)
	assert.Equal(t, "slow down", frame.Text())
}

func TestReasonPrefix(t *testing.T) {
	assert.Equal(t, "duplicate", ReasonPrefix("duplicate: already have this event"))
	assert.Equal(t, "rate-limited", ReasonPrefix("rate-limited: slow down"))
	assert.Equal(t, "", ReasonPrefix("bad signature"))
	assert.Equal(t, "", ReasonPrefix("something: else"))
}
