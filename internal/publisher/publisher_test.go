package publisher

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Shugur-Network/capsule-validator/internal/errors"
	"github.com/Shugur-Network/capsule-validator/internal/events"
	"github.com/Shugur-Network/capsule-validator/internal/identity"
	"github.com/gorilla/websocket"
	"github.com/nbd-wtf/go-nostr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRelay answers each EVENT with reply(evt).
func fakeRelay(t *testing.T, reply func(evt *nostr.Event) [][]interface{}) string {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				return
			}
			frame, err := events.ParseFrame(raw)
			if err != nil || frame.Label != "EVENT" {
				continue
			}
			evt, err := events.Decode(frame.Args[0])
			if err != nil {
				return
			}
			for _, msg := range reply(evt) {
				data, _ := json.Marshal(msg)
				if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
					return
				}
			}
		}
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func signedEvent(t *testing.T) *nostr.Event {
	t.Helper()
	kp, err := identity.Generate()
	require.NoError(t, err)
	evt := &nostr.Event{Kind: 1041, CreatedAt: nostr.Now(), Tags: nostr.Tags{}, Content: "aGk="}
	require.NoError(t, identity.NewNativeProvider().Sign(context.Background(), evt, kp.Secret))
	return evt
}

func TestPublishAccepted(t *testing.T) {
	url := fakeRelay(t, func(evt *nostr.Event) [][]interface{} {
		return [][]interface{}{{"OK", evt.ID, true, ""}}
	})
	evt := signedEvent(t)

	res, err := New(Options{VerifyEventID: true}).Publish(context.Background(), evt, url)
	require.NoError(t, err)
	assert.True(t, res.Accepted)
	assert.Equal(t, evt.ID, res.EventID)
}

func TestPublishRejected(t *testing.T) {
	url := fakeRelay(t, func(evt *nostr.Event) [][]interface{} {
		return [][]interface{}{{"OK", evt.ID, false, "bad signature"}}
	})

	res, err := New(Options{}).Publish(context.Background(), signedEvent(t), url)
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, errors.ErrRelayRejected))
	assert.False(t, res.Accepted)
	assert.Equal(t, "bad signature", res.Message)

	var appErr *errors.AppError
	require.True(t, stderrors.As(err, &appErr))
	assert.Equal(t, "bad signature", appErr.UserFacing())
}

func TestPublishSkipsNoticeAndAuth(t *testing.T) {
	url := fakeRelay(t, func(evt *nostr.Event) [][]interface{} {
		return [][]interface{}{
			{"AUTH", "challenge"},
			{"NOTICE", "welcome"},
			{"OK", evt.ID, false, "rate-limited: slow down"},
		}
	})

	res, err := New(Options{}).Publish(context.Background(), signedEvent(t), url)
	require.Error(t, err)
	assert.Equal(t, []string{"welcome"}, res.Notices)
	assert.Equal(t, "rate-limited", res.Prefix)
}

func TestPublishIDMismatch(t *testing.T) {
	url := fakeRelay(t, func(evt *nostr.Event) [][]interface{} {
		return [][]interface{}{{"OK", strings.Repeat("0", 64), true, ""}}
	})
	evt := signedEvent(t)

	_, err := New(Options{VerifyEventID: true}).Publish(context.Background(), evt, url)
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, errors.ErrRelayRejected))

	res, err := New(Options{VerifyEventID: false}).Publish(context.Background(), evt, url)
	require.NoError(t, err)
	assert.True(t, res.Accepted)
}

func TestPublishUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	srv.Close()

	_, err := New(Options{DialTimeout: time.Second}).Publish(context.Background(), signedEvent(t), url)
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, errors.ErrRelayUnreachable))
}

func TestPublishReadTimeout(t *testing.T) {
	url := fakeRelay(t, func(*nostr.Event) [][]interface{} { return nil })

	_, err := New(Options{ReadTimeout: 100 * time.Millisecond}).Publish(context.Background(), signedEvent(t), url)
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, errors.ErrRelayUnreachable))
}

func TestPublishCancelled(t *testing.T) {
	url := fakeRelay(t, func(*nostr.Event) [][]interface{} { return nil })
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	_, err := New(Options{ReadTimeout: 10 * time.Second}).Publish(ctx, signedEvent(t), url)
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, errors.ErrInterrupted))
}

func TestFetchInfo(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/nostr+json", r.Header.Get("Accept"))
		w.Header().Set("Content-Type", "application/nostr+json")
		_, _ = w.Write([]byte(`{
			"name": "shugur",
			"supported_nips": [1, 11, 44, 59],
			"time_capsules": {"version": "1", "modes": ["public", "private"], "max_tlock_blob_bytes": 4096, "supported_drand_chains": []}
		}`))
	}))
	defer srv.Close()

	info, err := New(Options{}).FetchInfo(context.Background(), "ws"+strings.TrimPrefix(srv.URL, "http"))
	require.NoError(t, err)
	assert.Equal(t, "shugur", info.Name)
	assert.True(t, info.SupportsNIP(59))
	assert.False(t, info.SupportsNIP(17))
	require.NotNil(t, info.TimeCapsules)
	assert.Equal(t, 4096, info.TimeCapsules.MaxTlockBlob)
	assert.True(t, info.SupportsChain("anything"))
}

func TestInfoURL(t *testing.T) {
	assert.Equal(t, "https://shu01.shugur.net", InfoURL("wss://shu01.shugur.net"))
	assert.Equal(t, "http://localhost:8080", InfoURL("ws://localhost:8080"))
}
