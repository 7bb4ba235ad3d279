package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Shugur-Network/capsule-validator/internal/errors"
	nip11 "github.com/nbd-wtf/go-nostr/nip11"
)

// RelayInfo is a NIP-11 document with the time capsules capability extension.
type RelayInfo struct {
	nip11.RelayInformationDocument
	TimeCapsules *TimeCapsuleCapability `json:"time_capsules,omitempty"`
}

// TimeCapsuleCapability is advertised by relays that validate capsules.
type TimeCapsuleCapability struct {
	Version         string   `json:"version"`
	Modes           []string `json:"modes"`
	MaxTlockBlob    int      `json:"max_tlock_blob_bytes"`
	MaxContent      int      `json:"max_content_bytes"`
	SupportedChains []string `json:"supported_drand_chains"`
}

// SupportsNIP reports whether nip appears in supported_nips.
func (i *RelayInfo) SupportsNIP(nip int) bool {
	want := strconv.Itoa(nip)
	for _, n := range i.SupportedNIPs {
		if fmt.Sprint(n) == want {
			return true
		}
	}
	return false
}

// SupportsChain reports whether the relay accepts capsules for chainHash. An
// empty list means the relay does not restrict chains.
func (i *RelayInfo) SupportsChain(chainHash string) bool {
	if i.TimeCapsules == nil || len(i.TimeCapsules.SupportedChains) == 0 {
		return true
	}
	for _, c := range i.TimeCapsules.SupportedChains {
		if c == chainHash {
			return true
		}
	}
	return false
}

// InfoURL maps a relay websocket URL to its NIP-11 HTTP endpoint.
func InfoURL(relayURL string) string {
	switch {
	case strings.HasPrefix(relayURL, "wss://"):
		return "https://" + strings.TrimPrefix(relayURL, "wss://")
	case strings.HasPrefix(relayURL, "ws://"):
		return "http://" + strings.TrimPrefix(relayURL, "ws://")
	}
	return relayURL
}

// FetchInfo retrieves the relay information document.
func (p *Publisher) FetchInfo(ctx context.Context, relayURL string) (*RelayInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, p.opts.DialTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, InfoURL(relayURL), nil)
	if err != nil {
		return nil, errors.RelayUnreachable("info", err)
	}
	req.Header.Set("Accept", "application/nostr+json")

	client := &http.Client{Timeout: p.opts.DialTimeout + time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, errors.RelayUnreachable("info", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.RelayUnreachable("info", fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 256*1024))
	if err != nil {
		return nil, errors.RelayUnreachable("info", err)
	}
	var info RelayInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, errors.RelayUnreachable("info", fmt.Errorf("malformed relay information document: %w", err))
	}
	return &info, nil
}
