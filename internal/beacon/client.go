package beacon

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Shugur-Network/capsule-validator/internal/errors"
	"github.com/Shugur-Network/capsule-validator/internal/logger"
	"github.com/Shugur-Network/capsule-validator/internal/metrics"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const maxResponseBytes = 64 * 1024

// Info is the subset of the drand chain info document the validator uses.
type Info struct {
	Hash        string `json:"hash"`
	Period      int    `json:"period"`
	GenesisTime int64  `json:"genesis_time"`
	SchemeID    string `json:"schemeID"`
	PublicKey   string `json:"public_key"`
}

// RoundAt returns the wall-clock time at which round becomes available.
func (i Info) RoundAt(round uint64) time.Time {
	if round == 0 || i.Period <= 0 {
		return time.Unix(i.GenesisTime, 0)
	}
	return time.Unix(i.GenesisTime+int64(round-1)*int64(i.Period), 0)
}

type latestResponse struct {
	Round *uint64 `json:"round"`
}

// Client reads rounds and chain info from the drand HTTP API.
type Client struct {
	http    *http.Client
	limiter *rate.Limiter
	logger  *zap.Logger
}

// ClientOption customises a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.http = hc }
}

// WithRateLimit throttles requests to rps with a burst of one.
func WithRateLimit(rps float64) ClientOption {
	return func(c *Client) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
		}
	}
}

// NewClient creates a beacon client whose requests time out after timeout.
func NewClient(timeout time.Duration, opts ...ClientOption) *Client {
	c := &Client{
		http:    &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Inf, 1),
		logger:  logger.New("beacon"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CurrentRound queries the latest-round endpoint.
func (c *Client) CurrentRound(ctx context.Context, network Network) (uint64, error) {
	var resp latestResponse
	endpoint := network.LatestURL()
	if err := c.getJSON(ctx, "latest", endpoint, &resp); err != nil {
		return 0, err
	}
	if resp.Round == nil || *resp.Round == 0 {
		return 0, errors.BeaconMalformed(endpoint, "missing round")
	}
	return *resp.Round, nil
}

// Info queries the chain info endpoint.
func (c *Client) Info(ctx context.Context, network Network) (Info, error) {
	var info Info
	endpoint := network.InfoURL()
	if err := c.getJSON(ctx, "info", endpoint, &info); err != nil {
		return Info{}, err
	}
	if info.Period <= 0 {
		return Info{}, errors.BeaconMalformed(endpoint, fmt.Sprintf("invalid period %d", info.Period))
	}
	return info, nil
}

func (c *Client) getJSON(ctx context.Context, name, endpoint string, out interface{}) (err error) {
	start := time.Now()
	defer func() {
		metrics.ObserveBeaconRequest(name, err, time.Since(start))
	}()

	if err := c.limiter.Wait(ctx); err != nil {
		return errors.BeaconUnavailable(endpoint, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return errors.BeaconUnavailable(endpoint, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.BeaconUnavailable(endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return errors.BeaconUnavailable(endpoint, fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return errors.BeaconUnavailable(endpoint, err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return errors.BeaconMalformed(endpoint, err.Error())
	}

	c.logger.Debug("beacon response", zap.String("endpoint", endpoint), zap.Duration("took", time.Since(start)))
	return nil
}
