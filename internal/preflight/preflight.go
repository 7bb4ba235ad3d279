// Package preflight checks that the collaborators a run depends on are usable
// before any key is generated.
package preflight

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Shugur-Network/capsule-validator/internal/beacon"
	"github.com/Shugur-Network/capsule-validator/internal/config"
	"github.com/Shugur-Network/capsule-validator/internal/logger"
	"github.com/Shugur-Network/capsule-validator/internal/publisher"
	"github.com/Shugur-Network/capsule-validator/internal/toolchain"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Status is the outcome of a check
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// NIP-59 gift wraps carry private capsules
const nipGiftWrap = 59

// ComponentStatus is the result for one collaborator.
type ComponentStatus struct {
	Name    string                 `json:"name"`
	Status  Status                 `json:"status"`
	Message string                 `json:"message,omitempty"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// Report aggregates all component results.
type Report struct {
	Status     Status             `json:"status"`
	Timestamp  time.Time          `json:"timestamp"`
	Duration   time.Duration      `json:"duration"`
	Components []*ComponentStatus `json:"components"`
}

// Ready reports whether the run may proceed.
func (r *Report) Ready() bool {
	return r.Status != StatusUnhealthy
}

// Component returns the named result or nil.
func (r *Report) Component(name string) *ComponentStatus {
	for _, c := range r.Components {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// RelayProbe fetches relay metadata.
type RelayProbe interface {
	FetchInfo(ctx context.Context, relayURL string) (*publisher.RelayInfo, error)
}

// ToolProbe looks up executables.
type ToolProbe interface {
	Check(names ...string) error
}

// Checker runs the preflight checks.
type Checker struct {
	beacon    beacon.Reader
	relay     RelayProbe
	tools     ToolProbe
	network   beacon.Network
	relayURL  string
	fetchInfo bool
	required  []string
	logger    *zap.Logger
}

// Target describes what the run will talk to.
type Target struct {
	Network   beacon.Network
	RelayURL  string
	FetchInfo bool
	Tools     []string
}

// NewChecker creates a checker for target.
func NewChecker(b beacon.Reader, relay RelayProbe, tools ToolProbe, target Target) *Checker {
	return &Checker{
		beacon:    b,
		relay:     relay,
		tools:     tools,
		network:   target.Network,
		relayURL:  target.RelayURL,
		fetchInfo: target.FetchInfo,
		required:  target.Tools,
		logger:    logger.New("preflight"),
	}
}

// RequiredTools lists the executables the configured backends shell out to.
func RequiredTools(cfg config.CapsulesConfig) []string {
	var tools []string
	if cfg.TimelockBackend == config.TimelockBackendTle {
		tools = append(tools, toolchain.Tle)
	}
	if cfg.CryptoBackend == config.CryptoBackendNak {
		tools = append(tools, toolchain.Nak)
	}
	return tools
}

// Run executes every check concurrently.
func (c *Checker) Run(ctx context.Context) *Report {
	start := time.Now()
	checks := []func(context.Context) *ComponentStatus{c.checkToolchain, c.checkBeacon, c.checkRelay}
	components := make([]*ComponentStatus, len(checks))

	var g errgroup.Group
	for i, check := range checks {
		g.Go(func() error {
			components[i] = check(ctx)
			return nil
		})
	}
	_ = g.Wait() // nolint:errcheck // checks never fail

	report := &Report{
		Status:     overall(components),
		Timestamp:  time.Now(),
		Duration:   time.Since(start),
		Components: components,
	}
	for _, comp := range components {
		c.logger.Info("preflight check",
			zap.String("component", comp.Name),
			zap.String("status", string(comp.Status)),
			zap.String("message", comp.Message),
		)
	}
	return report
}

func (c *Checker) checkToolchain(_ context.Context) *ComponentStatus {
	status := &ComponentStatus{Name: "toolchain", Details: map[string]interface{}{"required": c.required}}
	if len(c.required) == 0 {
		status.Status = StatusHealthy
		status.Message = "In-process collaborators, no tools required"
		return status
	}
	if err := c.tools.Check(c.required...); err != nil {
		status.Status = StatusUnhealthy
		status.Message = "Required tools missing from PATH"
		status.Details["error"] = err.Error()
		return status
	}
	status.Status = StatusHealthy
	status.Message = "All required tools found"
	return status
}

func (c *Checker) checkBeacon(ctx context.Context) *ComponentStatus {
	status := &ComponentStatus{
		Name:    "beacon",
		Details: map[string]interface{}{"network": c.network.Name, "api": c.network.API},
	}

	info, err := c.beacon.Info(ctx, c.network)
	if err != nil {
		status.Status = StatusUnhealthy
		status.Message = "Beacon info unavailable"
		status.Details["error"] = err.Error()
		return status
	}
	round, err := c.beacon.CurrentRound(ctx, c.network)
	if err != nil {
		status.Status = StatusUnhealthy
		status.Message = "Beacon latest round unavailable"
		status.Details["error"] = err.Error()
		return status
	}
	status.Details["current_round"] = round
	status.Details["period_seconds"] = info.Period

	switch {
	case info.Hash != "" && info.Hash != c.network.ChainHash:
		status.Status = StatusUnhealthy
		status.Message = fmt.Sprintf("Beacon serves chain %s", info.Hash)
	case c.network.Period > 0 && time.Duration(info.Period)*time.Second != c.network.Period:
		status.Status = StatusDegraded
		status.Message = fmt.Sprintf("Beacon period %ds differs from configured %s", info.Period, c.network.Period)
	default:
		status.Status = StatusHealthy
		status.Message = "Beacon is reachable"
	}
	return status
}

func (c *Checker) checkRelay(ctx context.Context) *ComponentStatus {
	status := &ComponentStatus{Name: "relay", Details: map[string]interface{}{"url": c.relayURL}}
	if !c.fetchInfo {
		status.Status = StatusHealthy
		status.Message = "Relay information check disabled"
		return status
	}

	info, err := c.relay.FetchInfo(ctx, c.relayURL)
	if err != nil {
		// Relays are not required to serve NIP-11; publishing may still work.
		status.Status = StatusDegraded
		status.Message = "Relay information document unavailable"
		status.Details["error"] = err.Error()
		return status
	}
	status.Details["name"] = info.Name
	status.Details["software"] = info.Software

	var problems []string
	if !info.SupportsNIP(nipGiftWrap) {
		problems = append(problems, "NIP-59 not advertised")
	}
	if info.TimeCapsules == nil {
		problems = append(problems, "time_capsules capability not advertised")
	}
	if !info.SupportsChain(c.network.ChainHash) {
		status.Status = StatusUnhealthy
		status.Message = "Relay does not accept capsules for the configured chain"
		return status
	}

	if len(problems) > 0 {
		status.Status = StatusDegraded
		status.Message = strings.Join(problems, "; ")
		return status
	}
	status.Status = StatusHealthy
	status.Message = "Relay advertises time capsule support"
	return status
}

// overall is unhealthy if any component is, degraded if any is degraded.
func overall(components []*ComponentStatus) Status {
	result := StatusHealthy
	for _, comp := range components {
		switch comp.Status {
		case StatusUnhealthy:
			return StatusUnhealthy
		case StatusDegraded:
			result = StatusDegraded
		}
	}
	return result
}
