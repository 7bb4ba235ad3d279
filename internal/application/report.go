package application

import (
	stderrors "errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/Shugur-Network/capsule-validator/internal/beacon"
	"github.com/Shugur-Network/capsule-validator/internal/capsule"
	"github.com/Shugur-Network/capsule-validator/internal/errors"
	"github.com/Shugur-Network/capsule-validator/internal/preflight"
	"github.com/Shugur-Network/capsule-validator/internal/publisher"
	"github.com/nbd-wtf/go-nostr"
	"github.com/olekukonko/tablewriter"
)

// Outcome is the verdict of a run
type Outcome string

const (
	OutcomeSuccess     Outcome = "success"
	OutcomeFailed      Outcome = "failed"
	OutcomeInterrupted Outcome = "interrupted"
)

// Process exit codes
const (
	ExitSuccess     = 0
	ExitFailure     = 1
	ExitInterrupted = 130
)

// CapsuleResult tracks one capsule workflow through the run.
type CapsuleResult struct {
	Mode     string
	Expected string

	// Event is what goes to the relay: the capsule itself, or its gift wrap.
	Event   *nostr.Event
	private *capsule.Private

	Created   bool
	Published bool
	Decrypted bool
	Plaintext string
	Relay     *publisher.Result

	// Stage names the step that failed, if any.
	Stage string
	Err   error
}

// EventID returns the id of the published event, or "" before creation.
func (c *CapsuleResult) EventID() string {
	if c.Event == nil {
		return ""
	}
	return c.Event.ID
}

func (c *CapsuleResult) fail(stage string, err error) {
	c.Stage = stage
	c.Err = err
}

// Report summarises a run.
type Report struct {
	RunID    string
	Network  beacon.Network
	RelayURL string
	Timing   beacon.Timing
	Waited   time.Duration

	Capsules []*CapsuleResult
	// Reached is the last state completed before the report was written.
	Reached   State
	Outcome   Outcome
	Err       error
	Preflight *preflight.Report

	Started  time.Time
	Finished time.Time
}

// Created counts capsules that were built.
func (r *Report) Created() int {
	return r.count(func(c *CapsuleResult) bool { return c.Created })
}

// Published counts capsules the relay accepted.
func (r *Report) Published() int {
	return r.count(func(c *CapsuleResult) bool { return c.Published })
}

// Decrypted counts capsules that opened to their original message.
func (r *Report) Decrypted() int {
	return r.count(func(c *CapsuleResult) bool { return c.Decrypted })
}

func (r *Report) count(pred func(*CapsuleResult) bool) int {
	n := 0
	for _, c := range r.Capsules {
		if pred(c) {
			n++
		}
	}
	return n
}

// Succeeded reports whether every capsule was created, published and decrypted.
func (r *Report) Succeeded() bool {
	if r.Err != nil || len(r.Capsules) == 0 {
		return false
	}
	total := len(r.Capsules)
	return r.Created() == total && r.Published() == total && r.Decrypted() == total
}

// ExitCode maps the outcome to a process exit status.
func (r *Report) ExitCode() int {
	switch r.Outcome {
	case OutcomeSuccess:
		return ExitSuccess
	case OutcomeInterrupted:
		return ExitInterrupted
	default:
		return ExitFailure
	}
}

// Render writes the human-readable report.
func (r *Report) Render(w io.Writer) {
	total := len(r.Capsules)
	fmt.Fprintf(w, "\nRun %s: %s\n", r.RunID, r.Outcome)
	fmt.Fprintf(w, "Network:   %s (%s)\n", r.Network.Label(), r.Network.ChainHash)
	fmt.Fprintf(w, "Relay:     %s\n", r.RelayURL)
	if r.Timing.TargetRound > 0 {
		fmt.Fprintf(w, "Rounds:    current %d, target %d (+%d, period %s)\n",
			r.Timing.CurrentRound, r.Timing.TargetRound, r.Timing.RoundsNeeded, r.Timing.Period)
	}
	if r.Waited > 0 {
		fmt.Fprintf(w, "Waited:    %s\n", r.Waited.Round(time.Second))
	}
	fmt.Fprintf(w, "Created:   %d/%d\n", r.Created(), total)
	fmt.Fprintf(w, "Published: %d/%d\n", r.Published(), total)
	fmt.Fprintf(w, "Decrypted: %d/%d\n", r.Decrypted(), total)
	if r.Err != nil {
		fmt.Fprintf(w, "Failed at: %s\n", r.Reached+1)
		fmt.Fprintf(w, "Error:     %s\n", describe(r.Err))
	}

	if total == 0 {
		return
	}
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Mode", "Event ID", "Created", "Published", "Decrypted", "Detail"})
	table.SetBorder(true)
	table.SetAutoWrapText(false)
	for _, c := range r.Capsules {
		table.Append([]string{
			c.Mode,
			shortID(c.EventID()),
			mark(c.Created),
			mark(c.Published),
			mark(c.Decrypted),
			detail(c),
		})
	}
	table.Render()
}

func detail(c *CapsuleResult) string {
	if c.Err != nil {
		return c.Stage + ": " + describe(c.Err)
	}
	if c.Relay != nil && c.Relay.Message != "" {
		return "relay: " + c.Relay.Message
	}
	if c.Decrypted {
		return strconv.Quote(c.Plaintext)
	}
	return ""
}

func describe(err error) string {
	var appErr *errors.AppError
	if stderrors.As(err, &appErr) {
		return appErr.UserFacing()
	}
	return err.Error()
}

func mark(ok bool) string {
	if ok {
		return "yes"
	}
	return "no"
}

func shortID(id string) string {
	if len(id) <= 16 {
		return id
	}
	return id[:16] + "…"
}
