package application

import (
	"github.com/Shugur-Network/capsule-validator/internal/metrics"
	"go.uber.org/zap"
)

// State is a step of a validation run. A run only advances when the previous
// step succeeded; any failure jumps straight to StateReported.
type State int

const (
	StateInit State = iota
	StateKeysGenerated
	StateTimingComputed
	StateCapsulesCreated
	StatePublished
	StateWaitingForUnlock
	StateDecrypted
	StateReported
)

var stateNames = [...]string{
	StateInit:             "init",
	StateKeysGenerated:    "keys_generated",
	StateTimingComputed:   "timing_computed",
	StateCapsulesCreated:  "capsules_created",
	StatePublished:        "published",
	StateWaitingForUnlock: "waiting_for_unlock",
	StateDecrypted:        "decrypted",
	StateReported:         "reported",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// transition records the new state on the orchestrator and the state gauge.
func (o *Orchestrator) transition(s State) {
	o.state = s
	metrics.SetState(int(s))
	o.logger.Debug("state transition", zap.Stringer("state", s))
}
