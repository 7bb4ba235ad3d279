package config

import "time"

// Collaborator backends
const (
	TimelockBackendDrand = "drand"
	TimelockBackendTle   = "tle"
	CryptoBackendNative  = "native"
	CryptoBackendNak     = "nak"
)

// CapsulesConfig holds what the run creates and which collaborators it uses.
type CapsulesConfig struct {
	UnlockDelay     time.Duration `mapstructure:"UNLOCK_DELAY"     json:"unlock_delay"     validate:"min=0"`
	PublicMessage   string        `mapstructure:"PUBLIC_MESSAGE"   json:"public_message"   validate:"required,capsule_message"`
	PrivateMessage  string        `mapstructure:"PRIVATE_MESSAGE"  json:"private_message"  validate:"required,capsule_message"`
	Concurrent      bool          `mapstructure:"CONCURRENT"       json:"concurrent"`
	TimestampJitter time.Duration `mapstructure:"TIMESTAMP_JITTER" json:"timestamp_jitter" validate:"min=0"`
	TimelockBackend string        `mapstructure:"TIMELOCK_BACKEND" json:"timelock_backend" validate:"required,oneof=drand tle"`
	CryptoBackend   string        `mapstructure:"CRYPTO_BACKEND"   json:"crypto_backend"   validate:"required,oneof=native nak"`
	ToolTimeout     time.Duration `mapstructure:"TOOL_TIMEOUT"     json:"tool_timeout"     validate:"required,timeout_duration"`
}
