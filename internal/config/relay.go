package config

import "time"

// RelayConfig holds the target relay and its transport timeouts.
type RelayConfig struct {
	URL           string        `mapstructure:"URL"             json:"url"             validate:"required,wsurl"`
	DialTimeout   time.Duration `mapstructure:"DIAL_TIMEOUT"    json:"dial_timeout"    validate:"required,timeout_duration"`
	WriteTimeout  time.Duration `mapstructure:"WRITE_TIMEOUT"   json:"write_timeout"   validate:"required,timeout_duration"`
	ReadTimeout   time.Duration `mapstructure:"READ_TIMEOUT"    json:"read_timeout"    validate:"required,timeout_duration"`
	VerifyEventID bool          `mapstructure:"VERIFY_EVENT_ID" json:"verify_event_id"`
	FetchInfo     bool          `mapstructure:"FETCH_INFO"      json:"fetch_info"`
}
