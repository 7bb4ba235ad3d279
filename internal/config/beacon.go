package config

import "time"

// BeaconConfig holds the drand network table and polling behaviour.
type BeaconConfig struct {
	DefaultNetwork         string          `mapstructure:"DEFAULT_NETWORK"          json:"default_network"          validate:"required"`
	RequestTimeout         time.Duration   `mapstructure:"REQUEST_TIMEOUT"          json:"request_timeout"          validate:"required,timeout_duration"`
	PollInterval           time.Duration   `mapstructure:"POLL_INTERVAL"            json:"poll_interval"            validate:"required,poll_duration"`
	ErrorBackoff           time.Duration   `mapstructure:"ERROR_BACKOFF"            json:"error_backoff"            validate:"required,poll_duration"`
	MaxConsecutiveFailures int             `mapstructure:"MAX_CONSECUTIVE_FAILURES" json:"max_consecutive_failures" validate:"min=0,max=100000"`
	RequestsPerSecond      float64         `mapstructure:"REQUESTS_PER_SECOND"      json:"requests_per_second"      validate:"gt=0,max=100"`
	Networks               []NetworkConfig `mapstructure:"NETWORKS"                 json:"networks"                 validate:"required,min=1,dive"`
}

// NetworkConfig describes one drand beacon chain.
type NetworkConfig struct {
	Name        string `mapstructure:"NAME"         json:"name"         validate:"required,max=32"`
	DisplayName string `mapstructure:"DISPLAY_NAME" json:"display_name" validate:"omitempty,max=64"`
	ChainHash   string `mapstructure:"CHAIN_HASH"   json:"chain_hash"   validate:"required,chainhash"`
	API         string `mapstructure:"API"          json:"api"          validate:"required,url"`
	Period      int    `mapstructure:"PERIOD"       json:"period"       validate:"required,min=1,max=3600"`
	Description string `mapstructure:"DESCRIPTION"  json:"description"  validate:"omitempty,max=200"`
}

// Network returns the entry named name, or false.
func (b BeaconConfig) Network(name string) (NetworkConfig, bool) {
	for _, n := range b.Networks {
		if n.Name == name {
			return n, true
		}
	}
	return NetworkConfig{}, false
}
