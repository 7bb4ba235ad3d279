// Package beacon talks to drand randomness beacons: it resolves chain hashes
// against the configured network table, reads rounds over the public HTTP
// API, converts unlock times to target rounds and waits for rounds to pass.
package beacon

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/Shugur-Network/capsule-validator/internal/config"
	"github.com/Shugur-Network/capsule-validator/internal/errors"
)

// Network identifies a drand beacon chain. Immutable once loaded.
type Network struct {
	Name        string
	DisplayName string
	ChainHash   string
	API         string
	Period      time.Duration
	Description string
}

// LatestURL is the endpoint returning the most recent round.
func (n Network) LatestURL() string {
	return fmt.Sprintf("%s/%s/public/latest", strings.TrimRight(n.API, "/"), n.ChainHash)
}

// InfoURL is the endpoint returning chain parameters.
func (n Network) InfoURL() string {
	return fmt.Sprintf("%s/%s/info", strings.TrimRight(n.API, "/"), n.ChainHash)
}

// Label is the human readable name used in logs and reports.
func (n Network) Label() string {
	if n.DisplayName != "" {
		return n.DisplayName
	}
	return n.Name
}

// Registry is the read-only table of known beacon networks.
type Registry struct {
	byHash map[string]Network
	byName map[string]Network
}

// NewRegistry builds a registry; later entries with a duplicate hash or name win.
func NewRegistry(networks ...Network) *Registry {
	r := &Registry{
		byHash: make(map[string]Network, len(networks)),
		byName: make(map[string]Network, len(networks)),
	}
	for _, n := range networks {
		r.byHash[n.ChainHash] = n
		r.byName[n.Name] = n
	}
	return r
}

// RegistryFromConfig converts the configured network table.
func RegistryFromConfig(cfg config.BeaconConfig) *Registry {
	networks := make([]Network, 0, len(cfg.Networks))
	for _, n := range cfg.Networks {
		networks = append(networks, Network{
			Name:        n.Name,
			DisplayName: n.DisplayName,
			ChainHash:   n.ChainHash,
			API:         n.API,
			Period:      time.Duration(n.Period) * time.Second,
			Description: n.Description,
		})
	}
	return NewRegistry(networks...)
}

// ByChainHash resolves a chain hash, failing with UnknownChain.
func (r *Registry) ByChainHash(chainHash string) (Network, error) {
	n, ok := r.byHash[chainHash]
	if !ok {
		return Network{}, errors.UnknownChain(chainHash)
	}
	return n, nil
}

// ByName resolves a configured network name, failing with UnknownChain.
func (r *Registry) ByName(name string) (Network, error) {
	n, ok := r.byName[name]
	if !ok {
		return Network{}, errors.UnknownChain(name)
	}
	return n, nil
}

// All returns the networks sorted by name.
func (r *Registry) All() []Network {
	out := make([]Network, 0, len(r.byName))
	for _, n := range r.byName {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
