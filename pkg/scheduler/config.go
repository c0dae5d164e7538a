package scheduler

import (
	"time"

	"github.com/pion/logging"

	"github.com/shelfos/shelfos/pkg/config"
	"github.com/shelfos/shelfos/pkg/discovery"
	"github.com/shelfos/shelfos/pkg/peripheral"
	"github.com/shelfos/shelfos/pkg/queenauth"
	"github.com/shelfos/shelfos/pkg/radio"
	"github.com/shelfos/shelfos/pkg/registry"
	"github.com/shelfos/shelfos/pkg/rpc"
)

// Config configures a Node. Grounded on matter.NodeConfig's
// Validate-then-applyDefaults shape.
type Config struct {
	NodeID string
	Label  string

	Radio          radio.Radio
	ConfigStore    *config.Store
	PeripheralHost *peripheral.Host

	// Registry and Authority are non-nil only on a queen node: Registry
	// backs per-peer authorization checks for every inbound swarm frame,
	// and Authority drives "Add Computer" pairing sessions. A worker node
	// leaves both nil — it trusts the single swarm secret it was handed at
	// pairing time and has no registry of its own.
	Registry  *registry.Registry
	Authority *queenauth.Authority

	// AnnounceInterval/AnnounceTTL default to discovery's own defaults.
	AnnounceInterval time.Duration
	AnnounceTTL      time.Duration

	// CallTimeout defaults to rpc.DefaultCallTimeout.
	CallTimeout time.Duration

	OnStateChanged OnStateChanged
	LoggerFactory  logging.LoggerFactory
}

func (c *Config) applyDefaults() {
	if c.AnnounceInterval == 0 {
		c.AnnounceInterval = discovery.DefaultAnnounceInterval
	}
	if c.AnnounceTTL == 0 {
		c.AnnounceTTL = discovery.DefaultAnnounceTTL
	}
	if c.CallTimeout == 0 {
		c.CallTimeout = rpc.DefaultCallTimeout
	}
}

// Validate checks the Config carries everything a Node needs to start.
func (c *Config) Validate() error {
	if c.NodeID == "" {
		return ErrMissingNodeID
	}
	if c.Radio == nil {
		return ErrMissingRadio
	}
	if c.ConfigStore == nil {
		return ErrMissingConfigStore
	}
	if c.PeripheralHost == nil {
		return ErrMissingPeripheralHost
	}
	return nil
}
