package config

import (
	"time"
)

// Config represents the main configuration for a name service daemon
type Config struct {
	NameService NameServiceConfig `yaml:"nameservice"`
	Router      RouterConfig      `yaml:"router"`
	Logging     LoggingConfig     `yaml:"logging"`
	Metrics     MetricsConfig     `yaml:"metrics"`
}

// Well-known protocol ports and limits. The multicast groups are fixed and
// live in package netif.
const (
	DefaultNSPort         = 9956
	DefaultMDNSPort       = 5353
	DefaultMaxMessageSize = 1454
)

// DefaultConfig returns a configuration with the protocol defaults applied.
func DefaultConfig() *Config {
	return &Config{
		NameService: NameServiceConfig{
			Interfaces:      []string{"*"},
			EnableIPv4:      true,
			EnableIPv6:      true,
			EnableLegacy:    true,
			EnableMDNS:      true,
			LegacyVersion:   1,
			NSPort:          DefaultNSPort,
			MDNSPort:        DefaultMDNSPort,
			MaxMessageSize:  DefaultMaxMessageSize,
			AdvertDuration:  120 * time.Second,
			RetryIntervals:  []time.Duration{1 * time.Second, 2 * time.Second, 6 * time.Second, 18 * time.Second},
			BurstCount:      3,
			BurstInterval:   100 * time.Millisecond,
			TickInterval:    1 * time.Second,
			RescanMin:       5 * time.Second,
			RescanMax:       15 * time.Second,
			PeerCacheSize:   256,
			InboundBuffer:   256,
			EventBuffer:     64,
			RefreshAttempts: 3,
		},
		Router: RouterConfig{
			PowerSource:    1000,
			Mobility:       1,
			Availability:   0,
			NodeConnection: 1,
			MaxTCP:         16,
			MaxUDP:         16,
			MaxRemote:      8,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
			Colors: true,
		},
		Metrics: MetricsConfig{
			Enabled:    false,
			ListenAddr: "127.0.0.1:9957",
			Namespace:  "nsd",
		},
	}
}
