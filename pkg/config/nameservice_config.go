package config

import "time"

// NameServiceConfig contains discovery engine configuration
type NameServiceConfig struct {
	GUID       string   `yaml:"guid"`       // Auto-generated if empty
	Interfaces []string `yaml:"interfaces"` // Interface names, IP literals or "*"
	EnableIPv4 bool     `yaml:"enable_ipv4"`
	EnableIPv6 bool     `yaml:"enable_ipv6"`

	// Wire generations sent. Both are always accepted on receive.
	EnableLegacy  bool `yaml:"enable_legacy"`
	EnableMDNS    bool `yaml:"enable_mdns"`
	LegacyVersion int  `yaml:"legacy_version"` // 0 or 1

	NSPort         int `yaml:"ns_port"`
	MDNSPort       int `yaml:"mdns_port"`
	MaxMessageSize int `yaml:"max_message_size"`

	AdvertDuration time.Duration   `yaml:"advert_duration"`
	RetryIntervals []time.Duration `yaml:"retry_intervals"`
	BurstCount     int             `yaml:"burst_count"`
	BurstInterval  time.Duration   `yaml:"burst_interval"`
	TickInterval   time.Duration   `yaml:"tick_interval"`
	RescanMin      time.Duration   `yaml:"rescan_min"`
	RescanMax      time.Duration   `yaml:"rescan_max"`

	PeerCacheSize   int `yaml:"peer_cache_size"`
	InboundBuffer   int `yaml:"inbound_buffer"`
	EventBuffer     int `yaml:"event_buffer"`
	RefreshAttempts int `yaml:"refresh_attempts"` // unanswered unicast refreshes before a peer is dropped
}
