package validate

import (
	"fmt"
	"time"
)

// NameServiceConfig mirrors config.NameServiceConfig for validation purposes.
type NameServiceConfig struct {
	GUID           string
	Interfaces     []string
	EnableIPv4     bool
	EnableIPv6     bool
	EnableLegacy   bool
	EnableMDNS     bool
	LegacyVersion  int
	NSPort         int
	MDNSPort       int
	MaxMessageSize int
	AdvertDuration time.Duration
	RetryIntervals []time.Duration
	BurstCount     int
	BurstInterval  time.Duration
	TickInterval   time.Duration
	RescanMin      time.Duration
	RescanMax      time.Duration
	PeerCacheSize  int
	InboundBuffer  int
	EventBuffer    int
}

// maxWireTimer is the largest finite timer a legacy answer can carry.
const maxWireTimer = 254 * time.Second

// ValidateNameService performs validation of the discovery engine settings.
func ValidateNameService(ns NameServiceConfig) []error {
	var errs []error
	add := func(path, msg, hint string) {
		errs = append(errs, ValidationError{Path: path, Message: msg, Hint: hint})
	}

	if ns.GUID != "" {
		if len(ns.GUID) != 32 {
			add("nameservice.guid", fmt.Sprintf("must be 32 hex characters; got %d", len(ns.GUID)), "leave empty to auto-generate")
		} else {
			for _, r := range ns.GUID {
				if !(r >= '0' && r <= '9' || r >= 'a' && r <= 'f') {
					add("nameservice.guid", "must be lower-case hex", "")
					break
				}
			}
		}
	}

	if len(ns.Interfaces) == 0 {
		add("nameservice.interfaces", "must not be empty", `use ["*"] for every interface`)
	}
	for i, match := range ns.Interfaces {
		if err := ValidateInterfaceMatch(match); err != nil {
			add(fmt.Sprintf("nameservice.interfaces[%d]", i), err.Error(), "")
		}
	}

	if !ns.EnableIPv4 && !ns.EnableIPv6 {
		add("nameservice.enable_ipv4", "at least one address family must be enabled", "")
	}
	if !ns.EnableLegacy && !ns.EnableMDNS {
		add("nameservice.enable_legacy", "at least one wire generation must be enabled", "")
	}
	if ns.LegacyVersion != 0 && ns.LegacyVersion != 1 {
		add("nameservice.legacy_version", fmt.Sprintf("invalid value %d", ns.LegacyVersion), "allowed values: 0, 1")
	}

	if err := ValidatePort(ns.NSPort); err != nil {
		add("nameservice.ns_port", err.Error(), "")
	}
	if err := ValidatePort(ns.MDNSPort); err != nil {
		add("nameservice.mdns_port", err.Error(), "")
	}
	if ns.MaxMessageSize < 512 || ns.MaxMessageSize > 9000 {
		add("nameservice.max_message_size", fmt.Sprintf("must be between 512 and 9000; got %d", ns.MaxMessageSize), "default is 1454")
	}

	if ns.AdvertDuration < 3*time.Second || ns.AdvertDuration > maxWireTimer {
		add("nameservice.advert_duration", fmt.Sprintf("must be between 3s and %s; got %s", maxWireTimer, ns.AdvertDuration), "")
	}

	if len(ns.RetryIntervals) == 0 {
		add("nameservice.retry_intervals", "must not be empty", "default is [1s, 2s, 6s, 18s]")
	}
	for i, d := range ns.RetryIntervals {
		if d <= 0 {
			add(fmt.Sprintf("nameservice.retry_intervals[%d]", i), "must be positive", "")
		} else if i > 0 && d < ns.RetryIntervals[i-1] {
			add(fmt.Sprintf("nameservice.retry_intervals[%d]", i), "must not decrease", "")
		}
	}

	if ns.BurstCount < 1 || ns.BurstCount > 10 {
		add("nameservice.burst_count", fmt.Sprintf("must be between 1 and 10; got %d", ns.BurstCount), "")
	}
	if ns.BurstInterval <= 0 || ns.BurstInterval >= ns.TickInterval {
		add("nameservice.burst_interval", "must be positive and shorter than tick_interval", "")
	}
	if ns.TickInterval <= 0 {
		add("nameservice.tick_interval", "must be positive", "")
	}
	if ns.RescanMin <= 0 || ns.RescanMax < ns.RescanMin {
		add("nameservice.rescan_min", "need 0 < rescan_min <= rescan_max", "")
	}

	for path, v := range map[string]int{
		"nameservice.peer_cache_size": ns.PeerCacheSize,
		"nameservice.inbound_buffer":  ns.InboundBuffer,
		"nameservice.event_buffer":    ns.EventBuffer,
	} {
		if v < 1 {
			add(path, fmt.Sprintf("must be positive; got %d", v), "")
		}
	}

	return errs
}
