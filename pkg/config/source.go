package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Source is an external key/value configuration provider. Keys use the
// dotted YAML path, e.g. "nameservice.burst_count".
type Source interface {
	Lookup(key string) (string, bool)
}

// MapSource is a Source backed by a plain map.
type MapSource map[string]string

// Lookup implements Source.
func (m MapSource) Lookup(key string) (string, bool) {
	v, ok := m[key]
	return v, ok
}

// EnvSource looks keys up in the process environment under Prefix, with
// dots replaced by underscores and the result upper-cased:
// "nameservice.burst_count" -> NSD_NAMESERVICE_BURST_COUNT.
type EnvSource struct {
	Prefix string
}

// Lookup implements Source.
func (e EnvSource) Lookup(key string) (string, bool) {
	name := strings.ToUpper(e.Prefix + strings.ReplaceAll(key, ".", "_"))
	return os.LookupEnv(name)
}

type setter func(string) error

func intSetter(dst *int) setter {
	return func(s string) error {
		v, err := strconv.Atoi(strings.TrimSpace(s))
		if err != nil {
			return err
		}
		*dst = v
		return nil
	}
}

func boolSetter(dst *bool) setter {
	return func(s string) error {
		v, err := strconv.ParseBool(strings.TrimSpace(s))
		if err != nil {
			return err
		}
		*dst = v
		return nil
	}
}

func durationSetter(dst *time.Duration) setter {
	return func(s string) error {
		v, err := time.ParseDuration(strings.TrimSpace(s))
		if err != nil {
			return err
		}
		*dst = v
		return nil
	}
}

func stringSetter(dst *string) setter {
	return func(s string) error {
		*dst = s
		return nil
	}
}

func listSetter(dst *[]string) setter {
	return func(s string) error {
		var out []string
		for _, part := range strings.Split(s, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		*dst = out
		return nil
	}
}

func durationListSetter(dst *[]time.Duration) setter {
	return func(s string) error {
		var out []time.Duration
		for _, part := range strings.Split(s, ",") {
			d, err := time.ParseDuration(strings.TrimSpace(part))
			if err != nil {
				return err
			}
			out = append(out, d)
		}
		*dst = out
		return nil
	}
}

func (c *Config) setters() map[string]setter {
	ns := &c.NameService
	r := &c.Router
	return map[string]setter{
		"nameservice.guid":             stringSetter(&ns.GUID),
		"nameservice.interfaces":       listSetter(&ns.Interfaces),
		"nameservice.enable_ipv4":      boolSetter(&ns.EnableIPv4),
		"nameservice.enable_ipv6":      boolSetter(&ns.EnableIPv6),
		"nameservice.enable_legacy":    boolSetter(&ns.EnableLegacy),
		"nameservice.enable_mdns":      boolSetter(&ns.EnableMDNS),
		"nameservice.legacy_version":   intSetter(&ns.LegacyVersion),
		"nameservice.ns_port":          intSetter(&ns.NSPort),
		"nameservice.mdns_port":        intSetter(&ns.MDNSPort),
		"nameservice.max_message_size": intSetter(&ns.MaxMessageSize),
		"nameservice.advert_duration":  durationSetter(&ns.AdvertDuration),
		"nameservice.retry_intervals":  durationListSetter(&ns.RetryIntervals),
		"nameservice.burst_count":      intSetter(&ns.BurstCount),
		"nameservice.burst_interval":   durationSetter(&ns.BurstInterval),
		"nameservice.tick_interval":    durationSetter(&ns.TickInterval),
		"nameservice.rescan_min":       durationSetter(&ns.RescanMin),
		"nameservice.rescan_max":       durationSetter(&ns.RescanMax),
		"nameservice.peer_cache_size":  intSetter(&ns.PeerCacheSize),
		"nameservice.inbound_buffer":   intSetter(&ns.InboundBuffer),
		"nameservice.event_buffer":     intSetter(&ns.EventBuffer),
		"nameservice.refresh_attempts": intSetter(&ns.RefreshAttempts),
		"router.power_source":          intSetter(&r.PowerSource),
		"router.mobility":              intSetter(&r.Mobility),
		"router.availability":          intSetter(&r.Availability),
		"router.node_connection":       intSetter(&r.NodeConnection),
		"router.max_tcp":               intSetter(&r.MaxTCP),
		"router.max_udp":               intSetter(&r.MaxUDP),
		"router.max_remote":            intSetter(&r.MaxRemote),
		"logging.level":                stringSetter(&c.Logging.Level),
		"logging.format":               stringSetter(&c.Logging.Format),
		"logging.output_file":          stringSetter(&c.Logging.OutputFile),
		"logging.colors":               boolSetter(&c.Logging.Colors),
		"metrics.enabled":              boolSetter(&c.Metrics.Enabled),
		"metrics.listen_addr":          stringSetter(&c.Metrics.ListenAddr),
		"metrics.namespace":            stringSetter(&c.Metrics.Namespace),
	}
}

// Keys lists every key ApplySource understands.
func Keys() []string {
	var c Config
	keys := make([]string, 0, 40)
	for k := range c.setters() {
		keys = append(keys, k)
	}
	return keys
}

// ApplySource overlays every key the source knows about onto c.
// Unparseable values are reported together; valid keys are still applied.
func (c *Config) ApplySource(src Source) []error {
	if src == nil {
		return nil
	}
	var errs []error
	for key, set := range c.setters() {
		raw, ok := src.Lookup(key)
		if !ok {
			continue
		}
		if err := set(raw); err != nil {
			errs = append(errs, ValidationError{
				Path:    key,
				Message: fmt.Sprintf("cannot parse %q: %v", raw, err),
			})
		}
	}
	return errs
}
