package config

import (
	"github.com/DeBrosOfficial/nameservice/pkg/config/validate"
)

// ValidationError represents a single validation error with context.
type ValidationError = validate.ValidationError

// Validate performs comprehensive validation of the entire config.
// It aggregates all errors and returns them, allowing the caller to print all issues at once.
func (c *Config) Validate() []error {
	var errs []error

	ns := c.NameService
	errs = append(errs, validate.ValidateNameService(validate.NameServiceConfig{
		GUID:           ns.GUID,
		Interfaces:     ns.Interfaces,
		EnableIPv4:     ns.EnableIPv4,
		EnableIPv6:     ns.EnableIPv6,
		EnableLegacy:   ns.EnableLegacy,
		EnableMDNS:     ns.EnableMDNS,
		LegacyVersion:  ns.LegacyVersion,
		NSPort:         ns.NSPort,
		MDNSPort:       ns.MDNSPort,
		MaxMessageSize: ns.MaxMessageSize,
		AdvertDuration: ns.AdvertDuration,
		RetryIntervals: ns.RetryIntervals,
		BurstCount:     ns.BurstCount,
		BurstInterval:  ns.BurstInterval,
		TickInterval:   ns.TickInterval,
		RescanMin:      ns.RescanMin,
		RescanMax:      ns.RescanMax,
		PeerCacheSize:  ns.PeerCacheSize,
		InboundBuffer:  ns.InboundBuffer,
		EventBuffer:    ns.EventBuffer,
	})...)

	r := c.Router
	errs = append(errs, validate.ValidateRouter(validate.RouterConfig{
		PowerSource:    r.PowerSource,
		Mobility:       r.Mobility,
		Availability:   r.Availability,
		NodeConnection: r.NodeConnection,
		MaxTCP:         r.MaxTCP,
		MaxUDP:         r.MaxUDP,
		MaxRemote:      r.MaxRemote,
	})...)

	errs = append(errs, validate.ValidateLogging(validate.LoggingConfig{
		Level:      c.Logging.Level,
		Format:     c.Logging.Format,
		OutputFile: c.Logging.OutputFile,
	})...)

	errs = append(errs, validate.ValidateMetrics(validate.MetricsConfig{
		Enabled:    c.Metrics.Enabled,
		ListenAddr: c.Metrics.ListenAddr,
		Namespace:  c.Metrics.Namespace,
	})...)

	if ns.NSPort == ns.MDNSPort {
		errs = append(errs, ValidationError{
			Path:    "nameservice.mdns_port",
			Message: "must differ from ns_port",
		})
	}

	return errs
}
