package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/DeBrosOfficial/nameservice/pkg/config"
	"github.com/DeBrosOfficial/nameservice/pkg/logging"
	"github.com/DeBrosOfficial/nameservice/pkg/metrics"
	"github.com/DeBrosOfficial/nameservice/pkg/nameservice"
	"github.com/DeBrosOfficial/nameservice/pkg/wire"
)

const (
	envPrefix         = "NSD_"
	defaultConfigName = "nsd.yaml"
)

// loadConfig reads the config file, if any, over the defaults, then applies NSD_*
// environment overrides and validates the result.
func loadConfig() (*config.Config, error) {
	path := configPath
	if path == "" {
		// fall back to /etc/nsd or ~/.nsd when a file is there
		if p, err := config.DefaultPath(defaultConfigName); err == nil {
			if _, err := os.Stat(p); err == nil {
				path = p
			}
		}
	}
	cfg := config.DefaultConfig()
	if path != "" {
		var err error
		if cfg, err = config.LoadFile(path); err != nil {
			return nil, err
		}
	}
	if errs := cfg.ApplySource(config.EnvSource{Prefix: envPrefix}); len(errs) > 0 {
		return nil, multierr.Combine(errs...)
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, multierr.Combine(errs...)
	}
	return cfg, nil
}

func newLogger(cfg config.LoggingConfig) (*logging.ColoredLogger, error) {
	return logging.New(logging.Options{
		Level:  cfg.Level,
		Format: cfg.Format,
		Colors: cfg.Colors,
		File:   cfg.OutputFile,
	})
}

// daemon bundles a running Service with its metrics endpoint.
type daemon struct {
	cfg     *config.Config
	logger  *logging.ColoredLogger
	service *nameservice.Service
	metrics *metrics.Server
}

func startDaemon(ctx context.Context) (*daemon, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logger, err := newLogger(cfg.Logging)
	if err != nil {
		return nil, err
	}
	d := &daemon{cfg: cfg, logger: logger}

	m := metrics.NewNop()
	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		m = metrics.New(reg, cfg.Metrics.Namespace)
		d.metrics = metrics.NewServer(cfg.Metrics.ListenAddr, reg, logger)
		if err := d.metrics.Start(ctx); err != nil {
			return nil, err
		}
	}

	d.service, err = nameservice.New(nameservice.Options{
		Config:  cfg.NameService,
		Router:  cfg.Router,
		Logger:  logger,
		Metrics: m,
	})
	if err != nil {
		d.stop()
		return nil, err
	}
	if err := d.service.Acquire(ctx); err != nil {
		d.stop()
		return nil, err
	}
	logger.ComponentInfo(logging.ComponentCLI, "Name service running",
		zap.String("guid", d.service.GUID()),
		zap.Strings("interfaces", cfg.NameService.Interfaces),
		zap.Uint32("priority", d.service.Priority()))
	return d, nil
}

func (d *daemon) stop() {
	if d.service != nil {
		if err := d.service.Release(); err != nil {
			d.logger.ComponentWarn(logging.ComponentCLI, "Name service shutdown", zap.Error(err))
		}
	}
	if d.metrics != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := d.metrics.Stop(ctx); err != nil {
			d.logger.ComponentWarn(logging.ComponentCLI, "Metrics server shutdown", zap.Error(err))
		}
	}
	_ = d.logger.Sync()
}

// enable declares port for the transports in mask on both address families.
func (d *daemon) enable(mask wire.TransportMask, port uint16) error {
	var err error
	if mask.Has(wire.TransportTCP) {
		err = multierr.Append(err, d.service.Enable(wire.TransportTCP, nameservice.Ports{Reliable4: port, Reliable6: port}))
	}
	if mask.Has(wire.TransportUDP) {
		err = multierr.Append(err, d.service.Enable(wire.TransportUDP, nameservice.Ports{Unreliable4: port, Unreliable6: port}))
	}
	return err
}

func parseTransport(s string) (wire.TransportMask, error) {
	switch strings.ToLower(s) {
	case "tcp":
		return wire.TransportTCP, nil
	case "udp":
		return wire.TransportUDP, nil
	case "all", "any", "":
		return wire.TransportAll, nil
	}
	return 0, fmt.Errorf("unknown transport %q (want tcp, udp or all)", s)
}

func parsePolicy(s string) (nameservice.RetryPolicy, error) {
	for _, p := range []nameservice.RetryPolicy{nameservice.AlwaysRetry, nameservice.UntilFirstAnswer, nameservice.UntilAllAnswered} {
		if p.String() == s {
			return p, nil
		}
	}
	return 0, fmt.Errorf("unknown retry policy %q", s)
}
