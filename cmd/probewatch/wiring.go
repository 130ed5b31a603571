package main

import (
	"fmt"
	"os"

	"probewatch/internal/core/domain"
	"probewatch/internal/core/services"
	"probewatch/internal/infrastructure/atlas"
	"probewatch/pkg/config"
	"probewatch/pkg/logger"

	"github.com/spf13/cobra"
)

var defaultConfigPaths = []string{
	"configs/config.yaml",
	"./configs/config.yaml",
	"/etc/probewatch/config.yaml",
	"config.yaml",
}

// loadConfig reads the file named by --config, or the first default path
// that exists. Without either the built-in defaults apply.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString(configFlag)
	if path != "" {
		cfg, err := config.Load(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load config %s: %w", path, err)
		}
		return cfg, nil
	}

	for _, p := range defaultConfigPaths {
		if _, err := os.Stat(p); err == nil {
			return config.Load(p)
		}
	}
	return config.Load("")
}

func loggerConfig(cfg *config.Config) logger.Config {
	return logger.Config{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
		Compress:   cfg.Logging.Compress,
	}
}

func engineConfig(cfg *config.Config) services.EngineConfig {
	ec := services.DefaultEngineConfig()
	ec.ComparatorShards = cfg.Engine.ComparatorShards
	ec.QueueSize = cfg.Engine.QueueSize
	ec.DispatchTimeout = cfg.Engine.DispatchTimeout

	ec.Tracker.Window = cfg.Tracker.Window
	ec.Tracker.MajorityThreshold = cfg.Tracker.MajorityThreshold
	ec.Tracker.SignificantChange = cfg.Tracker.SignificantChange
	ec.Tracker.OfflineThreshold = cfg.Tracker.OfflineThreshold
	ec.Tracker.BurstCount = cfg.Tracker.BurstCount

	ec.Comparator.DefaultInterval = cfg.Comparator.DefaultInterval
	ec.Comparator.StaleTolerance = cfg.Comparator.StaleTolerance
	ec.Comparator.RTTTolerance = cfg.Comparator.RTTTolerance
	return ec
}

func clientConfig(cfg *config.Config) atlas.ClientConfig {
	return atlas.ClientConfig{
		BaseURL:          cfg.Atlas.BaseURL,
		APIKey:           cfg.Atlas.APIKey,
		UserAgent:        cfg.Atlas.UserAgent,
		Timeout:          cfg.Atlas.Timeout,
		IntervalCacheTTL: cfg.Atlas.IntervalCacheTTL,
		Retry:            cfg.Reliability.Retry,
		CircuitBreaker:   cfg.Reliability.CircuitBreaker,
	}
}

func streamConfig(cfg *config.Config) atlas.StreamConfig {
	return atlas.StreamConfig{
		URL:              cfg.Stream.URL,
		Measurements:     measurementIDs(cfg.Stream.Measurements),
		PingInterval:     cfg.Stream.PingInterval,
		PongTimeout:      cfg.Stream.PongTimeout,
		WriteTimeout:     cfg.Stream.WriteTimeout,
		ReconnectInitial: cfg.Stream.ReconnectInitial,
		ReconnectMax:     cfg.Stream.ReconnectMax,
		MaxMessageSize:   cfg.Stream.MaxMessageSizeBytes,
		UserAgent:        cfg.Atlas.UserAgent,
	}
}

func pollerConfig(cfg *config.Config) atlas.PollerConfig {
	probes := make([]domain.ProbeID, 0, len(cfg.Poller.ProbeIDs))
	for _, id := range cfg.Poller.ProbeIDs {
		probes = append(probes, domain.ProbeID(id))
	}
	return atlas.PollerConfig{
		Interval:     cfg.Poller.Interval,
		Measurements: measurementIDs(cfg.Poller.Measurements),
		Probes:       probes,
	}
}

func measurementIDs(ids []int) []domain.MeasurementID {
	out := make([]domain.MeasurementID, 0, len(ids))
	for _, id := range ids {
		out = append(out, domain.MeasurementID(id))
	}
	return out
}
