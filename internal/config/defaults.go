package config

import (
	"time"

	"github.com/seekscale/smbcacheproxy/internal/bytesize"
)

// Defaults returns a Config populated entirely with defaults, used when no
// config file is found (mirrors the teacher's GetDefaultConfig).
func Defaults() *Config {
	cfg := &Config{}
	applyMissingDefaults(cfg)
	return cfg
}

// applyMissingDefaults fills every zero-valued field with its §6 default,
// following the teacher's ApplyDefaults idiom of one apply* helper per
// config section.
func applyMissingDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyListenDefaults(&cfg.Listen)
	applyBackendDefaults(&cfg.Backend)
	applyKVDefaults(&cfg.KV)
	applyProxyDefaults(cfg)
	applyTelemetryDefaults(&cfg.Telemetry)
	applyMgmtDefaults(&cfg.Mgmt)
}

func applyTelemetryDefaults(cfg *TelemetryConfig) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "localhost:4317"
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 1.0
	}
}

func applyMgmtDefaults(cfg *MgmtConfig) {
	if cfg.StatsInterval <= 0 {
		cfg.StatsInterval = time.Second
	}
}

func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

func applyListenDefaults(cfg *ListenConfig) {
	if cfg.Address == "" {
		cfg.Address = "0.0.0.0"
	}
	if cfg.Port == 0 {
		cfg.Port = 445
	}
}

func applyBackendDefaults(cfg *BackendConfig) {
	if cfg.Address == "" {
		cfg.Address = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = 1445
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
}

func applyKVDefaults(cfg *KVConfig) {
	if cfg.Address == "" {
		cfg.Address = "127.0.0.1:6379"
	}
}

func applyProxyDefaults(cfg *Config) {
	if cfg.CacheClient3SizeThreshold == 0 {
		cfg.CacheClient3SizeThreshold = bytesize.ByteSize(1 << 20)
	}
	if cfg.MtimeRefreshThreshold <= 0 {
		cfg.MtimeRefreshThreshold = 5 * time.Second
	}
	if cfg.MtimeMetadataRefreshThreshold <= 0 {
		cfg.MtimeMetadataRefreshThreshold = 15 * time.Second
	}
	if cfg.ListDirTimeout <= 0 {
		cfg.ListDirTimeout = 50 * time.Second
	}
	if !cfg.EnableWriteThrough && cfg.SharesRoot == "" {
		// EnableWriteThrough defaults to true (§6). An empty SharesRoot marks
		// a config not loaded from a file; Load afterwards restores the
		// file's own enable_write_through, or true when the file omits it.
		cfg.EnableWriteThrough = true
	}
	if cfg.Audit.Dialect == "" {
		cfg.Audit.Dialect = "sqlite"
	}
}
