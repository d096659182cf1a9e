// Package config loads the proxy's configuration from a YAML file,
// environment variables (SMBPROXY_<SECTION>_<KEY>), and CLI flags, in that
// order of increasing precedence, following the teacher's pkg/config
// layering (viper + mapstructure, defaults applied post-load).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/seekscale/smbcacheproxy/internal/bytesize"
)

// Config is the complete configuration of §6 of the specification this
// proxy implements: every config key it enumerates, plus the listener/
// backend wiring the CLI flags cover.
type Config struct {
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Listen is the SMB wire endpoint clients connect to
	// (--listen-address/--listen-port, default 0.0.0.0:445).
	Listen ListenConfig `mapstructure:"listen" yaml:"listen"`

	// Backend is the real SMB server every accepted connection is relayed
	// to (--remote-samba-host/--remote-samba-port, default
	// 127.0.0.1:1445).
	Backend BackendConfig `mapstructure:"backend" yaml:"backend"`

	// Fileserver is the mutual-TLS backend HTTP API of §6
	// (--fileserver-address/--fileserver-port).
	Fileserver HTTPEndpointConfig `mapstructure:"fileserver" yaml:"fileserver"`

	// MetadataProxy is the plain-HTTP metadata mirror of §6
	// (--metadata-proxy-address/--metadata-proxy-port).
	MetadataProxy HTTPEndpointConfig `mapstructure:"metadata_proxy" yaml:"metadata_proxy"`

	// Content is the content-addressed store + TLS material of §6
	// (cache_host, ssl_cert, ssl_key, ssl_ca).
	Content ContentStoreConfig `mapstructure:"content" yaml:"content"`

	// KV is the shared external key-value store connection.
	KV KVConfig `mapstructure:"kv" yaml:"kv"`

	// SharesRoot is the local filesystem root shares materialize under
	// (--shares-root).
	SharesRoot string `mapstructure:"shares_root" yaml:"shares_root"`
	// ClusterUser is the account every materialized file/directory is
	// chowned to, resolved once at startup (§6 "Local filesystem
	// layout").
	ClusterUser string `mapstructure:"cluster_user" yaml:"cluster_user"`

	// ForceHost rewrites the host component of a UNC share path before
	// cache lookup (force_host).
	ForceHost string `mapstructure:"force_host" yaml:"force_host"`

	// CacheClient3SizeThreshold is cacheclient3_size_threshold, the
	// large-file split boundary (default 1 MiB).
	CacheClient3SizeThreshold bytesize.ByteSize `mapstructure:"cacheclient3_size_threshold" yaml:"cacheclient3_size_threshold"`
	// MtimeRefreshThreshold is mtime_refresh_threshold, the local
	// cache-hit staleness floor (default 5s).
	MtimeRefreshThreshold time.Duration `mapstructure:"mtime_refresh_threshold" yaml:"mtime_refresh_threshold"`
	// MtimeMetadataRefreshThreshold is mtime_metadata_refresh_threshold,
	// the metadata TTL (default 15s).
	MtimeMetadataRefreshThreshold time.Duration `mapstructure:"mtime_metadata_refresh_threshold" yaml:"mtime_metadata_refresh_threshold"`
	// NoRecheckMetadataPatterns is no_recheck_metadata_patterns, static
	// path prefixes given an 86400s TTL.
	NoRecheckMetadataPatterns []string `mapstructure:"no_recheck_metadata_patterns" yaml:"no_recheck_metadata_patterns"`

	// EnableWriteThrough gates SYNCBACK/DELETE/TOUCH (default true).
	EnableWriteThrough bool `mapstructure:"enable_write_through" yaml:"enable_write_through"`
	// EnableTouch gates TOUCH alone (default false).
	EnableTouch bool `mapstructure:"enable_touch" yaml:"enable_touch"`

	// LogSMB2Packets and DebugOutput are read from the config; nothing else
	// in the proxy consults them.
	LogSMB2Packets bool `mapstructure:"log_smb2_packets" yaml:"log_smb2_packets"`
	DebugOutput    bool `mapstructure:"debug_output" yaml:"debug_output"`

	// ListDirTimeout is list_dir_timeout (default 50s). It is not passed to
	// the HTTP connector, whose list_dir requests use the fixed
	// httpconn.TimeoutListDir.
	ListDirTimeout time.Duration `mapstructure:"list_dir_timeout" yaml:"list_dir_timeout"`

	Audit AuditConfig `mapstructure:"audit" yaml:"audit"`
	Stats StatsConfig `mapstructure:"stats" yaml:"stats"`

	// Telemetry configures the internal/telemetry OpenTelemetry tracer
	// (a span per dispatched action and per outbound HTTP call).
	Telemetry TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry"`

	// Mgmt configures the management surface of §4.H.
	Mgmt MgmtConfig `mapstructure:"mgmt" yaml:"mgmt"`
}

// TelemetryConfig controls internal/telemetry's OpenTelemetry tracer.
type TelemetryConfig struct {
	Enabled    bool    `mapstructure:"enabled" yaml:"enabled"`
	Endpoint   string  `mapstructure:"endpoint" yaml:"endpoint"`
	Insecure   bool    `mapstructure:"insecure" yaml:"insecure"`
	SampleRate float64 `mapstructure:"sample_rate" yaml:"sample_rate"`
}

// MgmtConfig controls the Unix-domain management socket and periodic
// stats writer of §4.H.
type MgmtConfig struct {
	SocketPath    string        `mapstructure:"socket_path" yaml:"socket_path"`
	StatsPath     string        `mapstructure:"stats_path" yaml:"stats_path"`
	StatsInterval time.Duration `mapstructure:"stats_interval" yaml:"stats_interval"`
	EnableMetrics bool          `mapstructure:"enable_metrics" yaml:"enable_metrics"`
}

// ListenConfig is the client-facing SMB endpoint.
type ListenConfig struct {
	Address string `mapstructure:"address" yaml:"address"`
	Port    int    `mapstructure:"port" yaml:"port"`
}

// BackendConfig is the real SMB server the proxy relays to.
type BackendConfig struct {
	Address string        `mapstructure:"address" yaml:"address"`
	Port    int           `mapstructure:"port" yaml:"port"`
	Timeout time.Duration `mapstructure:"dial_timeout" yaml:"dial_timeout"`
}

// HTTPEndpointConfig is a plain host/port HTTP endpoint (metadata proxy or
// fileserver before TLS is layered on).
type HTTPEndpointConfig struct {
	Address string `mapstructure:"address" yaml:"address"`
	Port    int    `mapstructure:"port" yaml:"port"`
}

// ContentStoreConfig is the content-addressed store + mutual-TLS material
// of §6.
type ContentStoreConfig struct {
	CacheHost string `mapstructure:"cache_host" yaml:"cache_host"`
	SSLCert   string `mapstructure:"ssl_cert" yaml:"ssl_cert"`
	SSLKey    string `mapstructure:"ssl_key" yaml:"ssl_key"`
	SSLCA     string `mapstructure:"ssl_ca" yaml:"ssl_ca"`
}

// KVConfig is the shared external KV store connection.
type KVConfig struct {
	Address  string `mapstructure:"address" yaml:"address"`
	Password string `mapstructure:"password" yaml:"password"`
	DB       int    `mapstructure:"db" yaml:"db"`
}

// AuditConfig controls the optional File_operations SQL sink.
type AuditConfig struct {
	// EnableAuditLog is enable_audit_log.
	EnableAuditLog bool `mapstructure:"enable_audit_log" yaml:"enable_audit_log"`
	// AuditLogHost is audit_log_host: a DSN for the audit database.
	AuditLogHost string `mapstructure:"audit_log_host" yaml:"audit_log_host"`
	// Dialect selects the SQL placeholder syntax: "postgres" or "sqlite".
	Dialect string `mapstructure:"dialect" yaml:"dialect"`
}

// StatsConfig controls the management surface's periodic stats writer and
// optional central forward.
type StatsConfig struct {
	// EnableCentralStatsForward is enable_central_stats_forward.
	EnableCentralStatsForward bool `mapstructure:"enable_central_stats_forward" yaml:"enable_central_stats_forward"`
	// CentralStatsServerHost is central_stats_server_host.
	CentralStatsServerHost string `mapstructure:"central_stats_server_host" yaml:"central_stats_server_host"`
	// StatsdHost/StatsdPort are statsd_host/statsd_port.
	StatsdHost string `mapstructure:"statsd_host" yaml:"statsd_host"`
	StatsdPort int    `mapstructure:"statsd_port" yaml:"statsd_port"`
}

// LoggingConfig controls internal/logger's behavior, following the
// teacher's LoggingConfig shape.
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
	Output string `mapstructure:"output" yaml:"output"`
}

// Load reads configPath (or the default location if empty), applies
// environment overrides and defaults, and returns the resulting Config.
// A missing config file is not an error: defaults are used, matching the
// teacher's Load behavior.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	found, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}
	if !found {
		cfg := Defaults()
		return cfg, nil
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(decodeHooks())); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	writeThrough := !v.IsSet("enable_write_through") || cfg.EnableWriteThrough
	applyMissingDefaults(&cfg)
	cfg.EnableWriteThrough = writeThrough
	return &cfg, nil
}

func setupViper(v *viper.Viper, configPath string) {
	v.SetEnvPrefix("SMBPROXY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		return
	}
	v.AddConfigPath(ConfigDir())
	v.SetConfigName("config")
	v.SetConfigType("yaml")
}

func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("config: read config file: %w", err)
	}
	return true, nil
}

func decodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(byteSizeHook(), durationHook())
}

func byteSizeHook() mapstructure.DecodeHookFunc {
	return func(_ reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(bytesize.ByteSize(0)) {
			return data, nil
		}
		switch v := data.(type) {
		case string:
			return bytesize.ParseByteSize(v)
		case int:
			return bytesize.ByteSize(v), nil
		case int64:
			return bytesize.ByteSize(v), nil
		case float64:
			return bytesize.ByteSize(v), nil
		default:
			return data, nil
		}
	}
}

func durationHook() mapstructure.DecodeHookFunc {
	return func(_ reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}
		switch v := data.(type) {
		case string:
			return time.ParseDuration(v)
		case int:
			return time.Duration(v) * time.Second, nil
		case float64:
			return time.Duration(v * float64(time.Second)), nil
		default:
			return data, nil
		}
	}
}

// ConfigDir returns $XDG_CONFIG_HOME/smbcacheproxy, falling back to
// ~/.config/smbcacheproxy, or "." if the home directory can't be
// determined.
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "smbcacheproxy")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "smbcacheproxy")
}

// DefaultConfigPath returns the default configuration file path.
func DefaultConfigPath() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// DefaultConfigExists reports whether a config file exists at the default
// location.
func DefaultConfigExists() bool {
	_, err := os.Stat(DefaultConfigPath())
	return err == nil
}

// SaveConfig writes cfg as YAML to path, creating parent directories as
// needed.
func SaveConfig(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("config: create config directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("config: write config file: %w", err)
	}
	return nil
}
