package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/seekscale/smbcacheproxy/internal/config"
	"github.com/seekscale/smbcacheproxy/internal/logger"
	"github.com/seekscale/smbcacheproxy/internal/telemetry"
	"github.com/seekscale/smbcacheproxy/pkg/audit"
	"github.com/seekscale/smbcacheproxy/pkg/fscache"
	"github.com/seekscale/smbcacheproxy/pkg/httpconn"
	"github.com/seekscale/smbcacheproxy/pkg/kv"
	"github.com/seekscale/smbcacheproxy/pkg/metacache"
	"github.com/seekscale/smbcacheproxy/pkg/mgmt"
	"github.com/seekscale/smbcacheproxy/pkg/proxy"
	"github.com/seekscale/smbcacheproxy/pkg/transfer"
)

// CLI flags from §6 that override the loaded config, following the
// teacher's start command convention of flag-overrides-config.
var (
	flagListenAddress  string
	flagListenPort     int
	flagFileserverAddr string
	flagFileserverPort int
	flagMetaProxyAddr  string
	flagMetaProxyPort  int
	flagSharesRoot     string
	flagSambaHost      string
	flagSambaPort      int
	flagBgWorkers      int
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the SMB2 cache proxy",
	Long: `Start the smbcacheproxy daemon: accept SMB connections, relay them
to the backend SMB server, and intercept the handful of SMB2 commands (§4.F)
needed to keep the local share tree in sync with the remote source
filesystem.`,
	RunE: runStart,
}

func init() {
	startCmd.Flags().StringVar(&flagListenAddress, "listen-address", "", "SMB listen address (overrides config)")
	startCmd.Flags().IntVar(&flagListenPort, "listen-port", 0, "SMB listen port (overrides config)")
	startCmd.Flags().StringVar(&flagFileserverAddr, "fileserver-address", "", "backend fileserver address (overrides config)")
	startCmd.Flags().IntVar(&flagFileserverPort, "fileserver-port", 0, "backend fileserver port (overrides config)")
	startCmd.Flags().StringVar(&flagMetaProxyAddr, "metadata-proxy-address", "", "metadata proxy address (overrides config)")
	startCmd.Flags().IntVar(&flagMetaProxyPort, "metadata-proxy-port", 0, "metadata proxy port (overrides config)")
	startCmd.Flags().StringVar(&flagSharesRoot, "shares-root", "", "local shares root (overrides config)")
	startCmd.Flags().StringVar(&flagSambaHost, "remote-samba-host", "", "backend SMB server host (overrides config)")
	startCmd.Flags().IntVar(&flagSambaPort, "remote-samba-port", 0, "backend SMB server port (overrides config)")
	startCmd.Flags().IntVar(&flagBgWorkers, "background-download-workers", 4, "number of background-download queue workers")
}

func applyFlagOverrides(cfg *config.Config) {
	if flagListenAddress != "" {
		cfg.Listen.Address = flagListenAddress
	}
	if flagListenPort != 0 {
		cfg.Listen.Port = flagListenPort
	}
	if flagFileserverAddr != "" {
		cfg.Fileserver.Address = flagFileserverAddr
	}
	if flagFileserverPort != 0 {
		cfg.Fileserver.Port = flagFileserverPort
	}
	if flagMetaProxyAddr != "" {
		cfg.MetadataProxy.Address = flagMetaProxyAddr
	}
	if flagMetaProxyPort != 0 {
		cfg.MetadataProxy.Port = flagMetaProxyPort
	}
	if flagSharesRoot != "" {
		cfg.SharesRoot = flagSharesRoot
	}
	if flagSambaHost != "" {
		cfg.Backend.Address = flagSambaHost
	}
	if flagSambaPort != 0 {
		cfg.Backend.Port = flagSambaPort
	}
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(GetConfigFile())
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	applyFlagOverrides(cfg)

	if err := InitLogger(cfg); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	telemetryShutdown, err := telemetry.Init(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    "smbcacheproxy",
		ServiceVersion: Version,
		Endpoint:       cfg.Telemetry.Endpoint,
		Insecure:       cfg.Telemetry.Insecure,
		SampleRate:     cfg.Telemetry.SampleRate,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		if err := telemetryShutdown(ctx); err != nil {
			logger.Error("telemetry shutdown error", logger.Err(err))
		}
	}()

	logger.Info("smbcacheproxy starting",
		"version", Version, "commit", Commit,
		"listen", fmt.Sprintf("%s:%d", cfg.Listen.Address, cfg.Listen.Port),
		"backend", fmt.Sprintf("%s:%d", cfg.Backend.Address, cfg.Backend.Port),
		"shares_root", cfg.SharesRoot)

	if err := os.MkdirAll(cfg.SharesRoot, 0o755); err != nil {
		return fmt.Errorf("create shares root %s: %w", cfg.SharesRoot, err)
	}
	tmpDir := filepath.Join(cfg.SharesRoot, ".seekscale_tmp")
	if err := os.MkdirAll(tmpDir, 0o777); err != nil {
		return fmt.Errorf("create .seekscale_tmp directory: %w", err)
	}

	uid, gid, err := resolveClusterUser(cfg.ClusterUser)
	if err != nil {
		return err
	}

	store := buildKVStore(cfg.KV)
	defer func() { _ = store.Close() }()

	connector, err := httpconn.New(httpconn.Config{
		MetadataProxyBaseURL: httpBase(cfg.MetadataProxy.Address, cfg.MetadataProxy.Port, false),
		FileserverBaseURL:    httpBase(cfg.Fileserver.Address, cfg.Fileserver.Port, true),
		ContentStoreBaseURL:  "https://" + cfg.Content.CacheHost,
		TLS: httpconn.TLSConfig{
			CertFile: cfg.Content.SSLCert,
			KeyFile:  cfg.Content.SSLKey,
			CAFile:   cfg.Content.SSLCA,
		},
	})
	if err != nil {
		return fmt.Errorf("build HTTP connector: %w", err)
	}

	metaCache := metacache.New(metacache.Config{
		DefaultMaxAge:  cfg.MtimeMetadataRefreshThreshold,
		StaticMaxAge:   24 * time.Hour,
		StaticPrefixes: cfg.NoRecheckMetadataPatterns,
	}, store, connector)

	xfer := transfer.New(store, connector)

	var registry prometheus.Registerer
	if cfg.Mgmt.EnableMetrics {
		registry = prometheus.NewRegistry()
	}
	metrics := audit.NewMetrics(registry)

	sink, err := openAuditSink(ctx, cfg.Audit)
	if err != nil {
		return fmt.Errorf("open audit sink: %w", err)
	}
	if metrics != nil {
		metrics = metrics.WithSink(sink)
	}

	cacheClient := fscache.New(fscache.Config{
		SharesRoot:            cfg.SharesRoot,
		ClusterUID:            uid,
		ClusterGID:            gid,
		LargeFileThreshold:    int64(cfg.CacheClient3SizeThreshold),
		MtimeRefreshThreshold: cfg.MtimeRefreshThreshold,
		EnableWriteThrough:    cfg.EnableWriteThrough,
		EnableTouch:           cfg.EnableTouch,
	}, metaCache, connector, xfer, store, metrics)

	proxyServer := proxy.NewServer(proxy.ServerConfig{
		ListenAddress:      cfg.Listen.Address,
		ListenPort:         cfg.Listen.Port,
		BackendAddress:     cfg.Backend.Address,
		BackendPort:        cfg.Backend.Port,
		DialTimeout:        cfg.Backend.Timeout,
		ForceHost:          cfg.ForceHost,
		EnableWriteThrough: cfg.EnableWriteThrough,
	}, cacheClient, metrics)

	mgmtServer := mgmt.New(mgmt.Config{
		SocketPath:             cfg.Mgmt.SocketPath,
		StatsPath:              cfg.Mgmt.StatsPath,
		StatsInterval:          cfg.Mgmt.StatsInterval,
		EnableCentralForward:   cfg.Stats.EnableCentralStatsForward,
		CentralStatsServerHost: cfg.Stats.CentralStatsServerHost,
	}, proxyServer, cacheClient, metaCache, connector)
	mgmtServer.RegisterHealthCheck("fileserver", connector)
	mgmtServer.RegisterHealthCheck("metacache", metaCache)

	// Each worker drains the bkgrd_dl:pending queue (§4.D) by calling the
	// same inline get_file path §4.C exposes; the job's key is whatever
	// path/manifest reference the producer enqueued.
	for i := 0; i < flagBgWorkers; i++ {
		go xfer.RunWorker(ctx, tmpDir, func(ctx context.Context, key, localPath string) error {
			tmp, err := connector.GetFile(ctx, key, tmpDir)
			if err != nil {
				return err
			}
			return os.Rename(tmp, localPath)
		})
	}

	errCh := make(chan error, 2)
	go func() { errCh <- proxyServer.Serve(ctx) }()
	go func() { errCh <- mgmtServer.Serve(ctx) }()

	if metrics != nil {
		go func() {
			ticker := time.NewTicker(time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					metrics.SetHTTPCounters(connector.Counters())
				}
			}
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("smbcacheproxy: received signal, shutting down", "signal", sig.String())
		proxyServer.Shutdown()
		mgmtServer.Close()
		cancel()
		return nil
	case err := <-errCh:
		cancel()
		return err
	}
}

func buildKVStore(cfg config.KVConfig) kv.Store {
	return kv.NewRedis(kv.RedisConfig{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	})
}

func httpBase(address string, port int, tls bool) string {
	scheme := "http"
	if tls {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, address, port)
}
