package commands

import (
	"fmt"
	"os/user"
	"strconv"

	"github.com/seekscale/smbcacheproxy/internal/logger"
	"github.com/seekscale/smbcacheproxy/internal/config"
)

// InitLogger initializes the structured logger from configuration.
func InitLogger(cfg *config.Config) error {
	loggerCfg := logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}
	if err := logger.Init(loggerCfg); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	return nil
}

// resolveClusterUser resolves the cluster_user account to a uid/gid pair,
// once at startup, per §6 "Local filesystem layout". An empty name resolves
// to the current process's own uid/gid.
func resolveClusterUser(name string) (uid, gid int, err error) {
	var u *user.User
	if name == "" {
		u, err = user.Current()
	} else {
		u, err = user.Lookup(name)
	}
	if err != nil {
		return 0, 0, fmt.Errorf("resolve cluster_user %q: %w", name, err)
	}
	uid, err = strconv.Atoi(u.Uid)
	if err != nil {
		return 0, 0, fmt.Errorf("cluster_user %q has non-numeric uid %q", name, u.Uid)
	}
	gid, err = strconv.Atoi(u.Gid)
	if err != nil {
		return 0, 0, fmt.Errorf("cluster_user %q has non-numeric gid %q", name, u.Gid)
	}
	return uid, gid, nil
}
