// Package commands implements the smbcacheproxy CLI: a long-running "start"
// daemon plus "init"/"version" helpers, following the teacher's
// cmd/dittofs/commands root/Execute shape.
package commands

import (
	"github.com/spf13/cobra"
)

var (
	// Version information injected at build time.
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"

	// cfgFile is the global --config flag.
	cfgFile string
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "smbcacheproxy",
	Short: "Transparent SMB2 cache proxy",
	Long: `smbcacheproxy sits between SMB clients and a local SMB server,
turning each client open/listdir/close into a cache-aware pull/push against
a remote source filesystem, with content-addressed deduplication of large
files and write-through semantics.

Use "smbcacheproxy [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and executes it. It
// is called by main.main() exactly once.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $XDG_CONFIG_HOME/smbcacheproxy/config.yaml)")

	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(versionCmd)
}

// GetConfigFile returns the config file path from the global flag.
func GetConfigFile() string {
	return cfgFile
}
