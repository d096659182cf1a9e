package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/seekscale/smbcacheproxy/internal/config"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a sample configuration file",
	Long: `Initialize a sample smbcacheproxy configuration file.

By default, the configuration file is created at
$XDG_CONFIG_HOME/smbcacheproxy/config.yaml. Use --config to specify a
custom path.`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Force overwrite existing config file")
}

func runInit(cmd *cobra.Command, args []string) error {
	path := GetConfigFile()
	if path == "" {
		path = config.DefaultConfigPath()
	}

	if !initForce {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config file already exists at %s (use --force to overwrite)", path)
		}
	}

	cfg := config.Defaults()
	if err := config.SaveConfig(cfg, path); err != nil {
		return fmt.Errorf("failed to initialize config: %w", err)
	}

	fmt.Printf("Configuration file created at: %s\n", path)
	fmt.Println("\nNext steps:")
	fmt.Println("  1. Edit the configuration file to point at your backend/fileserver/KV store")
	fmt.Println("  2. Start the proxy with: smbcacheproxy start")
	fmt.Printf("  3. Or specify custom config: smbcacheproxy start --config %s\n", path)
	return nil
}
