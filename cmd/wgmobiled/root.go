package main

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/go-i2p/wgmobile/lib/settings"
	"github.com/go-i2p/wgmobile/version"
)

type rootOptions struct {
	configPath string
}

func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".wgmobile", "settings.toml")
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "wgmobiled",
		Short:         "Userspace WireGuard tunnel daemon",
		Version:       version.Full(),
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	cmd.PersistentFlags().StringVar(&opts.configPath, "config", defaultConfigPath(), "settings file")

	cmd.AddCommand(
		newRunCmd(opts),
		newRPCCmd(opts),
		newGenkeyCmd(),
		newGenpskCmd(),
		newPubkeyCmd(),
		newValidateCmd(),
		newConfigCmd(opts),
	)
	return cmd
}

func (o *rootOptions) load() (*settings.Settings, error) {
	return settings.Load(o.configPath)
}
