package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/go-i2p/wgmobile/lib/config"
	"github.com/go-i2p/wgmobile/lib/descriptor"
	"github.com/go-i2p/wgmobile/lib/keys"
)

func newValidateCmd() *cobra.Command {
	var render string
	cmd := &cobra.Command{
		Use:   "validate <tunnel.toml>",
		Short: "Check a tunnel profile and report every rejected field",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := config.LoadProfile(args[0])
			if err != nil {
				return err
			}

			cfg, errs := config.ValidateAll(raw)
			if errs.HasErrors() {
				for _, e := range errs {
					fmt.Fprintf(cmd.ErrOrStderr(), "  %v\n", e)
				}
				return fmt.Errorf("%s: %d invalid field(s)", args[0], len(errs))
			}

			d := descriptor.Build(cfg)
			out := cmd.OutOrStdout()
			switch render {
			case "":
				fmt.Fprintf(out, "ok: %s (peer %s)\n", d, keys.Fingerprint(cfg.PublicKey()))
			case "wg-quick":
				fmt.Fprint(out, d.WGQuick())
			default:
				return fmt.Errorf("unknown render format %q", render)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&render, "render", "", `print the tunnel in another format ("wg-quick")`)
	return cmd
}
