package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/go-i2p/wgmobile/lib/keys"
)

func newGenkeyCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "genkey",
		Short: "Print a new base64 private key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			kp, err := keys.Generate()
			if err != nil {
				return err
			}
			if out != "" {
				if err := kp.Save(out); err != nil {
					return err
				}
			}
			fmt.Fprintln(cmd.OutOrStdout(), kp.Private.String())
			return nil
		},
	}
	cmd.Flags().StringVar(&out, "out", "", "also save the keypair as JSON to this file")
	return cmd
}

func newGenpskCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "genpsk",
		Short: "Print a new base64 preshared key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			k, err := keys.GeneratePreshared()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), k.String())
			return nil
		},
	}
}

func newPubkeyCmd() *cobra.Command {
	var in string
	cmd := &cobra.Command{
		Use:   "pubkey",
		Short: "Read a private key on stdin and print its public key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if in != "" {
				kp, err := keys.Load(in)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), kp.Public.String())
				return nil
			}

			data, err := io.ReadAll(io.LimitReader(cmd.InOrStdin(), 1024))
			if err != nil {
				return fmt.Errorf("reading stdin: %w", err)
			}
			pub, err := keys.PublicFromPrivate(string(data))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), pub)
			return nil
		},
	}
	cmd.Flags().StringVar(&in, "in", "", "read the keypair from a file written by genkey --out")
	return cmd
}
