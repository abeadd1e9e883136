package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/go-i2p/wgmobile/lib/config"
	"github.com/go-i2p/wgmobile/lib/rpc"
)

// rpcMethods maps CLI shorthands to RPC method names.
var rpcMethods = map[string]string{
	"initialize": rpc.MethodInitialize,
	"connect":    rpc.MethodConnect,
	"disconnect": rpc.MethodDisconnect,
	"status":     rpc.MethodStatus,
	"supported":  rpc.MethodSupported,
	"version":    rpc.MethodVersion,
}

func newRPCCmd(opts *rootOptions) *cobra.Command {
	var socket string
	cmd := &cobra.Command{
		Use:   "rpc <method> [profile]",
		Short: "Call a running daemon",
		Long: `Call a running daemon over its Unix socket.

Methods: initialize, connect <profile>, disconnect, status, supported, version.
A connect profile is TOML (.toml) or a JSON configuration object; "-" reads
JSON from stdin.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			method, ok := resolveMethod(args[0])
			if !ok {
				return fmt.Errorf("unknown method %q", args[0])
			}

			if socket == "" {
				socket = os.Getenv("WGMOBILE_RPC_SOCKET")
			}
			if socket == "" {
				s, err := opts.load()
				if err != nil {
					return err
				}
				socket = s.SocketPath()
			}

			var params any
			if method == rpc.MethodConnect {
				if len(args) != 2 {
					return errors.New("connect needs a profile")
				}
				raw, err := readProfile(args[1], cmd.InOrStdin())
				if err != nil {
					return err
				}
				params = raw
			}

			client, err := rpc.NewClient(rpc.ClientConfig{SocketPath: socket})
			if err != nil {
				return fmt.Errorf("%w (is wgmobiled running?)", err)
			}
			defer client.Close()

			return callAndPrint(cmd.Context(), client, method, params, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&socket, "socket", "", "daemon socket (default from settings)")
	return cmd
}

func resolveMethod(name string) (string, bool) {
	if m, ok := rpcMethods[name]; ok {
		return m, true
	}
	for _, m := range rpcMethods {
		if m == name {
			return m, true
		}
	}
	return "", false
}

// readProfile loads a connect payload from a TOML profile, a JSON file or
// stdin.
func readProfile(path string, stdin io.Reader) (config.RawConfig, error) {
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		return config.LoadProfile(path)
	}

	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(io.LimitReader(stdin, rpc.MaxRequestSize))
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return config.RawConfig{}, fmt.Errorf("reading profile: %w", err)
	}
	return config.FromJSON(data)
}

func callAndPrint(ctx context.Context, client *rpc.Client, method string, params any, out io.Writer) error {
	var result json.RawMessage
	if err := client.Call(ctx, method, params, &result); err != nil {
		if data, ok := rpc.AsTunnelError(err); ok {
			return fmt.Errorf("%s: %w", data, err)
		}
		return err
	}

	pretty, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(out, string(pretty))
	return nil
}
