// wgmobiled runs a single WireGuard tunnel in userspace and exposes its
// lifecycle to local clients over JSON-RPC.
//
// Usage:
//
//	wgmobiled run [--config settings.toml] [--profile tunnel.toml]
//	wgmobiled rpc <method> [profile]
//	wgmobiled genkey [--out key.json] | wgmobiled pubkey [--in key.json]
//	wgmobiled genpsk
//	wgmobiled validate <tunnel.toml> [--render wg-quick]
//	wgmobiled config init|show
//
// Set DEBUG_I2P=debug for verbose logging.
package main

import (
	"os"

	"github.com/go-i2p/logger"
)

var log = logger.GetGoI2PLogger()

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
