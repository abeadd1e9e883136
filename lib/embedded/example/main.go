// Example demonstrates basic usage of the embedded bridge API.
//
//	go run ./lib/embedded/example tunnel.json
package main

import (
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-i2p/wgmobile/lib/embedded"
)

type printCallback struct{}

func (printCallback) OnStateChanged(state string) {
	fmt.Println("Tunnel state:", state)
}

func main() {
	if len(os.Args) != 2 {
		log.Fatalf("usage: %s <config.json>", os.Args[0])
	}
	configJSON, err := os.ReadFile(os.Args[1])
	if err != nil {
		log.Fatalf("Failed to read config: %v", err)
	}

	bridge := embedded.New(embedded.Config{})
	defer bridge.Close()

	if !bridge.IsSupported() {
		log.Fatal("Tunnel backend is not supported on this platform")
	}
	bridge.SetStateCallback(printCallback{})

	if err := bridge.Initialize(); err != nil {
		log.Fatalf("Failed to initialize: %v", err)
	}
	if err := bridge.Connect(string(configJSON)); err != nil {
		var be *embedded.BridgeError
		if errors.As(err, &be) && be.Field != "" {
			log.Fatalf("Rejected field %s: %s", be.Field, be.Message)
		}
		log.Fatalf("Failed to connect: %v", err)
	}
	fmt.Println("Status:", bridge.GetStatus())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	if err := bridge.Disconnect(); err != nil {
		log.Printf("Failed to disconnect: %v", err)
	}
	fmt.Println("Status:", bridge.GetStatus())
}
