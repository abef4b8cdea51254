// Command app is the Nyx Light booking & document control plane process:
// it serves the Control API and WebSocket multiplex and runs the nightly
// job scheduler in a single binary.
package main

import (
	"fmt"
	"os"

	"github.com/nyxlight/ledger/internal/bootstrap"
)

func main() {
	service, err := bootstrap.InitServers()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize service: %v\n", err)
		os.Exit(1)
	}

	service.Run()
}
