// Command nyxctl is the operator CLI for offline maintenance of the
// booking & document control plane: chain verification, trial balance,
// and on-demand backup/export runs outside the nightly schedule.
package main

import "github.com/nyxlight/ledger/cmd/nyxctl/cmd"

func main() {
	cmd.Execute()
}
