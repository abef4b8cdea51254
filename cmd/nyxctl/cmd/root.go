// Package cmd implements nyxctl's subcommands, grounded on
// components/mdz/cmd's root-command/subcommand shape.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
)

// NewRootCommand builds the nyxctl command tree.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "nyxctl",
		Short: "nyxctl is the operator CLI for the booking & document control plane",
	}

	root.AddCommand(newVerifyChainCommand())
	root.AddCommand(newTrialBalanceCommand())
	root.AddCommand(newBackupCommand())
	root.AddCommand(newDPOExportCommand())

	return root
}

// Execute runs the root command, exiting non-zero on failure.
func Execute() {
	cobra.EnableCommandSorting = false

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := NewRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
