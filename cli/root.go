// Package cli implements the pop command: deploy a receipt ledger, drive
// its sale and payouts, and serve it over HTTP.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/bitfsorg/libpop-go/registry"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	DataDir  string
	Format   string // "json" | "text"
	Verbose  bool
	Password string
	RPC      registry.RPCConfig

	// Getenv reads the environment. Tests replace it.
	Getenv func(string) string
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the pop CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{Getenv: os.Getenv}

	cmd := &cobra.Command{
		Use:   "pop",
		Short: "POP - proof-of-purchase receipts",
		Long: `Manage a soulbound receipt ledger gated by a primary collection.

Receipts are minted once per primary token id, never transfer, and their
sale proceeds are split among fixed payees who withdraw by pull.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError,
					fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return nil
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&opts.DataDir, "datadir", "", "data directory (default ~/.pop)")
	pf.StringVar(&opts.Format, "format", "text", "output format (json|text)")
	pf.BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	pf.StringVar(&opts.Password, "password", "", "keystore password (or POP_PASSWORD)")
	pf.StringVar(&opts.RPC.URL, "rpc-url", "", "primary registry JSON-RPC URL")
	pf.StringVar(&opts.RPC.User, "rpc-user", "", "primary registry RPC user")
	pf.StringVar(&opts.RPC.Password, "rpc-pass", "", "primary registry RPC password")
	pf.BoolVar(&opts.RPC.Batch, "rpc-batch", false, "send multi-id registry lookups as one JSON-RPC batch (or POP_RPC_BATCH)")

	cmd.AddCommand(
		NewKeyCommand(opts),
		NewDeployCommand(opts),
		NewStatusCommand(opts),
		NewSetActiveCommand(opts),
		NewSetPriceCommand(opts),
		NewSetBaseURICommand(opts),
		NewGenerateCommand(opts),
		NewPurchaseCommand(opts),
		NewReleaseCommand(opts),
		NewTokenCommand(opts),
		NewBalanceCommand(opts),
		NewDepositCommand(opts),
		NewEventsCommand(opts),
		NewServeCommand(opts),
	)
	return cmd
}

func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
