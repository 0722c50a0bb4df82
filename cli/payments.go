package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/bitfsorg/libpop-go/api"
	"github.com/bitfsorg/libpop-go/wallet"
)

// ReleaseResult reports payouts. Error is set when some payouts failed
// after others went out.
type ReleaseResult struct {
	Releases []api.Release `json:"releases"`
	Error    *CLIError     `json:"error,omitempty"`
}

// NewReleaseCommand creates the release command.
func NewReleaseCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "release [payee]",
		Short: "Pay payees what they are owed",
		Long: `Pay one payee, or every payee in roster order when none is given.
Anyone may trigger a release; funds always go to the payee.

When releasing everyone, payees with nothing due are skipped and a failed
payout does not undo the others.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := rootOpts.openNode(cmd)
			if err != nil {
				return err
			}
			defer n.Close()
			ctx := cmd.Context()
			out := rootOpts.formatter(cmd)

			if len(args) == 1 {
				payee, err := n.resolver.ResolveAddressOrHandle(ctx, args[0])
				if err != nil {
					return fail("failed to resolve payee", err)
				}
				amount, err := n.engine.Release(ctx, payee)
				if err != nil {
					return fail("release failed", err)
				}
				res := ReleaseResult{Releases: []api.Release{{Payee: payee, Amount: amount}}}
				return out.Success(res, func(w io.Writer) { printReleases(w, res.Releases) })
			}

			paid, err := n.engine.ReleaseTotal(ctx)
			if err != nil && len(paid) == 0 {
				return fail("release failed", err)
			}
			payees, perr := n.engine.Payees(ctx)
			if perr != nil {
				return fail("failed to read payees", perr)
			}
			res := ReleaseResult{Releases: []api.Release{}}
			for _, p := range payees {
				if amount, ok := paid[p.Address]; ok {
					res.Releases = append(res.Releases, api.Release{Payee: p.Address, Amount: amount})
				}
			}
			if err != nil {
				_, code := api.Classify(err)
				res.Error = &CLIError{Code: code, Message: err.Error()}
			}
			if werr := out.Success(res, func(w io.Writer) {
				printReleases(w, res.Releases)
				if res.Error != nil {
					fmt.Fprintf(w, "Partial failure [%s]: %s\n", res.Error.Code, res.Error.Message)
				}
			}); werr != nil {
				return werr
			}
			if err != nil {
				return WrapExitError(ExitFailure, "some payouts failed", err)
			}
			return nil
		},
	}
}

func printReleases(w io.Writer, releases []api.Release) {
	for _, r := range releases {
		fmt.Fprintf(w, "Released %d to %s\n", r.Amount, r.Payee)
	}
}

// Deposit reports a treasury credit.
type Deposit struct {
	Address wallet.Address `json:"address"`
	Amount  uint64         `json:"amount,string"`
	Funds   uint64         `json:"funds,string"`
}

// NewDepositCommand creates the deposit command.
func NewDepositCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "deposit <address|handle> <amount>",
		Short: "Credit treasury funds to an address",
		Long: `Credit an address's treasury account so that it can pay for purchases.
The treasury is the local stand-in for the settlement layer.`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := parseAmount(args[1])
			if err != nil {
				return err
			}
			n, err := rootOpts.openStores(cmd)
			if err != nil {
				return err
			}
			defer n.Close()

			addr, err := n.resolver.ResolveAddressOrHandle(cmd.Context(), args[0])
			if err != nil {
				return fail("failed to resolve address", err)
			}
			if addr == n.treasury.Pool() {
				return NewExitError(ExitCommandError, "cannot deposit into the payout pool")
			}
			if err := n.treasury.Deposit(addr, amount); err != nil {
				return fail("deposit failed", err)
			}
			d := Deposit{Address: addr, Amount: amount}
			if d.Funds, err = n.treasury.Balance(addr); err != nil {
				return fail("treasury lookup failed", err)
			}
			return rootOpts.formatter(cmd).Success(d, func(w io.Writer) {
				fmt.Fprintf(w, "Deposited %d to %s (funds: %d)\n", d.Amount, d.Address, d.Funds)
			})
		},
	}
}
