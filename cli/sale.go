package cli

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/bitfsorg/libpop-go/wallet"
)

// IssueResult lists receipts minted by generate or purchase.
type IssueResult struct {
	To       wallet.Address `json:"to"`
	Receipts []uint64       `json:"receipts"`
	Value    uint64         `json:"value,string,omitempty"`
}

// withIdentity runs fn as the keystore identity against an opened node.
func withIdentity(opts *RootOptions, cmd *cobra.Command, fn func(ctx context.Context, n *node, caller wallet.Address) error) error {
	n, err := opts.openNode(cmd)
	if err != nil {
		return err
	}
	defer n.Close()
	id, err := opts.identity(n.cfg)
	if err != nil {
		return err
	}
	return fn(cmd.Context(), n, id.Address)
}

// NewSetActiveCommand creates the set-active command.
func NewSetActiveCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "set-active <true|false>",
		Short:         "Open or close the sale (owner only)",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			active, err := strconv.ParseBool(args[0])
			if err != nil {
				return WrapExitError(ExitCommandError, fmt.Sprintf("invalid flag %q", args[0]), err)
			}
			return withIdentity(rootOpts, cmd, func(ctx context.Context, n *node, caller wallet.Address) error {
				if err := n.engine.SetActive(ctx, caller, active); err != nil {
					return fail("set-active failed", err)
				}
				return rootOpts.formatter(cmd).Success(map[string]bool{"active": active}, func(w io.Writer) {
					fmt.Fprintf(w, "Sale active: %t\n", active)
				})
			})
		},
	}
}

// NewSetPriceCommand creates the set-price command.
func NewSetPriceCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "set-price <amount>",
		Short:         "Set the per-receipt price (owner only)",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			price, err := parseAmount(args[0])
			if err != nil {
				return err
			}
			return withIdentity(rootOpts, cmd, func(ctx context.Context, n *node, caller wallet.Address) error {
				if err := n.engine.SetPrice(ctx, caller, price); err != nil {
					return fail("set-price failed", err)
				}
				return rootOpts.formatter(cmd).Success(map[string]string{"price": args[0]}, func(w io.Writer) {
					fmt.Fprintf(w, "Price: %d\n", price)
				})
			})
		},
	}
}

// NewSetBaseURICommand creates the set-base-uri command.
func NewSetBaseURICommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "set-base-uri <uri>",
		Short:         "Set the token URI prefix (owner only)",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			uri := args[0]
			return withIdentity(rootOpts, cmd, func(ctx context.Context, n *node, caller wallet.Address) error {
				if err := n.engine.SetBaseURI(ctx, caller, uri); err != nil {
					return fail("set-base-uri failed", err)
				}
				return rootOpts.formatter(cmd).Success(map[string]string{"base_uri": uri}, func(w io.Writer) {
					fmt.Fprintf(w, "Base URI: %s\n", uri)
				})
			})
		},
	}
}

// NewGenerateCommand creates the generate command.
func NewGenerateCommand(rootOpts *RootOptions) *cobra.Command {
	var to string
	cmd := &cobra.Command{
		Use:   "generate <primary-id>...",
		Short: "Issue receipts without payment (owner only)",
		Long: `Mint one receipt per primary token id to the recipient. No value
changes hands. Each primary id can be redeemed once across generate and
purchase.`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}
			return withIdentity(rootOpts, cmd, func(ctx context.Context, n *node, caller wallet.Address) error {
				recipient := caller
				if to != "" {
					if recipient, err = n.resolver.ResolveAddressOrHandle(ctx, to); err != nil {
						return fail("failed to resolve recipient", err)
					}
				}
				minted, err := n.engine.Generate(ctx, caller, recipient, ids)
				if err != nil {
					return fail("generate failed", err)
				}
				res := IssueResult{To: recipient, Receipts: minted}
				return rootOpts.formatter(cmd).Success(res, func(w io.Writer) { printIssue(w, res) })
			})
		},
	}
	cmd.Flags().StringVar(&to, "to", "", "recipient address or handle (default: the keystore address)")
	return cmd
}

// NewPurchaseCommand creates the purchase command.
func NewPurchaseCommand(rootOpts *RootOptions) *cobra.Command {
	var value string
	cmd := &cobra.Command{
		Use:   "purchase <primary-id>...",
		Short: "Buy receipts for primary tokens you hold",
		Long: `Buy one receipt per primary token id. The value is taken from the
keystore address's treasury funds and must equal price times the number of
ids. A rejected purchase leaves the funds untouched.`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}
			return withIdentity(rootOpts, cmd, func(ctx context.Context, n *node, caller wallet.Address) error {
				amount := uint64(0)
				if value != "" {
					if amount, err = parseAmount(value); err != nil {
						return err
					}
				} else {
					price, err := n.engine.Price(ctx)
					if err != nil {
						return fail("failed to read price", err)
					}
					amount = price * uint64(len(ids))
					if len(ids) > 0 && amount/uint64(len(ids)) != price {
						return NewExitError(ExitCommandError, "price times count overflows; pass --value")
					}
				}

				var minted []uint64
				err := n.treasury.Escrow(ctx, caller, amount, ids, func(ctx context.Context) error {
					var err error
					minted, err = n.engine.Purchase(ctx, caller, amount, ids)
					return err
				})
				if err != nil {
					return fail("purchase failed", err)
				}
				res := IssueResult{To: caller, Receipts: minted, Value: amount}
				return rootOpts.formatter(cmd).Success(res, func(w io.Writer) { printIssue(w, res) })
			})
		},
	}
	cmd.Flags().StringVar(&value, "value", "", "value to pay (default: price times the number of ids)")
	return cmd
}

func printIssue(w io.Writer, res IssueResult) {
	fmt.Fprintf(w, "Issued %d receipt(s) to %s\n", len(res.Receipts), res.To)
	for _, id := range res.Receipts {
		fmt.Fprintf(w, "  %d\n", id)
	}
	if res.Value > 0 {
		fmt.Fprintf(w, "Paid: %d\n", res.Value)
	}
}
