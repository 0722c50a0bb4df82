package cli

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/bitfsorg/libpop-go/api"
	"github.com/bitfsorg/libpop-go/journal"
	"github.com/bitfsorg/libpop-go/ledger"
)

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "status",
		Short:         "Show the ledger's collection, sale and payment totals",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := rootOpts.openNode(cmd)
			if err != nil {
				return err
			}
			defer n.Close()

			st, err := api.LoadStatus(cmd.Context(), n.engine)
			if err != nil {
				return fail("failed to read ledger", err)
			}
			return rootOpts.formatter(cmd).Success(st, func(w io.Writer) { printStatus(w, st) })
		},
	}
}

func printStatus(w io.Writer, st *api.Status) {
	fmt.Fprintf(w, "Name:           %s\n", st.Name)
	fmt.Fprintf(w, "Symbol:         %s\n", st.Symbol)
	fmt.Fprintf(w, "Primary:        %s\n", st.Primary)
	fmt.Fprintf(w, "Owner:          %s\n", st.Owner)
	fmt.Fprintf(w, "Sale active:    %t\n", st.Active)
	fmt.Fprintf(w, "Price:          %d\n", st.Price)
	fmt.Fprintf(w, "Base URI:       %s\n", st.BaseURI)
	fmt.Fprintf(w, "Gate policy:    %s\n", st.GatePolicy)
	fmt.Fprintf(w, "Total supply:   %d\n", st.TotalSupply)
	fmt.Fprintf(w, "Total shares:   %d\n", st.TotalShares)
	fmt.Fprintf(w, "Total received: %d\n", st.TotalReceived)
	fmt.Fprintf(w, "Total released: %d\n", st.TotalReleased)
}

// NewTokenCommand creates the token command.
func NewTokenCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "token <id>",
		Short:         "Show one receipt",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				return WrapExitError(ExitCommandError, fmt.Sprintf("invalid token id %q", args[0]), err)
			}
			n, err := rootOpts.openNode(cmd)
			if err != nil {
				return err
			}
			defer n.Close()

			ctx := cmd.Context()
			tok := api.Token{ID: id}
			if tok.Owner, err = n.engine.OwnerOf(ctx, id); err != nil {
				return fail("token lookup failed", err)
			}
			if tok.PrimaryID, err = n.engine.ReceiptFor(ctx, id); err != nil {
				return fail("token lookup failed", err)
			}
			if tok.URI, err = n.engine.TokenURI(ctx, id); err != nil {
				return fail("token lookup failed", err)
			}
			return rootOpts.formatter(cmd).Success(tok, func(w io.Writer) {
				fmt.Fprintf(w, "Receipt %d\n", tok.ID)
				fmt.Fprintf(w, "  Owner:   %s\n", tok.Owner)
				fmt.Fprintf(w, "  Primary: %d\n", tok.PrimaryID)
				fmt.Fprintf(w, "  URI:     %s\n", tok.URI)
			})
		},
	}
}

// BalanceView is an address's receipts, payee position and treasury funds.
type BalanceView struct {
	api.Account
	Funds uint64 `json:"funds,string"`
}

// NewBalanceCommand creates the balance command.
func NewBalanceCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "balance <address|handle>",
		Short:         "Show receipts held, payee position and treasury funds",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := rootOpts.openNode(cmd)
			if err != nil {
				return err
			}
			defer n.Close()

			ctx := cmd.Context()
			addr, err := n.resolver.ResolveAddressOrHandle(ctx, args[0])
			if err != nil {
				return fail("failed to resolve address", err)
			}
			v := BalanceView{Account: api.Account{Address: addr}}
			if v.Balance, err = n.engine.BalanceOf(ctx, addr); err != nil {
				return fail("balance lookup failed", err)
			}
			if v.Shares, err = n.engine.Shares(ctx, addr); err != nil {
				return fail("balance lookup failed", err)
			}
			if v.Shares > 0 {
				if v.Released, err = n.engine.Released(ctx, addr); err != nil {
					return fail("balance lookup failed", err)
				}
				if v.Releasable, err = n.engine.Releasable(ctx, addr); err != nil {
					return fail("balance lookup failed", err)
				}
			}
			if v.Funds, err = n.treasury.Balance(addr); err != nil {
				return fail("treasury lookup failed", err)
			}
			return rootOpts.formatter(cmd).Success(v, func(w io.Writer) {
				fmt.Fprintf(w, "Address:    %s\n", v.Address)
				fmt.Fprintf(w, "Receipts:   %d\n", v.Balance)
				fmt.Fprintf(w, "Funds:      %d\n", v.Funds)
				if v.Shares > 0 {
					fmt.Fprintf(w, "Shares:     %d\n", v.Shares)
					fmt.Fprintf(w, "Released:   %d\n", v.Released)
					fmt.Fprintf(w, "Releasable: %d\n", v.Releasable)
				}
			})
		},
	}
}

// NewEventsCommand creates the events command.
func NewEventsCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		kind    string
		address string
		after   int64
		limit   int
	)
	cmd := &cobra.Command{
		Use:           "events",
		Short:         "List journaled ledger events",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := rootOpts.openStores(cmd)
			if err != nil {
				return err
			}
			defer n.Close()

			ctx := cmd.Context()
			f := journal.Filter{Kind: ledger.EventKind(kind), AfterSeq: after, Limit: limit}
			if address != "" {
				if f.Address, err = n.resolver.ResolveAddressOrHandle(ctx, address); err != nil {
					return fail("failed to resolve address", err)
				}
			}
			recs, err := n.journal.Query(ctx, f)
			if err != nil {
				return fail("journal query failed", err)
			}
			if recs == nil {
				recs = []journal.Record{}
			}
			return rootOpts.formatter(cmd).Success(recs, func(w io.Writer) {
				for _, r := range recs {
					fmt.Fprintf(w, "%6d  %s  %-18s %s\n", r.Seq, r.RecordedAt.Format("2006-01-02T15:04:05Z"),
						r.Event.Kind, describe(r.Event))
				}
			})
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "", "only events of this kind")
	cmd.Flags().StringVar(&address, "address", "", "only events touching this address or handle")
	cmd.Flags().Int64Var(&after, "after", 0, "only events after this sequence number")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum events to list (0 for all)")
	return cmd
}

func describe(ev ledger.Event) string {
	switch ev.Kind {
	case ledger.EventDeployed:
		return fmt.Sprintf("%q owner=%s", ev.Text, ev.To)
	case ledger.EventTransfer:
		return fmt.Sprintf("receipt=%d primary=%d to=%s", ev.TokenID, ev.PrimaryID, ev.To)
	case ledger.EventPaymentReceived:
		return fmt.Sprintf("from=%s amount=%d", ev.From, ev.Amount)
	case ledger.EventPaymentReleased:
		return fmt.Sprintf("to=%s amount=%d", ev.To, ev.Amount)
	case ledger.EventSaleActiveChanged:
		return fmt.Sprintf("active=%t", ev.Flag)
	case ledger.EventPriceChanged:
		return fmt.Sprintf("price=%d", ev.Amount)
	case ledger.EventBaseURIChanged:
		return fmt.Sprintf("uri=%q", ev.Text)
	case ledger.EventApproval:
		return fmt.Sprintf("receipt=%d holder=%s approved=%s", ev.TokenID, ev.From, ev.To)
	case ledger.EventApprovalForAll:
		return fmt.Sprintf("holder=%s operator=%s approved=%t", ev.From, ev.To, ev.Flag)
	}
	return ""
}
