package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/bitfsorg/libpop-go/api"
	"github.com/bitfsorg/libpop-go/ledger"
	"github.com/bitfsorg/libpop-go/manifest"
)

// NewDeployCommand creates the deploy command.
func NewDeployCommand(rootOpts *RootOptions) *cobra.Command {
	var manifestPath string
	cmd := &cobra.Command{
		Use:   "deploy",
		Short: "Deploy a receipt ledger from a manifest",
		Long: `Create the ledger described by a YAML manifest in the data directory.

Payees given as alias@domain handles are resolved through paymail before
the roster is fixed. A data directory holds exactly one ledger.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDeploy(rootOpts, cmd, manifestPath)
		},
	}
	cmd.Flags().StringVarP(&manifestPath, "manifest", "m", "pop.yaml", "manifest file")
	return cmd
}

func runDeploy(opts *RootOptions, cmd *cobra.Command, path string) error {
	m, err := manifest.Load(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load manifest", err)
	}

	n, err := opts.openStores(cmd)
	if err != nil {
		return err
	}
	defer n.Close()

	ctx := cmd.Context()
	params, err := m.Params(ctx, n.resolver)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to resolve manifest", err)
	}
	if err := ledger.Deploy(ctx, n.store, params); err != nil {
		if errors.Is(err, ledger.ErrAlreadyDeployed) {
			return WrapExitError(ExitCommandError, "ledger already deployed in "+n.cfg.DataDir, err)
		}
		return fail("deploy failed", err)
	}
	if err := n.journal.Emit(ctx, []ledger.Event{{
		Kind: ledger.EventDeployed,
		To:   params.Owner,
		Text: params.Name,
	}}); err != nil {
		n.log.Error("failed to journal deployment", "error", err)
	}
	n.log.Info("ledger deployed", "name", params.Name, "owner", params.Owner, "payees", len(params.Payees))

	policy, _ := ledger.ParseGatePolicy(n.cfg.GatePolicy) // validated by loadConfig
	if n.engine, err = ledger.Open(n.store, ledger.Deps{
		Registry: offlineRegistry{},
		Payout:   n.treasury,
		Policy:   policy,
		Logger:   n.log,
	}); err != nil {
		return fail("failed to open ledger", err)
	}
	st, err := api.LoadStatus(ctx, n.engine)
	if err != nil {
		return fail("failed to read ledger", err)
	}
	return opts.formatter(cmd).Success(st, func(w io.Writer) {
		fmt.Fprintf(w, "Deployed %s (%s)\n", st.Name, st.Symbol)
		printStatus(w, st)
	})
}
