package cli

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/bitfsorg/libpop-go/api"
	"github.com/bitfsorg/libpop-go/config"
	"github.com/bitfsorg/libpop-go/journal"
	"github.com/bitfsorg/libpop-go/ledger"
	"github.com/bitfsorg/libpop-go/paymail"
	"github.com/bitfsorg/libpop-go/registry"
	"github.com/bitfsorg/libpop-go/store"
	"github.com/bitfsorg/libpop-go/treasury"
	"github.com/bitfsorg/libpop-go/wallet"
)

// poolAddress holds escrowed sale value until it is released to payees.
// No key controls it.
var poolAddress = func() wallet.Address {
	sum := sha256.Sum256([]byte("pop/treasury/pool"))
	a, _ := wallet.AddressFromBytes(sum[:wallet.AddressSize])
	return a
}()

func (o *RootOptions) getenv(key string) string {
	if o.Getenv == nil {
		return ""
	}
	return o.Getenv(key)
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{Format: o.Format, Writer: cmd.OutOrStdout()}
}

// loadConfig reads the config file in the data directory. A missing file
// yields the defaults.
func (o *RootOptions) loadConfig() (config.Config, error) {
	dataDir := o.DataDir
	if dataDir == "" {
		dataDir = o.getenv("POP_DATADIR")
	}
	if dataDir == "" {
		dataDir = config.DefaultDataDir()
	}

	cfg, err := config.LoadConfig(config.ConfigPath(dataDir))
	if err != nil && !errors.Is(err, config.ErrConfigNotFound) {
		return cfg, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	cfg.DataDir = dataDir
	if err := config.ValidateConfig(cfg); err != nil {
		return cfg, WrapExitError(ExitCommandError, "invalid config", err)
	}
	return cfg, nil
}

func (o *RootOptions) logger(cfg config.Config, cmd *cobra.Command) (*slog.Logger, io.Closer, error) {
	if o.Verbose {
		cfg.LogLevel = "debug"
	}
	log, closer, err := config.NewLogger(cfg, cmd.ErrOrStderr())
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "failed to open log", err)
	}
	return log, closer, nil
}

func (o *RootOptions) password() string {
	if o.Password != "" {
		return o.Password
	}
	return o.getenv("POP_PASSWORD")
}

// identity decrypts the caller's keystore.
func (o *RootOptions) identity(cfg config.Config) (*wallet.Identity, error) {
	id, err := wallet.LoadKeystore(cfg.KeystorePath(), o.password())
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to unlock keystore", err)
	}
	return id, nil
}

// registry connects to the primary collection. Without an endpoint every
// lookup fails with registry.ErrNotConfigured, which only matters to calls
// that consult the registry.
func (o *RootOptions) registry(cfg config.Config, log *slog.Logger) registry.Registry {
	env := map[string]string{
		"POP_RPC_URL":   o.getenv("POP_RPC_URL"),
		"POP_RPC_USER":  o.getenv("POP_RPC_USER"),
		"POP_RPC_PASS":  o.getenv("POP_RPC_PASS"),
		"POP_RPC_BATCH": o.getenv("POP_RPC_BATCH"),
	}
	file := &registry.RPCConfig{URL: cfg.RegistryURL, User: cfg.RegistryUser, Password: cfg.RegistryPassword}
	rc, err := registry.ResolveConfig(&o.RPC, env, file, cfg.Network)
	if err != nil {
		log.Debug("registry not configured", "error", err)
		return offlineRegistry{err: err}
	}
	return registry.NewRPCClient(*rc)
}

type offlineRegistry struct{ err error }

func (r offlineRegistry) OwnerOf(context.Context, uint64) (wallet.Address, error) {
	return wallet.ZeroAddress, r.err
}

func (r offlineRegistry) BalanceOf(context.Context, wallet.Address) (uint64, error) {
	return 0, r.err
}

func resolver(cfg config.Config, log *slog.Logger) *paymail.Resolver {
	var dns paymail.DNSResolver
	if cfg.DNSUpstream != "" {
		dns = paymail.NewDNSSECResolver(cfg.DNSUpstream)
	}
	return paymail.NewResolver(nil, dns, log)
}

// node is an opened data directory.
type node struct {
	cfg      config.Config
	log      *slog.Logger
	store    *store.BoltStore
	treasury *treasury.Accounts
	journal  *journal.Journal
	engine   *ledger.Engine
	resolver *paymail.Resolver
	closers  []io.Closer
}

// openStores opens the ledger store, treasury and journal without
// attaching an engine.
func (o *RootOptions) openStores(cmd *cobra.Command) (*node, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, err
	}
	log, logCloser, err := o.logger(cfg, cmd)
	if err != nil {
		return nil, err
	}
	n := &node{cfg: cfg, log: log, closers: []io.Closer{logCloser}}

	if n.store, err = store.OpenBoltStore(cfg.LedgerPath()); err != nil {
		n.Close()
		return nil, WrapExitError(ExitCommandError, "failed to open ledger store", err)
	}
	n.closers = append(n.closers, n.store)

	if n.treasury, err = treasury.Open(cfg.TreasuryPath(), poolAddress); err != nil {
		n.Close()
		return nil, WrapExitError(ExitCommandError, "failed to open treasury", err)
	}
	n.closers = append(n.closers, n.treasury)

	if n.journal, err = journal.Open(cfg.JournalPath()); err != nil {
		n.Close()
		return nil, WrapExitError(ExitCommandError, "failed to open journal", err)
	}
	n.closers = append(n.closers, n.journal)

	n.resolver = resolver(cfg, log)
	return n, nil
}

// openNode opens the stores and attaches the engine to a deployed ledger.
func (o *RootOptions) openNode(cmd *cobra.Command) (*node, error) {
	n, err := o.openStores(cmd)
	if err != nil {
		return nil, err
	}
	policy, err := ledger.ParseGatePolicy(n.cfg.GatePolicy)
	if err != nil {
		n.Close()
		return nil, WrapExitError(ExitCommandError, "invalid gate policy", err)
	}
	n.engine, err = ledger.Open(n.store, ledger.Deps{
		Registry: o.registry(n.cfg, n.log),
		Payout:   n.treasury,
		Events:   n.journal,
		Policy:   policy,
		Logger:   n.log,
	})
	if err != nil {
		n.Close()
		return nil, WrapExitError(ExitCommandError, "failed to open ledger", err)
	}

	kept, refunded, err := n.treasury.Reconcile(cmd.Context(), treasury.PurchaseSettled(n.engine))
	if err != nil {
		n.Close()
		return nil, WrapExitError(ExitFailure, "failed to settle pending escrows", err)
	}
	if kept+refunded > 0 {
		n.log.Warn("settled interrupted purchases", "kept", kept, "refunded", refunded)
	}
	return n, nil
}

// Close releases stores in reverse open order.
func (n *node) Close() {
	for i := len(n.closers) - 1; i >= 0; i-- {
		if err := n.closers[i].Close(); err != nil && n.log != nil {
			n.log.Error("close failed", "error", err)
		}
	}
	n.closers = nil
}

// fail converts a ledger error to an ExitError with its stable code.
func fail(action string, err error) error {
	_, code := api.Classify(err)
	return WrapExitError(ExitFailure, action+" ["+code+"]", err)
}

func parseAmount(s string) (uint64, error) {
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, WrapExitError(ExitCommandError, fmt.Sprintf("invalid amount %q", s), err)
	}
	return n, nil
}

func parseIDs(args []string) ([]uint64, error) {
	ids := make([]uint64, len(args))
	for i, a := range args {
		id, err := strconv.ParseUint(a, 10, 64)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, fmt.Sprintf("invalid token id %q", a), err)
		}
		ids[i] = id
	}
	return ids, nil
}
