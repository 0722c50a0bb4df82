package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/bitfsorg/libpop-go/wallet"
)

// KeyInfo describes the keystore identity.
type KeyInfo struct {
	Address  wallet.Address `json:"address"`
	PubKey   string         `json:"pubkey"`
	Path     string         `json:"path,omitempty"`
	Mnemonic string         `json:"mnemonic,omitempty"`
}

// NewKeyCommand creates the key command group.
func NewKeyCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "key",
		Short: "Manage the signing identity",
	}
	cmd.AddCommand(newKeyNewCommand(rootOpts), newKeyShowCommand(rootOpts))
	return cmd
}

func newKeyNewCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		words int
		index uint32
		force bool
	)
	cmd := &cobra.Command{
		Use:   "new",
		Short: "Create a mnemonic-backed identity and seal it in the keystore",
		Long: `Generate a BIP39 mnemonic, derive the identity at m/44'/236'/0'/0/<index>
and write it to the keystore encrypted under the password.

The mnemonic is printed once. Store it offline.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeyNew(rootOpts, cmd, words, index, force)
		},
	}
	cmd.Flags().IntVar(&words, "words", 12, "mnemonic length (12|24)")
	cmd.Flags().Uint32Var(&index, "index", 0, "derivation index")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing keystore")
	return cmd
}

func runKeyNew(opts *RootOptions, cmd *cobra.Command, words int, index uint32, force bool) error {
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	pw := opts.password()
	if pw == "" {
		return NewExitError(ExitCommandError, "a keystore password is required (--password or POP_PASSWORD)")
	}
	if !force {
		if _, err := wallet.LoadKeystore(cfg.KeystorePath(), pw); err == nil {
			return NewExitError(ExitCommandError, "keystore already exists; use --force to replace it")
		}
	}

	var bits int
	switch words {
	case 12:
		bits = wallet.Mnemonic12Words
	case 24:
		bits = wallet.Mnemonic24Words
	default:
		return NewExitError(ExitCommandError, fmt.Sprintf("invalid --words %d: must be 12 or 24", words))
	}

	mnemonic, err := wallet.GenerateMnemonic(bits)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to generate mnemonic", err)
	}
	seed, err := wallet.SeedFromMnemonic(mnemonic, "")
	if err != nil {
		return WrapExitError(ExitFailure, "failed to derive seed", err)
	}
	id, err := wallet.DeriveIdentity(seed, index)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to derive identity", err)
	}
	if err := wallet.SaveKeystore(cfg.KeystorePath(), id, pw); err != nil {
		return WrapExitError(ExitCommandError, "failed to write keystore", err)
	}

	info := keyInfo(id)
	info.Mnemonic = mnemonic
	return opts.formatter(cmd).Success(info, func(w io.Writer) {
		fmt.Fprintf(w, "Address:  %s\n", info.Address)
		fmt.Fprintf(w, "Path:     %s\n", info.Path)
		fmt.Fprintf(w, "Mnemonic: %s\n", info.Mnemonic)
	})
}

func newKeyShowCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "show",
		Short:         "Show the keystore address",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := rootOpts.loadConfig()
			if err != nil {
				return err
			}
			id, err := rootOpts.identity(cfg)
			if err != nil {
				return err
			}
			info := keyInfo(id)
			return rootOpts.formatter(cmd).Success(info, func(w io.Writer) {
				fmt.Fprintf(w, "Address: %s\n", info.Address)
				fmt.Fprintf(w, "PubKey:  %s\n", info.PubKey)
			})
		},
	}
}

func keyInfo(id *wallet.Identity) KeyInfo {
	return KeyInfo{
		Address: id.Address,
		PubKey:  fmt.Sprintf("%x", id.PublicKey.Compressed()),
		Path:    id.Path,
	}
}
