// Package manifest loads deployment manifests: the YAML description of a
// receipt collection, its sale terms and its payees.
package manifest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/bitfsorg/libpop-go/ledger"
	"github.com/bitfsorg/libpop-go/wallet"
)

// Manifest describes one deployment. Exactly one of Vault or Payees is set.
type Manifest struct {
	Name    string `yaml:"name"`
	Symbol  string `yaml:"symbol"`
	Primary string `yaml:"primary"`

	// Price is in smallest currency units.
	Price   uint64 `yaml:"price"`
	Active  bool   `yaml:"active,omitempty"`
	BaseURI string `yaml:"base_uri,omitempty"`

	// Owner is an address or an alias@domain handle.
	Owner string `yaml:"owner"`

	// Vault is the single-payee form: everything goes to one address.
	Vault  string  `yaml:"vault,omitempty"`
	Payees []Payee `yaml:"payees,omitempty"`
}

// Payee is one roster entry. Exactly one of Address or Handle is set.
type Payee struct {
	Address string `yaml:"address,omitempty"`
	Handle  string `yaml:"handle,omitempty"`
	Shares  uint64 `yaml:"shares"`
}

func (p Payee) target() string {
	if p.Handle != "" {
		return p.Handle
	}
	return p.Address
}

// AddressResolver turns an address or handle into an address.
// *paymail.Resolver satisfies it.
type AddressResolver interface {
	ResolveAddressOrHandle(ctx context.Context, s string) (wallet.Address, error)
}

// plainAddresses resolves addresses only.
type plainAddresses struct{}

func (plainAddresses) ResolveAddressOrHandle(_ context.Context, s string) (wallet.Address, error) {
	return wallet.ParseAddress(s)
}

// Load reads and validates a manifest file.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("manifest: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes a manifest. Unknown fields are rejected.
func Parse(data []byte) (*Manifest, error) {
	var m Manifest
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&m); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty document", ErrInvalidManifest)
		}
		return nil, fmt.Errorf("%w: %w", ErrInvalidManifest, err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Validate checks the structure of the manifest. Addresses and handles are
// checked when Params resolves them.
func (m *Manifest) Validate() error {
	if m.Owner == "" {
		return fmt.Errorf("%w: owner is required", ErrInvalidManifest)
	}
	switch {
	case m.Vault != "" && len(m.Payees) > 0:
		return fmt.Errorf("%w: vault and payees are mutually exclusive", ErrInvalidManifest)
	case m.Vault == "" && len(m.Payees) == 0:
		return fmt.Errorf("%w: one of vault or payees is required", ErrInvalidManifest)
	}
	for i, p := range m.Payees {
		if (p.Address == "") == (p.Handle == "") {
			return fmt.Errorf("%w: payee %d needs exactly one of address or handle", ErrInvalidManifest, i)
		}
	}
	return nil
}

// Params resolves the manifest into deployment parameters. A nil resolver
// accepts plain addresses only. The vault form becomes a one-entry roster
// with one share.
func (m *Manifest) Params(ctx context.Context, r AddressResolver) (ledger.Params, error) {
	if err := m.Validate(); err != nil {
		return ledger.Params{}, err
	}
	if r == nil {
		r = plainAddresses{}
	}

	owner, err := r.ResolveAddressOrHandle(ctx, m.Owner)
	if err != nil {
		return ledger.Params{}, fmt.Errorf("%w: owner %q: %w", ErrPayeeResolution, m.Owner, err)
	}

	p := ledger.Params{
		Owner:   owner,
		Name:    m.Name,
		Symbol:  m.Symbol,
		Primary: m.Primary,
		Price:   m.Price,
		Active:  m.Active,
		BaseURI: m.BaseURI,
	}

	if m.Vault != "" {
		vault, err := r.ResolveAddressOrHandle(ctx, m.Vault)
		if err != nil {
			return ledger.Params{}, fmt.Errorf("%w: vault %q: %w", ErrPayeeResolution, m.Vault, err)
		}
		p.Payees = []wallet.Address{vault}
		p.Shares = []uint64{1}
		return p, nil
	}

	p.Payees = make([]wallet.Address, len(m.Payees))
	p.Shares = make([]uint64, len(m.Payees))
	for i, entry := range m.Payees {
		addr, err := r.ResolveAddressOrHandle(ctx, entry.target())
		if err != nil {
			return ledger.Params{}, fmt.Errorf("%w: payee %d %q: %w", ErrPayeeResolution, i, entry.target(), err)
		}
		p.Payees[i] = addr
		p.Shares[i] = entry.Shares
	}
	return p, nil
}
