package wallet

import (
	"crypto/sha256"
	"fmt"

	bip32 "github.com/bsv-blockchain/go-sdk/compat/bip32"
	"github.com/bsv-blockchain/go-sdk/compat/bip39"
	ec "github.com/bsv-blockchain/go-sdk/primitives/ec"
	chaincfg "github.com/bsv-blockchain/go-sdk/transaction/chaincfg"
)

const (
	// Mnemonic entropy sizes.
	Mnemonic12Words = 128
	Mnemonic24Words = 256

	// BIP44 path constants: m/44'/236'/0'/0/{index}.
	PurposeBIP44   = 44
	CoinType       = 236
	AccountIndex   = 0
	ExternalChain  = 0
	MaxIdentityIdx = 1<<31 - 1

	// Hardened is the BIP32 hardened derivation offset.
	Hardened = 0x80000000
)

// Identity is a signing key and the address it controls.
type Identity struct {
	PrivateKey *ec.PrivateKey
	PublicKey  *ec.PublicKey
	Address    Address
	Path       string // derivation path, empty for random keys
}

// NewIdentity creates an identity from a fresh random key.
func NewIdentity() (*Identity, error) {
	priv, err := ec.NewPrivateKey()
	if err != nil {
		return nil, fmt.Errorf("wallet: generate key: %w", err)
	}
	return IdentityFromKey(priv), nil
}

// IdentityFromKey wraps an existing private key.
func IdentityFromKey(priv *ec.PrivateKey) *Identity {
	pub := priv.PubKey()
	return &Identity{
		PrivateKey: priv,
		PublicKey:  pub,
		Address:    AddressFromPubKey(pub),
	}
}

// GenerateMnemonic creates a new BIP39 mnemonic with the specified entropy bits.
func GenerateMnemonic(entropyBits int) (string, error) {
	if entropyBits != Mnemonic12Words && entropyBits != Mnemonic24Words {
		return "", ErrInvalidEntropy
	}
	entropy, err := bip39.NewEntropy(entropyBits)
	if err != nil {
		return "", fmt.Errorf("wallet: failed to generate entropy: %w", err)
	}
	mnemonic, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return "", fmt.Errorf("wallet: failed to generate mnemonic: %w", err)
	}
	return mnemonic, nil
}

// SeedFromMnemonic derives a 64-byte BIP39 seed from mnemonic + optional passphrase.
func SeedFromMnemonic(mnemonic, passphrase string) ([]byte, error) {
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, ErrInvalidMnemonic
	}
	seed, err := bip39.NewSeedWithErrorChecking(mnemonic, passphrase)
	if err != nil {
		return nil, fmt.Errorf("wallet: failed to derive seed: %w", err)
	}
	return seed, nil
}

// DeriveIdentity derives the identity at m/44'/236'/0'/0/index.
// Owner and payee keys for one operator come from consecutive indices.
func DeriveIdentity(seed []byte, index uint32) (*Identity, error) {
	if len(seed) == 0 {
		return nil, ErrInvalidSeed
	}
	if index > MaxIdentityIdx {
		return nil, ErrIndexOutOfRange
	}

	master, err := bip32.NewMaster(seed, &chaincfg.MainNet)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDerivationFailed, err)
	}

	key := master
	for depth, idx := range []uint32{
		PurposeBIP44 + Hardened,
		CoinType + Hardened,
		AccountIndex + Hardened,
		ExternalChain,
		index,
	} {
		key, err = key.Child(idx)
		if err != nil {
			return nil, fmt.Errorf("%w: depth %d: %w", ErrDerivationFailed, depth, err)
		}
	}

	priv, err := key.ECPrivKey()
	if err != nil {
		return nil, fmt.Errorf("%w: extract EC private key: %w", ErrDerivationFailed, err)
	}

	id := IdentityFromKey(priv)
	id.Path = fmt.Sprintf("m/44'/%d'/%d'/%d/%d", CoinType, AccountIndex, ExternalChain, index)
	return id, nil
}

// Sign signs SHA-256(msg) and returns the DER-encoded signature.
func (id *Identity) Sign(msg []byte) ([]byte, error) {
	digest := sha256.Sum256(msg)
	sig, err := id.PrivateKey.Sign(digest[:])
	if err != nil {
		return nil, fmt.Errorf("wallet: sign: %w", err)
	}
	return sig.Serialize(), nil
}

// Verify checks a DER signature over SHA-256(msg) against a compressed
// public key and returns the address of the signer.
func Verify(pubKey, msg, sig []byte) (Address, error) {
	if len(pubKey) != 33 || (pubKey[0] != 0x02 && pubKey[0] != 0x03) {
		return ZeroAddress, fmt.Errorf("%w: expected 33-byte compressed key", ErrInvalidPubKey)
	}
	pub, err := ec.PublicKeyFromBytes(pubKey)
	if err != nil {
		return ZeroAddress, fmt.Errorf("%w: %w", ErrInvalidPubKey, err)
	}
	parsed, err := ec.ParseDERSignature(sig)
	if err != nil {
		return ZeroAddress, fmt.Errorf("%w: %w", ErrInvalidSignature, err)
	}
	digest := sha256.Sum256(msg)
	if !parsed.Verify(digest[:], pub) {
		return ZeroAddress, ErrInvalidSignature
	}
	return AddressFromPubKey(pub), nil
}
