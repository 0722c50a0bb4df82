package wallet

import "errors"

var (
	// ErrInvalidAddress indicates an address string or byte slice is malformed.
	ErrInvalidAddress = errors.New("wallet: invalid address")

	// ErrInvalidMnemonic indicates the mnemonic fails BIP39 validation.
	ErrInvalidMnemonic = errors.New("wallet: invalid BIP39 mnemonic")

	// ErrInvalidEntropy indicates entropy bits is not 128 or 256.
	ErrInvalidEntropy = errors.New("wallet: entropy bits must be 128 or 256")

	// ErrInvalidSeed indicates the seed is empty or invalid.
	ErrInvalidSeed = errors.New("wallet: invalid seed")

	// ErrDerivationFailed indicates BIP32 key derivation failed.
	ErrDerivationFailed = errors.New("wallet: key derivation failed")

	// ErrIndexOutOfRange indicates an identity index crosses the hardened boundary.
	ErrIndexOutOfRange = errors.New("wallet: identity index exceeds maximum (2^31-1)")

	// ErrInvalidPubKey indicates a public key is not a valid compressed secp256k1 key.
	ErrInvalidPubKey = errors.New("wallet: invalid public key")

	// ErrInvalidSignature indicates a signature failed to parse or verify.
	ErrInvalidSignature = errors.New("wallet: invalid signature")

	// ErrDecryptionFailed indicates wrong password or corrupted keystore data.
	ErrDecryptionFailed = errors.New("wallet: keystore decryption failed (wrong password or corrupted data)")

	// ErrChecksumMismatch indicates the key checksum did not verify after decryption.
	ErrChecksumMismatch = errors.New("wallet: key checksum mismatch")

	// ErrKeystoreNotFound indicates the keystore file does not exist.
	ErrKeystoreNotFound = errors.New("wallet: keystore not found")
)
