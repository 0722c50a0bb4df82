package wallet

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	ec "github.com/bsv-blockchain/go-sdk/primitives/ec"
	"golang.org/x/crypto/argon2"
)

const (
	// Argon2id parameters for key encryption.
	Argon2Time        = 3
	Argon2Memory      = 64 * 1024 // 64 MB
	Argon2Parallelism = 4
	Argon2KeyLen      = 32

	// Sealed key layout sizes.
	SaltLen     = 16
	NonceLen    = 12
	ChecksumLen = 4

	keystoreVersion = 1
)

// keystoreFile is the on-disk JSON envelope for an encrypted identity.
type keystoreFile struct {
	Version int    `json:"version"`
	Address string `json:"address"`
	Path    string `json:"path,omitempty"`
	Sealed  string `json:"sealed"`
}

// Seal encrypts secret with Argon2id + AES-256-GCM.
//
// Output: salt(16B) || nonce(12B) || AES-GCM(argon2id(password,salt), nonce, secret||checksum)
// where checksum is SHA256(secret)[:4].
func Seal(secret []byte, password string) ([]byte, error) {
	if len(secret) == 0 {
		return nil, ErrInvalidSeed
	}

	salt := make([]byte, SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("wallet: failed to generate salt: %w", err)
	}

	gcm, err := keystoreCipher(password, salt)
	if err != nil {
		return nil, err
	}

	sum := sha256.Sum256(secret)
	plaintext := make([]byte, 0, len(secret)+ChecksumLen)
	plaintext = append(plaintext, secret...)
	plaintext = append(plaintext, sum[:ChecksumLen]...)

	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("wallet: failed to generate nonce: %w", err)
	}

	out := make([]byte, 0, SaltLen+NonceLen+len(plaintext)+gcm.Overhead())
	out = append(out, salt...)
	out = append(out, nonce...)
	return gcm.Seal(out, nonce, plaintext, nil), nil
}

// Open reverses Seal.
func Open(sealed []byte, password string) ([]byte, error) {
	if len(sealed) < SaltLen+NonceLen+ChecksumLen {
		return nil, ErrDecryptionFailed
	}
	salt := sealed[:SaltLen]
	nonce := sealed[SaltLen : SaltLen+NonceLen]

	gcm, err := keystoreCipher(password, salt)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	plaintext, err := gcm.Open(nil, nonce, sealed[SaltLen+NonceLen:], nil)
	if err != nil || len(plaintext) < ChecksumLen {
		return nil, ErrDecryptionFailed
	}

	secret := plaintext[:len(plaintext)-ChecksumLen]
	sum := sha256.Sum256(secret)
	stored := plaintext[len(plaintext)-ChecksumLen:]
	for i := 0; i < ChecksumLen; i++ {
		if stored[i] != sum[i] {
			return nil, ErrChecksumMismatch
		}
	}
	return secret, nil
}

func keystoreCipher(password string, salt []byte) (cipher.AEAD, error) {
	key := argon2.IDKey([]byte(password), salt, Argon2Time, Argon2Memory, Argon2Parallelism, Argon2KeyLen)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("wallet: AES cipher creation failed: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("wallet: GCM creation failed: %w", err)
	}
	return gcm, nil
}

// SaveKeystore writes id's private key to path, encrypted under password.
func SaveKeystore(path string, id *Identity, password string) error {
	sealed, err := Seal(id.PrivateKey.Serialize(), password)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(keystoreFile{
		Version: keystoreVersion,
		Address: id.Address.Hex(),
		Path:    id.Path,
		Sealed:  hex.EncodeToString(sealed),
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("wallet: marshal keystore: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("wallet: create keystore directory: %w", err)
	}
	return os.WriteFile(path, data, 0600)
}

// LoadKeystore reads and decrypts an identity written by SaveKeystore.
func LoadKeystore(path, password string) (*Identity, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrKeystoreNotFound, path)
		}
		return nil, fmt.Errorf("wallet: read keystore: %w", err)
	}

	var ks keystoreFile
	if err := json.Unmarshal(data, &ks); err != nil {
		return nil, fmt.Errorf("%w: parse keystore: %w", ErrDecryptionFailed, err)
	}
	sealed, err := hex.DecodeString(ks.Sealed)
	if err != nil {
		return nil, fmt.Errorf("%w: sealed key is not hex", ErrDecryptionFailed)
	}

	secret, err := Open(sealed, password)
	if err != nil {
		return nil, err
	}
	priv, _ := ec.PrivateKeyFromBytes(secret)
	id := IdentityFromKey(priv)
	id.Path = ks.Path

	if want, err := ParseAddress(ks.Address); err == nil && want != id.Address {
		return nil, fmt.Errorf("%w: keystore address %s does not match key", ErrChecksumMismatch, ks.Address)
	}
	return id, nil
}
