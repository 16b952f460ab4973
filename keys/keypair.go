// Package keys reads and writes Solana CLI keypair files: a JSON array of 64
// byte values holding the ed25519 secret key.
package keys

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/openlend/lending-client/solana"
)

var ErrInvalidKeypairFile = errors.New("invalid keypair file")

// DefaultPath returns the Solana CLI's default keypair location, or "" when
// the home directory cannot be resolved.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return ""
	}
	return filepath.Join(home, ".config", "solana", "id.json")
}

func Load(path string) (ed25519.PrivateKey, solana.Pubkey, error) {
	var pub solana.Pubkey
	if path == "" {
		return nil, pub, fmt.Errorf("keypair path required")
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, pub, err
	}

	var ints []int
	if err := json.Unmarshal(raw, &ints); err != nil {
		return nil, pub, ErrInvalidKeypairFile
	}
	if len(ints) != ed25519.PrivateKeySize {
		return nil, pub, ErrInvalidKeypairFile
	}

	key := make([]byte, ed25519.PrivateKeySize)
	for i, v := range ints {
		if v < 0 || v > 255 {
			return nil, pub, ErrInvalidKeypairFile
		}
		key[i] = byte(v)
	}

	priv := ed25519.PrivateKey(key)
	pk, ok := priv.Public().(ed25519.PublicKey)
	if !ok || len(pk) != ed25519.PublicKeySize {
		return nil, pub, ErrInvalidKeypairFile
	}
	copy(pub[:], pk)
	return priv, pub, nil
}

// NewEphemeral generates a keypair that never touches disk, for accounts like
// fresh mints whose secret only needs to sign their creation transaction.
func NewEphemeral() (solana.Pubkey, ed25519.PrivateKey, error) {
	var pub solana.Pubkey
	pk, sk, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return pub, nil, err
	}
	copy(pub[:], pk)
	return pub, sk, nil
}

// Generate writes a new keypair file at path, refusing to clobber an existing
// one unless force is set. The file lands via temp-and-rename with 0600 mode.
func Generate(path string, force bool) (solana.Pubkey, error) {
	var pub solana.Pubkey
	path = filepath.Clean(path)
	if path == "." || path == "" {
		return pub, errors.New("keypair path required")
	}

	if !force {
		if _, err := os.Stat(path); err == nil {
			return pub, fmt.Errorf("keypair already exists: %s", path)
		} else if err != nil && !errors.Is(err, os.ErrNotExist) {
			return pub, err
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return pub, err
	}

	pk, sk, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return pub, err
	}
	copy(pub[:], pk)

	ints := make([]int, 0, ed25519.PrivateKeySize)
	for _, b := range sk {
		ints = append(ints, int(b))
	}
	raw, err := json.Marshal(ints)
	if err != nil {
		return pub, err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-keypair-*.json")
	if err != nil {
		return pub, err
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return pub, err
	}
	if _, err := tmp.Write(raw); err != nil {
		_ = tmp.Close()
		return pub, err
	}
	if err := tmp.Close(); err != nil {
		return pub, err
	}

	if err := os.Rename(tmpName, path); err != nil {
		return pub, err
	}
	if err := os.Chmod(path, 0o600); err != nil {
		return pub, err
	}
	return pub, nil
}
