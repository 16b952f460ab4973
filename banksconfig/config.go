// Package banksconfig persists the mint addresses recorded during bank
// bootstrap, so later runs and the faucet reuse the same mints instead of
// creating new ones. The file uses the field names the setup tooling has
// always written; renaming them would orphan existing deployments.
package banksconfig

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/openlend/lending-client/solana"
)

const EnvPath = "LENDING_BANKS_CONFIG"

// Config mirrors the banks-config.json file. All address fields are base58.
// The authority fields record which wallet holds mint authority; that wallet's
// keypair must be loaded to run the faucet or re-fund the banks.
type Config struct {
	SolMint           string `json:"SOL_MINT"`
	UsdcMint          string `json:"USDC_MINT"`
	SolMintAuthority  string `json:"SOL_MINT_AUTHORITY"`
	UsdcMintAuthority string `json:"USDC_MINT_AUTHORITY"`
	BanksInitialized  bool   `json:"banks_initialized"`
}

// DefaultPath resolves the config location: $LENDING_BANKS_CONFIG when set,
// otherwise banks-config.json in the working directory.
func DefaultPath() string {
	if p := os.Getenv(EnvPath); p != "" {
		return p
	}
	return "banks-config.json"
}

// Load reads the config file. A missing file is not an error: it means the
// banks have never been bootstrapped, and Load returns an empty config.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return &Config{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read banks config %s: %w", path, err)
	}
	cfg := &Config{}
	if err := json.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("parse banks config %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes the config atomically via a temp file and rename, so a crash
// mid-write cannot corrupt an existing deployment record.
func (c *Config) Save(path string) error {
	raw, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("encode banks config: %w", err)
	}
	raw = append(raw, '\n')

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create config dir %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".banks-config-*")
	if err != nil {
		return fmt.Errorf("write banks config: %w", err)
	}
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write banks config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("write banks config: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("write banks config %s: %w", path, err)
	}
	return nil
}

// HasMints reports whether both mints have been recorded.
func (c *Config) HasMints() bool {
	return c.SolMint != "" && c.UsdcMint != ""
}

func (c *Config) SolMintAddress() (solana.Pubkey, error) {
	return solana.ParsePubkey(c.SolMint)
}

func (c *Config) UsdcMintAddress() (solana.Pubkey, error) {
	return solana.ParsePubkey(c.UsdcMint)
}

func (c *Config) SetSolMint(mint, authority solana.Pubkey) {
	c.SolMint = mint.Base58()
	c.SolMintAuthority = authority.Base58()
}

func (c *Config) SetUsdcMint(mint, authority solana.Pubkey) {
	c.UsdcMint = mint.Base58()
	c.UsdcMintAuthority = authority.Base58()
}

func (c *Config) SolAuthority() (solana.Pubkey, error) {
	return solana.ParsePubkey(c.SolMintAuthority)
}

func (c *Config) UsdcAuthority() (solana.Pubkey, error) {
	return solana.ParsePubkey(c.UsdcMintAuthority)
}
