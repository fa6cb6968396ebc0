// Package config loads the lottery server configuration from the environment.
package config

import (
	"fmt"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Seed modes.
const (
	SeedCrypto = "crypto"
	SeedFixed  = "fixed"
	SeedChain  = "chain"
)

// Config is the server configuration.
type Config struct {
	HTTPAddr     string `env:"LOTTERY_HTTP_ADDR" envDefault:":8080"`
	OwnerAddress string `env:"LOTTERY_OWNER_ADDRESS,required,notEmpty"`
	StoragePath  string `env:"LOTTERY_STORAGE_PATH"` // in-memory when empty
	SlotSpace    uint64 `env:"LOTTERY_SLOT_SPACE" envDefault:"60"`
	SeedMode     string `env:"LOTTERY_SEED_MODE" envDefault:"crypto"`
	FixedSeed    string `env:"LOTTERY_FIXED_SEED"`
	EthRPCURL    string `env:"LOTTERY_ETH_RPC_URL"`
	GinMode      string `env:"LOTTERY_GIN_MODE" envDefault:"release"`
	LogVerbose   bool   `env:"LOTTERY_LOG_VERBOSE" envDefault:"false"`
}

// Load parses the environment into a Config and validates it.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks values the environment parser cannot.
func (c Config) Validate() error {
	if !common.IsHexAddress(c.OwnerAddress) {
		return fmt.Errorf("LOTTERY_OWNER_ADDRESS %q is not a hex address", c.OwnerAddress)
	}
	if c.SlotSpace == 0 {
		return fmt.Errorf("LOTTERY_SLOT_SPACE must be positive")
	}
	switch c.SeedMode {
	case SeedCrypto:
	case SeedFixed:
		if strings.TrimSpace(c.FixedSeed) == "" {
			return fmt.Errorf("LOTTERY_FIXED_SEED is required with seed mode %q", SeedFixed)
		}
		if _, err := decodeSeed(c.FixedSeed); err != nil {
			return fmt.Errorf("LOTTERY_FIXED_SEED: %w", err)
		}
	case SeedChain:
		if strings.TrimSpace(c.EthRPCURL) == "" {
			return fmt.Errorf("LOTTERY_ETH_RPC_URL is required with seed mode %q", SeedChain)
		}
	default:
		return fmt.Errorf("unknown LOTTERY_SEED_MODE %q", c.SeedMode)
	}
	return nil
}

// Owner returns the owner address.
func (c Config) Owner() common.Address {
	return common.HexToAddress(c.OwnerAddress)
}

// Seed returns the decoded fixed seed. Validate must have accepted c.
func (c Config) Seed() common.Hash {
	seed, _ := decodeSeed(c.FixedSeed)
	return seed
}

// decodeSeed parses a 0x-prefixed hex string of at most 32 bytes.
func decodeSeed(s string) (common.Hash, error) {
	b, err := hexutil.Decode(strings.TrimSpace(s))
	if err != nil {
		return common.Hash{}, err
	}
	if len(b) > common.HashLength {
		return common.Hash{}, fmt.Errorf("seed is %d bytes, at most %d allowed", len(b), common.HashLength)
	}
	return common.BytesToHash(b), nil
}
