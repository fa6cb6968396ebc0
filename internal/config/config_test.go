package config

import (
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

const testOwner = "0x00000000000000000000000000000000000000a1"

func TestLoadDefaults(t *testing.T) {
	t.Setenv("LOTTERY_OWNER_ADDRESS", testOwner)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTPAddr != ":8080" || cfg.SlotSpace != 60 || cfg.SeedMode != SeedCrypto || cfg.StoragePath != "" {
		t.Errorf("unexpected defaults %+v", cfg)
	}
	if cfg.Owner().Hex() != "0x00000000000000000000000000000000000000A1" {
		t.Errorf("unexpected owner %s", cfg.Owner().Hex())
	}
}

func TestLoadRequiresOwner(t *testing.T) {
	t.Setenv("LOTTERY_OWNER_ADDRESS", "")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "parse env:") {
		t.Fatalf("expected parse env prefix, got %v", err)
	}
}

func TestLoadBadSpace(t *testing.T) {
	t.Setenv("LOTTERY_OWNER_ADDRESS", testOwner)
	t.Setenv("LOTTERY_SLOT_SPACE", "sixty")

	if _, err := Load(); err == nil {
		t.Fatal("expected error")
	}
}

func TestValidate(t *testing.T) {
	base := Config{OwnerAddress: testOwner, SlotSpace: 60, SeedMode: SeedCrypto}

	cases := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"valid", func(*Config) {}, true},
		{"bad owner", func(c *Config) { c.OwnerAddress = "alice" }, false},
		{"zero space", func(c *Config) { c.SlotSpace = 0 }, false},
		{"fixed without seed", func(c *Config) { c.SeedMode = SeedFixed }, false},
		{"fixed with seed", func(c *Config) { c.SeedMode = SeedFixed; c.FixedSeed = "0x01" }, true},
		{"fixed seed not hex", func(c *Config) { c.SeedMode = SeedFixed; c.FixedSeed = "0xnothex" }, false},
		{"fixed seed without prefix", func(c *Config) { c.SeedMode = SeedFixed; c.FixedSeed = "feed" }, false},
		{"fixed seed too long", func(c *Config) { c.SeedMode = SeedFixed; c.FixedSeed = "0x" + strings.Repeat("ab", 33) }, false},
		{"chain without url", func(c *Config) { c.SeedMode = SeedChain }, false},
		{"chain with url", func(c *Config) { c.SeedMode = SeedChain; c.EthRPCURL = "http://localhost:8545" }, true},
		{"unknown mode", func(c *Config) { c.SeedMode = "dice" }, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.ok && err != nil {
				t.Fatalf("expected valid config, got %v", err)
			}
			if !tc.ok && err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestSeed(t *testing.T) {
	cfg := Config{FixedSeed: "0xfeedface"}
	if got := cfg.Seed(); got != common.HexToHash("0xfeedface") {
		t.Errorf("unexpected seed %s", got.Hex())
	}
}
