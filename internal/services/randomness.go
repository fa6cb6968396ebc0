package services

import (
	"context"
	crand "crypto/rand"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// Commitment is the randomness drawn for one draw request.
type Commitment struct {
	Hash   common.Hash
	Random *big.Int // Hash read as a big-endian integer
	Value  uint64   // Random mod the slot space
}

// RandomnessSource produces the commitment for a draw. Implementations must
// be deterministic for a given seed and nonce.
type RandomnessSource interface {
	Commit(ctx context.Context, drawer common.Address, lotteryID, nonce uint64) (Commitment, error)
}

// SeedSource supplies the unpredictable context value mixed into each commitment.
type SeedSource interface {
	Seed(ctx context.Context) (common.Hash, error)
}

// KeccakSource commits to Keccak256(seed || drawer || lotteryID || nonce).
// Outcomes are only as unpredictable as the seed: anyone who can see or
// steer the seed before a draw is final can choose its result.
type KeccakSource struct {
	seeds SeedSource
	space *big.Int
}

// NewKeccakSource creates a KeccakSource reducing values into [0, space).
func NewKeccakSource(seeds SeedSource, space uint64) *KeccakSource {
	return &KeccakSource{seeds: seeds, space: new(big.Int).SetUint64(space)}
}

// Commit implements RandomnessSource.
func (s *KeccakSource) Commit(ctx context.Context, drawer common.Address, lotteryID, nonce uint64) (Commitment, error) {
	seed, err := s.seeds.Seed(ctx)
	if err != nil {
		return Commitment{}, fmt.Errorf("read seed: %w", err)
	}
	hash := CommitHash(seed, drawer, lotteryID, nonce)
	random := hash.Big()
	value := new(big.Int).Mod(random, s.space)
	return Commitment{Hash: hash, Random: random, Value: value.Uint64()}, nil
}

// CommitHash is the commitment hash of one draw, usable to audit a DrawRecord
// once the seed is disclosed.
func CommitHash(seed common.Hash, drawer common.Address, lotteryID, nonce uint64) common.Hash {
	return crypto.Keccak256Hash(
		seed.Bytes(),
		drawer.Bytes(),
		common.LeftPadBytes(new(big.Int).SetUint64(lotteryID).Bytes(), 32),
		common.LeftPadBytes(new(big.Int).SetUint64(nonce).Bytes(), 32),
	)
}

// FixedSeed always returns the same seed.
type FixedSeed common.Hash

// Seed implements SeedSource.
func (s FixedSeed) Seed(context.Context) (common.Hash, error) {
	return common.Hash(s), nil
}

// CryptoSeed reads a fresh seed from crypto/rand for every draw.
type CryptoSeed struct{}

// Seed implements SeedSource.
func (CryptoSeed) Seed(context.Context) (common.Hash, error) {
	var h common.Hash
	if _, err := crand.Read(h[:]); err != nil {
		return common.Hash{}, fmt.Errorf("read random seed: %w", err)
	}
	return h, nil
}

// HeaderReader is the part of an Ethereum client BlockHashSeed needs.
// *ethclient.Client satisfies it.
type HeaderReader interface {
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
}

// BlockHashSeed uses the hash of the chain's latest block as the seed.
type BlockHashSeed struct {
	Client HeaderReader
}

// Seed implements SeedSource.
func (s BlockHashSeed) Seed(ctx context.Context) (common.Hash, error) {
	header, err := s.Client.HeaderByNumber(ctx, nil)
	if err != nil {
		return common.Hash{}, fmt.Errorf("fetch latest header: %w", err)
	}
	return header.Hash(), nil
}
