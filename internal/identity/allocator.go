package identity

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"
)

// Allocator produces a unique, opaque address for a newly registered
// principal. The ledger never interprets the address beyond uniqueness.
type Allocator interface {
	Allocate(ctx context.Context, principalID string) (string, error)
}

// DerivedAllocator derives addresses deterministically from a namespace
// secret and the principal identifier, in the style of a public-key hash.
// The same principal always maps to the same address, so a crashed
// registration retried later allocates no orphan handle.
type DerivedAllocator struct {
	key []byte
}

// NewDerivedAllocator builds an allocator keyed with the given namespace
// secret. The secret must be non-empty and at most 64 bytes.
func NewDerivedAllocator(secret string) (*DerivedAllocator, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, fmt.Errorf("allocator secret is required")
	}
	if len(secret) > 64 {
		return nil, fmt.Errorf("allocator secret exceeds 64 bytes")
	}
	return &DerivedAllocator{key: []byte(secret)}, nil
}

// Allocate derives the principal's address.
func (a *DerivedAllocator) Allocate(_ context.Context, principalID string) (string, error) {
	h, err := blake2b.New256(a.key)
	if err != nil {
		return "", fmt.Errorf("init digest: %w", err)
	}
	h.Write([]byte(principalID))
	return "addr1" + hex.EncodeToString(h.Sum(nil)[:20]), nil
}

// UUIDAllocator mints a fresh random address per call.
type UUIDAllocator struct{}

// Allocate returns a new UUID-backed address.
func (UUIDAllocator) Allocate(_ context.Context, _ string) (string, error) {
	return "addr-" + uuid.NewString(), nil
}
