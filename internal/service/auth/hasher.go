package auth

import (
	"context"
	"crypto/sha256"
	"fmt"
	"runtime"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/semaphore"
)

// Interface to create or compare user password hashes
type PasswordHasher interface {
	// Generate Hash from password
	Hash(ctx context.Context, password string) (string, error)

	// Compare known hashedPassword and user provided password
	// Must be protected against timing attacks
	Compare(ctx context.Context, hashedPassword string, password string) error
}

// Bcrypt password hasher
// Password is prehashed with sha256: bcrypt ignores everything after 72 bytes
type BcryptHasher struct {
	// Work factor, bcrypt.DefaultCost if zero
	Cost int
}

func (h BcryptHasher) Hash(_ context.Context, password string) (string, error) {
	cost := h.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}

	sum := sha256.Sum256([]byte(password))
	hash, err := bcrypt.GenerateFromPassword(sum[:], cost)
	if err != nil {
		return "", fmt.Errorf("can't hash password. Err: %w", err)
	}
	return string(hash), nil
}

func (h BcryptHasher) Compare(_ context.Context, hashedPassword string, password string) error {
	sum := sha256.Sum256([]byte(password))
	return bcrypt.CompareHashAndPassword([]byte(hashedPassword), sum[:])
}

// PooledHasher limits how many hashes are computed at once
// Bcrypt is slow on purpose, unbounded it would take every CPU and starve other requests
type PooledHasher struct {
	hasher PasswordHasher
	sem    *semaphore.Weighted
}

// Wrap hasher, size <= 0 means runtime.NumCPU()
func NewPooledHasher(hasher PasswordHasher, size int) *PooledHasher {
	if size <= 0 {
		size = runtime.NumCPU()
	}

	return &PooledHasher{
		hasher: hasher,
		sem:    semaphore.NewWeighted(int64(size)),
	}
}

func (h *PooledHasher) Hash(ctx context.Context, password string) (string, error) {
	if err := h.sem.Acquire(ctx, 1); err != nil {
		return "", fmt.Errorf("hasher is busy. Err: %w", err)
	}
	defer h.sem.Release(1)

	return h.hasher.Hash(ctx, password)
}

func (h *PooledHasher) Compare(ctx context.Context, hashedPassword string, password string) error {
	if err := h.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("hasher is busy. Err: %w", err)
	}
	defer h.sem.Release(1)

	return h.hasher.Compare(ctx, hashedPassword, password)
}
