// Package kdf provides passphrase key derivation for the app lock.
//
// This package implements Argon2id key derivation following OWASP
// recommendations. The interactive variant generates a fresh salt and
// cost parameters; the deterministic variant reproduces a derivation
// from previously stored parameters so a stored verifier can be checked
// after a restart.
//
// # Example Usage
//
//	// Initial setup: derive a verifier with fresh parameters
//	d, err := kdf.DeriveInteractive([]byte("1234"))
//	// persist d.Key (verifier), d.Salt, d.OpsLimit, d.MemLimit
//
//	// Later verification with the stored parameters
//	key, err := kdf.Derive([]byte(input), d.Salt, d.OpsLimit, d.MemLimit)
//
//	// Securely wipe derived material
//	kdf.SecureWipe(key)
package kdf

import (
	"crypto/rand"
	"errors"
	"fmt"
	"runtime"

	"golang.org/x/crypto/argon2"
	"golang.org/x/text/unicode/norm"
)

// Interactive Argon2id parameters following OWASP recommendations.
const (
	// InteractiveOpsLimit is the number of iterations for interactive use.
	InteractiveOpsLimit = 3

	// InteractiveMemLimit is the memory cost in KiB (64MB).
	InteractiveMemLimit = 64 * 1024

	// Threads is the degree of parallelism.
	Threads = 4

	// SaltLength is the length of generated salts in bytes (128 bits).
	SaltLength = 16

	// KeyLength is the length of derived keys in bytes (256 bits).
	KeyLength = 32
)

// Sanity bounds on stored cost parameters. Values outside these ranges
// indicate corrupted stored state, not a tunable configuration.
const (
	maxOpsLimit = 32
	maxMemLimit = 1024 * 1024 // 1 GiB in KiB
)

// Sentinel errors returned by kdf functions.
var (
	// ErrEmptyPassphrase indicates the passphrase is empty after normalization.
	ErrEmptyPassphrase = errors.New("kdf: passphrase must not be empty")

	// ErrInvalidSalt indicates the stored salt has the wrong length.
	ErrInvalidSalt = errors.New("kdf: invalid salt length")

	// ErrInvalidParams indicates the stored cost parameters are out of range.
	ErrInvalidParams = errors.New("kdf: cost parameters out of range")
)

// Derived holds the output of an interactive derivation: the derived key
// plus every parameter needed to reproduce it later.
type Derived struct {
	Key      []byte
	Salt     []byte
	OpsLimit uint32
	MemLimit uint32
}

// DeriveInteractive derives a key from a passphrase using a freshly
// generated salt and the interactive cost parameters. The caller persists
// Salt, OpsLimit and MemLimit alongside the key so Derive can reproduce
// the derivation.
func DeriveInteractive(passphrase []byte) (*Derived, error) {
	salt := make([]byte, SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("kdf: failed to generate salt: %w", err)
	}

	key, err := Derive(passphrase, salt, InteractiveOpsLimit, InteractiveMemLimit)
	if err != nil {
		return nil, err
	}

	return &Derived{
		Key:      key,
		Salt:     salt,
		OpsLimit: InteractiveOpsLimit,
		MemLimit: InteractiveMemLimit,
	}, nil
}

// Derive derives a 256-bit key from a passphrase using Argon2id with the
// given salt and cost parameters. Deterministic for identical inputs.
//
// The passphrase is normalized to NFKC before derivation so the same
// passphrase typed under a different input method still verifies.
func Derive(passphrase, salt []byte, opsLimit, memLimit uint32) ([]byte, error) {
	normalized := norm.NFKC.Bytes(passphrase)
	if len(normalized) == 0 {
		return nil, ErrEmptyPassphrase
	}
	if len(salt) != SaltLength {
		return nil, ErrInvalidSalt
	}
	if opsLimit == 0 || opsLimit > maxOpsLimit || memLimit == 0 || memLimit > maxMemLimit {
		return nil, ErrInvalidParams
	}

	return argon2.IDKey(normalized, salt, opsLimit, memLimit, Threads, KeyLength), nil
}

// SecureWipe overwrites a byte slice with zeros in a way that prevents
// compiler optimization from removing the operation.
func SecureWipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
	// runtime.KeepAlive ensures the write operations are not optimized away
	// by the compiler since b is still "in use" after the loop.
	runtime.KeepAlive(b)
}
