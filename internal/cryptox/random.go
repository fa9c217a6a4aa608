// Package cryptox holds the cryptographic primitives of pxauth: secure
// random tokens and codes, password hashing and TOTP verification.
package cryptox

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// Generator produces secret tokens and numeric codes.
type Generator interface {
	// RandomBytes returns n cryptographically secure random bytes.
	RandomBytes(n int) []byte
	// RandomDigits returns a uniform integer in [0, 10^d).
	RandomDigits(d int) uint32
}

// OSGenerator reads from the operating system's secure random source.
// A failing source is unrecoverable and panics.
type OSGenerator struct{}

func (OSGenerator) RandomBytes(n int) []byte {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		panic(fmt.Sprintf("cryptox: secure random source failed: %v", err))
	}
	return b
}

func (OSGenerator) RandomDigits(d int) uint32 {
	if d <= 0 || d > 9 {
		panic(fmt.Sprintf("cryptox: unsupported digit count %d", d))
	}
	limit := big.NewInt(1)
	for i := 0; i < d; i++ {
		limit.Mul(limit, big.NewInt(10))
	}
	v, err := rand.Int(rand.Reader, limit)
	if err != nil {
		panic(fmt.Sprintf("cryptox: secure random source failed: %v", err))
	}
	return uint32(v.Uint64())
}

// PadCode renders code as a zero-padded decimal string of the given width.
func PadCode(code uint32, width int) string {
	return fmt.Sprintf("%0*d", width, code)
}
