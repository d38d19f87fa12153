package twofactor

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"math/big"
)

const (
	// DefaultCodeLength is the number of digits in a one-time code.
	DefaultCodeLength = 6
	minCodeLength     = 4
	maxCodeLength     = 10
)

// ErrInvalidCodeLength is returned for lengths outside 4..10.
var ErrInvalidCodeLength = errors.New("invalid one-time code length")

// CodeGenerator produces fixed-length numeric codes. Values are drawn uniformly from
// [0, 10^n) and left-padded, so every n-digit string is equally likely.
type CodeGenerator struct {
	length int
	bound  *big.Int
	random io.Reader
}

// NewCodeGenerator returns a generator backed by crypto/rand.
func NewCodeGenerator(length int) (*CodeGenerator, error) {
	if length < minCodeLength || length > maxCodeLength {
		return nil, ErrInvalidCodeLength
	}
	return &CodeGenerator{
		length: length,
		bound:  new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(length)), nil),
		random: rand.Reader,
	}, nil
}

// Length returns the number of digits per code.
func (g *CodeGenerator) Length() int {
	return g.length
}

// Generate returns a new code.
func (g *CodeGenerator) Generate() (string, error) {
	n, err := rand.Int(g.random, g.bound)
	if err != nil {
		return "", fmt.Errorf("generate one-time code: %w", err)
	}
	return fmt.Sprintf("%0*d", g.length, n.Int64()), nil
}
