package quantum

import (
	"errors"
	"math/rand"
	"strings"

	pkgerrors "github.com/pkg/errors"
)

// Bit represents a classical bit (0 or 1)
type Bit int

const (
	Zero Bit = 0
	One  Bit = 1
)

// ErrInvalidBitString is returned when a bit string is empty or contains
// characters other than '0' and '1'.
var ErrInvalidBitString = errors.New("invalid bit string")

// ParseBits converts a string of '0'/'1' characters into bits, left to right.
func ParseBits(s string) ([]Bit, error) {
	if s == "" {
		return nil, pkgerrors.Wrap(ErrInvalidBitString, "empty input")
	}

	bits := make([]Bit, len(s))
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '0':
			bits[i] = Zero
		case '1':
			bits[i] = One
		default:
			return nil, pkgerrors.Wrapf(ErrInvalidBitString, "character %q at position %d", s[i], i)
		}
	}

	return bits, nil
}

// ValidateBitString checks that s is a non-empty string over {0,1}.
func ValidateBitString(s string) error {
	_, err := ParseBits(s)
	return err
}

// FormatBits renders bits as a '0'/'1' string, left to right.
func FormatBits(bits []Bit) string {
	var b strings.Builder
	b.Grow(len(bits))
	for _, bit := range bits {
		if bit == One {
			b.WriteByte('1')
		} else {
			b.WriteByte('0')
		}
	}
	return b.String()
}

// RandomBits draws length uniformly random bits from rng.
func RandomBits(rng *rand.Rand, length int) []Bit {
	bits := make([]Bit, length)
	for i := range bits {
		bits[i] = Bit(rng.Intn(2))
	}
	return bits
}

// BitsToBytes packs bits MSB-first into bytes
func BitsToBytes(bits []Bit) []byte {
	out := make([]byte, (len(bits)+7)/8)
	for i, bit := range bits {
		if bit == One {
			out[i/8] |= 1 << uint(7-i%8)
		}
	}
	return out
}

// BitError returns the fraction of positions where two equal-length bit
// sequences differ.
func BitError(a, b []Bit) (float64, error) {
	if len(a) != len(b) {
		return 0, pkgerrors.Errorf("bit sequences differ in length: %d != %d", len(a), len(b))
	}
	if len(a) == 0 {
		return 0, nil
	}

	diff := 0
	for i := range a {
		if a[i] != b[i] {
			diff++
		}
	}
	return float64(diff) / float64(len(a)), nil
}
