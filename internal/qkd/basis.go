package qkd

import (
	"errors"
	"math/rand"
	"strings"

	pkgerrors "github.com/pkg/errors"

	"github.com/jaskrrish/Go-QLab/internal/quantum"
)

// Basis represents a measurement basis
type Basis byte

const (
	// Rectilinear encodes 0 as |0⟩ and 1 as |1⟩.
	Rectilinear Basis = '+'
	// Diagonal encodes 0 as |+⟩ and 1 as |−⟩.
	Diagonal Basis = 'x'
)

var (
	// ErrInvalidBasis is returned for any basis symbol other than '+' or 'x'.
	ErrInvalidBasis = errors.New("invalid basis")
	// ErrLengthMismatch is returned when sequences that must align differ in
	// length.
	ErrLengthMismatch = errors.New("sequence length mismatch")
)

func (b Basis) String() string {
	return string(rune(b))
}

// Valid reports whether b is Rectilinear or Diagonal.
func (b Basis) Valid() bool {
	return b == Rectilinear || b == Diagonal
}

// ParseBases reads a string of '+' and 'x' symbols. 'X' is accepted for
// Diagonal.
func ParseBases(s string) ([]Basis, error) {
	if s == "" {
		return nil, pkgerrors.Wrap(ErrInvalidBasis, "empty input")
	}

	bases := make([]Basis, len(s))
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '+':
			bases[i] = Rectilinear
		case 'x', 'X':
			bases[i] = Diagonal
		default:
			return nil, pkgerrors.Wrapf(ErrInvalidBasis, "symbol %q at position %d", s[i], i)
		}
	}
	return bases, nil
}

// FormatBases renders bases as a '+'/'x' string.
func FormatBases(bases []Basis) string {
	var b strings.Builder
	b.Grow(len(bases))
	for _, basis := range bases {
		b.WriteByte(byte(basis))
	}
	return b.String()
}

// RandomBases draws length uniformly random bases from rng.
func RandomBases(rng *rand.Rand, length int) []Basis {
	bases := make([]Basis, length)
	for i := range bases {
		if rng.Intn(2) == 0 {
			bases[i] = Rectilinear
		} else {
			bases[i] = Diagonal
		}
	}
	return bases
}

// Agreement flags whether two parties used the same basis at a position.
type Agreement int

const (
	Mismatch Agreement = 0
	Match    Agreement = 1
)

func (a Agreement) String() string {
	if a == Match {
		return "1"
	}
	return "0"
}

// FormatAgreements renders flags as a '0'/'1' string.
func FormatAgreements(flags []Agreement) string {
	var b strings.Builder
	b.Grow(len(flags))
	for _, f := range flags {
		b.WriteString(f.String())
	}
	return b.String()
}

func validBit(b quantum.Bit) bool {
	return b == quantum.Zero || b == quantum.One
}

func checkAligned(aliceBases, bobBases []Basis, aliceBits, bobBits []quantum.Bit) error {
	n := len(aliceBases)
	if len(bobBases) != n || len(aliceBits) != n || len(bobBits) != n {
		return pkgerrors.Wrapf(ErrLengthMismatch, "alice bases %d, bob bases %d, alice bits %d, bob bits %d",
			len(aliceBases), len(bobBases), len(aliceBits), len(bobBits))
	}
	for i := 0; i < n; i++ {
		if !aliceBases[i].Valid() || !bobBases[i].Valid() {
			return pkgerrors.Wrapf(ErrInvalidBasis, "position %d", i)
		}
		if !validBit(aliceBits[i]) || !validBit(bobBits[i]) {
			return pkgerrors.Wrapf(quantum.ErrInvalidBitString, "position %d", i)
		}
	}
	return nil
}

// CompareBases flags, position by position, whether Alice and Bob chose the
// same basis. The output has the input length and carries only Match or
// Mismatch; the bit values are validated but do not influence the flags.
// Use BasisReconciliation to obtain the retained key bits.
func CompareBases(aliceBases, bobBases []Basis, aliceBits, bobBits []quantum.Bit) ([]Agreement, error) {
	if err := checkAligned(aliceBases, bobBases, aliceBits, bobBits); err != nil {
		return nil, err
	}

	flags := make([]Agreement, len(aliceBases))
	for i := range aliceBases {
		if aliceBases[i] == bobBases[i] {
			flags[i] = Match
		}
	}
	return flags, nil
}

// SiftedKey represents the result of basis reconciliation
type SiftedKey struct {
	AliceKey []quantum.Bit
	BobKey   []quantum.Bit
	Indices  []int // positions where the bases matched
}

// Len returns the number of retained bits.
func (s *SiftedKey) Len() int { return len(s.AliceKey) }

// BasisReconciliation keeps, for every position where the bases match,
// Alice's sent bit and Bob's measured bit.
func BasisReconciliation(aliceBases, bobBases []Basis, aliceBits, bobBits []quantum.Bit) (*SiftedKey, error) {
	flags, err := CompareBases(aliceBases, bobBases, aliceBits, bobBits)
	if err != nil {
		return nil, err
	}

	sifted := &SiftedKey{
		AliceKey: make([]quantum.Bit, 0, len(flags)/2),
		BobKey:   make([]quantum.Bit, 0, len(flags)/2),
		Indices:  make([]int, 0, len(flags)/2),
	}
	for i, f := range flags {
		if f == Match {
			sifted.AliceKey = append(sifted.AliceKey, aliceBits[i])
			sifted.BobKey = append(sifted.BobKey, bobBits[i])
			sifted.Indices = append(sifted.Indices, i)
		}
	}
	return sifted, nil
}

// RemoveSampledBits drops the positions disclosed during error estimation.
func RemoveSampledBits(sifted *SiftedKey, sampledIndices []int) *SiftedKey {
	toRemove := make(map[int]bool, len(sampledIndices))
	for _, idx := range sampledIndices {
		toRemove[idx] = true
	}

	out := &SiftedKey{
		AliceKey: make([]quantum.Bit, 0, sifted.Len()),
		BobKey:   make([]quantum.Bit, 0, sifted.Len()),
		Indices:  make([]int, 0, sifted.Len()),
	}
	for i := 0; i < sifted.Len(); i++ {
		if toRemove[i] {
			continue
		}
		out.AliceKey = append(out.AliceKey, sifted.AliceKey[i])
		out.BobKey = append(out.BobKey, sifted.BobKey[i])
		out.Indices = append(out.Indices, sifted.Indices[i])
	}
	return out
}
