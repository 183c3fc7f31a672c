package crypto

import (
	"errors"
	"math/rand"

	pkgerrors "github.com/pkg/errors"

	"github.com/jaskrrish/Go-QLab/internal/quantum"
)

// ErrKeyLengthMismatch is returned when the two keys being reconciled differ
// in length.
var ErrKeyLengthMismatch = errors.New("keys must have the same length")

// minErrorRate keeps the first-pass block size finite for an error-free
// estimate.
const minErrorRate = 0.01

// CascadeCorrector implements the Cascade error correction algorithm.
// Alice's key is the reference; Bob's copy is corrected by comparing block
// parities over a public channel. Passes after the first shuffle the key with
// a permutation both sides derive from the shared seed, and every correction
// is cascaded back into the blocks of earlier passes that contain it.
type CascadeCorrector struct {
	passes    int     // Number of Cascade passes
	blockSize int     // First-pass block size
	errorRate float64 // Estimated error rate
	seed      int64
}

// NewCascadeCorrector sizes the first pass for errorRate. The seed fixes the
// per-pass permutations.
func NewCascadeCorrector(errorRate float64, seed int64) *CascadeCorrector {
	rate := errorRate
	if rate < minErrorRate {
		rate = minErrorRate
	}
	blockSize := int(0.73 / rate)
	if blockSize < 1 {
		blockSize = 1
	}

	return &CascadeCorrector{
		passes:    4,
		blockSize: blockSize,
		errorRate: errorRate,
		seed:      seed,
	}
}

// BlockSize returns the first-pass block size.
func (c *CascadeCorrector) BlockSize() int { return c.blockSize }

// CalculateParity calculates the XOR parity of a slice of bits
func CalculateParity(bits []quantum.Bit) quantum.Bit {
	parity := quantum.Zero
	for _, bit := range bits {
		parity = parity ^ bit
	}
	return parity
}

func parityAt(key []quantum.Bit, idxs []int) quantum.Bit {
	parity := quantum.Zero
	for _, i := range idxs {
		parity ^= key[i]
	}
	return parity
}

// cascadePass is one shuffled partition of the key into blocks.
type cascadePass struct {
	order     []int // order[p] is the key index at shuffled position p
	position  []int // inverse of order
	blockSize int
}

func (p *cascadePass) block(b int) []int {
	start := b * p.blockSize
	end := start + p.blockSize
	if end > len(p.order) {
		end = len(p.order)
	}
	return p.order[start:end]
}

func (p *cascadePass) blockOf(keyIdx int) int {
	return p.position[keyIdx] / p.blockSize
}

func (p *cascadePass) numBlocks() int {
	return (len(p.order) + p.blockSize - 1) / p.blockSize
}

// Correct performs Cascade error correction between Alice and Bob's keys. It
// returns Bob's corrected key and the number of parity bits disclosed.
func (c *CascadeCorrector) Correct(aliceKey, bobKey []quantum.Bit) ([]quantum.Bit, int, error) {
	if len(aliceKey) != len(bobKey) {
		return nil, 0, pkgerrors.Wrapf(ErrKeyLengthMismatch, "%d != %d", len(aliceKey), len(bobKey))
	}

	keyLength := len(aliceKey)
	corrected := make([]quantum.Bit, keyLength)
	copy(corrected, bobKey)
	if keyLength == 0 {
		return corrected, 0, nil
	}

	rng := rand.New(rand.NewSource(c.seed))
	disclosed := 0
	passes := make([]*cascadePass, 0, c.passes)
	blockSize := c.blockSize

	for p := 0; p < c.passes; p++ {
		order := make([]int, keyLength)
		for i := range order {
			order[i] = i
		}
		if p > 0 {
			rng.Shuffle(keyLength, func(i, j int) { order[i], order[j] = order[j], order[i] })
		}
		position := make([]int, keyLength)
		for pos, idx := range order {
			position[idx] = pos
		}
		pass := &cascadePass{order: order, position: position, blockSize: blockSize}
		passes = append(passes, pass)

		for b := 0; b < pass.numBlocks(); b++ {
			idxs := pass.block(b)
			disclosed++
			if parityAt(aliceKey, idxs) == parityAt(corrected, idxs) {
				continue
			}
			disclosed += c.fix(aliceKey, corrected, passes, p, b)
		}

		// Double block size for next pass (Cascade heuristic)
		blockSize *= 2
	}

	return corrected, disclosed, nil
}

// fix corrects one error in block b of pass p, then revisits the blocks of
// every other completed pass that contain a flipped bit. Each binary search
// lands on a real error, so the loop ends once the mismatches are gone. It
// returns the number of parity bits disclosed.
func (c *CascadeCorrector) fix(aliceKey, corrected []quantum.Bit, passes []*cascadePass, p, b int) int {
	type pending struct {
		pass, block int
		odd         bool // parity mismatch already known
	}

	disclosed := 0
	queue := []pending{{pass: p, block: b, odd: true}}
	for len(queue) > 0 {
		next := queue[0]
		queue = queue[1:]

		idxs := passes[next.pass].block(next.block)
		if !next.odd {
			disclosed++
			if parityAt(aliceKey, idxs) == parityAt(corrected, idxs) {
				continue
			}
		}

		idx, n := c.binarySearch(aliceKey, corrected, idxs)
		disclosed += n
		corrected[idx] ^= 1

		for q := range passes {
			if q != next.pass {
				queue = append(queue, pending{pass: q, block: passes[q].blockOf(idx)})
			}
		}
	}
	return disclosed
}

// binarySearch halves a block with odd parity mismatch until one bit is
// left, returning its key index and the parities disclosed.
func (c *CascadeCorrector) binarySearch(aliceKey, bobKey []quantum.Bit, idxs []int) (int, int) {
	disclosed := 0
	for len(idxs) > 1 {
		half := len(idxs) / 2
		disclosed++
		if parityAt(aliceKey, idxs[:half]) != parityAt(bobKey, idxs[:half]) {
			idxs = idxs[:half]
		} else {
			idxs = idxs[half:]
		}
	}
	return idxs[0], disclosed
}

// VerifyKeyCorrectness checks if Alice and Bob's keys match after error correction
func VerifyKeyCorrectness(aliceKey, bobKey []quantum.Bit) (bool, float64) {
	rate, err := quantum.BitError(aliceKey, bobKey)
	if err != nil {
		return false, 1.0
	}
	return rate == 0, rate
}

// CalculateInformationLeakage returns the disclosed parity bits as a fraction
// of the key length.
func CalculateInformationLeakage(disclosedBits int, keyLength int) float64 {
	if keyLength == 0 {
		return 0
	}
	return float64(disclosedBits) / float64(keyLength)
}
