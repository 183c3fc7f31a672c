package quantum

import (
	"errors"
	"sort"

	pkgerrors "github.com/pkg/errors"
)

// ErrInvalidCounts is returned when a counts mapping breaks its invariants.
var ErrInvalidCounts = errors.New("invalid counts")

// Counts maps measured outcomes to occurrence counts. Keys are written with
// classical bit 0 as the right-most character, e.g. {"0000": 512, "1111": 512}.
type Counts map[string]int

// Shots returns the total number of recorded trials.
func (c Counts) Shots() int {
	total := 0
	for _, n := range c {
		total += n
	}
	return total
}

// Validate checks that counts sum to shots and every outcome is a width-long
// string over {0,1}.
func (c Counts) Validate(shots, width int) error {
	total := 0
	for outcome, n := range c {
		if n < 0 {
			return pkgerrors.Wrapf(ErrInvalidCounts, "outcome %q has negative count %d", outcome, n)
		}
		if len(outcome) != width {
			return pkgerrors.Wrapf(ErrInvalidCounts, "outcome %q has width %d, want %d", outcome, len(outcome), width)
		}
		if err := ValidateBitString(outcome); err != nil {
			return pkgerrors.Wrapf(ErrInvalidCounts, "outcome %q: %v", outcome, err)
		}
		total += n
	}

	if total != shots {
		return pkgerrors.Wrapf(ErrInvalidCounts, "counts sum to %d, want %d shots", total, shots)
	}
	return nil
}

// Outcomes returns the recorded outcomes in lexical order.
func (c Counts) Outcomes() []string {
	out := make([]string, 0, len(c))
	for outcome := range c {
		out = append(out, outcome)
	}
	sort.Strings(out)
	return out
}

// Mode returns the most frequent outcome. Ties go to the lexically smallest
// outcome so the result does not depend on map iteration order.
func (c Counts) Mode() (string, int) {
	best, bestCount := "", -1
	for _, outcome := range c.Outcomes() {
		if c[outcome] > bestCount {
			best, bestCount = outcome, c[outcome]
		}
	}
	if bestCount < 0 {
		return "", 0
	}
	return best, bestCount
}

// Probability returns the empirical frequency of outcome.
func (c Counts) Probability(outcome string) float64 {
	total := c.Shots()
	if total == 0 {
		return 0
	}
	return float64(c[outcome]) / float64(total)
}

// Probabilities returns the empirical distribution.
func (c Counts) Probabilities() map[string]float64 {
	total := c.Shots()
	probs := make(map[string]float64, len(c))
	if total == 0 {
		return probs
	}
	for outcome, n := range c {
		probs[outcome] = float64(n) / float64(total)
	}
	return probs
}

// Marginal sums counts over every classical bit except clbit, returning
// counts keyed "0" and "1".
func (c Counts) Marginal(clbit int) (Counts, error) {
	out := Counts{}
	for outcome, n := range c {
		idx := len(outcome) - 1 - clbit
		if idx < 0 || idx >= len(outcome) {
			return nil, pkgerrors.Wrapf(ErrInvalidCounts, "clbit %d outside outcome %q", clbit, outcome)
		}
		out[string(outcome[idx])] += n
	}
	return out, nil
}

// OutcomeBit reads classical bit clbit out of an outcome string.
func OutcomeBit(outcome string, clbit int) (Bit, error) {
	idx := len(outcome) - 1 - clbit
	if idx < 0 || idx >= len(outcome) {
		return Zero, pkgerrors.Wrapf(ErrInvalidCounts, "clbit %d outside outcome %q", clbit, outcome)
	}
	switch outcome[idx] {
	case '0':
		return Zero, nil
	case '1':
		return One, nil
	default:
		return Zero, pkgerrors.Wrapf(ErrInvalidBitString, "outcome %q", outcome)
	}
}
