// Package qknn estimates Euclidean distances between unit vectors with the
// swap test and uses them for k-nearest-neighbour classification.
package qknn

import (
	"context"
	"errors"
	"math"
	"sort"

	pkgerrors "github.com/pkg/errors"

	"github.com/jaskrrish/Go-QLab/internal/quantum"
)

var (
	// ErrInvalidProbability is returned for a probability that is NaN,
	// infinite or negative.
	ErrInvalidProbability = errors.New("invalid probability")
	// ErrInvalidVector is returned for a zero or non-finite vector.
	ErrInvalidVector = errors.New("invalid vector")
)

// Distance converts the overlap p = ⟨a|b⟩ of two unit vectors into their
// Euclidean distance sqrt(2(1-p)). Sampling noise can push p slightly above
// one; the radicand is clamped to zero rather than failing.
func Distance(p float64) (float64, error) {
	if math.IsNaN(p) || math.IsInf(p, 0) || p < 0 {
		return 0, pkgerrors.Wrapf(ErrInvalidProbability, "%v", p)
	}
	return math.Sqrt(math.Max(0, 2*(1-p))), nil
}

// Fidelity recovers |⟨a|b⟩|² from the probability p0 of reading 0 on the
// swap-test ancilla, P(0) = (1 + |⟨a|b⟩|²)/2.
func Fidelity(p0 float64) float64 {
	return math.Max(0, 2*p0-1)
}

// Overlap is |⟨a|b⟩| estimated from p0.
func Overlap(p0 float64) float64 {
	return math.Sqrt(Fidelity(p0))
}

// Vector is a point in the plane, encoded on one qubit by its angle.
type Vector [2]float64

// Norm returns the Euclidean length.
func (v Vector) Norm() float64 {
	return math.Hypot(v[0], v[1])
}

// Normalize returns v scaled to unit length.
func (v Vector) Normalize() (Vector, error) {
	if math.IsNaN(v[0]) || math.IsNaN(v[1]) || math.IsInf(v[0], 0) || math.IsInf(v[1], 0) {
		return Vector{}, pkgerrors.Wrapf(ErrInvalidVector, "%v is not finite", v)
	}
	n := v.Norm()
	if n == 0 {
		return Vector{}, pkgerrors.Wrap(ErrInvalidVector, "zero vector")
	}
	return Vector{v[0] / n, v[1] / n}, nil
}

// angle is the RY rotation taking |0⟩ to cos(θ/2)|0⟩ + sin(θ/2)|1⟩ = v/|v|.
func (v Vector) angle() float64 {
	return 2 * math.Atan2(v[1], v[0])
}

// SwapTestCircuit encodes a on qubit 1 and b on qubit 2, then interferes them
// through a controlled swap on ancilla qubit 0, which is measured into clbit 0.
func SwapTestCircuit(a, b Vector) (*quantum.Circuit, error) {
	na, err := a.Normalize()
	if err != nil {
		return nil, err
	}
	nb, err := b.Normalize()
	if err != nil {
		return nil, err
	}

	c, err := quantum.NewCircuit(3, 1)
	if err != nil {
		return nil, err
	}
	c.Name = "swap-test"

	c.RY(na.angle(), 1).RY(nb.angle(), 2)
	c.H(0).CSwap(0, 1, 2).H(0)
	c.Measure(0, 0)
	return c, c.Err()
}

// Estimate is the interpreted result of a swap test.
type Estimate struct {
	P0       float64        `json:"p0"`
	Overlap  float64        `json:"overlap"`
	Distance float64        `json:"distance"`
	Exact    float64        `json:"exact"`
	Counts   quantum.Counts `json:"counts"`
}

// ExactDistance is the classical distance between the normalised vectors.
func ExactDistance(a, b Vector) (float64, error) {
	na, err := a.Normalize()
	if err != nil {
		return 0, err
	}
	nb, err := b.Normalize()
	if err != nil {
		return 0, err
	}
	return math.Hypot(na[0]-nb[0], na[1]-nb[1]), nil
}

// EstimateDistance runs the swap test on sim. The sampled P(0) is first
// converted to the overlap |⟨a|b⟩| = sqrt(2·P(0) − 1), and Distance is applied
// to that overlap, not to P(0) itself. The test sees |⟨a|b⟩| only, so the
// estimate matches the exact distance when the normalised vectors have a
// non-negative inner product.
func EstimateDistance(ctx context.Context, sim quantum.Simulator, a, b Vector, shots int) (*Estimate, error) {
	c, err := SwapTestCircuit(a, b)
	if err != nil {
		return nil, err
	}
	exact, err := ExactDistance(a, b)
	if err != nil {
		return nil, err
	}

	counts, err := quantum.Execute(ctx, sim, c, shots)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "swap test")
	}

	p0 := counts.Probability("0")
	overlap := Overlap(p0)
	d, err := Distance(overlap)
	if err != nil {
		return nil, err
	}
	return &Estimate{
		P0:       p0,
		Overlap:  overlap,
		Distance: d,
		Exact:    exact,
		Counts:   counts,
	}, nil
}

// Sample is a labelled training point.
type Sample struct {
	Label  string `json:"label"`
	Vector Vector `json:"vector"`
}

// Neighbor is a training point ranked by estimated distance.
type Neighbor struct {
	Index    int     `json:"index"`
	Label    string  `json:"label"`
	Distance float64 `json:"distance"`
}

// Classification is the outcome of Classify.
type Classification struct {
	Label     string     `json:"label"`
	Votes     int        `json:"votes"`
	Neighbors []Neighbor `json:"neighbors"`
}

// Classify labels query by majority vote among the k samples with the
// smallest swap-test distance. A tied vote goes to the label whose voters are
// closer in total, then to the lexically smaller label.
func Classify(ctx context.Context, sim quantum.Simulator, query Vector, samples []Sample, k, shots int) (*Classification, error) {
	if len(samples) == 0 {
		return nil, pkgerrors.New("classify: no training samples")
	}
	if k < 1 || k > len(samples) {
		return nil, pkgerrors.Errorf("classify: k=%d outside [1, %d]", k, len(samples))
	}

	ranked := make([]Neighbor, len(samples))
	for i, s := range samples {
		est, err := EstimateDistance(ctx, sim, query, s.Vector, shots)
		if err != nil {
			return nil, pkgerrors.Wrapf(err, "sample %d", i)
		}
		ranked[i] = Neighbor{Index: i, Label: s.Label, Distance: est.Distance}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Distance < ranked[j].Distance
	})
	nearest := ranked[:k]

	votes := make(map[string]int)
	total := make(map[string]float64)
	for _, n := range nearest {
		votes[n.Label]++
		total[n.Label] += n.Distance
	}

	labels := make([]string, 0, len(votes))
	for label := range votes {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	best := labels[0]
	for _, label := range labels[1:] {
		if votes[label] > votes[best] || (votes[label] == votes[best] && total[label] < total[best]) {
			best = label
		}
	}

	return &Classification{
		Label:     best,
		Votes:     votes[best],
		Neighbors: append([]Neighbor(nil), nearest...),
	}, nil
}
