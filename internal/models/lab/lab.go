// Package lab holds the JSON request and response types of the lab API.
package lab

import (
	"time"
)

const (
	// DefaultShots is used when a request leaves shots at zero.
	DefaultShots = 1024
	// MaxShots bounds a single request.
	MaxShots = 100000

	MaxBB84KeyLength = 4096
	// MaxBB84Oversampling bounds the qubits sent per requested key bit.
	MaxBB84Oversampling = 16
	// MaxKNNSamples bounds the training set of one classification.
	MaxKNNSamples = 64
)

// RunKind names the operation that produced a stored run.
type RunKind string

const (
	KindRotate   RunKind = "rotate"
	KindBV       RunKind = "bv"
	KindQPE      RunKind = "qpe"
	KindBB84     RunKind = "bb84"
	KindDistance RunKind = "distance"
	KindKNN      RunKind = "knn"
	KindCircuit  RunKind = "circuit"
)

// RotateRequest rotates a bit string by one position.
type RotateRequest struct {
	Bits      string `json:"bits"`
	Direction string `json:"direction"`
	Shots     int    `json:"shots,omitempty"`
}

// BVRequest recovers a Bernstein–Vazirani secret.
type BVRequest struct {
	Secret string `json:"secret"`
	Shots  int    `json:"shots,omitempty"`
}

// QPERequest estimates the phase θ of P(2πθ).
type QPERequest struct {
	Theta    float64 `json:"theta"`
	Counting int     `json:"counting"`
	Shots    int     `json:"shots,omitempty"`
}

// BB84Request runs a key exchange.
type BB84Request struct {
	KeyLength      int     `json:"key_length"`
	Eavesdropper   bool    `json:"eavesdropper,omitempty"`
	Noise          float64 `json:"noise,omitempty"`
	PostProcessing bool    `json:"post_processing,omitempty"`
	Method         string  `json:"method,omitempty"`
	Oversampling   int     `json:"oversampling,omitempty"`
	Seed           int64   `json:"seed,omitempty"`
}

// DistanceRequest estimates the distance between two 2-D vectors.
type DistanceRequest struct {
	A     [2]float64 `json:"a"`
	B     [2]float64 `json:"b"`
	Shots int        `json:"shots,omitempty"`
}

// LabelledPoint is one kNN training sample.
type LabelledPoint struct {
	Label  string     `json:"label"`
	Vector [2]float64 `json:"vector"`
}

// KNNRequest classifies Query against Samples.
type KNNRequest struct {
	Query   [2]float64      `json:"query"`
	Samples []LabelledPoint `json:"samples"`
	K       int             `json:"k"`
	Shots   int             `json:"shots,omitempty"`
}

// CircuitRequest runs a named primer lesson. Qubits is only read by "ghz".
type CircuitRequest struct {
	Lesson string `json:"lesson"`
	Qubits int    `json:"qubits,omitempty"`
	Shots  int    `json:"shots,omitempty"`
	QASM   bool   `json:"qasm,omitempty"`
}

// RunResponse wraps the result of any lab operation.
type RunResponse struct {
	RunID     string      `json:"run_id"`
	Kind      RunKind     `json:"kind"`
	Backend   string      `json:"backend"`
	Result    interface{} `json:"result"`
	CreatedAt time.Time   `json:"created_at"`
	ExpiresAt time.Time   `json:"expires_at"`
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
}

// RequestError is a request that failed validation.
type RequestError struct {
	Message string
}

func (e *RequestError) Error() string {
	return e.Message
}

var (
	ErrInvalidShots        = &RequestError{"shots must be between 1 and 100000"}
	ErrMissingBits         = &RequestError{"bits is required"}
	ErrMissingDirection    = &RequestError{"direction is required"}
	ErrMissingSecret       = &RequestError{"secret is required"}
	ErrInvalidCounting     = &RequestError{"counting must be positive"}
	ErrInvalidKeyLength    = &RequestError{"key length must be between 1 and 4096 bits"}
	ErrInvalidNoise        = &RequestError{"noise must be between 0 and 1"}
	ErrMissingSamples      = &RequestError{"samples is required"}
	ErrTooManySamples      = &RequestError{"at most 64 samples per request"}
	ErrInvalidOversampling = &RequestError{"oversampling must be between 0 and 16"}
	ErrInvalidK            = &RequestError{"k must be between 1 and the number of samples"}
	ErrMissingLesson       = &RequestError{"lesson is required"}
)

func defaultShots(shots *int, n int) {
	if *shots == 0 {
		*shots = n
	}
}

// ApplyDefaultShots sets Shots to n when the request left it out.
func (r *RotateRequest) ApplyDefaultShots(n int) { defaultShots(&r.Shots, n) }

func (r *BVRequest) ApplyDefaultShots(n int) { defaultShots(&r.Shots, n) }

func (r *QPERequest) ApplyDefaultShots(n int) { defaultShots(&r.Shots, n) }

func (r *DistanceRequest) ApplyDefaultShots(n int) { defaultShots(&r.Shots, n) }

func (r *KNNRequest) ApplyDefaultShots(n int) { defaultShots(&r.Shots, n) }

func (r *CircuitRequest) ApplyDefaultShots(n int) { defaultShots(&r.Shots, n) }

func normalizeShots(shots *int) error {
	if *shots == 0 {
		*shots = DefaultShots
	}
	if *shots < 1 || *shots > MaxShots {
		return ErrInvalidShots
	}
	return nil
}

// Validate validates a rotate request
func (r *RotateRequest) Validate() error {
	if r.Bits == "" {
		return ErrMissingBits
	}
	if r.Direction == "" {
		return ErrMissingDirection
	}
	return normalizeShots(&r.Shots)
}

// Validate validates a Bernstein–Vazirani request
func (r *BVRequest) Validate() error {
	if r.Secret == "" {
		return ErrMissingSecret
	}
	return normalizeShots(&r.Shots)
}

// Validate validates a phase estimation request. Counting defaults to 3.
func (r *QPERequest) Validate() error {
	if r.Counting == 0 {
		r.Counting = 3
	}
	if r.Counting < 0 {
		return ErrInvalidCounting
	}
	return normalizeShots(&r.Shots)
}

// Validate validates a key exchange request
func (r *BB84Request) Validate() error {
	if r.KeyLength < 1 || r.KeyLength > MaxBB84KeyLength {
		return ErrInvalidKeyLength
	}
	if r.Noise < 0 || r.Noise > 1 {
		return ErrInvalidNoise
	}
	if r.Oversampling < 0 || r.Oversampling > MaxBB84Oversampling {
		return ErrInvalidOversampling
	}
	return nil
}

// Validate validates a distance request
func (r *DistanceRequest) Validate() error {
	return normalizeShots(&r.Shots)
}

// Validate validates a classification request. K defaults to 1.
func (r *KNNRequest) Validate() error {
	if len(r.Samples) == 0 {
		return ErrMissingSamples
	}
	if len(r.Samples) > MaxKNNSamples {
		return ErrTooManySamples
	}
	if r.K == 0 {
		r.K = 1
	}
	if r.K < 1 || r.K > len(r.Samples) {
		return ErrInvalidK
	}
	return normalizeShots(&r.Shots)
}

// Validate validates a lesson request
func (r *CircuitRequest) Validate() error {
	if r.Lesson == "" {
		return ErrMissingLesson
	}
	return normalizeShots(&r.Shots)
}
