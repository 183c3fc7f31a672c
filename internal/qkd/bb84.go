package qkd

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	pkgerrors "github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/jaskrrish/Go-QLab/internal/qkd/crypto"
	"github.com/jaskrrish/Go-QLab/internal/quantum"
)

// ErrEmptySiftedKey is returned when no basis choices matched.
var ErrEmptySiftedKey = errors.New("sifted key is empty")

// ErrTooManyQubits is returned when keyLength*oversampling exceeds
// MaxTransmittedQubits.
var ErrTooManyQubits = errors.New("too many qubits to transmit")

const (
	// MaxOversampling bounds the qubits sent per requested key bit.
	MaxOversampling = 16
	// MaxTransmittedQubits bounds one key exchange.
	MaxTransmittedQubits = 1 << 16
)

// BB84Protocol implements the BB84 Quantum Key Distribution protocol. Qubits
// travel as circuits on a quantum.Simulator, packed up to quantum.MaxQubits
// per circuit and run with a single shot.
type BB84Protocol struct {
	sim           quantum.Simulator
	keyLength     int
	qberThreshold float64 // Quantum Bit Error Rate threshold (typically 11%)
	sampleSize    float64 // Fraction of key to sample for error checking (0.0-1.0)
	oversampling  int
	eavesdropper  bool
	noise         float64
	postProcess   bool
	method        crypto.AmplificationMethod

	rng    *rand.Rand
	logger *zap.Logger
}

// Option configures a BB84Protocol.
type Option func(*BB84Protocol)

// WithSeed makes bit, basis, noise and sampling choices reproducible.
func WithSeed(seed int64) Option {
	return func(bb *BB84Protocol) { bb.rng = rand.New(rand.NewSource(seed)) }
}

// WithLogger attaches a logger.
func WithLogger(logger *zap.Logger) Option {
	return func(bb *BB84Protocol) { bb.logger = logger }
}

// WithEavesdropper inserts an intercept-resend attacker between Alice and Bob.
func WithEavesdropper(enabled bool) Option {
	return func(bb *BB84Protocol) { bb.eavesdropper = enabled }
}

// WithChannelNoise flips each transmitted bit with probability p, whatever
// basis it was encoded in.
func WithChannelNoise(p float64) Option {
	return func(bb *BB84Protocol) { bb.noise = p }
}

// WithPostProcessing reconciles the sifted key with Cascade and hashes it
// down with method instead of discarding keys that disagree.
func WithPostProcessing(method crypto.AmplificationMethod) Option {
	return func(bb *BB84Protocol) {
		bb.postProcess = true
		bb.method = method
	}
}

// WithOversampling sets how many qubits are sent per requested key bit.
func WithOversampling(factor int) Option {
	return func(bb *BB84Protocol) {
		if factor > 0 {
			bb.oversampling = factor
		}
	}
}

// NewBB84Protocol creates a new BB84 protocol instance
func NewBB84Protocol(sim quantum.Simulator, keyLength int, opts ...Option) (*BB84Protocol, error) {
	if sim == nil {
		return nil, pkgerrors.New("bb84: nil simulator")
	}
	if keyLength < 1 {
		return nil, pkgerrors.Errorf("bb84: key length must be positive, got %d", keyLength)
	}

	bb := &BB84Protocol{
		sim:           sim,
		keyLength:     keyLength,
		qberThreshold: 0.11, // 11% - theoretical maximum for secure QKD
		sampleSize:    0.10, // Sample 10% of bits for error estimation
		oversampling:  4,
		method:        crypto.SHA3_256Method,
		rng:           rand.New(rand.NewSource(time.Now().UnixNano())),
		logger:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(bb)
	}

	if bb.oversampling > MaxOversampling {
		return nil, pkgerrors.Errorf("bb84: oversampling %d exceeds %d", bb.oversampling, MaxOversampling)
	}
	// Checked by division so the product cannot overflow.
	if keyLength > MaxTransmittedQubits/bb.oversampling {
		return nil, pkgerrors.Wrapf(ErrTooManyQubits, "bb84: %d key bits at oversampling %d exceeds %d qubits",
			keyLength, bb.oversampling, MaxTransmittedQubits)
	}
	if bb.noise < 0 || bb.noise > 1 {
		return nil, pkgerrors.Errorf("bb84: channel noise %v outside [0, 1]", bb.noise)
	}
	if bb.postProcess {
		if _, err := crypto.NewPrivacyAmplifier(bb.method); err != nil {
			return nil, err
		}
	}
	return bb, nil
}

// SetQBERThreshold sets a custom QBER threshold
func (bb *BB84Protocol) SetQBERThreshold(threshold float64) {
	bb.qberThreshold = threshold
}

// QBERThreshold returns the abort threshold.
func (bb *BB84Protocol) QBERThreshold() float64 { return bb.qberThreshold }

// SetSampleSize sets the fraction of bits to sample for error checking
func (bb *BB84Protocol) SetSampleSize(size float64) {
	if size > 0 && size < 1 {
		bb.sampleSize = size
	}
}

// AliceSession represents Alice's side of the BB84 protocol
type AliceSession struct {
	Bits  []quantum.Bit
	Bases []Basis
}

// BobSession represents Bob's side of the BB84 protocol
type BobSession struct {
	Bases   []Basis
	Results []quantum.Bit
}

// EveSession records what an intercept-resend attacker measured.
type EveSession struct {
	Bases   []Basis
	Results []quantum.Bit
}

// KeyExchangeResult contains the result of BB84 key exchange
type KeyExchangeResult struct {
	Key            []byte  `json:"key,omitempty"`
	Transmitted    int     `json:"transmitted"`
	RawKeyLength   int     `json:"raw_key_length"`
	SampledBits    int     `json:"sampled_bits"`
	FinalKeyLength int     `json:"final_key_length"`
	QBER           float64 `json:"qber"`
	DisclosedBits  int     `json:"disclosed_bits"`
	Eavesdropped   bool    `json:"eavesdropped"`
	EveAgreement   float64 `json:"eve_agreement,omitempty"`
	Secure         bool    `json:"secure"`
	Message        string  `json:"message"`
}

// AliceGenerate - Step 1: Alice picks random bits and bases, oversampling to
// leave room for sifting and error estimation.
func (bb *BB84Protocol) AliceGenerate() *AliceSession {
	n := bb.keyLength * bb.oversampling
	return &AliceSession{
		Bits:  quantum.RandomBits(bb.rng, n),
		Bases: RandomBases(bb.rng, n),
	}
}

// TransmissionCircuit encodes one qubit per position. Alice applies X for a 1
// and H for the diagonal basis; a flipped position gets X then Z, which
// inverts the bit in either basis; Eve, when eveBases is non-nil, measures in
// her basis into clbit n+i and resends; Bob rotates into his basis and
// measures into clbit i.
func TransmissionCircuit(aliceBits []quantum.Bit, aliceBases, bobBases, eveBases []Basis, flips []bool) (*quantum.Circuit, error) {
	n := len(aliceBits)
	if n == 0 || n > quantum.MaxQubits {
		return nil, pkgerrors.Wrapf(quantum.ErrInvalidCircuit, "transmission batch of %d qubits", n)
	}
	if len(aliceBases) != n || len(bobBases) != n || (eveBases != nil && len(eveBases) != n) || (flips != nil && len(flips) != n) {
		return nil, pkgerrors.Wrap(ErrLengthMismatch, "transmission batch")
	}

	clbits := n
	if eveBases != nil {
		clbits = 2 * n
	}
	c, err := quantum.NewCircuit(n, clbits)
	if err != nil {
		return nil, err
	}
	c.Name = "bb84"

	for i := 0; i < n; i++ {
		if !aliceBases[i].Valid() || !bobBases[i].Valid() || (eveBases != nil && !eveBases[i].Valid()) {
			return nil, pkgerrors.Wrapf(ErrInvalidBasis, "position %d", i)
		}

		if aliceBits[i] == quantum.One {
			c.X(i)
		}
		if aliceBases[i] == Diagonal {
			c.H(i)
		}

		if flips != nil && flips[i] {
			c.X(i).Z(i)
		}

		if eveBases != nil {
			if eveBases[i] == Diagonal {
				c.H(i)
			}
			c.Measure(i, n+i)
			if eveBases[i] == Diagonal {
				c.H(i)
			}
		}

		if bobBases[i] == Diagonal {
			c.H(i)
		}
		c.Measure(i, i)
	}
	return c, c.Err()
}

// Transmit - Step 2: Alice's qubits cross the channel (and Eve, if enabled)
// and Bob measures each in a random basis.
func (bb *BB84Protocol) Transmit(ctx context.Context, alice *AliceSession) (*BobSession, *EveSession, error) {
	n := len(alice.Bits)
	if len(alice.Bases) != n {
		return nil, nil, pkgerrors.Wrap(ErrLengthMismatch, "alice bits and bases")
	}

	bob := &BobSession{Bases: RandomBases(bb.rng, n), Results: make([]quantum.Bit, n)}
	var eve *EveSession
	if bb.eavesdropper {
		eve = &EveSession{Bases: RandomBases(bb.rng, n), Results: make([]quantum.Bit, n)}
	}
	flips := make([]bool, n)
	for i := range flips {
		flips[i] = bb.noise > 0 && bb.rng.Float64() < bb.noise
	}

	for start := 0; start < n; start += quantum.MaxQubits {
		end := start + quantum.MaxQubits
		if end > n {
			end = n
		}

		var eveBases []Basis
		if eve != nil {
			eveBases = eve.Bases[start:end]
		}
		c, err := TransmissionCircuit(alice.Bits[start:end], alice.Bases[start:end], bob.Bases[start:end], eveBases, flips[start:end])
		if err != nil {
			return nil, nil, err
		}

		counts, err := quantum.Execute(ctx, bb.sim, c, 1)
		if err != nil {
			return nil, nil, pkgerrors.Wrapf(err, "transmit qubits %d-%d", start, end-1)
		}
		outcome, _ := counts.Mode()

		width := end - start
		for i := 0; i < width; i++ {
			if bob.Results[start+i], err = quantum.OutcomeBit(outcome, i); err != nil {
				return nil, nil, err
			}
			if eve != nil {
				if eve.Results[start+i], err = quantum.OutcomeBit(outcome, width+i); err != nil {
					return nil, nil, err
				}
			}
		}
	}

	return bob, eve, nil
}

// EstimateQBER - Step 4: Alice and Bob disclose a random subset of the sifted
// key and compare it. The returned indices are the positions that must be
// discarded afterwards.
func (bb *BB84Protocol) EstimateQBER(sifted *SiftedKey) (float64, []int, error) {
	if sifted.Len() == 0 {
		return 0, nil, ErrEmptySiftedKey
	}

	sampleCount := int(float64(sifted.Len()) * bb.sampleSize)
	if sampleCount < 1 {
		sampleCount = 1
	}
	if sampleCount > sifted.Len() {
		sampleCount = sifted.Len()
	}

	sampled := bb.rng.Perm(sifted.Len())[:sampleCount]
	errs := 0
	for _, idx := range sampled {
		if sifted.AliceKey[idx] != sifted.BobKey[idx] {
			errs++
		}
	}
	return float64(errs) / float64(sampleCount), sampled, nil
}

// PerformKeyExchange executes the complete BB84 protocol between Alice and
// Bob. An insecure outcome is reported through Secure and Message, not as an
// error; errors are reserved for failures to run the protocol at all.
func (bb *BB84Protocol) PerformKeyExchange(ctx context.Context) (*KeyExchangeResult, error) {
	start := time.Now()
	result := &KeyExchangeResult{Eavesdropped: bb.eavesdropper}

	// Step 1: Alice prepares
	alice := bb.AliceGenerate()
	result.Transmitted = len(alice.Bits)

	// Step 2: Bob measures
	bob, eve, err := bb.Transmit(ctx, alice)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "bb84 transmission failed")
	}

	// Step 3: Basis reconciliation (key sifting)
	sifted, err := BasisReconciliation(alice.Bases, bob.Bases, alice.Bits, bob.Results)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "basis reconciliation failed")
	}
	result.RawKeyLength = sifted.Len()
	if sifted.Len() == 0 {
		return nil, ErrEmptySiftedKey
	}
	if eve != nil {
		result.EveAgreement = eveAgreement(alice, eve, sifted)
	}

	// Step 4: Estimate QBER
	qber, sampled, err := bb.EstimateQBER(sifted)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "QBER estimation failed")
	}
	result.QBER = qber
	result.SampledBits = len(sampled)

	defer func() {
		bb.logger.Info("bb84 key exchange",
			zap.String("backend", bb.sim.Name()),
			zap.Int("transmitted", result.Transmitted),
			zap.Int("sifted", result.RawKeyLength),
			zap.Float64("qber", result.QBER),
			zap.Bool("eavesdropper", bb.eavesdropper),
			zap.Bool("secure", result.Secure),
			zap.Duration("elapsed", time.Since(start)),
		)
	}()

	// Step 5: Security check
	if qber > bb.qberThreshold {
		result.Message = fmt.Sprintf("INSECURE: QBER (%.2f%%) exceeds threshold (%.2f%%). Possible eavesdropping detected!",
			qber*100, bb.qberThreshold*100)
		return result, nil
	}

	// Step 6: Remove sampled bits (they've been publicly disclosed)
	final := RemoveSampledBits(sifted, sampled)

	if bb.postProcess {
		return bb.postProcessKey(final, result)
	}

	if final.Len() < bb.keyLength {
		result.Message = fmt.Sprintf("Insufficient key material: got %d bits, need %d bits", final.Len(), bb.keyLength)
		return result, nil
	}

	aliceKey := final.AliceKey[:bb.keyLength]
	bobKey := final.BobKey[:bb.keyLength]
	if match, _ := crypto.VerifyKeyCorrectness(aliceKey, bobKey); !match {
		result.Message = "Key mismatch detected after sifting"
		return result, nil
	}

	result.Key = quantum.BitsToBytes(aliceKey)
	result.FinalKeyLength = len(aliceKey)
	result.Secure = true
	result.Message = fmt.Sprintf("Secure key generated successfully! QBER: %.2f%%", qber*100)
	return result, nil
}

// postProcessKey runs Cascade on the remaining sifted bits and compresses the
// reconciled key to the requested length.
func (bb *BB84Protocol) postProcessKey(final *SiftedKey, result *KeyExchangeResult) (*KeyExchangeResult, error) {
	// A clean sample only bounds the error rate at about one in SampledBits.
	rate := result.QBER
	if floor := 1 / float64(result.SampledBits); rate < floor {
		rate = floor
	}
	corrector := crypto.NewCascadeCorrector(rate, bb.rng.Int63())
	corrected, disclosed, err := corrector.Correct(final.AliceKey, final.BobKey)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "error correction failed")
	}
	result.DisclosedBits = disclosed

	if match, residual := crypto.VerifyKeyCorrectness(final.AliceKey, corrected); !match {
		result.Message = fmt.Sprintf("Residual errors after reconciliation: %.2f%%", residual*100)
		return result, nil
	}

	secureLength := crypto.CalculateSecureKeyLength(final.Len(), result.QBER, disclosed, crypto.DefaultSecurityParameter)
	if secureLength < bb.keyLength {
		result.Message = fmt.Sprintf("Insufficient key material: %d secure bits, need %d bits", secureLength, bb.keyLength)
		return result, nil
	}

	amplifier, err := crypto.NewPrivacyAmplifier(bb.method)
	if err != nil {
		return nil, err
	}
	leakage := crypto.CalculateInformationLeakage(disclosed, final.Len())
	key, err := amplifier.Amplify(corrected, leakage, bb.keyLength)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "privacy amplification failed")
	}

	result.Key = key
	result.FinalKeyLength = bb.keyLength
	result.Secure = true
	result.Message = fmt.Sprintf("Secure key generated with error correction (%d parity bits disclosed, %s)! QBER: %.2f%%",
		disclosed, amplifier.Method(), result.QBER*100)
	return result, nil
}

// eveAgreement is the fraction of sifted positions where Eve's measurement
// equals Alice's bit.
func eveAgreement(alice *AliceSession, eve *EveSession, sifted *SiftedKey) float64 {
	same := 0
	for _, idx := range sifted.Indices {
		if eve.Results[idx] == alice.Bits[idx] {
			same++
		}
	}
	return float64(same) / float64(sifted.Len())
}
