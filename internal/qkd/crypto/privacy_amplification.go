package crypto

import (
	"crypto/sha256"
	"crypto/sha512"
	"encoding/binary"
	"errors"
	"hash"
	"math"

	pkgerrors "github.com/pkg/errors"
	"golang.org/x/crypto/sha3"

	"github.com/jaskrrish/Go-QLab/internal/quantum"
)

// DefaultSecurityParameter is the number of bits sacrificed on top of the
// estimated leakage.
const DefaultSecurityParameter = 64

// ErrInsufficientKey is returned when the reconciled key is too short to
// yield the requested secure length.
var ErrInsufficientKey = errors.New("insufficient key material")

// AmplificationMethod defines the hash function used for privacy amplification
type AmplificationMethod string

const (
	SHA256Method   AmplificationMethod = "SHA256"
	SHA512Method   AmplificationMethod = "SHA512"
	SHA3_256Method AmplificationMethod = "SHA3-256"
	SHA3_512Method AmplificationMethod = "SHA3-512"
)

// PrivacyAmplifier compresses a reconciled key so that an eavesdropper's
// partial knowledge of it becomes negligible.
type PrivacyAmplifier struct {
	method            AmplificationMethod
	securityParameter int
}

// NewPrivacyAmplifier returns an amplifier for method. Unknown methods are
// rejected here rather than at first use.
func NewPrivacyAmplifier(method AmplificationMethod) (*PrivacyAmplifier, error) {
	pa := &PrivacyAmplifier{method: method, securityParameter: DefaultSecurityParameter}
	if _, err := pa.getHasher(); err != nil {
		return nil, err
	}
	return pa, nil
}

// Method returns the configured hash.
func (pa *PrivacyAmplifier) Method() AmplificationMethod { return pa.method }

// Amplify hashes key down to targetLength bits. informationLeakage is the
// fraction of the key already known to an eavesdropper (sampled bits plus
// error correction parities).
func (pa *PrivacyAmplifier) Amplify(key []quantum.Bit, informationLeakage float64, targetLength int) ([]byte, error) {
	if len(key) == 0 {
		return nil, pkgerrors.Wrap(ErrInsufficientKey, "input key is empty")
	}
	if targetLength <= 0 {
		return nil, pkgerrors.Errorf("target length must be positive, got %d", targetLength)
	}

	// leftover hash lemma: secure length = n - leakage - security parameter
	leakedBits := int(informationLeakage * float64(len(key)))
	maxSecureLength := len(key) - leakedBits - pa.securityParameter
	if maxSecureLength < targetLength {
		return nil, pkgerrors.Wrapf(ErrInsufficientKey, "cannot generate secure key of length %d: max secure length is %d bits",
			targetLength, maxSecureLength)
	}

	keyBytes := quantum.BitsToBytes(key)
	finalKey := make([]byte, 0, (targetLength+7)/8)
	var counter [4]byte

	// Expand with a block counter when one digest is not enough.
	for i := uint32(0); len(finalKey)*8 < targetLength; i++ {
		h, _ := pa.getHasher()
		h.Write(keyBytes)
		binary.BigEndian.PutUint32(counter[:], i)
		h.Write(counter[:])
		finalKey = append(finalKey, h.Sum(nil)...)
	}

	targetBytes := (targetLength + 7) / 8
	finalKey = finalKey[:targetBytes]
	if rem := targetLength % 8; rem != 0 {
		finalKey[targetBytes-1] &= byte(0xFF << uint(8-rem))
	}
	return finalKey, nil
}

func (pa *PrivacyAmplifier) getHasher() (hash.Hash, error) {
	switch pa.method {
	case SHA256Method:
		return sha256.New(), nil
	case SHA512Method:
		return sha512.New(), nil
	case SHA3_256Method:
		return sha3.New256(), nil
	case SHA3_512Method:
		return sha3.New512(), nil
	default:
		return nil, pkgerrors.Errorf("unknown amplification method: %s", pa.method)
	}
}

// CalculateSecureKeyLength calculates the maximum secure key length after
// privacy amplification: the raw length minus the Shannon bound h(QBER)·n,
// the disclosed parity bits and the security parameter.
func CalculateSecureKeyLength(rawKeyLength int, qber float64, disclosedBits int, securityParameter int) int {
	shannonLeakage := int(math.Ceil(BinaryEntropy(qber) * float64(rawKeyLength)))

	secureLength := rawKeyLength - shannonLeakage - disclosedBits - securityParameter
	if secureLength < 0 {
		return 0
	}
	return secureLength
}

// BinaryEntropy is H(p) = -p·log2(p) - (1-p)·log2(1-p), zero outside (0, 1).
func BinaryEntropy(p float64) float64 {
	if p <= 0 || p >= 1 {
		return 0
	}
	return -p*math.Log2(p) - (1-p)*math.Log2(1-p)
}
