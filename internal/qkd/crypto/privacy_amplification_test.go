package crypto

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"testing"
)

// TestPrivacyAmplifier tests privacy amplification
func TestPrivacyAmplifier(t *testing.T) {
	tests := []struct {
		name          string
		method        AmplificationMethod
		keyLength     int
		leakage       float64
		targetLength  int
		shouldSucceed bool
	}{
		{"SHA256 amplification", SHA256Method, 512, 0.1, 256, true},
		{"SHA512 amplification", SHA512Method, 1024, 0.2, 512, true},
		{"SHA3-256 amplification", SHA3_256Method, 512, 0.15, 256, true},
		{"SHA3-512 amplification", SHA3_512Method, 1024, 0.1, 512, true},
		{"Expansion past one digest", SHA3_256Method, 2048, 0.0, 1000, true},
		{"Odd bit length", SHA3_256Method, 512, 0.0, 100, true},
		{"Insufficient key material", SHA256Method, 100, 0.5, 256, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			amplifier, err := NewPrivacyAmplifier(tt.method)
			if err != nil {
				t.Fatal(err)
			}
			key := randomKey(int64(tt.keyLength), tt.keyLength)

			result, err := amplifier.Amplify(key, tt.leakage, tt.targetLength)

			if !tt.shouldSucceed {
				if !errors.Is(err, ErrInsufficientKey) {
					t.Errorf("expected ErrInsufficientKey, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			expectedBytes := (tt.targetLength + 7) / 8
			if len(result) != expectedBytes {
				t.Errorf("expected %d bytes, got %d", expectedBytes, len(result))
			}
			if rem := tt.targetLength % 8; rem != 0 {
				if result[len(result)-1]&byte(0xFF>>uint(rem)) != 0 {
					t.Errorf("bits past the target length are set: %08b", result[len(result)-1])
				}
			}
		})
	}
}

func TestNewPrivacyAmplifierUnknownMethod(t *testing.T) {
	if _, err := NewPrivacyAmplifier("MD5"); err == nil {
		t.Error("expected error for unknown method")
	}
}

func TestAmplifyRejectsBadInput(t *testing.T) {
	amplifier, _ := NewPrivacyAmplifier(SHA3_256Method)

	if _, err := amplifier.Amplify(nil, 0, 8); !errors.Is(err, ErrInsufficientKey) {
		t.Errorf("empty key: %v", err)
	}
	if _, err := amplifier.Amplify(randomKey(1, 512), 0, 0); err == nil {
		t.Error("expected error for zero target length")
	}
}

// TestAmplificationDeterminism tests that amplification is deterministic
func TestAmplificationDeterminism(t *testing.T) {
	amplifier, _ := NewPrivacyAmplifier(SHA3_256Method)
	key := randomKey(7, 512)

	result1, err1 := amplifier.Amplify(key, 0.1, 256)
	result2, err2 := amplifier.Amplify(key, 0.1, 256)
	if err1 != nil || err2 != nil {
		t.Fatalf("unexpected errors: %v, %v", err1, err2)
	}
	if !bytes.Equal(result1, result2) {
		t.Error("amplification is not deterministic")
	}

	other := append(key[:0:0], key...)
	other[0] ^= 1
	result3, _ := amplifier.Amplify(other, 0.1, 256)
	if bytes.Equal(result1, result3) {
		t.Error("a one-bit change in the input should change the output")
	}
}

// TestCalculateSecureKeyLength tests secure key length calculation
func TestCalculateSecureKeyLength(t *testing.T) {
	tests := []struct {
		name              string
		rawKeyLength      int
		qber              float64
		disclosedBits     int
		securityParameter int
		expected          int
	}{
		// ceil(H(0.05)·1000) = 287
		{"Low QBER", 1000, 0.05, 50, 64, 599},
		// ceil(H(0.10)·1000) = 469
		{"Medium QBER", 1000, 0.10, 100, 64, 367},
		{"Error free", 1000, 0, 20, 64, 916},
		{"Everything leaked", 100, 0.25, 50, 64, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			secureLength := CalculateSecureKeyLength(tt.rawKeyLength, tt.qber, tt.disclosedBits, tt.securityParameter)
			if secureLength != tt.expected {
				t.Errorf("secure length %d, want %d", secureLength, tt.expected)
			}
		})
	}
}

// TestBinaryEntropy tests the binary entropy function
func TestBinaryEntropy(t *testing.T) {
	tests := []struct {
		p         float64
		expected  float64
		tolerance float64
	}{
		{0.0, 0.0, 1e-12},
		{1.0, 0.0, 1e-12},
		{0.5, 1.0, 1e-12},
		{0.1, 0.469, 0.001},
		{0.25, 0.811, 0.001},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("p=%.2f", tt.p), func(t *testing.T) {
			result := BinaryEntropy(tt.p)
			if math.Abs(result-tt.expected) > tt.tolerance {
				t.Errorf("H(%.2f) = %.4f, expected ≈%.3f", tt.p, result, tt.expected)
			}
		})
	}
}

func BenchmarkAmplify_SHA3_256(b *testing.B) {
	amplifier, _ := NewPrivacyAmplifier(SHA3_256Method)
	key := randomKey(1, 512)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		amplifier.Amplify(key, 0.1, 256)
	}
}
