package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestFraudAdvice_MergeNeverClears tests that advice only accumulates
func TestFraudAdvice_MergeNeverClears(t *testing.T) {
	advice := FraudAdvice{Force3DS: true}

	advice.Merge(AdviceResult{ForceCaptcha: true})
	assert.True(t, advice.Force3DS)
	assert.True(t, advice.ForceCaptcha)
	assert.False(t, advice.Blacklist)

	advice.Merge(AdviceResult{})
	assert.True(t, advice.Force3DS)
	assert.True(t, advice.ForceCaptcha)
}

// TestFraudAdvice_NeedsCheck tests fingerprint comparison
func TestFraudAdvice_NeedsCheck(t *testing.T) {
	fp := FraudFingerprint{Email: "a@b.com", Zip: "H2X", Bin: "411111"}
	advice := FraudAdvice{}

	assert.True(t, advice.NeedsCheck(fp))

	advice.Record(fp)
	assert.False(t, advice.NeedsCheck(fp))
	assert.True(t, advice.NeedsCheck(FraudFingerprint{Email: "a@b.com", Zip: "H2X", Bin: "510510"}))
}

// TestFraudFingerprint_Diff tests changed field extraction
func TestFraudFingerprint_Diff(t *testing.T) {
	prev := FraudFingerprint{Email: "a@b.com", Zip: "H2X", Bin: "411111"}

	assert.Empty(t, prev.Diff(prev))
	assert.Equal(t,
		map[string]string{"zip": "90210", "bin": "510510"},
		prev.Diff(FraudFingerprint{Email: "a@b.com", Zip: "90210", Bin: "510510"}))
	assert.Len(t, FraudFingerprint{}.Diff(prev), 3)
}

// TestFraudAdvice_IsBlocked tests the blocking rules
func TestFraudAdvice_IsBlocked(t *testing.T) {
	tests := []struct {
		name     string
		advice   FraudAdvice
		expected bool
	}{
		{"clean", FraudAdvice{}, false},
		{"blacklist", FraudAdvice{Blacklist: true}, true},
		{"captcha outstanding", FraudAdvice{ForceCaptcha: true}, true},
		{"captcha validated", FraudAdvice{ForceCaptcha: true, CaptchaValidated: true}, false},
		{"force 3ds alone", FraudAdvice{Force3DS: true}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.advice.IsBlocked())
		})
	}
}
