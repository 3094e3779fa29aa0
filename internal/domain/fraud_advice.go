package domain

// FraudPhase identifies which step of the purchase asked for advice
type FraudPhase string

const (
	FraudPhaseInit    FraudPhase = "init"
	FraudPhaseProcess FraudPhase = "process"
)

// FraudFingerprint is the set of inputs that produced the last advice
type FraudFingerprint struct {
	Email string `json:"email"`
	Zip   string `json:"zip"`
	Bin   string `json:"bin"`
}

// Diff returns the fields of next that differ from f, keyed by field name
func (f FraudFingerprint) Diff(next FraudFingerprint) map[string]string {
	changed := make(map[string]string, 3)
	if next.Email != f.Email {
		changed["email"] = next.Email
	}
	if next.Zip != f.Zip {
		changed["zip"] = next.Zip
	}
	if next.Bin != f.Bin {
		changed["bin"] = next.Bin
	}
	return changed
}

// AdviceResult is a fraud vendor recommendation
type AdviceResult struct {
	Blacklist    bool
	ForceCaptcha bool
	Force3DS     bool
}

// FraudAdvice accumulates restrictions from init-time and process-time checks.
// Flags only ever get set; a later, more lenient check never clears them.
type FraudAdvice struct {
	Fingerprint      *FraudFingerprint `json:"fingerprint,omitempty"`
	Blacklist        bool              `json:"blacklist"`
	ForceCaptcha     bool              `json:"force_captcha"`
	Force3DS         bool              `json:"force_3ds"`
	CaptchaValidated bool              `json:"captcha_validated"`
}

// Merge folds a vendor recommendation into the advice
func (a *FraudAdvice) Merge(result AdviceResult) {
	a.Blacklist = a.Blacklist || result.Blacklist
	a.ForceCaptcha = a.ForceCaptcha || result.ForceCaptcha
	a.Force3DS = a.Force3DS || result.Force3DS
}

// NeedsCheck reports whether fp differs from the fingerprint of the last advice
func (a *FraudAdvice) NeedsCheck(fp FraudFingerprint) bool {
	return a.Fingerprint == nil || *a.Fingerprint != fp
}

// Record stores the fingerprint that produced the current advice
func (a *FraudAdvice) Record(fp FraudFingerprint) {
	a.Fingerprint = &fp
}

// IsBlocked reports whether the advice forbids any further attempt
func (a *FraudAdvice) IsBlocked() bool {
	return a.Blacklist || (a.ForceCaptcha && !a.CaptchaValidated)
}
