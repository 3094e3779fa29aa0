package fraud

import (
	"context"
	"strings"

	"github.com/kevin07696/purchase-service/internal/domain"
	"github.com/kevin07696/purchase-service/internal/domain/ports"
	"github.com/kevin07696/purchase-service/pkg/observability"
)

// Block reasons reported with a blocked purchase
const (
	BlockReasonBlacklist = "blacklist"
	BlockReasonCaptcha   = "captcha"
)

// Gate screens purchases through the fraud vendor and keeps the purchase's
// fraud advice up to date.
type Gate struct {
	advice       ports.FraudAdviceService
	logger       ports.Logger
	paymentTypes map[domain.PaymentType]bool
}

// NewGate creates a gate that screens the given payment types on fraud-enabled sites
func NewGate(advice ports.FraudAdviceService, paymentTypes []domain.PaymentType, logger ports.Logger) *Gate {
	types := make(map[domain.PaymentType]bool, len(paymentTypes))
	for _, t := range paymentTypes {
		types[t] = true
	}
	return &Gate{
		advice:       advice,
		logger:       logger,
		paymentTypes: types,
	}
}

// Enabled reports whether screening applies to a site and payment type
func (g *Gate) Enabled(site *domain.Site, paymentType domain.PaymentType) bool {
	return site != nil && site.FraudEnabled && g.paymentTypes[paymentType]
}

// Evaluate refreshes the purchase's advice when the email/zip/bin fingerprint
// changed and reports whether the purchase must be blocked. Vendor failures
// leave the advice untouched.
func (g *Gate) Evaluate(ctx context.Context, purchase *domain.PurchaseProcess, site *domain.Site, payment domain.PaymentData, phase domain.FraudPhase) bool {
	if !g.Enabled(site, payment.Type) {
		return false
	}

	fp := Fingerprint(purchase.UserInfo, payment)
	advice := &purchase.FraudAdvice

	if advice.NeedsCheck(fp) {
		var previous domain.FraudFingerprint
		if advice.Fingerprint != nil {
			previous = *advice.Fingerprint
		}

		result, err := g.advice.RetrieveAdvice(ctx, ports.FraudAdviceRequest{
			ChangedFields: previous.Diff(fp),
			SiteID:        site.ID,
			SessionID:     purchase.SessionID,
			Phase:         phase,
		})
		if err != nil {
			observability.RecordDegradedCall("fraud_advice")
			g.logger.Warn("fraud advice unavailable, continuing with previous advice",
				ports.String("session_id", purchase.SessionID),
				ports.String("site_id", site.ID),
				ports.Err(err))
		} else {
			advice.Merge(result)
			advice.Record(fp)
		}
	}

	if !advice.IsBlocked() {
		return false
	}

	reason := BlockReason(advice)
	observability.RecordFraudBlock(site.ID, reason)
	g.logger.Info("purchase blocked by fraud advice",
		ports.String("session_id", purchase.SessionID),
		ports.String("site_id", site.ID),
		ports.String("reason", reason))
	return true
}

// BlockReason names the advice flag that blocks the purchase
func BlockReason(advice *domain.FraudAdvice) string {
	if advice.Blacklist {
		return BlockReasonBlacklist
	}
	return BlockReasonCaptcha
}

// Fingerprint builds the fraud-relevant fields of a submit.
// Email and zip are normalized so formatting changes do not trigger a new check.
func Fingerprint(user domain.UserInfo, payment domain.PaymentData) domain.FraudFingerprint {
	return domain.FraudFingerprint{
		Email: strings.ToLower(strings.TrimSpace(user.Email)),
		Zip:   strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(user.ZipCode), " ", "")),
		Bin:   payment.Bin(),
	}
}
