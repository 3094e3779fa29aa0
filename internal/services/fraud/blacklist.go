package fraud

import (
	"context"

	"github.com/kevin07696/purchase-service/internal/domain"
	"github.com/kevin07696/purchase-service/internal/domain/ports"
	"github.com/kevin07696/purchase-service/pkg/observability"
)

// BlacklistGuard consults and feeds the central card blacklist
type BlacklistGuard struct {
	service ports.BlacklistService
	logger  ports.Logger
}

// NewBlacklistGuard creates a blacklist guard
func NewBlacklistGuard(service ports.BlacklistService, logger ports.Logger) *BlacklistGuard {
	return &BlacklistGuard{
		service: service,
		logger:  logger,
	}
}

// Allow rejects a purchase whose card is still flagged after the maximum
// number of blacklist checks
func (b *BlacklistGuard) Allow(purchase *domain.PurchaseProcess) error {
	if purchase.BlacklistLimitReached() {
		return domain.ErrBlacklistLimitReached.
			WithDetail("session_id", purchase.SessionID).
			WithDetail("attempts", purchase.BlacklistAttempts)
	}
	return nil
}

// Check looks the purchase's card up and records the result on the aggregate.
// Non-card payments are not checked. Service failures count as not blacklisted.
func (b *BlacklistGuard) Check(ctx context.Context, purchase *domain.PurchaseProcess) {
	if purchase.PaymentInfo == nil || !purchase.PaymentInfo.IsCard() {
		return
	}

	card := *purchase.PaymentInfo.Card
	blacklisted, err := b.service.Check(ctx, card)
	if err != nil {
		observability.RecordDegradedCall("blacklist")
		b.logger.Warn("blacklist check failed, treating card as not blacklisted",
			ports.String("session_id", purchase.SessionID),
			ports.String("first6", card.First6),
			ports.String("last4", card.Last4),
			ports.Err(err))
		blacklisted = false
	}

	purchase.RecordBlacklistCheck(blacklisted)
	if blacklisted {
		b.logger.Warn("card is blacklisted",
			ports.String("session_id", purchase.SessionID),
			ports.String("first6", card.First6),
			ports.String("last4", card.Last4),
			ports.Int("attempts", purchase.BlacklistAttempts))
	}
}

// RecordDecline adds the card to the blacklist when tx is a hard decline for a
// fraud reason. Failures are logged only.
func (b *BlacklistGuard) RecordDecline(ctx context.Context, purchase *domain.PurchaseProcess, tx *domain.Transaction) {
	if tx == nil || !tx.IsDeclined() || !tx.ErrorClassification.IsHard() || !tx.ErrorClassification.FraudRelated {
		return
	}
	if purchase.PaymentInfo == nil || !purchase.PaymentInfo.IsCard() {
		return
	}

	err := b.service.Record(ctx, ports.BlacklistRecord{
		Card:          *purchase.PaymentInfo.Card,
		SessionID:     purchase.SessionID,
		SiteID:        purchase.SiteID,
		TransactionID: tx.ID,
		Reason:        tx.ErrorClassification.GroupDecline,
	})
	if err != nil {
		observability.RecordDegradedCall("blacklist")
		b.logger.Warn("failed to record card in blacklist",
			ports.String("session_id", purchase.SessionID),
			ports.String("transaction_id", tx.ID),
			ports.Err(err))
	}
}
