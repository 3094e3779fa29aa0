package purchase

import (
	"context"
	"errors"
	"time"

	"github.com/kevin07696/purchase-service/internal/domain"
	"github.com/kevin07696/purchase-service/internal/domain/ports"
	"github.com/kevin07696/purchase-service/pkg/observability"
)

var errEmptyTransaction = errors.New("transaction service returned no transaction")

// AttemptInput is the plan for one submit
type AttemptInput struct {
	Purchase  *domain.PurchaseProcess
	Site      *domain.Site
	Mapping   *domain.BillerMapping
	Routing   domain.BinRoutingCollection
	Biller    domain.Biller
	Payment   domain.PaymentData
	ReturnURL string
}

// AttemptEngine runs transactions for the main item and the selected
// cross-sales, walking bin-routing rows in order
type AttemptEngine struct {
	backend ports.TransactionBackend
	logger  ports.Logger
	now     func() time.Time
}

// NewAttemptEngine creates an attempt engine
func NewAttemptEngine(backend ports.TransactionBackend, logger ports.Logger) *AttemptEngine {
	return &AttemptEngine{
		backend: backend,
		logger:  logger,
		now:     time.Now,
	}
}

// Attempt charges the main item, then each cross-sale once the main item is
// approved. Outcomes are appended to the items' transaction collections.
// Backend failures stop the submit and are returned as
// domain.ErrTransactionBackend; outcomes recorded before the failure are kept.
func (e *AttemptEngine) Attempt(ctx context.Context, in AttemptInput, main *domain.InitializedItem, crossSales []*domain.InitializedItem) error {
	if err := checkPaymentKind(in.Biller, in.Payment.Kind); err != nil {
		return err
	}
	in.Purchase.RecordBillerSubmit(in.Biller.Name)

	if err := e.attemptItem(ctx, in, main, false); err != nil {
		return err
	}
	return e.AttemptCrossSales(ctx, in, main, crossSales)
}

// AttemptCrossSales charges cross-sales sequentially. Nothing is attempted
// unless the main item's last transaction is approved; cross-sales that
// already hold an approved transaction are skipped.
func (e *AttemptEngine) AttemptCrossSales(ctx context.Context, in AttemptInput, main *domain.InitializedItem, crossSales []*domain.InitializedItem) error {
	if !main.LastTransaction().IsApproved() {
		return nil
	}
	for _, item := range crossSales {
		if item.IsApproved() {
			continue
		}
		if err := e.attemptItem(ctx, in, item, true); err != nil {
			return err
		}
	}
	return nil
}

// CompleteThreeD finishes the main item's pending challenge and appends the result
func (e *AttemptEngine) CompleteThreeD(ctx context.Context, purchase *domain.PurchaseProcess, main *domain.InitializedItem, req ports.CompleteThreeDRequest) (*domain.Transaction, error) {
	pending := main.LastTransaction()
	tx, err := e.backend.PerformCompleteThreeDTransaction(ctx, req)
	if err != nil {
		return nil, e.backendError(purchase, main, err)
	}
	if tx == nil {
		return nil, e.backendError(purchase, main, errEmptyTransaction)
	}

	if tx.BillerName == "" && pending != nil {
		tx.BillerName = pending.BillerName
	}
	if tx.ThreeD == nil && pending != nil {
		tx.ThreeD = pending.ThreeD
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = e.now()
	}
	main.Transactions.Add(tx)

	paymentType := ""
	if purchase.PaymentInfo != nil {
		paymentType = string(purchase.PaymentInfo.Type)
	}
	observability.RecordTransactionAttempt(tx.BillerName, paymentType, "main", string(tx.State), false)
	return tx, nil
}

func (e *AttemptEngine) attemptItem(ctx context.Context, in AttemptInput, item *domain.InitializedItem, crossSale bool) error {
	// Third-party billers and cheques take a single attempt without routing
	if in.Biller.ThirdParty || in.Payment.Kind == domain.PaymentKindCheque {
		_, err := e.perform(ctx, in, item, "", crossSale)
		return err
	}

	rows := in.Routing.ForItem(item.ID)
	if len(rows) == 0 {
		_, err := e.perform(ctx, in, item, "", crossSale)
		return err
	}

	for i := range rows {
		row := rows[i]
		tx, err := e.perform(ctx, in, item, row.RoutingCode, crossSale)
		if err != nil {
			return err
		}
		if tx.IsApproved() {
			tx.SuccessfulBinRouting = &row
		}
		if !tx.AllowsRerouting() {
			return nil
		}
		if i < len(rows)-1 {
			e.logger.Info("soft decline, trying next routing code",
				ports.String("session_id", in.Purchase.SessionID),
				ports.String("item_id", item.ID),
				ports.Int("ordinal", i+1))
		}
	}
	return nil
}

func (e *AttemptEngine) perform(ctx context.Context, in AttemptInput, item *domain.InitializedItem, routingCode string, crossSale bool) (*domain.Transaction, error) {
	req := ports.TransactionRequest{
		Item:        item,
		Mapping:     in.Mapping,
		Site:        in.Site,
		Biller:      in.Biller,
		Payment:     in.Payment,
		User:        in.Purchase.UserInfo,
		SessionID:   in.Purchase.SessionID,
		Currency:    in.Purchase.Currency,
		RoutingCode: routingCode,
		ReturnURL:   in.ReturnURL,
		UseThreeD:   useThreeD(in.Biller, in.Purchase.FraudAdvice, in.Payment, crossSale),
	}

	var (
		tx  *domain.Transaction
		err error
	)
	switch {
	case in.Biller.ThirdParty:
		tx, err = e.backend.PerformThirdPartyTransaction(ctx, req)
	case in.Payment.Kind == domain.PaymentKindCheque:
		tx, err = e.backend.PerformChequeTransaction(ctx, req)
	case in.Payment.Kind == domain.PaymentKindExistingCard:
		tx, err = e.backend.PerformExistingCardTransaction(ctx, req)
	case in.Payment.Kind == domain.PaymentKindNewCard:
		tx, err = e.backend.PerformNewCardTransaction(ctx, req)
	default:
		return nil, checkPaymentKind(in.Biller, in.Payment.Kind)
	}
	if err != nil {
		return nil, e.backendError(in.Purchase, item, err)
	}
	if tx == nil {
		return nil, e.backendError(in.Purchase, item, errEmptyTransaction)
	}

	if tx.BillerName == "" {
		tx.BillerName = in.Biller.Name
	}
	tx.RoutingCode = routingCode
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = e.now()
	}
	item.Transactions.Add(tx)

	itemType := "main"
	if crossSale {
		itemType = "cross_sale"
	}
	observability.RecordTransactionAttempt(tx.BillerName, string(in.Payment.Type), itemType, string(tx.State), routingCode != "")
	e.logger.Info("transaction attempted",
		ports.String("session_id", in.Purchase.SessionID),
		ports.String("item_id", item.ID),
		ports.String("transaction_id", tx.ID),
		ports.String("biller", tx.BillerName),
		ports.String("state", string(tx.State)),
		ports.Bool("three_d", req.UseThreeD))
	return tx, nil
}

func (e *AttemptEngine) backendError(purchase *domain.PurchaseProcess, item *domain.InitializedItem, err error) error {
	e.logger.Error("transaction service failure",
		ports.String("session_id", purchase.SessionID),
		ports.String("item_id", item.ID),
		ports.Err(err))
	return domain.WrapError(domain.ErrorCodeTransactionBackend, domain.ErrTransactionBackend.Message, err).
		WithDetail("item_id", item.ID)
}

// checkPaymentKind rejects a payment the biller has no execution path for.
// Third-party billers take every kind; the others never take PaymentKindOther.
func checkPaymentKind(biller domain.Biller, kind domain.PaymentKind) error {
	if kind.IsValid() && (biller.ThirdParty || kind != domain.PaymentKindOther) {
		return nil
	}
	return domain.ErrPaymentNotSupported.
		WithDetail("payment_kind", string(kind)).
		WithDetail("biller", biller.Name)
}

// useThreeD reports whether an attempt runs a 3DS challenge. Cross-sales
// never get 3DS forced on their own; cheques have no 3DS.
func useThreeD(biller domain.Biller, advice domain.FraudAdvice, payment domain.PaymentData, crossSale bool) bool {
	if payment.Kind == domain.PaymentKindCheque {
		return false
	}
	return biller.Supports3DS && advice.Force3DS && !crossSale
}
