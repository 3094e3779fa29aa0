package fixtures

import (
	"time"

	"github.com/google/uuid"
	"github.com/kevin07696/purchase-service/internal/domain"
	"github.com/shopspring/decimal"
)

// Test card data. Luhn-valid test numbers only.
const (
	TestVisaNumber       = "4111111111111111"
	TestMastercardNumber = "5105105105105100"
	TestEmail            = "shopper@example.com"
	TestZip              = "H2X1Y4"
)

// PurchaseBuilder provides fluent API for building test purchase processes.
type PurchaseBuilder struct {
	purchase *domain.PurchaseProcess
}

// NewPurchase creates a purchase in the initialized state with one main item
// and a new-card payment.
func NewPurchase() *PurchaseBuilder {
	now := time.Now()
	return &PurchaseBuilder{
		purchase: &domain.PurchaseProcess{
			SessionID: uuid.New().String(),
			SiteID:    "site-main",
			Currency:  "USD",
			State:     domain.PurchaseStateInitialized,
			UserInfo:  domain.UserInfo{Email: TestEmail, ZipCode: TestZip, IPAddress: "10.0.0.1"},
			Items: []*domain.InitializedItem{
				{
					ID:         "item-main",
					SiteID:     "site-main",
					BundleID:   "bundle-1",
					ChargeInfo: domain.ChargeInfo{InitialAmount: decimal.RequireFromString("29.99"), InitialDays: 30},
				},
			},
			CreatedAt: now,
			UpdatedAt: now,
		},
	}
}

func (b *PurchaseBuilder) WithSessionID(id string) *PurchaseBuilder {
	b.purchase.SessionID = id
	return b
}

func (b *PurchaseBuilder) WithState(state domain.PurchaseState) *PurchaseBuilder {
	b.purchase.State = state
	return b
}

// WithCrossSale adds a cross-sale item sold by siteID
func (b *PurchaseBuilder) WithCrossSale(itemID, siteID string) *PurchaseBuilder {
	b.purchase.Items = append(b.purchase.Items, &domain.InitializedItem{
		ID:          itemID,
		SiteID:      siteID,
		BundleID:    "bundle-" + itemID,
		IsCrossSale: true,
		ChargeInfo:  domain.ChargeInfo{InitialAmount: decimal.RequireFromString("9.99"), InitialDays: 30},
	})
	return b
}

func (b *PurchaseBuilder) WithFraudAdvice(advice domain.FraudAdvice) *PurchaseBuilder {
	b.purchase.FraudAdvice = advice
	return b
}

// WithBlacklistAttempts marks the session as blacklisted after n checks
func (b *PurchaseBuilder) WithBlacklistAttempts(n int) *PurchaseBuilder {
	b.purchase.IsBlacklisted = n > 0
	b.purchase.BlacklistAttempts = n
	return b
}

// WithMainTransaction appends an attempt to the main item
func (b *PurchaseBuilder) WithMainTransaction(tx *domain.Transaction) *PurchaseBuilder {
	b.purchase.MainItem().Transactions.Add(tx)
	return b
}

func (b *PurchaseBuilder) Build() *domain.PurchaseProcess {
	return b.purchase
}

// NewCardPayment returns new-card payment data for cardNumber
func NewCardPayment(cardNumber string) domain.PaymentData {
	return domain.PaymentData{
		Kind:       domain.PaymentKindNewCard,
		Type:       domain.PaymentTypeCC,
		Method:     string(domain.ClassifyCardBrand(cardNumber)),
		CardNumber: cardNumber,
		CVV:        "123",
		ExpMonth:   12,
		ExpYear:    time.Now().Year() + 3,
	}
}

// NewSite returns a fraud-enabled site with a single biller
func NewSite(siteID string) *domain.Site {
	return &domain.Site{
		ID:              siteID,
		BusinessGroupID: "bg-1",
		Name:            "Test Site",
		FraudEnabled:    true,
		Billers:         []domain.Biller{{Name: "rocketgate", ID: "rg", Supports3DS: true}},
	}
}

// Approved returns an approved transaction from biller
func Approved(biller string) *domain.Transaction {
	return &domain.Transaction{ID: uuid.New().String(), State: domain.TransactionStateApproved, BillerName: biller, CreatedAt: time.Now()}
}

// Declined returns a soft-declined transaction from biller
func Declined(biller string) *domain.Transaction {
	return &domain.Transaction{
		ID:                  uuid.New().String(),
		State:               domain.TransactionStateDeclined,
		BillerName:          biller,
		ErrorClassification: &domain.ErrorClassification{ErrorType: domain.DeclineTypeSoft, GroupDecline: "issuer"},
		CreatedAt:           time.Now(),
	}
}

// HardDeclined returns a hard decline flagged as fraud related
func HardDeclined(biller string) *domain.Transaction {
	tx := Declined(biller)
	tx.ErrorClassification = &domain.ErrorClassification{ErrorType: domain.DeclineTypeHard, GroupDecline: "stolen", FraudRelated: true}
	return tx
}

// Pending3DS returns a transaction waiting on a 3DS challenge
func Pending3DS(biller string) *domain.Transaction {
	return &domain.Transaction{
		ID:         uuid.New().String(),
		State:      domain.TransactionStatePending,
		BillerName: biller,
		ThreeD:     &domain.ThreeDSecure{Version: 2, AuthURL: "https://acs.example.com/challenge"},
		CreatedAt:  time.Now(),
	}
}
