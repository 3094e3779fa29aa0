package ports

import (
	"context"

	"github.com/kevin07696/purchase-service/internal/domain"
)

// CascadeRequest identifies the purchase a biller cascade is built for
type CascadeRequest struct {
	SessionID       string
	SiteID          string
	BusinessGroupID string
	Currency        string
	PaymentType     domain.PaymentType
	PaymentMethod   string
}

// CascadeService returns the ordered billers configured for a site
type CascadeService interface {
	RetrieveCascade(ctx context.Context, req CascadeRequest) ([]domain.Biller, error)
}

// BillerMappingRequest identifies the merchant fields needed to bill through a biller
type BillerMappingRequest struct {
	Biller          domain.Biller
	BusinessGroupID string
	SiteID          string
	Currency        string
	SessionID       string
}

// BillerMappingService resolves per-site merchant configuration for a biller.
// Fails when the biller/site/currency combination is unknown.
type BillerMappingService interface {
	RetrieveBillerMapping(ctx context.Context, req BillerMappingRequest) (*domain.BillerMapping, error)
}

// BinRoutingRequest identifies the item a set of routing codes is requested for
type BinRoutingRequest struct {
	Purchase *domain.PurchaseProcess
	ItemID   string
	Site     *domain.Site
	Mapping  *domain.BillerMapping
	Bin      string
}

// BinRoutingService returns bank-routing fallbacks for an item
type BinRoutingService interface {
	RetrieveRoutingCodes(ctx context.Context, req BinRoutingRequest) (domain.BinRoutingCollection, error)
}

// TransactionRequest is everything the transaction service needs for one attempt
type TransactionRequest struct {
	Item        *domain.InitializedItem
	Mapping     *domain.BillerMapping
	Site        *domain.Site
	Biller      domain.Biller
	Payment     domain.PaymentData
	User        domain.UserInfo
	SessionID   string
	Currency    string
	RoutingCode string
	ReturnURL   string // where the shopper lands after a challenge or third-party page
	UseThreeD   bool
}

// CompleteThreeDRequest carries the challenge result posted back by the issuer
type CompleteThreeDRequest struct {
	TransactionID string
	PaRes         string
	MD            string
	SessionID     string
}

// TransactionBackend executes transactions against billers.
// A declined attempt is a transaction, not an error; errors mean the attempt
// could not be performed.
type TransactionBackend interface {
	PerformNewCardTransaction(ctx context.Context, req TransactionRequest) (*domain.Transaction, error)
	PerformExistingCardTransaction(ctx context.Context, req TransactionRequest) (*domain.Transaction, error)
	PerformChequeTransaction(ctx context.Context, req TransactionRequest) (*domain.Transaction, error)
	PerformThirdPartyTransaction(ctx context.Context, req TransactionRequest) (*domain.Transaction, error)
	PerformCompleteThreeDTransaction(ctx context.Context, req CompleteThreeDRequest) (*domain.Transaction, error)
}
