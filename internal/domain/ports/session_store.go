package ports

import (
	"context"

	"github.com/kevin07696/purchase-service/internal/domain"
)

// SessionStore persists purchase process aggregates keyed by session id.
// One writer per session is assumed; the idempotency marker enforces it.
type SessionStore interface {
	// Load returns domain.ErrPurchaseNotFound when the session does not exist or expired
	Load(ctx context.Context, sessionID string) (*domain.PurchaseProcess, error)

	// Update writes the whole aggregate back
	Update(ctx context.Context, purchase *domain.PurchaseProcess) error
}

// SiteRepository reads storefront configuration
type SiteRepository interface {
	GetSite(ctx context.Context, siteID string) (*domain.Site, error)
}
