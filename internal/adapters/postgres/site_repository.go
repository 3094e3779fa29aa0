package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/kevin07696/purchase-service/internal/domain"
	"github.com/kevin07696/purchase-service/internal/domain/ports"
)

// ErrSiteNotFound is returned when no site row matches the id
var ErrSiteNotFound = errors.New("site not found")

const getSiteQuery = `
	SELECT id, business_group_id, name, postback_url, fraud_enabled, billers
	FROM sites
	WHERE id = $1`

// SiteRepository reads site configuration
type SiteRepository struct {
	db ports.DBTX
}

// NewSiteRepository creates a new site repository
func NewSiteRepository(db ports.DBTX) *SiteRepository {
	return &SiteRepository{db: db}
}

// GetSite returns the site with its default biller cascade
func (r *SiteRepository) GetSite(ctx context.Context, siteID string) (*domain.Site, error) {
	var (
		site        domain.Site
		postbackURL pgtype.Text
		billers     []byte
	)
	err := r.db.QueryRow(ctx, getSiteQuery, siteID).Scan(
		&site.ID,
		&site.BusinessGroupID,
		&site.Name,
		&postbackURL,
		&site.FraudEnabled,
		&billers,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrSiteNotFound, siteID)
	}
	if err != nil {
		return nil, fmt.Errorf("get site: %w", err)
	}

	site.PostbackURL = postbackURL.String
	if len(billers) > 0 {
		if err := json.Unmarshal(billers, &site.Billers); err != nil {
			return nil, fmt.Errorf("unmarshal billers of site %s: %w", siteID, err)
		}
	}
	return &site, nil
}

// UpsertSite inserts or replaces a site row
func (r *SiteRepository) UpsertSite(ctx context.Context, site *domain.Site) error {
	billers, err := json.Marshal(site.Billers)
	if err != nil {
		return fmt.Errorf("marshal billers: %w", err)
	}
	_, err = r.db.Exec(ctx, `
		INSERT INTO sites (id, business_group_id, name, postback_url, fraud_enabled, billers)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			business_group_id = EXCLUDED.business_group_id,
			name = EXCLUDED.name,
			postback_url = EXCLUDED.postback_url,
			fraud_enabled = EXCLUDED.fraud_enabled,
			billers = EXCLUDED.billers,
			updated_at = NOW()`,
		site.ID, site.BusinessGroupID, site.Name, nullText(site.PostbackURL), site.FraudEnabled, billers)
	if err != nil {
		return fmt.Errorf("upsert site: %w", err)
	}
	return nil
}
