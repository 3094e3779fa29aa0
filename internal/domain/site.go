package domain

// Site is the storefront configuration a purchase runs under
type Site struct {
	ID              string   `json:"id"`
	BusinessGroupID string   `json:"business_group_id"`
	Name            string   `json:"name"`
	PostbackURL     string   `json:"postback_url,omitempty"`
	Billers         []Biller `json:"billers"` // default cascade, in priority order
	FraudEnabled    bool     `json:"fraud_enabled"`
}

// HasPostback returns true if the site wants purchase notifications
func (s *Site) HasPostback() bool {
	return s != nil && s.PostbackURL != ""
}
