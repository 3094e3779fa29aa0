package domain

// Biller is one candidate processor in a cascade
type Biller struct {
	Name        string `json:"name"`
	ID          string `json:"id"`
	MaxSubmits  int    `json:"max_submits"`
	Supports3DS bool   `json:"supports_3ds"`
	ThirdParty  bool   `json:"third_party"` // shopper is redirected to the biller's own page
}

// Cascade is the ordered biller plan for a purchase.
// It is rebuilt on every command from site configuration and the attempt history.
type Cascade struct {
	Billers []Biller `json:"billers"`
	Removed []Biller `json:"removed,omitempty"`
	Current int      `json:"current"`
}

// NewCascade builds a cascade with no current biller selected
func NewCascade(billers []Biller) *Cascade {
	return &Cascade{Billers: billers, Current: -1}
}

// RemoveNonThreeDSBillers drops billers that cannot run a 3DS challenge and records them
func (c *Cascade) RemoveNonThreeDSBillers() {
	kept := c.Billers[:0:0]
	for _, b := range c.Billers {
		if b.Supports3DS {
			kept = append(kept, b)
			continue
		}
		c.Removed = append(c.Removed, b)
	}
	c.Billers = kept
}

// SelectNext points the cascade at the first biller that still has submits left.
// attempts returns how many submits a biller already consumed for this purchase.
func (c *Cascade) SelectNext(attempts func(billerName string) int) (Biller, bool) {
	for i, b := range c.Billers {
		if attempts(b.Name) < b.maxSubmits() {
			c.Current = i
			return b, true
		}
	}
	c.Current = -1
	return Biller{}, false
}

// CurrentBiller returns the selected biller
func (c *Cascade) CurrentBiller() (Biller, bool) {
	if c == nil || c.Current < 0 || c.Current >= len(c.Billers) {
		return Biller{}, false
	}
	return c.Billers[c.Current], true
}

// HasCapacity reports whether any biller still has submits left
func (c *Cascade) HasCapacity(attempts func(billerName string) int) bool {
	for _, b := range c.Billers {
		if attempts(b.Name) < b.maxSubmits() {
			return true
		}
	}
	return false
}

func (b Biller) maxSubmits() int {
	if b.MaxSubmits <= 0 {
		return 1
	}
	return b.MaxSubmits
}

// BillerMapping carries the per-site merchant fields the transaction service needs for a biller
type BillerMapping struct {
	BillerName string            `json:"biller_name"`
	BillerID   string            `json:"biller_id"`
	Currency   string            `json:"currency"`
	Fields     map[string]string `json:"fields"`
}
