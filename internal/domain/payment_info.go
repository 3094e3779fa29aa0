package domain

import (
	"strings"
)

// PaymentKind selects the execution path of an attempt
type PaymentKind string

const (
	PaymentKindNewCard      PaymentKind = "new_card"
	PaymentKindExistingCard PaymentKind = "existing_card" // payment template or stored credential
	PaymentKindCheque       PaymentKind = "cheque"
	PaymentKindOther        PaymentKind = "other" // alternative payment types handled by third-party billers
)

// IsValid reports whether k names a known execution path
func (k PaymentKind) IsValid() bool {
	switch k {
	case PaymentKindNewCard, PaymentKindExistingCard, PaymentKindCheque, PaymentKindOther:
		return true
	}
	return false
}

// PaymentType is the payment family used for fraud toggles and event selection
type PaymentType string

const (
	PaymentTypeCC           PaymentType = "cc"
	PaymentTypeChecks       PaymentType = "checks"
	PaymentTypeEWallet      PaymentType = "ewallet"
	PaymentTypeBankTransfer PaymentType = "banktransfer"
)

// CardIdentity is the non-sensitive part of a card kept on the aggregate
type CardIdentity struct {
	First6   string `json:"first6"`
	Last4    string `json:"last4"`
	ExpMonth int    `json:"exp_month"`
	ExpYear  int    `json:"exp_year"`
}

// PaymentInfo is the persisted, sanitized payment variant of a purchase.
// Exactly one of Card, TemplateID or ChequeLast4 is meaningful, depending on Kind.
type PaymentInfo struct {
	Card        *CardIdentity `json:"card,omitempty"`
	Kind        PaymentKind   `json:"kind"`
	Type        PaymentType   `json:"type"`
	Method      string        `json:"method,omitempty"`
	TemplateID  string        `json:"template_id,omitempty"`
	ChequeLast4 string        `json:"cheque_last4,omitempty"`
}

// Validate rejects a payment variant no biller can execute
func (p PaymentInfo) Validate() error {
	if !p.Kind.IsValid() {
		return ErrValidationFailed.
			WithDetail("field", "payment.kind").
			WithDetail("kind", string(p.Kind))
	}
	return nil
}

// UsesExistingCard reports the template/stored credential path
func (p PaymentInfo) UsesExistingCard() bool {
	return p.Kind == PaymentKindExistingCard
}

// IsCheque reports the cheque/ACH path
func (p PaymentInfo) IsCheque() bool {
	return p.Kind == PaymentKindCheque
}

// IsCard reports whether a card number (new or stored) backs the payment
func (p PaymentInfo) IsCard() bool {
	return (p.Kind == PaymentKindNewCard || p.Kind == PaymentKindExistingCard) && p.Card != nil
}

// PaymentData is the full payment input of one command. It is passed to the
// transaction service and never persisted.
type PaymentData struct {
	Kind   PaymentKind `json:"kind"`
	Type   PaymentType `json:"type"`
	Method string      `json:"method,omitempty"`

	// new card
	CardNumber string `json:"card_number,omitempty"`
	CVV        string `json:"cvv,omitempty"`
	ExpMonth   int    `json:"exp_month,omitempty"`
	ExpYear    int    `json:"exp_year,omitempty"`

	// existing card
	TemplateID string `json:"template_id,omitempty"`
	First6     string `json:"first6,omitempty"`
	Last4      string `json:"last4,omitempty"`

	// cheque
	RoutingNumber       string `json:"routing_number,omitempty"`
	AccountNumber       string `json:"account_number,omitempty"`
	SavingAccount       bool   `json:"saving_account,omitempty"`
	SocialSecurityLast4 string `json:"ssn_last4,omitempty"`
}

// Info returns the sanitized variant of the payment data
func (d PaymentData) Info() PaymentInfo {
	info := PaymentInfo{Kind: d.Kind, Type: d.Type, Method: d.Method}
	switch d.Kind {
	case PaymentKindNewCard:
		number := digitsOnly(d.CardNumber)
		card := &CardIdentity{ExpMonth: d.ExpMonth, ExpYear: d.ExpYear}
		if len(number) >= 6 {
			card.First6 = number[:6]
		}
		if len(number) >= 4 {
			card.Last4 = number[len(number)-4:]
		}
		info.Card = card
	case PaymentKindExistingCard:
		info.TemplateID = d.TemplateID
		info.Card = &CardIdentity{First6: d.First6, Last4: d.Last4, ExpMonth: d.ExpMonth, ExpYear: d.ExpYear}
	case PaymentKindCheque:
		account := digitsOnly(d.AccountNumber)
		if len(account) >= 4 {
			info.ChequeLast4 = account[len(account)-4:]
		}
	}
	return info
}

// Bin returns the first six digits used for fraud fingerprints and brand lookup
func (d PaymentData) Bin() string {
	info := d.Info()
	if info.Card == nil {
		return ""
	}
	return info.Card.First6
}

func digitsOnly(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// UserInfo is the shopper data carried by a command and kept on the aggregate
type UserInfo struct {
	Email       string `json:"email"`
	Username    string `json:"username,omitempty"`
	FirstName   string `json:"first_name,omitempty"`
	LastName    string `json:"last_name,omitempty"`
	Address     string `json:"address,omitempty"`
	City        string `json:"city,omitempty"`
	State       string `json:"state,omitempty"`
	ZipCode     string `json:"zip_code,omitempty"`
	Country     string `json:"country,omitempty"`
	PhoneNumber string `json:"phone_number,omitempty"`
	IPAddress   string `json:"ip_address,omitempty"`
}

// Merge overwrites fields of u with the non-empty fields of other
func (u *UserInfo) Merge(other UserInfo) {
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&u.Email, other.Email)
	set(&u.Username, other.Username)
	set(&u.FirstName, other.FirstName)
	set(&u.LastName, other.LastName)
	set(&u.Address, other.Address)
	set(&u.City, other.City)
	set(&u.State, other.State)
	set(&u.ZipCode, other.ZipCode)
	set(&u.Country, other.Country)
	set(&u.PhoneNumber, other.PhoneNumber)
	set(&u.IPAddress, other.IPAddress)
}
