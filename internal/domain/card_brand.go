package domain

import (
	"strconv"
	"strings"
)

// CardBrand is the card network a card number belongs to
type CardBrand string

const (
	CardBrandVisa       CardBrand = "visa"
	CardBrandMastercard CardBrand = "mastercard"
	CardBrandAmex       CardBrand = "amex"
	CardBrandDiscover   CardBrand = "discover"
	CardBrandJCB        CardBrand = "jcb"
	CardBrandDiners     CardBrand = "diners"
	CardBrandUnionPay   CardBrand = "unionpay"
	CardBrandMaestro    CardBrand = "maestro"
	CardBrandUnknown    CardBrand = ""
)

type binRange struct {
	brand  CardBrand
	digits int
	low    int
	high   int
}

// Ranges are matched in order. Narrow ranges that overlap a wider one
// (Discover co-branded 622126-622925 inside UnionPay 62) come first.
var binRanges = []binRange{
	{CardBrandDiscover, 6, 622126, 622925},
	{CardBrandDiscover, 4, 6011, 6011},
	{CardBrandDiscover, 3, 644, 649},
	{CardBrandDiscover, 2, 65, 65},
	{CardBrandUnionPay, 2, 62, 62},
	{CardBrandMaestro, 4, 6304, 6304},
	{CardBrandMaestro, 4, 6759, 6759},
	{CardBrandMaestro, 4, 6761, 6763},
	{CardBrandMaestro, 2, 50, 50},
	{CardBrandMaestro, 2, 56, 58},
	{CardBrandJCB, 4, 3528, 3589},
	{CardBrandDiners, 3, 300, 305},
	{CardBrandDiners, 2, 36, 36},
	{CardBrandDiners, 2, 38, 39},
	{CardBrandAmex, 2, 34, 34},
	{CardBrandAmex, 2, 37, 37},
	{CardBrandMastercard, 4, 2221, 2720},
	{CardBrandMastercard, 2, 51, 55},
	{CardBrandVisa, 1, 4, 4},
}

// ClassifyCardBrand maps a card number or bin prefix to its brand.
// Non-digit characters are ignored; unknown prefixes return CardBrandUnknown.
func ClassifyCardBrand(cardNumber string) CardBrand {
	digits := digitsOnly(cardNumber)
	for _, r := range binRanges {
		if len(digits) < r.digits {
			continue
		}
		prefix, err := strconv.Atoi(digits[:r.digits])
		if err != nil {
			continue
		}
		if prefix >= r.low && prefix <= r.high {
			return r.brand
		}
	}
	return CardBrandUnknown
}

// BrandPolicy lists, per brand, the sites that do not accept it
type BrandPolicy map[CardBrand][]string

// Allows returns false if brand is disallowed for siteID
func (p BrandPolicy) Allows(brand CardBrand, siteID string) bool {
	if brand == CardBrandUnknown {
		return true
	}
	for _, id := range p[brand] {
		if id == siteID {
			return false
		}
	}
	return true
}

// NewBrandPolicy builds a policy from brand names as they appear in configuration
func NewBrandPolicy(disallowed map[string][]string) BrandPolicy {
	policy := make(BrandPolicy, len(disallowed))
	for brand, sites := range disallowed {
		policy[CardBrand(strings.ToLower(strings.TrimSpace(brand)))] = append([]string(nil), sites...)
	}
	return policy
}
