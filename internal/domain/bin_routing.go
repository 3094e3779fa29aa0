package domain

import (
	"strings"
)

// BinRouting is one bank-routing fallback row for an item
type BinRouting struct {
	Key         string `json:"key"` // item id, optionally suffixed with "_<ordinal>"
	RoutingCode string `json:"routing_code"`
	BankName    string `json:"bank_name,omitempty"`
	Ordinal     int    `json:"ordinal"`
}

// BinRoutingCollection keeps routing rows in the order the routing service returned them.
// It is built per attempt and discarded afterwards.
type BinRoutingCollection []BinRouting

// ForItem returns the rows that apply to itemID, in collection order.
// A row applies when its key is the item id or the item id followed by "_<ordinal>".
func (c BinRoutingCollection) ForItem(itemID string) []BinRouting {
	var rows []BinRouting
	prefix := itemID + "_"
	for _, row := range c {
		if row.Key == itemID || strings.HasPrefix(row.Key, prefix) {
			rows = append(rows, row)
		}
	}
	return rows
}

// Merge appends other's rows after c's
func (c BinRoutingCollection) Merge(other BinRoutingCollection) BinRoutingCollection {
	if len(other) == 0 {
		return c
	}
	merged := make(BinRoutingCollection, 0, len(c)+len(other))
	merged = append(merged, c...)
	return append(merged, other...)
}
