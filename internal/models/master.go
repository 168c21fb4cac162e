package models

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// MasterKind names a whole-document master data entity
type MasterKind string

const (
	MasterMenu        MasterKind = "menu"
	MasterCategories  MasterKind = "categories"
	MasterProfile     MasterKind = "profile"
	MasterIngredients MasterKind = "ingredients"
	MasterStatus      MasterKind = "status"
)

// AllMasterKinds lists every mirrored master document
func AllMasterKinds() []MasterKind {
	return []MasterKind{MasterMenu, MasterCategories, MasterProfile, MasterIngredients, MasterStatus}
}

// IsValid reports whether k is a known master kind
func (k MasterKind) IsValid() bool {
	for _, known := range AllMasterKinds() {
		if k == known {
			return true
		}
	}
	return false
}

// MasterDoc is a whole master data document. The most recent writer wins.
type MasterDoc struct {
	Kind      MasterKind      `json:"kind"`
	Value     json.RawMessage `json:"value"`
	UpdatedAt time.Time       `json:"updated_at"`
	UpdatedBy string          `json:"updated_by,omitempty"`
}

// Profile is the decoded store profile; it carries the pricing switches
type Profile struct {
	Name          string          `json:"name"`
	Address       string          `json:"address,omitempty"`
	Phone         string          `json:"phone,omitempty"`
	EnableTax     bool            `json:"enable_tax"`
	TaxRate       decimal.Decimal `json:"tax_rate"`
	EnableService bool            `json:"enable_service"`
	ServiceRate   decimal.Decimal `json:"service_rate"`
}

// Category groups menu items
type Category struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Ingredient is an inventory entry referenced by recipes
type Ingredient struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Unit  string          `json:"unit"`
	Stock decimal.Decimal `json:"stock"`
}

// BranchStatus is the branch-wide status flag document
type BranchStatus struct {
	Open                bool `json:"open"`
	AcceptingSelfOrders bool `json:"accepting_self_orders"`
}
