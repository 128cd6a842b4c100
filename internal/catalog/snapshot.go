package catalog

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MenuItem is the typed, read-only view of a catalog product used by the
// pricing engine. Raw rows are parsed into this record at the snapshot
// boundary; nothing downstream accepts untyped data.
type MenuItem struct {
	ID              int64
	Name            string
	Price           decimal.Decimal
	DiscountedPrice *decimal.Decimal
	Available       bool
	Active          bool
}

// EffectivePrice returns the discounted price when one is set.
func (m MenuItem) EffectivePrice() decimal.Decimal {
	if m.DiscountedPrice != nil {
		return *m.DiscountedPrice
	}
	return m.Price
}

// SizeAssignment joins a (product, size) pair with the size variant's
// multiplier. A non-nil PriceOverride replaces the multiplier computation.
type SizeAssignment struct {
	SizeID        int64
	SizeName      string
	Multiplier    decimal.Decimal
	PriceOverride *decimal.Decimal
	IsDefault     bool
}

type Ingredient struct {
	ID         int64
	Name       string
	UnitPrice  decimal.Decimal
	SizePrices map[int64]decimal.Decimal
	Active     bool
}

// UnitPriceForSize prefers the per-size override for the selected size.
func (i Ingredient) UnitPriceForSize(sizeID *int64) decimal.Decimal {
	if sizeID != nil {
		if p, ok := i.SizePrices[*sizeID]; ok {
			return p
		}
	}
	return i.UnitPrice
}

// Snapshot is an immutable, tenant-scoped view of the catalog. The price
// calculator only ever reads from a snapshot, which is what makes two
// evaluations of the same request reproducible.
type Snapshot struct {
	items       map[int64]MenuItem
	assignments map[int64]map[int64]SizeAssignment
	ingredients map[int64]Ingredient
}

func NewSnapshot(items []MenuItem, assignments map[int64][]SizeAssignment, ingredients []Ingredient) *Snapshot {
	s := &Snapshot{
		items:       make(map[int64]MenuItem, len(items)),
		assignments: make(map[int64]map[int64]SizeAssignment, len(assignments)),
		ingredients: make(map[int64]Ingredient, len(ingredients)),
	}
	for _, it := range items {
		s.items[it.ID] = it
	}
	for productID, list := range assignments {
		m := make(map[int64]SizeAssignment, len(list))
		for _, a := range list {
			m[a.SizeID] = a
		}
		s.assignments[productID] = m
	}
	for _, ing := range ingredients {
		s.ingredients[ing.ID] = ing
	}
	return s
}

func (s *Snapshot) MenuItem(id int64) (MenuItem, bool) {
	it, ok := s.items[id]
	return it, ok
}

func (s *Snapshot) SizeAssignment(productID, sizeID int64) (SizeAssignment, bool) {
	m, ok := s.assignments[productID]
	if !ok {
		return SizeAssignment{}, false
	}
	a, ok := m[sizeID]
	return a, ok
}

func (s *Snapshot) Ingredient(id int64) (Ingredient, bool) {
	ing, ok := s.ingredients[id]
	return ing, ok
}

// Load builds a snapshot for one tenant from a source. Nil id slices fetch
// the whole tenant catalog; otherwise the fetch is limited to the ids given,
// which is how reconciliation avoids pulling the full menu for a small cart.
func Load(ctx context.Context, src Source, orgID uuid.UUID, productIDs, ingredientIDs []int64) (*Snapshot, error) {
	items, err := src.FetchMenuItems(ctx, orgID, productIDs)
	if err != nil {
		return nil, fmt.Errorf("src.FetchMenuItems: %w", err)
	}

	assignments := make(map[int64][]SizeAssignment, len(items))
	for _, it := range items {
		list, err := src.FetchSizeAssignments(ctx, orgID, it.ID)
		if err != nil {
			return nil, fmt.Errorf("src.FetchSizeAssignments(%d): %w", it.ID, err)
		}
		assignments[it.ID] = list
	}

	ingredients, err := src.FetchIngredients(ctx, orgID, ingredientIDs)
	if err != nil {
		return nil, fmt.Errorf("src.FetchIngredients: %w", err)
	}

	return NewSnapshot(items, assignments, ingredients), nil
}
