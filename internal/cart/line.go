package cart

import (
	"sort"

	"github.com/shopspring/decimal"
)

// AddedIngredient is one extra charged on a line. For split lines the unit
// price is already halved at composition time and HalfIndex records which
// half the ingredient belongs to (1 or 2); regular lines use 0.
type AddedIngredient struct {
	IngredientID int64           `json:"ingredient_id"`
	Name         string          `json:"name"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	Quantity     int             `json:"quantity"`
	HalfIndex    int             `json:"half_index,omitempty"`
}

// RemovedIngredient never affects price; it only reaches the kitchen display.
type RemovedIngredient struct {
	IngredientID int64  `json:"ingredient_id"`
	Name         string `json:"name"`
}

// ProductRef is the denormalized snapshot of the second product on a split
// line.
type ProductRef struct {
	ProductID int64  `json:"product_id"`
	Name      string `json:"name"`
	SizeID    *int64 `json:"size_id,omitempty"`
}

type Customization struct {
	SizeID        *int64              `json:"size_id,omitempty"`
	SizeName      string              `json:"size_name,omitempty"`
	Added         []AddedIngredient   `json:"added,omitempty"`
	Removed       []RemovedIngredient `json:"removed,omitempty"`
	Note          string              `json:"note,omitempty"`
	Split         bool                `json:"split,omitempty"`
	SecondProduct *ProductRef         `json:"second_product,omitempty"`
}

// Line is one cart entry. Product name and price are snapshots taken at add
// time, not live references; reconciliation refreshes them when the catalog
// moves.
type Line struct {
	ProductID     int64           `json:"product_id"`
	ProductName   string          `json:"product_name"`
	ProductPrice  decimal.Decimal `json:"product_price"`
	BasePrice     decimal.Decimal `json:"base_price"`
	Quantity      int             `json:"quantity"`
	Customization Customization   `json:"customization"`
	Subtotal      decimal.Decimal `json:"subtotal"`
}

// ExtrasTotal sums the stored extras for one unit of the line.
func (l Line) ExtrasTotal() decimal.Decimal {
	total := decimal.Zero
	for _, a := range l.Customization.Added {
		total = total.Add(a.UnitPrice.Mul(decimal.NewFromInt(int64(a.Quantity))))
	}
	return total
}

// Reprice recomputes the subtotal from the stored base price and extras.
func (l *Line) Reprice() {
	unit := l.BasePrice.Add(l.ExtrasTotal())
	l.Subtotal = unit.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Equal is the strict structural comparison used by the duplicate-merge
// search: size, sorted added ids with quantities and half indexes, sorted
// removed ids, note and split pairing must all match. Prices are not part of
// the comparison.
func (c Customization) Equal(other Customization) bool {
	if !int64PtrEqual(c.SizeID, other.SizeID) {
		return false
	}
	if c.Note != other.Note || c.Split != other.Split {
		return false
	}
	if (c.SecondProduct == nil) != (other.SecondProduct == nil) {
		return false
	}
	if c.SecondProduct != nil {
		if c.SecondProduct.ProductID != other.SecondProduct.ProductID {
			return false
		}
		if !int64PtrEqual(c.SecondProduct.SizeID, other.SecondProduct.SizeID) {
			return false
		}
	}
	if !addedEqual(c.Added, other.Added) {
		return false
	}
	return removedEqual(c.Removed, other.Removed)
}

func addedEqual(a, b []AddedIngredient) bool {
	if len(a) != len(b) {
		return false
	}
	as := append([]AddedIngredient(nil), a...)
	bs := append([]AddedIngredient(nil), b...)
	sortAdded(as)
	sortAdded(bs)
	for i := range as {
		if as[i].IngredientID != bs[i].IngredientID ||
			as[i].Quantity != bs[i].Quantity ||
			as[i].HalfIndex != bs[i].HalfIndex {
			return false
		}
	}
	return true
}

func sortAdded(list []AddedIngredient) {
	sort.Slice(list, func(i, j int) bool {
		if list[i].IngredientID != list[j].IngredientID {
			return list[i].IngredientID < list[j].IngredientID
		}
		return list[i].HalfIndex < list[j].HalfIndex
	})
}

func removedEqual(a, b []RemovedIngredient) bool {
	if len(a) != len(b) {
		return false
	}
	as := append([]RemovedIngredient(nil), a...)
	bs := append([]RemovedIngredient(nil), b...)
	sort.Slice(as, func(i, j int) bool { return as[i].IngredientID < as[j].IngredientID })
	sort.Slice(bs, func(i, j int) bool { return bs[i].IngredientID < bs[j].IngredientID })
	for i := range as {
		if as[i].IngredientID != bs[i].IngredientID {
			return false
		}
	}
	return true
}

func int64PtrEqual(a, b *int64) bool {
	if (a == nil) != (b == nil) {
		return false
	}
	return a == nil || *a == *b
}
