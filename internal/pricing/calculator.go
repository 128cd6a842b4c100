package pricing

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"vittoria-system/internal/catalog"
)

var (
	ErrInvalidQuantity = errors.New("quantity must be a positive integer")
	ErrProductNotFound = errors.New("product not found in catalog")
)

// ExtraSelection is one added ingredient in a computation request.
type ExtraSelection struct {
	IngredientID int64
	Quantity     int
}

// Request describes one non-split line to price. The same request evaluated
// against the same snapshot always produces the same result; this is what
// lets the client display and the checkout-time recomputation agree to the
// cent.
type Request struct {
	ProductID int64
	SizeID    *int64
	Extras    []ExtraSelection
	Quantity  int
}

type Result struct {
	UnitPrice decimal.Decimal
	Subtotal  decimal.Decimal
}

// Calculator prices requests against one immutable catalog snapshot.
type Calculator struct {
	snap *catalog.Snapshot
}

func NewCalculator(snap *catalog.Snapshot) *Calculator {
	return &Calculator{snap: snap}
}

func (c *Calculator) Evaluate(req Request) (Result, error) {
	if req.Quantity < 1 {
		return Result{}, ErrInvalidQuantity
	}

	base, err := c.sizeAdjustedBase(req.ProductID, req.SizeID)
	if err != nil {
		return Result{}, err
	}

	unitPrice := base.Add(c.extrasTotal(req.SizeID, req.Extras))

	return Result{
		UnitPrice: unitPrice,
		Subtotal:  unitPrice.Mul(decimal.NewFromInt(int64(req.Quantity))),
	}, nil
}

// sizeAdjustedBase resolves the product's effective price and applies the
// selected size. An absolute price override on the (product, size) assignment
// wins over the multiplier; a size with no assignment for this product is
// treated as no size at all.
func (c *Calculator) sizeAdjustedBase(productID int64, sizeID *int64) (decimal.Decimal, error) {
	item, ok := c.snap.MenuItem(productID)
	if !ok {
		return decimal.Zero, fmt.Errorf("product %d: %w", productID, ErrProductNotFound)
	}

	price := item.EffectivePrice()
	if sizeID == nil {
		return price, nil
	}

	assignment, ok := c.snap.SizeAssignment(productID, *sizeID)
	if !ok {
		return price, nil
	}
	if assignment.PriceOverride != nil {
		return *assignment.PriceOverride, nil
	}
	return price.Mul(assignment.Multiplier), nil
}

// extrasTotal sums the added ingredients. An ingredient missing from the
// snapshot contributes zero: it usually means a since-deleted ingredient
// redisplayed from order history, which must not break pricing.
func (c *Calculator) extrasTotal(sizeID *int64, extras []ExtraSelection) decimal.Decimal {
	total := decimal.Zero
	for _, extra := range extras {
		if extra.Quantity < 1 {
			continue
		}
		ingredient, ok := c.snap.Ingredient(extra.IngredientID)
		if !ok {
			continue
		}
		unit := ingredient.UnitPriceForSize(sizeID)
		total = total.Add(unit.Mul(decimal.NewFromInt(int64(extra.Quantity))))
	}
	return total
}
