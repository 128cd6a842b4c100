package pricing

import (
	"fmt"

	"github.com/shopspring/decimal"
)

var two = decimal.NewFromInt(2)

// SplitHalf is one side of a half-and-half line. Each half may carry its own
// size and its own extras.
type SplitHalf struct {
	ProductID int64
	SizeID    *int64
	Extras    []ExtraSelection
}

type SplitRequest struct {
	First    SplitHalf
	Second   SplitHalf
	Quantity int

	// PrecomputedTotal, when set, replaces the average-and-round computation
	// (a size-override-aware caller already produced the combined total). The
	// extras halving and synthetic base back-out still happen.
	PrecomputedTotal *decimal.Decimal
}

// SplitExtra is an added ingredient as it will be stored on the composite
// line: unit price already halved, provenance tracked by HalfIndex.
type SplitExtra struct {
	IngredientID int64
	Name         string
	UnitPrice    decimal.Decimal
	Quantity     int
	HalfIndex    int
}

type SplitResult struct {
	Name      string
	BasePrice decimal.Decimal
	Extras    []SplitExtra
	UnitPrice decimal.Decimal
	Subtotal  decimal.Decimal
}

// ComposeSplit combines two products into one orderable unit. The combined
// total is the average of both halves rounded up to the next 0.50 step.
// Extras are persisted at half their true unit price so that
// basePrice + sum(extras) still reproduces the rounded total when the
// generic subtotal formula is reapplied.
func (c *Calculator) ComposeSplit(req SplitRequest) (SplitResult, error) {
	if req.Quantity < 1 {
		return SplitResult{}, ErrInvalidQuantity
	}

	first, ok := c.snap.MenuItem(req.First.ProductID)
	if !ok {
		return SplitResult{}, fmt.Errorf("product %d: %w", req.First.ProductID, ErrProductNotFound)
	}
	second, ok := c.snap.MenuItem(req.Second.ProductID)
	if !ok {
		return SplitResult{}, fmt.Errorf("product %d: %w", req.Second.ProductID, ErrProductNotFound)
	}

	firstBase, err := c.sizeAdjustedBase(req.First.ProductID, req.First.SizeID)
	if err != nil {
		return SplitResult{}, err
	}
	secondBase, err := c.sizeAdjustedBase(req.Second.ProductID, req.Second.SizeID)
	if err != nil {
		return SplitResult{}, err
	}

	firstExtras := c.extrasTotal(req.First.SizeID, req.First.Extras)
	secondExtras := c.extrasTotal(req.Second.SizeID, req.Second.Extras)

	var total decimal.Decimal
	if req.PrecomputedTotal != nil {
		total = *req.PrecomputedTotal
	} else {
		raw := firstBase.Add(firstExtras).Add(secondBase).Add(secondExtras).Div(two)
		total = roundUpToHalfStep(raw)
	}

	extras := c.halvedExtras(req.First, first.Name, 1)
	extras = append(extras, c.halvedExtras(req.Second, second.Name, 2)...)

	halvedTotal := decimal.Zero
	for _, e := range extras {
		halvedTotal = halvedTotal.Add(e.UnitPrice.Mul(decimal.NewFromInt(int64(e.Quantity))))
	}

	return SplitResult{
		Name:      fmt.Sprintf("%s + %s (Split)", first.Name, second.Name),
		BasePrice: total.Sub(halvedTotal),
		Extras:    extras,
		UnitPrice: total,
		Subtotal:  total.Mul(decimal.NewFromInt(int64(req.Quantity))),
	}, nil
}

func (c *Calculator) halvedExtras(half SplitHalf, productName string, halfIndex int) []SplitExtra {
	var extras []SplitExtra
	for _, sel := range half.Extras {
		if sel.Quantity < 1 {
			continue
		}
		ingredient, ok := c.snap.Ingredient(sel.IngredientID)
		if !ok {
			continue
		}
		extras = append(extras, SplitExtra{
			IngredientID: sel.IngredientID,
			Name:         fmt.Sprintf("%s (%s)", ingredient.Name, productName),
			UnitPrice:    ingredient.UnitPriceForSize(half.SizeID).Div(two),
			Quantity:     sel.Quantity,
			HalfIndex:    halfIndex,
		})
	}
	return extras
}

// roundUpToHalfStep rounds up to the nearest 0.50. Splits never round down.
func roundUpToHalfStep(d decimal.Decimal) decimal.Decimal {
	return d.Mul(two).Ceil().Div(two)
}
