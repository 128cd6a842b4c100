package cart

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"vittoria-system/internal/catalog"
	"vittoria-system/internal/pricing"
)

// priceTolerance is the maximum divergence between a stored subtotal and the
// calculator's authoritative value before a line is corrected.
var priceTolerance = decimal.New(1, -2)

const reconcileFetchTimeout = 10 * time.Second

type ReconcileResult struct {
	CorrectedCount int `json:"corrected_count"`
	RemovedCount   int `json:"removed_count"`
}

// Reconciler detects and corrects drift between stored cart prices and the
// live catalog. Both of its checks are idempotent: a second run against an
// unchanged catalog produces no further changes.
type Reconciler struct {
	source  catalog.Source
	timeout time.Duration
}

func NewReconciler(source catalog.Source) *Reconciler {
	return &Reconciler{source: source, timeout: reconcileFetchTimeout}
}

// Run revalidates every line of the store against the tenant's catalog. On
// fetch failure the cart is left exactly as it was: a network error must
// never empty a cart.
func (r *Reconciler) Run(ctx context.Context, orgID uuid.UUID, store *Store) (ReconcileResult, error) {
	var result ReconcileResult

	lines := store.Snapshot()
	if len(lines) == 0 {
		return result, nil
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	snap, err := catalog.Load(ctx, r.source, orgID, collectProductIDs(lines), collectIngredientIDs(lines))
	if err != nil {
		logger.Warn().Err(err).Str("org_id", orgID.String()).Msg("catalog fetch failed, leaving cart unchanged")
		return result, err
	}

	calc := pricing.NewCalculator(snap)
	corrected := make([]Line, 0, len(lines))
	changed := false

	for _, line := range lines {
		keep, refreshed, wasRefreshed := r.checkAvailability(snap, line)
		if !keep {
			result.RemovedCount++
			changed = true
			continue
		}
		if wasRefreshed {
			changed = true
		}

		repriced, wasCorrected := r.checkPrice(calc, refreshed)
		if wasCorrected {
			result.CorrectedCount++
			changed = true
		}
		corrected = append(corrected, repriced)
	}

	if changed {
		if err := store.SetLines(ctx, corrected); err != nil {
			return result, err
		}
	}
	return result, nil
}

// checkAvailability drops lines whose product the tenant no longer serves
// and refreshes the denormalized name/price snapshot in place, without
// touching the customization.
func (r *Reconciler) checkAvailability(snap *catalog.Snapshot, line Line) (bool, Line, bool) {
	item, ok := snap.MenuItem(line.ProductID)
	if !ok {
		logger.Info().
			Int64("product_id", line.ProductID).
			Str("product_name", line.ProductName).
			Msg("removing cart line, product no longer in catalog")
		return false, line, false
	}
	if !item.Available && !item.Active {
		logger.Info().
			Int64("product_id", line.ProductID).
			Str("product_name", line.ProductName).
			Msg("removing cart line, product disabled")
		return false, line, false
	}

	refreshed := false

	// Split lines keep their composite display name.
	if !line.Customization.Split && item.Name != line.ProductName {
		line.ProductName = item.Name
		refreshed = true
	}
	if !item.EffectivePrice().Equal(line.ProductPrice) {
		logger.Info().
			Int64("product_id", line.ProductID).
			Str("old_price", line.ProductPrice.String()).
			Str("new_price", item.EffectivePrice().String()).
			Msg("refreshing denormalized product price")
		line.ProductPrice = item.EffectivePrice()
		refreshed = true
	}
	return true, line, refreshed
}

// checkPrice rebuilds an equivalent computation request from the stored
// customization and corrects the line when the stored subtotal diverges
// beyond tolerance. Lines that cannot be mapped back to a request are left
// untouched: silently discarding them would delete a paid-for customization.
func (r *Reconciler) checkPrice(calc *pricing.Calculator, line Line) (Line, bool) {
	authoritative, ok := r.evaluateLine(calc, line)
	if !ok {
		return line, false
	}

	diff := authoritative.Subtotal.Sub(line.Subtotal).Abs()
	if diff.LessThanOrEqual(priceTolerance) {
		return line, false
	}

	oldSubtotal := line.Subtotal
	line.BasePrice = authoritative.UnitPrice.Sub(line.ExtrasTotal())
	line.Reprice()

	logger.Info().
		Int64("product_id", line.ProductID).
		Str("old_subtotal", oldSubtotal.String()).
		Str("new_subtotal", line.Subtotal.String()).
		Msg("corrected drifted cart line price")
	return line, true
}

func (r *Reconciler) evaluateLine(calc *pricing.Calculator, line Line) (pricing.Result, bool) {
	if !line.Customization.Split {
		result, err := calc.Evaluate(pricing.Request{
			ProductID: line.ProductID,
			SizeID:    line.Customization.SizeID,
			Extras:    extrasForHalf(line.Customization.Added, 0),
			Quantity:  line.Quantity,
		})
		if err != nil {
			logger.Warn().Err(err).Int64("product_id", line.ProductID).Msg("cart line not evaluable, leaving untouched")
			return pricing.Result{}, false
		}
		return result, true
	}

	if line.Customization.SecondProduct == nil {
		logger.Warn().
			Int64("product_id", line.ProductID).
			Msg("split line has no second product snapshot, leaving untouched")
		return pricing.Result{}, false
	}

	split, err := calc.ComposeSplit(pricing.SplitRequest{
		First: pricing.SplitHalf{
			ProductID: line.ProductID,
			SizeID:    line.Customization.SizeID,
			Extras:    extrasForHalf(line.Customization.Added, 1),
		},
		Second: pricing.SplitHalf{
			ProductID: line.Customization.SecondProduct.ProductID,
			SizeID:    line.Customization.SecondProduct.SizeID,
			Extras:    extrasForHalf(line.Customization.Added, 2),
		},
		Quantity: line.Quantity,
	})
	if err != nil {
		logger.Warn().Err(err).Int64("product_id", line.ProductID).Msg("split line not evaluable, leaving untouched")
		return pricing.Result{}, false
	}
	return pricing.Result{UnitPrice: split.UnitPrice, Subtotal: split.Subtotal}, true
}

func extrasForHalf(added []AddedIngredient, halfIndex int) []pricing.ExtraSelection {
	var extras []pricing.ExtraSelection
	for _, a := range added {
		if a.HalfIndex != halfIndex {
			continue
		}
		extras = append(extras, pricing.ExtraSelection{
			IngredientID: a.IngredientID,
			Quantity:     a.Quantity,
		})
	}
	return extras
}

func collectProductIDs(lines []Line) []int64 {
	seen := make(map[int64]struct{})
	var ids []int64
	add := func(id int64) {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	for _, line := range lines {
		add(line.ProductID)
		if line.Customization.SecondProduct != nil {
			add(line.Customization.SecondProduct.ProductID)
		}
	}
	return ids
}

func collectIngredientIDs(lines []Line) []int64 {
	seen := make(map[int64]struct{})
	var ids []int64
	for _, line := range lines {
		for _, a := range line.Customization.Added {
			if _, ok := seen[a.IngredientID]; !ok {
				seen[a.IngredientID] = struct{}{}
				ids = append(ids, a.IngredientID)
			}
		}
	}
	return ids
}
