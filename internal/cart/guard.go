package cart

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"vittoria-system/internal/catalog"
	"vittoria-system/internal/events"
	"vittoria-system/internal/pricing"
)

const (
	cartKeyPrefix    = "cart:"
	anonymousCartKey = "cart:anonymous"
	legacyCartKey    = "cart"
)

// ErrTenantSwitched is returned when an operation began under one tenant and
// the session moved to another before the operation could commit. The caller
// retries under the new tenant; the stale mutation is never applied.
var ErrTenantSwitched = errors.New("tenant switched during operation")

// CartKey namespaces the persisted cart per tenant. The no-tenant namespace
// is its own key and is never shared with a real tenant's cart.
func CartKey(orgID uuid.UUID) string {
	if orgID == uuid.Nil {
		return anonymousCartKey
	}
	return cartKeyPrefix + orgID.String()
}

// Guard owns the active tenant context for one cart session. Every operation
// carries the tenant id it was authenticated for and uses that value
// throughout; the guard never substitutes its own current tenant for it. The
// epoch counter pairs with that: a load or mutation that began under tenant A
// is dropped, not applied, if the session switches to tenant B before it
// completes.
type Guard struct {
	mu         sync.Mutex
	kv         KV
	source     catalog.Source
	reconciler *Reconciler
	publisher  *events.Publisher

	epoch uint64
	orgID uuid.UUID
	store *Store // nil while the active tenant's cart is still loading
}

func NewGuard(kv KV, source catalog.Source, publisher *events.Publisher) *Guard {
	return &Guard{
		kv:         kv,
		source:     source,
		reconciler: NewReconciler(source),
		publisher:  publisher,
		store:      NewStore(kv, anonymousCartKey),
	}
}

func (g *Guard) ActiveTenant() uuid.UUID {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.orgID
}

// Snapshot returns the lines of the given tenant's cart, or nothing when the
// session has already moved to another tenant.
func (g *Guard) Snapshot(orgID uuid.UUID) []Line {
	g.mu.Lock()
	active, store := g.orgID, g.store
	g.mu.Unlock()
	if active != orgID || store == nil {
		return nil
	}
	return store.Snapshot()
}

// begin pins an operation to the tenant it was authenticated for and records
// the epoch it started under.
func (g *Guard) begin(orgID uuid.UUID) (uint64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.orgID != orgID {
		return 0, ErrTenantSwitched
	}
	return g.epoch, nil
}

// commitStore resolves the store an operation begun at the given epoch may
// write to. If the switch-time load has not landed yet, the operation loads
// its own view of the tenant's key so the write is neither blocked nor lost
// to the pending swap. A changed epoch rejects the commit.
func (g *Guard) commitStore(ctx context.Context, orgID uuid.UUID, epoch uint64) (*Store, error) {
	g.mu.Lock()
	if g.epoch != epoch {
		g.mu.Unlock()
		return nil, ErrTenantSwitched
	}
	if g.store != nil {
		store := g.store
		g.mu.Unlock()
		return store, nil
	}
	g.mu.Unlock()

	own := NewStore(g.kv, CartKey(orgID))
	if err := own.Load(ctx); err != nil {
		return nil, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.epoch != epoch {
		return nil, ErrTenantSwitched
	}
	if g.store == nil {
		g.store = own
	}
	return g.store, nil
}

// Switch discards the in-memory cart, loads the persisted cart for the new
// tenant and reconciles it against that tenant's catalog before exposing it.
// If another switch happens while the load is in flight, the stale result is
// dropped.
func (g *Guard) Switch(ctx context.Context, orgID uuid.UUID) (ReconcileResult, error) {
	g.mu.Lock()
	if g.orgID == orgID && g.epoch > 0 {
		g.mu.Unlock()
		return ReconcileResult{}, nil
	}
	g.epoch++
	epoch := g.epoch
	key := CartKey(orgID)
	// expose an empty cart immediately: nothing from the previous tenant may
	// stay visible, even transiently
	g.orgID = orgID
	g.store = nil
	g.mu.Unlock()

	g.migrateLegacyKey(ctx, key)

	fresh := NewStore(g.kv, key)
	if err := fresh.Load(ctx); err != nil {
		logger.Warn().Err(err).Str("key", key).Msg("cart load failed on tenant switch")
	}

	var result ReconcileResult
	if orgID != uuid.Nil {
		var err error
		result, err = g.reconciler.Run(ctx, orgID, fresh)
		if err != nil {
			// fail-safe: expose the loaded cart as-is rather than an empty one
			logger.Warn().Err(err).Str("org_id", orgID.String()).Msg("reconciliation failed on tenant switch")
		}
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.epoch != epoch {
		logger.Info().
			Str("org_id", orgID.String()).
			Msg("discarding stale cart load, tenant switched mid-flight")
		return ReconcileResult{}, nil
	}
	// a mutation that committed during the load already holds a newer view of
	// the same key; keep it
	if g.store == nil {
		g.store = fresh
	}
	return result, nil
}

// migrateLegacyKey moves a cart persisted under the old non-namespaced key
// into the tenant's namespace. The legacy key is deleted only once its
// content is known to live under the tenant key.
func (g *Guard) migrateLegacyKey(ctx context.Context, key string) {
	legacy, err := g.kv.Get(ctx, legacyCartKey)
	if err != nil {
		return
	}

	_, err = g.kv.Get(ctx, key)
	switch {
	case err == nil:
		// the tenant already has its own cart, the legacy copy is obsolete
	case errors.Is(err, ErrKeyNotFound):
		if err := g.kv.Set(ctx, key, legacy); err != nil {
			logger.Warn().Err(err).Str("key", key).Msg("legacy cart migration failed")
			return
		}
	default:
		logger.Warn().Err(err).Str("key", key).Msg("cannot verify tenant cart, keeping legacy key")
		return
	}

	if err := g.kv.Remove(ctx, legacyCartKey); err != nil {
		logger.Warn().Err(err).Msg("failed to delete legacy cart key")
		return
	}
	logger.Info().Str("key", key).Msg("migrated legacy cart key")
}

type AddRequest struct {
	ProductID int64
	SizeID    *int64
	Extras    []pricing.ExtraSelection
	Removed   []RemovedIngredient
	Note      string
	Quantity  int
}

// Add prices the product against the given tenant's catalog with a fresh
// calculator evaluation and appends (or merges) the resulting line.
func (g *Guard) Add(ctx context.Context, orgID uuid.UUID, req AddRequest) (Line, error) {
	epoch, err := g.begin(orgID)
	if err != nil {
		return Line{}, err
	}

	snap, err := catalog.Load(ctx, g.source, orgID,
		[]int64{req.ProductID},
		ingredientIDsForAdd(req.Extras, req.Removed))
	if err != nil {
		return Line{}, fmt.Errorf("catalog.Load: %w", err)
	}

	calc := pricing.NewCalculator(snap)
	result, err := calc.Evaluate(pricing.Request{
		ProductID: req.ProductID,
		SizeID:    req.SizeID,
		Extras:    req.Extras,
		Quantity:  req.Quantity,
	})
	if err != nil {
		return Line{}, err
	}

	item, ok := snap.MenuItem(req.ProductID)
	if !ok {
		return Line{}, fmt.Errorf("product %d: %w", req.ProductID, pricing.ErrProductNotFound)
	}

	added := resolveAdded(snap, req.SizeID, req.Extras)
	line := Line{
		ProductID:    req.ProductID,
		ProductName:  item.Name,
		ProductPrice: item.EffectivePrice(),
		BasePrice:    result.UnitPrice.Sub(addedTotal(added)),
		Quantity:     req.Quantity,
		Customization: Customization{
			SizeID:   req.SizeID,
			SizeName: sizeName(snap, req.ProductID, req.SizeID),
			Added:    added,
			Removed:  resolveRemoved(snap, req.Removed),
			Note:     req.Note,
		},
		Subtotal: result.Subtotal,
	}

	store, err := g.commitStore(ctx, orgID, epoch)
	if err != nil {
		return Line{}, err
	}
	if _, err := store.Add(ctx, line); err != nil {
		return Line{}, err
	}
	return line, nil
}

type AddSplitRequest struct {
	First            pricing.SplitHalf
	Second           pricing.SplitHalf
	Removed          []RemovedIngredient
	Note             string
	Quantity         int
	PrecomputedTotal *decimal.Decimal
}

// AddSplit composes a half-and-half line. The synthesized line reuses the
// first product's id so existing storage and foreign keys keep working.
func (g *Guard) AddSplit(ctx context.Context, orgID uuid.UUID, req AddSplitRequest) (Line, error) {
	epoch, err := g.begin(orgID)
	if err != nil {
		return Line{}, err
	}

	ingredientIDs := ingredientIDsForAdd(req.First.Extras, req.Removed)
	ingredientIDs = append(ingredientIDs, ingredientIDsForAdd(req.Second.Extras, nil)...)

	snap, err := catalog.Load(ctx, g.source, orgID,
		[]int64{req.First.ProductID, req.Second.ProductID},
		ingredientIDs)
	if err != nil {
		return Line{}, fmt.Errorf("catalog.Load: %w", err)
	}

	calc := pricing.NewCalculator(snap)
	split, err := calc.ComposeSplit(pricing.SplitRequest{
		First:            req.First,
		Second:           req.Second,
		Quantity:         req.Quantity,
		PrecomputedTotal: req.PrecomputedTotal,
	})
	if err != nil {
		return Line{}, err
	}

	firstItem, _ := snap.MenuItem(req.First.ProductID)
	secondItem, _ := snap.MenuItem(req.Second.ProductID)

	added := make([]AddedIngredient, 0, len(split.Extras))
	for _, e := range split.Extras {
		added = append(added, AddedIngredient{
			IngredientID: e.IngredientID,
			Name:         e.Name,
			UnitPrice:    e.UnitPrice,
			Quantity:     e.Quantity,
			HalfIndex:    e.HalfIndex,
		})
	}

	line := Line{
		ProductID:    req.First.ProductID,
		ProductName:  split.Name,
		ProductPrice: firstItem.EffectivePrice(),
		BasePrice:    split.BasePrice,
		Quantity:     req.Quantity,
		Customization: Customization{
			SizeID:   req.First.SizeID,
			SizeName: sizeName(snap, req.First.ProductID, req.First.SizeID),
			Added:    added,
			Removed:  resolveRemoved(snap, req.Removed),
			Note:     req.Note,
			Split:    true,
			SecondProduct: &ProductRef{
				ProductID: req.Second.ProductID,
				Name:      secondItem.Name,
				SizeID:    req.Second.SizeID,
			},
		},
		Subtotal: split.Subtotal,
	}

	store, err := g.commitStore(ctx, orgID, epoch)
	if err != nil {
		return Line{}, err
	}
	if _, err := store.Add(ctx, line); err != nil {
		return Line{}, err
	}
	return line, nil
}

func (g *Guard) UpdateQuantity(ctx context.Context, orgID uuid.UUID, index, quantity int) error {
	store, err := g.beginCommit(ctx, orgID)
	if err != nil {
		return err
	}
	return store.UpdateQuantity(ctx, index, quantity)
}

func (g *Guard) UpdateNote(ctx context.Context, orgID uuid.UUID, index int, note string) error {
	store, err := g.beginCommit(ctx, orgID)
	if err != nil {
		return err
	}
	return store.UpdateNote(ctx, index, note)
}

func (g *Guard) RemoveAt(ctx context.Context, orgID uuid.UUID, index int) error {
	store, err := g.beginCommit(ctx, orgID)
	if err != nil {
		return err
	}
	return store.RemoveAt(ctx, index)
}

func (g *Guard) Clear(ctx context.Context, orgID uuid.UUID) error {
	store, err := g.beginCommit(ctx, orgID)
	if err != nil {
		return err
	}
	if err := store.Clear(ctx); err != nil {
		return err
	}
	g.publisher.Publish(ctx, events.EventCartCleared, orgID.String(), nil)
	return nil
}

// Reconcile revalidates the given tenant's cart against its catalog. The
// anonymous cart has no catalog to validate against and is left alone.
func (g *Guard) Reconcile(ctx context.Context, orgID uuid.UUID) (ReconcileResult, error) {
	if orgID == uuid.Nil {
		return ReconcileResult{}, nil
	}

	store, err := g.beginCommit(ctx, orgID)
	if err != nil {
		return ReconcileResult{}, err
	}

	result, err := g.reconciler.Run(ctx, orgID, store)
	if err != nil {
		return result, err
	}
	if result.CorrectedCount > 0 || result.RemovedCount > 0 {
		g.publisher.Publish(ctx, events.EventCartReconciled, orgID.String(), result)
	}
	return result, nil
}

// beginCommit is begin + commitStore for mutations that do no catalog work in
// between.
func (g *Guard) beginCommit(ctx context.Context, orgID uuid.UUID) (*Store, error) {
	epoch, err := g.begin(orgID)
	if err != nil {
		return nil, err
	}
	return g.commitStore(ctx, orgID, epoch)
}

func ingredientIDsForAdd(extras []pricing.ExtraSelection, removed []RemovedIngredient) []int64 {
	ids := make([]int64, 0, len(extras)+len(removed))
	for _, e := range extras {
		ids = append(ids, e.IngredientID)
	}
	for _, r := range removed {
		ids = append(ids, r.IngredientID)
	}
	return ids
}

func resolveAdded(snap *catalog.Snapshot, sizeID *int64, extras []pricing.ExtraSelection) []AddedIngredient {
	var added []AddedIngredient
	for _, e := range extras {
		if e.Quantity < 1 {
			continue
		}
		ingredient, ok := snap.Ingredient(e.IngredientID)
		if !ok {
			logger.Warn().Int64("ingredient_id", e.IngredientID).Msg("skipping unknown ingredient on add")
			continue
		}
		added = append(added, AddedIngredient{
			IngredientID: e.IngredientID,
			Name:         ingredient.Name,
			UnitPrice:    ingredient.UnitPriceForSize(sizeID),
			Quantity:     e.Quantity,
		})
	}
	return added
}

func resolveRemoved(snap *catalog.Snapshot, removed []RemovedIngredient) []RemovedIngredient {
	out := make([]RemovedIngredient, 0, len(removed))
	for _, r := range removed {
		if r.Name == "" {
			if ingredient, ok := snap.Ingredient(r.IngredientID); ok {
				r.Name = ingredient.Name
			}
		}
		out = append(out, r)
	}
	return out
}

func sizeName(snap *catalog.Snapshot, productID int64, sizeID *int64) string {
	if sizeID == nil {
		return ""
	}
	if assignment, ok := snap.SizeAssignment(productID, *sizeID); ok {
		return assignment.SizeName
	}
	return ""
}

func addedTotal(added []AddedIngredient) decimal.Decimal {
	total := decimal.Zero
	for _, a := range added {
		total = total.Add(a.UnitPrice.Mul(decimal.NewFromInt(int64(a.Quantity))))
	}
	return total
}
