package cart

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"vittoria-system/internal/catalog"
)

// fakeSource serves a fixed catalog, shared by every tenant, and mirrors the
// gorm source's fail-closed behavior for a missing tenant id. Setting err
// makes every fetch fail.
type fakeSource struct {
	items       []catalog.MenuItem
	assignments map[int64][]catalog.SizeAssignment
	ingredients []catalog.Ingredient
	recommended map[int64][]int64
	err         error

	menuFetches int
}

func (f *fakeSource) FetchMenuItems(_ context.Context, orgID uuid.UUID, ids []int64) ([]catalog.MenuItem, error) {
	f.menuFetches++
	if f.err != nil {
		return nil, f.err
	}
	if orgID == uuid.Nil {
		return nil, nil
	}
	if ids == nil {
		return f.items, nil
	}
	var out []catalog.MenuItem
	for _, it := range f.items {
		for _, id := range ids {
			if it.ID == id {
				out = append(out, it)
				break
			}
		}
	}
	return out, nil
}

func (f *fakeSource) FetchSizeAssignments(_ context.Context, _ uuid.UUID, productID int64) ([]catalog.SizeAssignment, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.assignments[productID], nil
}

func (f *fakeSource) FetchIngredients(_ context.Context, orgID uuid.UUID, ids []int64) ([]catalog.Ingredient, error) {
	if f.err != nil {
		return nil, f.err
	}
	if orgID == uuid.Nil {
		return nil, nil
	}
	if ids == nil {
		return f.ingredients, nil
	}
	var out []catalog.Ingredient
	for _, ing := range f.ingredients {
		for _, id := range ids {
			if ing.ID == id {
				out = append(out, ing)
				break
			}
		}
	}
	return out, nil
}

func (f *fakeSource) FetchRecommendedIngredients(_ context.Context, _ uuid.UUID, productID int64) ([]int64, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.recommended[productID], nil
}

func testCatalog() *fakeSource {
	return &fakeSource{
		items: []catalog.MenuItem{
			{ID: 1, Name: "Margherita", Price: dec("8.00"), Available: true, Active: true},
			{ID: 7, Name: "Funghi", Price: dec("6.00"), Available: true, Active: true},
			{ID: 8, Name: "Capricciosa", Price: dec("8.00"), Available: true, Active: true},
		},
		ingredients: []catalog.Ingredient{
			{ID: 5, Name: "Extra Cheese", UnitPrice: dec("1.25"), Active: true},
			{ID: 9, Name: "Olives", UnitPrice: dec("1.50"), Active: true},
		},
	}
}

func loadedStore(t *testing.T, lines ...Line) *Store {
	t.Helper()
	store := NewStore(NewMemoryKV(), "cart:test")
	require.NoError(t, store.SetLines(context.Background(), lines))
	return store
}

func TestReconcileCorrectsDriftedExtraPrice(t *testing.T) {
	ctx := context.Background()
	source := testCatalog()

	// The cart was built when olives cost 1.50; the catalog now says 2.00.
	line := Line{
		ProductID:    7,
		ProductName:  "Funghi",
		ProductPrice: dec("6.00"),
		BasePrice:    dec("6.00"),
		Quantity:     1,
		Customization: Customization{
			Added: []AddedIngredient{
				{IngredientID: 9, Name: "Olives", UnitPrice: dec("1.50"), Quantity: 1},
			},
		},
	}
	line.Reprice()
	source.ingredients[1].UnitPrice = dec("2.00")

	store := loadedStore(t, line)
	reconciler := NewReconciler(source)

	result, err := reconciler.Run(ctx, uuid.New(), store)
	require.NoError(t, err)
	require.Equal(t, 1, result.CorrectedCount)
	require.Equal(t, 0, result.RemovedCount)

	got := store.Snapshot()[0]
	// Authoritative unit is 8.00; stored extras stay at 1.50 and the base
	// absorbs the difference.
	require.True(t, got.BasePrice.Equal(dec("6.50")), "base price %s", got.BasePrice)
	require.True(t, got.Subtotal.Equal(dec("8.00")), "subtotal %s", got.Subtotal)

	// A second run against the same catalog changes nothing.
	again, err := reconciler.Run(ctx, uuid.New(), store)
	require.NoError(t, err)
	require.Equal(t, 0, again.CorrectedCount)
	require.Equal(t, 0, again.RemovedCount)
}

func TestReconcileRemovesVanishedProduct(t *testing.T) {
	ctx := context.Background()

	line := sampleLine(999, "", 1)
	store := loadedStore(t, line, sampleLine(1, "", 1))

	result, err := NewReconciler(testCatalog()).Run(ctx, uuid.New(), store)
	require.NoError(t, err)
	require.Equal(t, 1, result.RemovedCount)
	require.Equal(t, 1, store.Len())
	require.Equal(t, int64(1), store.Snapshot()[0].ProductID)
}

func TestReconcileRemovesFullyDisabledProduct(t *testing.T) {
	ctx := context.Background()
	source := testCatalog()
	source.items[0].Available = false
	source.items[0].Active = false

	store := loadedStore(t, sampleLine(1, "", 1))

	result, err := NewReconciler(source).Run(ctx, uuid.New(), store)
	require.NoError(t, err)
	require.Equal(t, 1, result.RemovedCount)
	require.Equal(t, 0, store.Len())
}

func TestReconcileKeepsSoldOutButActiveProduct(t *testing.T) {
	ctx := context.Background()
	source := testCatalog()
	source.items[0].Available = false

	store := loadedStore(t, sampleLine(1, "", 1))

	result, err := NewReconciler(source).Run(ctx, uuid.New(), store)
	require.NoError(t, err)
	require.Equal(t, 0, result.RemovedCount)
	require.Equal(t, 1, store.Len())
}

func TestReconcileRefreshesDenormalizedNameAndPrice(t *testing.T) {
	ctx := context.Background()
	source := testCatalog()
	source.items[0].Name = "Margherita DOP"

	line := sampleLine(1, "", 1)
	line.Customization.Added = nil
	line.Reprice()
	store := loadedStore(t, line)

	_, err := NewReconciler(source).Run(ctx, uuid.New(), store)
	require.NoError(t, err)

	got := store.Snapshot()[0]
	require.Equal(t, "Margherita DOP", got.ProductName)
	require.True(t, got.ProductPrice.Equal(dec("8.00")))
}

func TestReconcileFetchErrorLeavesCartUnchanged(t *testing.T) {
	ctx := context.Background()
	source := testCatalog()
	source.err = errors.New("connection refused")

	line := sampleLine(1, "", 2)
	store := loadedStore(t, line)

	result, err := NewReconciler(source).Run(ctx, uuid.New(), store)
	require.Error(t, err)
	require.Equal(t, 0, result.CorrectedCount)
	require.Equal(t, 0, result.RemovedCount)

	require.Equal(t, 1, store.Len())
	require.True(t, store.Snapshot()[0].Subtotal.Equal(line.Subtotal))
}

func TestReconcileEmptyCartSkipsFetch(t *testing.T) {
	source := testCatalog()
	source.err = errors.New("connection refused")

	store := loadedStore(t)

	result, err := NewReconciler(source).Run(context.Background(), uuid.New(), store)
	require.NoError(t, err)
	require.Equal(t, ReconcileResult{}, result)
	require.Equal(t, 0, source.menuFetches)
}

func TestReconcileLeavesUnmappableSplitLineUntouched(t *testing.T) {
	ctx := context.Background()

	// A split line persisted before the second-product snapshot existed.
	line := Line{
		ProductID:    7,
		ProductName:  "Funghi + Capricciosa (Split)",
		ProductPrice: dec("6.00"),
		BasePrice:    dec("7.25"),
		Quantity:     1,
		Customization: Customization{
			Split: true,
			Added: []AddedIngredient{
				{IngredientID: 9, Name: "Olives (Funghi)", UnitPrice: dec("0.75"), Quantity: 1, HalfIndex: 1},
			},
		},
	}
	line.Reprice()
	store := loadedStore(t, line)

	result, err := NewReconciler(testCatalog()).Run(ctx, uuid.New(), store)
	require.NoError(t, err)
	require.Equal(t, 0, result.CorrectedCount)

	got := store.Snapshot()[0]
	require.True(t, got.Subtotal.Equal(dec("8.00")), "subtotal %s", got.Subtotal)
	// The composite display name survives even though the catalog spells
	// the first half differently.
	require.Equal(t, "Funghi + Capricciosa (Split)", got.ProductName)
}

func TestReconcileRepricesSplitLineFromBothHalves(t *testing.T) {
	ctx := context.Background()
	source := testCatalog()

	// Built when Capricciosa cost 8.00: total was (7.50 + 8.00) / 2 = 7.75,
	// rounded up to 8.00.
	line := Line{
		ProductID:    7,
		ProductName:  "Funghi + Capricciosa (Split)",
		ProductPrice: dec("6.00"),
		BasePrice:    dec("7.25"),
		Quantity:     1,
		Customization: Customization{
			Split: true,
			Added: []AddedIngredient{
				{IngredientID: 9, Name: "Olives (Funghi)", UnitPrice: dec("0.75"), Quantity: 1, HalfIndex: 1},
			},
			SecondProduct: &ProductRef{ProductID: 8, Name: "Capricciosa"},
		},
	}
	line.Reprice()

	// Capricciosa goes up to 10.00: (7.50 + 10.00) / 2 = 8.75, rounds to 9.00.
	source.items[2].Price = dec("10.00")
	store := loadedStore(t, line)

	result, err := NewReconciler(source).Run(ctx, uuid.New(), store)
	require.NoError(t, err)
	require.Equal(t, 1, result.CorrectedCount)

	got := store.Snapshot()[0]
	require.True(t, got.Subtotal.Equal(dec("9.00")), "subtotal %s", got.Subtotal)
	require.True(t, got.BasePrice.Equal(dec("8.25")), "base price %s", got.BasePrice)
}
