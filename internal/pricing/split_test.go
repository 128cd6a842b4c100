package pricing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestComposeSplitAveragesAndRoundsUp(t *testing.T) {
	calc := NewCalculator(testSnapshot())

	// Funghi 6.00 + Olives 1.50 = 7.50; Capricciosa 8.00.
	// Average 7.75 rounds up to 8.00.
	result, err := calc.ComposeSplit(SplitRequest{
		First: SplitHalf{
			ProductID: 7,
			Extras:    []ExtraSelection{{IngredientID: 9, Quantity: 1}},
		},
		Second:   SplitHalf{ProductID: 8},
		Quantity: 1,
	})
	require.NoError(t, err)

	require.Equal(t, "Funghi + Capricciosa (Split)", result.Name)
	require.True(t, result.UnitPrice.Equal(dec("8.00")), "unit price %s", result.UnitPrice)
	require.True(t, result.Subtotal.Equal(dec("8.00")), "subtotal %s", result.Subtotal)

	// The olives are stored at half price with their provenance half.
	require.Len(t, result.Extras, 1)
	require.Equal(t, int64(9), result.Extras[0].IngredientID)
	require.Equal(t, 1, result.Extras[0].HalfIndex)
	require.Equal(t, "Olives (Funghi)", result.Extras[0].Name)
	require.True(t, result.Extras[0].UnitPrice.Equal(dec("0.75")), "extra unit price %s", result.Extras[0].UnitPrice)

	// Synthetic base backs out the halved extras from the rounded total.
	require.True(t, result.BasePrice.Equal(dec("7.25")), "base price %s", result.BasePrice)
}

func TestComposeSplitBaseAndExtrasReproduceTotal(t *testing.T) {
	calc := NewCalculator(testSnapshot())

	result, err := calc.ComposeSplit(SplitRequest{
		First: SplitHalf{
			ProductID: 1,
			SizeID:    int64Ptr(20),
			Extras:    []ExtraSelection{{IngredientID: 5, Quantity: 2}},
		},
		Second: SplitHalf{
			ProductID: 8,
			Extras:    []ExtraSelection{{IngredientID: 9, Quantity: 1}},
		},
		Quantity: 2,
	})
	require.NoError(t, err)

	// Reapplying the generic line formula must land exactly on the
	// composed total.
	extras := decimal.Zero
	for _, e := range result.Extras {
		extras = extras.Add(e.UnitPrice.Mul(decimal.NewFromInt(int64(e.Quantity))))
	}
	require.True(t, result.BasePrice.Add(extras).Equal(result.UnitPrice))
	require.True(t, result.Subtotal.Equal(result.UnitPrice.Mul(decimal.NewFromInt(2))))
}

func TestRoundUpToHalfStep(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"7.75", "8.00"},
		{"7.50", "7.50"},
		{"7.51", "8.00"},
		{"7.25", "7.50"},
		{"8.00", "8.00"},
		{"0.01", "0.50"},
	}

	for _, tc := range cases {
		got := roundUpToHalfStep(dec(tc.in))
		require.True(t, got.Equal(dec(tc.want)), "round(%s) = %s, want %s", tc.in, got, tc.want)

		// Never rounds down, always lands on a 0.50 step, never
		// overshoots by a full step.
		require.True(t, got.GreaterThanOrEqual(dec(tc.in)))
		require.True(t, got.Mul(two).Equal(got.Mul(two).Floor()))
		require.True(t, got.Sub(dec(tc.in)).LessThan(dec("0.50")))
	}
}

func TestComposeSplitPrecomputedTotal(t *testing.T) {
	calc := NewCalculator(testSnapshot())

	total := dec("9.00")
	result, err := calc.ComposeSplit(SplitRequest{
		First: SplitHalf{
			ProductID: 7,
			Extras:    []ExtraSelection{{IngredientID: 9, Quantity: 1}},
		},
		Second:           SplitHalf{ProductID: 8},
		Quantity:         1,
		PrecomputedTotal: &total,
	})
	require.NoError(t, err)

	require.True(t, result.UnitPrice.Equal(dec("9.00")), "unit price %s", result.UnitPrice)
	require.True(t, result.BasePrice.Equal(dec("8.25")), "base price %s", result.BasePrice)
}

func TestComposeSplitUnknownProduct(t *testing.T) {
	calc := NewCalculator(testSnapshot())

	_, err := calc.ComposeSplit(SplitRequest{
		First:    SplitHalf{ProductID: 7},
		Second:   SplitHalf{ProductID: 999},
		Quantity: 1,
	})
	require.ErrorIs(t, err, ErrProductNotFound)
}

func TestComposeSplitRejectsNonPositiveQuantity(t *testing.T) {
	calc := NewCalculator(testSnapshot())

	_, err := calc.ComposeSplit(SplitRequest{
		First:    SplitHalf{ProductID: 7},
		Second:   SplitHalf{ProductID: 8},
		Quantity: 0,
	})
	require.ErrorIs(t, err, ErrInvalidQuantity)
}
