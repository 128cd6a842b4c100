package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"vittoria-system/internal/cart"
	"vittoria-system/internal/catalog"
	"vittoria-system/internal/events"
)

type stubSource struct {
	items       []catalog.MenuItem
	ingredients []catalog.Ingredient
}

func (s *stubSource) FetchMenuItems(_ context.Context, _ uuid.UUID, ids []int64) ([]catalog.MenuItem, error) {
	if ids == nil {
		return s.items, nil
	}
	var out []catalog.MenuItem
	for _, it := range s.items {
		for _, id := range ids {
			if it.ID == id {
				out = append(out, it)
				break
			}
		}
	}
	return out, nil
}

func (s *stubSource) FetchSizeAssignments(_ context.Context, _ uuid.UUID, _ int64) ([]catalog.SizeAssignment, error) {
	return nil, nil
}

func (s *stubSource) FetchIngredients(_ context.Context, _ uuid.UUID, ids []int64) ([]catalog.Ingredient, error) {
	if ids == nil {
		return s.ingredients, nil
	}
	var out []catalog.Ingredient
	for _, ing := range s.ingredients {
		for _, id := range ids {
			if ing.ID == id {
				out = append(out, ing)
				break
			}
		}
	}
	return out, nil
}

func (s *stubSource) FetchRecommendedIngredients(_ context.Context, _ uuid.UUID, _ int64) ([]int64, error) {
	return nil, nil
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func tenantCatalog() *stubSource {
	return &stubSource{
		items: []catalog.MenuItem{
			{ID: 1, Name: "Margherita", Price: dec("8.00"), Available: true, Active: true},
			{ID: 8, Name: "Capricciosa", Price: dec("8.00"), Available: true, Active: true},
		},
		ingredients: []catalog.Ingredient{
			{ID: 5, Name: "Extra Cheese", UnitPrice: dec("1.25"), Active: true},
		},
	}
}

func testRouter(source catalog.Source) *gin.Engine {
	gin.SetMode(gin.TestMode)
	orgID := uuid.New()
	router := gin.New()
	router.Use(func(c *gin.Context) {
		c.Set("org_id", orgID)
		c.Next()
	})

	publisher := events.NewPublisher(nil)
	pricingHandler := NewPricingHTTPHandler(source, publisher)
	cartHandler := NewCartHTTPHandler(cart.NewGuard(cart.NewMemoryKV(), source, publisher))

	router.POST("/pricing/evaluate", pricingHandler.Evaluate)
	router.GET("/cart", cartHandler.GetCart)
	router.POST("/cart/items", cartHandler.AddItem)
	return router
}

func postJSON(t *testing.T, router *gin.Engine, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestEvaluateEndpointComputesPrice(t *testing.T) {
	router := testRouter(tenantCatalog())

	rec := postJSON(t, router, "/pricing/evaluate", gin.H{
		"product_id": 1,
		"extras":     []gin.H{{"ingredient_id": 5, "quantity": 2}},
		"quantity":   2,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Success bool `json:"success"`
		Data    struct {
			UnitPrice decimal.Decimal `json:"unit_price"`
			Subtotal  decimal.Decimal `json:"subtotal"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.True(t, resp.Success)
	require.True(t, resp.Data.UnitPrice.Equal(dec("10.50")), "unit price %s", resp.Data.UnitPrice)
	require.True(t, resp.Data.Subtotal.Equal(dec("21.00")), "subtotal %s", resp.Data.Subtotal)
}

func TestEvaluateEndpointRejectsForeignProduct(t *testing.T) {
	router := testRouter(tenantCatalog())

	rec := postJSON(t, router, "/pricing/evaluate", gin.H{
		"product_id": 999,
		"quantity":   1,
	})
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestEvaluateEndpointRejectsForeignIngredient(t *testing.T) {
	router := testRouter(tenantCatalog())

	rec := postJSON(t, router, "/pricing/evaluate", gin.H{
		"product_id": 1,
		"extras":     []gin.H{{"ingredient_id": 999, "quantity": 1}},
		"quantity":   1,
	})
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestEvaluateEndpointRejectsMissingQuantity(t *testing.T) {
	router := testRouter(tenantCatalog())

	rec := postJSON(t, router, "/pricing/evaluate", gin.H{"product_id": 1})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCartEndpointsAddAndList(t *testing.T) {
	router := testRouter(tenantCatalog())

	rec := postJSON(t, router, "/cart/items", gin.H{
		"product_id": 1,
		"extras":     []gin.H{{"ingredient_id": 5, "quantity": 1}},
		"quantity":   2,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/cart", nil)
	getRec := httptest.NewRecorder()
	router.ServeHTTP(getRec, req)
	require.Equal(t, http.StatusOK, getRec.Code)

	var resp struct {
		Data []cart.Line `json:"data"`
	}
	require.NoError(t, json.Unmarshal(getRec.Body.Bytes(), &resp))
	require.Len(t, resp.Data, 1)
	require.Equal(t, 2, resp.Data[0].Quantity)
	require.True(t, resp.Data[0].Subtotal.Equal(dec("18.50")), "subtotal %s", resp.Data[0].Subtotal)
}
