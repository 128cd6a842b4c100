package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"vittoria-system/internal/cart"
	"vittoria-system/internal/catalog"
	"vittoria-system/internal/events"
	"vittoria-system/internal/pricing"
	"vittoria-system/internal/server/middleware"
)

func successResponse(message string, data interface{}) gin.H {
	return gin.H{
		"success": true,
		"message": message,
		"data":    data,
	}
}

func errorResponse(message string) gin.H {
	return gin.H{
		"success": false,
		"message": message,
	}
}

// Request structs
type ExtraInput struct {
	IngredientID int64 `json:"ingredient_id" binding:"required"`
	Quantity     int   `json:"quantity" binding:"required,min=1"`
}

type RemovedInput struct {
	IngredientID int64  `json:"ingredient_id" binding:"required"`
	Name         string `json:"name,omitempty"`
}

type SplitHalfInput struct {
	ProductID int64        `json:"product_id" binding:"required"`
	SizeID    *int64       `json:"size_id,omitempty"`
	Extras    []ExtraInput `json:"extras,omitempty"`
}

type EvaluateRequest struct {
	ProductID int64           `json:"product_id" binding:"required"`
	SizeID    *int64          `json:"size_id,omitempty"`
	Extras    []ExtraInput    `json:"extras,omitempty"`
	Quantity  int             `json:"quantity" binding:"required,min=1"`
	Split     *SplitHalfInput `json:"split,omitempty"`
}

type AddItemRequest struct {
	ProductID int64          `json:"product_id" binding:"required"`
	SizeID    *int64         `json:"size_id,omitempty"`
	Extras    []ExtraInput   `json:"extras,omitempty"`
	Removed   []RemovedInput `json:"removed,omitempty"`
	Note      string         `json:"note,omitempty"`
	Quantity  int            `json:"quantity" binding:"required,min=1"`
}

type AddSplitItemRequest struct {
	First            SplitHalfInput `json:"first" binding:"required"`
	Second           SplitHalfInput `json:"second" binding:"required"`
	Removed          []RemovedInput `json:"removed,omitempty"`
	Note             string         `json:"note,omitempty"`
	Quantity         int            `json:"quantity" binding:"required,min=1"`
	PrecomputedTotal *string        `json:"precomputed_total,omitempty"`
}

type UpdateQuantityRequest struct {
	Quantity *int `json:"quantity" binding:"required"`
}

type UpdateNoteRequest struct {
	Note string `json:"note"`
}

// --- Pricing ---

// PricingHTTPHandler serves the authoritative checkout-time recomputation.
// It runs the identical algorithm the client uses for optimistic display,
// which is what makes client tampering detectable.
type PricingHTTPHandler struct {
	source    catalog.Source
	publisher *events.Publisher
}

func NewPricingHTTPHandler(source catalog.Source, publisher *events.Publisher) *PricingHTTPHandler {
	return &PricingHTTPHandler{
		source:    source,
		publisher: publisher,
	}
}

func (h *PricingHTTPHandler) Evaluate(c *gin.Context) {
	var req EvaluateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("Invalid request: "+err.Error()))
		return
	}

	orgID := middleware.OrgID(c)
	ctx := c.Request.Context()

	productIDs := []int64{req.ProductID}
	ingredientIDs := extraIDs(req.Extras)
	if req.Split != nil {
		productIDs = append(productIDs, req.Split.ProductID)
		ingredientIDs = append(ingredientIDs, extraIDs(req.Split.Extras)...)
	}

	snap, err := catalog.Load(ctx, h.source, orgID, productIDs, ingredientIDs)
	if err != nil {
		c.JSON(http.StatusInternalServerError, errorResponse("Catalog unavailable"))
		return
	}

	// Reject ids that do not resolve inside the authenticated tenant's
	// catalog; this is the anti-tampering property of the server-side call.
	for _, id := range productIDs {
		if _, ok := snap.MenuItem(id); !ok {
			c.JSON(http.StatusForbidden, errorResponse("Product not in organization catalog"))
			return
		}
	}
	for _, id := range ingredientIDs {
		if _, ok := snap.Ingredient(id); !ok {
			c.JSON(http.StatusForbidden, errorResponse("Ingredient not in organization catalog"))
			return
		}
	}

	calc := pricing.NewCalculator(snap)

	var unitPrice, subtotal decimal.Decimal
	if req.Split != nil {
		result, err := calc.ComposeSplit(pricing.SplitRequest{
			First: pricing.SplitHalf{
				ProductID: req.ProductID,
				SizeID:    req.SizeID,
				Extras:    toExtraSelections(req.Extras),
			},
			Second: pricing.SplitHalf{
				ProductID: req.Split.ProductID,
				SizeID:    req.Split.SizeID,
				Extras:    toExtraSelections(req.Split.Extras),
			},
			Quantity: req.Quantity,
		})
		if err != nil {
			c.JSON(http.StatusUnprocessableEntity, errorResponse(err.Error()))
			return
		}
		unitPrice, subtotal = result.UnitPrice, result.Subtotal
	} else {
		result, err := calc.Evaluate(pricing.Request{
			ProductID: req.ProductID,
			SizeID:    req.SizeID,
			Extras:    toExtraSelections(req.Extras),
			Quantity:  req.Quantity,
		})
		if err != nil {
			c.JSON(http.StatusUnprocessableEntity, errorResponse(err.Error()))
			return
		}
		unitPrice, subtotal = result.UnitPrice, result.Subtotal
	}

	h.publisher.Publish(ctx, events.EventOrderPriced, orgID.String(), gin.H{
		"product_id": req.ProductID,
		"subtotal":   subtotal,
	})

	c.JSON(http.StatusOK, successResponse("Price evaluated", gin.H{
		"unit_price": unitPrice,
		"subtotal":   subtotal,
	}))
}

// --- Cart ---

type CartHTTPHandler struct {
	guard *cart.Guard
}

func NewCartHTTPHandler(guard *cart.Guard) *CartHTTPHandler {
	return &CartHTTPHandler{guard: guard}
}

// ensureTenant switches the guard to the tenant this request is
// authenticated for. The switch is a no-op when the tenant is unchanged.
// Every guard call that follows still carries the same org id, so a
// concurrent switch by another tenant rejects this request instead of
// landing its mutation in the wrong cart.
func (h *CartHTTPHandler) ensureTenant(c *gin.Context) bool {
	if _, err := h.guard.Switch(c.Request.Context(), middleware.OrgID(c)); err != nil {
		c.JSON(http.StatusInternalServerError, errorResponse("Failed to load cart for organization"))
		return false
	}
	return true
}

// respondMutationError maps guard errors to HTTP statuses. A tenant switch
// mid-request is a retryable conflict, not a validation failure.
func respondMutationError(c *gin.Context, err error) {
	if errors.Is(err, cart.ErrTenantSwitched) {
		c.JSON(http.StatusConflict, errorResponse("Organization changed during request, retry"))
		return
	}
	c.JSON(http.StatusUnprocessableEntity, errorResponse(err.Error()))
}

func (h *CartHTTPHandler) GetCart(c *gin.Context) {
	if !h.ensureTenant(c) {
		return
	}
	c.JSON(http.StatusOK, successResponse("Cart retrieved", h.guard.Snapshot(middleware.OrgID(c))))
}

func (h *CartHTTPHandler) AddItem(c *gin.Context) {
	var req AddItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("Invalid request: "+err.Error()))
		return
	}
	if !h.ensureTenant(c) {
		return
	}

	line, err := h.guard.Add(c.Request.Context(), middleware.OrgID(c), cart.AddRequest{
		ProductID: req.ProductID,
		SizeID:    req.SizeID,
		Extras:    toExtraSelections(req.Extras),
		Removed:   toRemoved(req.Removed),
		Note:      req.Note,
		Quantity:  req.Quantity,
	})
	if err != nil {
		respondMutationError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse("Item added to cart", line))
}

func (h *CartHTTPHandler) AddSplitItem(c *gin.Context) {
	var req AddSplitItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("Invalid request: "+err.Error()))
		return
	}
	if !h.ensureTenant(c) {
		return
	}

	var precomputed *decimal.Decimal
	if req.PrecomputedTotal != nil {
		parsed, err := decimal.NewFromString(*req.PrecomputedTotal)
		if err != nil {
			c.JSON(http.StatusBadRequest, errorResponse("Invalid precomputed_total format"))
			return
		}
		precomputed = &parsed
	}

	line, err := h.guard.AddSplit(c.Request.Context(), middleware.OrgID(c), cart.AddSplitRequest{
		First: pricing.SplitHalf{
			ProductID: req.First.ProductID,
			SizeID:    req.First.SizeID,
			Extras:    toExtraSelections(req.First.Extras),
		},
		Second: pricing.SplitHalf{
			ProductID: req.Second.ProductID,
			SizeID:    req.Second.SizeID,
			Extras:    toExtraSelections(req.Second.Extras),
		},
		Removed:          toRemoved(req.Removed),
		Note:             req.Note,
		Quantity:         req.Quantity,
		PrecomputedTotal: precomputed,
	})
	if err != nil {
		respondMutationError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse("Split item added to cart", line))
}

func (h *CartHTTPHandler) UpdateQuantity(c *gin.Context) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("Invalid line index"))
		return
	}

	var req UpdateQuantityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("Invalid request: "+err.Error()))
		return
	}
	if !h.ensureTenant(c) {
		return
	}

	if err := h.guard.UpdateQuantity(c.Request.Context(), middleware.OrgID(c), index, *req.Quantity); err != nil {
		if errors.Is(err, cart.ErrTenantSwitched) {
			respondMutationError(c, err)
			return
		}
		c.JSON(http.StatusNotFound, errorResponse(err.Error()))
		return
	}
	c.JSON(http.StatusOK, successResponse("Quantity updated", h.guard.Snapshot(middleware.OrgID(c))))
}

func (h *CartHTTPHandler) UpdateNote(c *gin.Context) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("Invalid line index"))
		return
	}

	var req UpdateNoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("Invalid request: "+err.Error()))
		return
	}
	if !h.ensureTenant(c) {
		return
	}

	if err := h.guard.UpdateNote(c.Request.Context(), middleware.OrgID(c), index, req.Note); err != nil {
		if errors.Is(err, cart.ErrTenantSwitched) {
			respondMutationError(c, err)
			return
		}
		c.JSON(http.StatusNotFound, errorResponse(err.Error()))
		return
	}
	c.JSON(http.StatusOK, successResponse("Note updated", h.guard.Snapshot(middleware.OrgID(c))))
}

func (h *CartHTTPHandler) RemoveItem(c *gin.Context) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("Invalid line index"))
		return
	}
	if !h.ensureTenant(c) {
		return
	}

	if err := h.guard.RemoveAt(c.Request.Context(), middleware.OrgID(c), index); err != nil {
		if errors.Is(err, cart.ErrTenantSwitched) {
			respondMutationError(c, err)
			return
		}
		c.JSON(http.StatusNotFound, errorResponse(err.Error()))
		return
	}
	c.JSON(http.StatusOK, successResponse("Item removed", h.guard.Snapshot(middleware.OrgID(c))))
}

func (h *CartHTTPHandler) ClearCart(c *gin.Context) {
	if !h.ensureTenant(c) {
		return
	}
	if err := h.guard.Clear(c.Request.Context(), middleware.OrgID(c)); err != nil {
		if errors.Is(err, cart.ErrTenantSwitched) {
			respondMutationError(c, err)
			return
		}
		c.JSON(http.StatusInternalServerError, errorResponse("Failed to clear cart"))
		return
	}
	c.JSON(http.StatusOK, successResponse("Cart cleared", nil))
}

func (h *CartHTTPHandler) Reconcile(c *gin.Context) {
	if !h.ensureTenant(c) {
		return
	}
	result, err := h.guard.Reconcile(c.Request.Context(), middleware.OrgID(c))
	if err != nil {
		if errors.Is(err, cart.ErrTenantSwitched) {
			respondMutationError(c, err)
			return
		}
		c.JSON(http.StatusServiceUnavailable, errorResponse("Catalog unavailable, cart left unchanged"))
		return
	}
	c.JSON(http.StatusOK, successResponse("Cart reconciled", result))
}

func (h *CartHTTPHandler) SwitchTenant(c *gin.Context) {
	orgID := middleware.OrgID(c)
	result, err := h.guard.Switch(c.Request.Context(), orgID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, errorResponse("Failed to switch organization"))
		return
	}
	c.JSON(http.StatusOK, successResponse("Organization cart loaded", gin.H{
		"reconciliation": result,
		"lines":          h.guard.Snapshot(orgID),
	}))
}

// --- Catalog ---

type CatalogHTTPHandler struct {
	source catalog.Source
	cache  *catalog.RecommendedCache
}

func NewCatalogHTTPHandler(source catalog.Source, cache *catalog.RecommendedCache) *CatalogHTTPHandler {
	return &CatalogHTTPHandler{
		source: source,
		cache:  cache,
	}
}

func (h *CatalogHTTPHandler) RecommendedIngredients(c *gin.Context) {
	productID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("Invalid product ID"))
		return
	}

	orgID := middleware.OrgID(c)
	ctx := c.Request.Context()

	ids, err := h.cache.Recommended(ctx, orgID, productID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, errorResponse("Failed to fetch recommendations"))
		return
	}
	if len(ids) == 0 {
		c.JSON(http.StatusOK, successResponse("No recommendations", []catalog.Ingredient{}))
		return
	}

	ingredients, err := h.source.FetchIngredients(ctx, orgID, ids)
	if err != nil {
		c.JSON(http.StatusInternalServerError, errorResponse("Failed to fetch ingredients"))
		return
	}
	c.JSON(http.StatusOK, successResponse("Recommendations retrieved", ingredients))
}

func extraIDs(extras []ExtraInput) []int64 {
	ids := make([]int64, 0, len(extras))
	for _, e := range extras {
		ids = append(ids, e.IngredientID)
	}
	return ids
}

func toExtraSelections(extras []ExtraInput) []pricing.ExtraSelection {
	out := make([]pricing.ExtraSelection, 0, len(extras))
	for _, e := range extras {
		out = append(out, pricing.ExtraSelection{
			IngredientID: e.IngredientID,
			Quantity:     e.Quantity,
		})
	}
	return out
}

func toRemoved(removed []RemovedInput) []cart.RemovedIngredient {
	out := make([]cart.RemovedIngredient, 0, len(removed))
	for _, r := range removed {
		out = append(out, cart.RemovedIngredient{
			IngredientID: r.IngredientID,
			Name:         r.Name,
		})
	}
	return out
}
