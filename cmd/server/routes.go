package main

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"vittoria-system/internal/server"
	"vittoria-system/internal/server/middleware"
)

func setupRouter(
	pricing *server.PricingHTTPHandler,
	cart *server.CartHTTPHandler,
	catalog *server.CatalogHTTPHandler,
) *gin.Engine {
	router := gin.Default()

	router.Use(middleware.CORS())
	router.Use(middleware.RateLimit("60-M"))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api/v1")
	api.Use(middleware.JWTAuth())
	{
		api.POST("/pricing/evaluate", pricing.Evaluate)

		api.GET("/catalog/products/:id/recommended", catalog.RecommendedIngredients)

		cartGroup := api.Group("/cart")
		{
			cartGroup.GET("", cart.GetCart)
			cartGroup.POST("/items", cart.AddItem)
			cartGroup.POST("/items/split", cart.AddSplitItem)
			cartGroup.PUT("/items/:index/quantity", cart.UpdateQuantity)
			cartGroup.PUT("/items/:index/note", cart.UpdateNote)
			cartGroup.DELETE("/items/:index", cart.RemoveItem)
			cartGroup.DELETE("", cart.ClearCart)
			cartGroup.POST("/reconcile", cart.Reconcile)
			cartGroup.POST("/switch-tenant", cart.SwitchTenant)
		}
	}

	return router
}
