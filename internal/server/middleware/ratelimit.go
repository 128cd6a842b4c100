package middleware

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/middleware/stdlib"
	"github.com/ulule/limiter/v3/drivers/store/memory"
)

// RateLimit caps each client ip to the given rate, formatted like "60-M"
// (60 requests per minute). Counters live in process memory, which is enough
// for a single pricing node; the pricing and cart endpoints are cheap but
// catalog-backed, so the cap mostly shields the database.
func RateLimit(rate string) gin.HandlerFunc {
	parsed, err := limiter.NewRateFromFormatted(rate)
	if err != nil {
		log.Fatalf("invalid rate limit %q: %v", rate, err)
	}

	instance := limiter.New(memory.NewStore(), parsed)
	handler := stdlib.NewMiddleware(instance)

	return func(c *gin.Context) {
		handler.Handler(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
			c.Next()
		})).ServeHTTP(c.Writer, c.Request)

		if c.Writer.Status() == http.StatusTooManyRequests {
			c.Abort()
		}
	}
}
