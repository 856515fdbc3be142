package middleware

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/ulule/limiter/v3"
	mgin "github.com/ulule/limiter/v3/drivers/middleware/gin"
	"github.com/ulule/limiter/v3/drivers/store/memory"
)

// RateLimit limits requests per key using a formatted rate such as "10-M".
func RateLimit(formatted string, key mgin.KeyGetter) gin.HandlerFunc {
	rate, err := limiter.NewRateFromFormatted(formatted)
	if err != nil {
		log.Fatalf("Error while running ratelimiter middleware: %v", err)
	}

	store := memory.NewStore()
	instance := limiter.New(store, rate)

	opts := []mgin.Option{
		mgin.WithLimitReachedHandler(func(c *gin.Context) {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"success": false,
				"message": "Too many requests, please try again later",
			})
		}),
	}
	if key != nil {
		opts = append(opts, mgin.WithKeyGetter(key))
	}
	return mgin.NewMiddleware(instance, opts...)
}

// UserKey keys limits on the authenticated user, falling back to the client IP.
func UserKey(prefix string) mgin.KeyGetter {
	return func(c *gin.Context) string {
		if id := c.GetString(ContextUserID); id != "" {
			return prefix + ":user:" + id
		}
		return prefix + ":ip:" + c.ClientIP()
	}
}

// IPKey keys limits on the client IP.
func IPKey(prefix string) mgin.KeyGetter {
	return func(c *gin.Context) string {
		return prefix + ":ip:" + c.ClientIP()
	}
}
