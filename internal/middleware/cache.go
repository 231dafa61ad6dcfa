package middleware

import "github.com/gin-gonic/gin"

// NoStore marks responses as private and uncacheable. Exam papers and
// results must never be served from a shared proxy cache.
func NoStore() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Cache-Control", "no-store, private")
		c.Next()
	}
}
