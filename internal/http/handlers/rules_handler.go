// Operator-facing rule endpoints.
package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
)

// RuleCacheInvalidator drops the cached active-rule list so the next
// allocation reads fresh rules.
type RuleCacheInvalidator interface {
	Invalidate(ctx context.Context)
}

type RulesHandler struct {
	cache RuleCacheInvalidator
}

func NewRulesHandler(cache RuleCacheInvalidator) *RulesHandler {
	return &RulesHandler{cache: cache}
}

// InvalidateCache is called by operator tooling after editing rules, so a
// change takes effect before the cache TTL expires.
func (h *RulesHandler) InvalidateCache(c *gin.Context) {
	h.cache.Invalidate(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"message": "rule cache invalidated"})
}
