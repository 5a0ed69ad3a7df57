package server

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/leaguestats/statscache/pkg/cache"
)

func (s *Server) requireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.adminToken == "" {
			abortJSON(c, http.StatusNotFound, "admin endpoints are disabled")
			return
		}
		token := c.GetHeader(HeaderAdminToken)
		if subtle.ConstantTimeCompare([]byte(token), []byte(s.adminToken)) != 1 {
			abortJSON(c, http.StatusUnauthorized, "invalid admin token")
			return
		}
		c.Next()
	}
}

// POST /system/admin/cache/clear
func (s *Server) clearCache(c *gin.Context) {
	removed := s.store.Clear()
	s.logger.Info().Int("removed", removed).Msg("Cache cleared by admin")
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"removed": removed,
	})
}

// DELETE /system/admin/cache?pattern=/matches*
func (s *Server) invalidateCache(c *gin.Context) {
	raw := c.Query("pattern")
	if raw == "" {
		abortJSON(c, http.StatusBadRequest, "pattern is required")
		return
	}
	p, err := cache.CompilePattern(raw)
	if err != nil {
		abortJSON(c, http.StatusBadRequest, err.Error())
		return
	}

	removed := s.store.InvalidatePattern(p)
	s.logger.Info().Str("pattern", raw).Int("removed", removed).Msg("Cache invalidated by admin")
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"pattern": raw,
		"removed": removed,
	})
}

// GET /system/admin/cache/stats
func (s *Server) cacheStats(c *gin.Context) {
	st := s.store.Stats()
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"entries":    st.Entries,
			"bytes":      st.Bytes,
			"capacity":   st.Capacity,
			"changeFeed": s.feedState(),
			"routes":     len(s.mw.Rules().Routes()),
		},
	})
}
