package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// sqlRequest is the body of POST /v1/sql.
type sqlRequest struct {
	SQL string `json:"sql" binding:"required"`
}

// executeSQL handles POST /v1/sql: parse and run a ;-separated batch of
// statements against the server's engine, returning one result per
// statement. A single statement's failure never aborts the rest of the
// batch or yields a non-200 response — failures are reported inline in the
// batch envelope, the same contract the CLI's `reldb sql` command uses.
func (s *Server) executeSQL(c *gin.Context) {
	var req sqlRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequestError(c, "missing or invalid \"sql\" field: "+err.Error())
		return
	}

	result := s.engine.ExecuteBatch(req.SQL)
	c.JSON(http.StatusOK, result)
}

// healthz handles GET /v1/healthz.
func (s *Server) healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// metricsHandler handles GET /v1/metrics: a snapshot of the rate limiter's
// per-address counters, useful for operators diagnosing a noisy client.
func (s *Server) metricsHandler(c *gin.Context) {
	if s.limiter == nil {
		c.JSON(http.StatusOK, gin.H{"rate_limiting": "disabled"})
		return
	}
	c.JSON(http.StatusOK, s.limiter.GetMetrics().Snapshot())
}
