package gateway

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pda-labs/gamecore/pkg/ledger"
)

// Admin surface. The caller's address comes from the bearer token; the
// engines themselves enforce owner and operator roles, the gateway only
// translates errors.

func (g *Gateway) setupAdminRoutes(v1 *gin.RouterGroup) {
	adm := v1.Group("/admin", g.authMiddleware())
	{
		adm.POST("/lock-daily", g.lockDaily)
		adm.POST("/release-lock", g.releaseLock)
		adm.POST("/burn", g.burn)
		adm.POST("/config", g.updateConfig)
	}
}

func (g *Gateway) lockDaily(c *gin.Context) {
	caller := c.MustGet("player").(ledger.Address)
	locked, err := g.pool.LockDaily(c.Request.Context(), caller)
	if err != nil {
		c.JSON(gameErrorStatus(err), gin.H{"error": err.Error()})
		return
	}

	g.cache.Invalidate(c.Request.Context(), liquidityStatsKey)
	c.JSON(http.StatusOK, gin.H{"locked": locked, "day": g.pool.CurrentDay()})
}

type amountRequest struct {
	Amount string `json:"amount" binding:"required"`
}

func (g *Gateway) releaseLock(c *gin.Context) {
	var req amountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	amount, err := ledger.NewAmount(req.Amount)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid amount"})
		return
	}

	caller := c.MustGet("player").(ledger.Address)
	if err := g.pool.ReleaseLock(c.Request.Context(), caller, amount); err != nil {
		c.JSON(gameErrorStatus(err), gin.H{"error": err.Error()})
		return
	}

	g.cache.Invalidate(c.Request.Context(), liquidityStatsKey)
	c.JSON(http.StatusOK, gin.H{"released": amount, "total_lp_locked": g.pool.TotalLPLocked()})
}

func (g *Gateway) burn(c *gin.Context) {
	var req amountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	amount, err := ledger.NewAmount(req.Amount)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid amount"})
		return
	}

	caller := c.MustGet("player").(ledger.Address)
	if err := g.pool.Burn(c.Request.Context(), caller, amount); err != nil {
		c.JSON(gameErrorStatus(err), gin.H{"error": err.Error()})
		return
	}

	g.cache.Invalidate(c.Request.Context(), liquidityStatsKey)
	c.JSON(http.StatusOK, gin.H{"burned": amount, "total_pda_burned": g.pool.TotalPDABurned()})
}

type configRequest struct {
	Operator         string `json:"operator,omitempty"`
	OperationAddress string `json:"operation_address,omitempty"`
	DappAddress      string `json:"dapp_address,omitempty"`
	TierIndex        *int   `json:"tier_index,omitempty"`
	TierAmount       string `json:"tier_amount,omitempty"`
	GameTimeoutSecs  *int64 `json:"game_timeout_secs,omitempty"`
	PlayersPerGame   *int   `json:"players_per_game,omitempty"`
	FeeBps           *int64 `json:"fee_bps,omitempty"`
}

// updateConfig applies registry changes. Fields left out of the request are
// untouched; the first rejected field aborts the rest.
func (g *Gateway) updateConfig(c *gin.Context) {
	var req configRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	caller := c.MustGet("player").(ledger.Address)
	registry := g.games.Registry()

	apply := func(err error) bool {
		if err != nil {
			c.JSON(gameErrorStatus(err), gin.H{"error": err.Error()})
			return false
		}
		return true
	}

	if req.Operator != "" && !apply(registry.SetOperator(caller, ledger.Address(req.Operator))) {
		return
	}
	if req.OperationAddress != "" && !apply(registry.SetOperationAddress(caller, ledger.Address(req.OperationAddress))) {
		return
	}
	if req.DappAddress != "" && !apply(registry.SetDappAddress(caller, ledger.Address(req.DappAddress))) {
		return
	}
	if req.TierIndex != nil {
		amount, err := ledger.NewAmount(req.TierAmount)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid tier amount"})
			return
		}
		if !apply(registry.SetTier(caller, *req.TierIndex, amount)) {
			return
		}
	}
	if req.GameTimeoutSecs != nil && !apply(registry.SetGameTimeout(caller, time.Duration(*req.GameTimeoutSecs)*time.Second)) {
		return
	}
	if req.PlayersPerGame != nil && !apply(registry.SetPlayersPerGame(caller, *req.PlayersPerGame)) {
		return
	}
	if req.FeeBps != nil && !apply(registry.SetFeeBps(caller, *req.FeeBps)) {
		return
	}

	c.JSON(http.StatusOK, gin.H{"updated": true})
}
