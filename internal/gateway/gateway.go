// Package gateway exposes the engines over HTTP. Reads come straight from
// the in-process engines with a redis snapshot layer in front of the hot
// polling endpoints; mutations require a bearer token bound to the caller's
// address.
package gateway

import (
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/pda-labs/gamecore/internal/admin"
	"github.com/pda-labs/gamecore/internal/auth"
	"github.com/pda-labs/gamecore/internal/game"
	"github.com/pda-labs/gamecore/internal/liquidity"
	"github.com/pda-labs/gamecore/internal/referral"
	"github.com/pda-labs/gamecore/pkg/ledger"
	"github.com/pda-labs/gamecore/pkg/messaging"
)

// Config holds gateway configuration
type Config struct {
	Port            string
	RateLimitWindow time.Duration
	RateLimitMax    int
	DappKey         string
}

// Gateway is the HTTP front for the game, liquidity and referral engines
type Gateway struct {
	router    *gin.Engine
	cfg       Config
	games     *game.Engine
	pool      *liquidity.Manager
	referrals *referral.Gateway
	tokens    *auth.Service
	msg       *messaging.Client
	cache     *SnapshotCache

	hub         *Hub
	rateLimiter *RateLimiter
}

// RateLimiter caps requests per client IP over a sliding window
type RateLimiter struct {
	mu       sync.Mutex
	requests map[string][]time.Time
	limit    int
	window   time.Duration
}

// New builds the gateway and its routes
func New(cfg Config, games *game.Engine, pool *liquidity.Manager, referrals *referral.Gateway, tokens *auth.Service, msg *messaging.Client, cache *SnapshotCache) *Gateway {
	g := &Gateway{
		router:    gin.Default(),
		cfg:       cfg,
		games:     games,
		pool:      pool,
		referrals: referrals,
		tokens:    tokens,
		msg:       msg,
		cache:     cache,
		hub:       NewHub(),
		rateLimiter: &RateLimiter{
			requests: make(map[string][]time.Time),
			limit:    cfg.RateLimitMax,
			window:   cfg.RateLimitWindow,
		},
	}

	g.setupRoutes()
	return g
}

func (g *Gateway) setupRoutes() {
	g.router.Use(g.rateLimitMiddleware())
	g.router.Use(g.tracingMiddleware())

	g.router.GET("/health", g.healthCheck)

	v1 := g.router.Group("/api/v1")
	{
		v1.POST("/auth/token", g.issueToken)

		v1.POST("/games/join", g.authMiddleware(), g.joinGame)
		v1.GET("/games/current", g.currentGame)
		v1.GET("/games/:id", g.getGame)
		v1.GET("/games/:id/players", g.getGamePlayers)
		v1.POST("/games/:id/winner", g.authMiddleware(), g.declareWinner)
		v1.POST("/games/:id/refund", g.authMiddleware(), g.refundGame)

		v1.GET("/liquidity/stats", g.liquidityStats)
		v1.GET("/liquidity/days/:day", g.dayStats)

		v1.GET("/referrals/:address", g.referralStats)

		v1.GET("/ws", g.handleWebSocket)

		g.setupAdminRoutes(v1)
	}
}

// Start runs the HTTP server and begins forwarding engine events to
// websocket subscribers.
func (g *Gateway) Start() error {
	g.StartFeed()
	return g.router.Run(":" + g.cfg.Port)
}

// StartFeed begins forwarding engine events to websocket subscribers
func (g *Gateway) StartFeed() {
	g.hub.Run(g.msg)
}

// Router exposes the underlying handler for embedding in an http.Server
// and for tests
func (g *Gateway) Router() http.Handler {
	return g.router
}

// Middleware

func (g *Gateway) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization"})
			return
		}

		claims, err := g.tokens.Verify(header)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Set("player", ledger.Address(claims.Player))
		c.Next()
	}
}

func (g *Gateway) rateLimitMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !g.rateLimiter.Allow(c.ClientIP()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}

func (g *Gateway) tracingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		correlationID := c.GetHeader("X-Correlation-ID")
		if correlationID == "" {
			correlationID = uuid.New().String()
		}

		c.Set("correlation_id", correlationID)
		c.Header("X-Correlation-ID", correlationID)
		c.Next()
	}
}

// Handlers

func (g *Gateway) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

type tokenRequest struct {
	Player string `json:"player" binding:"required"`
	Role   string `json:"role"`
}

// issueToken signs a bearer token for a player address. Gated by the shared
// dapp key so only the frontend backend can mint tokens.
func (g *Gateway) issueToken(c *gin.Context) {
	if g.cfg.DappKey == "" || c.GetHeader("X-Dapp-Key") != g.cfg.DappKey {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid dapp key"})
		return
	}

	var req tokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	token, err := g.tokens.Issue(ledger.Address(req.Player), req.Role)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to issue token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"token": token})
}

type joinRequest struct {
	BetAmount string `json:"bet_amount" binding:"required"`
	Referrer  string `json:"referrer"`
}

func (g *Gateway) joinGame(c *gin.Context) {
	var req joinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	bet, err := ledger.NewAmount(req.BetAmount)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid bet amount"})
		return
	}

	player := c.MustGet("player").(ledger.Address)
	gameID, err := g.games.Join(c.Request.Context(), player, bet, ledger.Address(req.Referrer))
	if err != nil {
		c.JSON(gameErrorStatus(err), gin.H{"error": err.Error()})
		return
	}

	g.cache.Invalidate(c.Request.Context(), currentGameKey(bet.String()), liquidityStatsKey)
	c.JSON(http.StatusOK, gin.H{"game_id": gameID})
}

func (g *Gateway) currentGame(c *gin.Context) {
	betParam := c.Query("bet")
	if betParam == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing bet parameter"})
		return
	}
	bet, err := ledger.NewAmount(betParam)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid bet parameter"})
		return
	}

	key := currentGameKey(bet.String())
	var cached game.CurrentView
	if g.cache.Get(c.Request.Context(), key, &cached) {
		c.JSON(http.StatusOK, cached)
		return
	}

	view := g.games.CurrentGame(bet)
	g.cache.Set(c.Request.Context(), key, view)
	c.JSON(http.StatusOK, view)
}

func (g *Gateway) getGame(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid game ID"})
		return
	}

	view, err := g.games.Game(id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "game not found"})
		return
	}
	c.JSON(http.StatusOK, view)
}

func (g *Gateway) getGamePlayers(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid game ID"})
		return
	}

	players, err := g.games.GamePlayers(id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "game not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"game_id": id, "players": players, "player_count": len(players)})
}

type winnerRequest struct {
	Winner string `json:"winner" binding:"required"`
}

func (g *Gateway) declareWinner(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid game ID"})
		return
	}

	var req winnerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	caller := c.MustGet("player").(ledger.Address)
	if err := g.games.DeclareWinner(c.Request.Context(), caller, id, ledger.Address(req.Winner)); err != nil {
		c.JSON(gameErrorStatus(err), gin.H{"error": err.Error()})
		return
	}

	g.cache.Invalidate(c.Request.Context(), liquidityStatsKey)
	c.JSON(http.StatusOK, gin.H{"game_id": id, "winner": req.Winner})
}

func (g *Gateway) refundGame(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid game ID"})
		return
	}

	caller := c.MustGet("player").(ledger.Address)
	if err := g.games.RefundExpired(c.Request.Context(), caller, id); err != nil {
		c.JSON(gameErrorStatus(err), gin.H{"error": err.Error()})
		return
	}

	g.cache.Invalidate(c.Request.Context(), liquidityStatsKey)
	c.JSON(http.StatusOK, gin.H{"game_id": id, "refunded": true})
}

// liquidityStatsResponse is what the dashboard polls
type liquidityStatsResponse struct {
	Balance        ledger.Amount `json:"balance"`
	TotalLPLocked  ledger.Amount `json:"total_lp_locked"`
	TotalPDABurned ledger.Amount `json:"total_pda_burned"`
	CurrentDay     int64         `json:"current_day"`
}

func (g *Gateway) liquidityStats(c *gin.Context) {
	var cached liquidityStatsResponse
	if g.cache.Get(c.Request.Context(), liquidityStatsKey, &cached) {
		c.JSON(http.StatusOK, cached)
		return
	}

	resp := liquidityStatsResponse{
		Balance:        g.pool.Balance(),
		TotalLPLocked:  g.pool.TotalLPLocked(),
		TotalPDABurned: g.pool.TotalPDABurned(),
		CurrentDay:     g.pool.CurrentDay(),
	}
	g.cache.Set(c.Request.Context(), liquidityStatsKey, resp)
	c.JSON(http.StatusOK, resp)
}

func (g *Gateway) dayStats(c *gin.Context) {
	day, err := strconv.ParseInt(c.Param("day"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid day"})
		return
	}

	bucket := g.pool.DayStats(day)
	c.JSON(http.StatusOK, gin.H{
		"day":           day,
		"inflow":        bucket.Inflow,
		"outflow":       bucket.Outflow,
		"locked":        bucket.Locked,
		"locked_amount": bucket.LockedAmount,
	})
}

func (g *Gateway) referralStats(c *gin.Context) {
	addr := ledger.Address(c.Param("address"))
	c.JSON(http.StatusOK, gin.H{
		"address":               addr,
		"upline":                g.referrals.Upline(addr),
		"active_referral_count": g.referrals.ActiveReferralCount(addr),
		"credits":               g.referrals.Credits(addr),
	})
}

// gameErrorStatus maps engine errors to HTTP status codes
func gameErrorStatus(err error) int {
	switch {
	case errors.Is(err, admin.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, game.ErrGameNotFound):
		return http.StatusNotFound
	case errors.Is(err, game.ErrInvalidBetAmount),
		errors.Is(err, game.ErrAlreadyJoined),
		errors.Is(err, game.ErrGameFull),
		errors.Is(err, game.ErrGameNotFull),
		errors.Is(err, game.ErrInvalidWinner),
		errors.Is(err, game.ErrGameNotExpired):
		return http.StatusUnprocessableEntity
	case errors.Is(err, game.ErrAlreadyFinished),
		errors.Is(err, liquidity.ErrAlreadyLocked):
		return http.StatusConflict
	case errors.Is(err, liquidity.ErrInsufficientBalance),
		errors.Is(err, liquidity.ErrInvalidAmount),
		errors.Is(err, admin.ErrInvalidTier),
		errors.Is(err, admin.ErrInvalidValue):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// Allow reports whether a request fits the caller's window
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-rl.window)

	requests := rl.requests[key]
	valid := requests[:0]
	for _, t := range requests {
		if t.After(cutoff) {
			valid = append(valid, t)
		}
	}

	if len(valid) >= rl.limit {
		rl.requests[key] = valid
		return false
	}

	rl.requests[key] = append(valid, now)
	return true
}
