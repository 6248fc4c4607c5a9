package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/irfndi/optionscope/internal/cache"
	"github.com/irfndi/optionscope/internal/services"
)

// StoreStatsProvider is implemented by the session stores.
type StoreStatsProvider interface {
	GetStats() cache.SessionStoreStats
}

type AdminHandler struct {
	sessions *services.SessionManager
	breaker  *services.CircuitBreaker
	store    StoreStatsProvider
}

type AdminStatsResponse struct {
	Sessions  int                           `json:"sessions"`
	Breaker   *services.CircuitBreakerStats `json:"circuit_breaker,omitempty"`
	Store     *cache.SessionStoreStats      `json:"session_store,omitempty"`
	System    SystemStats                   `json:"system"`
	Uptime    string                        `json:"uptime"`
	Timestamp time.Time                     `json:"timestamp"`
}

// NewAdminHandler creates the operator handler. breaker and store may be nil.
func NewAdminHandler(sessions *services.SessionManager, breaker *services.CircuitBreaker, store StoreStatsProvider) *AdminHandler {
	return &AdminHandler{sessions: sessions, breaker: breaker, store: store}
}

// GetStats reports live sessions, breaker counters and store hit rates.
func (h *AdminHandler) GetStats(c *gin.Context) {
	resp := AdminStatsResponse{
		Sessions:  h.sessions.Count(),
		System:    systemStats(c.Request.Context()),
		Uptime:    time.Since(startTime).String(),
		Timestamp: time.Now(),
	}
	if h.breaker != nil {
		stats := h.breaker.GetStats()
		resp.Breaker = &stats
	}
	if h.store != nil {
		stats := h.store.GetStats()
		resp.Store = &stats
	}
	c.JSON(http.StatusOK, resp)
}

// SweepSessions evicts idle sessions now instead of waiting for the sweeper.
func (h *AdminHandler) SweepSessions(c *gin.Context) {
	evicted := h.sessions.Sweep()
	c.JSON(http.StatusOK, gin.H{
		"evicted":   evicted,
		"remaining": h.sessions.Count(),
	})
}

// ResetBreaker closes the pricing circuit breaker.
func (h *AdminHandler) ResetBreaker(c *gin.Context) {
	if h.breaker == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Circuit breaker not configured"})
		return
	}
	h.breaker.Reset()
	c.JSON(http.StatusOK, gin.H{"state": h.breaker.GetState().String()})
}
