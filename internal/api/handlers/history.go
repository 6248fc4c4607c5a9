package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/irfndi/optionscope/internal/models"
	"github.com/irfndi/optionscope/internal/services"
	"github.com/sirupsen/logrus"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 200
)

// HistoryHandler serves the pricing model menu and past activity.
type HistoryHandler struct {
	sessions *services.SessionManager
	logger   *logrus.Logger
}

func NewHistoryHandler(sessions *services.SessionManager, logger *logrus.Logger) *HistoryHandler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &HistoryHandler{sessions: sessions, logger: logger}
}

// GetModels lists the pricing models in menu order.
func (h *HistoryHandler) GetModels(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"models":  AllModelViews(),
		"default": newModelView(models.DefaultPricingModel()),
	})
}

// GetRecentTickers lists the most recently loaded tickers.
func (h *HistoryHandler) GetRecentTickers(c *gin.Context) {
	limit, ok := parseLimit(c)
	if !ok {
		return
	}
	tickers, err := h.sessions.RecentTickers(c.Request.Context(), limit)
	if err != nil {
		h.logger.WithError(err).Error("Failed to load recent tickers")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load recent tickers"})
		return
	}
	if tickers == nil {
		tickers = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"tickers": tickers})
}

// GetLookups lists journaled heatmap lookups, newest first.
func (h *HistoryHandler) GetLookups(c *gin.Context) {
	limit, ok := parseLimit(c)
	if !ok {
		return
	}
	ticker := models.NormalizeTicker(c.Query("ticker"))
	lookups, err := h.sessions.RecentLookups(c.Request.Context(), ticker, limit)
	if err != nil {
		h.logger.WithError(err).WithField("ticker", ticker).Error("Failed to load heatmap lookups")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load heatmap lookups"})
		return
	}
	if lookups == nil {
		lookups = []models.HeatmapLookup{}
	}
	c.JSON(http.StatusOK, gin.H{
		"lookups": lookups,
		"count":   len(lookups),
	})
}

func parseLimit(c *gin.Context) (int, bool) {
	raw := c.Query("limit")
	if raw == "" {
		return defaultHistoryLimit, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
		return 0, false
	}
	return min(limit, maxHistoryLimit), true
}
