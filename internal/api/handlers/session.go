package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/irfndi/optionscope/internal/middleware"
	"github.com/irfndi/optionscope/internal/models"
	"github.com/irfndi/optionscope/internal/orchestrator"
	"github.com/irfndi/optionscope/internal/services"
	"github.com/sirupsen/logrus"
)

const (
	eventBuffer    = 8
	eventKeepAlive = 15 * time.Second
)

// TokenIssuer signs session access tokens.
type TokenIssuer interface {
	GenerateToken(sessionID string) (string, time.Time, error)
}

type SessionHandler struct {
	sessions *services.SessionManager
	tokens   TokenIssuer
	logger   *logrus.Logger
}

type CreateSessionResponse struct {
	SessionID string       `json:"session_id"`
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
	Snapshot  SnapshotView `json:"snapshot"`
}

type SetTickerRequest struct {
	Ticker string `json:"ticker" binding:"required"`
}

type SelectContractRequest struct {
	Index *int `json:"index" binding:"required"`
}

type SetModelRequest struct {
	Model string `json:"model" binding:"required"`
}

func NewSessionHandler(sessions *services.SessionManager, tokens TokenIssuer, logger *logrus.Logger) *SessionHandler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &SessionHandler{
		sessions: sessions,
		tokens:   tokens,
		logger:   logger,
	}
}

// CreateSession starts an idle session and returns its access token.
func (h *SessionHandler) CreateSession(c *gin.Context) {
	session, err := h.sessions.Create(c.Request.Context())
	if err != nil {
		h.logger.WithError(err).Error("Failed to create session")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create session"})
		return
	}

	token, expiresAt, err := h.tokens.GenerateToken(session.ID)
	if err != nil {
		h.logger.WithError(err).WithField("session_id", session.ID).Error("Failed to sign session token")
		_ = h.sessions.Delete(c.Request.Context(), session.ID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create session"})
		return
	}

	c.JSON(http.StatusCreated, CreateSessionResponse{
		SessionID: session.ID,
		Token:     token,
		ExpiresAt: expiresAt,
		Snapshot:  NewSnapshotView(session.Orchestrator.Snapshot()),
	})
}

// GetSession returns the current snapshot.
func (h *SessionHandler) GetSession(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, NewSnapshotView(session.Orchestrator.Snapshot()))
}

// SetTicker stores the pending ticker without loading it.
func (h *SessionHandler) SetTicker(c *gin.Context) {
	var req SetTickerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	session, ok := h.session(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, NewSnapshotView(session.Orchestrator.SetTicker(req.Ticker)))
}

// LoadContracts fetches the chain of the pending ticker.
func (h *SessionHandler) LoadContracts(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}
	snap, err := session.Orchestrator.LoadContracts(c.Request.Context())
	h.respond(c, snap, err)
}

// GetGroups lists the loaded contracts grouped by expiry.
func (h *SessionHandler) GetGroups(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}
	snap := session.Orchestrator.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"ticker": snap.LoadedTicker(),
		"groups": NewGroupViews(snap.Catalog),
	})
}

// SelectContract selects a contract by flat catalog index.
func (h *SessionHandler) SelectContract(c *gin.Context) {
	var req SelectContractRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	session, ok := h.session(c)
	if !ok {
		return
	}
	snap, err := session.Orchestrator.SelectContract(*req.Index)
	h.respond(c, snap, err)
}

// SetModel switches the pricing model of the current selection.
func (h *SessionHandler) SetModel(c *gin.Context) {
	var req SetModelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	session, ok := h.session(c)
	if !ok {
		return
	}
	model, err := models.ParsePricingModel(req.Model)
	if err != nil {
		h.respond(c, session.Orchestrator.Snapshot(), err)
		return
	}
	snap, err := session.Orchestrator.SetModel(model)
	h.respond(c, snap, err)
}

// LoadHeatmap fetches the heatmap of the selected contract.
func (h *SessionHandler) LoadHeatmap(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}
	snap, err := session.Orchestrator.LoadHeatmap(c.Request.Context())
	h.respond(c, snap, err)
}

// Reset returns the session to idle.
func (h *SessionHandler) Reset(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, NewSnapshotView(session.Orchestrator.Reset()))
}

// DeleteSession ends the session and closes its event streams.
func (h *SessionHandler) DeleteSession(c *gin.Context) {
	if err := h.sessions.Delete(c.Request.Context(), c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Events streams every new snapshot as a server-sent "snapshot" event,
// starting with the current one. The stream ends when the client goes away
// or the session is deleted.
func (h *SessionHandler) Events(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}

	updates, unsubscribe := session.Orchestrator.Subscribe(eventBuffer)
	defer unsubscribe()

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.SSEvent("snapshot", NewSnapshotView(session.Orchestrator.Snapshot()))
	c.Writer.Flush()

	keepAlive := time.NewTicker(eventKeepAlive)
	defer keepAlive.Stop()

	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case snap, open := <-updates:
			if !open {
				return
			}
			c.SSEvent("snapshot", NewSnapshotView(snap))
		case <-keepAlive.C:
			c.SSEvent("ping", gin.H{"timestamp": time.Now().Unix()})
		}
		c.Writer.Flush()
	}
}

func (h *SessionHandler) session(c *gin.Context) (*services.Session, bool) {
	session, err := h.sessions.Get(c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return nil, false
	}
	middleware.AddSpanAttribute(c, "session.id", session.ID)
	return session, true
}

// respond writes snap on success. Failures carry the snapshot as well so
// clients keep showing the last valid data next to the error.
func (h *SessionHandler) respond(c *gin.Context, snap orchestrator.Snapshot, err error) {
	if err == nil {
		c.JSON(http.StatusOK, NewSnapshotView(snap))
		return
	}

	status := statusForError(err)
	if status >= http.StatusInternalServerError && !errors.Is(err, context.Canceled) {
		middleware.RecordError(c, err, errorCode(err))
		h.logger.WithError(err).WithFields(logrus.Fields{
			"session_id": c.Param("id"),
			"state":      snap.State.String(),
		}).Warn("Session action failed")
	}
	c.JSON(status, gin.H{
		"error":    err.Error(),
		"code":     errorCode(err),
		"snapshot": NewSnapshotView(snap),
	})
}

func (h *SessionHandler) fail(c *gin.Context, err error) {
	status := statusForError(err)
	if status == http.StatusInternalServerError {
		middleware.RecordError(c, err, "session operation failed")
		h.logger.WithError(err).WithField("session_id", c.Param("id")).Error("Session operation failed")
	}
	c.JSON(status, gin.H{
		"error": err.Error(),
		"code":  errorCode(err),
	})
}
