package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"sdsim/internal/microservices/http-api/dto"
	"sdsim/internal/microservices/http-api/service"
	"sdsim/pkg/models"
)

// ObserverCounter reports connected dashboard observers.
type ObserverCounter interface {
	ClientCount() int
}

type SessionHandler struct {
	sessionService service.SessionService
	observers      ObserverCounter
}

func NewSessionHandler(sessionService service.SessionService, observers ObserverCounter) *SessionHandler {
	return &SessionHandler{sessionService: sessionService, observers: observers}
}

// RegisterRoutes registers the session routes
func (h *SessionHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("", h.ListSessions)
	rg.GET("/:id/progress", h.GetProgress)
	rg.GET("/:id/history", h.GetHistory)
}

func (h *SessionHandler) Health(c *gin.Context) {
	resp := dto.HealthResponse{Status: "ok", Sessions: len(h.sessionService.Sessions())}
	if h.observers != nil {
		resp.Observers = h.observers.ClientCount()
	}
	c.JSON(http.StatusOK, resp)
}

func (h *SessionHandler) ListSessions(c *gin.Context) {
	sessions := h.sessionService.Sessions()
	c.JSON(http.StatusOK, dto.SessionListResponse{Sessions: sessions, Count: len(sessions)})
}

func (h *SessionHandler) GetProgress(c *gin.Context) {
	var req dto.SessionURIRequest
	if err := c.ShouldBindUri(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	snap, live, err := h.sessionService.Progress(ctx, req.ID)
	if err != nil {
		if errors.Is(err, service.ErrSessionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, dto.ProgressResponse{Live: live, Progress: *snap})
}

func (h *SessionHandler) GetHistory(c *gin.Context) {
	var req dto.SessionURIRequest
	if err := c.ShouldBindUri(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	var query dto.HistoryQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	records, err := h.sessionService.History(ctx, req.ID, query.Limit)
	if err != nil {
		if errors.Is(err, service.ErrHistoryDisabled) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if records == nil {
		records = []models.EpisodeRecord{}
	}
	c.JSON(http.StatusOK, dto.HistoryResponse{SessionID: req.ID, Records: records, Count: len(records)})
}
