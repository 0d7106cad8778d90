package dto

import (
	"sdsim/internal/sandbox"
	"sdsim/internal/shared"
	"sdsim/pkg/models"
)

// DTOs for the admin session API

type SessionURIRequest struct {
	ID string `uri:"id" binding:"required"`
}

type HistoryQuery struct {
	Limit int `form:"limit" binding:"omitempty,min=1,max=1000"`
}

type SessionListResponse struct {
	Sessions []sandbox.SessionInfo `json:"sessions"`
	Count    int                   `json:"count"`
}

type ProgressResponse struct {
	Live     bool                    `json:"live"` // false when served from the cache
	Progress shared.ProgressSnapshot `json:"progress"`
}

type HistoryResponse struct {
	SessionID string                 `json:"session_id"`
	Records   []models.EpisodeRecord `json:"records"`
	Count     int                    `json:"count"`
}

type HealthResponse struct {
	Status    string `json:"status"`
	Sessions  int    `json:"sessions"`
	Observers int    `json:"observers"`
}
