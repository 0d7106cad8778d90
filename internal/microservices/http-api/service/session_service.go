package service

import (
	"context"
	"errors"

	"sdsim/internal/sandbox"
	"sdsim/internal/shared"
	"sdsim/pkg/models"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrHistoryDisabled = errors.New("episode store is disabled")
)

// SessionService answers the admin API.
type SessionService interface {
	Sessions() []sandbox.SessionInfo
	Progress(ctx context.Context, sessionID string) (*shared.ProgressSnapshot, bool, error)
	History(ctx context.Context, sessionID string, limit int) ([]models.EpisodeRecord, error)
}

// LiveSessions is the in-process view of connected controllers.
type LiveSessions interface {
	Sessions() []sandbox.SessionInfo
	Progress(sessionID string) (shared.ProgressSnapshot, bool)
}

// LatestReader reads the cached last snapshot of a session.
type LatestReader interface {
	Latest(ctx context.Context, sessionID string) (*shared.ProgressSnapshot, error)
}

// HistoryReader reads the episode log.
type HistoryReader interface {
	RecentBySession(ctx context.Context, sessionID string, limit int) ([]models.EpisodeRecord, error)
}

type sessionService struct {
	live    LiveSessions
	latest  LatestReader
	history HistoryReader
}

// NewSessionService composes the live view with the optional cache and
// episode log; latest and history may be nil.
func NewSessionService(live LiveSessions, latest LatestReader, history HistoryReader) SessionService {
	return &sessionService{live: live, latest: latest, history: history}
}

func (s *sessionService) Sessions() []sandbox.SessionInfo {
	return s.live.Sessions()
}

// Progress prefers the live snapshot and falls back to the cache, which
// outlives the connection. The bool reports a live answer.
func (s *sessionService) Progress(ctx context.Context, sessionID string) (*shared.ProgressSnapshot, bool, error) {
	if snap, ok := s.live.Progress(sessionID); ok {
		return &snap, true, nil
	}
	if s.latest == nil {
		return nil, false, ErrSessionNotFound
	}
	snap, err := s.latest.Latest(ctx, sessionID)
	if err != nil {
		return nil, false, err
	}
	if snap == nil {
		return nil, false, ErrSessionNotFound
	}
	return snap, false, nil
}

func (s *sessionService) History(ctx context.Context, sessionID string, limit int) ([]models.EpisodeRecord, error) {
	if s.history == nil {
		return nil, ErrHistoryDisabled
	}
	return s.history.RecentBySession(ctx, sessionID, limit)
}
