package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"sdsim/internal/microservices/http-api/dto"
	"sdsim/internal/microservices/http-api/service"
	"sdsim/internal/sandbox"
	"sdsim/internal/shared"
	"sdsim/pkg/models"
)

// MockSessionService mocks the SessionService interface
type MockSessionService struct {
	mock.Mock
}

func (m *MockSessionService) Sessions() []sandbox.SessionInfo {
	args := m.Called()
	return args.Get(0).([]sandbox.SessionInfo)
}

func (m *MockSessionService) Progress(ctx context.Context, sessionID string) (*shared.ProgressSnapshot, bool, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).(*shared.ProgressSnapshot), args.Bool(1), args.Error(2)
}

func (m *MockSessionService) History(ctx context.Context, sessionID string, limit int) ([]models.EpisodeRecord, error) {
	args := m.Called(ctx, sessionID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.EpisodeRecord), args.Error(1)
}

type fixedTokens struct{}

func (fixedTokens) ValidateToken(token string) (string, string, error) {
	if token == "good" {
		return "u-1", "alice", nil
	}
	return "", "", errors.New("bad token")
}

func setupRouter(svc service.SessionService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	return NewRouter(RouterConfig{Sessions: svc})
}

func get(router *gin.Engine, path string, header ...string) *httptest.ResponseRecorder {
	req, _ := http.NewRequest("GET", path, nil)
	if len(header) == 2 {
		req.Header.Set(header[0], header[1])
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	mockService := new(MockSessionService)
	mockService.On("Sessions").Return([]sandbox.SessionInfo{{ID: "a"}, {ID: "b"}})

	w := get(setupRouter(mockService), "/health")

	assert.Equal(t, http.StatusOK, w.Code)
	var resp dto.HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 2, resp.Sessions)
	assert.Zero(t, resp.Observers)
}

func TestListSessions(t *testing.T) {
	mockService := new(MockSessionService)
	sessions := []sandbox.SessionInfo{{ID: "a", State: "send_telemetry", HasCar: true, FramesSent: 42}}
	mockService.On("Sessions").Return(sessions)

	w := get(setupRouter(mockService), "/sessions")

	assert.Equal(t, http.StatusOK, w.Code)
	var resp dto.SessionListResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Count)
	assert.Equal(t, sessions, resp.Sessions)
	mockService.AssertExpectations(t)
}

func TestGetProgress_Success(t *testing.T) {
	mockService := new(MockSessionService)
	snap := &shared.ProgressSnapshot{SessionID: "a", Lap: 2, Sector: 7, MaxSector: 100, HasPath: true}
	mockService.On("Progress", mock.Anything, "a").Return(snap, true, nil)

	w := get(setupRouter(mockService), "/sessions/a/progress")

	assert.Equal(t, http.StatusOK, w.Code)
	var resp dto.ProgressResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Live)
	assert.Equal(t, 2, resp.Progress.Lap)
	assert.Equal(t, 7, resp.Progress.Sector)
	mockService.AssertExpectations(t)
}

func TestGetProgress_NotFound(t *testing.T) {
	mockService := new(MockSessionService)
	mockService.On("Progress", mock.Anything, "ghost").Return(nil, false, service.ErrSessionNotFound)

	w := get(setupRouter(mockService), "/sessions/ghost/progress")

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetProgress_BackendError(t *testing.T) {
	mockService := new(MockSessionService)
	mockService.On("Progress", mock.Anything, "a").Return(nil, false, errors.New("redis down"))

	w := get(setupRouter(mockService), "/sessions/a/progress")

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "redis down")
}

func TestGetHistory_Success(t *testing.T) {
	mockService := new(MockSessionService)
	records := []models.EpisodeRecord{
		{ID: 2, SessionID: "a", Sector: 4, RecordedAt: time.Unix(2, 0).UTC()},
		{ID: 1, SessionID: "a", Sector: 3, RecordedAt: time.Unix(1, 0).UTC()},
	}
	mockService.On("History", mock.Anything, "a", 2).Return(records, nil)

	w := get(setupRouter(mockService), "/sessions/a/history?limit=2")

	assert.Equal(t, http.StatusOK, w.Code)
	var resp dto.HistoryResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "a", resp.SessionID)
	assert.Equal(t, 2, resp.Count)
	assert.Equal(t, 4, resp.Records[0].Sector)
	mockService.AssertExpectations(t)
}

func TestGetHistory_DefaultLimitAndEmpty(t *testing.T) {
	mockService := new(MockSessionService)
	mockService.On("History", mock.Anything, "a", 0).Return(nil, nil)

	w := get(setupRouter(mockService), "/sessions/a/history")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"records":[]`)
}

func TestGetHistory_InvalidLimit(t *testing.T) {
	mockService := new(MockSessionService)

	for _, q := range []string{"limit=-1", "limit=5000", "limit=abc"} {
		w := get(setupRouter(mockService), "/sessions/a/history?"+q)
		assert.Equal(t, http.StatusBadRequest, w.Code, q)
	}
	mockService.AssertNotCalled(t, "History", mock.Anything, mock.Anything, mock.Anything)
}

func TestGetHistory_Disabled(t *testing.T) {
	mockService := new(MockSessionService)
	mockService.On("History", mock.Anything, "a", 0).Return(nil, service.ErrHistoryDisabled)

	w := get(setupRouter(mockService), "/sessions/a/history")

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestRouter_AuthProtectsSessionsNotHealth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockService := new(MockSessionService)
	mockService.On("Sessions").Return([]sandbox.SessionInfo{})
	router := NewRouter(RouterConfig{Sessions: mockService, Auth: fixedTokens{}})

	assert.Equal(t, http.StatusOK, get(router, "/health").Code)
	assert.Equal(t, http.StatusUnauthorized, get(router, "/sessions").Code)
	assert.Equal(t, http.StatusUnauthorized, get(router, "/sessions", "Authorization", "Bearer bad").Code)
	assert.Equal(t, http.StatusOK, get(router, "/sessions", "Authorization", "Bearer good").Code)
	assert.Equal(t, http.StatusOK, get(router, "/sessions?token=good").Code)
}
