package client

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sdsim/internal/microservices/http-api/handler"
	"sdsim/internal/microservices/http-api/service"
	"sdsim/internal/microservices/tcp"
	"sdsim/internal/sandbox"
	"sdsim/internal/shared"
)

type noSessions struct{}

func (noSessions) Sessions() []sandbox.SessionInfo { return nil }
func (noSessions) Progress(string) (shared.ProgressSnapshot, bool) { return shared.ProgressSnapshot{}, false }

func TestOperatorLogin_TokenOpensControllerSessions(t *testing.T) {
	const secret = "0123456789abcdef0123456789abcdef"
	tokens := tcp.NewTCPAuthService(secret)
	hash, err := service.HashPassword("hunter22")
	require.NoError(t, err)
	login, err := service.NewAuthService("operator", hash, tokens, time.Hour)
	require.NoError(t, err)

	gin.SetMode(gin.TestMode)
	admin := httptest.NewServer(handler.NewRouter(handler.RouterConfig{
		Sessions: service.NewSessionService(noSessions{}, nil, nil),
		Auth:     tokens,
		Login:    login,
	}))
	defer admin.Close()

	auth, err := OperatorLogin(admin.URL+"/", "operator", "hunter22", 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "operator", auth.Username)
	assert.Equal(t, int64(3600), auth.ExpiresIn)

	_, username, err := tokens.ValidateToken(auth.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "operator", username)

	_, err = OperatorLogin(admin.URL, "operator", "wrong", 2*time.Second)
	assert.ErrorContains(t, err, "401")
}

type pausedClock struct {
	synchronous bool
	now         float64
}

func (c *pausedClock) Step() (float64, error) {
	if !c.synchronous {
		return 0, sandbox.ErrNotSynchronous
	}
	c.now += 0.1
	return 0.1, nil
}

func (c *pausedClock) TimeSinceLevelLoad() float64 { return c.now }

func TestStepSim(t *testing.T) {
	clock := &pausedClock{}
	gin.SetMode(gin.TestMode)
	admin := httptest.NewServer(handler.NewRouter(handler.RouterConfig{
		Sessions: service.NewSessionService(noSessions{}, nil, nil),
		Sim:      service.NewSimService(clock, clock),
	}))
	defer admin.Close()

	_, err := StepSim(admin.URL, "", 2*time.Second)
	assert.ErrorContains(t, err, "409")

	clock.synchronous = true
	step, err := StepSim(admin.URL, "", 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, 0.1, step.TimeStep)
	assert.InDelta(t, 0.1, step.SimTime, 1e-9)
}
