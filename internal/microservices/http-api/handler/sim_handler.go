package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"sdsim/internal/microservices/http-api/dto"
	"sdsim/internal/microservices/http-api/service"
)

type SimHandler struct {
	simService service.SimService
}

func NewSimHandler(simService service.SimService) *SimHandler {
	return &SimHandler{simService: simService}
}

// RegisterRoutes registers the simulation pacing routes
func (h *SimHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/step", h.Step)
}

// Step runs one tick of the controller's time_step. It is only valid while
// a controller holds the clock in synchronous mode.
func (h *SimHandler) Step(c *gin.Context) {
	res, err := h.simService.Step()
	if err != nil {
		if errors.Is(err, service.ErrNotSynchronous) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, dto.StepResponse{TimeStep: res.TimeStep, SimTime: res.SimTime})
}
