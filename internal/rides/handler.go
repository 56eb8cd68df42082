package rides

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/goride/dispatch/internal/models"
	"github.com/goride/dispatch/pkg/common"
)

// Service is the ride surface the handler depends on.
type Service interface {
	CreateRide(ctx context.Context, req *models.CreateRideRequest, idempotencyKey string) (*models.RideOut, error)
	GetRide(ctx context.Context, rideID int64) (*models.RideDetail, error)
}

// Handler exposes ride endpoints.
type Handler struct {
	rides Service
}

// NewHandler creates a rides handler.
func NewHandler(rides Service) *Handler {
	return &Handler{rides: rides}
}

// RegisterRoutes mounts the ride routes on the group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/rides", h.CreateRide)
	rg.GET("/rides/:id", h.GetRide)
}

// CreateRide handles POST /v1/rides.
func (h *Handler) CreateRide(c *gin.Context) {
	var req models.CreateRideRequest
	if !common.BindJSON(c, &req) {
		return
	}

	idempotencyKey := c.GetHeader("Idempotency-Key")

	out, err := h.rides.CreateRide(c.Request.Context(), &req, idempotencyKey)
	if common.HandleServiceError(c, err, "failed to create ride") {
		return
	}

	c.JSON(http.StatusOK, out)
}

// GetRide handles GET /v1/rides/{id}.
func (h *Handler) GetRide(c *gin.Context) {
	rideID, ok := common.ParseIDParam(c, "id", "ride ID")
	if !ok {
		return
	}

	detail, err := h.rides.GetRide(c.Request.Context(), rideID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			common.AppErrorResponse(c, common.NewNotFoundError("ride not found", err))
			return
		}
		common.HandleServiceError(c, err, "failed to get ride")
		return
	}

	c.JSON(http.StatusOK, detail)
}
