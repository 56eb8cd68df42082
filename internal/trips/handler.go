package trips

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/goride/dispatch/internal/models"
	"github.com/goride/dispatch/pkg/common"
)

// Closer is the trip-closing surface the handler depends on.
type Closer interface {
	Close(ctx context.Context, tripID int64, endLoc *models.Location, now time.Time) (*models.Trip, *models.Payment, error)
}

// Handler exposes trip endpoints.
type Handler struct {
	trips Closer
}

// NewHandler creates a trips handler.
func NewHandler(trips Closer) *Handler {
	return &Handler{trips: trips}
}

// RegisterRoutes mounts the trip routes on the group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/trips/:id/end", h.EndTrip)
}

// EndTrip handles POST /v1/trips/{id}/end.
func (h *Handler) EndTrip(c *gin.Context) {
	tripID, ok := common.ParseIDParam(c, "id", "trip ID")
	if !ok {
		return
	}

	var req models.EndTripRequest
	if !common.BindJSON(c, &req) {
		return
	}

	var endLoc *models.Location
	if req.EndLat != nil && req.EndLon != nil {
		endLoc = &models.Location{Lat: *req.EndLat, Lon: *req.EndLon}
	}

	trip, _, err := h.trips.Close(c.Request.Context(), tripID, endLoc, time.Now())
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			common.AppErrorResponse(c, common.NewNotFoundError("trip not found", err))
			return
		}
		if errors.Is(err, common.ErrIllegalState) {
			common.AppErrorResponse(c, common.NewIllegalStateError("trip is not ongoing"))
			return
		}
		common.HandleServiceError(c, err, "failed to end trip")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"trip_id": trip.ID,
		"fare":    trip.Fare,
		"status":  trip.Status,
	})
}
