package drivers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/goride/dispatch/internal/models"
	"github.com/goride/dispatch/pkg/common"
)

// Registry persists driver records.
type Registry interface {
	UpsertDriver(ctx context.Context, driverID int64) error
}

// GeoIndex records live driver positions.
type GeoIndex interface {
	Upsert(ctx context.Context, driverID int64, lat, lon float64, now time.Time) error
}

// Assignments resolves offers on the driver's behalf.
type Assignments interface {
	Accept(ctx context.Context, driverID, assignmentID int64, now time.Time) (*models.Trip, error)
	Decline(ctx context.Context, driverID, assignmentID int64) error
}

// Handler exposes driver endpoints.
type Handler struct {
	registry    Registry
	index       GeoIndex
	assignments Assignments
}

// NewHandler creates a drivers handler.
func NewHandler(registry Registry, index GeoIndex, assignments Assignments) *Handler {
	return &Handler{registry: registry, index: index, assignments: assignments}
}

// RegisterRoutes mounts the driver routes on the group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/drivers/:id/location", h.ReportLocation)
	rg.POST("/drivers/:id/accept", h.Accept)
	rg.POST("/drivers/:id/decline", h.Decline)
}

// ReportLocation handles POST /v1/drivers/{id}/location. Drivers are
// registered implicitly on their first report.
func (h *Handler) ReportLocation(c *gin.Context) {
	driverID, ok := common.ParseIDParam(c, "id", "driver ID")
	if !ok {
		return
	}

	var report models.LocationReport
	if !common.BindJSON(c, &report) {
		return
	}

	ctx := c.Request.Context()
	if err := h.registry.UpsertDriver(ctx, driverID); err != nil {
		common.HandleServiceError(c, err, "failed to register driver")
		return
	}

	if err := h.index.Upsert(ctx, driverID, report.Lat, report.Lon, time.Now()); err != nil {
		common.HandleServiceError(c, err, "failed to record driver position")
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Accept handles POST /v1/drivers/{id}/accept.
func (h *Handler) Accept(c *gin.Context) {
	driverID, ok := common.ParseIDParam(c, "id", "driver ID")
	if !ok {
		return
	}

	var req models.AcceptRequest
	if !common.BindJSON(c, &req) {
		return
	}

	trip, err := h.assignments.Accept(c.Request.Context(), driverID, req.AssignmentID, time.Now())
	if err != nil {
		if errors.Is(err, common.ErrCannotAccept) {
			common.AppErrorResponse(c, common.NewCannotAcceptError("assignment cannot be accepted"))
			return
		}
		common.HandleServiceError(c, err, "failed to accept assignment")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"trip_id": trip.ID,
		"status":  trip.Status,
	})
}

// Decline handles POST /v1/drivers/{id}/decline.
func (h *Handler) Decline(c *gin.Context) {
	driverID, ok := common.ParseIDParam(c, "id", "driver ID")
	if !ok {
		return
	}

	var req models.DeclineRequest
	if !common.BindJSON(c, &req) {
		return
	}

	err := h.assignments.Decline(c.Request.Context(), driverID, req.AssignmentID)
	if err != nil {
		if errors.Is(err, common.ErrCannotAccept) {
			common.AppErrorResponse(c, common.NewCannotAcceptError("assignment cannot be declined"))
			return
		}
		common.HandleServiceError(c, err, "failed to decline assignment")
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "declined"})
}
