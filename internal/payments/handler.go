package payments

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/goride/dispatch/internal/models"
	"github.com/goride/dispatch/pkg/common"
)

// ReceiptStore assembles receipts for settled and pending payments.
type ReceiptStore interface {
	GetReceipt(ctx context.Context, tripID int64) (*models.Receipt, error)
}

// SettlementQueue schedules pending payments for settlement.
type SettlementQueue interface {
	Enqueue(paymentID int64)
}

// Handler exposes payment endpoints.
type Handler struct {
	store ReceiptStore
	queue SettlementQueue
}

// NewHandler creates a payments handler.
func NewHandler(store ReceiptStore, queue SettlementQueue) *Handler {
	return &Handler{store: store, queue: queue}
}

// RegisterRoutes mounts the payment routes on the group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/payments", h.GetReceipt)
}

// GetReceipt handles POST /v1/payments. The payment itself was created when
// the trip closed and settles in the background; this endpoint returns the
// receipt in whatever settlement state the payment is in.
func (h *Handler) GetReceipt(c *gin.Context) {
	var req models.PaymentRequest
	if !common.BindJSON(c, &req) {
		return
	}

	receipt, err := h.store.GetReceipt(c.Request.Context(), req.TripID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			common.AppErrorResponse(c, common.NewNotFoundError("no payment for trip", err))
			return
		}
		common.HandleServiceError(c, err, "failed to build receipt")
		return
	}

	if receipt.PaymentMethod == "" {
		receipt.PaymentMethod = req.Method
	}

	// A payment still pending gets another settlement attempt, so a lost
	// or failed background run does not strand it forever.
	if receipt.Status == models.PaymentStatusPending {
		h.queue.Enqueue(receipt.PaymentID)
	}

	c.JSON(http.StatusOK, receipt)
}
