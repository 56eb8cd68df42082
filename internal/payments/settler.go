package payments

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/goride/dispatch/internal/models"
	"github.com/goride/dispatch/pkg/logger"
)

var settlements = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "dispatch_payment_settlements_total",
		Help: "Payment settlement attempts by result",
	},
	[]string{"result"},
)

// Store is the persistence surface the settler needs. SettlePayment only
// moves a pending payment, so settling twice is harmless.
type Store interface {
	GetPayment(ctx context.Context, id int64) (*models.Payment, error)
	SettlePayment(ctx context.Context, paymentID int64, status models.PaymentStatus, providerResponse []byte) (bool, error)
}

// Settler advances pending payments to a terminal state through the provider,
// one single-shot task per enqueued payment, after a fixed delay.
type Settler struct {
	store    Store
	provider Provider
	delay    time.Duration

	wg   sync.WaitGroup
	done chan struct{}
	once sync.Once
}

// NewSettler creates a settler with the given settlement delay.
func NewSettler(store Store, provider Provider, delay time.Duration) *Settler {
	return &Settler{
		store:    store,
		provider: provider,
		delay:    delay,
		done:     make(chan struct{}),
	}
}

// Enqueue schedules a single settlement attempt for the payment. The task
// outlives the request that completed the trip; it carries its own context.
func (s *Settler) Enqueue(paymentID int64) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		timer := time.NewTimer(s.delay)
		defer timer.Stop()

		select {
		case <-s.done:
			return
		case <-timer.C:
		}

		s.settle(context.Background(), paymentID)
	}()
}

// Shutdown cancels queued settlements that have not started and waits for
// in-flight ones to finish.
func (s *Settler) Shutdown() {
	s.once.Do(func() { close(s.done) })
	s.wg.Wait()
}

func (s *Settler) settle(ctx context.Context, paymentID int64) {
	payment, err := s.store.GetPayment(ctx, paymentID)
	if err != nil {
		logger.Error("settlement failed to load payment",
			zap.Int64("payment_id", paymentID), zap.Error(err))
		settlements.WithLabelValues("error").Inc()
		return
	}

	if payment.Status.Terminal() {
		settlements.WithLabelValues("already_settled").Inc()
		return
	}

	status, response, err := s.provider.Charge(ctx, payment)
	if err != nil {
		logger.Error("payment provider charge failed",
			zap.Int64("payment_id", paymentID), zap.Error(err))
		status = models.PaymentStatusFailed
	}

	updated, err := s.store.SettlePayment(ctx, paymentID, status, response)
	if err != nil {
		logger.Error("failed to settle payment",
			zap.Int64("payment_id", paymentID), zap.Error(err))
		settlements.WithLabelValues("error").Inc()
		return
	}

	if !updated {
		// Lost a race with another settlement attempt; the payment is
		// already terminal.
		settlements.WithLabelValues("already_settled").Inc()
		return
	}

	logger.Info("payment settled",
		zap.Int64("payment_id", paymentID), zap.String("status", string(status)))
	settlements.WithLabelValues(string(status)).Inc()
}
