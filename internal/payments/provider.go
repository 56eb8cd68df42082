package payments

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/goride/dispatch/internal/models"
)

// Provider charges a payment against an external payment backend and returns
// the terminal status plus the provider's raw response.
type Provider interface {
	Charge(ctx context.Context, payment *models.Payment) (models.PaymentStatus, []byte, error)
}

// SimulatedProvider approves every charge. It stands in for a real payment
// gateway integration.
type SimulatedProvider struct{}

// NewSimulatedProvider creates the stub provider.
func NewSimulatedProvider() *SimulatedProvider {
	return &SimulatedProvider{}
}

// Charge always succeeds with a synthetic provider reference.
func (p *SimulatedProvider) Charge(_ context.Context, payment *models.Payment) (models.PaymentStatus, []byte, error) {
	response, err := json.Marshal(map[string]string{
		"provider": "simulated",
		"id":       fmt.Sprintf("pay_%d", payment.ID),
	})
	if err != nil {
		return models.PaymentStatusFailed, nil, err
	}
	return models.PaymentStatusSuccess, response, nil
}
