package payment

import (
	"context"
	"fmt"
	"sync"

	"telegram-image-ai/internal/domain/model"
	"telegram-image-ai/internal/domain/ports/adapter"
)

var _ adapter.PaymentGateway = (*NoopPaymentGateway)(nil)

// NoopPaymentGateway is a simple in-memory gateway to use in tests and
// local development.
type NoopPaymentGateway struct {
	mu      sync.Mutex
	seq     int64
	intents map[string]model.PaymentStatus
}

func NewNoopPaymentGateway() *NoopPaymentGateway {
	return &NoopPaymentGateway{
		intents: make(map[string]model.PaymentStatus),
	}
}

func (g *NoopPaymentGateway) Name() string { return "noop" }

func (g *NoopPaymentGateway) CreatePayment(ctx context.Context, userID string, pkg model.TokenPackage, description string) (string, string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seq++
	id := fmt.Sprintf("noop-%d", g.seq)
	g.intents[id] = model.PaymentStatusPending
	return id, "https://example.test/pay/" + id, nil
}

func (g *NoopPaymentGateway) FetchStatus(ctx context.Context, externalID string) (model.PaymentStatus, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	st, ok := g.intents[externalID]
	if !ok {
		return "", fmt.Errorf("noop: payment %s not found", externalID)
	}
	return st, nil
}

// SetStatus lets tests drive the gateway-side status of a payment.
func (g *NoopPaymentGateway) SetStatus(externalID string, st model.PaymentStatus) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.intents[externalID] = st
}
