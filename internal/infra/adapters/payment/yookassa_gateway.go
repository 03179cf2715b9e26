package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"

	"telegram-image-ai/internal/domain/model"
	"telegram-image-ai/internal/domain/ports/adapter"
)

var _ adapter.PaymentGateway = (*YooKassaGateway)(nil)

// YooKassaGateway implements adapter.PaymentGateway against the YooKassa
// REST API. Payment creation is idempotent on the Idempotence-Key header.
type YooKassaGateway struct {
	shopID    string
	secretKey string
	returnURL string
	base      string
	client    *http.Client
}

func NewYooKassaGateway(shopID, secretKey, returnURL string) (*YooKassaGateway, error) {
	if shopID == "" || secretKey == "" {
		return nil, errors.New("yookassa credentials empty")
	}
	if _, err := url.Parse(returnURL); err != nil {
		return nil, fmt.Errorf("invalid return url: %w", err)
	}
	return &YooKassaGateway{
		shopID:    shopID,
		secretKey: secretKey,
		returnURL: returnURL,
		base:      "https://api.yookassa.ru/v3",
		client:    &http.Client{Timeout: 15 * time.Second},
	}, nil
}

func (y *YooKassaGateway) Name() string { return "yookassa" }

func (y *YooKassaGateway) CreatePayment(ctx context.Context, userID string, pkg model.TokenPackage, description string) (string, string, error) {
	payload := map[string]any{
		"amount": map[string]any{
			"value":    fmt.Sprintf("%d.00", pkg.Price),
			"currency": "RUB",
		},
		"capture":     true,
		"description": description,
		"confirmation": map[string]any{
			"type":       "redirect",
			"return_url": y.returnURL,
		},
		"metadata": map[string]any{
			"user_id": userID,
			"package": pkg.Key,
		},
	}
	b, _ := json.Marshal(payload)
	req, _ := http.NewRequestWithContext(ctx, http.MethodPost, y.base+"/payments", bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotence-Key", uuid.NewString())
	req.SetBasicAuth(y.shopID, y.secretKey)

	resp, err := y.client.Do(req)
	if err != nil {
		return "", "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", "", fmt.Errorf("yookassa create http %d", resp.StatusCode)
	}

	var out struct {
		ID           string `json:"id"`
		Status       string `json:"status"`
		Confirmation struct {
			ConfirmationURL string `json:"confirmation_url"`
		} `json:"confirmation"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", "", err
	}
	if out.ID == "" {
		return "", "", errors.New("yookassa create returned no payment id")
	}
	return out.ID, out.Confirmation.ConfirmationURL, nil
}

func (y *YooKassaGateway) FetchStatus(ctx context.Context, externalID string) (model.PaymentStatus, error) {
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, y.base+"/payments/"+externalID, nil)
	req.SetBasicAuth(y.shopID, y.secretKey)

	resp, err := y.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("yookassa status http %d", resp.StatusCode)
	}

	var out struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	switch out.Status {
	case "succeeded":
		return model.PaymentStatusConfirmed, nil
	case "canceled":
		return model.PaymentStatusRejected, nil
	case "pending", "waiting_for_capture":
		return model.PaymentStatusPending, nil
	default:
		return "", fmt.Errorf("yookassa unknown status %q", out.Status)
	}
}
