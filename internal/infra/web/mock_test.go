//go:build !integration

package web

import (
	"context"
	"io"
	"time"

	"github.com/rs/zerolog"

	"telegram-image-ai/internal/domain/model"
	"telegram-image-ai/internal/usecase"
)

// --- Mock use cases (the handlers' only dependencies) ---

type mockDispatcherUC struct {
	usecase.DispatcherUseCase // embed for forward compatibility
	SubmitFunc                func(ctx context.Context, userID string, payload model.JobPayload) (*model.Job, error)
	CancelFunc                func(ctx context.Context, userID, jobID string) (*model.Job, error)
	JobStatusFunc             func(ctx context.Context, userID, jobID string) (*model.Job, error)
	ListJobsFunc              func(ctx context.Context, userID string, limit int) ([]*model.Job, error)
}

func (m *mockDispatcherUC) Submit(ctx context.Context, userID string, payload model.JobPayload) (*model.Job, error) {
	return m.SubmitFunc(ctx, userID, payload)
}

func (m *mockDispatcherUC) Cancel(ctx context.Context, userID, jobID string) (*model.Job, error) {
	return m.CancelFunc(ctx, userID, jobID)
}

func (m *mockDispatcherUC) JobStatus(ctx context.Context, userID, jobID string) (*model.Job, error) {
	return m.JobStatusFunc(ctx, userID, jobID)
}

func (m *mockDispatcherUC) ListJobs(ctx context.Context, userID string, limit int) ([]*model.Job, error) {
	return m.ListJobsFunc(ctx, userID, limit)
}

type mockLedgerUC struct {
	usecase.LedgerUseCase
	BalanceFunc     func(ctx context.Context, userID string) (*model.Account, error)
	HistoryFunc     func(ctx context.Context, userID string, limit int) ([]*model.LedgerEntry, error)
	AdminAdjustFunc func(ctx context.Context, userID string, delta int64, referenceID string) (*model.Account, error)
}

func (m *mockLedgerUC) Balance(ctx context.Context, userID string) (*model.Account, error) {
	return m.BalanceFunc(ctx, userID)
}

func (m *mockLedgerUC) History(ctx context.Context, userID string, limit int) ([]*model.LedgerEntry, error) {
	return m.HistoryFunc(ctx, userID, limit)
}

func (m *mockLedgerUC) AdminAdjust(ctx context.Context, userID string, delta int64, referenceID string) (*model.Account, error) {
	return m.AdminAdjustFunc(ctx, userID, delta, referenceID)
}

type mockPaymentUC struct {
	usecase.PaymentUseCase
	InitiateFunc           func(ctx context.Context, userID, packageKey string) (*model.Payment, error)
	HandleNotificationFunc func(ctx context.Context, payload []byte, signature string) (usecase.NotificationOutcome, error)
	PackagesFunc           func() []model.TokenPackage
}

func (m *mockPaymentUC) Initiate(ctx context.Context, userID, packageKey string) (*model.Payment, error) {
	return m.InitiateFunc(ctx, userID, packageKey)
}

func (m *mockPaymentUC) HandleNotification(ctx context.Context, payload []byte, signature string) (usecase.NotificationOutcome, error) {
	return m.HandleNotificationFunc(ctx, payload, signature)
}

func (m *mockPaymentUC) Packages() []model.TokenPackage {
	if m.PackagesFunc != nil {
		return m.PackagesFunc()
	}
	return nil
}

type mockStatsUC struct {
	SnapshotFunc func(ctx context.Context) (*usecase.Stats, error)
}

func (m *mockStatsUC) Snapshot(ctx context.Context) (*usecase.Stats, error) {
	return m.SnapshotFunc(ctx)
}

var _ usecase.StatsUseCase = (*mockStatsUC)(nil)

// newTestLogger creates a silent zerolog.Logger for use in tests.
func newTestLogger() *zerolog.Logger {
	logger := zerolog.New(io.Discard)
	return &logger
}

const testAdminKey = "test-admin-key"

func newTestAuth() *AuthManager {
	return NewAuthManager("test-secret", false, "", 30*time.Minute)
}
