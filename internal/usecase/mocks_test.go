//go:build !integration

// File: internal/usecase/mocks_test.go
package usecase_test

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"telegram-image-ai/internal/domain"
	"telegram-image-ai/internal/domain/model"
	"telegram-image-ai/internal/domain/ports/adapter"
	"telegram-image-ai/internal/domain/ports/repository"
)

// =============================
// Repositories
// =============================

// memAccountRepo is a small in-memory ledger used by unit tests. It keeps
// the same contract as the Postgres implementation: the (reason, reference)
// pair deduplicates and a duplicate returns the current account alongside
// domain.ErrDuplicateReference.
type memAccountRepo struct {
	mu       sync.Mutex
	accounts map[string]*model.Account
	entries  []*model.LedgerEntry
	seen     map[string]struct{} // reason + "\x00" + reference

	DebitErr  error // simulate failures
	CreditErr error
}

func newMemAccountRepo() *memAccountRepo {
	return &memAccountRepo{
		accounts: make(map[string]*model.Account),
		seen:     make(map[string]struct{}),
	}
}

var _ repository.AccountRepository = (*memAccountRepo)(nil)

func (m *memAccountRepo) Ensure(ctx context.Context, qx any, userID string, referrerID *string) (*model.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if acc, ok := m.accounts[userID]; ok {
		cp := *acc
		return &cp, nil
	}
	acc := &model.Account{UserID: userID, ReferrerID: referrerID, CreatedAt: time.Now(), UpdatedAt: time.Now()}
	m.accounts[userID] = acc
	cp := *acc
	return &cp, nil
}

func (m *memAccountRepo) FindByUserID(ctx context.Context, qx any, userID string) (*model.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	acc, ok := m.accounts[userID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *acc
	return &cp, nil
}

func (m *memAccountRepo) mutate(userID string, delta int64, reason model.LedgerReason, referenceID string) (*model.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	acc, ok := m.accounts[userID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	key := string(reason) + "\x00" + referenceID
	if _, dup := m.seen[key]; dup {
		cp := *acc
		return &cp, domain.ErrDuplicateReference
	}
	if acc.Balance+delta < 0 {
		return nil, domain.ErrInsufficientBalance
	}
	m.seen[key] = struct{}{}
	acc.Balance += delta
	acc.Version++
	acc.UpdatedAt = time.Now()
	m.entries = append(m.entries, &model.LedgerEntry{
		ID:           fmt.Sprintf("entry-%d", len(m.entries)+1),
		UserID:       userID,
		Delta:        delta,
		Reason:       reason,
		ReferenceID:  referenceID,
		BalanceAfter: acc.Balance,
		CreatedAt:    time.Now(),
	})
	cp := *acc
	return &cp, nil
}

func (m *memAccountRepo) Debit(ctx context.Context, qx any, userID string, amount int64, reason model.LedgerReason, referenceID string) (*model.Account, error) {
	if m.DebitErr != nil {
		return nil, m.DebitErr
	}
	if amount <= 0 {
		return nil, domain.ErrInvalidArgument
	}
	return m.mutate(userID, -amount, reason, referenceID)
}

func (m *memAccountRepo) Credit(ctx context.Context, qx any, userID string, amount int64, reason model.LedgerReason, referenceID string) (*model.Account, error) {
	if m.CreditErr != nil {
		return nil, m.CreditErr
	}
	if amount <= 0 {
		return nil, domain.ErrInvalidArgument
	}
	return m.mutate(userID, amount, reason, referenceID)
}

func (m *memAccountRepo) ListEntries(ctx context.Context, qx any, userID string, limit int) ([]*model.LedgerEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.LedgerEntry
	for i := len(m.entries) - 1; i >= 0 && len(out) < limit; i-- {
		if m.entries[i].UserID == userID {
			cp := *m.entries[i]
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memAccountRepo) SumEntryDeltas(ctx context.Context, qx any, userID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var sum int64
	for _, e := range m.entries {
		if e.UserID == userID {
			sum += e.Delta
		}
	}
	return sum, nil
}

// ---- In-memory JobRepository ----

type memJobRepo struct {
	mu   sync.Mutex
	jobs map[string]*model.Job

	CreateErr error
}

func newMemJobRepo() *memJobRepo {
	return &memJobRepo{jobs: make(map[string]*model.Job)}
}

var _ repository.JobRepository = (*memJobRepo)(nil)

func (m *memJobRepo) Create(ctx context.Context, qx any, job *model.Job) error {
	if m.CreateErr != nil {
		return m.CreateErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *job
	m.jobs[job.ID] = &cp
	return nil
}

func (m *memJobRepo) FindByID(ctx context.Context, qx any, id string) (*model.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *j
	return &cp, nil
}

func (m *memJobRepo) ListByUser(ctx context.Context, qx any, userID string, limit int) ([]*model.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Job
	for _, j := range m.jobs {
		if j.UserID == userID && len(out) < limit {
			cp := *j
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memJobRepo) cas(id string, from []model.JobStatus, apply func(*model.Job)) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return false, nil
	}
	match := false
	for _, s := range from {
		if j.Status == s {
			match = true
			break
		}
	}
	if !match {
		return false, nil
	}
	apply(j)
	j.UpdatedAt = time.Now()
	return true, nil
}

func (m *memJobRepo) MarkLeased(ctx context.Context, qx any, id, owner string, leaseUntil time.Time) (bool, error) {
	return m.cas(id, []model.JobStatus{model.JobStatusQueued}, func(j *model.Job) {
		j.Status = model.JobStatusLeased
		j.LeaseOwner = owner
		j.LeaseExpiresAt = &leaseUntil
	})
}

func (m *memJobRepo) MarkSucceeded(ctx context.Context, qx any, id, resultRef string) (bool, error) {
	return m.cas(id, []model.JobStatus{model.JobStatusLeased}, func(j *model.Job) {
		j.Status = model.JobStatusSucceeded
		j.ResultRef = resultRef
		j.LeaseOwner = ""
		j.LeaseExpiresAt = nil
	})
}

func (m *memJobRepo) MarkFailed(ctx context.Context, qx any, id, lastError string) (bool, error) {
	return m.cas(id, []model.JobStatus{model.JobStatusLeased}, func(j *model.Job) {
		j.Status = model.JobStatusFailed
		j.LastError = lastError
		j.LeaseOwner = ""
		j.LeaseExpiresAt = nil
	})
}

func (m *memJobRepo) MarkRefunded(ctx context.Context, qx any, id string) (bool, error) {
	return m.cas(id, []model.JobStatus{model.JobStatusFailed, model.JobStatusCancelled}, func(j *model.Job) {
		j.Status = model.JobStatusRefunded
	})
}

func (m *memJobRepo) MarkCancelled(ctx context.Context, qx any, id string) (bool, error) {
	return m.cas(id, []model.JobStatus{model.JobStatusQueued}, func(j *model.Job) {
		j.Status = model.JobStatusCancelled
		j.CancelRequested = true
	})
}

func (m *memJobRepo) RequestCancel(ctx context.Context, qx any, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return domain.ErrNotFound
	}
	j.CancelRequested = true
	return nil
}

func (m *memJobRepo) ReleaseForRetry(ctx context.Context, qx any, id, lastError string) (bool, error) {
	return m.cas(id, []model.JobStatus{model.JobStatusLeased}, func(j *model.Job) {
		j.Status = model.JobStatusQueued
		j.LeaseOwner = ""
		j.LeaseExpiresAt = nil
		j.AttemptCount++
		j.LastError = lastError
	})
}

func (m *memJobRepo) ReclaimExpiredLeases(ctx context.Context, qx any, now time.Time, limit int) ([]*model.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Job
	for _, j := range m.jobs {
		if len(out) >= limit {
			break
		}
		if j.Status == model.JobStatusLeased && j.LeaseExpiresAt != nil && j.LeaseExpiresAt.Before(now) {
			j.Status = model.JobStatusQueued
			j.LeaseOwner = ""
			j.LeaseExpiresAt = nil
			j.AttemptCount++
			j.UpdatedAt = now
			cp := *j
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memJobRepo) ListQueuedStalerThan(ctx context.Context, qx any, cutoff time.Time, limit int) ([]*model.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Job
	for _, j := range m.jobs {
		if j.Status == model.JobStatusQueued && j.UpdatedAt.Before(cutoff) && len(out) < limit {
			cp := *j
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memJobRepo) ListUnrefundedOlderThan(ctx context.Context, qx any, cutoff time.Time, limit int) ([]*model.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Job
	for _, j := range m.jobs {
		if (j.Status == model.JobStatusFailed || j.Status == model.JobStatusCancelled) && j.UpdatedAt.Before(cutoff) && len(out) < limit {
			cp := *j
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memJobRepo) CountByStatus(ctx context.Context, qx any) (map[model.JobStatus]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[model.JobStatus]int64)
	for _, j := range m.jobs {
		out[j.Status]++
	}
	return out, nil
}

// ---- In-memory PaymentRepository ----

type memPaymentRepo struct {
	mu       sync.Mutex
	payments map[string]*model.Payment
}

func newMemPaymentRepo() *memPaymentRepo {
	return &memPaymentRepo{payments: make(map[string]*model.Payment)}
}

var _ repository.PaymentRepository = (*memPaymentRepo)(nil)

func (m *memPaymentRepo) Insert(ctx context.Context, qx any, p *model.Payment) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.payments[p.ID]; ok {
		return false, nil
	}
	cp := *p
	m.payments[p.ID] = &cp
	return true, nil
}

func (m *memPaymentRepo) FindByID(ctx context.Context, qx any, id string) (*model.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *memPaymentRepo) flipIfPending(id string, to model.PaymentStatus) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[id]
	if !ok {
		return false, nil
	}
	if p.Status != model.PaymentStatusPending {
		return false, nil
	}
	p.Status = to
	p.UpdatedAt = time.Now()
	return true, nil
}

func (m *memPaymentRepo) MarkConfirmedIfPending(ctx context.Context, qx any, id string) (bool, error) {
	return m.flipIfPending(id, model.PaymentStatusConfirmed)
}

func (m *memPaymentRepo) MarkRejectedIfPending(ctx context.Context, qx any, id string) (bool, error) {
	return m.flipIfPending(id, model.PaymentStatusRejected)
}

func (m *memPaymentRepo) ListPendingOlderThan(ctx context.Context, qx any, cutoff time.Time, limit int) ([]*model.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Payment
	for _, p := range m.payments {
		if p.Status == model.PaymentStatusPending && p.ReceivedAt.Before(cutoff) && len(out) < limit {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memPaymentRepo) SumTokensConfirmedSince(ctx context.Context, qx any, since time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var sum int64
	for _, p := range m.payments {
		if p.Status == model.PaymentStatusConfirmed && !p.UpdatedAt.Before(since) {
			sum += p.AmountTokens
		}
	}
	return sum, nil
}

// =============================
// Adapters
// =============================

// ---- In-memory JobQueue ----

type memQueue struct {
	mu      sync.Mutex
	entries map[string]time.Time

	EnqueueErr error
}

func newMemQueue() *memQueue {
	return &memQueue{entries: make(map[string]time.Time)}
}

var _ adapter.JobQueue = (*memQueue)(nil)

func (q *memQueue) Enqueue(ctx context.Context, jobID string, availableAt time.Time) error {
	if q.EnqueueErr != nil {
		return q.EnqueueErr
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.entries[jobID]; !ok {
		q.entries[jobID] = availableAt
	}
	return nil
}

func (q *memQueue) Dequeue(ctx context.Context) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	now := time.Now()
	for id, at := range q.entries {
		if !at.After(now) {
			delete(q.entries, id)
			return id, nil
		}
	}
	return "", domain.ErrQueueEmpty
}

func (q *memQueue) Pending(ctx context.Context) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return int64(len(q.entries)), nil
}

func (q *memQueue) has(jobID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.entries[jobID]
	return ok
}

// ---- Mock PaymentGateway ----

type MockPaymentGateway struct {
	mu       sync.Mutex
	seq      int
	statuses map[string]model.PaymentStatus

	CreateErr error
	FetchErr  error
}

func NewMockPaymentGateway() *MockPaymentGateway {
	return &MockPaymentGateway{statuses: make(map[string]model.PaymentStatus)}
}

var _ adapter.PaymentGateway = (*MockPaymentGateway)(nil)

func (g *MockPaymentGateway) Name() string { return "mock" }

func (g *MockPaymentGateway) CreatePayment(ctx context.Context, userID string, pkg model.TokenPackage, description string) (string, string, error) {
	if g.CreateErr != nil {
		return "", "", g.CreateErr
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seq++
	id := fmt.Sprintf("pay-%d", g.seq)
	g.statuses[id] = model.PaymentStatusPending
	return id, "https://pay.example/" + id, nil
}

func (g *MockPaymentGateway) FetchStatus(ctx context.Context, externalID string) (model.PaymentStatus, error) {
	if g.FetchErr != nil {
		return "", g.FetchErr
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	st, ok := g.statuses[externalID]
	if !ok {
		return "", domain.ErrNotFound
	}
	return st, nil
}

func (g *MockPaymentGateway) SetStatus(id string, st model.PaymentStatus) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.statuses[id] = st
}

// ---- Mock ResultNotifier ----

type MockNotifier struct {
	mu        sync.Mutex
	Succeeded []string // job ids
	Failed    []string
	Credited  []int64 // token amounts
}

var _ adapter.ResultNotifier = (*MockNotifier)(nil)

func (n *MockNotifier) NotifyJobSucceeded(ctx context.Context, userID string, job *model.Job) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Succeeded = append(n.Succeeded, job.ID)
	return nil
}

func (n *MockNotifier) NotifyJobFailed(ctx context.Context, userID string, job *model.Job) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Failed = append(n.Failed, job.ID)
	return nil
}

func (n *MockNotifier) NotifyTokensCredited(ctx context.Context, userID string, tokens, newBalance int64) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Credited = append(n.Credited, tokens)
	return nil
}

// =============================
// Infra helpers for tests
// =============================

// ---- Mock TransactionManager ----

type MockTxManager struct {
	WithTxFunc func(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error
}

func NewMockTxManager() *MockTxManager {
	return &MockTxManager{}
}

var _ repository.TransactionManager = (*MockTxManager)(nil)

// WithTx runs the function immediately without a real transaction. Tests
// that need transactional failure modes assign a custom WithTxFunc.
func (m *MockTxManager) WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	if m.WithTxFunc != nil {
		return m.WithTxFunc(ctx, txOpt, fn)
	}
	return fn(ctx, repository.NoTX)
}

// newTestLogger creates a silent zerolog.Logger for use in tests.
func newTestLogger() *zerolog.Logger {
	logger := zerolog.New(io.Discard)
	return &logger
}
