// File: internal/usecase/payment_uc.go
package usecase

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"telegram-image-ai/internal/domain"
	"telegram-image-ai/internal/domain/model"
	"telegram-image-ai/internal/domain/ports/adapter"
	"telegram-image-ai/internal/domain/ports/repository"
)

var _ PaymentUseCase = (*paymentUC)(nil)

// NotificationOutcome is the internal classification of one webhook delivery.
// The transport layer answers ok regardless; this is for audit and metrics.
type NotificationOutcome string

const (
	OutcomeAccepted     NotificationOutcome = "accepted"
	OutcomeDuplicate    NotificationOutcome = "duplicate"
	OutcomeRejected     NotificationOutcome = "rejected"
	OutcomeBadSignature NotificationOutcome = "bad_signature"
	OutcomeIgnored      NotificationOutcome = "ignored" // e.g. still pending
)

// PaymentNotification is the parsed webhook payload.
type PaymentNotification struct {
	ExternalPaymentID string `json:"external_payment_id"`
	UserID            string `json:"user_id"`
	AmountTokens      int64  `json:"amount"`
	Status            string `json:"status"`
}

type PaymentUseCase interface {
	// Initiate creates a provider payment for the package and records it as
	// pending. Confirmation arrives later through HandleNotification.
	Initiate(ctx context.Context, userID, packageKey string) (*model.Payment, error)

	// HandleNotification verifies, deduplicates, and applies one webhook
	// delivery. Exactly one payment_credit entry results from any number of
	// deliveries of the same confirmed payment.
	HandleNotification(ctx context.Context, payload []byte, signature string) (NotificationOutcome, error)

	// ReconcilePending re-polls the gateway for payments stuck in pending
	// longer than staleAfter and settles them. Returns how many were moved.
	ReconcilePending(ctx context.Context, staleAfter time.Duration, limit int) (int, error)

	Packages() []model.TokenPackage
}

const referralBonusShare = 0.2 // referrer gets 20% of purchased tokens

type paymentUC struct {
	payments repository.PaymentRepository
	accounts repository.AccountRepository
	ledger   LedgerUseCase
	gateway  adapter.PaymentGateway
	notifier adapter.ResultNotifier
	tm       repository.TransactionManager
	packages []model.TokenPackage
	secret   []byte
	log      *zerolog.Logger
}

func NewPaymentUseCase(
	payments repository.PaymentRepository,
	accounts repository.AccountRepository,
	ledger LedgerUseCase,
	gateway adapter.PaymentGateway,
	notifier adapter.ResultNotifier,
	tm repository.TransactionManager,
	packages []model.TokenPackage,
	webhookSecret string,
	log *zerolog.Logger,
) *paymentUC {
	return &paymentUC{
		payments: payments,
		accounts: accounts,
		ledger:   ledger,
		gateway:  gateway,
		notifier: notifier,
		tm:       tm,
		packages: packages,
		secret:   []byte(webhookSecret),
		log:      log,
	}
}

func (u *paymentUC) Packages() []model.TokenPackage { return u.packages }

func (u *paymentUC) findPackage(key string) (model.TokenPackage, bool) {
	for _, p := range u.packages {
		if p.Key == key {
			return p, true
		}
	}
	return model.TokenPackage{}, false
}

func (u *paymentUC) Initiate(ctx context.Context, userID, packageKey string) (*model.Payment, error) {
	pkg, ok := u.findPackage(packageKey)
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownPackage, packageKey)
	}
	if _, err := u.ledger.EnsureAccount(ctx, userID, nil); err != nil {
		return nil, err
	}

	desc := fmt.Sprintf("Token package %s (%d tokens)", pkg.Name, pkg.Tokens)
	externalID, confirmURL, err := u.gateway.CreatePayment(ctx, userID, pkg, desc)
	if err != nil {
		return nil, fmt.Errorf("create payment on %s: %w", u.gateway.Name(), err)
	}

	now := time.Now()
	p := &model.Payment{
		ID:           externalID,
		UserID:       userID,
		Package:      pkg.Key,
		AmountTokens: pkg.Tokens,
		Status:       model.PaymentStatusPending,
		ConfirmURL:   confirmURL,
		ReceivedAt:   now,
		UpdatedAt:    now,
	}
	if _, err := u.payments.Insert(ctx, nil, p); err != nil {
		return nil, fmt.Errorf("save payment: %w", err)
	}
	u.log.Info().Str("payment_id", p.ID).Str("user_id", userID).Str("package", pkg.Key).Msg("payment initiated")
	return p, nil
}

// verifySignature checks the hex-encoded HMAC-SHA256 of the raw payload.
func (u *paymentUC) verifySignature(payload []byte, signature string) bool {
	if len(u.secret) == 0 || signature == "" {
		return false
	}
	mac := hmac.New(sha256.New, u.secret)
	mac.Write(payload)
	want := mac.Sum(nil)
	got, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	return hmac.Equal(want, got)
}

func (u *paymentUC) HandleNotification(ctx context.Context, payload []byte, signature string) (NotificationOutcome, error) {
	if !u.verifySignature(payload, signature) {
		// Fail closed: nothing is read from an unauthenticated payload.
		u.log.Warn().Msg("payment webhook rejected: bad signature")
		return OutcomeBadSignature, domain.ErrInvalidSignature
	}

	var n PaymentNotification
	if err := json.Unmarshal(payload, &n); err != nil {
		return OutcomeRejected, fmt.Errorf("%w: malformed notification: %v", domain.ErrInvalidArgument, err)
	}
	if n.ExternalPaymentID == "" || n.UserID == "" {
		return OutcomeRejected, fmt.Errorf("%w: notification missing ids", domain.ErrInvalidArgument)
	}

	switch n.Status {
	case string(model.PaymentStatusConfirmed):
		return u.applyConfirmation(ctx, n)
	case string(model.PaymentStatusRejected), "canceled", "cancelled":
		return u.applyRejection(ctx, n)
	default:
		u.log.Debug().Str("payment_id", n.ExternalPaymentID).Str("status", n.Status).Msg("webhook ignored: non-final status")
		return OutcomeIgnored, nil
	}
}

func (u *paymentUC) applyConfirmation(ctx context.Context, n PaymentNotification) (NotificationOutcome, error) {
	if n.AmountTokens <= 0 {
		return OutcomeRejected, fmt.Errorf("%w: non-positive token amount", domain.ErrInvalidArgument)
	}
	acc, err := u.ledger.EnsureAccount(ctx, n.UserID, nil)
	if err != nil {
		return OutcomeRejected, err
	}

	outcome := OutcomeAccepted
	err = u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		now := time.Now()
		// The webhook may be the first time we hear about this payment;
		// insert is a no-op when the initiation path already recorded it.
		_, err := u.payments.Insert(ctx, tx, &model.Payment{
			ID:           n.ExternalPaymentID,
			UserID:       n.UserID,
			AmountTokens: n.AmountTokens,
			Status:       model.PaymentStatusPending,
			ReceivedAt:   now,
			UpdatedAt:    now,
		})
		if err != nil {
			return err
		}

		won, err := u.payments.MarkConfirmedIfPending(ctx, tx, n.ExternalPaymentID)
		if err != nil {
			return err
		}
		if !won {
			// Duplicate delivery, detected before any crediting.
			outcome = OutcomeDuplicate
			return nil
		}

		// Second line of defence: the ledger's (reason, reference_id)
		// constraint would absorb a double credit even if two handlers
		// both won the race above.
		_, err = u.ledger.Credit(ctx, tx, n.UserID, n.AmountTokens, model.LedgerReasonPaymentCredit, n.ExternalPaymentID)
		return err
	})
	if err != nil {
		return OutcomeRejected, fmt.Errorf("apply payment %s: %w", n.ExternalPaymentID, err)
	}

	if outcome == OutcomeDuplicate {
		u.log.Info().Str("payment_id", n.ExternalPaymentID).Msg("duplicate payment notification absorbed")
		return outcome, nil
	}

	u.log.Info().Str("payment_id", n.ExternalPaymentID).Str("user_id", n.UserID).
		Int64("tokens", n.AmountTokens).Msg("payment confirmed and credited")

	// Referral bonus rides behind the confirmation, best-effort: a referrer
	// whose account is gone must not unwind the buyer's credit. The
	// referral-keyed reference keeps retries from ever doubling it.
	if acc.ReferrerID != nil {
		bonus := int64(float64(n.AmountTokens) * referralBonusShare)
		if bonus > 0 {
			if _, err := u.ledger.Credit(ctx, nil, *acc.ReferrerID, bonus, model.LedgerReasonAdminAdjust, "referral:"+n.ExternalPaymentID); err != nil {
				u.log.Warn().Err(err).Str("referrer_id", *acc.ReferrerID).
					Str("payment_id", n.ExternalPaymentID).Msg("referral bonus credit failed")
			}
		}
	}

	if after, err := u.accounts.FindByUserID(ctx, nil, n.UserID); err == nil {
		if err := u.notifier.NotifyTokensCredited(ctx, n.UserID, n.AmountTokens, after.Balance); err != nil {
			u.log.Warn().Err(err).Str("user_id", n.UserID).Msg("credit notification failed")
		}
	}
	return outcome, nil
}

func (u *paymentUC) applyRejection(ctx context.Context, n PaymentNotification) (NotificationOutcome, error) {
	err := u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		now := time.Now()
		if _, err := u.payments.Insert(ctx, tx, &model.Payment{
			ID:           n.ExternalPaymentID,
			UserID:       n.UserID,
			AmountTokens: n.AmountTokens,
			Status:       model.PaymentStatusPending,
			ReceivedAt:   now,
			UpdatedAt:    now,
		}); err != nil {
			return err
		}
		_, err := u.payments.MarkRejectedIfPending(ctx, tx, n.ExternalPaymentID)
		return err
	})
	if err != nil {
		return OutcomeRejected, fmt.Errorf("record rejected payment %s: %w", n.ExternalPaymentID, err)
	}
	u.log.Info().Str("payment_id", n.ExternalPaymentID).Msg("payment rejected; balance untouched")
	return OutcomeRejected, nil
}

// ReconcilePending covers lost webhooks: payments stuck in pending are
// re-polled at the gateway and settled through the same idempotent paths.
func (u *paymentUC) ReconcilePending(ctx context.Context, staleAfter time.Duration, limit int) (int, error) {
	cutoff := time.Now().Add(-staleAfter)
	pending, err := u.payments.ListPendingOlderThan(ctx, nil, cutoff, limit)
	if err != nil {
		return 0, err
	}
	moved := 0
	for _, p := range pending {
		status, err := u.gateway.FetchStatus(ctx, p.ID)
		if err != nil {
			u.log.Warn().Err(err).Str("payment_id", p.ID).Msg("gateway status poll failed")
			continue
		}
		switch status {
		case model.PaymentStatusConfirmed:
			if _, err := u.applyConfirmation(ctx, PaymentNotification{
				ExternalPaymentID: p.ID,
				UserID:            p.UserID,
				AmountTokens:      p.AmountTokens,
				Status:            string(model.PaymentStatusConfirmed),
			}); err != nil {
				u.log.Error().Err(err).Str("payment_id", p.ID).Msg("reconcile confirm failed")
				continue
			}
			moved++
		case model.PaymentStatusRejected:
			if _, err := u.payments.MarkRejectedIfPending(ctx, nil, p.ID); err != nil {
				u.log.Error().Err(err).Str("payment_id", p.ID).Msg("reconcile reject failed")
				continue
			}
			moved++
		}
	}
	return moved, nil
}
