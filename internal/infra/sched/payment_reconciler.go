package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"telegram-image-ai/internal/usecase"
)

// PaymentReconciler periodically re-checks stale pending payments against the
// gateway. This covers webhooks that never arrived or a crash mid-confirm.
type PaymentReconciler struct {
	uc         usecase.PaymentUseCase
	interval   time.Duration
	staleAfter time.Duration
	log        *zerolog.Logger
}

func NewPaymentReconciler(uc usecase.PaymentUseCase, interval, staleAfter time.Duration, log *zerolog.Logger) *PaymentReconciler {
	if interval <= 0 {
		interval = time.Minute
	}
	if staleAfter <= 0 {
		staleAfter = 10 * time.Minute
	}
	return &PaymentReconciler{uc: uc, interval: interval, staleAfter: staleAfter, log: log}
}

func (w *PaymentReconciler) Start(ctx context.Context) {
	t := time.NewTicker(w.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := w.uc.ReconcilePending(ctx, w.staleAfter, 200)
			if err != nil {
				w.log.Error().Err(err).Msg("payment reconcile pass failed")
				continue
			}
			if n > 0 {
				w.log.Info().Int("settled", n).Msg("reconciled stale payments")
			}
		}
	}
}
