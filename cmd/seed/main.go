package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"telegram-image-ai/internal/config"
	pg "telegram-image-ai/internal/infra/db/postgres"
	"telegram-image-ai/internal/infra/logging"
	"telegram-image-ai/internal/usecase"
)

// Seeds a couple of demo accounts with starting balances so the payment and
// job flows can be exercised locally.
func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger := logging.New(cfg.Log, true)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, 4)
	if err != nil {
		log.Fatalf("postgres: %v", err)
	}
	defer pool.Close()

	tm := pg.NewTxManager(pool)
	accountRepo := pg.NewAccountRepo(pool, tm)
	ledgerUC := usecase.NewLedgerUseCase(accountRepo, cfg.Ledger.SignupGrant, logger)

	seed := []struct {
		UserID string
		Tokens int64
	}{
		{"1000001", 100},
		{"1000002", 25},
	}

	for _, s := range seed {
		if _, err := ledgerUC.EnsureAccount(ctx, s.UserID, nil); err != nil {
			log.Fatalf("ensure account %s: %v", s.UserID, err)
		}
		acc, err := ledgerUC.AdminAdjust(ctx, s.UserID, s.Tokens, "seed:"+s.UserID)
		if err != nil {
			log.Fatalf("grant %s: %v", s.UserID, err)
		}
		fmt.Printf("seeded: user=%s balance=%d\n", acc.UserID, acc.Balance)
	}

	fmt.Println("seeding complete")
}
