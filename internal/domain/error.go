package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound        = errors.New("entity not found")
	ErrInvalidArgument = errors.New("invalid argument")

	// Ledger errors
	ErrInsufficientBalance = errors.New("insufficient token balance")
	ErrDuplicateReference  = errors.New("ledger entry for reference already exists")
	ErrConcurrencyConflict = errors.New("concurrent update conflict")

	// Job errors
	ErrInvalidTransition = errors.New("job status transition not allowed")
	ErrJobNotCancellable = errors.New("job can no longer be cancelled")

	// Payment errors
	ErrDuplicatePayment = errors.New("payment already processed")
	ErrInvalidSignature = errors.New("webhook signature verification failed")
	ErrUnknownPackage   = errors.New("unknown token package")

	// Infra errors
	ErrInvalidExecContext = errors.New("invalid query executor context")
	ErrQueueEmpty         = errors.New("no job available in queue")
	ErrLockNotAcquired    = errors.New("could not acquire lock")
)
