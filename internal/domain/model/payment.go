package model

import "time"

type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"   // created on provider side, awaiting confirmation
	PaymentStatusConfirmed PaymentStatus = "confirmed" // provider confirmed; tokens credited
	PaymentStatusRejected  PaymentStatus = "rejected"  // provider rejected or cancelled
)

// Payment mirrors one external payment-provider transaction. The external id
// is unique; together with the ledger's (reason, reference_id) constraint it
// guarantees at most one credit per confirmed payment.
type Payment struct {
	ID           string // external provider reference, unique
	UserID       string
	Package      string // token package key, e.g. "starter"
	AmountTokens int64
	AmountValue  string // money amount as reported by the provider, informational
	Status       PaymentStatus
	ConfirmURL   string // provider confirmation/redirect URL, set at initiation
	ReceivedAt   time.Time
	UpdatedAt    time.Time
}

// TokenPackage is a purchasable bundle offered in the shop.
type TokenPackage struct {
	Key    string `yaml:"key"`
	Name   string `yaml:"name"`
	Tokens int64  `yaml:"tokens"`
	Price  int64  `yaml:"price"` // whole currency units
}
