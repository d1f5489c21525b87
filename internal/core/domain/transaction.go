package domain

import "time"

// Transaction represents a platform-level purchase record and its
// processing state. Produced by the store adapter; mutated only by the
// monitor and the recovery manager.
type Transaction struct {
	ID           string    `json:"id"`
	ProductID    string    `json:"product_id"`
	PurchaseDate time.Time `json:"purchase_date"`
	State        TxnState  `json:"state"`
	Receipt      []byte    `json:"receipt,omitempty"`
	Quantity     int       `json:"quantity"`
	// Failure carries the store-reported error message for failed
	// transactions. Empty otherwise.
	Failure string `json:"failure,omitempty"`
}

type TxnState string

const (
	TxnStatePurchasing TxnState = "purchasing"
	TxnStatePurchased  TxnState = "purchased"
	TxnStateFailed     TxnState = "failed"
	TxnStateRestored   TxnState = "restored"
	TxnStateDeferred   TxnState = "deferred"
)

// NeedsFinish reports whether the transaction reached a successful terminal
// state and must still be acknowledged to the store.
func (t *Transaction) NeedsFinish() bool {
	return t.State == TxnStatePurchased || t.State == TxnStateRestored
}

// InFlight reports whether the transaction is still being processed by the
// store and must not be touched.
func (t *Transaction) InFlight() bool {
	return t.State == TxnStatePurchasing || t.State == TxnStateDeferred
}

// Valid reports whether the transaction carries the identifiers every
// downstream step depends on.
func (t *Transaction) Valid() bool {
	return t.ID != "" && t.ProductID != ""
}
