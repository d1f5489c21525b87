package domain

// PurchaseOutcome is the result of initiating a purchase. It is a sealed
// union: consumers switch on the concrete type and must handle every arm.
type PurchaseOutcome interface {
	purchaseOutcome()
}

// PurchaseSuccess carries the completed transaction.
type PurchaseSuccess struct {
	Txn Transaction
}

// PurchaseCancelled means the user aborted the flow. Not an error.
type PurchaseCancelled struct{}

// PurchasePending carries a transaction awaiting external approval
// (e.g. ask-to-buy). The monitor picks it up later.
type PurchasePending struct {
	Txn Transaction
}

// PurchaseFailed carries the store-reported error.
type PurchaseFailed struct {
	Err error
}

func (PurchaseSuccess) purchaseOutcome()   {}
func (PurchaseCancelled) purchaseOutcome() {}
func (PurchasePending) purchaseOutcome()   {}
func (PurchaseFailed) purchaseOutcome()    {}

// ReceiptValidation is the validator's verdict for a receipt.
type ReceiptValidation struct {
	Valid bool   `json:"valid"`
	Order *Order `json:"order,omitempty"`
}
