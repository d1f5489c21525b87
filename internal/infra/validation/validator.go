package validation

import (
	"context"

	"github.com/vietddude/purchasekit/internal/core/domain"
)

// Validator checks receipt data with the server. The byte format of the
// receipt is opaque to this core.
type Validator interface {
	ValidateReceipt(ctx context.Context, data []byte) (domain.ReceiptValidation, error)
}
