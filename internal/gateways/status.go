package gateway

import (
	"strings"

	"github.com/nimasrn/school-payment/internal/model"
)

// MapStatus translates gateway status and fraud codes into a transaction
// status. Both the webhook and the poll path use it. Unknown codes map to
// pending so nothing ambiguous is ever treated as final.
func MapStatus(raw, fraud string) model.TransactionStatus {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "capture":
		if strings.EqualFold(fraud, "accept") {
			return model.TransactionStatusCapture
		}
		return model.TransactionStatusDeny
	case "settlement":
		return model.TransactionStatusSettlement
	case "pending":
		return model.TransactionStatusPending
	case "deny":
		return model.TransactionStatusDeny
	case "cancel":
		return model.TransactionStatusCancel
	case "expire":
		return model.TransactionStatusExpire
	case "refund":
		return model.TransactionStatusRefund
	case "partial_refund":
		return model.TransactionStatusPartialRefund
	case "failure":
		return model.TransactionStatusFailure
	default:
		return model.TransactionStatusPending
	}
}
