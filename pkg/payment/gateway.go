package payment

import "context"

// Gateway is the payment provider contract. Amounts are always in the
// gateway's smallest currency unit (rials); converting from business units
// is the caller's job, done once at the orchestration boundary.
type Gateway interface {
	// RequestPayment asks the gateway for a payment authority. The returned
	// authority is the correlation key for the callback and verification.
	RequestPayment(ctx context.Context, amountRials int64, description, mobile string) (authority string, err error)

	// VerifyPayment confirms a completed payment against the original
	// amount. The gateway re-checks the amount against its own record; a
	// mismatch is a rejection, not a transient failure.
	VerifyPayment(ctx context.Context, authority string, amountRials int64) (refID int64, cardPan string, err error)

	// StartPayURL returns the gateway page the customer is redirected to.
	StartPayURL(authority string) string
}
