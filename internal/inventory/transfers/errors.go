package transfers

import "errors"

// Domain errors for stock transfers.
var (
	// ErrNotFound indicates the transfer does not resolve within the tenant.
	ErrNotFound = errors.New("stock transfer not found")
	// ErrLineNotFound indicates a manifest entry targets an unknown line.
	ErrLineNotFound = errors.New("transfer line not found")

	// Status transition errors.
	ErrCannotEdit     = errors.New("cannot edit stock transfer in current status")
	ErrCannotApprove  = errors.New("cannot approve stock transfer in current status")
	ErrCannotDispatch = errors.New("cannot dispatch stock transfer in current status")
	ErrCannotReceive  = errors.New("cannot receive stock transfer in current status")
	ErrCannotCancel   = errors.New("cannot cancel stock transfer in current status")
	ErrCannotDelete   = errors.New("cannot delete stock transfer in current status")
	// ErrStatusConflict indicates the transfer left the expected status
	// between the guard check and the update, e.g. two concurrent dispatches.
	ErrStatusConflict = errors.New("stock transfer status changed concurrently")

	// ErrDuplicateNumber indicates a generated transfer number collided with
	// a concurrent create. Create retries with a fresh number.
	ErrDuplicateNumber = errors.New("transfer number already exists")

	// Validation errors.
	ErrEmptyLines       = errors.New("at least one line is required")
	ErrInvalidQuantity  = errors.New("quantity must be greater than zero")
	ErrSameWarehouse    = errors.New("source and destination warehouse must differ")
	ErrBranchPairing    = errors.New("transfer type inconsistent with branch pairing")
	ErrItemCardinality  = errors.New("exactly one of item or product must be set per line")
	ErrReceiveExceeds   = errors.New("received quantity would exceed dispatched quantity")
	ErrNothingToReceive = errors.New("receipt manifest requests nothing")
)
