package document

// Well-known invalid-document rejection codes, per §6. These are opaque,
// stable strings shared across the wire with controllers, so they must
// never be renamed once published.
const (
	CodeSNMissing          = "sn-missing"
	CodeVersionUnsupported = "version-unsupported"
	CodeAuthFailed         = "auth-failed"
	CodeExpired            = "expired"
)

// InvalidDocument reports that an envelope failed validation before it
// could be dispatched. The consumer pipeline (§4.E) catches this error at
// the boundary, calls the executor's Rejected hook with its fields, and
// acknowledges the originating message.
type InvalidDocument struct {
	Code        string
	Description string
	Details     error
}

// Error implements the error interface.
func (e *InvalidDocument) Error() string {
	if e.Description != "" {
		return e.Code + ": " + e.Description
	}
	return e.Code
}

// Unwrap exposes the underlying cause, if any, for errors.Is/As chains.
func (e *InvalidDocument) Unwrap() error { return e.Details }
