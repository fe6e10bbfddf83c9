package engine

import "errors"

// Transactor error kinds. The split below is the stream error policy:
// suppressed kinds skip the offending record, every other kind aborts the
// stream and propagates to the caller.
var (
	ErrAccountLocked           = errors.New("engine: account locked")
	ErrInsufficientFunds       = errors.New("engine: insufficient funds")
	ErrNoTransactionFound      = errors.New("engine: transaction not found")
	ErrNonDisputedTransaction  = errors.New("engine: transaction not under dispute")
	ErrIncompatibleTransaction = errors.New("engine: transaction id reused with a different payload")
	ErrAmountOverflow          = errors.New("engine: amount overflow")
	ErrInvalidAmount           = errors.New("engine: invalid amount")
	ErrUnknownRecordType       = errors.New("engine: unknown record type")
)

// IsSuppressed reports whether the dispatcher skips the record instead of
// aborting the stream.
func IsSuppressed(err error) bool {
	return errors.Is(err, ErrInsufficientFunds) || errors.Is(err, ErrNoTransactionFound)
}
