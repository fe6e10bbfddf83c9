package engine

import "fmt"

// Kind classifies a stored transaction: a deposit credits the account, a
// withdrawal debits it. The kind governs dispute semantics — only credits
// are disputable.
type Kind uint8

const (
	KindCredit Kind = iota + 1
	KindDebit
)

func (k Kind) String() string {
	switch k {
	case KindCredit:
		return "credit"
	case KindDebit:
		return "debit"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// DisputeState is the lifecycle position of a single stored transaction.
// Legal transitions: Accepted → Held → Resolved | ChargedBack.
type DisputeState uint8

const (
	StateAccepted DisputeState = iota + 1
	StateHeld
	StateResolved
	StateChargedBack
)

func (s DisputeState) String() string {
	switch s {
	case StateAccepted:
		return "accepted"
	case StateHeld:
		return "held"
	case StateResolved:
		return "resolved"
	case StateChargedBack:
		return "charged_back"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

// LedgerEntry is the per-(account, transaction) memory that disputes,
// resolves and chargebacks reach back to. Entries are created by deposits
// and withdrawals and never deleted.
type LedgerEntry struct {
	Kind   Kind
	Amount Amount
	State  DisputeState
}

// Outcome is the success result of a transactor.
type Outcome uint8

const (
	// Transacted means account state changed.
	Transacted Outcome = iota + 1
	// Duplicate means the request repeated a prior successful operation
	// and nothing changed.
	Duplicate
)

func (o Outcome) String() string {
	switch o {
	case Transacted:
		return "transacted"
	case Duplicate:
		return "duplicate"
	default:
		return fmt.Sprintf("outcome(%d)", uint8(o))
	}
}

// RecordType enumerates the inbound transaction types.
type RecordType uint8

const (
	RecordDeposit RecordType = iota + 1
	RecordWithdrawal
	RecordDispute
	RecordResolve
	RecordChargeback
)

func (t RecordType) String() string {
	switch t {
	case RecordDeposit:
		return "deposit"
	case RecordWithdrawal:
		return "withdrawal"
	case RecordDispute:
		return "dispute"
	case RecordResolve:
		return "resolve"
	case RecordChargeback:
		return "chargeback"
	default:
		return fmt.Sprintf("record(%d)", uint8(t))
	}
}

// ParseRecordType maps the lowercase wire literals to a RecordType.
func ParseRecordType(s string) (RecordType, error) {
	switch s {
	case "deposit":
		return RecordDeposit, nil
	case "withdrawal":
		return RecordWithdrawal, nil
	case "dispute":
		return RecordDispute, nil
	case "resolve":
		return RecordResolve, nil
	case "chargeback":
		return RecordChargeback, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownRecordType, s)
	}
}

// HasAmount reports whether records of this type carry an amount field.
func (t RecordType) HasAmount() bool {
	return t == RecordDeposit || t == RecordWithdrawal
}

// Record is one parsed inbound transaction. Amount is meaningful only when
// Type.HasAmount().
type Record struct {
	Type   RecordType `json:"type"`
	Client uint16     `json:"client"`
	Tx     uint32     `json:"tx"`
	Amount Amount     `json:"amount"`
}

// Snapshot is the externally visible state of one account.
type Snapshot struct {
	Client    uint16 `json:"client"`
	Available Amount `json:"available"`
	Held      Amount `json:"held"`
	Total     Amount `json:"total"`
	Locked    bool   `json:"locked"`
}

// EntryRecord is a ledger entry keyed by its transaction id, used when
// moving account state in and out of a store.
type EntryRecord struct {
	Tx     uint32
	Kind   Kind
	Amount Amount
	State  DisputeState
}
