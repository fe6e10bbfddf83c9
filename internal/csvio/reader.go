package csvio

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"paycore.org/internal/engine"
)

// Parse failures are fatal: a malformed stream aborts the run rather than
// being partially applied.
var (
	ErrBadHeader       = errors.New("csvio: unexpected header")
	ErrMalformedRecord = errors.New("csvio: malformed record")
)

var header = []string{"type", "client", "tx", "amount"}

// Reader decodes the transaction stream CSV into engine records and
// implements engine.Source. The expected layout is a `type, client, tx,
// amount` header followed by one record per row; dispute, resolve and
// chargeback rows carry an empty amount field.
type Reader struct {
	csv       *csv.Reader
	line      int
	sawHeader bool
}

func NewReader(r io.Reader) *Reader {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	return &Reader{csv: cr}
}

// Next returns the next record in arrival order, io.EOF at end of stream,
// or a fatal parse error carrying the offending line number.
func (r *Reader) Next() (engine.Record, error) {
	for {
		row, err := r.csv.Read()
		if errors.Is(err, io.EOF) {
			if !r.sawHeader {
				return engine.Record{}, fmt.Errorf("%w: empty input", ErrBadHeader)
			}
			return engine.Record{}, io.EOF
		}
		if err != nil {
			return engine.Record{}, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
		}
		r.line++
		for i := range row {
			row[i] = strings.TrimSpace(row[i])
		}
		if !r.sawHeader {
			r.sawHeader = true
			if err := validateHeader(row); err != nil {
				return engine.Record{}, err
			}
			continue
		}
		if isBlank(row) {
			continue
		}
		return r.parseRow(row)
	}
}

func validateHeader(row []string) error {
	if len(row) != len(header) {
		return fmt.Errorf("%w: %v", ErrBadHeader, row)
	}
	for i, want := range header {
		if row[i] != want {
			return fmt.Errorf("%w: %v", ErrBadHeader, row)
		}
	}
	return nil
}

func isBlank(row []string) bool {
	for _, f := range row {
		if f != "" {
			return false
		}
	}
	return true
}

func (r *Reader) parseRow(row []string) (engine.Record, error) {
	// Amount-less rows keep their trailing comma, so four fields is the
	// norm; a bare three-field row is tolerated for those types.
	if len(row) != 4 && len(row) != 3 {
		return engine.Record{}, r.badRecord("expected 4 fields, got %d", len(row))
	}

	typ, err := engine.ParseRecordType(row[0])
	if err != nil {
		return engine.Record{}, r.badRecord("%v", err)
	}
	client, err := strconv.ParseUint(row[1], 10, 16)
	if err != nil {
		return engine.Record{}, r.badRecord("client %q", row[1])
	}
	tx, err := strconv.ParseUint(row[2], 10, 32)
	if err != nil {
		return engine.Record{}, r.badRecord("tx %q", row[2])
	}

	rec := engine.Record{
		Type:   typ,
		Client: uint16(client),
		Tx:     uint32(tx),
	}

	amountField := ""
	if len(row) == 4 {
		amountField = row[3]
	}
	if typ.HasAmount() {
		if amountField == "" {
			return engine.Record{}, r.badRecord("%s requires an amount", typ)
		}
		amount, err := engine.ParseAmount(amountField)
		if err != nil {
			return engine.Record{}, r.badRecord("%v", err)
		}
		if amount.IsNegative() {
			return engine.Record{}, r.badRecord("%s amount must not be negative", typ)
		}
		rec.Amount = amount
	} else if amountField != "" {
		return engine.Record{}, r.badRecord("%s must not carry an amount", typ)
	}
	return rec, nil
}

func (r *Reader) badRecord(format string, args ...any) error {
	return fmt.Errorf("%w: line %d: %s", ErrMalformedRecord, r.line, fmt.Sprintf(format, args...))
}
