package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"paycore.org/internal/csvio"
	"paycore.org/internal/engine"
	"paycore.org/internal/ids"
	"paycore.org/internal/obs"
	"paycore.org/internal/stream"
)

type transactionRequest struct {
	Type   string `json:"type"`
	Client uint16 `json:"client"`
	Tx     uint32 `json:"tx"`
	Amount string `json:"amount,omitempty"`
}

type transactionResponse struct {
	Outcome string          `json:"outcome"`
	Account engine.Snapshot `json:"account"`
}

type accountsResponse struct {
	Items []engine.Snapshot `json:"items"`
	AsOf  time.Time         `json:"as_of"`
}

type batchResponse struct {
	BatchID string       `json:"batch_id"`
	Stats   engine.Stats `json:"stats"`
}

func (a *API) handleAccountsCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, accountsResponse{
			Items: a.registry.Snapshots(),
			AsOf:  time.Now().UTC(),
		})
	default:
		methodNotAllowed(w, r, http.MethodGet)
	}
}

func (a *API) handleAccountResource(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/accounts/")
	if path == "" || strings.Contains(path, "/") {
		respondError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	client, err := strconv.ParseUint(path, 10, 16)
	if err != nil {
		respondError(w, r, http.StatusBadRequest, "client must be a 16-bit unsigned integer")
		return
	}
	snap, ok := a.registry.Account(uint16(client))
	if !ok {
		respondError(w, r, http.StatusNotFound, "account not found")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (a *API) handleTransactions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	var req transactionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	rec, err := recordFromRequest(req)
	if err != nil {
		respondError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	outcome, err := a.registry.Apply(rec)
	if err != nil {
		a.transactionError(w, r, rec, err)
		return
	}

	obs.ObserveTransaction(rec.Type, outcome)
	obs.SetRegistrySize(a.registry.Size(), a.registry.LockedCount())
	a.publish(rec, outcome)

	if rec.Type == engine.RecordChargeback && outcome == engine.Transacted {
		a.audit(r.Context(), "account.locked", map[string]any{
			"client": rec.Client,
			"tx":     rec.Tx,
		})
	}

	snap, _ := a.registry.Account(rec.Client)
	code := http.StatusOK
	if outcome == engine.Transacted {
		code = http.StatusCreated
	}
	writeJSON(w, code, transactionResponse{
		Outcome: outcome.String(),
		Account: snap,
	})
}

func (a *API) handleBatches(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	batchID := ids.New()
	reader := csvio.NewReader(r.Body)
	var stats engine.Stats
	for {
		rec, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			respondError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		outcome, err := a.registry.Apply(rec)
		if err != nil {
			if engine.IsSuppressed(err) {
				stats.Suppressed++
				obs.ObserveSuppressed(err)
				continue
			}
			a.audit(r.Context(), "batch.aborted", map[string]any{
				"batch_id": batchID,
				"client":   rec.Client,
				"tx":       rec.Tx,
				"error":    err.Error(),
			})
			a.transactionError(w, r, rec, err)
			return
		}
		switch outcome {
		case engine.Transacted:
			stats.Transacted++
		default:
			stats.Duplicates++
		}
		obs.ObserveTransaction(rec.Type, outcome)
		a.publish(rec, outcome)
		if rec.Type == engine.RecordChargeback && outcome == engine.Transacted {
			a.audit(r.Context(), "account.locked", map[string]any{
				"client": rec.Client,
				"tx":     rec.Tx,
			})
		}
	}

	obs.SetRegistrySize(a.registry.Size(), a.registry.LockedCount())
	a.audit(r.Context(), "batch.ingested", map[string]any{
		"batch_id":   batchID,
		"transacted": stats.Transacted,
		"duplicates": stats.Duplicates,
		"suppressed": stats.Suppressed,
	})
	writeJSON(w, http.StatusOK, batchResponse{BatchID: batchID, Stats: stats})
}

// transactionError maps engine errors onto HTTP statuses: suppressed kinds
// are a client-visible 422, a locked account is 423, incompatible and
// non-disputed transactions (and unknown record types) are conflicts, and
// anything else, amount overflow included, is a 500.
func (a *API) transactionError(w http.ResponseWriter, r *http.Request, rec engine.Record, err error) {
	if engine.IsSuppressed(err) {
		obs.ObserveSuppressed(err)
		respondError(w, r, http.StatusUnprocessableEntity, err.Error())
		return
	}
	switch {
	case errors.Is(err, engine.ErrAccountLocked):
		respondError(w, r, http.StatusLocked, err.Error())
	case errors.Is(err, engine.ErrIncompatibleTransaction),
		errors.Is(err, engine.ErrNonDisputedTransaction),
		errors.Is(err, engine.ErrUnknownRecordType):
		respondError(w, r, http.StatusConflict, err.Error())
	default:
		respondError(w, r, http.StatusInternalServerError, "internal error")
	}
}

func (a *API) publish(rec engine.Record, outcome engine.Outcome) {
	if a.stream == nil {
		return
	}
	a.stream.Publish(stream.TransactionEvent{
		ID:        ids.New(),
		Type:      rec.Type.String(),
		Client:    rec.Client,
		Tx:        rec.Tx,
		Amount:    rec.Amount,
		Outcome:   outcome.String(),
		Timestamp: time.Now().UTC(),
	})
}

func recordFromRequest(req transactionRequest) (engine.Record, error) {
	typ, err := engine.ParseRecordType(strings.TrimSpace(req.Type))
	if err != nil {
		return engine.Record{}, err
	}
	rec := engine.Record{
		Type:   typ,
		Client: req.Client,
		Tx:     req.Tx,
	}
	amountField := strings.TrimSpace(req.Amount)
	if typ.HasAmount() {
		if amountField == "" {
			return engine.Record{}, errors.New(typ.String() + " requires an amount")
		}
		amount, err := engine.ParseAmount(amountField)
		if err != nil {
			return engine.Record{}, err
		}
		if amount.IsNegative() {
			return engine.Record{}, errors.New("amount must not be negative")
		}
		rec.Amount = amount
	} else if amountField != "" {
		return engine.Record{}, errors.New(typ.String() + " must not carry an amount")
	}
	return rec, nil
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}
