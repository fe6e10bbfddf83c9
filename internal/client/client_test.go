package client

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"

	"paycore.org/internal/engine"
	"paycore.org/internal/httpapi"
	"paycore.org/internal/stream"
)

func newTestServer(t *testing.T) *Client {
	t.Helper()
	api := httpapi.New(httpapi.ReadyProbe{}, "test", engine.NewRegistry(), stream.New())
	srv := httptest.NewServer(api.Handler())
	t.Cleanup(srv.Close)
	return New(srv.URL, WithHTTPClient(srv.Client()))
}

func TestSubmitAndFetch(t *testing.T) {
	c := newTestServer(t)
	ctx := context.Background()

	res, err := c.Submit(ctx, engine.Record{
		Type:   engine.RecordDeposit,
		Client: 5,
		Tx:     1,
		Amount: 50000, // 5.0000
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if res.Outcome != "transacted" || res.Account.Available.String() != "5.0000" {
		t.Fatalf("unexpected result: %+v", res)
	}

	snap, err := c.Account(ctx, 5)
	if err != nil {
		t.Fatalf("account: %v", err)
	}
	if snap.Client != 5 || snap.Total.String() != "5.0000" {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}

	all, err := c.Accounts(ctx)
	if err != nil {
		t.Fatalf("accounts: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("accounts = %d", len(all))
	}
}

func TestSubmitSurfacesAPIErrors(t *testing.T) {
	c := newTestServer(t)
	ctx := context.Background()

	_, err := c.Submit(ctx, engine.Record{Type: engine.RecordDispute, Client: 1, Tx: 404})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Status != 422 {
		t.Fatalf("status = %d", apiErr.Status)
	}
}

func TestUploadBatch(t *testing.T) {
	c := newTestServer(t)
	ctx := context.Background()

	csvBody := strings.Join([]string{
		"type, client, tx, amount",
		"deposit, 1, 1, 1.0",
		"deposit, 1, 2, 2.0",
		"withdrawal, 1, 3, 0.5",
	}, "\n")
	res, err := c.UploadBatch(ctx, strings.NewReader(csvBody))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if res.BatchID == "" || res.Stats.Transacted != 3 {
		t.Fatalf("unexpected result: %+v", res)
	}

	snap, err := c.Account(ctx, 1)
	if err != nil {
		t.Fatalf("account: %v", err)
	}
	if snap.Available.String() != "2.5000" {
		t.Fatalf("available = %s", snap.Available)
	}
}

func TestHealth(t *testing.T) {
	c := newTestServer(t)
	if err := c.Health(context.Background()); err != nil {
		t.Fatalf("health: %v", err)
	}
	bad := New("http://127.0.0.1:1")
	if err := bad.Health(context.Background()); err == nil {
		t.Fatal("expected connection error")
	}
}

func TestAccountMissing(t *testing.T) {
	c := newTestServer(t)
	_, err := c.Account(context.Background(), 99)
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != 404 {
		t.Fatalf("expected 404 APIError, got %v", err)
	}
}
