package engine

import (
	"errors"
	"sync"
	"testing"
)

func TestApplyCreatesAccountsOnFirstSight(t *testing.T) {
	r := NewRegistry()
	out, err := r.Apply(Record{Type: RecordDeposit, Client: 7, Tx: 1, Amount: mustAmount(t, "1.0")})
	if err != nil || out != Transacted {
		t.Fatalf("apply = %v, %v", out, err)
	}
	if r.Size() != 1 {
		t.Fatalf("size = %d", r.Size())
	}
	snap, ok := r.Account(7)
	if !ok || snap.Available != mustAmount(t, "1.0") || snap.Locked {
		t.Fatalf("snapshot: %+v ok=%v", snap, ok)
	}
	// Dispute on a fresh client still creates the (empty) account.
	if _, err := r.Apply(Record{Type: RecordDispute, Client: 8, Tx: 9}); !errors.Is(err, ErrNoTransactionFound) {
		t.Fatalf("expected ErrNoTransactionFound, got %v", err)
	}
	if r.Size() != 2 {
		t.Fatalf("size = %d", r.Size())
	}
}

func TestApplyRejectsUnknownType(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Apply(Record{Client: 1, Tx: 1}); !errors.Is(err, ErrUnknownRecordType) {
		t.Fatalf("expected ErrUnknownRecordType, got %v", err)
	}
}

func TestSnapshotsSortedByClient(t *testing.T) {
	r := NewRegistry()
	for _, c := range []uint16{42, 3, 17} {
		if _, err := r.Apply(Record{Type: RecordDeposit, Client: c, Tx: uint32(c), Amount: mustAmount(t, "1.0")}); err != nil {
			t.Fatal(err)
		}
	}
	snaps := r.Snapshots()
	if len(snaps) != 3 {
		t.Fatalf("len = %d", len(snaps))
	}
	for i, want := range []uint16{3, 17, 42} {
		if snaps[i].Client != want {
			t.Fatalf("snapshot %d: client %d, want %d", i, snaps[i].Client, want)
		}
	}
}

func TestLockedCount(t *testing.T) {
	r := NewRegistry()
	seed := []Record{
		{Type: RecordDeposit, Client: 1, Tx: 1, Amount: mustAmount(t, "5.0")},
		{Type: RecordDeposit, Client: 2, Tx: 2, Amount: mustAmount(t, "5.0")},
		{Type: RecordDispute, Client: 1, Tx: 1},
		{Type: RecordChargeback, Client: 1, Tx: 1},
	}
	for _, rec := range seed {
		if _, err := r.Apply(rec); err != nil {
			t.Fatal(err)
		}
	}
	if r.LockedCount() != 1 {
		t.Fatalf("locked = %d", r.LockedCount())
	}
}

func TestImportExportRoundTrip(t *testing.T) {
	r := NewRegistry()
	seed := []Record{
		{Type: RecordDeposit, Client: 9, Tx: 1, Amount: mustAmount(t, "5.0")},
		{Type: RecordWithdrawal, Client: 9, Tx: 2, Amount: mustAmount(t, "1.5")},
		{Type: RecordDeposit, Client: 9, Tx: 3, Amount: mustAmount(t, "2.0")},
		{Type: RecordDispute, Client: 9, Tx: 3},
	}
	for _, rec := range seed {
		if _, err := r.Apply(rec); err != nil {
			t.Fatal(err)
		}
	}

	snap, _ := r.Account(9)
	entries := r.ExportEntries(9)
	if len(entries) != 3 {
		t.Fatalf("entries = %d", len(entries))
	}
	if entries[0].Tx != 1 || entries[1].Tx != 2 || entries[2].Tx != 3 {
		t.Fatalf("entries not sorted: %+v", entries)
	}

	restored := NewRegistry()
	if err := restored.Import(9, snap.Available, snap.Held, snap.Locked, entries); err != nil {
		t.Fatalf("import: %v", err)
	}
	back, ok := restored.Account(9)
	if !ok || back != snap {
		t.Fatalf("round trip mismatch: %+v != %+v", back, snap)
	}
	// The restored ledger keeps answering dispute-lifecycle questions.
	if out, err := restored.Apply(Record{Type: RecordDispute, Client: 9, Tx: 3}); err != nil || out != Duplicate {
		t.Fatalf("dispute on restored held entry = %v, %v", out, err)
	}
	if err := restored.Import(9, 0, 0, false, nil); err == nil {
		t.Fatalf("import over existing client must fail")
	}
}

func TestConcurrentApplyDisjointClients(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup
	const clients = 16
	const deposits = 50
	for c := 0; c < clients; c++ {
		wg.Add(1)
		go func(c int) {
			defer wg.Done()
			for i := 0; i < deposits; i++ {
				rec := Record{
					Type:   RecordDeposit,
					Client: uint16(c),
					Tx:     uint32(c*1000 + i),
					Amount: 10000,
				}
				if _, err := r.Apply(rec); err != nil {
					t.Error(err)
					return
				}
			}
		}(c)
	}
	wg.Wait()

	for _, snap := range r.Snapshots() {
		if snap.Available != Amount(deposits*10000) {
			t.Fatalf("client %d available = %s", snap.Client, snap.Available)
		}
	}
}
