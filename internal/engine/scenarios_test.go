package engine

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// The scenario suite drives whole streams through a registry and checks
// the externally observable account state, mirroring how the batch CLI
// uses the engine.

func run(t *testing.T, records []Record) (*Registry, Stats, error) {
	t.Helper()
	reg := NewRegistry()
	stats, err := Process(reg, NewSliceSource(records))
	return reg, stats, err
}

func snap(t *testing.T, reg *Registry, client uint16) Snapshot {
	t.Helper()
	s, ok := reg.Account(client)
	require.True(t, ok, "client %d missing", client)
	return s
}

func rec(t *testing.T, typ RecordType, client uint16, tx uint32, amount string) Record {
	t.Helper()
	r := Record{Type: typ, Client: client, Tx: tx}
	if amount != "" {
		r.Amount = mustAmount(t, amount)
	}
	return r
}

// checkInvariants asserts the universal account invariants after a drain.
func checkInvariants(t *testing.T, reg *Registry) {
	t.Helper()
	for _, s := range reg.Snapshots() {
		require.Equal(t, s.Total, s.Available+s.Held, "client %d: total != available+held", s.Client)
		var heldSum Amount
		for _, e := range reg.ExportEntries(s.Client) {
			if e.Kind == KindCredit && e.State == StateHeld {
				heldSum += e.Amount
			}
		}
		require.Equal(t, s.Held, heldSum, "client %d: held != sum of held credits", s.Client)
	}
}

func TestScenarioBasicFlow(t *testing.T) {
	reg, stats, err := run(t, []Record{
		rec(t, RecordDeposit, 1, 1, "1.0"),
		rec(t, RecordDeposit, 2, 2, "2.0"),
		rec(t, RecordDeposit, 1, 3, "2.0"),
		rec(t, RecordWithdrawal, 1, 4, "1.5"),
		rec(t, RecordWithdrawal, 2, 5, "3.0"), // insufficient, suppressed
		rec(t, RecordDispute, 1, 1, ""),
	})
	require.NoError(t, err)
	require.Equal(t, Stats{Transacted: 5, Suppressed: 1}, stats)

	c1 := snap(t, reg, 1)
	require.Equal(t, "1.5000", c1.Available.String())
	require.Equal(t, "1.0000", c1.Held.String())
	require.Equal(t, "2.5000", c1.Total.String())
	require.False(t, c1.Locked)

	c2 := snap(t, reg, 2)
	require.Equal(t, "2.0000", c2.Available.String())
	require.Equal(t, "0.0000", c2.Held.String())
	require.False(t, c2.Locked)

	checkInvariants(t, reg)
}

func TestScenarioResolve(t *testing.T) {
	reg, _, err := run(t, []Record{
		rec(t, RecordDeposit, 1, 1, "5.0"),
		rec(t, RecordDispute, 1, 1, ""),
		rec(t, RecordResolve, 1, 1, ""),
	})
	require.NoError(t, err)
	c1 := snap(t, reg, 1)
	require.Equal(t, "5.0000", c1.Available.String())
	require.Equal(t, "0.0000", c1.Held.String())
	require.False(t, c1.Locked)
	checkInvariants(t, reg)
}

func TestScenarioChargebackLocks(t *testing.T) {
	reg, _, err := run(t, []Record{
		rec(t, RecordDeposit, 1, 1, "5.0"),
		rec(t, RecordDeposit, 1, 2, "2.0"),
		rec(t, RecordDispute, 1, 2, ""),
		rec(t, RecordChargeback, 1, 2, ""),
	})
	require.NoError(t, err)
	c1 := snap(t, reg, 1)
	require.Equal(t, "5.0000", c1.Available.String())
	require.Equal(t, "0.0000", c1.Held.String())
	require.Equal(t, "5.0000", c1.Total.String())
	require.True(t, c1.Locked)
	checkInvariants(t, reg)
}

func TestScenarioPostLockDuplicateAllowedNewOpFatal(t *testing.T) {
	_, _, err := run(t, []Record{
		rec(t, RecordDeposit, 2, 1, "3.0"),
		rec(t, RecordDeposit, 2, 2, "2.0"),
		rec(t, RecordDispute, 2, 2, ""),
		rec(t, RecordChargeback, 2, 2, ""),
		rec(t, RecordDispute, 2, 2, ""), // duplicate on locked account
		rec(t, RecordDeposit, 2, 3, "1.0"),
	})
	require.ErrorIs(t, err, ErrAccountLocked)
}

func TestScenarioDisputeAfterSpendGoesNegative(t *testing.T) {
	reg, _, err := run(t, []Record{
		rec(t, RecordDeposit, 1, 1, "5.0"),
		rec(t, RecordWithdrawal, 1, 2, "4.0"),
		rec(t, RecordDispute, 1, 1, ""),
	})
	require.NoError(t, err)
	c1 := snap(t, reg, 1)
	require.Equal(t, "-4.0000", c1.Available.String())
	require.Equal(t, "5.0000", c1.Held.String())
	require.Equal(t, "1.0000", c1.Total.String())
	require.False(t, c1.Locked)
	checkInvariants(t, reg)
}

func TestScenarioIdempotentDeposit(t *testing.T) {
	reg, stats, err := run(t, []Record{
		rec(t, RecordDeposit, 1, 10, "4.0"),
		rec(t, RecordDeposit, 1, 10, "4.0"),
	})
	require.NoError(t, err)
	require.Equal(t, Stats{Transacted: 1, Duplicates: 1}, stats)
	c1 := snap(t, reg, 1)
	require.Equal(t, "4.0000", c1.Available.String())
	require.Equal(t, "4.0000", c1.Total.String())
	checkInvariants(t, reg)
}

// Idempotency invariant: whenever a repeat answers Duplicate, the account
// state is identical to the single-application state.
func TestScenarioDuplicateLeavesStateUntouched(t *testing.T) {
	base := []Record{
		rec(t, RecordDeposit, 4, 1, "7.0"),
		rec(t, RecordWithdrawal, 4, 2, "3.0"),
		rec(t, RecordDispute, 4, 1, ""),
	}
	once, _, err := run(t, base)
	require.NoError(t, err)

	var doubled []Record
	for _, r := range base {
		doubled = append(doubled, r, r)
	}
	twice, stats, err := run(t, doubled)
	require.NoError(t, err)
	require.Equal(t, uint64(3), stats.Duplicates)
	require.Equal(t, snap(t, once, 4), snap(t, twice, 4))
}
