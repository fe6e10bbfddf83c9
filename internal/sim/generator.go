package sim

import (
	"math/rand"
	"time"

	"paycore.org/internal/engine"
)

// entryRef identifies a credit entry the generator may dispute later.
type entryRef struct {
	client uint16
	tx     uint32
}

// Generator produces a random but well-formed transaction stream: deposits
// and withdrawals with occasional dispute lifecycles. The stream never
// triggers a fatal policy error — locked clients are retired — so it can be
// replayed through the engine end to end. Deterministic for a fixed seed.
type Generator struct {
	rnd     *rand.Rand
	clients int
	nextTx  uint32

	accepted []entryRef
	held     []entryRef
	retired  []entryRef
	locked   map[uint16]bool
}

// NewGenerator seeds a generator over the given number of clients. A zero
// seed picks the current time.
func NewGenerator(clients int, seed int64) *Generator {
	if clients < 1 {
		clients = 1
	}
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Generator{
		rnd:     rand.New(rand.NewSource(seed)),
		clients: clients,
		locked:  make(map[uint16]bool),
	}
}

// Next returns the next record of the stream.
func (g *Generator) Next() engine.Record {
	switch p := g.rnd.Intn(100); {
	case p < 60:
		return g.deposit()
	case p < 80:
		return g.withdrawal()
	case p < 90:
		if rec, ok := g.dispute(); ok {
			return rec
		}
		return g.deposit()
	case p < 97:
		if rec, ok := g.resolve(); ok {
			return rec
		}
		return g.deposit()
	default:
		if rec, ok := g.chargeback(); ok {
			return rec
		}
		return g.deposit()
	}
}

// Records returns the next n records.
func (g *Generator) Records(n int) []engine.Record {
	out := make([]engine.Record, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, g.Next())
	}
	return out
}

func (g *Generator) pickClient() (uint16, bool) {
	if len(g.locked) >= g.clients {
		return 0, false
	}
	for {
		c := uint16(g.rnd.Intn(g.clients) + 1)
		if !g.locked[c] {
			return c, true
		}
	}
}

func (g *Generator) amount() engine.Amount {
	// Up to 1000.0000, quantised to whole cents like real payment flows.
	return engine.Amount((g.rnd.Int63n(100_000) + 1) * 100)
}

// replay emits a dispute on a charged-back entry, which a locked account
// still answers with Duplicate. Used once every client has been retired.
func (g *Generator) replay() engine.Record {
	ref := g.retired[g.rnd.Intn(len(g.retired))]
	return engine.Record{Type: engine.RecordDispute, Client: ref.client, Tx: ref.tx}
}

func (g *Generator) deposit() engine.Record {
	client, ok := g.pickClient()
	if !ok {
		return g.replay()
	}
	g.nextTx++
	rec := engine.Record{
		Type:   engine.RecordDeposit,
		Client: client,
		Tx:     g.nextTx,
		Amount: g.amount(),
	}
	g.accepted = append(g.accepted, entryRef{client: client, tx: rec.Tx})
	return rec
}

func (g *Generator) withdrawal() engine.Record {
	client, ok := g.pickClient()
	if !ok {
		return g.replay()
	}
	g.nextTx++
	// May exceed the balance; insufficient funds is suppressed, not fatal.
	return engine.Record{
		Type:   engine.RecordWithdrawal,
		Client: client,
		Tx:     g.nextTx,
		Amount: g.amount(),
	}
}

func (g *Generator) takeRef(pool *[]entryRef) (entryRef, bool) {
	for len(*pool) > 0 {
		i := g.rnd.Intn(len(*pool))
		ref := (*pool)[i]
		(*pool)[i] = (*pool)[len(*pool)-1]
		*pool = (*pool)[:len(*pool)-1]
		if !g.locked[ref.client] {
			return ref, true
		}
	}
	return entryRef{}, false
}

func (g *Generator) dispute() (engine.Record, bool) {
	ref, ok := g.takeRef(&g.accepted)
	if !ok {
		return engine.Record{}, false
	}
	g.held = append(g.held, ref)
	return engine.Record{Type: engine.RecordDispute, Client: ref.client, Tx: ref.tx}, true
}

func (g *Generator) resolve() (engine.Record, bool) {
	ref, ok := g.takeRef(&g.held)
	if !ok {
		return engine.Record{}, false
	}
	return engine.Record{Type: engine.RecordResolve, Client: ref.client, Tx: ref.tx}, true
}

func (g *Generator) chargeback() (engine.Record, bool) {
	ref, ok := g.takeRef(&g.held)
	if !ok {
		return engine.Record{}, false
	}
	g.locked[ref.client] = true
	g.retired = append(g.retired, ref)
	return engine.Record{Type: engine.RecordChargeback, Client: ref.client, Tx: ref.tx}, true
}
