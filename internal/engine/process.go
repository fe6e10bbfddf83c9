package engine

import (
	"errors"
	"fmt"
	"io"
	"sync"
)

// Source produces parsed records in arrival order. Next returns io.EOF
// once the stream is exhausted. Only the source may block; transactors are
// bounded-time.
type Source interface {
	Next() (Record, error)
}

// Stats counts what a drain did.
type Stats struct {
	Transacted uint64 `json:"transacted"`
	Duplicates uint64 `json:"duplicates"`
	Suppressed uint64 `json:"suppressed"`
}

func (s *Stats) count(outcome Outcome, err error) error {
	switch {
	case err == nil && outcome == Transacted:
		s.Transacted++
	case err == nil:
		s.Duplicates++
	case IsSuppressed(err):
		s.Suppressed++
	default:
		return err
	}
	return nil
}

// Process drains src into reg sequentially. Suppressed errors skip the
// record; the first fatal error aborts the drain and is returned. No
// rollback is attempted — reg keeps whatever state accumulated, and the
// transactors' duplicate rules make replaying the input safe.
func Process(reg *Registry, src Source) (Stats, error) {
	var stats Stats
	for {
		rec, err := src.Next()
		if errors.Is(err, io.EOF) {
			return stats, nil
		}
		if err != nil {
			return stats, err
		}
		outcome, err := reg.Apply(rec)
		if err := stats.count(outcome, err); err != nil {
			return stats, fmt.Errorf("client %d tx %d: %w", rec.Client, rec.Tx, err)
		}
	}
}

// ProcessParallel shards the stream by client id across workers, each
// worker draining its shard in arrival order into a private registry.
// Per-client order is preserved because a client always hashes to the same
// shard; cross-client ordering is irrelevant. On success the shard
// registries are merged (client sets are disjoint by construction) and the
// result matches a sequential Process of the same stream.
func ProcessParallel(src Source, workers int) (*Registry, Stats, error) {
	if workers < 1 {
		workers = 1
	}

	shards := make([]chan Record, workers)
	regs := make([]*Registry, workers)
	for i := range shards {
		shards[i] = make(chan Record, 256)
		regs[i] = NewRegistry()
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
		total    Stats
	)
	done := make(chan struct{})
	fail := func(err error) {
		mu.Lock()
		defer mu.Unlock()
		if firstErr == nil {
			firstErr = err
			close(done)
		}
	}

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var stats Stats
			for rec := range shards[i] {
				outcome, err := regs[i].Apply(rec)
				if err := stats.count(outcome, err); err != nil {
					fail(fmt.Errorf("client %d tx %d: %w", rec.Client, rec.Tx, err))
				}
			}
			mu.Lock()
			total.Transacted += stats.Transacted
			total.Duplicates += stats.Duplicates
			total.Suppressed += stats.Suppressed
			mu.Unlock()
		}(i)
	}

feed:
	for {
		select {
		case <-done:
			break feed
		default:
		}
		rec, err := src.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			fail(err)
			break
		}
		shards[int(rec.Client)%workers] <- rec
	}
	for _, ch := range shards {
		close(ch)
	}
	wg.Wait()

	if firstErr != nil {
		return nil, total, firstErr
	}
	merged := NewRegistry()
	for _, reg := range regs {
		merged.merge(reg)
	}
	return merged, total, nil
}

// SliceSource adapts an in-memory record slice to Source.
type SliceSource struct {
	records []Record
	pos     int
}

func NewSliceSource(records []Record) *SliceSource {
	return &SliceSource{records: records}
}

func (s *SliceSource) Next() (Record, error) {
	if s.pos >= len(s.records) {
		return Record{}, io.EOF
	}
	rec := s.records[s.pos]
	s.pos++
	return rec, nil
}
