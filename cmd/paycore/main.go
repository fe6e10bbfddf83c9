package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"paycore.org/internal/csvio"
	"paycore.org/internal/engine"
	"paycore.org/internal/store/sqlite"
)

func main() {
	log.SetFlags(0)
	var (
		workers    = flag.Int("workers", 1, "Shard the stream across N workers (clients are hash-partitioned)")
		sqlitePath = flag.String("sqlite", "", "Persist final account snapshots to this SQLite file")
		quiet      = flag.Bool("quiet", false, "Suppress the end-of-run stats line")
	)
	flag.Parse()

	if flag.NArg() != 1 {
		log.Fatal("usage: paycore [flags] <input.csv>")
	}
	input := flag.Arg(0)

	f, err := os.Open(input)
	if err != nil {
		log.Fatalf("open input: %v", err)
	}
	defer f.Close()

	src := csvio.NewReader(f)

	var (
		reg   *engine.Registry
		stats engine.Stats
	)
	if *workers > 1 {
		reg, stats, err = engine.ProcessParallel(src, *workers)
	} else {
		reg = engine.NewRegistry()
		stats, err = engine.Process(reg, src)
	}
	if err != nil {
		log.Fatalf("process %s: %v", input, err)
	}

	if err := csvio.WriteReport(os.Stdout, reg.Snapshots()); err != nil {
		log.Fatalf("write report: %v", err)
	}

	if *sqlitePath != "" {
		if err := persist(*sqlitePath, reg); err != nil {
			log.Fatalf("persist snapshots: %v", err)
		}
	}

	if !*quiet {
		fmt.Fprintf(os.Stderr, "%d transacted, %d duplicates, %d suppressed across %d accounts (%d locked)\n",
			stats.Transacted, stats.Duplicates, stats.Suppressed, reg.Size(), reg.LockedCount())
	}
}

func persist(path string, reg *engine.Registry) error {
	store, err := sqlite.Open(path)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return store.Save(ctx, reg)
}
