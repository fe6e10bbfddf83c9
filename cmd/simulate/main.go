package main

import (
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"paycore.org/internal/client"
	"paycore.org/internal/engine"
	"paycore.org/internal/sim"
)

func main() {
	log.SetFlags(0)
	var (
		clients = flag.Int("clients", 25, "Number of synthetic clients")
		records = flag.Int("records", 1000, "Number of records to generate")
		seed    = flag.Int64("seed", 0, "Generator seed (0 uses the current time)")
		target  = flag.String("target", "", "Drive a running API at this base URL instead of emitting CSV")
		token   = flag.String("token", "", "Bearer token for the target API")
	)
	flag.Parse()

	gen := sim.NewGenerator(*clients, *seed)
	stream := gen.Records(*records)

	if *target == "" {
		if err := emitCSV(os.Stdout, stream); err != nil {
			log.Fatalf("write csv: %v", err)
		}
		return
	}

	drive(*target, *token, stream)
}

func emitCSV(out *os.File, records []engine.Record) error {
	w := csv.NewWriter(out)
	if err := w.Write([]string{"type", "client", "tx", "amount"}); err != nil {
		return err
	}
	for _, rec := range records {
		amount := ""
		if rec.Type.HasAmount() {
			amount = rec.Amount.String()
		}
		row := []string{
			rec.Type.String(),
			strconv.FormatUint(uint64(rec.Client), 10),
			strconv.FormatUint(uint64(rec.Tx), 10),
			amount,
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func drive(target, token string, records []engine.Record) {
	var opts []client.Option
	if token != "" {
		opts = append(opts, client.WithToken(token))
	}
	c := client.New(target, opts...)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	if err := c.Health(ctx); err != nil {
		log.Fatalf("target not healthy: %v", err)
	}

	var applied, duplicates, rejected int
	for _, rec := range records {
		res, err := c.Submit(ctx, rec)
		if err != nil {
			rejected++
			continue
		}
		switch res.Outcome {
		case engine.Transacted.String():
			applied++
		default:
			duplicates++
		}
	}

	accounts, err := c.Accounts(ctx)
	if err != nil {
		log.Fatalf("fetch accounts: %v", err)
	}

	fmt.Printf("submitted %d records: %d transacted, %d duplicates, %d rejected\n",
		len(records), applied, duplicates, rejected)
	fmt.Printf("target now tracks %d accounts\n", len(accounts))
}
