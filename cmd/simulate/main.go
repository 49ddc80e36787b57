// Package main runs offline accrual scenarios: it prints a balance growth
// table for a principal at a fixed rate, and optionally the effect of a
// mid-run rate cut on new versus existing holders.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"rebase-ledger/internal/accrual"
	"rebase-ledger/internal/ledger"
)

func main() {
	principal := flag.Uint64("principal", 100_000, "Starting principal")
	rate := flag.Uint64("rate", 50_000_000_000, "Interest rate, scaled units per second")
	duration := flag.Duration("duration", 24*time.Hour, "Total simulated time")
	step := flag.Duration("step", time.Hour, "Table row interval")
	cutAfter := flag.Duration("cut-after", 0, "Cut the global rate in half after this offset (0 disables)")
	outputJSON := flag.Bool("json", false, "Output as JSON lines")

	flag.Parse()

	logger := log.New(os.Stderr, "[simulate] ", log.LstdFlags)

	if *step <= 0 || *duration <= 0 {
		logger.Fatal("--duration and --step must be positive")
	}

	if *cutAfter > 0 {
		simulateRateCut(logger, *principal, *rate, *duration, *step, *cutAfter)
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	if !*outputJSON {
		fmt.Fprintln(w, "ELAPSED\tBALANCE\tINTEREST")
	}

	for elapsed := time.Duration(0); elapsed <= *duration; elapsed += *step {
		seconds := int64(elapsed / time.Second)
		balance, err := accrual.Balance(*principal, *rate, 0, seconds)
		if err != nil {
			logger.Fatalf("Balance at %v: %v", elapsed, err)
		}

		if *outputJSON {
			fmt.Printf("{\"elapsed_seconds\":%d,\"balance\":\"%s\",\"interest\":\"%s\"}\n",
				seconds, strconv.FormatUint(balance, 10), strconv.FormatUint(balance-*principal, 10))
			continue
		}
		fmt.Fprintf(w, "%v\t%d\t%d\n", elapsed, balance, balance-*principal)
	}

	if !*outputJSON {
		w.Flush()
	}
}

// simulateRateCut runs two holders through a rate cut: one funded before the
// cut keeps the old rate, one funded after locks in the new rate.
func simulateRateCut(logger *log.Logger, principal, rate uint64, duration, step, cutAfter time.Duration) {
	var now int64
	l := ledger.New(rate, ledger.WithClock(func() int64 { return now }))

	if err := l.Mint("early", principal); err != nil {
		logger.Fatalf("Mint early holder: %v", err)
	}

	cutAt := int64(cutAfter / time.Second)
	cutDone := false

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ELAPSED\tGLOBAL RATE\tEARLY BALANCE\tLATE BALANCE")

	for elapsed := time.Duration(0); elapsed <= duration; elapsed += step {
		now = int64(elapsed / time.Second)

		if !cutDone && now >= cutAt {
			if err := l.SetGlobalRate(rate/2, "simulator"); err != nil {
				logger.Fatalf("Rate cut: %v", err)
			}
			if err := l.Mint("late", principal); err != nil {
				logger.Fatalf("Mint late holder: %v", err)
			}
			cutDone = true
		}

		early, err := l.CurrentBalance("early")
		if err != nil {
			logger.Fatalf("Early balance: %v", err)
		}
		late, err := l.CurrentBalance("late")
		if err != nil {
			logger.Fatalf("Late balance: %v", err)
		}

		fmt.Fprintf(w, "%v\t%d\t%d\t%d\n", elapsed, l.GlobalRate(), early, late)
	}
	w.Flush()

	fmt.Printf("\nEarly holder keeps rate %d, late holder locked %d\n",
		l.UserRate("early"), l.UserRate("late"))
}
