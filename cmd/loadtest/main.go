package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
	"github.com/fatih/color"
	"golang.org/x/time/rate"

	"github.com/openclob/pointsbook/pkg/backend/memory"
	"github.com/openclob/pointsbook/pkg/core"
	"github.com/openclob/pointsbook/pkg/server"
)

var (
	numWorkers      = flag.Int("workers", 16, "Number of concurrent workers")
	ordersPerWorker = flag.Int("orders", 10000, "Orders submitted per worker")
	maxRate         = flag.Int("rate", 50000, "Maximum orders per second")
)

func main() {
	flag.Parse()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt)
	go func() {
		<-sigChan
		log.Println("Received interrupt signal, cleaning up...")
		cancel()
	}()

	engine := core.NewEngine(memory.NewMemoryBackend())
	seq := server.NewSequencer("loadtest", engine, nil)
	seq.Start()
	defer seq.Stop()

	market, err := seq.CreateMarket(ctx, core.CreateMarketParams{
		Creator:      1,
		Resolver:     1,
		Outcomes:     2,
		EarlyResolve: true,
	})
	if err != nil {
		log.Fatalf("Failed to create market: %v", err)
	}
	class := core.ClassKey{Market: market.ID, Outcome: 0}

	// Fund one buyer and one seller account per worker. Bids reserve up to
	// twice their size in Points, so the buyer budget is sized to match.
	perWorkerBudget := uint64(*ordersPerWorker) * 20
	for i := 0; i < *numWorkers; i++ {
		buyer := core.UserID(1000 + i)
		seller := core.UserID(2000 + i)
		if err := seq.Deposit(ctx, buyer, perWorkerBudget); err != nil {
			log.Fatalf("Failed to fund buyer: %v", err)
		}
		if err := seq.DepositShares(ctx, seller, class, perWorkerBudget); err != nil {
			log.Fatalf("Failed to fund seller: %v", err)
		}
	}

	limiter := rate.NewLimiter(rate.Limit(*maxRate), *maxRate)
	hist := hdrhistogram.New(1, int64(10*time.Second), 3)
	var histMu sync.Mutex

	var wg sync.WaitGroup
	errChan := make(chan error, *numWorkers)

	total := *numWorkers * *ordersPerWorker
	log.Printf("Starting %d workers, %d orders per worker...", *numWorkers, *ordersPerWorker)
	start := time.Now()

	for i := 0; i < *numWorkers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))
			local := hdrhistogram.New(1, int64(10*time.Second), 3)

			for j := 0; j < *ordersPerWorker; j++ {
				if err := limiter.Wait(ctx); err != nil {
					errChan <- fmt.Errorf("rate limiter: %w", err)
					return
				}

				// Ticks cluster around the midpoint for a high match rate.
				p := core.PlaceParams{
					Market:  class.Market,
					Outcome: class.Outcome,
					Tick:    core.Tick(r.Intn(9) + 46),
					Size:    uint64(r.Intn(10) + 1),
				}
				if r.Intn(2) == 0 {
					p.User = core.UserID(1000 + workerID)
					p.Side = core.Bid
				} else {
					p.User = core.UserID(2000 + workerID)
					p.Side = core.Ask
				}

				began := time.Now()
				if _, err := seq.PlaceLimit(ctx, p); err != nil {
					if err == core.ErrInsufficientFunds {
						continue
					}
					errChan <- fmt.Errorf("place order: %w", err)
					return
				}
				local.RecordValue(time.Since(began).Nanoseconds())
			}

			histMu.Lock()
			hist.Merge(local)
			histMu.Unlock()
		}(i)
	}

	wg.Wait()
	duration := time.Since(start)
	close(errChan)

	var errs []error
	for err := range errChan {
		errs = append(errs, err)
	}

	printReport(total, duration, hist, errs)

	if len(errs) > 0 {
		os.Exit(1)
	}
}

func printReport(total int, duration time.Duration, hist *hdrhistogram.Histogram, errs []error) {
	green := color.New(color.FgGreen).SprintfFunc()
	cyan := color.New(color.FgCyan).SprintfFunc()
	red := color.New(color.FgRed).SprintfFunc()

	fmt.Println(green("Load test completed in %v", duration))
	fmt.Println(cyan("Orders submitted:  %d", total))
	fmt.Println(cyan("Throughput:        %.0f orders/sec", float64(total)/duration.Seconds()))
	fmt.Println(cyan("Latency p50:       %v", time.Duration(hist.ValueAtQuantile(50))))
	fmt.Println(cyan("Latency p99:       %v", time.Duration(hist.ValueAtQuantile(99))))
	fmt.Println(cyan("Latency p99.9:     %v", time.Duration(hist.ValueAtQuantile(99.9))))
	fmt.Println(cyan("Latency max:       %v", time.Duration(hist.Max())))

	if len(errs) > 0 {
		fmt.Println(red("Errors encountered: %d", len(errs)))
		fmt.Println(red("First error: %v", errs[0]))
	}
}
