package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/rl1809/stock-guard/internal/adapter/storage"
	"github.com/rl1809/stock-guard/internal/config"
	"github.com/rl1809/stock-guard/internal/core/domain"
	"github.com/rl1809/stock-guard/internal/core/engine"
	"github.com/rl1809/stock-guard/internal/core/retry"
	"github.com/rl1809/stock-guard/internal/core/service"
	"github.com/rl1809/stock-guard/internal/port"
)

const (
	itemID        = "stress-test-item"
	initialStock  = 1000
	totalRequests = 1000
)

type result struct {
	strategy engine.Strategy
	success  int32
	soldOut  int32
	failed   int32
	final    int64
	elapsed  time.Duration
	// firstErr is the first decrease that failed for a reason other than
	// running out of stock.
	firstErr error
}

func main() {
	backend := flag.String("backend", config.BackendMemory, "store for store-backed strategies (memory, redis)")
	hold := flag.Duration("hold", 0, "pause inside every decrement to widen races")
	flag.Parse()

	ctx := context.Background()

	var rdb *redis.Client
	if *backend == config.BackendRedis {
		addr := os.Getenv("REDIS_ADDR")
		if addr == "" {
			addr = config.DefaultRedisAddr
		}
		rdb = redis.NewClient(&redis.Options{Addr: addr, PoolSize: 100})
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Fatalf("failed to connect redis: %v", err)
		}
		defer rdb.Close()
	}

	newStore := func() port.StockStore {
		if rdb == nil {
			return storage.NewMemoryStore()
		}
		// Clear previous test data
		rdb.Del(ctx, "stock:"+itemID)
		return storage.NewRedisAdapter(rdb)
	}

	failures := 0
	for _, s := range engine.Strategies() {
		res, err := run(ctx, s, newStore(), *hold)
		if err != nil {
			log.Fatalf("%s: %v", s, err)
		}
		if !report(res) {
			failures++
		}
	}
	if failures > 0 {
		os.Exit(1)
	}
}

func run(ctx context.Context, s engine.Strategy, store port.StockStore, hold time.Duration) (result, error) {
	var opts []engine.Option
	if hold > 0 {
		opts = append(opts, engine.WithHoldHook(func(ctx context.Context, key string) {
			time.Sleep(hold)
		}))
	}
	// A deep retry budget lets the optimistic strategy ride out a full burst.
	policy := retry.Config{
		MaxAttempts:  10000,
		InitialDelay: 100 * time.Microsecond,
		Multiplier:   2,
		MaxDelay:     10 * time.Millisecond,
		Jitter:       true,
		JitterMode:   retry.JitterFull,
	}
	eng, err := engine.New(engine.Config{Strategy: s, Retry: policy}, store, opts...)
	if err != nil {
		return result{}, err
	}

	svcOpts := []service.Option{}
	if guard, ok := store.(port.IdempotencyGuard); ok {
		svcOpts = append(svcOpts, service.WithIdempotencyGuard(guard))
	}
	svc := service.NewStockService(eng, svcOpts...)
	if err := svc.Initialize(ctx, itemID, initialStock); err != nil {
		return result{}, err
	}

	// Counters
	var successCount, soldOutCount, failCount atomic.Int32

	// Spawn concurrent requests
	var g errgroup.Group
	start := time.Now()
	for i := 0; i < totalRequests; i++ {
		g.Go(func() error {
			err := svc.Decrease(ctx, uuid.NewString(), itemID, 1)
			switch {
			case err == nil:
				successCount.Add(1)
			case errors.Is(err, domain.ErrInsufficientStock):
				soldOutCount.Add(1)
			default:
				failCount.Add(1)
				return fmt.Errorf("decrease: %w", err)
			}
			return nil
		})
	}
	firstErr := g.Wait()
	elapsed := time.Since(start)

	final, err := svc.CurrentQuantity(ctx, itemID)
	if err != nil {
		return result{}, err
	}
	return result{
		strategy: s,
		success:  successCount.Load(),
		soldOut:  soldOutCount.Load(),
		failed:   failCount.Load(),
		final:    final,
		elapsed:  elapsed,
		firstErr: firstErr,
	}, nil
}

// report prints one strategy's results and whether it conserved stock.
func report(r result) bool {
	fmt.Printf("========== %s ==========\n", r.strategy)
	fmt.Printf("Initial Stock:    %d\n", initialStock)
	fmt.Printf("Total Requests:   %d\n", totalRequests)
	fmt.Printf("Successful:       %d\n", r.success)
	fmt.Printf("Sold Out:         %d\n", r.soldOut)
	fmt.Printf("Failed:           %d\n", r.failed)
	fmt.Printf("Final Stock:      %d\n", r.final)
	fmt.Printf("Duration:         %v\n", r.elapsed)
	if r.firstErr != nil {
		fmt.Printf("First Failure:    %v\n", r.firstErr)
	}

	conserved := r.final == int64(initialStock)-int64(r.success)
	switch {
	case r.strategy == engine.StrategyUnsafe && !conserved:
		fmt.Printf("EXPECTED: unsafe baseline lost %d updates\n", int64(r.success)-(int64(initialStock)-r.final))
		return true
	case r.failed > 0:
		fmt.Printf("FAIL: %d decreases failed\n", r.failed)
		return false
	case conserved:
		fmt.Println("PASS: every successful decrease is reflected in stock")
		return true
	default:
		fmt.Printf("FAIL: expected stock %d, got %d\n", int64(initialStock)-int64(r.success), r.final)
		return false
	}
}
