package main

import (
	"context"
	"database/sql"
	"flag"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-logr/logr"
	"github.com/go-logr/stdr"
	_ "github.com/go-sql-driver/mysql"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"google.golang.org/grpc"

	"github.com/rl1809/stock-guard/internal/adapter/handler"
	"github.com/rl1809/stock-guard/internal/adapter/storage"
	"github.com/rl1809/stock-guard/internal/config"
	"github.com/rl1809/stock-guard/internal/core/engine"
	"github.com/rl1809/stock-guard/internal/core/retry"
	"github.com/rl1809/stock-guard/internal/core/service"
	"github.com/rl1809/stock-guard/internal/metrics"
	"github.com/rl1809/stock-guard/internal/port"
)

func main() {
	configPath := flag.String("config", "", "path to a TOML config file")
	strategy := flag.String("strategy", "", "override engine strategy")
	backend := flag.String("backend", "", "override store backend (memory, mysql, redis)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if *strategy != "" {
		cfg.Engine.Strategy = *strategy
	}
	if *backend != "" {
		cfg.Engine.Backend = *backend
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	stdr.SetVerbosity(cfg.Server.LogVerbosity)
	logger := stdr.New(log.New(os.Stderr, "", log.LstdFlags)).WithName("stock-guard")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tp, err := newTracerProvider(cfg.Server.TraceStdout)
	if err != nil {
		log.Fatalf("failed to set up tracing: %v", err)
	}
	otel.SetTracerProvider(tp)

	reg := metrics.NewRegistry()
	metrics.Register(reg)

	// Initialize store
	store, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("failed to open %s store: %v", cfg.Engine.Backend, err)
	}

	// Initialize engine and service
	engineOpts := []engine.Option{engine.WithLogger(logger.WithName("engine"))}
	if cfg.Engine.Hold > 0 {
		engineOpts = append(engineOpts, engine.WithHoldHook(sleepHook(cfg.Engine.Hold)))
	}
	eng, err := engine.New(engine.Config{
		Strategy:     cfg.Strategy(),
		Retry:        cfg.RetryPolicy(),
		RetryOptions: []retry.Option{retry.WithTracerProvider(tp)},
	}, store, engineOpts...)
	if err != nil {
		log.Fatalf("failed to build engine: %v", err)
	}

	svcOpts := []service.Option{service.WithLogger(logger.WithName("service"))}
	if guard, ok := store.(port.IdempotencyGuard); ok {
		svcOpts = append(svcOpts, service.WithIdempotencyGuard(guard))
	}
	stockService := service.NewStockService(eng, svcOpts...)
	logger.Info("engine ready", "strategy", eng.Strategy(), "backend", cfg.Engine.Backend)

	// Initialize gRPC server
	grpcServer := grpc.NewServer()
	handler.RegisterStockServiceServer(grpcServer, handler.NewGRPCHandler(stockService, logger.WithName("grpc")))

	lis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
	if err != nil {
		log.Fatalf("failed to listen: %v", err)
	}

	go func() {
		logger.Info("gRPC server listening", "addr", cfg.Server.GRPCAddr)
		if err := grpcServer.Serve(lis); err != nil {
			logger.Error(err, "gRPC server error")
		}
	}()

	// Initialize HTTP server
	mux := http.NewServeMux()
	handler.NewHTTPHandler(stockService, logger.WithName("http")).Register(mux)
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	httpServer := &http.Server{
		Addr:    cfg.Server.HTTPAddr,
		Handler: mux,
	}

	go func() {
		logger.Info("HTTP server listening", "addr", cfg.Server.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error(err, "HTTP server error")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error(err, "HTTP shutdown")
	}
	logger.Info("HTTP server stopped")

	grpcServer.GracefulStop()
	logger.Info("gRPC server stopped")

	if err := tp.Shutdown(shutdownCtx); err != nil {
		logger.Error(err, "tracer shutdown")
	}

	closeStore()
	logger.Info("connections closed")
}

// openStore connects the configured backend and returns it with its closer.
func openStore(ctx context.Context, cfg *config.Config, logger logr.Logger) (port.StockStore, func(), error) {
	switch cfg.Engine.Backend {
	case config.BackendMySQL:
		db, err := sql.Open("mysql", cfg.MySQL.DSN)
		if err != nil {
			return nil, nil, err
		}
		db.SetMaxOpenConns(cfg.MySQL.MaxOpenConns)
		db.SetMaxIdleConns(cfg.MySQL.MaxIdleConns)
		db.SetConnMaxLifetime(cfg.MySQL.ConnMaxLifetime)

		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return nil, nil, err
		}
		adapter := storage.NewMySQLAdapter(db)
		if err := adapter.EnsureSchema(ctx); err != nil {
			db.Close()
			return nil, nil, err
		}
		logger.Info("connected to mysql")
		return adapter, func() { db.Close() }, nil

	case config.BackendRedis:
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			PoolSize: cfg.Redis.PoolSize,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			rdb.Close()
			return nil, nil, err
		}
		logger.Info("connected to redis", "addr", cfg.Redis.Addr)
		return storage.NewRedisAdapter(rdb,
			storage.WithLockTTL(cfg.Redis.LockTTL),
			storage.WithLogger(logger.WithName("redis")),
		), func() { rdb.Close() }, nil
	}
	return storage.NewMemoryStore(), func() {}, nil
}

func sleepHook(d time.Duration) engine.HoldFunc {
	return func(ctx context.Context, key string) {
		t := time.NewTimer(d)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
		}
	}
}

func newTracerProvider(stdout bool) (*sdktrace.TracerProvider, error) {
	if !stdout {
		return sdktrace.NewTracerProvider(), nil
	}
	exp, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, err
	}
	return sdktrace.NewTracerProvider(sdktrace.WithBatcher(exp)), nil
}
