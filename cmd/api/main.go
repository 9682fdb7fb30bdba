package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jbaptiste/caisse-ledger/internal/cache"
	"github.com/jbaptiste/caisse-ledger/internal/config"
	"github.com/jbaptiste/caisse-ledger/internal/handler"
	"github.com/jbaptiste/caisse-ledger/internal/logging"
	"github.com/jbaptiste/caisse-ledger/internal/middleware"
	"github.com/jbaptiste/caisse-ledger/internal/notify"
	"github.com/jbaptiste/caisse-ledger/internal/repository"
	"github.com/jbaptiste/caisse-ledger/internal/service"
	"github.com/jbaptiste/caisse-ledger/internal/service/ledger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logging.Init("caisse-ledger", cfg.LogLevel, cfg.AppEnv)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	db, err := repository.NewPostgresDB(ctx, cfg.DatabaseURL, repository.PoolConfig{
		MaxOpenConns:     cfg.DBMaxOpenConns,
		MaxIdleConns:     cfg.DBMaxIdleConns,
		ConnMaxLifetimeS: cfg.DBConnMaxLifetimeS,
		ConnMaxIdleTimeS: cfg.DBConnMaxIdleTimeS,
	})
	cancel()
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	var publisher *notify.Publisher
	if cfg.AMQPURL != "" {
		publisher, err = notify.NewPublisher(cfg.AMQPURL, cfg.NotifyExchange)
		if err != nil {
			slog.Error("failed to connect to rabbitmq", "error", err)
			os.Exit(1)
		}
		defer publisher.Close()
	} else {
		slog.Warn("AMQP_URL not set, transaction notifications disabled")
	}

	var balanceCache *cache.BalanceCache
	if cfg.RedisAddr != "" && cfg.BalanceCacheTTLS > 0 {
		balanceCache = cache.NewBalanceCache(cfg.RedisAddr, time.Duration(cfg.BalanceCacheTTLS)*time.Second)
		defer balanceCache.Close()
	} else {
		slog.Warn("REDIS_ADDR not set, balance cache disabled")
	}

	accounts := repository.NewAccountRepository(db)
	transactions := repository.NewTransactionRepository(db)
	branches := repository.NewBranchRepository(db)
	customers := repository.NewCustomerRepository(db)

	// interface-typed nils must stay nil, not wrap a nil pointer
	ledgerSvc := ledger.NewService(accounts, transactions, branches, db, nilSafeNotifier(publisher), nilSafeCache(balanceCache), cfg)
	accountSvc := service.NewAccountService(accounts, customers, branches, transactions, nilSafeReadCache(balanceCache))

	accountHandler := handler.NewAccountHandler(accountSvc)
	transactionHandler := handler.NewTransactionHandler(ledgerSvc)
	healthHandler := handler.NewHealthHandler(db)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", healthHandler.Check)
	mux.HandleFunc("POST /api/v1/accounts", accountHandler.Open)
	mux.HandleFunc("GET /api/v1/accounts/{number}", accountHandler.Get)
	mux.HandleFunc("GET /api/v1/accounts/{number}/balance", accountHandler.Balance)
	mux.HandleFunc("GET /api/v1/accounts/{number}/transactions", accountHandler.ListTransactions)
	mux.HandleFunc("POST /api/v1/accounts/{number}/transactions", transactionHandler.Post)
	mux.HandleFunc("POST /api/v1/accounts/{number}/close", accountHandler.Close)
	mux.HandleFunc("GET /api/v1/customers/{id}/accounts", accountHandler.ListByCustomer)
	mux.HandleFunc("GET /api/v1/branches/{code}", accountHandler.GetBranch)
	mux.HandleFunc("POST /api/v1/transfers", transactionHandler.Transfer)
	mux.HandleFunc("GET /api/v1/transactions/{id}", transactionHandler.Get)
	mux.HandleFunc("POST /api/v1/transactions/{id}/reverse", transactionHandler.Reverse)

	var root http.Handler = mux
	root = middleware.Logging(root)
	root = middleware.Recovery(root)
	root = middleware.Tracing(root)

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           root,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		slog.Info("server started", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}
	slog.Info("server stopped")
}

func nilSafeNotifier(p *notify.Publisher) ledger.Notifier {
	if p == nil {
		return nil
	}
	return p
}

func nilSafeCache(c *cache.BalanceCache) ledger.BalanceCache {
	if c == nil {
		return nil
	}
	return c
}

func nilSafeReadCache(c *cache.BalanceCache) service.ReadCache {
	if c == nil {
		return nil
	}
	return c
}
