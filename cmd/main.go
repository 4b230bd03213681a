package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/govalues/decimal"
	"github.com/joho/godotenv"

	"github.com/tinoosan/marketbooks/internal/books"
	httpapi "github.com/tinoosan/marketbooks/internal/httpapi/v1"
	"github.com/tinoosan/marketbooks/internal/service/costing"
	"github.com/tinoosan/marketbooks/internal/service/inventory"
	"github.com/tinoosan/marketbooks/internal/service/registry"
	"github.com/tinoosan/marketbooks/internal/service/reports"
	"github.com/tinoosan/marketbooks/internal/service/safe"
	"github.com/tinoosan/marketbooks/internal/service/statement"
	"github.com/tinoosan/marketbooks/internal/service/trading"
	"github.com/tinoosan/marketbooks/internal/storage/memory"
	pgstore "github.com/tinoosan/marketbooks/internal/storage/postgres"
)

// backend is the full storage surface: every service repo plus the read
// paths the HTTP layer uses directly. Both stores implement it.
type backend interface {
	registry.Repo
	registry.Writer
	costing.Repo
	inventory.Repo
	inventory.Writer
	safe.Repo
	safe.Writer
	statement.Repo
	trading.Repo
	trading.Writer
	reports.Repo
	httpapi.Reader
}

func main() {
	// .env is optional and only for local development
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Logger (slog to stdout). Level via LOG_LEVEL; format via LOG_FORMAT (json|text, default json)
	logger := buildLoggerFromEnv()
	slog.SetDefault(logger)

	var store backend
	var closeFn func()

	if dsn := strings.TrimSpace(os.Getenv("DATABASE_URL")); dsn != "" {
		// Use Postgres store when DATABASE_URL is provided
		pg, err := pgstore.Open(ctx, dsn)
		if err != nil {
			logger.Error("failed to connect to postgres", "err", err)
			os.Exit(1)
		}
		closeFn = func() { pg.Close() }
		store = pg
		logger.Info("storage backend: postgres")
	} else {
		store = memory.New()
		logger.Info("storage backend: memory")
	}

	// Optional dev seed for compose/local
	if dev := strings.ToLower(strings.TrimSpace(os.Getenv("DEV_SEED"))); dev == "1" || dev == "true" || dev == "yes" {
		if err := seedDev(ctx, store, logger); err != nil {
			logger.Error("dev seed failed", "err", err)
		}
	}

	addr := strings.TrimSpace(os.Getenv("ADDR"))
	if addr == "" {
		addr = ":8080"
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           buildHandler(store, logger),
		ReadTimeout:       5 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("marketbooks service listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctxShutdown); err != nil {
			logger.Error("server shutdown error", "err", err)
		}
	case err := <-errCh:
		logger.Error("server error", "err", err)
	}
	if closeFn != nil {
		closeFn()
	}
}

func buildHandler(store backend, logger *slog.Logger) http.Handler {
	locks := books.NewMarketLocks()
	avg := costing.New(store)
	ledger := safe.New(store, store, locks)
	stock := inventory.New(store, store, allocationModeFromEnv(), locks)
	trade := trading.New(store, store, ledger, stock, avg, locks)
	reg := registry.New(store, store)
	stmt := statement.New(store)
	rpt := reports.New(store, avg)
	return httpapi.New(store, reg, trade, ledger, stock, stmt, rpt, logger).Handler()
}

// seedDev creates a demo market with one supplier, one customer and one item
// so a local instance is usable straight away.
func seedDev(ctx context.Context, store backend, l *slog.Logger) error {
	market, err := store.SaveMarket(ctx, books.Market{
		ID: uuid.New(), Name: "Demo Market", BaseCurrency: "USD",
		Policy: books.PolicyAverage, CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		return err
	}
	supplier, err := store.SaveCompany(ctx, books.Company{
		ID: uuid.New(), MarketID: market.ID, Name: "Demo Supplier",
		Category: books.CategorySupplier, Currency: "AED", Active: true,
	})
	if err != nil {
		return err
	}
	customer, err := store.SaveCompany(ctx, books.Company{
		ID: uuid.New(), MarketID: market.ID, Name: "Demo Customer",
		Category: books.CategoryCustomer, Currency: "USD", Active: true,
	})
	if err != nil {
		return err
	}
	item, err := store.SaveItem(ctx, books.Item{
		ID: uuid.New(), MarketID: market.ID, SupplierID: supplier.ID,
		Code: "DEMO-TYRE-17", Name: "Demo Tyre 17", Weight: decimal.MustParse("2"),
	})
	if err != nil {
		return err
	}
	l.Info("DEV seed", "market_id", market.ID.String(),
		"supplier_id", supplier.ID.String(), "customer_id", customer.ID.String(),
		"item_id", item.ID.String())
	printDevSeedBanner(market, supplier, customer, item)
	return nil
}

// printDevSeedBanner prints a simple banner to stdout for easy copy/paste of IDs
func printDevSeedBanner(market books.Market, supplier, customer books.Company, item books.Item) {
	fmt.Println("==================== DEV SEED ====================")
	fmt.Printf("market_id: %s\n", market.ID.String())
	fmt.Printf("supplier_id: %s\n", supplier.ID.String())
	fmt.Printf("customer_id: %s\n", customer.ID.String())
	fmt.Printf("item_id: %s\n", item.ID.String())
	fmt.Println("==================================================")
}

// allocationModeFromEnv picks the oversold handling mode. Lenient allocates
// what exists and reports shortfalls; strict rejects oversold sales outright.
func allocationModeFromEnv() inventory.Mode {
	if strings.EqualFold(strings.TrimSpace(os.Getenv("ALLOCATION_MODE")), "strict") {
		return inventory.ModeStrict
	}
	return inventory.ModeLenient
}

// parseLogLevel maps env values to slog.Leveler
func parseLogLevel(s string) slog.Leveler {
	switch s {
	case "DEBUG", "debug":
		return slog.LevelDebug
	case "WARN", "WARNING", "warn", "warning":
		return slog.LevelWarn
	case "ERROR", "ERR", "error", "err":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func buildLoggerFromEnv() *slog.Logger {
	level := parseLogLevel(os.Getenv("LOG_LEVEL"))
	format := strings.ToLower(strings.TrimSpace(os.Getenv("LOG_FORMAT")))
	if format == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	}
	// default to JSON
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
}
