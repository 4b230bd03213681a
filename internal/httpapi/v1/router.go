// Package v1 wires the HTTP surface of the trading books service.
// It keeps handlers thin, delegating business rules to the service layer.
package v1

import (
	"log/slog"
	"net/http"

	chi "github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/tinoosan/marketbooks/internal/service/inventory"
	"github.com/tinoosan/marketbooks/internal/service/registry"
	"github.com/tinoosan/marketbooks/internal/service/reports"
	"github.com/tinoosan/marketbooks/internal/service/safe"
	"github.com/tinoosan/marketbooks/internal/service/statement"
	"github.com/tinoosan/marketbooks/internal/service/trading"
)

// Server composes the services behind the HTTP API using Chi.
type Server struct {
	reader Reader
	reg    registry.Service
	trade  trading.Service
	ledger safe.Service
	stock  inventory.Service
	stmt   statement.Service
	rpt    reports.Service
	log    *slog.Logger
	rt     *chi.Mux
}

// New constructs the HTTP server with routes and middleware.
func New(reader Reader, reg registry.Service, trade trading.Service, ledger safe.Service, stock inventory.Service, stmt statement.Service, rpt reports.Service, logger *slog.Logger) *Server {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))
	r.Use(requestLogger(logger))
	r.Use(recoverer(logger))
	r.Use(metricsMiddleware)

	s := &Server{
		reader: reader,
		reg:    reg,
		trade:  trade,
		ledger: ledger,
		stock:  stock,
		stmt:   stmt,
		rpt:    rpt,
		log:    logger,
		rt:     r,
	}
	s.routes()
	return s
}

// Handler exposes the configured http.Handler.
func (s *Server) Handler() http.Handler { return s.rt }

// routes declares the public HTTP API endpoints and attaches any per-route middleware.
func (s *Server) routes() {
	// Markets
	s.rt.Post("/v1/markets", s.postMarket)
	s.rt.Get("/v1/markets", s.listMarkets)
	s.rt.Get("/v1/markets/{marketID}", s.getMarket)
	s.rt.Patch("/v1/markets/{marketID}", s.patchMarket)
	s.rt.Post("/v1/markets/{marketID}/costing-policy", s.postCostingPolicy)
	s.rt.Post("/v1/markets/{marketID}/backfill", s.postBackfill)

	// Companies
	s.rt.Post("/v1/markets/{marketID}/companies", s.postCompany)
	s.rt.Get("/v1/markets/{marketID}/companies", s.listCompanies)
	s.rt.Get("/v1/markets/{marketID}/companies/{companyID}", s.getCompany)
	s.rt.Patch("/v1/markets/{marketID}/companies/{companyID}", s.patchCompany)
	s.rt.Get("/v1/markets/{marketID}/companies/{companyID}/balance", s.getCompanyBalance)
	s.rt.Get("/v1/markets/{marketID}/companies/{companyID}/statement", s.getCompanyStatement)

	// Items
	s.rt.Post("/v1/markets/{marketID}/items", s.postItem)
	s.rt.Get("/v1/markets/{marketID}/items", s.listItems)
	s.rt.Get("/v1/markets/{marketID}/items/{itemID}", s.getItem)
	s.rt.Patch("/v1/markets/{marketID}/items/{itemID}", s.patchItem)

	// Purchases and sales
	s.rt.With(s.validatePostPurchase()).Post("/v1/markets/{marketID}/purchases", s.postPurchase)
	s.rt.Get("/v1/markets/{marketID}/purchases", s.listPurchases)
	s.rt.With(s.validatePostSale()).Post("/v1/markets/{marketID}/sales", s.postSale)
	s.rt.Get("/v1/markets/{marketID}/sales", s.listSales)
	s.rt.Get("/v1/markets/{marketID}/sales/{saleID}", s.getSale)

	// Payments, expenses, adjustments
	s.rt.Post("/v1/markets/{marketID}/payments", s.postPayment)
	s.rt.Delete("/v1/markets/{marketID}/payments/{paymentID}", s.deletePayment)
	s.rt.Post("/v1/markets/{marketID}/expenses", s.postExpense)
	s.rt.Post("/v1/markets/{marketID}/adjustments", s.postAdjustment)

	// Safe ledger
	s.rt.With(s.validatePostEntry()).Post("/v1/markets/{marketID}/safe/entries", s.postSafeEntry)
	s.rt.Get("/v1/markets/{marketID}/safe/entries", s.listSafeEntries)
	s.rt.Patch("/v1/markets/{marketID}/safe/entries/{entryID}", s.patchSafeEntry)
	s.rt.Delete("/v1/markets/{marketID}/safe/entries/{entryID}", s.deleteSafeEntry)
	s.rt.Get("/v1/markets/{marketID}/safe/balance", s.getSafeBalance)
	s.rt.Get("/v1/markets/{marketID}/safe/report", s.getSafeReport)

	// Reports
	s.rt.Get("/v1/markets/{marketID}/reports/profit-loss", s.getProfitLoss)
	s.rt.Get("/v1/markets/{marketID}/reports/stock-value", s.getStockValue)

	// Operational (unversioned)
	s.rt.Get("/healthz", s.healthz)
	s.rt.Get("/readyz", s.readyz)
	s.rt.Handle("/metrics", metricsHandler())
}
