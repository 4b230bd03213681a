package memory

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/govalues/decimal"

	"github.com/tinoosan/marketbooks/internal/books"
	"github.com/tinoosan/marketbooks/internal/service/costing"
	"github.com/tinoosan/marketbooks/internal/service/inventory"
	"github.com/tinoosan/marketbooks/internal/service/registry"
	"github.com/tinoosan/marketbooks/internal/service/reports"
	"github.com/tinoosan/marketbooks/internal/service/safe"
	"github.com/tinoosan/marketbooks/internal/service/statement"
	"github.com/tinoosan/marketbooks/internal/service/trading"
)

// the store must satisfy every service contract
var (
	_ registry.Repo    = (*Store)(nil)
	_ registry.Writer  = (*Store)(nil)
	_ costing.Repo     = (*Store)(nil)
	_ inventory.Repo   = (*Store)(nil)
	_ inventory.Writer = (*Store)(nil)
	_ safe.Repo        = (*Store)(nil)
	_ safe.Writer      = (*Store)(nil)
	_ statement.Repo   = (*Store)(nil)
	_ trading.Repo     = (*Store)(nil)
	_ trading.Writer   = (*Store)(nil)
	_ reports.Repo     = (*Store)(nil)
)

func dec(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.Parse(s)
	if err != nil {
		t.Fatalf("parse %q: %v", s, err)
	}
	return d
}

func wantDec(t *testing.T, got decimal.Decimal, want string) {
	t.Helper()
	if got.Cmp(decimal.MustParse(want)) != 0 {
		t.Fatalf("got %s, want %s", got, want)
	}
}

func day(t *testing.T, d string) time.Time {
	t.Helper()
	ts, err := time.Parse("2006-01-02", d)
	if err != nil {
		t.Fatal(err)
	}
	return ts
}

type env struct {
	store    *Store
	registry registry.Service
	safe     safe.Service
	stock    inventory.Service
	trading  trading.Service
	reports  reports.Service
	stmt     statement.Service
}

func newEnv() *env {
	store := New()
	locks := books.NewMarketLocks()
	avg := costing.New(store)
	safeSvc := safe.New(store, store, locks)
	stock := inventory.New(store, store, inventory.ModeLenient, locks)
	return &env{
		store:    store,
		registry: registry.New(store, store),
		safe:     safeSvc,
		stock:    stock,
		trading:  trading.New(store, store, safeSvc, stock, avg, locks),
		reports:  reports.New(store, avg),
		stmt:     statement.New(store),
	}
}

func TestCountSalesOnMatchesCalendarDay(t *testing.T) {
	store := New()
	ctx := context.Background()
	m := books.Market{ID: uuid.New(), Name: "main", BaseCurrency: "USD", Policy: books.PolicyFIFO}
	if _, err := store.SaveMarket(ctx, m); err != nil {
		t.Fatal(err)
	}
	base := day(t, "2025-03-01")
	for _, at := range []time.Time{base.Add(10 * time.Hour), base.Add(14 * time.Hour)} {
		if _, err := store.SaveSale(ctx, books.Sale{ID: uuid.New(), MarketID: m.ID, Date: at}); err != nil {
			t.Fatal(err)
		}
	}

	n, err := store.CountSalesOn(ctx, m.ID, base.Add(18*time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Fatalf("got %d sales on the day, want 2", n)
	}
	n, err = store.CountSalesOn(ctx, m.ID, day(t, "2025-03-02"))
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Fatalf("got %d sales on the next day, want 0", n)
	}
}

// TestTradingFlow runs a whole trading cycle against the store: purchase,
// FIFO sale with cash settlement, ledger state, statement and reports.
func TestTradingFlow(t *testing.T) {
	ctx := context.Background()
	e := newEnv()

	market, err := e.registry.CreateMarket(ctx, registry.MarketInput{
		Name: "dubai", BaseCurrency: "USD", Policy: books.PolicyFIFO,
	})
	if err != nil {
		t.Fatalf("create market: %v", err)
	}
	supplier, err := e.registry.CreateCompany(ctx, market.ID, registry.CompanyInput{
		Name: "Al Noor Trading", Category: books.CategorySupplier, Currency: "AED",
	})
	if err != nil {
		t.Fatalf("create supplier: %v", err)
	}
	customer, err := e.registry.CreateCompany(ctx, market.ID, registry.CompanyInput{
		Name: "City Retail", Category: books.CategoryCustomer, Currency: "USD",
	})
	if err != nil {
		t.Fatalf("create customer: %v", err)
	}
	item, err := e.registry.CreateItem(ctx, market.ID, registry.ItemInput{
		SupplierID: supplier.ID, Code: "tyre 17", Name: "Tyre 17in", Weight: dec(t, "0"),
	})
	if err != nil {
		t.Fatalf("create item: %v", err)
	}
	if item.Code != "TYRE-17" {
		t.Fatalf("item code = %q", item.Code)
	}

	if _, err := e.safe.Append(ctx, market.ID, safe.EntryInput{
		Type: books.EntryOpening, Amount: dec(t, "1000"), Currency: "USD", Rate: dec(t, "1"),
		Date: day(t, "2025-01-01"), Description: "opening balance",
	}); err != nil {
		t.Fatalf("opening: %v", err)
	}

	purchase, err := e.trading.CreatePurchase(ctx, market.ID, trading.PurchaseInput{
		Number: "CN-100", SupplierID: supplier.ID, Currency: "USD", Rate: dec(t, "1"),
		Date:        day(t, "2025-01-05"),
		CashExpense: trading.ExpenseInput{Amount: dec(t, "100"), Currency: "USD", Rate: dec(t, "1")},
		Lines:       []trading.PurchaseLineInput{{ItemID: item.ID, Quantity: dec(t, "10"), UnitPrice: dec(t, "5")}},
	})
	if err != nil {
		t.Fatalf("create purchase: %v", err)
	}
	// cash expense spread over 10 units: 5 + 10 landed
	wantDec(t, purchase.Batches[0].CostPerUnit, "15")

	// cash expense left the safe
	balance, err := e.safe.Balance(ctx, market.ID)
	if err != nil {
		t.Fatal(err)
	}
	wantDec(t, balance, "900")

	sale, err := e.trading.CreateSale(ctx, market.ID, trading.SaleInput{
		CustomerID: customer.ID,
		Date:       day(t, "2025-01-10"),
		Settlement: books.SettlementCash,
		Lines:      []trading.SaleLineInput{{ItemID: item.ID, Quantity: dec(t, "4"), UnitPrice: dec(t, "25")}},
	})
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}
	if sale.Outcome != inventory.OutcomeAllocated {
		t.Fatalf("outcome = %s", sale.Outcome)
	}
	wantDec(t, sale.COGSTotal, "60") // 4 * 15

	// batch depleted
	batches, err := e.store.BatchesByItem(ctx, market.ID, item.ID)
	if err != nil {
		t.Fatal(err)
	}
	wantDec(t, batches[0].AvailableQty, "6")

	// cash collected into the safe
	balance, err = e.safe.Balance(ctx, market.ID)
	if err != nil {
		t.Fatal(err)
	}
	wantDec(t, balance, "1000") // 900 + 100 collected

	// stored sale is paid in full
	stored, err := e.store.Sale(ctx, market.ID, sale.Sale.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.Status() != books.SaleStatusPaid {
		t.Fatalf("status = %s", stored.Status())
	}

	// customer statement nets out to zero
	b, err := e.stmt.Balance(ctx, market.ID, customer.ID, nil)
	if err != nil {
		t.Fatal(err)
	}
	wantDec(t, b, "0")

	// supplier is owed the goods
	b, err = e.stmt.Balance(ctx, market.ID, supplier.ID, nil)
	if err != nil {
		t.Fatal(err)
	}
	wantDec(t, b, "50")

	pl, err := e.reports.ProfitLoss(ctx, market.ID, day(t, "2025-01-01"), day(t, "2025-01-31"))
	if err != nil {
		t.Fatal(err)
	}
	wantDec(t, pl.Revenue, "100")
	wantDec(t, pl.COGS, "60")
	wantDec(t, pl.NetProfit, "40")

	stock, err := e.reports.StockValue(ctx, market.ID, nil)
	if err != nil {
		t.Fatal(err)
	}
	wantDec(t, stock.TotalValue, "90") // 6 * 15
}

// TestPolicySwitchBackfill switches a market to FIFO and verifies batches
// and allocations are rebuilt from history in one step.
func TestPolicySwitchBackfill(t *testing.T) {
	ctx := context.Background()
	e := newEnv()

	market, err := e.registry.CreateMarket(ctx, registry.MarketInput{
		Name: "muscat", BaseCurrency: "USD", Policy: books.PolicyAverage,
	})
	if err != nil {
		t.Fatal(err)
	}
	supplier, err := e.registry.CreateCompany(ctx, market.ID, registry.CompanyInput{
		Name: "Vendor", Category: books.CategorySupplier, Currency: "USD",
	})
	if err != nil {
		t.Fatal(err)
	}
	customer, err := e.registry.CreateCompany(ctx, market.ID, registry.CompanyInput{
		Name: "Buyer", Category: books.CategoryCustomer, Currency: "USD",
	})
	if err != nil {
		t.Fatal(err)
	}
	item, err := e.registry.CreateItem(ctx, market.ID, registry.ItemInput{
		Code: "RIM-16", Name: "Rim 16in", Weight: dec(t, "0"),
	})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := e.trading.CreatePurchase(ctx, market.ID, trading.PurchaseInput{
		Number: "CN-1", SupplierID: supplier.ID, Currency: "USD", Rate: dec(t, "1"),
		Date:  day(t, "2025-01-05"),
		Lines: []trading.PurchaseLineInput{{ItemID: item.ID, Quantity: dec(t, "10"), UnitPrice: dec(t, "4")}},
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := e.trading.CreateSale(ctx, market.ID, trading.SaleInput{
		CustomerID: customer.ID, Date: day(t, "2025-01-10"), Settlement: books.SettlementCredit,
		Lines: []trading.SaleLineInput{{ItemID: item.ID, Quantity: dec(t, "6"), UnitPrice: dec(t, "9")}},
	}); err != nil {
		t.Fatal(err)
	}

	// average policy left the batch untouched
	batches, err := e.store.BatchesByItem(ctx, market.ID, item.ID)
	if err != nil {
		t.Fatal(err)
	}
	wantDec(t, batches[0].AvailableQty, "10")

	res, err := e.stock.SetCostingPolicy(ctx, market.ID, books.PolicyFIFO)
	if err != nil {
		t.Fatalf("switch: %v", err)
	}
	if len(res.Allocations) != 1 {
		t.Fatalf("got %d allocations, want 1", len(res.Allocations))
	}
	wantDec(t, res.Allocations[0].Quantity, "6")

	switched, err := e.store.Market(ctx, market.ID)
	if err != nil {
		t.Fatal(err)
	}
	if switched.Policy != books.PolicyFIFO {
		t.Fatalf("policy = %s", switched.Policy)
	}
	batches, err = e.store.BatchesByItem(ctx, market.ID, item.ID)
	if err != nil {
		t.Fatal(err)
	}
	wantDec(t, batches[0].AvailableQty, "4")
}
