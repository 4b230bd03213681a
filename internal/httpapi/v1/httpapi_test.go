package v1

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/govalues/decimal"

	"github.com/tinoosan/marketbooks/internal/books"
	"github.com/tinoosan/marketbooks/internal/service/costing"
	"github.com/tinoosan/marketbooks/internal/service/inventory"
	"github.com/tinoosan/marketbooks/internal/service/registry"
	"github.com/tinoosan/marketbooks/internal/service/reports"
	"github.com/tinoosan/marketbooks/internal/service/safe"
	"github.com/tinoosan/marketbooks/internal/service/statement"
	"github.com/tinoosan/marketbooks/internal/service/trading"
	"github.com/tinoosan/marketbooks/internal/storage/memory"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

type errResp struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func setup(t *testing.T) (*memory.Store, http.Handler) {
	t.Helper()
	store := memory.New()
	locks := books.NewMarketLocks()
	avg := costing.New(store)
	ledger := safe.New(store, store, locks)
	stock := inventory.New(store, store, inventory.ModeLenient, locks)
	trade := trading.New(store, store, ledger, stock, avg, locks)
	reg := registry.New(store, store)
	stmt := statement.New(store)
	rpt := reports.New(store, avg)
	h := New(store, reg, trade, ledger, stock, stmt, rpt, testLogger()).Handler()
	return store, h
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), dst); err != nil {
		t.Fatalf("decode response: %v: %s", err, rec.Body.String())
	}
}

func wantDec(t *testing.T, got, want string) {
	t.Helper()
	g, err := decimal.Parse(got)
	if err != nil {
		t.Fatalf("parse %q: %v", got, err)
	}
	if g.Cmp(decimal.MustParse(want)) != 0 {
		t.Fatalf("got %s, want %s", got, want)
	}
}

func createMarket(t *testing.T, h http.Handler, name, currency, policy string) marketResponse {
	t.Helper()
	rec := doJSON(t, h, http.MethodPost, "/v1/markets", map[string]any{
		"name": name, "base_currency": currency, "policy": policy,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create market: %d: %s", rec.Code, rec.Body.String())
	}
	var m marketResponse
	decodeBody(t, rec, &m)
	return m
}

func createCompany(t *testing.T, h http.Handler, marketID, name, category, currency string) companyResponse {
	t.Helper()
	rec := doJSON(t, h, http.MethodPost, "/v1/markets/"+marketID+"/companies", map[string]any{
		"name": name, "category": category, "currency": currency,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create company: %d: %s", rec.Code, rec.Body.String())
	}
	var c companyResponse
	decodeBody(t, rec, &c)
	return c
}

func createItem(t *testing.T, h http.Handler, marketID, code, name, weight string) itemResponse {
	t.Helper()
	rec := doJSON(t, h, http.MethodPost, "/v1/markets/"+marketID+"/items", map[string]any{
		"code": code, "name": name, "weight": weight,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create item: %d: %s", rec.Code, rec.Body.String())
	}
	var it itemResponse
	decodeBody(t, rec, &it)
	return it
}

func TestMarketLifecycle(t *testing.T) {
	_, h := setup(t)

	m := createMarket(t, h, "Tema", "USD", "fifo")
	if m.Policy != "fifo" || m.BaseCurrency != "USD" {
		t.Fatalf("market = %+v", m)
	}

	rec := doJSON(t, h, http.MethodPost, "/v1/markets", map[string]any{"name": "Bad", "base_currency": "NOPE"})
	if rec.Code != http.StatusBadRequest && rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("bad currency: %d: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, h, http.MethodGet, "/v1/markets", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list markets: %d", rec.Code)
	}
	var list []marketResponse
	decodeBody(t, rec, &list)
	if len(list) != 1 || list[0].ID != m.ID {
		t.Fatalf("markets = %+v", list)
	}

	rec = doJSON(t, h, http.MethodPatch, "/v1/markets/"+m.ID.String(), map[string]any{"name": "Tema Main"})
	if rec.Code != http.StatusOK {
		t.Fatalf("rename: %d: %s", rec.Code, rec.Body.String())
	}
	var renamed marketResponse
	decodeBody(t, rec, &renamed)
	if renamed.Name != "Tema Main" {
		t.Fatalf("renamed = %+v", renamed)
	}
}

func TestPurchaseAndSaleFlow(t *testing.T) {
	_, h := setup(t)

	market := createMarket(t, h, "Tema", "USD", "fifo")
	mid := market.ID.String()
	supplier := createCompany(t, h, mid, "Gulf Traders", "supplier", "USD")
	customer := createCompany(t, h, mid, "Accra Motors", "customer", "USD")
	item := createItem(t, h, mid, "TYRE-17", "Tyre 17", "2")

	// Opening cash
	rec := doJSON(t, h, http.MethodPost, "/v1/markets/"+mid+"/safe/entries", map[string]any{
		"type": "opening", "amount": "1000", "currency": "USD", "rate": "1",
		"date": "2025-01-01T00:00:00Z", "description": "opening float",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("opening: %d: %s", rec.Code, rec.Body.String())
	}

	// Purchase: 10 units at 5 with a 100 cash expense spread over the container.
	purchaseBody := map[string]any{
		"number": "cn 100", "supplier_id": supplier.ID.String(), "currency": "USD", "rate": "1",
		"date":         "2025-01-05T00:00:00Z",
		"cash_expense": map[string]any{"amount": "100", "currency": "USD", "rate": "1"},
		"lines": []map[string]any{
			{"item_id": item.ID.String(), "quantity": "10", "unit_price": "5"},
		},
	}
	rec = doJSON(t, h, http.MethodPost, "/v1/markets/"+mid+"/purchases", purchaseBody)
	if rec.Code != http.StatusCreated {
		t.Fatalf("purchase: %d: %s", rec.Code, rec.Body.String())
	}
	var pr purchaseResponse
	decodeBody(t, rec, &pr)
	if pr.Container.Number != "CN-100" {
		t.Fatalf("number = %q", pr.Container.Number)
	}
	if len(pr.Batches) != 1 {
		t.Fatalf("batches = %+v", pr.Batches)
	}
	wantDec(t, pr.Batches[0].COGPerUnit, "10")
	wantDec(t, pr.Batches[0].CostPerUnit, "15")

	// Duplicate container number is rejected.
	rec = doJSON(t, h, http.MethodPost, "/v1/markets/"+mid+"/purchases", purchaseBody)
	if rec.Code != http.StatusConflict {
		t.Fatalf("duplicate purchase: %d: %s", rec.Code, rec.Body.String())
	}

	// Cash sale: 4 units at 25.
	rec = doJSON(t, h, http.MethodPost, "/v1/markets/"+mid+"/sales", map[string]any{
		"customer_id": customer.ID.String(), "date": "2025-01-10T00:00:00Z", "settlement": "cash",
		"lines": []map[string]any{
			{"item_id": item.ID.String(), "quantity": "4", "unit_price": "25"},
		},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("sale: %d: %s", rec.Code, rec.Body.String())
	}
	var sr saleResponse
	decodeBody(t, rec, &sr)
	if sr.Outcome != "allocated" {
		t.Fatalf("outcome = %q", sr.Outcome)
	}
	if sr.InvoiceNumber != "INV-20250110-0001" {
		t.Fatalf("invoice = %q", sr.InvoiceNumber)
	}
	wantDec(t, sr.COGSTotal, "60")
	wantDec(t, sr.Paid, "100")
	if sr.Status != "paid" {
		t.Fatalf("status = %q", sr.Status)
	}

	// Safe: 1000 - 100 cash expense + 100 cash sale.
	rec = doJSON(t, h, http.MethodGet, "/v1/markets/"+mid+"/safe/balance", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("safe balance: %d", rec.Code)
	}
	var bal struct {
		Balance string `json:"balance"`
	}
	decodeBody(t, rec, &bal)
	wantDec(t, bal.Balance, "1000")

	// Supplier is owed the goods value.
	rec = doJSON(t, h, http.MethodGet, "/v1/markets/"+mid+"/companies/"+supplier.ID.String()+"/balance", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("supplier balance: %d: %s", rec.Code, rec.Body.String())
	}
	var sb balanceResponse
	decodeBody(t, rec, &sb)
	wantDec(t, sb.Balance, "50")

	// Profit and loss over January.
	rec = doJSON(t, h, http.MethodGet, "/v1/markets/"+mid+"/reports/profit-loss?from=2025-01-01T00:00:00Z&to=2025-01-31T00:00:00Z", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("profit-loss: %d: %s", rec.Code, rec.Body.String())
	}
	var pl profitLossResponse
	decodeBody(t, rec, &pl)
	wantDec(t, pl.Revenue, "100")
	wantDec(t, pl.COGS, "60")
	wantDec(t, pl.NetProfit, "40")

	// Remaining stock: 6 units at landed cost 15.
	rec = doJSON(t, h, http.MethodGet, "/v1/markets/"+mid+"/reports/stock-value", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("stock-value: %d: %s", rec.Code, rec.Body.String())
	}
	var sv stockReportResponse
	decodeBody(t, rec, &sv)
	wantDec(t, sv.TotalValue, "90")
}

func TestSafeEntryRules(t *testing.T) {
	_, h := setup(t)
	market := createMarket(t, h, "Lagos", "USD", "average")
	mid := market.ID.String()

	rec := doJSON(t, h, http.MethodPost, "/v1/markets/"+mid+"/safe/entries", map[string]any{
		"type": "opening", "amount": "500", "currency": "USD", "rate": "1", "date": "2025-01-01T00:00:00Z",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("opening: %d: %s", rec.Code, rec.Body.String())
	}

	// A second opening entry conflicts.
	rec = doJSON(t, h, http.MethodPost, "/v1/markets/"+mid+"/safe/entries", map[string]any{
		"type": "opening", "amount": "100", "currency": "USD", "rate": "1", "date": "2025-01-02T00:00:00Z",
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("second opening: %d: %s", rec.Code, rec.Body.String())
	}

	// Missing exchange rate is a hard error, not a silent default.
	rec = doJSON(t, h, http.MethodPost, "/v1/markets/"+mid+"/safe/entries", map[string]any{
		"type": "inflow", "amount": "100", "currency": "AED", "date": "2025-01-03T00:00:00Z",
	})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("zero rate: %d: %s", rec.Code, rec.Body.String())
	}
	var er errResp
	decodeBody(t, rec, &er)
	if er.Code != "exchange_rate" {
		t.Fatalf("code = %q", er.Code)
	}

	// Manual entries can be edited; balances are replayed.
	rec = doJSON(t, h, http.MethodPost, "/v1/markets/"+mid+"/safe/entries", map[string]any{
		"type": "inflow", "amount": "50", "currency": "USD", "rate": "1", "date": "2025-01-04T00:00:00Z",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("inflow: %d: %s", rec.Code, rec.Body.String())
	}
	var inflow safeEntryResponse
	decodeBody(t, rec, &inflow)
	wantDec(t, inflow.BalanceAfter, "550")

	rec = doJSON(t, h, http.MethodPatch, "/v1/markets/"+mid+"/safe/entries/"+inflow.ID.String(), map[string]any{
		"amount": "80",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("patch entry: %d: %s", rec.Code, rec.Body.String())
	}
	var patched safeEntryResponse
	decodeBody(t, rec, &patched)
	wantDec(t, patched.BalanceAfter, "580")

	rec = doJSON(t, h, http.MethodDelete, "/v1/markets/"+mid+"/safe/entries/"+inflow.ID.String(), nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete entry: %d: %s", rec.Code, rec.Body.String())
	}
}

func TestLinkedEntriesAreImmutable(t *testing.T) {
	_, h := setup(t)
	market := createMarket(t, h, "Tema", "USD", "average")
	mid := market.ID.String()
	supplier := createCompany(t, h, mid, "Gulf Traders", "supplier", "USD")

	rec := doJSON(t, h, http.MethodPost, "/v1/markets/"+mid+"/safe/entries", map[string]any{
		"type": "opening", "amount": "1000", "currency": "USD", "rate": "1", "date": "2025-01-01T00:00:00Z",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("opening: %d", rec.Code)
	}

	// An outgoing payment creates a linked outflow entry.
	rec = doJSON(t, h, http.MethodPost, "/v1/markets/"+mid+"/payments", map[string]any{
		"company_id": supplier.ID.String(), "direction": "out",
		"amount": "200", "currency": "USD", "rate": "1", "date": "2025-01-05T00:00:00Z",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("payment: %d: %s", rec.Code, rec.Body.String())
	}
	var pay paymentResponse
	decodeBody(t, rec, &pay)

	rec = doJSON(t, h, http.MethodGet, "/v1/markets/"+mid+"/safe/entries", nil)
	var entries []safeEntryResponse
	decodeBody(t, rec, &entries)
	if len(entries) != 2 {
		t.Fatalf("entries = %+v", entries)
	}
	linked := entries[1]
	if linked.PaymentID != pay.ID {
		t.Fatalf("linked payment id = %s, want %s", linked.PaymentID, pay.ID)
	}
	wantDec(t, linked.BalanceAfter, "800")

	rec = doJSON(t, h, http.MethodPatch, "/v1/markets/"+mid+"/safe/entries/"+linked.ID.String(), map[string]any{
		"amount": "10",
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("patch linked: %d: %s", rec.Code, rec.Body.String())
	}
	rec = doJSON(t, h, http.MethodDelete, "/v1/markets/"+mid+"/safe/entries/"+linked.ID.String(), nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("delete linked: %d: %s", rec.Code, rec.Body.String())
	}

	// Deleting the payment itself removes the entry and restores the balance.
	rec = doJSON(t, h, http.MethodDelete, "/v1/markets/"+mid+"/payments/"+pay.ID.String(), nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete payment: %d: %s", rec.Code, rec.Body.String())
	}
	rec = doJSON(t, h, http.MethodGet, "/v1/markets/"+mid+"/safe/balance", nil)
	var bal struct {
		Balance string `json:"balance"`
	}
	decodeBody(t, rec, &bal)
	wantDec(t, bal.Balance, "1000")
}

func TestCostingPolicySwitch(t *testing.T) {
	_, h := setup(t)
	market := createMarket(t, h, "Tema", "USD", "average")
	mid := market.ID.String()
	supplier := createCompany(t, h, mid, "Gulf Traders", "supplier", "USD")
	customer := createCompany(t, h, mid, "Accra Motors", "customer", "USD")
	item := createItem(t, h, mid, "RIM-15", "Rim 15", "1")

	rec := doJSON(t, h, http.MethodPost, "/v1/markets/"+mid+"/purchases", map[string]any{
		"number": "CN-1", "supplier_id": supplier.ID.String(), "currency": "USD", "rate": "1",
		"date": "2025-02-01T00:00:00Z",
		"lines": []map[string]any{
			{"item_id": item.ID.String(), "quantity": "10", "unit_price": "4"},
		},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("purchase: %d: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, h, http.MethodPost, "/v1/markets/"+mid+"/sales", map[string]any{
		"customer_id": customer.ID.String(), "date": "2025-02-02T00:00:00Z", "settlement": "credit",
		"lines": []map[string]any{
			{"item_id": item.ID.String(), "quantity": "6", "unit_price": "9"},
		},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("sale: %d: %s", rec.Code, rec.Body.String())
	}

	// Switching to the already-active policy conflicts.
	rec = doJSON(t, h, http.MethodPost, "/v1/markets/"+mid+"/costing-policy", map[string]any{"policy": "average"})
	if rec.Code != http.StatusConflict {
		t.Fatalf("same policy: %d: %s", rec.Code, rec.Body.String())
	}

	// Switching to FIFO backfills allocations for the existing sale.
	rec = doJSON(t, h, http.MethodPost, "/v1/markets/"+mid+"/costing-policy", map[string]any{"policy": "fifo"})
	if rec.Code != http.StatusOK {
		t.Fatalf("switch: %d: %s", rec.Code, rec.Body.String())
	}
	var bf backfillResponse
	decodeBody(t, rec, &bf)
	if bf.Allocations != 1 || bf.Batches != 1 {
		t.Fatalf("backfill = %+v", bf)
	}

	rec = doJSON(t, h, http.MethodGet, "/v1/markets/"+mid, nil)
	var m marketResponse
	decodeBody(t, rec, &m)
	if m.Policy != "fifo" {
		t.Fatalf("policy = %q", m.Policy)
	}
}

func TestValidationFailures(t *testing.T) {
	_, h := setup(t)
	market := createMarket(t, h, "Tema", "USD", "fifo")
	mid := market.ID.String()

	// Missing content type.
	req := httptest.NewRequest(http.MethodPost, "/v1/markets/"+mid+"/safe/entries", bytes.NewReader([]byte(`{}`)))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("no content type: %d", rec.Code)
	}

	// Unknown fields are rejected.
	rec = doJSON(t, h, http.MethodPost, "/v1/markets/"+mid+"/safe/entries", map[string]any{
		"type": "inflow", "amount": "1", "currency": "USD", "rate": "1",
		"date": "2025-01-01T00:00:00Z", "bogus": true,
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown field: %d: %s", rec.Code, rec.Body.String())
	}

	// Sales need a valid settlement.
	rec = doJSON(t, h, http.MethodPost, "/v1/markets/"+mid+"/sales", map[string]any{
		"customer_id": "7c9e1711-9f3a-4a5b-8c2d-111111111111", "date": "2025-01-01T00:00:00Z",
		"settlement": "barter",
		"lines":      []map[string]any{{"item_id": "7c9e1711-9f3a-4a5b-8c2d-222222222222", "quantity": "1", "unit_price": "1"}},
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad settlement: %d: %s", rec.Code, rec.Body.String())
	}

	// Unknown market falls through to 404.
	rec = doJSON(t, h, http.MethodGet, "/v1/markets/7c9e1711-9f3a-4a5b-8c2d-333333333333", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown market: %d", rec.Code)
	}
}
