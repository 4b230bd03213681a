package registry

import (
	"context"
	"errors"
	"testing"

	"github.com/govalues/decimal"

	"github.com/tinoosan/marketbooks/internal/books"
	"github.com/tinoosan/marketbooks/internal/errs"
	"github.com/tinoosan/marketbooks/internal/storage/memory"
)

func newService() Service {
	store := memory.New()
	return New(store, store)
}

func TestCreateMarketDefaultsAndValidation(t *testing.T) {
	svc := newService()
	ctx := context.Background()

	m, err := svc.CreateMarket(ctx, MarketInput{Name: "Tema", BaseCurrency: "USD"})
	if err != nil {
		t.Fatalf("create market: %v", err)
	}
	if m.Policy != books.PolicyAverage {
		t.Fatalf("default policy = %q", m.Policy)
	}
	if m.CreatedAt.IsZero() {
		t.Fatal("created at not set")
	}

	if _, err := svc.CreateMarket(ctx, MarketInput{Name: "", BaseCurrency: "USD"}); !errors.Is(err, errs.ErrInvalid) {
		t.Fatalf("empty name: %v", err)
	}
	if _, err := svc.CreateMarket(ctx, MarketInput{Name: "Bad", BaseCurrency: "NOPE"}); !errors.Is(err, errs.ErrInvalid) {
		t.Fatalf("bad currency: %v", err)
	}
	if _, err := svc.CreateMarket(ctx, MarketInput{Name: "Bad", BaseCurrency: "USD", Policy: "lifo"}); !errors.Is(err, errs.ErrInvalid) {
		t.Fatalf("bad policy: %v", err)
	}

	renamed, err := svc.RenameMarket(ctx, m.ID, "Tema Main")
	if err != nil {
		t.Fatalf("rename: %v", err)
	}
	if renamed.Name != "Tema Main" {
		t.Fatalf("renamed = %q", renamed.Name)
	}
}

func TestCreateCompanyRules(t *testing.T) {
	svc := newService()
	ctx := context.Background()
	m, err := svc.CreateMarket(ctx, MarketInput{Name: "Tema", BaseCurrency: "USD"})
	if err != nil {
		t.Fatal(err)
	}

	c, err := svc.CreateCompany(ctx, m.ID, CompanyInput{Name: "Gulf Traders", Category: books.CategorySupplier, Currency: "AED"})
	if err != nil {
		t.Fatalf("create company: %v", err)
	}
	if !c.Active {
		t.Fatal("new company should be active")
	}

	if _, err := svc.CreateCompany(ctx, m.ID, CompanyInput{Name: "X", Category: "partner", Currency: "USD"}); !errors.Is(err, errs.ErrInvalid) {
		t.Fatalf("bad category: %v", err)
	}
	if _, err := svc.Companies(ctx, m.ID, "partner"); !errors.Is(err, errs.ErrInvalid) {
		t.Fatalf("bad filter: %v", err)
	}

	inactive := false
	updated, err := svc.UpdateCompany(ctx, m.ID, c.ID, CompanyPatch{Active: &inactive})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Active {
		t.Fatal("company should be inactive")
	}
	// category and currency are not patchable; they survive untouched
	if updated.Category != books.CategorySupplier || updated.Currency != "AED" {
		t.Fatalf("company = %+v", updated)
	}
}

func TestCreateItemRules(t *testing.T) {
	svc := newService()
	ctx := context.Background()
	m, err := svc.CreateMarket(ctx, MarketInput{Name: "Tema", BaseCurrency: "USD"})
	if err != nil {
		t.Fatal(err)
	}
	supplier, err := svc.CreateCompany(ctx, m.ID, CompanyInput{Name: "Gulf Traders", Category: books.CategorySupplier, Currency: "AED"})
	if err != nil {
		t.Fatal(err)
	}
	customer, err := svc.CreateCompany(ctx, m.ID, CompanyInput{Name: "Accra Motors", Category: books.CategoryCustomer, Currency: "USD"})
	if err != nil {
		t.Fatal(err)
	}

	it, err := svc.CreateItem(ctx, m.ID, ItemInput{
		SupplierID: supplier.ID, Code: "tyre 17", Name: "Tyre 17", Weight: decimal.MustParse("2"),
	})
	if err != nil {
		t.Fatalf("create item: %v", err)
	}
	if it.Code != "TYRE-17" {
		t.Fatalf("code = %q", it.Code)
	}

	// the normalized code collides with the existing item
	if _, err := svc.CreateItem(ctx, m.ID, ItemInput{Code: "Tyre-17", Name: "Dup"}); !errors.Is(err, errs.ErrConflict) {
		t.Fatalf("duplicate code: %v", err)
	}
	if _, err := svc.CreateItem(ctx, m.ID, ItemInput{SupplierID: customer.ID, Code: "RIM-15", Name: "Rim"}); !errors.Is(err, errs.ErrUnprocessable) {
		t.Fatalf("customer as supplier: %v", err)
	}
	neg, _ := decimal.New(-1, 0)
	if _, err := svc.CreateItem(ctx, m.ID, ItemInput{Code: "RIM-15", Name: "Rim", Weight: neg}); !errors.Is(err, errs.ErrInvalid) {
		t.Fatalf("negative weight: %v", err)
	}

	w := decimal.MustParse("3")
	updated, err := svc.UpdateItem(ctx, m.ID, it.ID, ItemPatch{Weight: &w})
	if err != nil {
		t.Fatalf("update item: %v", err)
	}
	if updated.Weight.Cmp(w) != 0 {
		t.Fatalf("weight = %s", updated.Weight)
	}
}
