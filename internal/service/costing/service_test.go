package costing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/govalues/decimal"

	"github.com/tinoosan/marketbooks/internal/books"
	"github.com/tinoosan/marketbooks/internal/currency"
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

func TestLandedCostPerUnit(t *testing.T) {
	itemA, itemB := uuid.New(), uuid.New()
	lines := []books.PurchaseLine{
		{ItemID: itemA, Quantity: dec(t, "10")},
		{ItemID: itemB, Quantity: dec(t, "20")},
	}
	weights := map[uuid.UUID]decimal.Decimal{
		itemA: dec(t, "2"),
		itemB: dec(t, "1"),
	}
	totals, err := Totals(lines, weights)
	if err != nil {
		t.Fatalf("totals: %v", err)
	}
	wantDec(t, totals.Quantity, "30")
	wantDec(t, totals.Weight, "40")

	sum := dec(t, "300")
	// 300/2/30 + 300/2/40*2 = 5 + 7.5
	cogA, err := LandedCostPerUnit(sum, totals, weights[itemA])
	if err != nil {
		t.Fatalf("cog A: %v", err)
	}
	wantDec(t, cogA, "12.5")
	// 300/2/30 + 300/2/40*1 = 5 + 3.75
	cogB, err := LandedCostPerUnit(sum, totals, weights[itemB])
	if err != nil {
		t.Fatalf("cog B: %v", err)
	}
	wantDec(t, cogB, "8.75")

	// pure: identical inputs, identical output
	again, err := LandedCostPerUnit(sum, totals, weights[itemA])
	if err != nil {
		t.Fatalf("cog A again: %v", err)
	}
	if again.Cmp(cogA) != 0 {
		t.Fatalf("not stable: %s then %s", cogA, again)
	}
}

func TestLandedCostPerUnitQuantityOnly(t *testing.T) {
	totals := ContainerTotals{Quantity: dec(t, "30"), Weight: dec(t, "0")}
	cog, err := LandedCostPerUnit(dec(t, "300"), totals, dec(t, "2"))
	if err != nil {
		t.Fatalf("cog: %v", err)
	}
	wantDec(t, cog, "10")
}

func TestLandedCostPerUnitZeroTotals(t *testing.T) {
	totals := ContainerTotals{Quantity: dec(t, "0"), Weight: dec(t, "0")}
	cog, err := LandedCostPerUnit(dec(t, "300"), totals, dec(t, "2"))
	if err != nil {
		t.Fatalf("cog: %v", err)
	}
	if !cog.IsZero() {
		t.Fatalf("want zero cog, got %s", cog)
	}
}

func TestLandedCostPerUnitNonNegative(t *testing.T) {
	cases := []struct {
		sum, qty, weight, item string
	}{
		{"0", "10", "5", "1"},
		{"300", "1", "1", "0"},
		{"0.01", "1000", "1000", "0.001"},
	}
	for _, c := range cases {
		totals := ContainerTotals{Quantity: dec(t, c.qty), Weight: dec(t, c.weight)}
		cog, err := LandedCostPerUnit(dec(t, c.sum), totals, dec(t, c.item))
		if err != nil {
			t.Fatalf("cog(%v): %v", c, err)
		}
		if cog.IsNeg() {
			t.Fatalf("negative cog %s for %v", cog, c)
		}
	}
}

func TestExpenseSumCrossCurrency(t *testing.T) {
	conv := currency.New("USD")
	c := books.PurchaseContainer{
		Currency: "AED",
		Rate:     dec(t, "0.5"), // 1 AED = 0.5 USD
		// same currency as container, passes through untouched
		SupplierExpense: books.Expense{Amount: dec(t, "100"), Currency: "AED", Rate: dec(t, "0.5")},
		// 200 GBP * 1.25 = 250 USD, / 0.5 = 500 AED
		ServiceExpense: books.Expense{Amount: dec(t, "200"), Currency: "GBP", Rate: dec(t, "1.25")},
	}
	sum, err := ExpenseSum(conv, c)
	if err != nil {
		t.Fatalf("sum: %v", err)
	}
	wantDec(t, sum, "600")
}

func TestExpenseSumSkipsUnsetExpenses(t *testing.T) {
	conv := currency.New("USD")
	c := books.PurchaseContainer{
		Currency:        "USD",
		Rate:            dec(t, "1"),
		SupplierExpense: books.Expense{Amount: dec(t, "0"), Currency: "GBP"},
		CashExpense:     books.Expense{Amount: dec(t, "40"), Currency: "USD", Rate: dec(t, "1")},
	}
	sum, err := ExpenseSum(conv, c)
	if err != nil {
		t.Fatalf("sum: %v", err)
	}
	wantDec(t, sum, "40")
}

type fakeRepo struct {
	containers []books.PurchaseContainer
	weights    map[uuid.UUID]decimal.Decimal
	err        error
}

func (f *fakeRepo) ContainersWithItem(_ context.Context, _ uuid.UUID, itemID uuid.UUID, before *time.Time) ([]books.PurchaseContainer, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []books.PurchaseContainer
	for _, c := range f.containers {
		if before != nil && !c.Date.Before(*before) {
			continue
		}
		for _, ln := range c.Lines {
			if ln.ItemID == itemID {
				out = append(out, c)
				break
			}
		}
	}
	return out, nil
}

func (f *fakeRepo) ItemWeights(_ context.Context, _ uuid.UUID, ids []uuid.UUID) (map[uuid.UUID]decimal.Decimal, error) {
	out := make(map[uuid.UUID]decimal.Decimal, len(ids))
	for _, id := range ids {
		if w, ok := f.weights[id]; ok {
			out[id] = w
		}
	}
	return out, nil
}

func TestAverageUnitCost(t *testing.T) {
	market := books.Market{ID: uuid.New(), BaseCurrency: "USD"}
	item := uuid.New()
	repo := &fakeRepo{
		weights: map[uuid.UUID]decimal.Decimal{item: dec(t, "0")},
		containers: []books.PurchaseContainer{
			{
				Currency: "USD",
				Rate:     dec(t, "1"),
				Date:     time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC),
				Lines: []books.PurchaseLine{
					{ItemID: item, Quantity: dec(t, "10"), UnitPrice: dec(t, "5")},
				},
			},
			{
				Currency: "AED",
				Rate:     dec(t, "2"), // unit costs double in base terms
				Date:     time.Date(2025, 2, 10, 0, 0, 0, 0, time.UTC),
				Lines: []books.PurchaseLine{
					{ItemID: item, Quantity: dec(t, "10"), UnitPrice: dec(t, "5")},
				},
			},
		},
	}
	svc := New(repo)

	// (10*5 + 10*10) / 20 = 7.5
	avg, err := svc.AverageUnitCost(context.Background(), market, item, nil)
	if err != nil {
		t.Fatalf("average: %v", err)
	}
	wantDec(t, avg, "7.5")

	// cutoff before the second container sees only the first
	asOf := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	avg, err = svc.AverageUnitCost(context.Background(), market, item, &asOf)
	if err != nil {
		t.Fatalf("average as of: %v", err)
	}
	wantDec(t, avg, "5")
}

func TestAverageUnitCostSpreadsExpensesOverWholeContainer(t *testing.T) {
	market := books.Market{ID: uuid.New(), BaseCurrency: "USD"}
	itemA, itemB := uuid.New(), uuid.New()
	repo := &fakeRepo{
		weights: map[uuid.UUID]decimal.Decimal{
			itemA: dec(t, "2"),
			itemB: dec(t, "1"),
		},
		containers: []books.PurchaseContainer{
			{
				Currency:        "USD",
				Rate:            dec(t, "1"),
				Date:            time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC),
				SupplierExpense: books.Expense{Amount: dec(t, "300"), Currency: "USD", Rate: dec(t, "1")},
				Lines: []books.PurchaseLine{
					{ItemID: itemA, Quantity: dec(t, "10"), UnitPrice: dec(t, "20")},
					{ItemID: itemB, Quantity: dec(t, "20"), UnitPrice: dec(t, "8")},
				},
			},
		},
	}
	svc := New(repo)

	// itemA unit cost = 20 + 12.5
	avg, err := svc.AverageUnitCost(context.Background(), market, itemA, nil)
	if err != nil {
		t.Fatalf("average A: %v", err)
	}
	wantDec(t, avg, "32.5")

	// itemB unit cost = 8 + 8.75
	avg, err = svc.AverageUnitCost(context.Background(), market, itemB, nil)
	if err != nil {
		t.Fatalf("average B: %v", err)
	}
	wantDec(t, avg, "16.75")
}

func TestAverageUnitCostNoHistory(t *testing.T) {
	svc := New(&fakeRepo{weights: map[uuid.UUID]decimal.Decimal{}})
	avg, err := svc.AverageUnitCost(context.Background(), books.Market{ID: uuid.New(), BaseCurrency: "USD"}, uuid.New(), nil)
	if err != nil {
		t.Fatalf("average: %v", err)
	}
	if !avg.IsZero() {
		t.Fatalf("want zero average for unpurchased item, got %s", avg)
	}
}

func TestAverageUnitCostRepoError(t *testing.T) {
	boom := errors.New("boom")
	svc := New(&fakeRepo{err: boom})
	_, err := svc.AverageUnitCost(context.Background(), books.Market{ID: uuid.New(), BaseCurrency: "USD"}, uuid.New(), nil)
	if !errors.Is(err, boom) {
		t.Fatalf("want repo error, got %v", err)
	}
}

func TestCOGS(t *testing.T) {
	market := books.Market{ID: uuid.New(), BaseCurrency: "USD"}
	item := uuid.New()
	repo := &fakeRepo{
		weights: map[uuid.UUID]decimal.Decimal{item: dec(t, "0")},
		containers: []books.PurchaseContainer{
			{
				Currency: "USD",
				Rate:     dec(t, "1"),
				Date:     time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC),
				Lines: []books.PurchaseLine{
					{ItemID: item, Quantity: dec(t, "10"), UnitPrice: dec(t, "4")},
				},
			},
		},
	}
	got, err := New(repo).COGS(context.Background(), market, item, dec(t, "3"), nil)
	if err != nil {
		t.Fatalf("cogs: %v", err)
	}
	wantDec(t, got, "12")
}
