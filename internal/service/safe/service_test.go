package safe

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/govalues/decimal"

	"github.com/tinoosan/marketbooks/internal/books"
	"github.com/tinoosan/marketbooks/internal/errs"
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

type fakeStore struct {
	market  books.Market
	entries map[uuid.UUID]books.SafeEntry
	nextSeq int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		market:  books.Market{ID: uuid.New(), Name: "main", BaseCurrency: "USD", Policy: books.PolicyAverage},
		entries: make(map[uuid.UUID]books.SafeEntry),
	}
}

func (f *fakeStore) Entries(_ context.Context, _ uuid.UUID) ([]books.SafeEntry, error) {
	out := make([]books.SafeEntry, 0, len(f.entries))
	for _, e := range f.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].Seq < out[j].Seq
	})
	return out, nil
}

func (f *fakeStore) Entry(_ context.Context, _ uuid.UUID, id uuid.UUID) (books.SafeEntry, error) {
	e, ok := f.entries[id]
	if !ok {
		return books.SafeEntry{}, errs.ErrNotFound
	}
	return e, nil
}

func (f *fakeStore) Market(_ context.Context, _ uuid.UUID) (books.Market, error) {
	return f.market, nil
}

func (f *fakeStore) SaveEntry(_ context.Context, entry books.SafeEntry) (books.SafeEntry, error) {
	f.nextSeq++
	entry.Seq = f.nextSeq
	f.entries[entry.ID] = entry
	return entry, nil
}

func (f *fakeStore) UpdateEntry(_ context.Context, entry books.SafeEntry) error {
	if _, ok := f.entries[entry.ID]; !ok {
		return errs.ErrNotFound
	}
	f.entries[entry.ID] = entry
	return nil
}

func (f *fakeStore) DeleteEntry(_ context.Context, _ uuid.UUID, id uuid.UUID) error {
	delete(f.entries, id)
	return nil
}

func (f *fakeStore) RewriteBalances(_ context.Context, _ uuid.UUID, entries []books.SafeEntry) error {
	for _, e := range entries {
		f.entries[e.ID] = e
	}
	return nil
}

func day(t *testing.T, d string) time.Time {
	t.Helper()
	ts, err := time.Parse("2006-01-02", d)
	if err != nil {
		t.Fatal(err)
	}
	return ts
}

func seed(t *testing.T, svc Service, store *fakeStore) (opening, inflow, outflow books.SafeEntry) {
	t.Helper()
	ctx := context.Background()
	var err error
	opening, err = svc.Append(ctx, store.market.ID, EntryInput{
		Type: books.EntryOpening, Amount: dec(t, "100"), Currency: "USD", Rate: dec(t, "1"),
		Date: day(t, "2025-01-01"), Description: "opening balance",
	})
	if err != nil {
		t.Fatalf("opening: %v", err)
	}
	inflow, err = svc.Append(ctx, store.market.ID, EntryInput{
		Type: books.EntryInflow, Amount: dec(t, "50"), Currency: "USD", Rate: dec(t, "1"),
		Date: day(t, "2025-01-02"), Description: "cash in",
	})
	if err != nil {
		t.Fatalf("inflow: %v", err)
	}
	outflow, err = svc.Append(ctx, store.market.ID, EntryInput{
		Type: books.EntryOutflow, Amount: dec(t, "30"), Currency: "USD", Rate: dec(t, "1"),
		Date: day(t, "2025-01-03"), Description: "cash out",
	})
	if err != nil {
		t.Fatalf("outflow: %v", err)
	}
	return opening, inflow, outflow
}

func balances(t *testing.T, store *fakeStore) []string {
	t.Helper()
	entries, _ := store.Entries(context.Background(), store.market.ID)
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.BalanceAfter.String()
	}
	return out
}

func TestAppendRunsReplay(t *testing.T) {
	store := newFakeStore()
	svc := New(store, store, books.NewMarketLocks())
	seed(t, svc, store)

	got := balances(t, store)
	want := []string{"100", "150", "120"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("balances = %v, want %v", got, want)
		}
	}
	b, err := svc.Balance(context.Background(), store.market.ID)
	if err != nil {
		t.Fatal(err)
	}
	wantDec(t, b, "120")
}

func TestUpdateRewritesDownstreamBalances(t *testing.T) {
	store := newFakeStore()
	svc := New(store, store, books.NewMarketLocks())
	_, inflow, _ := seed(t, svc, store)

	amount := dec(t, "80")
	updated, err := svc.Update(context.Background(), store.market.ID, inflow.ID, EntryPatch{Amount: &amount})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	wantDec(t, updated.BaseAmount, "80")

	got := balances(t, store)
	want := []string{"100", "180", "150"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("balances = %v, want %v", got, want)
		}
	}
}

func TestDeleteRewritesBalances(t *testing.T) {
	store := newFakeStore()
	svc := New(store, store, books.NewMarketLocks())
	_, inflow, _ := seed(t, svc, store)

	if err := svc.Delete(context.Background(), store.market.ID, inflow.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	got := balances(t, store)
	want := []string{"100", "70"}
	if len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("balances = %v, want %v", got, want)
	}
}

func TestBackdatedEntryReordersReplay(t *testing.T) {
	store := newFakeStore()
	svc := New(store, store, books.NewMarketLocks())
	seed(t, svc, store)

	// lands between the opening and the inflow
	_, err := svc.Append(context.Background(), store.market.ID, EntryInput{
		Type: books.EntryOutflow, Amount: dec(t, "10"), Currency: "USD", Rate: dec(t, "1"),
		Date: day(t, "2025-01-01"), Description: "backdated",
	})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	got := balances(t, store)
	want := []string{"100", "90", "140", "110"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("balances = %v, want %v", got, want)
		}
	}
}

func TestReplayIdempotent(t *testing.T) {
	store := newFakeStore()
	svc := New(store, store, books.NewMarketLocks())
	seed(t, svc, store)

	before := balances(t, store)
	if err := svc.Recalculate(context.Background(), store.market.ID); err != nil {
		t.Fatalf("recalculate: %v", err)
	}
	after := balances(t, store)
	for i := range before {
		if before[i] != after[i] {
			t.Fatalf("replay not idempotent: %v then %v", before, after)
		}
	}
}

func TestSecondOpeningRejected(t *testing.T) {
	store := newFakeStore()
	svc := New(store, store, books.NewMarketLocks())
	seed(t, svc, store)

	_, err := svc.Append(context.Background(), store.market.ID, EntryInput{
		Type: books.EntryOpening, Amount: dec(t, "10"), Currency: "USD", Rate: dec(t, "1"),
		Date: day(t, "2025-01-05"),
	})
	if !errors.Is(err, errs.ErrConflict) {
		t.Fatalf("want ErrConflict, got %v", err)
	}
}

func TestZeroRateRejected(t *testing.T) {
	store := newFakeStore()
	svc := New(store, store, books.NewMarketLocks())

	_, err := svc.Append(context.Background(), store.market.ID, EntryInput{
		Type: books.EntryInflow, Amount: dec(t, "10"), Currency: "AED", Rate: dec(t, "0"),
		Date: day(t, "2025-01-05"),
	})
	if !errors.Is(err, errs.ErrExchangeRate) {
		t.Fatalf("want ErrExchangeRate, got %v", err)
	}
}

func TestLinkedEntryImmutable(t *testing.T) {
	store := newFakeStore()
	svc := New(store, store, books.NewMarketLocks())

	linked, err := svc.AppendLinked(context.Background(), store.market.ID, LinkedInput{
		Type: books.EntryInflow, Amount: dec(t, "200"), Currency: "USD", Rate: dec(t, "1"),
		BaseAmount: dec(t, "200"), Date: day(t, "2025-01-02"), PaymentID: uuid.New(),
	})
	if err != nil {
		t.Fatalf("append linked: %v", err)
	}

	amount := dec(t, "300")
	if _, err := svc.Update(context.Background(), store.market.ID, linked.ID, EntryPatch{Amount: &amount}); !errors.Is(err, errs.ErrImmutable) {
		t.Fatalf("update: want ErrImmutable, got %v", err)
	}
	if err := svc.Delete(context.Background(), store.market.ID, linked.ID); !errors.Is(err, errs.ErrImmutable) {
		t.Fatalf("delete: want ErrImmutable, got %v", err)
	}
	// the owning record can still remove it
	if err := svc.DeleteLinked(context.Background(), store.market.ID, linked.ID); err != nil {
		t.Fatalf("delete linked: %v", err)
	}
}

func TestLinkedBaseAmountStoredExact(t *testing.T) {
	store := newFakeStore()
	svc := New(store, store, books.NewMarketLocks())

	// base amount deliberately differs from amount*rate; the stored value wins
	linked, err := svc.AppendLinked(context.Background(), store.market.ID, LinkedInput{
		Type: books.EntryInflow, Amount: dec(t, "100"), Currency: "AED", Rate: dec(t, "0.27"),
		BaseAmount: dec(t, "27.25"), Date: day(t, "2025-01-02"), SaleID: uuid.New(),
	})
	if err != nil {
		t.Fatalf("append linked: %v", err)
	}
	wantDec(t, linked.BaseAmount, "27.25")
	b, err := svc.Balance(context.Background(), store.market.ID)
	if err != nil {
		t.Fatal(err)
	}
	wantDec(t, b, "27.25")
}

func TestMovementReport(t *testing.T) {
	store := newFakeStore()
	svc := New(store, store, books.NewMarketLocks())
	seed(t, svc, store)

	rep, err := svc.MovementReport(context.Background(), store.market.ID, day(t, "2025-01-02"), day(t, "2025-01-31"))
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	wantDec(t, rep.Opening, "100")
	wantDec(t, rep.Inflows, "50")
	wantDec(t, rep.Outflows, "30")
	wantDec(t, rep.Closing, "120")
	if len(rep.Entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(rep.Entries))
	}
	// closing continuity: equals the last in-range running balance
	wantDec(t, rep.Entries[len(rep.Entries)-1].BalanceAfter, "120")
}
