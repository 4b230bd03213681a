// Package memory is the in-process store. It backs tests and the dev server
// and implements every service repository and writer interface. All reads
// hand out copies; ordered reads sort by the same (date, seq) keys the
// postgres store indexes on.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/govalues/decimal"

	"github.com/tinoosan/marketbooks/internal/books"
	"github.com/tinoosan/marketbooks/internal/errs"
)

// Store holds all state behind one RWMutex. Seq counters are global, not
// per market; only their relative order within a market matters.
type Store struct {
	mu sync.RWMutex

	markets     map[uuid.UUID]books.Market
	companies   map[uuid.UUID]books.Company
	items       map[uuid.UUID]books.Item
	containers  map[uuid.UUID]books.PurchaseContainer
	sales       map[uuid.UUID]books.Sale
	payments    map[uuid.UUID]books.Payment
	expenses    map[uuid.UUID]books.GeneralExpense
	adjustments map[uuid.UUID]books.InventoryAdjustment
	batches     map[uuid.UUID]books.Batch
	allocations map[uuid.UUID]books.Allocation
	safeEntries map[uuid.UUID]books.SafeEntry

	saleSeq      int64
	entrySeq     int64
	batchSeq     int64
	containerSeq map[uuid.UUID]int64
}

func New() *Store {
	return &Store{
		markets:      make(map[uuid.UUID]books.Market),
		companies:    make(map[uuid.UUID]books.Company),
		items:        make(map[uuid.UUID]books.Item),
		containers:   make(map[uuid.UUID]books.PurchaseContainer),
		sales:        make(map[uuid.UUID]books.Sale),
		payments:     make(map[uuid.UUID]books.Payment),
		expenses:     make(map[uuid.UUID]books.GeneralExpense),
		adjustments:  make(map[uuid.UUID]books.InventoryAdjustment),
		batches:      make(map[uuid.UUID]books.Batch),
		allocations:  make(map[uuid.UUID]books.Allocation),
		safeEntries:  make(map[uuid.UUID]books.SafeEntry),
		containerSeq: make(map[uuid.UUID]int64),
	}
}

// Ready satisfies the readiness probe; the memory store is always ready.
func (s *Store) Ready(context.Context) error { return nil }

func (s *Store) Close() {}

func cloneContainer(c books.PurchaseContainer) books.PurchaseContainer {
	out := c
	out.Lines = append([]books.PurchaseLine(nil), c.Lines...)
	return out
}

func cloneSale(sale books.Sale) books.Sale {
	out := sale
	out.Lines = append([]books.SaleLine(nil), sale.Lines...)
	return out
}

// markets

func (s *Store) Market(_ context.Context, id uuid.UUID) (books.Market, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.markets[id]
	if !ok {
		return books.Market{}, fmt.Errorf("%w: market %s", errs.ErrNotFound, id)
	}
	return m, nil
}

func (s *Store) Markets(_ context.Context) ([]books.Market, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]books.Market, 0, len(s.markets))
	for _, m := range s.markets {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) SaveMarket(_ context.Context, m books.Market) (books.Market, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.markets[m.ID] = m
	return m, nil
}

func (s *Store) UpdateMarket(_ context.Context, m books.Market) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.markets[m.ID]; !ok {
		return fmt.Errorf("%w: market %s", errs.ErrNotFound, m.ID)
	}
	s.markets[m.ID] = m
	return nil
}

// companies

func (s *Store) Company(_ context.Context, marketID, id uuid.UUID) (books.Company, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.companies[id]
	if !ok || c.MarketID != marketID {
		return books.Company{}, fmt.Errorf("%w: company %s", errs.ErrNotFound, id)
	}
	return c, nil
}

func (s *Store) Companies(_ context.Context, marketID uuid.UUID, category books.Category) ([]books.Company, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []books.Company
	for _, c := range s.companies {
		if c.MarketID != marketID {
			continue
		}
		if category != "" && c.Category != category {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name) })
	return out, nil
}

func (s *Store) SaveCompany(_ context.Context, c books.Company) (books.Company, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.companies[c.ID] = c
	return c, nil
}

func (s *Store) UpdateCompany(_ context.Context, c books.Company) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.companies[c.ID]; !ok {
		return fmt.Errorf("%w: company %s", errs.ErrNotFound, c.ID)
	}
	s.companies[c.ID] = c
	return nil
}

// items

func (s *Store) Item(_ context.Context, marketID, id uuid.UUID) (books.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	it, ok := s.items[id]
	if !ok || it.MarketID != marketID {
		return books.Item{}, fmt.Errorf("%w: item %s", errs.ErrNotFound, id)
	}
	return it, nil
}

func (s *Store) Items(_ context.Context, marketID uuid.UUID) ([]books.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []books.Item
	for _, it := range s.items {
		if it.MarketID == marketID {
			out = append(out, it)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (s *Store) ItemByCode(_ context.Context, marketID uuid.UUID, code string) (books.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, it := range s.items {
		if it.MarketID == marketID && it.Code == code {
			return it, nil
		}
	}
	return books.Item{}, fmt.Errorf("%w: item %s", errs.ErrNotFound, code)
}

func (s *Store) ItemWeights(_ context.Context, marketID uuid.UUID, itemIDs []uuid.UUID) (map[uuid.UUID]decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[uuid.UUID]decimal.Decimal, len(itemIDs))
	for _, id := range itemIDs {
		if it, ok := s.items[id]; ok && it.MarketID == marketID {
			out[id] = it.Weight
		}
	}
	return out, nil
}

func (s *Store) SaveItem(_ context.Context, it books.Item) (books.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[it.ID] = it
	return it, nil
}

func (s *Store) UpdateItem(_ context.Context, it books.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[it.ID]; !ok {
		return fmt.Errorf("%w: item %s", errs.ErrNotFound, it.ID)
	}
	s.items[it.ID] = it
	return nil
}

// purchases

func (s *Store) sortedContainers(marketID uuid.UUID, keep func(books.PurchaseContainer) bool) []books.PurchaseContainer {
	var out []books.PurchaseContainer
	for _, c := range s.containers {
		if c.MarketID != marketID {
			continue
		}
		if keep != nil && !keep(c) {
			continue
		}
		out = append(out, cloneContainer(c))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return s.containerSeq[out[i].ID] < s.containerSeq[out[j].ID]
	})
	return out
}

func (s *Store) Containers(_ context.Context, marketID uuid.UUID) ([]books.PurchaseContainer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sortedContainers(marketID, nil), nil
}

func (s *Store) ContainersWithItem(_ context.Context, marketID, itemID uuid.UUID, before *time.Time) ([]books.PurchaseContainer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sortedContainers(marketID, func(c books.PurchaseContainer) bool {
		if before != nil && !c.Date.Before(*before) {
			return false
		}
		for _, ln := range c.Lines {
			if ln.ItemID == itemID {
				return true
			}
		}
		return false
	}), nil
}

func (s *Store) ContainersBySupplier(_ context.Context, marketID, supplierID uuid.UUID) ([]books.PurchaseContainer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sortedContainers(marketID, func(c books.PurchaseContainer) bool {
		return c.SupplierID == supplierID
	}), nil
}

func (s *Store) ContainersByServiceCompany(_ context.Context, marketID, companyID uuid.UUID) ([]books.PurchaseContainer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sortedContainers(marketID, func(c books.PurchaseContainer) bool {
		return c.ServiceCompanyID == companyID
	}), nil
}

func (s *Store) ContainerByNumber(_ context.Context, marketID uuid.UUID, number string) (books.PurchaseContainer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.containers {
		if c.MarketID == marketID && c.Number == number {
			return cloneContainer(c), nil
		}
	}
	return books.PurchaseContainer{}, fmt.Errorf("%w: container %s", errs.ErrNotFound, number)
}

func (s *Store) SavePurchase(_ context.Context, container books.PurchaseContainer, batches []books.Batch) (books.PurchaseContainer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.containerSeq[container.ID] = int64(len(s.containerSeq) + 1)
	s.containers[container.ID] = cloneContainer(container)
	for _, b := range batches {
		s.batchSeq++
		b.Seq = s.batchSeq
		s.batches[b.ID] = b
	}
	return container, nil
}

// sales

func (s *Store) sortedSales(marketID uuid.UUID, keep func(books.Sale) bool) []books.Sale {
	var out []books.Sale
	for _, sale := range s.sales {
		if sale.MarketID != marketID {
			continue
		}
		if keep != nil && !keep(sale) {
			continue
		}
		out = append(out, cloneSale(sale))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].Seq < out[j].Seq
	})
	return out
}

func (s *Store) Sales(_ context.Context, marketID uuid.UUID) ([]books.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sortedSales(marketID, nil), nil
}

func (s *Store) SalesBetween(_ context.Context, marketID uuid.UUID, from, to time.Time) ([]books.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sortedSales(marketID, func(sale books.Sale) bool {
		return !sale.Date.Before(from) && !sale.Date.After(to)
	}), nil
}

func (s *Store) SalesByCustomer(_ context.Context, marketID, customerID uuid.UUID) ([]books.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sortedSales(marketID, func(sale books.Sale) bool {
		return sale.CustomerID == customerID
	}), nil
}

func (s *Store) Sale(_ context.Context, marketID, id uuid.UUID) (books.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sale, ok := s.sales[id]
	if !ok || sale.MarketID != marketID {
		return books.Sale{}, fmt.Errorf("%w: sale %s", errs.ErrNotFound, id)
	}
	return cloneSale(sale), nil
}

func (s *Store) CountSalesOn(_ context.Context, marketID uuid.UUID, date time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	y, m, d := date.UTC().Date()
	n := 0
	for _, sale := range s.sales {
		if sale.MarketID != marketID {
			continue
		}
		sy, sm, sd := sale.Date.UTC().Date()
		if sy == y && sm == m && sd == d {
			n++
		}
	}
	return n, nil
}

func (s *Store) SaveSale(_ context.Context, sale books.Sale) (books.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saleSeq++
	sale.Seq = s.saleSeq
	s.sales[sale.ID] = cloneSale(sale)
	return sale, nil
}

func (s *Store) DeleteSale(_ context.Context, marketID, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sale, ok := s.sales[id]
	if !ok || sale.MarketID != marketID {
		return fmt.Errorf("%w: sale %s", errs.ErrNotFound, id)
	}
	for _, ln := range sale.Lines {
		for aid, a := range s.allocations {
			if a.SaleLineID == ln.ID {
				delete(s.allocations, aid)
			}
		}
	}
	delete(s.sales, id)
	return nil
}

func (s *Store) UpdateSalePaid(_ context.Context, marketID, saleID uuid.UUID, paid decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sale, ok := s.sales[saleID]
	if !ok || sale.MarketID != marketID {
		return fmt.Errorf("%w: sale %s", errs.ErrNotFound, saleID)
	}
	sale.Paid = paid
	s.sales[saleID] = sale
	return nil
}

// payments

func (s *Store) Payment(_ context.Context, marketID, id uuid.UUID) (books.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.payments[id]
	if !ok || p.MarketID != marketID {
		return books.Payment{}, fmt.Errorf("%w: payment %s", errs.ErrNotFound, id)
	}
	return p, nil
}

func (s *Store) PaymentsByCompany(_ context.Context, marketID, companyID uuid.UUID) ([]books.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []books.Payment
	for _, p := range s.payments {
		if p.MarketID == marketID && p.CompanyID == companyID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *Store) SavePayment(_ context.Context, p books.Payment) (books.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.payments[p.ID] = p
	return p, nil
}

func (s *Store) DeletePayment(_ context.Context, marketID, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payments[id]
	if !ok || p.MarketID != marketID {
		return fmt.Errorf("%w: payment %s", errs.ErrNotFound, id)
	}
	delete(s.payments, id)
	return nil
}

// expenses and adjustments

func (s *Store) ExpensesBetween(_ context.Context, marketID uuid.UUID, from, to time.Time) ([]books.GeneralExpense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []books.GeneralExpense
	for _, e := range s.expenses {
		if e.MarketID == marketID && !e.Date.Before(from) && !e.Date.After(to) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (s *Store) SaveExpense(_ context.Context, e books.GeneralExpense) (books.GeneralExpense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expenses[e.ID] = e
	return e, nil
}

func (s *Store) Adjustments(_ context.Context, marketID uuid.UUID) ([]books.InventoryAdjustment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []books.InventoryAdjustment
	for _, a := range s.adjustments {
		if a.MarketID == marketID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (s *Store) SaveAdjustment(_ context.Context, a books.InventoryAdjustment) (books.InventoryAdjustment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.adjustments[a.ID] = a
	return a, nil
}

// batches and allocations

func (s *Store) Batches(_ context.Context, marketID uuid.UUID) ([]books.Batch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []books.Batch
	for _, b := range s.batches {
		if b.MarketID == marketID {
			out = append(out, b)
		}
	}
	sortBatches(out)
	return out, nil
}

func (s *Store) BatchesByItem(_ context.Context, marketID, itemID uuid.UUID) ([]books.Batch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []books.Batch
	for _, b := range s.batches {
		if b.MarketID == marketID && b.ItemID == itemID && b.AvailableQty.IsPos() {
			out = append(out, b)
		}
	}
	sortBatches(out)
	return out, nil
}

func sortBatches(out []books.Batch) {
	sort.Slice(out, func(i, j int) bool {
		if !out[i].PurchaseDate.Equal(out[j].PurchaseDate) {
			return out[i].PurchaseDate.Before(out[j].PurchaseDate)
		}
		return out[i].Seq < out[j].Seq
	})
}

func (s *Store) AllocationsForSale(_ context.Context, marketID, saleID uuid.UUID) ([]books.Allocation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sale, ok := s.sales[saleID]
	if !ok || sale.MarketID != marketID {
		return nil, fmt.Errorf("%w: sale %s", errs.ErrNotFound, saleID)
	}
	var out []books.Allocation
	for _, ln := range sale.Lines {
		for _, a := range s.allocations {
			if a.SaleLineID == ln.ID {
				out = append(out, a)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out, nil
}

func (s *Store) SaveAllocations(_ context.Context, _ uuid.UUID, allocs []books.Allocation, batches []books.Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range allocs {
		s.allocations[a.ID] = a
	}
	for _, b := range batches {
		stored, ok := s.batches[b.ID]
		if !ok {
			return fmt.Errorf("%w: batch %s", errs.ErrNotFound, b.ID)
		}
		stored.AvailableQty = b.AvailableQty
		s.batches[b.ID] = stored
	}
	return nil
}

func (s *Store) CommitPolicy(_ context.Context, marketID uuid.UUID, policy books.Policy, batches []books.Batch, allocs []books.Allocation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.markets[marketID]
	if !ok {
		return fmt.Errorf("%w: market %s", errs.ErrNotFound, marketID)
	}
	for id, b := range s.batches {
		if b.MarketID == marketID {
			delete(s.batches, id)
		}
	}
	lineIDs := make(map[uuid.UUID]struct{})
	for _, sale := range s.sales {
		if sale.MarketID != marketID {
			continue
		}
		for _, ln := range sale.Lines {
			lineIDs[ln.ID] = struct{}{}
		}
	}
	for id, a := range s.allocations {
		if _, ok := lineIDs[a.SaleLineID]; ok {
			delete(s.allocations, id)
		}
	}
	for _, b := range batches {
		b.MarketID = marketID
		s.batches[b.ID] = b
	}
	for _, a := range allocs {
		s.allocations[a.ID] = a
	}
	m.Policy = policy
	s.markets[marketID] = m
	return nil
}

// safe ledger

func (s *Store) Entries(_ context.Context, marketID uuid.UUID) ([]books.SafeEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []books.SafeEntry
	for _, e := range s.safeEntries {
		if e.MarketID == marketID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].Seq < out[j].Seq
	})
	return out, nil
}

func (s *Store) Entry(_ context.Context, marketID, id uuid.UUID) (books.SafeEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.safeEntries[id]
	if !ok || e.MarketID != marketID {
		return books.SafeEntry{}, fmt.Errorf("%w: safe entry %s", errs.ErrNotFound, id)
	}
	return e, nil
}

func (s *Store) SafeEntryByPayment(_ context.Context, marketID, paymentID uuid.UUID) (books.SafeEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.safeEntries {
		if e.MarketID == marketID && e.PaymentID == paymentID {
			return e, nil
		}
	}
	return books.SafeEntry{}, fmt.Errorf("%w: no safe entry for payment %s", errs.ErrNotFound, paymentID)
}

func (s *Store) SaveEntry(_ context.Context, entry books.SafeEntry) (books.SafeEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entrySeq++
	entry.Seq = s.entrySeq
	s.safeEntries[entry.ID] = entry
	return entry, nil
}

func (s *Store) UpdateEntry(_ context.Context, entry books.SafeEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.safeEntries[entry.ID]; !ok {
		return fmt.Errorf("%w: safe entry %s", errs.ErrNotFound, entry.ID)
	}
	s.safeEntries[entry.ID] = entry
	return nil
}

func (s *Store) DeleteEntry(_ context.Context, marketID, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.safeEntries[id]
	if !ok || e.MarketID != marketID {
		return fmt.Errorf("%w: safe entry %s", errs.ErrNotFound, id)
	}
	delete(s.safeEntries, id)
	return nil
}

func (s *Store) RewriteBalances(_ context.Context, marketID uuid.UUID, entries []books.SafeEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range entries {
		stored, ok := s.safeEntries[e.ID]
		if !ok || stored.MarketID != marketID {
			return fmt.Errorf("%w: safe entry %s", errs.ErrNotFound, e.ID)
		}
		stored.BalanceAfter = e.BalanceAfter
		s.safeEntries[stored.ID] = stored
	}
	return nil
}
