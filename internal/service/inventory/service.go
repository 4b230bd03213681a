// Package inventory owns the FIFO costing engine: batch depletion at sale
// time, the full backfill replay, and the costing-policy switch. Batches
// and allocations are only ever mutated through here.
package inventory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/govalues/decimal"

	"github.com/tinoosan/marketbooks/internal/books"
	"github.com/tinoosan/marketbooks/internal/currency"
	"github.com/tinoosan/marketbooks/internal/errs"
	"github.com/tinoosan/marketbooks/internal/service/costing"
)

// allocNamespace seeds deterministic allocation IDs: the same sale line
// drawing on the same batch always produces the same ID, so a backfill
// over unchanged inputs regenerates byte-identical rows.
var allocNamespace = uuid.MustParse("6f1c24a8-52a4-49cb-a06d-7e90b4b8a7e1")

// Outcome tags the result of costing one sale.
type Outcome string

const (
	// OutcomeAllocated means every line was fully covered by stock.
	OutcomeAllocated Outcome = "allocated"
	// OutcomePartiallyAllocated means at least one line exceeded available
	// stock and was covered only up to what existed. Allocations were
	// persisted for the covered portion.
	OutcomePartiallyAllocated Outcome = "partially_allocated"
	// OutcomeRejected means the sale exceeded stock and nothing was
	// persisted. Only produced in strict mode.
	OutcomeRejected Outcome = "rejected"
)

// Mode decides what happens when a sale asks for more than is in stock.
type Mode string

const (
	// ModeLenient allocates what exists and reports the shortfall.
	ModeLenient Mode = "lenient"
	// ModeStrict refuses the whole sale on any shortfall.
	ModeStrict Mode = "strict"
)

// Result is the outcome of costing one sale under FIFO.
type Result struct {
	Outcome     Outcome
	Allocations []books.Allocation
	COGSTotal   decimal.Decimal
	Shortfalls  []errs.OversoldError
}

// Warning records a sale that could not be fully covered during a backfill
// replay. The replay continues past it.
type Warning struct {
	SaleID        uuid.UUID
	InvoiceNumber string
	ItemID        uuid.UUID
	Shortfall     decimal.Decimal
}

// BackfillResult is what a replay computed before it was committed.
type BackfillResult struct {
	Batches     []books.Batch
	Allocations []books.Allocation
	Warnings    []Warning
}

// Repo provides the reads the engine needs. Orderings are contractual:
// batches FIFO, sales chronological.
type Repo interface {
	// BatchesByItem returns the item's batches with stock remaining, ordered
	// by (PurchaseDate, Seq) ascending.
	BatchesByItem(ctx context.Context, marketID, itemID uuid.UUID) ([]books.Batch, error)
	// Containers returns every purchase container in the market, lines
	// populated, ordered by (Date, Seq) ascending.
	Containers(ctx context.Context, marketID uuid.UUID) ([]books.PurchaseContainer, error)
	// Sales returns every sale in the market, lines populated, ordered by
	// (Date, Seq) ascending.
	Sales(ctx context.Context, marketID uuid.UUID) ([]books.Sale, error)
	// ItemWeights resolves unit weights for a set of items.
	ItemWeights(ctx context.Context, marketID uuid.UUID, itemIDs []uuid.UUID) (map[uuid.UUID]decimal.Decimal, error)
	Market(ctx context.Context, id uuid.UUID) (books.Market, error)
}

// Writer persists engine output. Each call is atomic.
type Writer interface {
	// SaveAllocations inserts the allocations and updates the given batches'
	// available quantities in one transaction.
	SaveAllocations(ctx context.Context, marketID uuid.UUID, allocs []books.Allocation, batches []books.Batch) error
	// CommitPolicy replaces the market's entire inventory state (batches and
	// allocations) and flips its costing policy in one transaction. A failure
	// leaves the previous state untouched.
	CommitPolicy(ctx context.Context, marketID uuid.UUID, policy books.Policy, batches []books.Batch, allocs []books.Allocation) error
}

// Service is the FIFO engine surface.
type Service interface {
	// AllocateSale costs a sale against current stock and persists the
	// allocations. The caller must already hold the market lock.
	AllocateSale(ctx context.Context, market books.Market, sale books.Sale) (Result, error)
	// Backfill wipes and regenerates the market's batches and allocations
	// from first principles. Deterministic over unchanged inputs.
	Backfill(ctx context.Context, marketID uuid.UUID) (BackfillResult, error)
	// SetCostingPolicy switches the market's policy and backfills in the
	// same transaction.
	SetCostingPolicy(ctx context.Context, marketID uuid.UUID, policy books.Policy) (BackfillResult, error)
}

type service struct {
	repo   Repo
	writer Writer
	mode   Mode
	locks  *books.MarketLocks
}

func New(repo Repo, writer Writer, mode Mode, locks *books.MarketLocks) Service {
	if mode == "" {
		mode = ModeLenient
	}
	return &service{repo: repo, writer: writer, mode: mode, locks: locks}
}

// allocationID derives the deterministic ID for a (sale line, batch) pair.
func allocationID(saleLineID, batchID uuid.UUID) uuid.UUID {
	return uuid.NewSHA1(allocNamespace, []byte(saleLineID.String()+"/"+batchID.String()))
}

// allocateLine depletes the working batch copies oldest-first. Returns the
// allocations, the line's base-currency cost, and the uncovered remainder.
func allocateLine(conv currency.Converter, line books.SaleLine, batches []*books.Batch) ([]books.Allocation, decimal.Decimal, decimal.Decimal, error) {
	zero := decimal.MustNew(0, 0)
	remaining := line.Quantity
	cogs := zero
	var allocs []books.Allocation
	for _, b := range batches {
		if !remaining.IsPos() {
			break
		}
		if !b.AvailableQty.IsPos() {
			continue
		}
		take := remaining
		if b.AvailableQty.Cmp(take) < 0 {
			take = b.AvailableQty
		}
		// cost is fixed in container currency on the batch; base conversion
		// happens here, with legacy zero rates treated as 1
		unitBase := conv.ToBaseDefaulting(b.CostPerUnit, b.Rate)
		total, err := unitBase.Mul(take)
		if err != nil {
			return nil, zero, zero, fmt.Errorf("allocation cost: %w", err)
		}
		allocs = append(allocs, books.Allocation{
			ID:          allocationID(line.ID, b.ID),
			SaleLineID:  line.ID,
			BatchID:     b.ID,
			Quantity:    take,
			CostPerUnit: unitBase,
			TotalCost:   total,
		})
		if b.AvailableQty, err = b.AvailableQty.Sub(take); err != nil {
			return nil, zero, zero, err
		}
		if remaining, err = remaining.Sub(take); err != nil {
			return nil, zero, zero, err
		}
		if cogs, err = cogs.Add(total); err != nil {
			return nil, zero, zero, err
		}
	}
	return allocs, cogs, remaining, nil
}

func (s *service) AllocateSale(ctx context.Context, market books.Market, sale books.Sale) (Result, error) {
	zero := decimal.MustNew(0, 0)
	conv := currency.New(market.BaseCurrency)

	res := Result{Outcome: OutcomeAllocated, COGSTotal: zero}
	touched := make(map[uuid.UUID]*books.Batch)
	working := make(map[uuid.UUID][]*books.Batch)

	for _, line := range sale.Lines {
		batches, ok := working[line.ItemID]
		if !ok {
			loaded, err := s.repo.BatchesByItem(ctx, market.ID, line.ItemID)
			if err != nil {
				return Result{}, err
			}
			batches = make([]*books.Batch, len(loaded))
			for i := range loaded {
				b := loaded[i]
				batches[i] = &b
			}
			working[line.ItemID] = batches
		}
		allocs, cogs, short, err := allocateLine(conv, line, batches)
		if err != nil {
			return Result{}, err
		}
		res.Allocations = append(res.Allocations, allocs...)
		if res.COGSTotal, err = res.COGSTotal.Add(cogs); err != nil {
			return Result{}, err
		}
		for _, a := range allocs {
			for _, b := range batches {
				if b.ID == a.BatchID {
					touched[b.ID] = b
				}
			}
		}
		if short.IsPos() {
			available, err := line.Quantity.Sub(short)
			if err != nil {
				return Result{}, err
			}
			res.Outcome = OutcomePartiallyAllocated
			res.Shortfalls = append(res.Shortfalls, errs.OversoldError{
				ItemID:    line.ItemID,
				Requested: line.Quantity.String(),
				Available: available.String(),
			})
		}
	}

	if res.Outcome == OutcomePartiallyAllocated && s.mode == ModeStrict {
		res.Outcome = OutcomeRejected
		res.Allocations = nil
		res.COGSTotal = zero
		return res, &res.Shortfalls[0]
	}

	updated := make([]books.Batch, 0, len(touched))
	for _, b := range touched {
		updated = append(updated, *b)
	}
	sort.Slice(updated, func(i, j int) bool { return updated[i].Seq < updated[j].Seq })
	if err := s.writer.SaveAllocations(ctx, market.ID, res.Allocations, updated); err != nil {
		return Result{}, err
	}
	return res, nil
}

// BuildBatches derives the market's batch set from its purchase history,
// one batch per purchase line, landed cost included. Batch identity is the
// purchase line ID, so rebuilding preserves IDs.
func BuildBatches(conv currency.Converter, containers []books.PurchaseContainer, weights map[uuid.UUID]decimal.Decimal) ([]books.Batch, error) {
	var batches []books.Batch
	var seq int64
	for _, c := range containers {
		totals, err := costing.Totals(c.Lines, weights)
		if err != nil {
			return nil, err
		}
		sumExpenses, err := costing.ExpenseSum(conv, c)
		if err != nil {
			return nil, err
		}
		for _, ln := range c.Lines {
			cog, err := costing.LandedCostPerUnit(sumExpenses, totals, weights[ln.ItemID])
			if err != nil {
				return nil, err
			}
			unit, err := costing.UnitCost(ln.UnitPrice, cog)
			if err != nil {
				return nil, err
			}
			seq++
			batches = append(batches, books.Batch{
				ID:             ln.ID,
				Seq:            seq,
				MarketID:       c.MarketID,
				ItemID:         ln.ItemID,
				PurchaseLineID: ln.ID,
				ContainerID:    c.ID,
				PurchaseDate:   c.Date,
				OriginalQty:    ln.Quantity,
				AvailableQty:   ln.Quantity,
				UnitPrice:      ln.UnitPrice,
				COGPerUnit:     cog,
				CostPerUnit:    unit,
				Currency:       c.Currency,
				Rate:           c.Rate,
			})
		}
	}
	return batches, nil
}

// replay costs every sale in chronological order against freshly built
// batches. Oversold sales allocate what exists and are reported as
// warnings; the replay never stops on them.
func (s *service) replay(ctx context.Context, market books.Market, policy books.Policy) (BackfillResult, error) {
	containers, err := s.repo.Containers(ctx, market.ID)
	if err != nil {
		return BackfillResult{}, err
	}
	itemIDs := make(map[uuid.UUID]struct{})
	for _, c := range containers {
		for _, ln := range c.Lines {
			itemIDs[ln.ItemID] = struct{}{}
		}
	}
	ids := make([]uuid.UUID, 0, len(itemIDs))
	for id := range itemIDs {
		ids = append(ids, id)
	}
	weights, err := s.repo.ItemWeights(ctx, market.ID, ids)
	if err != nil {
		return BackfillResult{}, err
	}
	conv := currency.New(market.BaseCurrency)
	batches, err := BuildBatches(conv, containers, weights)
	if err != nil {
		return BackfillResult{}, err
	}
	res := BackfillResult{Batches: batches}
	if policy != books.PolicyFIFO {
		// average markets carry full batches and no allocations
		return res, nil
	}

	byItem := make(map[uuid.UUID][]*books.Batch)
	for i := range res.Batches {
		b := &res.Batches[i]
		byItem[b.ItemID] = append(byItem[b.ItemID], b)
	}

	sales, err := s.repo.Sales(ctx, market.ID)
	if err != nil {
		return BackfillResult{}, err
	}
	for _, sale := range sales {
		for _, line := range sale.Lines {
			allocs, _, short, err := allocateLine(conv, line, byItem[line.ItemID])
			if err != nil {
				return BackfillResult{}, err
			}
			res.Allocations = append(res.Allocations, allocs...)
			if short.IsPos() {
				res.Warnings = append(res.Warnings, Warning{
					SaleID:        sale.ID,
					InvoiceNumber: sale.InvoiceNumber,
					ItemID:        line.ItemID,
					Shortfall:     short,
				})
			}
		}
	}
	return res, nil
}

func (s *service) Backfill(ctx context.Context, marketID uuid.UUID) (BackfillResult, error) {
	unlock := s.locks.Lock(marketID)
	defer unlock()

	market, err := s.repo.Market(ctx, marketID)
	if err != nil {
		return BackfillResult{}, err
	}
	res, err := s.replay(ctx, market, market.Policy)
	if err != nil {
		return BackfillResult{}, err
	}
	if err := s.writer.CommitPolicy(ctx, marketID, market.Policy, res.Batches, res.Allocations); err != nil {
		return BackfillResult{}, err
	}
	return res, nil
}

func (s *service) SetCostingPolicy(ctx context.Context, marketID uuid.UUID, policy books.Policy) (BackfillResult, error) {
	if policy != books.PolicyAverage && policy != books.PolicyFIFO {
		return BackfillResult{}, fmt.Errorf("%w: unknown costing policy %q", errs.ErrInvalid, policy)
	}
	unlock := s.locks.Lock(marketID)
	defer unlock()

	market, err := s.repo.Market(ctx, marketID)
	if err != nil {
		return BackfillResult{}, err
	}
	if market.Policy == policy {
		return BackfillResult{}, fmt.Errorf("%w: market already on %q", errs.ErrPolicyActive, policy)
	}
	res, err := s.replay(ctx, market, policy)
	if err != nil {
		return BackfillResult{}, err
	}
	// the replay result and the policy land in one transaction, so a crash
	// mid-switch can never leave average-policy allocations behind
	if err := s.writer.CommitPolicy(ctx, marketID, policy, res.Batches, res.Allocations); err != nil {
		return BackfillResult{}, err
	}
	return res, nil
}

// StockValue sums available quantity times base unit cost per item. Used by
// the stock-value report.
func StockValue(base string, batches []books.Batch, asOf *time.Time) (map[uuid.UUID]decimal.Decimal, error) {
	conv := currency.New(base)
	out := make(map[uuid.UUID]decimal.Decimal)
	for _, b := range batches {
		if asOf != nil && b.PurchaseDate.After(*asOf) {
			continue
		}
		unitBase := conv.ToBaseDefaulting(b.CostPerUnit, b.Rate)
		v, err := unitBase.Mul(b.AvailableQty)
		if err != nil {
			return nil, err
		}
		cur, ok := out[b.ItemID]
		if !ok {
			cur = decimal.MustNew(0, 0)
		}
		if out[b.ItemID], err = cur.Add(v); err != nil {
			return nil, err
		}
	}
	return out, nil
}
