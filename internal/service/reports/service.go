// Package reports derives the profit-and-loss and stock-value views. All
// figures are computed per request in base currency; nothing is persisted.
package reports

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/govalues/decimal"

	"github.com/tinoosan/marketbooks/internal/books"
	"github.com/tinoosan/marketbooks/internal/currency"
	"github.com/tinoosan/marketbooks/internal/service/costing"
)

// ProfitLoss is the trading result over a date range.
type ProfitLoss struct {
	From        time.Time
	To          time.Time
	Revenue     decimal.Decimal
	COGS        decimal.Decimal
	GrossProfit decimal.Decimal
	Expenses    decimal.Decimal
	NetProfit   decimal.Decimal
}

// StockLine is one item's position in the stock-value report. Quantity
// includes inventory adjustments; Value prices available batch stock plus
// adjusted quantity at the item's most recent batch cost.
type StockLine struct {
	Item     books.Item
	Quantity decimal.Decimal
	Value    decimal.Decimal
}

// StockReport is the market's stock value at a point in time.
type StockReport struct {
	AsOf       *time.Time
	Lines      []StockLine
	TotalValue decimal.Decimal
}

// Repo provides the reads report building needs.
type Repo interface {
	Market(ctx context.Context, id uuid.UUID) (books.Market, error)
	// SalesBetween returns sales with Date in [from, to], lines populated,
	// ordered by (Date, Seq).
	SalesBetween(ctx context.Context, marketID uuid.UUID, from, to time.Time) ([]books.Sale, error)
	AllocationsForSale(ctx context.Context, marketID, saleID uuid.UUID) ([]books.Allocation, error)
	ExpensesBetween(ctx context.Context, marketID uuid.UUID, from, to time.Time) ([]books.GeneralExpense, error)
	Batches(ctx context.Context, marketID uuid.UUID) ([]books.Batch, error)
	Adjustments(ctx context.Context, marketID uuid.UUID) ([]books.InventoryAdjustment, error)
	Items(ctx context.Context, marketID uuid.UUID) ([]books.Item, error)
}

// Service is the reporting surface.
type Service interface {
	ProfitLoss(ctx context.Context, marketID uuid.UUID, from, to time.Time) (ProfitLoss, error)
	StockValue(ctx context.Context, marketID uuid.UUID, asOf *time.Time) (StockReport, error)
}

type service struct {
	repo Repo
	avg  costing.Service
}

func New(repo Repo, avg costing.Service) Service {
	return &service{repo: repo, avg: avg}
}

func (s *service) ProfitLoss(ctx context.Context, marketID uuid.UUID, from, to time.Time) (ProfitLoss, error) {
	market, err := s.repo.Market(ctx, marketID)
	if err != nil {
		return ProfitLoss{}, err
	}
	zero := decimal.MustNew(0, 0)
	pl := ProfitLoss{From: from, To: to, Revenue: zero, COGS: zero, Expenses: zero}

	sales, err := s.repo.SalesBetween(ctx, marketID, from, to)
	if err != nil {
		return ProfitLoss{}, err
	}
	for _, sale := range sales {
		if pl.Revenue, err = pl.Revenue.Add(sale.Total); err != nil {
			return ProfitLoss{}, err
		}
		switch market.Policy {
		case books.PolicyFIFO:
			allocs, err := s.repo.AllocationsForSale(ctx, marketID, sale.ID)
			if err != nil {
				return ProfitLoss{}, err
			}
			for _, a := range allocs {
				if pl.COGS, err = pl.COGS.Add(a.TotalCost); err != nil {
					return ProfitLoss{}, err
				}
			}
		default:
			for _, ln := range sale.Lines {
				cogs, err := s.avg.COGS(ctx, market, ln.ItemID, ln.Quantity, nil)
				if err != nil {
					return ProfitLoss{}, err
				}
				if pl.COGS, err = pl.COGS.Add(cogs); err != nil {
					return ProfitLoss{}, err
				}
			}
		}
	}
	if pl.GrossProfit, err = pl.Revenue.Sub(pl.COGS); err != nil {
		return ProfitLoss{}, err
	}

	conv := currency.New(market.BaseCurrency)
	expenses, err := s.repo.ExpensesBetween(ctx, marketID, from, to)
	if err != nil {
		return ProfitLoss{}, err
	}
	for _, e := range expenses {
		base, err := conv.ToBase(e.Amount, e.Rate)
		if err != nil {
			return ProfitLoss{}, err
		}
		if pl.Expenses, err = pl.Expenses.Add(base); err != nil {
			return ProfitLoss{}, err
		}
	}
	if pl.NetProfit, err = pl.GrossProfit.Sub(pl.Expenses); err != nil {
		return ProfitLoss{}, err
	}
	return pl, nil
}

func (s *service) StockValue(ctx context.Context, marketID uuid.UUID, asOf *time.Time) (StockReport, error) {
	market, err := s.repo.Market(ctx, marketID)
	if err != nil {
		return StockReport{}, err
	}
	batches, err := s.repo.Batches(ctx, marketID)
	if err != nil {
		return StockReport{}, err
	}
	items, err := s.repo.Items(ctx, marketID)
	if err != nil {
		return StockReport{}, err
	}
	adjustments, err := s.repo.Adjustments(ctx, marketID)
	if err != nil {
		return StockReport{}, err
	}

	zero := decimal.MustNew(0, 0)
	conv := currency.New(market.BaseCurrency)
	qty := make(map[uuid.UUID]decimal.Decimal)
	value := make(map[uuid.UUID]decimal.Decimal)
	// latest batch cost per item prices adjustments, which have no batch of
	// their own
	lastCost := make(map[uuid.UUID]decimal.Decimal)
	lastSeq := make(map[uuid.UUID]int64)

	for _, b := range batches {
		if asOf != nil && b.PurchaseDate.After(*asOf) {
			continue
		}
		unitBase := conv.ToBaseDefaulting(b.CostPerUnit, b.Rate)
		lineValue, err := unitBase.Mul(b.AvailableQty)
		if err != nil {
			return StockReport{}, err
		}
		if qty[b.ItemID], err = get(qty, b.ItemID).Add(b.AvailableQty); err != nil {
			return StockReport{}, err
		}
		if value[b.ItemID], err = get(value, b.ItemID).Add(lineValue); err != nil {
			return StockReport{}, err
		}
		if b.Seq >= lastSeq[b.ItemID] {
			lastSeq[b.ItemID] = b.Seq
			lastCost[b.ItemID] = unitBase
		}
	}
	for _, a := range adjustments {
		if asOf != nil && a.Date.After(*asOf) {
			continue
		}
		signed := a.SignedQuantity()
		var err error
		if qty[a.ItemID], err = get(qty, a.ItemID).Add(signed); err != nil {
			return StockReport{}, err
		}
		cost, ok := lastCost[a.ItemID]
		if !ok {
			cost = zero
		}
		adjValue, err := cost.Mul(signed)
		if err != nil {
			return StockReport{}, err
		}
		if value[a.ItemID], err = get(value, a.ItemID).Add(adjValue); err != nil {
			return StockReport{}, err
		}
	}

	rep := StockReport{AsOf: asOf, TotalValue: zero}
	for _, it := range items {
		q, ok := qty[it.ID]
		if !ok {
			continue
		}
		v := get(value, it.ID)
		rep.Lines = append(rep.Lines, StockLine{Item: it, Quantity: q, Value: v})
		if rep.TotalValue, err = rep.TotalValue.Add(v); err != nil {
			return StockReport{}, err
		}
	}
	sort.Slice(rep.Lines, func(i, j int) bool { return rep.Lines[i].Item.Code < rep.Lines[j].Item.Code })
	return rep, nil
}

func get(m map[uuid.UUID]decimal.Decimal, id uuid.UUID) decimal.Decimal {
	if v, ok := m[id]; ok {
		return v
	}
	return decimal.MustNew(0, 0)
}
