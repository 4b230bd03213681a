// Package costing computes landed cost per unit and the weighted-average
// cost of an item. The landed-cost functions are pure; the average coster
// reads purchase history through a small repository interface and persists
// nothing.
package costing

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/govalues/decimal"

	"github.com/tinoosan/marketbooks/internal/books"
	"github.com/tinoosan/marketbooks/internal/currency"
)

var two = decimal.MustNew(2, 0)

// ContainerTotals aggregates a purchase container's lines: total quantity
// and total weight (quantity multiplied by item weight, summed).
type ContainerTotals struct {
	Quantity decimal.Decimal
	Weight   decimal.Decimal
}

// Totals computes a container's aggregate quantity and weight. weights maps
// item IDs to unit weights; a missing weight counts as zero.
func Totals(lines []books.PurchaseLine, weights map[uuid.UUID]decimal.Decimal) (ContainerTotals, error) {
	t := ContainerTotals{Quantity: decimal.MustNew(0, 0), Weight: decimal.MustNew(0, 0)}
	for _, ln := range lines {
		q, err := t.Quantity.Add(ln.Quantity)
		if err != nil {
			return ContainerTotals{}, fmt.Errorf("container quantity: %w", err)
		}
		t.Quantity = q
		lineWeight, err := ln.Quantity.Mul(weights[ln.ItemID])
		if err != nil {
			return ContainerTotals{}, fmt.Errorf("line weight: %w", err)
		}
		w, err := t.Weight.Add(lineWeight)
		if err != nil {
			return ContainerTotals{}, fmt.Errorf("container weight: %w", err)
		}
		t.Weight = w
	}
	return t, nil
}

// ExpenseSum expresses the container's three shared expenses in container
// currency and sums them. A zero-amount expense contributes zero.
func ExpenseSum(conv currency.Converter, c books.PurchaseContainer) (decimal.Decimal, error) {
	sum := decimal.MustNew(0, 0)
	for _, e := range []books.Expense{c.SupplierExpense, c.ServiceExpense, c.CashExpense} {
		if !e.IsSet() {
			continue
		}
		v, err := conv.IntoContainer(e.Amount, e.Currency, e.Rate, c.Currency, c.Rate)
		if err != nil {
			return decimal.MustNew(0, 0), err
		}
		if sum, err = sum.Add(v); err != nil {
			return decimal.MustNew(0, 0), err
		}
	}
	return sum, nil
}

// LandedCostPerUnit spreads the container's shared expenses over one item:
// half of the expenses are distributed by quantity, half by weight.
//
//	cog = sum/2/totalQty + sum/2/totalWeight * itemWeight
//
// When the container has no weight, everything is distributed by quantity;
// when it has neither, the landed cost is zero. The result is never
// negative for non-negative inputs.
func LandedCostPerUnit(sumExpenses decimal.Decimal, totals ContainerTotals, itemWeight decimal.Decimal) (decimal.Decimal, error) {
	zero := decimal.MustNew(0, 0)
	switch {
	case totals.Quantity.IsPos() && totals.Weight.IsPos():
		half, err := sumExpenses.Quo(two)
		if err != nil {
			return zero, err
		}
		byQty, err := half.Quo(totals.Quantity)
		if err != nil {
			return zero, err
		}
		perWeight, err := half.Quo(totals.Weight)
		if err != nil {
			return zero, err
		}
		byWeight, err := perWeight.Mul(itemWeight)
		if err != nil {
			return zero, err
		}
		return byQty.Add(byWeight)
	case totals.Quantity.IsPos():
		return sumExpenses.Quo(totals.Quantity)
	default:
		return zero, nil
	}
}

// UnitCost is the full per-unit cost in container currency.
func UnitCost(unitPrice, cogPerUnit decimal.Decimal) (decimal.Decimal, error) {
	return unitPrice.Add(cogPerUnit)
}

// Repo provides the purchase history reads the average coster needs.
type Repo interface {
	// ContainersWithItem returns every container in the market holding at
	// least one line of the item, lines fully populated, optionally
	// restricted to containers dated strictly before a cutoff.
	ContainersWithItem(ctx context.Context, marketID, itemID uuid.UUID, before *time.Time) ([]books.PurchaseContainer, error)
	// ItemWeights resolves unit weights for a set of items.
	ItemWeights(ctx context.Context, marketID uuid.UUID, itemIDs []uuid.UUID) (map[uuid.UUID]decimal.Decimal, error)
}

// Service exposes average-cost queries.
type Service interface {
	// AverageUnitCost returns the weighted average cost per unit of an item
	// in base currency across its full purchase history. An item with no
	// purchases averages to zero; a sale of such an item books its entire
	// revenue as profit.
	AverageUnitCost(ctx context.Context, market books.Market, itemID uuid.UUID, asOf *time.Time) (decimal.Decimal, error)
	// COGS costs a sold quantity at the item's current average.
	COGS(ctx context.Context, market books.Market, itemID uuid.UUID, qty decimal.Decimal, asOf *time.Time) (decimal.Decimal, error)
}

type service struct {
	repo Repo
}

func New(repo Repo) Service { return &service{repo: repo} }

func (s *service) AverageUnitCost(ctx context.Context, market books.Market, itemID uuid.UUID, asOf *time.Time) (decimal.Decimal, error) {
	zero := decimal.MustNew(0, 0)
	containers, err := s.repo.ContainersWithItem(ctx, market.ID, itemID, asOf)
	if err != nil {
		return zero, err
	}
	if len(containers) == 0 {
		return zero, nil
	}
	conv := currency.New(market.BaseCurrency)

	totalCost := zero
	totalQty := zero
	for _, c := range containers {
		ids := make([]uuid.UUID, 0, len(c.Lines))
		for _, ln := range c.Lines {
			ids = append(ids, ln.ItemID)
		}
		weights, err := s.repo.ItemWeights(ctx, market.ID, ids)
		if err != nil {
			return zero, err
		}
		totals, err := Totals(c.Lines, weights)
		if err != nil {
			return zero, err
		}
		sumExpenses, err := ExpenseSum(conv, c)
		if err != nil {
			return zero, err
		}
		for _, ln := range c.Lines {
			if ln.ItemID != itemID {
				continue
			}
			cog, err := LandedCostPerUnit(sumExpenses, totals, weights[ln.ItemID])
			if err != nil {
				return zero, err
			}
			unit, err := UnitCost(ln.UnitPrice, cog)
			if err != nil {
				return zero, err
			}
			unitBase := conv.ToBaseDefaulting(unit, c.Rate)
			lineCost, err := unitBase.Mul(ln.Quantity)
			if err != nil {
				return zero, err
			}
			if totalCost, err = totalCost.Add(lineCost); err != nil {
				return zero, err
			}
			if totalQty, err = totalQty.Add(ln.Quantity); err != nil {
				return zero, err
			}
		}
	}
	if !totalQty.IsPos() {
		return zero, nil
	}
	return totalCost.Quo(totalQty)
}

func (s *service) COGS(ctx context.Context, market books.Market, itemID uuid.UUID, qty decimal.Decimal, asOf *time.Time) (decimal.Decimal, error) {
	avg, err := s.AverageUnitCost(ctx, market, itemID, asOf)
	if err != nil {
		return decimal.MustNew(0, 0), err
	}
	return avg.Mul(qty)
}
