// Package trading orchestrates the business operations: purchases that
// spawn inventory batches, sales costed under the market's policy, payments
// and operating expenses, each feeding the safe ledger and counterparty
// statements.
package trading

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/govalues/decimal"

	"github.com/tinoosan/marketbooks/internal/books"
	"github.com/tinoosan/marketbooks/internal/currency"
	"github.com/tinoosan/marketbooks/internal/dictionary"
	"github.com/tinoosan/marketbooks/internal/errs"
	"github.com/tinoosan/marketbooks/internal/service/costing"
	"github.com/tinoosan/marketbooks/internal/service/inventory"
	"github.com/tinoosan/marketbooks/internal/service/safe"
	"github.com/tinoosan/marketbooks/internal/slug"
)

// ExpenseInput is one optional shared expense on a purchase.
type ExpenseInput struct {
	Amount   decimal.Decimal
	Currency string
	Rate     decimal.Decimal
}

// PurchaseLineInput is one item position on a purchase.
type PurchaseLineInput struct {
	ItemID    uuid.UUID
	Quantity  decimal.Decimal
	UnitPrice decimal.Decimal
}

// PurchaseInput creates a purchase container.
type PurchaseInput struct {
	Number           string
	SupplierID       uuid.UUID
	Currency         string
	Rate             decimal.Decimal
	Date             time.Time
	SupplierExpense  ExpenseInput
	ServiceExpense   ExpenseInput
	ServiceCompanyID uuid.UUID
	CashExpense      ExpenseInput
	Notes            string
	Lines            []PurchaseLineInput
}

// PurchaseResult is a created container and the batches it spawned.
type PurchaseResult struct {
	Container books.PurchaseContainer
	Batches   []books.Batch
}

// SaleLineInput is one item position on a sale.
type SaleLineInput struct {
	ItemID    uuid.UUID
	Quantity  decimal.Decimal
	UnitPrice decimal.Decimal
}

// SaleInput creates a sale. For cash settlement a zero PaidAmount means the
// full invoice total is collected on the spot.
type SaleInput struct {
	CustomerID uuid.UUID
	SupplierID uuid.UUID
	Date       time.Time
	Settlement books.Settlement
	PaidAmount decimal.Decimal
	Notes      string
	Lines      []SaleLineInput
}

// SaleResult is a created sale with its costing outcome.
type SaleResult struct {
	Sale        books.Sale
	Outcome     inventory.Outcome
	Allocations []books.Allocation
	COGSTotal   decimal.Decimal
	Shortfalls  []errs.OversoldError
}

// PaymentInput records money moving between the business and a company. A
// zero BaseAmount is derived as Amount times Rate; a nonzero one is stored
// exactly as given.
type PaymentInput struct {
	CompanyID  uuid.UUID
	SaleID     uuid.UUID
	Direction  books.Direction
	Amount     decimal.Decimal
	Currency   string
	Rate       decimal.Decimal
	BaseAmount decimal.Decimal
	Date       time.Time
	Loan       bool
	Notes      string
}

// GeneralExpenseInput records an operating expense settled from the safe.
type GeneralExpenseInput struct {
	Date        time.Time
	Description string
	Category    string
	Amount      decimal.Decimal
	Currency    string
	Rate        decimal.Decimal
}

// AdjustmentInput corrects stock quantity without touching costing.
type AdjustmentInput struct {
	ItemID   uuid.UUID
	Type     books.AdjustmentType
	Quantity decimal.Decimal
	Date     time.Time
	Reason   string
	Notes    string
}

// Repo provides the reads trading needs for validation and numbering.
type Repo interface {
	Market(ctx context.Context, id uuid.UUID) (books.Market, error)
	Company(ctx context.Context, marketID, id uuid.UUID) (books.Company, error)
	Item(ctx context.Context, marketID, id uuid.UUID) (books.Item, error)
	ItemWeights(ctx context.Context, marketID uuid.UUID, itemIDs []uuid.UUID) (map[uuid.UUID]decimal.Decimal, error)
	// ContainerByNumber reports an existing container with the number, for
	// duplicate detection. errs.ErrNotFound when free.
	ContainerByNumber(ctx context.Context, marketID uuid.UUID, number string) (books.PurchaseContainer, error)
	Sale(ctx context.Context, marketID, id uuid.UUID) (books.Sale, error)
	Payment(ctx context.Context, marketID, id uuid.UUID) (books.Payment, error)
	// CountSalesOn returns how many sales the market already has on the
	// calendar day (UTC), for invoice numbering.
	CountSalesOn(ctx context.Context, marketID uuid.UUID, date time.Time) (int, error)
	SafeEntryByPayment(ctx context.Context, marketID, paymentID uuid.UUID) (books.SafeEntry, error)
}

// Writer persists trading records. SavePurchase writes the container, its
// lines and its batches in one transaction.
type Writer interface {
	SavePurchase(ctx context.Context, container books.PurchaseContainer, batches []books.Batch) (books.PurchaseContainer, error)
	SaveSale(ctx context.Context, sale books.Sale) (books.Sale, error)
	DeleteSale(ctx context.Context, marketID, id uuid.UUID) error
	UpdateSalePaid(ctx context.Context, marketID, saleID uuid.UUID, paid decimal.Decimal) error
	SavePayment(ctx context.Context, p books.Payment) (books.Payment, error)
	DeletePayment(ctx context.Context, marketID, id uuid.UUID) error
	SaveExpense(ctx context.Context, e books.GeneralExpense) (books.GeneralExpense, error)
	SaveAdjustment(ctx context.Context, a books.InventoryAdjustment) (books.InventoryAdjustment, error)
}

// Service is the trading surface.
type Service interface {
	CreatePurchase(ctx context.Context, marketID uuid.UUID, in PurchaseInput) (PurchaseResult, error)
	CreateSale(ctx context.Context, marketID uuid.UUID, in SaleInput) (SaleResult, error)
	CreatePayment(ctx context.Context, marketID uuid.UUID, in PaymentInput) (books.Payment, error)
	DeletePayment(ctx context.Context, marketID, id uuid.UUID) error
	CreateExpense(ctx context.Context, marketID uuid.UUID, in GeneralExpenseInput) (books.GeneralExpense, error)
	CreateAdjustment(ctx context.Context, marketID uuid.UUID, in AdjustmentInput) (books.InventoryAdjustment, error)
}

type service struct {
	repo   Repo
	writer Writer
	safe   safe.Service
	stock  inventory.Service
	avg    costing.Service
	locks  *books.MarketLocks
}

func New(repo Repo, writer Writer, safeSvc safe.Service, stock inventory.Service, avg costing.Service, locks *books.MarketLocks) Service {
	return &service{repo: repo, writer: writer, safe: safeSvc, stock: stock, avg: avg, locks: locks}
}

func (s *service) validateExpense(in ExpenseInput, label string) error {
	if in.Amount.IsZero() {
		return nil
	}
	if in.Amount.IsNeg() {
		return fmt.Errorf("%w: %s amount must not be negative", errs.ErrInvalid, label)
	}
	if _, err := currency.ParseCode(in.Currency); err != nil {
		return fmt.Errorf("%s currency: %w", label, err)
	}
	if !in.Rate.IsPos() {
		return fmt.Errorf("%w: %s needs a positive exchange rate", errs.ErrExchangeRate, label)
	}
	return nil
}

func (s *service) requireCompany(ctx context.Context, marketID, id uuid.UUID, category books.Category) (books.Company, error) {
	c, err := s.repo.Company(ctx, marketID, id)
	if err != nil {
		return books.Company{}, err
	}
	if c.Category != category {
		return books.Company{}, fmt.Errorf("%w: company %s is a %s, not a %s", errs.ErrUnprocessable, c.Name, c.Category, category)
	}
	return c, nil
}

func (s *service) CreatePurchase(ctx context.Context, marketID uuid.UUID, in PurchaseInput) (PurchaseResult, error) {
	market, err := s.repo.Market(ctx, marketID)
	if err != nil {
		return PurchaseResult{}, err
	}
	if len(in.Lines) == 0 {
		return PurchaseResult{}, fmt.Errorf("%w: purchase needs at least one line", errs.ErrInvalid)
	}
	number := slug.NormalizeCode(in.Number)
	if !slug.IsCode(number) {
		return PurchaseResult{}, fmt.Errorf("%w: container number %q", errs.ErrInvalid, in.Number)
	}
	if _, err := currency.ParseCode(in.Currency); err != nil {
		return PurchaseResult{}, err
	}
	if !in.Rate.IsPos() {
		return PurchaseResult{}, fmt.Errorf("%w: container needs a positive exchange rate", errs.ErrExchangeRate)
	}
	if in.Date.IsZero() {
		return PurchaseResult{}, fmt.Errorf("%w: date is required", errs.ErrInvalid)
	}
	if _, err := s.requireCompany(ctx, marketID, in.SupplierID, books.CategorySupplier); err != nil {
		return PurchaseResult{}, err
	}
	for _, label := range []struct {
		in    ExpenseInput
		label string
	}{
		{in.SupplierExpense, "supplier expense"},
		{in.ServiceExpense, "service expense"},
		{in.CashExpense, "cash expense"},
	} {
		if err := s.validateExpense(label.in, label.label); err != nil {
			return PurchaseResult{}, err
		}
	}
	if in.ServiceExpense.Amount.IsPos() {
		if _, err := s.requireCompany(ctx, marketID, in.ServiceCompanyID, books.CategoryServiceCompany); err != nil {
			return PurchaseResult{}, err
		}
	}
	if _, err := s.repo.ContainerByNumber(ctx, marketID, number); err == nil {
		return PurchaseResult{}, fmt.Errorf("%w: container %s already exists", errs.ErrConflict, number)
	}

	container := books.PurchaseContainer{
		ID:               uuid.New(),
		MarketID:         marketID,
		Number:           number,
		SupplierID:       in.SupplierID,
		Currency:         in.Currency,
		Rate:             in.Rate,
		Date:             in.Date,
		SupplierExpense:  books.Expense(in.SupplierExpense),
		ServiceExpense:   books.Expense(in.ServiceExpense),
		ServiceCompanyID: in.ServiceCompanyID,
		CashExpense:      books.Expense(in.CashExpense),
		Notes:            in.Notes,
		CreatedAt:        time.Now().UTC(),
	}
	itemIDs := make([]uuid.UUID, 0, len(in.Lines))
	for _, ln := range in.Lines {
		if _, err := s.repo.Item(ctx, marketID, ln.ItemID); err != nil {
			return PurchaseResult{}, err
		}
		if !ln.Quantity.IsPos() {
			return PurchaseResult{}, fmt.Errorf("%w: line quantity must be positive", errs.ErrInvalid)
		}
		if ln.UnitPrice.IsNeg() {
			return PurchaseResult{}, fmt.Errorf("%w: line unit price must not be negative", errs.ErrInvalid)
		}
		total, err := ln.Quantity.Mul(ln.UnitPrice)
		if err != nil {
			return PurchaseResult{}, err
		}
		container.Lines = append(container.Lines, books.PurchaseLine{
			ID:          uuid.New(),
			ContainerID: container.ID,
			ItemID:      ln.ItemID,
			Quantity:    ln.Quantity,
			UnitPrice:   ln.UnitPrice,
			Total:       total,
		})
		itemIDs = append(itemIDs, ln.ItemID)
	}
	weights, err := s.repo.ItemWeights(ctx, marketID, itemIDs)
	if err != nil {
		return PurchaseResult{}, err
	}
	conv := currency.New(market.BaseCurrency)
	batches, err := inventory.BuildBatches(conv, []books.PurchaseContainer{container}, weights)
	if err != nil {
		return PurchaseResult{}, err
	}

	unlock := s.locks.Lock(marketID)
	saved, err := s.writer.SavePurchase(ctx, container, batches)
	unlock()
	if err != nil {
		return PurchaseResult{}, err
	}

	if in.CashExpense.Amount.IsPos() {
		base, err := conv.ToBase(in.CashExpense.Amount, in.CashExpense.Rate)
		if err != nil {
			return PurchaseResult{}, err
		}
		_, err = s.safe.AppendLinked(ctx, marketID, safe.LinkedInput{
			Type:        books.EntryOutflow,
			Amount:      in.CashExpense.Amount,
			Currency:    in.CashExpense.Currency,
			Rate:        in.CashExpense.Rate,
			BaseAmount:  base,
			Date:        in.Date,
			Description: fmt.Sprintf("Container %s cash expense", number),
			ExpenseID:   saved.ID,
		})
		if err != nil {
			return PurchaseResult{}, err
		}
	}
	return PurchaseResult{Container: saved, Batches: batches}, nil
}

// invoiceNumber formats the market-unique sale reference for a date.
func invoiceNumber(date time.Time, ordinal int) string {
	return fmt.Sprintf("INV-%s-%04d", date.Format("20060102"), ordinal)
}

func (s *service) CreateSale(ctx context.Context, marketID uuid.UUID, in SaleInput) (SaleResult, error) {
	market, err := s.repo.Market(ctx, marketID)
	if err != nil {
		return SaleResult{}, err
	}
	if len(in.Lines) == 0 {
		return SaleResult{}, fmt.Errorf("%w: sale needs at least one line", errs.ErrInvalid)
	}
	if in.Date.IsZero() {
		return SaleResult{}, fmt.Errorf("%w: date is required", errs.ErrInvalid)
	}
	if in.Settlement != books.SettlementCash && in.Settlement != books.SettlementCredit {
		return SaleResult{}, fmt.Errorf("%w: settlement %q", errs.ErrInvalid, in.Settlement)
	}
	customer, err := s.requireCompany(ctx, marketID, in.CustomerID, books.CategoryCustomer)
	if err != nil {
		return SaleResult{}, err
	}

	zero := decimal.MustNew(0, 0)
	sale := books.Sale{
		ID:         uuid.New(),
		MarketID:   marketID,
		CustomerID: in.CustomerID,
		SupplierID: in.SupplierID,
		Date:       in.Date,
		Total:      zero,
		Paid:       zero,
		Settlement: in.Settlement,
		Notes:      in.Notes,
		CreatedAt:  time.Now().UTC(),
	}
	for _, ln := range in.Lines {
		if _, err := s.repo.Item(ctx, marketID, ln.ItemID); err != nil {
			return SaleResult{}, err
		}
		if !ln.Quantity.IsPos() {
			return SaleResult{}, fmt.Errorf("%w: line quantity must be positive", errs.ErrInvalid)
		}
		if ln.UnitPrice.IsNeg() {
			return SaleResult{}, fmt.Errorf("%w: line unit price must not be negative", errs.ErrInvalid)
		}
		total, err := ln.Quantity.Mul(ln.UnitPrice)
		if err != nil {
			return SaleResult{}, err
		}
		sale.Lines = append(sale.Lines, books.SaleLine{
			ID:        uuid.New(),
			SaleID:    sale.ID,
			ItemID:    ln.ItemID,
			Quantity:  ln.Quantity,
			UnitPrice: ln.UnitPrice,
			Total:     total,
		})
		if sale.Total, err = sale.Total.Add(total); err != nil {
			return SaleResult{}, err
		}
	}

	paid := in.PaidAmount
	if in.Settlement == books.SettlementCash && paid.IsZero() {
		paid = sale.Total
	}
	if paid.Cmp(sale.Total) > 0 {
		return SaleResult{}, fmt.Errorf("%w: paid amount exceeds sale total", errs.ErrUnprocessable)
	}

	unlock := s.locks.Lock(marketID)
	n, err := s.repo.CountSalesOn(ctx, marketID, in.Date)
	if err != nil {
		unlock()
		return SaleResult{}, err
	}
	sale.InvoiceNumber = invoiceNumber(in.Date, n+1)
	saved, err := s.writer.SaveSale(ctx, sale)
	if err != nil {
		unlock()
		return SaleResult{}, err
	}

	res := SaleResult{Sale: saved, Outcome: inventory.OutcomeAllocated, COGSTotal: zero}
	switch market.Policy {
	case books.PolicyFIFO:
		alloc, err := s.stock.AllocateSale(ctx, market, saved)
		if err != nil {
			// a strict-mode rejection removes the sale again; nothing was costed
			delErr := s.writer.DeleteSale(ctx, marketID, saved.ID)
			unlock()
			if delErr != nil {
				return SaleResult{}, delErr
			}
			return SaleResult{Outcome: inventory.OutcomeRejected, Shortfalls: alloc.Shortfalls}, err
		}
		res.Outcome = alloc.Outcome
		res.Allocations = alloc.Allocations
		res.COGSTotal = alloc.COGSTotal
		res.Shortfalls = alloc.Shortfalls
	default:
		for _, ln := range saved.Lines {
			cogs, err := s.avg.COGS(ctx, market, ln.ItemID, ln.Quantity, nil)
			if err != nil {
				unlock()
				return SaleResult{}, err
			}
			if res.COGSTotal, err = res.COGSTotal.Add(cogs); err != nil {
				unlock()
				return SaleResult{}, err
			}
		}
	}
	unlock()

	if paid.IsPos() {
		// collected cash becomes a payment plus a safe inflow, both linked
		// back to the invoice
		payment, err := s.recordPayment(ctx, marketID, customer, PaymentInput{
			CompanyID:  customer.ID,
			SaleID:     saved.ID,
			Direction:  books.DirectionIn,
			Amount:     paid,
			Currency:   customer.Currency,
			Rate:       decimal.MustNew(1, 0),
			BaseAmount: paid,
			Date:       in.Date,
			Notes:      fmt.Sprintf("Collected on %s", saved.InvoiceNumber),
		}, saved)
		if err != nil {
			return SaleResult{}, err
		}
		res.Sale.Paid = payment.BaseAmount
	}
	return res, nil
}

func (s *service) CreatePayment(ctx context.Context, marketID uuid.UUID, in PaymentInput) (books.Payment, error) {
	company, err := s.repo.Company(ctx, marketID, in.CompanyID)
	if err != nil {
		return books.Payment{}, err
	}
	var sale books.Sale
	if in.SaleID != uuid.Nil {
		if sale, err = s.repo.Sale(ctx, marketID, in.SaleID); err != nil {
			return books.Payment{}, err
		}
	}
	return s.recordPayment(ctx, marketID, company, in, sale)
}

func (s *service) recordPayment(ctx context.Context, marketID uuid.UUID, company books.Company, in PaymentInput, sale books.Sale) (books.Payment, error) {
	if in.Direction != books.DirectionIn && in.Direction != books.DirectionOut {
		return books.Payment{}, fmt.Errorf("%w: payment direction %q", errs.ErrInvalid, in.Direction)
	}
	if !in.Amount.IsPos() {
		return books.Payment{}, fmt.Errorf("%w: amount must be positive", errs.ErrInvalid)
	}
	if _, err := currency.ParseCode(in.Currency); err != nil {
		return books.Payment{}, err
	}
	if in.Date.IsZero() {
		return books.Payment{}, fmt.Errorf("%w: date is required", errs.ErrInvalid)
	}

	base := in.BaseAmount
	rate := in.Rate
	var err error
	if base.IsZero() {
		if !rate.IsPos() {
			return books.Payment{}, fmt.Errorf("%w: payment needs a positive exchange rate", errs.ErrExchangeRate)
		}
		if base, err = in.Amount.Mul(rate); err != nil {
			return books.Payment{}, err
		}
	} else if rate.IsZero() {
		// keep a display rate consistent with the exact base amount
		if rate, err = base.Quo(in.Amount); err != nil {
			return books.Payment{}, err
		}
	}

	payment := books.Payment{
		ID:         uuid.New(),
		MarketID:   marketID,
		CompanyID:  in.CompanyID,
		SaleID:     in.SaleID,
		Direction:  in.Direction,
		Amount:     in.Amount,
		Currency:   in.Currency,
		Rate:       rate,
		BaseAmount: base,
		Date:       in.Date,
		Loan:       in.Loan,
		Notes:      in.Notes,
		CreatedAt:  time.Now().UTC(),
	}
	saved, err := s.writer.SavePayment(ctx, payment)
	if err != nil {
		return books.Payment{}, err
	}

	if in.SaleID != uuid.Nil && in.Direction == books.DirectionIn {
		paid, err := sale.Paid.Add(base)
		if err != nil {
			return books.Payment{}, err
		}
		if err := s.writer.UpdateSalePaid(ctx, marketID, in.SaleID, paid); err != nil {
			return books.Payment{}, err
		}
	}

	entryType := books.EntryOutflow
	description := fmt.Sprintf("Payment to %s", company.Name)
	switch {
	case in.Loan:
		// loans are always money received
		entryType = books.EntryInflow
		description = fmt.Sprintf("Loan from %s", company.Name)
	case in.Direction == books.DirectionIn:
		entryType = books.EntryInflow
		description = fmt.Sprintf("Payment from %s", company.Name)
	}
	if sale.InvoiceNumber != "" {
		description += fmt.Sprintf(" (%s)", sale.InvoiceNumber)
	}
	_, err = s.safe.AppendLinked(ctx, marketID, safe.LinkedInput{
		Type:        entryType,
		Amount:      in.Amount,
		Currency:    in.Currency,
		Rate:        rate,
		BaseAmount:  base,
		Date:        in.Date,
		Description: description,
		PaymentID:   saved.ID,
		SaleID:      in.SaleID,
	})
	if err != nil {
		return books.Payment{}, err
	}
	return saved, nil
}

func (s *service) DeletePayment(ctx context.Context, marketID, id uuid.UUID) error {
	payment, err := s.repo.Payment(ctx, marketID, id)
	if err != nil {
		return err
	}
	if payment.SaleID != uuid.Nil && payment.Direction == books.DirectionIn {
		sale, err := s.repo.Sale(ctx, marketID, payment.SaleID)
		if err != nil {
			return err
		}
		paid, err := sale.Paid.Sub(payment.BaseAmount)
		if err != nil {
			return err
		}
		if err := s.writer.UpdateSalePaid(ctx, marketID, payment.SaleID, paid); err != nil {
			return err
		}
	}
	if entry, err := s.repo.SafeEntryByPayment(ctx, marketID, id); err == nil {
		if err := s.safe.DeleteLinked(ctx, marketID, entry.ID); err != nil {
			return err
		}
	}
	return s.writer.DeletePayment(ctx, marketID, id)
}

func (s *service) CreateExpense(ctx context.Context, marketID uuid.UUID, in GeneralExpenseInput) (books.GeneralExpense, error) {
	market, err := s.repo.Market(ctx, marketID)
	if err != nil {
		return books.GeneralExpense{}, err
	}
	if !dictionary.IsExpenseCategory(in.Category) {
		return books.GeneralExpense{}, fmt.Errorf("%w: expense category %q", errs.ErrInvalid, in.Category)
	}
	if !in.Amount.IsPos() {
		return books.GeneralExpense{}, fmt.Errorf("%w: amount must be positive", errs.ErrInvalid)
	}
	if _, err := currency.ParseCode(in.Currency); err != nil {
		return books.GeneralExpense{}, err
	}
	if in.Date.IsZero() {
		return books.GeneralExpense{}, fmt.Errorf("%w: date is required", errs.ErrInvalid)
	}
	base, err := currency.New(market.BaseCurrency).ToBase(in.Amount, in.Rate)
	if err != nil {
		return books.GeneralExpense{}, err
	}
	expense := books.GeneralExpense{
		ID:          uuid.New(),
		MarketID:    marketID,
		Date:        in.Date,
		Description: in.Description,
		Category:    in.Category,
		Amount:      in.Amount,
		Currency:    in.Currency,
		Rate:        in.Rate,
		CreatedAt:   time.Now().UTC(),
	}
	saved, err := s.writer.SaveExpense(ctx, expense)
	if err != nil {
		return books.GeneralExpense{}, err
	}
	_, err = s.safe.AppendLinked(ctx, marketID, safe.LinkedInput{
		Type:        books.EntryOutflow,
		Amount:      in.Amount,
		Currency:    in.Currency,
		Rate:        in.Rate,
		BaseAmount:  base,
		Date:        in.Date,
		Description: in.Description,
		ExpenseID:   saved.ID,
	})
	if err != nil {
		return books.GeneralExpense{}, err
	}
	return saved, nil
}

func (s *service) CreateAdjustment(ctx context.Context, marketID uuid.UUID, in AdjustmentInput) (books.InventoryAdjustment, error) {
	if _, err := s.repo.Market(ctx, marketID); err != nil {
		return books.InventoryAdjustment{}, err
	}
	if _, err := s.repo.Item(ctx, marketID, in.ItemID); err != nil {
		return books.InventoryAdjustment{}, err
	}
	if in.Type != books.AdjustmentIncrease && in.Type != books.AdjustmentDecrease {
		return books.InventoryAdjustment{}, fmt.Errorf("%w: adjustment type %q", errs.ErrInvalid, in.Type)
	}
	if !in.Quantity.IsPos() {
		return books.InventoryAdjustment{}, fmt.Errorf("%w: quantity must be positive", errs.ErrInvalid)
	}
	if in.Reason == "" {
		return books.InventoryAdjustment{}, fmt.Errorf("%w: reason is required", errs.ErrInvalid)
	}
	if in.Date.IsZero() {
		return books.InventoryAdjustment{}, fmt.Errorf("%w: date is required", errs.ErrInvalid)
	}
	adj := books.InventoryAdjustment{
		ID:        uuid.New(),
		MarketID:  marketID,
		ItemID:    in.ItemID,
		Type:      in.Type,
		Quantity:  in.Quantity,
		Date:      in.Date,
		Reason:    in.Reason,
		Notes:     in.Notes,
		CreatedAt: time.Now().UTC(),
	}
	return s.writer.SaveAdjustment(ctx, adj)
}
