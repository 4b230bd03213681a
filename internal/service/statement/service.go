// Package statement computes counterparty balances and account statements.
// Balances are virtual: derived per request from purchases, sales and
// payments, expressed in the counterparty's own currency and never stored.
package statement

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
)

// RowKind labels the source record behind a statement row.
type RowKind string

const (
	RowPurchase RowKind = "purchase"
	RowExpense  RowKind = "expense"
	RowSale     RowKind = "sale"
	RowPayment  RowKind = "payment"
	RowLoan     RowKind = "loan"
)

// Row is one line of a company statement. Amounts are in the counterparty's
// currency; exactly one of Debit and Credit is nonzero.
type Row struct {
	Date        time.Time
	Kind        RowKind
	Reference   string
	Description string
	Debit       decimal.Decimal
	Credit      decimal.Decimal
	Balance     decimal.Decimal
}

// Statement is a company's account over a date range. Closing equals
// Opening plus the signed sum of the rows; the running Balance column makes
// the statement a contiguous extension of its opening balance.
type Statement struct {
	Company books.Company
	Opening decimal.Decimal
	Rows    []Row
	Closing decimal.Decimal
}

// Repo provides the reads balance computation needs.
type Repo interface {
	Company(ctx context.Context, marketID, id uuid.UUID) (books.Company, error)
	// ContainersBySupplier returns containers purchased from the supplier,
	// lines populated.
	ContainersBySupplier(ctx context.Context, marketID, supplierID uuid.UUID) ([]books.PurchaseContainer, error)
	// ContainersByServiceCompany returns containers whose service expense is
	// billed by the company.
	ContainersByServiceCompany(ctx context.Context, marketID, companyID uuid.UUID) ([]books.PurchaseContainer, error)
	SalesByCustomer(ctx context.Context, marketID, customerID uuid.UUID) ([]books.Sale, error)
	PaymentsByCompany(ctx context.Context, marketID, companyID uuid.UUID) ([]books.Payment, error)
	Market(ctx context.Context, id uuid.UUID) (books.Market, error)
}

// Service is the counterparty-account surface.
type Service interface {
	// Balance is the signed amount the company is owed (positive) or owes
	// (negative is a credit in our favor), in the company's currency. A
	// non-nil asOf restricts every summed record to dates strictly before it,
	// with the identical formula.
	Balance(ctx context.Context, marketID, companyID uuid.UUID, asOf *time.Time) (decimal.Decimal, error)
	// Statement returns the rows in [from, to] with a running balance
	// seeded by the opening balance as of from.
	Statement(ctx context.Context, marketID, companyID uuid.UUID, from, to time.Time) (Statement, error)
}

type service struct {
	repo Repo
}

func New(repo Repo) Service { return &service{repo: repo} }

// rows collects every contributing record for the company as unsigned
// debit/credit rows, sorted by date. All three category formulas live here
// so that the opening balance and the statement can never disagree.
func (s *service) rows(ctx context.Context, market books.Market, company books.Company) ([]Row, error) {
	zero := decimal.MustNew(0, 0)
	var out []Row

	switch company.Category {
	case books.CategorySupplier:
		containers, err := s.repo.ContainersBySupplier(ctx, market.ID, company.ID)
		if err != nil {
			return nil, err
		}
		for _, c := range containers {
			// line totals only; the supplier expense gets its own row
			out = append(out, Row{
				Date:        c.Date,
				Kind:        RowPurchase,
				Reference:   c.Number,
				Description: "goods",
				Debit:       c.TotalAmount(),
				Credit:      zero,
			})
			if c.SupplierExpense.IsSet() {
				out = append(out, Row{
					Date:        c.Date,
					Kind:        RowExpense,
					Reference:   c.Number,
					Description: "supplier expense",
					Debit:       c.SupplierExpense.Amount,
					Credit:      zero,
				})
			}
		}
	case books.CategoryServiceCompany:
		containers, err := s.repo.ContainersByServiceCompany(ctx, market.ID, company.ID)
		if err != nil {
			return nil, err
		}
		conv := currency.New(market.BaseCurrency)
		for _, c := range containers {
			if !c.ServiceExpense.IsSet() {
				continue
			}
			// service expenses are tracked in base currency on statements
			out = append(out, Row{
				Date:        c.Date,
				Kind:        RowExpense,
				Reference:   c.Number,
				Description: "service expense",
				Debit:       conv.ToBaseDefaulting(c.ServiceExpense.Amount, c.ServiceExpense.Rate),
				Credit:      zero,
			})
		}
	case books.CategoryCustomer:
		sales, err := s.repo.SalesByCustomer(ctx, market.ID, company.ID)
		if err != nil {
			return nil, err
		}
		for _, sale := range sales {
			// full invoice amount; payments are tracked as their own rows
			out = append(out, Row{
				Date:        sale.Date,
				Kind:        RowSale,
				Reference:   sale.InvoiceNumber,
				Description: "sale",
				Debit:       sale.Total,
				Credit:      zero,
			})
		}
	default:
		return nil, fmt.Errorf("%w: company category %q", errs.ErrInvalid, company.Category)
	}

	payments, err := s.repo.PaymentsByCompany(ctx, market.ID, company.ID)
	if err != nil {
		return nil, err
	}
	for _, p := range payments {
		// statement amounts stay in the payment's original currency
		row := Row{Date: p.Date, Kind: RowPayment, Description: "payment", Debit: zero, Credit: zero}
		switch {
		case company.Category == books.CategoryCustomer && p.Direction == books.DirectionIn:
			row.Credit = p.Amount
		case company.Category == books.CategoryCustomer:
			row.Debit = p.Amount
		case p.Loan:
			// a loan taken from the counterparty is owed back
			row.Kind = RowLoan
			row.Description = "loan"
			row.Debit = p.Amount
		case p.Direction == books.DirectionOut:
			row.Credit = p.Amount
		default:
			// a non-loan inflow from a supplier or service company does not
			// touch the trade balance
			continue
		}
		out = append(out, row)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

// sum folds rows into a signed balance: debits add, credits subtract.
func sum(rows []Row) (decimal.Decimal, error) {
	balance := decimal.MustNew(0, 0)
	var err error
	for _, r := range rows {
		if balance, err = balance.Add(r.Debit); err != nil {
			return balance, err
		}
		if balance, err = balance.Sub(r.Credit); err != nil {
			return balance, err
		}
	}
	return balance, nil
}

func (s *service) load(ctx context.Context, marketID, companyID uuid.UUID) (books.Market, books.Company, []Row, error) {
	market, err := s.repo.Market(ctx, marketID)
	if err != nil {
		return books.Market{}, books.Company{}, nil, err
	}
	company, err := s.repo.Company(ctx, marketID, companyID)
	if err != nil {
		return books.Market{}, books.Company{}, nil, err
	}
	rows, err := s.rows(ctx, market, company)
	if err != nil {
		return books.Market{}, books.Company{}, nil, err
	}
	return market, company, rows, nil
}

func (s *service) Balance(ctx context.Context, marketID, companyID uuid.UUID, asOf *time.Time) (decimal.Decimal, error) {
	zero := decimal.MustNew(0, 0)
	_, _, rows, err := s.load(ctx, marketID, companyID)
	if err != nil {
		return zero, err
	}
	if asOf != nil {
		kept := rows[:0]
		for _, r := range rows {
			if r.Date.Before(*asOf) {
				kept = append(kept, r)
			}
		}
		rows = kept
	}
	return sum(rows)
}

func (s *service) Statement(ctx context.Context, marketID, companyID uuid.UUID, from, to time.Time) (Statement, error) {
	_, company, rows, err := s.load(ctx, marketID, companyID)
	if err != nil {
		return Statement{}, err
	}

	var before, within []Row
	for _, r := range rows {
		switch {
		case r.Date.Before(from):
			before = append(before, r)
		case !r.Date.After(to):
			within = append(within, r)
		}
	}
	opening, err := sum(before)
	if err != nil {
		return Statement{}, err
	}
	st := Statement{Company: company, Opening: opening, Closing: opening}
	for _, r := range within {
		if st.Closing, err = st.Closing.Add(r.Debit); err != nil {
			return Statement{}, err
		}
		if st.Closing, err = st.Closing.Sub(r.Credit); err != nil {
			return Statement{}, err
		}
		r.Balance = st.Closing
		st.Rows = append(st.Rows, r)
	}
	return st, nil
}
