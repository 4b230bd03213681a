package books

import (
	"time"

	"github.com/google/uuid"
	"github.com/govalues/decimal"

	"github.com/tinoosan/marketbooks/internal/meta"
)

// Policy selects how a market costs its sales.
type Policy string

const (
	// PolicyAverage costs sales with a query-time weighted average; nothing
	// is persisted per sale.
	PolicyAverage Policy = "average"
	// PolicyFIFO costs sales by depleting batches oldest-first and persists
	// the allocations.
	PolicyFIFO Policy = "fifo"
)

// Category classifies a trading partner and decides the sign rules applied
// when computing its balance.
type Category string

const (
	CategorySupplier       Category = "supplier"
	CategoryServiceCompany Category = "service_company"
	CategoryCustomer       Category = "customer"
)

// Direction is the flow of a payment relative to the business.
type Direction string

const (
	// DirectionIn is money received, typically from a customer.
	DirectionIn Direction = "in"
	// DirectionOut is money paid, typically to a supplier or service company.
	DirectionOut Direction = "out"
)

// Settlement is how a sale is settled.
type Settlement string

const (
	SettlementCash   Settlement = "cash"
	SettlementCredit Settlement = "credit"
)

// EntryType enumerates the cash-affecting event kinds in the safe ledger.
type EntryType string

const (
	EntryOpening EntryType = "opening"
	EntryInflow  EntryType = "inflow"
	EntryOutflow EntryType = "outflow"
)

// AdjustmentType is the direction of a quantity-only inventory adjustment.
type AdjustmentType string

const (
	AdjustmentIncrease AdjustmentType = "increase"
	AdjustmentDecrease AdjustmentType = "decrease"
)

// Market is the unit of isolation: every computation and every lock is
// scoped to one market. Balances of its safe ledger are expressed in
// BaseCurrency.
type Market struct {
	ID           uuid.UUID
	Name         string
	BaseCurrency string
	Policy       Policy
	CreatedAt    time.Time
}

// Company is a trading partner. Its statement and balance are expressed in
// its own Currency, never in the market base currency.
type Company struct {
	ID       uuid.UUID
	MarketID uuid.UUID
	Name     string
	Category Category
	Currency string
	Metadata meta.Metadata `json:"metadata,omitempty"`
	Active   bool
}

// Item is a traded good. Weight drives the weight half of the landed-cost
// formula.
type Item struct {
	ID         uuid.UUID
	MarketID   uuid.UUID
	SupplierID uuid.UUID // uuid.Nil for legacy items without a supplier link
	Code       string
	Name       string
	Weight     decimal.Decimal
	Grade      string
}

// Expense is one of the up-to-three shared expenses on a purchase container,
// denominated in its own currency with a rate to the market base currency.
type Expense struct {
	Amount   decimal.Decimal
	Currency string
	Rate     decimal.Decimal
}

// IsSet reports whether the expense carries a positive amount. Zero-amount
// expenses contribute nothing to landed cost or counterparty balances.
func (e Expense) IsSet() bool { return e.Amount.IsPos() }

// PurchaseContainer groups the purchase lines bought together and the shared
// expenses spread over them. Currency is the supplier currency; Rate converts
// one unit of it into base currency.
type PurchaseContainer struct {
	ID         uuid.UUID
	MarketID   uuid.UUID
	Number     string
	SupplierID uuid.UUID
	Currency   string
	Rate       decimal.Decimal
	Date       time.Time
	// SupplierExpense is billed by the supplier itself and always follows the
	// container currency on statements.
	SupplierExpense Expense
	// ServiceExpense is billed by a separate service company (freight,
	// clearing). ServiceCompanyID links the counterparty.
	ServiceExpense   Expense
	ServiceCompanyID uuid.UUID
	// CashExpense is settled from the safe at purchase time.
	CashExpense Expense
	Notes       string
	CreatedAt   time.Time
	Lines       []PurchaseLine
}

// TotalAmount is the sum of line totals in container currency. It excludes
// all three expenses; the supplier expense is reported separately on
// statements.
func (c PurchaseContainer) TotalAmount() decimal.Decimal {
	total := decimal.MustNew(0, 0)
	for _, ln := range c.Lines {
		if v, err := total.Add(ln.Total); err == nil {
			total = v
		}
	}
	return total
}

// PurchaseLine is one item position inside a container. Each line spawns
// exactly one inventory batch.
type PurchaseLine struct {
	ID          uuid.UUID
	ContainerID uuid.UUID
	ItemID      uuid.UUID
	Quantity    decimal.Decimal
	UnitPrice   decimal.Decimal
	Total       decimal.Decimal
}

// SaleStatus is derived from paid vs total amounts.
type SaleStatus string

const (
	SaleStatusPaid    SaleStatus = "paid"
	SaleStatusPartial SaleStatus = "partial"
	SaleStatusUnpaid  SaleStatus = "unpaid"
)

// Sale is an outgoing invoice. Seq is assigned by the store in insertion
// order and breaks date ties during chronological replays.
type Sale struct {
	ID            uuid.UUID
	Seq           int64
	MarketID      uuid.UUID
	InvoiceNumber string
	CustomerID    uuid.UUID
	SupplierID    uuid.UUID // optional origin supplier, uuid.Nil when unset
	Date          time.Time
	Total         decimal.Decimal
	Paid          decimal.Decimal
	Settlement    Settlement
	Notes         string
	CreatedAt     time.Time
	Lines         []SaleLine
}

// Status derives the payment status from the paid amount.
func (s Sale) Status() SaleStatus {
	switch {
	case s.Paid.Cmp(s.Total) >= 0:
		return SaleStatusPaid
	case s.Paid.IsPos():
		return SaleStatusPartial
	default:
		return SaleStatusUnpaid
	}
}

// Balance is the outstanding receivable on the sale.
func (s Sale) Balance() decimal.Decimal {
	if v, err := s.Total.Sub(s.Paid); err == nil {
		return v
	}
	return decimal.MustNew(0, 0)
}

// SaleLine is one item position on a sale.
type SaleLine struct {
	ID        uuid.UUID
	SaleID    uuid.UUID
	ItemID    uuid.UUID
	Quantity  decimal.Decimal
	UnitPrice decimal.Decimal
	Total     decimal.Decimal
}

// Payment moves money between the business and a company. BaseAmount is the
// exact base-currency value captured when the payment was recorded; it is
// never re-derived from Amount and Rate afterwards.
type Payment struct {
	ID         uuid.UUID
	MarketID   uuid.UUID
	CompanyID  uuid.UUID
	SaleID     uuid.UUID // uuid.Nil when not linked to a sale
	Direction  Direction
	Amount     decimal.Decimal
	Currency   string
	Rate       decimal.Decimal
	BaseAmount decimal.Decimal
	Date       time.Time
	Loan       bool
	Notes      string
	CreatedAt  time.Time
}

// GeneralExpense is an operating expense settled from the safe.
type GeneralExpense struct {
	ID          uuid.UUID
	MarketID    uuid.UUID
	Date        time.Time
	Description string
	Category    string
	Amount      decimal.Decimal
	Currency    string
	Rate        decimal.Decimal
	CreatedAt   time.Time
}

// Batch is the inventory lot created from one purchase line. UnitPrice,
// COGPerUnit and CostPerUnit are denominated in the container currency;
// conversion to base currency happens at allocation time using Rate, so a
// later rate correction on the container cannot corrupt already-costed
// sales. AvailableQty only decreases, except when a backfill resets it to
// OriginalQty.
type Batch struct {
	ID             uuid.UUID
	Seq            int64
	MarketID       uuid.UUID
	ItemID         uuid.UUID
	PurchaseLineID uuid.UUID
	ContainerID    uuid.UUID
	PurchaseDate   time.Time
	OriginalQty    decimal.Decimal
	AvailableQty   decimal.Decimal
	UnitPrice      decimal.Decimal
	COGPerUnit     decimal.Decimal
	CostPerUnit    decimal.Decimal
	Currency       string
	Rate           decimal.Decimal
}

// Allocation links a sale line to the batch that funded it. CostPerUnit and
// TotalCost are in base currency, fixed at allocation time. Allocations are
// immutable once created; a backfill deletes and regenerates them en masse.
type Allocation struct {
	ID          uuid.UUID
	SaleLineID  uuid.UUID
	BatchID     uuid.UUID
	Quantity    decimal.Decimal
	CostPerUnit decimal.Decimal
	TotalCost   decimal.Decimal
}

// SafeEntry is one row of a market's cash ledger. BaseAmount is the exact
// value supplied by the originating event; BalanceAfter is derived and
// rewritten by full chronological replay. Ordering key is (Date, Seq)
// ascending with Seq assigned by the store at insertion.
type SafeEntry struct {
	ID           uuid.UUID
	Seq          int64
	MarketID     uuid.UUID
	Type         EntryType
	Amount       decimal.Decimal
	Currency     string
	Rate         decimal.Decimal
	BaseAmount   decimal.Decimal
	Date         time.Time
	Description  string
	PaymentID    uuid.UUID
	SaleID       uuid.UUID
	ExpenseID    uuid.UUID
	BalanceAfter decimal.Decimal
	Metadata     meta.Metadata `json:"metadata,omitempty"`
	CreatedAt    time.Time
}

// SourceLinked reports whether the entry originates from another record and
// therefore cannot be edited or deleted through the ledger directly.
func (e SafeEntry) SourceLinked() bool {
	return e.PaymentID != uuid.Nil || e.SaleID != uuid.Nil || e.ExpenseID != uuid.Nil
}

// InventoryAdjustment corrects reported stock quantity without touching
// costing: it never creates batches or allocations.
type InventoryAdjustment struct {
	ID        uuid.UUID
	MarketID  uuid.UUID
	ItemID    uuid.UUID
	Type      AdjustmentType
	Quantity  decimal.Decimal
	Date      time.Time
	Reason    string
	Notes     string
	CreatedAt time.Time
}

// SignedQuantity returns the adjustment quantity with its sign applied.
func (a InventoryAdjustment) SignedQuantity() decimal.Decimal {
	if a.Type == AdjustmentDecrease {
		return a.Quantity.Neg()
	}
	return a.Quantity
}
