package v1

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/govalues/decimal"

	"github.com/tinoosan/marketbooks/internal/books"
	"github.com/tinoosan/marketbooks/internal/service/inventory"
	"github.com/tinoosan/marketbooks/internal/service/reports"
	"github.com/tinoosan/marketbooks/internal/service/safe"
	"github.com/tinoosan/marketbooks/internal/service/statement"
	"github.com/tinoosan/marketbooks/internal/service/trading"
)

// Monetary fields travel as decimal strings ("12.50") to keep precision out
// of float64 hands.

func parseDec(field, raw string) (decimal.Decimal, error) {
	if raw == "" {
		return decimal.Decimal{}, fmt.Errorf("%s is required", field)
	}
	d, err := decimal.Parse(raw)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("invalid %s: %v", field, err)
	}
	return d, nil
}

// parseDecOpt treats an empty string as zero.
func parseDecOpt(field, raw string) (decimal.Decimal, error) {
	if raw == "" {
		return decimal.MustNew(0, 0), nil
	}
	return parseDec(field, raw)
}

// Markets

type marketRequest struct {
	Name         string `json:"name"`
	BaseCurrency string `json:"base_currency"`
	Policy       string `json:"policy,omitempty"`
}

type marketPatchRequest struct {
	Name string `json:"name"`
}

type marketResponse struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	BaseCurrency string    `json:"base_currency"`
	Policy       string    `json:"policy"`
	CreatedAt    time.Time `json:"created_at"`
}

func toMarketResponse(m books.Market) marketResponse {
	return marketResponse{ID: m.ID, Name: m.Name, BaseCurrency: m.BaseCurrency, Policy: string(m.Policy), CreatedAt: m.CreatedAt}
}

type costingPolicyRequest struct {
	Policy string `json:"policy"`
}

type backfillResponse struct {
	Batches     int               `json:"batches"`
	Allocations int               `json:"allocations"`
	Warnings    []warningResponse `json:"warnings,omitempty"`
}

type warningResponse struct {
	SaleID        uuid.UUID `json:"sale_id"`
	InvoiceNumber string    `json:"invoice_number"`
	ItemID        uuid.UUID `json:"item_id"`
	Shortfall     string    `json:"shortfall"`
}

func toBackfillResponse(res inventory.BackfillResult) backfillResponse {
	out := backfillResponse{Batches: len(res.Batches), Allocations: len(res.Allocations)}
	for _, w := range res.Warnings {
		out.Warnings = append(out.Warnings, warningResponse{
			SaleID: w.SaleID, InvoiceNumber: w.InvoiceNumber, ItemID: w.ItemID, Shortfall: w.Shortfall.String(),
		})
	}
	return out
}

// Companies

type companyRequest struct {
	Name     string            `json:"name"`
	Category string            `json:"category"`
	Currency string            `json:"currency"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

type companyPatchRequest struct {
	Name     *string           `json:"name,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
	Active   *bool             `json:"active,omitempty"`
}

type companyResponse struct {
	ID       uuid.UUID         `json:"id"`
	MarketID uuid.UUID         `json:"market_id"`
	Name     string            `json:"name"`
	Category string            `json:"category"`
	Currency string            `json:"currency"`
	Metadata map[string]string `json:"metadata,omitempty"`
	Active   bool              `json:"active"`
}

func toCompanyResponse(c books.Company) companyResponse {
	return companyResponse{
		ID: c.ID, MarketID: c.MarketID, Name: c.Name, Category: string(c.Category),
		Currency: c.Currency, Metadata: c.Metadata, Active: c.Active,
	}
}

type balanceResponse struct {
	CompanyID uuid.UUID  `json:"company_id"`
	Currency  string     `json:"currency"`
	Balance   string     `json:"balance"`
	AsOf      *time.Time `json:"as_of,omitempty"`
}

type statementRowResponse struct {
	Date        time.Time `json:"date"`
	Kind        string    `json:"kind"`
	Reference   string    `json:"reference,omitempty"`
	Description string    `json:"description"`
	Debit       string    `json:"debit"`
	Credit      string    `json:"credit"`
	Balance     string    `json:"balance"`
}

type statementResponse struct {
	CompanyID uuid.UUID              `json:"company_id"`
	Currency  string                 `json:"currency"`
	Opening   string                 `json:"opening"`
	Rows      []statementRowResponse `json:"rows"`
	Closing   string                 `json:"closing"`
}

func toStatementResponse(st statement.Statement) statementResponse {
	out := statementResponse{
		CompanyID: st.Company.ID,
		Currency:  st.Company.Currency,
		Opening:   st.Opening.String(),
		Closing:   st.Closing.String(),
		Rows:      make([]statementRowResponse, 0, len(st.Rows)),
	}
	for _, r := range st.Rows {
		out.Rows = append(out.Rows, statementRowResponse{
			Date: r.Date, Kind: string(r.Kind), Reference: r.Reference, Description: r.Description,
			Debit: r.Debit.String(), Credit: r.Credit.String(), Balance: r.Balance.String(),
		})
	}
	return out
}

// Items

type itemRequest struct {
	SupplierID uuid.UUID `json:"supplier_id,omitempty"`
	Code       string    `json:"code"`
	Name       string    `json:"name"`
	Weight     string    `json:"weight,omitempty"`
	Grade      string    `json:"grade,omitempty"`
}

type itemPatchRequest struct {
	Name   *string `json:"name,omitempty"`
	Weight *string `json:"weight,omitempty"`
	Grade  *string `json:"grade,omitempty"`
}

type itemResponse struct {
	ID         uuid.UUID `json:"id"`
	MarketID   uuid.UUID `json:"market_id"`
	SupplierID uuid.UUID `json:"supplier_id,omitempty"`
	Code       string    `json:"code"`
	Name       string    `json:"name"`
	Weight     string    `json:"weight"`
	Grade      string    `json:"grade,omitempty"`
}

func toItemResponse(it books.Item) itemResponse {
	return itemResponse{
		ID: it.ID, MarketID: it.MarketID, SupplierID: it.SupplierID,
		Code: it.Code, Name: it.Name, Weight: it.Weight.String(), Grade: it.Grade,
	}
}

// Purchases

type expenseRequest struct {
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
	Rate     string `json:"rate,omitempty"`
}

func (e *expenseRequest) toInput(label string) (trading.ExpenseInput, error) {
	if e == nil {
		return trading.ExpenseInput{Amount: decimal.MustNew(0, 0)}, nil
	}
	amount, err := parseDec(label+" amount", e.Amount)
	if err != nil {
		return trading.ExpenseInput{}, err
	}
	rate, err := parseDecOpt(label+" rate", e.Rate)
	if err != nil {
		return trading.ExpenseInput{}, err
	}
	return trading.ExpenseInput{Amount: amount, Currency: e.Currency, Rate: rate}, nil
}

type purchaseLineRequest struct {
	ItemID    uuid.UUID `json:"item_id"`
	Quantity  string    `json:"quantity"`
	UnitPrice string    `json:"unit_price"`
}

type purchaseRequest struct {
	Number           string                `json:"number"`
	SupplierID       uuid.UUID             `json:"supplier_id"`
	Currency         string                `json:"currency"`
	Rate             string                `json:"rate"`
	Date             time.Time             `json:"date"`
	SupplierExpense  *expenseRequest       `json:"supplier_expense,omitempty"`
	ServiceExpense   *expenseRequest       `json:"service_expense,omitempty"`
	ServiceCompanyID uuid.UUID             `json:"service_company_id,omitempty"`
	CashExpense      *expenseRequest       `json:"cash_expense,omitempty"`
	Notes            string                `json:"notes,omitempty"`
	Lines            []purchaseLineRequest `json:"lines"`
}

func (req purchaseRequest) toInput() (trading.PurchaseInput, error) {
	rate, err := parseDec("rate", req.Rate)
	if err != nil {
		return trading.PurchaseInput{}, err
	}
	in := trading.PurchaseInput{
		Number:           req.Number,
		SupplierID:       req.SupplierID,
		Currency:         req.Currency,
		Rate:             rate,
		Date:             req.Date,
		ServiceCompanyID: req.ServiceCompanyID,
		Notes:            req.Notes,
	}
	if in.SupplierExpense, err = req.SupplierExpense.toInput("supplier_expense"); err != nil {
		return trading.PurchaseInput{}, err
	}
	if in.ServiceExpense, err = req.ServiceExpense.toInput("service_expense"); err != nil {
		return trading.PurchaseInput{}, err
	}
	if in.CashExpense, err = req.CashExpense.toInput("cash_expense"); err != nil {
		return trading.PurchaseInput{}, err
	}
	for i, ln := range req.Lines {
		qty, err := parseDec(fmt.Sprintf("lines[%d].quantity", i), ln.Quantity)
		if err != nil {
			return trading.PurchaseInput{}, err
		}
		price, err := parseDec(fmt.Sprintf("lines[%d].unit_price", i), ln.UnitPrice)
		if err != nil {
			return trading.PurchaseInput{}, err
		}
		in.Lines = append(in.Lines, trading.PurchaseLineInput{ItemID: ln.ItemID, Quantity: qty, UnitPrice: price})
	}
	return in, nil
}

type purchaseLineResponse struct {
	ID        uuid.UUID `json:"id"`
	ItemID    uuid.UUID `json:"item_id"`
	Quantity  string    `json:"quantity"`
	UnitPrice string    `json:"unit_price"`
	Total     string    `json:"total"`
}

type expenseResponse struct {
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
	Rate     string `json:"rate"`
}

type containerResponse struct {
	ID               uuid.UUID              `json:"id"`
	Number           string                 `json:"number"`
	SupplierID       uuid.UUID              `json:"supplier_id"`
	Currency         string                 `json:"currency"`
	Rate             string                 `json:"rate"`
	Date             time.Time              `json:"date"`
	SupplierExpense  *expenseResponse       `json:"supplier_expense,omitempty"`
	ServiceExpense   *expenseResponse       `json:"service_expense,omitempty"`
	ServiceCompanyID uuid.UUID              `json:"service_company_id,omitempty"`
	CashExpense      *expenseResponse       `json:"cash_expense,omitempty"`
	Notes            string                 `json:"notes,omitempty"`
	Total            string                 `json:"total"`
	Lines            []purchaseLineResponse `json:"lines"`
}

func toExpenseResponse(e books.Expense) *expenseResponse {
	if !e.IsSet() {
		return nil
	}
	return &expenseResponse{Amount: e.Amount.String(), Currency: e.Currency, Rate: e.Rate.String()}
}

func toContainerResponse(c books.PurchaseContainer) containerResponse {
	out := containerResponse{
		ID: c.ID, Number: c.Number, SupplierID: c.SupplierID, Currency: c.Currency,
		Rate: c.Rate.String(), Date: c.Date,
		SupplierExpense: toExpenseResponse(c.SupplierExpense),
		ServiceExpense:  toExpenseResponse(c.ServiceExpense), ServiceCompanyID: c.ServiceCompanyID,
		CashExpense: toExpenseResponse(c.CashExpense),
		Notes:       c.Notes, Total: c.TotalAmount().String(),
		Lines: make([]purchaseLineResponse, 0, len(c.Lines)),
	}
	for _, ln := range c.Lines {
		out.Lines = append(out.Lines, purchaseLineResponse{
			ID: ln.ID, ItemID: ln.ItemID,
			Quantity: ln.Quantity.String(), UnitPrice: ln.UnitPrice.String(), Total: ln.Total.String(),
		})
	}
	return out
}

type batchResponse struct {
	ID           uuid.UUID `json:"id"`
	ItemID       uuid.UUID `json:"item_id"`
	PurchaseDate time.Time `json:"purchase_date"`
	OriginalQty  string    `json:"original_qty"`
	AvailableQty string    `json:"available_qty"`
	UnitPrice    string    `json:"unit_price"`
	COGPerUnit   string    `json:"cog_per_unit"`
	CostPerUnit  string    `json:"cost_per_unit"`
	Currency     string    `json:"currency"`
	Rate         string    `json:"rate"`
}

func toBatchResponse(b books.Batch) batchResponse {
	return batchResponse{
		ID: b.ID, ItemID: b.ItemID, PurchaseDate: b.PurchaseDate,
		OriginalQty: b.OriginalQty.String(), AvailableQty: b.AvailableQty.String(),
		UnitPrice: b.UnitPrice.String(), COGPerUnit: b.COGPerUnit.String(), CostPerUnit: b.CostPerUnit.String(),
		Currency: b.Currency, Rate: b.Rate.String(),
	}
}

type purchaseResponse struct {
	Container containerResponse `json:"container"`
	Batches   []batchResponse   `json:"batches"`
}

func toPurchaseResponse(res trading.PurchaseResult) purchaseResponse {
	out := purchaseResponse{Container: toContainerResponse(res.Container)}
	for _, b := range res.Batches {
		out.Batches = append(out.Batches, toBatchResponse(b))
	}
	return out
}

// Sales

type saleLineRequest struct {
	ItemID    uuid.UUID `json:"item_id"`
	Quantity  string    `json:"quantity"`
	UnitPrice string    `json:"unit_price"`
}

type saleRequest struct {
	CustomerID uuid.UUID         `json:"customer_id"`
	SupplierID uuid.UUID         `json:"supplier_id,omitempty"`
	Date       time.Time         `json:"date"`
	Settlement string            `json:"settlement"`
	PaidAmount string            `json:"paid_amount,omitempty"`
	Notes      string            `json:"notes,omitempty"`
	Lines      []saleLineRequest `json:"lines"`
}

func (req saleRequest) toInput() (trading.SaleInput, error) {
	paid, err := parseDecOpt("paid_amount", req.PaidAmount)
	if err != nil {
		return trading.SaleInput{}, err
	}
	in := trading.SaleInput{
		CustomerID: req.CustomerID,
		SupplierID: req.SupplierID,
		Date:       req.Date,
		Settlement: books.Settlement(req.Settlement),
		PaidAmount: paid,
		Notes:      req.Notes,
	}
	for i, ln := range req.Lines {
		qty, err := parseDec(fmt.Sprintf("lines[%d].quantity", i), ln.Quantity)
		if err != nil {
			return trading.SaleInput{}, err
		}
		price, err := parseDec(fmt.Sprintf("lines[%d].unit_price", i), ln.UnitPrice)
		if err != nil {
			return trading.SaleInput{}, err
		}
		in.Lines = append(in.Lines, trading.SaleLineInput{ItemID: ln.ItemID, Quantity: qty, UnitPrice: price})
	}
	return in, nil
}

type saleLineResponse struct {
	ID        uuid.UUID `json:"id"`
	ItemID    uuid.UUID `json:"item_id"`
	Quantity  string    `json:"quantity"`
	UnitPrice string    `json:"unit_price"`
	Total     string    `json:"total"`
}

type allocationResponse struct {
	ID          uuid.UUID `json:"id"`
	SaleLineID  uuid.UUID `json:"sale_line_id"`
	BatchID     uuid.UUID `json:"batch_id"`
	Quantity    string    `json:"quantity"`
	CostPerUnit string    `json:"cost_per_unit"`
	TotalCost   string    `json:"total_cost"`
}

func toAllocationResponse(a books.Allocation) allocationResponse {
	return allocationResponse{
		ID: a.ID, SaleLineID: a.SaleLineID, BatchID: a.BatchID,
		Quantity: a.Quantity.String(), CostPerUnit: a.CostPerUnit.String(), TotalCost: a.TotalCost.String(),
	}
}

type shortfallResponse struct {
	ItemID    uuid.UUID `json:"item_id"`
	Requested string    `json:"requested"`
	Available string    `json:"available"`
}

type saleResponse struct {
	ID            uuid.UUID            `json:"id"`
	InvoiceNumber string               `json:"invoice_number"`
	CustomerID    uuid.UUID            `json:"customer_id"`
	SupplierID    uuid.UUID            `json:"supplier_id,omitempty"`
	Date          time.Time            `json:"date"`
	Total         string               `json:"total"`
	Paid          string               `json:"paid"`
	Status        string               `json:"status"`
	Settlement    string               `json:"settlement"`
	Notes         string               `json:"notes,omitempty"`
	Lines         []saleLineResponse   `json:"lines"`
	Outcome       string               `json:"outcome,omitempty"`
	COGSTotal     string               `json:"cogs_total,omitempty"`
	Allocations   []allocationResponse `json:"allocations,omitempty"`
	Shortfalls    []shortfallResponse  `json:"shortfalls,omitempty"`
}

func toSaleResponse(sale books.Sale) saleResponse {
	out := saleResponse{
		ID: sale.ID, InvoiceNumber: sale.InvoiceNumber, CustomerID: sale.CustomerID,
		SupplierID: sale.SupplierID, Date: sale.Date,
		Total: sale.Total.String(), Paid: sale.Paid.String(),
		Status: string(sale.Status()), Settlement: string(sale.Settlement), Notes: sale.Notes,
		Lines: make([]saleLineResponse, 0, len(sale.Lines)),
	}
	for _, ln := range sale.Lines {
		out.Lines = append(out.Lines, saleLineResponse{
			ID: ln.ID, ItemID: ln.ItemID,
			Quantity: ln.Quantity.String(), UnitPrice: ln.UnitPrice.String(), Total: ln.Total.String(),
		})
	}
	return out
}

func toSaleResultResponse(res trading.SaleResult) saleResponse {
	out := toSaleResponse(res.Sale)
	out.Outcome = string(res.Outcome)
	out.COGSTotal = res.COGSTotal.String()
	for _, a := range res.Allocations {
		out.Allocations = append(out.Allocations, toAllocationResponse(a))
	}
	for _, sh := range res.Shortfalls {
		out.Shortfalls = append(out.Shortfalls, shortfallResponse{
			ItemID: sh.ItemID, Requested: sh.Requested, Available: sh.Available,
		})
	}
	return out
}

// Payments

type paymentRequest struct {
	CompanyID  uuid.UUID `json:"company_id"`
	SaleID     uuid.UUID `json:"sale_id,omitempty"`
	Direction  string    `json:"direction"`
	Amount     string    `json:"amount"`
	Currency   string    `json:"currency"`
	Rate       string    `json:"rate,omitempty"`
	BaseAmount string    `json:"base_amount,omitempty"`
	Date       time.Time `json:"date"`
	Loan       bool      `json:"loan,omitempty"`
	Notes      string    `json:"notes,omitempty"`
}

func (req paymentRequest) toInput() (trading.PaymentInput, error) {
	amount, err := parseDec("amount", req.Amount)
	if err != nil {
		return trading.PaymentInput{}, err
	}
	rate, err := parseDecOpt("rate", req.Rate)
	if err != nil {
		return trading.PaymentInput{}, err
	}
	base, err := parseDecOpt("base_amount", req.BaseAmount)
	if err != nil {
		return trading.PaymentInput{}, err
	}
	return trading.PaymentInput{
		CompanyID: req.CompanyID, SaleID: req.SaleID, Direction: books.Direction(req.Direction),
		Amount: amount, Currency: req.Currency, Rate: rate, BaseAmount: base,
		Date: req.Date, Loan: req.Loan, Notes: req.Notes,
	}, nil
}

type paymentResponse struct {
	ID         uuid.UUID `json:"id"`
	CompanyID  uuid.UUID `json:"company_id"`
	SaleID     uuid.UUID `json:"sale_id,omitempty"`
	Direction  string    `json:"direction"`
	Amount     string    `json:"amount"`
	Currency   string    `json:"currency"`
	Rate       string    `json:"rate"`
	BaseAmount string    `json:"base_amount"`
	Date       time.Time `json:"date"`
	Loan       bool      `json:"loan"`
	Notes      string    `json:"notes,omitempty"`
}

func toPaymentResponse(p books.Payment) paymentResponse {
	return paymentResponse{
		ID: p.ID, CompanyID: p.CompanyID, SaleID: p.SaleID, Direction: string(p.Direction),
		Amount: p.Amount.String(), Currency: p.Currency, Rate: p.Rate.String(),
		BaseAmount: p.BaseAmount.String(), Date: p.Date, Loan: p.Loan, Notes: p.Notes,
	}
}

// General expenses and adjustments

type generalExpenseRequest struct {
	Date        time.Time `json:"date"`
	Description string    `json:"description"`
	Category    string    `json:"category"`
	Amount      string    `json:"amount"`
	Currency    string    `json:"currency"`
	Rate        string    `json:"rate,omitempty"`
}

type generalExpenseResponse struct {
	ID          uuid.UUID `json:"id"`
	Date        time.Time `json:"date"`
	Description string    `json:"description"`
	Category    string    `json:"category"`
	Amount      string    `json:"amount"`
	Currency    string    `json:"currency"`
	Rate        string    `json:"rate"`
}

func toGeneralExpenseResponse(e books.GeneralExpense) generalExpenseResponse {
	return generalExpenseResponse{
		ID: e.ID, Date: e.Date, Description: e.Description, Category: e.Category,
		Amount: e.Amount.String(), Currency: e.Currency, Rate: e.Rate.String(),
	}
}

type adjustmentRequest struct {
	ItemID   uuid.UUID `json:"item_id"`
	Type     string    `json:"type"`
	Quantity string    `json:"quantity"`
	Date     time.Time `json:"date"`
	Reason   string    `json:"reason"`
	Notes    string    `json:"notes,omitempty"`
}

type adjustmentResponse struct {
	ID       uuid.UUID `json:"id"`
	ItemID   uuid.UUID `json:"item_id"`
	Type     string    `json:"type"`
	Quantity string    `json:"quantity"`
	Date     time.Time `json:"date"`
	Reason   string    `json:"reason"`
	Notes    string    `json:"notes,omitempty"`
}

func toAdjustmentResponse(a books.InventoryAdjustment) adjustmentResponse {
	return adjustmentResponse{
		ID: a.ID, ItemID: a.ItemID, Type: string(a.Type), Quantity: a.Quantity.String(),
		Date: a.Date, Reason: a.Reason, Notes: a.Notes,
	}
}

// Safe ledger

type safeEntryRequest struct {
	Type        string            `json:"type"`
	Amount      string            `json:"amount"`
	Currency    string            `json:"currency"`
	Rate        string            `json:"rate,omitempty"`
	Date        time.Time         `json:"date"`
	Description string            `json:"description,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

type safeEntryPatchRequest struct {
	Amount      *string           `json:"amount,omitempty"`
	Currency    *string           `json:"currency,omitempty"`
	Rate        *string           `json:"rate,omitempty"`
	Date        *time.Time        `json:"date,omitempty"`
	Description *string           `json:"description,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

type safeEntryResponse struct {
	ID           uuid.UUID         `json:"id"`
	Type         string            `json:"type"`
	Amount       string            `json:"amount"`
	Currency     string            `json:"currency"`
	Rate         string            `json:"rate"`
	BaseAmount   string            `json:"base_amount"`
	Date         time.Time         `json:"date"`
	Description  string            `json:"description,omitempty"`
	PaymentID    uuid.UUID         `json:"payment_id,omitempty"`
	SaleID       uuid.UUID         `json:"sale_id,omitempty"`
	ExpenseID    uuid.UUID         `json:"expense_id,omitempty"`
	BalanceAfter string            `json:"balance_after"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

func toSafeEntryResponse(e books.SafeEntry) safeEntryResponse {
	return safeEntryResponse{
		ID: e.ID, Type: string(e.Type), Amount: e.Amount.String(), Currency: e.Currency,
		Rate: e.Rate.String(), BaseAmount: e.BaseAmount.String(), Date: e.Date,
		Description: e.Description, PaymentID: e.PaymentID, SaleID: e.SaleID, ExpenseID: e.ExpenseID,
		BalanceAfter: e.BalanceAfter.String(), Metadata: e.Metadata,
	}
}

type safeReportResponse struct {
	Opening  string              `json:"opening"`
	Inflows  string              `json:"inflows"`
	Outflows string              `json:"outflows"`
	Closing  string              `json:"closing"`
	Entries  []safeEntryResponse `json:"entries"`
}

func toSafeReportResponse(rep safe.Report) safeReportResponse {
	out := safeReportResponse{
		Opening: rep.Opening.String(), Inflows: rep.Inflows.String(),
		Outflows: rep.Outflows.String(), Closing: rep.Closing.String(),
		Entries: make([]safeEntryResponse, 0, len(rep.Entries)),
	}
	for _, e := range rep.Entries {
		out.Entries = append(out.Entries, toSafeEntryResponse(e))
	}
	return out
}

// Reports

type profitLossResponse struct {
	From        time.Time `json:"from"`
	To          time.Time `json:"to"`
	Revenue     string    `json:"revenue"`
	COGS        string    `json:"cogs"`
	GrossProfit string    `json:"gross_profit"`
	Expenses    string    `json:"expenses"`
	NetProfit   string    `json:"net_profit"`
}

func toProfitLossResponse(pl reports.ProfitLoss) profitLossResponse {
	return profitLossResponse{
		From: pl.From, To: pl.To,
		Revenue: pl.Revenue.String(), COGS: pl.COGS.String(), GrossProfit: pl.GrossProfit.String(),
		Expenses: pl.Expenses.String(), NetProfit: pl.NetProfit.String(),
	}
}

type stockLineResponse struct {
	ItemID   uuid.UUID `json:"item_id"`
	Code     string    `json:"code"`
	Name     string    `json:"name"`
	Quantity string    `json:"quantity"`
	Value    string    `json:"value"`
}

type stockReportResponse struct {
	AsOf       *time.Time          `json:"as_of,omitempty"`
	Lines      []stockLineResponse `json:"lines"`
	TotalValue string              `json:"total_value"`
}

func toStockReportResponse(rep reports.StockReport) stockReportResponse {
	out := stockReportResponse{AsOf: rep.AsOf, TotalValue: rep.TotalValue.String(), Lines: make([]stockLineResponse, 0, len(rep.Lines))}
	for _, ln := range rep.Lines {
		out.Lines = append(out.Lines, stockLineResponse{
			ItemID: ln.Item.ID, Code: ln.Item.Code, Name: ln.Item.Name,
			Quantity: ln.Quantity.String(), Value: ln.Value.String(),
		})
	}
	return out
}
