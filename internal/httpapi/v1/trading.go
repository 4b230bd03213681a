package v1

import (
	"net/http"

	chi "github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/tinoosan/marketbooks/internal/books"
	"github.com/tinoosan/marketbooks/internal/service/trading"
)

func (s *Server) postPurchase(w http.ResponseWriter, r *http.Request) {
	marketID, ok := marketIDParam(w, r)
	if !ok {
		return
	}
	in, ok := r.Context().Value(ctxKeyPostPurchase).(trading.PurchaseInput)
	if !ok {
		writeErr(w, http.StatusInternalServerError, "request not validated", "")
		return
	}
	res, err := s.trade.CreatePurchase(r.Context(), marketID, in)
	if err != nil {
		writeServiceErr(w, err)
		return
	}
	toJSON(w, http.StatusCreated, toPurchaseResponse(res))
}

func (s *Server) listPurchases(w http.ResponseWriter, r *http.Request) {
	marketID, ok := marketIDParam(w, r)
	if !ok {
		return
	}
	containers, err := s.reader.Containers(r.Context(), marketID)
	if err != nil {
		writeServiceErr(w, err)
		return
	}
	out := make([]containerResponse, 0, len(containers))
	for _, c := range containers {
		out = append(out, toContainerResponse(c))
	}
	toJSON(w, http.StatusOK, out)
}

func (s *Server) postSale(w http.ResponseWriter, r *http.Request) {
	marketID, ok := marketIDParam(w, r)
	if !ok {
		return
	}
	in, ok := r.Context().Value(ctxKeyPostSale).(trading.SaleInput)
	if !ok {
		writeErr(w, http.StatusInternalServerError, "request not validated", "")
		return
	}
	res, err := s.trade.CreateSale(r.Context(), marketID, in)
	if err != nil {
		writeServiceErr(w, err)
		return
	}
	toJSON(w, http.StatusCreated, toSaleResultResponse(res))
}

func (s *Server) listSales(w http.ResponseWriter, r *http.Request) {
	marketID, ok := marketIDParam(w, r)
	if !ok {
		return
	}
	sales, err := s.reader.Sales(r.Context(), marketID)
	if err != nil {
		writeServiceErr(w, err)
		return
	}
	out := make([]saleResponse, 0, len(sales))
	for _, sale := range sales {
		out = append(out, toSaleResponse(sale))
	}
	toJSON(w, http.StatusOK, out)
}

func (s *Server) getSale(w http.ResponseWriter, r *http.Request) {
	marketID, ok := marketIDParam(w, r)
	if !ok {
		return
	}
	saleID, err := uuid.Parse(chi.URLParam(r, "saleID"))
	if err != nil {
		badRequest(w, "invalid sale id")
		return
	}
	sale, err := s.reader.Sale(r.Context(), marketID, saleID)
	if err != nil {
		writeServiceErr(w, err)
		return
	}
	out := toSaleResponse(sale)
	allocs, err := s.reader.AllocationsForSale(r.Context(), marketID, saleID)
	if err != nil {
		writeServiceErr(w, err)
		return
	}
	for _, a := range allocs {
		out.Allocations = append(out.Allocations, toAllocationResponse(a))
	}
	toJSON(w, http.StatusOK, out)
}

func (s *Server) postPayment(w http.ResponseWriter, r *http.Request) {
	marketID, ok := marketIDParam(w, r)
	if !ok {
		return
	}
	var req paymentRequest
	if !decodeStrict(w, r, &req) {
		return
	}
	switch books.Direction(req.Direction) {
	case books.DirectionIn, books.DirectionOut:
	default:
		badRequest(w, "direction must be in or out")
		return
	}
	in, err := req.toInput()
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	p, err := s.trade.CreatePayment(r.Context(), marketID, in)
	if err != nil {
		writeServiceErr(w, err)
		return
	}
	toJSON(w, http.StatusCreated, toPaymentResponse(p))
}

// deletePayment reverses the payment's effect on its sale and removes the
// linked safe entry along with the payment itself.
func (s *Server) deletePayment(w http.ResponseWriter, r *http.Request) {
	marketID, ok := marketIDParam(w, r)
	if !ok {
		return
	}
	paymentID, err := uuid.Parse(chi.URLParam(r, "paymentID"))
	if err != nil {
		badRequest(w, "invalid payment id")
		return
	}
	if err := s.trade.DeletePayment(r.Context(), marketID, paymentID); err != nil {
		writeServiceErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) postExpense(w http.ResponseWriter, r *http.Request) {
	marketID, ok := marketIDParam(w, r)
	if !ok {
		return
	}
	var req generalExpenseRequest
	if !decodeStrict(w, r, &req) {
		return
	}
	amount, err := parseDec("amount", req.Amount)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	rate, err := parseDecOpt("rate", req.Rate)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	e, err := s.trade.CreateExpense(r.Context(), marketID, trading.GeneralExpenseInput{
		Date:        req.Date,
		Description: req.Description,
		Category:    req.Category,
		Amount:      amount,
		Currency:    req.Currency,
		Rate:        rate,
	})
	if err != nil {
		writeServiceErr(w, err)
		return
	}
	toJSON(w, http.StatusCreated, toGeneralExpenseResponse(e))
}

func (s *Server) postAdjustment(w http.ResponseWriter, r *http.Request) {
	marketID, ok := marketIDParam(w, r)
	if !ok {
		return
	}
	var req adjustmentRequest
	if !decodeStrict(w, r, &req) {
		return
	}
	qty, err := parseDec("quantity", req.Quantity)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	a, err := s.trade.CreateAdjustment(r.Context(), marketID, trading.AdjustmentInput{
		ItemID:   req.ItemID,
		Type:     books.AdjustmentType(req.Type),
		Quantity: qty,
		Date:     req.Date,
		Reason:   req.Reason,
		Notes:    req.Notes,
	})
	if err != nil {
		writeServiceErr(w, err)
		return
	}
	toJSON(w, http.StatusCreated, toAdjustmentResponse(a))
}
