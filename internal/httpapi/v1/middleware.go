package v1

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/tinoosan/marketbooks/internal/books"
	"github.com/tinoosan/marketbooks/internal/meta"
	"github.com/tinoosan/marketbooks/internal/service/safe"
)

type ctxKey string

const (
	ctxKeyPostPurchase ctxKey = "validatedPostPurchase"
	ctxKeyPostSale     ctxKey = "validatedPostSale"
	ctxKeyPostEntry    ctxKey = "validatedPostEntry"
)

func decodeStrict(w http.ResponseWriter, r *http.Request, dst any) bool {
	if !requireJSON(w, r) {
		return false
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		toJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON: " + err.Error()})
		return false
	}
	return true
}

// validatePostPurchase parses the purchase body, checks the cheap shape
// invariants and stashes the service input in the request context. Business
// rules stay in the trading service.
func (s *Server) validatePostPurchase() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var req purchaseRequest
			if !decodeStrict(w, r, &req) {
				return
			}
			if req.Number == "" {
				badRequest(w, "number is required")
				return
			}
			if req.SupplierID == uuid.Nil {
				badRequest(w, "supplier_id is required")
				return
			}
			if len(req.Lines) == 0 {
				badRequest(w, "at least one line is required")
				return
			}
			in, err := req.toInput()
			if err != nil {
				badRequest(w, err.Error())
				return
			}
			ctx := context.WithValue(r.Context(), ctxKeyPostPurchase, in)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// validatePostSale parses the sale body and stashes the service input.
func (s *Server) validatePostSale() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var req saleRequest
			if !decodeStrict(w, r, &req) {
				return
			}
			if req.CustomerID == uuid.Nil {
				badRequest(w, "customer_id is required")
				return
			}
			if len(req.Lines) == 0 {
				badRequest(w, "at least one line is required")
				return
			}
			switch books.Settlement(req.Settlement) {
			case books.SettlementCash, books.SettlementCredit:
			default:
				badRequest(w, "settlement must be cash or credit")
				return
			}
			in, err := req.toInput()
			if err != nil {
				badRequest(w, err.Error())
				return
			}
			ctx := context.WithValue(r.Context(), ctxKeyPostSale, in)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// validatePostEntry parses a manual safe entry body.
func (s *Server) validatePostEntry() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var req safeEntryRequest
			if !decodeStrict(w, r, &req) {
				return
			}
			if req.Metadata != nil {
				if err := meta.New(req.Metadata).Validate(); err != nil {
					writeErr(w, http.StatusUnprocessableEntity, "validation_error", "validation_error")
					return
				}
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
			in := safe.EntryInput{
				Type:        books.EntryType(req.Type),
				Amount:      amount,
				Currency:    req.Currency,
				Rate:        rate,
				Date:        req.Date,
				Description: req.Description,
				Metadata:    meta.New(req.Metadata),
			}
			ctx := context.WithValue(r.Context(), ctxKeyPostEntry, in)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
