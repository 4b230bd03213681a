package v1

import (
	"net/http"
	"time"

	chi "github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/tinoosan/marketbooks/internal/books"
	"github.com/tinoosan/marketbooks/internal/meta"
	"github.com/tinoosan/marketbooks/internal/service/registry"
)

func companyIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "companyID"))
	if err != nil {
		badRequest(w, "invalid company id")
		return uuid.Nil, false
	}
	return id, true
}

// asOfQuery parses an optional as_of RFC3339 query param.
func asOfQuery(w http.ResponseWriter, r *http.Request) (*time.Time, bool) {
	raw := r.URL.Query().Get("as_of")
	if raw == "" {
		return nil, true
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		badRequest(w, "invalid as_of")
		return nil, false
	}
	tt := t.UTC()
	return &tt, true
}

// rangeQuery parses required from and to RFC3339 query params.
func rangeQuery(w http.ResponseWriter, r *http.Request) (time.Time, time.Time, bool) {
	fromRaw := r.URL.Query().Get("from")
	toRaw := r.URL.Query().Get("to")
	if fromRaw == "" || toRaw == "" {
		badRequest(w, "from and to are required")
		return time.Time{}, time.Time{}, false
	}
	from, err := time.Parse(time.RFC3339, fromRaw)
	if err != nil {
		badRequest(w, "invalid from")
		return time.Time{}, time.Time{}, false
	}
	to, err := time.Parse(time.RFC3339, toRaw)
	if err != nil {
		badRequest(w, "invalid to")
		return time.Time{}, time.Time{}, false
	}
	return from.UTC(), to.UTC(), true
}

func (s *Server) postCompany(w http.ResponseWriter, r *http.Request) {
	marketID, ok := marketIDParam(w, r)
	if !ok {
		return
	}
	var req companyRequest
	if !decodeStrict(w, r, &req) {
		return
	}
	c, err := s.reg.CreateCompany(r.Context(), marketID, registry.CompanyInput{
		Name:     req.Name,
		Category: books.Category(req.Category),
		Currency: req.Currency,
		Metadata: meta.New(req.Metadata),
	})
	if err != nil {
		writeServiceErr(w, err)
		return
	}
	toJSON(w, http.StatusCreated, toCompanyResponse(c))
}

func (s *Server) listCompanies(w http.ResponseWriter, r *http.Request) {
	marketID, ok := marketIDParam(w, r)
	if !ok {
		return
	}
	category := books.Category(r.URL.Query().Get("category"))
	companies, err := s.reg.Companies(r.Context(), marketID, category)
	if err != nil {
		writeServiceErr(w, err)
		return
	}
	out := make([]companyResponse, 0, len(companies))
	for _, c := range companies {
		out = append(out, toCompanyResponse(c))
	}
	toJSON(w, http.StatusOK, out)
}

func (s *Server) getCompany(w http.ResponseWriter, r *http.Request) {
	marketID, ok := marketIDParam(w, r)
	if !ok {
		return
	}
	id, ok := companyIDParam(w, r)
	if !ok {
		return
	}
	c, err := s.reg.Company(r.Context(), marketID, id)
	if err != nil {
		writeServiceErr(w, err)
		return
	}
	toJSON(w, http.StatusOK, toCompanyResponse(c))
}

func (s *Server) patchCompany(w http.ResponseWriter, r *http.Request) {
	marketID, ok := marketIDParam(w, r)
	if !ok {
		return
	}
	id, ok := companyIDParam(w, r)
	if !ok {
		return
	}
	var req companyPatchRequest
	if !decodeStrict(w, r, &req) {
		return
	}
	patch := registry.CompanyPatch{Name: req.Name, Active: req.Active}
	if req.Metadata != nil {
		patch.Metadata = meta.New(req.Metadata)
	}
	c, err := s.reg.UpdateCompany(r.Context(), marketID, id, patch)
	if err != nil {
		writeServiceErr(w, err)
		return
	}
	toJSON(w, http.StatusOK, toCompanyResponse(c))
}

// getCompanyBalance returns the signed balance in the company's own currency.
func (s *Server) getCompanyBalance(w http.ResponseWriter, r *http.Request) {
	marketID, ok := marketIDParam(w, r)
	if !ok {
		return
	}
	id, ok := companyIDParam(w, r)
	if !ok {
		return
	}
	asOf, ok := asOfQuery(w, r)
	if !ok {
		return
	}
	c, err := s.reg.Company(r.Context(), marketID, id)
	if err != nil {
		writeServiceErr(w, err)
		return
	}
	bal, err := s.stmt.Balance(r.Context(), marketID, id, asOf)
	if err != nil {
		writeServiceErr(w, err)
		return
	}
	toJSON(w, http.StatusOK, balanceResponse{CompanyID: id, Currency: c.Currency, Balance: bal.String(), AsOf: asOf})
}

func (s *Server) getCompanyStatement(w http.ResponseWriter, r *http.Request) {
	marketID, ok := marketIDParam(w, r)
	if !ok {
		return
	}
	id, ok := companyIDParam(w, r)
	if !ok {
		return
	}
	from, to, ok := rangeQuery(w, r)
	if !ok {
		return
	}
	st, err := s.stmt.Statement(r.Context(), marketID, id, from, to)
	if err != nil {
		writeServiceErr(w, err)
		return
	}
	toJSON(w, http.StatusOK, toStatementResponse(st))
}
