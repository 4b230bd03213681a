package v1

import (
	"net/http"

	chi "github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/tinoosan/marketbooks/internal/books"
	"github.com/tinoosan/marketbooks/internal/service/registry"
)

// marketIDParam parses the {marketID} URL segment.
func marketIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "marketID"))
	if err != nil {
		badRequest(w, "invalid market id")
		return uuid.Nil, false
	}
	return id, true
}

func (s *Server) postMarket(w http.ResponseWriter, r *http.Request) {
	var req marketRequest
	if !decodeStrict(w, r, &req) {
		return
	}
	m, err := s.reg.CreateMarket(r.Context(), registry.MarketInput{
		Name:         req.Name,
		BaseCurrency: req.BaseCurrency,
		Policy:       books.Policy(req.Policy),
	})
	if err != nil {
		writeServiceErr(w, err)
		return
	}
	toJSON(w, http.StatusCreated, toMarketResponse(m))
}

func (s *Server) listMarkets(w http.ResponseWriter, r *http.Request) {
	markets, err := s.reg.Markets(r.Context())
	if err != nil {
		writeServiceErr(w, err)
		return
	}
	out := make([]marketResponse, 0, len(markets))
	for _, m := range markets {
		out = append(out, toMarketResponse(m))
	}
	toJSON(w, http.StatusOK, out)
}

func (s *Server) getMarket(w http.ResponseWriter, r *http.Request) {
	id, ok := marketIDParam(w, r)
	if !ok {
		return
	}
	m, err := s.reg.Market(r.Context(), id)
	if err != nil {
		writeServiceErr(w, err)
		return
	}
	toJSON(w, http.StatusOK, toMarketResponse(m))
}

func (s *Server) patchMarket(w http.ResponseWriter, r *http.Request) {
	id, ok := marketIDParam(w, r)
	if !ok {
		return
	}
	var req marketPatchRequest
	if !decodeStrict(w, r, &req) {
		return
	}
	m, err := s.reg.RenameMarket(r.Context(), id, req.Name)
	if err != nil {
		writeServiceErr(w, err)
		return
	}
	toJSON(w, http.StatusOK, toMarketResponse(m))
}

// postCostingPolicy switches the market's costing policy, replaying history
// under the new one before anything is committed.
func (s *Server) postCostingPolicy(w http.ResponseWriter, r *http.Request) {
	id, ok := marketIDParam(w, r)
	if !ok {
		return
	}
	var req costingPolicyRequest
	if !decodeStrict(w, r, &req) {
		return
	}
	res, err := s.stock.SetCostingPolicy(r.Context(), id, books.Policy(req.Policy))
	if err != nil {
		writeServiceErr(w, err)
		return
	}
	toJSON(w, http.StatusOK, toBackfillResponse(res))
}

func (s *Server) postBackfill(w http.ResponseWriter, r *http.Request) {
	id, ok := marketIDParam(w, r)
	if !ok {
		return
	}
	res, err := s.stock.Backfill(r.Context(), id)
	if err != nil {
		writeServiceErr(w, err)
		return
	}
	toJSON(w, http.StatusOK, toBackfillResponse(res))
}
