package v1

import (
	"net/http"

	chi "github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/tinoosan/marketbooks/internal/meta"
	"github.com/tinoosan/marketbooks/internal/service/safe"
)

func entryIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "entryID"))
	if err != nil {
		badRequest(w, "invalid entry id")
		return uuid.Nil, false
	}
	return id, true
}

func (s *Server) postSafeEntry(w http.ResponseWriter, r *http.Request) {
	marketID, ok := marketIDParam(w, r)
	if !ok {
		return
	}
	in, ok := r.Context().Value(ctxKeyPostEntry).(safe.EntryInput)
	if !ok {
		writeErr(w, http.StatusInternalServerError, "request not validated", "")
		return
	}
	e, err := s.ledger.Append(r.Context(), marketID, in)
	if err != nil {
		writeServiceErr(w, err)
		return
	}
	toJSON(w, http.StatusCreated, toSafeEntryResponse(e))
}

func (s *Server) listSafeEntries(w http.ResponseWriter, r *http.Request) {
	marketID, ok := marketIDParam(w, r)
	if !ok {
		return
	}
	entries, err := s.reader.Entries(r.Context(), marketID)
	if err != nil {
		writeServiceErr(w, err)
		return
	}
	out := make([]safeEntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, toSafeEntryResponse(e))
	}
	toJSON(w, http.StatusOK, out)
}

func (s *Server) patchSafeEntry(w http.ResponseWriter, r *http.Request) {
	marketID, ok := marketIDParam(w, r)
	if !ok {
		return
	}
	id, ok := entryIDParam(w, r)
	if !ok {
		return
	}
	var req safeEntryPatchRequest
	if !decodeStrict(w, r, &req) {
		return
	}
	patch := safe.EntryPatch{Currency: req.Currency, Date: req.Date, Description: req.Description}
	if req.Amount != nil {
		amount, err := parseDec("amount", *req.Amount)
		if err != nil {
			badRequest(w, err.Error())
			return
		}
		patch.Amount = &amount
	}
	if req.Rate != nil {
		rate, err := parseDec("rate", *req.Rate)
		if err != nil {
			badRequest(w, err.Error())
			return
		}
		patch.Rate = &rate
	}
	if req.Metadata != nil {
		patch.Metadata = meta.New(req.Metadata)
	}
	e, err := s.ledger.Update(r.Context(), marketID, id, patch)
	if err != nil {
		writeServiceErr(w, err)
		return
	}
	toJSON(w, http.StatusOK, toSafeEntryResponse(e))
}

func (s *Server) deleteSafeEntry(w http.ResponseWriter, r *http.Request) {
	marketID, ok := marketIDParam(w, r)
	if !ok {
		return
	}
	id, ok := entryIDParam(w, r)
	if !ok {
		return
	}
	if err := s.ledger.Delete(r.Context(), marketID, id); err != nil {
		writeServiceErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) getSafeBalance(w http.ResponseWriter, r *http.Request) {
	marketID, ok := marketIDParam(w, r)
	if !ok {
		return
	}
	bal, err := s.ledger.Balance(r.Context(), marketID)
	if err != nil {
		writeServiceErr(w, err)
		return
	}
	toJSON(w, http.StatusOK, map[string]any{"market_id": marketID, "balance": bal.String()})
}

func (s *Server) getSafeReport(w http.ResponseWriter, r *http.Request) {
	marketID, ok := marketIDParam(w, r)
	if !ok {
		return
	}
	from, to, ok := rangeQuery(w, r)
	if !ok {
		return
	}
	rep, err := s.ledger.MovementReport(r.Context(), marketID, from, to)
	if err != nil {
		writeServiceErr(w, err)
		return
	}
	toJSON(w, http.StatusOK, toSafeReportResponse(rep))
}
