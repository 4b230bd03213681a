package v1

import "net/http"

func (s *Server) getProfitLoss(w http.ResponseWriter, r *http.Request) {
	marketID, ok := marketIDParam(w, r)
	if !ok {
		return
	}
	from, to, ok := rangeQuery(w, r)
	if !ok {
		return
	}
	pl, err := s.rpt.ProfitLoss(r.Context(), marketID, from, to)
	if err != nil {
		writeServiceErr(w, err)
		return
	}
	toJSON(w, http.StatusOK, toProfitLossResponse(pl))
}

func (s *Server) getStockValue(w http.ResponseWriter, r *http.Request) {
	marketID, ok := marketIDParam(w, r)
	if !ok {
		return
	}
	asOf, ok := asOfQuery(w, r)
	if !ok {
		return
	}
	rep, err := s.rpt.StockValue(r.Context(), marketID, asOf)
	if err != nil {
		writeServiceErr(w, err)
		return
	}
	toJSON(w, http.StatusOK, toStockReportResponse(rep))
}
