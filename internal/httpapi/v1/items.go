package v1

import (
	"net/http"

	chi "github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/govalues/decimal"

	"github.com/tinoosan/marketbooks/internal/service/registry"
)

func itemIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "itemID"))
	if err != nil {
		badRequest(w, "invalid item id")
		return uuid.Nil, false
	}
	return id, true
}

func (s *Server) postItem(w http.ResponseWriter, r *http.Request) {
	marketID, ok := marketIDParam(w, r)
	if !ok {
		return
	}
	var req itemRequest
	if !decodeStrict(w, r, &req) {
		return
	}
	weight, err := parseDecOpt("weight", req.Weight)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	it, err := s.reg.CreateItem(r.Context(), marketID, registry.ItemInput{
		SupplierID: req.SupplierID,
		Code:       req.Code,
		Name:       req.Name,
		Weight:     weight,
		Grade:      req.Grade,
	})
	if err != nil {
		writeServiceErr(w, err)
		return
	}
	toJSON(w, http.StatusCreated, toItemResponse(it))
}

func (s *Server) listItems(w http.ResponseWriter, r *http.Request) {
	marketID, ok := marketIDParam(w, r)
	if !ok {
		return
	}
	items, err := s.reg.Items(r.Context(), marketID)
	if err != nil {
		writeServiceErr(w, err)
		return
	}
	out := make([]itemResponse, 0, len(items))
	for _, it := range items {
		out = append(out, toItemResponse(it))
	}
	toJSON(w, http.StatusOK, out)
}

func (s *Server) getItem(w http.ResponseWriter, r *http.Request) {
	marketID, ok := marketIDParam(w, r)
	if !ok {
		return
	}
	id, ok := itemIDParam(w, r)
	if !ok {
		return
	}
	it, err := s.reg.Item(r.Context(), marketID, id)
	if err != nil {
		writeServiceErr(w, err)
		return
	}
	toJSON(w, http.StatusOK, toItemResponse(it))
}

func (s *Server) patchItem(w http.ResponseWriter, r *http.Request) {
	marketID, ok := marketIDParam(w, r)
	if !ok {
		return
	}
	id, ok := itemIDParam(w, r)
	if !ok {
		return
	}
	var req itemPatchRequest
	if !decodeStrict(w, r, &req) {
		return
	}
	patch := registry.ItemPatch{Name: req.Name, Grade: req.Grade}
	if req.Weight != nil {
		w8, err := decimal.Parse(*req.Weight)
		if err != nil {
			badRequest(w, "invalid weight")
			return
		}
		patch.Weight = &w8
	}
	it, err := s.reg.UpdateItem(r.Context(), marketID, id, patch)
	if err != nil {
		writeServiceErr(w, err)
		return
	}
	toJSON(w, http.StatusOK, toItemResponse(it))
}
