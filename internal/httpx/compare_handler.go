package httpx

import (
	"net/http"

	"github.com/ariefcatur/go-pharmacy-store/internal/compare"
	"github.com/ariefcatur/go-pharmacy-store/internal/identity"
	"github.com/go-chi/chi/v5"
)

type CompareHandler struct {
	Compare *compare.Service
}

func (h *CompareHandler) Register(r chi.Router) {
	r.Get("/compare", h.list)
	r.Post("/compare/{productID}", h.add)
	r.Delete("/compare/{productID}", h.remove)
	r.Delete("/compare", h.clear)
}

func (h *CompareHandler) list(w http.ResponseWriter, r *http.Request) {
	ps, err := h.Compare.List(r.Context(), identity.FromContext(r.Context()).ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ps)
}

func (h *CompareHandler) add(w http.ResponseWriter, r *http.Request) {
	pid, err := uuidParam(r, "productID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	ps, err := h.Compare.Add(r.Context(), identity.FromContext(r.Context()).ID, pid)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ps)
}

func (h *CompareHandler) remove(w http.ResponseWriter, r *http.Request) {
	pid, err := uuidParam(r, "productID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	ps, err := h.Compare.Remove(r.Context(), identity.FromContext(r.Context()).ID, pid)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ps)
}

func (h *CompareHandler) clear(w http.ResponseWriter, r *http.Request) {
	if err := h.Compare.Clear(r.Context(), identity.FromContext(r.Context()).ID); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
