package httpx

import (
	"net/http"

	"github.com/ariefcatur/go-pharmacy-store/internal/identity"
	"github.com/ariefcatur/go-pharmacy-store/internal/wishlist"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type WishlistHandler struct {
	Wishlists *wishlist.Service
}

type createWishlistReq struct {
	Name     string `json:"name"`
	IsPublic bool   `json:"is_public"`
}

type addWishlistItemReq struct {
	ProductID  uuid.UUID  `json:"product_id"`
	WishlistID *uuid.UUID `json:"wishlist_id,omitempty"`
}

func (h *WishlistHandler) Register(r chi.Router) {
	r.Get("/wishlists", h.list)
	r.Post("/wishlists", h.create)
	r.Delete("/wishlists/{id}", h.delete)
	r.Post("/wishlists/items", h.addItem)
	r.Delete("/wishlists/{id}/items/{productID}", h.removeItem)
	r.Get("/wishlists/contains/{productID}", h.contains)
}

func (h *WishlistHandler) list(w http.ResponseWriter, r *http.Request) {
	ws, err := h.Wishlists.List(r.Context(), identity.FromContext(r.Context()).ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ws)
}

func (h *WishlistHandler) create(w http.ResponseWriter, r *http.Request) {
	var req createWishlistReq
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	ws, err := h.Wishlists.Create(r.Context(), identity.FromContext(r.Context()).ID, req.Name, req.IsPublic)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, ws)
}

func (h *WishlistHandler) delete(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	ws, err := h.Wishlists.Delete(r.Context(), identity.FromContext(r.Context()).ID, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ws)
}

func (h *WishlistHandler) addItem(w http.ResponseWriter, r *http.Request) {
	var req addWishlistItemReq
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.ProductID == uuid.Nil {
		writeError(w, r, badRequest("product_id is required"))
		return
	}
	ws, err := h.Wishlists.Add(r.Context(), identity.FromContext(r.Context()).ID, req.WishlistID, req.ProductID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ws)
}

func (h *WishlistHandler) removeItem(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	pid, err := uuidParam(r, "productID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	ws, err := h.Wishlists.Remove(r.Context(), identity.FromContext(r.Context()).ID, id, pid)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ws)
}

func (h *WishlistHandler) contains(w http.ResponseWriter, r *http.Request) {
	pid, err := uuidParam(r, "productID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	in, err := h.Wishlists.Contains(r.Context(), identity.FromContext(r.Context()).ID, pid)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"in_wishlist": in})
}
