package httpx

import (
	"net/http"

	"github.com/ariefcatur/go-pharmacy-store/internal/cart"
	"github.com/ariefcatur/go-pharmacy-store/internal/orders"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// Quoter is satisfied by *orders.Service.
type Quoter interface {
	Quote(c *cart.Cart) orders.Quote
}

type CartHandler struct {
	Carts  *cart.Service
	Quotes Quoter
}

type cartView struct {
	Lines      []cart.Line  `json:"lines"`
	TotalItems int          `json:"total_items"`
	Quote      orders.Quote `json:"quote"`
}

type addItemReq struct {
	ProductID      uuid.UUID  `json:"product_id"`
	Quantity       int        `json:"quantity"`
	PrescriptionID *uuid.UUID `json:"prescription_id,omitempty"`
}

type setQuantityReq struct {
	Quantity int `json:"quantity"`
}

func (h *CartHandler) Register(r chi.Router) {
	r.Get("/cart", h.get)
	r.Post("/cart/items", h.addItem)
	r.Put("/cart/items/{productID}", h.setQuantity)
	r.Delete("/cart/items/{productID}", h.removeItem)
	r.Delete("/cart", h.clear)
}

func (h *CartHandler) view(s *cart.Session) cartView { return viewCart(s, h.Quotes) }

func viewCart(s *cart.Session, q Quoter) cartView {
	lines := s.Cart().Lines
	if lines == nil {
		lines = []cart.Line{}
	}
	return cartView{Lines: lines, TotalItems: s.TotalItems(), Quote: q.Quote(s.Cart())}
}

// session opens the caller's cart; it writes the error response itself.
func (h *CartHandler) session(w http.ResponseWriter, r *http.Request) (*cart.Session, bool) {
	u, ok := requireUser(w, r)
	if !ok {
		return nil, false
	}
	s, err := h.Carts.Session(r.Context(), u.ID)
	if err != nil {
		writeError(w, r, err)
		return nil, false
	}
	return s, true
}

func (h *CartHandler) get(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, h.view(s))
}

func (h *CartHandler) addItem(w http.ResponseWriter, r *http.Request) {
	var req addItemReq
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.ProductID == uuid.Nil {
		writeError(w, r, badRequest("product_id is required"))
		return
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	if err := s.AddItem(r.Context(), req.ProductID, req.Quantity, req.PrescriptionID); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.view(s))
}

func (h *CartHandler) setQuantity(w http.ResponseWriter, r *http.Request) {
	pid, err := uuidParam(r, "productID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req setQuantityReq
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	if err := s.SetQuantity(r.Context(), pid, req.Quantity); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.view(s))
}

func (h *CartHandler) removeItem(w http.ResponseWriter, r *http.Request) {
	pid, err := uuidParam(r, "productID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	if err := s.RemoveItem(r.Context(), pid); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.view(s))
}

func (h *CartHandler) clear(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	if err := s.Clear(r.Context()); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.view(s))
}
