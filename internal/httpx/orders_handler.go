package httpx

import (
	"context"
	"net/http"
	"time"

	"github.com/ariefcatur/go-pharmacy-store/internal/cart"
	"github.com/ariefcatur/go-pharmacy-store/internal/identity"
	"github.com/ariefcatur/go-pharmacy-store/internal/orders"
	"github.com/go-chi/chi/v5"
)

const HeaderIdempotencyKey = "Idempotency-Key"

type OrdersHandler struct {
	Orders *orders.Service
	Carts  *cart.Service
}

type CheckoutReq struct {
	ExternalID      string                 `json:"external_id"`
	ShippingAddress orders.ShippingAddress `json:"shipping_address"`
	PaymentMethod   orders.PaymentMethod   `json:"payment_method"`
}

type CheckoutResp struct {
	Order      *orders.Order `json:"order"`
	Idempotent bool          `json:"idempotent"`
}

type updateStatusReq struct {
	Status orders.Status `json:"status"`
}

type confirmPaymentReq struct {
	TransactionID string `json:"transaction_id"`
	Success       bool   `json:"success"`
}

func (h *OrdersHandler) Register(r chi.Router) {
	r.Post("/checkout", h.checkout)
	r.Get("/orders", h.listOrders)
	r.Get("/orders/{id}", h.getOrder)
	r.Get("/orders/{id}/status", h.getStatus)
	r.Post("/orders/{id}/cancel", h.cancel)

	r.Put("/admin/orders/{id}/status", h.updateStatus)
	r.Post("/admin/orders/{id}/payment", h.confirmPayment)
}

func (h *OrdersHandler) checkout(w http.ResponseWriter, r *http.Request) {
	u, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req CheckoutReq
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	// header menang kalau dua-duanya diisi
	if k := r.Header.Get(HeaderIdempotencyKey); k != "" {
		req.ExternalID = k
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	sess, err := h.Carts.Session(ctx, u.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	o, existed, err := h.Orders.PlaceOrder(ctx, sess, orders.CheckoutInput{
		ExternalID:      req.ExternalID,
		ShippingAddress: req.ShippingAddress,
		PaymentMethod:   req.PaymentMethod,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	code := http.StatusCreated
	if existed {
		code = http.StatusOK
	}
	writeJSON(w, code, CheckoutResp{Order: o, Idempotent: existed})
}

func (h *OrdersHandler) listOrders(w http.ResponseWriter, r *http.Request) {
	list, err := h.Orders.ListMine(r.Context(), identity.FromContext(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if list == nil {
		list = []orders.Order{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	o, err := h.Orders.Get(ctx, identity.FromContext(ctx), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) getStatus(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	v, err := h.Orders.Status(ctx, identity.FromContext(ctx), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (h *OrdersHandler) cancel(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	o, err := h.Orders.Cancel(r.Context(), identity.FromContext(r.Context()), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) updateStatus(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req updateStatusReq
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	o, err := h.Orders.UpdateStatus(r.Context(), identity.FromContext(r.Context()), id, req.Status)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) confirmPayment(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req confirmPaymentReq
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	o, err := h.Orders.ConfirmPayment(r.Context(), identity.FromContext(r.Context()), id, req.TransactionID, req.Success)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}
