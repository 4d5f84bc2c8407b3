package api

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/nazeru/shop-backend-go/internal/checkout"
	"github.com/nazeru/shop-backend-go/internal/domain"
	"github.com/nazeru/shop-backend-go/pkg/idempotency"
	"github.com/nazeru/shop-backend-go/pkg/payment"
)

func (h *Handler) checkoutSession(w http.ResponseWriter, r *http.Request) {
	var req checkout.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	session, err := h.checkout.CreateSession(r.Context(), req, idempotency.Key(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

// webhook receives the processor's asynchronous completion notification.
// The body must stay raw for signature verification; decoding happens only
// after the signature checks out.
func (h *Handler) webhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable body")
		return
	}

	if _, err := h.orders.HandleWebhook(r.Context(), payload, r.Header.Get(payment.SignatureHeader)); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	customerID := domain.CustomerID(r.PathValue("customer_id"))

	views, err := h.orders.Views(r.Context(), customerID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, views)
}

// recentOrder answers "was an order just placed". The no-recent-order case
// is the JSON literal false, not an error, so the storefront can poll it
// unconditionally after checkout.
func (h *Handler) recentOrder(w http.ResponseWriter, r *http.Request) {
	customerID := domain.CustomerID(r.PathValue("customer_id"))

	view, err := h.orders.RecentView(r.Context(), customerID)
	if err != nil {
		writeJSON(w, http.StatusOK, false)
		return
	}
	if view == nil {
		writeJSON(w, http.StatusOK, false)
		return
	}
	writeJSON(w, http.StatusOK, view)
}
