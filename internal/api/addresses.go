package api

import (
	"encoding/json"
	"net/http"

	"github.com/nazeru/shop-backend-go/internal/domain"
)

func (h *Handler) listAddresses(w http.ResponseWriter, r *http.Request) {
	customerID := domain.CustomerID(r.PathValue("customer_id"))

	if err := h.requireCustomer(r, customerID, w); err != nil {
		return
	}
	addresses, err := h.customers.ListAddresses(r.Context(), customerID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newAddressBookView(addresses))
}

func (h *Handler) addAddress(w http.ResponseWriter, r *http.Request) {
	customerID := domain.CustomerID(r.PathValue("customer_id"))

	if err := h.requireCustomer(r, customerID, w); err != nil {
		return
	}
	var body addressPayload
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	created, err := h.customers.AddAddress(r.Context(), customerID, body.toDomain())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, newAddressView(created))
}

// setMainAddress swaps the default flag in one transaction: demote all of
// the customer's addresses, promote the chosen one.
func (h *Handler) setMainAddress(w http.ResponseWriter, r *http.Request) {
	customerID := domain.CustomerID(r.PathValue("customer_id"))
	addressID, ok := pathInt64(r, "address_id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid address id")
		return
	}

	if err := h.requireCustomer(r, customerID, w); err != nil {
		return
	}
	promoted, err := h.customers.SetDefaultAddress(r.Context(), customerID, domain.AddressID(addressID))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newAddressView(promoted))
}

func (h *Handler) updateAddress(w http.ResponseWriter, r *http.Request) {
	customerID := domain.CustomerID(r.PathValue("customer_id"))
	addressID, ok := pathInt64(r, "address_id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid address id")
		return
	}

	if err := h.requireCustomer(r, customerID, w); err != nil {
		return
	}
	var body addressPayload
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	updated, written, err := h.customers.UpdateAddress(r.Context(), customerID, domain.AddressID(addressID), body.toDomain())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if !written {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, newAddressView(updated))
}

// requireCustomer 404s unknown customers before any address operation; the
// error return only signals that a response was already written.
func (h *Handler) requireCustomer(r *http.Request, id domain.CustomerID, w http.ResponseWriter) error {
	exists, err := h.customers.Exists(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return err
	}
	if !exists {
		writeError(w, http.StatusNotFound, "customer not found")
		return domain.ErrNotFound
	}
	return nil
}
