package api

import (
	"encoding/json"
	"net/http"

	"github.com/nazeru/shop-backend-go/internal/domain"
)

type addressPayload struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Street    string `json:"street"`
	Street2   string `json:"street2"`
	City      string `json:"city"`
	State     string `json:"state"`
	ZipCode   string `json:"zip_code"`
	Country   string `json:"country"`
}

func (p addressPayload) toDomain() *domain.Address {
	return &domain.Address{
		FirstName: p.FirstName,
		LastName:  p.LastName,
		Street:    p.Street,
		Street2:   p.Street2,
		City:      p.City,
		State:     p.State,
		ZipCode:   p.ZipCode,
		Country:   p.Country,
	}
}

type addressView struct {
	ID        domain.AddressID `json:"id"`
	FirstName string           `json:"first_name"`
	LastName  string           `json:"last_name"`
	Street    string           `json:"street"`
	Street2   string           `json:"street2,omitempty"`
	City      string           `json:"city"`
	State     string           `json:"state"`
	ZipCode   string           `json:"zip_code"`
	Country   string           `json:"country"`
	IsDefault bool             `json:"is_default"`
}

func newAddressView(a *domain.Address) addressView {
	return addressView{
		ID:        a.ID,
		FirstName: a.FirstName,
		LastName:  a.LastName,
		Street:    a.Street,
		Street2:   a.Street2,
		City:      a.City,
		State:     a.State,
		ZipCode:   a.ZipCode,
		Country:   a.Country,
		IsDefault: a.IsDefault,
	}
}

// addressBookView splits the book into the default address and the rest.
type addressBookView struct {
	MainAddress *addressView  `json:"main_address"`
	Addresses   []addressView `json:"addresses"`
}

func newAddressBookView(addresses []domain.Address) addressBookView {
	book := addressBookView{Addresses: []addressView{}}
	for i := range addresses {
		a := &addresses[i]
		if a.IsDefault {
			v := newAddressView(a)
			book.MainAddress = &v
			continue
		}
		book.Addresses = append(book.Addresses, newAddressView(a))
	}
	return book
}

type customerView struct {
	ID        domain.CustomerID `json:"id"`
	FirstName string            `json:"first_name"`
	LastName  string            `json:"last_name"`
	Email     string            `json:"email"`
	Addresses addressBookView   `json:"addresses"`
}

func (h *Handler) customerExists(w http.ResponseWriter, r *http.Request) {
	exists, err := h.customers.Exists(r.Context(), domain.CustomerID(r.PathValue("customer_id")))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, exists)
}

func (h *Handler) getCustomer(w http.ResponseWriter, r *http.Request) {
	id := domain.CustomerID(r.PathValue("customer_id"))

	cust, err := h.customers.Get(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	addresses, err := h.customers.ListAddresses(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, customerView{
		ID:        cust.ID,
		FirstName: cust.FirstName,
		LastName:  cust.LastName,
		Email:     cust.Email,
		Addresses: newAddressBookView(addresses),
	})
}

func (h *Handler) createCustomer(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Customer struct {
			ID        string `json:"id"`
			FirstName string `json:"first_name"`
			LastName  string `json:"last_name"`
			Email     string `json:"email"`
		} `json:"customer"`
		Address addressPayload `json:"address"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if body.Customer.ID == "" || body.Customer.Email == "" {
		writeError(w, http.StatusBadRequest, "customer id and email are required")
		return
	}

	cust, addr, err := h.customers.Create(r.Context(), &domain.Customer{
		ID:        domain.CustomerID(body.Customer.ID),
		FirstName: body.Customer.FirstName,
		LastName:  body.Customer.LastName,
		Email:     body.Customer.Email,
	}, body.Address.toDomain())
	if err != nil {
		writeDomainError(w, err)
		return
	}

	mainView := newAddressView(addr)
	writeJSON(w, http.StatusCreated, customerView{
		ID:        cust.ID,
		FirstName: cust.FirstName,
		LastName:  cust.LastName,
		Email:     cust.Email,
		Addresses: addressBookView{MainAddress: &mainView, Addresses: []addressView{}},
	})
}

func (h *Handler) editCustomerName(w http.ResponseWriter, r *http.Request) {
	id := domain.CustomerID(r.PathValue("customer_id"))

	var body struct {
		FirstName string `json:"first_name"`
		LastName  string `json:"last_name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	written, err := h.customers.UpdateName(r.Context(), id, body.FirstName, body.LastName)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if !written {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"first_name": body.FirstName,
		"last_name":  body.LastName,
	})
}
