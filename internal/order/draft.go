package order

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/safar/storefront-core/internal/models"
)

type DraftItem struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

// Draft is an order as submitted at checkout. Prices are never taken from
// the draft; they are read from the catalog when the order is created.
type Draft struct {
	AccountID       string                 `json:"accountId,omitempty"`
	Customer        models.CustomerContact `json:"customer"`
	Items           []DraftItem            `json:"items"`
	ShippingAddress models.Address         `json:"shippingAddress"`
	BillingAddress  *models.Address        `json:"billingAddress,omitempty"`
	PaymentMethod   string                 `json:"paymentMethod"`
	Discount        decimal.Decimal        `json:"discount"`
	Notes           string                 `json:"notes"`
}

func blank(s string) bool {
	return strings.TrimSpace(s) == ""
}

// validate checks the draft's structure without touching the catalog.
func (d *Draft) validate() error {
	verr := models.NewValidationError()

	if blank(d.Customer.FirstName) {
		verr.Add("customer.firstName", "is required")
	}
	if blank(d.Customer.LastName) {
		verr.Add("customer.lastName", "is required")
	}
	if blank(d.Customer.Email) || !strings.Contains(d.Customer.Email, "@") {
		verr.Add("customer.email", "is required")
	}

	if blank(d.ShippingAddress.Street) {
		verr.Add("shippingAddress.street", "is required")
	}
	if blank(d.ShippingAddress.City) {
		verr.Add("shippingAddress.city", "is required")
	}
	if blank(d.ShippingAddress.Country) {
		verr.Add("shippingAddress.country", "is required")
	}

	if len(d.Items) == 0 {
		verr.Add("items", "at least one item is required")
	}
	for _, item := range d.Items {
		if blank(item.ProductID) {
			verr.Add("items.productId", "is required")
		}
		if item.Quantity < 1 {
			verr.Add("items.quantity", "must be at least 1 for "+item.ProductID)
		}
	}

	if blank(d.PaymentMethod) {
		verr.Add("paymentMethod", "is required")
	}
	if d.Discount.IsNegative() {
		verr.Add("discount", "must not be negative")
	}

	return verr.OrNil()
}

// lines merges repeated products into one line, keeping first-seen order.
func (d *Draft) lines() []DraftItem {
	index := make(map[string]int, len(d.Items))
	out := make([]DraftItem, 0, len(d.Items))
	for _, item := range d.Items {
		if i, ok := index[item.ProductID]; ok {
			out[i].Quantity += item.Quantity
			continue
		}
		index[item.ProductID] = len(out)
		out = append(out, item)
	}
	return out
}
