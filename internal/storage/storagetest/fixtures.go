// Package storagetest holds the conformance suite every storage.Backend must
// pass, plus a deterministic transcript used to prove backends return
// identical output for identical input.
package storagetest

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/safar/storefront-core/internal/models"
)

var epoch = time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)

func at(minutes int) time.Time {
	return epoch.Add(time.Duration(minutes) * time.Minute)
}

// Products returns five catalog fixtures. Two share a price and two share a
// creation time so tie-breaking is exercised.
func Products() []models.Product {
	return []models.Product{
		{
			ID: "usb-c-cable", Name: "USB-C Cable", Description: "One meter",
			Category: "Accessories", CategorySlug: "accessories",
			Price: decimal.RequireFromString("9.99"), Currency: "USD",
			InStock: true, StockQuantity: 120,
			Tags:      []string{"braided"},
			CreatedAt: at(0), UpdatedAt: at(0),
		},
		{
			ID: "wireless-mouse", Name: "Wireless Mouse", Description: "Ergonomic",
			Category: "Accessories", CategorySlug: "accessories",
			Price: decimal.RequireFromString("24.50"), Currency: "USD",
			InStock: true, StockQuantity: 40, Featured: true,
			Images:         []string{"mouse-front.jpg", "mouse-side.jpg"},
			Specifications: map[string]string{"dpi": "1600"},
			Tags:           []string{"mouse", "wireless"},
			CreatedAt:      at(1), UpdatedAt: at(1),
		},
		{
			ID: "mechanical-keyboard", Name: "Mechanical Keyboard", Description: "Tactile switches",
			Category: "Peripherals", CategorySlug: "peripherals",
			Price: decimal.RequireFromString("89.00"), Currency: "USD",
			InStock: false, BestSeller: true,
			Tags:      []string{},
			CreatedAt: at(2), UpdatedAt: at(2),
		},
		{
			ID: "4k-monitor", Name: "4K Monitor", Description: "Ultra sharp display",
			Category: "Displays", CategorySlug: "displays",
			Price: decimal.RequireFromString("329.99"), Currency: "USD",
			InStock: true, StockQuantity: 5, Featured: true, BestSeller: true,
			Specifications: map[string]string{"size": "27in", "panel": "IPS"},
			CreatedAt:      at(3), UpdatedAt: at(3),
		},
		{
			ID: "laptop-stand", Name: "Laptop Stand", Description: "Aluminium",
			Category: "Accessories", CategorySlug: "accessories",
			Price: decimal.RequireFromString("24.5"), Currency: "USD",
			InStock: true, StockQuantity: 12,
			CreatedAt: at(3), UpdatedAt: at(3),
		},
	}
}

func Account(id, email string) models.Account {
	return models.Account{
		ID:           id,
		FirstName:    "Ada",
		LastName:     "Lovelace",
		Email:        email,
		PasswordHash: "$2a$10$fixturefixturefixturefixturefixturefixturefixturefixt",
		Role:         models.RoleCustomer,
		Active:       true,
		CreatedAt:    at(10),
		UpdatedAt:    at(10),
	}
}

func Order(id, accountID string, minutes int, status models.OrderStatus) models.Order {
	price := decimal.RequireFromString("24.50")
	line := price.Mul(decimal.NewFromInt(2))
	return models.Order{
		ID:          id,
		OrderNumber: "ORD-" + id,
		AccountID:   accountID,
		Customer:    models.CustomerContact{FirstName: "Ada", LastName: "Lovelace", Email: "ada@example.com"},
		Items: []models.OrderItem{
			{ProductID: "wireless-mouse", Name: "Wireless Mouse", Price: price, Quantity: 2, LineTotal: line},
		},
		TotalAmount: line,
		Pricing: models.Pricing{
			Subtotal: line,
			Tax:      decimal.Zero,
			Shipping: decimal.RequireFromString("4.99"),
			Discount: decimal.Zero,
			Total:    line.Add(decimal.RequireFromString("4.99")),
		},
		Currency:        "USD",
		Status:          status,
		Payment:         models.Payment{Method: "card", Status: models.PaymentStatusPending},
		ShippingAddress: models.Address{Street: "12 St James's Square", City: "London", Country: "GB"},
		BillingAddress:  models.Address{Street: "12 St James's Square", City: "London", Country: "GB"},
		StatusHistory: []models.StatusChange{
			{Status: status, Timestamp: at(minutes), Note: "order placed"},
		},
		CreatedAt: at(minutes),
		UpdatedAt: at(minutes),
	}
}
