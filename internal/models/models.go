package models

import (
	"strings"
	"time"
	"unicode"

	"github.com/shopspring/decimal"
)

// Field names below are the persisted record shape. Every backend stores
// and returns them unchanged, so the json and bson tags must stay in sync.

type Product struct {
	ID             string            `json:"id" bson:"_id"`
	Name           string            `json:"name" bson:"name"`
	Description    string            `json:"description" bson:"description"`
	Category       string            `json:"category" bson:"category"`
	CategorySlug   string            `json:"categorySlug" bson:"categorySlug"`
	Price          decimal.Decimal   `json:"price" bson:"price"`
	Currency       string            `json:"currency" bson:"currency"`
	InStock        bool              `json:"inStock" bson:"inStock"`
	StockQuantity  int               `json:"stockQuantity" bson:"stockQuantity"`
	Featured       bool              `json:"featured" bson:"featured"`
	BestSeller     bool              `json:"bestSeller" bson:"bestSeller"`
	Images         []string          `json:"images" bson:"images"`
	Specifications map[string]string `json:"specifications" bson:"specifications"`
	Tags           []string          `json:"tags" bson:"tags"`
	CreatedAt      time.Time         `json:"createdAt" bson:"createdAt"`
	UpdatedAt      time.Time         `json:"updatedAt" bson:"updatedAt"`
	Version        int64             `json:"version" bson:"version"`
}

// PrimaryImage returns the first media reference, or "" when there is none.
func (p Product) PrimaryImage() string {
	if len(p.Images) == 0 {
		return ""
	}
	return p.Images[0]
}

type Role string

const (
	RoleCustomer  Role = "customer"
	RoleAdmin     Role = "admin"
	RoleModerator Role = "moderator"
)

func (r Role) Valid() bool {
	switch r {
	case RoleCustomer, RoleAdmin, RoleModerator:
		return true
	}
	return false
}

type Account struct {
	ID                 string      `json:"id" bson:"_id"`
	FirstName          string      `json:"firstName" bson:"firstName"`
	LastName           string      `json:"lastName" bson:"lastName"`
	Email              string      `json:"email" bson:"email"`
	PasswordHash       string      `json:"passwordHash" bson:"passwordHash"`
	Role               Role        `json:"role" bson:"role"`
	Active             bool        `json:"active" bson:"active"`
	LoginAttempts      int         `json:"loginAttempts,omitempty" bson:"loginAttempts,omitempty"`
	LockUntil          *time.Time  `json:"lockUntil,omitempty" bson:"lockUntil,omitempty"`
	Cart               []CartEntry `json:"cart" bson:"cart"`
	MergedGuestEntries []string    `json:"mergedGuestEntries,omitempty" bson:"mergedGuestEntries,omitempty"`
	CreatedAt          time.Time   `json:"createdAt" bson:"createdAt"`
	UpdatedAt          time.Time   `json:"updatedAt" bson:"updatedAt"`
	Version            int64       `json:"version" bson:"version"`
}

// IsLocked reports whether the lockout window is still open at now.
func (a *Account) IsLocked(now time.Time) bool {
	return a.LockUntil != nil && a.LockUntil.After(now)
}

// CartEntryIndex returns the position of productID in the cart, or -1.
func (a *Account) CartEntryIndex(productID string) int {
	for i, entry := range a.Cart {
		if entry.ProductID == productID {
			return i
		}
	}
	return -1
}

// AccountView is the outward shape of an account: no credential material,
// no lockout bookkeeping.
type AccountView struct {
	ID        string    `json:"id"`
	FirstName string    `json:"firstName"`
	LastName  string    `json:"lastName"`
	Email     string    `json:"email"`
	Role      Role      `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (a *Account) View() AccountView {
	return AccountView{
		ID:        a.ID,
		FirstName: a.FirstName,
		LastName:  a.LastName,
		Email:     a.Email,
		Role:      a.Role,
		Active:    a.Active,
		CreatedAt: a.CreatedAt,
		UpdatedAt: a.UpdatedAt,
	}
}

// CartProduct is the product data frozen into a cart entry at add time.
type CartProduct struct {
	Name     string          `json:"name" bson:"name"`
	Price    decimal.Decimal `json:"price" bson:"price"`
	Image    string          `json:"image" bson:"image"`
	Currency string          `json:"currency" bson:"currency"`
}

type CartEntry struct {
	ProductID string      `json:"productId" bson:"productId"`
	Quantity  int         `json:"quantity" bson:"quantity"`
	Product   CartProduct `json:"product" bson:"product"`
	AddedAt   time.Time   `json:"addedAt" bson:"addedAt"`
}

func (e CartEntry) LineTotal() decimal.Decimal {
	return e.Product.Price.Mul(decimal.NewFromInt(int64(e.Quantity)))
}

type CustomerContact struct {
	FirstName string `json:"firstName" bson:"firstName"`
	LastName  string `json:"lastName" bson:"lastName"`
	Email     string `json:"email" bson:"email"`
	Phone     string `json:"phone" bson:"phone"`
}

type Address struct {
	Street     string `json:"street" bson:"street"`
	City       string `json:"city" bson:"city"`
	State      string `json:"state" bson:"state"`
	PostalCode string `json:"postalCode" bson:"postalCode"`
	Country    string `json:"country" bson:"country"`
}

type Pricing struct {
	Subtotal decimal.Decimal `json:"subtotal" bson:"subtotal"`
	Tax      decimal.Decimal `json:"tax" bson:"tax"`
	Shipping decimal.Decimal `json:"shipping" bson:"shipping"`
	Discount decimal.Decimal `json:"discount" bson:"discount"`
	Total    decimal.Decimal `json:"total" bson:"total"`
}

type Payment struct {
	Method string        `json:"method" bson:"method"`
	Status PaymentStatus `json:"status" bson:"status"`
}

type OrderItem struct {
	ProductID string          `json:"productId" bson:"productId"`
	Name      string          `json:"name" bson:"name"`
	Price     decimal.Decimal `json:"price" bson:"price"`
	Quantity  int             `json:"quantity" bson:"quantity"`
	LineTotal decimal.Decimal `json:"lineTotal" bson:"lineTotal"`
}

// StatusChange is one immutable entry of an order's status history.
type StatusChange struct {
	Status    OrderStatus `json:"status" bson:"status"`
	Timestamp time.Time   `json:"timestamp" bson:"timestamp"`
	Note      string      `json:"note,omitempty" bson:"note,omitempty"`
	Actor     string      `json:"actor,omitempty" bson:"actor,omitempty"`
}

type Order struct {
	ID              string          `json:"id" bson:"_id"`
	OrderNumber     string          `json:"orderNumber" bson:"orderNumber"`
	AccountID       string          `json:"accountId,omitempty" bson:"accountId,omitempty"`
	Customer        CustomerContact `json:"customer" bson:"customer"`
	Items           []OrderItem     `json:"items" bson:"items"`
	TotalAmount     decimal.Decimal `json:"totalAmount" bson:"totalAmount"`
	Pricing         Pricing         `json:"pricing" bson:"pricing"`
	Currency        string          `json:"currency" bson:"currency"`
	Status          OrderStatus     `json:"status" bson:"status"`
	Payment         Payment         `json:"payment" bson:"payment"`
	ShippingAddress Address         `json:"shippingAddress" bson:"shippingAddress"`
	BillingAddress  Address         `json:"billingAddress" bson:"billingAddress"`
	Notes           string          `json:"notes" bson:"notes"`
	StatusHistory   []StatusChange  `json:"statusHistory" bson:"statusHistory"`
	DeliveredAt     *time.Time      `json:"deliveredAt,omitempty" bson:"deliveredAt,omitempty"`
	CancelledAt     *time.Time      `json:"cancelledAt,omitempty" bson:"cancelledAt,omitempty"`
	CreatedAt       time.Time       `json:"createdAt" bson:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt" bson:"updatedAt"`
	Version         int64           `json:"version" bson:"version"`
}

// Actor is the caller as resolved by the authentication layer.
type Actor struct {
	AccountID string
	Role      Role
}

func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}

// Owns reports whether the actor may act on a resource owned by accountID.
// Admins own everything; guests (empty accountID) are owned by nobody else.
func (a Actor) Owns(accountID string) bool {
	if a.IsAdmin() {
		return true
	}
	return accountID != "" && a.AccountID == accountID
}

// Slugify derives a stable identifier from a display name:
// "Wireless Mouse (Black)" becomes "wireless-mouse-black".
func Slugify(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

// Now is the clock used for persisted timestamps. Millisecond precision is
// the finest every backend can round-trip.
func Now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}
