package model

import "time"

const (
	PayMethodCard = "card"
	PayMethodCOD  = "cod"
)

// Checkout statuses, in lifecycle order.
const (
	StatusInitiated     = "initiated"
	StatusAuthPending   = "authorization_pending"
	StatusAuthSucceeded = "authorization_succeeded"
	StatusAuthFailed    = "authorization_failed"
	StatusOrderCreated  = "order_created"
)

// CartItem is one line of an incoming cart. The three price fields are
// pointers because clients send whichever one they have; resolution order is
// line_total_cents, then unit_price_cents, then the legacy price_cents.
type CartItem struct {
	VariantID      int64    `json:"variant_id"`
	Qty            int      `json:"qty"`
	Title          string   `json:"title,omitempty"`
	LineTotalCents *float64 `json:"line_total_cents,omitempty"`
	UnitPriceCents *float64 `json:"unit_price_cents,omitempty"`
	PriceCents     *float64 `json:"price_cents,omitempty"` // legacy per-unit field
	PayMethod      string   `json:"pay_method"`
}

type Customer struct {
	Email     string `json:"email"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
}

type Address struct {
	Address1 string `json:"address1,omitempty"`
	Address2 string `json:"address2,omitempty"`
	City     string `json:"city,omitempty"`
	Province string `json:"province,omitempty"`
	Country  string `json:"country,omitempty"`
	Zip      string `json:"zip,omitempty"`
	Phone    string `json:"phone,omitempty"`
}

// Checkout is the persisted log row for one checkout attempt. Orders live in
// the commerce platform; this row only records what was asked for and what
// came back, keyed by the processor's intent id for the webhook path.
type Checkout struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	Ref             string    `gorm:"uniqueIndex" json:"ref"`
	PaymentIntentID string    `gorm:"index" json:"payment_intent_id,omitempty"`
	Email           string    `json:"email,omitempty"`
	CardCents       int64     `json:"card_cents"`
	CODCents        int64     `json:"cod_cents"`
	Status          string    `json:"status"`
	PaidOrderID     int64     `json:"paid_order_id,omitempty"`
	CODOrderID      int64     `json:"cod_order_id,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}
