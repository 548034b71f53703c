package backend

import "github.com/shopspring/decimal"

// Product is the catalog view of a sellable item.
type Product struct {
	ID               string          `json:"id"`
	Name             string          `json:"name"`
	Price            decimal.Decimal `json:"price"`
	Discount         decimal.Decimal `json:"discount"`
	ImageURL         string          `json:"image_url,omitempty"`
	FulfillmentClass string          `json:"fulfillment_class,omitempty"`
}

// Additional is an add-on that can be attached to a product line.
type Additional struct {
	ID               string          `json:"id"`
	Name             string          `json:"name"`
	Price            decimal.Decimal `json:"price"`
	ImageURL         string          `json:"image_url,omitempty"`
	FulfillmentClass string          `json:"fulfillment_class,omitempty"`
}

// SelectedItem records an item swap inside a customization.
type SelectedItem struct {
	Original string `json:"original"`
	Selected string `json:"selected"`
}

// OrderItemCustomization is the customization payload carried by order items.
type OrderItemCustomization struct {
	CustomizationID string          `json:"customization_id"`
	Type            string          `json:"type,omitempty"`
	Title           string          `json:"title,omitempty"`
	Text            string          `json:"text,omitempty"`
	SelectedOption  string          `json:"selected_option,omitempty"`
	SelectedItem    *SelectedItem   `json:"selected_item,omitempty"`
	Photos          []string        `json:"photos,omitempty"`
	PriceAdjustment decimal.Decimal `json:"price_adjustment"`
}

// OrderItemAdditional is an add-on attached to an order item.
type OrderItemAdditional struct {
	AdditionalID     string          `json:"additional_id"`
	Name             string          `json:"name,omitempty"`
	Quantity         int             `json:"quantity"`
	Price            decimal.Decimal `json:"price"`
	ColorID          string          `json:"color_id,omitempty"`
	FulfillmentClass string          `json:"fulfillment_class,omitempty"`
}

// OrderItem is one line of a draft or submitted order.
type OrderItem struct {
	ProductID        string                   `json:"product_id"`
	ProductName      string                   `json:"product_name,omitempty"`
	Quantity         int                      `json:"quantity"`
	BasePrice        decimal.Decimal          `json:"base_price"`
	Discount         decimal.Decimal          `json:"discount"`
	EffectivePrice   decimal.Decimal          `json:"effective_price"`
	ImageURL         string                   `json:"image_url,omitempty"`
	FulfillmentClass string                   `json:"fulfillment_class,omitempty"`
	Additionals      []OrderItemAdditional    `json:"additionals,omitempty"`
	Customizations   []OrderItemCustomization `json:"customizations,omitempty"`
}

// DraftOrderRequest creates a server-side draft for an authenticated cart.
type DraftOrderRequest struct {
	UserID      string      `json:"user_id"`
	Items       []OrderItem `json:"items"`
	IsDraft     bool        `json:"is_draft"`
	IsAnonymous bool        `json:"is_anonymous"`
	Complement  string      `json:"complement,omitempty"`
}

// DraftMetadata updates draft fields that are not items. Nil fields are left untouched.
type DraftMetadata struct {
	IsAnonymous *bool   `json:"is_anonymous,omitempty"`
	Complement  *string `json:"complement,omitempty"`
}

// SubmitOrderRequest places a final order.
type SubmitOrderRequest struct {
	UserID          string      `json:"user_id"`
	Items           []OrderItem `json:"items"`
	IsDraft         bool        `json:"is_draft"`
	DeliveryAddress string      `json:"delivery_address"`
	DeliveryCity    string      `json:"delivery_city"`
	DeliveryState   string      `json:"delivery_state"`
	DeliveryDate    string      `json:"delivery_date"`
	DeliveryTime    string      `json:"delivery_time,omitempty"`
	PaymentMethod   string      `json:"payment_method"`
	RecipientPhone  string      `json:"recipient_phone"`
	IsAnonymous     bool        `json:"is_anonymous"`
	Complement      string      `json:"complement,omitempty"`
	// DraftOrderID lets the backend promote the session's draft instead of orphaning it.
	DraftOrderID string `json:"draft_order_id,omitempty"`
}

// Order is the backend representation of a draft or submitted order.
type Order struct {
	ID          string          `json:"id"`
	Status      string          `json:"status"`
	Total       decimal.Decimal `json:"total"`
	IsDraft     bool            `json:"is_draft"`
	IsAnonymous bool            `json:"is_anonymous"`
	Complement  string          `json:"complement,omitempty"`
	Items       []OrderItem     `json:"items"`
}
