package cart

import (
	"github.com/giftbasket/giftcart/pkg/enums"
	"github.com/shopspring/decimal"
)

// PhotoRef points at a photo attached to a customization.
type PhotoRef struct {
	TempID       string `json:"temp_id,omitempty"`
	PreviewURL   string `json:"preview_url,omitempty"`
	OriginalName string `json:"original_name,omitempty"`
}

// SelectedItem records an item swap: which basket item was replaced by which.
type SelectedItem struct {
	Original string `json:"original"`
	Selected string `json:"selected"`
}

// Customization is one personalization applied to a cart line.
type Customization struct {
	ID              string                  `json:"customization_id" validate:"required"`
	Type            enums.CustomizationType `json:"type,omitempty"`
	Title           string                  `json:"title,omitempty"`
	Text            string                  `json:"text,omitempty"`
	SelectedOption  string                  `json:"selected_option,omitempty"`
	SelectedItem    *SelectedItem           `json:"selected_item,omitempty"`
	Photos          []PhotoRef              `json:"photos,omitempty"`
	PriceAdjustment decimal.Decimal         `json:"price_adjustment"`
}

// AddOnSnapshot is the add-on detail captured when the line was added.
type AddOnSnapshot struct {
	ID               string                 `json:"id"`
	Name             string                 `json:"name"`
	Price            decimal.Decimal        `json:"price"`
	ImageURL         string                 `json:"image_url,omitempty"`
	FulfillmentClass enums.FulfillmentClass `json:"fulfillment_class,omitempty"`
}

// Variant is the part of a line that distinguishes otherwise identical products.
type Variant struct {
	AddOnIDs       []string          `json:"addon_ids,omitempty"`
	AddOnColors    map[string]string `json:"addon_colors,omitempty"`
	Customizations []Customization   `json:"customizations,omitempty" validate:"omitempty,dive"`
}

// LineItem is one cart slot.
type LineItem struct {
	ProductID          string                 `json:"product_id"`
	Name               string                 `json:"name"`
	ImageURL           string                 `json:"image_url,omitempty"`
	FulfillmentClass   enums.FulfillmentClass `json:"fulfillment_class,omitempty"`
	Quantity           int                    `json:"quantity"`
	BasePrice          decimal.Decimal        `json:"base_price"`
	DiscountPercent    decimal.Decimal        `json:"discount_percent"`
	EffectiveUnitPrice decimal.Decimal        `json:"effective_price"`
	CustomizationTotal decimal.Decimal        `json:"customization_total"`
	AddOnIDs           []string               `json:"addon_ids"`
	AddOns             []AddOnSnapshot        `json:"addons"`
	AddOnColors        map[string]string      `json:"addon_colors"`
	Customizations     []Customization        `json:"customizations"`
}

// Variant returns the identity-bearing attributes of the line.
func (i LineItem) Variant() Variant {
	return Variant{
		AddOnIDs:       i.AddOnIDs,
		AddOnColors:    i.AddOnColors,
		Customizations: i.Customizations,
	}
}

// Metadata is carried to the draft order alongside the items.
type Metadata struct {
	Anonymous  bool   `json:"anonymous"`
	Complement string `json:"complement,omitempty"`
}

// CartState is the full cart. Total and ItemCount are always derived from Items.
type CartState struct {
	Items     []LineItem      `json:"items"`
	Total     decimal.Decimal `json:"total"`
	ItemCount int             `json:"item_count"`
	Metadata
}

// IsEmpty reports whether the cart has no lines.
func (s CartState) IsEmpty() bool {
	return len(s.Items) == 0
}

// FulfillmentClasses lists the class of every product and add-on in the cart.
func (s CartState) FulfillmentClasses() []enums.FulfillmentClass {
	classes := make([]enums.FulfillmentClass, 0, len(s.Items))
	for _, item := range s.Items {
		classes = append(classes, item.FulfillmentClass)
		for _, addOn := range item.AddOns {
			classes = append(classes, addOn.FulfillmentClass)
		}
	}
	return classes
}

// Clone returns a deep copy safe to hand to other goroutines.
func (s CartState) Clone() CartState {
	out := s
	out.Items = make([]LineItem, len(s.Items))
	for i, item := range s.Items {
		out.Items[i] = item.clone()
	}
	return out
}

func (i LineItem) clone() LineItem {
	out := i
	out.AddOnIDs = append([]string(nil), i.AddOnIDs...)
	out.AddOns = append([]AddOnSnapshot(nil), i.AddOns...)
	out.AddOnColors = cloneColors(i.AddOnColors)
	out.Customizations = cloneCustomizations(i.Customizations)
	return out
}

func cloneColors(colors map[string]string) map[string]string {
	if colors == nil {
		return nil
	}
	out := make(map[string]string, len(colors))
	for k, v := range colors {
		out[k] = v
	}
	return out
}

func cloneCustomizations(in []Customization) []Customization {
	if in == nil {
		return nil
	}
	out := make([]Customization, len(in))
	for i, c := range in {
		out[i] = c
		out[i].Photos = append([]PhotoRef(nil), c.Photos...)
		if c.SelectedItem != nil {
			item := *c.SelectedItem
			out[i].SelectedItem = &item
		}
	}
	return out
}
