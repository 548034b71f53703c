package cart

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// VariantKey is the canonical serialization of a line's variant attributes.
// Two selections are the same variant iff their keys are equal.
type VariantKey struct {
	AddOns         string
	Colors         string
	Customizations string
}

type slotKey struct {
	productID string
	variant   VariantKey
}

type canonicalCustomization struct {
	CustomizationID string          `json:"customization_id"`
	PriceAdjustment decimal.Decimal `json:"price_adjustment"`
	Text            *string         `json:"text"`
	SelectedOption  *string         `json:"selected_option"`
	SelectedItem    *SelectedItem   `json:"selected_item"`
	Photos          []string        `json:"photos"`
}

// SerializeVariant builds the variant key. Add-on order, color map order and
// customization order never affect the result.
func SerializeVariant(v Variant) VariantKey {
	return VariantKey{
		AddOns:         SerializeAddOns(v.AddOnIDs),
		Colors:         SerializeColors(v.AddOnColors),
		Customizations: SerializeCustomizations(v.Customizations),
	}
}

// SerializeAddOns encodes the sorted add-on ids.
func SerializeAddOns(ids []string) string {
	if len(ids) == 0 {
		return "[]"
	}
	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)
	return mustJSON(sorted)
}

// SerializeColors encodes the add-on color selections as ordered pairs in a
// single JSON object, keys ascending by add-on id:
// {"a-ribbon":"gold","z-balloon":"red"}. No selection encodes as "{}".
func SerializeColors(colors map[string]string) string {
	if len(colors) == 0 {
		return "{}"
	}
	// encoding/json writes map keys sorted.
	return mustJSON(colors)
}

// SerializeCustomizations reduces each customization to its identity fields and
// encodes the list sorted by customization id.
func SerializeCustomizations(customizations []Customization) string {
	if len(customizations) == 0 {
		return "[]"
	}
	reduced := make([]canonicalCustomization, 0, len(customizations))
	for _, c := range customizations {
		reduced = append(reduced, canonicalize(c))
	}
	sort.SliceStable(reduced, func(i, j int) bool {
		return reduced[i].CustomizationID < reduced[j].CustomizationID
	})
	return mustJSON(reduced)
}

func canonicalize(c Customization) canonicalCustomization {
	out := canonicalCustomization{
		CustomizationID: c.ID,
		PriceAdjustment: c.PriceAdjustment,
		Photos:          make([]string, 0, len(c.Photos)),
	}
	if text := strings.TrimSpace(c.Text); text != "" {
		out.Text = &text
	}
	if c.SelectedOption != "" {
		option := c.SelectedOption
		out.SelectedOption = &option
	}
	if c.SelectedItem != nil {
		item := *c.SelectedItem
		out.SelectedItem = &item
	}
	for _, photo := range c.Photos {
		out.Photos = append(out.Photos, photo.reference())
	}
	return out
}

func (p PhotoRef) reference() string {
	switch {
	case p.TempID != "":
		return p.TempID
	case p.PreviewURL != "":
		return p.PreviewURL
	default:
		return p.OriginalName
	}
}

func mustJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		// Only strings, maps of strings and decimals are encoded here.
		panic(err)
	}
	return string(data)
}

func keyFor(productID string, v Variant) slotKey {
	return slotKey{productID: productID, variant: SerializeVariant(v)}
}
