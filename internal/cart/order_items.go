package cart

import (
	"github.com/giftbasket/giftcart/pkg/backend"
	"github.com/giftbasket/giftcart/pkg/enums"
)

// OrderItems converts cart lines into backend order items.
func OrderItems(items []LineItem) []backend.OrderItem {
	out := make([]backend.OrderItem, 0, len(items))
	for _, item := range items {
		out = append(out, item.OrderItem())
	}
	return out
}

// OrderItem converts one cart line into a backend order item.
func (i LineItem) OrderItem() backend.OrderItem {
	additionals := make([]backend.OrderItemAdditional, 0, len(i.AddOns))
	for _, addOn := range i.AddOns {
		additionals = append(additionals, backend.OrderItemAdditional{
			AdditionalID:     addOn.ID,
			Name:             addOn.Name,
			Quantity:         i.Quantity,
			Price:            addOn.Price,
			ColorID:          i.AddOnColors[addOn.ID],
			FulfillmentClass: string(addOn.FulfillmentClass),
		})
	}
	customizations := make([]backend.OrderItemCustomization, 0, len(i.Customizations))
	for _, c := range stripHeavyFields(i.Customizations) {
		oc := backend.OrderItemCustomization{
			CustomizationID: c.ID,
			Type:            string(c.Type),
			Title:           c.Title,
			Text:            c.Text,
			SelectedOption:  c.SelectedOption,
			PriceAdjustment: c.PriceAdjustment,
		}
		if c.SelectedItem != nil {
			oc.SelectedItem = &backend.SelectedItem{Original: c.SelectedItem.Original, Selected: c.SelectedItem.Selected}
		}
		for _, photo := range c.Photos {
			oc.Photos = append(oc.Photos, photo.reference())
		}
		customizations = append(customizations, oc)
	}
	return backend.OrderItem{
		ProductID:        i.ProductID,
		ProductName:      i.Name,
		Quantity:         i.Quantity,
		BasePrice:        i.BasePrice,
		Discount:         i.DiscountPercent,
		EffectivePrice:   i.EffectiveUnitPrice,
		ImageURL:         i.ImageURL,
		FulfillmentClass: string(i.FulfillmentClass),
		Additionals:      additionals,
		Customizations:   customizations,
	}
}

// StateFromOrder rebuilds a cart from a backend order, used to hydrate from a draft.
func StateFromOrder(order *backend.Order) CartState {
	if order == nil {
		return CartState{}
	}
	state := CartState{
		Items:    make([]LineItem, 0, len(order.Items)),
		Metadata: Metadata{Anonymous: order.IsAnonymous, Complement: order.Complement},
	}
	for _, oi := range order.Items {
		if oi.ProductID == "" || oi.Quantity < 1 {
			continue
		}
		item := LineItem{
			ProductID:        oi.ProductID,
			Name:             oi.ProductName,
			ImageURL:         oi.ImageURL,
			FulfillmentClass: enums.ResolveFulfillmentClass(oi.FulfillmentClass, oi.ProductName),
			Quantity:         oi.Quantity,
			BasePrice:        oi.BasePrice,
			DiscountPercent:  clampPercent(oi.Discount),
		}
		for _, add := range oi.Additionals {
			item.AddOnIDs = append(item.AddOnIDs, add.AdditionalID)
			item.AddOns = append(item.AddOns, AddOnSnapshot{
				ID:               add.AdditionalID,
				Name:             add.Name,
				Price:            add.Price,
				FulfillmentClass: enums.ResolveFulfillmentClass(add.FulfillmentClass, add.Name),
			})
			if add.ColorID != "" {
				if item.AddOnColors == nil {
					item.AddOnColors = map[string]string{}
				}
				item.AddOnColors[add.AdditionalID] = add.ColorID
			}
		}
		for _, oc := range oi.Customizations {
			c := Customization{
				ID:              oc.CustomizationID,
				Type:            enums.CustomizationType(oc.Type),
				Title:           oc.Title,
				Text:            oc.Text,
				SelectedOption:  oc.SelectedOption,
				PriceAdjustment: oc.PriceAdjustment,
			}
			if oc.SelectedItem != nil {
				c.SelectedItem = &SelectedItem{Original: oc.SelectedItem.Original, Selected: oc.SelectedItem.Selected}
			}
			for _, ref := range oc.Photos {
				c.Photos = append(c.Photos, PhotoRef{TempID: ref})
			}
			item.Customizations = append(item.Customizations, c)
		}
		item.reprice()
		state.Items = append(state.Items, item)
	}
	state.recompute()
	return state
}
