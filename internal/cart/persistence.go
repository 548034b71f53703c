package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/giftbasket/giftcart/pkg/enums"
	pkgerrors "github.com/giftbasket/giftcart/pkg/errors"
	"github.com/giftbasket/giftcart/pkg/logger"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
)

const (
	snapshotVersion = 1

	StageFull                  = "full"
	StageWithoutCustomizations = "without_customizations"
	StageClear                 = "clear"

	inlinePreviewLimit = 2048
)

// StorageObserver records snapshot write attempts per degradation stage.
type StorageObserver interface {
	ObserveStorage(stage string, err error)
}

type persistedItem struct {
	ProductID          string                 `json:"product_id"`
	Name               string                 `json:"name"`
	ImageURL           string                 `json:"image_url,omitempty"`
	FulfillmentClass   enums.FulfillmentClass `json:"fulfillment_class,omitempty"`
	Quantity           int                    `json:"quantity"`
	BasePrice          decimal.Decimal        `json:"base_price"`
	DiscountPercent    decimal.Decimal        `json:"discount_percent"`
	EffectiveUnitPrice decimal.NullDecimal    `json:"effective_price"`
	CustomizationTotal decimal.NullDecimal    `json:"customization_total"`
	AddOnIDs           []string               `json:"addon_ids,omitempty"`
	AddOns             []AddOnSnapshot        `json:"addons,omitempty"`
	AddOnColors        map[string]string      `json:"addon_colors,omitempty"`
	Customizations     []Customization        `json:"customizations,omitempty"`
}

type persistedSnapshot struct {
	Version    int                 `json:"version"`
	Items      []persistedItem     `json:"items"`
	Total      decimal.NullDecimal `json:"total"`
	ItemCount  int                 `json:"item_count"`
	Anonymous  bool                `json:"anonymous"`
	Complement string              `json:"complement,omitempty"`
}

// Persister writes one session's cart to Storage, degrading instead of failing.
type Persister struct {
	storage  Storage
	key      string
	logg     *logger.Logger
	observer StorageObserver
}

func NewPersister(storage Storage, key string, logg *logger.Logger, observer StorageObserver) (*Persister, error) {
	if storage == nil {
		return nil, fmt.Errorf("cart storage required")
	}
	if strings.TrimSpace(key) == "" {
		return nil, fmt.Errorf("snapshot key required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &Persister{storage: storage, key: key, logg: logg, observer: observer}, nil
}

// Save persists the state. Heavy inline previews are always stripped; when the
// write still fails customizations are dropped, and when that fails too the key
// is deleted so a corrupt or stale snapshot is never left behind. The returned
// error describes what happened and is meant for logging only.
func (p *Persister) Save(ctx context.Context, state CartState) error {
	if state.IsEmpty() && state.Complement == "" && !state.Anonymous {
		return p.clear(ctx)
	}

	full := toSnapshot(state, true)
	err := p.write(ctx, StageFull, full)
	if err == nil {
		return nil
	}

	lean := toSnapshot(state, false)
	leanErr := p.write(ctx, StageWithoutCustomizations, lean)
	if leanErr == nil {
		p.logg.Warn(ctx, "cart snapshot saved without customizations")
		return pkgerrors.Wrap(pkgerrors.CodeStorage, err, "cart snapshot degraded")
	}

	clearErr := p.storage.Delete(ctx, p.key)
	p.observe(StageClear, clearErr)
	combined := multierr.Combine(err, leanErr, clearErr)
	p.logg.Error(ctx, "cart snapshot could not be saved; storage cleared", combined)
	return pkgerrors.Wrap(pkgerrors.CodeStorage, combined, "cart snapshot dropped")
}

// Load restores the state. ok is false when nothing is stored.
func (p *Persister) Load(ctx context.Context) (CartState, bool, error) {
	raw, err := p.storage.Load(ctx, p.key)
	if err != nil {
		if errors.Is(err, ErrSnapshotNotFound) {
			return CartState{}, false, nil
		}
		return CartState{}, false, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "load cart snapshot")
	}
	state, err := decodeSnapshot(raw)
	if err != nil {
		return CartState{}, false, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "decode cart snapshot")
	}
	return state, true, nil
}

// Clear removes the stored snapshot.
func (p *Persister) Clear(ctx context.Context) error {
	return p.clear(ctx)
}

func (p *Persister) clear(ctx context.Context) error {
	err := p.storage.Delete(ctx, p.key)
	p.observe(StageClear, err)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeStorage, err, "clear cart snapshot")
	}
	return nil
}

func (p *Persister) write(ctx context.Context, stage string, snap persistedSnapshot) error {
	payload, err := json.Marshal(snap)
	if err == nil {
		err = p.storage.Save(ctx, p.key, payload)
	}
	p.observe(stage, err)
	return err
}

func (p *Persister) observe(stage string, err error) {
	if p.observer != nil {
		p.observer.ObserveStorage(stage, err)
	}
}

func toSnapshot(state CartState, withCustomizations bool) persistedSnapshot {
	snap := persistedSnapshot{
		Version:    snapshotVersion,
		Items:      make([]persistedItem, 0, len(state.Items)),
		ItemCount:  state.ItemCount,
		Anonymous:  state.Anonymous,
		Complement: state.Complement,
	}
	for _, item := range state.Items {
		pi := persistedItem{
			ProductID:        item.ProductID,
			Name:             item.Name,
			ImageURL:         item.ImageURL,
			FulfillmentClass: item.FulfillmentClass,
			Quantity:         item.Quantity,
			BasePrice:        item.BasePrice,
			DiscountPercent:  item.DiscountPercent,
			AddOnIDs:         item.AddOnIDs,
			AddOns:           item.AddOns,
			AddOnColors:      item.AddOnColors,
		}
		if withCustomizations {
			pi.Customizations = stripHeavyFields(item.Customizations)
			pi.EffectiveUnitPrice = decimal.NewNullDecimal(item.EffectiveUnitPrice)
			pi.CustomizationTotal = decimal.NewNullDecimal(item.CustomizationTotal)
		}
		snap.Items = append(snap.Items, pi)
	}
	if withCustomizations {
		snap.Total = decimal.NewNullDecimal(state.Total)
	}
	return snap
}

// stripHeavyFields drops inline image payloads from photo previews.
func stripHeavyFields(customizations []Customization) []Customization {
	out := cloneCustomizations(customizations)
	for i := range out {
		for j := range out[i].Photos {
			if isInlinePreview(out[i].Photos[j].PreviewURL) {
				out[i].Photos[j].PreviewURL = ""
			}
		}
	}
	return out
}

func isInlinePreview(preview string) bool {
	return strings.HasPrefix(preview, "data:") || strings.HasPrefix(preview, "blob:") || len(preview) > inlinePreviewLimit
}

func decodeSnapshot(raw []byte) (CartState, error) {
	var snap persistedSnapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return CartState{}, err
	}
	if snap.Version > snapshotVersion {
		return CartState{}, fmt.Errorf("unsupported cart snapshot version %d", snap.Version)
	}

	state := CartState{
		Items:    make([]LineItem, 0, len(snap.Items)),
		Metadata: Metadata{Anonymous: snap.Anonymous, Complement: snap.Complement},
	}
	for _, pi := range snap.Items {
		if pi.ProductID == "" || pi.Quantity < 1 {
			continue
		}
		item := LineItem{
			ProductID:        pi.ProductID,
			Name:             pi.Name,
			ImageURL:         pi.ImageURL,
			FulfillmentClass: pi.FulfillmentClass,
			Quantity:         pi.Quantity,
			BasePrice:        pi.BasePrice,
			DiscountPercent:  pi.DiscountPercent,
			AddOnIDs:         pi.AddOnIDs,
			AddOns:           pi.AddOns,
			AddOnColors:      pi.AddOnColors,
			Customizations:   pi.Customizations,
		}
		if pi.EffectiveUnitPrice.Valid && pi.CustomizationTotal.Valid {
			item.EffectiveUnitPrice = pi.EffectiveUnitPrice.Decimal
			item.CustomizationTotal = pi.CustomizationTotal.Decimal
		} else {
			item.reprice()
		}
		state.Items = append(state.Items, item)
	}
	state.recompute()
	return state, nil
}
