package cart

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/giftbasket/giftcart/pkg/backend"
	"github.com/giftbasket/giftcart/pkg/enums"
	pkgerrors "github.com/giftbasket/giftcart/pkg/errors"
	"github.com/giftbasket/giftcart/pkg/logger"
)

// Catalog resolves authoritative product and add-on data.
type Catalog interface {
	GetProduct(ctx context.Context, id string) (*backend.Product, error)
	GetAdditional(ctx context.Context, id string) (*backend.Additional, error)
}

// Syncer receives every state change and owns the remote draft.
type Syncer interface {
	Notify(userID string, state CartState)
	RemoteDraft(ctx context.Context) (*CartState, error)
}

// StoreParams wires a Store.
type StoreParams struct {
	Catalog   Catalog
	Persister *Persister
	Syncer    Syncer
	Logger    *logger.Logger
	Initial   CartState
}

// Store holds one session's cart. Mutators are safe for concurrent use; the
// last writer wins.
type Store struct {
	mu        sync.Mutex
	state     CartState
	userID    string
	catalog   Catalog
	persister *Persister
	syncer    Syncer
	logg      *logger.Logger
}

func NewStore(params StoreParams) (*Store, error) {
	if params.Catalog == nil {
		return nil, fmt.Errorf("catalog required")
	}
	if params.Persister == nil {
		return nil, fmt.Errorf("persister required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	state := params.Initial.Clone()
	state.recompute()
	return &Store{
		state:     state,
		catalog:   params.Catalog,
		persister: params.Persister,
		syncer:    params.Syncer,
		logg:      logg,
	}, nil
}

// State returns a copy of the current cart.
func (s *Store) State() CartState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

// UserID returns the authenticated user, empty for anonymous carts.
func (s *Store) UserID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userID
}

// AddToCart adds quantity units of the product variant, merging into an
// existing slot with the same identity. Catalog failures leave the cart unchanged.
func (s *Store) AddToCart(ctx context.Context, productID string, quantity int, variant Variant) (CartState, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return CartState{}, pkgerrors.New(pkgerrors.CodeValidation, "product id is required").WithDetails(map[string]any{"field": "product_id"})
	}
	if quantity == 0 {
		quantity = 1
	}
	if quantity < 0 {
		return CartState{}, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive").WithDetails(map[string]any{"field": "quantity"})
	}

	product, err := s.catalog.GetProduct(ctx, productID)
	if err != nil {
		return CartState{}, productFetchError(err, "product", productID)
	}
	addOns := make([]AddOnSnapshot, 0, len(variant.AddOnIDs))
	for _, id := range variant.AddOnIDs {
		additional, err := s.catalog.GetAdditional(ctx, id)
		if err != nil {
			return CartState{}, productFetchError(err, "additional", id)
		}
		addOns = append(addOns, AddOnSnapshot{
			ID:               additional.ID,
			Name:             additional.Name,
			Price:            additional.Price,
			ImageURL:         additional.ImageURL,
			FulfillmentClass: enums.ResolveFulfillmentClass(additional.FulfillmentClass, additional.Name),
		})
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := keyFor(productID, variant)
	if idx := s.indexOf(key); idx >= 0 {
		item := &s.state.Items[idx]
		item.Quantity += quantity
		item.BasePrice = product.Price
		item.DiscountPercent = clampPercent(product.Discount)
		item.Customizations = cloneCustomizations(variant.Customizations)
		item.AddOns = addOns
		item.reprice()
	} else {
		item := LineItem{
			ProductID:        productID,
			Name:             product.Name,
			ImageURL:         product.ImageURL,
			FulfillmentClass: enums.ResolveFulfillmentClass(product.FulfillmentClass, product.Name),
			Quantity:         quantity,
			BasePrice:        product.Price,
			DiscountPercent:  clampPercent(product.Discount),
			AddOnIDs:         append([]string(nil), variant.AddOnIDs...),
			AddOns:           addOns,
			AddOnColors:      cloneColors(variant.AddOnColors),
			Customizations:   cloneCustomizations(variant.Customizations),
		}
		item.reprice()
		s.state.Items = append(s.state.Items, item)
	}
	return s.commitLocked(ctx), nil
}

// RemoveFromCart deletes the slot matching the exact identity. Missing slots are a no-op.
func (s *Store) RemoveFromCart(ctx context.Context, productID string, variant Variant) CartState {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexOf(keyFor(productID, variant))
	if idx < 0 {
		return s.state.Clone()
	}
	s.state.Items = append(s.state.Items[:idx], s.state.Items[idx+1:]...)
	return s.commitLocked(ctx)
}

// UpdateQuantity sets the slot quantity; zero or less removes the slot.
func (s *Store) UpdateQuantity(ctx context.Context, productID string, quantity int, variant Variant) CartState {
	if quantity <= 0 {
		return s.RemoveFromCart(ctx, productID, variant)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexOf(keyFor(productID, variant))
	if idx < 0 {
		return s.state.Clone()
	}
	s.state.Items[idx].Quantity = quantity
	return s.commitLocked(ctx)
}

// UpdateCustomizations finds the slot by its old identity and swaps in the new
// customizations. When the new selection matches another slot, the two lines
// merge. A missing slot is a caller bug: it is logged and reported as a state
// conflict with the cart untouched.
func (s *Store) UpdateCustomizations(ctx context.Context, productID string, oldCustomizations, newCustomizations []Customization, addOnIDs []string, addOnColors map[string]string) (CartState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	oldVariant := Variant{AddOnIDs: addOnIDs, AddOnColors: addOnColors, Customizations: oldCustomizations}
	idx := s.indexOf(keyFor(productID, oldVariant))
	if idx < 0 {
		err := pkgerrors.New(pkgerrors.CodeStateConflict, "no cart line matches the previous customizations").
			WithDetails(map[string]any{"product_id": productID})
		s.logg.Error(s.logg.WithField(ctx, "product_id", productID), "identity mismatch on customization update", err)
		return s.state.Clone(), err
	}

	newVariant := Variant{AddOnIDs: addOnIDs, AddOnColors: addOnColors, Customizations: newCustomizations}
	if other := s.indexOf(keyFor(productID, newVariant)); other >= 0 && other != idx {
		// The new selection is already a slot of its own: fold this line into it.
		s.state.Items[other].Quantity += s.state.Items[idx].Quantity
		s.state.Items[other].reprice()
		s.state.Items = append(s.state.Items[:idx], s.state.Items[idx+1:]...)
		return s.commitLocked(ctx), nil
	}

	item := &s.state.Items[idx]
	item.Customizations = cloneCustomizations(newCustomizations)
	item.reprice()
	return s.commitLocked(ctx), nil
}

// ClearCart empties the cart and its stored snapshot.
func (s *Store) ClearCart(ctx context.Context) CartState {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state = CartState{}
	return s.commitLocked(ctx)
}

// SetMetadata updates the draft metadata (anonymity flag, complement note).
func (s *Store) SetMetadata(ctx context.Context, meta Metadata) CartState {
	s.mu.Lock()
	defer s.mu.Unlock()

	meta.Complement = strings.TrimSpace(meta.Complement)
	s.state.Metadata = meta
	return s.commitLocked(ctx)
}

// Authenticate attaches a user to the cart. When the local cart is empty and
// the user has a remote draft with items, the draft is loaded into the cart.
// Local items are never overwritten.
func (s *Store) Authenticate(ctx context.Context, userID string) CartState {
	userID = strings.TrimSpace(userID)

	s.mu.Lock()
	if userID == "" || userID == s.userID {
		defer s.mu.Unlock()
		return s.state.Clone()
	}
	s.userID = userID
	localEmpty := s.state.IsEmpty()
	s.mu.Unlock()

	ctx = s.logg.WithUserID(ctx, userID)
	var remote *CartState
	if localEmpty && s.syncer != nil {
		draft, err := s.syncer.RemoteDraft(ctx)
		if err != nil {
			// An empty cart pushed now would delete the draft we failed to read.
			s.logg.Warn(ctx, fmt.Sprintf("remote draft hydration skipped: %v", err))
			s.mu.Lock()
			defer s.mu.Unlock()
			return s.state.Clone()
		}
		remote = draft
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if remote != nil && !remote.IsEmpty() && s.state.IsEmpty() {
		hydrated := remote.Clone()
		for i := range hydrated.Items {
			hydrated.Items[i].reprice()
		}
		s.state = hydrated
		s.logg.Info(s.logg.WithField(ctx, "item_count", len(hydrated.Items)), "cart hydrated from remote draft")
	}
	return s.commitLocked(ctx)
}

func (s *Store) indexOf(key slotKey) int {
	for i, item := range s.state.Items {
		if item.ProductID == key.productID && SerializeVariant(item.Variant()) == key.variant {
			return i
		}
	}
	return -1
}

// commitLocked recomputes derived fields, persists and notifies the syncer.
// Callers hold s.mu.
func (s *Store) commitLocked(ctx context.Context) CartState {
	s.state.recompute()
	snapshot := s.state.Clone()

	if err := s.persister.Save(ctx, snapshot); err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "cart snapshot persistence degraded")
	}
	if s.syncer != nil {
		s.syncer.Notify(s.userID, snapshot.Clone())
	}
	return snapshot
}

func productFetchError(err error, kind, id string) error {
	code := pkgerrors.CodeDependency
	if typed := pkgerrors.As(err); typed != nil && typed.Code() == pkgerrors.CodeNotFound {
		code = pkgerrors.CodeNotFound
	}
	return pkgerrors.Wrap(code, err, fmt.Sprintf("%s %s could not be loaded", kind, id)).
		WithDetails(map[string]any{"kind": kind, "id": id})
}
