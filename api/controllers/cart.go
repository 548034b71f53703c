package controllers

import (
	"context"
	"net/http"

	"github.com/giftbasket/giftcart/api/middleware"
	"github.com/giftbasket/giftcart/api/responses"
	"github.com/giftbasket/giftcart/api/validators"
	"github.com/giftbasket/giftcart/internal/cart"
	"github.com/giftbasket/giftcart/internal/sessions"
	pkgerrors "github.com/giftbasket/giftcart/pkg/errors"
	"github.com/giftbasket/giftcart/pkg/logger"
)

const maxComplementLength = 500

type sessionProvider interface {
	Get(ctx context.Context, sessionID string) (*sessions.Session, error)
}

// currentSession loads the request's cart session and attaches the
// authenticated shopper to it.
func currentSession(r *http.Request, provider sessionProvider) (*sessions.Session, error) {
	if provider == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "cart sessions unavailable")
	}
	ctx := r.Context()
	sessionID := middleware.CartSessionFromContext(ctx)
	if sessionID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart session missing").
			WithDetails(map[string]string{"field": sessions.HeaderName})
	}
	session, err := provider.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if userID := middleware.UserIDFromContext(ctx); userID != "" {
		session.Store.Authenticate(ctx, userID)
	}
	return session, nil
}

type cartResponse struct {
	SessionID string         `json:"session_id"`
	UserID    string         `json:"user_id,omitempty"`
	Cart      cart.CartState `json:"cart"`
}

func newCartResponse(session *sessions.Session, state cart.CartState) cartResponse {
	if state.Items == nil {
		state.Items = []cart.LineItem{}
	}
	return cartResponse{
		SessionID: session.ID,
		UserID:    session.Store.UserID(),
		Cart:      state,
	}
}

// itemRef identifies one cart line by product and variant.
type itemRef struct {
	ProductID string `json:"product_id" validate:"required"`
	cart.Variant
}

type addItemRequest struct {
	itemRef
	Quantity int `json:"quantity" validate:"gte=0,lte=999"`
}

type updateQuantityRequest struct {
	itemRef
	Quantity int `json:"quantity" validate:"gte=0,lte=999"`
}

type updateCustomizationsRequest struct {
	ProductID         string               `json:"product_id" validate:"required"`
	AddOnIDs          []string             `json:"addon_ids,omitempty"`
	AddOnColors       map[string]string    `json:"addon_colors,omitempty"`
	OldCustomizations []cart.Customization `json:"old_customizations" validate:"omitempty,dive"`
	NewCustomizations []cart.Customization `json:"new_customizations" validate:"omitempty,dive"`
}

type metadataRequest struct {
	Anonymous  bool   `json:"anonymous"`
	Complement string `json:"complement" validate:"max=500"`
}

func CartFetch(provider sessionProvider, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session, err := currentSession(r, provider)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newCartResponse(session, session.Store.State()))
	}
}

func CartClear(provider sessionProvider, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session, err := currentSession(r, provider)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newCartResponse(session, session.Store.ClearCart(r.Context())))
	}
}

func CartAddItem(provider sessionProvider, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload addItemRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		session, err := currentSession(r, provider)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		state, err := session.Store.AddToCart(r.Context(), payload.ProductID, payload.Quantity, payload.Variant)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newCartResponse(session, state))
	}
}

func CartRemoveItem(provider sessionProvider, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload itemRef
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		session, err := currentSession(r, provider)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		state := session.Store.RemoveFromCart(r.Context(), payload.ProductID, payload.Variant)
		responses.WriteSuccess(w, newCartResponse(session, state))
	}
}

func CartUpdateQuantity(provider sessionProvider, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload updateQuantityRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		session, err := currentSession(r, provider)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		state := session.Store.UpdateQuantity(r.Context(), payload.ProductID, payload.Quantity, payload.Variant)
		responses.WriteSuccess(w, newCartResponse(session, state))
	}
}

func CartUpdateCustomizations(provider sessionProvider, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload updateCustomizationsRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		session, err := currentSession(r, provider)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		state, err := session.Store.UpdateCustomizations(
			r.Context(),
			payload.ProductID,
			payload.OldCustomizations,
			payload.NewCustomizations,
			payload.AddOnIDs,
			payload.AddOnColors,
		)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newCartResponse(session, state))
	}
}

func CartSetMetadata(provider sessionProvider, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload metadataRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		session, err := currentSession(r, provider)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		state := session.Store.SetMetadata(r.Context(), cart.Metadata{
			Anonymous:  payload.Anonymous,
			Complement: validators.SanitizeString(payload.Complement, maxComplementLength),
		})
		responses.WriteSuccess(w, newCartResponse(session, state))
	}
}
