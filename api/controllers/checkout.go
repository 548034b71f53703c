package controllers

import (
	"context"
	"net/http"

	"github.com/giftbasket/giftcart/api/responses"
	"github.com/giftbasket/giftcart/api/validators"
	"github.com/giftbasket/giftcart/internal/cart"
	"github.com/giftbasket/giftcart/internal/checkout"
	"github.com/giftbasket/giftcart/pkg/backend"
	"github.com/giftbasket/giftcart/pkg/logger"
)

type orderFinalizer interface {
	CreateOrder(ctx context.Context, userID string, state cart.CartState, drafts checkout.DraftTracker, req checkout.Request) (*backend.Order, error)
}

type checkoutRequest struct {
	checkout.Request
	// KeepCart leaves the cart populated after the order is accepted.
	KeepCart bool `json:"keep_cart"`
}

type checkoutResponse struct {
	Order *backend.Order `json:"order"`
	Cart  cartResponse   `json:"cart"`
}

// Checkout submits the session cart as an order and, unless asked to keep
// it, empties the cart once the backend has accepted the order.
func Checkout(provider sessionProvider, finalizer orderFinalizer, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload checkoutRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		session, err := currentSession(r, provider)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		state := session.Store.State()
		order, err := finalizer.CreateOrder(r.Context(), session.Store.UserID(), state, session.Drafts, payload.Request)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if !payload.KeepCart {
			state = session.Store.ClearCart(r.Context())
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, checkoutResponse{
			Order: order,
			Cart:  newCartResponse(session, state),
		})
	}
}
