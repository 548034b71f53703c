package controllers

import (
	"context"
	"net/http"

	"github.com/giftbasket/giftcart/api/responses"
	"github.com/giftbasket/giftcart/api/validators"
	"github.com/giftbasket/giftcart/internal/catalog"
	"github.com/giftbasket/giftcart/pkg/logger"
)

type catalogInvalidator interface {
	Invalidate(ctx context.Context, key catalog.Key) error
}

type invalidateRequest struct {
	Kind string `json:"kind" validate:"required,oneof=product additional"`
	ID   string `json:"id" validate:"required"`
}

// CatalogInvalidate drops one cached product or add-on so the next read goes
// to the backend.
func CatalogInvalidate(cache catalogInvalidator, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload invalidateRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		key, err := catalog.ParseKey(payload.Kind, payload.ID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := cache.Invalidate(r.Context(), key); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteNoContent(w)
	}
}
