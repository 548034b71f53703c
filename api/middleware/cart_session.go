package middleware

import (
	"net/http"
	"strings"

	"github.com/giftbasket/giftcart/api/responses"
	"github.com/giftbasket/giftcart/internal/sessions"
	"github.com/giftbasket/giftcart/pkg/logger"
)

// CartSession resolves the X-Cart-Session header, minting an id for browsers
// that do not have one yet. The resolved id is always echoed back.
func CartSession(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := strings.TrimSpace(r.Header.Get(sessions.HeaderName))

			sessionID := sessions.NewSessionID()
			if raw != "" {
				parsed, err := sessions.ParseSessionID(raw)
				if err != nil {
					responses.WriteError(r.Context(), logg, w, err)
					return
				}
				sessionID = parsed
			}

			w.Header().Set(sessions.HeaderName, sessionID)

			ctx := WithCartSession(r.Context(), sessionID)
			if logg != nil {
				ctx = logg.WithSessionID(ctx, sessionID)
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
