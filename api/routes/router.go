package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/giftbasket/giftcart/api/controllers"
	"github.com/giftbasket/giftcart/api/middleware"
	"github.com/giftbasket/giftcart/internal/catalog"
	"github.com/giftbasket/giftcart/internal/checkout"
	"github.com/giftbasket/giftcart/internal/delivery"
	"github.com/giftbasket/giftcart/internal/sessions"
	"github.com/giftbasket/giftcart/pkg/config"
	"github.com/giftbasket/giftcart/pkg/logger"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	sessionManager *sessions.Manager,
	deliveryEngine *delivery.Engine,
	finalizer *checkout.Finalizer,
	catalogCache *catalog.Cache,
	gatherer prometheus.Gatherer,
	deps ...controllers.Dependency,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins, sessions.HeaderName),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps...))
	})
	if gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.OptionalAuth(cfg.JWT, logg))

		r.Get("/delivery/windows", controllers.DeliveryWindows(deliveryEngine))

		r.Group(func(r chi.Router) {
			r.Use(middleware.CartSession(logg))

			r.Route("/cart", func(r chi.Router) {
				r.Get("/", controllers.CartFetch(sessionManager, logg))
				r.Delete("/", controllers.CartClear(sessionManager, logg))
				r.Post("/items", controllers.CartAddItem(sessionManager, logg))
				r.Delete("/items", controllers.CartRemoveItem(sessionManager, logg))
				r.Patch("/items/quantity", controllers.CartUpdateQuantity(sessionManager, logg))
				r.Patch("/items/customizations", controllers.CartUpdateCustomizations(sessionManager, logg))
				r.Put("/metadata", controllers.CartSetMetadata(sessionManager, logg))
			})

			r.Route("/delivery", func(r chi.Router) {
				r.Get("/slots", controllers.DeliverySlots(sessionManager, deliveryEngine, logg))
				r.Get("/dates", controllers.DeliveryDates(sessionManager, deliveryEngine, logg))
				r.Get("/bounds", controllers.DeliveryBounds(sessionManager, deliveryEngine, logg))
			})

			r.Post("/checkout", controllers.Checkout(sessionManager, finalizer, logg))
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireUser(logg))
			r.Post("/catalog/invalidate", controllers.CatalogInvalidate(catalogCache, logg))
		})
	})

	return r
}
