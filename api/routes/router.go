package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/betza-storefront/api/controllers"
	ordercontrollers "github.com/angelmondragon/betza-storefront/api/controllers/orders"
	"github.com/angelmondragon/betza-storefront/api/middleware"
	"github.com/angelmondragon/betza-storefront/internal/orders"
	products "github.com/angelmondragon/betza-storefront/internal/products"
	"github.com/angelmondragon/betza-storefront/internal/settlement"
	"github.com/angelmondragon/betza-storefront/internal/wishlist"
	"github.com/angelmondragon/betza-storefront/pkg/config"
	"github.com/angelmondragon/betza-storefront/pkg/db"
	"github.com/angelmondragon/betza-storefront/pkg/logger"
	"github.com/angelmondragon/betza-storefront/pkg/metrics"
	"github.com/angelmondragon/betza-storefront/pkg/redis"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisClient *redis.Client,
	registry *prometheus.Registry,
	resolver middleware.IdentityResolver,
	productService products.Service,
	ordersSvc orders.Service,
	wishlistService wishlist.Service,
	settlementService settlement.Service,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	readiness := map[string]controllers.Pinger{}
	if dbP != nil {
		readiness["db"] = dbP
	}
	if redisClient != nil {
		readiness["redis"] = redisClient
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, readiness, logg))
	})
	if registry != nil {
		r.Handle("/metrics", metrics.Handler(registry))
	}

	r.Route("/functions/v1", func(r chi.Router) {
		if redisClient != nil {
			r.Use(middleware.RateLimit(middleware.NewRateLimitPolicy("payments", cfg.RateLimit), redisClient, logg))
		}
		r.Use(middleware.FunctionAuth(resolver, logg))
		r.Post("/initialize-payment", controllers.InitializePayment(settlementService, logg))
		r.Post("/verify-payment", controllers.VerifyPayment(settlementService, logg))
	})

	r.Route("/api/public", func(r chi.Router) {
		r.Get("/ping", controllers.PublicPing())
		r.Get("/v1/products", controllers.ProductList(productService, logg))
		r.Get("/v1/products/{productId}", controllers.ProductDetail(productService, logg))
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Auth(resolver, logg))

		r.Get("/ping", controllers.PrivatePing())
		r.Route("/v1/orders", func(r chi.Router) {
			r.Get("/", ordercontrollers.List(ordersSvc, logg))
			r.Get("/{orderId}", ordercontrollers.Detail(ordersSvc, logg))
		})
		r.Route("/v1/wishlist", func(r chi.Router) {
			r.Get("/", controllers.WishlistList(wishlistService, logg))
			r.Post("/", controllers.WishlistAddItem(wishlistService, logg))
			r.Delete("/{productId}", controllers.WishlistRemoveItem(wishlistService, logg))
		})
	})

	return r
}
