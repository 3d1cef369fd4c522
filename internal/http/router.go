package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type RouterConfig struct {
	JWTSecret      []byte
	RequestTimeout time.Duration
	MaxBodyBytes   int64
}

func NewRouter(cfg RouterConfig, carts *CartHandler, checkout *CheckoutHandler, log *slog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(RequestLogger(log))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(cfg.RequestTimeout))
	if cfg.MaxBodyBytes > 0 {
		r.Use(middleware.RequestSize(cfg.MaxBodyBytes))
	}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(ShopperAuth(cfg.JWTSecret))

		r.Route("/cart", func(r chi.Router) {
			r.Post("/", carts.EnsureCart)
			r.Get("/", carts.GetCart)
			r.Post("/lines", carts.AddLine)
			r.Delete("/lines", carts.ClearLines)
			r.Patch("/lines/{lineID}", carts.UpdateQuantity)
			r.Delete("/lines/{lineID}", carts.RemoveLine)
		})
		r.Post("/checkout", checkout.Checkout)
	})

	return otelhttp.NewHandler(r, "storefront")
}
