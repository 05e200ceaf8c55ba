package routes

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/jewelpos-backend/api/controllers"
	"github.com/angelmondragon/jewelpos-backend/api/middleware"
	"github.com/angelmondragon/jewelpos-backend/internal/commissions"
	"github.com/angelmondragon/jewelpos-backend/internal/expenses"
	"github.com/angelmondragon/jewelpos-backend/internal/movements"
	products "github.com/angelmondragon/jewelpos-backend/internal/products"
	"github.com/angelmondragon/jewelpos-backend/internal/sales"
	"github.com/angelmondragon/jewelpos-backend/internal/settlements"
	"github.com/angelmondragon/jewelpos-backend/internal/valuation"
	"github.com/angelmondragon/jewelpos-backend/pkg/config"
	"github.com/angelmondragon/jewelpos-backend/pkg/db"
	"github.com/angelmondragon/jewelpos-backend/pkg/logger"
	"github.com/angelmondragon/jewelpos-backend/pkg/metrics"
	"github.com/angelmondragon/jewelpos-backend/pkg/redis"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisP redis.Pinger,
	idempotencyStore redis.IdempotencyStore,
	registry *prometheus.Registry,
	productService products.Service,
	movementService movements.Service,
	valuationService valuation.Service,
	saleService sales.Service,
	settlementService settlements.Service,
	commissionService commissions.Service,
	expenseService expenses.Service,
) http.Handler {
	var httpMetrics *metrics.HTTPMetrics
	if registry != nil {
		httpMetrics = metrics.NewHTTPMetrics(registry)
	}

	var origins []string
	if cfg != nil {
		origins = cfg.App.CORSOrigins
	}

	r := chi.NewRouter()
	r.Use(
		middleware.CORS(origins),
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg, httpMetrics),
	)

	deps := map[string]controllers.Pinger{"database": nil, "redis": nil}
	if dbP != nil {
		deps["database"] = dbP
	}
	if redisP != nil {
		deps["redis"] = redisP
	}
	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps))
	})
	if registry != nil {
		r.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Actor(logg))
		// Write routes opt in one by one; payout keys are kept for a week.
		writeTTL, payoutTTL := idempotencyTTLs(cfg)
		idem := middleware.Idempotency(idempotencyStore, logg, writeTTL)
		payoutIdem := middleware.Idempotency(idempotencyStore, logg, payoutTTL)

		r.Route("/products", func(r chi.Router) {
			r.With(idem).Post("/", controllers.CreateProduct(productService, logg))
			r.Get("/", controllers.ListProducts(productService, logg))
			r.Get("/{productId}", controllers.GetProduct(productService, logg))
			r.Post("/{productId}/reclassify", controllers.ReclassifyProduct(productService, logg))
			r.Get("/{productId}/provenance", controllers.ProvenanceHistory(productService, logg))
			r.Get("/{productId}/position", controllers.ProductPosition(valuationService, logg))
			r.Get("/{productId}/movements", controllers.ListMovements(movementService, logg))
			r.With(idem).Post("/{productId}/movements", controllers.AppendMovement(movementService, logg))
		})

		r.Route("/sales", func(r chi.Router) {
			r.With(idem).Post("/", controllers.RecordSale(saleService, logg))
			r.Get("/", controllers.ListSales(saleService, logg))
			r.Get("/{saleId}", controllers.GetSale(saleService, logg))
			r.With(idem).Post("/{saleId}/void", controllers.VoidSale(saleService, logg))
			r.With(idem).Patch("/{saleId}/items/{itemId}", controllers.EditSaleItem(saleService, logg))
		})

		r.Route("/settlements", func(r chi.Router) {
			r.Get("/unsettled", controllers.ListUnsettled(settlementService, logg))
			r.Get("/{settlementId}", controllers.GetSettlement(settlementService, logg))
			r.With(payoutIdem).Post("/{settlementId}/payout", controllers.RecordPayout(settlementService, logg))
			r.Delete("/{settlementId}/payout", controllers.DeletePayout(settlementService, logg))
		})

		r.Route("/commissions", func(r chi.Router) {
			r.Get("/summary", controllers.CommissionSummary(commissionService, logg))
			r.Get("/outstanding", controllers.CommissionOutstanding(commissionService, logg))
			r.Get("/payments", controllers.ListCommissionPayments(commissionService, logg))
			r.With(payoutIdem).Post("/payments", controllers.RecordCommissionPayment(commissionService, logg))
			r.Delete("/payments/{paymentId}", controllers.DeleteCommissionPayment(commissionService, logg))
		})

		r.Get("/expenses", controllers.ExpensesBySource(expenseService, logg))
	})

	return r
}

func idempotencyTTLs(cfg *config.Config) (time.Duration, time.Duration) {
	writeTTL, payoutTTL := middleware.DefaultIdempotencyTTL, middleware.PayoutIdempotencyTTL
	if cfg == nil {
		return writeTTL, payoutTTL
	}
	if cfg.Ledger.IdempotencyTTL > 0 {
		writeTTL = cfg.Ledger.IdempotencyTTL
	}
	if cfg.Ledger.PayoutIdempotencyTTL > 0 {
		payoutTTL = cfg.Ledger.PayoutIdempotencyTTL
	}
	return writeTTL, payoutTTL
}
