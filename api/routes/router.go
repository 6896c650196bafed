package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/pullstream-backend/api/controllers"
	"github.com/angelmondragon/pullstream-backend/api/middleware"
	"github.com/angelmondragon/pullstream-backend/internal/gigs"
	"github.com/angelmondragon/pullstream-backend/pkg/config"
	"github.com/angelmondragon/pullstream-backend/pkg/logger"
	"github.com/angelmondragon/pullstream-backend/pkg/redis"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP controllers.Pinger,
	redisClient *redis.Client,
	gigService gigs.Service,
	metricsHandler http.Handler,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	deps := map[string]controllers.Pinger{"db": dbP}
	var (
		idempotencyStore redis.IdempotencyStore
		rateLimitStore   redis.RateLimitStore
	)
	if redisClient != nil {
		deps["redis"] = redisClient
		idempotencyStore = redisClient
		rateLimitStore = redisClient
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps))
	})
	if metricsHandler != nil {
		r.Handle("/metrics", metricsHandler)
	}

	mutations := middleware.NewRateLimitPolicy("gigs", cfg.App.MutationRateWindow, cfg.App.MutationRateLimit)

	r.Route("/api/v1/gigs", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RateLimit(mutations, rateLimitStore, logg))
		r.Use(middleware.Idempotency(idempotencyStore, logg))

		r.Post("/", controllers.CreateGig(gigService, logg))
		r.Get("/", controllers.ListGigs(gigService, logg))
		r.Route("/{gigId}", func(r chi.Router) {
			r.Get("/", controllers.GetGig(gigService, logg))
			r.Get("/transfers", controllers.ListGigTransfers(gigService, logg))
			r.Post("/pause", controllers.PauseGig(gigService, logg))
			r.Post("/resume", controllers.ResumeGig(gigService, logg))
			r.Post("/pay", controllers.PayGig(gigService, logg))
			r.Post("/withdraw", controllers.WithdrawGig(gigService, logg))
		})
	})

	return r
}
