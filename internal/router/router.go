package router

import (
	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/clinic-queue-api/internal/handler/health"
	"github.com/jwalitptl/clinic-queue-api/internal/handler/leave"
	"github.com/jwalitptl/clinic-queue-api/internal/handler/notification"
	"github.com/jwalitptl/clinic-queue-api/internal/handler/prometheus"
	"github.com/jwalitptl/clinic-queue-api/internal/handler/schedule"
	"github.com/jwalitptl/clinic-queue-api/internal/handler/stats"
	"github.com/jwalitptl/clinic-queue-api/internal/handler/token"
	"github.com/jwalitptl/clinic-queue-api/internal/handler/ws"
	"github.com/jwalitptl/clinic-queue-api/internal/middleware"
)

type Config struct {
	RateLimitRPS   float64
	RateLimitBurst int
	CORS           middleware.CORSConfig
	Timeout        middleware.TimeoutConfig
}

type Router struct {
	engine *gin.Engine
	auth   *middleware.AuthMiddleware

	tokenH        *token.Handler
	scheduleH     *schedule.Handler
	leaveH        *leave.Handler
	statsH        *stats.Handler
	notificationH *notification.Handler
	healthH       *health.Handler
	wsH           *ws.Handler
	promH         *prometheus.Handler
}

func NewRouter(
	auth *middleware.AuthMiddleware,
	tokenH *token.Handler,
	scheduleH *schedule.Handler,
	leaveH *leave.Handler,
	statsH *stats.Handler,
	notificationH *notification.Handler,
	healthH *health.Handler,
	wsH *ws.Handler,
	promH *prometheus.Handler,
	config Config,
) *Router {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()

	engine.Use(
		gin.Recovery(),
		middleware.RequestID(),
		middleware.Logger(),
		middleware.ErrorHandler(),
		promH.Middleware(),
		middleware.Timeout(config.Timeout),
		middleware.CORS(config.CORS),
	)

	rateLimiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{
		RPS:   config.RateLimitRPS,
		Burst: config.RateLimitBurst,
	})
	engine.Use(rateLimiter.RateLimit())

	return &Router{
		engine:        engine,
		auth:          auth,
		tokenH:        tokenH,
		scheduleH:     scheduleH,
		leaveH:        leaveH,
		statsH:        statsH,
		notificationH: notificationH,
		healthH:       healthH,
		wsH:           wsH,
		promH:         promH,
	}
}

func (r *Router) Setup() {
	r.engine.GET("/metrics", r.promH.Handler())

	api := r.engine.Group("/api/v1")
	api.Use(func(c *gin.Context) {
		c.Header("X-API-Version", "1.0")
		c.Next()
	})

	r.healthH.RegisterRoutes(api)

	authed := api.Group("")
	authed.Use(r.auth.Authenticate())

	// Every authenticated role gets notifications and the event stream.
	r.notificationH.RegisterRoutes(authed)
	r.wsH.RegisterRoutes(authed)

	// Availability resolution is read by the booking flow with patient or
	// doctor credentials.
	r.scheduleH.RegisterAvailabilityRoutes(authed)

	doctor := authed.Group("")
	doctor.Use(r.auth.RequireRole(middleware.RoleDoctor))
	{
		r.tokenH.RegisterRoutes(doctor)
		r.scheduleH.RegisterRoutes(doctor)
		r.leaveH.RegisterRoutes(doctor)
		r.statsH.RegisterRoutes(doctor)
	}

	admin := authed.Group("/admin")
	admin.Use(r.auth.RequireRole(middleware.RoleAdmin))
	{
		r.leaveH.RegisterAdminRoutes(admin)
		r.scheduleH.RegisterAdminRoutes(admin)
		r.statsH.RegisterAdminRoutes(admin)
	}
}

func (r *Router) Engine() *gin.Engine {
	return r.engine
}
