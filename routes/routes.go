package routes

import (
	"time"

	"haven/config"
	"haven/controllers"
	"haven/middleware"
	"haven/repositories"
	"haven/services"
	"haven/utils"
	"haven/websocket"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
)

// Dependencies are the long-lived pieces built in main.
type Dependencies struct {
	Config     *config.Config
	Store      repositories.KVStore
	Redis      *redis.Client // nil when the store is not redis
	Hub        *websocket.Hub
	Dispatcher services.AlertDispatcher
	Registry   *services.DeviceRegistry
	Scheduler  services.Scheduler
}

// SetupRoutes builds the services and controllers and mounts every route.
func SetupRoutes(deps Dependencies) (*gin.Engine, *Services) {
	router := gin.New()

	svc := initializeServices(deps)
	ctrl := initializeControllers(deps, svc)
	authMiddleware := middleware.NewAuthMiddleware(svc.JWT, deps.Registry)

	setupGlobalMiddleware(router, deps.Config)
	setupPublicRoutes(router, ctrl, deps.Redis)
	setupAuthenticatedRoutes(router, ctrl, authMiddleware, deps)
	SetupWebSocketRoutes(router, ctrl.WebSocket, authMiddleware)

	return router, svc
}

type Services struct {
	JWT     *utils.JWTService
	Profile *services.ProfileService
	History *services.HistoryService
	Session *services.SessionService
}

func initializeServices(deps Dependencies) *Services {
	cfg := deps.Config
	store := repositories.NewProfileRepository(deps.Store)
	history := services.NewHistoryService(store)

	sessionConfig := services.DefaultSessionConfig()
	sessionConfig.GracePeriodSeconds = cfg.GracePeriodSeconds
	sessionConfig.ExtendSeconds = cfg.ExtendSeconds
	sessionConfig.LocationDelay = cfg.LocationDelay
	sessionConfig.SettleDelay = cfg.DispatchSettle

	scheduler := deps.Scheduler
	if scheduler == nil {
		scheduler = services.NewSystemScheduler()
	}

	return &Services{
		JWT:     utils.NewJWTService(cfg.JWTSecret, cfg.TokenTTL),
		Profile: services.NewProfileService(store),
		History: history,
		Session: services.NewSessionService(
			store,
			history,
			scheduler,
			deps.Dispatcher,
			services.NewDeviceFeedback(deps.Hub),
			deps.Hub,
			services.NewStaticLocator(cfg.LocationAddress, cfg.LocationShortCode),
			sessionConfig,
		),
	}
}

type Controllers struct {
	Auth      *controllers.AuthController
	Profile   *controllers.ProfileController
	Session   *controllers.SessionController
	History   *controllers.HistoryController
	WebSocket *controllers.WebSocketController
	Health    *controllers.HealthController
}

func initializeControllers(deps Dependencies, svc *Services) *Controllers {
	return &Controllers{
		Auth:      controllers.NewAuthController(svc.JWT, deps.Registry),
		Profile:   controllers.NewProfileController(svc.Profile),
		Session:   controllers.NewSessionController(svc.Session),
		History:   controllers.NewHistoryController(svc.History),
		WebSocket: controllers.NewWebSocketController(deps.Hub),
		Health: controllers.NewHealthController(
			map[string]controllers.Pinger{"store": deps.Store},
			svc.Session.ActiveCount,
		),
	}
}

func setupGlobalMiddleware(router *gin.Engine, cfg *config.Config) {
	router.Use(middleware.NewErrorHandler(cfg.Environment).Handle())
	router.Use(middleware.DefaultLoggerMiddleware())
	router.Use(middleware.CORSMiddleware(cfg.Environment, cfg.CORSOrigins))
}

func setupPublicRoutes(router *gin.Engine, ctrl *Controllers, redisClient *redis.Client) {
	router.GET("/health", ctrl.Health.Health)

	public := router.Group("/api/v1")
	SetupAuthRoutes(public, ctrl.Auth, redisClient)
}

func setupAuthenticatedRoutes(router *gin.Engine, ctrl *Controllers, authMiddleware *middleware.AuthMiddleware, deps Dependencies) {
	cfg := deps.Config
	api := router.Group("/api/v1")
	api.Use(authMiddleware.RequireAuth())
	api.Use(middleware.RateLimitMiddleware(
		deps.Redis,
		cfg.RateLimitRequest,
		time.Duration(cfg.RateLimitWindow)*time.Minute,
		cfg.Environment,
	))

	SetupProfileRoutes(api, ctrl.Profile)
	SetupSessionRoutes(api, ctrl.Session)
	SetupHistoryRoutes(api, ctrl.History)
}
