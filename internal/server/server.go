package server

import (
	"context"
	"time"

	"leadflow/internal/backfill"
	"leadflow/internal/cache"
	"leadflow/internal/config"
	"leadflow/internal/database"
	"leadflow/internal/engage"
	"leadflow/internal/esp"
	"leadflow/internal/handlers"
	"leadflow/internal/intent"
	"leadflow/internal/models"
	"leadflow/internal/notify"
	"leadflow/internal/vault"

	"github.com/jmoiron/sqlx"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	echoSwagger "github.com/swaggo/echo-swagger"
)

// Server represents the application server
type Server struct {
	echo    *echo.Echo
	db      *sqlx.DB
	config  *config.Config
	logger  zerolog.Logger
	store   *database.LeadService
	vault   *vault.Vault
	manager *backfill.Manager
	cache   *cache.LeadCache
	scorer  *engage.Scorer
	clients handlers.ClientFactory
}

// New creates a new server instance and wires the ingestion components
func New(cfg *config.Config, db *sqlx.DB, store *database.LeadService, logger zerolog.Logger) *Server {
	accountVault := vault.New(cfg.EncryptionKey, store, logger)

	// Reload accounts registered before the last restart
	loadCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if persisted, err := store.ListAccounts(loadCtx); err != nil {
		logger.Warn().Err(err).Msg("Failed to load persisted accounts")
	} else {
		accountVault.Restore(persisted)
	}

	clients := func(provider models.Provider) (esp.Client, error) {
		return esp.New(provider, time.Duration(cfg.ESPTimeout)*time.Second, logger)
	}

	completer := intent.NewOpenAICompleter(cfg.OpenAIKey, cfg.OpenAIModel, time.Duration(cfg.OpenAITimeout)*time.Second)
	classifier := intent.NewClassifier(completer, cfg.Categories(), logger)

	var notifier backfill.Notifier
	if cfg.SendGridAPIKey != "" && cfg.OperatorEmail != "" {
		notifier = notify.NewService(cfg.SendGridAPIKey, cfg.OperatorEmail, cfg.SenderEmail, logger)
	}

	orchestrator := backfill.NewOrchestrator(
		accountVault,
		store,
		classifier,
		backfill.ClientFactory(clients),
		notifier,
		backfill.Config{
			CutoffDays:       cfg.BackfillCutoffDays,
			FetchInterval:    time.Duration(cfg.FetchIntervalMS) * time.Millisecond,
			ClassifyInterval: time.Duration(cfg.ClassifyIntervalMS) * time.Millisecond,
		},
		logger,
	)

	return &Server{
		config:  cfg,
		db:      db,
		logger:  logger,
		store:   store,
		vault:   accountVault,
		manager: backfill.NewManager(orchestrator),
		cache:   cache.New(time.Duration(cfg.LeadCacheTTL) * time.Second),
		scorer:  engage.NewScorer(engage.DefaultWeights()),
		clients: clients,
	}
}

// Vault exposes the account vault, mainly for seeding in tests and tools
func (s *Server) Vault() *vault.Vault {
	return s.vault
}

// zerologMiddleware creates a zerolog-based logging middleware for Echo
func (s *Server) zerologMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)

			req := c.Request()
			res := c.Response()

			s.logger.Info().
				Str("method", req.Method).
				Str("uri", req.RequestURI).
				Str("remote_ip", c.RealIP()).
				Int("status", res.Status).
				Int64("latency_ms", time.Since(start).Milliseconds()).
				Str("user_agent", req.UserAgent()).
				Msg("HTTP request")

			return err
		}
	}
}

// Initialize sets up the Echo framework with middleware and routes
func (s *Server) Initialize() {
	s.echo = echo.New()

	// Middleware
	s.echo.Use(s.zerologMiddleware())
	s.echo.Use(middleware.Recover())
	s.echo.Use(middleware.CORS())

	// Hide Echo banner
	s.echo.HideBanner = true

	// Setup routes
	s.setupRoutes()
}

// setupRoutes configures all the application routes
func (s *Server) setupRoutes() {
	// API group with /api prefix
	api := s.echo.Group("/api")

	// Swagger documentation
	s.echo.GET("/swagger/*", echoSwagger.WrapHandler)

	// Health endpoints (keep at root level for monitoring)
	s.echo.GET("/healthz", handlers.HealthHandler(s.config.Version))
	s.echo.GET("/healthz/db", handlers.DBHealthHandler(s.db))

	// API endpoints under /api prefix
	api.GET("/", handlers.RootHandler(s.config.Version))

	api.POST("/backfill", handlers.StartBackfillHandler(s.manager, s.cache, s.logger))
	api.GET("/backfill/:id", handlers.BackfillStatusHandler(s.manager))
	api.DELETE("/backfill/:id", handlers.CancelBackfillHandler(s.manager, s.logger))

	api.GET("/leads", handlers.LeadsHandler(s.store, s.cache))
	api.GET("/leads/:id/engagement", handlers.LeadEngagementHandler(s.store, s.scorer))
	api.POST("/engagement", handlers.EngagementHandler(s.scorer))

	api.POST("/reply", handlers.SendReplyHandler(s.store, s.vault, s.clients, s.logger))

	api.POST("/accounts", handlers.CreateAccountHandler(s.vault, s.store, s.logger))
	api.GET("/accounts", handlers.ListAccountsHandler(s.vault))
	api.DELETE("/accounts/:id", handlers.DeleteAccountHandler(s.vault, s.store, s.cache, s.logger))
	api.PUT("/accounts/:id/primary", handlers.SetPrimaryAccountHandler(s.vault, s.logger))
}

// Handler exposes the routed HTTP handler for tests
func (s *Server) Handler() *echo.Echo {
	return s.echo
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info().Str("port", s.config.Port).Msg("Server starting")
	return s.echo.Start(":" + s.config.Port)
}
