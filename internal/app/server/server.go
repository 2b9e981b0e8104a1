package server

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sifan077/LinkShield/internal/app/service"
	inthttp "github.com/sifan077/LinkShield/internal/http/handler"
	"github.com/sifan077/LinkShield/internal/http/middleware"
	"go.uber.org/zap"
)

// Dependencies bundles what the HTTP server needs. Redis and HTTPMetrics are
// optional.
type Dependencies struct {
	Logger      *zap.Logger
	Redis       redis.Cmdable
	HTTPMetrics *middleware.HTTPMetrics
	LinkService service.LinkService
	Shield      inthttp.ShieldDeps
	CORSOrigins []string
	RateLimit   middleware.RateLimitConfig
}

// Server wraps the Fiber application and its dependencies.
type Server struct {
	app  *fiber.App
	deps Dependencies
}

// New creates a new HTTP server instance with all routes registered.
func New(deps Dependencies) *Server {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Shield.Logger == nil {
		deps.Shield.Logger = deps.Logger
	}

	// Sessions keep the user agent past the request; fasthttp reuses buffers otherwise.
	app := fiber.New(fiber.Config{
		AppName:               "LinkShield",
		Immutable:             true,
		DisableStartupMessage: true,
	})

	s := &Server{
		app:  app,
		deps: deps,
	}

	s.registerMiddleware()
	s.registerRoutes()
	return s
}

// App exposes the fiber application, mainly for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen starts the Fiber server on the given address.
func (s *Server) Listen(addr string) error {
	return s.app.Listen(addr)
}

// Shutdown gracefully stops the Fiber server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

func (s *Server) registerMiddleware() {
	s.app.Use(middleware.Recovery(s.deps.Logger))
	s.app.Use(middleware.RequestID())
	if s.deps.HTTPMetrics != nil {
		s.app.Use(s.deps.HTTPMetrics.Handler())
	}
	s.app.Use(middleware.Logger(s.deps.Logger))
}

func (s *Server) registerRoutes() {
	if s.deps.LinkService != nil {
		s.app.Use("/api", middleware.CORS(s.deps.CORSOrigins))
		apiHandler := inthttp.NewAPIHandler(inthttp.APIDeps{
			Logger:      s.deps.Logger,
			LinkService: s.deps.LinkService,
		})
		apiHandler.Register(s.app)
	}

	var sessionMiddleware []fiber.Handler
	if s.deps.Redis != nil {
		limit := s.deps.RateLimit
		if limit.MaxRequests == 0 {
			limit = middleware.DefaultRateLimitConfig()
		}
		sessionMiddleware = append(sessionMiddleware, middleware.RateLimit(s.deps.Redis, limit, s.deps.Logger))
	}

	// Registered last: its /:slug route would shadow fixed paths.
	shieldHandler := inthttp.NewShieldHandler(s.deps.Shield)
	shieldHandler.Register(s.app, sessionMiddleware...)
}
