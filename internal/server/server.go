// Package server is the LearnHub auth HTTP API. It mounts the SMS login,
// token refresh and logout, WeChat web login, and profile routes under
// /api/v1 on a gin engine, plus /healthz.
//
// Every JSON response is wrapped in an [Envelope] and carries the request
// id from the x-request-id header.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/StricklySoft/learnhub-auth/pkg/auth"
	sserr "github.com/StricklySoft/learnhub-auth/pkg/errors"
	"github.com/StricklySoft/learnhub-auth/pkg/identity"
	"github.com/StricklySoft/learnhub-auth/pkg/lifecycle"
	"github.com/StricklySoft/learnhub-auth/pkg/models"
	"github.com/StricklySoft/learnhub-auth/pkg/tokens"
)

// OTPService is implemented by *otp.Service.
type OTPService interface {
	Send(ctx context.Context, phone, ip string) error
	Verify(ctx context.Context, phone, code string) (*models.SmsOtp, bool, error)
}

// TokenService is implemented by *tokens.Service.
type TokenService interface {
	IssuePair(ctx context.Context, userID string) (tokens.TokenPair, error)
	IssueAccessToken(userID string) (string, error)
	Rotate(ctx context.Context, raw string) (newRaw, userID string, err error)
	Revoke(ctx context.Context, raw string) (bool, error)
}

// Provisioner is implemented by *identity.Provisioner.
type Provisioner interface {
	ResolveOrCreate(ctx context.Context, provider models.Provider, subject string, profile identity.Profile) (string, error)
	User(ctx context.Context, id string) (*models.User, error)
}

// KeyValue holds short-lived login state. *redis.Client implements it.
type KeyValue interface {
	Set(ctx context.Context, key string, value any, expiration time.Duration) error
	GetDel(ctx context.Context, key string) (string, error)
}

// HealthChecker is implemented by *lifecycle.Service.
type HealthChecker interface {
	Health(ctx context.Context) (lifecycle.HealthReport, error)
}

// Deps are the collaborators behind the routes. Health may be nil.
type Deps struct {
	Gateway    *auth.Gateway
	OTP        OTPService
	Tokens     TokenService
	Identities Provisioner
	Sessions   KeyValue
	Health     HealthChecker
}

// Config configures the routes.
type Config struct {
	// AuthProvider is the provider name recorded for identities created
	// from external bearer tokens.
	AuthProvider models.Provider

	WeChat WeChatConfig

	// TrustedProxies lists the proxies whose forwarding headers are
	// trusted for the client IP. Empty trusts none.
	TrustedProxies []string
}

// Server owns the gin engine.
type Server struct {
	deps   Deps
	cfg    Config
	logger *slog.Logger
	engine *gin.Engine
}

// New validates deps and builds the engine with every route mounted.
func New(deps Deps, cfg Config, logger *slog.Logger) (*Server, error) {
	if deps.Gateway == nil || deps.OTP == nil || deps.Tokens == nil ||
		deps.Identities == nil || deps.Sessions == nil {
		return nil, sserr.New(sserr.CodeInternalConfiguration, "server: missing dependency")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.AuthProvider == "" {
		cfg.AuthProvider = models.ProviderBetterAuth
	}
	cfg.WeChat = cfg.WeChat.withDefaults()

	s := &Server{deps: deps, cfg: cfg, logger: logger}

	engine := gin.New()
	if err := engine.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		return nil, sserr.Wrap(err, sserr.CodeInternalConfiguration, "server: invalid trusted proxies")
	}
	engine.Use(requestIDMiddleware(), s.recoveryMiddleware(), loggingMiddleware(logger))
	engine.NoRoute(func(c *gin.Context) {
		s.respondError(c, sserr.NotFound("server: route not found"))
	})
	s.engine = engine
	s.routes()
	return s, nil
}

func (s *Server) routes() {
	s.engine.GET("/healthz", s.handleHealthz)

	api := s.engine.Group("/api/v1")
	{
		authRoutes := api.Group("/auth")
		authRoutes.POST("/sms/send", s.handleSMSSend)
		authRoutes.POST("/sms/verify", s.handleSMSVerify)
		authRoutes.POST("/refresh", s.handleRefresh)
		authRoutes.POST("/logout", s.handleLogout)
		authRoutes.POST("/exchange", s.handleExchange)
		authRoutes.GET("/wechat/web/authorize", s.handleWeChatAuthorize)
		authRoutes.GET("/wechat/web/callback", s.handleWeChatCallback)
	}

	protected := api.Group("", s.deps.Gateway.GinMiddleware(s.gatewayResponder))
	{
		protected.GET("/me", s.handleMe)
	}
}

// Handler returns the engine as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// HTTPServer returns an *http.Server for addr with conservative
// timeouts.
func (s *Server) HTTPServer(addr string) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}
