// Package app wires the LearnHub auth process together: it opens the
// PostgreSQL and Redis clients, builds the services behind the HTTP API,
// and runs them under a lifecycle that drives /healthz and graceful
// shutdown.
package app

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/StricklySoft/learnhub-auth/internal/server"
	"github.com/StricklySoft/learnhub-auth/internal/store"
	"github.com/StricklySoft/learnhub-auth/pkg/auth"
	"github.com/StricklySoft/learnhub-auth/pkg/clients/postgres"
	redisclient "github.com/StricklySoft/learnhub-auth/pkg/clients/redis"
	sserr "github.com/StricklySoft/learnhub-auth/pkg/errors"
	"github.com/StricklySoft/learnhub-auth/pkg/identity"
	"github.com/StricklySoft/learnhub-auth/pkg/lifecycle"
	"github.com/StricklySoft/learnhub-auth/pkg/models"
	"github.com/StricklySoft/learnhub-auth/pkg/otp"
	"github.com/StricklySoft/learnhub-auth/pkg/tasks"
	"github.com/StricklySoft/learnhub-auth/pkg/tokens"
)

// ServiceName identifies the process in logs and traces.
const ServiceName = "learnhub-auth"

// Version is set at build time with -ldflags.
var Version = "dev"

// DefaultShutdownTimeout bounds graceful shutdown when the config leaves
// it unset.
const DefaultShutdownTimeout = 15 * time.Second

// Infra holds the external clients the process owns. Dispatcher is nil
// unless SMS delivery goes through the task queue.
type Infra struct {
	Postgres   *postgres.Client
	Redis      *redisclient.Client
	Dispatcher *tasks.Dispatcher
}

// Connect opens the clients described by cfg. On failure, clients opened
// so far are closed.
func Connect(ctx context.Context, cfg Config) (infra Infra, err error) {
	defer func() {
		if err != nil {
			infra.Close()
		}
	}()

	infra.Postgres, err = postgres.NewClient(ctx, cfg.Postgres)
	if err != nil {
		return infra, err
	}
	infra.Redis, err = redisclient.NewClient(ctx, cfg.Redis)
	if err != nil {
		return infra, err
	}
	if cfg.SMSDelivery == SMSDeliveryTask {
		infra.Dispatcher, err = tasks.NewRedisDispatcher(cfg.Redis, nil)
		if err != nil {
			return infra, err
		}
	}
	return infra, nil
}

// Close releases every client that is set.
func (i Infra) Close() {
	if i.Dispatcher != nil {
		_ = i.Dispatcher.Close()
	}
	if i.Redis != nil {
		_ = i.Redis.Close()
	}
	if i.Postgres != nil {
		i.Postgres.Close()
	}
}

// App is a built, not yet started, API process.
type App struct {
	cfg     Config
	logger  *slog.Logger
	service *lifecycle.Service
	server  *server.Server
	grpc    *grpc.Server
	keys    *auth.KeyCache
}

// New builds every service on top of infra. The returned App owns infra
// and closes it when it stops.
func New(cfg Config, infra Infra, logger *slog.Logger) (*App, error) {
	if infra.Postgres == nil || infra.Redis == nil {
		return nil, sserr.New(sserr.CodeInternalConfiguration, "app: postgres and redis clients are required")
	}
	if cfg.SMSDelivery == SMSDeliveryTask && infra.Dispatcher == nil {
		return nil, sserr.New(sserr.CodeInternalConfiguration, "app: task delivery requires a dispatcher")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = DefaultShutdownTimeout
	}

	stores := store.New(infra.Postgres)

	var sender otp.Sender = otp.NewLogSender(logger)
	if cfg.SMSDelivery == SMSDeliveryTask {
		sender = otp.NewTaskSender(infra.Dispatcher)
	}
	otpSvc, err := otp.NewService(stores.Otps, infra.Redis, sender, otp.Config{
		CodeTTL:       cfg.SMSCodeTTL,
		PhoneCooldown: cfg.SMSPhoneCooldown,
		IPHourlyLimit: cfg.SMSIPHourlyLimit,
		MaxAttempts:   cfg.SMSMaxAttempts,
	}, logger)
	if err != nil {
		return nil, err
	}

	tokenSvc, err := tokens.NewService(stores.RefreshTokens, tokens.Config{
		Secret:          cfg.JWTSecret,
		Algorithm:       cfg.JWTAlgorithm,
		AccessTokenTTL:  cfg.AccessTokenTTL,
		RefreshTokenTTL: cfg.RefreshTokenTTL,
	})
	if err != nil {
		return nil, err
	}

	keys, err := auth.NewKeyCache(auth.KeyCacheConfig{JWKSURL: cfg.JWKSURL, TTL: cfg.JWKSCacheTTL})
	if err != nil {
		return nil, err
	}
	verifier, err := auth.NewVerifier(keys, auth.VerifierConfig{Issuer: cfg.Issuer, Audience: cfg.Audience})
	if err != nil {
		return nil, err
	}
	if cfg.DevBypass {
		logger.Warn("app: auth dev bypass is enabled; every request is authenticated as the dev user",
			"subject", cfg.DevSubject)
	}
	gateway := auth.NewGateway(verifier, tokenSvc, auth.GatewayConfig{
		DevBypass:  cfg.DevBypass,
		DevSubject: cfg.DevSubject,
	})

	a := &App{cfg: cfg, logger: logger, keys: keys}

	var grpcHealth *health.Server
	if cfg.GRPCAddr != "" {
		a.grpc = grpc.NewServer(
			grpc.ChainUnaryInterceptor(gateway.UnaryServerInterceptor()),
			grpc.ChainStreamInterceptor(gateway.StreamServerInterceptor()),
		)
		grpcHealth = health.NewServer()
		grpcHealth.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
		healthpb.RegisterHealthServer(a.grpc, grpcHealth)
	}

	a.service, err = lifecycle.NewBuilder(ServiceName, Version).
		WithLogger(logger).
		WithCheck("postgres", infra.Postgres.Health).
		WithCheck("redis", infra.Redis.Health).
		OnStart(a.warmKeys).
		OnStop(func(context.Context) error {
			infra.Close()
			return nil
		}).
		OnStateChange(func(old, new lifecycle.State) {
			logger.Info("app: state changed", "from", old.String(), "to", new.String())
			if grpcHealth == nil {
				return
			}
			if new == lifecycle.StateRunning {
				grpcHealth.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
			} else {
				grpcHealth.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
			}
		}).
		Build()
	if err != nil {
		return nil, err
	}

	a.server, err = server.New(server.Deps{
		Gateway:    gateway,
		OTP:        otpSvc,
		Tokens:     tokenSvc,
		Identities: identity.NewProvisioner(stores.Identities, logger),
		Sessions:   infra.Redis,
		Health:     a.service,
	}, server.Config{
		AuthProvider: models.Provider(cfg.AuthProviderName),
		WeChat: server.WeChatConfig{
			AppID:               cfg.WeChatAppID,
			Mock:                cfg.WeChatMock,
			RedirectURI:         cfg.WeChatRedirectURI,
			FrontendCallbackURL: cfg.FrontendCallbackURL,
		},
		TrustedProxies: cfg.TrustedProxies,
	}, logger)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// warmKeys loads the signing keys before traffic arrives. A failure is
// not fatal: the cache fetches again on the first external token.
func (a *App) warmKeys(ctx context.Context) error {
	if err := a.keys.Refresh(ctx); err != nil {
		a.logger.WarnContext(ctx, "app: could not preload signing keys", "error", err)
	}
	return nil
}

// Handler returns the HTTP handler.
func (a *App) Handler() http.Handler {
	return a.server.Handler()
}

// Lifecycle returns the process lifecycle.
func (a *App) Lifecycle() *lifecycle.Service {
	return a.service
}

// Run starts the lifecycle and serves HTTP (and gRPC health when
// configured) until ctx is canceled or a listener fails, then shuts
// everything down within the configured timeout.
func (a *App) Run(ctx context.Context) error {
	if err := a.service.Start(ctx); err != nil {
		return err
	}

	httpSrv := a.server.HTTPServer(a.cfg.HTTPAddr)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.logger.Info("app: http listening", "addr", a.cfg.HTTPAddr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return sserr.Wrap(err, sserr.CodeUnavailable, "app: http server failed")
		}
		return nil
	})

	if a.grpc != nil {
		lis, err := net.Listen("tcp", a.cfg.GRPCAddr)
		if err != nil {
			_ = httpSrv.Close()
			_ = a.service.Stop(context.WithoutCancel(ctx))
			return sserr.Wrap(err, sserr.CodeUnavailable, "app: grpc listen failed")
		}
		g.Go(func() error {
			a.logger.Info("app: grpc listening", "addr", a.cfg.GRPCAddr)
			if err := a.grpc.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				return sserr.Wrap(err, sserr.CodeUnavailable, "app: grpc server failed")
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.ShutdownTimeout)
		defer cancel()

		a.logger.Info("app: shutting down")
		if a.grpc != nil {
			a.grpc.GracefulStop()
		}
		return errors.Join(httpSrv.Shutdown(shutdownCtx), a.service.Stop(shutdownCtx))
	})

	return g.Wait()
}
