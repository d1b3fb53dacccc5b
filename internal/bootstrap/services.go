package bootstrap

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/reachcapital/portal/config"
	redisadapter "github.com/reachcapital/portal/internal/adapters/redis"
	"github.com/reachcapital/portal/internal/data"
	"github.com/reachcapital/portal/internal/observability/statsd"
	"github.com/reachcapital/portal/internal/ports"
	"github.com/reachcapital/portal/internal/service"
)

// ServiceDeps are the connections every portal service is built over.
type ServiceDeps struct {
	Config      *config.AppConfig
	DB          *sql.DB
	RedisClient redis.UniversalClient
	Metrics     statsd.Sink
	Logger      *slog.Logger
}

// ServiceContainer holds the wired portal services.
type ServiceContainer struct {
	Auth        *service.AuthService
	Gate        *service.StudentGate
	Local       ports.LocalStore
	Identities  *data.IdentityRepo
	Submissions *data.SubmissionRepo
}

// NewServices wires the Redis adapters, Postgres repositories and sign-in
// providers into the auth facade and the student gate.
func NewServices(deps *ServiceDeps) (ServiceContainer, error) {
	if deps == nil || deps.Config == nil {
		return ServiceContainer{}, errors.New("service deps with config are required")
	}
	if deps.DB == nil || deps.RedisClient == nil {
		return ServiceContainer{}, errors.New("database and redis connections are required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cfg := deps.Config

	providers, err := BuildOAuthProviders(cfg, logger)
	if err != nil {
		return ServiceContainer{}, err
	}
	signer, mail, err := BuildEmailLinks(cfg, logger)
	if err != nil {
		return ServiceContainer{}, err
	}

	local := redisadapter.NewLocalStore(deps.RedisClient, cfg.Session.LocalTTL)
	identities := data.NewIdentityRepo(deps.DB)
	submissions := data.NewSubmissionRepo(deps.DB)

	auth, err := service.NewAuthService(service.AuthServiceOptions{
		Sessions:   redisadapter.NewSessionStore(deps.RedisClient),
		Attempts:   redisadapter.NewAttemptStore(deps.RedisClient),
		Local:      local,
		Events:     redisadapter.NewEventBus(deps.RedisClient, logger),
		Identities: identities,
		Signer:     signer,
		Mailer:     mail,
		OAuth:      providers,
		BaseURL:    cfg.HTTP.BaseURL,
		SessionTTL: cfg.Session.TTL,
		AttemptTTL: cfg.Session.AttemptTTL,
		LinkTTL:    cfg.Session.LinkTTL,
		Logger:     logger,
		Metrics:    deps.Metrics,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("auth service: %w", err)
	}

	gate, err := service.NewStudentGate(service.StudentGateOptions{
		Local:       local,
		Submissions: submissions,
		Logger:      logger,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("student gate: %w", err)
	}

	logger.Info("portal services ready",
		"email_links", auth.EmailLinksEnabled(),
		"oauth_providers", auth.OAuthProviders())

	return ServiceContainer{
		Auth:        auth,
		Gate:        gate,
		Local:       local,
		Identities:  identities,
		Submissions: submissions,
	}, nil
}
