package app

import (
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/hinfinity/hrdesk/internal/audit"
	"github.com/hinfinity/hrdesk/internal/documents"
	"github.com/hinfinity/hrdesk/internal/eligibility"
	"github.com/hinfinity/hrdesk/internal/projects"
	"github.com/hinfinity/hrdesk/internal/shared"
	"github.com/hinfinity/hrdesk/internal/teams"
	"github.com/hinfinity/hrdesk/internal/users"
	"github.com/hinfinity/hrdesk/jobs"
)

// Services bundles the domain services shared by the API and the worker.
type Services struct {
	Documents   *documents.Service
	Users       *users.Service
	Teams       *teams.Service
	Projects    *projects.Service
	Audit       *audit.Service
	Idempotency *shared.IdempotencyStore
}

// NewServices builds every domain service over the shared pool, Redis client
// and job queue client.
func NewServices(cfg *Config, logger *slog.Logger, pool *pgxpool.Pool, redisClient redis.Cmdable, queue *jobs.Client) (*Services, error) {
	policies, err := eligibility.LoadCatalog(cfg.EligibilityCatalog)
	if err != nil {
		return nil, err
	}
	checker, err := eligibility.NewChecker(policies)
	if err != nil {
		return nil, fmt.Errorf("app: eligibility catalog: %w", err)
	}

	auditLogger := shared.NewAuditLogger(pool)
	userService := users.NewService(users.NewRepository(pool), auditLogger, logger)

	documentService := documents.NewService(documents.Deps{
		Repo:       documents.NewRepository(pool),
		Checker:    checker,
		Facts:      userService,
		Audit:      auditLogger,
		Notifier:   queue,
		Dispatcher: queue,
		Locker:     shared.NewRedisLocker(redisClient),
		Logger:     logger,
	}, documents.Options{
		MaxEscalationLevel: cfg.EscalationMaxLevel,
		SweepConcurrency:   cfg.SweepConcurrency,
		LockTTL:            cfg.EscalationLockTTL,
	})

	teamService := teams.NewService(teams.NewRepository(pool), auditLogger, logger)

	return &Services{
		Documents:   documentService,
		Users:       userService,
		Teams:       teamService,
		Projects:    projects.NewService(projects.NewRepository(pool), teamService, auditLogger, logger),
		Audit:       audit.NewService(audit.NewRepository(pool)),
		Idempotency: shared.NewIdempotencyStore(pool),
	}, nil
}
