package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"

	"collectflow/auth"
	"collectflow/collection"
	"collectflow/config"
	"collectflow/db"
	"collectflow/generator"
	"collectflow/logging"
	"collectflow/scheduler"
	"collectflow/workflow"
)

// app holds the wired service graph shared by the subcommands.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	pool    *pgxpool.Pool
	cases   *collection.PGRepository
	runs    *workflow.PGRunStore
	catalog *workflow.Catalog
	runner  *workflow.Runner
	tokens  auth.Verifier
}

func newLogger(cfg *config.Config, w io.Writer) (*slog.Logger, error) {
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format, w)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)
	return logger, nil
}

// loadCatalog returns the embedded catalog unless a catalog file is configured.
func loadCatalog(cfg *config.Config) (*workflow.Catalog, error) {
	if cfg.Workflow.CatalogFile == "" {
		return workflow.DefaultCatalog()
	}
	data, err := os.ReadFile(cfg.Workflow.CatalogFile)
	if err != nil {
		return nil, fmt.Errorf("read catalog file: %w", err)
	}
	return workflow.LoadCatalog(data)
}

// newGenerator picks the remote generation service when one is configured and
// the local template generator otherwise.
func newGenerator(cfg *config.Config) generator.Generator {
	if cfg.Generator.URL == "" {
		return generator.Template{}
	}
	return generator.NewHTTPClient(cfg.Generator.URL, cfg.Generator.APIKey, cfg.Generator.Timeout)
}

func runnerOptions(cfg *config.Config, logger *slog.Logger) ([]workflow.Option, error) {
	holidays, err := workflow.ParseCalendar(cfg.Workflow.Holidays)
	if err != nil {
		return nil, fmt.Errorf("workflow.holidays: %w", err)
	}
	opts := []workflow.Option{
		workflow.WithLogger(logger),
		workflow.WithHolidays(holidays),
	}
	if cfg.Workflow.GeneratorTimeout > 0 {
		opts = append(opts, workflow.WithGeneratorTimeout(cfg.Workflow.GeneratorTimeout))
	}
	return opts, nil
}

func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	catalog, err := loadCatalog(cfg)
	if err != nil {
		return nil, err
	}
	opts, err := runnerOptions(cfg, logger)
	if err != nil {
		return nil, err
	}

	tokens, err := newVerifier(ctx, cfg)
	if err != nil {
		return nil, err
	}

	pool, err := db.NewPool(ctx, cfg.Database.URL, cfg.Database.MaxConns)
	if err != nil {
		return nil, fmt.Errorf("bootstrap database pool: %w", err)
	}

	cases := collection.NewRepository(pool)
	runs := workflow.NewRunStore(pool)
	deps := workflow.Dependencies{
		Cases:     cases,
		Runs:      runs,
		Catalog:   catalog,
		Generator: newGenerator(cfg),
	}
	if cfg.Workflow.LockCases {
		deps.Locker = cases
	}

	return &app{
		cfg:     cfg,
		logger:  logger,
		pool:    pool,
		cases:   cases,
		runs:    runs,
		catalog: catalog,
		runner:  workflow.NewRunner(deps, opts...),
		tokens:  tokens,
	}, nil
}

// newVerifier accepts locally issued tokens and, when an issuer is configured,
// ID tokens from the OpenID Connect provider.
func newVerifier(ctx context.Context, cfg *config.Config) (auth.Verifier, error) {
	local := auth.NewService(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	if cfg.Auth.OIDC.Issuer == "" {
		return local, nil
	}
	idp, err := auth.NewOIDCVerifier(ctx, auth.OIDCConfig{
		Issuer:    cfg.Auth.OIDC.Issuer,
		ClientID:  cfg.Auth.OIDC.ClientID,
		OrgClaim:  cfg.Auth.OIDC.OrgClaim,
		RoleClaim: cfg.Auth.OIDC.RoleClaim,
	})
	if err != nil {
		return nil, err
	}
	return auth.Chain{local, idp}, nil
}

func (a *app) sweeper() *scheduler.Sweeper {
	return scheduler.NewSweeper(a.cases, a.runner, a.logger).
		WithLimits(a.cfg.Scheduler.Concurrency, a.cfg.Scheduler.BatchSize)
}

func (a *app) Close() {
	if a.pool != nil {
		a.pool.Close()
	}
}
