package infra

import (
	"context"
	"fmt"
	"os"

	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

const (
	containerImage = "postgres:16-alpine"
	containerCreds = "collectflow"
)

// PGContainer is a throwaway Postgres container. A zero value stands for an
// externally managed database and terminates as a no-op.
type PGContainer struct {
	C *postgres.PostgresContainer
}

// StartPostgres returns a DSN for a fresh Postgres 16 container, or for
// overrideDSN / STRESS_TEST_PG_DSN when either is set.
func StartPostgres(ctx context.Context, overrideDSN string) (*PGContainer, string, error) {
	if overrideDSN != "" {
		return &PGContainer{}, overrideDSN, nil
	}
	if dsn := os.Getenv("STRESS_TEST_PG_DSN"); dsn != "" {
		return &PGContainer{}, dsn, nil
	}
	return runContainer(ctx)
}

func runContainer(ctx context.Context) (*PGContainer, string, error) {
	pgC, err := postgres.Run(ctx,
		containerImage,
		postgres.WithDatabase(containerCreds),
		postgres.WithUsername(containerCreds),
		postgres.WithPassword(containerCreds),
		postgres.BasicWaitStrategies(),
	)
	if err != nil {
		return nil, "", fmt.Errorf("start postgres container: %w", err)
	}

	dsn, err := pgC.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = pgC.Terminate(ctx)
		return nil, "", fmt.Errorf("resolve connection string: %w", err)
	}
	return &PGContainer{C: pgC}, dsn, nil
}

func (p *PGContainer) Terminate(ctx context.Context) error {
	if p == nil || p.C == nil {
		return nil
	}
	return p.C.Terminate(ctx)
}
