package test_utils

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/grouplan/grouplan/internal/config"
	"github.com/grouplan/grouplan/internal/database"
	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

const (
	testDbName = "grouplan"
	testDbUser = "test_grouplan"
	testDbPass = "test_grouplan"
)

var (
	containerOnce sync.Once
	containerCfg  config.Database
	containerErr  error
)

func startPostgres() (config.Database, error) {
	ctx := context.Background()

	projectRoot, err := findProjectRoot()
	if err != nil {
		return config.Database{}, fmt.Errorf("failed to find project root: %v", err)
	}

	container, err := postgres.Run(
		ctx, "postgres:18.1-alpine",
		postgres.WithInitScripts(filepath.Join(projectRoot, "dev", "init.sql")),
		postgres.WithDatabase(testDbName),
		postgres.WithUsername(testDbUser),
		postgres.WithPassword(testDbPass),
		postgres.BasicWaitStrategies(),
	)
	if err != nil {
		return config.Database{}, err
	}

	host, err := container.Host(ctx)
	if err != nil {
		return config.Database{}, err
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		return config.Database{}, err
	}
	log.Infof("Postgres container started at %s:%d", host, port.Int())

	cfg := config.Database{
		Host:   host,
		Port:   port.Int(),
		User:   testDbUser,
		Pass:   testDbPass,
		Name:   testDbName,
		Schema: "grouplan",
	}
	if err := database.Migrate(cfg); err != nil {
		return config.Database{}, fmt.Errorf("failed to apply migrations: %w", err)
	}
	return cfg, nil
}

// TestWithDB returns a pool connected to a migrated Postgres container shared by the whole test
// binary. Every call starts from empty tables. The test is skipped in -short mode or when no
// container runtime is available.
func TestWithDB(t *testing.T) *pgxpool.Pool {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping database test in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	containerOnce.Do(func() {
		containerCfg, containerErr = startPostgres()
	})
	if containerErr != nil {
		t.Skipf("postgres container unavailable: %v", containerErr)
	}

	pool, err := database.Open(containerCfg)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	_, err = pool.Exec(context.Background(), "TRUNCATE class, class_grade, saved_class_time, class_time, schedule, group_member, schedule_group, users")
	require.NoError(t, err)

	return pool
}

// findProjectRoot walks up from the working directory until it finds go.mod.
func findProjectRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	for {
		if fileExists(filepath.Join(dir, "go.mod")) {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("could not find project root")
		}
		dir = parent
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
