//go:build integration

package repository_test

import (
	"context"
	"sync"
	"testing"

	"github.com/ikon5387/ikon-systems-dashboard-v2-sub001/internal/models"
	"github.com/ikon5387/ikon-systems-dashboard-v2-sub001/internal/repository"
	"github.com/ikon5387/ikon-systems-dashboard-v2-sub001/pkg/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"gorm.io/gorm"
)

func startPostgres(t *testing.T) *gorm.DB {
	t.Helper()
	ctx := context.Background()

	ctr, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("engine"),
		postgres.WithUsername("engine"),
		postgres.WithPassword("engine"),
		postgres.BasicWaitStrategies(),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = testcontainers.TerminateContainer(ctr) })

	dsn, err := ctr.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := database.OpenPostgres(ctx, dsn, false)
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close(db) })
	require.NoError(t, repository.Migrate(db))
	return db
}

func TestPostgresRegistry(t *testing.T) {
	db := startPostgres(t)
	deployments := repository.NewDeploymentRepository(db,
		repository.WithSubdomainGenerator(func() string { return "same-name-1" }))
	logs := repository.NewLogRepository(db)
	ctx := context.Background()

	d := newDeployment("tenant-pg")
	require.NoError(t, deployments.Create(ctx, d))

	// every later candidate collides, so the unique index must reject it
	require.Error(t, deployments.Create(ctx, newDeployment("tenant-pg")))

	var wg sync.WaitGroup
	for k := 0; k < 10; k++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := deployments.Mutate(ctx, d.ID, func(m *models.Deployment) error {
				m.Version++
				return nil
			})
			assert.NoError(t, err)
			_, err = logs.Append(ctx, d.ID, models.LevelInfo, "bump", nil)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := deployments.GetByID(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, got.Version)

	entries, err := logs.ListByDeployment(ctx, d.ID)
	require.NoError(t, err)
	require.Len(t, entries, 10)
	assert.Equal(t, int64(10), entries[0].Seq)
}
