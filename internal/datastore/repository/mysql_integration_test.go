//go:build integration

package repository_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/metrink/metrink-go/internal/conf"
	"github.com/metrink/metrink-go/internal/datastore"
	"github.com/metrink/metrink-go/internal/datastore/entities"
	"github.com/metrink/metrink-go/internal/datastore/repository"
	"github.com/metrink/metrink-go/internal/metric"
	"github.com/metrink/metrink-go/internal/testutil/containers"
)

// MySQL database shared across all tests in this package
var mysqlDB *gorm.DB

// TestMain starts MySQL once and applies the schema.
func TestMain(m *testing.M) {
	ctx := context.Background()

	mysqlContainer, err := containers.NewMySQLContainer(ctx, nil)
	if err != nil {
		panic("failed to create MySQL container: " + err.Error())
	}

	mysqlDB, err = datastore.Open(conf.DatabaseSettings{Driver: datastore.DriverMySQL, DSN: mysqlContainer.DSN()}, nil)
	if err != nil {
		_ = mysqlContainer.Terminate(context.Background())
		panic("failed to open database: " + err.Error())
	}
	if err := datastore.Migrate(mysqlDB); err != nil {
		_ = mysqlContainer.Terminate(context.Background())
		panic("failed to run migrations: " + err.Error())
	}

	code := m.Run()

	_ = datastore.Close(mysqlDB)
	if err := mysqlContainer.Terminate(context.Background()); err != nil {
		panic("failed to terminate MySQL container: " + err.Error())
	}
	os.Exit(code)
}

func TestMySQL_SampleRoundTripAndCatalog(t *testing.T) {
	repo := repository.NewSampleRepository(mysqlDB)
	ctx := t.Context()

	id := metric.Identity{Device: "db1", Group: "disk", Name: "free"}
	batch := []metric.AggregatedSample{
		{Sample: metric.Sample{Identity: id, Timestamp: 60_000, Value: 10, Unit: "GB"}, Count: 3},
		{Sample: metric.Sample{Identity: id, Timestamp: 120_000, Value: 9.5, Unit: "GB"}, Count: 1},
	}
	require.NoError(t, repo.Write(ctx, batch))
	require.NoError(t, repo.Write(ctx, batch[1:]), "catalog upsert tolerates known identities")
	require.NoError(t, repo.Write(ctx, batch[:1]), "late sample")

	got, err := repo.ReadRange(ctx, id, 0, 180_000)
	require.NoError(t, err)
	assert.Len(t, got, 4)

	items, err := repository.NewCatalogRepository(mysqlDB).ListIdentities(ctx, repository.CatalogFilter{Device: "db1"})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, int64(120_000), items[0].LastSeen)

	deleted, err := repo.DeleteBefore(ctx, 120_000)
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)
}

func TestMySQL_DefinitionWatermark(t *testing.T) {
	repo := repository.NewAlertDefinitionRepository(mysqlDB)
	ctx := t.Context()

	def := &entities.AlertDefinition{OwnerID: 3, Definition: `m("db1","disk","free") < 1 do log`, Enabled: true}
	require.NoError(t, repo.Create(ctx, def))
	rows, err := repo.ModifiedSince(ctx, 0)
	require.NoError(t, err)
	require.NotEmpty(t, rows)
	watermark := rows[len(rows)-1].ModifiedAt

	time.Sleep(5 * time.Millisecond)
	require.NoError(t, repo.SetEnabled(ctx, def.ID, false))

	rows, err = repo.ModifiedSince(ctx, watermark)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.False(t, rows[0].Enabled)
}

func TestMySQL_HistoryTimes(t *testing.T) {
	repo := repository.NewAlertHistoryRepository(mysqlDB)
	ctx := t.Context()

	fired := time.Date(2024, 5, 1, 8, 30, 0, 0, time.UTC)
	require.NoError(t, repo.Save(ctx, &entities.AlertHistory{AlertID: 9, OwnerID: 3, FiredAt: fired, Device: "d", Group: "g", Name: "n"}))

	items, _, err := repo.List(ctx, repository.AlertHistoryFilter{AlertID: 9})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.True(t, fired.Equal(items[0].FiredAt.UTC()), "DATETIME parses back into time.Time")
}
