package repository

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gorm_logger "gorm.io/gorm/logger"

	"github.com/metrink/metrink-go/internal/datastore"
	"github.com/metrink/metrink-go/internal/datastore/entities"
	"github.com/metrink/metrink-go/internal/errors"
	"github.com/metrink/metrink-go/internal/metric"
)

// setupTestDB creates an in-memory SQLite database with the full schema.
// A single connection keeps every operation on the same in-memory database.
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: gorm_logger.Default.LogMode(gorm_logger.Silent),
	})
	require.NoError(t, err, "failed to open in-memory database")

	sqlDB, err := db.DB()
	require.NoError(t, err, "failed to get sql.DB")
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, datastore.Migrate(db), "failed to migrate schema")
	return db
}

func aggregated(device, group, name string, ts int64, value float64, count int) metric.AggregatedSample {
	return metric.AggregatedSample{
		Sample: metric.Sample{
			Identity:  metric.Identity{Device: device, Group: group, Name: name},
			Timestamp: ts,
			Value:     value,
			Unit:      "ms",
		},
		Count: count,
	}
}

func TestSampleRepository_WriteAndReadRange(t *testing.T) {
	repo := NewSampleRepository(setupTestDB(t))
	ctx := t.Context()

	cpu := metric.Identity{Device: "web1", Group: "cpu", Name: "load"}
	require.NoError(t, repo.Write(ctx, []metric.AggregatedSample{
		aggregated("web1", "cpu", "load", 120_000, 3, 2),
		aggregated("web1", "cpu", "load", 60_000, 1, 1),
		aggregated("web1", "cpu", "load", 180_000, 5, 1),
		aggregated("web1", "mem", "used", 60_000, 42, 1),
	}))

	got, err := repo.ReadRange(ctx, cpu, 60_000, 180_000)
	require.NoError(t, err)
	require.Len(t, got, 2, "end is exclusive")
	assert.Equal(t, int64(60_000), got[0].Timestamp)
	assert.InDelta(t, 3.0, got[1].Value, 0)
	assert.Equal(t, cpu, got[1].Identity)
}

func TestSampleRepository_WriteEmptyBatch(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSampleRepository(db)

	require.NoError(t, repo.Write(t.Context(), nil))

	var count int64
	require.NoError(t, db.Model(&entities.Sample{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestSampleRepository_WriteMaintainsCatalog(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSampleRepository(db)
	catalog := NewCatalogRepository(db)
	ctx := t.Context()

	require.NoError(t, repo.Write(ctx, []metric.AggregatedSample{
		aggregated("web1", "cpu", "load", 60_000, 1, 1),
		aggregated("web1", "cpu", "load", 120_000, 1, 1),
	}))
	require.NoError(t, repo.Write(ctx, []metric.AggregatedSample{
		aggregated("web1", "cpu", "load", 300_000, 1, 1),
		aggregated("db1", "disk", "free", 300_000, 1, 1),
	}))

	items, err := catalog.ListIdentities(ctx, CatalogFilter{})
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "db1", items[0].Device)
	assert.Equal(t, "web1", items[1].Device)
	assert.Equal(t, int64(300_000), items[1].LastSeen)

	items, err = catalog.ListIdentities(ctx, CatalogFilter{Group: "cpu"})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "load", items[0].Name)
}

func TestSampleRepository_LateSamplesKeepLastSeen(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSampleRepository(db)
	ctx := t.Context()

	require.NoError(t, repo.Write(ctx, []metric.AggregatedSample{aggregated("web1", "cpu", "load", 300_000, 1, 1)}))
	require.NoError(t, repo.Write(ctx, []metric.AggregatedSample{aggregated("web1", "cpu", "load", 60_000, 1, 1)}))

	items, err := NewCatalogRepository(db).ListIdentities(ctx, CatalogFilter{})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, int64(300_000), items[0].LastSeen)
}

func TestSampleRepository_DeleteBefore(t *testing.T) {
	repo := NewSampleRepository(setupTestDB(t))
	ctx := t.Context()

	require.NoError(t, repo.Write(ctx, []metric.AggregatedSample{
		aggregated("a", "b", "c", 60_000, 1, 1),
		aggregated("a", "b", "c", 120_000, 1, 1),
		aggregated("a", "b", "c", 180_000, 1, 1),
	}))

	deleted, err := repo.DeleteBefore(ctx, 180_000)
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	left, err := repo.ReadRange(ctx, metric.Identity{Device: "a", Group: "b", Name: "c"}, 0, 1<<62)
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.Equal(t, int64(180_000), left[0].Timestamp)
}

func TestSampleRepository_WriteFailureIsStorageError(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSampleRepository(db)
	require.NoError(t, db.Migrator().DropTable(&entities.Sample{}))

	err := repo.Write(t.Context(), []metric.AggregatedSample{aggregated("a", "b", "c", 60_000, 1, 1)})
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryStorage))
}

func TestAlertDefinitionRepository_ModifiedSince(t *testing.T) {
	repo := NewAlertDefinitionRepository(setupTestDB(t))
	ctx := t.Context()

	first := &entities.AlertDefinition{OwnerID: 1, Definition: `m("a","b","c") > 1 do log`, Enabled: true}
	require.NoError(t, repo.Create(ctx, first))
	time.Sleep(2 * time.Millisecond)
	second := &entities.AlertDefinition{OwnerID: 2, Definition: `m("a","b","d") > 1 do log`, Enabled: true}
	require.NoError(t, repo.Create(ctx, second))

	all, err := repo.ModifiedSince(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, first.ID, all[0].ID, "ordered by modification time")
	assert.Positive(t, all[0].ModifiedAt)

	newer, err := repo.ModifiedSince(ctx, all[0].ModifiedAt)
	require.NoError(t, err)
	require.Len(t, newer, 1)
	assert.Equal(t, second.ID, newer[0].ID)

	time.Sleep(2 * time.Millisecond)
	require.NoError(t, repo.SetEnabled(ctx, first.ID, false))

	changed, err := repo.ModifiedSince(ctx, all[1].ModifiedAt)
	require.NoError(t, err)
	require.Len(t, changed, 1, "toggling bumps modified_at")
	assert.Equal(t, first.ID, changed[0].ID)
	assert.False(t, changed[0].Enabled)
}

func TestAlertDefinitionRepository_UpdateAndDelete(t *testing.T) {
	repo := NewAlertDefinitionRepository(setupTestDB(t))
	ctx := t.Context()

	def := &entities.AlertDefinition{OwnerID: 1, Definition: "old", Enabled: true}
	require.NoError(t, repo.Create(ctx, def))

	def.Definition = "new"
	def.Enabled = false
	require.NoError(t, repo.Update(ctx, def))

	got, err := repo.Get(ctx, def.ID)
	require.NoError(t, err)
	assert.Equal(t, "new", got.Definition)
	assert.False(t, got.Enabled)

	require.NoError(t, repo.Delete(ctx, def.ID))
	_, err = repo.Get(ctx, def.ID)
	require.ErrorIs(t, err, ErrAlertDefinitionNotFound)
	require.ErrorIs(t, repo.Delete(ctx, def.ID), ErrAlertDefinitionNotFound)
	require.ErrorIs(t, repo.SetEnabled(ctx, 999, true), ErrAlertDefinitionNotFound)
	require.Error(t, repo.Update(ctx, &entities.AlertDefinition{}))
}

func TestActionRepository_CRUD(t *testing.T) {
	repo := NewActionRepository(setupTestDB(t))
	ctx := t.Context()

	action := &entities.AlertAction{OwnerID: 7, Name: "oncall", Type: "Email", Value: "ops@example.com"}
	require.NoError(t, repo.Create(ctx, action))
	require.ErrorIs(t, repo.Create(ctx, &entities.AlertAction{OwnerID: 7, Name: "oncall", Type: "Log"}), ErrActionNameTaken)

	other := &entities.AlertAction{OwnerID: 7, Name: "backup", Type: "Log"}
	require.NoError(t, repo.Create(ctx, other))
	other.Name = "oncall"
	require.ErrorIs(t, repo.Update(ctx, other), ErrActionNameTaken, "rename onto an existing name")
	require.NoError(t, repo.Delete(ctx, other.ID))

	got, err := repo.GetByName(ctx, "oncall")
	require.NoError(t, err)
	assert.Equal(t, "ops@example.com", got.Value)

	got.Value = "pager@example.com"
	require.NoError(t, repo.Update(ctx, got))

	list, err := repo.List(ctx, 7)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "pager@example.com", list[0].Value)

	require.NoError(t, repo.Delete(ctx, got.ID))
	_, err = repo.GetByName(ctx, "oncall")
	require.ErrorIs(t, err, ErrActionNotFound)
}

func TestAlertHistoryRepository_ListAndPurge(t *testing.T) {
	repo := NewAlertHistoryRepository(setupTestDB(t))
	ctx := t.Context()

	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := range 5 {
		require.NoError(t, repo.Save(ctx, &entities.AlertHistory{
			AlertID: uint(1 + i%2),
			OwnerID: 1,
			FiredAt: base.Add(time.Duration(i) * time.Hour),
			Device:  "web1", Group: "cpu", Name: "load",
			Value: float64(i),
		}))
	}

	items, total, err := repo.List(ctx, AlertHistoryFilter{AlertID: 1, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	require.Len(t, items, 2)
	assert.True(t, items[0].FiredAt.After(items[1].FiredAt), "newest first")

	deleted, err := repo.DeleteBefore(ctx, base.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	_, total, err = repo.List(ctx, AlertHistoryFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
}
