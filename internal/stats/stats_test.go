package stats

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alexivanou/guide-offline/internal/config"
	"github.com/alexivanou/guide-offline/internal/database"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) (*sqlx.DB, config.DBConfig) {
	cfg := config.DBConfig{Type: config.DBTypeMemory, Name: fmt.Sprintf("stats_%d", time.Now().UnixNano())}
	db, err := database.Connect(context.Background(), cfg)
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db, cfg))
	return db, cfg
}

func TestCollector_Collect(t *testing.T) {
	db, cfg := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	now := time.Now().UTC()

	_, err := db.ExecContext(ctx, `INSERT INTO city_packages (city_id, name, country, lat, lng, version_tag, landmark_count, size_bytes, downloaded_at)
		VALUES ('rome', 'Rome', 'Italy', 41.9, 12.5, 'v1', 2, 900, ?)`, now)
	require.NoError(t, err)
	for i, id := range []string{"colosseum", "pantheon"} {
		_, err = db.ExecContext(ctx, `INSERT INTO landmarks (city_id, id, position, name, lat, lng, data) VALUES ('rome', ?, ?, ?, 41.9, 12.5, '{}')`, id, i, id)
		require.NoError(t, err)
	}
	_, err = db.ExecContext(ctx, `INSERT INTO audio_assets (landmark_id, language, audio, size_bytes, checksum, created_at) VALUES ('colosseum', 'en', X'00', 1, 'x', ?)`, now)
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, `INSERT INTO audio_assets (landmark_id, language, audio, size_bytes, checksum, created_at) VALUES ('colosseum', 'it', X'0000', 2, 'y', ?)`, now)
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, `INSERT INTO visit_queue (id, landmark_id, queued_at, status) VALUES ('01A', 'colosseum', ?, 'pending'), ('01B', 'pantheon', ?, 'dead')`, now, now)
	require.NoError(t, err)

	collector := NewCollector(db, cfg)

	stats, err := collector.Collect(ctx)
	require.NoError(t, err)

	assert.Equal(t, "memory", stats.Database.Type)
	assert.Equal(t, int64(7), stats.Database.TotalRecords)

	rows := map[string]int64{}
	for _, ts := range stats.Database.TableStats {
		rows[ts.Name] = ts.RowCount
	}
	assert.Equal(t, map[string]int64{"city_packages": 1, "landmarks": 2, "audio_assets": 2, "visit_queue": 2}, rows)

	assert.Equal(t, StorageSummary{
		Packages:       1,
		Landmarks:      2,
		PackageBytes:   900,
		AudioClips:     2,
		AudioBytes:     3,
		AudioLanguages: 2,
		PendingVisits:  1,
		DeadVisits:     1,
	}, stats.Storage)

	assert.Greater(t, stats.Memory.Alloc, uint64(0))
	assert.GreaterOrEqual(t, stats.Runtime.NumGoroutines, 1)

	stats2, err := collector.Collect(ctx)
	require.NoError(t, err)
	assert.Equal(t, stats.Memory.Alloc, stats2.Memory.Alloc, "memory stats are cached")
}

func TestCollector_EmptyDB(t *testing.T) {
	db, cfg := setupTestDB(t)
	defer db.Close()

	collector := NewCollector(db, cfg)

	stats, err := collector.Collect(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(0), stats.Database.TotalRecords)
	assert.Equal(t, StorageSummary{}, stats.Storage)
}
