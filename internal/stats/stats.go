package stats

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/alexivanou/guide-offline/internal/config"
	"github.com/jmoiron/sqlx"
)

type Stats struct {
	Timestamp time.Time      `json:"timestamp"`
	Memory    MemoryStats    `json:"memory"`
	Database  DatabaseStats  `json:"database"`
	Storage   StorageSummary `json:"storage"`
	Runtime   RuntimeStats   `json:"runtime"`
}

type MemoryStats struct {
	Alloc        uint64 `json:"alloc"`
	TotalAlloc   uint64 `json:"total_alloc"`
	Sys          uint64 `json:"sys"`
	NumGC        uint32 `json:"num_gc"`
	HeapAlloc    uint64 `json:"heap_alloc"`
	HeapSys      uint64 `json:"heap_sys"`
	HeapInuse    uint64 `json:"heap_inuse"`
	HeapReleased uint64 `json:"heap_released"`
}

type DatabaseStats struct {
	Type         string      `json:"type"`
	TotalRecords int64       `json:"total_records"`
	SizeBytes    int64       `json:"size_bytes"`
	TableStats   []TableStat `json:"table_stats"`
}

type TableStat struct {
	Name      string `json:"name"`
	RowCount  int64  `json:"row_count"`
	SizeBytes int64  `json:"size_bytes,omitempty"`
}

// StorageSummary is what the offline store holds for the traveller
type StorageSummary struct {
	Packages       int64 `json:"packages" db:"packages"`
	Landmarks      int64 `json:"landmarks" db:"landmarks"`
	PackageBytes   int64 `json:"package_bytes" db:"package_bytes"`
	AudioClips     int64 `json:"audio_clips" db:"audio_clips"`
	AudioBytes     int64 `json:"audio_bytes" db:"audio_bytes"`
	AudioLanguages int64 `json:"audio_languages" db:"audio_languages"`
	PendingVisits  int64 `json:"pending_visits" db:"pending_visits"`
	DeadVisits     int64 `json:"dead_visits" db:"dead_visits"`
}

type RuntimeStats struct {
	NumGoroutines int   `json:"num_goroutines"`
	NumCPU        int   `json:"num_cpu"`
	UptimeSeconds int64 `json:"uptime_seconds"`
}

type Collector struct {
	db         *sqlx.DB
	config     config.DBConfig
	startTime  time.Time
	cachedMem  *MemoryStats
	cacheTime  time.Time
	cacheMutex sync.RWMutex
}

var (
	memStatsCacheDuration = 5 * time.Second

	trackedTables = []string{"city_packages", "landmarks", "audio_assets", "visit_queue"}
)

const storageSummaryQuery = `
	SELECT
		(SELECT COUNT(*) FROM city_packages) AS packages,
		(SELECT COUNT(*) FROM landmarks) AS landmarks,
		(SELECT COALESCE(SUM(size_bytes), 0) FROM city_packages) AS package_bytes,
		(SELECT COUNT(*) FROM audio_assets) AS audio_clips,
		(SELECT COALESCE(SUM(size_bytes), 0) FROM audio_assets) AS audio_bytes,
		(SELECT COUNT(DISTINCT language) FROM audio_assets) AS audio_languages,
		(SELECT COUNT(*) FROM visit_queue WHERE status = 'pending') AS pending_visits,
		(SELECT COUNT(*) FROM visit_queue WHERE status = 'dead') AS dead_visits
`

func NewCollector(db *sqlx.DB, cfg config.DBConfig) *Collector {
	return &Collector{
		db:        db,
		config:    cfg,
		startTime: time.Now(),
	}
}

func (c *Collector) Collect(ctx context.Context) (*Stats, error) {
	stats := &Stats{
		Timestamp: time.Now(),
	}

	stats.Memory = c.collectMemoryStats()

	dbStats, err := c.collectDatabaseStats(ctx)
	if err != nil {
		return nil, err
	}
	stats.Database = *dbStats

	storage, err := c.collectStorageSummary(ctx)
	if err != nil {
		return nil, err
	}
	stats.Storage = *storage
	stats.Runtime = c.collectRuntimeStats()

	return stats, nil
}

func (c *Collector) collectMemoryStats() MemoryStats {
	c.cacheMutex.RLock()
	if c.cachedMem != nil && time.Since(c.cacheTime) < memStatsCacheDuration {
		mem := *c.cachedMem
		c.cacheMutex.RUnlock()
		return mem
	}
	c.cacheMutex.RUnlock()

	c.cacheMutex.Lock()
	defer c.cacheMutex.Unlock()

	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	mem := MemoryStats{
		Alloc:        m.Alloc,
		TotalAlloc:   m.TotalAlloc,
		Sys:          m.Sys,
		NumGC:        m.NumGC,
		HeapAlloc:    m.HeapAlloc,
		HeapSys:      m.HeapSys,
		HeapInuse:    m.HeapInuse,
		HeapReleased: m.HeapReleased,
	}

	c.cachedMem = &mem
	c.cacheTime = time.Now()

	return mem
}

func (c *Collector) collectDatabaseStats(ctx context.Context) (*DatabaseStats, error) {
	stats := &DatabaseStats{
		Type: string(c.config.Type),
	}

	if totalSize, err := c.getDatabaseSize(ctx); err == nil {
		stats.SizeBytes = totalSize
	}

	stats.TableStats = c.getTableStats(ctx)
	for _, ts := range stats.TableStats {
		stats.TotalRecords += ts.RowCount
	}

	return stats, nil
}

func (c *Collector) collectStorageSummary(ctx context.Context) (*StorageSummary, error) {
	var summary StorageSummary
	if err := c.db.GetContext(ctx, &summary, storageSummaryQuery); err != nil {
		return nil, err
	}
	return &summary, nil
}

func (c *Collector) getDatabaseSize(ctx context.Context) (int64, error) {
	var size int64
	var err error

	if c.config.Type == config.DBTypePostgreSQL {
		err = c.db.GetContext(ctx, &size, "SELECT pg_database_size(current_database())")
	} else {
		err = c.db.GetContext(ctx, &size, "SELECT page_count * page_size FROM pragma_page_count(), pragma_page_size()")
	}

	if err != nil {
		return 0, err
	}
	return size, nil
}

// getTableStats skips tables that cannot be read, e.g. before migrations ran
func (c *Collector) getTableStats(ctx context.Context) []TableStat {
	stats := make([]TableStat, 0, len(trackedTables))
	for _, table := range trackedTables {
		stat, err := c.getTableStat(ctx, table)
		if err != nil {
			continue
		}
		stats = append(stats, *stat)
	}
	return stats
}

func (c *Collector) getTableStat(ctx context.Context, tableName string) (*TableStat, error) {
	stat := &TableStat{Name: tableName}

	var count int64
	if err := c.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM "+tableName); err != nil {
		return nil, err
	}
	stat.RowCount = count

	if c.config.Type == config.DBTypePostgreSQL {
		var size int64
		if err := c.db.GetContext(ctx, &size, `SELECT COALESCE(pg_total_relation_size($1::regclass), 0)`, tableName); err == nil {
			stat.SizeBytes = size
		}
	} else {
		// dbstat is only compiled into some sqlite builds
		var size int64
		_ = c.db.GetContext(ctx, &size, `SELECT COALESCE(SUM(pgsize), 0) FROM dbstat WHERE name = ?`, tableName)
		stat.SizeBytes = size
	}

	return stat, nil
}

func (c *Collector) collectRuntimeStats() RuntimeStats {
	uptime := time.Since(c.startTime).Seconds()
	return RuntimeStats{
		NumGoroutines: runtime.NumGoroutine(),
		NumCPU:        runtime.NumCPU(),
		UptimeSeconds: int64(uptime),
	}
}
