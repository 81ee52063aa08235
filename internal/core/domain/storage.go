package domain

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
)

// Buffer cache kinds. The kind decides which setting a resize touches.
const (
	BufferCacheInnoDB = "innodb_buffer_pool"
	BufferCacheShared = "shared_buffers"
)

const (
	bufferFullPercent   = 95
	bufferIdlePercent   = 50
	minHitRatioPercent  = 95
	fragmentedPercent   = 10
	fragmentedMinBytes  = 10 << 20
	engineInnoDB        = "innodb"
	maxBufferPoolTables = 20
)

// BufferPoolTable is how much of one table or index sits in the cache.
type BufferPoolTable struct {
	Table     string `json:"table"`
	Index     string `json:"index,omitempty"`
	Pages     int64  `json:"pages"`
	DataBytes int64  `json:"data_bytes"`
}

// BufferPoolStats is a snapshot of the database page cache. Page counts are
// zero when the database does not expose them.
type BufferPoolStats struct {
	Kind         string            `json:"kind"`
	SizeBytes    int64             `json:"size_bytes"`
	PageSize     int64             `json:"page_size"`
	Instances    int64             `json:"instances,omitempty"`
	PagesTotal   int64             `json:"pages_total"`
	PagesFree    int64             `json:"pages_free"`
	PagesData    int64             `json:"pages_data"`
	ReadRequests int64             `json:"read_requests"`
	Reads        int64             `json:"reads"`
	TopTables    []BufferPoolTable `json:"top_tables"`
}

// StorageRecommendation is one suggested change, with the statement to apply
// it when there is one.
type StorageRecommendation struct {
	Topic          string `json:"topic"`
	Table          string `json:"table,omitempty"`
	Description    string `json:"description"`
	Recommendation string `json:"recommendation"`
	Statement      string `json:"statement,omitempty"`
}

// BufferPoolReport is the analysis behind analyze_innodb_buffer_pool.
// UsedPercent and HitRatioPercent are nil when their inputs are unknown.
type BufferPoolReport struct {
	BufferPoolStats
	SizeHuman       string                  `json:"size_human"`
	UsedPercent     *float64                `json:"used_percent,omitempty"`
	HitRatioPercent *float64                `json:"hit_ratio_percent,omitempty"`
	Recommendations []StorageRecommendation `json:"recommendations"`
}

// AnalyzeBufferPool derives usage and hit ratio from stats and suggests a
// resize when the cache is nearly full or mostly idle.
func AnalyzeBufferPool(stats BufferPoolStats) *BufferPoolReport {
	if stats.TopTables == nil {
		stats.TopTables = []BufferPoolTable{}
	}
	if len(stats.TopTables) > maxBufferPoolTables {
		stats.TopTables = stats.TopTables[:maxBufferPoolTables]
	}
	report := &BufferPoolReport{
		BufferPoolStats: stats,
		SizeHuman:       humanize.IBytes(uint64(stats.SizeBytes)),
		Recommendations: []StorageRecommendation{},
	}

	if stats.PagesTotal > 0 {
		used := float64(stats.PagesTotal-stats.PagesFree) / float64(stats.PagesTotal) * 100
		report.UsedPercent = &used
		switch {
		case used > bufferFullPercent:
			report.Recommendations = append(report.Recommendations, StorageRecommendation{
				Topic:          "Buffer Pool Size",
				Description:    fmt.Sprintf("The buffer pool is nearly full (%.2f%% used).", used),
				Recommendation: "Consider increasing the buffer pool size if the server has memory available.",
				Statement:      resizeStatement(stats.Kind, stats.SizeBytes*2),
			})
		case used < bufferIdlePercent:
			report.Recommendations = append(report.Recommendations, StorageRecommendation{
				Topic:          "Buffer Pool Size",
				Description:    fmt.Sprintf("The buffer pool is only %.2f%% used.", used),
				Recommendation: "You might be able to reduce the buffer pool size to free memory for other purposes.",
				Statement:      resizeStatement(stats.Kind, stats.SizeBytes/2),
			})
		}
	}

	if stats.ReadRequests > 0 {
		hit := float64(stats.ReadRequests-stats.Reads) / float64(stats.ReadRequests) * 100
		report.HitRatioPercent = &hit
		if hit < minHitRatioPercent {
			report.Recommendations = append(report.Recommendations, StorageRecommendation{
				Topic: "Hit Ratio",
				Description: fmt.Sprintf("The buffer pool hit ratio is %.2f%%, below the recommended %d%%. "+
					"Pages are read from disk more often than they should be.", hit, minHitRatioPercent),
				Recommendation: "Increase the buffer pool size if memory allows, or add indexes so queries touch fewer pages.",
			})
		}
	}
	return report
}

func resizeStatement(kind string, bytes int64) string {
	switch kind {
	case BufferCacheInnoDB:
		return fmt.Sprintf("SET GLOBAL innodb_buffer_pool_size = %d;", bytes)
	case BufferCacheShared:
		// shared_buffers only changes on restart.
		return fmt.Sprintf("ALTER SYSTEM SET shared_buffers = '%dkB';", bytes/1024)
	default:
		return ""
	}
}

// TableSpace is the allocated and reclaimable space of one table. FreeBytes
// is space held by the table but not used by live rows.
type TableSpace struct {
	Table          string `json:"table"`
	Engine         string `json:"engine,omitempty"`
	ApproxRowCount int64  `json:"approx_row_count"`
	DataBytes      int64  `json:"data_bytes"`
	IndexBytes     int64  `json:"index_bytes"`
	FreeBytes      int64  `json:"free_bytes"`
}

// TableFragmentation is a TableSpace with its free-space ratio.
type TableFragmentation struct {
	TableSpace
	FragmentationPercent float64 `json:"fragmentation_percent"`
	SizeHuman            string  `json:"size_human"`
	FreeHuman            string  `json:"free_human"`
}

// FragmentationReport is the analysis behind analyze_table_fragmentation.
type FragmentationReport struct {
	Tables          []TableFragmentation    `json:"tables"`
	Recommendations []StorageRecommendation `json:"recommendations"`
}

// AnalyzeFragmentation computes free/(data+index) for every table and
// suggests a rebuild for tables over 10% fragmented with more than 10 MiB of
// data. Input order is kept.
func AnalyzeFragmentation(tables []TableSpace) *FragmentationReport {
	report := &FragmentationReport{
		Tables:          make([]TableFragmentation, 0, len(tables)),
		Recommendations: []StorageRecommendation{},
	}
	for _, t := range tables {
		var pct float64
		if total := t.DataBytes + t.IndexBytes; total > 0 {
			pct = float64(t.FreeBytes) / float64(total) * 100
		}
		report.Tables = append(report.Tables, TableFragmentation{
			TableSpace:           t,
			FragmentationPercent: pct,
			SizeHuman:            humanize.IBytes(uint64(t.DataBytes + t.IndexBytes)),
			FreeHuman:            humanize.IBytes(uint64(t.FreeBytes)),
		})
		if pct <= fragmentedPercent || t.DataBytes <= fragmentedMinBytes {
			continue
		}
		stmt, note := reclaimStatement(t.Engine, t.Table)
		report.Recommendations = append(report.Recommendations, StorageRecommendation{
			Topic: "Fragmentation",
			Table: t.Table,
			Description: fmt.Sprintf("Table '%s' is %.2f%% fragmented (%s free of %s).",
				t.Table, pct, humanize.IBytes(uint64(t.FreeBytes)), humanize.IBytes(uint64(t.DataBytes))),
			Recommendation: "Rebuild the table to defragment it and reclaim space. " + note,
			Statement:      stmt,
		})
	}
	return report
}

func reclaimStatement(engine, table string) (stmt, note string) {
	if strings.EqualFold(engine, engineInnoDB) {
		return fmt.Sprintf("OPTIMIZE TABLE %s;", table),
			"OPTIMIZE TABLE locks the table while it runs; schedule it off-peak."
	}
	return fmt.Sprintf("VACUUM FULL %s;", table),
		"VACUUM FULL takes an exclusive lock; schedule it off-peak."
}
