package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnalyzeBufferPool(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		stats      BufferPoolStats
		wantUsed   float64
		wantHit    float64
		wantTopics []string
		wantStmt   string
	}{
		{
			name: "nearly full and missing reads",
			stats: BufferPoolStats{
				Kind: BufferCacheInnoDB, SizeBytes: 128 << 20,
				PagesTotal: 1000, PagesFree: 10, ReadRequests: 1000, Reads: 100,
			},
			wantUsed:   99,
			wantHit:    90,
			wantTopics: []string{"Buffer Pool Size", "Hit Ratio"},
			wantStmt:   "SET GLOBAL innodb_buffer_pool_size = 268435456;",
		},
		{
			name: "mostly idle",
			stats: BufferPoolStats{
				Kind: BufferCacheInnoDB, SizeBytes: 128 << 20,
				PagesTotal: 1000, PagesFree: 800, ReadRequests: 1000, Reads: 1,
			},
			wantUsed:   20,
			wantHit:    99.9,
			wantTopics: []string{"Buffer Pool Size"},
			wantStmt:   "SET GLOBAL innodb_buffer_pool_size = 67108864;",
		},
		{
			name: "healthy",
			stats: BufferPoolStats{
				Kind: BufferCacheInnoDB, SizeBytes: 128 << 20,
				PagesTotal: 1000, PagesFree: 300, ReadRequests: 1000, Reads: 10,
			},
			wantUsed:   70,
			wantHit:    99,
			wantTopics: []string{},
		},
		{
			name: "shared buffers resize",
			stats: BufferPoolStats{
				Kind: BufferCacheShared, SizeBytes: 128 << 20,
				PagesTotal: 100, PagesFree: 90, ReadRequests: 10, Reads: 0,
			},
			wantUsed:   10,
			wantHit:    100,
			wantTopics: []string{"Buffer Pool Size"},
			wantStmt:   "ALTER SYSTEM SET shared_buffers = '65536kB';",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			report := AnalyzeBufferPool(tt.stats)
			require.NotNil(t, report.UsedPercent)
			require.NotNil(t, report.HitRatioPercent)
			assert.InDelta(t, tt.wantUsed, *report.UsedPercent, 0.001)
			assert.InDelta(t, tt.wantHit, *report.HitRatioPercent, 0.001)
			assert.Equal(t, "128 MiB", report.SizeHuman)

			topics := []string{}
			for _, r := range report.Recommendations {
				topics = append(topics, r.Topic)
			}
			assert.Equal(t, tt.wantTopics, topics)
			if tt.wantStmt != "" {
				assert.Equal(t, tt.wantStmt, report.Recommendations[0].Statement)
			}
		})
	}
}

func TestAnalyzeBufferPool_UnknownCounters(t *testing.T) {
	t.Parallel()

	report := AnalyzeBufferPool(BufferPoolStats{Kind: BufferCacheShared, SizeBytes: 1 << 30})
	assert.Nil(t, report.UsedPercent)
	assert.Nil(t, report.HitRatioPercent)
	assert.Empty(t, report.Recommendations)
	assert.NotNil(t, report.TopTables)
}

func TestAnalyzeBufferPool_CapsTopTables(t *testing.T) {
	t.Parallel()

	top := make([]BufferPoolTable, 30)
	report := AnalyzeBufferPool(BufferPoolStats{TopTables: top})
	assert.Len(t, report.TopTables, maxBufferPoolTables)
}

func TestAnalyzeFragmentation(t *testing.T) {
	t.Parallel()

	report := AnalyzeFragmentation([]TableSpace{
		{Table: "orders", Engine: "InnoDB", DataBytes: 80 << 20, IndexBytes: 20 << 20, FreeBytes: 30 << 20},
		{Table: "small", Engine: "InnoDB", DataBytes: 1 << 20, FreeBytes: 1 << 20},
		{Table: "tidy", Engine: "InnoDB", DataBytes: 50 << 20, FreeBytes: 1 << 20},
		{Table: "events", Engine: "heap", DataBytes: 40 << 20, FreeBytes: 20 << 20},
		{Table: "empty", Engine: "InnoDB"},
	})

	require.Len(t, report.Tables, 5)
	assert.Equal(t, "orders", report.Tables[0].Table)
	assert.InDelta(t, 30, report.Tables[0].FragmentationPercent, 0.001)
	assert.Equal(t, "100 MiB", report.Tables[0].SizeHuman)
	assert.Equal(t, "30 MiB", report.Tables[0].FreeHuman)
	assert.InDelta(t, 100, report.Tables[1].FragmentationPercent, 0.001)
	assert.Zero(t, report.Tables[4].FragmentationPercent)

	require.Len(t, report.Recommendations, 2)
	assert.Equal(t, "orders", report.Recommendations[0].Table)
	assert.Equal(t, "OPTIMIZE TABLE orders;", report.Recommendations[0].Statement)
	assert.Equal(t, "events", report.Recommendations[1].Table)
	assert.Equal(t, "VACUUM FULL events;", report.Recommendations[1].Statement)
}

func TestAnalyzeFragmentation_Empty(t *testing.T) {
	t.Parallel()

	report := AnalyzeFragmentation(nil)
	assert.NotNil(t, report.Tables)
	assert.NotNil(t, report.Recommendations)
}
