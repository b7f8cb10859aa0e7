package stats

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordAndSnapshot(t *testing.T) {
	r := NewRegistry()
	r.Record(ClassPrepareTime, 100*time.Microsecond)
	r.Record(ClassPrepareTime, 300*time.Microsecond)

	snap := r.Snapshot()
	agg, ok := snap[ClassPrepareTime]
	require.True(t, ok)
	assert.Equal(t, int64(2), agg.Count)
	assert.Equal(t, int64(400), agg.TotalMicros)
	assert.Equal(t, int64(300), agg.MaxMicros)
	assert.Equal(t, int64(200), agg.Mean())
}

func TestMeanOfEmptyAggregate(t *testing.T) {
	assert.Zero(t, Aggregate{}.Mean())
}

func TestConcurrentRecording(t *testing.T) {
	r := NewRegistry()
	const n = 50
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			r.Record(BreakpointTime, time.Microsecond)
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(n), r.Snapshot()[BreakpointTime].Count)
}

func TestProcessMemory(t *testing.T) {
	rss, err := ProcessMemory()
	require.NoError(t, err)
	assert.NotZero(t, rss)
}
