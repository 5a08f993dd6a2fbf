package updates_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/strengthstats/rankengine/internal/ranking"
	"github.com/strengthstats/rankengine/internal/ranking/percentiles"
	"github.com/strengthstats/rankengine/internal/ranking/updates"
	"github.com/strengthstats/rankengine/internal/telemetry/metrics"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() ranking.Config {
	cfg := ranking.Config{}
	cfg.SetDefaults()
	return cfg
}

func newTestProcessor(
	t *testing.T,
	cfg ranking.Config,
	publish func(updates.Update),
) (*updates.Processor, *updates.Queue, *MockpercentileStore) {
	t.Helper()
	ctrl := gomock.NewController(t)
	storeMock := NewMockpercentileStore(ctrl)
	queue := updates.NewQueue(cfg.MaxQueueSize)
	processor := updates.NewProcessor(updates.NewProcessorParams{
		Queue:          queue,
		Store:          storeMock,
		Config:         cfg,
		MetricsManager: metrics.NewTestManager(),
		Publish:        publish,
	})
	return processor, queue, storeMock
}

func TestProcessor_EmptyQueueIsNoop(t *testing.T) {
	processor, _, _ := newTestProcessor(t, testConfig(), nil)
	require.NoError(t, processor.ProcessBatch(context.Background()))
	require.NoError(t, processor.ProcessUrgent(context.Background()))
}

func TestProcessor_RecomputesFromFullHistory(t *testing.T) {
	var published []updates.Update
	processor, queue, storeMock := newTestProcessor(t, testConfig(), func(u updates.Update) {
		published = append(published, u)
	})

	now := time.Now()
	queue.Enqueue(updates.Item{
		ID:         "i1",
		SegmentID:  "global",
		ExerciseID: "bench_press",
		Performance: ranking.ExercisePerformance{
			ExerciseID: "bench_press",
			MaxWeight:  100,
			RecordedAt: now,
		},
		Priority:  ranking.PriorityMedium,
		CreatedAt: now,
	})

	storeMock.EXPECT().
		AddObservations(gomock.Any(), []percentiles.Observation{{
			SegmentID:  "global",
			ExerciseID: "bench_press",
			Metric:     ranking.MetricMaxWeight,
			Value:      100,
			RecordedAt: now,
		}}).
		Return(nil)

	// the new observation is part of the listed history after the insert
	storeMock.EXPECT().
		ListValues(gomock.Any(), "global", "bench_press", ranking.MetricMaxWeight).
		Return([]float64{60, 80, 100}, nil)
	storeMock.EXPECT().
		ListValues(gomock.Any(), "global", "bench_press", ranking.MetricMaxReps).
		Return(nil, nil)
	storeMock.EXPECT().
		ListValues(gomock.Any(), "global", "bench_press", ranking.MetricMaxVolume).
		Return(nil, nil)

	var upserted percentiles.Data
	storeMock.EXPECT().
		UpsertData(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, data percentiles.Data) error {
			upserted = data
			return nil
		})

	require.NoError(t, processor.ProcessBatch(context.Background()))

	assert.Equal(t, "global", upserted.SegmentID)
	assert.Equal(t, "bench_press", upserted.ExerciseID)
	assert.Equal(t, ranking.MetricMaxWeight, upserted.Metric)
	assert.Equal(t, 3, upserted.SampleSize)
	assert.Equal(t, 80.0, upserted.P50)

	require.Len(t, published, 1)
	assert.Equal(t, 1, published[0].UpdatesApplied)
	require.Len(t, published[0].Data, 1)

	stats := processor.Stats()
	assert.Equal(t, int64(1), stats.TotalProcessed)
	assert.Equal(t, int64(1), stats.Successful)
	assert.Equal(t, int64(0), stats.Failed)
	assert.Equal(t, 0, stats.QueueLength)
}

func TestProcessor_SyntheticItemRecomputesWithoutNewObservations(t *testing.T) {
	processor, queue, storeMock := newTestProcessor(t, testConfig(), nil)

	// a forced recomputation item carries no performance values
	queue.Enqueue(updates.Item{
		ID:          "forced",
		SegmentID:   "global",
		ExerciseID:  "squat",
		Performance: ranking.ExercisePerformance{ExerciseID: "squat"},
		Priority:    ranking.PriorityCritical,
		CreatedAt:   time.Now(),
	})

	storeMock.EXPECT().
		ListValues(gomock.Any(), "global", "squat", ranking.MetricMaxWeight).
		Return([]float64{100, 140, 180}, nil)
	storeMock.EXPECT().
		ListValues(gomock.Any(), "global", "squat", ranking.MetricMaxReps).
		Return(nil, nil)
	storeMock.EXPECT().
		ListValues(gomock.Any(), "global", "squat", ranking.MetricMaxVolume).
		Return(nil, nil)
	storeMock.EXPECT().
		UpsertData(gomock.Any(), gomock.Any()).
		Return(nil)

	require.NoError(t, processor.ProcessUrgent(context.Background()))
}

func TestProcessor_GroupFailureIsolation(t *testing.T) {
	processor, queue, storeMock := newTestProcessor(t, testConfig(), nil)

	now := time.Now()
	failing := updates.Item{
		ID:         "fail",
		SegmentID:  "s-fail",
		ExerciseID: "deadlift",
		Performance: ranking.ExercisePerformance{
			ExerciseID: "deadlift",
			MaxWeight:  180,
		},
		Priority:  ranking.PriorityHigh,
		CreatedAt: now,
	}
	healthy := updates.Item{
		ID:         "ok",
		SegmentID:  "s-ok",
		ExerciseID: "deadlift",
		Performance: ranking.ExercisePerformance{
			ExerciseID: "deadlift",
			MaxWeight:  120,
		},
		Priority:  ranking.PriorityMedium,
		CreatedAt: now,
	}
	queue.Enqueue(failing)
	queue.Enqueue(healthy)

	// failing group: history read blows up after the insert succeeded
	storeMock.EXPECT().
		AddObservations(gomock.Any(), gomock.Any()).
		Return(nil)
	storeMock.EXPECT().
		ListValues(gomock.Any(), "s-fail", "deadlift", ranking.MetricMaxWeight).
		Return(nil, errors.New("connection reset"))

	// healthy group still processed in full
	storeMock.EXPECT().
		AddObservations(gomock.Any(), gomock.Any()).
		Return(nil)
	storeMock.EXPECT().
		ListValues(gomock.Any(), "s-ok", "deadlift", ranking.MetricMaxWeight).
		Return([]float64{120}, nil)
	storeMock.EXPECT().
		ListValues(gomock.Any(), "s-ok", "deadlift", ranking.MetricMaxReps).
		Return(nil, nil)
	storeMock.EXPECT().
		ListValues(gomock.Any(), "s-ok", "deadlift", ranking.MetricMaxVolume).
		Return(nil, nil)
	storeMock.EXPECT().
		UpsertData(gomock.Any(), gomock.Any()).
		Return(nil)

	err := processor.ProcessBatch(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "s-fail")

	// the failed item is back in the queue, demoted and annotated
	require.Equal(t, 1, queue.Size())
	requeued := queue.DequeueBatch(1)
	require.Len(t, requeued, 1)
	assert.Equal(t, "fail", requeued[0].ID)
	assert.Equal(t, ranking.PriorityMedium, requeued[0].Priority)
	assert.Equal(t, 1, requeued[0].Attempts)
	assert.NotNil(t, requeued[0].LastAttempt)
	assert.Contains(t, requeued[0].ErrorMessage, "connection reset")

	stats := processor.Stats()
	assert.Equal(t, int64(1), stats.Successful)
	assert.Equal(t, int64(1), stats.Retried)
	assert.Equal(t, int64(0), stats.Failed)
}

func TestProcessor_RetryDemotionChainAndPermanentDrop(t *testing.T) {
	processor, queue, storeMock := newTestProcessor(t, testConfig(), nil)

	queue.Enqueue(updates.Item{
		ID:         "doomed",
		SegmentID:  "s1",
		ExerciseID: "press",
		Performance: ranking.ExercisePerformance{
			ExerciseID: "press",
			MaxWeight:  60,
		},
		Priority:  ranking.PriorityHigh,
		CreatedAt: time.Now(),
	})

	storeMock.EXPECT().
		AddObservations(gomock.Any(), gomock.Any()).
		Return(errors.New("db down")).
		Times(3)

	// attempt 1: high -> medium
	require.Error(t, processor.ProcessBatch(context.Background()))
	items := queue.DequeueBatch(1)
	require.Len(t, items, 1)
	assert.Equal(t, ranking.PriorityMedium, items[0].Priority)
	assert.Equal(t, 1, items[0].Attempts)
	queue.Enqueue(items[0])

	// attempt 2: medium -> low
	require.Error(t, processor.ProcessBatch(context.Background()))
	items = queue.DequeueBatch(1)
	require.Len(t, items, 1)
	assert.Equal(t, ranking.PriorityLow, items[0].Priority)
	assert.Equal(t, 2, items[0].Attempts)
	queue.Enqueue(items[0])

	// attempt 3: dropped for good
	require.Error(t, processor.ProcessBatch(context.Background()))
	assert.Equal(t, 0, queue.Size())

	stats := processor.Stats()
	assert.Equal(t, int64(1), stats.Failed)
	assert.Equal(t, int64(2), stats.Retried)
}

func TestProcessor_SmartBatchingGrowsWhenQueueIsLong(t *testing.T) {
	cfg := testConfig()
	cfg.BatchSize = 5
	cfg.EnableSmartBatching = true
	processor, queue, storeMock := newTestProcessor(t, cfg, nil)

	now := time.Now()
	for i := 0; i < 120; i++ {
		queue.Enqueue(updates.Item{
			ID:         "i",
			SegmentID:  "global",
			ExerciseID: "row",
			Performance: ranking.ExercisePerformance{
				ExerciseID: "row",
				MaxWeight:  float64(50 + i),
			},
			Priority:  ranking.PriorityMedium,
			CreatedAt: now.Add(time.Duration(i) * time.Millisecond),
		})
	}

	storeMock.EXPECT().AddObservations(gomock.Any(), gomock.Any()).Return(nil)
	storeMock.EXPECT().
		ListValues(gomock.Any(), "global", "row", gomock.Any()).
		Return([]float64{50, 60, 70}, nil).
		Times(3)
	storeMock.EXPECT().UpsertData(gomock.Any(), gomock.Any()).Return(nil).Times(3)

	require.NoError(t, processor.ProcessBatch(context.Background()))

	// queue >100 items and no slow history: batch doubles to 10
	assert.Equal(t, 110, queue.Size())
}

func TestProcessor_SmartBatchingShrinksAfterSlowBatches(t *testing.T) {
	cfg := testConfig()
	cfg.BatchSize = 4
	cfg.EnableSmartBatching = true

	ctrl := gomock.NewController(t)
	storeMock := NewMockpercentileStore(ctrl)
	queue := updates.NewQueue(cfg.MaxQueueSize)

	// every clock read advances 10s, so the first batch below is recorded as
	// far slower than the 15s shrink threshold
	current := time.Now()
	processor := updates.NewProcessor(updates.NewProcessorParams{
		Queue:          queue,
		Store:          storeMock,
		Config:         cfg,
		MetricsManager: metrics.NewTestManager(),
		NowFn: func() time.Time {
			current = current.Add(10 * time.Second)
			return current
		},
	})

	now := time.Now()
	queue.Enqueue(updates.Item{
		ID:         "slow",
		SegmentID:  "global",
		ExerciseID: "pullup",
		Performance: ranking.ExercisePerformance{
			ExerciseID: "pullup",
			MaxWeight:  40,
		},
		Priority:  ranking.PriorityMedium,
		CreatedAt: now,
	})

	storeMock.EXPECT().AddObservations(gomock.Any(), gomock.Any()).Return(nil).Times(2)
	storeMock.EXPECT().
		ListValues(gomock.Any(), "global", "pullup", gomock.Any()).
		Return([]float64{40}, nil).
		Times(3)
	storeMock.EXPECT().
		ListValues(gomock.Any(), "global", "row", gomock.Any()).
		Return([]float64{50, 60}, nil).
		Times(3)
	storeMock.EXPECT().UpsertData(gomock.Any(), gomock.Any()).Return(nil).Times(6)

	require.NoError(t, processor.ProcessBatch(context.Background()))
	require.Equal(t, 0, queue.Size())
	require.Greater(t, processor.Stats().AvgProcessingTime, 15*time.Second)

	for i := 0; i < 10; i++ {
		queue.Enqueue(updates.Item{
			ID:         "i",
			SegmentID:  "global",
			ExerciseID: "row",
			Performance: ranking.ExercisePerformance{
				ExerciseID: "row",
				MaxWeight:  float64(50 + i),
			},
			Priority:  ranking.PriorityMedium,
			CreatedAt: now.Add(time.Duration(i) * time.Millisecond),
		})
	}

	require.NoError(t, processor.ProcessBatch(context.Background()))

	// history is slow: batch halves to 2
	assert.Equal(t, 8, queue.Size())
}

func TestProcessor_SegmentStatuses(t *testing.T) {
	processor, queue, storeMock := newTestProcessor(t, testConfig(), nil)

	queue.Enqueue(updates.Item{
		ID:         "i1",
		SegmentID:  "s1",
		ExerciseID: "curl",
		Performance: ranking.ExercisePerformance{
			ExerciseID: "curl",
			MaxReps:    12,
		},
		Priority:  ranking.PriorityMedium,
		CreatedAt: time.Now(),
	})

	// queued but not yet processed
	statuses := processor.SegmentStatuses()
	require.Len(t, statuses, 1)
	assert.Equal(t, "s1", statuses[0].SegmentID)
	assert.Equal(t, "curl", statuses[0].ExerciseID)
	assert.Equal(t, 1, statuses[0].PendingUpdates)
	assert.True(t, statuses[0].LastUpdated.IsZero())

	storeMock.EXPECT().AddObservations(gomock.Any(), gomock.Any()).Return(nil)
	storeMock.EXPECT().
		ListValues(gomock.Any(), "s1", "curl", ranking.MetricMaxWeight).
		Return(nil, nil)
	storeMock.EXPECT().
		ListValues(gomock.Any(), "s1", "curl", ranking.MetricMaxReps).
		Return([]float64{8, 10, 12}, nil)
	storeMock.EXPECT().
		ListValues(gomock.Any(), "s1", "curl", ranking.MetricMaxVolume).
		Return(nil, nil)
	storeMock.EXPECT().UpsertData(gomock.Any(), gomock.Any()).Return(nil)

	require.NoError(t, processor.ProcessBatch(context.Background()))

	statuses = processor.SegmentStatuses()
	require.Len(t, statuses, 1)
	assert.Equal(t, 0, statuses[0].PendingUpdates)
	assert.False(t, statuses[0].IsUpdating)
	assert.False(t, statuses[0].LastUpdated.IsZero())
}
