package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/strengthstats/rankengine/internal/ranking"
	"github.com/strengthstats/rankengine/internal/ranking/percentiles"
	"github.com/strengthstats/rankengine/internal/ranking/segments"
	"github.com/strengthstats/rankengine/internal/ranking/updates"
	"github.com/strengthstats/rankengine/internal/telemetry/metrics"
	"github.com/strengthstats/rankengine/internal/telemetry/tracing"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

type updatePublisher interface {
	Publish(ctx context.Context, update updates.Update) error
}

type percentileStore interface {
	AddObservations(ctx context.Context, observations []percentiles.Observation) error
	ListValues(ctx context.Context, segmentID, exerciseID string, metric ranking.MetricType) ([]float64, error)
	UpsertData(ctx context.Context, data percentiles.Data) error
}

// ListenerFunc receives every successfully applied update. Listeners run on
// the processing goroutine; a panicking listener is recovered and logged, it
// never takes the engine down.
type ListenerFunc func(update updates.Update)

const publishTimeout = 5 * time.Second

// Engine ties the segment catalog, the bounded update queue and the batch
// processor together behind one submission surface, and runs the periodic
// processing and statistics timers.
type Engine struct {
	catalog        *segments.Catalog
	queue          *updates.Queue
	processor      *updates.Processor
	cfg            ranking.Config
	metricsManager *metrics.Manager
	publisher      updatePublisher
	nowFn          func() time.Time

	listenersMu sync.RWMutex
	listeners   map[string]ListenerFunc

	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

type NewEngineParams struct {
	Catalog        *segments.Catalog
	Store          percentileStore
	Config         ranking.Config
	MetricsManager *metrics.Manager
	// Publisher pushes update notifications to redis. Optional.
	Publisher updatePublisher
	// NowFn is injectable for deterministic tests. Defaults to time.Now.
	NowFn func() time.Time
}

func NewEngine(params NewEngineParams) (*Engine, error) {
	params.Config.SetDefaults()
	if err := params.Config.Validate(); err != nil {
		return nil, fmt.Errorf("engine config: %w", err)
	}

	nowFn := params.NowFn
	if nowFn == nil {
		nowFn = time.Now
	}

	e := &Engine{
		catalog:        params.Catalog,
		queue:          updates.NewQueue(params.Config.MaxQueueSize),
		cfg:            params.Config,
		metricsManager: params.MetricsManager,
		publisher:      params.Publisher,
		nowFn:          nowFn,
		listeners:      make(map[string]ListenerFunc),
		done:           make(chan struct{}),
	}

	e.processor = updates.NewProcessor(updates.NewProcessorParams{
		Queue:          e.queue,
		Store:          params.Store,
		Config:         params.Config,
		MetricsManager: params.MetricsManager,
		Publish:        e.notify,
		NowFn:          nowFn,
	})

	return e, nil
}

// Start launches the periodic batch and statistics timers.
func (e *Engine) Start() {
	e.wg.Add(2)
	go e.batchLoop()
	go e.statsLoop()
	log.Debugf(
		"ranking engine started, batch every %s, stats every %s",
		e.cfg.MaxUpdateFrequency, e.cfg.StatsInterval,
	)
}

// Stop terminates the timers and waits for an in-flight batch to finish.
// Idempotent.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() {
		close(e.done)
	})
	e.wg.Wait()
}

// QueueUpdate fans a performance submission out to the user's top-quality
// segments and enqueues one update item per segment. High and critical
// priority submissions additionally trigger a synchronous drain of all
// urgent items. Returns the ids of the queued items.
func (e *Engine) QueueUpdate(
	ctx context.Context,
	demographics ranking.UserDemographics,
	performance ranking.ExercisePerformance,
	priority ranking.Priority,
) (_ []string, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "engine.queueUpdate")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	if err := performance.Validate(); err != nil {
		return nil, err
	}

	normalized, issues := demographics.Normalize()
	if len(issues) > 0 {
		log.Warnf("demographics normalized with issues: %v", issues)
	}

	scored := e.catalog.ScoreAndRank(normalized, e.cfg.MaxSegmentsPerUpdate, 0)
	span.SetAttributes(
		attribute.String("exercise.id", performance.ExerciseID),
		attribute.Int("segments", len(scored)),
	)

	now := e.nowFn()
	itemIDs := make([]string, 0, len(scored))
	for _, s := range scored {
		id := uuid.NewString()
		e.enqueue(updates.Item{
			ID:           id,
			SegmentID:    s.Segment.ID,
			ExerciseID:   performance.ExerciseID,
			Demographics: normalized,
			Performance:  performance,
			Priority:     priority,
			CreatedAt:    now,
		})
		itemIDs = append(itemIDs, id)
	}

	if e.metricsManager != nil {
		e.metricsManager.CounterUpdatesQueued.Add(float64(len(itemIDs)))
		e.metricsManager.GaugeQueueDepth.Set(float64(e.queue.Size()))
	}

	if priority >= e.cfg.PriorityThreshold {
		// the submission itself already succeeded at this point; group
		// failures during the drain are re-enqueued and retried by the
		// processor, so they must not surface to the submitter
		if drainErr := e.processor.ProcessUrgent(ctx); drainErr != nil {
			log.Errorf("urgent drain: %s", drainErr)
		}
	}
	return itemIDs, nil
}

// ForceUpdate enqueues a synthetic item carrying no new observations, causing
// the key's percentiles to be recomputed from the already-stored history.
func (e *Engine) ForceUpdate(
	ctx context.Context,
	segmentID, exerciseID string,
	priority ranking.Priority,
) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "engine.forceUpdate")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(
		attribute.String("segment.id", segmentID),
		attribute.String("exercise.id", exerciseID),
	)

	if exerciseID == "" {
		return ranking.ErrEmptyExerciseID
	}

	e.enqueue(updates.Item{
		ID:         uuid.NewString(),
		SegmentID:  segmentID,
		ExerciseID: exerciseID,
		Performance: ranking.ExercisePerformance{
			ExerciseID: exerciseID,
		},
		Priority:  priority,
		CreatedAt: e.nowFn(),
	})

	if e.metricsManager != nil {
		e.metricsManager.CounterUpdatesQueued.Inc()
	}

	if priority >= e.cfg.PriorityThreshold {
		if drainErr := e.processor.ProcessUrgent(ctx); drainErr != nil {
			log.Errorf("urgent drain: %s", drainErr)
		}
	}
	return nil
}

func (e *Engine) enqueue(item updates.Item) {
	evicted := e.queue.Enqueue(item)
	if evicted == nil {
		return
	}
	log.Warnf(
		"queue full, evicted item [%s] for [%s] with priority %s",
		evicted.ID, evicted.Key(), evicted.Priority,
	)
	if e.metricsManager != nil {
		e.metricsManager.CounterQueueEvictions.Inc()
	}
}

// SegmentsFor resolves and ranks the matching segments for the given
// demographics without queueing anything.
func (e *Engine) SegmentsFor(demographics ranking.UserDemographics) []segments.ScoredSegment {
	normalized, _ := demographics.Normalize()
	return e.catalog.ScoreAndRank(normalized, 0, 0)
}

// Stats returns a snapshot of the processing counters.
func (e *Engine) Stats() updates.Stats {
	return e.processor.Stats()
}

// SegmentStatuses returns the per-key update statuses.
func (e *Engine) SegmentStatuses() []updates.KeyStatus {
	return e.processor.SegmentStatuses()
}

// ClearQueue discards all pending items and returns how many were dropped.
func (e *Engine) ClearQueue() int {
	dropped := e.queue.Clear()
	if e.metricsManager != nil {
		e.metricsManager.GaugeQueueDepth.Set(0)
	}
	return dropped
}

// Subscribe registers a listener under the given id, replacing a previous
// one with the same id.
func (e *Engine) Subscribe(id string, fn ListenerFunc) {
	e.listenersMu.Lock()
	defer e.listenersMu.Unlock()
	e.listeners[id] = fn
}

func (e *Engine) Unsubscribe(id string) {
	e.listenersMu.Lock()
	defer e.listenersMu.Unlock()
	delete(e.listeners, id)
}

func (e *Engine) notify(update updates.Update) {
	if e.publisher != nil {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		if err := e.publisher.Publish(ctx, update); err != nil {
			log.Errorf(
				"publish update for [%s/%s]: %s",
				update.SegmentID, update.ExerciseID, err,
			)
		}
		cancel()
	}

	e.listenersMu.RLock()
	defer e.listenersMu.RUnlock()
	for id, fn := range e.listeners {
		e.invokeListener(id, fn, update)
	}
}

func (e *Engine) invokeListener(id string, fn ListenerFunc, update updates.Update) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("update listener [%s] panic: %v", id, r)
		}
	}()
	fn(update)
}

func (e *Engine) batchLoop() {
	defer e.wg.Done()

	ticker := time.NewTicker(e.cfg.MaxUpdateFrequency)
	defer ticker.Stop()

	for {
		select {
		case <-e.done:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), e.cfg.MaxUpdateFrequency)
			if err := e.processor.ProcessBatch(ctx); err != nil {
				log.Errorf("process batch: %s", err)
			}
			cancel()
		}
	}
}

func (e *Engine) statsLoop() {
	defer e.wg.Done()

	ticker := time.NewTicker(e.cfg.StatsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.done:
			return
		case <-ticker.C:
			e.processor.RecomputeRates()
			stats := e.processor.Stats()
			log.Tracef(
				"engine stats: queue=%d processed=%d failed=%d avg=%s",
				stats.QueueLength, stats.TotalProcessed, stats.Failed, stats.AvgProcessingTime,
			)
			if e.metricsManager != nil {
				e.metricsManager.GaugeQueueDepth.Set(float64(stats.QueueLength))
			}
		}
	}
}
