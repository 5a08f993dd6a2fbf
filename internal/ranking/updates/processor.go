package updates

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/strengthstats/rankengine/internal/ranking"
	"github.com/strengthstats/rankengine/internal/ranking/percentiles"
	"github.com/strengthstats/rankengine/internal/telemetry/metrics"
	"github.com/strengthstats/rankengine/internal/telemetry/tracing"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/multierr"
)

//go:generate mockgen -source=$GOFILE -destination=mocks_test.go -package=updates_test

type percentileStore interface {
	AddObservations(ctx context.Context, observations []percentiles.Observation) error
	ListValues(ctx context.Context, segmentID, exerciseID string, metric ranking.MetricType) ([]float64, error)
	UpsertData(ctx context.Context, data percentiles.Data) error
}

// Update is the payload of a percentile_updated notification.
type Update struct {
	SegmentID      string             `json:"segmentId"`
	ExerciseID     string             `json:"exerciseId"`
	Data           []percentiles.Data `json:"data"`
	UpdatesApplied int                `json:"updatesApplied"`
}

// Stats is a read-only snapshot of the processor counters.
type Stats struct {
	TotalProcessed    int64         `json:"totalProcessed"`
	Successful        int64         `json:"successful"`
	Failed            int64         `json:"failed"`
	Retried           int64         `json:"retried"`
	Evicted           int64         `json:"evicted"`
	AvgProcessingTime time.Duration `json:"avgProcessingTime"`
	QueueLength       int           `json:"queueLength"`
	LastUpdate        time.Time     `json:"lastUpdate"`
	UpdatesPerMinute  float64       `json:"updatesPerMinute"`
}

// KeyStatus describes the update state of one (segment, exercise) key.
type KeyStatus struct {
	SegmentID          string        `json:"segmentId"`
	ExerciseID         string        `json:"exerciseId"`
	LastUpdated        time.Time     `json:"lastUpdated"`
	PendingUpdates     int           `json:"pendingUpdates"`
	IsUpdating         bool          `json:"isUpdating"`
	LastUpdateDuration time.Duration `json:"lastUpdateDurationMs"`
}

const avgWindowBatches = 100

// Processor drains the update queue in priority order, recomputes percentile
// aggregates per (segment, exercise) key and persists them. Group failures
// are isolated: one failing key never aborts the rest of the batch.
type Processor struct {
	queue          *Queue
	store          percentileStore
	cfg            ranking.Config
	metricsManager *metrics.Manager
	publish        func(Update)
	nowFn          func() time.Time

	// inFlight guards against re-entrant processing: the periodic timer and
	// the urgent enqueue path race for it, whoever loses is a no-op.
	inFlight atomic.Bool

	mu                sync.Mutex
	totalProcessed    int64
	successful        int64
	failed            int64
	retried           int64
	durations         []time.Duration
	lastUpdate        time.Time
	updatesPerMinute  float64
	processedInWindow int64
	lastRateRecompute time.Time
	statuses          map[string]*KeyStatus
}

type NewProcessorParams struct {
	Queue          *Queue
	Store          percentileStore
	Config         ranking.Config
	MetricsManager *metrics.Manager
	// Publish receives a notification after every successfully recomputed
	// key. Optional.
	Publish func(Update)
	// NowFn is injectable for deterministic tests. Defaults to time.Now.
	NowFn func() time.Time
}

func NewProcessor(params NewProcessorParams) *Processor {
	nowFn := params.NowFn
	if nowFn == nil {
		nowFn = time.Now
	}
	return &Processor{
		queue:             params.Queue,
		store:             params.Store,
		cfg:               params.Config,
		metricsManager:    params.MetricsManager,
		publish:           params.Publish,
		nowFn:             nowFn,
		statuses:          make(map[string]*KeyStatus),
		lastRateRecompute: nowFn(),
	}
}

// ProcessBatch drains and processes one bounded batch. It is a no-op when
// the queue is empty or another batch is already in flight.
func (p *Processor) ProcessBatch(ctx context.Context) error {
	if !p.inFlight.CompareAndSwap(false, true) {
		return nil
	}
	defer p.inFlight.Store(false)

	if p.queue.Size() == 0 {
		return nil
	}

	items := p.queue.DequeueBatch(p.batchSize())
	return p.processItems(ctx, items)
}

// ProcessUrgent synchronously drains all items at or above the configured
// priority threshold. Like ProcessBatch, it is a no-op if a batch is already
// in flight; the urgent items then simply wait for the next cycle.
func (p *Processor) ProcessUrgent(ctx context.Context) error {
	if !p.inFlight.CompareAndSwap(false, true) {
		return nil
	}
	defer p.inFlight.Store(false)

	items := p.queue.DequeueUrgent(p.cfg.PriorityThreshold)
	if len(items) == 0 {
		return nil
	}
	return p.processItems(ctx, items)
}

func (p *Processor) processItems(ctx context.Context, items []Item) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "updates.processor.processItems")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.Int("items", len(items)))

	began := p.nowFn()

	// group by (segment, exercise), preserving the priority-sorted order in
	// which groups were formed
	groups := make(map[string][]Item)
	var order []string
	for _, item := range items {
		key := item.Key()
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], item)
	}

	var errs error
	for _, key := range order {
		group := groups[key]
		p.setUpdating(group[0], true)

		groupStart := p.nowFn()
		groupErr := p.processGroup(ctx, group)
		groupDuration := p.nowFn().Sub(groupStart)

		p.finishKey(group[0], groupDuration)

		if groupErr != nil {
			log.Errorf("process group [%s]: %s", key, groupErr)
			p.handleGroupFailure(group, groupErr)
			errs = multierr.Append(errs, fmt.Errorf("group %s: %w", key, groupErr))
			continue
		}

		p.recordGroupSuccess(group)
	}

	p.recordBatch(p.nowFn().Sub(began))
	return errs
}

// processGroup recomputes all metric aggregates of one key from the union of
// the already-stored observations and the group's new ones.
func (p *Processor) processGroup(ctx context.Context, group []Item) error {
	segmentID := group[0].SegmentID
	exerciseID := group[0].ExerciseID

	// persist new raw observations first; items re-enqueued after a later
	// failure are marked so the retry does not double-insert them
	var newObservations []percentiles.Observation
	for i := range group {
		if group[i].Persisted {
			continue
		}
		for _, metric := range ranking.MetricTypes {
			value := group[i].Performance.MetricValue(metric)
			if value <= 0 {
				// synthetic force-update items and unrecorded metrics
				continue
			}
			newObservations = append(newObservations, percentiles.Observation{
				SegmentID:  segmentID,
				ExerciseID: exerciseID,
				Metric:     metric,
				Value:      value,
				RecordedAt: group[i].Performance.RecordedAt,
			})
		}
	}

	if len(newObservations) > 0 {
		if err := p.store.AddObservations(ctx, newObservations); err != nil {
			return fmt.Errorf("add observations: %w", err)
		}
		for i := range group {
			group[i].Persisted = true
		}
	}

	var updated []percentiles.Data
	for _, metric := range ranking.MetricTypes {
		values, err := p.store.ListValues(ctx, segmentID, exerciseID, metric)
		if err != nil {
			// do not fall back to recomputing from the new batch only: that
			// would silently discard history; fail the group and retry
			return fmt.Errorf("list values for %s: %w", metric, err)
		}
		if len(values) == 0 {
			continue
		}

		sort.Float64s(values)
		summary, err := percentiles.Compute(values)
		if err != nil {
			return fmt.Errorf("compute %s: %w", metric, err)
		}

		data := percentiles.Data{
			SegmentID:   segmentID,
			ExerciseID:  exerciseID,
			Metric:      metric,
			Summary:     summary,
			LastUpdated: p.nowFn(),
		}
		if err := p.store.UpsertData(ctx, data); err != nil {
			return fmt.Errorf("upsert data for %s: %w", metric, err)
		}
		updated = append(updated, data)
	}

	if p.publish != nil && len(updated) > 0 {
		p.publish(Update{
			SegmentID:      segmentID,
			ExerciseID:     exerciseID,
			Data:           updated,
			UpdatesApplied: len(group),
		})
	}
	return nil
}

// handleGroupFailure retries every item of a failed group with demoted
// priority, or drops it permanently after the configured attempts.
func (p *Processor) handleGroupFailure(group []Item, groupErr error) {
	now := p.nowFn()

	var dropped, requeued int64
	for i := range group {
		group[i].Attempts++
		group[i].LastAttempt = &now
		group[i].ErrorMessage = groupErr.Error()

		if group[i].Attempts >= p.cfg.MaxAttempts {
			dropped++
			log.Errorf("dropping update item [%s] for [%s] after %d attempts: %s",
				group[i].ID, group[i].Key(), group[i].Attempts, groupErr)
			continue
		}

		group[i].Priority = group[i].Priority.Demote()
		p.queue.Enqueue(group[i])
		requeued++
	}

	p.mu.Lock()
	p.totalProcessed += int64(len(group))
	p.failed += dropped
	p.retried += requeued
	p.mu.Unlock()

	if p.metricsManager != nil {
		p.metricsManager.CounterUpdatesFailed.Add(float64(dropped))
		p.metricsManager.CounterUpdatesRetried.Add(float64(requeued))
	}
}

func (p *Processor) recordGroupSuccess(group []Item) {
	for i := range group {
		group[i].Attempts++
	}

	p.mu.Lock()
	p.totalProcessed += int64(len(group))
	p.successful += int64(len(group))
	p.processedInWindow += int64(len(group))
	p.lastUpdate = p.nowFn()
	p.mu.Unlock()

	if p.metricsManager != nil {
		p.metricsManager.CounterUpdatesProcessed.Add(float64(len(group)))
	}
}

func (p *Processor) recordBatch(duration time.Duration) {
	p.mu.Lock()
	p.durations = append(p.durations, duration)
	if len(p.durations) > avgWindowBatches {
		p.durations = p.durations[len(p.durations)-avgWindowBatches:]
	}
	p.mu.Unlock()

	if p.metricsManager != nil {
		p.metricsManager.HistBatchDuration.Observe(duration.Seconds())
		p.metricsManager.GaugeQueueDepth.Set(float64(p.queue.Size()))
	}
}

// batchSize applies the smart batching rules: grow to 2x the default when the
// queue is long and recent batches were fast, shrink to half when they were
// slow.
func (p *Processor) batchSize() int {
	size := p.cfg.BatchSize
	if !p.cfg.EnableSmartBatching {
		return size
	}

	avg := p.avgProcessingTime()
	switch {
	case avg > 15*time.Second:
		if size/2 > 0 {
			return size / 2
		}
		return 1
	case p.queue.Size() > 100 && avg < 5*time.Second:
		return size * 2
	default:
		return size
	}
}

func (p *Processor) avgProcessingTime() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.avgProcessingTimeLocked()
}

func (p *Processor) avgProcessingTimeLocked() time.Duration {
	if len(p.durations) == 0 {
		return 0
	}
	var total time.Duration
	for _, d := range p.durations {
		total += d
	}
	return total / time.Duration(len(p.durations))
}

// RecomputeRates refreshes the updates-per-minute figure. Called by the
// engine's statistics timer.
func (p *Processor) RecomputeRates() {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.nowFn()
	elapsed := now.Sub(p.lastRateRecompute)
	if elapsed <= 0 {
		return
	}

	p.updatesPerMinute = float64(p.processedInWindow) / elapsed.Minutes()
	p.processedInWindow = 0
	p.lastRateRecompute = now
}

// Stats returns a read-only snapshot of the processor counters.
func (p *Processor) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	return Stats{
		TotalProcessed:    p.totalProcessed,
		Successful:        p.successful,
		Failed:            p.failed,
		Retried:           p.retried,
		Evicted:           p.queue.EvictedTotal(),
		AvgProcessingTime: p.avgProcessingTimeLocked(),
		QueueLength:       p.queue.Size(),
		LastUpdate:        p.lastUpdate,
		UpdatesPerMinute:  p.updatesPerMinute,
	}
}

// SegmentStatuses returns the per-key update statuses, with pending counts
// taken from the live queue.
func (p *Processor) SegmentStatuses() []KeyStatus {
	pending := p.queue.PendingByKey()

	p.mu.Lock()
	defer p.mu.Unlock()

	statuses := make([]KeyStatus, 0, len(p.statuses))
	for key, status := range p.statuses {
		s := *status
		s.PendingUpdates = pending[key]
		statuses = append(statuses, s)
		delete(pending, key)
	}

	// keys that are queued but never processed yet
	for key, count := range pending {
		segmentID, exerciseID := splitKey(key)
		statuses = append(statuses, KeyStatus{
			SegmentID:      segmentID,
			ExerciseID:     exerciseID,
			PendingUpdates: count,
		})
	}

	sort.Slice(statuses, func(i, j int) bool {
		if statuses[i].SegmentID != statuses[j].SegmentID {
			return statuses[i].SegmentID < statuses[j].SegmentID
		}
		return statuses[i].ExerciseID < statuses[j].ExerciseID
	})
	return statuses
}

func (p *Processor) setUpdating(item Item, updating bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	status, ok := p.statuses[item.Key()]
	if !ok {
		status = &KeyStatus{
			SegmentID:  item.SegmentID,
			ExerciseID: item.ExerciseID,
		}
		p.statuses[item.Key()] = status
	}
	status.IsUpdating = updating
}

func (p *Processor) finishKey(item Item, duration time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	status, ok := p.statuses[item.Key()]
	if !ok {
		return
	}
	status.IsUpdating = false
	status.LastUpdated = p.nowFn()
	status.LastUpdateDuration = duration
}

func splitKey(key string) (segmentID, exerciseID string) {
	for i := 0; i+1 < len(key); i++ {
		if key[i] == ':' && key[i+1] == ':' {
			return key[:i], key[i+2:]
		}
	}
	return key, ""
}
