package percentiles

import (
	"context"
	"errors"
	"time"

	"github.com/strengthstats/rankengine/internal/ranking"
	"github.com/strengthstats/rankengine/internal/telemetry/tracing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"
)

var ErrDataNotFound = errors.New("percentile data not found")

// Repo is the durable percentile store, backed by postgres. It exclusively
// owns the percentile_data records.
type Repo struct {
	db *pgxpool.Pool
}

func NewRepo(db *pgxpool.Pool) *Repo {
	return &Repo{
		db: db,
	}
}

func (r *Repo) AddObservations(ctx context.Context, observations []Observation) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.percentiles.addObservations")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.Int("observations", len(observations)))

	if len(observations) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, o := range observations {
		batch.Queue(
			`INSERT INTO performance_observation
				(segment_id, exercise_id, metric_type, value, recorded_at)
				VALUES ($1, $2, $3, $4, $5);`,
			o.SegmentID, o.ExerciseID, string(o.Metric), o.Value, o.RecordedAt,
		)
	}

	results := r.db.SendBatch(ctx, batch)
	defer func() {
		if closeErr := results.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	for range observations {
		if _, execErr := results.Exec(); execErr != nil {
			return execErr
		}
	}
	return nil
}

// ListValues returns all raw observation values for the key, sorted
// ascending, ready for percentile computation.
func (r *Repo) ListValues(
	ctx context.Context,
	segmentID, exerciseID string,
	metric ranking.MetricType,
) (_ []float64, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.percentiles.listValues")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("segment_id", segmentID))
	span.SetAttributes(attribute.String("exercise_id", exerciseID))
	span.SetAttributes(attribute.String("metric_type", string(metric)))

	rows, err := r.db.Query(
		ctx,
		`SELECT value FROM performance_observation
			WHERE segment_id = $1 AND exercise_id = $2 AND metric_type = $3
			ORDER BY value ASC;`,
		segmentID, exerciseID, string(metric),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if err := rows.Err(); err != nil {
		return nil, err
	}

	values := make([]float64, 0)
	for rows.Next() {
		var v float64
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	return values, nil
}

func (r *Repo) UpsertData(ctx context.Context, data Data) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.percentiles.upsertData")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("segment_id", data.SegmentID))
	span.SetAttributes(attribute.String("exercise_id", data.ExerciseID))
	span.SetAttributes(attribute.String("metric_type", string(data.Metric)))

	_, err = r.db.Exec(
		ctx,
		`INSERT INTO percentile_data
			(segment_id, exercise_id, metric_type,
				p5, p10, p25, p50, p75, p90, p95, p99,
				mean, std_deviation, sample_size, last_updated)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
			ON CONFLICT (segment_id, exercise_id, metric_type) DO UPDATE SET
				p5 = EXCLUDED.p5, p10 = EXCLUDED.p10, p25 = EXCLUDED.p25,
				p50 = EXCLUDED.p50, p75 = EXCLUDED.p75, p90 = EXCLUDED.p90,
				p95 = EXCLUDED.p95, p99 = EXCLUDED.p99,
				mean = EXCLUDED.mean, std_deviation = EXCLUDED.std_deviation,
				sample_size = EXCLUDED.sample_size, last_updated = EXCLUDED.last_updated;`,
		data.SegmentID, data.ExerciseID, string(data.Metric),
		data.P5, data.P10, data.P25, data.P50, data.P75, data.P90, data.P95, data.P99,
		data.Mean, data.StdDeviation, data.SampleSize, data.LastUpdated,
	)
	return err
}

func (r *Repo) GetData(
	ctx context.Context,
	segmentID, exerciseID string,
	metric ranking.MetricType,
) (_ *Data, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.percentiles.getData")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("segment_id", segmentID))
	span.SetAttributes(attribute.String("exercise_id", exerciseID))
	span.SetAttributes(attribute.String("metric_type", string(metric)))

	rows, err := r.db.Query(
		ctx,
		`SELECT
			segment_id, exercise_id, metric_type,
			p5, p10, p25, p50, p75, p90, p95, p99,
			mean, std_deviation, sample_size, last_updated
		FROM percentile_data
		WHERE segment_id = $1 AND exercise_id = $2 AND metric_type = $3;`,
		segmentID, exerciseID, string(metric),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if err := rows.Err(); err != nil {
		return nil, err
	}

	data, err := r.rows2data(rows)
	if err != nil {
		return nil, err
	}
	if len(data) != 1 {
		return nil, ErrDataNotFound
	}
	return &data[0], nil
}

func (r *Repo) AllData(ctx context.Context) (_ []Data, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.percentiles.allData")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	rows, err := r.db.Query(
		ctx,
		`SELECT
			segment_id, exercise_id, metric_type,
			p5, p10, p25, p50, p75, p90, p95, p99,
			mean, std_deviation, sample_size, last_updated
		FROM percentile_data
		ORDER BY segment_id, exercise_id, metric_type;`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return r.rows2data(rows)
}

func (r *Repo) DeleteData(
	ctx context.Context,
	segmentID, exerciseID string,
	metric ranking.MetricType,
) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.percentiles.deleteData")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	tag, err := r.db.Exec(
		ctx,
		`DELETE FROM percentile_data
			WHERE segment_id = $1 AND exercise_id = $2 AND metric_type = $3;`,
		segmentID, exerciseID, string(metric),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrDataNotFound
	}
	return nil
}

// TopValues returns the highest observation values for an exercise within a
// segment, best first. Used for leaderboards.
func (r *Repo) TopValues(
	ctx context.Context,
	segmentID, exerciseID string,
	metric ranking.MetricType,
	limit int,
) (_ []Observation, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.percentiles.topValues")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("exercise_id", exerciseID))
	span.SetAttributes(attribute.Int("limit", limit))

	rows, err := r.db.Query(
		ctx,
		`SELECT segment_id, exercise_id, metric_type, value, recorded_at
			FROM performance_observation
			WHERE segment_id = $1 AND exercise_id = $2 AND metric_type = $3
			ORDER BY value DESC
			LIMIT $4;`,
		segmentID, exerciseID, string(metric), limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if err := rows.Err(); err != nil {
		return nil, err
	}

	observations := make([]Observation, 0)
	for rows.Next() {
		var o Observation
		var metricType string
		var recordedAt time.Time
		if err := rows.Scan(&o.SegmentID, &o.ExerciseID, &metricType, &o.Value, &recordedAt); err != nil {
			return nil, err
		}
		o.Metric = ranking.MetricType(metricType)
		o.RecordedAt = recordedAt
		observations = append(observations, o)
	}
	return observations, nil
}

func (r *Repo) rows2data(rows pgx.Rows) ([]Data, error) {
	data := make([]Data, 0)
	for rows.Next() {
		var d Data
		var metricType string
		if err := rows.Scan(
			&d.SegmentID, &d.ExerciseID, &metricType,
			&d.P5, &d.P10, &d.P25, &d.P50, &d.P75, &d.P90, &d.P95, &d.P99,
			&d.Mean, &d.StdDeviation, &d.SampleSize, &d.LastUpdated,
		); err != nil {
			return nil, err
		}
		d.Metric = ranking.MetricType(metricType)
		data = append(data, d)
	}
	return data, nil
}
