package accounting

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type PostgresStore struct {
	db DB
}

func NewPostgresStore(db DB) Store {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Append(ctx context.Context, rec *RequestRecord) error {
	query := `
		INSERT INTO request_logs (prompt, tier, confidence, model, response, tokens_used, latency_ms, cost_usd, cost_saved_usd, user_id, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id, created_at
	`
	err := s.db.QueryRow(ctx, query,
		rec.Prompt, string(rec.Tier), rec.Confidence, rec.Model, rec.Response,
		rec.TokensUsed, rec.LatencyMs, rec.CostUSD, rec.CostSavedUSD, rec.UserID, rec.Status,
	).Scan(&rec.ID, &rec.Timestamp)

	if err != nil {
		return fmt.Errorf("failed to append request record: %w", err)
	}

	return nil
}

// UpsertAggregate applies the running-average recurrence
// avg' = (avg*(n-1) + new) / n with n the post-increment request count. The
// whole read-modify-write happens inside one statement, so concurrent
// requests to the same model serialize at the row and no update is lost.
func (s *PostgresStore) UpsertAggregate(ctx context.Context, model string, tokens int, costUSD, latencyMs float64) error {
	query := `
		INSERT INTO model_stats (model, total_requests, total_tokens, total_cost_usd, avg_latency_ms, last_updated)
		VALUES ($1, 1, $2, $3, $4, now())
		ON CONFLICT (model) DO UPDATE SET
			total_requests = model_stats.total_requests + 1,
			total_tokens   = model_stats.total_tokens + EXCLUDED.total_tokens,
			total_cost_usd = model_stats.total_cost_usd + EXCLUDED.total_cost_usd,
			avg_latency_ms = (model_stats.avg_latency_ms * model_stats.total_requests + EXCLUDED.avg_latency_ms)
			                 / (model_stats.total_requests + 1),
			last_updated   = now()
	`
	if _, err := s.db.Exec(ctx, query, model, tokens, costUSD, latencyMs); err != nil {
		return fmt.Errorf("failed to upsert aggregate for %s: %w", model, err)
	}

	return nil
}

func (s *PostgresStore) QueryAllSuccessful(ctx context.Context) ([]*RequestRecord, error) {
	query := `
		SELECT id, prompt, tier, confidence, model, response, tokens_used, latency_ms, cost_usd, cost_saved_usd, COALESCE(user_id, ''), status, created_at
		FROM request_logs
		WHERE status = 'success'
		ORDER BY created_at DESC
	`
	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query request records: %w", err)
	}
	defer rows.Close()

	var records []*RequestRecord
	for rows.Next() {
		var r RequestRecord
		err := rows.Scan(
			&r.ID, &r.Prompt, &r.Tier, &r.Confidence, &r.Model, &r.Response,
			&r.TokensUsed, &r.LatencyMs, &r.CostUSD, &r.CostSavedUSD, &r.UserID, &r.Status, &r.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan request record: %w", err)
		}
		records = append(records, &r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating request records: %w", err)
	}

	return records, nil
}

func (s *PostgresStore) QueryAggregates(ctx context.Context) ([]*ModelStats, error) {
	query := `
		SELECT model, total_requests, total_tokens, total_cost_usd, avg_latency_ms, last_updated
		FROM model_stats
		ORDER BY model
	`
	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query model stats: %w", err)
	}
	defer rows.Close()

	var stats []*ModelStats
	for rows.Next() {
		var m ModelStats
		err := rows.Scan(&m.Model, &m.TotalRequests, &m.TotalTokens, &m.TotalCostUSD, &m.AvgLatencyMs, &m.LastUpdated)
		if err != nil {
			return nil, fmt.Errorf("failed to scan model stats: %w", err)
		}
		stats = append(stats, &m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating model stats: %w", err)
	}

	return stats, nil
}
