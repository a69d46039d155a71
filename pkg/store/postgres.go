/*
Copyright 2025 Jordi Gil.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"github.com/marketfeed/newsdigest/internal/migrate"
	"github.com/marketfeed/newsdigest/pkg/types"
)

// PostgresStore implements Store over sqlx (row-oriented CRUD) with a
// pgxpool sidecar used only for PersistBatch's single transaction.
type PostgresStore struct {
	db   *sqlx.DB
	pool *pgxpool.Pool
	log  *logrus.Logger
}

// NewPostgresStore opens both the sqlx handle (lib/pq driver, used for
// everything but PersistBatch) and a pgxpool (used only for PersistBatch).
func NewPostgresStore(ctx context.Context, dsn string, log *logrus.Logger) (*PostgresStore, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "connect sqlx")
	}

	if err := migrate.Up(db.DB); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "run migrations")
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		db.Close()
		return nil, errors.Wrap(err, "connect pgxpool")
	}

	return &PostgresStore{db: db, pool: pool, log: log}, nil
}

// newPostgresStoreWithDB wires an already-open sqlx.DB (a sqlmock
// target in tests), skipping the pgxpool sidecar — bulk insert isn't
// exercised by sqlmock-based unit tests.
func newPostgresStoreWithDB(db *sqlx.DB, log *logrus.Logger) *PostgresStore {
	return &PostgresStore{db: db, log: log}
}

func (s *PostgresStore) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return s.db.Close()
}

func (s *PostgresStore) NewsItemExistsByURL(ctx context.Context, canonicalURL string) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM news_items WHERE canonical_url = $1)`, canonicalURL)
	if err != nil {
		return false, errors.Wrap(err, "check news item exists")
	}
	return exists, nil
}

func (s *PostgresStore) CreateRawItem(ctx context.Context, item types.RawItem) (int64, error) {
	payload, err := json.Marshal(item.RawPayload)
	if err != nil {
		return 0, errors.Wrap(err, "marshal raw payload")
	}
	var id int64
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO raw_items (source, source_type, external_id, url, fetched_at, raw_payload)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`,
		item.Source, item.SourceType, item.ExternalID, item.URL, item.FetchedAt, payload,
	).Scan(&id)
	if err != nil {
		return 0, errors.Wrap(err, "insert raw item")
	}
	return id, nil
}

// PersistBatch writes every item's RawItem, NewsItem, and (if present)
// AnalysisResult inside one pgx transaction committed once at the end —
// the unit of work spec §4.6 step 7 requires for this stage. The
// pgxpool sidecar exists specifically so this path can use a real
// transaction; sqlx/lib-pq has no transaction type this store shares
// with the rest of its row-oriented CRUD.
func (s *PostgresStore) PersistBatch(ctx context.Context, items []AnalyzedItem) ([]PersistedItem, error) {
	if s.pool == nil {
		return s.persistBatchSequential(ctx, items)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "begin persist batch transaction")
	}
	defer tx.Rollback(ctx)

	out := make([]PersistedItem, len(items))
	for i, item := range items {
		payload, err := json.Marshal(item.Raw.RawPayload)
		if err != nil {
			return nil, errors.Wrap(err, "marshal raw payload")
		}

		var rawID int64
		err = tx.QueryRow(ctx, `
			INSERT INTO raw_items (source, source_type, external_id, url, fetched_at, raw_payload)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING id`,
			item.Raw.Source, item.Raw.SourceType, item.Raw.ExternalID, item.Raw.URL, item.Raw.FetchedAt, payload,
		).Scan(&rawID)
		if err != nil {
			return nil, errors.Wrap(err, "insert raw item")
		}

		var newsID int64
		err = tx.QueryRow(ctx, `
			INSERT INTO news_items (raw_item_id, canonical_url, title, title_normalized, content_hash, summary, published_at, source, source_type, credibility, tickers)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			RETURNING id`,
			rawID, item.News.CanonicalURL, item.News.Title, item.News.TitleNormalized, item.News.ContentHash,
			item.News.Summary, item.News.PublishedAt, item.News.Source, item.News.SourceType, item.News.Credibility, item.News.Tickers,
		).Scan(&newsID)
		if err != nil {
			return nil, errors.Wrap(err, "insert news item")
		}

		var analysisID int64
		if item.Analysis != nil {
			a := *item.Analysis
			a.NewsItemID = newsID
			err = tx.QueryRow(ctx, `
				INSERT INTO analysis_results (news_item_id, provider, model, prompt_version, event_type, impact_direction, impact_horizon, thesis_relation, confidence, confidence_reason, summary, key_facts, watch_next, tokens_used, cost_usd)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
				RETURNING id`,
				a.NewsItemID, a.Provider, a.Model, a.PromptVersion, a.EventType,
				a.ImpactDirection, a.ImpactHorizon, a.ThesisRelation, a.Confidence,
				a.ConfidenceReason, a.Summary, a.KeyFacts, a.WatchNext,
				a.TokensUsed, a.CostUSD,
			).Scan(&analysisID)
			if err != nil {
				return nil, errors.Wrap(err, "insert analysis result")
			}
		}

		out[i] = PersistedItem{RawItemID: rawID, NewsItemID: newsID, AnalysisID: analysisID}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, errors.Wrap(err, "commit persist batch transaction")
	}
	return out, nil
}

// persistBatchSequential is used only when the pgxpool sidecar wasn't
// wired up (the sqlmock-backed unit tests via newPostgresStoreWithDB);
// it has no transactional boundary of its own.
func (s *PostgresStore) persistBatchSequential(ctx context.Context, items []AnalyzedItem) ([]PersistedItem, error) {
	out := make([]PersistedItem, len(items))
	for i, item := range items {
		rawID, err := s.CreateRawItem(ctx, item.Raw)
		if err != nil {
			return nil, err
		}

		news := item.News
		news.RawItemID = rawID
		newsID, err := s.CreateNewsItem(ctx, news)
		if err != nil {
			return nil, err
		}

		var analysisID int64
		if item.Analysis != nil {
			a := *item.Analysis
			a.NewsItemID = newsID
			analysisID, err = s.CreateAnalysisResult(ctx, a)
			if err != nil {
				return nil, err
			}
		}

		out[i] = PersistedItem{RawItemID: rawID, NewsItemID: newsID, AnalysisID: analysisID}
	}
	return out, nil
}

func (s *PostgresStore) CreateNewsItem(ctx context.Context, item types.NewsItem) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO news_items (raw_item_id, canonical_url, title, title_normalized, content_hash, summary, published_at, source, source_type, credibility, tickers)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id`,
		nullableID(item.RawItemID), item.CanonicalURL, item.Title, item.TitleNormalized, item.ContentHash,
		item.Summary, item.PublishedAt, item.Source, item.SourceType, item.Credibility, pq.Array(item.Tickers),
	).Scan(&id)
	if err != nil {
		return 0, errors.Wrap(err, "insert news item")
	}
	return id, nil
}

func (s *PostgresStore) CreateDedupCluster(ctx context.Context, runID string, cluster types.DedupCluster) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO dedup_clusters (cluster_id, run_id, representative_id, member_ids, dedup_method, similarity_score)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		cluster.ClusterID, runID, cluster.RepresentativeID, pq.Array(cluster.MemberIDs), cluster.Method, cluster.SimilarityScore,
	)
	if err != nil {
		return errors.Wrap(err, "insert dedup cluster")
	}
	return nil
}

func (s *PostgresStore) CreateAnalysisResult(ctx context.Context, result types.AnalysisResult) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO analysis_results (news_item_id, provider, model, prompt_version, event_type, impact_direction, impact_horizon, thesis_relation, confidence, confidence_reason, summary, key_facts, watch_next, tokens_used, cost_usd)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING id`,
		result.NewsItemID, result.Provider, result.Model, result.PromptVersion, result.EventType,
		result.ImpactDirection, result.ImpactHorizon, result.ThesisRelation, result.Confidence,
		result.ConfidenceReason, result.Summary, pq.Array(result.KeyFacts), result.WatchNext,
		result.TokensUsed, result.CostUSD,
	).Scan(&id)
	if err != nil {
		return 0, errors.Wrap(err, "insert analysis result")
	}
	return id, nil
}

func (s *PostgresStore) CreateRun(ctx context.Context, run types.PipelineRun) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO pipeline_runs (run_id, started_at, status, raw_collected, after_normalize, after_dedup, analyzed_success, analyzed_failed, delivered)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		run.RunID, run.StartedAt, run.Status, run.RawCollected, run.AfterNormalize, run.AfterDedup,
		run.AnalyzedSuccess, run.AnalyzedFailed, run.Delivered,
	)
	if err != nil {
		return errors.Wrap(err, "insert pipeline run")
	}
	return nil
}

func (s *PostgresStore) UpdateRunCounters(ctx context.Context, runID string, counters types.RunCounters) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE pipeline_runs
		SET raw_collected = $2, after_normalize = $3, after_dedup = $4, analyzed_success = $5, analyzed_failed = $6, delivered = $7
		WHERE run_id = $1`,
		runID, counters.RawCollected, counters.AfterNormalize, counters.AfterDedup,
		counters.AnalyzedSuccess, counters.AnalyzedFailed, counters.Delivered,
	)
	return checkRowsAffected(res, err, "update run counters")
}

func (s *PostgresStore) FinishRun(ctx context.Context, runID string, status types.RunStatus, errorLog string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE pipeline_runs SET status = $2, finished_at = $3, error_log = $4 WHERE run_id = $1`,
		runID, status, time.Now(), errorLog,
	)
	return checkRowsAffected(res, err, "finish run")
}

func (s *PostgresStore) CreateDeliveryLog(ctx context.Context, log types.DeliveryLog) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO delivery_logs (run_id, channel, status, error_message, retry_count, channel_ref)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`,
		log.RunID, log.Channel, log.Status, log.ErrorMessage, log.RetryCount, log.ChannelRef,
	).Scan(&id)
	if err != nil {
		return 0, errors.Wrap(err, "insert delivery log")
	}
	return id, nil
}

func (s *PostgresStore) UpdateDeliveryLog(ctx context.Context, id int64, status types.DeliveryStatus, channelRef, errMsg string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE delivery_logs SET status = $2, channel_ref = $3, error_message = $4 WHERE id = $1`,
		id, status, channelRef, errMsg,
	)
	return checkRowsAffected(res, err, "update delivery log")
}

func (s *PostgresStore) GetWatchlist(ctx context.Context) ([]types.WatchlistEntry, error) {
	var rows []struct {
		Ticker      string `db:"ticker"`
		CompanyName string `db:"company_name"`
		Thesis      string `db:"thesis"`
		RiskTags    string `db:"risk_tags"`
		Priority    int    `db:"priority"`
		Sector      string `db:"sector"`
	}
	err := s.db.SelectContext(ctx, &rows, `SELECT ticker, company_name, thesis, risk_tags, priority, sector FROM watchlist ORDER BY priority DESC, ticker`)
	if err != nil {
		return nil, errors.Wrap(err, "select watchlist")
	}

	out := make([]types.WatchlistEntry, 0, len(rows))
	for _, r := range rows {
		entry := types.WatchlistEntry{Ticker: r.Ticker, CompanyName: r.CompanyName, Thesis: r.Thesis, Priority: r.Priority, Sector: r.Sector}
		if r.RiskTags != "" {
			_ = json.Unmarshal([]byte(r.RiskTags), &entry.RiskTags)
		}
		out = append(out, entry)
	}
	return out, nil
}

func (s *PostgresStore) UpsertWatchlistEntry(ctx context.Context, entry types.WatchlistEntry) error {
	riskTags, err := json.Marshal(entry.RiskTags)
	if err != nil {
		return errors.Wrap(err, "marshal risk tags")
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO watchlist (ticker, company_name, thesis, risk_tags, priority, sector)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (ticker) DO UPDATE SET
			company_name = EXCLUDED.company_name,
			thesis = EXCLUDED.thesis,
			risk_tags = EXCLUDED.risk_tags,
			priority = EXCLUDED.priority,
			sector = EXCLUDED.sector`,
		entry.Ticker, entry.CompanyName, entry.Thesis, riskTags, entry.Priority, entry.Sector,
	)
	if err != nil {
		return errors.Wrap(err, "upsert watchlist entry")
	}
	return nil
}

func (s *PostgresStore) DeleteWatchlistEntry(ctx context.Context, ticker string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM watchlist WHERE ticker = $1`, ticker)
	if err != nil {
		return errors.Wrap(err, "delete watchlist entry")
	}
	return nil
}

func (s *PostgresStore) ListRecentNewsItems(ctx context.Context, since, until time.Time, tickers []string) ([]types.NewsItem, error) {
	query := `
		SELECT id, raw_item_id, canonical_url, title, title_normalized, content_hash, summary, published_at, source, source_type, credibility, tickers
		FROM news_items
		WHERE published_at BETWEEN $1 AND $2`
	args := []interface{}{since, until}
	if len(tickers) > 0 {
		query += ` AND tickers && $3`
		args = append(args, pq.Array(tickers))
	}

	var rows []struct {
		types.NewsItem
		Tickers pq.StringArray `db:"tickers"`
	}
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, errors.Wrap(err, "select recent news items")
	}

	out := make([]types.NewsItem, 0, len(rows))
	for _, r := range rows {
		item := r.NewsItem
		item.Tickers = []string(r.Tickers)
		out = append(out, item)
	}
	return out, nil
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (types.PipelineRun, error) {
	var run types.PipelineRun
	err := s.db.GetContext(ctx, &run, `
		SELECT run_id, started_at, finished_at, status, raw_collected, after_normalize, after_dedup, analyzed_success, analyzed_failed, delivered, error_log
		FROM pipeline_runs WHERE run_id = $1`, runID)
	if err == sql.ErrNoRows {
		return types.PipelineRun{}, ErrNotFound
	}
	if err != nil {
		return types.PipelineRun{}, errors.Wrap(err, "select pipeline run")
	}
	return run, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]types.PipelineRun, error) {
	query := `
		SELECT run_id, started_at, finished_at, status, raw_collected, after_normalize, after_dedup, analyzed_success, analyzed_failed, delivered, error_log
		FROM pipeline_runs`
	args := []interface{}{}
	if filter.Status != "" {
		args = append(args, filter.Status)
		query += fmt.Sprintf(" WHERE status = $%d", len(args))
	}
	query += " ORDER BY started_at DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	var runs []types.PipelineRun
	if err := s.db.SelectContext(ctx, &runs, query, args...); err != nil {
		return nil, errors.Wrap(err, "select pipeline runs")
	}
	return runs, nil
}

func (s *PostgresStore) GetNewsItem(ctx context.Context, id int64) (types.NewsItem, error) {
	var row struct {
		types.NewsItem
		Tickers    pq.StringArray `db:"tickers"`
		RawPayload sql.NullString `db:"raw_payload"`
	}
	err := s.db.GetContext(ctx, &row, `
		SELECT n.id, n.raw_item_id, n.canonical_url, n.title, n.title_normalized, n.content_hash, n.summary, n.published_at, n.source, n.source_type, n.credibility, n.tickers, r.raw_payload
		FROM news_items n LEFT JOIN raw_items r ON r.id = n.raw_item_id
		WHERE n.id = $1`, id)
	if err == sql.ErrNoRows {
		return types.NewsItem{}, ErrNotFound
	}
	if err != nil {
		return types.NewsItem{}, errors.Wrap(err, "select news item")
	}
	item := row.NewsItem
	item.Tickers = []string(row.Tickers)
	if row.RawPayload.Valid {
		_ = json.Unmarshal([]byte(row.RawPayload.String), &item.RawPayload)
	}
	return item, nil
}

func (s *PostgresStore) ListNewsItems(ctx context.Context, filter NewsItemFilter) ([]types.NewsItem, error) {
	query := `
		SELECT n.id, n.raw_item_id, n.canonical_url, n.title, n.title_normalized, n.content_hash, n.summary, n.published_at, n.source, n.source_type, n.credibility, n.tickers, r.raw_payload
		FROM news_items n LEFT JOIN raw_items r ON r.id = n.raw_item_id`
	joins := ""
	var conds []string
	args := []interface{}{}

	if filter.EventType != "" || filter.ImpactDirection != "" {
		joins = " JOIN analysis_results a ON a.news_item_id = n.id"
	}
	if filter.Ticker != "" {
		args = append(args, filter.Ticker)
		conds = append(conds, fmt.Sprintf("$%d = ANY(n.tickers)", len(args)))
	}
	if filter.Source != "" {
		args = append(args, filter.Source)
		conds = append(conds, fmt.Sprintf("n.source = $%d", len(args)))
	}
	if filter.SourceType != "" {
		args = append(args, filter.SourceType)
		conds = append(conds, fmt.Sprintf("n.source_type = $%d", len(args)))
	}
	if filter.EventType != "" {
		args = append(args, filter.EventType)
		conds = append(conds, fmt.Sprintf("a.event_type = $%d", len(args)))
	}
	if filter.ImpactDirection != "" {
		args = append(args, filter.ImpactDirection)
		conds = append(conds, fmt.Sprintf("a.impact_direction = $%d", len(args)))
	}
	if !filter.Since.IsZero() {
		args = append(args, filter.Since)
		conds = append(conds, fmt.Sprintf("n.published_at >= $%d", len(args)))
	}
	if !filter.Until.IsZero() {
		args = append(args, filter.Until)
		conds = append(conds, fmt.Sprintf("n.published_at <= $%d", len(args)))
	}

	query += joins
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY n.published_at DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	var rows []struct {
		types.NewsItem
		Tickers    pq.StringArray `db:"tickers"`
		RawPayload sql.NullString `db:"raw_payload"`
	}
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, errors.Wrap(err, "select news items")
	}

	out := make([]types.NewsItem, 0, len(rows))
	for _, r := range rows {
		item := r.NewsItem
		item.Tickers = []string(r.Tickers)
		if r.RawPayload.Valid {
			_ = json.Unmarshal([]byte(r.RawPayload.String), &item.RawPayload)
		}
		out = append(out, item)
	}
	return out, nil
}

func (s *PostgresStore) GetAnalysisByNewsItemID(ctx context.Context, newsItemID int64) (types.AnalysisResult, error) {
	var result types.AnalysisResult
	err := s.db.GetContext(ctx, &result, `
		SELECT id, news_item_id, provider, model, prompt_version, event_type, impact_direction, impact_horizon, thesis_relation, confidence, confidence_reason, summary, watch_next, tokens_used, cost_usd
		FROM analysis_results WHERE news_item_id = $1`, newsItemID)
	if err == sql.ErrNoRows {
		return types.AnalysisResult{}, ErrNotFound
	}
	if err != nil {
		return types.AnalysisResult{}, errors.Wrap(err, "select analysis result")
	}
	return result, nil
}

func nullableID(id int64) sql.NullInt64 {
	if id == 0 {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: id, Valid: true}
}

func checkRowsAffected(res sql.Result, err error, op string) error {
	if err != nil {
		return errors.Wrap(err, op)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, op+": rows affected")
	}
	if n == 0 {
		return errors.Wrapf(ErrNotFound, "%s", op)
	}
	return nil
}
