package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
	"github.com/phuslu/log"

	"HexCollector-App/internal/domain/model"
	"HexCollector-App/internal/domain/repository"
	"HexCollector-App/internal/infrastructure/database"
	"HexCollector-App/internal/logger"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS places (
	external_id     TEXT PRIMARY KEY,
	name            TEXT NOT NULL,
	address         TEXT NOT NULL DEFAULT '',
	lat             DOUBLE PRECISION NOT NULL,
	lng             DOUBLE PRECISION NOT NULL,
	categories      TEXT[] NOT NULL DEFAULT '{}',
	business_status TEXT NOT NULL DEFAULT '',
	rating          DOUBLE PRECISION,
	rating_count    INTEGER NOT NULL DEFAULT 0,
	icon_ref        TEXT NOT NULL DEFAULT '',
	photo_refs      TEXT[] NOT NULL DEFAULT '{}',
	last_run_id     TEXT NOT NULL,
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS collection_runs (
	run_id               TEXT PRIMARY KEY,
	region_name          TEXT NOT NULL,
	collection_timestamp TIMESTAMPTZ NOT NULL,
	resolution           INTEGER NOT NULL,
	total_cells          INTEGER NOT NULL,
	total_results        INTEGER NOT NULL,
	runtime_seconds      DOUBLE PRECISION NOT NULL,
	total_requests       BIGINT NOT NULL,
	failed_requests      BIGINT NOT NULL
);`

const upsertPlaceQuery = `
INSERT INTO places (
	external_id, name, address, lat, lng, categories, business_status,
	rating, rating_count, icon_ref, photo_refs, last_run_id, updated_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, now())
ON CONFLICT (external_id) DO UPDATE SET
	name = EXCLUDED.name,
	address = EXCLUDED.address,
	lat = EXCLUDED.lat,
	lng = EXCLUDED.lng,
	categories = EXCLUDED.categories,
	business_status = EXCLUDED.business_status,
	rating = EXCLUDED.rating,
	rating_count = EXCLUDED.rating_count,
	icon_ref = EXCLUDED.icon_ref,
	photo_refs = EXCLUDED.photo_refs,
	last_run_id = EXCLUDED.last_run_id,
	updated_at = now()`

const insertRunQuery = `
INSERT INTO collection_runs (
	run_id, region_name, collection_timestamp, resolution, total_cells,
	total_results, runtime_seconds, total_requests, failed_requests
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (run_id) DO NOTHING`

// PostgresPlaceSinkRepository PostgreSQLに収集結果をupsertする
type PostgresPlaceSinkRepository struct {
	client *database.PostgreSQLClient
	logger *log.Logger
}

var _ repository.PlaceSinkRepository = (*PostgresPlaceSinkRepository)(nil)

func NewPostgresPlaceSinkRepository(client *database.PostgreSQLClient, l *log.Logger) *PostgresPlaceSinkRepository {
	return &PostgresPlaceSinkRepository{
		client: client,
		logger: logger.OrDefault(l),
	}
}

// EnsureSchema テーブルが無ければ作成する
func (r *PostgresPlaceSinkRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.client.DB.ExecContext(ctx, postgresSchema); err != nil {
		return fmt.Errorf("スキーマの作成に失敗: %w", err)
	}
	return nil
}

// Persist 1トランザクションで全スポットとラン情報を書き込む
func (r *PostgresPlaceSinkRepository) Persist(ctx context.Context, aggregate *model.Aggregate) error {
	tx, err := r.client.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("トランザクションの開始に失敗: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, upsertPlaceQuery)
	if err != nil {
		return fmt.Errorf("クエリの準備に失敗: %w", err)
	}
	defer stmt.Close()

	for i := range aggregate.Results {
		p := &aggregate.Results[i]
		rating := sql.NullFloat64{}
		if p.HasRating() {
			rating = sql.NullFloat64{Float64: p.GetRating(), Valid: true}
		}
		if _, err := stmt.ExecContext(ctx,
			p.ExternalID, p.Name, p.Address, p.Location.Lat, p.Location.Lng,
			pq.Array(p.Categories), p.BusinessStatus, rating, p.RatingCount,
			p.IconRef, pq.Array(p.PhotoRefs), aggregate.RunID,
		); err != nil {
			return fmt.Errorf("スポット %s の保存に失敗: %w", p.ExternalID, err)
		}
	}

	stats := aggregate.RateGovernorStats
	if _, err := tx.ExecContext(ctx, insertRunQuery,
		aggregate.RunID, aggregate.RegionName, aggregate.CollectionTimestamp, aggregate.Resolution,
		aggregate.TotalCells, aggregate.TotalResults, aggregate.Runtime.Seconds(),
		stats.TotalRequests, stats.FailedRequests,
	); err != nil {
		return fmt.Errorf("ラン情報の保存に失敗: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("コミットに失敗: %w", err)
	}

	r.logger.Info().
		Str("run_id", aggregate.RunID).
		Int("places", len(aggregate.Results)).
		Msg("✅ 収集結果をPostgreSQLに保存しました")
	return nil
}
