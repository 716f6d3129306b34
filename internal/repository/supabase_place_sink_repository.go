package repository

import (
	"context"
	"fmt"

	"github.com/phuslu/log"

	"HexCollector-App/internal/database"
	"HexCollector-App/internal/domain/model"
	"HexCollector-App/internal/domain/repository"
	"HexCollector-App/internal/logger"
)

// supabaseChunkSize 1リクエストで送る行数
const supabaseChunkSize = 500

// SupabasePlaceSinkRepository Supabase(PostgREST)経由でスポットをupsertする
type SupabasePlaceSinkRepository struct {
	client *database.SupabaseClient
	table  string
	logger *log.Logger
}

var _ repository.PlaceSinkRepository = (*SupabasePlaceSinkRepository)(nil)

func NewSupabasePlaceSinkRepository(client *database.SupabaseClient, table string, l *log.Logger) *SupabasePlaceSinkRepository {
	return &SupabasePlaceSinkRepository{
		client: client,
		table:  table,
		logger: logger.OrDefault(l),
	}
}

// supabasePlaceRow placesテーブルの1行
type supabasePlaceRow struct {
	ExternalID     string   `json:"external_id"`
	Name           string   `json:"name"`
	Address        string   `json:"address"`
	Lat            float64  `json:"lat"`
	Lng            float64  `json:"lng"`
	Categories     []string `json:"categories"`
	BusinessStatus string   `json:"business_status"`
	Rating         *float64 `json:"rating"`
	RatingCount    int      `json:"rating_count"`
	IconRef        string   `json:"icon_ref"`
	PhotoRefs      []string `json:"photo_refs"`
	LastRunID      string   `json:"last_run_id"`
}

func newSupabasePlaceRow(p *model.Place, runID string) supabasePlaceRow {
	return supabasePlaceRow{
		ExternalID:     p.ExternalID,
		Name:           p.Name,
		Address:        p.Address,
		Lat:            p.Location.Lat,
		Lng:            p.Location.Lng,
		Categories:     p.Categories,
		BusinessStatus: p.BusinessStatus,
		Rating:         p.Rating,
		RatingCount:    p.RatingCount,
		IconRef:        p.IconRef,
		PhotoRefs:      p.PhotoRefs,
		LastRunID:      runID,
	}
}

// Persist external_id をキーにチャンク単位でupsertする
func (r *SupabasePlaceSinkRepository) Persist(ctx context.Context, aggregate *model.Aggregate) error {
	for start := 0; start < len(aggregate.Results); start += supabaseChunkSize {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := min(start+supabaseChunkSize, len(aggregate.Results))

		rows := make([]supabasePlaceRow, 0, end-start)
		for i := start; i < end; i++ {
			rows = append(rows, newSupabasePlaceRow(&aggregate.Results[i], aggregate.RunID))
		}

		// postgrest側でJSONに変換されるため、文字列ではなく行をそのまま渡す
		_, _, err := r.client.GetClient().From(r.table).Insert(rows, true, "external_id", "minimal", "").Execute()
		if err != nil {
			return fmt.Errorf("Supabaseへの保存に失敗しました（%d件目から）: %w", start, err)
		}
	}

	r.logger.Info().
		Str("run_id", aggregate.RunID).
		Str("table", r.table).
		Int("places", len(aggregate.Results)).
		Msg("✅ 収集結果をSupabaseに保存しました")
	return nil
}
