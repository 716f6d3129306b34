package repository

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	"github.com/phuslu/log"

	"HexCollector-App/internal/domain/model"
	"HexCollector-App/internal/domain/repository"
	"HexCollector-App/internal/logger"
)

// firestoreBatchLimit Firestoreの1バッチあたりの書き込み上限
const firestoreBatchLimit = 500

// FirestorePlaceSinkRepository Firestoreを使用した収集結果の保存先
// スポットはExternalIDをドキュメントIDにするため、再保存しても重複しない
type FirestorePlaceSinkRepository struct {
	client     *firestore.Client
	placesPath string
	runsPath   string
	logger     *log.Logger
}

var _ repository.PlaceSinkRepository = (*FirestorePlaceSinkRepository)(nil)

// NewFirestorePlaceSinkRepository 新しいFirestorePlaceSinkRepositoryインスタンスを作成
func NewFirestorePlaceSinkRepository(client *firestore.Client, placesPath, runsPath string, l *log.Logger) *FirestorePlaceSinkRepository {
	return &FirestorePlaceSinkRepository{
		client:     client,
		placesPath: placesPath,
		runsPath:   runsPath,
		logger:     logger.OrDefault(l),
	}
}

// Persist はスポットを500件ずつバッチで書き込み、最後にランの集計メタデータを保存する
func (r *FirestorePlaceSinkRepository) Persist(ctx context.Context, aggregate *model.Aggregate) error {
	places := r.client.Collection(r.placesPath)

	for start := 0; start < len(aggregate.Results); start += firestoreBatchLimit {
		end := min(start+firestoreBatchLimit, len(aggregate.Results))

		batch := r.client.Batch()
		for i := start; i < end; i++ {
			place := &aggregate.Results[i]
			batch.Set(places.Doc(place.ExternalID), place.ToFirestorePlace(aggregate.RunID))
		}
		if _, err := batch.Commit(ctx); err != nil {
			r.logger.Error().Err(err).Int("offset", start).Msg("❌ Firestoreへのバッチ書き込みに失敗")
			return fmt.Errorf("スポットの保存に失敗しました（%d件目から）: %w", start, err)
		}

		r.logger.Debug().Int("from", start).Int("to", end).Msg("バッチを保存")
	}

	summary := aggregate.Summary()
	if _, err := r.client.Collection(r.runsPath).Doc(aggregate.RunID).Set(ctx, summary); err != nil {
		return fmt.Errorf("集計メタデータの保存に失敗しました: %w", err)
	}

	r.logger.Info().
		Str("run_id", aggregate.RunID).
		Int("places", len(aggregate.Results)).
		Msg("✅ 収集結果をFirestoreに保存しました")
	return nil
}
