package repository

import (
	"context"
	"errors"
	"fmt"

	"HexCollector-App/internal/domain/model"
	"HexCollector-App/internal/domain/repository"
)

// NamedSink 種別名付きの保存先
type NamedSink struct {
	Kind string
	Sink repository.PlaceSinkRepository
}

// MultiPlaceSinkRepository 複数の保存先に順番に書き込む
// 最初に失敗した保存先で中断し、そのエラーを返す
type MultiPlaceSinkRepository struct {
	sinks []NamedSink
}

var (
	_ repository.PlaceSinkRepository = (*MultiPlaceSinkRepository)(nil)
	_ repository.AggregateReader     = (*MultiPlaceSinkRepository)(nil)
)

func NewMultiPlaceSinkRepository(sinks ...NamedSink) *MultiPlaceSinkRepository {
	return &MultiPlaceSinkRepository{sinks: sinks}
}

// Persist 設定順に全ての保存先へ書き込む
func (r *MultiPlaceSinkRepository) Persist(ctx context.Context, aggregate *model.Aggregate) error {
	for _, s := range r.sinks {
		if err := s.Sink.Persist(ctx, aggregate); err != nil {
			return fmt.Errorf("%s: %w", s.Kind, err)
		}
	}
	return nil
}

// LatestAggregate 読み出しに対応した最初の保存先から最新の結果を返す
func (r *MultiPlaceSinkRepository) LatestAggregate(ctx context.Context) (*model.Aggregate, error) {
	for _, s := range r.sinks {
		reader, ok := s.Sink.(repository.AggregateReader)
		if !ok {
			continue
		}
		aggregate, err := reader.LatestAggregate(ctx)
		if errors.Is(err, repository.ErrAggregateNotFound) {
			continue
		}
		return aggregate, err
	}
	return nil, repository.ErrAggregateNotFound
}
