package repository

import (
	"context"
	"errors"

	"HexCollector-App/internal/domain/model"
)

// ErrAggregateNotFound は保存済みの集計結果が無い場合のエラー
var ErrAggregateNotFound = errors.New("保存済みの収集結果がありません")

// PlaceSinkRepository は収集結果の永続化先
// 同じExternalIDを再度保存した場合は重複させずに上書きすること
type PlaceSinkRepository interface {
	Persist(ctx context.Context, aggregate *model.Aggregate) error
}

// AggregateReader は保存済みの最新集計結果を読み出せる永続化先
type AggregateReader interface {
	LatestAggregate(ctx context.Context) (*model.Aggregate, error)
}
