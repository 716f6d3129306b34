package repository

import (
	"HexCollector-App/internal/domain/model"
	"context"
)

// PlaceSearchRepository はページングされた外部検索APIの責務を持つリポジトリインターフェース
type PlaceSearchRepository interface {
	// SearchPage は1ページ分を取得する。pageTokenがある場合は検索条件を送らない
	SearchPage(ctx context.Context, center model.LatLng, radiusMeters int, pageToken string) (*model.SearchPage, error)

	// SearchAll は全ページを順番に取得する
	SearchAll(ctx context.Context, center model.LatLng, radiusMeters int) ([]model.RawPlace, error)
}
