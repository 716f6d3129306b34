package model

import "encoding/json"

// StartCollectionRequest 収集開始APIのリクエスト
// 領域の指定が無い場合は設定ファイルの領域を使う
type StartCollectionRequest struct {
	Resolution  *int            `json:"resolution" binding:"omitempty,min=0,max=15"`
	TestMode    bool            `json:"test_mode"`
	Wait        bool            `json:"wait"` // trueの場合は完了まで待って集計結果を返す
	RegionName  string          `json:"region_name"`
	BoundingBox *BoundingBox    `json:"bounding_box"`
	Cities      []CityCenter    `json:"cities" binding:"omitempty,dive"`
	GeoJSON     json.RawMessage `json:"geojson"` // FeatureCollection / Feature / Geometry
}

// HasRegion リクエストに領域指定が含まれているかチェック
func (r *StartCollectionRequest) HasRegion() bool {
	return r.BoundingBox != nil || len(r.Cities) > 0 || len(r.GeoJSON) > 0
}

// StartCollectionResponse バックグラウンド開始時のレスポンス
type StartCollectionResponse struct {
	RunID    string   `json:"run_id"`
	Status   string   `json:"status"`
	Message  string   `json:"message"`
	Progress Progress `json:"progress"`
}

// NearbyPlacesResponse 周辺スポット検索のレスポンス
type NearbyPlacesResponse struct {
	RunID       string  `json:"run_id"`
	TotalPlaces int     `json:"total_places"`
	ResultCount int     `json:"result_count"`
	Places      []Place `json:"places"`
}
