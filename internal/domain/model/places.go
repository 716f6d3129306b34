package model

// LatLng 緯度経度を表す基本的な型（検索中心点やセル中心で使用）
type LatLng struct {
	Lat float64 `json:"lat" firestore:"lat"`
	Lng float64 `json:"lng" firestore:"lng"`
}

// Place 正規化済みのスポット情報
// 生成後は変更しない。ランの集計が終わるまではアキュムレータが所有する
type Place struct {
	ExternalID     string   `json:"external_id" db:"external_id"`         // プロバイダ側の一意なID
	Name           string   `json:"name" db:"name"`                       // スポット名
	Address        string   `json:"address" db:"address"`                 // 住所（vicinity優先）
	Location       LatLng   `json:"location" db:"location"`               // 位置情報
	Categories     []string `json:"categories" db:"categories"`           // カテゴリ（複数対応）
	BusinessStatus string   `json:"business_status" db:"business_status"` // 営業状態
	Rating         *float64 `json:"rating,omitempty" db:"rating"`         // 評価値（NULLABLE）
	RatingCount    int      `json:"rating_count" db:"rating_count"`       // 評価件数（デフォルト0）
	IconRef        string   `json:"icon_ref" db:"icon_ref"`               // アイコンURL
	PhotoRefs      []string `json:"photo_refs" db:"photo_refs"`           // 写真リファレンス（空配列可）
}

// HasRating 評価値が存在するかチェック
func (p *Place) HasRating() bool {
	return p.Rating != nil
}

// GetRating 評価値が存在する場合は値を、存在しない場合は0を返す
func (p *Place) GetRating() float64 {
	if p.Rating != nil {
		return *p.Rating
	}
	return 0
}

// FirestorePlace Firestoreに保存するスポットドキュメント
type FirestorePlace struct {
	ExternalID     string   `firestore:"external_id"`
	Name           string   `firestore:"name"`
	Address        string   `firestore:"address"`
	Location       LatLng   `firestore:"location"`
	Categories     []string `firestore:"categories"`
	BusinessStatus string   `firestore:"business_status"`
	Rating         *float64 `firestore:"rating"`
	RatingCount    int      `firestore:"rating_count"`
	IconRef        string   `firestore:"icon_ref"`
	PhotoRefs      []string `firestore:"photo_refs"`
	RunID          string   `firestore:"run_id"`
}

// ToFirestorePlace Place を Firestore 保存用に変換
func (p *Place) ToFirestorePlace(runID string) *FirestorePlace {
	return &FirestorePlace{
		ExternalID:     p.ExternalID,
		Name:           p.Name,
		Address:        p.Address,
		Location:       p.Location,
		Categories:     p.Categories,
		BusinessStatus: p.BusinessStatus,
		Rating:         p.Rating,
		RatingCount:    p.RatingCount,
		IconRef:        p.IconRef,
		PhotoRefs:      p.PhotoRefs,
		RunID:          runID,
	}
}
