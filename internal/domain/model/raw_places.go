package model

// プロバイダ（Google Places Nearby Search）のステータス
const (
	ProviderStatusOK          = "OK"
	ProviderStatusZeroResults = "ZERO_RESULTS"
)

// RawPlace Nearby Search の1件分の生レスポンス
// 欠落しうるフィールドはポインタで表現する
type RawPlace struct {
	PlaceID          string       `json:"place_id"`
	Name             string       `json:"name"`
	Vicinity         *string      `json:"vicinity,omitempty"`
	FormattedAddress *string      `json:"formatted_address,omitempty"`
	Geometry         RawGeometry  `json:"geometry"`
	Types            []string     `json:"types,omitempty"`
	BusinessStatus   string       `json:"business_status,omitempty"`
	Rating           *float64     `json:"rating,omitempty"`
	UserRatingsTotal *int         `json:"user_ratings_total,omitempty"`
	Icon             string       `json:"icon,omitempty"`
	Photos           []RawPhoto   `json:"photos,omitempty"`
	PlusCode         *RawPlusCode `json:"plus_code,omitempty"`
}

type RawGeometry struct {
	Location LatLng `json:"location"`
}

type RawPhoto struct {
	Height           int      `json:"height"`
	Width            int      `json:"width"`
	PhotoReference   string   `json:"photo_reference"`
	HTMLAttributions []string `json:"html_attributions"`
}

type RawPlusCode struct {
	CompoundCode string `json:"compound_code"`
	GlobalCode   string `json:"global_code"`
}

// SearchPage 1ページ分の検索結果
type SearchPage struct {
	Results       []RawPlace
	NextPageToken string
	Status        string
}

// HasNextPage 次ページのトークンが存在するかチェック
func (sp *SearchPage) HasNextPage() bool {
	return sp.NextPageToken != ""
}

// ToPlace RawPlaceを正規化済みのPlaceに変換
// rating は欠落時nil、rating_count は0、photo_refs は空配列になる
func (r *RawPlace) ToPlace() Place {
	place := Place{
		ExternalID:     r.PlaceID,
		Name:           r.Name,
		Location:       r.Geometry.Location,
		Categories:     r.Types,
		BusinessStatus: r.BusinessStatus,
		IconRef:        r.Icon,
		PhotoRefs:      make([]string, 0, len(r.Photos)),
	}

	// vicinity が無い場合は formatted_address を使う
	switch {
	case r.Vicinity != nil && *r.Vicinity != "":
		place.Address = *r.Vicinity
	case r.FormattedAddress != nil:
		place.Address = *r.FormattedAddress
	}

	if place.Categories == nil {
		place.Categories = []string{}
	}

	if r.Rating != nil {
		rating := *r.Rating
		place.Rating = &rating
	}
	if r.UserRatingsTotal != nil {
		place.RatingCount = *r.UserRatingsTotal
	}

	for _, photo := range r.Photos {
		place.PhotoRefs = append(place.PhotoRefs, photo.PhotoReference)
	}

	return place
}
