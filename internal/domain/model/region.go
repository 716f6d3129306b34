package model

import (
	"math"

	"github.com/paulmach/orb"
)

// BoundingBox 南北東西で表す境界ボックス
type BoundingBox struct {
	North float64 `json:"north" toml:"north"`
	South float64 `json:"south" toml:"south"`
	East  float64 `json:"east" toml:"east"`
	West  float64 `json:"west" toml:"west"`
}

// IsValid 境界ボックスとして成立しているかチェック
func (b *BoundingBox) IsValid() bool {
	if b == nil {
		return false
	}
	for _, v := range []float64{b.North, b.South, b.East, b.West} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	if b.South > b.North || b.West > b.East {
		return false
	}
	return b.South >= -90 && b.North <= 90 && b.West >= -180 && b.East <= 180
}

// ToBound orb.Bound に変換
func (b *BoundingBox) ToBound() orb.Bound {
	return orb.Bound{
		Min: orb.Point{b.West, b.South},
		Max: orb.Point{b.East, b.North},
	}
}

// CityCenter 都市中心点とその周囲のリング数
type CityCenter struct {
	Name string  `json:"name" toml:"name"`
	Lat  float64 `json:"lat" toml:"lat"`
	Lng  float64 `json:"lng" toml:"lng"`
	Ring int     `json:"ring" toml:"ring"` // 0の場合はDefaultCityRing
}

// DefaultCityRing 都市中心から広げるリング数のデフォルト
const DefaultCityRing = 2

// RegionDescriptor 収集対象領域
// Boundary があればそれを優先し、無ければ BoundingBox、最後に Cities を使う
type RegionDescriptor struct {
	Name        string           `json:"name"`
	Boundary    orb.MultiPolygon `json:"-"` // [lng, lat] のリング列
	BoundingBox *BoundingBox     `json:"bounding_box,omitempty"`
	Cities      []CityCenter     `json:"cities,omitempty"`
}

// HasBoundary ポリゴン境界を持っているかチェック
func (r *RegionDescriptor) HasBoundary() bool {
	for _, polygon := range r.Boundary {
		for _, ring := range polygon {
			if len(ring) > 0 {
				return true
			}
		}
	}
	return false
}

// IsEmpty タイリングに使える情報を何も持っていないかチェック
func (r *RegionDescriptor) IsEmpty() bool {
	return !r.HasBoundary() && r.BoundingBox == nil && len(r.Cities) == 0
}
