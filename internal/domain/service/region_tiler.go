package service

import (
	"errors"
	"fmt"
	"math"

	"github.com/phuslu/log"
	"github.com/uber/h3-go/v4"

	"HexCollector-App/internal/domain/model"
	"HexCollector-App/internal/logger"
)

// ErrInvalidResolution はH3の解像度が範囲外の場合のエラー
var ErrInvalidResolution = errors.New("H3解像度は0から15の範囲で指定してください")

const (
	// gridSteps は境界ボックスを分割する数（両端を含むため各軸 gridSteps+1 点）
	gridSteps = 20

	maxResolution = 15
)

// coverageStrategy は領域から基準セルを求める方法
type coverageStrategy interface {
	name() string
	baseCells(region *model.RegionDescriptor, resolution int) []h3.Cell
}

// RegionTiler は領域を六角形セルの集合に変換する
type RegionTiler struct {
	logger *log.Logger
}

// NewRegionTiler は新しいRegionTilerを作成する
func NewRegionTiler(l *log.Logger) *RegionTiler {
	return &RegionTiler{logger: logger.OrDefault(l)}
}

func validateResolution(resolution int) error {
	if resolution < 0 || resolution > maxResolution {
		return fmt.Errorf("%w: %d", ErrInvalidResolution, resolution)
	}
	return nil
}

// GenerateCoverage は領域を覆うセル集合を返す
// 基準セルの周囲1リングを追加して境界の取りこぼしを防ぐ。不正な領域は空集合になる
func (t *RegionTiler) GenerateCoverage(region model.RegionDescriptor, resolution int) (model.Coverage, error) {
	if err := validateResolution(resolution); err != nil {
		return nil, err
	}

	strategy := selectStrategy(&region)
	if strategy == nil {
		t.logger.Warn().Str("region", region.Name).Msg("⚠️ 領域情報が空のためセルを生成しません")
		return model.Coverage{}, nil
	}

	base := strategy.baseCells(&region, resolution)
	coverage := expandRing(base)

	t.logger.Info().
		Str("region", region.Name).
		Str("strategy", strategy.name()).
		Int("resolution", resolution).
		Int("base_cells", len(base)).
		Int("cells", len(coverage)).
		Msg("🗺️ H3セルを生成しました")

	return coverage, nil
}

// CellCenter はセルの中心座標を返す
func CellCenter(cell model.Cell) model.LatLng {
	center := h3.Cell(h3.IndexFromString(string(cell))).LatLng()
	return model.LatLng{Lat: center.Lat, Lng: center.Lng}
}

// CellBoundary はセルの境界座標を順番に返す
func CellBoundary(cell model.Cell) []model.LatLng {
	boundary := h3.Cell(h3.IndexFromString(string(cell))).Boundary()
	points := make([]model.LatLng, 0, len(boundary))
	for _, p := range boundary {
		points = append(points, model.LatLng{Lat: p.Lat, Lng: p.Lng})
	}
	return points
}

// CellFor は座標を含むセルを返す
func CellFor(point model.LatLng, resolution int) model.Cell {
	return model.Cell(h3.LatLngToCell(h3.NewLatLng(point.Lat, point.Lng), resolution).String())
}

// BoundingBoxOf はポリゴン境界の外接ボックスを計算する
// 境界が無い場合はnilを返す
func BoundingBoxOf(region model.RegionDescriptor) *model.BoundingBox {
	if !region.HasBoundary() {
		return nil
	}
	bound := region.Boundary.Bound()
	return &model.BoundingBox{
		North: bound.Max.Lat(),
		South: bound.Min.Lat(),
		East:  bound.Max.Lon(),
		West:  bound.Min.Lon(),
	}
}

func selectStrategy(region *model.RegionDescriptor) coverageStrategy {
	switch {
	case region.HasBoundary():
		return polygonStrategy{}
	case region.BoundingBox != nil:
		return gridStrategy{}
	case len(region.Cities) > 0:
		return cityStrategy{}
	default:
		return nil
	}
}

// expandRing は各セルに隣接する1リングを追加し、重複を除いて返す
func expandRing(base []h3.Cell) model.Coverage {
	cells := make([]model.Cell, 0, len(base)*7)
	for _, cell := range base {
		for _, neighbor := range cell.GridDisk(1) {
			cells = append(cells, model.Cell(neighbor.String()))
		}
	}
	return model.NewCoverage(cells)
}

// polygonStrategy はポリゴンの全頂点をセルに変換する
type polygonStrategy struct{}

func (polygonStrategy) name() string { return "polygon" }

func (polygonStrategy) baseCells(region *model.RegionDescriptor, resolution int) []h3.Cell {
	var cells []h3.Cell
	for _, polygon := range region.Boundary {
		for _, ring := range polygon {
			for _, point := range ring {
				if !validPoint(point.Lat(), point.Lon()) {
					continue
				}
				cells = append(cells, h3.LatLngToCell(h3.NewLatLng(point.Lat(), point.Lon()), resolution))
			}
		}
	}
	return cells
}

// gridStrategy は境界ボックス内の格子点をセルに変換する（ポリゴンが無い場合のフォールバック）
type gridStrategy struct{}

func (gridStrategy) name() string { return "grid" }

func (gridStrategy) baseCells(region *model.RegionDescriptor, resolution int) []h3.Cell {
	box := region.BoundingBox
	if !box.IsValid() {
		return nil
	}

	latStep := (box.North - box.South) / gridSteps
	lngStep := (box.East - box.West) / gridSteps

	cells := make([]h3.Cell, 0, (gridSteps+1)*(gridSteps+1))
	for i := 0; i <= gridSteps; i++ {
		lat := box.South + float64(i)*latStep
		for j := 0; j <= gridSteps; j++ {
			lng := box.West + float64(j)*lngStep
			cells = append(cells, h3.LatLngToCell(h3.NewLatLng(lat, lng), resolution))
		}
	}
	return cells
}

// cityStrategy は都市中心から指定リング分のセルを使う
type cityStrategy struct{}

func (cityStrategy) name() string { return "cities" }

func (cityStrategy) baseCells(region *model.RegionDescriptor, resolution int) []h3.Cell {
	var cells []h3.Cell
	for _, city := range region.Cities {
		if !validPoint(city.Lat, city.Lng) {
			continue
		}
		ring := city.Ring
		if ring <= 0 {
			ring = model.DefaultCityRing
		}
		center := h3.LatLngToCell(h3.NewLatLng(city.Lat, city.Lng), resolution)
		cells = append(cells, center.GridDisk(ring)...)
	}
	return cells
}

func validPoint(lat, lng float64) bool {
	if math.IsNaN(lat) || math.IsNaN(lng) || math.IsInf(lat, 0) || math.IsInf(lng, 0) {
		return false
	}
	return lat >= -90 && lat <= 90 && lng >= -180 && lng <= 180
}
