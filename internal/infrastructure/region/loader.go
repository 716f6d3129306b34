package region

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"HexCollector-App/internal/domain/model"
)

// ErrUnsupportedGeoJSON はポリゴンを1つも含まないGeoJSONの場合のエラー
var ErrUnsupportedGeoJSON = errors.New("ポリゴンを含むGeoJSONではありません")

// Source は領域を組み立てる材料
// GeoJSON / Path があればポリゴン境界として読み込み、BoundingBox と Cities はそのまま引き継ぐ
type Source struct {
	Name        string
	Path        string
	GeoJSON     []byte
	BoundingBox *model.BoundingBox
	Cities      []model.CityCenter
}

// Build は Source から RegionDescriptor を作成する
func Build(src Source) (model.RegionDescriptor, error) {
	region := model.RegionDescriptor{
		Name:        src.Name,
		BoundingBox: src.BoundingBox,
		Cities:      src.Cities,
	}

	data := src.GeoJSON
	if len(data) == 0 && src.Path != "" {
		var err error
		data, err = os.ReadFile(src.Path)
		if err != nil {
			return model.RegionDescriptor{}, fmt.Errorf("領域ファイルの読み込みに失敗: %w", err)
		}
	}
	if len(data) == 0 {
		return region, nil
	}

	boundary, err := ParseGeoJSON(data)
	if err != nil {
		return model.RegionDescriptor{}, err
	}
	region.Boundary = boundary
	return region, nil
}

// LoadFile はGeoJSONファイルを読み込んでポリゴン境界を持つ領域を返す
func LoadFile(name, path string) (model.RegionDescriptor, error) {
	return Build(Source{Name: name, Path: path})
}

// ParseGeoJSON は FeatureCollection / Feature / Geometry のいずれかをMultiPolygonに変換する
// ポリゴン以外のジオメトリは無視する
func ParseGeoJSON(data []byte) (orb.MultiPolygon, error) {
	var header struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &header); err != nil {
		return nil, fmt.Errorf("GeoJSONのパースに失敗: %w", err)
	}

	var geometries []orb.Geometry
	switch strings.ToLower(header.Type) {
	case "featurecollection":
		fc, err := geojson.UnmarshalFeatureCollection(data)
		if err != nil {
			return nil, fmt.Errorf("FeatureCollectionのパースに失敗: %w", err)
		}
		for _, f := range fc.Features {
			geometries = append(geometries, f.Geometry)
		}
	case "feature":
		f, err := geojson.UnmarshalFeature(data)
		if err != nil {
			return nil, fmt.Errorf("Featureのパースに失敗: %w", err)
		}
		geometries = append(geometries, f.Geometry)
	default:
		g, err := geojson.UnmarshalGeometry(data)
		if err != nil {
			return nil, fmt.Errorf("Geometryのパースに失敗: %w", err)
		}
		geometries = append(geometries, g.Geometry())
	}

	var boundary orb.MultiPolygon
	for _, g := range geometries {
		boundary = appendPolygons(boundary, g)
	}
	if len(boundary) == 0 {
		return nil, ErrUnsupportedGeoJSON
	}
	return boundary, nil
}

func appendPolygons(dst orb.MultiPolygon, g orb.Geometry) orb.MultiPolygon {
	switch geom := g.(type) {
	case orb.Polygon:
		return append(dst, geom)
	case orb.MultiPolygon:
		return append(dst, geom...)
	case orb.Collection:
		for _, child := range geom {
			dst = appendPolygons(dst, child)
		}
	}
	return dst
}
