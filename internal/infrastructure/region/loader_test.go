package region

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"HexCollector-App/internal/domain/model"
)

const squareFeatureCollection = `{
  "type": "FeatureCollection",
  "features": [
    {
      "type": "Feature",
      "properties": {"name": "square"},
      "geometry": {
        "type": "Polygon",
        "coordinates": [[[139.0, 35.0], [140.0, 35.0], [140.0, 36.0], [139.0, 36.0], [139.0, 35.0]]]
      }
    },
    {
      "type": "Feature",
      "properties": {"name": "station"},
      "geometry": {"type": "Point", "coordinates": [139.7, 35.6]}
    }
  ]
}`

func TestParseGeoJSON_FeatureCollection(t *testing.T) {
	boundary, err := ParseGeoJSON([]byte(squareFeatureCollection))
	require.NoError(t, err)
	require.Len(t, boundary, 1)

	// 座標は [lng, lat] の順で保持される
	first := boundary[0][0][0]
	assert.Equal(t, 139.0, first.Lon())
	assert.Equal(t, 35.0, first.Lat())
}

func TestParseGeoJSON_FeatureWithMultiPolygon(t *testing.T) {
	data := `{
	  "type": "Feature",
	  "properties": {},
	  "geometry": {
	    "type": "MultiPolygon",
	    "coordinates": [
	      [[[0, 0], [1, 0], [1, 1], [0, 0]]],
	      [[[10, 10], [11, 10], [11, 11], [10, 10]]]
	    ]
	  }
	}`
	boundary, err := ParseGeoJSON([]byte(data))
	require.NoError(t, err)
	assert.Len(t, boundary, 2)
}

func TestParseGeoJSON_BareGeometry(t *testing.T) {
	data := `{"type": "Polygon", "coordinates": [[[0, 0], [1, 0], [1, 1], [0, 0]]]}`
	boundary, err := ParseGeoJSON([]byte(data))
	require.NoError(t, err)
	assert.Len(t, boundary, 1)
}

func TestParseGeoJSON_NoPolygons(t *testing.T) {
	_, err := ParseGeoJSON([]byte(`{"type": "Point", "coordinates": [139.7, 35.6]}`))
	assert.True(t, errors.Is(err, ErrUnsupportedGeoJSON))
}

func TestParseGeoJSON_Malformed(t *testing.T) {
	_, err := ParseGeoJSON([]byte(`{"type":`))
	assert.Error(t, err)
}

func TestBuild_WithoutGeoJSONKeepsBoxAndCities(t *testing.T) {
	box := &model.BoundingBox{North: 1, South: 0, East: 1, West: 0}
	cities := []model.CityCenter{{Name: "Tokyo", Lat: 35.68, Lng: 139.76}}

	region, err := Build(Source{Name: "test", BoundingBox: box, Cities: cities})
	require.NoError(t, err)
	assert.Equal(t, "test", region.Name)
	assert.False(t, region.HasBoundary())
	assert.Equal(t, box, region.BoundingBox)
	assert.Equal(t, cities, region.Cities)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "region.geojson")
	require.NoError(t, os.WriteFile(path, []byte(squareFeatureCollection), 0o644))

	region, err := LoadFile("kanto", path)
	require.NoError(t, err)
	assert.Equal(t, "kanto", region.Name)
	assert.True(t, region.HasBoundary())
}

func TestLoadFile_Missing(t *testing.T) {
	_, err := LoadFile("missing", filepath.Join(t.TempDir(), "nope.geojson"))
	assert.Error(t, err)
}
