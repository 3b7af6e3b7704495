package geometry

import (
	"fmt"
	"testing"

	"github.com/go-spatial/geom"
	"github.com/paulsmith/gogeos/geos"
)

func checkGeomEquality(wkt1, wkt2 string) error {
	geom1, err := geos.FromWKT(wkt1)
	if err != nil {
		return err
	}
	geom2, err := geos.FromWKT(wkt2)
	if err != nil {
		return err
	}
	if equal, err := geom1.Equals(geom2); err != nil {
		return err
	} else if !equal {
		return fmt.Errorf("Not equal")
	}
	return nil
}

func TestGeom(t *testing.T) {
	wktAOI1 := "POLYGON ((129 -11, 130 -11, 130 -12, 129 -12, 129 -11))"
	wktAOI2 := "POLYGON ((130 -12, 130 -11, 131 -11, 131 -12, 130 -12))"
	wktAOI3 := "POLYGON ((129 -11, 131 -11, 131 -12, 129 -12, 129 -11))"

	if wkt, err := WKTUnion([]string{wktAOI1, wktAOI1}, TOLERANCE_GEOG); err != nil {
		t.Error(err.Error())
	} else if err := checkGeomEquality(wkt, wktAOI1); err != nil {
		t.Errorf("expect %s found %s (%v)", wktAOI1, wkt, err)
	}

	if wkt, err := WKTUnion([]string{wktAOI1, wktAOI2}, TOLERANCE_GEOG); err != nil {
		t.Error(err.Error())
	} else if err := checkGeomEquality(wkt, wktAOI3); err != nil {
		t.Errorf("expect %s found %s (%v)", wktAOI3, wkt, err)
	}
}

func TestUnionPolygonsAndBounds(t *testing.T) {
	west := geom.Polygon{{{129, -11}, {130, -11}, {130, -12}, {129, -12}, {129, -11}}}
	east := geom.Polygon{{{130, -12}, {130, -11}, {131, -11}, {131, -12}, {130, -12}}}
	island := geom.Polygon{{{140, -20}, {141, -20}, {141, -21}, {140, -21}, {140, -20}}}

	mp, err := UnionPolygons([]geom.Geometry{west, geom.MultiPolygon{east.LinearRings(), island.LinearRings()}}, TOLERANCE_GEOG)
	if err != nil {
		t.Fatal(err)
	}
	if len(mp) != 2 {
		t.Errorf("expected 2 polygons, got %d", len(mp))
	}
	b, err := BoundsOf(mp)
	if err != nil {
		t.Fatal(err)
	}
	if b.MinLon != 129 || b.MaxLon != 141 || b.MinLat != -21 || b.MaxLat != -11 {
		t.Errorf("unexpected bounds: %+v", b)
	}
	if b.Width() != 12 || b.Height() != 10 {
		t.Errorf("unexpected size: %fx%f", b.Width(), b.Height())
	}

	if _, err := BoundsOf(nil); err == nil {
		t.Error("expected an error on empty geometry")
	}
}

func TestDecodeFeatures(t *testing.T) {
	fc := `{"type":"FeatureCollection","features":[
		{"type":"Feature","id":"a1","properties":{"country_na":"Testland","pop":12},"geometry":{"type":"Polygon","coordinates":[[[0,0],[1,0],[1,1],[0,1],[0,0]]]}},
		{"type":"Feature","properties":{"country_na":"Otherland"},"geometry":{"type":"MultiPolygon","coordinates":[[[[2,2],[3,2],[3,3],[2,3],[2,2]]]]}}
	]}`
	features, err := DecodeFeatures([]byte(fc))
	if err != nil {
		t.Fatal(err)
	}
	if len(features) != 2 {
		t.Fatalf("expected 2 features, got %d", len(features))
	}
	if features[0].StringProperty("country_na") != "Testland" || features[0].StringProperty("pop") != "" {
		t.Errorf("unexpected properties: %v", features[0].Properties)
	}
	if _, ok := features[1].Geometry.(geom.MultiPolygon); !ok {
		t.Errorf("expected a multipolygon, got %T", features[1].Geometry)
	}

	features, err = DecodeFeatures([]byte(`{"type":"Polygon","coordinates":[[[0,0],[1,0],[1,1],[0,1],[0,0]]]}`))
	if err != nil {
		t.Fatal(err)
	}
	if len(features) != 1 || features[0].Properties != nil {
		t.Errorf("unexpected features: %v", features)
	}
}
