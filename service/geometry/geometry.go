package geometry

import (
	"fmt"
	"math"

	"github.com/airbusgeo/geocube-exporter/common"
	"github.com/go-spatial/geom"
	geomwkt "github.com/go-spatial/geom/encoding/wkt"
	"github.com/paulsmith/gogeos/geos"
)

// MergeMultiPolygons appends all the polygons of g to mp (other geometries are ignored)
func MergeMultiPolygons(g geom.Geometry, mp *geom.MultiPolygon) error {
	switch g := g.(type) {
	case geom.MultiPolygon:
		*mp = append(*mp, g.Polygons()...)
	case geom.Polygon:
		*mp = append(*mp, g.LinearRings())
	case geom.Collection:
		for _, g := range g.Geometries() {
			if err := MergeMultiPolygons(g, mp); err != nil {
				return err
			}
		}
	case nil:
		return fmt.Errorf("MergeMultiPolygons: nil geometry")
	}
	return nil
}

var TOLERANCE_GEOG = 0.000001

func WKTUnion(wkts []string, tolerance float64) (string, error) {
	var geoms []*geos.Geometry
	for _, wkt := range wkts {
		geo, err := geos.FromWKT(wkt)
		if err != nil {
			return "", fmt.Errorf("WKTUnion.FromWKT: %w", err)
		}
		geoms = append(geoms, geo)
	}
	aoi, err := Union(geoms, tolerance)
	if err != nil {
		return "", fmt.Errorf("WKTUnion.%w", err)
	}
	wkt, err := aoi.ToWKT()
	if err != nil {
		return "", fmt.Errorf("WKTUnion.ToWKT: %w", err)
	}
	return wkt, nil
}

func Union(geoms []*geos.Geometry, tolerance float64) (*geos.Geometry, error) {
	aoi, err := UnaryUnion(geoms)
	if err == nil {
		if aoi, err = aoi.Simplify(tolerance); err != nil {
			return nil, fmt.Errorf("Union.Simplify: %w", err)
		}
		return aoi, nil
	}
	// Union all failed, retry one by one with simplify
	aoi = nil
	for _, geom := range geoms {
		if geom, err = geom.Simplify(tolerance); err != nil {
			return nil, fmt.Errorf("Union.Simplify: %w", err)
		}
		if aoi == nil {
			aoi = geom
		} else if aoi, err = geom.Union(aoi); err != nil {
			return nil, fmt.Errorf("Union: %w", err)
		}
	}
	if aoi == nil {
		return nil, fmt.Errorf("Union: no geometry")
	}
	return aoi, nil
}

func UnaryUnion(geoms []*geos.Geometry) (*geos.Geometry, error) {
	aoi, err := geos.NewCollection(geos.MULTIPOLYGON, geoms...)
	if err != nil {
		return nil, fmt.Errorf("UnaryUnion.NewCollection: %w", err)
	}
	if aoi, err = aoi.UnaryUnion(); err != nil {
		return nil, fmt.Errorf("UnaryUnion.UnaryUnion: %w", err)
	}
	return aoi, nil
}

// UnionPolygons merges the polygons of all the geometries into one multipolygon
// Overlapping or adjacent parts are dissolved.
func UnionPolygons(geoms []geom.Geometry, tolerance float64) (geom.MultiPolygon, error) {
	var wkts []string
	for _, g := range geoms {
		var mp geom.MultiPolygon
		if err := MergeMultiPolygons(g, &mp); err != nil {
			return nil, fmt.Errorf("UnionPolygons.%w", err)
		}
		for _, p := range mp {
			wkt, err := geomwkt.EncodeString(geom.Polygon(p))
			if err != nil {
				return nil, fmt.Errorf("UnionPolygons.Encode: %w", err)
			}
			wkts = append(wkts, wkt)
		}
	}
	if len(wkts) == 0 {
		return nil, fmt.Errorf("UnionPolygons: no polygon")
	}
	wkt, err := WKTUnion(wkts, tolerance)
	if err != nil {
		return nil, fmt.Errorf("UnionPolygons.%w", err)
	}
	g, err := geomwkt.DecodeString(wkt)
	if err != nil {
		return nil, fmt.Errorf("UnionPolygons.DecodeString: %w", err)
	}
	var mp geom.MultiPolygon
	if err := MergeMultiPolygons(g, &mp); err != nil {
		return nil, fmt.Errorf("UnionPolygons.%w", err)
	}
	return mp, nil
}

// BoundsOf returns the bounding box of the multipolygon
func BoundsOf(mp geom.MultiPolygon) (common.Bounds, error) {
	b := common.Bounds{MinLon: math.Inf(1), MinLat: math.Inf(1), MaxLon: math.Inf(-1), MaxLat: math.Inf(-1)}
	empty := true
	for _, polygon := range mp {
		for _, ring := range polygon {
			for _, pt := range ring {
				empty = false
				b.MinLon = math.Min(b.MinLon, pt[0])
				b.MaxLon = math.Max(b.MaxLon, pt[0])
				b.MinLat = math.Min(b.MinLat, pt[1])
				b.MaxLat = math.Max(b.MaxLat, pt[1])
			}
		}
	}
	if empty {
		return common.Bounds{}, fmt.Errorf("BoundsOf: empty geometry")
	}
	return b, nil
}
