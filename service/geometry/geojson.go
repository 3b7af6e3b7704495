package geometry

import (
	"encoding/json"
	"fmt"

	"github.com/go-spatial/geom"
	"github.com/go-spatial/geom/encoding/geojson"
)

// Feature is a geojson feature with free-form properties
type Feature struct {
	Properties map[string]interface{}
	Geometry   geom.Geometry
}

type rawFeature struct {
	Properties map[string]interface{} `json:"properties"`
	Geometry   geojson.Geometry       `json:"geometry"`
}

type rawFeatureCollection struct {
	Type     string       `json:"type"`
	Features []rawFeature `json:"features"`
}

// DecodeFeatures decodes a FeatureCollection, a Feature or a bare geometry.
// A bare geometry is returned as a Feature without properties.
func DecodeFeatures(data []byte) ([]Feature, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("DecodeFeatures: %w", err)
	}
	switch head.Type {
	case "FeatureCollection":
		var fc rawFeatureCollection
		if err := json.Unmarshal(data, &fc); err != nil {
			return nil, fmt.Errorf("DecodeFeatures.FeatureCollection: %w", err)
		}
		features := make([]Feature, 0, len(fc.Features))
		for _, f := range fc.Features {
			features = append(features, Feature{Properties: f.Properties, Geometry: f.Geometry.Geometry})
		}
		return features, nil
	case "Feature":
		var f rawFeature
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("DecodeFeatures.Feature: %w", err)
		}
		return []Feature{{Properties: f.Properties, Geometry: f.Geometry.Geometry}}, nil
	}
	var g geojson.Geometry
	if err := g.UnmarshalJSON(data); err != nil {
		return nil, fmt.Errorf("DecodeFeatures.Geometry: %w", err)
	}
	return []Feature{{Geometry: g.Geometry}}, nil
}

// StringProperty returns the property as a string ("" if missing or not a string)
func (f Feature) StringProperty(key string) string {
	if v, ok := f.Properties[key].(string); ok {
		return v
	}
	return ""
}
