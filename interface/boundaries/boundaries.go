package boundaries

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/airbusgeo/geocube-exporter/common"
	"github.com/airbusgeo/geocube-exporter/service/geometry"
	"github.com/go-spatial/geom"
)

// ErrNotFound is returned when the region is unknown
var ErrNotFound = errors.New("region not found")

// Source provides the geometry of the countries (or any named region)
type Source interface {
	// Geometry returns the region with its geometry and bounds
	// Raise ErrNotFound
	Geometry(ctx context.Context, name string) (common.Region, error)
	// Names returns the sorted list of known regions
	Names(ctx context.Context) ([]string, error)
}

// StaticSource implements Source with an in-memory set of regions
type StaticSource struct {
	regions map[string]common.Region
}

// NewStaticSource creates a Source from a list of regions.
// The bounds are computed from the geometry if not provided
func NewStaticSource(regions ...common.Region) (*StaticSource, error) {
	s := StaticSource{regions: map[string]common.Region{}}
	for _, r := range regions {
		if r.Bounds == (common.Bounds{}) {
			b, err := geometry.BoundsOf(r.Geometry)
			if err != nil {
				return nil, fmt.Errorf("NewStaticSource[%s]: %w", r.Name, err)
			}
			r.Bounds = b
		}
		s.regions[r.Name] = r
	}
	return &s, nil
}

// Geometry implements Source
func (s *StaticSource) Geometry(ctx context.Context, name string) (common.Region, error) {
	r, ok := s.regions[name]
	if !ok {
		return common.Region{}, fmt.Errorf("%s: %w", name, ErrNotFound)
	}
	return r, nil
}

// Names implements Source
func (s *StaticSource) Names(ctx context.Context) ([]string, error) {
	return sortedKeys(s.regions), nil
}

func sortedKeys[T any](m map[string]T) []string {
	names := make([]string, 0, len(m))
	for n := range m {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// BoxRegion returns a rectangular region (useful for tests and fixed areas)
func BoxRegion(name string, b common.Bounds) common.Region {
	return common.Region{Name: name, Geometry: geom.MultiPolygon{b.Polygon().LinearRings()}, Bounds: b}
}
