package boundaries

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"

	"cloud.google.com/go/storage"
	"github.com/airbusgeo/geocube-exporter/common"
	"github.com/airbusgeo/geocube-exporter/service"
	"github.com/airbusgeo/geocube-exporter/service/geometry"
	"github.com/airbusgeo/geocube-exporter/service/log"
	"github.com/go-spatial/geom"
)

// DefaultNameProperty is the property holding the country name in the LSIB datasets
const DefaultNameProperty = "country_na"

// GeoJSONSource implements Source with a GeoJSON FeatureCollection
// (for example an export of USDOS/LSIB_SIMPLE/2017).
// The collection is loaded on first use from a local file, gs://bucket/object or http(s)://.
// A country made of several features is merged with a union of its polygons.
type GeoJSONSource struct {
	location     string
	nameProperty string
	client       *http.Client

	mu       sync.Mutex
	features map[string][]geom.Geometry
	regions  map[string]common.Region
}

// NewGeoJSONSource creates a new GeoJSONSource
// nameProperty is the property of the features holding the name (default: country_na)
func NewGeoJSONSource(location, nameProperty string, client *http.Client) *GeoJSONSource {
	if nameProperty == "" {
		nameProperty = DefaultNameProperty
	}
	return &GeoJSONSource{
		location:     location,
		nameProperty: nameProperty,
		client:       client,
		regions:      map[string]common.Region{},
	}
}

// Geometry implements Source
func (s *GeoJSONSource) Geometry(ctx context.Context, name string) (common.Region, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.load(ctx); err != nil {
		return common.Region{}, fmt.Errorf("GeoJSONSource.Geometry: %w", err)
	}
	if r, ok := s.regions[name]; ok {
		return r, nil
	}
	geoms, ok := s.features[name]
	if !ok {
		return common.Region{}, fmt.Errorf("%s: %w", name, ErrNotFound)
	}

	var mp geom.MultiPolygon
	if len(geoms) == 1 {
		if err := geometry.MergeMultiPolygons(geoms[0], &mp); err != nil {
			return common.Region{}, fmt.Errorf("GeoJSONSource.Geometry[%s]: %w", name, err)
		}
	} else {
		var err error
		if mp, err = geometry.UnionPolygons(geoms, geometry.TOLERANCE_GEOG); err != nil {
			return common.Region{}, fmt.Errorf("GeoJSONSource.Geometry[%s]: %w", name, err)
		}
	}
	bounds, err := geometry.BoundsOf(mp)
	if err != nil {
		return common.Region{}, fmt.Errorf("GeoJSONSource.Geometry[%s]: %w", name, err)
	}
	r := common.Region{Name: name, Geometry: mp, Bounds: bounds}
	s.regions[name] = r
	return r, nil
}

// Names implements Source
func (s *GeoJSONSource) Names(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.load(ctx); err != nil {
		return nil, fmt.Errorf("GeoJSONSource.Names: %w", err)
	}
	return sortedKeys(s.features), nil
}

// load must be called with the lock. A failed load is retried on the next call.
func (s *GeoJSONSource) load(ctx context.Context) error {
	if s.features != nil {
		return nil
	}
	data, err := s.read(ctx)
	if err != nil {
		return fmt.Errorf("load[%s]: %w", s.location, err)
	}
	features, err := geometry.DecodeFeatures(data)
	if err != nil {
		return fmt.Errorf("load[%s]: %w", s.location, err)
	}
	byName := map[string][]geom.Geometry{}
	for i, f := range features {
		name := f.StringProperty(s.nameProperty)
		if name == "" || f.Geometry == nil {
			log.Logger(ctx).Sugar().Debugf("feature %d of %s ignored: no %s or no geometry", i, s.location, s.nameProperty)
			continue
		}
		byName[name] = append(byName[name], f.Geometry)
	}
	log.Logger(ctx).Sugar().Infof("%d regions loaded from %s", len(byName), s.location)
	s.features = byName
	return nil
}

func (s *GeoJSONSource) read(ctx context.Context) ([]byte, error) {
	switch {
	case strings.HasPrefix(s.location, "gs://"):
		return readGS(ctx, s.location)
	case strings.HasPrefix(s.location, "http://"), strings.HasPrefix(s.location, "https://"):
		return service.GetBodyRetry(ctx, s.client, s.location, 3)
	}
	return os.ReadFile(s.location)
}

func readGS(ctx context.Context, location string) ([]byte, error) {
	splits := strings.SplitN(strings.TrimPrefix(location, "gs://"), "/", 2)
	if len(splits) != 2 || splits[1] == "" {
		return nil, fmt.Errorf("readGS: malformed uri %s (expecting gs://bucket/object)", location)
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("readGS.NewClient: %w", err)
	}
	defer client.Close()
	r, err := client.Bucket(splits[0]).Object(splits[1]).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("readGS.NewReader: %w", err)
	}
	defer r.Close()
	return io.ReadAll(r)
}
