package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/airbusgeo/geocube-exporter/common"
)

// ExportProvider is the interface of an imagery service able to generate
// the composite raster of a region over a month
type ExportProvider interface {
	// ExportURL returns a retrievable URL of the composite raster of the region over the window,
	// at the given resolution (in meters per pixel).
	// Returns an error wrapping ErrNoData if there is no data for this window.
	// Quota or transient errors are marked temporary (see service.Temporary).
	ExportURL(ctx context.Context, region common.Region, window common.TimeWindow, resolution int) (string, error)

	// Name of the provider
	Name() string
}

// ErrNoData is returned when the provider has no image for the window
var ErrNoData = errors.New("no data available")

func noData(region string, window common.TimeWindow, reason string) error {
	if reason == "" {
		return fmt.Errorf("%s %s: %w", region, window, ErrNoData)
	}
	return fmt.Errorf("%s %s: %w (%s)", region, window, ErrNoData, reason)
}
