package manifest

import (
	"context"
	"errors"

	"github.com/airbusgeo/geocube-exporter/common"
)

// ErrNotFound is returned when the manifest does not exist
var ErrNotFound = errors.New("manifest not found")

// ErrIndexOutOfRange is returned by Update when the row does not exist
var ErrIndexOutOfRange = errors.New("manifest row index out of range")

// Store persists the export descriptors of a country, and their download status.
// A manifest is identified by its location (a file path, a database id...)
// Implementations must serialize the updates of a same manifest.
type Store interface {
	// Create persists a new manifest with all the descriptors (downloaded or not) and returns its location
	Create(ctx context.Context, region string, descriptors []common.ExportDescriptor) (string, error)
	// Load returns the descriptors in the order of creation
	// Raise ErrNotFound
	Load(ctx context.Context, location string) ([]common.ExportDescriptor, error)
	// Update sets the downloaded flag of the index-th descriptor. The update is persisted when it returns.
	// Raise ErrNotFound, ErrIndexOutOfRange
	Update(ctx context.Context, location string, index int, downloaded bool) error
	// Locations returns the locations of all the manifests of the region, oldest first
	Locations(ctx context.Context, region string) ([]string, error)
}

// Count returns the number of descriptors and the number of downloaded ones
func Count(descriptors []common.ExportDescriptor) (total, downloaded int) {
	for _, d := range descriptors {
		if d.Downloaded {
			downloaded++
		}
	}
	return len(descriptors), downloaded
}
