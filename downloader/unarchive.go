package downloader

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/airbusgeo/geocube-exporter/common"
	"github.com/airbusgeo/geocube-exporter/service"
	"github.com/mholt/archiver"
)

// unarchive extracts the zip to localDir. All errors are temporary.
// A zip with a single raster gives localDir/<basename>.tif,
// otherwise the files are moved to the directory localDir/<basename>.
func unarchive(localZip, localDir, basename string) ([]string, error) {
	tmpdir, err := os.MkdirTemp(localDir, "."+filepath.Base(localZip))
	if err != nil {
		return nil, service.MakeTemporary(fmt.Errorf("unarchive.MkdirTemp: %w", err))
	}
	defer os.RemoveAll(tmpdir)
	if err := archiver.Unarchive(localZip, tmpdir); err != nil {
		return nil, service.MakeTemporary(fmt.Errorf("unarchive: %w", err))
	}
	var files []string
	if err := filepath.Walk(tmpdir, func(path string, info os.FileInfo, err error) error {
		if err == nil && !info.IsDir() {
			files = append(files, path)
		}
		return err
	}); err != nil {
		return nil, service.MakeTemporary(fmt.Errorf("unarchive.Walk: %w", err))
	}
	if len(files) == 0 {
		return nil, service.MakeTemporary(fmt.Errorf("unarchive: empty zip"))
	}

	if len(files) == 1 && service.GetExt(files[0]) == common.ExtensionGTiff {
		dst := filepath.Join(localDir, basename+"."+string(common.ExtensionGTiff))
		if err := os.Rename(files[0], dst); err != nil {
			return nil, service.MakeTemporary(fmt.Errorf("unarchive.Rename: %w", err))
		}
		return []string{dst}, nil
	}

	dstDir := filepath.Join(localDir, basename)
	if err := os.MkdirAll(dstDir, 0755); err != nil {
		return nil, service.MakeTemporary(fmt.Errorf("unarchive.MkdirAll: %w", err))
	}
	dsts := make([]string, 0, len(files))
	for _, f := range files {
		rel, _ := filepath.Rel(tmpdir, f)
		dst := filepath.Join(dstDir, strings.ReplaceAll(rel, string(filepath.Separator), "_"))
		if err := os.Rename(f, dst); err != nil {
			return nil, service.MakeTemporary(fmt.Errorf("unarchive.Rename: %w", err))
		}
		dsts = append(dsts, dst)
	}
	return dsts, nil
}
