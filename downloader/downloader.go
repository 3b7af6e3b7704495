package downloader

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/airbusgeo/geocube-exporter/common"
	"github.com/airbusgeo/geocube-exporter/interface/manifest"
	"github.com/airbusgeo/geocube-exporter/service"
	"github.com/airbusgeo/geocube-exporter/service/log"
	"github.com/cavaliercoder/grab"
	"golang.org/x/sync/errgroup"
)

// Options of the Downloader
type Options struct {
	HTTP service.HTTPOptions
	// Workers is the number of concurrent downloads (default: 1)
	Workers int
	// Extension of the downloaded files. If empty, it is deduced from the url (zip or tif)
	Extension common.Extension
	// Archive is an optional storage where the downloaded rasters are copied
	Archive service.Storage
	// ProgressPeriod is the fraction of the download between two progress logs (default: 0.1)
	ProgressPeriod float64
}

// Report summarizes the state of a manifest after a download pass
type Report struct {
	Total      int `json:"total"`
	Downloaded int `json:"downloaded"`
	Pending    int `json:"pending"`
	// Failed is the number of rows that failed during this pass (and are still pending)
	Failed int `json:"failed"`
}

// Downloader retrieves the pending rows of a manifest
type Downloader struct {
	client *grab.Client
	opts   Options
	// sync flushes a file or a directory to the disk
	sync func(path string) error
}

// New creates a Downloader
func New(opts Options) *Downloader {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.ProgressPeriod <= 0 {
		opts.ProgressPeriod = 0.1
	}
	client := grab.NewClient()
	client.HTTPClient = service.NewHTTPClient(opts.HTTP)
	return &Downloader{client: client, opts: opts, sync: syncPath}
}

// syncPath commits the file (or the directory entries) at path to stable storage
func syncPath(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	err = f.Sync()
	return service.MergeErrors(true, err, f.Close())
}

// Download fetches all the rows of the manifest that are not downloaded yet, to destDir.
// A row is flagged as downloaded only once its file is complete and synced to disk in destDir.
// A failed row is logged and stays pending. An error is returned only if the manifest cannot be read or updated
// or if the context is done.
func (d *Downloader) Download(ctx context.Context, store manifest.Store, location, destDir string) (Report, error) {
	descriptors, err := store.Load(ctx, location)
	if err != nil {
		return Report{}, fmt.Errorf("Download.%w", err)
	}
	report := Report{Total: len(descriptors)}
	var pending []int
	for i, desc := range descriptors {
		if desc.Downloaded {
			report.Downloaded++
		} else {
			pending = append(pending, i)
		}
	}
	if len(pending) == 0 {
		return report, nil
	}
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return report, fmt.Errorf("Download.MkdirAll: %w", err)
	}
	log.Logger(ctx).Sugar().Infof("downloading %d/%d images of %s", len(pending), report.Total, location)

	mu := sync.Mutex{}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.opts.Workers)
	for _, i := range pending {
		if gctx.Err() != nil {
			break
		}
		desc := descriptors[i]
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rctx := log.With(gctx, "image", common.RasterFileName(desc.Region, desc.Window, ""))
			files, err := d.fetch(rctx, desc, destDir)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				log.Logger(rctx).Sugar().Warnf("download failed: %v", err)
				mu.Lock()
				report.Failed++
				mu.Unlock()
				return nil
			}
			if err := store.Update(rctx, location, i, true); err != nil {
				return fmt.Errorf("Download.Update[%d]: %w", i, err)
			}
			mu.Lock()
			report.Downloaded++
			mu.Unlock()
			d.archive(rctx, desc, files)
			return nil
		})
	}
	err = g.Wait()
	if err == nil {
		err = ctx.Err()
	}
	report.Pending = report.Total - report.Downloaded
	if err != nil {
		return report, fmt.Errorf("Download: %w", err)
	}
	return report, nil
}

// extension returns the extension of the file served by the url
func (d *Downloader) extension(rawurl string) common.Extension {
	if d.opts.Extension != "" {
		return d.opts.Extension
	}
	p := rawurl
	if u, err := url.Parse(rawurl); err == nil {
		p = u.Path
	}
	if service.GetExt(p) == common.ExtensionZIP {
		return common.ExtensionZIP
	}
	return common.ExtensionGTiff
}

// fetch downloads the descriptor to destDir and returns the path of the resulting files
func (d *Downloader) fetch(ctx context.Context, desc common.ExportDescriptor, destDir string) ([]string, error) {
	if desc.URL == "" {
		return nil, fmt.Errorf("fetch: empty url")
	}
	ext := d.extension(desc.URL)
	dst := filepath.Join(destDir, common.RasterFileName(desc.Region, desc.Window, ext))
	part := dst + ".part"
	os.Remove(part)

	if err := d.get(ctx, desc.URL, part); err != nil {
		os.Remove(part)
		return nil, fmt.Errorf("fetch.%w", err)
	}
	if ext != common.ExtensionZIP {
		if err := d.sync(part); err != nil {
			os.Remove(part)
			return nil, service.MakeTemporary(fmt.Errorf("fetch.Sync: %w", err))
		}
	}
	if err := os.Rename(part, dst); err != nil {
		os.Remove(part)
		return nil, fmt.Errorf("fetch.Rename: %w", err)
	}
	if ext != common.ExtensionZIP {
		if err := d.sync(destDir); err != nil {
			return nil, service.MakeTemporary(fmt.Errorf("fetch.Sync: %w", err))
		}
		return []string{dst}, nil
	}

	defer os.Remove(dst)
	files, err := unarchive(dst, destDir, filepath.Base(service.WithExt(dst, "")))
	if err != nil {
		return nil, fmt.Errorf("fetch.%w", err)
	}
	if err := d.syncAll(files, destDir); err != nil {
		return nil, service.MakeTemporary(fmt.Errorf("fetch.Sync: %w", err))
	}
	return files, nil
}

// syncAll syncs the files, then their directories and the extra dirs
func (d *Downloader) syncAll(files []string, extra ...string) error {
	dirs := map[string]bool{}
	for _, dir := range extra {
		dirs[dir] = true
	}
	for _, f := range files {
		if err := d.sync(f); err != nil {
			return err
		}
		dirs[filepath.Dir(f)] = true
	}
	for dir := range dirs {
		if err := d.sync(dir); err != nil {
			return err
		}
	}
	return nil
}

// get downloads the url to the file, with a display of the progress
func (d *Downloader) get(ctx context.Context, rawurl, file string) error {
	req, err := grab.NewRequest(file, rawurl)
	if err != nil {
		return fmt.Errorf("get.NewRequest: %w", err)
	}
	req = req.WithContext(ctx)
	req.NoResume = true

	resp := d.client.Do(req)
	displayProgress(ctx, filepath.Base(strings.TrimSuffix(file, ".part")), resp, d.opts.ProgressPeriod)

	if err := resp.Err(); err != nil {
		if resp.HTTPResponse != nil && (resp.HTTPResponse.StatusCode < 200 || resp.HTTPResponse.StatusCode > 299) {
			return fmt.Errorf("get: %w", service.HTTPStatusError{URL: rawurl, StatusCode: resp.HTTPResponse.StatusCode})
		}
		err = fmt.Errorf("get[%s]: %w", rawurl, err)
		if resp.HTTPResponse == nil {
			return service.MakeTemporary(err)
		}
		return err
	}
	if resp.HTTPResponse != nil && (resp.HTTPResponse.StatusCode < 200 || resp.HTTPResponse.StatusCode > 299) {
		return fmt.Errorf("get: %w", service.HTTPStatusError{URL: rawurl, StatusCode: resp.HTTPResponse.StatusCode})
	}
	return nil
}

// archive copies the files to the archive storage. Failures are only logged.
func (d *Downloader) archive(ctx context.Context, desc common.ExportDescriptor, files []string) {
	if d.opts.Archive == nil {
		return
	}
	for _, f := range files {
		uri, err := d.opts.Archive.Save(ctx, f, service.ArchiveName(desc, f))
		if err != nil {
			log.Logger(ctx).Sugar().Warnf("archive %s: %v", f, err)
			continue
		}
		log.Logger(ctx).Sugar().Debugf("%s archived to %s", f, uri)
	}
}
