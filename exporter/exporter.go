package exporter

import (
	"context"
	"fmt"
	"runtime/debug"

	"github.com/airbusgeo/geocube-exporter/common"
	"github.com/airbusgeo/geocube-exporter/downloader"
	"github.com/airbusgeo/geocube-exporter/interface/boundaries"
	"github.com/airbusgeo/geocube-exporter/interface/manifest"
	"github.com/airbusgeo/geocube-exporter/interface/provider"
	"github.com/airbusgeo/geocube-exporter/service/log"
	"golang.org/x/sync/errgroup"
)

// Downloader retrieves the pending rows of a manifest (see downloader.Downloader)
type Downloader interface {
	Download(ctx context.Context, store manifest.Store, location, destDir string) (downloader.Report, error)
}

// Options of the Exporter
type Options struct {
	// BudgetMB is the maximum estimated size of a raster (default: DefaultBudgetMB)
	BudgetMB float64
	// FailClosed rejects a country whose resolution cannot be validated
	FailClosed bool
	// CountryWorkers is the number of countries exported in parallel (default: 1)
	CountryWorkers int
	// ProviderWorkers is the number of concurrent requests to the provider for one country (default: 1)
	ProviderWorkers int
	// DestDir is the directory of the rasters.
	// Default: the directory of the manifests if the store has one, the working directory otherwise.
	DestDir string
}

// Exporter plans, persists and downloads the monthly rasters of a list of countries
type Exporter struct {
	boundaries boundaries.Source
	provider   provider.ExportProvider
	store      manifest.Store
	downloader Downloader
	validator  *Validator
	planner    *Planner
	metrics    *Metrics
	opts       Options
}

// New creates an Exporter. metrics can be nil.
func New(source boundaries.Source, p provider.ExportProvider, store manifest.Store, d Downloader, metrics *Metrics, opts Options) *Exporter {
	if opts.CountryWorkers <= 0 {
		opts.CountryWorkers = 1
	}
	if opts.DestDir == "" {
		opts.DestDir = "."
		if s, ok := store.(interface{ Dir() string }); ok {
			opts.DestDir = s.Dir()
		}
	}
	v := NewValidator(source)
	if opts.BudgetMB > 0 {
		v.BudgetMB = opts.BudgetMB
	}
	v.FailClosed = opts.FailClosed
	return &Exporter{
		boundaries: source,
		provider:   p,
		store:      store,
		downloader: d,
		validator:  v,
		planner:    &Planner{Provider: p, Workers: opts.ProviderWorkers, Metrics: metrics},
		metrics:    metrics,
		opts:       opts,
	}
}

// Countries returns the names of the known countries
func (e *Exporter) Countries(ctx context.Context) ([]string, error) {
	return e.boundaries.Names(ctx)
}

// ValidateResolution checks that the rasters of the country at this resolution fit the size budget
func (e *Exporter) ValidateResolution(ctx context.Context, country string, resolution int) (common.ResolutionDecision, error) {
	return e.validator.Validate(ctx, country, resolution)
}

// Export exports all the countries of the request and returns one result per country, in the order of the request.
// The failure of a country does not stop the others.
// An error is returned only if the request is invalid.
func (e *Exporter) Export(ctx context.Context, req common.ExportRequest) ([]common.CountryResult, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("Export: %w", err)
	}
	results := make([]common.CountryResult, len(req.Countries))
	g := errgroup.Group{}
	g.SetLimit(e.opts.CountryWorkers)
	for i, country := range req.Countries {
		i, country := i, country
		g.Go(func() error {
			results[i] = e.exportCountry(log.With(ctx, "country", country), country, req)
			return nil
		})
	}
	g.Wait()
	return results, nil
}

// Resume downloads the pending rows of an existing manifest
func (e *Exporter) Resume(ctx context.Context, location string) (res common.CountryResult, err error) {
	descriptors, err := e.store.Load(ctx, location)
	if err != nil {
		return common.CountryResult{}, fmt.Errorf("Resume.%w", err)
	}
	country := ""
	if len(descriptors) > 0 {
		country = descriptors[0].Region
	}
	ctx = log.With(ctx, "country", country)
	done := e.metrics.countryStarted()
	defer func() {
		if r := recover(); r != nil {
			res = panicked(ctx, country, r)
		}
		done(res.Status.String())
	}()
	return e.download(ctx, country, location), nil
}

// ResumeLatest resumes the most recent manifest of the country.
// It returns manifest.ErrNotFound if the country has no manifest.
func (e *Exporter) ResumeLatest(ctx context.Context, country string) (common.CountryResult, error) {
	locations, err := e.store.Locations(ctx, country)
	if err != nil {
		return common.CountryResult{}, fmt.Errorf("ResumeLatest.%w", err)
	}
	if len(locations) == 0 {
		return common.CountryResult{}, fmt.Errorf("ResumeLatest[%s]: %w", country, manifest.ErrNotFound)
	}
	return e.Resume(ctx, locations[len(locations)-1])
}

func (e *Exporter) exportCountry(ctx context.Context, country string, req common.ExportRequest) (res common.CountryResult) {
	done := e.metrics.countryStarted()
	defer func() {
		if r := recover(); r != nil {
			res = panicked(ctx, country, r)
		}
		done(res.Status.String())
	}()

	decision, err := e.validator.Validate(ctx, country, req.Resolution)
	if err != nil {
		return common.Failed(country, fmt.Sprintf("Unable to validate the resolution: %v", err))
	}
	if !decision.Valid {
		log.Logger(ctx).Sugar().Infof("resolution %dm rejected, suggested: %dm", req.Resolution, decision.Resolution)
		return common.Failed(country, fmt.Sprintf("Resolution too high. Please use %dm or higher.", decision.Resolution))
	}

	region, err := e.boundaries.Geometry(ctx, country)
	if err != nil {
		log.Logger(ctx).Sugar().Warnf("geometry: %v", err)
		return common.Failed(country, fmt.Sprintf("Unable to retrieve the geometry of %s: %v", country, err))
	}

	descriptors, err := e.planner.Plan(ctx, region, req.StartYear, req.EndYear, req.Resolution)
	if err != nil {
		return common.Failed(country, fmt.Sprintf("Unable to list the images: %v", err))
	}
	if len(descriptors) == 0 {
		return common.Succeeded(country, fmt.Sprintf("No image available between %d and %d", req.StartYear, req.EndYear))
	}

	location, err := e.store.Create(ctx, country, descriptors)
	if err != nil {
		log.Logger(ctx).Sugar().Errorf("create manifest: %v", err)
		return common.Failed(country, fmt.Sprintf("Unable to save the list of images: %v", err))
	}
	log.Logger(ctx).Sugar().Infof("manifest %s created with %d images", location, len(descriptors))

	return e.download(ctx, country, location)
}

func (e *Exporter) download(ctx context.Context, country, location string) common.CountryResult {
	report, err := e.downloader.Download(ctx, e.store, location, e.opts.DestDir)
	e.metrics.downloaded(report.Downloaded, report.Failed)
	if err != nil {
		log.Logger(ctx).Sugar().Errorf("download: %v", err)
		res := common.Failed(country, fmt.Sprintf("Download failed: %v", err))
		res.Manifest, res.Total, res.Downloaded = location, report.Total, report.Downloaded
		return res
	}
	var res common.CountryResult
	if report.Pending == 0 {
		res = common.Succeeded(country, fmt.Sprintf("Downloaded %d/%d images", report.Downloaded, report.Total))
	} else {
		res = common.Succeeded(country, fmt.Sprintf("Downloaded %d/%d images (%d pending, resume with manifest %s)",
			report.Downloaded, report.Total, report.Pending, location))
	}
	res.Manifest, res.Total, res.Downloaded = location, report.Total, report.Downloaded
	return res
}

func panicked(ctx context.Context, country string, r interface{}) common.CountryResult {
	log.Logger(ctx).Sugar().Errorf("panic: %v\n%s", r, debug.Stack())
	return common.Failed(country, fmt.Sprintf("Unexpected error: %v", r))
}
