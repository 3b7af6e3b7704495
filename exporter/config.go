package exporter

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/airbusgeo/geocube-exporter/common"
	"github.com/airbusgeo/geocube-exporter/downloader"
	"github.com/airbusgeo/geocube-exporter/interface/boundaries"
	"github.com/airbusgeo/geocube-exporter/interface/manifest"
	"github.com/airbusgeo/geocube-exporter/interface/manifest/csv"
	"github.com/airbusgeo/geocube-exporter/interface/manifest/pg"
	"github.com/airbusgeo/geocube-exporter/interface/provider"
	"github.com/airbusgeo/geocube-exporter/service"
	"github.com/airbusgeo/geocube-exporter/service/log"
)

// Config gathers the settings shared by the binaries building an Exporter
type Config struct {
	ManifestDir string
	ManifestDB  string
	DestDir     string

	Boundaries         string
	BoundariesProperty string

	EEProject    string
	EEEndpoint   string
	EECollection string
	EEBand       string
	EEFormat     string

	TemplateURL   string
	TemplateCheck bool
	TemplateToken string

	Insecure    bool
	IgnoreProxy bool
	Timeout     time.Duration

	BudgetMB        float64
	FailClosed      bool
	CountryWorkers  int
	ProviderWorkers int
	DownloadWorkers int

	ArchiveURI string
	Storage    service.StorageOptions
}

// SetFlags configures the flags of the Config
//
//	cfg := exporter.Config{}
//	cfg.SetFlags()
//	flag.Parse()
//	if err := cfg.Validate(); err != nil {...}
func (cfg *Config) SetFlags() {
	// Manifests
	flag.StringVar(&cfg.ManifestDir, "manifest-dir", "downloads", "directory of the csv manifests")
	flag.StringVar(&cfg.ManifestDB, "manifest-db", "", "postgres connection to store the manifests in a database instead of csv files (optional)")
	flag.StringVar(&cfg.DestDir, "dest-dir", "", "directory of the downloaded rasters (default: manifest-dir)")

	// Countries
	flag.StringVar(&cfg.Boundaries, "boundaries", "", "geojson FeatureCollection of the countries (local path, gs:// or http(s)://)")
	flag.StringVar(&cfg.BoundariesProperty, "boundaries-property", boundaries.DefaultNameProperty, "property of the features holding the name of the country")

	// Providers
	flag.StringVar(&cfg.EEProject, "ee-project", "", "Earth Engine cloud project. To configure Earth Engine as the image provider.")
	flag.StringVar(&cfg.EEEndpoint, "ee-endpoint", provider.DefaultEarthEngineEndpoint, "Earth Engine REST endpoint")
	flag.StringVar(&cfg.EECollection, "ee-collection", provider.DefaultEarthEngineCollection, "Earth Engine image collection")
	flag.StringVar(&cfg.EEBand, "ee-band", provider.DefaultEarthEngineBand, "band of the image collection")
	flag.StringVar(&cfg.EEFormat, "ee-format", provider.FormatGeoTIFF, "export format ("+provider.FormatGeoTIFF+" or "+provider.FormatZippedGeoTIFF+")")
	flag.StringVar(&cfg.TemplateURL, "template-url", "", `url template of a mirror of pre-rendered composites (optional, replaces Earth Engine).
	The url can contain several {IDENTIFIER} that will be replaced: COUNTRY, YEAR, MONTH, RESOLUTION, START, END`)
	flag.BoolVar(&cfg.TemplateCheck, "template-check", false, "check the existence of each image of the template with a HEAD request")
	flag.StringVar(&cfg.TemplateToken, "template-token", "", "bearer token to access the template urls (optional)")

	// Downloads
	flag.BoolVar(&cfg.Insecure, "insecure", true, "skip the verification of the certificates of the image servers")
	flag.BoolVar(&cfg.IgnoreProxy, "ignore-proxy", true, "ignore the proxy settings of the environment")
	flag.DurationVar(&cfg.Timeout, "timeout", 5*time.Minute, "timeout of a download")
	flag.IntVar(&cfg.DownloadWorkers, "download-workers", 1, "number of parallel downloads per country")

	// Export
	flag.Float64Var(&cfg.BudgetMB, "budget", DefaultBudgetMB, "maximum estimated size of a raster (MB)")
	flag.BoolVar(&cfg.FailClosed, "fail-closed", false, "reject the resolution if the size of the country cannot be estimated")
	flag.IntVar(&cfg.CountryWorkers, "country-workers", 1, "number of countries exported in parallel")
	flag.IntVar(&cfg.ProviderWorkers, "provider-workers", 1, "number of parallel requests to the image provider")

	// Archive
	flag.StringVar(&cfg.ArchiveURI, "archive-uri", "", "storage uri where the rasters are copied (optional; supported: local, gs, s3, ftp)")
	flag.StringVar(&cfg.Storage.S3AccessKeyID, "s3-access-key", "", "s3 access key id (default: from the environment)")
	flag.StringVar(&cfg.Storage.S3SecretAccessKey, "s3-secret-key", "", "s3 secret access key")
	flag.StringVar(&cfg.Storage.S3Region, "s3-region", "", "s3 region")
	flag.StringVar(&cfg.Storage.S3Endpoint, "s3-endpoint", "", "s3 endpoint (for s3-compatible storages)")
	flag.StringVar(&cfg.Storage.FTPUser, "ftp-user", "", "ftp username (default: from the uri or anonymous)")
	flag.StringVar(&cfg.Storage.FTPPassword, "ftp-password", "", "ftp password")
}

// Validate checks the consistency of the config
func (cfg *Config) Validate() error {
	if cfg.Boundaries == "" {
		return fmt.Errorf("missing boundaries config flag")
	}
	if cfg.EEProject == "" && cfg.TemplateURL == "" {
		return fmt.Errorf("no image provider defined: ee-project or template-url is required")
	}
	if cfg.ManifestDir == "" && cfg.ManifestDB == "" {
		return fmt.Errorf("missing manifest-dir or manifest-db config flag")
	}
	if cfg.EEFormat != provider.FormatGeoTIFF && cfg.EEFormat != provider.FormatZippedGeoTIFF {
		return fmt.Errorf("unsupported ee-format: %s", cfg.EEFormat)
	}
	return nil
}

// HTTPOptions returns the options of the http clients
func (cfg *Config) HTTPOptions() service.HTTPOptions {
	return service.HTTPOptions{InsecureSkipVerify: cfg.Insecure, IgnoreProxy: cfg.IgnoreProxy, Timeout: cfg.Timeout}
}

// NewExporter connects all the services of the config.
// The returned function releases them.
func (cfg *Config) NewExporter(ctx context.Context, metrics *Metrics) (*Exporter, func(), error) {
	httpOpts := cfg.HTTPOptions()
	closers := []func(){}
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	// Countries
	source := boundaries.NewGeoJSONSource(cfg.Boundaries, cfg.BoundariesProperty, service.NewHTTPClient(httpOpts))

	// Image provider
	var p provider.ExportProvider
	ext := common.Extension("")
	if cfg.TemplateURL != "" {
		tp, err := provider.NewTemplateProvider("template", cfg.TemplateURL, service.NewHTTPClient(httpOpts), cfg.TemplateCheck, cfg.TemplateToken)
		if err != nil {
			return nil, nil, fmt.Errorf("NewExporter: %w", err)
		}
		p = tp
	} else {
		ep, err := provider.NewEarthEngineProvider(ctx, provider.EarthEngineConfig{
			Project:    cfg.EEProject,
			Endpoint:   cfg.EEEndpoint,
			Collection: cfg.EECollection,
			Band:       cfg.EEBand,
			Format:     cfg.EEFormat,
		}, nil)
		if err != nil {
			return nil, nil, fmt.Errorf("NewExporter: %w", err)
		}
		p, ext = ep, ep.Extension()
	}

	// Manifests
	var store manifest.Store
	if cfg.ManifestDB != "" {
		pgStore, err := pg.New(ctx, cfg.ManifestDB)
		if err != nil {
			return nil, nil, fmt.Errorf("NewExporter: %w", err)
		}
		closers = append(closers, func() { pgStore.Close() })
		store = pgStore
	} else {
		csvStore, err := csv.New(cfg.ManifestDir)
		if err != nil {
			return nil, nil, fmt.Errorf("NewExporter: %w", err)
		}
		store = csvStore
	}

	// Archive
	var archive service.Storage
	if cfg.ArchiveURI != "" {
		var err error
		if archive, err = service.NewStorage(ctx, cfg.ArchiveURI, cfg.Storage); err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("NewExporter.Storage[%s]: %w", cfg.ArchiveURI, err)
		}
	}

	destDir := cfg.DestDir
	if destDir == "" {
		destDir = cfg.ManifestDir
	}
	d := downloader.New(downloader.Options{
		HTTP:      httpOpts,
		Workers:   cfg.DownloadWorkers,
		Extension: ext,
		Archive:   archive,
	})
	log.Logger(ctx).Sugar().Infof("exporter: provider %s, rasters in %s", p.Name(), destDir)

	return New(source, p, store, d, metrics, Options{
		BudgetMB:        cfg.BudgetMB,
		FailClosed:      cfg.FailClosed,
		CountryWorkers:  cfg.CountryWorkers,
		ProviderWorkers: cfg.ProviderWorkers,
		DestDir:         destDir,
	}), closeAll, nil
}
