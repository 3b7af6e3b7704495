package exporter

import (
	"context"
	"errors"

	"github.com/airbusgeo/geocube-exporter/common"
	"github.com/airbusgeo/geocube-exporter/interface/provider"
	"github.com/airbusgeo/geocube-exporter/service"
	"github.com/airbusgeo/geocube-exporter/service/log"
)

//go:generate go run github.com/dmarkham/enumer -type OutcomeKind -trimprefix Outcome

// OutcomeKind is the kind of result of the generation of a descriptor
type OutcomeKind int

const (
	OutcomeFound OutcomeKind = iota
	OutcomeNoData
	OutcomeProviderError
)

// Outcome of the generation of one descriptor
type Outcome struct {
	Kind       OutcomeKind
	Descriptor common.ExportDescriptor
	Err        error
}

// Generate asks the provider for the export url of the region over the window.
// Neither a missing image nor a provider failure is fatal: the task is skipped.
func Generate(ctx context.Context, p provider.ExportProvider, region common.Region, window common.TimeWindow, resolution int) Outcome {
	ctx = log.With(ctx, "window", window.String())
	url, err := p.ExportURL(ctx, region, window, resolution)
	switch {
	case err == nil:
		return Outcome{
			Kind:       OutcomeFound,
			Descriptor: common.ExportDescriptor{URL: url, Region: region.Name, Window: window},
		}
	case errors.Is(err, provider.ErrNoData):
		log.Logger(ctx).Sugar().Infof("%s: no image for %s: %v", p.Name(), window, err)
		return Outcome{Kind: OutcomeNoData, Err: err}
	default:
		log.Logger(ctx).Sugar().Warnf("%s: unable to export %s %s (temporary: %t): %v", p.Name(), region.Name, window, service.Temporary(err), err)
		return Outcome{Kind: OutcomeProviderError, Err: err}
	}
}
