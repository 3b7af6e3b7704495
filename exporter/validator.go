package exporter

import (
	"context"
	"fmt"
	"math"

	"github.com/airbusgeo/geocube-exporter/common"
	"github.com/airbusgeo/geocube-exporter/interface/boundaries"
	"github.com/airbusgeo/geocube-exporter/service/log"
)

const (
	// MetersPerDegree is the approximate length of one degree at the equator
	MetersPerDegree = 111320.
	// BytesPerPixel of the exported raster (float32)
	BytesPerPixel = 4
	// DefaultBudgetMB is the maximum size of an exported raster
	DefaultBudgetMB = 60.
)

// EstimateSizeMB estimates the size in MB of a raster covering the bounds at the given resolution (meters per pixel)
func EstimateSizeMB(b common.Bounds, resolution int) float64 {
	if resolution <= 0 {
		return math.Inf(1)
	}
	width := b.Width() * MetersPerDegree / float64(resolution)
	height := b.Height() * MetersPerDegree / float64(resolution)
	return width * height * BytesPerPixel / 1048576
}

// Decide returns whether the resolution fits the budget for the bounds,
// or the smallest resolution (in meters) that fits.
func Decide(b common.Bounds, resolution int, budgetMB float64) common.ResolutionDecision {
	if resolution <= 0 {
		return common.ResolutionDecision{Valid: false, Resolution: suggest(b, 1, budgetMB)}
	}
	if EstimateSizeMB(b, resolution) <= budgetMB {
		return common.ResolutionDecision{Valid: true, Resolution: resolution}
	}
	return common.ResolutionDecision{Valid: false, Resolution: suggest(b, resolution, budgetMB)}
}

func suggest(b common.Bounds, resolution int, budgetMB float64) int {
	est := EstimateSizeMB(b, resolution)
	if est <= budgetMB {
		return resolution
	}
	s := int(float64(resolution) * math.Sqrt(est/budgetMB))
	if s <= resolution {
		s = resolution + 1
	}
	for EstimateSizeMB(b, s) > budgetMB {
		s++
	}
	return s
}

// Validator checks that the raster of a country at a given resolution fits the size budget
type Validator struct {
	Source   boundaries.Source
	BudgetMB float64
	// FailClosed rejects the resolution if the geometry of the country cannot be retrieved.
	// Otherwise, the resolution is accepted.
	FailClosed bool
}

// NewValidator creates a Validator with the default budget
func NewValidator(source boundaries.Source) *Validator {
	return &Validator{Source: source, BudgetMB: DefaultBudgetMB}
}

// Validate returns the decision for the country at the given resolution.
// An error is returned only if FailClosed and the geometry of the country is not available.
func (v *Validator) Validate(ctx context.Context, country string, resolution int) (common.ResolutionDecision, error) {
	budget := v.BudgetMB
	if budget <= 0 {
		budget = DefaultBudgetMB
	}
	region, err := v.Source.Geometry(ctx, country)
	if err != nil {
		if v.FailClosed {
			return common.ResolutionDecision{Valid: false, Resolution: resolution}, fmt.Errorf("Validate.Geometry: %w", err)
		}
		log.Logger(ctx).Sugar().Warnf("unable to validate the resolution of %s (accepted): %v", country, err)
		return common.ResolutionDecision{Valid: true, Resolution: resolution}, nil
	}
	d := Decide(region.Bounds, resolution, budget)
	log.Logger(ctx).Sugar().Debugf("%s at %dm: estimated size %.2fMB (budget: %.0fMB)", country, resolution, EstimateSizeMB(region.Bounds, resolution), budget)
	return d, nil
}
