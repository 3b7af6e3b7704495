package exporter

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/airbusgeo/geocube-exporter/common"
	"github.com/airbusgeo/geocube-exporter/interface/provider"
	"github.com/airbusgeo/geocube-exporter/service/log"
	"golang.org/x/sync/errgroup"
)

// Planner expands a country over a range of years into export descriptors
type Planner struct {
	Provider provider.ExportProvider
	// Workers is the number of concurrent requests to the provider (default: 1)
	Workers int
	Metrics *Metrics
}

// Plan generates the descriptors of the region for all the months between startYear and endYear.
// Windows without data or whose export failed are skipped.
// The descriptors are sorted by (year, month) and unique.
// Returns an error only if the context is done or the provider panicked.
func (p *Planner) Plan(ctx context.Context, region common.Region, startYear, endYear, resolution int) ([]common.ExportDescriptor, error) {
	windows := common.Windows(startYear, endYear)
	workers := p.Workers
	if workers <= 0 {
		workers = 1
	}

	var descriptors []common.ExportDescriptor
	var skipped int
	mu := sync.Mutex{}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, window := range windows {
		if gctx.Err() != nil {
			break
		}
		window := window
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("%s: provider panicked: %v", window, r)
				}
			}()
			if err := gctx.Err(); err != nil {
				return err
			}
			o := Generate(gctx, p.Provider, region, window, resolution)
			p.Metrics.outcome(o.Kind)
			mu.Lock()
			defer mu.Unlock()
			if o.Kind == OutcomeFound {
				descriptors = append(descriptors, o.Descriptor)
			} else {
				skipped++
			}
			return nil
		})
	}
	err := g.Wait()
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		return nil, fmt.Errorf("Plan: %w", err)
	}

	descriptors = uniqueSorted(descriptors)
	log.Logger(ctx).Sugar().Infof("%s: %d images found (%d months skipped)", region.Name, len(descriptors), skipped)
	return descriptors, nil
}

func uniqueSorted(descriptors []common.ExportDescriptor) []common.ExportDescriptor {
	sort.SliceStable(descriptors, func(i, j int) bool {
		return descriptors[i].Window.Before(descriptors[j].Window)
	})
	seen := map[common.DescriptorKey]struct{}{}
	res := descriptors[:0]
	for _, d := range descriptors {
		if _, ok := seen[d.Key()]; ok {
			continue
		}
		seen[d.Key()] = struct{}{}
		res = append(res, d)
	}
	return res
}
