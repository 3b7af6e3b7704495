package exporter

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/airbusgeo/geocube-exporter/common"
	"github.com/airbusgeo/geocube-exporter/interface/boundaries"
	"github.com/airbusgeo/geocube-exporter/interface/provider"
	"github.com/airbusgeo/geocube-exporter/service"
	"github.com/prometheus/client_golang/prometheus"
)

type stubProvider struct {
	mu     sync.Mutex
	calls  int
	noData map[common.TimeWindow]bool
	fail   map[common.TimeWindow]error
}

func (p *stubProvider) Name() string { return "stub" }

func (p *stubProvider) ExportURL(ctx context.Context, region common.Region, window common.TimeWindow, resolution int) (string, error) {
	p.mu.Lock()
	p.calls++
	p.mu.Unlock()
	if p.noData[window] {
		return "", fmt.Errorf("%s: %w", window, provider.ErrNoData)
	}
	if err := p.fail[window]; err != nil {
		return "", err
	}
	return fmt.Sprintf("http://images/%s/%s?scale=%d", region.Name, window, resolution), nil
}

func TestGenerate(t *testing.T) {
	ctx := context.Background()
	region := boundaries.BoxRegion("Testland", testland)
	jan, feb, mar := common.TimeWindow{Year: 2020, Month: 1}, common.TimeWindow{Year: 2020, Month: 2}, common.TimeWindow{Year: 2020, Month: 3}
	p := &stubProvider{
		noData: map[common.TimeWindow]bool{feb: true},
		fail:   map[common.TimeWindow]error{mar: service.MakeTemporary(errors.New("quota exceeded"))},
	}

	o := Generate(ctx, p, region, jan, 500)
	if o.Kind != OutcomeFound || o.Descriptor.URL != "http://images/Testland/2020-01?scale=500" ||
		o.Descriptor.Region != "Testland" || o.Descriptor.Window != jan || o.Descriptor.Downloaded {
		t.Errorf("unexpected outcome: %+v", o)
	}
	if o := Generate(ctx, p, region, feb, 500); o.Kind != OutcomeNoData || !errors.Is(o.Err, provider.ErrNoData) {
		t.Errorf("expected NoData, got %+v", o)
	}
	if o := Generate(ctx, p, region, mar, 500); o.Kind != OutcomeProviderError || !service.Temporary(o.Err) {
		t.Errorf("expected a temporary ProviderError, got %+v", o)
	}
}

func TestPlan(t *testing.T) {
	ctx := context.Background()
	region := boundaries.BoxRegion("Testland", testland)
	for _, workers := range []int{0, 1, 5} {
		p := &stubProvider{
			noData: map[common.TimeWindow]bool{{Year: 2019, Month: 2}: true, {Year: 2020, Month: 12}: true},
			fail:   map[common.TimeWindow]error{{Year: 2020, Month: 6}: errors.New("internal error")},
		}
		reg := prometheus.NewRegistry()
		metrics := MustNewMetrics(reg)
		planner := Planner{Provider: p, Workers: workers, Metrics: metrics}

		descriptors, err := planner.Plan(ctx, region, 2019, 2020, 500)
		if err != nil {
			t.Fatal(err)
		}
		if p.calls != 24 {
			t.Errorf("workers=%d: expected 24 calls, got %d", workers, p.calls)
		}
		if len(descriptors) != 21 {
			t.Fatalf("workers=%d: expected 21 descriptors, got %d", workers, len(descriptors))
		}
		for i := 1; i < len(descriptors); i++ {
			if !descriptors[i-1].Window.Before(descriptors[i].Window) {
				t.Errorf("workers=%d: descriptors are not sorted: %s >= %s", workers, descriptors[i-1].Window, descriptors[i].Window)
			}
		}
		outcomes := gatherCounter(t, reg, "geocube_exporter_descriptors_total", "outcome")
		if outcomes["Found"] != 21 || outcomes["NoData"] != 2 || outcomes["ProviderError"] != 1 {
			t.Errorf("workers=%d: unexpected outcome metrics: %v", workers, outcomes)
		}
	}
}

func TestPlanCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	planner := Planner{Provider: &stubProvider{}}
	if _, err := planner.Plan(ctx, boundaries.BoxRegion("Testland", testland), 2020, 2020, 500); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestUniqueSorted(t *testing.T) {
	d := func(year, month int, url string) common.ExportDescriptor {
		return common.ExportDescriptor{URL: url, Region: "Testland", Window: common.TimeWindow{Year: year, Month: month}}
	}
	res := uniqueSorted([]common.ExportDescriptor{d(2021, 1, "a"), d(2020, 5, "b"), d(2021, 1, "c"), d(2020, 12, "d"), d(2020, 5, "e")})
	expected := []string{"b", "d", "a"}
	if len(res) != len(expected) {
		t.Fatalf("expected %d descriptors, got %d", len(expected), len(res))
	}
	for i, url := range expected {
		if res[i].URL != url {
			t.Errorf("%d: expected %s, got %s", i, url, res[i].URL)
		}
	}
	if res := uniqueSorted(nil); len(res) != 0 {
		t.Error("expected empty result")
	}
}

// gatherCounter returns the values of the counter by label value
func gatherCounter(t *testing.T, reg prometheus.Gatherer, name, label string) map[string]float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatal(err)
	}
	values := map[string]float64{}
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
		for _, m := range f.GetMetric() {
			for _, l := range m.GetLabel() {
				if l.GetName() == label {
					values[l.GetValue()] = m.GetCounter().GetValue()
				}
			}
		}
	}
	return values
}
