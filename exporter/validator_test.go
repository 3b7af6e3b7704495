package exporter

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/airbusgeo/geocube-exporter/common"
	"github.com/airbusgeo/geocube-exporter/interface/boundaries"
)

var testland = common.Bounds{MinLon: 0, MinLat: 0, MaxLon: 1, MaxLat: 1}

func TestEstimateSizeMB(t *testing.T) {
	est := EstimateSizeMB(testland, 500)
	expected := (111320. / 500) * (111320. / 500) * 4 / 1048576
	if math.Abs(est-expected) > 1e-9 {
		t.Errorf("expected %f, got %f", expected, est)
	}
	if est < 0.18 || est > 0.2 {
		t.Errorf("unexpected estimate: %f", est)
	}
	if est := EstimateSizeMB(testland, 1); est < 47000 || est > 47500 {
		t.Errorf("unexpected estimate at 1m: %f", est)
	}
	if !math.IsInf(EstimateSizeMB(testland, 0), 1) {
		t.Error("expected +Inf for a null resolution")
	}
}

func TestDecide(t *testing.T) {
	d := Decide(testland, 500, DefaultBudgetMB)
	if !d.Valid || d.Resolution != 500 {
		t.Errorf("expected valid 500m, got %+v", d)
	}

	d = Decide(testland, 1, DefaultBudgetMB)
	if d.Valid {
		t.Fatal("expected invalid")
	}
	if d.Resolution < 28 || d.Resolution > 31 {
		t.Errorf("expected a suggestion around 30m, got %d", d.Resolution)
	}

	d = Decide(testland, 0, DefaultBudgetMB)
	if d.Valid || d.Resolution != Decide(testland, 1, DefaultBudgetMB).Resolution {
		t.Errorf("unexpected decision for a null resolution: %+v", d)
	}

	flat := common.Bounds{MinLon: 1, MinLat: 1, MaxLon: 1, MaxLat: 3}
	if d := Decide(flat, 1, DefaultBudgetMB); !d.Valid || d.Resolution != 1 {
		t.Errorf("expected valid for an empty area, got %+v", d)
	}
}

func TestDecideProperties(t *testing.T) {
	bounds := []common.Bounds{
		testland,
		{MinLon: -10, MinLat: 40, MaxLon: 5, MaxLat: 52},
		{MinLon: 100, MinLat: -45, MaxLon: 155, MaxLat: -10},
		{MinLon: 2.2, MinLat: 48.8, MaxLon: 2.5, MaxLat: 48.9},
	}
	for _, b := range bounds {
		for _, res := range []int{1, 2, 5, 10, 30, 100, 250, 500, 1000, 5000} {
			d := Decide(b, res, DefaultBudgetMB)
			est := EstimateSizeMB(b, res)
			if est <= DefaultBudgetMB {
				if !d.Valid || d.Resolution != res {
					t.Errorf("%+v %dm (%.2fMB): expected valid, got %+v", b, res, est, d)
				}
				continue
			}
			if d.Valid {
				t.Errorf("%+v %dm (%.2fMB): expected invalid", b, res, est)
				continue
			}
			if d.Resolution <= res {
				t.Errorf("%+v %dm: suggestion must be coarser, got %d", b, res, d.Resolution)
			}
			if EstimateSizeMB(b, d.Resolution) > DefaultBudgetMB {
				t.Errorf("%+v %dm: suggestion %dm does not fit the budget", b, res, d.Resolution)
			}
			if EstimateSizeMB(b, d.Resolution-1) <= DefaultBudgetMB && d.Resolution-1 > res {
				t.Errorf("%+v %dm: suggestion %dm is not the smallest", b, res, d.Resolution)
			}
		}
	}
}

func TestValidator(t *testing.T) {
	ctx := context.Background()
	source, err := boundaries.NewStaticSource(boundaries.BoxRegion("Testland", testland))
	if err != nil {
		t.Fatal(err)
	}
	v := NewValidator(source)

	d, err := v.Validate(ctx, "Testland", 500)
	if err != nil || !d.Valid || d.Resolution != 500 {
		t.Errorf("expected valid 500m, got %+v, %v", d, err)
	}
	d, err = v.Validate(ctx, "Testland", 1)
	if err != nil || d.Valid {
		t.Errorf("expected invalid, got %+v, %v", d, err)
	}

	// Fail open
	d, err = v.Validate(ctx, "Atlantis", 1)
	if err != nil || !d.Valid || d.Resolution != 1 {
		t.Errorf("expected valid (fail open), got %+v, %v", d, err)
	}

	v.FailClosed = true
	d, err = v.Validate(ctx, "Atlantis", 1)
	if !errors.Is(err, boundaries.ErrNotFound) || d.Valid {
		t.Errorf("expected ErrNotFound (fail closed), got %+v, %v", d, err)
	}

	// Custom budget
	v.BudgetMB = 0.1
	d, _ = v.Validate(ctx, "Testland", 500)
	if d.Valid || EstimateSizeMB(testland, d.Resolution) > 0.1 {
		t.Errorf("expected invalid with a 0.1MB budget, got %+v", d)
	}
}
