package common

import (
	"fmt"
	"time"

	"github.com/go-spatial/geom"
)

// TimeWindow identifies one calendar month
type TimeWindow struct {
	Year  int `json:"year"`
	Month int `json:"month"`
}

// Start returns the first instant of the month (UTC)
func (w TimeWindow) Start() time.Time {
	return time.Date(w.Year, time.Month(w.Month), 1, 0, 0, 0, 0, time.UTC)
}

// End returns the first instant of the next month (UTC, exclusive)
func (w TimeWindow) End() time.Time {
	return w.Start().AddDate(0, 1, 0)
}

// MonthString returns the zero-padded month ("01".."12")
func (w TimeWindow) MonthString() string {
	return fmt.Sprintf("%02d", w.Month)
}

func (w TimeWindow) String() string {
	return fmt.Sprintf("%d-%s", w.Year, w.MonthString())
}

// Before returns true if w is strictly before o
func (w TimeWindow) Before(o TimeWindow) bool {
	return w.Year < o.Year || (w.Year == o.Year && w.Month < o.Month)
}

// Windows returns all the months between startYear and endYear (inclusive),
// sorted by year then month
func Windows(startYear, endYear int) []TimeWindow {
	if endYear < startYear {
		return nil
	}
	windows := make([]TimeWindow, 0, 12*(endYear-startYear+1))
	for year := startYear; year <= endYear; year++ {
		for month := 1; month <= 12; month++ {
			windows = append(windows, TimeWindow{Year: year, Month: month})
		}
	}
	return windows
}

// Bounds is a bounding box in degrees (EPSG:4326)
type Bounds struct {
	MinLon float64 `json:"min_lon"`
	MinLat float64 `json:"min_lat"`
	MaxLon float64 `json:"max_lon"`
	MaxLat float64 `json:"max_lat"`
}

// Width in degrees
func (b Bounds) Width() float64 {
	if b.MaxLon < b.MinLon {
		return b.MinLon - b.MaxLon
	}
	return b.MaxLon - b.MinLon
}

// Height in degrees
func (b Bounds) Height() float64 {
	if b.MaxLat < b.MinLat {
		return b.MinLat - b.MaxLat
	}
	return b.MaxLat - b.MinLat
}

// Polygon returns the bounding box as a closed ring
func (b Bounds) Polygon() geom.Polygon {
	return geom.Polygon{{
		{b.MinLon, b.MinLat},
		{b.MaxLon, b.MinLat},
		{b.MaxLon, b.MaxLat},
		{b.MinLon, b.MaxLat},
		{b.MinLon, b.MinLat},
	}}
}

// Region is a named area with its geometry, resolved for one request
type Region struct {
	Name     string            `json:"name"`
	Geometry geom.MultiPolygon `json:"-"`
	Bounds   Bounds            `json:"bounds"`
}

// ExportDescriptor is the unit of persisted work: a retrievable URL for the composite
// raster of a region over a time window
type ExportDescriptor struct {
	URL        string     `json:"url"`
	Region     string     `json:"country"`
	Window     TimeWindow `json:"window"`
	Downloaded bool       `json:"downloaded"`
}

// DescriptorKey uniquely identifies a descriptor
type DescriptorKey struct {
	Region string
	Window TimeWindow
}

// Key returns the unique identifier of the descriptor
func (d ExportDescriptor) Key() DescriptorKey {
	return DescriptorKey{Region: d.Region, Window: d.Window}
}

// ResolutionDecision is the output of the resolution validation.
// If !Valid, Resolution is a suggested coarser resolution
type ResolutionDecision struct {
	Valid      bool `json:"valid"`
	Resolution int  `json:"suggested_resolution"`
}

// CountryResult is the outcome of the export of one country
type CountryResult struct {
	Country    string       `json:"country"`
	Status     ResultStatus `json:"status"`
	Message    string       `json:"message"`
	Manifest   string       `json:"manifest,omitempty"`
	Total      int          `json:"total,omitempty"`
	Downloaded int          `json:"downloaded,omitempty"`
}

// Succeeded creates a successful CountryResult
func Succeeded(country, message string) CountryResult {
	return CountryResult{Country: country, Status: StatusSuccess, Message: message}
}

// Failed creates a failed CountryResult
func Failed(country, message string) CountryResult {
	return CountryResult{Country: country, Status: StatusError, Message: message}
}

// Bounds of the years of an ExportRequest
const (
	MinYear  = 1900
	MaxYear  = 9999
	MaxYears = 100
)

// ExportRequest is the input of an export
type ExportRequest struct {
	Countries  []string `json:"countries"`
	StartYear  int      `json:"start_year"`
	EndYear    int      `json:"end_year"`
	Resolution int      `json:"resolution"`
}

// Validate checks the consistency of the request
func (r ExportRequest) Validate() error {
	if len(r.Countries) == 0 {
		return fmt.Errorf("at least one country is required")
	}
	for _, c := range r.Countries {
		if c == "" {
			return fmt.Errorf("empty country name")
		}
	}
	if r.StartYear <= 0 || r.EndYear <= 0 {
		return fmt.Errorf("start_year and end_year are required")
	}
	if r.StartYear > r.EndYear {
		return fmt.Errorf("start_year (%d) must be before end_year (%d)", r.StartYear, r.EndYear)
	}
	if r.StartYear < MinYear || r.EndYear > MaxYear {
		return fmt.Errorf("years must be between %d and %d", MinYear, MaxYear)
	}
	if r.EndYear-r.StartYear >= MaxYears {
		return fmt.Errorf("at most %d years can be exported at once", MaxYears)
	}
	if r.Resolution <= 0 {
		return fmt.Errorf("resolution must be strictly positive (got %d)", r.Resolution)
	}
	return nil
}

// Response statuses
const (
	ResponseSuccess = "success"
	ResponseError   = "error"
)

// ExportResponse is returned to the request layer (or published as an event)
type ExportResponse struct {
	Status  string          `json:"status"`
	Results []CountryResult `json:"results,omitempty"`
	Message string          `json:"message,omitempty"`
}
