package common

// Manifest columns
const (
	ColumnURL        = "url"
	ColumnCountry    = "country"
	ColumnYear       = "year"
	ColumnMonth      = "month"
	ColumnDownloaded = "downloaded"
)

// ManifestColumns is the header of a manifest, in order
var ManifestColumns = []string{ColumnURL, ColumnCountry, ColumnYear, ColumnMonth, ColumnDownloaded}
