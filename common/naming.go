package common

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Extension of a raster file
type Extension string

// Supported extensions
const (
	ExtensionGTiff Extension = "tif"
	ExtensionZIP   Extension = "zip"
)

const manifestTimeFormat = "20060102_150405"

var unsafeChars = strings.NewReplacer("/", "-", "\\", "-", "\x00", "")

// SafeName returns a name that can be used as a file name component
func SafeName(name string) string {
	return unsafeChars.Replace(strings.TrimSpace(name))
}

// RasterFileName returns the name of the raster of the region for the given month: {region}_{year}_{MM}.{ext}
func RasterFileName(region string, window TimeWindow, ext Extension) string {
	name := fmt.Sprintf("%s_%d_%s", SafeName(region), window.Year, window.MonthString())
	if ext != "" {
		name += "." + string(ext)
	}
	return name
}

// ManifestFileName returns the name of the manifest of the region: {region}_{YYYYMMDD_HHMMSS}_{id}_urls.csv
func ManifestFileName(region string, t time.Time, id string) string {
	if id == "" {
		return fmt.Sprintf("%s_%s_urls.csv", SafeName(region), t.Format(manifestTimeFormat))
	}
	return fmt.Sprintf("%s_%s_%s_urls.csv", SafeName(region), t.Format(manifestTimeFormat), id)
}

// ManifestPrefix returns the prefix shared by all the manifests of the region
func ManifestPrefix(region string) string {
	return SafeName(region) + "_"
}

// Info returns the template values of a task, to be used with FormatBrackets
// keys are COUNTRY, YEAR, MONTH, RESOLUTION, START, END (YYYY-MM-DD)
func Info(region string, window TimeWindow, resolution int) map[string]string {
	return map[string]string{
		"COUNTRY":    region,
		"YEAR":       strconv.Itoa(window.Year),
		"MONTH":      window.MonthString(),
		"RESOLUTION": strconv.Itoa(resolution),
		"START":      window.Start().Format("2006-01-02"),
		"END":        window.End().Format("2006-01-02"),
	}
}

/**
 * FormatBrackets replaces in <str> all {keys} of <info> by the corresponding value
 * keys are usually the ones returned by Info()
 */
func FormatBrackets(str string, infos ...map[string]string) string {
	for _, info := range infos {
		for k, v := range info {
			str = strings.ReplaceAll(str, "{"+k+"}", v)
		}
	}
	return str
}
