package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/airbusgeo/geocube-exporter/common"
	"github.com/airbusgeo/geocube-exporter/service"
	"github.com/airbusgeo/geocube-exporter/service/log"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/googleapi"
)

// Earth Engine defaults: monthly mean of the VIIRS day/night band radiance
const (
	DefaultEarthEngineEndpoint   = "https://earthengine.googleapis.com"
	DefaultEarthEngineCollection = "NOAA/VIIRS/001/VNP46A1"
	DefaultEarthEngineBand       = "DNB_At_Sensor_Radiance_500m"
	DefaultEarthEngineCRS        = "EPSG:4326"
)

// Earth Engine output formats
const (
	FormatGeoTIFF       = "GEO_TIFF"
	FormatZippedGeoTIFF = "ZIPPED_GEO_TIFF"
)

var earthEngineScopes = []string{
	"https://www.googleapis.com/auth/earthengine",
	"https://www.googleapis.com/auth/cloud-platform",
}

// EarthEngineConfig configures the EarthEngineProvider
type EarthEngineConfig struct {
	Project    string
	Endpoint   string
	Collection string
	Band       string
	CRS        string
	Format     string
	// MaxTries on temporary errors (quota...)
	MaxTries     int
	RetryBackoff time.Duration
}

// EarthEngineProvider implements ExportProvider with the Earth Engine REST API.
// A thumbnail (download id) is created for each window, and the getPixels url is returned.
type EarthEngineProvider struct {
	client *http.Client
	config EarthEngineConfig
}

// NewEarthEngineProvider creates a new ExportProvider on Earth Engine.
// If client is nil, the application default credentials are used.
func NewEarthEngineProvider(ctx context.Context, config EarthEngineConfig, client *http.Client) (*EarthEngineProvider, error) {
	if config.Project == "" {
		return nil, fmt.Errorf("NewEarthEngineProvider: missing project")
	}
	if config.Endpoint == "" {
		config.Endpoint = DefaultEarthEngineEndpoint
	}
	config.Endpoint = strings.TrimSuffix(config.Endpoint, "/")
	if config.Collection == "" {
		config.Collection = DefaultEarthEngineCollection
	}
	if config.Band == "" {
		config.Band = DefaultEarthEngineBand
	}
	if config.CRS == "" {
		config.CRS = DefaultEarthEngineCRS
	}
	switch config.Format {
	case "":
		config.Format = FormatGeoTIFF
	case FormatGeoTIFF, FormatZippedGeoTIFF:
	default:
		return nil, fmt.Errorf("NewEarthEngineProvider: unsupported format %s", config.Format)
	}
	if config.MaxTries <= 0 {
		config.MaxTries = 3
	}
	if config.RetryBackoff <= 0 {
		config.RetryBackoff = 2 * time.Second
	}
	if client == nil {
		var err error
		if client, err = google.DefaultClient(ctx, earthEngineScopes...); err != nil {
			return nil, fmt.Errorf("NewEarthEngineProvider.DefaultClient: %w", err)
		}
	}
	return &EarthEngineProvider{client: client, config: config}, nil
}

// Name implements ExportProvider
func (ep *EarthEngineProvider) Name() string {
	return "EarthEngine"
}

// Extension returns the extension of the files returned by the urls
func (ep *EarthEngineProvider) Extension() common.Extension {
	if ep.config.Format == FormatZippedGeoTIFF {
		return common.ExtensionZIP
	}
	return common.ExtensionGTiff
}

// ExportURL implements ExportProvider
func (ep *EarthEngineProvider) ExportURL(ctx context.Context, region common.Region, window common.TimeWindow, resolution int) (string, error) {
	if len(region.Geometry) == 0 {
		return "", fmt.Errorf("EarthEngine.ExportURL: empty geometry for %s", region.Name)
	}
	body, err := json.Marshal(thumbnailRequest{
		Expression:     ep.expression(region, window, resolution),
		FileFormat:     ep.config.Format,
		FilenamePrefix: common.RasterFileName(region.Name, window, ""),
	})
	if err != nil {
		return "", fmt.Errorf("EarthEngine.ExportURL.Marshal: %w", err)
	}

	var name string
	err = service.Retriable(ctx, func() error {
		name, err = ep.createThumbnail(ctx, body)
		if err != nil && service.Temporary(err) {
			log.Logger(ctx).Sugar().Debugf("EarthEngine %s %s: %v (retrying)", region.Name, window, err)
		}
		return err
	}, ep.config.RetryBackoff, ep.config.MaxTries)
	if err != nil {
		var gerr *googleapi.Error
		if errors.As(err, &gerr) && isNoDataMessage(gerr.Message) {
			return "", noData(region.Name, window, gerr.Message)
		}
		return "", fmt.Errorf("EarthEngine.ExportURL[%s %s]: %w", region.Name, window, err)
	}
	return fmt.Sprintf("%s/v1/%s:getPixels", ep.config.Endpoint, name), nil
}

func (ep *EarthEngineProvider) createThumbnail(ctx context.Context, body []byte) (string, error) {
	url := fmt.Sprintf("%s/v1/projects/%s/thumbnails", ep.config.Endpoint, ep.config.Project)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("createThumbnail.NewRequest: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := ep.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("createThumbnail.Do: %w", err)
	}
	defer resp.Body.Close()
	if err := googleapi.CheckResponse(resp); err != nil {
		return "", err
	}
	var thumbnail struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&thumbnail); err != nil {
		return "", service.MakeTemporary(fmt.Errorf("createThumbnail.Decode: %w", err))
	}
	if thumbnail.Name == "" {
		return "", fmt.Errorf("createThumbnail: empty thumbnail name")
	}
	return thumbnail.Name, nil
}

// isNoDataMessage detects the errors raised by Earth Engine on an empty collection
func isNoDataMessage(msg string) bool {
	msg = strings.ToLower(msg)
	return strings.Contains(msg, "did not match any bands") ||
		strings.Contains(msg, "no bands") ||
		strings.Contains(msg, "empty collection") ||
		strings.Contains(msg, "no data")
}

type thumbnailRequest struct {
	Expression     expression `json:"expression"`
	FileFormat     string     `json:"fileFormat"`
	FilenamePrefix string     `json:"filenamePrefix,omitempty"`
}

// expression is a serialized Earth Engine computation graph
type expression struct {
	Result string               `json:"result"`
	Values map[string]valueNode `json:"values"`
}

type valueNode struct {
	ConstantValue           interface{}         `json:"constantValue,omitempty"`
	FunctionInvocationValue *functionInvocation `json:"functionInvocationValue,omitempty"`
	ArrayValue              *arrayValue         `json:"arrayValue,omitempty"`
}

type arrayValue struct {
	Values []valueNode `json:"values"`
}

type functionInvocation struct {
	FunctionName string               `json:"functionName"`
	Arguments    map[string]valueNode `json:"arguments"`
}

func constant(v interface{}) valueNode {
	return valueNode{ConstantValue: v}
}

func invoke(name string, args map[string]valueNode) valueNode {
	return valueNode{FunctionInvocationValue: &functionInvocation{FunctionName: name, Arguments: args}}
}

// expression returns the graph of:
// ImageCollection(collection).filterDate(start, end).mean().select(band)
//
//	.multiply(Image(0).paint(geometry, 1).selfMask())
//	.clip(geometry).reproject(crs).clipToBoundsAndScale(bounds, scale)
//
// The mask leaves the pixels outside the country without data.
func (ep *EarthEngineProvider) expression(region common.Region, window common.TimeWindow, resolution int) expression {
	geometry := invoke("GeometryConstructors.MultiPolygon", map[string]valueNode{
		"coordinates": constant(region.Geometry),
		"geodesic":    constant(false),
	})
	b := region.Bounds
	bounds := invoke("GeometryConstructors.Rectangle", map[string]valueNode{
		"coordinates": constant([]float64{b.MinLon, b.MinLat, b.MaxLon, b.MaxLat}),
		"geodesic":    constant(false),
	})
	collection := invoke("Collection.filter", map[string]valueNode{
		"collection": invoke("ImageCollection.load", map[string]valueNode{
			"id": constant(ep.config.Collection),
		}),
		"filter": invoke("Filter.dateRangeContains", map[string]valueNode{
			"leftValue": invoke("DateRange", map[string]valueNode{
				"start": constant(window.Start().Format("2006-01-02")),
				"end":   constant(window.End().Format("2006-01-02")),
			}),
			"rightField": constant("system:time_start"),
		}),
	})
	image := invoke("Image.select", map[string]valueNode{
		"input":         invoke("reduce.mean", map[string]valueNode{"collection": collection}),
		"bandSelectors": constant([]string{ep.config.Band}),
	})
	features := valueNode{ArrayValue: &arrayValue{Values: []valueNode{
		invoke("Feature", map[string]valueNode{"geometry": geometry}),
	}}}
	painted := invoke("Image.paint", map[string]valueNode{
		"image":             invoke("Image.constant", map[string]valueNode{"value": constant(0)}),
		"featureCollection": invoke("Collection", map[string]valueNode{"features": features}),
		"color":             constant(1),
	})
	mask := invoke("Image.selfMask", map[string]valueNode{"image": painted})
	image = invoke("Image.multiply", map[string]valueNode{
		"image1": image,
		"image2": mask,
	})
	image = invoke("Image.clip", map[string]valueNode{
		"input":    image,
		"geometry": geometry,
	})
	image = invoke("Image.reproject", map[string]valueNode{
		"image": image,
		"crs":   constant(ep.config.CRS),
	})
	image = invoke("Image.clipToBoundsAndScale", map[string]valueNode{
		"input":    image,
		"geometry": bounds,
		"scale":    constant(resolution),
	})
	return expression{Result: "0", Values: map[string]valueNode{"0": image}}
}
