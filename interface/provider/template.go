package provider

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"

	"github.com/airbusgeo/geocube-exporter/common"
	"github.com/airbusgeo/geocube-exporter/service"
)

var unknownBrackets = regexp.MustCompile(`{[A-Z_]+}`)

// TemplateProvider implements ExportProvider for pre-rendered mosaics, served by an url template.
// The template can contain {COUNTRY}, {YEAR}, {MONTH}, {RESOLUTION}, {START} and {END}
// (see common.FormatBrackets). Example: https://mirror.example.org/viirs/{COUNTRY}/{YEAR}{MONTH}.tif?scale={RESOLUTION}
type TemplateProvider struct {
	name        string
	template    string
	client      *http.Client
	checkExists bool
	authToken   string
}

// NewTemplateProvider creates a new ExportProvider from an url template.
// If checkExists, the url is checked with a HEAD request (404 or 410 means no data).
func NewTemplateProvider(name, template string, client *http.Client, checkExists bool, authToken string) (*TemplateProvider, error) {
	if template == "" {
		return nil, fmt.Errorf("NewTemplateProvider: empty template")
	}
	expanded := common.FormatBrackets(template, common.Info("", common.TimeWindow{Year: 2000, Month: 1}, 1))
	if m := unknownBrackets.FindString(expanded); m != "" {
		return nil, fmt.Errorf("NewTemplateProvider: unknown identifier %s in %s", m, template)
	}
	if name == "" {
		name = "Template"
	}
	return &TemplateProvider{name: name, template: template, client: client, checkExists: checkExists, authToken: authToken}, nil
}

// Name implements ExportProvider
func (tp *TemplateProvider) Name() string {
	return tp.name
}

// ExportURL implements ExportProvider
func (tp *TemplateProvider) ExportURL(ctx context.Context, region common.Region, window common.TimeWindow, resolution int) (string, error) {
	info := common.Info(url.PathEscape(region.Name), window, resolution)
	u := common.FormatBrackets(tp.template, info)
	if !tp.checkExists {
		return u, nil
	}
	code, err := service.HTTPHeadWithAuth(ctx, tp.client, u, "", "", tp.authToken)
	if err != nil {
		return "", fmt.Errorf("TemplateProvider.ExportURL: %w", service.MakeTemporary(err))
	}
	switch {
	case code >= 200 && code < 300:
		return u, nil
	case code == http.StatusNotFound || code == http.StatusGone:
		return "", noData(region.Name, window, u)
	}
	return "", fmt.Errorf("TemplateProvider.ExportURL: %w", service.HTTPStatusError{URL: u, StatusCode: code})
}
