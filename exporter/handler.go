package exporter

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"runtime/debug"
	"strconv"
	"strings"

	"github.com/airbusgeo/geocube-exporter/common"
	"github.com/airbusgeo/geocube-exporter/interface/manifest"
	"github.com/airbusgeo/geocube-exporter/service/log"
	"github.com/gorilla/mux"
)

// MaxRequestSize is the maximum size of the body of a request
const MaxRequestSize = 64 << 20

const (
	msgTooLarge    = "File too large (max 64MB)"
	msgServerError = "Server error, please try with a lower resolution"
)

// NewHandler returns the http routes of the exporter
func (e *Exporter) NewHandler() *mux.Router {
	r := mux.NewRouter()
	r.Use(recoverMiddleware, limitMiddleware)
	r.HandleFunc("/download", e.DownloadHandler).Methods("POST")
	r.HandleFunc("/validate-resolution", e.ValidateResolutionHandler).Methods("POST")
	r.HandleFunc("/resume", e.ResumeHandler).Methods("POST")
	r.HandleFunc("/countries", e.CountriesHandler).Methods("GET")
	return r
}

// DownloadHandler exports the countries of the request.
// The response is a success even if some countries failed (see the status of each result).
func (e *Exporter) DownloadHandler(w http.ResponseWriter, req *http.Request) {
	ctx := req.Context()
	exportReq, err := parseExportRequest(req)
	if err != nil {
		writeParseError(w, err)
		return
	}
	results, err := e.Export(ctx, exportReq)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, common.ExportResponse{Status: common.ResponseError, Message: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, common.ExportResponse{Status: common.ResponseSuccess, Results: results})
}

// ValidateResolutionHandler returns whether the resolution is acceptable for the country
func (e *Exporter) ValidateResolutionHandler(w http.ResponseWriter, req *http.Request) {
	ctx := req.Context()
	if err := parseForm(req); err != nil {
		writeParseError(w, err)
		return
	}
	country := req.FormValue("country")
	resolution, err := strconv.Atoi(req.FormValue("resolution"))
	if country == "" || err != nil {
		writeJSON(w, http.StatusBadRequest, common.ExportResponse{Status: common.ResponseError, Message: "country and resolution are required"})
		return
	}
	decision, err := e.ValidateResolution(ctx, country, resolution)
	if err != nil {
		log.Logger(ctx).Sugar().Warnf("validate-resolution: %v", err)
	}
	writeJSON(w, http.StatusOK, decision)
}

// ResumeHandler downloads the pending images of a manifest,
// or of the latest manifest of a country
func (e *Exporter) ResumeHandler(w http.ResponseWriter, req *http.Request) {
	ctx := req.Context()
	var location, country string
	if isJSON(req) {
		body := struct {
			Manifest string `json:"manifest"`
			Country  string `json:"country"`
		}{}
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			writeParseError(w, err)
			return
		}
		location, country = body.Manifest, body.Country
	} else {
		if err := parseForm(req); err != nil {
			writeParseError(w, err)
			return
		}
		location, country = req.FormValue("manifest"), req.FormValue("country")
	}
	var result common.CountryResult
	var err error
	switch {
	case location != "":
		result, err = e.Resume(ctx, location)
	case country != "":
		result, err = e.ResumeLatest(ctx, country)
	default:
		writeJSON(w, http.StatusBadRequest, common.ExportResponse{Status: common.ResponseError, Message: "manifest or country is required"})
		return
	}
	if errors.Is(err, manifest.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, common.ExportResponse{Status: common.ResponseError, Message: err.Error()})
		return
	}
	if err != nil {
		log.Logger(ctx).Sugar().Warnf("resume: %v", err)
		writeJSON(w, http.StatusInternalServerError, common.ExportResponse{Status: common.ResponseError, Message: msgServerError})
		return
	}
	writeJSON(w, http.StatusOK, common.ExportResponse{Status: common.ResponseSuccess, Results: []common.CountryResult{result}})
}

// CountriesHandler lists the known countries
func (e *Exporter) CountriesHandler(w http.ResponseWriter, req *http.Request) {
	ctx := req.Context()
	names, err := e.Countries(ctx)
	if err != nil {
		log.Logger(ctx).Sugar().Warnf("countries: %v", err)
		writeJSON(w, http.StatusInternalServerError, common.ExportResponse{Status: common.ResponseError, Message: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, names)
}

func isJSON(req *http.Request) bool {
	ct, _, _ := mime.ParseMediaType(req.Header.Get("Content-Type"))
	return ct == "application/json"
}

func parseForm(req *http.Request) error {
	ct, _, _ := mime.ParseMediaType(req.Header.Get("Content-Type"))
	if ct == "multipart/form-data" {
		return req.ParseMultipartForm(MaxRequestSize)
	}
	return req.ParseForm()
}

// parseExportRequest reads a json body or the form fields: countries (repeated), start_year, end_year, resolution
func parseExportRequest(req *http.Request) (common.ExportRequest, error) {
	exportReq := common.ExportRequest{}
	if isJSON(req) {
		if err := json.NewDecoder(req.Body).Decode(&exportReq); err != nil {
			return exportReq, err
		}
		return exportReq, nil
	}
	if err := parseForm(req); err != nil {
		return exportReq, err
	}
	for _, c := range req.Form["countries"] {
		for _, name := range strings.Split(c, ",") {
			if name = strings.TrimSpace(name); name != "" {
				exportReq.Countries = append(exportReq.Countries, name)
			}
		}
	}
	var err error
	for _, f := range []struct {
		key string
		val *int
	}{
		{"start_year", &exportReq.StartYear},
		{"end_year", &exportReq.EndYear},
		{"resolution", &exportReq.Resolution},
	} {
		if *f.val, err = strconv.Atoi(req.FormValue(f.key)); err != nil {
			return exportReq, fmt.Errorf("invalid %s: %w", f.key, err)
		}
	}
	return exportReq, nil
}

func writeParseError(w http.ResponseWriter, err error) {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		writeJSON(w, http.StatusRequestEntityTooLarge, common.ExportResponse{Status: common.ResponseError, Message: msgTooLarge})
		return
	}
	writeJSON(w, http.StatusBadRequest, common.ExportResponse{Status: common.ResponseError, Message: err.Error()})
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func limitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if req.ContentLength > MaxRequestSize {
			writeJSON(w, http.StatusRequestEntityTooLarge, common.ExportResponse{Status: common.ResponseError, Message: msgTooLarge})
			return
		}
		req.Body = http.MaxBytesReader(w, req.Body, MaxRequestSize)
		next.ServeHTTP(w, req)
	})
}

func recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		defer func() {
			if r := recover(); r != nil {
				log.Logger(req.Context()).Sugar().Errorf("panic: %v\n%s", r, debug.Stack())
				writeJSON(w, http.StatusInternalServerError, common.ExportResponse{Status: common.ResponseError, Message: msgServerError})
			}
		}()
		next.ServeHTTP(w, req)
	})
}
