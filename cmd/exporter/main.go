package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/airbusgeo/geocube-exporter/common"
	"github.com/airbusgeo/geocube-exporter/exporter"
	"github.com/airbusgeo/geocube-exporter/service/log"
	"github.com/gorilla/handlers"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

type config struct {
	AppPort     string
	BearerToken string
	CORSOrigins []string
	Exporter    exporter.Config

	// One-shot mode
	Countries     []string
	StartYear     int
	EndYear       int
	Resolution    int
	Resume        string
	ResumeCountry string
}

func newAppConfig() (*config, error) {
	config := config{}
	flag.StringVar(&config.AppPort, "port", "8080", "exporter port to use")
	flag.StringVar(&config.BearerToken, "bearer-token", "", "token required to access the api (optional)")
	corsOrigins := flag.String("cors-origins", "*", "allowed origins (comma separated)")

	countries := flag.String("countries", "", "export these countries (comma separated) and exit instead of serving the api")
	flag.IntVar(&config.StartYear, "start-year", 0, "first year to export (with -countries)")
	flag.IntVar(&config.EndYear, "end-year", 0, "last year to export (with -countries)")
	flag.IntVar(&config.Resolution, "resolution", 500, "resolution in meters (with -countries)")
	flag.StringVar(&config.Resume, "resume", "", "resume the download of a manifest and exit")
	flag.StringVar(&config.ResumeCountry, "resume-country", "", "resume the download of the latest manifest of a country and exit")

	config.Exporter.SetFlags()
	flag.Parse()

	if *countries != "" {
		config.Countries = strings.Split(*countries, ",")
	}
	config.CORSOrigins = strings.Split(*corsOrigins, ",")

	if config.AppPort == "" && len(config.Countries) == 0 && config.Resume == "" && config.ResumeCountry == "" {
		return nil, fmt.Errorf("failed to initialize port application flag")
	}
	if err := config.Exporter.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx)
	cancel()
	log.Sync()
	if err != nil {
		log.Fatal("error", zap.Error(err))
	}
}

func run(ctx context.Context) error {
	config, err := newAppConfig()
	if err != nil {
		return err
	}

	metrics := exporter.MustNewMetrics(prometheus.DefaultRegisterer)
	exp, closeExporter, err := config.Exporter.NewExporter(ctx, metrics)
	if err != nil {
		return err
	}
	defer closeExporter()

	switch {
	case config.Resume != "" || config.ResumeCountry != "":
		var result common.CountryResult
		if config.Resume != "" {
			result, err = exp.Resume(ctx, config.Resume)
		} else {
			result, err = exp.ResumeLatest(ctx, config.ResumeCountry)
		}
		if err != nil {
			return err
		}
		return printResponse(common.ExportResponse{Status: common.ResponseSuccess, Results: []common.CountryResult{result}})

	case len(config.Countries) > 0:
		results, err := exp.Export(ctx, common.ExportRequest{
			Countries:  config.Countries,
			StartYear:  config.StartYear,
			EndYear:    config.EndYear,
			Resolution: config.Resolution,
		})
		if err != nil {
			return err
		}
		return printResponse(common.ExportResponse{Status: common.ResponseSuccess, Results: results})
	}

	bearerAuths = map[string]string{"default": config.BearerToken}
	router := exp.NewHandler()
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")
	headersOk := handlers.AllowedHeaders([]string{"*"})
	originsOk := handlers.AllowedOrigins(config.CORSOrigins)
	methodsOk := handlers.AllowedMethods([]string{"GET", "POST", "OPTIONS"})
	s := http.Server{
		Addr:    ":" + config.AppPort,
		Handler: handlers.CORS(originsOk, headersOk, methodsOk)(BearerAuthenticate(router)),
	}
	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.Shutdown(sctx)
	}()

	log.Logger(ctx).Sugar().Infof("exporter listening on :%s", config.AppPort)
	if err := s.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("ListenAndServe: %w", err)
	}
	return nil
}

func printResponse(resp common.ExportResponse) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(resp)
}
