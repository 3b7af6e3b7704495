package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/airbusgeo/geocube-exporter/common"
	"github.com/airbusgeo/geocube-exporter/exporter"
	"github.com/airbusgeo/geocube-exporter/service"
	"github.com/airbusgeo/geocube-exporter/service/log"
	"github.com/airbusgeo/geocube/interface/messaging"
	"github.com/airbusgeo/geocube/interface/messaging/pgqueue"
	"github.com/airbusgeo/geocube/interface/messaging/pubsub"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

type config struct {
	PsProject       string
	JobQueue        string
	EventQueue      string
	PgqDbConnection string
	MaxTries        int
	MetricsPort     string

	Exporter exporter.Config
}

func newAppConfig() (*config, error) {
	config := config{}
	// Messaging
	flag.StringVar(&config.PgqDbConnection, "pgq-connection", "", "enable pgq messaging system with a connection to the database")
	flag.StringVar(&config.PsProject, "ps-project", "", "pubsub subscription project (gcp only/not required in local usage)")
	flag.StringVar(&config.JobQueue, "job-queue", "", "name of the queue for export requests (pgqueue or pubsub subscription)")
	flag.StringVar(&config.EventQueue, "event-queue", "", "name of the queue for export results (pgqueue or pubsub topic)")
	flag.IntVar(&config.MaxTries, "max-tries", 5, "maximum number of tries of a request")
	flag.StringVar(&config.MetricsPort, "metrics-port", "9000", "port of the prometheus metrics (empty to disable)")

	config.Exporter.SetFlags()
	flag.Parse()

	if config.JobQueue == "" {
		return nil, fmt.Errorf("missing job-queue config flag")
	}
	if config.EventQueue == "" {
		return nil, fmt.Errorf("missing event-queue config flag")
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
	if err != nil {
		log.Fatal("error", zap.Error(err))
	}
}

func run(ctx context.Context) error {
	config, err := newAppConfig()
	if err != nil {
		return err
	}

	var jobConsumer messaging.Consumer
	var eventPublisher messaging.Publisher
	var logMessaging string
	{
		if config.PgqDbConnection != "" {
			db, w, err := pgqueue.SqlConnect(ctx, config.PgqDbConnection)
			if err != nil {
				return fmt.Errorf("MessagingService: %w", err)
			}
			logMessaging += fmt.Sprintf(" pulling on pgqueue:%s", config.JobQueue)
			consumer := pgqueue.NewConsumer(db, config.JobQueue)
			defer consumer.Stop()
			jobConsumer = consumer

			logMessaging += fmt.Sprintf(" pushing on pgqueue:%s", config.EventQueue)
			eventPublisher = pgqueue.NewPublisher(w, config.EventQueue, pgqueue.WithMaxRetries(5))
		} else {
			logMessaging += fmt.Sprintf(" pulling on pubsub:%s/%s", config.PsProject, config.JobQueue)
			if jobConsumer, err = pubsub.NewConsumer(config.PsProject, config.JobQueue); err != nil {
				return fmt.Errorf("pubsub.NewConsumer: %w", err)
			}

			logMessaging += fmt.Sprintf(" pushing on pubsub:%s/%s", config.PsProject, config.EventQueue)
			eventTopic, err := pubsub.NewPublisher(ctx, config.PsProject, config.EventQueue, pubsub.WithMaxRetries(5))
			if err != nil {
				return fmt.Errorf("pubsub.NewPublisher: %w", err)
			}
			defer eventTopic.Stop()
			eventPublisher = eventTopic
		}
	}

	metrics := exporter.MustNewMetrics(prometheus.DefaultRegisterer)
	exp, closeExporter, err := config.Exporter.NewExporter(ctx, metrics)
	if err != nil {
		return err
	}
	defer closeExporter()

	if config.MetricsPort != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			if err := http.ListenAndServe(":"+config.MetricsPort, mux); err != nil {
				log.Logger(ctx).Error("metrics server", zap.Error(err))
			}
		}()
	}

	log.Logger(ctx).Debug("worker starts" + logMessaging)
	for {
		err := jobConsumer.Pull(ctx, func(ctx context.Context, msg *messaging.Message) error {
			return handleMessage(ctx, exp, eventPublisher, msg, config.MaxTries)
		})
		if err != nil {
			return fmt.Errorf("ps.process: %w", err)
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

// exportRunner is implemented by exporter.Exporter
type exportRunner interface {
	Export(ctx context.Context, req common.ExportRequest) ([]common.CountryResult, error)
}

// handleMessage runs the export request of the message and publishes the response.
// A temporary error leaves the message for redelivery, any other outcome is published.
func handleMessage(ctx context.Context, exp exportRunner, publisher messaging.Publisher, msg *messaging.Message, maxTries int) (err error) {
	ctx = log.With(ctx, "msgID", msg.ID)
	log.Logger(log.With(ctx, "body", string(msg.Data))).Sugar().Debugf("message %s try %d", msg.ID, msg.TryCount)

	response := common.ExportResponse{Status: common.ResponseError}
	defer func() {
		if err != nil && service.Temporary(err) {
			log.Logger(ctx).Warn("job temporary failure", zap.Error(err))
			return
		}
		if err != nil {
			if service.Fatal(err) {
				log.Logger(ctx).Error("job rejected", zap.Error(err))
			} else {
				log.Logger(ctx).Warn("job failed", zap.Error(err))
			}
			response.Message = err.Error()
		}
		resb, e := json.Marshal(response)
		if e != nil {
			err = service.MakeTemporary(fmt.Errorf("marshal: %w", e))
		} else if e := publisher.Publish(ctx, resb); e != nil {
			err = service.MakeTemporary(fmt.Errorf("failed to enqueue result: %w", e))
		}
	}()

	if msg.TryCount > maxTries {
		return fmt.Errorf("too many retries")
	}
	req := common.ExportRequest{}
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		return service.MakeFatal(fmt.Errorf("invalid payload: %w", err))
	}
	results, err := exp.Export(ctx, req)
	if err != nil {
		return service.MakeFatal(fmt.Errorf("invalid request: %w", err))
	}
	if ctx.Err() != nil {
		return service.MakeTemporary(fmt.Errorf("interrupted: %w", ctx.Err()))
	}
	response.Status = common.ResponseSuccess
	response.Results = results
	log.Logger(ctx).Sugar().Infof("successfully processed %d countries", len(results))
	return nil
}
