package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/nsqio/go-nsq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/brunov7/formerr-hooks/internal/config"
	"github.com/brunov7/formerr-hooks/internal/db"
	"github.com/brunov7/formerr-hooks/internal/health"
	"github.com/brunov7/formerr-hooks/internal/logging"
	"github.com/brunov7/formerr-hooks/internal/metrics"
	"github.com/brunov7/formerr-hooks/internal/store"
	"github.com/brunov7/formerr-hooks/internal/tracing"
	"github.com/brunov7/formerr-hooks/internal/webhook"

	"go.opentelemetry.io/otel/attribute"
)

// dispatchd consumes domain events from NSQ and fans them out through the
// Dispatcher. The queue carries events into dispatch; it is not a delivery
// retry mechanism, so every message is finished after exactly one dispatch.
func main() {
	cfg := config.FromEnv()
	ctx := context.Background()

	logger := logging.New("formerr-dispatchd")

	shutdown, err := tracing.InitTracing(ctx, "formerr-dispatchd")
	if err != nil {
		logger.Plain().WithError(err).Fatal("failed to initialize tracing")
	}
	defer shutdown()

	pool, err := db.Connect(ctx, cfg.DSN())
	if err != nil {
		logger.Plain().WithError(err).Fatal("db connect failed")
	}
	defer pool.Close()

	reg := store.NewPostgresRegistry(pool)
	disp := webhook.NewDispatcher(reg, webhook.NewClient(), logger)
	disp.SetMaxInFlight(cfg.Dispatch.MaxInFlight)

	promReg := prometheus.NewRegistry()
	metrics.MustRegister(promReg)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", health.HTTPHandler(pool))
	mux.Handle("/metrics", promhttp.HandlerFor(promReg, promhttp.HandlerOpts{}))
	httpSrv := &http.Server{Addr: getenv("DISPATCHD_HTTP_PORT", ":8082"), Handler: mux}
	go func() {
		logger.Plain().WithField("addr", httpSrv.Addr).Info("dispatchd HTTP server starting")
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Plain().WithError(err).Fatal("dispatchd HTTP server failed")
		}
	}()

	conf := nsq.NewConfig()
	conf.MaxInFlight = 100
	consumer, err := nsq.NewConsumer(cfg.NSQ.EventsTopic, cfg.NSQ.DispatchChannel, conf)
	if err != nil {
		logger.Plain().WithError(err).Fatal("nsq consumer creation failed")
	}

	consumer.AddHandler(nsq.HandlerFunc(func(m *nsq.Message) error {
		var msg webhook.EventMessage
		if err := json.Unmarshal(m.Body, &msg); err != nil {
			logger.Plain().WithError(err).Error("bad event payload")
			return nil // terminal: don't retry bad payloads
		}
		eventType, err := webhook.ParseEventType(msg.EventType)
		if err != nil {
			logger.Plain().WithError(err).WithForm(msg.FormID).Error("unknown event type")
			return nil
		}

		msgCtx := tracing.ExtractTraceFromNSQ(ctx, msg.TraceHeaders)
		msgCtx, span := tracing.StartSpan(msgCtx, "dispatchd.event",
			attribute.String("event_type", msg.EventType),
			attribute.String("form_id", msg.FormID),
		)
		defer span.End()

		results := disp.Trigger(msgCtx, eventType, msg.FormID, msg.Data)
		span.SetAttributes(attribute.Int("fanout_count", len(results)))
		return nil
	}))

	if err := consumer.ConnectToNSQD(cfg.NSQ.NsqdTCPAddr); err != nil {
		logger.Plain().WithError(err).Fatal("connect to nsqd failed")
	}
	if err := consumer.ConnectToNSQLookupd(cfg.NSQ.LookupHTTPAddr); err != nil {
		logger.Plain().WithError(err).Fatal("connect to lookupd failed")
	}

	logger.Plain().Info("dispatchd started")

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGTERM, syscall.SIGINT)
	<-stop

	logger.Plain().Info("shutting down dispatchd")
	consumer.Stop()
	<-consumer.StopChan
	_ = httpSrv.Shutdown(context.Background())
	logger.Plain().Info("dispatchd stopped")
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
