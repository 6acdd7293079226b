package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/nsqio/go-nsq"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/brunov7/formerr-hooks/internal/api"
	"github.com/brunov7/formerr-hooks/internal/config"
	"github.com/brunov7/formerr-hooks/internal/db"
	"github.com/brunov7/formerr-hooks/internal/logging"
	"github.com/brunov7/formerr-hooks/internal/metrics"
	"github.com/brunov7/formerr-hooks/internal/store"
	"github.com/brunov7/formerr-hooks/internal/tracing"
	"github.com/brunov7/formerr-hooks/internal/webhook"
)

func main() {
	cfg := config.FromEnv()
	ctx := context.Background()

	logger := logging.New("formerr-hookd")

	shutdown, err := tracing.InitTracing(ctx, "formerr-hookd")
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
	if err := reg.EnsureSchema(ctx); err != nil {
		logger.Plain().WithError(err).Fatal("schema bootstrap failed")
	}

	// NSQ producer for async event intake; hookd still works without one
	// (dispatch falls back in-process).
	var prod *nsq.Producer
	if os.Getenv("DISABLE_NSQ") != "true" {
		prod, err = nsq.NewProducer(cfg.NSQ.NsqdTCPAddr, nsq.NewConfig())
		if err != nil {
			logger.Plain().WithError(err).Fatal("nsq producer failed")
		}
		defer prod.Stop()
	}

	promReg := prometheus.NewRegistry()
	metrics.MustRegister(promReg)

	disp := webhook.NewDispatcher(reg, webhook.NewClient(), logger)
	disp.SetMaxInFlight(cfg.Dispatch.MaxInFlight)

	var pub api.EventPublisher
	if prod != nil {
		pub = prod
	}
	router := api.NewRouter(cfg, reg, pool, disp, pub, promReg, logger)

	httpSrv := &http.Server{Addr: cfg.HTTPPort, Handler: router}
	go func() {
		logger.Plain().WithField("addr", httpSrv.Addr).Info("hookd HTTP server starting")
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Plain().WithError(err).Fatal("hookd HTTP server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGTERM, syscall.SIGINT)
	<-stop

	logger.Plain().Info("shutting down hookd")
	_ = httpSrv.Shutdown(context.Background())
	logger.Plain().Info("hookd stopped")
}
