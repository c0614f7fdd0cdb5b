package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc"

	"folio.org/internal/audit"
	"folio.org/internal/auth"
	"folio.org/internal/config"
	"folio.org/internal/httpapi"
	"folio.org/internal/obs"
	"folio.org/internal/store/pg"
	"folio.org/internal/stream"
	"folio.org/internal/workflow"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		l := obs.Logger()
		l.Fatal().Err(err).Msg("load config")
	}
	obs.Configure(os.Stdout, cfg.LogLevel, cfg.LogPretty)
	obs.Init()
	obs.InitBuildInfo(version, commit)
	log := obs.Component("main")

	var (
		store workflow.Store
		ready httpapi.ReadyCheck
		pgs   *pg.Store
	)
	if cfg.PostgresDSN != "" {
		pgs, err = pg.Open(cfg.PostgresDSN)
		if err != nil {
			log.Fatal().Err(err).Msg("open postgres")
		}
		store = pgs
		ready = httpapi.ReadyCheck{DB: pgs.DB()}
	} else {
		log.Warn().Msg("FOLIO_PG_DSN not set; documents are kept in memory")
		store = workflow.NewInMemory()
	}

	hub := stream.New()
	engine, err := workflow.NewEngine(store,
		workflow.WithNotifier(workflow.Notifiers{hub, audit.Notifier{}}),
		workflow.WithObserver(func(from, to workflow.Status, outcome string) {
			obs.ObserveTransition(string(from), string(to), outcome)
		}),
		workflow.WithLogger(obs.Component("workflow")),
	)
	if err != nil {
		log.Fatal().Err(err).Msg("build engine")
	}

	var signer *auth.Signer
	if cfg.AuthSecret != "" {
		signer, err = auth.NewSigner(cfg.AuthSecret)
		if err != nil {
			log.Fatal().Err(err).Msg("auth signer")
		}
	} else {
		log.Warn().Msg("FOLIO_AUTH_SECRET not set; protected routes will answer 401")
	}

	api := httpapi.New(httpapi.Options{
		Engine:      engine,
		Hub:         hub,
		Signer:      signer,
		Ready:       ready,
		Version:     version,
		DevTokens:   cfg.DevTokens,
		TokenTTL:    cfg.TokenTTL,
		RateBurst:   cfg.RateLimitBurst,
		RatePerSec:  cfg.RateLimitRPS,
		CORSOrigins: cfg.CORSOrigins,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		// no WriteTimeout: /v1/events holds the response open
		IdleTimeout: 60 * time.Second,
	}

	var grpcSrv *grpc.Server
	if cfg.GRPCAddr != "" {
		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			log.Fatal().Err(err).Str("addr", cfg.GRPCAddr).Msg("grpc listen")
		}
		grpcSrv = grpc.NewServer(grpc.UnaryInterceptor(httpapi.UnaryLogger()))
		httpapi.NewGRPCServer(ready, version).Register(grpcSrv)
		go func() {
			log.Info().Str("addr", cfg.GRPCAddr).Msg("grpc listening")
			if err := grpcSrv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				log.Error().Err(err).Msg("grpc serve")
			}
		}()
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Str("version", version).Msg("http listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("listen")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	log.Info().Msg("shutting down")
	obs.SetReady(false)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("http shutdown")
	}
	if grpcSrv != nil {
		grpcSrv.GracefulStop()
	}
	if pgs != nil {
		_ = pgs.Close()
	}
	log.Info().Msg("stopped")
}
