// CLAUDE:SUMMARY Entry point for the duty reconciliation service — REST API over the batch worker.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/clearway/dutyrec/artifact"
	"github.com/clearway/dutyrec/config"
	"github.com/clearway/dutyrec/dutyrun"
	"github.com/clearway/dutyrec/httpapi"
	"github.com/clearway/dutyrec/pdfproc"
	"github.com/clearway/dutyrec/portal"
	"github.com/clearway/dutyrec/secrets"
	"github.com/clearway/dutyrec/session"
	"github.com/clearway/dutyrec/store"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config (optional, env overrides apply)")
	flag.Parse()

	// Logging.
	var lvl slog.Level
	switch os.Getenv("LOG_LEVEL") {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	// Signal context.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Credential sealing is optional but recommended.
	var storeOpts []store.Option
	if cfg.Passphrase != "" {
		box, err := secrets.NewBox(cfg.Passphrase)
		if err != nil {
			slog.Error("init secrets", "error", err)
			os.Exit(1)
		}
		storeOpts = append(storeOpts, store.WithSecrets(box))
	} else {
		slog.Warn("no passphrase configured, broker credentials stored unsealed")
	}
	storeOpts = append(storeOpts, store.WithLogger(logger))

	st, err := store.Open(cfg.DBPath, storeOpts...)
	if err != nil {
		slog.Error("open store", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	files, err := session.NewFileStore(cfg.SessionsDir)
	if err != nil {
		slog.Error("open session store", "error", err)
		os.Exit(1)
	}
	sessions := session.New(session.Config{
		BaseURL:      cfg.Portal.BaseURL,
		ProbeTimeout: time.Duration(cfg.Portal.ProbeTimeout) * time.Second,
		LoginTimeout: time.Duration(cfg.Portal.LoginTimeout) * time.Second,
		Logger:       logger,
	}, files)

	// Artifact storage is optional; without a bucket the pipeline skips
	// uploads and leaves PDF URLs empty.
	var artifacts dutyrun.ArtifactStore
	var presigner httpapi.Presigner
	if cfg.Storage.Bucket != "" {
		gw, err := artifact.New(ctx, artifact.Config{
			Bucket:     cfg.Storage.Bucket,
			Region:     cfg.Storage.Region,
			Endpoint:   cfg.Storage.Endpoint,
			Prefix:     cfg.Storage.Prefix,
			PresignTTL: cfg.PresignTTL(),
			Logger:     logger,
		})
		if err != nil {
			slog.Error("init artifact storage", "error", err)
			os.Exit(1)
		}
		artifacts = gw
		presigner = gw
	} else {
		slog.Warn("no storage bucket configured, artifacts will not be uploaded")
	}

	pdf := pdfproc.New(pdfproc.Config{GSBinary: cfg.PDF.GSBinary, Logger: logger})

	pipeline := dutyrun.NewPipeline(dutyrun.Config{
		Portal: portal.Config{
			BaseURL:   cfg.Portal.BaseURL,
			UserAgent: cfg.Portal.UserAgent,
			Logger:    logger,
		},
		PresignTTL: cfg.PresignTTL(),
		Logger:     logger,
	}, sessions, artifacts, pdf)

	orch := dutyrun.NewOrchestrator(st, pipeline, logger)
	api := httpapi.NewServer(httpapi.Config{
		Logger:     logger,
		PresignTTL: cfg.PresignTTL(),
	}, st, orch, presigner)

	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           api.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown", "error", err)
		}
	}()

	slog.Info("dutyrec listening", "addr", cfg.Listen, "portal", cfg.Portal.BaseURL)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("serve", "error", err)
		os.Exit(1)
	}
	slog.Info("dutyrec stopped")
}
