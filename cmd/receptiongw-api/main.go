package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"receptiongw/internal/cache"
	"receptiongw/internal/calls"
	"receptiongw/internal/config"
	"receptiongw/internal/httpapi"
	"receptiongw/internal/observability"
	"receptiongw/internal/pipeline"
	"receptiongw/internal/presence"
	"receptiongw/internal/queue"
	"receptiongw/internal/recording"
	"receptiongw/internal/summarization"
	"receptiongw/internal/transcription"
	"receptiongw/internal/upstream/openai"
	"receptiongw/internal/upstream/telephony"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.LogLevel)
	metrics := observability.NewMetrics()

	if err := cfg.RequireTelephony(); err != nil {
		logger.Warn("telephony endpoints will fail until configured", "error", err)
	}
	if err := cfg.RequireDutyQuery(); err != nil {
		logger.Warn("duty queries will fail until configured", "error", err)
	}

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   20,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	upstreamHTTPClient := &http.Client{Timeout: cfg.RequestTimeout, Transport: transport}
	// Transcription uploads can outlive the shared request timeout; the
	// transcription stage bounds them with its own context deadline.
	sttHTTPClient := &http.Client{Transport: transport}

	telephonyClient := telephony.New(cfg.TelephonyBaseURL, cfg.TelephonyAPIToken, upstreamHTTPClient,
		telephony.WithMaxPages(cfg.TelephonyMaxPages),
		telephony.WithObserver(metrics.UpstreamObserver("telephony")),
	)
	sttClient := openai.New(cfg.STTBaseURL, cfg.STTAPIKey, sttHTTPClient,
		openai.WithObserver(metrics.UpstreamObserver("stt")))
	llmClient := openai.New(cfg.LLMBaseURL, cfg.LLMAPIKey, upstreamHTTPClient,
		openai.WithObserver(metrics.UpstreamObserver("llm")))

	presenceCache := cache.NewTTL[presence.Snapshot](cfg.PresenceCacheTTL,
		cache.WithObserver[presence.Snapshot](metrics.ObserveCache))

	dutyQuery := pipeline.New(pipeline.Dependencies{
		Resolver:    recording.New(telephonyClient),
		Downloader:  telephonyClient,
		Transcriber: transcription.New(sttClient, cfg.TranscriptionModel, cfg.TranscriptionTimeout),
		Summarizer:  summarization.New(llmClient, cfg.SummaryModel, cfg.SummaryMaxTokens, cfg.SummaryTimeout),
	}, cfg.MaxAudioBytes, logger, metrics.ObserveStage)

	handler := httpapi.NewServer(cfg, logger, httpapi.Dependencies{
		Presence:       presence.New(telephonyClient, presenceCache, presence.DefaultScope),
		Calls:          calls.New(telephonyClient),
		Queue:          queue.New(telephonyClient),
		DutyQuery:      dutyQuery,
		Metrics:        metrics,
		MetricsHandler: metrics.Handler(),
	})

	writeTimeout := cfg.TranscriptionTimeout + cfg.SummaryTimeout + 2*cfg.RequestTimeout
	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", "addr", cfg.ListenAddr, "telephony_base_url", cfg.TelephonyBaseURL)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			logger.Error("server exited", "error", err)
			os.Exit(1)
		}
		return
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

func newLogger(level string) *slog.Logger {
	var slogLevel slog.Level
	switch level {
	case "debug":
		slogLevel = slog.LevelDebug
	case "warn", "warning":
		slogLevel = slog.LevelWarn
	case "error":
		slogLevel = slog.LevelError
	default:
		slogLevel = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slogLevel}))
}
